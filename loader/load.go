// Package loader checks and reads program images out of the boot filesystem.
package loader

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/evanphx/minikern/fs"
	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/evanphx/minikern/log"
	"github.com/evanphx/minikern/memory"
	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// Magic is the 4 byte header every executable starts with.
var Magic = [4]byte{0x7F, 'E', 'L', 'F'}

// MaxImageSize is how much of the window lies above the load address.
const MaxImageSize = memory.ProgramWindow + memory.LargePageSize - memory.ProgramImage

// HeaderSize is the shortest image that still carries an entry address.
const HeaderSize = memory.EntryOffset + 4

var ErrNotExecutable = errors.New("not an executable")

// Image is a program read out of the filesystem.
type Image struct {
	Name   string
	Inode  uint32
	Data   []byte
	Digest string
}

// Entry is the entry address stored in the image header.
func (i *Image) Entry() uint32 {
	return EntryPoint(i.Data)
}

// EntryPoint decodes the entry address from an image header.
func EntryPoint(hdr []byte) uint32 {
	if len(hdr) < HeaderSize {
		return 0
	}

	return binary.LittleEndian.Uint32(hdr[memory.EntryOffset:])
}

type LoaderCache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewLoaderCache() *LoaderCache {
	cache, err := lru.NewARC(16)
	if err != nil {
		panic(err)
	}

	return &LoaderCache{cache: cache}
}

func (l *LoaderCache) Lookup(inode uint32) (*Image, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	val, ok := l.cache.Get(inode)
	if !ok {
		return nil, false
	}

	return val.(*Image), true
}

func (l *LoaderCache) Set(inode uint32, img *Image) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Add(inode, img)
}

func NewLoader(fsys *bootfs.FS, cache *LoaderCache) *Loader {
	return &Loader{
		L:     log.L.Named("loader"),
		fs:    fsys,
		cache: cache,
	}
}

type Loader struct {
	L     hclog.Logger
	fs    *bootfs.FS
	cache *LoaderCache
}

// Check reads the first 4 bytes of the file and compares them to Magic.
func (l *Loader) Check(d fs.Dirent) error {
	if d.Type != fs.RegularFile {
		return errors.Wrapf(ErrNotExecutable, "%q is a %s", d.Name, d.Type)
	}

	var hdr [4]byte

	n, err := l.fs.ReadData(d.Inode, 0, hdr[:])
	if err != nil {
		return err
	}

	if n != len(hdr) || hdr != Magic {
		return errors.Wrapf(ErrNotExecutable, "%q has header % x", d.Name, hdr[:n])
	}

	return nil
}

// Load returns the whole image. The filesystem is immutable so images are
// cached by inode.
func (l *Loader) Load(d fs.Dirent) (*Image, error) {
	if err := l.Check(d); err != nil {
		return nil, err
	}

	if l.cache != nil {
		if img, ok := l.cache.Lookup(d.Inode); ok {
			l.L.Trace("image cache hit", "name", d.Name, "digest", img.Digest)
			return img, nil
		}
	}

	data, err := l.fs.ReadAll(d.Inode)
	if err != nil {
		return nil, err
	}

	if len(data) > MaxImageSize {
		return nil, errors.Wrapf(ErrNotExecutable, "%q is %d bytes, window holds %d", d.Name, len(data), MaxImageSize)
	}

	if !bytes.HasPrefix(data, Magic[:]) {
		return nil, errors.Wrapf(ErrNotExecutable, "%q", d.Name)
	}

	if len(data) < HeaderSize {
		return nil, errors.Wrapf(ErrNotExecutable, "%q is %d bytes, header needs %d", d.Name, len(data), HeaderSize)
	}

	sum := blake2b.Sum256(data)

	img := &Image{
		Name:   d.Name,
		Inode:  d.Inode,
		Data:   data,
		Digest: hex.EncodeToString(sum[:]),
	}

	l.L.Debug("loaded image", "name", d.Name, "size", len(data), "digest", img.Digest)

	if l.cache != nil {
		l.cache.Set(d.Inode, img)
	}

	return img, nil
}

// Build assembles an image with the given entry address and body.
func Build(entry uint32, body []byte) []byte {
	hdr := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(hdr, Magic[:])
	binary.LittleEndian.PutUint32(hdr[memory.EntryOffset:], entry)

	return append(hdr, body...)
}
