// Package bootfs reads the read-only boot filesystem image.
//
// The image is a sequence of 4 KiB blocks. Block 0 holds the directory entry,
// inode and data block counts followed by up to 63 directory entries. The next
// inode-count blocks are inode records and the data blocks follow them.
package bootfs

import (
	"encoding/binary"
	"os"

	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/evanphx/minikern/fs"
	"github.com/evanphx/minikern/log"
)

const (
	direntSize     = 64
	direntTypeOff  = fs.NameLen
	direntInodeOff = fs.NameLen + 4

	// The three counts and 52 reserved bytes precede the entry array.
	headerSize = 64
)

var le = binary.LittleEndian

type FS struct {
	L hclog.Logger

	data []byte

	dirCount   uint32
	inodeCount uint32
	dataCount  uint32

	names *lru.ARCCache
}

// Open reads an image file from the host.
func Open(path string) (*FS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return New(data)
}

// New validates data as a boot image. The slice is retained and must not be
// modified afterwards.
func New(data []byte) (*FS, error) {
	if len(data) < fs.BlockSize {
		return nil, errors.Wrapf(fs.ErrCorrupt, "image is %d bytes", len(data))
	}

	cache, err := lru.NewARC(fs.MaxDirents)
	if err != nil {
		return nil, err
	}

	f := &FS{
		L:          log.L.Named("bootfs"),
		data:       data,
		dirCount:   le.Uint32(data[0:]),
		inodeCount: le.Uint32(data[4:]),
		dataCount:  le.Uint32(data[8:]),
		names:      cache,
	}

	if f.dirCount > fs.MaxDirents {
		return nil, errors.Wrapf(fs.ErrCorrupt, "%d directory entries", f.dirCount)
	}

	need := (1 + uint64(f.inodeCount) + uint64(f.dataCount)) * fs.BlockSize
	if uint64(len(data)) < need {
		return nil, errors.Wrapf(fs.ErrCorrupt, "image is %d bytes, counts need %d", len(data), need)
	}

	for i := 0; i < int(f.dirCount); i++ {
		d := f.dirent(i)
		if d.Type != fs.RegularFile {
			continue
		}

		if _, err := f.Stat(d.Inode); err != nil {
			return nil, errors.Wrapf(err, "entry %q", d.Name)
		}
	}

	f.L.Trace("image loaded", "dirents", f.dirCount, "inodes", f.inodeCount, "blocks", f.dataCount)

	return f, nil
}

// Len is the number of directory entries.
func (f *FS) Len() int {
	return int(f.dirCount)
}

func (f *FS) dirent(i int) fs.Dirent {
	raw := f.data[headerSize+i*direntSize:]

	return fs.Dirent{
		Name:  fs.DecodeName(raw[:fs.NameLen]),
		Type:  fs.DirentType(le.Uint32(raw[direntTypeOff:])),
		Inode: le.Uint32(raw[direntInodeOff:]),
	}
}

// LookupIndex returns the directory entry at index i.
func (f *FS) LookupIndex(i int) (fs.Dirent, error) {
	if i < 0 || i >= int(f.dirCount) {
		return fs.Dirent{}, errors.Wrapf(fs.ErrBadIndex, "index %d of %d", i, f.dirCount)
	}

	return f.dirent(i), nil
}

// LookupName scans every directory entry for name. When several entries carry
// the same name the last one wins.
func (f *FS) LookupName(name string) (fs.Dirent, error) {
	if name == "" || len(name) > fs.NameLen {
		return fs.Dirent{}, errors.Wrapf(fs.ErrUnknownPath, "name %q", name)
	}

	if val, ok := f.names.Get(name); ok {
		return val.(fs.Dirent), nil
	}

	var (
		found fs.Dirent
		ok    bool
	)

	for i := 0; i < int(f.dirCount); i++ {
		d := f.dirent(i)
		if d.Name == name {
			found = d
			ok = true
		}
	}

	if !ok {
		return fs.Dirent{}, errors.Wrapf(fs.ErrUnknownPath, "name %q", name)
	}

	f.names.Add(name, found)

	return found, nil
}

// Entries returns every directory entry in on-disk order.
func (f *FS) Entries() []fs.Dirent {
	out := make([]fs.Dirent, f.dirCount)
	for i := range out {
		out[i] = f.dirent(i)
	}

	return out
}

// Stat decodes the inode record. Only the block numbers a file of the stored
// length actually uses are returned.
func (f *FS) Stat(inode uint32) (fs.InodeRecord, error) {
	if inode >= f.inodeCount {
		return fs.InodeRecord{}, errors.Wrapf(fs.ErrBadInode, "inode %d of %d", inode, f.inodeCount)
	}

	raw := f.data[(1+int(inode))*fs.BlockSize:]

	rec := fs.InodeRecord{
		Length: le.Uint32(raw),
	}

	if rec.Length > fs.MaxFileSize {
		return fs.InodeRecord{}, errors.Wrapf(fs.ErrCorrupt, "inode %d length %d", inode, rec.Length)
	}

	used := fs.BlocksUsed(rec.Length)
	rec.Blocks = make([]uint32, used)

	for i := range rec.Blocks {
		blk := le.Uint32(raw[4+4*i:])
		if blk >= f.dataCount {
			return fs.InodeRecord{}, errors.Wrapf(fs.ErrCorrupt, "inode %d references block %d", inode, blk)
		}

		rec.Blocks[i] = blk
	}

	return rec, nil
}

func (f *FS) block(n uint32) []byte {
	start := (1 + int(f.inodeCount) + int(n)) * fs.BlockSize
	return f.data[start : start+fs.BlockSize]
}

// ReadData copies up to len(buf) bytes of inode starting at offset. Reading
// stops at the stored length, so the count may be short at end of file.
// An offset beyond the stored length is an error; an offset equal to it
// reads nothing.
func (f *FS) ReadData(inode, offset uint32, buf []byte) (int, error) {
	rec, err := f.Stat(inode)
	if err != nil {
		return 0, err
	}

	if offset > rec.Length {
		return 0, errors.Wrapf(fs.ErrPastEnd, "offset %d, length %d", offset, rec.Length)
	}

	length := uint32(len(buf))
	if length > rec.Length-offset {
		length = rec.Length - offset
	}

	if length == 0 {
		return 0, nil
	}

	var (
		first  = offset / fs.BlockSize
		last   = (offset + length - 1) / fs.BlockSize
		copied int
	)

	for idx := first; idx <= last; idx++ {
		blk := f.block(rec.Blocks[idx])

		start := uint32(0)
		if idx == first {
			start = offset % fs.BlockSize
		}

		end := uint32(fs.BlockSize)
		if idx == last {
			end = (offset+length-1)%fs.BlockSize + 1
		}

		copied += copy(buf[copied:], blk[start:end])
	}

	return copied, nil
}

// ReadAll returns the whole contents of inode.
func (f *FS) ReadAll(inode uint32) ([]byte, error) {
	rec, err := f.Stat(inode)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, rec.Length)

	n, err := f.ReadData(inode, 0, buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}
