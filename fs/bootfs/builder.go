package bootfs

import (
	"github.com/pkg/errors"

	"github.com/evanphx/minikern/fs"
)

type builderEntry struct {
	dirent fs.Dirent
}

// Builder assembles a boot image. Regular files get consecutive inode
// numbers and consecutive data blocks in the order they are added.
type Builder struct {
	entries []builderEntry
	files   [][]byte
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) add(d fs.Dirent) error {
	if d.Name == "" {
		return errors.Wrap(fs.ErrUnknownPath, "empty name")
	}

	if len(d.Name) > fs.NameLen {
		return errors.Wrapf(fs.ErrNameTooLong, "name %q", d.Name)
	}

	if len(b.entries) == fs.MaxDirents {
		return errors.Wrapf(fs.ErrFull, "adding %q", d.Name)
	}

	b.entries = append(b.entries, builderEntry{dirent: d})
	return nil
}

// AddDirectory adds a directory entry, conventionally named ".".
func (b *Builder) AddDirectory(name string) error {
	return b.add(fs.Dirent{Name: name, Type: fs.Directory})
}

// AddDevice adds an entry that opens the tick device.
func (b *Builder) AddDevice(name string) error {
	return b.add(fs.Dirent{Name: name, Type: fs.Device})
}

// AddFile adds a regular file with the given contents.
func (b *Builder) AddFile(name string, data []byte) error {
	if len(data) > fs.MaxFileSize {
		return errors.Wrapf(fs.ErrFull, "%q is %d bytes", name, len(data))
	}

	err := b.add(fs.Dirent{Name: name, Type: fs.RegularFile, Inode: uint32(len(b.files))})
	if err != nil {
		return err
	}

	body := make([]byte, len(data))
	copy(body, data)

	b.files = append(b.files, body)
	return nil
}

// Bytes encodes the image.
func (b *Builder) Bytes() ([]byte, error) {
	var dataCount int
	for _, body := range b.files {
		dataCount += fs.BlocksUsed(uint32(len(body)))
	}

	inodeCount := len(b.files)

	out := make([]byte, (1+inodeCount+dataCount)*fs.BlockSize)

	le.PutUint32(out[0:], uint32(len(b.entries)))
	le.PutUint32(out[4:], uint32(inodeCount))
	le.PutUint32(out[8:], uint32(dataCount))

	for i, ent := range b.entries {
		raw := out[headerSize+i*direntSize:]
		copy(raw[:fs.NameLen], ent.dirent.Name)
		le.PutUint32(raw[direntTypeOff:], uint32(ent.dirent.Type))
		le.PutUint32(raw[direntInodeOff:], ent.dirent.Inode)
	}

	var next uint32

	for i, body := range b.files {
		rec := out[(1+i)*fs.BlockSize:]
		le.PutUint32(rec, uint32(len(body)))

		for j := 0; j < fs.BlocksUsed(uint32(len(body))); j++ {
			le.PutUint32(rec[4+4*j:], next)

			start := (1 + inodeCount + int(next)) * fs.BlockSize
			chunk := body[j*fs.BlockSize:]
			if len(chunk) > fs.BlockSize {
				chunk = chunk[:fs.BlockSize]
			}

			copy(out[start:], chunk)
			next++
		}
	}

	return out, nil
}
