package kernel

import (
	"context"
	"encoding/binary"

	"github.com/evanphx/minikern/device"
	"github.com/evanphx/minikern/fs"
	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/pkg/errors"
)

// FileOps is the capability set behind a descriptor.
type FileOps interface {
	Read(ctx context.Context, f *File, buf []byte) (int, error)
	Write(ctx context.Context, f *File, buf []byte) (int, error)
	Close(f *File) error
}

// File is one descriptor slot.
type File struct {
	Ops    FileOps
	Dirent fs.Dirent
	Pos    uint32

	inUse bool
}

func (f *File) InUse() bool {
	return f.inUse
}

type RegularFile struct {
	fs *bootfs.FS
}

func (r *RegularFile) Read(ctx context.Context, f *File, buf []byte) (int, error) {
	n, err := r.fs.ReadData(f.Dirent.Inode, f.Pos, buf)
	if err != nil {
		return 0, err
	}

	f.Pos += uint32(n)

	return n, nil
}

func (r *RegularFile) Write(ctx context.Context, f *File, buf []byte) (int, error) {
	return 0, ErrReadOnly
}

func (r *RegularFile) Close(f *File) error {
	return nil
}

// Directory reads return one entry name per call.
type Directory struct {
	fs *bootfs.FS
}

func (d *Directory) Read(ctx context.Context, f *File, buf []byte) (int, error) {
	if int(f.Pos) >= d.fs.Len() {
		return 0, nil
	}

	ent, err := d.fs.LookupIndex(int(f.Pos))
	if err != nil {
		return 0, err
	}

	f.Pos++

	return copy(buf, ent.Name), nil
}

func (d *Directory) Write(ctx context.Context, f *File, buf []byte) (int, error) {
	return 0, ErrReadOnly
}

func (d *Directory) Close(f *File) error {
	return nil
}

// TickFile reads block until the next virtual tick. Writes take a 4 byte
// little endian rate.
type TickFile struct {
	dev *device.TickDevice
}

func (t *TickFile) Read(ctx context.Context, f *File, buf []byte) (int, error) {
	if err := t.dev.Wait(ctx); err != nil {
		return 0, err
	}

	return 0, nil
}

func (t *TickFile) Write(ctx context.Context, f *File, buf []byte) (int, error) {
	if len(buf) != 4 {
		return 0, errors.Wrapf(ErrInvalidArgument, "rate must be 4 bytes, got %d", len(buf))
	}

	if err := t.dev.SetRate(binary.LittleEndian.Uint32(buf)); err != nil {
		return 0, err
	}

	return 0, nil
}

func (t *TickFile) Close(f *File) error {
	return nil
}

type ConsoleIn struct {
	term *device.Terminal
}

func (c *ConsoleIn) Read(ctx context.Context, f *File, buf []byte) (int, error) {
	return c.term.Read(ctx, buf)
}

func (c *ConsoleIn) Write(ctx context.Context, f *File, buf []byte) (int, error) {
	return 0, ErrWrongDirection
}

func (c *ConsoleIn) Close(f *File) error {
	return ErrReservedDescriptor
}

type ConsoleOut struct {
	term *device.Terminal
}

func (c *ConsoleOut) Read(ctx context.Context, f *File, buf []byte) (int, error) {
	return 0, ErrWrongDirection
}

func (c *ConsoleOut) Write(ctx context.Context, f *File, buf []byte) (int, error) {
	return c.term.Write(buf)
}

func (c *ConsoleOut) Close(f *File) error {
	return ErrReservedDescriptor
}

// opsFor picks the operation set for an entry by its stored kind.
func (k *Kernel) opsFor(d fs.Dirent) (FileOps, error) {
	switch d.Type {
	case fs.Device:
		k.Tick.Open()
		return &TickFile{dev: k.Tick}, nil
	case fs.Directory:
		return &Directory{fs: k.FS}, nil
	case fs.RegularFile:
		if _, err := k.FS.Stat(d.Inode); err != nil {
			return nil, err
		}

		return &RegularFile{fs: k.FS}, nil
	default:
		return nil, errors.Wrapf(fs.ErrCorrupt, "%q has unknown type %d", d.Name, d.Type)
	}
}
