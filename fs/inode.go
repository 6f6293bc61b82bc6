package fs

import (
	"github.com/pkg/errors"
)

// Geometry of the boot image.
const (
	BlockSize = 4096

	// NameLen is the width of the name field of a directory entry. A name
	// that fills it carries no NUL terminator.
	NameLen = 32

	// MaxDirents is how many directory entries fit in the leading block.
	MaxDirents = 63

	// MaxInodeBlocks is how many data block numbers fit in an inode record.
	MaxInodeBlocks = 1023

	// MaxFileSize is the largest length an inode record can describe.
	MaxFileSize = MaxInodeBlocks * BlockSize
)

var (
	ErrUnknownPath = errors.New("unknown path")
	ErrBadIndex    = errors.New("directory index out of range")
	ErrBadInode    = errors.New("inode out of range")
	ErrPastEnd     = errors.New("offset past end of file")
	ErrCorrupt     = errors.New("corrupt filesystem image")
	ErrNameTooLong = errors.New("name longer than 32 bytes")
	ErrFull        = errors.New("filesystem image full")
)

// DirentType enumerates the kinds of directory entries. The values are the
// on-disk tags.
type DirentType uint32

const (
	// Device is the periodic tick device.
	Device DirentType = 0

	// Directory is the single flat directory.
	Directory DirentType = 1

	// RegularFile is a regular file backed by an inode.
	RegularFile DirentType = 2
)

// String returns a human-readable representation of the DirentType.
func (t DirentType) String() string {
	switch t {
	case Device:
		return "device"
	case Directory:
		return "directory"
	case RegularFile:
		return "file"
	default:
		return "unknown"
	}
}

// InodeRecord is the length and block list of one file. Blocks holds only
// the ceil(Length/BlockSize) block numbers that are in use.
type InodeRecord struct {
	Length uint32
	Blocks []uint32
}

// BlocksUsed is the number of data blocks a file of length n occupies.
func BlocksUsed(n uint32) int {
	return int((n + BlockSize - 1) / BlockSize)
}
