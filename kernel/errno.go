package kernel

import (
	"context"

	"github.com/evanphx/minikern/device"
	"github.com/evanphx/minikern/fs"
	"github.com/evanphx/minikern/loader"
	"github.com/evanphx/minikern/memory"
	"github.com/pkg/errors"
)

const (
	EPERM   = 1
	ENOENT  = 2
	EINTR   = 4
	EIO     = 5
	ENOEXEC = 8
	EBADF   = 9
	EAGAIN  = 11
	EFAULT  = 14
	EINVAL  = 22
	EMFILE  = 24
	EROFS   = 30
	ENOSYS  = 38
)

// Errno maps an error to the negative status a syscall returns.
func Errno(err error) int32 {
	if err == nil {
		return 0
	}

	switch cause := errors.Cause(err); cause {
	case fs.ErrUnknownPath, fs.ErrNameTooLong:
		return -ENOENT
	case loader.ErrNotExecutable:
		return -ENOEXEC
	case ErrTooManyProcesses:
		return -EAGAIN
	case ErrNoFreeDescriptor:
		return -EMFILE
	case ErrOutOfRange, ErrNotInUse, ErrWrongDirection, ErrReservedDescriptor:
		return -EBADF
	case ErrNullBuffer, ErrOutOfWindow, memory.ErrPhysicalRange, memory.ErrStringTooLong:
		return -EFAULT
	case ErrInvalidArgument, ErrEmptyCommand, device.ErrBadRate:
		return -EINVAL
	case ErrReadOnly:
		return -EROFS
	case ErrNotImplemented:
		return -ENOSYS
	case ErrShutdown, context.Canceled, context.DeadlineExceeded:
		return -EINTR
	default:
		if _, ok := cause.(*memory.PageFault); ok {
			return -EFAULT
		}

		return -EIO
	}
}
