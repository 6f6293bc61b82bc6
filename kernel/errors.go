package kernel

import "github.com/pkg/errors"

// Validation errors. These are returned to the caller and never fatal.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNullBuffer         = errors.New("null buffer")
	ErrOutOfRange         = errors.New("descriptor out of range")
	ErrNotInUse           = errors.New("descriptor not in use")
	ErrWrongDirection     = errors.New("descriptor does not support this direction")
	ErrReservedDescriptor = errors.New("console descriptors can not be closed")
	ErrOutOfWindow        = errors.New("pointer outside the program window")
	ErrReadOnly           = errors.New("read-only filesystem")
	ErrEmptyCommand       = errors.New("empty command")
	ErrNotImplemented     = errors.New("not implemented")
)

// Resource exhaustion.
var (
	ErrNoFreeDescriptor = errors.New("no free descriptor")
	ErrTooManyProcesses = errors.New("process limit reached")
)

// Fatal conditions stop the whole kernel.
var (
	ErrDoubleFault     = errors.New("double fault")
	ErrKernelInvariant = errors.New("kernel invariant violated")
	ErrNotCurrent      = errors.New("process is not the running process")
	ErrShutdown        = errors.New("kernel shutting down")
)
