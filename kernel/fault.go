package kernel

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Vector is an exception number.
type Vector int

const (
	DivideError Vector = iota
	Debug
	NMI
	Breakpoint
	Overflow
	BoundRangeExceeded
	InvalidOpcode
	DeviceNotAvailable
	DoubleFault
	CoprocessorSegmentOverrun
	InvalidTSS
	SegmentNotPresent
	StackSegmentFault
	GeneralProtection
	PageFault
	Reserved
	FPUError
	AlignmentCheck
	MachineCheck
	SIMDException
)

var vectorNames = [...]string{
	"divide_error",
	"debug",
	"nmi",
	"breakpoint",
	"overflow",
	"bound_exceeded",
	"invalid_opcode",
	"device_not_available",
	"double_fault",
	"coprocess_segment_overrun",
	"invalid_tss",
	"seg_not_present",
	"stack_seg_fault",
	"general_protection_fault",
	"page_fault",
	"reserved_fault",
	"fpu_exception",
	"alignment_check",
	"machine_check",
	"simd_exception",
}

func (v Vector) String() string {
	if v >= 0 && int(v) < len(vectorNames) {
		return vectorNames[v]
	}

	return fmt.Sprintf("exception_%d", int(v))
}

// FaultStatus is what execute returns for a process killed by an exception.
const FaultStatus = 256

// Fault is raised, as a panic, by user code that triggers an exception.
type Fault struct {
	Vector Vector
	Addr   uint32
	Err    error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s at %#08x: %s", f.Vector, f.Addr, f.Err)
	}

	return fmt.Sprintf("%s at %#08x", f.Vector, f.Addr)
}

// asFault converts a recovered panic value into the exception it models.
// Values that don't correspond to a user exception return false.
func asFault(v interface{}) (*Fault, bool) {
	switch x := v.(type) {
	case *Fault:
		return x, true
	case runtime.Error:
		msg := x.Error()

		switch {
		case strings.Contains(msg, "divide by zero"):
			return &Fault{Vector: DivideError, Err: x}, true
		case strings.Contains(msg, "nil pointer"), strings.Contains(msg, "invalid memory address"):
			return &Fault{Vector: PageFault, Err: x}, true
		case strings.Contains(msg, "out of range"):
			return &Fault{Vector: BoundRangeExceeded, Err: x}, true
		default:
			return &Fault{Vector: GeneralProtection, Err: x}, true
		}
	default:
		return nil, false
	}
}

type kernelPanic struct {
	err error
}

// invariant stops the kernel when a kernel data structure is inconsistent.
func invariant(format string, args ...interface{}) {
	panic(kernelPanic{errors.Wrapf(ErrKernelInvariant, format, args...)})
}
