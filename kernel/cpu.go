package kernel

import (
	"context"
	"sync"

	"github.com/evanphx/minikern/memory"
	"github.com/pkg/errors"
)

// Routine is the native code found at an entry address. Returning is the
// same as calling halt with the returned status.
type Routine func(u *User) int32

// Gate is the trap entry user code uses to request syscalls.
type Gate interface {
	Trap(ctx context.Context, num, a0, a1, a2 int32) int32
}

// TSS holds the privileged stack used on the next trap from user mode.
type TSS struct {
	Ss0  uint16
	Esp0 uint32
}

const KernelDS = 0x18

// CPU maps entry addresses to the routines that run there.
type CPU struct {
	mu       sync.RWMutex
	routines map[uint32]Routine
	names    map[uint32]string
}

func NewCPU() *CPU {
	return &CPU{
		routines: make(map[uint32]Routine),
		names:    make(map[uint32]string),
	}
}

func (c *CPU) Register(entry uint32, name string, r Routine) error {
	if entry < memory.ProgramImage || !memory.InWindow(entry) {
		return errors.Wrapf(ErrInvalidArgument, "entry %#08x for %s outside the program window", entry, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.names[entry]; ok {
		return errors.Wrapf(ErrInvalidArgument, "entry %#08x already used by %s", entry, prev)
	}

	c.routines[entry] = r
	c.names[entry] = name

	return nil
}

func (c *CPU) Lookup(entry uint32) (Routine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.routines[entry]
	return r, ok
}

func (c *CPU) Name(entry uint32) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.names[entry]
}
