package kernel

import (
	"context"
	"encoding/binary"
	"runtime"

	"github.com/evanphx/minikern/memory"
)

// User is the unprivileged machine a routine runs on. Memory accesses go
// through the MMU with user privilege and a failed translation raises a
// page fault.
type User struct {
	ctx  context.Context
	proc *Process
	gate Gate
	mem  *memory.View
}

func (u *User) Context() context.Context {
	return u.ctx
}

func (u *User) stopped() bool {
	select {
	case <-u.ctx.Done():
		return true
	case <-u.proc.Kernel.dead:
		return true
	default:
		return false
	}
}

// Syscall traps into the kernel. A kernel that is stopping never returns
// control to user code.
func (u *User) Syscall(num, a0, a1, a2 int32) int32 {
	if u.stopped() {
		runtime.Goexit()
	}

	prev := u.proc.trapping
	u.proc.trapping = true
	ret := u.gate.Trap(u.ctx, num, a0, a1, a2)
	u.proc.trapping = prev

	if u.stopped() {
		runtime.Goexit()
	}

	return ret
}

func (u *User) fault(err error) {
	f := &Fault{Vector: PageFault, Err: err}

	if pf, ok := err.(*memory.PageFault); ok {
		f.Addr = pf.Addr
	}

	panic(f)
}

func (u *User) Load(addr uint32, b []byte) {
	if _, err := u.mem.ReadAt(b, int64(addr)); err != nil {
		u.fault(err)
	}
}

func (u *User) Store(addr uint32, b []byte) {
	if _, err := u.mem.WriteAt(b, int64(addr)); err != nil {
		u.fault(err)
	}
}

func (u *User) Load32(addr uint32) uint32 {
	var b [4]byte
	u.Load(addr, b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (u *User) Store32(addr, val uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], val)
	u.Store(addr, b[:])
}

// Raise triggers an exception as if the instruction at the entry point had.
func (u *User) Raise(v Vector) {
	panic(&Fault{Vector: v, Addr: u.proc.Entry})
}
