// Package ulib is the user side of the syscall interface. Arguments are
// staged in a scratch area inside the calling process's program window and
// passed to the kernel by address.
package ulib

import (
	"strconv"

	"github.com/evanphx/minikern/kernel"
	"github.com/evanphx/minikern/memory"
	"github.com/evanphx/minikern/syscalls"
)

const (
	// Scratch is where arguments are staged.
	Scratch = memory.ProgramWindow + 0x300000

	// ScratchSize is how much can be staged by one call.
	ScratchSize = 0x80000
)

// Proc wraps the machine a user routine runs on.
type Proc struct {
	*kernel.User
}

func New(u *kernel.User) *Proc {
	return &Proc{User: u}
}

func (p *Proc) stage(b []byte) uint32 {
	p.Store(Scratch, b)
	return Scratch
}

func (p *Proc) stageString(s string) uint32 {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return p.stage(b)
}

// Halt ends the process. It does not return.
func (p *Proc) Halt(status uint8) {
	p.Syscall(syscalls.SysHalt, int32(status), 0, 0)
}

func (p *Proc) Execute(cmd string) int32 {
	return p.Syscall(syscalls.SysExecute, int32(p.stageString(cmd)), 0, 0)
}

func (p *Proc) Read(fd int32, buf []byte) int32 {
	if len(buf) > ScratchSize {
		buf = buf[:ScratchSize]
	}

	addr := p.stage(buf)

	n := p.Syscall(syscalls.SysRead, fd, int32(addr), int32(len(buf)))

	p.Load(addr, buf)

	return n
}

func (p *Proc) Write(fd int32, buf []byte) int32 {
	if len(buf) > ScratchSize {
		buf = buf[:ScratchSize]
	}

	return p.Syscall(syscalls.SysWrite, fd, int32(p.stage(buf)), int32(len(buf)))
}

func (p *Proc) Open(name string) int32 {
	return p.Syscall(syscalls.SysOpen, int32(p.stageString(name)), 0, 0)
}

func (p *Proc) Close(fd int32) int32 {
	return p.Syscall(syscalls.SysClose, fd, 0, 0)
}

// GetArgs returns the argument string, read into a buffer of n bytes.
func (p *Proc) GetArgs(n int) (string, int32) {
	buf := make([]byte, n)

	ret := p.Syscall(syscalls.SysGetargs, int32(p.stage(buf)), int32(n), 0)
	if ret < 0 {
		return "", ret
	}

	p.Load(Scratch, buf)

	return CString(buf), 0
}

// Vidmap asks for the display and returns where it was mapped.
func (p *Proc) Vidmap() (uint32, int32) {
	p.Store32(Scratch, 0)

	ret := p.Syscall(syscalls.SysVidmap, int32(Scratch), 0, 0)
	if ret < 0 {
		return 0, ret
	}

	return p.Load32(Scratch), ret
}

func (p *Proc) SetHandler(signum int32, handler uint32) int32 {
	return p.Syscall(syscalls.SysSetHandler, signum, int32(handler), 0)
}

func (p *Proc) Sigreturn() int32 {
	return p.Syscall(syscalls.SysSigreturn, 0, 0, 0)
}

func (p *Proc) Puts(s string) int32 {
	return p.Write(kernel.Stdout, []byte(s))
}

// Gets reads one line from the console without its terminator.
func (p *Proc) Gets() (string, int32) {
	buf := make([]byte, 128)

	n := p.Read(kernel.Stdin, buf)
	if n < 0 {
		return "", n
	}

	line := buf[:n]
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}

	return string(line), n
}

// CString returns b up to its first NUL.
func CString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}

	return string(b)
}

func Itoa(n int32) string {
	return strconv.Itoa(int(n))
}
