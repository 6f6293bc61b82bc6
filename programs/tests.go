package programs

import (
	"strings"

	"github.com/evanphx/minikern/kernel"
	"github.com/evanphx/minikern/memory"
	"github.com/evanphx/minikern/syscalls"
	"github.com/evanphx/minikern/ulib"
)

// Sigtest tries to install a handler. With "fault" it then touches an
// unmapped page.
func Sigtest(p *ulib.Proc) int32 {
	args, _ := p.GetArgs(32)

	if p.SetHandler(2, memory.ProgramImage) < 0 && p.Sigreturn() < 0 {
		p.Puts("signals unsupported\n")
	} else {
		p.Puts("signals installed\n")
	}

	if strings.TrimSpace(args) == "fault" {
		var b [1]byte
		p.Load(0, b[:])
	}

	return 0
}

// Crash raises the exception named by its argument.
func Crash(p *ulib.Proc) int32 {
	args, _ := p.GetArgs(32)

	switch strings.TrimSpace(args) {
	case "div":
		zero := int32(len(args) - len(args))
		return 1 / zero
	case "gp":
		p.Raise(kernel.GeneralProtection)
	case "ud":
		p.Raise(kernel.InvalidOpcode)
	case "double":
		p.Raise(kernel.DoubleFault)
	default:
		p.Store32(memory.KernelBase, 0)
	}

	return 0
}

type check struct {
	name string
	ok   bool
}

// Syserr exercises the error paths of every syscall and returns the number
// of checks that failed.
func Syserr(p *ulib.Proc) int32 {
	var checks []check

	expect := func(name string, ok bool) {
		checks = append(checks, check{name, ok})
	}

	buf := make([]byte, 16)

	expect("read stdout", p.Read(1, buf) < 0)
	expect("write stdin", p.Write(0, buf) < 0)
	expect("read fd -1", p.Read(-1, buf) < 0)
	expect("read fd 8", p.Read(8, buf) < 0)
	expect("write unopened", p.Write(7, buf) < 0)
	expect("close stdin", p.Close(0) < 0)
	expect("close stdout", p.Close(1) < 0)
	expect("close unopened", p.Close(2) < 0)
	expect("close fd 8", p.Close(8) < 0)
	expect("open missing", p.Open("nonexistent") == -kernel.ENOENT)

	var fds []int32
	for i := 2; i < kernel.MaxFiles; i++ {
		fds = append(fds, p.Open("created.txt"))
	}

	allOpen := true
	for i, fd := range fds {
		if fd != int32(i+2) {
			allOpen = false
		}
	}

	expect("open fills table", allOpen)
	expect("open full table", p.Open("created.txt") == -kernel.EMFILE)

	allClosed := true
	for _, fd := range fds {
		if p.Close(fd) != 0 {
			allClosed = false
		}
	}

	expect("close all", allClosed)

	expect("read null buffer", p.Syscall(syscalls.SysRead, 0, 0, 10) < 0)
	expect("write null buffer", p.Syscall(syscalls.SysWrite, 1, 0, 10) < 0)
	expect("read kernel buffer", p.Syscall(syscalls.SysRead, 0, memory.KernelBase, 10) == -kernel.EFAULT)
	expect("open null name", p.Syscall(syscalls.SysOpen, 0, 0, 0) < 0)
	expect("execute null", p.Syscall(syscalls.SysExecute, 0, 0, 0) < 0)
	expect("execute missing", p.Execute("nonexistent") == -kernel.ENOENT)
	expect("execute data file", p.Execute("created.txt") == -kernel.ENOEXEC)
	expect("getargs null", p.Syscall(syscalls.SysGetargs, 0, 10, 0) < 0)
	expect("getargs zero length", p.Syscall(syscalls.SysGetargs, ulib.Scratch, 0, 0) < 0)
	expect("vidmap null", p.Syscall(syscalls.SysVidmap, 0, 0, 0) < 0)
	expect("vidmap kernel", p.Syscall(syscalls.SysVidmap, memory.KernelBase, 0, 0) < 0)
	expect("set_handler", p.SetHandler(0, 0) < 0)
	expect("sigreturn", p.Sigreturn() < 0)
	expect("syscall 0", p.Syscall(0, 0, 0, 0) < 0)
	expect("syscall 11", p.Syscall(11, 0, 0, 0) < 0)

	rtc := p.Open("rtc")
	expect("open rtc", rtc >= 2)

	rate := func(r byte) []byte { return []byte{r, 0, 0, 0} }

	expect("rtc rate 3", p.Write(rtc, rate(3)) < 0)
	expect("rtc rate 4", p.Write(rtc, rate(4)) == 0)
	expect("rtc short write", p.Write(rtc, []byte{4}) < 0)
	expect("close rtc", p.Close(rtc) == 0)

	var failed int32

	for _, c := range checks {
		if c.ok {
			p.Puts("PASS " + c.name + "\n")
		} else {
			p.Puts("FAIL " + c.name + "\n")
			failed++
		}
	}

	return failed
}
