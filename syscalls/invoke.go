package syscalls

import (
	"context"

	"github.com/evanphx/minikern/kernel"
	"github.com/evanphx/minikern/log"
	hclog "github.com/hashicorp/go-hclog"
)

// Invoker is the trap gate. It finds the calling task in the context and
// dispatches through the syscall table.
type Invoker struct {
	L      hclog.Logger
	Kernel *kernel.Kernel
}

// NewInvoker creates an Invoker and installs it as k's gate.
func NewInvoker(k *kernel.Kernel) *Invoker {
	i := &Invoker{
		L:      log.L.Named("syscall"),
		Kernel: k,
	}

	k.SetGate(i)

	return i
}

func (i *Invoker) Trap(ctx context.Context, num, a0, a1, a2 int32) int32 {
	return i.InvokeSyscall(ctx, SysArgs{
		Index: num,
		Args:  SyscallRequest{R0: a0, R1: a1, R2: a2},
	})
}

func (i *Invoker) InvokeSyscall(ctx context.Context, args SysArgs) int32 {
	if args.Index < 0 || int(args.Index) >= len(Syscalls) {
		return -kernel.ENOSYS
	}

	f := Syscalls[args.Index]
	if f == nil {
		return -kernel.ENOSYS
	}

	p, ok := kernel.GetTask(ctx)
	if !ok {
		return -kernel.ENOSYS
	}

	// the caller must be the process whose kernel stack is live
	if cur, ok := i.Kernel.Current(); !ok || cur != p.Process {
		i.L.Error("trap from a process that is not running", "pid", p.Pid, "num", args.Index)
		return -kernel.EIO
	}

	ret := f(ctx, i.L, p, args)

	i.L.Trace("syscall", "pid", p.Pid, "num", args.Index, "ret", ret)

	return ret
}
