package syscalls

import (
	"context"

	"github.com/evanphx/minikern/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

// Signals are not delivered, so installing a handler or returning from one
// always fails.

func sysSetHandler(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	l.Trace("set_handler", "pid", task.Pid, "signum", args.Args.R0)
	return kernel.Errno(kernel.ErrNotImplemented)
}

func sysSigreturn(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	return kernel.Errno(kernel.ErrNotImplemented)
}

func init() {
	Syscalls[SysSetHandler] = sysSetHandler
	Syscalls[SysSigreturn] = sysSigreturn
}
