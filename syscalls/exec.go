package syscalls

import (
	"context"

	"github.com/evanphx/minikern/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

// maxCommand bounds how far a command line is scanned for its NUL.
const maxCommand = 1024

func sysHalt(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	status := args.Args.R0 & 0xFF

	task.Kernel.Halt(ctx, status)

	// not reached
	return 0
}

func sysExecute(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	ptr := args.Args.R0

	if ptr == 0 {
		return kernel.Errno(kernel.ErrNullBuffer)
	}

	cmd, err := task.ReadCString(uint32(ptr), maxCommand)
	if err != nil {
		return kernel.Errno(err)
	}

	status, err := task.Kernel.Execute(ctx, task.Process, cmd)
	if err != nil {
		l.Debug("execute failed", "pid", task.Pid, "command", string(cmd), "error", err)
		return kernel.Errno(err)
	}

	return status
}

func sysGetargs(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		ptr = args.Args.R0
		sz  = args.Args.R1
	)

	if ptr == 0 {
		return kernel.Errno(kernel.ErrNullBuffer)
	}

	if sz <= 0 {
		return -kernel.EINVAL
	}

	if sz > kernel.MaxArgs+1 {
		sz = kernel.MaxArgs + 1
	}

	buf := make([]byte, sz)

	n, err := task.GetArgs(buf)
	if err != nil {
		return kernel.Errno(err)
	}

	if _, err := task.WriteAt(buf[:n+1], int64(uint32(ptr))); err != nil {
		return -kernel.EFAULT
	}

	return 0
}

func sysVidmap(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	ptr := args.Args.R0

	addr, err := task.MapDisplay(uint32(ptr))
	if err != nil {
		return kernel.Errno(err)
	}

	return int32(addr)
}

func init() {
	Syscalls[SysHalt] = sysHalt
	Syscalls[SysExecute] = sysExecute
	Syscalls[SysGetargs] = sysGetargs
	Syscalls[SysVidmap] = sysVidmap
}
