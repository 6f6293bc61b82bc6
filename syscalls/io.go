package syscalls

import (
	"context"

	"github.com/evanphx/minikern/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

// maxName bounds how far a name argument is scanned for its NUL.
const maxName = 256

func sysRead(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		fd  = args.Args.R0
		ptr = args.Args.R1
		sz  = args.Args.R2
	)

	if ptr == 0 {
		return kernel.Errno(kernel.ErrNullBuffer)
	}

	if sz < 0 {
		return -kernel.EINVAL
	}

	if _, err := task.Readable(int(fd)); err != nil {
		return kernel.Errno(err)
	}

	if err := task.CheckBuffer(uint32(ptr), int(sz)); err != nil {
		l.Debug("bad buffer", "pid", task.Pid, "ptr", hclog.Hex(int(uint32(ptr))), "size", sz)
		return kernel.Errno(err)
	}

	// Start from the caller's bytes so a short read leaves the rest of the
	// buffer untouched.
	data := make([]byte, sz)

	if _, err := task.ReadAt(data, int64(uint32(ptr))); err != nil {
		l.Debug("bad read buffer", "pid", task.Pid, "ptr", hclog.Hex(int(uint32(ptr))), "error", err)
		return -kernel.EFAULT
	}

	n, err := task.ReadFile(ctx, int(fd), data)
	if err != nil {
		return kernel.Errno(err)
	}

	if _, err := task.WriteAt(data, int64(uint32(ptr))); err != nil {
		return -kernel.EFAULT
	}

	return int32(n)
}

func sysWrite(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	var (
		fd  = args.Args.R0
		ptr = args.Args.R1
		sz  = args.Args.R2
	)

	if ptr == 0 {
		return kernel.Errno(kernel.ErrNullBuffer)
	}

	if sz < 0 {
		return -kernel.EINVAL
	}

	if _, err := task.Writable(int(fd)); err != nil {
		return kernel.Errno(err)
	}

	if err := task.CheckBuffer(uint32(ptr), int(sz)); err != nil {
		l.Debug("bad buffer", "pid", task.Pid, "ptr", hclog.Hex(int(uint32(ptr))), "size", sz)
		return kernel.Errno(err)
	}

	data := make([]byte, sz)

	if _, err := task.ReadAt(data, int64(uint32(ptr))); err != nil {
		l.Debug("bad write buffer", "pid", task.Pid, "ptr", hclog.Hex(int(uint32(ptr))), "error", err)
		return -kernel.EFAULT
	}

	n, err := task.WriteFile(ctx, int(fd), data)
	if err != nil {
		return kernel.Errno(err)
	}

	return int32(n)
}

func sysOpen(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	ptr := args.Args.R0

	if ptr == 0 {
		return kernel.Errno(kernel.ErrNullBuffer)
	}

	name, err := task.ReadCString(uint32(ptr), maxName)
	if err != nil {
		return kernel.Errno(err)
	}

	fd, err := task.OpenFile(string(name))
	if err != nil {
		l.Trace("open failed", "pid", task.Pid, "name", string(name), "error", err)
		return kernel.Errno(err)
	}

	l.Trace("open file", "pid", task.Pid, "name", string(name), "fd", fd)

	return int32(fd)
}

func sysClose(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int32 {
	fd := args.Args.R0

	if err := task.CloseFile(int(fd)); err != nil {
		return kernel.Errno(err)
	}

	return 0
}

func init() {
	Syscalls[SysRead] = sysRead
	Syscalls[SysWrite] = sysWrite
	Syscalls[SysOpen] = sysOpen
	Syscalls[SysClose] = sysClose
}
