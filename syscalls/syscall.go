package syscalls

import (
	"context"

	"github.com/evanphx/minikern/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

// Syscall numbers.
const (
	SysHalt       = 1
	SysExecute    = 2
	SysRead       = 3
	SysWrite      = 4
	SysOpen       = 5
	SysClose      = 6
	SysGetargs    = 7
	SysVidmap     = 8
	SysSetHandler = 9
	SysSigreturn  = 10

	NumSyscalls = 10
)

type SysArgs struct {
	Index int32
	Args  SyscallRequest
}

type SyscallRequest struct {
	R0, R1, R2 int32
}

var Syscalls [NumSyscalls + 1]func(context.Context, hclog.Logger, *kernel.Task, SysArgs) int32
