package kernel

import (
	"io"
	"sync"

	"github.com/evanphx/minikern/config"
	"github.com/evanphx/minikern/device"
	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/evanphx/minikern/loader"
	"github.com/evanphx/minikern/log"
	"github.com/evanphx/minikern/memory"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

type Options struct {
	FS      *bootfs.FS
	CPU     *CPU
	Console *device.Terminal
	Tick    *device.TickDevice

	BaseProgram  string
	MaxProcesses int
}

type Kernel struct {
	L hclog.Logger

	MMU     *memory.MMU
	FS      *bootfs.FS
	CPU     *CPU
	Loader  *loader.Loader
	Console *device.Terminal
	Tick    *device.TickDevice

	BaseProgram string

	gate      Gate
	processes *ProcessManager

	swmu     sync.Mutex
	tss      TSS
	restarts int

	deadOnce sync.Once
	dead     chan struct{}
	fatal    error
}

func NewKernel(opts Options) (*Kernel, error) {
	if opts.FS == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "no filesystem")
	}

	if opts.CPU == nil {
		opts.CPU = NewCPU()
	}

	if opts.Console == nil {
		opts.Console = device.NewTerminal(&device.Keyboard{}, io.Discard)
	}

	if opts.Tick == nil {
		opts.Tick = device.NewTickDevice(device.MaxRate)
	}

	if opts.BaseProgram == "" {
		opts.BaseProgram = "shell"
	}

	if opts.MaxProcesses == 0 {
		opts.MaxProcesses = config.MaxSlots
	}

	if opts.MaxProcesses < 1 || opts.MaxProcesses > config.MaxSlots {
		return nil, errors.Wrapf(config.ErrBadMaxProcesses, "%d", opts.MaxProcesses)
	}

	k := &Kernel{
		L:           log.L.Named("kernel"),
		MMU:         memory.NewMMU(memory.NewPhysical()),
		FS:          opts.FS,
		CPU:         opts.CPU,
		Loader:      loader.NewLoader(opts.FS, loader.NewLoaderCache()),
		Console:     opts.Console,
		Tick:        opts.Tick,
		BaseProgram: opts.BaseProgram,
		processes:   NewProcessManager(opts.MaxProcesses),
		dead:        make(chan struct{}),
	}

	k.tss.Ss0 = KernelDS

	return k, nil
}

// SetGate installs the trap entry handed to user code.
func (k *Kernel) SetGate(g Gate) {
	k.gate = g
}

func (k *Kernel) Processes() *ProcessManager {
	return k.processes
}

func (k *Kernel) TSS() TSS {
	k.swmu.Lock()
	defer k.swmu.Unlock()

	return k.tss
}

// Restarts is how many times the base program has been started again.
func (k *Kernel) Restarts() int {
	k.swmu.Lock()
	defer k.swmu.Unlock()

	return k.restarts
}

// Dead is closed once the kernel has stopped on a fatal error.
func (k *Kernel) Dead() <-chan struct{} {
	return k.dead
}

func (k *Kernel) Fatal() error {
	select {
	case <-k.dead:
		return k.fatal
	default:
		return nil
	}
}

func (k *Kernel) fail(err error) {
	k.deadOnce.Do(func() {
		k.L.Error("kernel stopped", "error", err)
		k.fatal = err
		close(k.dead)
	})
}

// Current derives the running process from the privileged stack pointer
// and checks it against the running chain.
func (k *Kernel) Current() (*Process, bool) {
	k.swmu.Lock()
	esp := k.tss.Esp0
	k.swmu.Unlock()

	top, ok := k.processes.Current()
	if !ok {
		return nil, false
	}

	p, ok := k.processes.Lookup(memory.SlotOfStack(esp))
	if !ok || p != top {
		invariant("stack %#08x names slot %d, running pid is %d", esp, memory.SlotOfStack(esp), top.Pid)
	}

	return p, true
}
