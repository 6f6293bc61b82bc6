package kernel

import (
	"context"
	"encoding/binary"
	"runtime"

	"github.com/evanphx/minikern/memory"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Execute loads the program named by the first word of command into a new
// slot and runs it nested inside parent. It returns when the program
// halts, with the halt status. A nil parent starts a root process.
func (k *Kernel) Execute(ctx context.Context, parent *Process, command []byte) (int32, error) {
	name, args, err := ParseCommand(command)
	if err != nil {
		return -1, err
	}

	d, err := k.FS.LookupName(name)
	if err != nil {
		return -1, err
	}

	img, err := k.Loader.Load(d)
	if err != nil {
		return -1, err
	}

	slot, err := k.processes.Allocate()
	if err != nil {
		return -1, err
	}

	entry, err := k.loadImage(slot, img.Data)
	if err != nil {
		k.processes.Release(slot)
		k.restoreWindow(parent)
		return -1, err
	}

	// the child starts without the display until it asks for it
	k.MMU.HideDisplay()

	proc := newProcess(k, slot, parent, name, args)
	proc.Entry = entry
	proc.Digest = img.Digest

	k.swmu.Lock()
	if parent != nil {
		proc.cont = newContinuation(k.tss.Esp0)
	} else {
		proc.cont = newContinuation(0)
	}
	k.tss.Esp0 = memory.KernelStackTop(slot)
	k.swmu.Unlock()

	proc.status = Running
	k.processes.Push(proc)

	k.L.Debug("execute", "pid", slot, "name", name, "entry", hclog.Hex(int(entry)), "args", string(args))

	routine, _ := k.CPU.Lookup(entry)

	cont := proc.cont

	go k.run(SetTask(ctx, &Task{Process: proc}), proc, routine)

	select {
	case status := <-cont.resume:
		return status, nil
	case <-k.dead:
		return -1, k.fatal
	case <-ctx.Done():
		return -1, errors.Wrap(ErrShutdown, ctx.Err().Error())
	}
}

// loadImage binds the slot's frame to the program window, copies the image
// in and reads the entry address back out of the window.
func (k *Kernel) loadImage(slot int, data []byte) (uint32, error) {
	if err := k.MMU.BindLarge(memory.ProgramWindow, memory.FrameForSlot(slot)); err != nil {
		return 0, err
	}

	kmem := k.MMU.View(memory.Supervisor)

	if _, err := kmem.WriteAt(data, memory.ProgramImage); err != nil {
		return 0, errors.Wrap(err, "copying image")
	}

	var hdr [4]byte

	if _, err := kmem.ReadAt(hdr[:], memory.ProgramImage+memory.EntryOffset); err != nil {
		return 0, errors.Wrap(err, "reading entry")
	}

	return binary.LittleEndian.Uint32(hdr[:]), nil
}

func (k *Kernel) restoreWindow(parent *Process) {
	if parent == nil {
		k.MMU.UnbindLarge(memory.ProgramWindow)
		return
	}

	if err := k.MMU.BindLarge(memory.ProgramWindow, memory.FrameForSlot(parent.Pid)); err != nil {
		invariant("rebinding pid %d: %s", parent.Pid, err)
	}
}

// restoreDisplay leaves the display mapped only if the process resuming
// had mapped it.
func (k *Kernel) restoreDisplay(parent *Process) {
	if parent != nil && parent.Vidmapped() {
		k.MMU.ExposeDisplay()
		return
	}

	k.MMU.HideDisplay()
}

func (k *Kernel) run(ctx context.Context, p *Process, routine Routine) {
	defer k.recover(p)

	if routine == nil {
		panic(&Fault{Vector: InvalidOpcode, Addr: p.Entry})
	}

	u := &User{
		ctx:  ctx,
		proc: p,
		gate: k.gate,
		mem:  k.MMU.View(memory.UserMode),
	}

	status := routine(u)

	if err := k.halt(p, status&0xFF); err != nil {
		k.fail(err)
	}
}

func (k *Kernel) recover(p *Process) {
	v := recover()
	if v == nil {
		return
	}

	if kp, ok := v.(kernelPanic); ok {
		k.fail(kp.err)
		return
	}

	if p.trapping {
		k.fail(errors.Wrapf(ErrKernelInvariant, "panic in pid %d syscall: %v", p.Pid, v))
		return
	}

	f, ok := asFault(v)
	if !ok {
		k.fail(errors.Errorf("kernel panic in pid %d: %v", p.Pid, v))
		return
	}

	if f.Vector == DoubleFault {
		k.Console.Write([]byte(f.Vector.String() + "\n"))
		k.fail(errors.Wrapf(ErrDoubleFault, "pid %d", p.Pid))
		return
	}

	if p.Status() == Dead {
		k.fail(errors.Wrapf(ErrDoubleFault, "%s while halting pid %d", f.Vector, p.Pid))
		return
	}

	k.L.Info("exception", "pid", p.Pid, "name", p.Name, "vector", f.Vector.String(), "error", f.Error())

	k.Console.Write([]byte(f.Vector.String() + "\n"))

	if err := k.halt(p, FaultStatus); err != nil {
		k.fail(err)
	}
}

// Halt ends the process that made the trap in ctx. It does not return.
func (k *Kernel) Halt(ctx context.Context, status int32) {
	task, ok := GetTask(ctx)
	if !ok {
		k.fail(errors.Wrap(ErrKernelInvariant, "halt without a task"))
		runtime.Goexit()
	}

	if err := k.halt(task.Process, status); err != nil {
		k.fail(err)
	}

	runtime.Goexit()
}

// halt tears down p, rebinds the window to the parent and resumes the
// parent's execute call with status.
func (k *Kernel) halt(p *Process, status int32) error {
	if err := k.processes.Pop(p); err != nil {
		return errors.Wrap(ErrKernelInvariant, err.Error())
	}

	p.closeAll()

	p.mu.Lock()
	p.vidmap = false
	p.status = Dead
	p.mu.Unlock()

	k.restoreWindow(p.Parent)
	k.restoreDisplay(p.Parent)

	k.swmu.Lock()
	k.tss.Esp0 = p.cont.Esp
	k.swmu.Unlock()

	k.processes.Release(p.Pid)

	k.L.Debug("halt", "pid", p.Pid, "name", p.Name, "status", status)

	p.cont.resume <- status

	return nil
}

// Boot runs the base program forever. Whenever the root process halts the
// slots are reset and the base program started again.
func (k *Kernel) Boot(ctx context.Context) error {
	if k.gate == nil {
		return errors.Wrap(ErrInvalidArgument, "no syscall gate installed")
	}

	for {
		status, err := k.Execute(ctx, nil, []byte(k.BaseProgram))
		if err != nil {
			return err
		}

		k.L.Info("base program exited, restarting", "program", k.BaseProgram, "status", status)

		k.processes.Reset()

		k.swmu.Lock()
		k.restarts++
		k.swmu.Unlock()

		if ctx.Err() != nil {
			return errors.Wrap(ErrShutdown, ctx.Err().Error())
		}
	}
}
