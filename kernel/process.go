package kernel

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/evanphx/minikern/memory"
	"github.com/pkg/errors"
)

const (
	// MaxFiles is the size of every descriptor table.
	MaxFiles = 8

	// MaxArgs bounds the stored argument string.
	MaxArgs = 128

	Stdin  = 0
	Stdout = 1
)

type prockey struct{}

func GetTask(ctx context.Context) (*Task, bool) {
	if v := ctx.Value(prockey{}); v != nil {
		return v.(*Task), true
	}

	return nil, false
}

func SetTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, prockey{}, t)
}

// Task is the process a trap arrived from.
type Task struct {
	*Process
}

type ProcessStatus int

const (
	Init    ProcessStatus = 0
	Running ProcessStatus = 1
	Dead    ProcessStatus = 2
)

// Continuation is the suspended execute call of a parent. It records the
// parent's privileged stack pair and delivers the child's halt status.
type Continuation struct {
	Esp, Ebp uint32

	resume chan int32
}

func newContinuation(esp uint32) *Continuation {
	return &Continuation{
		Esp:    esp,
		Ebp:    esp,
		resume: make(chan int32, 1),
	}
}

// Process is the control block of one slot.
type Process struct {
	Kernel *Kernel
	Pid    int
	Parent *Process
	Name   string
	Entry  uint32
	Digest string

	args   []byte
	vidmap bool
	cont   *Continuation
	status ProcessStatus
	fds    [MaxFiles]File

	// set while the process's goroutine runs kernel code for a trap. Only
	// that goroutine touches it.
	trapping bool

	mu sync.Mutex
}

func newProcess(k *Kernel, slot int, parent *Process, name string, args []byte) *Process {
	p := &Process{
		Kernel: k,
		Pid:    slot,
		Parent: parent,
		Name:   name,
		args:   append([]byte(nil), args...),
	}

	p.fds[Stdin] = File{Ops: &ConsoleIn{term: k.Console}, inUse: true}
	p.fds[Stdout] = File{Ops: &ConsoleOut{term: k.Console}, inUse: true}

	return p
}

func (p *Process) Args() []byte {
	return p.args
}

func (p *Process) Status() ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

func (p *Process) Vidmapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.vidmap
}

// OpenFile binds the first free descriptor to name.
func (p *Process) OpenFile(name string) (int, error) {
	d, err := p.Kernel.FS.LookupName(name)
	if err != nil {
		return -1, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fd := -1

	for i := range p.fds {
		if !p.fds[i].inUse {
			fd = i
			break
		}
	}

	if fd == -1 {
		return -1, errors.Wrapf(ErrNoFreeDescriptor, "opening %q", name)
	}

	ops, err := p.Kernel.opsFor(d)
	if err != nil {
		return -1, err
	}

	p.fds[fd] = File{
		Ops:    ops,
		Dirent: d,
		inUse:  true,
	}

	return fd, nil
}

func (p *Process) file(fd int) (*File, error) {
	if fd < 0 || fd >= MaxFiles {
		return nil, errors.Wrapf(ErrOutOfRange, "fd %d", fd)
	}

	f := &p.fds[fd]
	if !f.inUse {
		return nil, errors.Wrapf(ErrNotInUse, "fd %d", fd)
	}

	return f, nil
}

// GetFile returns the descriptor at fd if it is open.
func (p *Process) GetFile(fd int) (*File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.file(fd)
}

// Readable checks that fd is an open descriptor that may be read.
func (p *Process) Readable(fd int) (*File, error) {
	if fd < 0 || fd >= MaxFiles {
		return nil, errors.Wrapf(ErrOutOfRange, "fd %d", fd)
	}

	if fd == Stdout {
		return nil, errors.Wrap(ErrWrongDirection, "read from stdout")
	}

	return p.GetFile(fd)
}

// Writable checks that fd is an open descriptor that may be written.
func (p *Process) Writable(fd int) (*File, error) {
	if fd < 0 || fd >= MaxFiles {
		return nil, errors.Wrapf(ErrOutOfRange, "fd %d", fd)
	}

	if fd == Stdin {
		return nil, errors.Wrap(ErrWrongDirection, "write to stdin")
	}

	return p.GetFile(fd)
}

func (p *Process) ReadFile(ctx context.Context, fd int, buf []byte) (int, error) {
	f, err := p.Readable(fd)
	if err != nil {
		return -1, err
	}

	return f.Ops.Read(ctx, f, buf)
}

func (p *Process) WriteFile(ctx context.Context, fd int, buf []byte) (int, error) {
	f, err := p.Writable(fd)
	if err != nil {
		return -1, err
	}

	return f.Ops.Write(ctx, f, buf)
}

func (p *Process) CloseFile(fd int) error {
	if fd == Stdin || fd == Stdout {
		return errors.Wrapf(ErrReservedDescriptor, "fd %d", fd)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := p.file(fd)
	if err != nil {
		return err
	}

	err = f.Ops.Close(f)

	p.fds[fd] = File{}

	return err
}

func (p *Process) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.fds {
		f := &p.fds[i]
		if f.inUse && i != Stdin && i != Stdout {
			f.Ops.Close(f)
		}

		p.fds[i] = File{}
	}
}

func (p *Process) userMem() *memory.View {
	return p.Kernel.MMU.View(memory.UserMode)
}

// CheckBuffer rejects a user buffer that no user mapping could cover, before
// anything is copied.
func (p *Process) CheckBuffer(ptr uint32, n int) error {
	if !memory.UserRange(ptr, n) {
		return errors.Wrapf(ErrOutOfWindow, "buffer %#08x+%d", ptr, n)
	}

	return nil
}

// ReadAt reads user memory with user privilege.
func (p *Process) ReadAt(b []byte, off int64) (int, error) {
	return p.userMem().ReadAt(b, off)
}

// WriteAt writes user memory with user privilege.
func (p *Process) WriteAt(b []byte, off int64) (int, error) {
	return p.userMem().WriteAt(b, off)
}

func (p *Process) ReadCString(ptr uint32, max int) ([]byte, error) {
	return p.userMem().ReadCString(ptr, max)
}

type readAdapter struct {
	sub    io.ReaderAt
	offset int64
}

func (ra *readAdapter) Read(b []byte) (int, error) {
	n, err := ra.sub.ReadAt(b, ra.offset)
	ra.offset += int64(n)
	return n, err
}

type writeAdapter struct {
	sub    io.WriterAt
	offset int64
}

func (wa *writeAdapter) Write(b []byte) (int, error) {
	n, err := wa.sub.WriteAt(b, wa.offset)
	wa.offset += int64(n)
	return n, err
}

func (p *Process) CopyIn(addr uint32, val interface{}) error {
	return binary.Read(&readAdapter{sub: p, offset: int64(addr)}, binary.LittleEndian, val)
}

func (p *Process) CopyOut(addr uint32, val interface{}) error {
	return binary.Write(&writeAdapter{sub: p, offset: int64(addr)}, binary.LittleEndian, val)
}

// MapDisplay exposes the display buffer to the process and stores its
// address at ptr.
func (p *Process) MapDisplay(ptr uint32) (uint32, error) {
	if ptr == 0 {
		return 0, ErrNullBuffer
	}

	if ptr < memory.ProgramWindow || ptr >= memory.UserDisplay {
		return 0, errors.Wrapf(ErrOutOfWindow, "pointer %#08x", ptr)
	}

	addr := p.Kernel.MMU.ExposeDisplay()

	p.mu.Lock()
	p.vidmap = true
	p.mu.Unlock()

	if err := p.CopyOut(ptr, addr); err != nil {
		return 0, err
	}

	return addr, nil
}

// GetArgs copies the argument string into buf, truncated so a NUL always
// fits.
func (p *Process) GetArgs(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrNullBuffer
	}

	n := copy(buf[:len(buf)-1], p.args)
	buf[n] = 0

	return n, nil
}

const blanks = " \t"

// ParseCommand splits a command line into the program name and the
// remaining arguments.
func ParseCommand(cmd []byte) (string, []byte, error) {
	if i := bytes.IndexByte(cmd, 0); i >= 0 {
		cmd = cmd[:i]
	}

	cmd = bytes.TrimLeft(cmd, blanks)
	if len(cmd) == 0 {
		return "", nil, ErrEmptyCommand
	}

	name := cmd
	var args []byte

	if i := bytes.IndexAny(cmd, blanks); i >= 0 {
		name = cmd[:i]
		args = bytes.TrimLeft(cmd[i+1:], blanks)
	}

	if len(args) > MaxArgs {
		args = args[:MaxArgs]
	}

	return string(name), args, nil
}

// ProcessManager allocates slots and tracks the chain of nested processes.
type ProcessManager struct {
	mu      sync.Mutex
	max     int
	used    uint32
	table   []*Process
	running []*Process
}

func NewProcessManager(max int) *ProcessManager {
	return &ProcessManager{
		max:   max,
		table: make([]*Process, max),
	}
}

func (pm *ProcessManager) Max() int {
	return pm.max
}

// Allocate reserves the lowest free slot.
func (pm *ProcessManager) Allocate() (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for i := 0; i < pm.max; i++ {
		if pm.used&(1<<uint(i)) == 0 {
			pm.used |= 1 << uint(i)
			return i, nil
		}
	}

	return -1, errors.Wrapf(ErrTooManyProcesses, "%d slots in use", pm.max)
}

func (pm *ProcessManager) Release(slot int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.used &^= 1 << uint(slot)
	pm.table[slot] = nil
}

// Reset frees every slot.
func (pm *ProcessManager) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.used = 0
	pm.running = nil

	for i := range pm.table {
		pm.table[i] = nil
	}
}

func (pm *ProcessManager) Active() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var n int
	for i := 0; i < pm.max; i++ {
		if pm.used&(1<<uint(i)) != 0 {
			n++
		}
	}

	return n
}

func (pm *ProcessManager) Lookup(slot int) (*Process, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if slot < 0 || slot >= pm.max {
		return nil, false
	}

	p := pm.table[slot]
	return p, p != nil
}

// Push makes p the running process.
func (pm *ProcessManager) Push(p *Process) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.table[p.Pid] = p
	pm.running = append(pm.running, p)
}

// Pop removes p, which must be the running process.
func (pm *ProcessManager) Pop(p *Process) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.running) == 0 || pm.running[len(pm.running)-1] != p {
		return errors.Wrapf(ErrNotCurrent, "pid %d", p.Pid)
	}

	pm.running = pm.running[:len(pm.running)-1]

	return nil
}

// Current is the innermost running process.
func (pm *ProcessManager) Current() (*Process, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.running) == 0 {
		return nil, false
	}

	return pm.running[len(pm.running)-1], true
}

// Depth is the number of nested running processes.
func (pm *ProcessManager) Depth() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return len(pm.running)
}
