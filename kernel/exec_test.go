package kernel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/evanphx/minikern/fs"
	"github.com/evanphx/minikern/loader"
	"github.com/evanphx/minikern/memory"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestParseCommand(t *testing.T) {
	n := neko.Modern(t)

	n.It("splits the name from the arguments", func(t *testing.T) {
		name, args, err := ParseCommand([]byte("  cat   frame0.txt extra"))
		require.NoError(t, err)

		require.Equal(t, "cat", name)
		require.Equal(t, "frame0.txt extra", string(args))
	})

	n.It("treats tabs as blanks", func(t *testing.T) {
		name, args, err := ParseCommand([]byte("\tcat\t \tframe1.txt"))
		require.NoError(t, err)

		require.Equal(t, "cat", name)
		require.Equal(t, "frame1.txt", string(args))

		_, _, err = ParseCommand([]byte(" \t "))
		require.Equal(t, ErrEmptyCommand, err)
	})

	n.It("stops at a NUL", func(t *testing.T) {
		name, args, err := ParseCommand([]byte("ls\x00junk"))
		require.NoError(t, err)

		require.Equal(t, "ls", name)
		require.Empty(t, args)
	})

	n.It("bounds the arguments", func(t *testing.T) {
		_, args, err := ParseCommand(append([]byte("echo "), bytes.Repeat([]byte("x"), 200)...))
		require.NoError(t, err)

		require.Len(t, args, MaxArgs)
	})

	n.It("rejects an empty command", func(t *testing.T) {
		for _, cmd := range []string{"", "   ", "\x00ls"} {
			_, _, err := ParseCommand([]byte(cmd))
			require.Equal(t, ErrEmptyCommand, err)
		}
	})

	n.Meow()
}

func TestExecute(t *testing.T) {
	n := neko.Modern(t)

	n.It("runs a program and returns its status", func(t *testing.T) {
		var args string

		env := newTestKernel(t, map[string]Routine{
			"hello": func(u *User) int32 {
				args = string(u.proc.Args())
				return 7
			},
		})

		k := env.k

		status, err := k.Execute(testContext(t), nil, []byte("hello  world"))
		require.NoError(t, err)

		require.Equal(t, int32(7), status)
		require.Equal(t, "world", args)

		require.Equal(t, 0, k.Processes().Active())
		require.Equal(t, 0, k.Processes().Depth())

		_, bound := k.MMU.LargeBinding(memory.ProgramWindow)
		require.False(t, bound)
	})

	n.It("only keeps the low byte of a returned status", func(t *testing.T) {
		env := newTestKernel(t, map[string]Routine{
			"big": func(u *User) int32 { return 0x1234 },
		})

		status, err := env.k.Execute(testContext(t), nil, []byte("big"))
		require.NoError(t, err)
		require.Equal(t, int32(0x34), status)
	})

	n.It("copies the image into the program window", func(t *testing.T) {
		var hdr [4]byte
		var body [5]byte

		env := newTestKernel(t, map[string]Routine{
			"image": func(u *User) int32 {
				u.Load(memory.ProgramImage, hdr[:])
				u.Load(memory.ProgramImage+28, body[:])
				return 0
			},
		})

		_, err := env.k.Execute(testContext(t), nil, []byte("image"))
		require.NoError(t, err)

		require.Equal(t, loader.Magic, hdr)
		require.Equal(t, "image", string(body[:]))
	})

	n.It("halts from inside a call", func(t *testing.T) {
		env := newTestKernel(t, map[string]Routine{
			"quit": func(u *User) int32 {
				u.proc.Kernel.Halt(u.Context(), 9)
				panic("halt returned")
			},
		})

		status, err := env.k.Execute(testContext(t), nil, []byte("quit"))
		require.NoError(t, err)
		require.Equal(t, int32(9), status)
		require.NoError(t, env.k.Fatal())
	})

	n.It("reports programs that can't be run", func(t *testing.T) {
		env := newTestKernel(t, map[string]Routine{
			"hello": func(u *User) int32 { return 0 },
		})

		k := env.k
		ctx := testContext(t)

		_, err := k.Execute(ctx, nil, []byte("nope"))
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))

		_, err = k.Execute(ctx, nil, []byte("notes"))
		require.Equal(t, loader.ErrNotExecutable, errors.Cause(err))

		_, err = k.Execute(ctx, nil, []byte("rtc"))
		require.Equal(t, loader.ErrNotExecutable, errors.Cause(err))

		_, err = k.Execute(ctx, nil, []byte("averyveryveryverylongprogramnameindeed"))
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))

		_, err = k.Execute(ctx, nil, nil)
		require.Equal(t, ErrEmptyCommand, errors.Cause(err))

		require.Equal(t, 0, k.Processes().Active())
	})

	n.It("nests up to the slot limit", func(t *testing.T) {
		var (
			depths  []int
			stacks  []uint32
			frames  []uint32
			current []int
			last    error
		)

		var k *Kernel

		env := newTestKernel(t, map[string]Routine{
			"nest": func(u *User) int32 {
				depths = append(depths, k.Processes().Depth())
				stacks = append(stacks, k.TSS().Esp0)

				frame, _ := k.MMU.LargeBinding(memory.ProgramWindow)
				frames = append(frames, frame)

				cur, _ := k.Current()
				current = append(current, cur.Pid)

				status, err := k.Execute(u.Context(), u.proc, []byte("nest"))
				if err != nil {
					last = err
					return int32(u.proc.Pid)
				}

				return status
			},
		})

		k = env.k

		status, err := k.Execute(testContext(t), nil, []byte("nest"))
		require.NoError(t, err)

		require.Equal(t, int32(MaxSlotsForTest-1), status)
		require.Equal(t, ErrTooManyProcesses, errors.Cause(last))
		require.Equal(t, []int{1, 2, 3, 4, 5, 6}, depths)
		require.Equal(t, []int{0, 1, 2, 3, 4, 5}, current)

		for i := range stacks {
			require.Equal(t, memory.KernelStackTop(i), stacks[i])
			require.Equal(t, memory.FrameForSlot(i), frames[i])
		}

		require.Equal(t, 0, k.Processes().Active())
		require.Equal(t, uint32(0), k.TSS().Esp0)
	})

	n.It("gives the parent its own frame back", func(t *testing.T) {
		const addr = memory.ProgramWindow + 0x200000

		var seen uint32

		env := newTestKernel(t, map[string]Routine{
			"parent": func(u *User) int32 {
				u.Store32(addr, 0xAAAA)

				_, err := u.proc.Kernel.Execute(u.Context(), u.proc, []byte("child"))
				if err != nil {
					return 1
				}

				seen = u.Load32(addr)
				return 0
			},
			"child": func(u *User) int32 {
				u.Store32(addr, 0xBBBB)
				return 0
			},
		})

		status, err := env.k.Execute(testContext(t), nil, []byte("parent"))
		require.NoError(t, err)
		require.Equal(t, int32(0), status)

		require.Equal(t, uint32(0xAAAA), seen)
	})

	n.It("reuses a slot once its process halts", func(t *testing.T) {
		var pids []int

		env := newTestKernel(t, map[string]Routine{
			"parent": func(u *User) int32 {
				for i := 0; i < 3; i++ {
					u.proc.Kernel.Execute(u.Context(), u.proc, []byte("child"))
				}
				return 0
			},
			"child": func(u *User) int32 {
				pids = append(pids, u.proc.Pid)
				return 0
			},
		})

		_, err := env.k.Execute(testContext(t), nil, []byte("parent"))
		require.NoError(t, err)

		require.Equal(t, []int{1, 1, 1}, pids)
	})

	n.It("tears down the display mapping at halt", func(t *testing.T) {
		var addr uint32

		env := newTestKernel(t, map[string]Routine{
			"video": func(u *User) int32 {
				a, err := u.proc.MapDisplay(memory.ProgramWindow + 0x100)
				if err != nil {
					return 1
				}

				addr = u.Load32(memory.ProgramWindow + 0x100)

				u.Store(a, []byte{'A', 0x07})

				return 0
			},
		})

		k := env.k

		status, err := k.Execute(testContext(t), nil, []byte("video"))
		require.NoError(t, err)
		require.Equal(t, int32(0), status)

		require.Equal(t, uint32(memory.UserDisplay), addr)
		require.False(t, k.MMU.DisplayExposed())

		var cell [2]byte
		_, err = k.MMU.Physical().ReadAt(cell[:], memory.VideoPhys)
		require.NoError(t, err)
		require.Equal(t, []byte{'A', 0x07}, cell[:])
	})

	n.It("keeps the display mapping with the process that asked for it", func(t *testing.T) {
		var (
			k        *Kernel
			inherit  bool
			peek     int32
			mapped   int32
			afterAll bool
		)

		env := newTestKernel(t, map[string]Routine{
			"parent": func(u *User) int32 {
				a, err := u.proc.MapDisplay(memory.ProgramWindow + 0x100)
				if err != nil {
					return 1
				}

				peek, err = k.Execute(u.Context(), u.proc, []byte("peek"))
				if err != nil {
					return 2
				}

				mapped, err = k.Execute(u.Context(), u.proc, []byte("remap"))
				if err != nil {
					return 3
				}

				afterAll = k.MMU.DisplayExposed()

				u.Store(a, []byte{'P', 0x07})

				return 0
			},
			"peek": func(u *User) int32 {
				inherit = k.MMU.DisplayExposed()
				u.Load32(memory.UserDisplay)
				return 4
			},
			"remap": func(u *User) int32 {
				if _, err := u.proc.MapDisplay(memory.ProgramWindow + 0x100); err != nil {
					return 1
				}

				u.Store(memory.UserDisplay, []byte{'C', 0x07})

				return 5
			},
		})

		k = env.k

		status, err := k.Execute(testContext(t), nil, []byte("parent"))
		require.NoError(t, err)
		require.Equal(t, int32(0), status)

		require.False(t, inherit)
		require.Equal(t, int32(FaultStatus), peek)
		require.Equal(t, int32(5), mapped)
		require.True(t, afterAll)
		require.False(t, k.MMU.DisplayExposed())

		var cell [2]byte
		_, err = k.MMU.Physical().ReadAt(cell[:], memory.VideoPhys)
		require.NoError(t, err)
		require.Equal(t, []byte{'P', 0x07}, cell[:])
	})

	n.It("closes descriptors at halt", func(t *testing.T) {
		var fd int

		env := newTestKernel(t, map[string]Routine{
			"opener": func(u *User) int32 {
				var err error
				fd, err = u.proc.OpenFile("notes")
				if err != nil {
					return 1
				}

				return 0
			},
		})

		_, err := env.k.Execute(testContext(t), nil, []byte("opener"))
		require.NoError(t, err)
		require.Equal(t, 2, fd)
	})

	n.Meow()
}

// MaxSlotsForTest mirrors the default slot count used by newTestKernel.
const MaxSlotsForTest = 6

func TestFaults(t *testing.T) {
	n := neko.Modern(t)

	n.It("halts a faulting process with the fault status", func(t *testing.T) {
		var zero int32

		env := newTestKernel(t, map[string]Routine{
			"div": func(u *User) int32 {
				return 10 / zero
			},
			"pf": func(u *User) int32 {
				var b [4]byte
				u.Load(memory.KernelBase, b[:])
				return 0
			},
			"gp": func(u *User) int32 {
				u.Raise(GeneralProtection)
				return 0
			},
		})

		k := env.k
		ctx := testContext(t)

		for _, name := range []string{"div", "pf", "gp", "wild"} {
			status, err := k.Execute(ctx, nil, []byte(name))
			require.NoError(t, err, name)
			require.Equal(t, int32(FaultStatus), status, name)
		}

		require.Equal(t, "divide_error\npage_fault\ngeneral_protection_fault\ninvalid_opcode\n", env.out.String())
		require.NoError(t, k.Fatal())
		require.Equal(t, 0, k.Processes().Active())
	})

	n.It("delivers a child's fault status to its parent", func(t *testing.T) {
		var got int32

		env := newTestKernel(t, map[string]Routine{
			"parent": func(u *User) int32 {
				got, _ = u.proc.Kernel.Execute(u.Context(), u.proc, []byte("wild"))
				return 0
			},
		})

		status, err := env.k.Execute(testContext(t), nil, []byte("parent"))
		require.NoError(t, err)
		require.Equal(t, int32(0), status)
		require.Equal(t, int32(FaultStatus), got)
	})

	n.It("stops the kernel on a double fault", func(t *testing.T) {
		env := newTestKernel(t, map[string]Routine{
			"parent": func(u *User) int32 {
				u.proc.Kernel.Execute(u.Context(), u.proc, []byte("df"))
				return 0
			},
			"df": func(u *User) int32 {
				u.Raise(DoubleFault)
				return 0
			},
		})

		k := env.k

		_, err := k.Execute(testContext(t), nil, []byte("parent"))
		require.Equal(t, ErrDoubleFault, errors.Cause(err))
		require.Equal(t, ErrDoubleFault, errors.Cause(k.Fatal()))
		require.Equal(t, "double_fault\n", env.out.String())
	})

	n.It("treats a panic inside a trap as a kernel failure", func(t *testing.T) {
		env := newTestKernel(t, map[string]Routine{
			"trap": func(u *User) int32 {
				u.Syscall(3, 0, 0, 0)
				return 0
			},
		})

		k := env.k
		k.SetGate(brokenGate{})

		_, err := k.Execute(testContext(t), nil, []byte("trap"))
		require.Equal(t, ErrKernelInvariant, errors.Cause(err))
		require.Equal(t, ErrKernelInvariant, errors.Cause(k.Fatal()))
		require.Empty(t, env.out.String())
	})

	n.It("names every vector", func(t *testing.T) {
		require.Equal(t, "divide_error", DivideError.String())
		require.Equal(t, "page_fault", PageFault.String())
		require.Equal(t, "simd_exception", SIMDException.String())
		require.Equal(t, "exception_40", Vector(40).String())
	})

	n.Meow()
}

func TestBoot(t *testing.T) {
	n := neko.Modern(t)

	n.It("restarts the base program when it halts", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var runs int

		env := newTestKernel(t, map[string]Routine{
			"shell": func(u *User) int32 {
				runs++

				if runs < 3 {
					return int32(runs)
				}

				cancel()
				<-u.Context().Done()

				u.Syscall(1, 0, 0, 0)
				panic("syscall returned after shutdown")
			},
		})

		k := env.k

		err := k.Boot(ctx)
		require.Equal(t, ErrShutdown, errors.Cause(err))

		require.Equal(t, 3, runs)
		require.Equal(t, 2, k.Restarts())
		require.NoError(t, k.Fatal())
	})

	n.It("fails when there is no base program", func(t *testing.T) {
		env := newTestKernel(t, map[string]Routine{
			"other": func(u *User) int32 { return 0 },
		})

		err := env.k.Boot(testContext(t))
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))
	})

	n.It("needs a syscall gate", func(t *testing.T) {
		env := newTestKernel(t, map[string]Routine{
			"shell": func(u *User) int32 { return 0 },
		})

		env.k.SetGate(nil)

		err := env.k.Boot(testContext(t))
		require.Equal(t, ErrInvalidArgument, errors.Cause(err))
	})

	n.Meow()
}
