package kernel

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evanphx/minikern/device"
	"github.com/evanphx/minikern/fs/bootfs"
	"github.com/evanphx/minikern/loader"
	"github.com/evanphx/minikern/memory"
)

type nullGate struct{}

func (nullGate) Trap(ctx context.Context, num, a0, a1, a2 int32) int32 {
	return -ENOSYS
}

// brokenGate indexes past the end of a table, the way a buggy handler would.
type brokenGate struct{}

func (brokenGate) Trap(ctx context.Context, num, a0, a1, a2 int32) int32 {
	var table []int32
	return table[num]
}

type testEnv struct {
	k   *Kernel
	out *bytes.Buffer
	kbd *device.Keyboard
}

const notes = "the quick brown fox jumps over the lazy dog"

// newTestKernel builds an image holding a program per routine plus a few
// plain entries and registers the routines with a fresh CPU.
func newTestKernel(t *testing.T, progs map[string]Routine) *testEnv {
	names := make([]string, 0, len(progs))
	for name := range progs {
		names = append(names, name)
	}

	sort.Strings(names)

	cpu := NewCPU()

	b := bootfs.NewBuilder()
	require.NoError(t, b.AddDirectory("."))
	require.NoError(t, b.AddDevice("rtc"))
	require.NoError(t, b.AddFile("notes", []byte(notes)))

	for i, name := range names {
		entry := uint32(memory.ProgramImage + 0x1000*(i+1))
		require.NoError(t, cpu.Register(entry, name, progs[name]))
		require.NoError(t, b.AddFile(name, loader.Build(entry, []byte(name))))
	}

	// an executable whose entry address has no code behind it
	require.NoError(t, b.AddFile("wild", loader.Build(memory.ProgramImage+0x3FF000, nil)))

	data, err := b.Bytes()
	require.NoError(t, err)

	fsys, err := bootfs.New(data)
	require.NoError(t, err)

	var (
		out bytes.Buffer
		kbd device.Keyboard
	)

	k, err := NewKernel(Options{
		FS:      fsys,
		CPU:     cpu,
		Console: device.NewTerminal(&kbd, &out),
		Tick:    device.NewTickDevice(device.MaxRate),
	})
	require.NoError(t, err)

	k.SetGate(nullGate{})

	return &testEnv{k: k, out: &out, kbd: &kbd}
}
