package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestLayout(t *testing.T) {
	n := neko.Modern(t)

	n.It("derives the slot back from its kernel stack", func(t *testing.T) {
		for slot := 0; slot < 6; slot++ {
			top := KernelStackTop(slot)
			require.Equal(t, slot, SlotOfStack(top))
			require.Equal(t, slot, SlotOfStack(top-4000))
		}
	})

	n.It("gives every slot its own frame above 8MB", func(t *testing.T) {
		require.Equal(t, uint32(0x800000), FrameForSlot(0))
		require.Equal(t, uint32(0xC00000), FrameForSlot(1))
	})

	n.It("bounds user buffers to the window or the display page", func(t *testing.T) {
		require.True(t, UserRange(ProgramWindow, LargePageSize))
		require.True(t, UserRange(UserDisplay, PageSize))
		require.True(t, UserRange(ProgramImage, 0))

		require.False(t, UserRange(ProgramWindow, 0x7FFFFFF0))
		require.False(t, UserRange(UserDisplay-4, 8))
		require.False(t, UserRange(UserDisplay, PageSize+1))
		require.False(t, UserRange(KernelBase, 4))
		require.False(t, UserRange(0xFFFFFFF0, 0x20))
	})

	n.Meow()
}

func TestMMU(t *testing.T) {
	n := neko.Modern(t)

	n.It("keeps user code out of kernel mappings", func(t *testing.T) {
		m := NewMMU(NewPhysical())

		pa, err := m.Translate(KernelBase+0x1234, Supervisor, true)
		require.NoError(t, err)
		require.Equal(t, uint32(KernelBase+0x1234), pa)

		pa, err = m.Translate(VideoPhys+10, Supervisor, false)
		require.NoError(t, err)
		require.Equal(t, uint32(VideoPhys+10), pa)

		_, err = m.Translate(KernelBase, UserMode, false)
		require.IsType(t, &PageFault{}, err)

		_, err = m.Translate(VideoPhys, UserMode, false)
		require.IsType(t, &PageFault{}, err)
	})

	n.It("faults on the program window until it is bound", func(t *testing.T) {
		m := NewMMU(NewPhysical())

		_, err := m.Translate(ProgramImage, UserMode, false)
		require.Error(t, err)

		pf := err.(*PageFault)
		require.False(t, pf.Present)
		require.Equal(t, uint32(ProgramImage), pf.Addr)

		require.NoError(t, m.BindLarge(ProgramWindow, FrameForSlot(2)))

		pa, err := m.Translate(ProgramImage+5, UserMode, true)
		require.NoError(t, err)
		require.Equal(t, FrameForSlot(2)+0x48005, pa)
	})

	n.It("rebinding the window switches frames", func(t *testing.T) {
		m := NewMMU(NewPhysical())
		v := m.View(UserMode)

		require.NoError(t, m.BindLarge(ProgramWindow, FrameForSlot(0)))
		_, err := v.WriteAt([]byte("parent"), ProgramImage)
		require.NoError(t, err)

		require.NoError(t, m.BindLarge(ProgramWindow, FrameForSlot(1)))
		_, err = v.WriteAt([]byte("child!"), ProgramImage)
		require.NoError(t, err)

		require.NoError(t, m.BindLarge(ProgramWindow, FrameForSlot(0)))

		buf := make([]byte, 6)
		_, err = v.ReadAt(buf, ProgramImage)
		require.NoError(t, err)
		require.Equal(t, "parent", string(buf))

		frame, ok := m.LargeBinding(ProgramWindow)
		require.True(t, ok)
		require.Equal(t, FrameForSlot(0), frame)
	})

	n.It("rejects unaligned large bindings", func(t *testing.T) {
		m := NewMMU(NewPhysical())

		require.Error(t, m.BindLarge(ProgramImage, FrameForSlot(0)))
		require.Error(t, m.BindLarge(ProgramWindow, FrameForSlot(0)+PageSize))
	})

	n.It("exposes and hides the display for user code", func(t *testing.T) {
		phys := NewPhysical()
		m := NewMMU(phys)
		v := m.View(UserMode)

		_, err := v.WriteAt([]byte{'A', 0x07}, UserDisplay)
		require.Error(t, err)

		addr := m.ExposeDisplay()
		require.Equal(t, uint32(UserDisplay), addr)
		require.True(t, m.DisplayExposed())

		_, err = v.WriteAt([]byte{'A', 0x07}, UserDisplay+2)
		require.NoError(t, err)

		cell := make([]byte, 2)
		_, err = phys.ReadAt(cell, VideoPhys+2)
		require.NoError(t, err)
		require.Equal(t, []byte{'A', 0x07}, cell)

		m.HideDisplay()
		require.False(t, m.DisplayExposed())

		_, err = v.ReadAt(cell, UserDisplay)
		require.Error(t, err)
	})

	n.It("keeps global translations across a flush", func(t *testing.T) {
		m := NewMMU(NewPhysical())
		require.NoError(t, m.BindLarge(ProgramWindow, FrameForSlot(0)))

		_, err := m.Translate(KernelBase, Supervisor, false)
		require.NoError(t, err)
		_, err = m.Translate(ProgramImage, UserMode, false)
		require.NoError(t, err)

		require.True(t, m.TLB().Contains(KernelBase))
		require.True(t, m.TLB().Contains(ProgramImage))

		m.Flush()

		require.True(t, m.TLB().Contains(KernelBase))
		require.False(t, m.TLB().Contains(ProgramImage))
	})

	n.It("serves stale translations until flushed", func(t *testing.T) {
		m := NewMMU(NewPhysical())
		require.NoError(t, m.BindLarge(ProgramWindow, FrameForSlot(0)))

		_, err := m.Translate(ProgramImage, UserMode, false)
		require.NoError(t, err)

		// rewrite the entry behind the cache's back
		m.dir[ProgramWindow>>22].SetAddress(FrameForSlot(1))

		pa, err := m.Translate(ProgramImage, UserMode, false)
		require.NoError(t, err)
		require.Equal(t, FrameForSlot(0)+0x48000, pa)

		m.Flush()

		pa, err = m.Translate(ProgramImage, UserMode, false)
		require.NoError(t, err)
		require.Equal(t, FrameForSlot(1)+0x48000, pa)
	})

	n.It("reads strings across a page boundary", func(t *testing.T) {
		m := NewMMU(NewPhysical())
		require.NoError(t, m.BindLarge(ProgramWindow, FrameForSlot(0)))

		v := m.View(UserMode)
		addr := uint32(ProgramWindow + PageSize - 3)

		_, err := v.WriteAt([]byte("shell\x00"), int64(addr))
		require.NoError(t, err)

		str, err := v.ReadCString(addr, 32)
		require.NoError(t, err)
		require.Equal(t, "shell", string(str))

		_, err = v.ReadCString(addr, 3)
		require.Error(t, err)
	})

	n.Meow()
}
