package memory

// Fixed memory layout. Physical frames for process slots start at 8 MiB and
// each slot's kernel stack is an 8 KiB region growing down from 8 MiB.
const (
	PageSize      = 4096
	LargePageSize = 4 << 20

	// KernelBase is the identity mapped 4 MiB kernel page.
	KernelBase = 0x00400000

	// VideoPhys is the physical text-mode display buffer, 80x25 cells of
	// two bytes each.
	VideoPhys = 0x000B8000
	VideoSize = 80 * 25 * 2

	// ProgramWindow is the 4 MiB virtual window every process image lives
	// in. Only the running process's frame is bound to it.
	ProgramWindow = 0x08000000

	// ProgramImage is where the image is copied inside the window.
	ProgramImage = 0x08048000

	// EntryOffset is the offset of the entry address inside the image.
	EntryOffset = 24

	UserStackTop = ProgramWindow + LargePageSize - 4

	// UserDisplay is where the display buffer is exposed to user code.
	UserDisplay = 0x08400000

	frameBase       = 8 << 20
	kernelStackSize = 8 << 10
	stackMask       = 0xFFFFE000
	largeMask       = 0xFFC00000

	// Page table pages live inside the kernel page.
	kernelTableAddr      = 0x00500000
	userDisplayTableAddr = 0x00501000
)

// FrameForSlot is the physical frame owned by a process slot.
func FrameForSlot(slot int) uint32 {
	return frameBase + uint32(slot)*LargePageSize
}

// KernelStackTop is the initial privileged stack pointer of a slot.
func KernelStackTop(slot int) uint32 {
	return frameBase - kernelStackSize*uint32(slot) - 4
}

// SlotOfStack recovers the slot whose kernel stack region contains esp.
func SlotOfStack(esp uint32) int {
	base := esp & stackMask
	return int((frameBase-base)/kernelStackSize) - 1
}

// InWindow reports whether addr falls inside the program window.
func InWindow(addr uint32) bool {
	return addr >= ProgramWindow && addr < ProgramWindow+LargePageSize
}

// UserRange reports whether the n bytes at addr fall entirely inside the
// program window or entirely inside the user display page.
func UserRange(addr uint32, n int) bool {
	if n < 0 {
		return false
	}

	start, end := uint64(addr), uint64(addr)+uint64(n)

	switch {
	case start >= ProgramWindow && end <= ProgramWindow+LargePageSize:
		return true
	case start >= UserDisplay && end <= UserDisplay+PageSize:
		return true
	default:
		return false
	}
}
