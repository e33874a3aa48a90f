package mm

import (
	"math"

	"github.com/Comicwolfy/Core-Kernel/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by frame allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Unaligned addresses are rounded down.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page that contains the given virtual address.
// Unaligned addresses are rounded down.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

// IsPageAligned returns true if addr lies on a page boundary.
func IsPageAligned(addr uintptr) bool {
	return addr&(PageSize-1) == 0
}

// FrameAllocator is implemented by physical frame allocators. The vmm
// package uses it to obtain backing frames for page tables and pages.
type FrameAllocator interface {
	// AllocFrame reserves and returns a free frame.
	AllocFrame() (Frame, *kernel.Error)

	// FreeFrame releases a frame previously returned by AllocFrame.
	// Releasing a free frame or a frame outside the allocator's region
	// has no effect.
	FreeFrame(Frame)
}

// PhysicalMemory provides byte-level access to the contents of physical
// frames. On bare metal this is an overlay on top of identity-mapped memory;
// hosted builds back it with an anonymous memory arena.
type PhysicalMemory interface {
	// FrameBytes returns a PageSize-long slice aliasing the contents of
	// the supplied frame or nil if the frame is not backed by memory.
	FrameBytes(Frame) []byte
}
