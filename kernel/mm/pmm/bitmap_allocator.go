package pmm

import (
	"math/bits"

	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

var (
	// ErrOutOfMemory is returned when every frame in the managed region
	// is in use.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	errEmptyRegion = &kernel.Error{Module: "pmm", Message: "managed region does not contain a single page-aligned frame"}
)

type markAs bool

const (
	markReserved markAs = false
	markFree            = true
)

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations for a single contiguous region using a bitmap. Bit i of the
// bitmap is set iff frame (startFrame + i) is in use. Frames are handed out
// first-fit, lowest address first.
//
// The allocator is not safe for concurrent use; callers must not invoke it
// from IRQ context.
type BitmapAllocator struct {
	// startFrame is the first frame of the managed region. Each bitmap
	// bit i corresponds to frame (startFrame + i).
	startFrame mm.Frame

	// frameCount is the number of frames in the managed region.
	frameCount uint32

	// freeCount tracks the available frames so that a full region can
	// be detected without scanning the bitmap.
	freeCount uint32

	freeBitmap []uint64
}

// Init prepares the allocator to manage the physical region
// [base, base+size). The region start is rounded up and its end rounded
// down to a frame boundary. All frames start out free.
func (alloc *BitmapAllocator) Init(base uintptr, size mm.Size) *kernel.Error {
	var (
		pageSizeMinus1 = uint64(mm.PageSize - 1)
		regionStart    = (uint64(base) + pageSizeMinus1) & ^pageSizeMinus1
		regionEnd      = (uint64(base) + uint64(size)) & ^pageSizeMinus1
	)

	if regionEnd <= regionStart {
		return errEmptyRegion
	}

	alloc.startFrame = mm.Frame(regionStart >> mm.PageShift)
	alloc.frameCount = uint32((regionEnd - regionStart) >> mm.PageShift)
	alloc.freeCount = alloc.frameCount

	// The bitmap stores one bit per frame rounded up to a multiple of 64
	// bits. Trailing bits that do not correspond to a frame are flagged
	// as reserved so they are never handed out.
	alloc.freeBitmap = make([]uint64, (alloc.frameCount+63)>>6)
	if tail := alloc.frameCount & 63; tail != 0 {
		alloc.freeBitmap[len(alloc.freeBitmap)-1] = ^uint64(0) << tail
	}

	return nil
}

// AllocFrame reserves the lowest-addressed free frame and returns it. If no
// frame is available AllocFrame returns ErrOutOfMemory and leaves the
// allocator state untouched.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if alloc.freeCount == 0 {
		return mm.InvalidFrame, ErrOutOfMemory
	}

	for blockIndex, block := range alloc.freeBitmap {
		// Skip blocks with every frame in use
		if block == ^uint64(0) {
			continue
		}

		frame := alloc.startFrame + mm.Frame(blockIndex<<6+bits.TrailingZeros64(^block))
		alloc.markFrame(frame, markReserved)
		return frame, nil
	}

	return mm.InvalidFrame, ErrOutOfMemory
}

// FreeFrame releases a frame previously reserved by AllocFrame or
// ReserveRegion. Calls for frames that are already free or that lie outside
// the managed region are ignored.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) {
	alloc.markFrame(frame, markFree)
}

// ReserveRegion flags every frame overlapping [start, start+size) as in use.
// It is used at boot to keep the allocator away from the kernel image.
// Frames outside the managed region are ignored.
func (alloc *BitmapAllocator) ReserveRegion(start uintptr, size mm.Size) {
	if size == 0 {
		return
	}

	endFrame := mm.FrameFromAddress(start + uintptr(size) - 1)
	for frame := mm.FrameFromAddress(start); frame <= endFrame; frame++ {
		alloc.markFrame(frame, markReserved)
	}
}

// IsAllocated returns true if the frame lies in the managed region and is
// currently in use.
func (alloc *BitmapAllocator) IsAllocated(frame mm.Frame) bool {
	block, mask, ok := alloc.bitFor(frame)
	return ok && alloc.freeBitmap[block]&mask != 0
}

// FreeCount returns the number of free frames.
func (alloc *BitmapAllocator) FreeCount() uint32 { return alloc.freeCount }

// FrameCount returns the number of frames in the managed region.
func (alloc *BitmapAllocator) FrameCount() uint32 { return alloc.frameCount }

// StartFrame returns the first frame of the managed region.
func (alloc *BitmapAllocator) StartFrame() mm.Frame { return alloc.startFrame }

// VisitFrames invokes visitor for every frame in the managed region in
// ascending order. Returning false from the visitor aborts the scan.
func (alloc *BitmapAllocator) VisitFrames(visitor func(frame mm.Frame, allocated bool) bool) {
	for index := uint32(0); index < alloc.frameCount; index++ {
		allocated := alloc.freeBitmap[index>>6]&(1<<(index&63)) != 0
		if !visitor(alloc.startFrame+mm.Frame(index), allocated) {
			return
		}
	}
}

// PrintStats outputs the region bounds and usage counters.
func (alloc *BitmapAllocator) PrintStats() {
	kfmt.Printf(
		"[pmm] region: 0x%x - 0x%x, frames: %d, free: %d (%dKb)\n",
		alloc.startFrame.Address(),
		(alloc.startFrame + mm.Frame(alloc.frameCount)).Address(),
		alloc.frameCount,
		alloc.freeCount,
		uint64(mm.Size(alloc.freeCount)*mm.Size(mm.PageSize)/mm.Kb),
	)
}

// markFrame updates the bitmap bit for frame and keeps freeCount in sync.
// Marking a frame that is already in the requested state is a no-op.
func (alloc *BitmapAllocator) markFrame(frame mm.Frame, flag markAs) {
	block, mask, ok := alloc.bitFor(frame)
	if !ok {
		return
	}

	inUse := alloc.freeBitmap[block]&mask != 0
	switch {
	case flag == markFree && inUse:
		alloc.freeBitmap[block] &^= mask
		alloc.freeCount++
	case flag == markReserved && !inUse:
		alloc.freeBitmap[block] |= mask
		alloc.freeCount--
	}
}

// bitFor returns the bitmap block index and bit mask for frame. The ok flag
// is false for frames outside the managed region.
func (alloc *BitmapAllocator) bitFor(frame mm.Frame) (block int, mask uint64, ok bool) {
	if frame < alloc.startFrame || frame >= alloc.startFrame+mm.Frame(alloc.frameCount) {
		return 0, 0, false
	}

	index := uint64(frame - alloc.startFrame)
	return int(index >> 6), 1 << (index & 63), true
}
