package vmm

import (
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm/pmm"
)

// AllocatePages reserves count consecutive pages at the heap cursor, backs
// each one with a freshly allocated and zeroed frame and maps it RW. It
// returns the virtual address of the first page.
//
// The operation is all-or-nothing: if a frame or a page table cannot be
// allocated, every page mapped by this call is unmapped, every frame and
// page table it reserved is released and pmm.ErrOutOfMemory is returned.
// The heap cursor only advances on success and addresses are never reused.
func (m *MemoryManager) AllocatePages(count uintptr) (uintptr, *kernel.Error) {
	if count == 0 {
		return 0, ErrInvalidPageCount
	}

	if !m.root.Valid() {
		return 0, errNotInitialized
	}

	start := m.heapCursor
	if count > (heapLimit-start)>>mm.PageShift {
		return 0, errHeapExhausted
	}

	for i := uintptr(0); i < count; i++ {
		page := mm.PageFromAddress(start + i<<mm.PageShift)

		frame, err := m.frames.AllocFrame()
		if err != nil {
			m.rollback(start, i)
			return 0, pmm.ErrOutOfMemory
		}

		buf := m.mem.FrameBytes(frame)
		if len(buf) < int(mm.PageSize) {
			m.frames.FreeFrame(frame)
			m.rollback(start, i)
			return 0, errUnbackedFrame
		}
		kernel.Memset(buf, 0)

		if err = m.Map(page, frame, FlagRW); err != nil {
			m.frames.FreeFrame(frame)
			m.rollback(start, i)
			if err == errUnbackedFrame {
				return 0, err
			}
			return 0, pmm.ErrOutOfMemory
		}
	}

	m.heapCursor = start + count<<mm.PageShift
	return start, nil
}

// rollback unmaps the first count pages starting at start. Unmap releases
// the backing frames together with any page table left empty.
func (m *MemoryManager) rollback(start, count uintptr) {
	for i := uintptr(0); i < count; i++ {
		_ = m.Unmap(mm.PageFromAddress(start + i<<mm.PageShift))
	}
}

// FreePages unmaps count consecutive pages starting at virtAddr and returns
// their frames to the frame allocator. Pages that are not mapped are
// skipped. The virtual range is not made available to AllocatePages again.
func (m *MemoryManager) FreePages(virtAddr, count uintptr) *kernel.Error {
	if count == 0 {
		return ErrInvalidPageCount
	}

	if !mm.IsPageAligned(virtAddr) || !isCanonical(virtAddr) {
		return ErrInvalidAddress
	}

	for i := uintptr(0); i < count; i++ {
		if err := m.Unmap(mm.PageFromAddress(virtAddr + i<<mm.PageShift)); err != nil {
			return err
		}
	}

	return nil
}
