// Package heap provides the kernel's general purpose allocator. It hands out
// byte ranges from pages obtained from the virtual memory manager and never
// reclaims them.
package heap

import (
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

// DefaultAlignment is the alignment used by Alloc.
const DefaultAlignment = uintptr(16)

var (
	// ErrInvalidSize is returned for zero-sized allocations.
	ErrInvalidSize = &kernel.Error{Module: "heap", Message: "allocation size must be greater than zero"}

	errInvalidAlignment = &kernel.Error{Module: "heap", Message: "alignment must be a power of two no larger than the page size"}
)

// PageAllocator maps count consecutive zeroed pages and returns the virtual
// address of the first one. It is implemented by vmm.MemoryManager.
type PageAllocator interface {
	AllocatePages(count uintptr) (uintptr, *kernel.Error)
}

// Heap is a bump allocator. The bytes in [cursor, end) belong to pages that
// are already mapped but not yet handed out.
type Heap struct {
	pages PageAllocator

	cursor uintptr
	end    uintptr

	inUse  mm.Size
	mapped uintptr
}

// New returns a heap that grows by requesting pages from pages.
func New(pages PageAllocator) *Heap {
	return &Heap{pages: pages}
}

// Alloc reserves size bytes aligned to DefaultAlignment and returns their
// virtual address. Fresh pages are zeroed by the page allocator.
func (h *Heap) Alloc(size mm.Size) (uintptr, *kernel.Error) {
	return h.AllocAligned(size, DefaultAlignment)
}

// AllocAligned reserves size bytes whose address is a multiple of align.
// When the current pages cannot fit the request the heap maps enough new
// pages to hold it. Pages that continue the current region extend it;
// otherwise the unused tail of the old region is abandoned.
//
// Failed allocations leave the heap unchanged.
func (h *Heap) AllocAligned(size mm.Size, align uintptr) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, ErrInvalidSize
	}

	if align == 0 || align&(align-1) != 0 || align > mm.PageSize {
		return 0, errInvalidAlignment
	}

	addr := alignUp(h.cursor, align)
	if addr+uintptr(size) > h.end {
		if err := h.grow(size); err != nil {
			return 0, err
		}
		addr = alignUp(h.cursor, align)
	}

	h.cursor = addr + uintptr(size)
	h.inUse += size
	return addr, nil
}

// grow maps enough pages to hold size bytes starting at a page boundary.
func (h *Heap) grow(size mm.Size) *kernel.Error {
	count := size.Pages()
	start, err := h.pages.AllocatePages(count)
	if err != nil {
		return err
	}

	if start != h.end {
		h.cursor = start
	}
	h.end = start + count<<mm.PageShift
	h.mapped += count
	return nil
}

// InUse returns the number of bytes handed out so far, excluding alignment
// padding.
func (h *Heap) InUse() mm.Size {
	return h.inUse
}

// MappedPages returns the number of pages the heap has requested.
func (h *Heap) MappedPages() uintptr {
	return h.mapped
}

// PrintStats logs heap usage.
func (h *Heap) PrintStats() {
	kfmt.Printf("[heap] %d bytes in use, %d pages mapped\n", uint64(h.inUse), h.mapped)
}

func alignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}
