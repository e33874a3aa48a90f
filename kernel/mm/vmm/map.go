package vmm

import (
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

// tableLink records a page table created while establishing a mapping
// together with the parent entry that points to it.
type tableLink struct {
	parent *pageTableEntry
	table  mm.Frame
}

// Map establishes a mapping between a virtual page and a physical memory
// frame. Missing page tables at each paging level are allocated from the
// frame allocator and cleared. Existing mappings for page are overwritten.
//
// Map does not reserve frame; the caller must own it. If a page table cannot
// be allocated, every table created by this call is released and the
// allocator error is returned.
func (m *MemoryManager) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	var (
		err          *kernel.Error
		created      [pageLevels - 1]tableLink
		createdCount int
		virtAddr     = page.Address()
	)

	if flags&FlagHugePage != 0 {
		return errNoHugePageSupport
	}

	if !isCanonical(virtAddr) || !frame.Valid() || frame.Address()&^ptePhysPageMask != 0 {
		return ErrInvalidAddress
	}

	walkErr := m.walk(virtAddr, func(pteLevel uint8, _ mm.Frame, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			m.flushTLBEntry(virtAddr)
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			var newTableFrame mm.Frame
			newTableFrame, err = m.allocTable()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			created[createdCount] = tableLink{parent: pte, table: newTableFrame}
			createdCount++
		}

		// User pages must be reachable through user-accessible tables
		pte.SetFlags(flags & FlagUserAccessible)
		return true
	})

	if err == nil {
		err = walkErr
	}

	if err != nil {
		m.releaseTables(created[:createdCount])
	}

	return err
}

// releaseTables frees the tables in links, deepest first. A table is only
// released if its parent entry still points to it and it holds no present
// entries.
func (m *MemoryManager) releaseTables(links []tableLink) {
	for i := len(links) - 1; i >= 0; i-- {
		link := links[i]
		if !link.parent.HasFlags(FlagPresent) || link.parent.Frame() != link.table {
			continue
		}

		if entries := m.tableAt(link.table); entries == nil || !entries.empty() {
			continue
		}

		*link.parent = 0
		m.frames.FreeFrame(link.table)
	}
}

// MapPage maps the page at virtAddr to the frame at physAddr. Both
// addresses must be page-aligned and virtAddr must be canonical.
func (m *MemoryManager) MapPage(virtAddr, physAddr uintptr, flags PageTableEntryFlag) *kernel.Error {
	if !mm.IsPageAligned(virtAddr) || !mm.IsPageAligned(physAddr) {
		return ErrInvalidAddress
	}

	return m.Map(mm.PageFromAddress(virtAddr), mm.FrameFromAddress(physAddr), flags)
}

// Unmap removes the mapping for page. The frame backing the page is
// returned to the frame allocator unless the mapping is pinned. Page tables
// (other than the ones created by Init) that no longer hold any present
// entries are released. Unmapping a page that is not mapped is a no-op.
func (m *MemoryManager) Unmap(page mm.Page) *kernel.Error {
	var (
		err      *kernel.Error
		virtAddr = page.Address()
		path     [pageLevels]*pageTableEntry
		tables   [pageLevels]mm.Frame
		mapped   bool
	)

	if !isCanonical(virtAddr) {
		return ErrInvalidAddress
	}

	walkErr := m.walk(virtAddr, func(pteLevel uint8, table mm.Frame, pte *pageTableEntry) bool {
		path[pteLevel], tables[pteLevel] = pte, table

		if !pte.HasFlags(FlagPresent) {
			return false
		}

		if pteLevel == pageLevels-1 {
			mapped = true
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	if walkErr != nil {
		return walkErr
	}

	if !mapped {
		return err
	}

	leaf := path[pageLevels-1]
	if !leaf.HasFlags(FlagPinned) {
		m.frames.FreeFrame(leaf.Frame())
	}
	*leaf = 0
	m.flushTLBEntry(virtAddr)

	// Release tables that became empty, walking towards the root
	for level := pageLevels - 1; level > 0; level-- {
		if m.isBootTable(tables[level]) {
			break
		}

		if entries := m.tableAt(tables[level]); entries == nil || !entries.empty() {
			break
		}

		*path[level-1] = 0
		m.frames.FreeFrame(tables[level])
	}

	return nil
}

// UnmapPage removes the mapping for the page at virtAddr, which must be
// page-aligned.
func (m *MemoryManager) UnmapPage(virtAddr uintptr) *kernel.Error {
	if !mm.IsPageAligned(virtAddr) {
		return ErrInvalidAddress
	}

	return m.Unmap(mm.PageFromAddress(virtAddr))
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (m *MemoryManager) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	if !isCanonical(virtAddr) {
		return 0, ErrInvalidAddress
	}

	pte, err := m.pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	physAddr := pte.Frame().Address() + (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))

	return physAddr, nil
}

// PhysicalAddress is an alias for Translate.
func (m *MemoryManager) PhysicalAddress(virtAddr uintptr) (uintptr, *kernel.Error) {
	return m.Translate(virtAddr)
}
