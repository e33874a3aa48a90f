package vmm

import (
	"unsafe"

	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level, the frame of the table being
// visited and the entry that translates the walked address. If the walker
// returns false the walk is aborted.
type pageTableWalker func(pteLevel uint8, table mm.Frame, pte *pageTableEntry) bool

// tableIndex returns the index of the entry that translates virtAddr in a
// table at the supplied level.
func tableIndex(virtAddr uintptr, level uint8) uintptr {
	return (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
}

// isCanonical returns true if bits 48-63 of virtAddr are copies of bit 47.
func isCanonical(virtAddr uintptr) bool {
	top := virtAddr >> 47
	return top == 0 || top == 0x1ffff
}

// tableAt returns the page table stored in frame or nil if the frame is not
// backed by physical memory.
func (m *MemoryManager) tableAt(frame mm.Frame) *pageTable {
	buf := m.mem.FrameBytes(frame)
	if len(buf) < int(mm.PageSize) {
		return nil
	}
	return (*pageTable)(unsafe.Pointer(&buf[0]))
}

// walk performs a page table walk for the given virtual address starting at
// the root table. It calls the supplied walkFn with the entry that
// corresponds to each page level and follows the frame of each entry to the
// next level. The walk stops at the last level or when walkFn returns false.
// It fails if the hierarchy has not been initialized or a table along the
// path is not backed by memory.
func (m *MemoryManager) walk(virtAddr uintptr, walkFn pageTableWalker) *kernel.Error {
	if !m.root.Valid() {
		return errNotInitialized
	}

	table := m.root
	for level := uint8(0); level < pageLevels; level++ {
		entries := m.tableAt(table)
		if entries == nil {
			return errUnbackedFrame
		}

		pte := &entries[tableIndex(virtAddr, level)]
		if !walkFn(level, table, pte) {
			return nil
		}

		table = pte.Frame()
	}

	return nil
}

// pteForAddress returns the final page table entry that corresponds to a
// particular virtual address. The function performs a page table walk till
// it reaches the final page table entry returning ErrInvalidMapping if the
// page is not present.
func (m *MemoryManager) pteForAddress(virtAddr uintptr) (*pageTableEntry, *kernel.Error) {
	var entry *pageTableEntry

	err := m.walk(virtAddr, func(pteLevel uint8, _ mm.Frame, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) || (pteLevel < pageLevels-1 && pte.HasFlags(FlagHugePage)) {
			return false
		}

		if pteLevel == pageLevels-1 {
			entry = pte
		}
		return true
	})

	if err != nil {
		return nil, err
	}

	if entry == nil {
		return nil, ErrInvalidMapping
	}
	return entry, nil
}

// VisitTables invokes visitor for every page table reachable from the root
// table, parents before children. Returning false from visitor skips the
// tables below the visited one.
func (m *MemoryManager) VisitTables(visitor func(level uint8, table mm.Frame) bool) {
	if !m.root.Valid() {
		return
	}
	m.visitTable(0, m.root, visitor)
}

func (m *MemoryManager) visitTable(level uint8, table mm.Frame, visitor func(uint8, mm.Frame) bool) {
	if !visitor(level, table) || level == pageLevels-1 {
		return
	}

	entries := m.tableAt(table)
	if entries == nil {
		return
	}

	for _, pte := range entries {
		if pte.HasFlags(FlagPresent) && !pte.HasFlags(FlagHugePage) {
			m.visitTable(level+1, pte.Frame(), visitor)
		}
	}
}
