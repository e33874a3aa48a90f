// Package vmm manages the kernel's virtual address space: a single 4-level
// page table hierarchy with a pinned boot identity map and a bump-pointer
// heap region backed by frames from the physical frame allocator.
package vmm

import (
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrInvalidAddress is returned for addresses that are not page-aligned
	// or not canonical.
	ErrInvalidAddress = &kernel.Error{Module: "vmm", Message: "address is not page-aligned or not canonical"}

	// ErrInvalidPageCount is returned when requesting zero pages.
	ErrInvalidPageCount = &kernel.Error{Module: "vmm", Message: "page count must be greater than zero"}

	errNotInitialized    = &kernel.Error{Module: "vmm", Message: "page table hierarchy has not been initialized"}
	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errHeapExhausted     = &kernel.Error{Module: "vmm", Message: "heap address range exhausted"}
	errHeapOverlap       = &kernel.Error{Module: "vmm", Message: "identity map overlaps the heap"}
	errUnbackedFrame     = &kernel.Error{Module: "vmm", Message: "page table frame is not backed by physical memory"}
)

// bootTableCount is the number of tables (PML4, PDPT and PD) created by Init
// that live for as long as the kernel runs.
const bootTableCount = pageLevels - 1

// Config describes the initial layout of the address space.
type Config struct {
	// IdentityMapEnd is the end of the [0, IdentityMapEnd) physical range
	// mapped 1:1 at boot. A zero value disables the identity map.
	IdentityMapEnd uintptr

	// HeapBase is the virtual address where AllocatePages starts handing
	// out pages.
	HeapBase uintptr
}

// MemoryManager owns the kernel page table hierarchy.
//
// MemoryManager is not safe for concurrent use and must not be called from
// IRQ context.
type MemoryManager struct {
	frames mm.FrameAllocator
	mem    mm.PhysicalMemory
	cpu    hal.CPU

	root       mm.Frame
	bootTables [bootTableCount]mm.Frame

	// heapCursor is the address of the next page handed out by
	// AllocatePages. It only moves forward.
	heapCursor uintptr
}

// New creates a memory manager that obtains page table and page frames from
// frames, accesses their contents through mem and programs the MMU through
// cpu.
func New(frames mm.FrameAllocator, mem mm.PhysicalMemory, cpu hal.CPU) *MemoryManager {
	return &MemoryManager{
		frames: frames,
		mem:    mem,
		cpu:    cpu,
		root:   mm.InvalidFrame,
	}
}

// Init builds the boot page table hierarchy: a zeroed PML4 whose first entry
// points to a PDPT whose first entry points to a PD. These three tables are
// never released. Init then identity-maps [0, cfg.IdentityMapEnd) with
// pinned RW mappings, positions the heap cursor at cfg.HeapBase and
// activates the new hierarchy.
func (m *MemoryManager) Init(cfg Config) *kernel.Error {
	if !mm.IsPageAligned(cfg.IdentityMapEnd) || !mm.IsPageAligned(cfg.HeapBase) ||
		cfg.HeapBase == 0 || cfg.HeapBase >= heapLimit {
		return ErrInvalidAddress
	}

	if cfg.IdentityMapEnd > cfg.HeapBase {
		return errHeapOverlap
	}

	for level := 0; level < bootTableCount; level++ {
		table, err := m.allocTable()
		if err != nil {
			for i := 0; i < level; i++ {
				m.frames.FreeFrame(m.bootTables[i])
			}
			return err
		}

		m.bootTables[level] = table
		if level > 0 {
			parent := &m.tableAt(m.bootTables[level-1])[0]
			parent.SetFrame(table)
			parent.SetFlags(FlagPresent | FlagRW)
		}
	}
	m.root = m.bootTables[0]

	for addr := uintptr(0); addr < cfg.IdentityMapEnd; addr += mm.PageSize {
		if err := m.Map(mm.PageFromAddress(addr), mm.FrameFromAddress(addr), FlagRW|FlagPinned); err != nil {
			return err
		}
	}

	m.heapCursor = cfg.HeapBase
	m.Activate()

	kfmt.Printf("[vmm] root table at 0x%x, identity mapped %dKb, heap at 0x%x\n",
		m.root.Address(), uint64(cfg.IdentityMapEnd>>10), m.heapCursor)
	return nil
}

// Activate loads the root table into the translation root register.
func (m *MemoryManager) Activate() {
	m.cpu.SwitchTranslationRoot(m.root.Address())
}

// Root returns the frame that holds the root (PML4) table.
func (m *MemoryManager) Root() mm.Frame {
	return m.root
}

// HeapCursor returns the virtual address that the next AllocatePages call
// will hand out.
func (m *MemoryManager) HeapCursor() uintptr {
	return m.heapCursor
}

// active returns true if the managed hierarchy is the one the MMU uses.
func (m *MemoryManager) active() bool {
	return m.cpu.ActiveTranslationRoot() == m.root.Address()
}

// flushTLBEntry invalidates the cached translation for virtAddr if the
// managed hierarchy is active.
func (m *MemoryManager) flushTLBEntry(virtAddr uintptr) {
	if m.active() {
		m.cpu.FlushTLBEntry(virtAddr)
	}
}

// allocTable reserves a frame for a page table and clears its contents.
func (m *MemoryManager) allocTable() (mm.Frame, *kernel.Error) {
	frame, err := m.frames.AllocFrame()
	if err != nil {
		return mm.InvalidFrame, err
	}

	buf := m.mem.FrameBytes(frame)
	if len(buf) < int(mm.PageSize) {
		m.frames.FreeFrame(frame)
		return mm.InvalidFrame, errUnbackedFrame
	}

	kernel.Memset(buf, 0)
	return frame, nil
}

// isBootTable returns true if table was created by Init.
func (m *MemoryManager) isBootTable(table mm.Frame) bool {
	for _, bootTable := range m.bootTables {
		if bootTable == table {
			return true
		}
	}
	return false
}
