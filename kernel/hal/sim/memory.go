package sim

import (
	"fmt"

	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

// PoisonByte fills freshly created memory so that code which forgets to
// clear a frame reads obviously bogus data.
const PoisonByte = 0xCC

// Memory implements mm.PhysicalMemory on top of a host memory arena that
// stands in for the physical range [base, base+size).
type Memory struct {
	base  uintptr
	arena []byte
}

// NewMemory reserves a host arena for the physical range [base, base+size).
// Both base and size must be page-aligned.
func NewMemory(base uintptr, size mm.Size) (*Memory, error) {
	if !mm.IsPageAligned(base) || !mm.IsPageAligned(uintptr(size)) || size == 0 {
		return nil, fmt.Errorf("sim: physical range 0x%x+0x%x is not page-aligned", base, uint64(size))
	}

	arena, err := allocArena(int(size))
	if err != nil {
		return nil, fmt.Errorf("sim: unable to reserve %d bytes of guest memory: %w", uint64(size), err)
	}

	kernel.Memset(arena, PoisonByte)
	return &Memory{base: base, arena: arena}, nil
}

// FrameBytes implements mm.PhysicalMemory.
func (m *Memory) FrameBytes(frame mm.Frame) []byte {
	if !frame.Valid() {
		return nil
	}

	addr := frame.Address()
	if addr < m.base || addr-m.base >= uintptr(len(m.arena)) {
		return nil
	}

	offset := addr - m.base
	return m.arena[offset : offset+mm.PageSize : offset+mm.PageSize]
}

// Bytes returns the n bytes starting at physical address addr or nil if the
// range is not backed by the arena.
func (m *Memory) Bytes(addr uintptr, n int) []byte {
	if addr < m.base || addr-m.base+uintptr(n) > uintptr(len(m.arena)) {
		return nil
	}

	offset := addr - m.base
	return m.arena[offset : offset+uintptr(n)]
}

// Base returns the first physical address backed by the arena.
func (m *Memory) Base() uintptr { return m.base }

// Size returns the size of the arena.
func (m *Memory) Size() mm.Size { return mm.Size(len(m.arena)) }

// Close releases the arena. The Memory must not be used afterwards.
func (m *Memory) Close() error {
	if m.arena == nil {
		return nil
	}

	err := freeArena(m.arena)
	m.arena = nil
	return err
}
