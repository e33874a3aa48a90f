// Package gdt builds and installs the segment descriptor table. Long mode
// ignores segment bases and limits, so the table holds flat ring 0 and
// ring 3 code and data segments that only encode privilege and type.
package gdt

import (
	"unsafe"

	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
)

// Access byte bits.
const (
	AccessAccessed   uint8 = 1 << 0
	AccessRW         uint8 = 1 << 1
	AccessDirection  uint8 = 1 << 2
	AccessExecutable uint8 = 1 << 3
	AccessCodeData   uint8 = 1 << 4
	AccessRing3      uint8 = 3 << 5
	AccessPresent    uint8 = 1 << 7
)

// Flag nibble bits; they occupy the upper half of the byte shared with
// limit bits 16-19.
const (
	FlagLongMode    uint8 = 1 << 5
	FlagSize32      uint8 = 1 << 6
	FlagGranularity uint8 = 1 << 7
)

const (
	kernelCodeAccess = AccessPresent | AccessCodeData | AccessExecutable | AccessRW // 0x9A
	kernelDataAccess = AccessPresent | AccessCodeData | AccessRW                    // 0x92
	userCodeAccess   = kernelCodeAccess | AccessRing3                               // 0xFA
	userDataAccess   = kernelDataAccess | AccessRing3                               // 0xF2

	codeFlags = FlagGranularity | FlagLongMode // 0xA0
	dataFlags = FlagGranularity | FlagSize32   // 0xC0

	flatLimit = uint32(0xFFFFF)
)

// Segment selectors. The user selectors carry requested privilege level 3.
const (
	KernelCodeSelector uint16 = 0x08
	KernelDataSelector uint16 = 0x10
	UserCodeSelector   uint16 = 0x18 | 3
	UserDataSelector   uint16 = 0x20 | 3
)

// EntryCount is the number of descriptors in the table.
const EntryCount = 5

// Descriptor is a single 64-bit segment descriptor. Its layout matches what
// the processor expects.
type Descriptor struct {
	LimitLow  uint16 // limit bits 0-15
	BaseLow   uint16 // base bits 0-15
	BaseMid   uint8  // base bits 16-23
	Access    uint8
	LimitHigh uint8 // limit bits 16-19 (low nibble) and flags (high nibble)
	BaseHigh  uint8 // base bits 24-31
}

// NewDescriptor builds a descriptor from a 32-bit base, a 20-bit limit, the
// access byte and the flag bits (upper nibble).
func NewDescriptor(base, limit uint32, access, flags uint8) Descriptor {
	return Descriptor{
		LimitLow:  uint16(limit & 0xFFFF),
		BaseLow:   uint16(base & 0xFFFF),
		BaseMid:   uint8(base >> 16),
		Access:    access,
		LimitHigh: uint8((limit>>16)&0x0F) | (flags & 0xF0),
		BaseHigh:  uint8(base >> 24),
	}
}

// Base returns the segment base address.
func (d Descriptor) Base() uint32 {
	return uint32(d.BaseLow) | uint32(d.BaseMid)<<16 | uint32(d.BaseHigh)<<24
}

// Limit returns the 20-bit segment limit.
func (d Descriptor) Limit() uint32 {
	return uint32(d.LimitLow) | uint32(d.LimitHigh&0x0F)<<16
}

// Flags returns the flag nibble (in the upper 4 bits).
func (d Descriptor) Flags() uint8 { return d.LimitHigh & 0xF0 }

// Present returns true if the present bit is set.
func (d Descriptor) Present() bool { return d.Access&AccessPresent != 0 }

// Privilege returns the descriptor privilege level.
func (d Descriptor) Privilege() uint8 { return (d.Access >> 5) & 3 }

// Executable returns true for code segments.
func (d Descriptor) Executable() bool { return d.Access&AccessExecutable != 0 }

// Table is the segment descriptor table.
type Table struct {
	entries [EntryCount]Descriptor
}

// Install populates the table with the null, kernel code, kernel data, user
// code and user data descriptors, loads it and reloads the segment
// registers with the kernel selectors.
func (t *Table) Install(cpu hal.CPU) {
	t.entries = [EntryCount]Descriptor{
		{},
		NewDescriptor(0, flatLimit, kernelCodeAccess, codeFlags),
		NewDescriptor(0, flatLimit, kernelDataAccess, dataFlags),
		NewDescriptor(0, flatLimit, userCodeAccess, codeFlags),
		NewDescriptor(0, flatLimit, userDataAccess, dataFlags),
	}

	cpu.LoadSegmentTable(t.Pointer(), KernelCodeSelector, KernelDataSelector)
	kfmt.Printf("[gdt] loaded %d descriptors (code: 0x%x, data: 0x%x)\n", EntryCount, KernelCodeSelector, KernelDataSelector)
}

// Entry returns the descriptor at index i. It panics if i is out of range.
func (t *Table) Entry(i int) Descriptor {
	return t.entries[i]
}

// Pointer returns the descriptor table pointer for this table. The pointer
// holds a raw address, so the table must not live on a goroutine stack
// which the runtime may move.
func (t *Table) Pointer() hal.DescriptorTablePointer {
	return hal.DescriptorTablePointer{
		Limit: uint16(EntryCount*unsafe.Sizeof(Descriptor{}) - 1),
		Base:  uint64(uintptr(unsafe.Pointer(&t.entries[0]))),
	}
}
