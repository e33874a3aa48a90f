package gate

import (
	"unsafe"

	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/gdt"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
)

// TableSize is the number of gates in the trap vector table.
const TableSize = 256

// ErrInvalidVector is returned when a vector number does not fit the table.
var ErrInvalidVector = &kernel.Error{Module: "idt", Message: "vector number out of range"}

// GateType is the type/attribute byte of a gate descriptor.
type GateType uint8

const (
	// InterruptGate is a present, ring 0, 64-bit interrupt gate.
	// Interrupts are disabled while its handler runs.
	InterruptGate GateType = 0x8E

	// TrapGate is a present, ring 0, 64-bit trap gate.
	TrapGate GateType = 0x8F

	gatePresent GateType = 0x80
)

// Descriptor is a 16-byte gate descriptor. Its layout matches what the
// processor expects.
type Descriptor struct {
	OffsetLow  uint16
	Selector   uint16
	IST        uint8
	TypeAttr   uint8
	OffsetMid  uint16
	OffsetHigh uint32
	Reserved   uint32
}

// Offset reconstructs the handler address.
func (d Descriptor) Offset() uintptr {
	return uintptr(d.OffsetLow) | uintptr(d.OffsetMid)<<16 | uintptr(d.OffsetHigh)<<32
}

// Present returns true if the gate is usable.
func (d Descriptor) Present() bool {
	return GateType(d.TypeAttr)&gatePresent != 0
}

// EntryPointResolver returns the address of the entry stub for a vector.
type EntryPointResolver func(v Vector) uintptr

// Table is the trap vector table.
type Table struct {
	entries [TableSize]Descriptor
}

// SetGate points gate v at handler using the supplied code segment selector
// and type/attribute byte. Vectors outside the table are rejected with
// ErrInvalidVector and leave the table untouched.
func (t *Table) SetGate(v Vector, handler uintptr, selector uint16, flags GateType) *kernel.Error {
	return t.SetGateIST(v, handler, selector, flags, 0)
}

// SetGateIST behaves like SetGate but also selects an interrupt stack table
// slot (0 disables IST; only the low 3 bits are used).
func (t *Table) SetGateIST(v Vector, handler uintptr, selector uint16, flags GateType, ist uint8) *kernel.Error {
	if v >= TableSize {
		return ErrInvalidVector
	}

	t.entries[v] = Descriptor{
		OffsetLow:  uint16(handler),
		Selector:   selector,
		IST:        ist & 0x7,
		TypeAttr:   uint8(flags),
		OffsetMid:  uint16(handler >> 16),
		OffsetHigh: uint32(uint64(handler) >> 32),
	}
	return nil
}

// Gate returns the descriptor for vector v.
func (t *Table) Gate(v Vector) (Descriptor, *kernel.Error) {
	if v >= TableSize {
		return Descriptor{}, ErrInvalidVector
	}
	return t.entries[v], nil
}

// Kind returns the handler kind bound to v; vectors with a non-present gate
// are reported as KindAbsent.
func (t *Table) Kind(v Vector) HandlerKind {
	if v >= TableSize || !t.entries[v].Present() {
		return KindAbsent
	}
	return HandlerKindFor(v)
}

// Pointer returns the descriptor table pointer for this table. The pointer
// holds a raw address, so the table must not live on a goroutine stack
// which the runtime may move.
func (t *Table) Pointer() hal.DescriptorTablePointer {
	return hal.DescriptorTablePointer{
		Limit: uint16(TableSize*unsafe.Sizeof(Descriptor{}) - 1),
		Base:  uint64(uintptr(unsafe.Pointer(&t.entries[0]))),
	}
}

// Install clears every gate, binds interrupt gates for the exception and
// IRQ vectors to the stubs returned by entries, loads the table and enables
// interrupts. The interrupt controller must have been remapped before
// Install is called.
func (t *Table) Install(cpu hal.CPU, entries EntryPointResolver) {
	t.entries = [TableSize]Descriptor{}

	for v := Vector(0); v < IRQBase+IRQCount; v++ {
		_ = t.SetGate(v, entries(v), gdt.KernelCodeSelector, InterruptGate)
	}

	cpu.LoadTrapTable(t.Pointer())
	kfmt.Printf("[idt] installed %d gates\n", uint16(IRQBase+IRQCount))
	cpu.EnableInterrupts()
}
