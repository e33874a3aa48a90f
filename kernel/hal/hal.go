// Package hal defines the narrow hardware-access interfaces the kernel core
// is written against. The bare-metal implementation drives the CPU directly;
// the sim sub-package provides a software machine for hosted runs and tests.
package hal

import "encoding/binary"

// DescriptorTablePointer is the operand loaded by the LGDT and LIDT
// instructions.
type DescriptorTablePointer struct {
	// Limit is the size of the table in bytes minus one.
	Limit uint16

	// Base is the linear address of the first table entry.
	Base uint64
}

// DescriptorTablePointerSize is the size of the encoded pointer.
const DescriptorTablePointerSize = 10

// Encode writes the packed little-endian representation expected by the CPU
// into buf.
func (p DescriptorTablePointer) Encode(buf *[DescriptorTablePointerSize]byte) {
	binary.LittleEndian.PutUint16(buf[0:], p.Limit)
	binary.LittleEndian.PutUint64(buf[2:], p.Base)
}

// DecodeDescriptorTablePointer unpacks a pointer produced by Encode.
func DecodeDescriptorTablePointer(buf *[DescriptorTablePointerSize]byte) DescriptorTablePointer {
	return DescriptorTablePointer{
		Limit: binary.LittleEndian.Uint16(buf[0:]),
		Base:  binary.LittleEndian.Uint64(buf[2:]),
	}
}

// CPU exposes the privileged-register operations used by the kernel core.
type CPU interface {
	// LoadSegmentTable loads the segment descriptor table and reloads
	// the code segment register with codeSelector and the data segment
	// registers with dataSelector.
	LoadSegmentTable(ptr DescriptorTablePointer, codeSelector, dataSelector uint16)

	// LoadTrapTable loads the trap vector table.
	LoadTrapTable(ptr DescriptorTablePointer)

	// ActiveTranslationRoot returns the physical address of the active
	// top-level page table.
	ActiveTranslationRoot() uintptr

	// SwitchTranslationRoot activates the top-level page table at the
	// supplied physical address. All non-global TLB entries are flushed.
	SwitchTranslationRoot(root uintptr)

	// FlushTLBEntry invalidates any cached translation for virtAddr.
	FlushTLBEntry(virtAddr uintptr)

	EnableInterrupts()
	DisableInterrupts()

	// FaultAddress returns the linear address that triggered the most
	// recent page fault.
	FaultAddress() uintptr

	// Halt disables interrupts and stops the CPU. It does not return on
	// real hardware.
	Halt()
}

// PortIO provides access to the x86 I/O port space.
type PortIO interface {
	WritePort(port uint16, val uint8)
	ReadPort(port uint16) uint8
}

// VendorReporter is implemented by machines that can identify their CPU.
type VendorReporter interface {
	// Vendor returns the 12-character vendor string (e.g. "GenuineIntel").
	Vendor() [12]byte
}

// Machine bundles the CPU and port interfaces.
type Machine interface {
	CPU
	PortIO
}
