package hal

import (
	"unsafe"

	"github.com/Comicwolfy/Core-Kernel/kernel/cpu"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

// Native implements Machine on top of the privileged instructions exposed by
// the cpu package. It must only be used when running in ring 0.
type Native struct {
	// operand holds the encoded descriptor table pointer while it is
	// being loaded.
	operand [DescriptorTablePointerSize]byte
}

// LoadSegmentTable implements CPU.
func (n *Native) LoadSegmentTable(ptr DescriptorTablePointer, codeSelector, dataSelector uint16) {
	ptr.Encode(&n.operand)
	cpu.LoadGDT(uintptr(unsafe.Pointer(&n.operand[0])), codeSelector, dataSelector)
}

// LoadTrapTable implements CPU.
func (n *Native) LoadTrapTable(ptr DescriptorTablePointer) {
	ptr.Encode(&n.operand)
	cpu.LoadIDT(uintptr(unsafe.Pointer(&n.operand[0])))
}

// ActiveTranslationRoot implements CPU.
func (*Native) ActiveTranslationRoot() uintptr { return cpu.ActivePDT() }

// SwitchTranslationRoot implements CPU.
func (*Native) SwitchTranslationRoot(root uintptr) { cpu.SwitchPDT(root) }

// FlushTLBEntry implements CPU.
func (*Native) FlushTLBEntry(virtAddr uintptr) { cpu.FlushTLBEntry(virtAddr) }

// EnableInterrupts implements CPU.
func (*Native) EnableInterrupts() { cpu.EnableInterrupts() }

// DisableInterrupts implements CPU.
func (*Native) DisableInterrupts() { cpu.DisableInterrupts() }

// FaultAddress implements CPU.
func (*Native) FaultAddress() uintptr { return uintptr(cpu.ReadCR2()) }

// Halt implements CPU.
func (*Native) Halt() { cpu.Halt() }

// Vendor implements VendorReporter.
func (*Native) Vendor() [12]byte { return cpu.Vendor() }

// WritePort implements PortIO.
func (*Native) WritePort(port uint16, val uint8) { cpu.PortWriteByte(port, val) }

// ReadPort implements PortIO.
func (*Native) ReadPort(port uint16) uint8 { return cpu.PortReadByte(port) }

// IdentityMemory implements mm.PhysicalMemory for physical memory that is
// identity-mapped in the active address space. Frames at or above Limit are
// reported as not backed.
type IdentityMemory struct {
	Limit uintptr
}

// FrameBytes implements mm.PhysicalMemory.
func (m IdentityMemory) FrameBytes(frame mm.Frame) []byte {
	if !frame.Valid() || frame.Address() >= m.Limit {
		return nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(frame.Address())), mm.PageSize)
}
