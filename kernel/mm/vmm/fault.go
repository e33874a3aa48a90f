package vmm

import (
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/gate"
	"github.com/Comicwolfy/Core-Kernel/kernel/irq"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
)

// Page fault error code bits.
const (
	pfPresent          = 1 << 0
	pfWrite            = 1 << 1
	pfUser             = 1 << 2
	pfReservedBit      = 1 << 3
	pfInstructionFetch = 1 << 4
)

var (
	// ErrUnmappedAccess is reported when the kernel touches an address
	// that has no mapping.
	ErrUnmappedAccess = &kernel.Error{Module: "vmm", Message: "access to unmapped address"}

	errProtectionViolation = &kernel.Error{Module: "vmm", Message: "page protection violation"}
	errGeneralProtection   = &kernel.Error{Module: "vmm", Message: "general protection fault"}
)

// InstallFaultHandlers registers reporting hooks for page faults and general
// protection faults with the interrupt dispatcher. Both faults remain fatal.
func (m *MemoryManager) InstallFaultHandlers(d *irq.Dispatcher) {
	_ = d.HandleException(gate.PageFaultException, m.pageFaultHandler)
	_ = d.HandleException(gate.GPFException, generalProtectionFaultHandler)
}

// pageFaultHandler is invoked when a PDT or PDT-entry is not present or when a
// RW protection check fails.
func (m *MemoryManager) pageFaultHandler(info *irq.ExceptionInfo) *kernel.Error {
	errorCode := info.ErrorCode

	kfmt.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", info.FaultAddress)
	switch {
	case errorCode&pfReservedBit != 0:
		kfmt.Printf("page table has reserved bit set")
	case errorCode&pfInstructionFetch != 0:
		kfmt.Printf("instruction fetch")
	case errorCode&(pfPresent|pfWrite) == 0:
		kfmt.Printf("read from non-present page")
	case errorCode&(pfPresent|pfWrite) == pfPresent:
		kfmt.Printf("page protection violation (read)")
	case errorCode&(pfPresent|pfWrite) == pfWrite:
		kfmt.Printf("write to non-present page")
	default:
		kfmt.Printf("page protection violation (write)")
	}

	if errorCode&pfUser != 0 {
		kfmt.Printf(" in user-mode")
	}
	kfmt.Printf("\n")

	physAddr, err := m.Translate(info.FaultAddress)
	if err != nil {
		kfmt.Printf("Mapping: none\n")
		return ErrUnmappedAccess
	}

	kfmt.Printf("Mapping: 0x%16x -> 0x%16x\n", info.FaultAddress, physAddr)
	return errProtectionViolation
}

// generalProtectionFaultHandler is invoked for various reasons:
// - segment errors (privilege, type or limit violations)
// - executing privileged instructions outside ring-0
// - attempts to access reserved or unimplemented CPU registers
func generalProtectionFaultHandler(info *irq.ExceptionInfo) *kernel.Error {
	kfmt.Printf("\nGeneral protection fault (selector: 0x%x)\n", info.ErrorCode)
	return errGeneralProtection
}
