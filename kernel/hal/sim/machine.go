// Package sim provides a software machine that implements the hal
// interfaces. It keeps track of the privileged CPU state the kernel touches,
// routes port I/O to device models (an 8259A PIC pair, a 16550 UART, a PS/2
// keyboard, a PIT and the CMOS clock) and delivers simulated exceptions and
// IRQs through the same dispatch path as the native entry stubs.
package sim

import (
	"github.com/Comicwolfy/Core-Kernel/kernel/gate"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
)

// Simulated entry stubs are laid out at fixed intervals starting at
// EntryBase. The base sits in the upper half of the address space so that
// every part of a gate offset is exercised.
const (
	EntryBase   = uintptr(0xffffffff80100000)
	EntryStride = uintptr(16)
)

// EntryPoint is a gate.EntryPointResolver for the simulated machine.
func EntryPoint(v gate.Vector) uintptr {
	return EntryBase + uintptr(v)*EntryStride
}

// PortAccess records a single port I/O operation.
type PortAccess struct {
	Port  uint16
	Value uint8
	Write bool
}

// Machine is a simulated single-CPU PC.
type Machine struct {
	PIC      *PIC
	UART     *UART
	Keyboard *Keyboard
	PIT      *PIT
	CMOS     *CMOS

	devices map[uint16]PortDevice
	portLog []PortAccess

	interruptsEnabled bool
	halted            bool
	haltCount         int
	tripleFault       bool
	delivering        bool

	root       uintptr
	tlbFlushes []uintptr
	faultAddr  uintptr

	segmentTable hal.DescriptorTablePointer
	trapTable    hal.DescriptorTablePointer
	trapLoaded   bool
	codeSelector uint16
	dataSelector uint16
}

// New returns a machine with interrupts disabled, all PIC lines masked and
// the standard devices attached to the port bus.
func New() *Machine {
	m := &Machine{
		PIC:      newPIC(),
		UART:     &UART{base: COM1Port},
		Keyboard: &Keyboard{},
		PIT:      &PIT{},
		CMOS:     newCMOS(),
		devices:  make(map[uint16]PortDevice),
	}

	m.RegisterDevice(picMasterCmdPort, picMasterDataPort, m.PIC)
	m.RegisterDevice(picSlaveCmdPort, picSlaveDataPort, m.PIC)
	m.RegisterDevice(COM1Port, COM1Port+7, m.UART)
	m.RegisterDevice(KeyboardDataPort, KeyboardDataPort, m.Keyboard)
	m.RegisterDevice(KeyboardStatusPort, KeyboardStatusPort, m.Keyboard)
	m.RegisterDevice(PITChannel0Port, PITCommandPort, m.PIT)
	m.RegisterDevice(CMOSIndexPort, CMOSDataPort, m.CMOS)
	return m
}

// RegisterDevice routes the ports in [startPort, endPort] to dev.
func (m *Machine) RegisterDevice(startPort, endPort uint16, dev PortDevice) {
	for port := startPort; ; port++ {
		m.devices[port] = dev
		if port == endPort || port == 0xFFFF {
			break
		}
	}
}

// WritePort implements hal.PortIO. Writes to unclaimed ports are logged and
// dropped. Writes to the PIC may unblock latched requests (EOI, unmasking)
// which are then delivered.
func (m *Machine) WritePort(port uint16, val uint8) {
	m.portLog = append(m.portLog, PortAccess{Port: port, Value: val, Write: true})
	dev, ok := m.devices[port]
	if !ok {
		return
	}

	dev.PortWrite(port, val)
	if dev == PortDevice(m.PIC) {
		m.deliverPending()
	}
}

// ReadPort implements hal.PortIO. Reads from unclaimed ports return 0xFF
// like a floating bus.
func (m *Machine) ReadPort(port uint16) uint8 {
	val := uint8(0xFF)
	if dev, ok := m.devices[port]; ok {
		val = dev.PortRead(port)
	}
	m.portLog = append(m.portLog, PortAccess{Port: port, Value: val})
	return val
}

// PortLog returns the port accesses recorded since the last ClearPortLog.
func (m *Machine) PortLog() []PortAccess { return m.portLog }

// ClearPortLog discards the recorded port accesses.
func (m *Machine) ClearPortLog() { m.portLog = m.portLog[:0] }

// PortWrites returns the values written to port in order.
func (m *Machine) PortWrites(port uint16) []uint8 {
	var vals []uint8
	for _, access := range m.portLog {
		if access.Write && access.Port == port {
			vals = append(vals, access.Value)
		}
	}
	return vals
}

// LoadSegmentTable implements hal.CPU.
func (m *Machine) LoadSegmentTable(ptr hal.DescriptorTablePointer, codeSelector, dataSelector uint16) {
	m.segmentTable = ptr
	m.codeSelector, m.dataSelector = codeSelector, dataSelector
}

// LoadTrapTable implements hal.CPU.
func (m *Machine) LoadTrapTable(ptr hal.DescriptorTablePointer) {
	m.trapTable = ptr
	m.trapLoaded = true
}

// ActiveTranslationRoot implements hal.CPU.
func (m *Machine) ActiveTranslationRoot() uintptr { return m.root }

// SwitchTranslationRoot implements hal.CPU.
func (m *Machine) SwitchTranslationRoot(root uintptr) { m.root = root }

// FlushTLBEntry implements hal.CPU.
func (m *Machine) FlushTLBEntry(virtAddr uintptr) {
	m.tlbFlushes = append(m.tlbFlushes, virtAddr)
}

// EnableInterrupts implements hal.CPU. Requests latched while interrupts
// were disabled are delivered immediately.
func (m *Machine) EnableInterrupts() {
	if m.halted {
		return
	}
	m.interruptsEnabled = true
	m.deliverPending()
}

// DisableInterrupts implements hal.CPU.
func (m *Machine) DisableInterrupts() { m.interruptsEnabled = false }

// FaultAddress implements hal.CPU.
func (m *Machine) FaultAddress() uintptr { return m.faultAddr }

// Halt implements hal.CPU. Unlike real hardware it returns to the caller;
// the machine ignores further interrupts once halted.
func (m *Machine) Halt() {
	m.interruptsEnabled = false
	m.halted = true
	m.haltCount++
}

// Vendor implements hal.VendorReporter.
func (m *Machine) Vendor() [12]byte {
	return [12]byte{'G', 'o', 'S', 'i', 'm', 'M', 'a', 'c', 'h', 'i', 'n', 'e'}
}

// InterruptsEnabled reports the state of the interrupt flag.
func (m *Machine) InterruptsEnabled() bool { return m.interruptsEnabled }

// Halted reports whether the CPU has been halted.
func (m *Machine) Halted() bool { return m.halted }

// HaltCount returns the number of Halt calls.
func (m *Machine) HaltCount() int { return m.haltCount }

// TripleFault reports whether an event was raised before a trap table was
// loaded, which resets a real CPU.
func (m *Machine) TripleFault() bool { return m.tripleFault }

// TLBFlushes returns the addresses passed to FlushTLBEntry.
func (m *Machine) TLBFlushes() []uintptr { return m.tlbFlushes }

// SegmentTable returns the last segment table pointer and selectors loaded.
func (m *Machine) SegmentTable() (ptr hal.DescriptorTablePointer, codeSelector, dataSelector uint16) {
	return m.segmentTable, m.codeSelector, m.dataSelector
}

// TrapTable returns the last trap table pointer loaded and whether one was
// loaded at all.
func (m *Machine) TrapTable() (hal.DescriptorTablePointer, bool) {
	return m.trapTable, m.trapLoaded
}

// RaiseIRQ asserts hardware interrupt line (0-15). The request is delivered
// right away if interrupts are enabled and the line is unmasked; otherwise
// it stays latched in the PIC.
func (m *Machine) RaiseIRQ(line uint8) {
	if line >= gate.IRQCount {
		return
	}
	m.PIC.raise(line)
	m.deliverPending()
}

// PressKey queues a scancode in the keyboard controller and raises IRQ1.
func (m *Machine) PressKey(scancode uint8) {
	m.Keyboard.queue = append(m.Keyboard.queue, scancode)
	m.RaiseIRQ(1)
}

// Tick raises the timer line count times.
func (m *Machine) Tick(count int) {
	for ; count > 0; count-- {
		m.RaiseIRQ(0)
	}
}

// RTCInterrupt fires the periodic RTC interrupt if it is enabled in
// register B. Like the real chip, no further interrupt is raised until
// register C has been read.
func (m *Machine) RTCInterrupt() {
	if m.CMOS.regs[cmosRegB]&cmosPeriodicEnable == 0 || m.CMOS.regs[cmosRegC]&cmosIRQFlags != 0 {
		return
	}

	m.CMOS.regs[cmosRegC] |= cmosIRQFlags
	m.RaiseIRQ(RTCIRQLine)
}

// RaiseException delivers CPU exception v. Exceptions are delivered even
// when interrupts are disabled.
func (m *Machine) RaiseException(v gate.Vector, errorCode uint64) {
	regs := gate.Registers{Info: uint64(v)}
	if gate.HasErrorCode(v) {
		regs.ErrorCode = errorCode
	}
	m.deliver(&regs)
}

// PageFault latches faultAddr in the fault address register and raises a
// page fault with the supplied error code.
func (m *Machine) PageFault(faultAddr uintptr, errorCode uint64) {
	m.faultAddr = faultAddr
	m.RaiseException(gate.PageFaultException, errorCode)
}

func (m *Machine) deliverPending() {
	if m.delivering {
		return
	}

	m.delivering = true
	for m.interruptsEnabled && !m.halted {
		vector, ok := m.PIC.acknowledge()
		if !ok {
			break
		}
		m.deliver(&gate.Registers{Info: uint64(vector)})
	}
	m.delivering = false
}

// deliver emulates entering an interrupt gate: interrupts are disabled
// while the handler runs and restored on return unless the handler halted
// the CPU.
func (m *Machine) deliver(regs *gate.Registers) {
	if m.halted {
		return
	}

	if !m.trapLoaded {
		m.tripleFault = true
		m.Halt()
		return
	}

	regs.CS = 0x08
	regs.RIP = uint64(EntryPoint(gate.Vector(regs.Info)))

	prevIF := m.interruptsEnabled
	m.interruptsEnabled = false
	gate.Deliver(regs)
	if !m.halted {
		m.interruptsEnabled = prevIF
	}
}
