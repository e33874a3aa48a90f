// Package irq implements the interrupt dispatch policy of the kernel: CPU
// exceptions are fatal and hardware interrupts run their registered callback
// followed by an end-of-interrupt to the 8259A pair.
package irq

import (
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/gate"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
)

var (
	// ErrInvalidIRQLine is returned when registering a handler for a line
	// the interrupt controllers do not provide.
	ErrInvalidIRQLine = &kernel.Error{Module: "irq", Message: "IRQ line out of range"}

	errFatalException = &kernel.Error{Module: "irq", Message: "unhandled CPU exception"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

// IRQHandler services a hardware interrupt. It runs with interrupts
// disabled and must not block.
type IRQHandler func(regs *gate.Registers)

// ExceptionInfo describes a CPU exception that is about to bring the
// system down.
type ExceptionInfo struct {
	Vector    gate.Vector
	Name      string
	ErrorCode uint64

	// FaultAddress holds the contents of the fault address register for
	// page faults and is zero otherwise.
	FaultAddress uintptr

	Regs *gate.Registers
}

// ExceptionHandler can report additional details about a CPU exception. The
// exception remains fatal; a non-nil error replaces the generic error passed
// to the panic handler.
type ExceptionHandler func(info *ExceptionInfo) *kernel.Error

// Dispatcher routes exceptions and interrupts delivered through the trap
// vector table.
type Dispatcher struct {
	machine hal.Machine
	table   *gate.Table

	irqHandlers       [gate.IRQCount]IRQHandler
	exceptionHandlers [gate.ExceptionCount]ExceptionHandler

	installed bool
}

// NewDispatcher creates a dispatcher for the supplied machine and trap
// vector table.
func NewDispatcher(machine hal.Machine, table *gate.Table) *Dispatcher {
	return &Dispatcher{machine: machine, table: table}
}

// HandleIRQ registers h as the callback for hardware interrupt line (0-15).
// Lines without a callback stay masked. If the dispatcher is already
// installed the line is unmasked right away.
func (d *Dispatcher) HandleIRQ(line uint8, h IRQHandler) *kernel.Error {
	if line >= gate.IRQCount {
		return ErrInvalidIRQLine
	}

	d.irqHandlers[line] = h
	if d.installed {
		SetMask(d.machine, d.mask())
	}
	return nil
}

// HandleException registers a reporting hook for exception vector v.
func (d *Dispatcher) HandleException(v gate.Vector, h ExceptionHandler) *kernel.Error {
	if v >= gate.ExceptionCount {
		return gate.ErrInvalidVector
	}

	d.exceptionHandlers[v] = h
	return nil
}

// Install remaps the interrupt controllers, routes all trap vector table
// entries to Dispatch and finally installs the table, which enables
// interrupts. Install must be called once, after the segment descriptor
// table has been loaded.
func (d *Dispatcher) Install(entries gate.EntryPointResolver) {
	RemapPIC(d.machine, uint8(gate.IRQBase), uint8(gate.IRQBase)+8, d.mask())
	kfmt.Printf("[irq] remapped PIC to vectors 0x%x-0x%x\n", uint16(gate.IRQBase), uint16(gate.IRQBase+gate.IRQCount-1))

	kfmt.SetHaltFn(d.machine.Halt)
	gate.SetDispatchHook(d.Dispatch)
	d.installed = true

	d.table.Install(d.machine, entries)
}

// Dispatch handles a frame delivered by an entry stub.
func (d *Dispatcher) Dispatch(regs *gate.Registers) {
	v := gate.Vector(regs.Info)

	switch gate.HandlerKindFor(v) {
	case gate.KindException:
		d.fatal(v, regs)
	case gate.KindIRQ:
		line := uint8(v - gate.IRQBase)
		if h := d.irqHandlers[line]; h != nil {
			h(regs)
		}
		SendEOI(d.machine, line)
	default:
		kfmt.Printf("[irq] ignoring unexpected vector %d\n", uint16(v))
	}
}

// fatal reports a CPU exception to every output sink and halts the machine.
func (d *Dispatcher) fatal(v gate.Vector, regs *gate.Registers) {
	d.machine.DisableInterrupts()

	info := ExceptionInfo{
		Vector:    v,
		Name:      ExceptionName(v),
		ErrorCode: regs.ErrorCode,
		Regs:      regs,
	}

	kfmt.Printf("\n*** EXCEPTION OCCURRED ***\n")
	kfmt.Printf("Exception: %s (vector %d, error code 0x%x)\n", info.Name, uint16(v), regs.ErrorCode)
	if v == gate.PageFaultException {
		info.FaultAddress = d.machine.FaultAddress()
		kfmt.Printf("Faulting address: 0x%16x\n", info.FaultAddress)
	}

	err := errFatalException
	if h := d.exceptionHandlers[v]; h != nil {
		if hookErr := h(&info); hookErr != nil {
			err = hookErr
		}
	}

	kfmt.Printf("\nRegisters:\n")
	regs.DumpTo(kfmt.GetOutputSink())

	panicFn(err)
}

// mask returns the interrupt mask for the registered lines. The cascade
// line is unmasked whenever a slave line has a handler.
func (d *Dispatcher) mask() uint16 {
	mask := uint16(0xFFFF)
	for line, h := range d.irqHandlers {
		if h != nil {
			mask &^= 1 << uint(line)
		}
	}

	if mask&0xFF00 != 0xFF00 {
		mask &^= 1 << cascadeLine
	}
	return mask
}
