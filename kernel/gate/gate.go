// Package gate manages the trap vector table: the 256 gate descriptors that
// route exceptions and hardware interrupts to the kernel's entry stubs, and
// the register frame the stubs save before handing control to the dispatcher.
package gate

import (
	"io"

	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
)

// Registers contains a snapshot of all register values when an exception or
// interrupt occurs. The layout matches the frame built by the entry stubs.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Info contains the vector number of the exception or interrupt.
	Info uint64

	// ErrorCode is the error code pushed by the CPU or zero for vectors
	// that do not push one.
	ErrorCode uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}

// Vector identifies a slot in the trap vector table.
type Vector uint16

// Exception vectors.
const (
	DivideByZero               = Vector(0)
	Debug                      = Vector(1)
	NMI                        = Vector(2)
	Breakpoint                 = Vector(3)
	Overflow                   = Vector(4)
	BoundRangeExceeded         = Vector(5)
	InvalidOpcode              = Vector(6)
	DeviceNotAvailable         = Vector(7)
	DoubleFault                = Vector(8)
	CoprocessorSegmentOverrun  = Vector(9)
	InvalidTSS                 = Vector(10)
	SegmentNotPresent          = Vector(11)
	StackSegmentFault          = Vector(12)
	GPFException               = Vector(13)
	PageFaultException         = Vector(14)
	FloatingPointException     = Vector(16)
	AlignmentCheck             = Vector(17)
	MachineCheck               = Vector(18)
	SIMDFloatingPointException = Vector(19)
	VirtualizationException    = Vector(20)
	ControlProtection          = Vector(21)
	HypervisorInjection        = Vector(28)
	VMMCommunication           = Vector(29)
	SecurityException          = Vector(30)
)

const (
	// ExceptionCount is the number of vectors reserved for CPU exceptions.
	ExceptionCount = 32

	// IRQBase is the vector the first remapped hardware interrupt line
	// is delivered on.
	IRQBase = Vector(32)

	// IRQCount is the number of lines served by the cascaded 8259 pair.
	IRQCount = 16
)

// HasErrorCode returns true if the CPU pushes an error code when raising v.
func HasErrorCode(v Vector) bool {
	switch v {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GPFException, PageFaultException, AlignmentCheck, ControlProtection,
		VMMCommunication, SecurityException:
		return true
	}
	return false
}

// HandlerKind classifies the handler bound to a vector.
type HandlerKind uint8

const (
	// KindAbsent marks a vector with no handler; raising it escalates
	// to a fault.
	KindAbsent HandlerKind = iota

	// KindException marks the CPU exception vectors 0-31.
	KindException

	// KindIRQ marks the remapped hardware interrupt vectors 32-47.
	KindIRQ
)

// String implements fmt.Stringer.
func (k HandlerKind) String() string {
	switch k {
	case KindException:
		return "exception"
	case KindIRQ:
		return "irq"
	default:
		return "absent"
	}
}

// HandlerKindFor returns the kind of handler the kernel binds to v.
func HandlerKindFor(v Vector) HandlerKind {
	switch {
	case v < ExceptionCount:
		return KindException
	case v >= IRQBase && v < IRQBase+IRQCount:
		return KindIRQ
	default:
		return KindAbsent
	}
}

// dispatchHook receives every frame saved by the entry stubs.
var dispatchHook func(*Registers)

// SetDispatchHook registers the function that handles all incoming
// exceptions and interrupts.
func SetDispatchHook(fn func(*Registers)) {
	dispatchHook = fn
}

// Deliver hands a saved register frame to the dispatch hook. It is called by
// the native entry stubs and by simulated machines.
func Deliver(regs *Registers) {
	if dispatchHook != nil {
		dispatchHook(regs)
	}
}
