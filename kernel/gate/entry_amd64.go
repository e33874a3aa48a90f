package gate

import "unsafe"

// entryStubCount is the number of entry stubs provided by entry_amd64.s: one
// for each exception and IRQ vector.
const entryStubCount = ExceptionCount + IRQCount

// entryPointTable returns the address of the table holding the entry stub
// addresses.
func entryPointTable() uintptr

// NativeEntryPoint returns the address of the assembly entry stub for v or 0
// if no stub exists for v.
func NativeEntryPoint(v Vector) uintptr {
	if v >= entryStubCount {
		return 0
	}

	table := (*[entryStubCount]uintptr)(unsafe.Pointer(entryPointTable()))
	return table[v]
}

// dispatchInterrupt is invoked by the common entry stub with a pointer to the
// saved register frame.
//
//go:nosplit
func dispatchInterrupt(regs *Registers) {
	Deliver(regs)
}
