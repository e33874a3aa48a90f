package kfmt

import (
	"github.com/Comicwolfy/Core-Kernel/kernel"
)

var (
	// haltFn stops the machine once the panic banner has been printed. It
	// defaults to a spin loop and is replaced at boot (see SetHaltFn) by
	// the machine's halt routine.
	haltFn = func() {
		for {
		}
	}

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// SetHaltFn registers the function Panic calls to stop the machine. The
// function is expected to disable interrupts and never return; test doubles
// may return, in which case Panic returns too.
func SetHaltFn(fn func()) {
	if fn != nil {
		haltFn = fn
	}
}

// Panic outputs the supplied error (if not nil) to every output sink and
// halts the CPU.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	haltFn()
}
