// Package kmain wires the kernel core together: it derives the boot
// configuration, brings up the descriptor tables, memory management and
// interrupt dispatch on a hal.Machine and probes the device drivers.
package kmain

import (
	"github.com/Comicwolfy/Core-Kernel/kernel/cpu"
	"github.com/Comicwolfy/Core-Kernel/kernel/gate"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal/multiboot"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked by the rt0 assembly code after setting
// up a minimal g0 struct that allows Go code to run on the 4K stack
// allocated by the assembly code. The bootloader's identity mapping must
// cover the managed physical region.
//
// The rt0 code passes the address of the multiboot info payload provided by
// the bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain never returns. Once the core is up it echoes keyboard input and
// halts between interrupts.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)
	cfg := ConfigFromBootInfo(kernelStart, kernelEnd)

	var (
		machine = &hal.Native{}
		mem     = hal.IdentityMemory{Limit: cfg.PhysBase + uintptr(cfg.PhysSize)}
	)

	sys, err := Boot(cfg, machine, mem, gate.NativeEntryPoint)
	if err != nil {
		kfmt.Panic(err)
		return
	}

	for {
		sys.EchoInput()
		cpu.WaitForInterrupt()
	}
}
