package kmain

import (
	"bytes"
	"io"
	"sort"

	"github.com/Comicwolfy/Core-Kernel/device"
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/gate"
	"github.com/Comicwolfy/Core-Kernel/kernel/gdt"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/irq"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm/heap"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm/pmm"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm/vmm"

	// Drivers register themselves with the device package when imported.
	_ "github.com/Comicwolfy/Core-Kernel/device/kbd"
	_ "github.com/Comicwolfy/Core-Kernel/device/pit"
	_ "github.com/Comicwolfy/Core-Kernel/device/rtc"
	_ "github.com/Comicwolfy/Core-Kernel/device/serial"
	_ "github.com/Comicwolfy/Core-Kernel/device/video/console"
)

var strBuf bytes.Buffer

// charSource is implemented by input drivers that buffer decoded characters.
type charSource interface {
	ReadChar() (byte, bool)
}

// System holds the components brought up by Boot.
type System struct {
	Machine hal.Machine
	GDT     gdt.Table
	IDT     gate.Table
	Frames  pmm.BitmapAllocator
	VMM     *vmm.MemoryManager
	Heap    *heap.Heap
	IRQ     *irq.Dispatcher

	// Drivers lists the drivers that were successfully initialized in
	// probe order.
	Drivers []device.Driver

	input charSource
}

// Boot brings up the kernel core on machine: segment table, frame
// allocator, page tables and kernel heap, interrupt dispatch and finally
// the device drivers. Page table memory is accessed through mem and interrupt gates
// are pointed at the stubs returned by entries. Interrupts are enabled when
// Boot returns successfully.
func Boot(cfg Config, machine hal.Machine, mem mm.PhysicalMemory, entries gate.EntryPointResolver) (*System, *kernel.Error) {
	kfmt.SetHaltFn(machine.Halt)

	sys := &System{Machine: machine}
	if id, ok := machine.(hal.VendorReporter); ok {
		vendor := id.Vendor()
		kfmt.Printf("[kmain] cpu vendor: %s\n", vendor[:])
	}

	sys.GDT.Install(machine)

	if err := sys.Frames.Init(cfg.PhysBase, cfg.PhysSize); err != nil {
		return nil, err
	}
	if cfg.KernelEnd > cfg.KernelStart {
		sys.Frames.ReserveRegion(cfg.KernelStart, mm.Size(cfg.KernelEnd-cfg.KernelStart))
	}
	sys.Frames.PrintStats()

	sys.VMM = vmm.New(&sys.Frames, mem, machine)
	if err := sys.VMM.Init(vmm.Config{IdentityMapEnd: cfg.IdentityMapEnd, HeapBase: cfg.HeapBase}); err != nil {
		return nil, err
	}
	sys.Heap = heap.New(sys.VMM)

	sys.IRQ = irq.NewDispatcher(machine, &sys.IDT)
	sys.VMM.InstallFaultHandlers(sys.IRQ)
	sys.IRQ.Install(entries)

	drivers := device.DriverList()
	sort.Sort(drivers)
	sys.probe(drivers, &device.Env{
		Ports:   machine,
		Memory:  mem,
		IRQ:     sys.IRQ,
		TimerHz: cfg.TimerHz,
	})

	kfmt.Printf("[kmain] boot complete, %d drivers active\n", len(sys.Drivers))
	return sys, nil
}

// probe runs the probe function of each driver and initializes the
// detected devices. Drivers that produce output become kfmt sinks.
func (sys *System) probe(driverInfoList device.DriverInfoList, env *device.Env) {
	var w = kfmt.PrefixWriter{Sink: kfmt.GetOutputSink()}

	for _, info := range driverInfoList {
		drv := info.Probe(env)
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		sys.onDriverInit(drv)
	}
}

func (sys *System) onDriverInit(drv device.Driver) {
	sys.Drivers = append(sys.Drivers, drv)

	switch impl := drv.(type) {
	case io.Writer:
		kfmt.AddOutputSink(impl)
	case charSource:
		if sys.input == nil {
			sys.input = impl
		}
	}
}

// EchoInput prints the characters buffered by the active input driver.
func (sys *System) EchoInput() {
	if sys.input == nil {
		return
	}

	for {
		ch, ok := sys.input.ReadChar()
		if !ok {
			return
		}
		kfmt.Printf("%c", ch)
	}
}
