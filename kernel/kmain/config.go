package kmain

import (
	"strconv"

	"github.com/Comicwolfy/Core-Kernel/device/pit"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal/multiboot"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm/vmm"
)

// lowMemoryEnd is the end of the legacy area below 1 MiB which is never
// handed to the frame allocator.
const lowMemoryEnd = uintptr(mm.Mb)

// Config describes the memory layout and device settings used by Boot.
type Config struct {
	// PhysBase and PhysSize define the physical region managed by the
	// frame allocator.
	PhysBase uintptr
	PhysSize mm.Size

	// IdentityMapEnd is the end of the [0, IdentityMapEnd) range mapped
	// 1:1 at boot. On bare metal the page tables are reached through the
	// identity map, so it must cover the managed region.
	IdentityMapEnd uintptr

	// HeapBase is the first virtual address handed out by AllocatePages.
	HeapBase uintptr

	// TimerHz is the requested system timer frequency.
	TimerHz uint32

	// KernelStart and KernelEnd delimit the physical range occupied by
	// the kernel image. The frames in this range are reserved at boot.
	KernelStart uintptr
	KernelEnd   uintptr
}

// DefaultConfig returns a configuration for a machine with 128 MiB of RAM.
func DefaultConfig() Config {
	return Config{
		PhysBase:       lowMemoryEnd,
		PhysSize:       127 * mm.Mb,
		IdentityMapEnd: lowMemoryEnd + uintptr(127*mm.Mb),
		HeapBase:       vmm.DefaultHeapBase,
		TimerHz:        pit.DefaultFrequency,
	}
}

// ConfigFromBootInfo builds a Config from the multiboot information
// registered via multiboot.SetInfoPtr. The managed region is the largest
// available memory region starting at or above 1 MiB, clipped so that it
// ends below the heap. Boot command line options override the defaults:
//
//	mem.identity=<bytes|off>  end of the boot identity map
//	mem.heap=<addr>           heap base address
//	pit.hz=<n>                system timer frequency
func ConfigFromBootInfo(kernelStart, kernelEnd uintptr) Config {
	cfg := DefaultConfig()
	cfg.KernelStart, cfg.KernelEnd = kernelStart, kernelEnd

	var best multiboot.MemoryMapEntry
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		if entry.Type == multiboot.MemAvailable &&
			entry.PhysAddress >= uint64(lowMemoryEnd) &&
			entry.Length > best.Length {
			best = *entry
		}
		return true
	})

	if best.Length != 0 {
		end := best.PhysAddress + best.Length
		if end > uint64(cfg.HeapBase) {
			end = uint64(cfg.HeapBase)
		}

		cfg.PhysBase = uintptr(best.PhysAddress)
		cfg.PhysSize = mm.Size(end - best.PhysAddress)
		cfg.IdentityMapEnd = pageAlignUp(uintptr(end))
	}

	cfg.applyCmdLine(multiboot.GetBootCmdLine())
	return cfg
}

// applyCmdLine applies the supported boot options found in args. Options
// with malformed values are reported and ignored.
func (cfg *Config) applyCmdLine(args map[string]string) {
	for key, val := range args {
		switch key {
		case "mem.identity":
			if val == "off" {
				cfg.IdentityMapEnd = 0
				continue
			}
			if n, ok := parseNumber(key, val); ok {
				cfg.IdentityMapEnd = pageAlignUp(uintptr(n))
			}
		case "mem.heap":
			if n, ok := parseNumber(key, val); ok {
				cfg.HeapBase = uintptr(n)
			}
		case "pit.hz":
			if n, ok := parseNumber(key, val); ok && n <= 0xFFFFFFFF {
				cfg.TimerHz = uint32(n)
			}
		}
	}
}

func parseNumber(key, val string) (uint64, bool) {
	n, err := strconv.ParseUint(val, 0, 64)
	if err != nil {
		kfmt.Printf("[kmain] ignoring invalid value for %s: %s\n", key, val)
		return 0, false
	}
	return n, true
}

func pageAlignUp(addr uintptr) uintptr {
	return (addr + mm.PageSize - 1) &^ (mm.PageSize - 1)
}
