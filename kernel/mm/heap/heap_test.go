package heap

import (
	"bytes"
	"testing"

	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal/sim"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm/pmm"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm/vmm"
)

const base = vmm.DefaultHeapBase

func setupHeap(t *testing.T) (*Heap, *vmm.MemoryManager) {
	mem, err := sim.NewMemory(0x100000, 2*mm.Mb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mem.Close() })

	frames := &pmm.BitmapAllocator{}
	if err := frames.Init(0x100000, 2*mm.Mb); err != nil {
		t.Fatal(err)
	}

	vm := vmm.New(frames, mem, sim.New())
	if err := vm.Init(vmm.Config{IdentityMapEnd: 0x200000, HeapBase: base}); err != nil {
		t.Fatal(err)
	}

	return New(vm), vm
}

func TestAlloc(t *testing.T) {
	h, vm := setupHeap(t)

	specs := []struct {
		descr     string
		size      mm.Size
		align     uintptr
		exp       uintptr
		expMapped uintptr
	}{
		{"first allocation maps a page", 24, DefaultAlignment, base, 1},
		{"default alignment", 8, DefaultAlignment, base + 32, 1},
		{"explicit alignment", 100, 64, base + 64, 1},
		{"growth extends the current region", 5000, DefaultAlignment, base + 176, 3},
		{"page alignment", 1, mm.PageSize, base + 0x2000, 3},
		{"exact fit at the end of a region", 4079, 1, base + 0x2001, 3},
		{"growth past an exactly filled region", 1, DefaultAlignment, base + 0x3000, 4},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			got, err := h.AllocAligned(spec.size, spec.align)
			if err != nil {
				t.Fatal(err)
			}

			if got != spec.exp {
				t.Fatalf("expected address 0x%x; got 0x%x", spec.exp, got)
			}

			if mapped := h.MappedPages(); mapped != spec.expMapped {
				t.Fatalf("expected %d mapped pages; got %d", spec.expMapped, mapped)
			}

			for _, addr := range []uintptr{got, got + uintptr(spec.size) - 1} {
				if _, err := vm.Translate(addr); err != nil {
					t.Fatalf("expected 0x%x to be mapped; got %v", addr, err)
				}
			}
		})
	}

	if exp, got := mm.Size(24+8+100+5000+1+4079+1), h.InUse(); got != exp {
		t.Fatalf("expected %d bytes in use; got %d", exp, got)
	}
}

func TestAllocAfterForeignPages(t *testing.T) {
	h, vm := setupHeap(t)

	if _, err := h.Alloc(16); err != nil {
		t.Fatal(err)
	}

	// Someone else takes the page following the heap region.
	if addr, err := vm.AllocatePages(1); err != nil || addr != base+0x1000 {
		t.Fatalf("expected page at 0x%x; got 0x%x, %v", base+0x1000, addr, err)
	}

	got, err := h.Alloc(mm.Size(mm.PageSize))
	if err != nil {
		t.Fatal(err)
	}

	if exp := base + 0x2000; got != exp {
		t.Fatalf("expected a fresh region at 0x%x; got 0x%x", exp, got)
	}

	got, err = h.Alloc(8)
	if err != nil {
		t.Fatal(err)
	}

	if exp := base + 0x3000; got != exp {
		t.Fatalf("expected the next allocation at 0x%x; got 0x%x", exp, got)
	}
}

func TestAllocErrors(t *testing.T) {
	h, _ := setupHeap(t)

	if _, err := h.Alloc(64); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		descr  string
		size   mm.Size
		align  uintptr
		expErr *kernel.Error
	}{
		{"zero size", 0, DefaultAlignment, ErrInvalidSize},
		{"zero alignment", 8, 0, errInvalidAlignment},
		{"alignment not a power of two", 8, 24, errInvalidAlignment},
		{"alignment above page size", 8, 2 * mm.PageSize, errInvalidAlignment},
		{"out of memory", 4 * mm.Mb, DefaultAlignment, pmm.ErrOutOfMemory},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			if _, err := h.AllocAligned(spec.size, spec.align); err != spec.expErr {
				t.Fatalf("expected error %v; got %v", spec.expErr, err)
			}
		})
	}

	if got := h.InUse(); got != 64 {
		t.Fatalf("expected failed allocations to leave 64 bytes in use; got %d", got)
	}

	if got, err := h.Alloc(8); err != nil || got != base+64 {
		t.Fatalf("expected next allocation at 0x%x; got 0x%x, %v", base+64, got, err)
	}

	if got := h.MappedPages(); got != 1 {
		t.Fatalf("expected 1 mapped page; got %d", got)
	}
}

func TestPrintStats(t *testing.T) {
	h, _ := setupHeap(t)

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	for _, size := range []mm.Size{100, 5000} {
		if _, err := h.Alloc(size); err != nil {
			t.Fatal(err)
		}
	}

	h.PrintStats()
	if exp, got := "[heap] 5100 bytes in use, 3 pages mapped\n", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}
