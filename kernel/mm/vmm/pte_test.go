package vmm

import (
	"testing"

	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

func TestPageTableEntryFlags(t *testing.T) {
	var (
		pte   pageTableEntry
		flag1 = FlagPinned
		flag2 = FlagNoExecute
	)

	if pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return false")
	}

	pte.SetFlags(flag1 | flag2)

	if !pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return true")
	}

	pte.ClearFlags(flag1)

	if !pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return true")
	}

	if pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return false")
	}

	pte.ClearFlags(flag1 | flag2)

	if pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return false")
	}
}

func TestPageTableEntryFrameEncoding(t *testing.T) {
	var (
		pte       pageTableEntry
		physFrame = mm.Frame(123)
	)

	pte.SetFlags(FlagPresent | FlagRW | FlagNoExecute)
	pte.SetFrame(physFrame)
	if got := pte.Frame(); got != physFrame {
		t.Fatalf("expected pte.Frame() to return %v; got %v", physFrame, got)
	}

	// Updating the frame must leave the flags untouched
	pte.SetFrame(mm.Frame(0xfffffffff))
	if !pte.HasFlags(FlagPresent | FlagRW | FlagNoExecute) {
		t.Fatalf("expected flags to survive SetFrame; got 0x%x", uintptr(pte))
	}
}

func TestTableIndex(t *testing.T) {
	specs := []struct {
		virt uintptr
		exp  [pageLevels]uintptr
	}{
		{0x10000000, [pageLevels]uintptr{0, 0, 128, 0}},
		{0x0000700000000000, [pageLevels]uintptr{224, 0, 0, 0}},
		{0xffffffff80101000, [pageLevels]uintptr{511, 510, 0, 257}},
	}

	for specIndex, spec := range specs {
		for level := uint8(0); level < pageLevels; level++ {
			if got := tableIndex(spec.virt, level); got != spec.exp[level] {
				t.Errorf("[spec %d] expected index at level %d to be %d; got %d", specIndex, level, spec.exp[level], got)
			}
		}
	}
}

func TestIsCanonical(t *testing.T) {
	specs := []struct {
		virt uintptr
		exp  bool
	}{
		{0, true},
		{0x00007fffffffffff, true},
		{0x0000800000000000, false},
		{0xffff7fffffffffff, false},
		{0xffff800000000000, true},
	}

	for _, spec := range specs {
		if got := isCanonical(spec.virt); got != spec.exp {
			t.Errorf("[0x%x] expected isCanonical to return %t; got %t", spec.virt, spec.exp, got)
		}
	}
}
