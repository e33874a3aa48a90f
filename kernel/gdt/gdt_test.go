package gdt

import (
	"testing"
	"unsafe"

	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
)

type recordingCPU struct {
	hal.CPU

	ptr              hal.DescriptorTablePointer
	codeSel, dataSel uint16
	loadCount        int
}

func (c *recordingCPU) LoadSegmentTable(ptr hal.DescriptorTablePointer, codeSel, dataSel uint16) {
	c.ptr, c.codeSel, c.dataSel = ptr, codeSel, dataSel
	c.loadCount++
}

func TestDescriptorLayout(t *testing.T) {
	if got := unsafe.Sizeof(Descriptor{}); got != 8 {
		t.Fatalf("expected descriptor size to be 8 bytes; got %d", got)
	}

	d := NewDescriptor(0x12345678, 0xABCDE, 0x9A, 0xA0)
	if got := d.Base(); got != 0x12345678 {
		t.Errorf("expected base to be 0x12345678; got 0x%x", got)
	}

	if got := d.Limit(); got != 0xABCDE {
		t.Errorf("expected limit to be 0xabcde; got 0x%x", got)
	}

	if got := d.Flags(); got != 0xA0 {
		t.Errorf("expected flags to be 0xa0; got 0x%x", got)
	}

	if got := d.LimitHigh; got != 0xAA {
		t.Errorf("expected limit/flags byte to be 0xaa; got 0x%x", got)
	}
}

func TestInstall(t *testing.T) {
	var (
		table = new(Table)
		cpu   recordingCPU
	)

	table.Install(&cpu)

	if cpu.loadCount != 1 {
		t.Fatalf("expected the table to be loaded once; got %d", cpu.loadCount)
	}

	if exp := uint16(5*8 - 1); cpu.ptr.Limit != exp {
		t.Errorf("expected pointer limit to be %d; got %d", exp, cpu.ptr.Limit)
	}

	if exp := uint64(uintptr(unsafe.Pointer(&table.entries[0]))); cpu.ptr.Base != exp {
		t.Errorf("expected pointer base to be 0x%x; got 0x%x", exp, cpu.ptr.Base)
	}

	if cpu.codeSel != 0x08 || cpu.dataSel != 0x10 {
		t.Errorf("expected selectors 0x08/0x10; got 0x%x/0x%x", cpu.codeSel, cpu.dataSel)
	}

	if table.Entry(0) != (Descriptor{}) {
		t.Error("expected entry 0 to be the null descriptor")
	}

	specs := []struct {
		access, limitHigh uint8
		privilege         uint8
		executable        bool
	}{
		{0x9A, 0xAF, 0, true},
		{0x92, 0xCF, 0, false},
		{0xFA, 0xAF, 3, true},
		{0xF2, 0xCF, 3, false},
	}

	for specIndex, spec := range specs {
		d := table.Entry(specIndex + 1)

		if d.Access != spec.access || d.LimitHigh != spec.limitHigh {
			t.Errorf("[entry %d] expected access/flags 0x%x/0x%x; got 0x%x/0x%x", specIndex+1, spec.access, spec.limitHigh, d.Access, d.LimitHigh)
		}

		if d.Base() != 0 || d.Limit() != 0xFFFFF {
			t.Errorf("[entry %d] expected a flat segment; got base 0x%x, limit 0x%x", specIndex+1, d.Base(), d.Limit())
		}

		if !d.Present() || d.Privilege() != spec.privilege || d.Executable() != spec.executable {
			t.Errorf("[entry %d] unexpected present/privilege/executable bits: %t/%d/%t", specIndex+1, d.Present(), d.Privilege(), d.Executable())
		}
	}

	if UserCodeSelector != 0x1B || UserDataSelector != 0x23 {
		t.Errorf("expected user selectors 0x1b/0x23; got 0x%x/0x%x", UserCodeSelector, UserDataSelector)
	}
}
