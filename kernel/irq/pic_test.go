package irq

import (
	"testing"

	"github.com/Comicwolfy/Core-Kernel/kernel/hal/sim"
)

func TestRemapPIC(t *testing.T) {
	m := sim.New()
	RemapPIC(m, 0x20, 0x28, 0xFFFC)

	expWrites := []sim.PortAccess{
		{Port: 0x20, Value: 0x11, Write: true},
		{Port: 0xA0, Value: 0x11, Write: true},
		{Port: 0x21, Value: 0x20, Write: true},
		{Port: 0xA1, Value: 0x28, Write: true},
		{Port: 0x21, Value: 0x04, Write: true},
		{Port: 0xA1, Value: 0x02, Write: true},
		{Port: 0x21, Value: 0x01, Write: true},
		{Port: 0xA1, Value: 0x01, Write: true},
		{Port: 0x21, Value: 0xFC, Write: true},
		{Port: 0xA1, Value: 0xFF, Write: true},
	}

	log := m.PortLog()
	if len(log) != len(expWrites) {
		t.Fatalf("expected %d port writes; got %d", len(expWrites), len(log))
	}

	for i, exp := range expWrites {
		if log[i] != exp {
			t.Errorf("[write %d] expected %+v; got %+v", i, exp, log[i])
		}
	}

	if !m.PIC.Initialized() {
		t.Fatal("expected both controllers to be initialized")
	}

	if master, slave := m.PIC.Offsets(); master != 0x20 || slave != 0x28 {
		t.Fatalf("expected offsets 0x20 and 0x28; got 0x%x and 0x%x", master, slave)
	}

	if master, slave := m.PIC.Masks(); master != 0xFC || slave != 0xFF {
		t.Fatalf("expected masks 0xfc and 0xff; got 0x%x and 0x%x", master, slave)
	}
}

func TestSendEOI(t *testing.T) {
	specs := []struct {
		line     uint8
		expPorts []uint16
	}{
		{0, []uint16{0x20}},
		{7, []uint16{0x20}},
		{8, []uint16{0xA0, 0x20}},
		{15, []uint16{0xA0, 0x20}},
	}

	for specIndex, spec := range specs {
		m := sim.New()
		SendEOI(m, spec.line)

		log := m.PortLog()
		if len(log) != len(spec.expPorts) {
			t.Errorf("[spec %d] expected %d port writes; got %d", specIndex, len(spec.expPorts), len(log))
			continue
		}

		for i, port := range spec.expPorts {
			if log[i].Port != port || log[i].Value != 0x20 {
				t.Errorf("[spec %d] expected write %d to send EOI to port 0x%x; got %+v", specIndex, i, port, log[i])
			}
		}
	}
}
