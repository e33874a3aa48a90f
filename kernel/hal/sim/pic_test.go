package sim

import "testing"

// remap programs both chips the way the kernel does at boot.
func remap(m *Machine, masterMask, slaveMask uint8) {
	for _, access := range []PortAccess{
		{Port: 0x20, Value: 0x11}, {Port: 0xA0, Value: 0x11},
		{Port: 0x21, Value: 0x20}, {Port: 0xA1, Value: 0x28},
		{Port: 0x21, Value: 0x04}, {Port: 0xA1, Value: 0x02},
		{Port: 0x21, Value: 0x01}, {Port: 0xA1, Value: 0x01},
		{Port: 0x21, Value: masterMask}, {Port: 0xA1, Value: slaveMask},
	} {
		m.WritePort(access.Port, access.Value)
	}
}

func TestPICInitSequence(t *testing.T) {
	m := New()
	if m.PIC.Initialized() {
		t.Fatal("expected PIC to start uninitialized")
	}

	if master, slave := m.PIC.Masks(); master != 0xFF || slave != 0xFF {
		t.Fatalf("expected all lines to be masked at power-on; got 0x%x, 0x%x", master, slave)
	}

	remap(m, 0xFC, 0xFF)

	if !m.PIC.Initialized() {
		t.Fatal("expected PIC to be initialized")
	}

	if master, slave := m.PIC.Offsets(); master != 0x20 || slave != 0x28 {
		t.Fatalf("expected offsets to be 0x20 and 0x28; got 0x%x and 0x%x", master, slave)
	}

	if master, slave := m.PIC.Masks(); master != 0xFC || slave != 0xFF {
		t.Fatalf("expected masks to be 0xfc and 0xff; got 0x%x and 0x%x", master, slave)
	}

	if got := m.ReadPort(0x21); got != 0xFC {
		t.Fatalf("expected master data port read to return the mask; got 0x%x", got)
	}
}

func TestPICAcknowledge(t *testing.T) {
	m := New()
	remap(m, 0x00, 0x00)

	t.Run("master line", func(t *testing.T) {
		m.PIC.raise(1)
		vector, ok := m.PIC.acknowledge()
		if !ok || vector != 0x21 {
			t.Fatalf("expected vector 0x21; got 0x%x (ok: %t)", vector, ok)
		}

		if !m.PIC.InService(1) {
			t.Fatal("expected line 1 to be in service")
		}

		// Lower priority requests are blocked until the EOI
		m.PIC.raise(3)
		if _, ok = m.PIC.acknowledge(); ok {
			t.Fatal("expected line 3 to be blocked by in-service line 1")
		}

		m.WritePort(0x20, 0x20)
		if m.PIC.InService(1) {
			t.Fatal("expected EOI to clear line 1")
		}

		if vector, ok = m.PIC.acknowledge(); !ok || vector != 0x23 {
			t.Fatalf("expected vector 0x23; got 0x%x (ok: %t)", vector, ok)
		}
		m.WritePort(0x20, 0x20)
	})

	t.Run("slave line", func(t *testing.T) {
		m.PIC.raise(12)
		vector, ok := m.PIC.acknowledge()
		if !ok || vector != 0x2C {
			t.Fatalf("expected vector 0x2c; got 0x%x (ok: %t)", vector, ok)
		}

		if !m.PIC.InService(12) || !m.PIC.InService(cascadeLine) {
			t.Fatal("expected line 12 and the cascade line to be in service")
		}

		m.WritePort(0xA0, 0x20)
		m.WritePort(0x20, 0x20)
		if m.PIC.InService(12) || m.PIC.InService(cascadeLine) {
			t.Fatal("expected EOIs to clear line 12 and the cascade line")
		}
	})

	t.Run("masked line", func(t *testing.T) {
		m.WritePort(0x21, 0x01)
		m.PIC.raise(0)
		if _, ok := m.PIC.acknowledge(); ok {
			t.Fatal("expected masked line 0 not to be delivered")
		}

		m.WritePort(0x21, 0x00)
		if vector, ok := m.PIC.acknowledge(); !ok || vector != 0x20 {
			t.Fatalf("expected latched line 0 to be delivered after unmasking; got 0x%x (ok: %t)", vector, ok)
		}
	})

	t.Run("read in-service register", func(t *testing.T) {
		m.WritePort(0x20, 0x0B)
		if got := m.ReadPort(0x20); got != 0x01 {
			t.Fatalf("expected ISR to be 0x01; got 0x%x", got)
		}
		m.WritePort(0x20, 0x60) // specific EOI for line 0
		if got := m.ReadPort(0x20); got != 0x00 {
			t.Fatalf("expected ISR to be cleared; got 0x%x", got)
		}
	})
}
