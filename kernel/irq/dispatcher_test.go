package irq

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/gate"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal/sim"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
)

// setupDispatcher returns a simulated machine with an installed dispatcher.
// Kernel output is captured in the returned buffer.
func setupDispatcher(t *testing.T, setup func(d *Dispatcher)) (*sim.Machine, *Dispatcher, *bytes.Buffer) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	m := sim.New()
	d := NewDispatcher(m, &gate.Table{})
	if setup != nil {
		setup(d)
	}
	d.Install(sim.EntryPoint)

	t.Cleanup(func() {
		gate.SetDispatchHook(nil)
		kfmt.SetOutputSink(nil)
	})
	return m, d, &buf
}

func TestInstallRemapsBeforeEnablingInterrupts(t *testing.T) {
	var ifAtRemap bool
	m, _, _ := setupDispatcher(t, func(d *Dispatcher) {
		ifAtRemap = d.machine.(*sim.Machine).InterruptsEnabled()
	})

	if ifAtRemap {
		t.Fatal("expected interrupts to be disabled before Install")
	}

	if !m.PIC.Initialized() {
		t.Fatal("expected the PIC to be initialized")
	}

	if master, slave := m.PIC.Offsets(); master != 0x20 || slave != 0x28 {
		t.Fatalf("expected offsets 0x20 and 0x28; got 0x%x and 0x%x", master, slave)
	}

	if _, loaded := m.TrapTable(); !loaded {
		t.Fatal("expected the trap table to be loaded")
	}

	if !m.InterruptsEnabled() {
		t.Fatal("expected interrupts to be enabled after Install")
	}

	// With no handlers registered every line stays masked
	if master, slave := m.PIC.Masks(); master != 0xFF || slave != 0xFF {
		t.Fatalf("expected all lines to be masked; got 0x%x and 0x%x", master, slave)
	}
}

func TestHandleIRQ(t *testing.T) {
	t.Run("invalid line", func(t *testing.T) {
		d := NewDispatcher(sim.New(), &gate.Table{})
		if err := d.HandleIRQ(16, func(*gate.Registers) {}); err != ErrInvalidIRQLine {
			t.Fatalf("expected to get ErrInvalidIRQLine; got %v", err)
		}
	})

	t.Run("mask before install", func(t *testing.T) {
		m, _, _ := setupDispatcher(t, func(d *Dispatcher) {
			_ = d.HandleIRQ(0, func(*gate.Registers) {})
			_ = d.HandleIRQ(1, func(*gate.Registers) {})
		})

		if master, slave := m.PIC.Masks(); master != 0xFC || slave != 0xFF {
			t.Fatalf("expected masks 0xfc and 0xff; got 0x%x and 0x%x", master, slave)
		}
	})

	t.Run("unmask after install", func(t *testing.T) {
		m, d, _ := setupDispatcher(t, nil)

		if err := d.HandleIRQ(12, func(*gate.Registers) {}); err != nil {
			t.Fatal(err)
		}

		// The cascade line must be unmasked for slave lines to get through
		if master, slave := m.PIC.Masks(); master != 0xFB || slave != 0xEF {
			t.Fatalf("expected masks 0xfb and 0xef; got 0x%x and 0x%x", master, slave)
		}
	})
}

func TestHandleExceptionInvalidVector(t *testing.T) {
	d := NewDispatcher(sim.New(), &gate.Table{})
	if err := d.HandleException(gate.IRQBase, func(*ExceptionInfo) *kernel.Error { return nil }); err != gate.ErrInvalidVector {
		t.Fatalf("expected to get ErrInvalidVector; got %v", err)
	}
}

func TestDispatchIRQ(t *testing.T) {
	var calls []uint64
	handler := func(regs *gate.Registers) {
		calls = append(calls, regs.Info)
	}

	m, _, _ := setupDispatcher(t, func(d *Dispatcher) {
		_ = d.HandleIRQ(0, handler)
		_ = d.HandleIRQ(12, handler)
	})

	t.Run("master line", func(t *testing.T) {
		calls = nil
		m.ClearPortLog()
		m.RaiseIRQ(0)

		if len(calls) != 1 || calls[0] != 0x20 {
			t.Fatalf("expected handler to be called once with vector 0x20; got %v", calls)
		}

		if exp, got := []uint8{0x20}, m.PortWrites(0x20); !bytes.Equal(exp, got) {
			t.Fatalf("expected master EOI writes %v; got %v", exp, got)
		}

		if got := m.PortWrites(0xA0); len(got) != 0 {
			t.Fatalf("expected no slave EOI; got %v", got)
		}

		if m.PIC.InService(0) {
			t.Fatal("expected line 0 to be acknowledged")
		}
	})

	t.Run("slave line", func(t *testing.T) {
		calls = nil
		m.ClearPortLog()
		m.RaiseIRQ(12)

		if len(calls) != 1 || calls[0] != 0x2C {
			t.Fatalf("expected handler to be called once with vector 0x2c; got %v", calls)
		}

		var eoiPorts []uint16
		for _, access := range m.PortLog() {
			if access.Write && access.Value == 0x20 {
				eoiPorts = append(eoiPorts, access.Port)
			}
		}

		if len(eoiPorts) != 2 || eoiPorts[0] != 0xA0 || eoiPorts[1] != 0x20 {
			t.Fatalf("expected EOI to be sent to the slave and then the master; got %v", eoiPorts)
		}

		if m.PIC.InService(12) || m.PIC.InService(2) {
			t.Fatal("expected line 12 and the cascade line to be acknowledged")
		}
	})

	t.Run("EOI without handler", func(t *testing.T) {
		m.ClearPortLog()
		d := NewDispatcher(m, &gate.Table{})
		d.Dispatch(&gate.Registers{Info: 0x25})

		if exp, got := []uint8{0x20}, m.PortWrites(0x20); !bytes.Equal(exp, got) {
			t.Fatalf("expected master EOI writes %v; got %v", exp, got)
		}
	})

	t.Run("back to back", func(t *testing.T) {
		calls = nil
		m.Tick(3)

		if len(calls) != 3 {
			t.Fatalf("expected 3 timer interrupts to be handled; got %d", len(calls))
		}
	})
}

func TestDispatchUnexpectedVector(t *testing.T) {
	m, d, buf := setupDispatcher(t, nil)
	m.ClearPortLog()

	d.Dispatch(&gate.Registers{Info: 0x80})

	if got := len(m.PortLog()); got != 0 {
		t.Fatalf("expected no port I/O; got %d accesses", got)
	}

	if exp := "[irq] ignoring unexpected vector 128\n"; !strings.Contains(buf.String(), exp) {
		t.Fatalf("expected output to contain %q; got %q", exp, buf.String())
	}

	if m.Halted() {
		t.Fatal("expected machine to keep running")
	}
}

func TestDispatchException(t *testing.T) {
	defer func(origPanic func(interface{})) {
		panicFn = origPanic
	}(panicFn)

	t.Run("divide by zero", func(t *testing.T) {
		m, _, buf := setupDispatcher(t, nil)

		var panicErr interface{}
		panicFn = func(e interface{}) {
			panicErr = e
			kfmt.Panic(e)
		}

		m.RaiseException(gate.DivideByZero, 0)

		if panicErr != errFatalException {
			t.Fatalf("expected panic with errFatalException; got %v", panicErr)
		}

		if !m.Halted() || m.InterruptsEnabled() {
			t.Fatal("expected the machine to halt with interrupts disabled")
		}

		for _, exp := range []string{
			"*** EXCEPTION OCCURRED ***",
			"Exception: Division By Zero (vector 0, error code 0x0)",
			"RIP = ffffffff80100000",
			"[irq] unrecoverable error: unhandled CPU exception",
		} {
			if !strings.Contains(buf.String(), exp) {
				t.Errorf("expected output to contain %q; got:\n%s", exp, buf.String())
			}
		}

		if strings.Contains(buf.String(), "Faulting address") {
			t.Error("expected no fault address for a non page fault exception")
		}
	})

	t.Run("page fault reports fault address", func(t *testing.T) {
		var hookInfo ExceptionInfo
		hookErr := &kernel.Error{Module: "test", Message: "bad access"}

		m, _, buf := setupDispatcher(t, func(d *Dispatcher) {
			_ = d.HandleException(gate.PageFaultException, func(info *ExceptionInfo) *kernel.Error {
				hookInfo = *info
				return hookErr
			})
		})

		var panicErr interface{}
		panicFn = func(e interface{}) {
			panicErr = e
			kfmt.Panic(e)
		}

		m.PageFault(0xdeadb000, 0x2)

		if hookInfo.FaultAddress != 0xdeadb000 {
			t.Fatalf("expected hook to see fault address 0xdeadb000; got 0x%x", hookInfo.FaultAddress)
		}

		if hookInfo.ErrorCode != 0x2 || hookInfo.Name != "Page Fault" {
			t.Fatalf("unexpected exception info: %+v", hookInfo)
		}

		if panicErr != hookErr {
			t.Fatalf("expected panic with the hook error; got %v", panicErr)
		}

		if exp := "Faulting address: 0x00000000deadb000"; !strings.Contains(buf.String(), exp) {
			t.Fatalf("expected output to contain %q; got:\n%s", exp, buf.String())
		}

		if !m.Halted() {
			t.Fatal("expected the machine to halt")
		}
	})

	t.Run("hook returning nil", func(t *testing.T) {
		m, _, _ := setupDispatcher(t, func(d *Dispatcher) {
			_ = d.HandleException(gate.GPFException, func(*ExceptionInfo) *kernel.Error { return nil })
		})

		var panicErr interface{}
		panicFn = func(e interface{}) {
			panicErr = e
			kfmt.Panic(e)
		}

		m.RaiseException(gate.GPFException, 0x10)

		if panicErr != errFatalException {
			t.Fatalf("expected panic with errFatalException; got %v", panicErr)
		}
	})
}

func TestExceptionName(t *testing.T) {
	specs := []struct {
		v   gate.Vector
		exp string
	}{
		{gate.DivideByZero, "Division By Zero"},
		{gate.DoubleFault, "Double Fault"},
		{gate.GPFException, "General Protection Fault"},
		{gate.PageFaultException, "Page Fault"},
		{31, "Reserved"},
		{32, "Not an Exception"},
	}

	for _, spec := range specs {
		if got := ExceptionName(spec.v); got != spec.exp {
			t.Errorf("[vector %d] expected name %q; got %q", spec.v, spec.exp, got)
		}
	}
}
