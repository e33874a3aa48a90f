// Package pit drives channel 0 of the 8253/8254 programmable interval timer
// as the system tick source.
package pit

import (
	"io"
	"sync/atomic"

	"github.com/Comicwolfy/Core-Kernel/device"
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/gate"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
)

const (
	channel0Port uint16 = 0x40
	commandPort  uint16 = 0x43

	// BaseFrequency is the input clock of the PIT in Hz.
	BaseFrequency = 1193182

	// DefaultFrequency is used when no frequency is requested.
	DefaultFrequency = 100

	// modeSquareWave selects channel 0, lo/hi byte access, mode 3
	// (square wave generator) and binary counting.
	modeSquareWave uint8 = 0x36

	timerIRQLine = 0
)

var errInvalidFrequency = &kernel.Error{Module: "pit", Message: "frequency must be between 19 and 1193182 Hz"}

// Timer programs PIT channel 0 and counts the ticks it raises on IRQ0.
type Timer struct {
	ports hal.PortIO
	irq   device.IRQRegistrar
	hz    uint32

	ticks atomic.Uint64
}

// NewTimer returns a timer driver that fires hz times per second.
func NewTimer(ports hal.PortIO, irq device.IRQRegistrar, hz uint32) *Timer {
	return &Timer{ports: ports, irq: irq, hz: hz}
}

// DriverName returns the name of this driver.
func (t *Timer) DriverName() string {
	return "pit"
}

// DriverVersion returns the version of this driver.
func (t *Timer) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit programs the reload value for the requested frequency and
// installs the IRQ0 handler.
func (t *Timer) DriverInit(w io.Writer) *kernel.Error {
	divisor, err := Divisor(t.hz)
	if err != nil {
		return err
	}

	t.ports.WritePort(commandPort, modeSquareWave)
	t.ports.WritePort(channel0Port, uint8(divisor))
	t.ports.WritePort(channel0Port, uint8(divisor>>8))

	if err = t.irq.HandleIRQ(timerIRQLine, t.handleIRQ); err != nil {
		return err
	}

	kfmt.Fprintf(w, "channel 0 at %d Hz (divisor %d)\n", t.hz, divisor)
	return nil
}

// Divisor returns the channel 0 reload value for frequency hz.
func Divisor(hz uint32) (uint16, *kernel.Error) {
	if hz == 0 || hz > BaseFrequency || BaseFrequency/hz > 0xFFFF {
		return 0, errInvalidFrequency
	}
	return uint16(BaseFrequency / hz), nil
}

func (t *Timer) handleIRQ(_ *gate.Registers) {
	t.ticks.Add(1)
}

// Ticks returns the number of timer interrupts serviced so far.
func (t *Timer) Ticks() uint64 {
	return t.ticks.Load()
}

// Frequency returns the programmed tick frequency in Hz.
func (t *Timer) Frequency() uint32 {
	return t.hz
}

func probeForPIT(env *device.Env) device.Driver {
	if env.IRQ == nil {
		return nil
	}

	hz := env.TimerHz
	if hz == 0 {
		hz = DefaultFrequency
	}
	return NewTimer(env.Ports, env.IRQ, hz)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForPIT,
	})
}
