// Package rtc drives the MC146818-compatible real-time clock found behind
// the CMOS index/data ports.
package rtc

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
	indexPort uint16 = 0x70
	dataPort  uint16 = 0x71

	// nmiDisable is or-ed into the register index while the clock is
	// being reprogrammed.
	nmiDisable uint8 = 0x80

	regSeconds uint8 = 0x00
	regMinutes uint8 = 0x02
	regHours   uint8 = 0x04
	regDay     uint8 = 0x07
	regMonth   uint8 = 0x08
	regYear    uint8 = 0x09
	regStatusA uint8 = 0x0A
	regStatusB uint8 = 0x0B
	regStatusC uint8 = 0x0C

	updateInProgress uint8 = 0x80 // status A
	periodicEnable   uint8 = 0x40 // status B
	modeBinary       uint8 = 0x04 // status B
	mode24Hour       uint8 = 0x02 // status B
	hourPM           uint8 = 0x80

	rtcIRQLine = 8

	// maxUpdateWait bounds the number of status A polls spent waiting for
	// an update cycle to complete.
	maxUpdateWait = 10000
)

// Time is a wall-clock reading.
type Time struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
}

// Clock reads the wall-clock time and counts periodic interrupts on IRQ8.
type Clock struct {
	ports hal.PortIO
	irq   device.IRQRegistrar

	ticks atomic.Uint64
}

// NewClock returns a clock driver using the supplied port bus and IRQ
// registrar.
func NewClock(ports hal.PortIO, irq device.IRQRegistrar) *Clock {
	return &Clock{ports: ports, irq: irq}
}

// DriverName returns the name of this driver.
func (c *Clock) DriverName() string {
	return "rtc"
}

// DriverVersion returns the version of this driver.
func (c *Clock) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit enables the periodic interrupt and installs the IRQ8 handler.
func (c *Clock) DriverInit(w io.Writer) *kernel.Error {
	c.ports.WritePort(indexPort, nmiDisable|regStatusB)
	prev := c.ports.ReadPort(dataPort)
	c.ports.WritePort(indexPort, nmiDisable|regStatusB)
	c.ports.WritePort(dataPort, prev|periodicEnable)

	// Drop any interrupt latched before the handler exists.
	c.Read(regStatusC)

	if err := c.irq.HandleIRQ(rtcIRQLine, c.handleIRQ); err != nil {
		return err
	}

	now := c.Now()
	kfmt.Fprintf(w, "periodic interrupt on IRQ8, time %d/%d/%d %d:%d:%d\n",
		now.Year, now.Month, now.Day, now.Hour, now.Minute, now.Second)
	return nil
}

// Read returns the contents of CMOS register reg. Reading re-enables NMIs.
func (c *Clock) Read(reg uint8) uint8 {
	c.ports.WritePort(indexPort, reg&^nmiDisable)
	return c.ports.ReadPort(dataPort)
}

// Now returns the current wall-clock time, converting from BCD and 12-hour
// mode where status B asks for it.
func (c *Clock) Now() Time {
	for i := 0; i < maxUpdateWait && c.Read(regStatusA)&updateInProgress != 0; i++ {
	}

	var (
		second = c.Read(regSeconds)
		minute = c.Read(regMinutes)
		hour   = c.Read(regHours)
		day    = c.Read(regDay)
		month  = c.Read(regMonth)
		year   = c.Read(regYear)
		status = c.Read(regStatusB)
	)

	pm := hour&hourPM != 0
	hour &^= hourPM

	if status&modeBinary == 0 {
		second, minute, hour = fromBCD(second), fromBCD(minute), fromBCD(hour)
		day, month, year = fromBCD(day), fromBCD(month), fromBCD(year)
	}

	if status&mode24Hour == 0 {
		hour %= 12
		if pm {
			hour += 12
		}
	}

	return Time{
		Year:   2000 + uint16(year),
		Month:  month,
		Day:    day,
		Hour:   hour,
		Minute: minute,
		Second: second,
	}
}

func fromBCD(v uint8) uint8 {
	return (v>>4)*10 + v&0x0F
}

// handleIRQ acknowledges the interrupt by reading status C; the chip
// raises no further interrupts until it does.
func (c *Clock) handleIRQ(_ *gate.Registers) {
	c.Read(regStatusC)
	c.ticks.Add(1)
}

// Ticks returns the number of periodic interrupts serviced so far.
func (c *Clock) Ticks() uint64 {
	return c.ticks.Load()
}

func probeForRTC(env *device.Env) device.Driver {
	if env.IRQ == nil {
		return nil
	}

	// A floating bus reads back 0xff for every register.
	c := NewClock(env.Ports, env.IRQ)
	if c.Read(regStatusA) == 0xFF {
		return nil
	}
	return c
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForRTC,
	})
}
