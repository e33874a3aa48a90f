// Package serial drives a 16550-compatible UART in polled transmit mode.
package serial

import (
	"io"

	"github.com/Comicwolfy/Core-Kernel/device"
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
)

// COM1 is the base I/O port of the first serial port.
const COM1 uint16 = 0x3F8

// Register offsets from the base port.
const (
	regData         = 0
	regIntEnable    = 1
	regFIFOControl  = 2
	regLineControl  = 3
	regModemControl = 4
	regLineStatus   = 5
	regScratch      = 7

	lineStatusTxEmpty uint8 = 0x20

	// probeValue is written to the scratch register to detect the chip.
	probeValue uint8 = 0xAE

	// txSpinLimit bounds the wait for the transmit holding register.
	txSpinLimit = 1 << 16
)

// UART is a serial port that implements io.Writer. Line breaks are
// expanded to CR LF.
type UART struct {
	ports hal.PortIO
	base  uint16
}

// NewUART returns a driver for the UART at the supplied base port.
func NewUART(ports hal.PortIO, base uint16) *UART {
	return &UART{ports: ports, base: base}
}

// DriverName returns the name of this driver.
func (u *UART) DriverName() string {
	return "serial"
}

// DriverVersion returns the version of this driver.
func (u *UART) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit programs the UART for 38400 baud, 8 data bits, no parity and
// one stop bit with FIFOs enabled and interrupts disabled.
func (u *UART) DriverInit(w io.Writer) *kernel.Error {
	u.ports.WritePort(u.base+regIntEnable, 0x00)
	u.ports.WritePort(u.base+regLineControl, 0x80) // DLAB on
	u.ports.WritePort(u.base+regData, 0x03)        // divisor lo: 38400 baud
	u.ports.WritePort(u.base+regIntEnable, 0x00)   // divisor hi
	u.ports.WritePort(u.base+regLineControl, 0x03) // 8N1, DLAB off
	u.ports.WritePort(u.base+regFIFOControl, 0xC7) // enable and clear FIFOs, 14 byte threshold
	u.ports.WritePort(u.base+regModemControl, 0x0B)

	kfmt.Fprintf(w, "port 0x%x, 38400 baud 8N1\n", u.base)
	return nil
}

// Write implements io.Writer.
func (u *UART) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			u.writeByte('\r')
		}
		u.writeByte(b)
	}
	return len(p), nil
}

func (u *UART) writeByte(b byte) {
	for spin := 0; spin < txSpinLimit; spin++ {
		if u.ports.ReadPort(u.base+regLineStatus)&lineStatusTxEmpty != 0 {
			break
		}
	}
	u.ports.WritePort(u.base+regData, b)
}

// probeForCOM1 checks whether a UART responds at COM1 by writing a value to
// its scratch register and reading it back.
func probeForCOM1(env *device.Env) device.Driver {
	env.Ports.WritePort(COM1+regScratch, probeValue)
	if env.Ports.ReadPort(COM1+regScratch) != probeValue {
		return nil
	}

	return NewUART(env.Ports, COM1)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForCOM1,
	})
}
