package sim

// PortDevice is implemented by device models attached to the simulated port
// bus.
type PortDevice interface {
	PortWrite(port uint16, val uint8)
	PortRead(port uint16) uint8
}

// UART port offsets and line status bits.
const (
	COM1Port uint16 = 0x3F8

	uartData        = 0
	uartLineControl = 3
	uartLineStatus  = 5

	uartDLAB        uint8 = 0x80
	uartTxHoldEmpty uint8 = 0x20
	uartTxIdle      uint8 = 0x40
)

// UART models the transmit side of a 16550 serial port.
type UART struct {
	base    uint16
	regs    [8]uint8
	divisor uint16
	output  []byte
}

// PortWrite implements PortDevice.
func (u *UART) PortWrite(port uint16, val uint8) {
	offset := port - u.base
	dlab := u.regs[uartLineControl]&uartDLAB != 0

	switch {
	case offset == uartData && dlab:
		u.divisor = u.divisor&0xFF00 | uint16(val)
	case offset == 1 && dlab:
		u.divisor = u.divisor&0x00FF | uint16(val)<<8
	case offset == uartData:
		u.output = append(u.output, val)
	case offset < uint16(len(u.regs)):
		u.regs[offset] = val
	}
}

// PortRead implements PortDevice.
func (u *UART) PortRead(port uint16) uint8 {
	offset := port - u.base
	switch {
	case offset == uartLineStatus:
		return uartTxHoldEmpty | uartTxIdle
	case offset < uint16(len(u.regs)):
		return u.regs[offset]
	}
	return 0xFF
}

// Output returns everything transmitted so far.
func (u *UART) Output() string { return string(u.output) }

// Divisor returns the programmed baud rate divisor.
func (u *UART) Divisor() uint16 { return u.divisor }

// LineControl returns the line control register.
func (u *UART) LineControl() uint8 { return u.regs[uartLineControl] }

// PS/2 controller ports.
const (
	KeyboardDataPort   uint16 = 0x60
	KeyboardStatusPort uint16 = 0x64

	keyboardOutputFull uint8 = 0x01
)

// Keyboard models a PS/2 keyboard controller output buffer.
type Keyboard struct {
	queue []uint8
}

// PortWrite implements PortDevice. Controller commands are ignored.
func (k *Keyboard) PortWrite(uint16, uint8) {}

// PortRead implements PortDevice.
func (k *Keyboard) PortRead(port uint16) uint8 {
	switch port {
	case KeyboardStatusPort:
		if len(k.queue) != 0 {
			return keyboardOutputFull
		}
		return 0
	case KeyboardDataPort:
		if len(k.queue) == 0 {
			return 0
		}
		code := k.queue[0]
		k.queue = k.queue[1:]
		return code
	}
	return 0xFF
}

// PIT ports.
const (
	PITChannel0Port uint16 = 0x40
	PITCommandPort  uint16 = 0x43
)

// PIT models channel 0 of an 8253/8254 programmable interval timer.
type PIT struct {
	command    uint8
	reload     uint16
	lowWritten bool
}

// PortWrite implements PortDevice.
func (p *PIT) PortWrite(port uint16, val uint8) {
	switch port {
	case PITCommandPort:
		p.command = val
		p.lowWritten = false
	case PITChannel0Port:
		if !p.lowWritten {
			p.reload = p.reload&0xFF00 | uint16(val)
		} else {
			p.reload = p.reload&0x00FF | uint16(val)<<8
		}
		p.lowWritten = !p.lowWritten
	}
}

// PortRead implements PortDevice.
func (p *PIT) PortRead(uint16) uint8 { return 0 }

// Command returns the last mode/command byte.
func (p *PIT) Command() uint8 { return p.command }

// Reload returns the programmed channel 0 reload value.
func (p *PIT) Reload() uint16 { return p.reload }

// CMOS/RTC ports, registers and flags.
const (
	CMOSIndexPort uint16 = 0x70
	CMOSDataPort  uint16 = 0x71

	// RTCIRQLine is the PIC line raised by the periodic RTC interrupt.
	RTCIRQLine = 8

	cmosNMIDisable uint8 = 0x80
	cmosRegA       uint8 = 0x0A
	cmosRegB       uint8 = 0x0B
	cmosRegC       uint8 = 0x0C
	cmosRegD       uint8 = 0x0D

	cmosPeriodicEnable uint8 = 0x40
	cmosIRQFlags       uint8 = 0xC0 // IRQF | PF
)

// CMOS models the MC146818 real-time clock. At power-on it runs in BCD,
// 24-hour mode and reads 2026-10-18 12:34:56.
type CMOS struct {
	index       uint8
	nmiDisabled bool
	regs        [128]uint8
}

func newCMOS() *CMOS {
	c := &CMOS{}
	for reg, val := range map[uint8]uint8{
		0x00: 0x56, 0x02: 0x34, 0x04: 0x12,
		0x07: 0x18, 0x08: 0x10, 0x09: 0x26,
		cmosRegA: 0x26, cmosRegB: 0x02, cmosRegD: 0x80,
	} {
		c.regs[reg] = val
	}
	return c
}

// PortWrite implements PortDevice. Register C and D are read-only.
func (c *CMOS) PortWrite(port uint16, val uint8) {
	switch port {
	case CMOSIndexPort:
		c.index = val &^ cmosNMIDisable
		c.nmiDisabled = val&cmosNMIDisable != 0
	case CMOSDataPort:
		if c.index != cmosRegC && c.index != cmosRegD {
			c.regs[c.index] = val
		}
	}
}

// PortRead implements PortDevice. Reading register C acknowledges the
// pending interrupt flags.
func (c *CMOS) PortRead(port uint16) uint8 {
	if port != CMOSDataPort {
		return 0xFF
	}

	val := c.regs[c.index]
	if c.index == cmosRegC {
		c.regs[cmosRegC] = 0
	}
	return val
}

// SetRegister stores val in CMOS register reg.
func (c *CMOS) SetRegister(reg, val uint8) { c.regs[reg&^cmosNMIDisable] = val }

// Register returns the contents of CMOS register reg.
func (c *CMOS) Register(reg uint8) uint8 { return c.regs[reg&^cmosNMIDisable] }

// NMIDisabled reports whether the last index write masked NMIs.
func (c *CMOS) NMIDisabled() bool { return c.nmiDisabled }
