package sim

// 8259A port addresses.
const (
	picMasterCmdPort  uint16 = 0x20
	picMasterDataPort uint16 = 0x21
	picSlaveCmdPort   uint16 = 0xA0
	picSlaveDataPort  uint16 = 0xA1

	picICW1Init     uint8 = 0x10
	picICW1IC4      uint8 = 0x01
	picICW1Single   uint8 = 0x02
	picOCW2EOI      uint8 = 0x20
	picOCW2Specific uint8 = 0x40

	// cascadeLine is the master input the slave chip is wired to.
	cascadeLine = 2
)

// picChip models a single 8259A controller.
type picChip struct {
	offset uint8 // vector of line 0 (ICW2)
	imr    uint8 // interrupt mask register
	irr    uint8 // interrupt request register
	isr    uint8 // in-service register

	// icwStep tracks the next expected initialization word: 0 when not
	// initializing, 2-4 while waiting for ICW2-ICW4.
	icwStep     int
	icw1        uint8
	initialized bool
	readISR     bool

	// eoiCount counts the EOI commands received.
	eoiCount int
}

func (c *picChip) writeCommand(val uint8) {
	switch {
	case val&picICW1Init != 0:
		*c = picChip{icw1: val, icwStep: 2, eoiCount: c.eoiCount}
	case val&0x18 == 0x08:
		// OCW3: select the register returned by command port reads
		if val&0x02 != 0 {
			c.readISR = val&0x01 != 0
		}
	case val&picOCW2EOI != 0:
		c.eoiCount++
		if val&picOCW2Specific != 0 {
			c.isr &^= 1 << (val & 0x07)
			return
		}

		// Non-specific EOI clears the highest priority in-service line
		for line := uint8(0); line < 8; line++ {
			if c.isr&(1<<line) != 0 {
				c.isr &^= 1 << line
				return
			}
		}
	}
}

func (c *picChip) writeData(val uint8) {
	switch c.icwStep {
	case 2:
		c.offset = val
		switch {
		case c.icw1&picICW1Single == 0:
			c.icwStep = 3
		case c.icw1&picICW1IC4 != 0:
			c.icwStep = 4
		default:
			c.icwStep, c.initialized = 0, true
		}
	case 3:
		if c.icw1&picICW1IC4 != 0 {
			c.icwStep = 4
		} else {
			c.icwStep, c.initialized = 0, true
		}
	case 4:
		c.icwStep, c.initialized = 0, true
	default:
		c.imr = val
	}
}

func (c *picChip) readCommand() uint8 {
	if c.readISR {
		return c.isr
	}
	return c.irr
}

// pending returns the highest priority line that is requested, unmasked and
// not blocked by an in-service line of equal or higher priority.
func (c *picChip) pending() (uint8, bool) {
	for line := uint8(0); line < 8; line++ {
		if c.isr&(1<<line) != 0 {
			return 0, false
		}
		if c.irr&^c.imr&(1<<line) != 0 {
			return line, true
		}
	}
	return 0, false
}

// PIC models the cascaded 8259A pair of a PC. Slave lines are reported as
// lines 8-15.
type PIC struct {
	master picChip
	slave  picChip
}

// newPIC returns a PIC pair with all lines masked, matching the power-on
// state assumed by firmware.
func newPIC() *PIC {
	return &PIC{
		master: picChip{imr: 0xFF},
		slave:  picChip{imr: 0xFF},
	}
}

// PortWrite implements PortDevice.
func (p *PIC) PortWrite(port uint16, val uint8) {
	switch port {
	case picMasterCmdPort:
		p.master.writeCommand(val)
	case picMasterDataPort:
		p.master.writeData(val)
	case picSlaveCmdPort:
		p.slave.writeCommand(val)
	case picSlaveDataPort:
		p.slave.writeData(val)
	}
}

// PortRead implements PortDevice.
func (p *PIC) PortRead(port uint16) uint8 {
	switch port {
	case picMasterCmdPort:
		return p.master.readCommand()
	case picMasterDataPort:
		return p.master.imr
	case picSlaveCmdPort:
		return p.slave.readCommand()
	case picSlaveDataPort:
		return p.slave.imr
	}
	return 0xFF
}

// raise latches a request for line (0-15).
func (p *PIC) raise(line uint8) {
	if line < 8 {
		p.master.irr |= 1 << line
		return
	}

	p.slave.irr |= 1 << (line - 8)
	p.master.irr |= 1 << cascadeLine
}

// acknowledge performs the CPU interrupt acknowledge cycle. It returns the
// vector of the highest priority deliverable line and marks that line as
// in service.
func (p *PIC) acknowledge() (uint8, bool) {
	line, ok := p.master.pending()
	if !ok {
		return 0, false
	}

	if line != cascadeLine {
		p.master.irr &^= 1 << line
		p.master.isr |= 1 << line
		return p.master.offset + line, true
	}

	slaveLine, ok := p.slave.pending()
	if !ok {
		// Spurious cascade request; drop it.
		p.master.irr &^= 1 << cascadeLine
		return 0, false
	}

	p.slave.irr &^= 1 << slaveLine
	if p.slave.irr&^p.slave.imr == 0 {
		p.master.irr &^= 1 << cascadeLine
	}
	p.master.isr |= 1 << cascadeLine
	p.slave.isr |= 1 << slaveLine
	return p.slave.offset + slaveLine, true
}

// Initialized reports whether both chips completed their ICW sequence.
func (p *PIC) Initialized() bool { return p.master.initialized && p.slave.initialized }

// Offsets returns the vector offsets programmed via ICW2.
func (p *PIC) Offsets() (master, slave uint8) { return p.master.offset, p.slave.offset }

// Masks returns the interrupt mask registers.
func (p *PIC) Masks() (master, slave uint8) { return p.master.imr, p.slave.imr }

// InService returns true if line (0-15) has been acknowledged but not yet
// cleared by an EOI.
func (p *PIC) InService(line uint8) bool {
	if line < 8 {
		return p.master.isr&(1<<line) != 0
	}
	return p.slave.isr&(1<<(line-8)) != 0
}

// EOICounts returns the number of EOI commands received by each chip.
func (p *PIC) EOICounts() (master, slave int) { return p.master.eoiCount, p.slave.eoiCount }
