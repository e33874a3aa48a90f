package irq

import "github.com/Comicwolfy/Core-Kernel/kernel/hal"

// 8259A programming constants.
const (
	masterCommandPort uint16 = 0x20
	masterDataPort    uint16 = 0x21
	slaveCommandPort  uint16 = 0xA0
	slaveDataPort     uint16 = 0xA1

	// icw1Init starts the initialization sequence and announces ICW4.
	icw1Init uint8 = 0x11

	// icw4Mode8086 selects 8086/88 mode.
	icw4Mode8086 uint8 = 0x01

	eoiCommand uint8 = 0x20

	// cascadeLine is the master input wired to the slave controller.
	cascadeLine = 2
)

// RemapPIC reprograms the cascaded 8259A pair so that master lines 0-7 raise
// vectors [masterOffset, masterOffset+8) and slave lines 8-15 raise vectors
// [slaveOffset, slaveOffset+8). The supplied mask is applied once the
// controllers are initialized; see SetMask.
func RemapPIC(io hal.PortIO, masterOffset, slaveOffset uint8, mask uint16) {
	io.WritePort(masterCommandPort, icw1Init)
	io.WritePort(slaveCommandPort, icw1Init)

	// ICW2: vector offsets
	io.WritePort(masterDataPort, masterOffset)
	io.WritePort(slaveDataPort, slaveOffset)

	// ICW3: the master gets a bitmask of the lines with a slave attached
	// and the slave gets its cascade identity.
	io.WritePort(masterDataPort, 1<<cascadeLine)
	io.WritePort(slaveDataPort, cascadeLine)

	// ICW4
	io.WritePort(masterDataPort, icw4Mode8086)
	io.WritePort(slaveDataPort, icw4Mode8086)

	SetMask(io, mask)
}

// SetMask programs the interrupt mask registers. Bit n of mask disables IRQ
// line n; the low byte goes to the master and the high byte to the slave.
func SetMask(io hal.PortIO, mask uint16) {
	io.WritePort(masterDataPort, uint8(mask))
	io.WritePort(slaveDataPort, uint8(mask>>8))
}

// SendEOI acknowledges the end of the interrupt raised on line. Lines served
// by the slave are acknowledged on the slave first and then on the master,
// which saw the request on its cascade input.
func SendEOI(io hal.PortIO, line uint8) {
	if line >= 8 {
		io.WritePort(slaveCommandPort, eoiCommand)
	}
	io.WritePort(masterCommandPort, eoiCommand)
}
