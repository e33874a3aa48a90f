// Package kbd captures key presses from a PS/2 keyboard into a ring buffer.
package kbd

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
	dataPort uint16 = 0x60

	// releaseBit is set in the scancodes sent when a key is released.
	releaseBit uint8 = 0x80

	// BufferSize is the capacity of the key ring buffer.
	BufferSize = 256

	keyboardIRQLine = 1
)

// usLayout maps set 1 make codes to ASCII for a US keyboard. Keys without a
// printable representation map to 0.
const usLayout = "\x00\x1b1234567890-=\b\tqwertyuiop[]\n\x00asdfghjkl;'`\x00\\zxcvbnm,./\x00*\x00 "

// Keyboard decodes scancodes raised on IRQ1. The IRQ handler is the only
// producer and ReadChar the only consumer of the ring buffer; head and tail
// are free-running counters.
type Keyboard struct {
	ports hal.PortIO
	irq   device.IRQRegistrar

	buf        [BufferSize]byte
	head, tail atomic.Uint32
	dropped    atomic.Uint64
}

// NewKeyboard returns a keyboard driver.
func NewKeyboard(ports hal.PortIO, irq device.IRQRegistrar) *Keyboard {
	return &Keyboard{ports: ports, irq: irq}
}

// DriverName returns the name of this driver.
func (k *Keyboard) DriverName() string {
	return "ps2_keyboard"
}

// DriverVersion returns the version of this driver.
func (k *Keyboard) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit installs the IRQ1 handler.
func (k *Keyboard) DriverInit(w io.Writer) *kernel.Error {
	if err := k.irq.HandleIRQ(keyboardIRQLine, k.handleIRQ); err != nil {
		return err
	}

	kfmt.Fprintf(w, "US layout, %d byte buffer\n", BufferSize)
	return nil
}

// handleIRQ reads the pending scancode and queues its character. Release
// codes and unmapped keys are dropped, as is input that arrives while the
// buffer is full.
func (k *Keyboard) handleIRQ(_ *gate.Registers) {
	scancode := k.ports.ReadPort(dataPort)
	if scancode&releaseBit != 0 || int(scancode) >= len(usLayout) {
		return
	}

	ch := usLayout[scancode]
	if ch == 0 {
		return
	}

	head := k.head.Load()
	if head-k.tail.Load() == BufferSize {
		k.dropped.Add(1)
		return
	}

	k.buf[head%BufferSize] = ch
	k.head.Store(head + 1)
}

// ReadChar removes and returns the oldest buffered character. The second
// return value is false if the buffer is empty.
func (k *Keyboard) ReadChar() (byte, bool) {
	tail := k.tail.Load()
	if tail == k.head.Load() {
		return 0, false
	}

	ch := k.buf[tail%BufferSize]
	k.tail.Store(tail + 1)
	return ch, true
}

// Buffered returns the number of characters waiting to be read.
func (k *Keyboard) Buffered() int {
	return int(k.head.Load() - k.tail.Load())
}

// Dropped returns the number of key presses lost to a full buffer.
func (k *Keyboard) Dropped() uint64 {
	return k.dropped.Load()
}

func probeForKeyboard(env *device.Env) device.Driver {
	if env.IRQ == nil {
		return nil
	}
	return NewKeyboard(env.Ports, env.IRQ)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForKeyboard,
	})
}
