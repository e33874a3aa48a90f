// Package console implements a kernel output sink on top of the VGA text
// mode framebuffer.
package console

import (
	"image/color"
	"io"
	"unsafe"

	"github.com/Comicwolfy/Core-Kernel/device"
	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

// VGA text mode defaults.
const (
	FramebufferAddr = uintptr(0xB8000)
	DefaultColumns  = 80
	DefaultRows     = 25

	tabWidth = 4
)

var errNoFramebuffer = &kernel.Error{Module: "vga_text_console", Message: "framebuffer is not accessible"}

// ScrollDir defines a scroll direction.
type ScrollDir uint8

// The supported list of scroll directions for the console Scroll() calls.
const (
	ScrollDirUp ScrollDir = iota
	ScrollDirDown
)

// VgaTextConsole implements an EGA-compatible 80x25 text console using VGA
// mode 0x3. The console supports the default 16 EGA colors which can be
// overridden using the SetPaletteColor method.
//
// Each character in the console framebuffer is represented using two bytes,
// a byte for the character ASCII code and a byte that encodes the foreground
// and background colors (4 bits for each).
//
// VgaTextConsole also implements io.Writer; written text is appended at
// the cursor and the contents scroll up once the last row fills.
type VgaTextConsole struct {
	width  uint32
	height uint32

	ports hal.PortIO
	mem   mm.PhysicalMemory

	fbPhysAddr uintptr
	fb         []uint16

	palette   color.Palette
	defaultFg uint8
	defaultBg uint8
	clearChar uint16

	// 1-based cursor position.
	curX, curY uint32
}

// NewVgaTextConsole creates an new vga text console with its
// framebuffer located at fbPhysAddr.
func NewVgaTextConsole(columns, rows uint32, fbPhysAddr uintptr, ports hal.PortIO, mem mm.PhysicalMemory) *VgaTextConsole {
	return &VgaTextConsole{
		width:      columns,
		height:     rows,
		ports:      ports,
		mem:        mem,
		fbPhysAddr: fbPhysAddr,
		clearChar:  uint16(' '),
		palette: color.Palette{
			color.RGBA{R: 0, G: 0, B: 1},       /* black */
			color.RGBA{R: 0, G: 0, B: 128},     /* blue */
			color.RGBA{R: 0, G: 128, B: 1},     /* green */
			color.RGBA{R: 0, G: 128, B: 128},   /* cyan */
			color.RGBA{R: 128, G: 0, B: 1},     /* red */
			color.RGBA{R: 128, G: 0, B: 128},   /* magenta */
			color.RGBA{R: 64, G: 64, B: 1},     /* brown */
			color.RGBA{R: 128, G: 128, B: 128}, /* light gray */
			color.RGBA{R: 64, G: 64, B: 64},    /* dark gray */
			color.RGBA{R: 0, G: 0, B: 255},     /* light blue */
			color.RGBA{R: 0, G: 255, B: 1},     /* light green */
			color.RGBA{R: 0, G: 255, B: 255},   /* light cyan */
			color.RGBA{R: 255, G: 0, B: 1},     /* light red */
			color.RGBA{R: 255, G: 0, B: 255},   /* light magenta */
			color.RGBA{R: 255, G: 255, B: 1},   /* yellow */
			color.RGBA{R: 255, G: 255, B: 255}, /* white */
		},
		// light gray text on black background
		defaultFg: 7,
		defaultBg: 0,
		curX:      1,
		curY:      1,
	}
}

// Dimensions returns the console width and height in characters.
func (cons *VgaTextConsole) Dimensions() (uint32, uint32) {
	return cons.width, cons.height
}

// DefaultColors returns the default foreground and background colors
// used by this console.
func (cons *VgaTextConsole) DefaultColors() (fg uint8, bg uint8) {
	return cons.defaultFg, cons.defaultBg
}

// Cursor returns the 1-based cursor position.
func (cons *VgaTextConsole) Cursor() (x, y uint32) {
	return cons.curX, cons.curY
}

// Fill sets the contents of the specified rectangular region to the requested
// color. Both x and y coordinates are 1-based.
func (cons *VgaTextConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	var (
		clr                  = (((uint16(bg) << 4) | uint16(fg)) << 8) | cons.clearChar
		rowOffset, colOffset uint32
	)

	// clip rectangle
	if x == 0 {
		x = 1
	} else if x >= cons.width {
		x = cons.width
	}

	if y == 0 {
		y = 1
	} else if y >= cons.height {
		y = cons.height
	}

	if x+width-1 > cons.width {
		width = cons.width - x + 1
	}

	if y+height-1 > cons.height {
		height = cons.height - y + 1
	}

	rowOffset = ((y - 1) * cons.width) + (x - 1)
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
}

// Scroll the console contents to the specified direction. The caller
// is responsible for updating (e.g. clear or replace) the contents of
// the region that was scrolled.
func (cons *VgaTextConsole) Scroll(dir ScrollDir, lines uint32) {
	if lines == 0 || lines > cons.height {
		return
	}

	offset := lines * cons.width
	switch dir {
	case ScrollDirUp:
		copy(cons.fb, cons.fb[offset:])
	case ScrollDirDown:
		copy(cons.fb[offset:], cons.fb)
	}
}

// WriteChar writes a char to the specified location. If fg or bg exceed the
// supported colors for this console, they will be set to their default
// value. Both x and y coordinates are 1-based.
func (cons *VgaTextConsole) WriteChar(ch byte, fg, bg uint8, x, y uint32) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return
	}

	maxColorIndex := uint8(len(cons.palette) - 1)
	if fg > maxColorIndex {
		fg = cons.defaultFg
	}
	if bg > maxColorIndex {
		bg = cons.defaultBg
	}

	cons.fb[((y-1)*cons.width)+(x-1)] = (((uint16(bg) << 4) | uint16(fg)) << 8) | uint16(ch)
}

// CharAt returns the character stored at the specified 1-based location.
func (cons *VgaTextConsole) CharAt(x, y uint32) byte {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return 0
	}
	return byte(cons.fb[((y-1)*cons.width)+(x-1)])
}

// Write implements io.Writer. It interprets '\n', '\r', '\t' and '\b' and
// scrolls the console up when the cursor moves past the last row.
func (cons *VgaTextConsole) Write(p []byte) (int, error) {
	for _, ch := range p {
		switch ch {
		case '\n':
			cons.lineFeed()
		case '\r':
			cons.curX = 1
		case '\b':
			if cons.curX > 1 {
				cons.curX--
				cons.WriteChar(' ', cons.defaultFg, cons.defaultBg, cons.curX, cons.curY)
			}
		case '\t':
			for i := 0; i < tabWidth; i++ {
				cons.putChar(' ')
			}
		default:
			cons.putChar(ch)
		}
	}
	return len(p), nil
}

func (cons *VgaTextConsole) putChar(ch byte) {
	if cons.curX > cons.width {
		cons.lineFeed()
	}
	cons.WriteChar(ch, cons.defaultFg, cons.defaultBg, cons.curX, cons.curY)
	cons.curX++
}

func (cons *VgaTextConsole) lineFeed() {
	cons.curX = 1
	if cons.curY < cons.height {
		cons.curY++
		return
	}

	cons.Scroll(ScrollDirUp, 1)
	cons.Fill(1, cons.height, cons.width, 1, cons.defaultFg, cons.defaultBg)
}

// Palette returns the active color palette for this console.
func (cons *VgaTextConsole) Palette() color.Palette {
	return cons.palette
}

// SetPaletteColor updates the color definition for the specified
// palette index. Passing a color index greated than the number of
// supported colors should be a no-op.
func (cons *VgaTextConsole) SetPaletteColor(index uint8, rgba color.RGBA) {
	if index >= uint8(len(cons.palette)) {
		return
	}

	cons.palette[index] = rgba

	// Load palette entry to the DAC. In this mode, colors are specified
	// using 6-bits for each component; the RGB values need to be converted
	// to the 0-63 range.
	cons.ports.WritePort(0x3c8, index)
	cons.ports.WritePort(0x3c9, rgba.R>>2)
	cons.ports.WritePort(0x3c9, rgba.G>>2)
	cons.ports.WritePort(0x3c9, rgba.B>>2)
}

// DriverName returns the name of this driver.
func (cons *VgaTextConsole) DriverName() string {
	return "vga_text_console"
}

// DriverVersion returns the version of this driver.
func (cons *VgaTextConsole) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit attaches the framebuffer and clears the screen.
func (cons *VgaTextConsole) DriverInit(w io.Writer) *kernel.Error {
	fbSize := uintptr(cons.width * cons.height * 2)
	frame := mm.FrameFromAddress(cons.fbPhysAddr)
	buf := cons.mem.FrameBytes(frame)
	offset := cons.fbPhysAddr - frame.Address()
	if buf == nil || offset+fbSize > uintptr(len(buf)) {
		return errNoFramebuffer
	}

	cons.fb = unsafe.Slice((*uint16)(unsafe.Pointer(&buf[offset])), fbSize>>1)
	cons.Fill(1, 1, cons.width, cons.height, cons.defaultFg, cons.defaultBg)

	kfmt.Fprintf(w, "framebuffer at 0x%x (%dx%d)\n", cons.fbPhysAddr, cons.width, cons.height)
	return nil
}

// probeForVgaTextConsole checks whether the VGA text framebuffer is
// accessible.
func probeForVgaTextConsole(env *device.Env) device.Driver {
	if env.Memory == nil || env.Memory.FrameBytes(mm.FrameFromAddress(FramebufferAddr)) == nil {
		return nil
	}

	return NewVgaTextConsole(DefaultColumns, DefaultRows, FramebufferAddr, env.Ports, env.Memory)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForVgaTextConsole,
	})
}
