package console

import (
	"bytes"
	"image/color"
	"testing"

	"github.com/Comicwolfy/Core-Kernel/device"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal/sim"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

func setupConsole(t *testing.T, columns, rows uint32) (*VgaTextConsole, *sim.Machine, *sim.Memory) {
	mem, err := sim.NewMemory(0, mm.Mb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mem.Close() })

	m := sim.New()
	cons := NewVgaTextConsole(columns, rows, FramebufferAddr, m, mem)

	var buf bytes.Buffer
	if err := cons.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}
	return cons, m, mem
}

func rowText(cons *VgaTextConsole, y uint32) string {
	var row []byte
	for x := uint32(1); x <= cons.width; x++ {
		row = append(row, cons.CharAt(x, y))
	}
	return string(bytes.TrimRight(row, " "))
}

func TestVgaTextInit(t *testing.T) {
	cons, _, mem := setupConsole(t, DefaultColumns, DefaultRows)

	// cleared to light gray spaces on black
	fb := mem.Bytes(FramebufferAddr, DefaultColumns*DefaultRows*2)
	for i := 0; i < len(fb); i += 2 {
		if fb[i] != ' ' || fb[i+1] != 0x07 {
			t.Fatalf("expected cell %d to be cleared; got 0x%x 0x%x", i/2, fb[i], fb[i+1])
		}
	}

	cons.WriteChar('A', 4, 1, 2, 1)
	if fb[2] != 'A' || fb[3] != 0x14 {
		t.Fatalf("expected framebuffer cell to contain 'A' with attribute 0x14; got 0x%x 0x%x", fb[2], fb[3])
	}

	// out of range colors fall back to the defaults
	cons.WriteChar('B', 42, 42, 3, 1)
	if fb[4] != 'B' || fb[5] != 0x07 {
		t.Fatalf("expected framebuffer cell to contain 'B' with attribute 0x07; got 0x%x 0x%x", fb[4], fb[5])
	}
}

func TestVgaTextWrite(t *testing.T) {
	cons, _, _ := setupConsole(t, 8, 3)

	t.Run("line breaks and wrapping", func(t *testing.T) {
		_, _ = cons.Write([]byte("abc\nline two!"))

		if exp, got := "abc", rowText(cons, 1); got != exp {
			t.Fatalf("expected row 1 to be %q; got %q", exp, got)
		}
		if exp, got := "line two", rowText(cons, 2); got != exp {
			t.Fatalf("expected row 2 to be %q; got %q", exp, got)
		}
		if exp, got := "!", rowText(cons, 3); got != exp {
			t.Fatalf("expected row 3 to be %q; got %q", exp, got)
		}
	})

	t.Run("scrolling", func(t *testing.T) {
		_, _ = cons.Write([]byte("\nlast"))

		for y, exp := range []string{"line two", "!", "last"} {
			if got := rowText(cons, uint32(y+1)); got != exp {
				t.Errorf("expected row %d to be %q; got %q", y+1, exp, got)
			}
		}

		if x, y := cons.Cursor(); x != 5 || y != 3 {
			t.Fatalf("expected cursor at (5, 3); got (%d, %d)", x, y)
		}
	})

	t.Run("carriage return, tab and backspace", func(t *testing.T) {
		_, _ = cons.Write([]byte("\rX\tY\b"))

		// The tab overwrites the rest of "last" and the backspace erases Y
		if exp, got := "X", rowText(cons, 3); got != exp {
			t.Fatalf("expected row 3 to be %q; got %q", exp, got)
		}

		if x, _ := cons.Cursor(); x != 6 {
			t.Fatalf("expected cursor column 6; got %d", x)
		}
	})
}

func TestVgaTextScrollDown(t *testing.T) {
	cons, _, _ := setupConsole(t, 4, 2)
	_, _ = cons.Write([]byte("ab"))

	cons.Scroll(ScrollDirDown, 1)
	if exp, got := "ab", rowText(cons, 2); got != exp {
		t.Fatalf("expected row 2 to be %q; got %q", exp, got)
	}

	// out of range scroll requests are ignored
	cons.Scroll(ScrollDirUp, 3)
	if exp, got := "ab", rowText(cons, 2); got != exp {
		t.Fatalf("expected row 2 to be %q; got %q", exp, got)
	}
}

func TestVgaTextSetPaletteColor(t *testing.T) {
	cons, m, _ := setupConsole(t, DefaultColumns, DefaultRows)
	m.ClearPortLog()

	rgba := color.RGBA{R: 252, G: 128, B: 4}
	cons.SetPaletteColor(15, rgba)
	cons.SetPaletteColor(16, rgba)

	if got := cons.Palette()[15]; got != rgba {
		t.Fatalf("expected palette entry 15 to be %v; got %v", rgba, got)
	}

	if exp, got := []uint8{15}, m.PortWrites(0x3c8); !bytes.Equal(exp, got) {
		t.Fatalf("expected DAC index writes %v; got %v", exp, got)
	}

	if exp, got := []uint8{63, 32, 1}, m.PortWrites(0x3c9); !bytes.Equal(exp, got) {
		t.Fatalf("expected DAC data writes %v; got %v", exp, got)
	}
}

func TestProbeForVgaTextConsole(t *testing.T) {
	highMem, err := sim.NewMemory(uintptr(mm.Mb), mm.Mb)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = highMem.Close() }()

	m := sim.New()
	if drv := probeForVgaTextConsole(&device.Env{Ports: m, Memory: highMem}); drv != nil {
		t.Fatal("expected probe to fail when the framebuffer is not backed")
	}

	lowMem, err := sim.NewMemory(0, mm.Mb)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lowMem.Close() }()

	drv := probeForVgaTextConsole(&device.Env{Ports: m, Memory: lowMem})
	if drv == nil {
		t.Fatal("expected probe to detect the console")
	}

	if exp, got := "vga_text_console", drv.DriverName(); got != exp {
		t.Fatalf("expected driver name %q; got %q", exp, got)
	}
}

func TestDriverInitWithoutFramebuffer(t *testing.T) {
	mem, err := sim.NewMemory(uintptr(mm.Mb), mm.Mb)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = mem.Close() }()

	cons := NewVgaTextConsole(DefaultColumns, DefaultRows, FramebufferAddr, sim.New(), mem)
	if err := cons.DriverInit(&bytes.Buffer{}); err != errNoFramebuffer {
		t.Fatalf("expected errNoFramebuffer; got %v", err)
	}
}
