package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/fogleman/gg"

	"github.com/Comicwolfy/Core-Kernel/kernel/hal/sim"
	"github.com/Comicwolfy/Core-Kernel/kernel/kfmt"
	"github.com/Comicwolfy/Core-Kernel/kernel/kmain"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm/vmm"
)

// legendHeight is the height of the status line below the frame grid.
const legendHeight = 20

var (
	freeColor      = color.RGBA{R: 0x50, G: 0x50, B: 0x50, A: 0xff}
	allocatedColor = color.RGBA{R: 0xf0, G: 0x8c, B: 0x1e, A: 0xff}
	tableColor     = color.RGBA{R: 0x2b, G: 0x6c, B: 0xc4, A: 0xff}
	backColor      = color.RGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff}
	textColor      = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
)

type frameState uint8

const (
	frameFree frameState = iota
	frameAllocated
	frameTable
)

// snapshot captures the state of every frame managed by the allocator.
type snapshot struct {
	start  mm.Frame
	states []frameState

	free, allocated, tables int
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[framemap] error: %s\n", err.Error())
	os.Exit(1)
}

// bootSim boots the kernel core on a simulated machine with memSize bytes
// of RAM. The region above 1Mb is managed and identity mapped.
func bootSim(memSize mm.Size) (*kmain.System, *sim.Memory, error) {
	if memSize <= mm.Mb {
		return nil, nil, errors.New("memory size must be larger than 1Mb")
	}

	mem, err := sim.NewMemory(0, memSize)
	if err != nil {
		return nil, nil, err
	}

	cfg := kmain.DefaultConfig()
	cfg.PhysSize = memSize - mm.Mb
	cfg.IdentityMapEnd = uintptr(memSize)

	sys, kerr := kmain.Boot(cfg, sim.New(), mem, sim.EntryPoint)
	if kerr != nil {
		mem.Close()
		return nil, nil, kerr
	}
	return sys, mem, nil
}

// runWorkload allocates batches of 1-3 pages until at least pages pages
// have been handed out. If freeEvery is non-zero every freeEvery-th batch
// is released right after allocation. It returns the number of pages that
// remain allocated.
func runWorkload(m *vmm.MemoryManager, pages, freeEvery int) (int, error) {
	var live int
	for batch, total := 0, 0; total < pages; batch++ {
		count := 1 + batch%3
		addr, err := m.AllocatePages(uintptr(count))
		if err != nil {
			return live, err
		}
		total += count

		if freeEvery > 0 && (batch+1)%freeEvery == 0 {
			if err := m.FreePages(addr, uintptr(count)); err != nil {
				return live, err
			}
			continue
		}
		live += count
	}

	return live, nil
}

func takeSnapshot(sys *kmain.System) snapshot {
	s := snapshot{
		start:  sys.Frames.StartFrame(),
		states: make([]frameState, sys.Frames.FrameCount()),
	}

	sys.Frames.VisitFrames(func(frame mm.Frame, allocated bool) bool {
		if allocated {
			s.states[frame-s.start] = frameAllocated
		}
		return true
	})

	sys.VMM.VisitTables(func(_ uint8, table mm.Frame) bool {
		if table >= s.start && int(table-s.start) < len(s.states) {
			s.states[table-s.start] = frameTable
		}
		return true
	})

	for _, state := range s.states {
		switch state {
		case frameFree:
			s.free++
		case frameAllocated:
			s.allocated++
		case frameTable:
			s.tables++
		}
	}

	return s
}

// render draws one cellSize x cellSize square per frame, columns frames per
// row, followed by a legend line.
func render(s snapshot, columns, cellSize int) *gg.Context {
	rows := (len(s.states) + columns - 1) / columns
	ctx := gg.NewContext(columns*cellSize, rows*cellSize+legendHeight)
	ctx.SetColor(backColor)
	ctx.Clear()

	for i, state := range s.states {
		switch state {
		case frameAllocated:
			ctx.SetColor(allocatedColor)
		case frameTable:
			ctx.SetColor(tableColor)
		default:
			ctx.SetColor(freeColor)
		}

		x, y := (i%columns)*cellSize, (i/columns)*cellSize
		ctx.DrawRectangle(float64(x), float64(y), float64(cellSize-1), float64(cellSize-1))
		ctx.Fill()
	}

	ctx.SetColor(textColor)
	ctx.DrawString(
		fmt.Sprintf("frame 0x%x+  free %d  allocated %d  page tables %d", uint64(s.start), s.free, s.allocated, s.tables),
		4, float64(rows*cellSize+legendHeight-6),
	)
	return ctx
}

func runTool() error {
	memMb := flag.Uint("mem", 16, "the amount of simulated RAM in Mb")
	pages := flag.Int("pages", 256, "the number of heap pages to allocate")
	freeEvery := flag.Int("free-every", 3, "release every n-th allocation batch (0 keeps everything)")
	columns := flag.Int("cols", 64, "the number of frames per row")
	cellSize := flag.Int("cell", 8, "the size of each frame cell in pixels")
	verbose := flag.Bool("v", false, "print the kernel log to STDERR")
	output := flag.String("out", "framemap.png", "the PNG file to write")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "framemap: boot the kernel core on a simulated machine and render its frame bitmap\n\n")
		fmt.Fprint(os.Stderr, "Usage: framemap [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *columns <= 0 || *cellSize < 2 {
		exit(errors.New("cols must be positive and cell must be at least 2"))
	}

	var logSink io.Writer = io.Discard
	if *verbose {
		logSink = os.Stderr
	}
	kfmt.SetOutputSink(logSink)

	sys, mem, err := bootSim(mm.Size(*memMb) * mm.Mb)
	if err != nil {
		return err
	}
	defer mem.Close()

	live, err := runWorkload(sys.VMM, *pages, *freeEvery)
	if err != nil {
		return err
	}

	s := takeSnapshot(sys)
	if err := render(s, *columns, *cellSize).SavePNG(*output); err != nil {
		return err
	}

	fmt.Printf("%d live heap pages, %d free frames, %d allocated frames, %d page tables -> %s\n",
		live, s.free, s.allocated, s.tables, *output)
	return nil
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
