package multiboot

import (
	"encoding/binary"
	"testing"
)

// infoBuilder assembles a multiboot2 information block.
type infoBuilder struct {
	buf []byte
}

func (b *infoBuilder) tag(typ tagType, contents []byte) *infoBuilder {
	if b.buf == nil {
		b.buf = make([]byte, infoHeaderSize)
	}

	hdr := make([]byte, tagHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:], uint32(typ))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(tagHeaderSize+len(contents)))
	b.buf = append(b.buf, hdr...)
	b.buf = append(b.buf, contents...)
	for len(b.buf)%8 != 0 {
		b.buf = append(b.buf, 0)
	}
	return b
}

func (b *infoBuilder) build() []byte {
	b.tag(tagMbSectionEnd, nil)
	binary.LittleEndian.PutUint32(b.buf[0:], uint32(len(b.buf)))
	return b.buf
}

func memoryMap(entries ...MemoryMapEntry) []byte {
	out := make([]byte, 8, 8+len(entries)*mmapEntrySize)
	binary.LittleEndian.PutUint32(out[0:], mmapEntrySize)
	for _, entry := range entries {
		raw := make([]byte, mmapEntrySize)
		binary.LittleEndian.PutUint64(raw[0:], entry.PhysAddress)
		binary.LittleEndian.PutUint64(raw[8:], entry.Length)
		binary.LittleEndian.PutUint32(raw[16:], uint32(entry.Type))
		out = append(out, raw...)
	}
	return out
}

func testInfo() []byte {
	return (&infoBuilder{}).
		tag(tagBootLoaderName, []byte("GRUB 2.06\x00")).
		tag(tagBootCmdLine, []byte("mem.heap=0x20000000 pit.hz=250 quiet\x00")).
		tag(tagBasicMemoryInfo, make([]byte, 8)).
		tag(tagMemoryMap, memoryMap(
			MemoryMapEntry{0, 654336, MemAvailable},
			MemoryMapEntry{654336, 1024, MemReserved},
			MemoryMapEntry{1048576, 133038080, MemAvailable},
			MemoryMapEntry{134086656, 131072, 0xFF},
		)).
		build()
}

func TestFindTagByType(t *testing.T) {
	SetInfo(testInfo())
	defer SetInfo(nil)

	specs := []struct {
		tagType tagType
		expSize int
	}{
		{tagBootCmdLine, 37},
		{tagBootLoaderName, 10},
		{tagBasicMemoryInfo, 8},
		{tagMemoryMap, 8 + 4*mmapEntrySize},
		{tagModules, 0},
	}

	for specIndex, spec := range specs {
		if got := len(findTagByType(spec.tagType)); got != spec.expSize {
			t.Errorf("[spec %d] expected tag size for tag type %d to be %d; got %d", specIndex, spec.tagType, spec.expSize, got)
		}
	}
}

func TestVisitMemRegions(t *testing.T) {
	defer SetInfo(nil)

	var visitCount int
	SetInfo((&infoBuilder{}).build())
	VisitMemRegions(func(*MemoryMapEntry) bool {
		visitCount++
		return true
	})

	if visitCount != 0 {
		t.Fatal("expected visitor not to be invoked when no memory map tag is present")
	}

	specs := []MemoryMapEntry{
		{0, 654336, MemAvailable},
		{654336, 1024, MemReserved},
		{1048576, 133038080, MemAvailable},
		// unknown types are reported as reserved
		{134086656, 131072, MemReserved},
	}

	SetInfo(testInfo())
	VisitMemRegions(func(entry *MemoryMapEntry) bool {
		if *entry != specs[visitCount] {
			t.Errorf("[visit %d] expected entry %+v; got %+v", visitCount, specs[visitCount], *entry)
		}
		visitCount++
		return true
	})

	if visitCount != len(specs) {
		t.Fatalf("expected visitor to be invoked %d times; got %d", len(specs), visitCount)
	}

	visitCount = 0
	VisitMemRegions(func(*MemoryMapEntry) bool {
		visitCount++
		return false
	})

	if visitCount != 1 {
		t.Fatalf("expected visitor to abort after the first entry; got %d visits", visitCount)
	}
}

func TestGetBootCmdLine(t *testing.T) {
	defer SetInfo(nil)

	SetInfo(testInfo())
	exp := map[string]string{
		"mem.heap": "0x20000000",
		"pit.hz":   "250",
		"quiet":    "quiet",
	}

	got := GetBootCmdLine()
	if len(got) != len(exp) {
		t.Fatalf("expected %d command line entries; got %v", len(exp), got)
	}

	for k, v := range exp {
		if got[k] != v {
			t.Errorf("expected %q to be %q; got %q", k, v, got[k])
		}
	}

	if name := GetBootLoaderName(); name != "GRUB 2.06" {
		t.Fatalf("expected boot loader name to be %q; got %q", "GRUB 2.06", name)
	}

	SetInfo(nil)
	if got := GetBootCmdLine(); len(got) != 0 {
		t.Fatalf("expected empty command line; got %v", got)
	}
}

func TestTruncatedInfo(t *testing.T) {
	defer SetInfo(nil)

	data := testInfo()
	// Corrupt the size of the first tag so it runs past the block end
	binary.LittleEndian.PutUint32(data[infoHeaderSize+4:], 0xFFFF)
	SetInfo(data)

	if got := findTagByType(tagMemoryMap); got != nil {
		t.Fatalf("expected scan to stop at the corrupt tag; got %d bytes", len(got))
	}
}

func TestMemoryEntryTypeString(t *testing.T) {
	specs := []struct {
		input MemoryEntryType
		exp   string
	}{
		{MemAvailable, "available"},
		{MemReserved, "reserved"},
		{MemAcpiReclaimable, "ACPI (reclaimable)"},
		{MemNvs, "NVS"},
		{memUnknown, "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.input.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}
