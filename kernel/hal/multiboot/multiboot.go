// Package multiboot extracts the memory map and the kernel command line from
// the multiboot2 information block passed in by the boot loader.
package multiboot

import (
	"strings"
	"unsafe"
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
)

// tagHeader describes the header the preceedes each tag.
type tagHeader struct {
	// The type of the tag
	tagType tagType

	// The size of the tag including the header but *not* including any
	// padding. Each tag starts at a 8-byte aligned address.
	size uint32
}

// mmapHeader describes the header for a memory map specification.
type mmapHeader struct {
	// The size of each entry.
	entrySize uint32

	// The version of the entries that follow.
	entryVersion uint32
}

const (
	infoHeaderSize = 8
	tagHeaderSize  = 8
	mmapEntrySize  = 24
)

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// infoData holds the multiboot information block.
var infoData []byte

// SetInfoPtr points the package at the multiboot information block located
// at ptr. The block must be identity-mapped. This function must be invoked
// before invoking any other function exported by this package.
func SetInfoPtr(ptr uintptr) {
	if ptr == 0 {
		infoData = nil
		return
	}

	totalSize := *(*uint32)(unsafe.Pointer(ptr))
	infoData = unsafe.Slice((*byte)(unsafe.Pointer(ptr)), totalSize)
}

// SetInfo makes data the multiboot information block. It is used by hosted
// builds and tests that assemble the block in memory.
func SetInfo(data []byte) {
	infoData = data
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	contents := findTagByType(tagMemoryMap)
	if len(contents) < 8 {
		return
	}

	// contents start with the memory map header (2 dwords long)
	hdr := (*mmapHeader)(unsafe.Pointer(&contents[0]))
	if hdr.entrySize < mmapEntrySize {
		return
	}

	var entry MemoryMapEntry
	for offset := uint32(8); offset+mmapEntrySize <= uint32(len(contents)); offset += hdr.entrySize {
		entry = *(*MemoryMapEntry)(unsafe.Pointer(&contents[offset]))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(&entry) {
			return
		}
	}
}

// GetBootCmdLine returns the command line key-value pairs passed to the
// kernel. Flags without a value map to themselves.
func GetBootCmdLine() map[string]string {
	cmdLineKV := make(map[string]string)

	for _, pair := range strings.Fields(cString(findTagByType(tagBootCmdLine))) {
		kv := strings.SplitN(pair, "=", 2)
		switch len(kv) {
		case 2: // foo=bar
			cmdLineKV[kv[0]] = kv[1]
		case 1: // nofoo
			cmdLineKV[kv[0]] = kv[0]
		}
	}

	return cmdLineKV
}

// GetBootLoaderName returns the name of the boot loader that started the
// kernel or an empty string if it did not provide one.
func GetBootLoaderName() string {
	return cString(findTagByType(tagBootLoaderName))
}

// cString converts a NULL-terminated byte sequence into a string.
func cString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// findTagByType scans the multiboot info data looking for a tag of the
// specified type and returns its contents, excluding the tag header. If the
// tag is not present findTagByType returns nil.
func findTagByType(tagType tagType) []byte {
	if len(infoData) < infoHeaderSize {
		return nil
	}

	totalSize := *(*uint32)(unsafe.Pointer(&infoData[0]))
	if int(totalSize) < len(infoData) {
		infoData = infoData[:totalSize]
	}

	for offset := infoHeaderSize; offset+tagHeaderSize <= len(infoData); {
		hdr := (*tagHeader)(unsafe.Pointer(&infoData[offset]))
		if hdr.tagType == tagMbSectionEnd || hdr.size < tagHeaderSize || offset+int(hdr.size) > len(infoData) {
			break
		}

		if hdr.tagType == tagType {
			return infoData[offset+tagHeaderSize : offset+int(hdr.size)]
		}

		// Tags are aligned at 8-byte aligned addresses
		offset += int((hdr.size + 7) &^ 7)
	}

	return nil
}
