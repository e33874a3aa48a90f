package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling (sti).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling (cli).
func DisableInterrupts()

// Halt disables interrupts and stops instruction execution. Halt never
// returns.
func Halt()

// WaitForInterrupt suspends execution until the next interrupt arrives.
func WaitForInterrupt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// LoadGDT loads the 10-byte descriptor table pointer stored at ptr into GDTR,
// reloads CS with codeSel via a far return and reloads DS, ES and SS with
// dataSel. FS and GS are left alone as the Go runtime keeps its TLS base there.
func LoadGDT(ptr uintptr, codeSel, dataSel uint16)

// LoadIDT loads the 10-byte descriptor table pointer stored at ptr into IDTR.
func LoadIDT(ptr uintptr)

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Vendor returns the 12-character CPU vendor string reported by CPUID leaf 0.
func Vendor() [12]byte {
	var (
		vendor        [12]byte
		_, b, c, d    = cpuidFn(0)
		vendorSources = [3]uint32{b, d, c}
	)

	for i, reg := range vendorSources {
		for j := 0; j < 4; j++ {
			vendor[i*4+j] = byte(reg >> (uint(j) * 8))
		}
	}

	return vendor
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
