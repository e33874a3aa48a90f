// Package device defines the contract between the kernel and its device
// drivers together with a registry that drivers add their probe functions
// to.
package device

import (
	"io"

	"github.com/Comicwolfy/Core-Kernel/kernel"
	"github.com/Comicwolfy/Core-Kernel/kernel/hal"
	"github.com/Comicwolfy/Core-Kernel/kernel/irq"
	"github.com/Comicwolfy/Core-Kernel/kernel/mm"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprint.
	DriverInit(io.Writer) *kernel.Error
}

// IRQRegistrar is implemented by the interrupt dispatcher.
type IRQRegistrar interface {
	HandleIRQ(line uint8, h irq.IRQHandler) *kernel.Error
}

// Env gives probe functions and drivers access to the hardware.
type Env struct {
	// Ports is used for port-mapped I/O.
	Ports hal.PortIO

	// Memory provides access to memory-mapped device buffers.
	Memory mm.PhysicalMemory

	// IRQ registers interrupt handlers.
	IRQ IRQRegistrar

	// TimerHz is the requested system timer frequency.
	TimerHz uint32
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it or nil if the hardware is
// not present.
type ProbeFn func(env *Env) Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hal package.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver's probe function should
	// be executed at the beginning of the HW detection phase. It is used
	// by the drivers that provide kernel output.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderNormal is the default detection order.
	DetectOrderNormal DetectOrder = 0

	// DetectOrderLast specifies that the driver's probe function should
	// be executed at the end of the HW detection phase.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo is a driver-defined struct that is passed to calls to RegisterDriver.
type DriverInfo struct {
	// Order specifies at which stage of the HW detection step should
	// the probe function be invoked.
	Order DetectOrder

	// Probe is a function that checks whether the device is present and
	// returns back a Driver instance for it.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var (
	// registeredDrivers tracks the drivers registered via a call to
	// RegisterDriver.
	registeredDrivers DriverInfoList
)

// RegisterDriver adds the supplied driver info object to the list of registered
// drivers. The list can be retrieved by calling DriverList().
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
