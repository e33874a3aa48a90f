package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error and compared by identity; code that runs before the Go
// allocator is usable cannot rely on errors.New.
type Error struct {
	// The subsystem that reported the error (e.g. "pmm" or "vmm").
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Module == "" {
		return e.Message
	}

	return e.Module + ": " + e.Message
}
