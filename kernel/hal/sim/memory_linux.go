package sim

import "golang.org/x/sys/unix"

// allocArena maps an anonymous private region the same way a hypervisor
// reserves guest RAM; pages are only committed when touched.
func allocArena(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
}

func freeArena(arena []byte) error {
	return unix.Munmap(arena)
}
