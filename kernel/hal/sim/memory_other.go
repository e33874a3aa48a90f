//go:build !linux

package sim

func allocArena(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func freeArena([]byte) error {
	return nil
}
