package kernel

// Memset sets every byte of buf to value. Instead of a byte-by-byte loop it
// seeds the first byte and then doubles the initialized prefix with copy,
// needing only log2(len(buf)) copy calls for a page-sized buffer.
func Memset(buf []byte, value byte) {
	if len(buf) == 0 {
		return
	}

	buf[0] = value
	for index := 1; index < len(buf); index *= 2 {
		copy(buf[index:], buf[:index])
	}
}

// Memcopy copies min(len(dst), len(src)) bytes from src to dst and returns
// the number of bytes copied.
func Memcopy(dst, src []byte) int {
	return copy(dst, src)
}
