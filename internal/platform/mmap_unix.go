//go:build unix

package platform

import "syscall"

func mmapCodeSegment(size int) ([]byte, error) {
	// The code cache is never shared with another process and has no file.
	return syscall.Mmap(-1, 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_ANON|syscall.MAP_PRIVATE)
}

func munmapCodeSegment(code []byte) error {
	return syscall.Munmap(code)
}
