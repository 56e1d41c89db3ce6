// Package platform maps the memory backing the code cache.
//
// Note: This is a dependency-free alternative to depending on parts of Go's x/sys.
package platform

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned where anonymous mappings are not available.
var ErrUnsupported = errors.New("mmap unsupported on this platform")

// MmapCodeSegment returns a zeroed, writable region of size bytes. The
// region is not executable: the code it holds targets riscv64 and is only
// ever read back, by simulators or by whatever loads it into a VM.
//
// See https://man7.org/linux/man-pages/man2/mmap.2.html for mmap API and flags.
func MmapCodeSegment(size int) ([]byte, error) {
	if size <= 0 {
		panic(fmt.Sprintf("BUG: MmapCodeSegment with size %d", size))
	}
	return mmapCodeSegment(size)
}

// MunmapCodeSegment unmaps a region returned by MmapCodeSegment.
func MunmapCodeSegment(code []byte) error {
	if len(code) == 0 {
		panic(errors.New("BUG: MunmapCodeSegment with zero length"))
	}
	return munmapCodeSegment(code)
}
