package codecache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/platform"
)

// Memory is an Installer keeping the code in a mapping of the whole code
// cache, so that installed code can be read back at its address.
type Memory struct {
	base uint64

	mu     sync.RWMutex
	seg    []byte
	mapped bool
}

// NewMemory maps size bytes standing for [base, base+size). It falls back
// to the Go heap where anonymous mappings are not supported.
func NewMemory(base uint64, size int) (*Memory, error) {
	seg, err := platform.MmapCodeSegment(size)
	switch {
	case errors.Is(err, platform.ErrUnsupported):
		return &Memory{base: base, seg: make([]byte, size)}, nil
	case err != nil:
		return nil, fmt.Errorf("mapping %d bytes of code cache: %w", size, err)
	}
	return &Memory{base: base, seg: seg, mapped: true}, nil
}

func (m *Memory) offset(addr uint64, n int) (int, error) {
	if m.seg == nil {
		return 0, errors.New("code cache memory is closed")
	}
	if addr < m.base || addr-m.base+uint64(n) > uint64(len(m.seg)) {
		return 0, fmt.Errorf("range %#x+%d is outside of the code cache", addr, n)
	}
	return int(addr - m.base), nil
}

// Install implements Installer.Install.
func (m *Memory) Install(addr uint64, code []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	off, err := m.offset(addr, len(code))
	if err != nil {
		return err
	}
	copy(m.seg[off:], code)
	return nil
}

// Read returns a copy of the n bytes at addr.
func (m *Memory) Read(addr uint64, n int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	off, err := m.offset(addr, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), m.seg[off:off+n]...), nil
}

// Close releases the memory. Installed code is gone afterwards.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seg, mapped := m.seg, m.mapped
	m.seg = nil
	if seg == nil || !mapped {
		return nil
	}
	return platform.MunmapCodeSegment(seg)
}
