package backend

import "fmt"

// Options are the VM flags which change the shape of generated code. They are
// fixed for the lifetime of a process.
type Options struct {
	// CompressedOops stores references as 32-bit values: (addr - OopBase) >> OopShift.
	CompressedOops bool
	OopShift       uint8
	OopBase        uint64
	// CompressedClassPointers stores type descriptor pointers in 32 bits: (addr - KlassBase) >> KlassShift.
	CompressedClassPointers bool
	KlassShift              uint8
	KlassBase               uint64
	// UseTLAB enables inline bump pointer allocation.
	UseTLAB bool
	// UseFastLocking enables the inline compare-and-swap lock paths.
	UseFastLocking bool
	// TypeProfileWidth is the number of receiver rows in type profiles.
	TypeProfileWidth int
	// ProfileTypes enables type check profiling.
	ProfileTypes bool
	PageSize     int
	// CodeBufferSize and StubBufferSize size the buffers of one generation unit.
	CodeBufferSize, StubBufferSize int
}

// DefaultOptions returns the options of a default configured VM.
func DefaultOptions() Options {
	return Options{
		CompressedOops:          true,
		OopShift:                3,
		CompressedClassPointers: true,
		UseTLAB:                 true,
		UseFastLocking:          true,
		TypeProfileWidth:        2,
		ProfileTypes:            true,
		PageSize:                4096,
		CodeBufferSize:          64 << 10,
		StubBufferSize:          4 << 10,
	}
}

// Validate returns an error for inconsistent options.
func (o *Options) Validate() error {
	switch {
	case o.OopShift > 3:
		return fmt.Errorf("compressed oop shift %d exceeds 3", o.OopShift)
	case o.KlassShift > 3:
		return fmt.Errorf("compressed klass shift %d exceeds 3", o.KlassShift)
	case o.CompressedClassPointers && !o.CompressedOops:
		return fmt.Errorf("compressed class pointers require compressed oops")
	case o.PageSize <= 0 || o.PageSize&(o.PageSize-1) != 0:
		return fmt.Errorf("page size %d is not a power of two", o.PageSize)
	case o.TypeProfileWidth < 0 || o.TypeProfileWidth > 8:
		return fmt.Errorf("type profile width %d out of range [0, 8]", o.TypeProfileWidth)
	case o.CodeBufferSize <= 0 || o.StubBufferSize <= 0:
		return fmt.Errorf("buffer sizes must be positive")
	}
	return nil
}

// HeapOopSize returns the size in bytes of a reference field.
func (o *Options) HeapOopSize() int {
	if o.CompressedOops {
		return 4
	}
	return 8
}
