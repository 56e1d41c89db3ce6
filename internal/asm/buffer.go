package asm

import (
	"encoding/binary"
	"fmt"
)

// BailoutReason describes why a CodeBuffer stopped accepting writes.
type BailoutReason string

const (
	// ReasonCodeOverflow is recorded when the main instruction stream exceeds the buffer.
	ReasonCodeOverflow BailoutReason = "code buffer overflow"
	// ReasonStubOverflow is recorded when StartStub cannot reserve space for an auxiliary stub.
	ReasonStubOverflow BailoutReason = "stub buffer overflow"
)

// CodeBuffer is an append-only stream of machine code with a fixed capacity.
//
// The buffer never grows: once a write does not fit, the buffer records a
// bailout reason, drops that write and every later one, and Failed returns
// true. Code generators are expected to poll Failed at operation boundaries
// and abandon the generation unit, which is how running out of space stays a
// recoverable condition.
//
// Auxiliary stubs (exception handlers, call trampolines, out-of-line slow
// paths) are bracketed with StartStub/EndStub. They live in the same byte
// stream after the main instructions so that every offset handed out by the
// buffer stays valid without relocation.
type CodeBuffer struct {
	name     string
	base     uintptr
	code     []byte
	capacity int

	failed BailoutReason

	inStub    bool
	stubStart int
	stubs     []StubRange
	mainEnd   int
}

// StubRange is the [Begin, End) byte range of an auxiliary stub in the buffer.
type StubRange struct {
	Name       string
	Begin, End int
}

// NewCodeBuffer returns a buffer named name that can hold capacity bytes of code
// which will be installed at base. base may be zero when the final address is
// unknown, in which case PC-relative reachability checks are conservative.
func NewCodeBuffer(name string, base uintptr, capacity int) *CodeBuffer {
	return &CodeBuffer{name: name, base: base, capacity: capacity, code: make([]byte, 0, capacity), mainEnd: -1}
}

// Name returns the name given to NewCodeBuffer.
func (b *CodeBuffer) Name() string { return b.name }

// Base returns the address the code will be installed at.
func (b *CodeBuffer) Base() uintptr { return b.base }

// Offset returns the current write offset.
func (b *CodeBuffer) Offset() int { return len(b.code) }

// PC returns the absolute address of the current write offset.
func (b *CodeBuffer) PC() uintptr { return b.base + uintptr(len(b.code)) }

// Remaining returns the number of bytes that can still be written.
func (b *CodeBuffer) Remaining() int { return b.capacity - len(b.code) }

// Cap returns the total capacity.
func (b *CodeBuffer) Cap() int { return b.capacity }

// Failed returns true once a write did not fit.
func (b *CodeBuffer) Failed() bool { return b.failed != "" }

// FailureReason returns the reason recorded by the first failed write, or "".
func (b *CodeBuffer) FailureReason() BailoutReason { return b.failed }

// Fail records reason as a bailout. Only the first reason is kept.
func (b *CodeBuffer) Fail(reason BailoutReason) {
	if b.failed == "" {
		b.failed = reason
	}
}

// Bytes returns the code written so far. The slice is only valid until the next write.
func (b *CodeBuffer) Bytes() []byte { return b.code }

// MainSize returns the size of the main instruction stream, which is the
// offset of the first auxiliary stub or the full size when there are none.
func (b *CodeBuffer) MainSize() int {
	if b.mainEnd >= 0 {
		return b.mainEnd
	}
	return len(b.code)
}

// Stubs returns the auxiliary stub ranges in emission order.
func (b *CodeBuffer) Stubs() []StubRange { return b.stubs }

func (b *CodeBuffer) reserve(n int) bool {
	if b.failed != "" {
		return false
	}
	if len(b.code)+n > b.capacity {
		b.failed = ReasonCodeOverflow
		return false
	}
	return true
}

// Emit4Bytes appends a little-endian 32-bit word.
func (b *CodeBuffer) Emit4Bytes(u uint32) {
	if !b.reserve(4) {
		return
	}
	b.code = binary.LittleEndian.AppendUint32(b.code, u)
}

// Emit8Bytes appends a little-endian 64-bit word.
func (b *CodeBuffer) Emit8Bytes(u uint64) {
	if !b.reserve(8) {
		return
	}
	b.code = binary.LittleEndian.AppendUint64(b.code, u)
}

// Uint32At reads the word previously written at offset off.
func (b *CodeBuffer) Uint32At(off int) uint32 {
	return binary.LittleEndian.Uint32(b.code[off : off+4])
}

// PatchUint32 overwrites the word at offset off. Patching a dropped write is a no-op.
func (b *CodeBuffer) PatchUint32(off int, u uint32) {
	if off+4 > len(b.code) {
		return
	}
	binary.LittleEndian.PutUint32(b.code[off:off+4], u)
}

// StartStub opens an auxiliary stub expected to need at most size bytes.
// It returns false, and records a bailout, when the remaining space cannot
// hold the stub.
func (b *CodeBuffer) StartStub(name string, size int) bool {
	if b.inStub {
		panic(fmt.Sprintf("BUG: nested stub %q in %s", name, b.name))
	}
	if b.failed != "" {
		return false
	}
	if b.Remaining() < size {
		b.failed = ReasonStubOverflow
		return false
	}
	if b.mainEnd < 0 {
		b.mainEnd = len(b.code)
	}
	b.inStub = true
	b.stubStart = len(b.code)
	b.stubs = append(b.stubs, StubRange{Name: name, Begin: len(b.code)})
	return true
}

// EndStub closes the stub opened by StartStub.
func (b *CodeBuffer) EndStub() {
	if !b.inStub {
		panic("BUG: EndStub without StartStub in " + b.name)
	}
	b.inStub = false
	b.stubs[len(b.stubs)-1].End = len(b.code)
}

// InStub returns true between StartStub and EndStub.
func (b *CodeBuffer) InStub() bool { return b.inStub }

// Reset clears the buffer so it can be reused for another generation unit.
func (b *CodeBuffer) Reset() {
	b.code = b.code[:0]
	b.failed = ""
	b.inStub = false
	b.stubs = b.stubs[:0]
	b.mainEnd = -1
}
