package asm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
)

func TestCodeBufferEmit(t *testing.T) {
	buf := asm.NewCodeBuffer("test", 0x1000, 16)
	require.Equal(t, 0, buf.Offset())
	require.Equal(t, uintptr(0x1000), buf.PC())
	require.Equal(t, 16, buf.Remaining())

	buf.Emit4Bytes(0x00000013)
	buf.Emit4Bytes(0xdeadbeef)
	require.Equal(t, 8, buf.Offset())
	require.Equal(t, uintptr(0x1008), buf.PC())
	require.Equal(t, []byte{0x13, 0, 0, 0, 0xef, 0xbe, 0xad, 0xde}, buf.Bytes())
	require.Equal(t, uint32(0xdeadbeef), buf.Uint32At(4))

	buf.PatchUint32(4, 0x12345678)
	require.Equal(t, uint32(0x12345678), buf.Uint32At(4))
	require.False(t, buf.Failed())
}

func TestCodeBufferOverflowIsSticky(t *testing.T) {
	buf := asm.NewCodeBuffer("small", 0, 8)
	buf.Emit4Bytes(1)
	buf.Emit8Bytes(2)
	require.True(t, buf.Failed())
	require.Equal(t, asm.ReasonCodeOverflow, buf.FailureReason())
	require.Equal(t, 4, buf.Offset())

	// A later write which would fit is still dropped.
	buf.Emit4Bytes(3)
	require.Equal(t, 4, buf.Offset())

	buf.Fail(asm.ReasonStubOverflow)
	require.Equal(t, asm.ReasonCodeOverflow, buf.FailureReason())

	buf.Reset()
	require.False(t, buf.Failed())
	require.Equal(t, 0, buf.Offset())
}

func TestCodeBufferStubs(t *testing.T) {
	buf := asm.NewCodeBuffer("stubs", 0, 64)
	buf.Emit4Bytes(1)
	buf.Emit4Bytes(2)

	require.True(t, buf.StartStub("exception handler", 16))
	require.True(t, buf.InStub())
	buf.Emit4Bytes(3)
	buf.EndStub()
	require.False(t, buf.InStub())

	require.True(t, buf.StartStub("deopt handler", 8))
	buf.Emit4Bytes(4)
	buf.Emit4Bytes(5)
	buf.EndStub()

	require.Equal(t, 8, buf.MainSize())
	require.Equal(t, []asm.StubRange{
		{Name: "exception handler", Begin: 8, End: 12},
		{Name: "deopt handler", Begin: 12, End: 20},
	}, buf.Stubs())

	require.False(t, buf.StartStub("too big", 1024))
	require.True(t, buf.Failed())
	require.Equal(t, asm.ReasonStubOverflow, buf.FailureReason())
}

func TestCodeBufferNestedStubPanics(t *testing.T) {
	buf := asm.NewCodeBuffer("nested", 0, 64)
	require.True(t, buf.StartStub("outer", 4))
	require.Panics(t, func() { buf.StartStub("inner", 4) })
}

func TestLabel(t *testing.T) {
	var l asm.Label
	require.False(t, l.IsBound())
	require.False(t, l.HasPendingUses())

	l.AddUse(4, 1)
	l.AddUse(12, 2)
	require.True(t, l.HasPendingUses())

	uses := l.Bind(32)
	require.Equal(t, []asm.LabelUse{{Offset: 4, Kind: 1}, {Offset: 12, Kind: 2}}, uses)
	require.True(t, l.IsBound())
	require.Equal(t, 32, l.Position())
	require.False(t, l.HasPendingUses())
	require.Panics(t, func() { l.Bind(40) })
}
