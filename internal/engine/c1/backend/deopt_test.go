package backend

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

var testShape = &InterpreterFrameShape{
	SenderSP: -1, LastSP: -2, Method: -3, Mirror: -4, MDP: -5, Cache: -6, Locals: -7, BCP: -8, InitialSP: -9,
	SenderSPFromFP: 2,
	MonitorWords:   2,
}

func twoLevelScope() *ScopeDesc {
	outer := &MethodInfo{Name: "outer", Address: 0x5000, CodeBase: 0x6000, MaxLocals: 4, MaxStack: 3, SizeOfParameters: 2}
	inner := &MethodInfo{Name: "inner", Address: 0x5100, CodeBase: 0x6100, MaxLocals: 3, MaxStack: 2, SizeOfParameters: 1}
	return &ScopeDesc{
		Method: inner,
		BCI:    4,
		Locals: []ScopeValue{
			LocationValue(KindInt, RegLocation(IntReg(10))),
			LocationValue(KindLong, StackLocation(8)), VoidValue,
		},
		Expressions: []ScopeValue{ConstantValue(KindInt, 7)},
		Caller: &ScopeDesc{
			Method: outer,
			BCI:    17,
			Locals: []ScopeValue{
				LocationValue(KindObject, RegLocation(IntReg(11))),
				ConstantValue(KindInt, 5),
			},
			Monitors: []MonitorValue{{
				Owner:     LocationValue(KindObject, RegLocation(IntReg(11))),
				BasicLock: StackLocation(12),
			}},
		},
	}
}

func TestBuildUnrollBlock(t *testing.T) {
	u, err := BuildUnrollBlock(&DeoptRequest{
		Scope:               twoLevelScope(),
		Kind:                UnpackDeopt,
		CompiledFrameSize:   64,
		CallerPC:            0xc0ffee,
		InterpreterReturnPC: 0x1111,
		ContinuationPC:      0x2222,
	}, testShape)
	require.NoError(t, err)

	require.Equal(t, 2, u.NumberOfFrames())
	// inner: 11 + 2 = 13 words, aligned to 14.
	// outer: 11 + 2 (monitor) + 3 + 3 (inner's locals) = 19 words, aligned to 20.
	require.Equal(t, []int64{160, 112}, u.FrameSizes)
	require.Equal(t, int64(272), u.TotalFrameSizes())
	require.Equal(t, []uint64{0xc0ffee, 0x1111, 0x2222}, u.FramePCs)
	require.Equal(t, 16, u.CallerAdjustment)
	require.Equal(t, 64, u.SizeOfDeoptimizedFrame)

	require.Equal(t, []ScopeValue{
		LocationValue(KindInt, RegLocation(IntReg(10))),
		LocationValue(KindLong, StackLocation(8)),
		ConstantValue(KindInt, 7),
		LocationValue(KindObject, RegLocation(IntReg(11))),
		ConstantValue(KindInt, 5),
		LocationValue(KindAddress, StackLocation(12)),
		LocationValue(KindObject, RegLocation(IntReg(11))),
	}, u.Values)

	require.Len(t, u.Frames, 2)
	inner := u.Frames[0]
	require.Equal(t, "inner", inner.Method.Name)
	require.Equal(t, 112, inner.Size)

	byOffset := map[int64]SlotSource{}
	for _, s := range inner.Stores {
		byOffset[s.Offset] = s.Source
	}
	require.Equal(t, SlotSource{Kind: SourceConst, Bits: 0x5100}, byOffset[-3*8])
	require.Equal(t, SlotSource{Kind: SourceConst, Bits: 0x6104}, byOffset[-8*8])
	// Locals pointer: fp + 16 + (3-1)*8.
	require.Equal(t, SlotSource{Kind: SourceFrameAddress, Bits: 32}, byOffset[-7*8])
	// No monitors: the monitor top is the monitor bottom.
	require.Equal(t, SlotSource{Kind: SourceFrameAddress, Bits: -72}, byOffset[-9*8])
	// local 0 at the locals pointer, the long of local 1 in the slot of local 2.
	require.Equal(t, SlotSource{Kind: SourceValue, Value: 0}, byOffset[32])
	require.Equal(t, SlotSource{Kind: SourceValue, Value: 1}, byOffset[16])
	// Expression 0 right below the monitor top.
	require.Equal(t, SlotSource{Kind: SourceValue, Value: 2}, byOffset[-80])

	outer := u.Frames[1]
	byOffset = map[int64]SlotSource{}
	for _, s := range outer.Stores {
		byOffset[s.Offset] = s.Source
	}
	require.Equal(t, SlotSource{Kind: SourceFrameAddress, Bits: -88}, byOffset[-9*8])
	require.Equal(t, SlotSource{Kind: SourceValue, Value: 5}, byOffset[-88])
	require.Equal(t, SlotSource{Kind: SourceValue, Value: 6}, byOffset[-80])
}

func TestBuildUnrollBlock_compiledCaller(t *testing.T) {
	u, err := BuildUnrollBlock(&DeoptRequest{Scope: twoLevelScope(), CompiledFrameSize: 32, CallerIsCompiled: true}, testShape)
	require.NoError(t, err)
	require.Equal(t, LastFrameAdjust(0, 4), u.CallerAdjustment)
	require.Equal(t, 32, u.CallerAdjustment)
}

func TestBuildUnrollBlock_errors(t *testing.T) {
	_, err := BuildUnrollBlock(&DeoptRequest{CompiledFrameSize: 32}, testShape)
	require.EqualError(t, err, "deoptimization without scope")

	_, err = BuildUnrollBlock(&DeoptRequest{Scope: twoLevelScope(), CompiledFrameSize: 24}, testShape)
	require.EqualError(t, err, "compiled frame size 24 is not aligned")

	s := twoLevelScope()
	s.Expressions = append(s.Expressions, ConstantValue(KindInt, 1), ConstantValue(KindInt, 2))
	_, err = BuildUnrollBlock(&DeoptRequest{Scope: s, CompiledFrameSize: 32}, testShape)
	require.EqualError(t, err, "inner: 3 expressions exceed max stack 2")

	s = twoLevelScope()
	s.Locals = []ScopeValue{LocationValue(KindLong, StackLocation(0))}
	_, err = BuildUnrollBlock(&DeoptRequest{Scope: s, CompiledFrameSize: 32}, testShape)
	require.EqualError(t, err, "inner: long at 0 is not followed by void")
}

func TestUnrollBlock_Encode(t *testing.T) {
	u, err := BuildUnrollBlock(&DeoptRequest{
		Scope: twoLevelScope(), Kind: UnpackReexecute, CompiledFrameSize: 64,
		CallerPC: 1, InterpreterReturnPC: 2, ContinuationPC: 3,
	}, testShape)
	require.NoError(t, err)

	const base = 0x10000
	img := u.Encode(base)
	le := binary.LittleEndian
	off := UnrollBlockOffsets
	require.Equal(t, uint32(64), le.Uint32(img[off.SizeOfDeoptimizedFrame:]))
	require.Equal(t, uint32(16), le.Uint32(img[off.CallerAdjustment:]))
	require.Equal(t, uint32(2), le.Uint32(img[off.NumberOfFrames:]))
	require.Equal(t, uint32(272), le.Uint32(img[off.TotalFrameSizes:]))
	require.Equal(t, uint32(UnpackReexecute), le.Uint32(img[off.UnpackKind:]))

	sizes := le.Uint64(img[off.FrameSizes:]) - base
	require.Equal(t, uint64(160), le.Uint64(img[sizes:]))
	require.Equal(t, uint64(112), le.Uint64(img[sizes+8:]))
	pcs := le.Uint64(img[off.FramePCs:]) - base
	require.Equal(t, uint64(3), le.Uint64(img[pcs+16:]))
	require.Equal(t, uint64(u.ValuesOffset()), le.Uint64(img[off.Values:])-base)
	require.Equal(t, u.ValuesOffset()+len(u.Values)*8, len(img))
}
