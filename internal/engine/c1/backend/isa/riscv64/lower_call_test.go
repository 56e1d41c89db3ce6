package riscv64

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

func TestCompile_Throw(t *testing.T) {
	for _, tc := range []struct {
		name    string
		hasFPU  bool
		handler backend.RuntimeEntry
	}{
		{name: "fpu", hasFPU: true, handler: backend.EntryHandleException},
		{name: "no fpu", hasFPU: false, handler: backend.EntryHandleExceptionNoFPU},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			info := &backend.CodeEmitInfo{Live: []backend.Operand{objReg(x11)}}
			prog := backend.NewProgram("throw", 32)
			prog.HasFPU = tc.hasFPU
			prog.Append(&backend.Instruction{Op: backend.OpThrow, In: []backend.Operand{longReg(exceptionPCReg), objReg(exceptionOopReg)}, Info: info})
			cm := compile(t, be, prog)

			require.Len(t, cm.DebugSites, 1)
			site := cm.DebugSites[0]
			require.Equal(t, []backend.Location{backend.RegLocation(x10), backend.RegLocation(x11)}, site.OopMap.Oops(),
				"the exception is live at the throw")

			s := newSim(t)
			s.install(cm.CodeBlob)
			other := tc.handler
			if other == backend.EntryHandleException {
				other = backend.EntryHandleExceptionNoFPU
			} else {
				other = backend.EntryHandleException
			}
			s.hookEntry(be.Runtime(), other, func(*sim) bool {
				t.Fatalf("reached %v", other)
				return false
			})
			s.stopAt(be.Runtime(), tc.handler)
			const exception = simHeap + 0x40
			s.setReg(x10, exception)
			s.call(cm.EntryAddress(EntryVerified))

			require.Equal(t, be.Runtime().Address(tc.handler), s.stoppedAt)
			require.Equal(t, cm.Base+uint64(site.Offset), s.reg(x13), "x13 holds the pc of the throw")
			require.Equal(t, uint64(exception), s.reg(x10))
		})
	}
}

func TestCompile_UnwindSynchronized(t *testing.T) {
	const frameSize, monitorOffset = 64, 16
	const exception = simHeap + 0x40
	lockSlot := uint64(simStackTop - frameSize + monitorOffset)
	displacedAt := lockSlot + uint64(c1api.BasicLockDisplacedHeaderOffset.I64())
	for _, tc := range []struct {
		name         string
		synchronized bool
		fastLocking  bool
		mark         uint64
		displaced    uint64
		exits        int
		after        uint64
	}{
		{name: "not synchronized", mark: lockSlot, displaced: c1api.MarkUnlockedValue, after: lockSlot},
		{
			name: "stack locked", synchronized: true, fastLocking: true,
			mark: lockSlot, displaced: c1api.MarkUnlockedValue, after: c1api.MarkUnlockedValue,
		},
		{
			name: "recursive", synchronized: true, fastLocking: true,
			mark: lockSlot + 32, displaced: 0, after: lockSlot + 32,
		},
		{
			name: "inflated", synchronized: true, fastLocking: true,
			mark: 0x6000_0002, displaced: c1api.MarkUnlockedValue, exits: 1, after: c1api.MarkUnlockedValue,
		},
		{
			name: "without fast locking", synchronized: true,
			mark: lockSlot, displaced: c1api.MarkUnlockedValue, exits: 1, after: c1api.MarkUnlockedValue,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, func(o *backend.Options) { o.UseFastLocking = tc.fastLocking })
			prog := backend.NewProgram("unwind", frameSize)
			prog.Synchronized = tc.synchronized
			prog.MonitorOffset = monitorOffset
			prog.Append(&backend.Instruction{Op: backend.OpUnwind, In: []backend.Operand{objReg(exceptionOopReg)}})
			cm := compile(t, be, prog)

			s := newSim(t)
			s.install(cm.CodeBlob)
			obj := uint64(simHeap + 0x10_0000)
			s.store64(obj, tc.mark)
			s.store64(displacedAt, tc.displaced)
			s.store64(lockSlot+lockSlotObjOffset, obj)

			var exits int
			s.hookEntry(be.Runtime(), backend.EntryMonitorExit, func(s *sim) bool {
				exits++
				require.Equal(t, lockSlot, s.load64(s.reg(sp)))
				s.store64(obj, c1api.MarkUnlockedValue)
				// The runtime may clobber the result register.
				s.setReg(x10, 0)
				return true
			})
			s.stopAt(be.Runtime(), backend.EntryUnwindException)
			s.setReg(x10, exception)
			s.call(cm.EntryAddress(EntryVerified))

			require.Equal(t, be.Runtime().Address(backend.EntryUnwindException), s.stoppedAt)
			require.Equal(t, tc.exits, exits)
			require.Equal(t, tc.after, s.load64(obj))
			require.Equal(t, uint64(exception), s.reg(x10), "the exception survives the unlock")
			require.Equal(t, uint64(simStackTop), s.reg(sp), "the frame is popped")
			require.Equal(t, uint64(simHalt), s.reg(ra))
		})
	}
}

func TestCompile_Cmove(t *testing.T) {
	neg := func(v int64) uint64 { return uint64(v) }
	for _, tc := range []struct {
		name            string
		cond            backend.Condition
		left, right     backend.Operand
		ifTrue, ifFalse backend.Operand
		a, b            uint64
		exp             uint64
	}{
		{name: "lt taken", cond: backend.CondLess, left: intReg(x11), right: intReg(x12), ifTrue: intReg(x13), ifFalse: intReg(x14), a: neg(-1), b: 0, exp: 13},
		{name: "lt not taken", cond: backend.CondLess, left: intReg(x11), right: intReg(x12), ifTrue: intReg(x13), ifFalse: intReg(x14), a: 0, b: 0, exp: 14},
		{name: "le equal", cond: backend.CondLessEqual, left: intReg(x11), right: intReg(x12), ifTrue: intReg(x13), ifFalse: intReg(x14), a: 3, b: 3, exp: 13},
		{name: "gt", cond: backend.CondGreater, left: intReg(x11), right: intReg(x12), ifTrue: intReg(x13), ifFalse: intReg(x14), a: 3, b: neg(-3), exp: 13},
		{name: "be unsigned", cond: backend.CondBelowEqual, left: intReg(x11), right: intReg(x12), ifTrue: intReg(x13), ifFalse: intReg(x14), a: neg(-1), b: 1, exp: 14},
		{
			name: "constant operands", cond: backend.CondEqual, left: intReg(x11), right: backend.IntConst(5),
			ifTrue: backend.IntConst(1), ifFalse: backend.IntConst(0), a: 5, exp: 1,
		},
		{
			name: "constant operands false", cond: backend.CondEqual, left: intReg(x11), right: backend.IntConst(5),
			ifTrue: backend.IntConst(1), ifFalse: backend.IntConst(0), a: 6, exp: 0,
		},
		{
			name: "long", cond: backend.CondNotEqual, left: longReg(x11), right: longReg(x12), ifTrue: longReg(x13), ifFalse: backend.LongConst(-7),
			a: 1 << 40, b: 1 << 40, exp: neg(-7),
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			prog := backend.NewProgram("cmove", 32)
			prog.Append(&backend.Instruction{
				Op: backend.OpCmove, Cond: tc.cond,
				In:     []backend.Operand{tc.left, tc.right, tc.ifTrue, tc.ifFalse},
				Result: backend.RegisterOperand(x10, tc.ifTrue.Type()),
			})
			prog.Return(backend.RegisterOperand(x10, tc.ifTrue.Type()))
			cm := compile(t, be, prog)

			s := newSim(t)
			s.install(cm.CodeBlob)
			s.setReg(x11, tc.a)
			s.setReg(x12, tc.b)
			s.setReg(x13, 13)
			s.setReg(x14, 14)
			s.call(cm.EntryAddress(EntryVerified))
			require.Equal(t, tc.exp, s.reg(x10))
		})
	}
}

func TestCompile_CmoveOnFloats(t *testing.T) {
	nan := math.NaN()
	be := newTestBackend(t, nil)
	for _, unorderedIsTrue := range []bool{false, true} {
		prog := backend.NewProgram("fcmove", 32)
		prog.Append(&backend.Instruction{
			Op: backend.OpCmove, Cond: backend.CondLess, UnorderedIsTrue: unorderedIsTrue,
			In:     []backend.Operand{dblReg(f10), dblReg(f11), backend.IntConst(1), backend.IntConst(2)},
			Result: intReg(x10),
		})
		prog.Return(intReg(x10))
		cm := compile(t, be, prog)

		for _, p := range [][2]float64{{1, 2}, {2, 1}, {nan, 1}} {
			s := newSim(t)
			s.install(cm.CodeBlob)
			s.setF64(f10, p[0])
			s.setF64(f11, p[1])
			s.call(cm.EntryAddress(EntryVerified))

			exp := p[0] < p[1]
			if math.IsNaN(p[0]) {
				exp = unorderedIsTrue
			}
			want := uint64(2)
			if exp {
				want = 1
			}
			require.Equal(t, want, s.reg(x10), "%v < %v unordered_is_true=%v", p[0], p[1], unorderedIsTrue)
		}
	}
}

func TestCompile_CallTrampoline(t *testing.T) {
	for _, tc := range []struct {
		name       string
		target     uint64
		trampoline bool
	}{
		{name: "forward in reach", target: simCode + 0x8_0000},
		{name: "backward in reach", target: simCode - 0x8_0000},
		{name: "just beyond jal", target: simCode + 0x10_0000 + 0x1000, trampoline: true},
		{name: "far away", target: 0x7f00_0000_0000, trampoline: true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			info := &backend.CodeEmitInfo{Live: []backend.Operand{objReg(x11)}}
			prog := backend.NewProgram("caller", 32)
			prog.Append(&backend.Instruction{Op: backend.OpCall, Call: &backend.CallInfo{Target: tc.target}, Info: info})
			prog.Op2(backend.OpAdd, intReg(x10), backend.IntConst(1), intReg(x10), nil)
			prog.Return(intReg(x10))
			cm := compile(t, be, prog)

			require.Len(t, cm.DebugSites, 1)
			ret := cm.Base + uint64(cm.DebugSites[0].Offset)
			var trampolines int
			for _, st := range cm.Stubs {
				if st.Name == "trampoline_stub" {
					trampolines++
				}
			}
			require.Equal(t, b2u(tc.trampoline), uint64(trampolines))
			w := words(cm.Code[cm.DebugSites[0].Offset-4:])[0]
			in, ok := Decode(w)
			require.True(t, ok)
			require.Equal(t, opJAL, in.Op, "the call is a single jal")

			s := newSim(t)
			s.install(cm.CodeBlob)
			var calls int
			s.hook(tc.target, func(s *sim) bool {
				calls++
				require.Equal(t, ret, s.reg(ra), "the callee returns to the debug site")
				s.setReg(x10, 41)
				return true
			})
			s.call(cm.EntryAddress(EntryVerified))
			require.Equal(t, 1, calls)
			require.Equal(t, uint64(42), s.reg(x10))
		})
	}
}
