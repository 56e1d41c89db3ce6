package riscv64

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// Addresses of code the generated stubs jump to.
const (
	simCompiledEntry    = 0x60_0000
	simInterpreterEntry = 0x60_1000
	simNativeEntry      = 0x60_2000
	simMethod           = simHeap + 0x500
	simEsp              = simStackTop - 0x1000
)

func (s *sim) writeMethod(fromCompiled, code uint64) {
	mo := c1api.MethodOffsets
	s.store64(simMethod+uint64(mo.FromCompiled.I64()), fromCompiled)
	s.store64(simMethod+uint64(mo.InterpreterEntry.I64()), simInterpreterEntry)
	s.store64(simMethod+uint64(mo.Code.I64()), code)
}

// pushInterpreterArgs lays out the expanded arguments on the interpreter
// expression stack at simEsp.
func (s *sim) pushInterpreterArgs(kinds []backend.ValueKind, values []uint64) {
	for i, k := range kinds {
		if k != backend.KindVoid {
			s.store64(simEsp+uint64(interpreterArgOffset(kinds, i)), values[i])
		}
	}
	s.setReg(esp, simEsp)
}

func testArgValues(kinds []backend.ValueKind) []uint64 {
	values := make([]uint64, len(kinds))
	for i, k := range kinds {
		switch k {
		case backend.KindInt:
			values[i] = sext32(uint32(0x8000_0000 + i))
		case backend.KindLong:
			values[i] = 0x1122_3344_5566_7700 + uint64(i)
		case backend.KindFloat:
			values[i] = 0xbad0_0000_0000_0000 | uint64(math.Float32bits(float32(i)+0.5))
		case backend.KindDouble:
			values[i] = math.Float64bits(float64(i) + 0.25)
		case backend.KindObject:
			values[i] = simHeap + 0x10_0000 + uint64(i)*0x40
		}
	}
	return values
}

// requireArgsInConvention checks that every argument is where the managed
// convention puts it, stack arguments being relative to sp.
func (s *sim) requireArgsInConvention(kinds []backend.ValueKind, values []uint64) {
	locs, _ := JavaConvention.MapKinds(kinds, backend.DirectionOutgoing)
	for i, k := range kinds {
		if k == backend.KindVoid {
			continue
		}
		l := locs[i]
		var got uint64
		if l.IsReg() {
			got = s.reg(l.Reg)
		} else {
			got = s.load64(s.reg(sp) + uint64(l.ByteOffset()))
		}
		exp := values[i]
		if k == backend.KindFloat {
			got, exp = uint64(uint32(got)), uint64(uint32(exp))
		}
		require.Equal(s.t, exp, got, "argument %d (%s) in %s", i, k, l)
	}
}

func TestAdapters_I2C(t *testing.T) {
	for _, tc := range []struct {
		name string
		sig  *backend.Signature
	}{
		{name: "registers", sig: backend.NewSignature(backend.KindVoid, backend.KindInt, backend.KindLong, backend.KindFloat, backend.KindDouble, backend.KindObject)},
		{name: "stack", sig: backend.NewSignature(backend.KindInt,
			backend.KindInt, backend.KindInt, backend.KindInt, backend.KindInt, backend.KindInt,
			backend.KindInt, backend.KindInt, backend.KindInt, backend.KindLong, backend.KindInt, backend.KindDouble)},
		{name: "no arguments", sig: backend.NewSignature(backend.KindVoid)},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			blob, err := be.GenerateAdapters(tc.sig, simCode)
			require.NoError(t, err)

			kinds := tc.sig.Expanded()
			values := testArgValues(kinds)
			s := newSim(t)
			s.install(blob)
			s.writeMethod(simCompiledEntry, 0)
			s.pushInterpreterArgs(kinds, values)
			s.setReg(xmethod, simMethod)
			var reached bool
			s.hook(simCompiledEntry, func(s *sim) bool {
				reached = true
				s.requireArgsInConvention(kinds, values)
				require.Zero(t, s.reg(sp)%backend.StackAlignment)
				require.Equal(t, uint64(simMethod), s.reg(xmethod))
				require.Equal(t, uint64(simMethod), s.load64(simThread+uint64(c1api.ThreadOffsets.CalleeTarget.I64())))
				return false
			})
			s.call(blob.EntryAddress(EntryI2C))
			require.True(t, reached)
		})
	}
}

func TestAdapters_RoundTrip(t *testing.T) {
	sig := backend.NewSignature(backend.KindVoid,
		backend.KindInt, backend.KindLong, backend.KindFloat, backend.KindDouble, backend.KindObject,
		backend.KindInt, backend.KindInt, backend.KindInt, backend.KindInt, backend.KindInt, backend.KindInt,
		backend.KindFloat)
	be := newTestBackend(t, nil)
	blob, err := be.GenerateAdapters(sig, simCode)
	require.NoError(t, err)

	kinds := sig.Expanded()
	values := testArgValues(kinds)
	s := newSim(t)
	s.install(blob)
	// The compiled code of the callee is the c2i adapter: the call comes
	// back into the interpreter.
	s.writeMethod(blob.EntryAddress(EntryC2I), 0)
	s.pushInterpreterArgs(kinds, values)
	s.setReg(xmethod, simMethod)

	var reached bool
	s.hook(simInterpreterEntry, func(s *sim) bool {
		reached = true
		require.Equal(t, uint64(simMethod), s.reg(xmethod))
		e := s.reg(esp)
		require.Equal(t, s.reg(sp), e)
		require.Greater(t, s.reg(senderSP), e)
		for i, k := range kinds {
			if k == backend.KindVoid {
				continue
			}
			off := uint64(interpreterArgOffset(kinds, i))
			got, exp := s.load64(e+off), values[i]
			if k == backend.KindFloat {
				got, exp = uint64(uint32(got)), uint64(uint32(exp))
			}
			require.Equal(t, exp, got, "argument %d (%s)", i, k)
		}
		return false
	})
	s.call(blob.EntryAddress(EntryI2C))
	require.True(t, reached)
}

func TestAdapters_C2IFixesUpCallers(t *testing.T) {
	sig := backend.NewSignature(backend.KindVoid, backend.KindInt, backend.KindDouble)
	be := newTestBackend(t, nil)
	blob, err := be.GenerateAdapters(sig, simCode)
	require.NoError(t, err)

	s := newSim(t)
	s.install(blob)
	s.writeMethod(simCompiledEntry, simCompiledEntry)
	const callerPC = 0x60_5554
	var fixups int
	s.hookEntry(be.Runtime(), backend.EntryFixupCallersCallsite, func(s *sim) bool {
		fixups++
		require.Equal(t, uint64(simMethod), s.reg(x10))
		require.Equal(t, uint64(callerPC), s.reg(x11))
		s.setReg(x11, 0)
		s.setReg(f10, 0)
		s.setReg(xmethod, 0)
		return true
	})
	var reached bool
	s.hook(simInterpreterEntry, func(s *sim) bool {
		reached = true
		require.Equal(t, uint64(simMethod), s.reg(xmethod))
		require.Equal(t, uint64(simStackTop), s.reg(senderSP))
		kinds := sig.Expanded()
		require.Equal(t, uint64(7), s.load64(s.reg(esp)+uint64(interpreterArgOffset(kinds, 0))))
		require.Equal(t, math.Float64bits(2.5), s.load64(s.reg(esp)+uint64(interpreterArgOffset(kinds, 1))))
		return false
	})
	s.setReg(xmethod, simMethod)
	s.setReg(x11, 7)
	s.setF64(f10, 2.5)
	s.setReg(ra, callerPC)
	s.run(blob.EntryAddress(EntryC2I))
	require.Equal(t, 1, fixups)
	require.True(t, reached)
}

func TestAdapters_C2IUnverified(t *testing.T) {
	sig := backend.NewSignature(backend.KindVoid, backend.KindObject, backend.KindInt)
	const (
		holder   = simHeap + 0x700
		klass    = simHeap + 0x1000
		receiver = simHeap + 0x10_0000
	)
	for _, tc := range []struct {
		name       string
		holderKind uint64
		code       uint64
		miss       bool
	}{
		{name: "hit", holderKind: klass},
		{name: "wrong receiver type", holderKind: klass + 0x1000, miss: true},
		{name: "callee got compiled", holderKind: klass, code: simCompiledEntry, miss: true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			blob, err := be.GenerateAdapters(sig, simCode)
			require.NoError(t, err)

			s := newSim(t)
			s.install(blob)
			s.writeMethod(simCompiledEntry, tc.code)
			s.store64(holder+uint64(c1api.ICHolderOffsets.HolderMetadata.I64()), simMethod)
			s.store64(holder+uint64(c1api.ICHolderOffsets.HolderKlass.I64()), tc.holderKind)
			s.store64(receiver, c1api.MarkPrototype)
			s.store32(receiver+uint64(c1api.ObjectLayout.KlassOffset.I64()), uint32(klass))
			s.stopAt(be.Runtime(), backend.EntryICMissStub)
			s.hook(simInterpreterEntry, func(*sim) bool { return false })

			s.setReg(x11, receiver)
			s.setReg(x12, 3)
			s.setReg(t1, holder)
			s.call(blob.EntryAddress(EntryC2IUnverified))
			if tc.miss {
				require.Equal(t, be.Runtime().Address(backend.EntryICMissStub), s.stoppedAt)
				return
			}
			require.Equal(t, uint64(simInterpreterEntry), s.stoppedAt)
			require.Equal(t, uint64(simMethod), s.reg(xmethod))
		})
	}
}

func TestAdapters_EntryNames(t *testing.T) {
	be := newTestBackend(t, nil)
	blob, err := be.GenerateAdapters(backend.NewSignature(backend.KindVoid, backend.KindObject), 0)
	require.NoError(t, err)
	require.Equal(t, []string{EntryI2C, EntryC2IUnverified, EntryC2I}, blob.EntryNames())
	require.Zero(t, blob.FrameSize)
}

// nativeTestState is what the native function observed.
type nativeTestState struct {
	calls int
	state uint32
	sp    uint64
}

func runNativeWrapper(t *testing.T, be *Backend, m *NativeMethod, setup func(s *sim), native simHook) (*sim, *NativeWrapper, *nativeTestState) {
	m.NativeEntry = simNativeEntry
	w, err := be.GenerateNativeWrapper(m, simCode)
	require.NoError(t, err)

	s := newSim(t)
	s.install(w.CodeBlob)
	st := &nativeTestState{}
	s.hook(simNativeEntry, func(s *sim) bool {
		st.calls++
		st.state = s.load32(simThread + uint64(c1api.ThreadOffsets.ThreadState.I64()))
		st.sp = s.reg(sp)
		require.Equal(t, uint64(simThread+c1api.ThreadOffsets.JNIEnvironment.I64()), s.reg(x10))
		require.Equal(t, s.reg(sp), s.load64(simThread+uint64(c1api.ThreadOffsets.LastJavaSP.I64())))
		require.Equal(t, s.reg(ra), s.load64(simThread+uint64(c1api.ThreadOffsets.LastJavaPC.I64())))
		// The callee may use every caller saved register.
		for _, r := range []backend.RealReg{t0, t1, t2, x28, x29, x30, x31} {
			s.setReg(r, 0xdead)
		}
		return native(s)
	})
	s.store32(simHandles+uint64(c1api.JNIHandleBlockTopOffset.I64()), 7)
	if setup != nil {
		setup(s)
	}
	s.call(w.EntryAddress(EntryVerified))
	return s, w, st
}

func TestNativeWrapper_StaticArguments(t *testing.T) {
	const (
		mirror = simHeap + 0x6000
		obj    = simHeap + 0x10_0000
		result = simHeap + 0x10_0100
	)
	sig := backend.NewSignature(backend.KindObject,
		backend.KindInt, backend.KindLong, backend.KindObject, backend.KindFloat, backend.KindObject,
		backend.KindInt, backend.KindInt, backend.KindInt, backend.KindInt, backend.KindInt, backend.KindInt)
	m := &NativeMethod{Name: "static_args", Sig: sig, IsStatic: true, Mirror: mirror}
	ints := []uint64{sext32(0xffff_fff0), 11, 12, 13, 14, 15, 16}

	be := newTestBackend(t, nil)
	s, w, st := runNativeWrapper(t, be, m, func(s *sim) {
		s.setReg(x11, ints[0])
		s.setReg(x12, 0x1122_3344_5566_7788)
		s.setReg(x13, obj)
		s.setF32(f10, 1.5)
		s.setReg(x14, 0)
		s.setReg(x15, ints[1])
		s.setReg(x16, ints[2])
		s.setReg(x17, ints[3])
		s.setReg(x10, ints[4])
		s.store64(simStackTop, ints[5])
		s.store64(simStackTop+8, ints[6])
		s.store64(simHandles+0x40, result)
	}, func(s *sim) bool {
		require.Equal(t, uint64(mirror), s.load64(s.reg(x11)), "x11 is the mirror handle")
		require.Equal(t, ints[0], s.reg(x12))
		require.Equal(t, uint64(0x1122_3344_5566_7788), s.reg(x13))
		require.Equal(t, uint64(obj), s.load64(s.reg(x14)), "x14 is the object handle")
		require.Equal(t, float32(1.5), s.f32(f10))
		require.Zero(t, s.reg(x15), "null is passed as a null handle")
		require.Equal(t, ints[1], s.reg(x16))
		require.Equal(t, ints[2], s.reg(x17))
		sp := s.reg(sp)
		for i, v := range ints[3:] {
			require.Equal(t, uint32(v), uint32(s.load64(sp+uint64(i)*8)), "stack argument %d", i)
		}
		s.setReg(x10, simHandles+0x40)
		return true
	})

	require.Equal(t, 1, st.calls)
	require.Equal(t, uint32(c1api.ThreadInNative), st.state)
	require.Equal(t, uint64(result), s.reg(x10), "the result handle is unboxed")
	require.Equal(t, uint32(c1api.ThreadInJava), s.load32(simThread+uint64(c1api.ThreadOffsets.ThreadState.I64())))
	require.Zero(t, s.load32(simHandles+uint64(c1api.JNIHandleBlockTopOffset.I64())), "handles are released")
	require.Zero(t, s.load64(simThread+uint64(c1api.ThreadOffsets.LastJavaSP.I64())))
	require.Equal(t, uint64(simStackTop), s.reg(sp))
	require.Equal(t, uint64(simStackTop-w.Layout.Size), st.sp)
	require.NotEmpty(t, w.Moves)
	require.Equal(t, append([]backend.ValueKind{backend.KindAddress, backend.KindObject}, sig.Args...), w.NativeSig.Args)
	require.Equal(t, sig.Ret, w.NativeSig.Ret)
}

func TestNativeWrapper_ResultNormalization(t *testing.T) {
	for _, tc := range []struct {
		kind backend.ValueKind
		raw  uint64
		exp  uint64
	}{
		{kind: backend.KindBoolean, raw: 0x100, exp: 0},
		{kind: backend.KindBoolean, raw: 0x102, exp: 1},
		{kind: backend.KindByte, raw: 0x180, exp: sext32(uint32(0xffff_ff80))},
		{kind: backend.KindChar, raw: 0x1_ffff, exp: 0xffff},
		{kind: backend.KindShort, raw: 0x8000, exp: sext32(uint32(0xffff_8000))},
		{kind: backend.KindInt, raw: 0x1_8000_0000, exp: sext32(0x8000_0000)},
		{kind: backend.KindLong, raw: 0x1_8000_0000, exp: 0x1_8000_0000},
		{kind: backend.KindObject, raw: 0, exp: 0},
	} {
		tc := tc
		t.Run(tc.kind.String(), func(t *testing.T) {
			be := newTestBackend(t, nil)
			m := &NativeMethod{Name: "result", Sig: backend.NewSignature(tc.kind), IsStatic: true, Mirror: simHeap + 0x6000}
			s, _, _ := runNativeWrapper(t, be, m, nil, func(s *sim) bool {
				s.setReg(x10, tc.raw)
				return true
			})
			require.Equal(t, tc.exp, s.reg(x10))
		})
	}
}

func TestNativeWrapper_Synchronized(t *testing.T) {
	const (
		receiver = simHeap + 0x10_0000
		klass    = simHeap + 0x1000
	)
	for _, tc := range []struct {
		name string
		mark uint64
		slow bool
	}{
		{name: "fast", mark: c1api.MarkUnlockedValue},
		{name: "contended", mark: 0x6000_0000, slow: true},
		{name: "inflated", mark: 0x6000_0000 | c1api.MarkMonitorValue, slow: true},
		{name: "biased", mark: c1api.MarkBiasedPattern, slow: true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			m := &NativeMethod{
				Name: "sync", Synchronized: true,
				Sig: backend.NewSignature(backend.KindInt, backend.KindObject, backend.KindInt),
			}
			var locks, unlocks int
			var markDuringCall uint64
			s, w, st := runNativeWrapper(t, be, m, func(s *sim) {
				s.store64(receiver, tc.mark)
				s.store32(receiver+uint64(c1api.ObjectLayout.KlassOffset.I64()), uint32(klass))
				s.setReg(x11, receiver)
				s.setReg(x12, 21)
				s.hookEntry(be.Runtime(), backend.EntryCompleteMonitorLockingC, func(s *sim) bool {
					locks++
					require.Equal(t, uint64(receiver), s.reg(x10))
					require.Equal(t, uint64(simThread), s.reg(x12))
					s.setReg(x12, 0)
					return true
				})
				s.hookEntry(be.Runtime(), backend.EntryCompleteMonitorUnlockingC, func(s *sim) bool {
					unlocks++
					require.Equal(t, uint64(receiver), s.reg(x10))
					s.setReg(x10, 0)
					return true
				})
			}, func(s *sim) bool {
				require.Equal(t, uint64(21), s.reg(x12), "arguments survive the lock")
				markDuringCall = s.load64(receiver)
				s.setReg(x10, 0x1_0000_0005)
				return true
			})
			require.Equal(t, 1, st.calls)
			require.Equal(t, uint64(5), s.reg(x10))
			require.Equal(t, uint64(simStackTop), s.reg(sp))
			if tc.slow {
				require.Equal(t, 1, locks)
				require.Equal(t, 1, unlocks)
				require.Equal(t, tc.mark, markDuringCall)
				require.Equal(t, tc.mark, s.load64(receiver))
				return
			}
			require.Zero(t, locks)
			require.Zero(t, unlocks)
			lock := w.Layout.MustRegion(backend.RegionLock)
			require.Equal(t, st.sp+uint64(lock.Offset), markDuringCall, "the mark points at the lock slot")
			require.Equal(t, uint64(c1api.MarkUnlockedValue), s.load64(receiver))
		})
	}
}

func TestNativeWrapper_InlineCacheCheck(t *testing.T) {
	const (
		receiver = simHeap + 0x10_0000
		klass    = simHeap + 0x1000
	)
	be := newTestBackend(t, nil)
	m := &NativeMethod{Name: "virtual", Sig: backend.NewSignature(backend.KindVoid, backend.KindObject), NativeEntry: simNativeEntry}
	w, err := be.GenerateNativeWrapper(m, simCode)
	require.NoError(t, err)
	require.Less(t, w.EntryOffset(EntryUnverified), w.EntryOffset(EntryVerified))

	for _, expected := range []uint64{klass, klass + 0x1000} {
		s := newSim(t)
		s.install(w.CodeBlob)
		s.store32(receiver+uint64(c1api.ObjectLayout.KlassOffset.I64()), uint32(klass))
		s.stopAt(be.Runtime(), backend.EntryICMissStub)
		s.hook(simNativeEntry, func(*sim) bool { return false })
		s.setReg(x11, receiver)
		s.setReg(t1, expected)
		s.call(w.EntryAddress(EntryUnverified))
		if expected == klass {
			require.Equal(t, uint64(simNativeEntry), s.stoppedAt)
		} else {
			require.Equal(t, be.Runtime().Address(backend.EntryICMissStub), s.stoppedAt)
		}
	}
}

func TestNativeWrapper_PendingException(t *testing.T) {
	be := newTestBackend(t, nil)
	m := &NativeMethod{Name: "throws", Sig: backend.NewSignature(backend.KindObject), IsStatic: true, Mirror: simHeap + 0x6000}
	s, _, _ := runNativeWrapper(t, be, m, func(s *sim) {
		s.stopAt(be.Runtime(), backend.EntryForwardException)
	}, func(s *sim) bool {
		s.store64(simThread+uint64(c1api.ThreadOffsets.PendingException.I64()), simHeap+0x10_0000)
		s.setReg(x10, 0)
		return true
	})
	require.Equal(t, be.Runtime().Address(backend.EntryForwardException), s.stoppedAt)
	require.Equal(t, uint64(simStackTop), s.reg(sp), "the wrapper frame is gone")
	require.Equal(t, uint64(simHalt), s.reg(ra), "the exception is forwarded to the caller")
	require.Equal(t, uint32(c1api.ThreadInJava), s.load32(simThread+uint64(c1api.ThreadOffsets.ThreadState.I64())))
}

func TestNativeWrapper_SafepointOnReturn(t *testing.T) {
	be := newTestBackend(t, nil)
	m := &NativeMethod{Name: "blocks", Sig: backend.NewSignature(backend.KindDouble), IsStatic: true, Mirror: simHeap + 0x6000}
	var special, reguard int
	s, _, _ := runNativeWrapper(t, be, m, func(s *sim) {
		s.hookEntry(be.Runtime(), backend.EntryCheckSpecialConditionForNativeTrans, func(s *sim) bool {
			special++
			require.Equal(t, uint64(simThread), s.reg(x10))
			require.Equal(t, uint32(c1api.ThreadInNativeTrans), s.load32(simThread+uint64(c1api.ThreadOffsets.ThreadState.I64())))
			s.store64(simThread+uint64(c1api.ThreadOffsets.PollingWord.I64()), 0)
			s.setReg(x10, 0)
			s.setF64(f10, 0)
			return true
		})
		s.hookEntry(be.Runtime(), backend.EntryReguardYellowPages, func(s *sim) bool {
			reguard++
			s.setF64(f10, 0)
			return true
		})
	}, func(s *sim) bool {
		s.store64(simThread+uint64(c1api.ThreadOffsets.PollingWord.I64()), c1api.SafepointPollBit)
		s.write(simThread+uint64(c1api.ThreadOffsets.StackGuardState.I64()), 1, c1api.StackGuardYellowReservedDisabled)
		s.setF64(f10, 6.25)
		return true
	})
	require.Equal(t, 1, special)
	require.Equal(t, 1, reguard)
	require.Equal(t, 6.25, s.f64(f10), "the result survives the slow paths")
}

func TestNativeWrapper_Preconditions(t *testing.T) {
	be := newTestBackend(t, nil)
	for _, m := range []*NativeMethod{
		{Name: "no signature", NativeEntry: simNativeEntry},
		{Name: "no receiver", Sig: backend.NewSignature(backend.KindVoid, backend.KindInt), NativeEntry: simNativeEntry},
		{Name: "no entry", Sig: backend.NewSignature(backend.KindVoid), IsStatic: true},
	} {
		m := m
		t.Run(m.Name, func(t *testing.T) {
			requirePrecondition(t, func() { _, _ = be.GenerateNativeWrapper(m, simCode) })
		})
	}
}
