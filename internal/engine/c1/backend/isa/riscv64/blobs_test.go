package riscv64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

func TestResolveBlob(t *testing.T) {
	const (
		callerPC = 0x60_5000
		target   = 0x60_6000
		method   = simHeap + 0x500
	)
	th := c1api.ThreadOffsets
	for _, tc := range []struct {
		name    string
		entry   backend.RuntimeEntry
		pending bool
	}{
		{name: "static", entry: backend.EntryResolveStaticCall},
		{name: "virtual", entry: backend.EntryResolveVirtualCall},
		{name: "exception", entry: backend.EntryResolveStaticCall, pending: true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			blob, err := be.GenerateResolveBlob("resolve_"+tc.name, tc.entry, simCode)
			require.NoError(t, err)

			s := newSim(t)
			s.install(blob)
			var resolved int
			s.hookEntry(be.Runtime(), tc.entry, func(s *sim) bool {
				resolved++
				require.Equal(t, uint64(simThread), s.reg(x10))
				require.Equal(t, s.reg(sp), s.load64(simThread+uint64(th.LastJavaSP.I64())))
				for _, r := range []backend.RealReg{x11, x12, x13, t1, f10} {
					s.setReg(r, 0xdead)
				}
				s.setReg(x10, target)
				s.store64(simThread+uint64(th.VMResult2.I64()), method)
				if tc.pending {
					s.store64(simThread+uint64(th.PendingException.I64()), simHeap+0x10_0000)
				}
				return true
			})
			s.stopAt(be.Runtime(), backend.EntryForwardException)
			s.hook(target, func(s *sim) bool { return false })

			s.setReg(x11, 11)
			s.setReg(x12, 12)
			s.setReg(x13, 13)
			s.setF64(f10, 10.5)
			s.setReg(ra, callerPC)
			s.run(blob.Base)

			require.Equal(t, 1, resolved)
			require.Equal(t, uint64(simStackTop), s.reg(sp))
			require.Equal(t, uint64(callerPC), s.reg(ra))
			require.Zero(t, s.load64(simThread+uint64(th.LastJavaSP.I64())))
			if tc.pending {
				require.Equal(t, be.Runtime().Address(backend.EntryForwardException), s.stoppedAt)
				return
			}
			require.Equal(t, uint64(target), s.stoppedAt)
			require.Equal(t, uint64(method), s.reg(xmethod))
			require.Zero(t, s.load64(simThread+uint64(th.VMResult2.I64())))
			require.Equal(t, []uint64{11, 12, 13}, []uint64{s.reg(x11), s.reg(x12), s.reg(x13)}, "the arguments are passed on")
			require.Equal(t, 10.5, s.f64(f10))
		})
	}
}

func TestSafepointHandlerBlob_Redirected(t *testing.T) {
	const (
		pollPC   = 0x60_5000
		deoptPC  = 0x60_7000
		resumeAt = pollPC + safepointPollSize
	)
	be := newTestBackend(t, nil)
	handler, err := be.GenerateSafepointHandlerBlob(simCode)
	require.NoError(t, err)
	require.Equal(t, regSaveFrameSize, handler.FrameSize)
	require.Equal(t, 1, handler.OopMaps.Len())

	th := c1api.ThreadOffsets
	for _, redirect := range []bool{false, true} {
		s := newSim(t)
		s.install(handler)
		s.store64(simThread+uint64(th.SavedExceptionPC.I64()), pollPC)
		s.hookEntry(be.Runtime(), backend.EntryHandlePollingPageException, func(s *sim) bool {
			if redirect {
				// The runtime patches the saved return address, as it does
				// when the frame gets deoptimized.
				s.store64(s.reg(sp)+uint64(savedRegOffset(ra)), deoptPC)
			}
			return true
		})
		s.hook(resumeAt, func(*sim) bool { return false })
		s.hook(deoptPC, func(*sim) bool { return false })
		s.run(handler.Base)

		if redirect {
			require.Equal(t, uint64(deoptPC), s.stoppedAt)
		} else {
			require.Equal(t, uint64(resumeAt), s.stoppedAt)
		}
		require.Equal(t, s.stoppedAt, s.reg(ra), "the poll looks like a call returning there")
		require.Equal(t, uint64(simStackTop), s.reg(sp))
	}
}

func TestSlowSubtypeCheckStub(t *testing.T) {
	object, a, b, c, i := testHierarchy()
	for _, tc := range []struct {
		sub, super *testKlass
		exp        bool
	}{
		{sub: b, super: i, exp: true},
		{sub: c, super: i},
		{sub: a, super: i},
		{sub: object, super: c},
	} {
		tc := tc
		t.Run(tc.sub.name+"<:"+tc.super.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			stub, err := be.GenerateSlowSubtypeCheckStub(simCode)
			require.NoError(t, err)

			s := newSim(t)
			s.install(stub)
			for _, k := range []*testKlass{object, a, b, c, i} {
				s.writeKlass(k)
			}
			top := uint64(simStackTop - 16)
			s.setReg(sp, top)
			s.store64(top+8, tc.sub.addr)
			s.store64(top, tc.super.addr)
			s.setReg(x28, 28)
			s.setReg(x29, 29)
			s.setReg(x30, 30)
			s.call(stub.Base)

			require.Equal(t, b2u(tc.exp), s.load64(top))
			require.Equal(t, tc.sub.addr, s.load64(top+8))
			require.Equal(t, top, s.reg(sp))
			require.Equal(t, []uint64{28, 29, 30}, []uint64{s.reg(x28), s.reg(x29), s.reg(x30)})
			cache := s.load64(tc.sub.addr + uint64(c1api.KlassOffsets.SecondarySuperCache.I64()))
			if tc.exp {
				require.Equal(t, tc.super.addr, cache)
			} else {
				require.Zero(t, cache)
			}
		})
	}
}
