package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// Out-of-line slow paths of compiled methods. The runtime entries they call
// preserve every register but t0, t1 and the result registers, so the main
// code keeps its values live across them.

// divByZeroStub throws an ArithmeticException.
type divByZeroStub struct {
	info  *backend.CodeEmitInfo
	entry asm.Label
}

func (s *divByZeroStub) name() string { return "div_by_zero_stub" }

func (s *divByZeroStub) emit(l *lowering) {
	l.Bind(&s.entry)
	l.rtCall(backend.EntryThrowDivZero)
	l.addSite(s.info)
	l.ebreak()
}

// simpleExceptionStub calls a throwing runtime entry, passing obj in t0 when valid.
type simpleExceptionStub struct {
	rt    backend.RuntimeEntry
	obj   backend.RealReg
	info  *backend.CodeEmitInfo
	entry asm.Label
}

func (s *simpleExceptionStub) name() string { return s.rt.String() + "_stub" }

func (s *simpleExceptionStub) emit(l *lowering) {
	l.Bind(&s.entry)
	if s.obj.IsValid() {
		l.mv(t0, s.obj)
	}
	l.rtCallWithArg(s.rt)
	l.addSite(s.info)
	l.ebreak()
}

// rangeCheckStub throws an ArrayIndexOutOfBoundsException for the index in t0.
type rangeCheckStub struct {
	index backend.Operand
	info  *backend.CodeEmitInfo
	entry asm.Label
}

func (s *rangeCheckStub) name() string { return "range_check_stub" }

func (s *rangeCheckStub) emit(l *lowering) {
	l.Bind(&s.entry)
	if s.index.IsConstant() {
		l.li(t0, int64(s.index.AsInt()))
	} else {
		l.mv(t0, reg(s.index, "index"))
	}
	l.rtCallWithArg(backend.EntryThrowRangeCheck)
	l.addSite(s.info)
	l.ebreak()
}

// monitorEnterStub acquires a contended lock. The object and the lock slot
// address are passed in the reserved argument area.
type monitorEnterStub struct {
	obj, lock   backend.RealReg
	info        *backend.CodeEmitInfo
	entry, cont asm.Label
}

func (s *monitorEnterStub) name() string { return "monitor_enter_stub" }

func (s *monitorEnterStub) emit(l *lowering) {
	l.Bind(&s.entry)
	l.sd(s.obj, sp, 0)
	l.sd(s.lock, sp, 8)
	l.rtCall(backend.EntryMonitorEnter)
	l.addSite(s.info)
	l.j(&s.cont)
}

// monitorExitStub releases a lock whose header was inflated or displaced.
type monitorExitStub struct {
	lock        backend.RealReg
	entry, cont asm.Label
}

func (s *monitorExitStub) name() string { return "monitor_exit_stub" }

func (s *monitorExitStub) emit(l *lowering) {
	l.Bind(&s.entry)
	l.sd(s.lock, sp, 0)
	l.rtCall(backend.EntryMonitorExit)
	l.j(&s.cont)
}

// newInstanceStub allocates an instance of the type in x13 when the fast path fails.
type newInstanceStub struct {
	klass, result backend.RealReg
	info          *backend.CodeEmitInfo
	entry, cont   asm.Label
}

func (s *newInstanceStub) name() string { return "new_instance_stub" }

func (s *newInstanceStub) emit(l *lowering) {
	l.Bind(&s.entry)
	l.mv(x13, s.klass)
	l.rtCall(backend.EntryNewInstance)
	l.addSite(s.info)
	l.mv(s.result, x10)
	l.j(&s.cont)
}

// newArrayStub allocates an array of the type in x13 with the length in x19.
type newArrayStub struct {
	rt                    backend.RuntimeEntry
	klass, length, result backend.RealReg
	info                  *backend.CodeEmitInfo
	entry, cont           asm.Label
}

func (s *newArrayStub) name() string { return s.rt.String() + "_stub" }

func (s *newArrayStub) emit(l *lowering) {
	l.Bind(&s.entry)
	l.mv(t0, s.length)
	l.mv(x13, s.klass)
	l.mv(x19, t0)
	l.rtCall(s.rt)
	l.addSite(s.info)
	l.mv(s.result, x10)
	l.j(&s.cont)
}

// safepointPollStub records the pc of the poll and enters the safepoint
// handler, which returns right after the poll sequence.
type safepointPollStub struct {
	poll, entry asm.Label
}

func (s *safepointPollStub) name() string { return "safepoint_poll_stub" }

func (s *safepointPollStub) emit(l *lowering) {
	l.Bind(&s.entry)
	l.la(t0, &s.poll)
	l.sd(t0, xthread, c1api.ThreadOffsets.SavedExceptionPC.I64())
	l.rtJump(backend.EntrySafepointHandler)
}

// callTrampolineStub reaches a call target beyond the ±1MiB of jal. The
// target address is stored aligned right after the jump.
type callTrampolineStub struct {
	target uint64
	entry  asm.Label
}

func (s *callTrampolineStub) name() string { return "trampoline_stub" }

func (s *callTrampolineStub) emit(l *lowering) {
	l.alignTo(8, 4)
	l.Bind(&s.entry)
	l.auipc(t0, 0)
	l.ld(t0, t0, 12)
	l.jalr(zr, t0, 0)
	l.EmitWord64(s.target)
}
