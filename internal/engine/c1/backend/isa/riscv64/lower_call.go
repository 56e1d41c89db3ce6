package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// Registers of the exception protocol: the exception oop and the pc it was thrown at.
const (
	exceptionOopReg = x10
	exceptionPCReg  = x13
)

// lowerThrow hands the exception in x10 to the runtime dispatcher together
// with the throwing pc in x13. The throwing pc is a debug site.
func (l *lowering) lowerThrow(ins *backend.Instruction) {
	c1api.Check(ins.In[0].IsCPURegister() && ins.In[0].Reg() == exceptionPCReg, "throwing pc must be in %s", RegName(exceptionPCReg))
	c1api.Check(ins.In[1].IsCPURegister() && ins.In[1].Reg() == exceptionOopReg, "exception must be in %s", RegName(exceptionOopReg))
	l.ensureUniquePC()
	l.addSiteAt(l.Offset(), ins.Info, ins.In[1])
	l.auipc(exceptionPCReg, 0)
	if l.prog.HasFPU {
		l.rtCall(backend.EntryHandleException)
	} else {
		l.rtCall(backend.EntryHandleExceptionNoFPU)
	}
	l.nop()
}

// lowerUnwind leaves the method through the unwind handler with the exception in x10.
func (l *lowering) lowerUnwind(ins *backend.Instruction) {
	c1api.Check(ins.In[0].IsCPURegister() && ins.In[0].Reg() == exceptionOopReg, "exception must be in %s", RegName(exceptionOopReg))
	l.j(&l.unwind)
	l.needsUnwind = true
}

// emitUnwindHandler releases the monitor of synchronized methods, pops the
// frame and continues unwinding in the caller.
func (l *lowering) emitUnwindHandler() {
	l.BlockComment("unwind handler")
	l.Bind(&l.unwind)
	if l.prog.Synchronized {
		r := lockRegs{obj: x14, lock: x11, hdr: x15, scratch: x16}
		var slow, unlocked asm.Label
		l.mv(moveScratch, exceptionOopReg)
		l.addImm(r.lock, sp, int64(l.prog.MonitorOffset), t0)
		l.ld(r.obj, r.lock, lockSlotObjOffset)
		if l.opts.UseFastLocking {
			l.fastUnlock(r, &slow)
			l.j(&unlocked)
		}
		l.Bind(&slow)
		l.sd(r.lock, sp, 0)
		l.rtCall(backend.EntryMonitorExit)
		l.Bind(&unlocked)
		l.mv(exceptionOopReg, moveScratch)
	}
	l.removeFrame(l.prog.FrameSize)
	l.rtJump(backend.EntryUnwindException)
}

// lowerReturn pops the frame. The result is already in x10 or f10.
func (l *lowering) lowerReturn(ins *backend.Instruction) {
	if len(ins.In) > 0 {
		res := ins.In[0]
		if res.IsFloatRegister() {
			c1api.Check(res.Reg() == JavaConvention.FloatResult, "float result must be in %s", RegName(JavaConvention.FloatResult))
		} else {
			c1api.Check(res.IsCPURegister() && res.Reg() == JavaConvention.IntResult, "result must be in %s", RegName(JavaConvention.IntResult))
		}
	}
	l.removeFrame(l.prog.FrameSize)
	l.ret()
}

// lowerSafepoint emits a thread local poll. The poll is the debug site and
// the handler returns to the instruction following the poll sequence.
func (l *lowering) lowerSafepoint(ins *backend.Instruction) {
	s := &safepointPollStub{}
	l.addStub(s)
	l.ensureUniquePC()
	l.Bind(&s.poll)
	l.addSite(ins.Info)
	l.safepointPoll(&s.entry)
}

func (l *lowering) lowerCallRuntime(ins *backend.Instruction) {
	c1api.Check(ins.Call != nil, "runtime call without target")
	l.rtCall(ins.Call.Entry)
	l.addSite(ins.Info)
}

// lowerCall calls compiled code directly when the target is in jal reach,
// and through a trampoline stub otherwise. The return pc is the debug site.
func (l *lowering) lowerCall(ins *backend.Instruction) {
	c1api.Check(ins.Call != nil && ins.Call.Target != 0, "call without target")
	target := ins.Call.Target
	if l.buf.Base() != 0 {
		if rel := int64(target - l.PC()); fitsSigned(rel, 21) {
			l.jalOffset(ra, rel)
			l.addSite(ins.Info)
			return
		}
	}
	s := &callTrampolineStub{target: target}
	l.addStub(s)
	l.jal(ra, &s.entry)
	l.addSite(ins.Info)
}

func (l *lowering) lowerNullCheck(ins *backend.Instruction) {
	obj := reg(ins.In[0], "checked object")
	s := &simpleExceptionStub{rt: backend.EntryThrowNullPointer, obj: none, info: ins.Info}
	l.addStub(s)
	l.beqz(obj, &s.entry)
}

// lowerRangeCheck throws unless 0 <= In[0] < In[1], with one unsigned compare.
func (l *lowering) lowerRangeCheck(ins *backend.Instruction) {
	index, length := ins.In[0], ins.In[1]
	if index.IsConstant() && length.IsConstant() && uint32(index.AsInt()) < uint32(length.AsInt()) {
		return
	}
	s := &rangeCheckStub{index: index, info: ins.Info}
	l.addStub(s)
	if index.IsConstant() && length.IsConstant() {
		l.j(&s.entry)
		return
	}
	idx := l.srcReg(index, t0)
	n := l.srcReg(length, t1)
	l.bcond(opBGEU, idx, n, &s.entry)
}
