package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// forwardPendingException restores the registers and forwards the pending
// exception of the thread when there is one. ra must be the pc the
// exception is thrown at once restored.
func (m *MacroAssembler) forwardPendingException() {
	var noException asm.Label
	m.ld(t0, xthread, c1api.ThreadOffsets.PendingException.I64())
	m.branch(opBEQ, t0, zr, &noException)
	m.restoreLiveRegisters()
	m.rtJump(backend.EntryForwardException)
	m.Bind(&noException)
}

// GenerateSafepointHandlerBlob generates the code safepoint poll stubs jump
// to. It makes the poll look like a call returning to the poll, calls the
// runtime and resumes after the poll sequence unless the runtime redirected
// the return address, for instance to deoptimize the frame.
func (b *Backend) GenerateSafepointHandlerBlob(base uint64) (*CodeBlob, error) {
	u := b.newUnit("safepoint_handler_blob", base, b.opts.StubBufferSize)
	th := c1api.ThreadOffsets
	raSlot := savedRegOffset(ra)

	var retaddr, resume asm.Label
	om := u.saveLiveRegisters()
	u.ld(t0, xthread, th.SavedExceptionPC.I64())
	u.sd(t0, sp, raSlot)
	u.setLastJavaFrame(sp, fp, &retaddr, t0)
	u.mv(x10, xthread)
	u.rtCall(backend.EntryHandlePollingPageException)
	u.Bind(&retaddr)
	u.addOopMap(om)
	u.resetLastJavaFrame(false)
	u.forwardPendingException()

	// Step over the poll when the runtime left the return address alone.
	u.ld(t0, sp, raSlot)
	u.ld(t1, xthread, th.SavedExceptionPC.I64())
	u.branch(opBNE, t0, t1, &resume)
	u.addi(t0, t0, safepointPollSize)
	u.sd(t0, sp, raSlot)
	u.Bind(&resume)
	u.restoreLiveRegisters()
	u.ret()
	return b.finish(u, regSaveFrameSize)
}

// GenerateResolveBlob generates the code unresolved call sites call. The
// runtime entry e returns the code to continue at in x10 and the resolved
// method in the second result; the call is then redone with the caller's
// registers intact.
func (b *Backend) GenerateResolveBlob(name string, e backend.RuntimeEntry, base uint64) (*CodeBlob, error) {
	u := b.newUnit(name, base, b.opts.StubBufferSize)
	th := c1api.ThreadOffsets

	var retaddr asm.Label
	om := u.saveLiveRegisters()
	u.setLastJavaFrame(sp, fp, &retaddr, t0)
	u.mv(x10, xthread)
	u.rtCall(e)
	u.Bind(&retaddr)
	u.addOopMap(om)
	u.resetLastJavaFrame(false)
	u.forwardPendingException()

	u.ld(t1, xthread, th.VMResult2.I64())
	u.sd(t1, sp, savedRegOffset(xmethod))
	u.sd(x10, sp, savedRegOffset(t0))
	u.sd(zr, xthread, th.VMResult2.I64())
	u.restoreLiveRegisters()
	u.jr(t0)
	return b.finish(u, regSaveFrameSize)
}

// GenerateSlowSubtypeCheckStub generates the secondary supers scan called by
// the type checks of compiled methods. The caller pushes the subtype at
// sp+8 and the supertype at sp+0; the stub overwrites sp+0 with 1 when the
// supertype was found, caching it, and 0 otherwise.
func (b *Backend) GenerateSlowSubtypeCheckStub(base uint64) (*CodeBlob, error) {
	u := b.newUnit("slow_subtype_check", base, b.opts.StubBufferSize)
	ko := c1api.KlassOffsets
	sub, super, cur := x28, x29, x30

	var loop, hit, miss, done asm.Label
	u.addi(sp, sp, -32)
	u.sd(sub, sp, 0)
	u.sd(super, sp, 8)
	u.sd(cur, sp, 16)
	u.ld(sub, sp, 40)
	u.ld(super, sp, 32)

	u.ld(cur, sub, ko.SecondarySupers.I64())
	u.lwu(t1, cur, c1api.SecondarySupersLengthOffset.I64())
	u.addi(cur, cur, c1api.SecondarySupersDataOffset.I64())
	u.Bind(&loop)
	u.branch(opBEQ, t1, zr, &miss)
	u.ld(t0, cur, 0)
	u.branch(opBEQ, t0, super, &hit)
	u.addi(cur, cur, 8)
	u.addi(t1, t1, -1)
	u.j(&loop)

	u.Bind(&hit)
	u.sd(super, sub, ko.SecondarySuperCache.I64())
	u.li(t0, 1)
	u.sd(t0, sp, 32)
	u.j(&done)
	u.Bind(&miss)
	u.sd(zr, sp, 32)

	u.Bind(&done)
	u.ld(sub, sp, 0)
	u.ld(super, sp, 8)
	u.ld(cur, sp, 16)
	u.addi(sp, sp, 32)
	u.ret()
	return b.finish(u, 0)
}
