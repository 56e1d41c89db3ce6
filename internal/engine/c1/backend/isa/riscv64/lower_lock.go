package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// A lock slot holds the displaced mark word at offset 0 and the object at 8.
const lockSlotObjOffset = 8

type lockRegs struct {
	obj, lock, hdr, scratch backend.RealReg
}

func lockOperands(li *backend.LockInfo, what string) lockRegs {
	r := lockRegs{
		obj:     reg(li.Obj, "locked object"),
		lock:    reg(li.Lock, "lock slot address"),
		hdr:     reg(li.Hdr, "header temporary"),
		scratch: reg(li.Scratch, "scratch temporary"),
	}
	distinct(what, r.obj, r.lock, r.hdr, r.scratch)
	return r
}

// lowerLock acquires the monitor of Obj with a stack lock: the mark word is
// displaced into the lock slot and replaced by the slot address. A mark word
// pointing into the current thread's stack is a recursive acquisition and
// leaves a zero displaced header.
func (l *lowering) lowerLock(ins *backend.Instruction) {
	r := lockOperands(ins.Lock, "lock")
	s := &monitorEnterStub{obj: r.obj, lock: r.lock, info: ins.Info}
	l.addStub(s)
	if !l.opts.UseFastLocking {
		l.j(&s.entry)
		l.Bind(&s.cont)
		return
	}
	l.fastLock(r, &s.entry)
	l.Bind(&s.cont)
}

// fastLock falls through once locked and jumps to slow on contention. An
// inflated or biased mark word goes to slow without trying the stack lock.
func (m *MacroAssembler) fastLock(r lockRegs, slow *asm.Label) {
	var done asm.Label
	m.sd(r.obj, r.lock, lockSlotObjOffset)
	m.ld(r.hdr, r.obj, c1api.ObjectLayout.MarkOffset.I64())
	m.ori(r.hdr, r.hdr, c1api.MarkUnlockedValue)
	// The displaced header is written first: unlock relies on it being non
	// zero when the runtime took the lock.
	m.sd(r.hdr, r.lock, c1api.BasicLockDisplacedHeaderOffset.I64())
	m.andi(r.scratch, r.hdr, c1api.MarkMonitorValue|c1api.MarkBiasedLockBit)
	m.bnez(r.scratch, slow)
	m.cmpxchgptr(r.hdr, r.lock, r.obj, r.scratch, &done, nil)
	// hdr now holds the current mark. It is a recursive lock iff it points
	// into this thread's stack less than a page above sp.
	m.sub(r.hdr, r.hdr, sp)
	m.li(t0, int64(7-m.opts.PageSize))
	m.and(r.hdr, r.hdr, t0)
	m.sd(r.hdr, r.lock, c1api.BasicLockDisplacedHeaderOffset.I64())
	m.bnez(r.hdr, slow)
	m.Bind(&done)
}

func (l *lowering) lowerUnlock(ins *backend.Instruction) {
	r := lockOperands(ins.Lock, "unlock")
	s := &monitorExitStub{lock: r.lock}
	l.addStub(s)
	if !l.opts.UseFastLocking {
		l.j(&s.entry)
		l.Bind(&s.cont)
		return
	}
	l.fastUnlock(r, &s.entry)
	l.Bind(&s.cont)
}

// fastUnlock restores the displaced header unless the lock was recursive.
// It jumps to slow when the mark word no longer points to the lock slot.
func (m *MacroAssembler) fastUnlock(r lockRegs, slow *asm.Label) {
	var done asm.Label
	m.ld(r.hdr, r.lock, c1api.BasicLockDisplacedHeaderOffset.I64())
	m.branch(opBEQ, r.hdr, zr, &done)
	m.mv(r.scratch, r.lock)
	m.cmpxchgptr(r.scratch, r.hdr, r.obj, t0, &done, slow)
	m.Bind(&done)
}
