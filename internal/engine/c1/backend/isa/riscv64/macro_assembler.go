package riscv64

import (
	"math/bits"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// Ordering bits of atomics.
const (
	aqrlRl   uint32 = 1
	aqrlAq   uint32 = 2
	aqrlAqRl uint32 = 3
)

// MacroAssembler builds multi-instruction sequences on top of the Assembler.
// Sequences may clobber the scratch registers t0 and t1.
type MacroAssembler struct {
	*Assembler
	opts *backend.Options
	rt   *backend.RuntimeEntries
}

// NewMacroAssembler returns a MacroAssembler writing to buf.
func NewMacroAssembler(buf *asm.CodeBuffer, opts *backend.Options, rt *backend.RuntimeEntries) *MacroAssembler {
	return &MacroAssembler{Assembler: NewAssembler(buf), opts: opts, rt: rt}
}

// split12 splits v into hi+lo where lo is a sign-extended 12-bit immediate
// and hi has its low 12 bits clear.
func split12(v int64) (hi, lo int64) {
	lo = v << 52 >> 52
	return v - lo, lo
}

// li materializes imm into rd with the shortest sequence: addi, lui+addiw,
// or a recursive build of the upper bits followed by a shift and an addi.
func (m *MacroAssembler) li(rd backend.RealReg, imm int64) {
	upper, lower := split12(imm)
	if imm == int64(int32(imm)) {
		src := zr
		if upper != 0 {
			m.lui(rd, int64(int32(upper))>>12)
			src = rd
		}
		if lower != 0 || src == zr {
			m.addiw(rd, src, lower)
		}
		return
	}
	// upper may have wrapped: only its bits matter from here on.
	shift := bits.TrailingZeros64(uint64(upper))
	m.li(rd, upper>>shift)
	m.slli(rd, rd, int64(shift))
	if lower != 0 {
		m.addi(rd, rd, lower)
	}
}

// movptrWithOffset loads all but the low 6 bits of the 48-bit address addr
// into rd with a fixed 5-instruction sequence and returns the low bits for
// use as the offset of the following instruction.
func (m *MacroAssembler) movptrWithOffset(rd backend.RealReg, addr uint64) int64 {
	c1api.Check(addr>>47 == 0, "address %#x does not fit 47 bits", addr)
	imm := int64(addr)
	upper, lower := split12(imm >> 17)
	m.lui(rd, int64(int32(upper))>>12)
	m.addi(rd, rd, lower)
	m.slli(rd, rd, 11)
	m.addi(rd, rd, imm>>6&0x7ff)
	m.slli(rd, rd, 6)
	return imm & 0x3f
}

// movptr loads addr into rd with a fixed 6-instruction sequence which can be
// patched in place.
func (m *MacroAssembler) movptr(rd backend.RealReg, addr uint64) {
	lo := m.movptrWithOffset(rd, addr)
	m.addi(rd, rd, lo)
}

// mv copies rs into rd for registers of the same class.
func (m *MacroAssembler) mv(rd, rs backend.RealReg) {
	if rd == rs {
		return
	}
	if rd.IsFloat() {
		m.rr(opFSGNJD, rd, rs, rs)
		return
	}
	m.addi(rd, rs, 0)
}

// addImm computes rd = rs + imm, using tmp when imm does not fit 12 bits.
func (m *MacroAssembler) addImm(rd, rs backend.RealReg, imm int64, tmp backend.RealReg) {
	if isImm12(imm) {
		if imm != 0 || rd != rs {
			m.addi(rd, rs, imm)
		}
		return
	}
	c1api.Check(tmp != rs, "scratch %s aliases the source", RegName(tmp))
	m.li(tmp, imm)
	m.add(rd, rs, tmp)
}

// loadOff loads from base+off for any off, using tmp for large offsets.
// tmp may be rd for integer loads.
func (m *MacroAssembler) loadOff(o op, rd, base backend.RealReg, off int64, tmp backend.RealReg) {
	if isImm12(off) {
		m.load(o, rd, base, off)
		return
	}
	c1api.Check(tmp != base, "scratch %s aliases the base", RegName(tmp))
	hi, lo := split12(off)
	m.li(tmp, hi)
	m.add(tmp, tmp, base)
	m.load(o, rd, tmp, lo)
}

// storeOff stores to base+off for any off, using tmp for large offsets.
func (m *MacroAssembler) storeOff(o op, src, base backend.RealReg, off int64, tmp backend.RealReg) {
	if isImm12(off) {
		m.store(o, src, base, off)
		return
	}
	c1api.Check(tmp != base && tmp != src, "scratch %s aliases an operand", RegName(tmp))
	hi, lo := split12(off)
	m.li(tmp, hi)
	m.add(tmp, tmp, base)
	m.store(o, src, tmp, lo)
}

// legitimize returns a base register and a 12-bit displacement equivalent to
// addr. It clobbers t0, and t1 for indexed addresses with large displacements.
// Only t0 is live afterwards.
func (m *MacroAssembler) legitimize(addr backend.Address) (backend.RealReg, int64) {
	base, disp := addr.Base, addr.Disp
	if addr.HasIndex() {
		if addr.Scale == 0 {
			m.add(t0, base, addr.Index)
		} else {
			m.slli(t0, addr.Index, int64(addr.Scale))
			m.add(t0, base, t0)
		}
		base = t0
	}
	if isImm12(disp) {
		return base, disp
	}
	hi, lo := split12(disp)
	if base == t0 {
		m.li(t1, hi)
		m.add(t0, t0, t1)
	} else {
		m.li(t0, hi)
		m.add(t0, t0, base)
	}
	return t0, lo
}

// encodeHeapOop compresses the reference in src into dst. tmp must differ
// from src; it may be dst.
func (m *MacroAssembler) encodeHeapOop(dst, src, tmp backend.RealReg) {
	o := m.opts
	switch {
	case !o.CompressedOops:
		m.mv(dst, src)
	case o.OopBase == 0:
		if o.OopShift == 0 {
			m.mv(dst, src)
		} else {
			m.srli(dst, src, int64(o.OopShift))
		}
	default:
		c1api.Check(tmp != src, "scratch %s aliases the oop", RegName(tmp))
		var notNull asm.Label
		m.li(tmp, int64(o.OopBase))
		m.sub(tmp, src, tmp)
		m.srli(tmp, tmp, int64(o.OopShift))
		m.branch(opBNE, src, zr, &notNull)
		m.mv(tmp, zr)
		m.Bind(&notNull)
		m.mv(dst, tmp)
	}
}

// decodeHeapOop expands the zero-extended narrow reference in rd in place.
func (m *MacroAssembler) decodeHeapOop(rd, tmp backend.RealReg) {
	o := m.opts
	switch {
	case !o.CompressedOops:
	case o.OopBase == 0:
		if o.OopShift != 0 {
			m.slli(rd, rd, int64(o.OopShift))
		}
	default:
		c1api.Check(tmp != rd, "scratch %s aliases the oop", RegName(tmp))
		var done asm.Label
		m.branch(opBEQ, rd, zr, &done)
		m.slli(rd, rd, int64(o.OopShift))
		m.li(tmp, int64(o.OopBase))
		m.add(rd, rd, tmp)
		m.Bind(&done)
	}
}

// encodeKlass compresses the type descriptor pointer in src into dst. tmp
// must differ from src; it may be dst.
func (m *MacroAssembler) encodeKlass(dst, src, tmp backend.RealReg) {
	o := m.opts
	cur := src
	if o.KlassBase != 0 {
		c1api.Check(tmp != src, "scratch %s aliases the klass", RegName(tmp))
		m.li(tmp, int64(o.KlassBase))
		m.sub(dst, src, tmp)
		cur = dst
	}
	if o.KlassShift != 0 {
		m.srli(dst, cur, int64(o.KlassShift))
	} else {
		m.mv(dst, cur)
	}
}

// decodeKlass expands the narrow type descriptor pointer in rd in place.
func (m *MacroAssembler) decodeKlass(rd, tmp backend.RealReg) {
	o := m.opts
	if o.KlassShift != 0 {
		m.slli(rd, rd, int64(o.KlassShift))
	}
	if o.KlassBase != 0 {
		c1api.Check(tmp != rd, "scratch %s aliases the klass", RegName(tmp))
		m.li(tmp, int64(o.KlassBase))
		m.add(rd, rd, tmp)
	}
}

// loadKlass loads the type descriptor of the object in obj into dst.
func (m *MacroAssembler) loadKlass(dst, obj, tmp backend.RealReg) {
	off := c1api.ObjectLayout.KlassOffset.I64()
	if m.opts.CompressedClassPointers {
		m.lwu(dst, obj, off)
		m.decodeKlass(dst, tmp)
		return
	}
	m.ld(dst, obj, off)
}

// storeKlass stores the type descriptor pointer klass into the header of obj.
func (m *MacroAssembler) storeKlass(obj, klass, tmp backend.RealReg) {
	off := c1api.ObjectLayout.KlassOffset.I64()
	if m.opts.CompressedClassPointers {
		m.encodeKlass(tmp, klass, tmp)
		m.sw(tmp, obj, off)
		return
	}
	m.sd(klass, obj, off)
}

// membar emits the fence enforcing order.
func (m *MacroAssembler) membar(order backend.MemoryOrder) {
	var pred, succ int64
	if order&backend.OrderLoadLoad != 0 {
		pred, succ = pred|fenceR, succ|fenceR
	}
	if order&backend.OrderLoadStore != 0 {
		pred, succ = pred|fenceR, succ|fenceW
	}
	if order&backend.OrderStoreLoad != 0 {
		pred, succ = pred|fenceW, succ|fenceR
	}
	if order&backend.OrderStoreStore != 0 {
		pred, succ = pred|fenceW, succ|fenceW
	}
	if pred != 0 {
		m.fence(pred, succ)
	}
}

// cmpxchg atomically replaces the word at addr by newVal if it equals
// expected, and sets result to 1 on success and 0 otherwise. It clobbers t0
// and t1 and ends with a full fence.
func (m *MacroAssembler) cmpxchg(addr, expected, newVal, result backend.RealReg, wide bool) {
	lrOp, scOp := opLRW, opSCW
	if wide {
		lrOp, scOp = opLRD, opSCD
	}
	var retry, fail, done asm.Label
	m.Bind(&retry)
	m.lr(lrOp, t0, addr, aqrlAq)
	m.branch(opBNE, t0, expected, &fail)
	m.sc(scOp, t1, newVal, addr, aqrlRl)
	m.branch(opBNE, t1, zr, &retry)
	m.li(result, 1)
	m.j(&done)
	m.Bind(&fail)
	m.mv(result, zr)
	m.Bind(&done)
	m.membar(backend.OrderAnyAny)
}

// cmpxchgptr is the word compare-and-swap of the locking paths: if the word
// at addr equals oldv it is replaced by newv and control goes to succeed,
// otherwise oldv receives the current value and control goes to fail, or
// falls through when fail is nil.
func (m *MacroAssembler) cmpxchgptr(oldv, newv, addr, tmp backend.RealReg, succeed, fail *asm.Label) {
	var retry, nope asm.Label
	m.Bind(&retry)
	m.lr(opLRD, tmp, addr, aqrlAqRl)
	m.branch(opBNE, tmp, oldv, &nope)
	m.sc(opSCD, tmp, newv, addr, aqrlRl)
	m.branch(opBNE, tmp, zr, &retry)
	m.membar(backend.OrderAnyAny)
	m.j(succeed)
	m.Bind(&nope)
	m.mv(oldv, tmp)
	m.membar(backend.OrderAnyAny)
	if fail != nil {
		m.j(fail)
	}
}

// farCall transfers control to target, linking into link. It uses a jal
// when target is in reach, auipc+jalr within ±2GiB, and movptr+jalr when
// the code address is not known yet. tmp is clobbered.
func (m *MacroAssembler) farCall(target uint64, link, tmp backend.RealReg) {
	if m.buf.Base() != 0 {
		rel := int64(target - m.PC())
		if fitsSigned(rel, 21) {
			m.jalOffset(link, rel)
			return
		}
		hi, lo := split12(rel)
		if fitsSigned(hi>>12, 20) {
			m.auipc(tmp, hi>>12)
			m.jalr(link, tmp, lo)
			return
		}
	}
	lo := m.movptrWithOffset(tmp, target)
	m.jalr(link, tmp, lo)
}

// call calls target.
func (m *MacroAssembler) call(target uint64) { m.farCall(target, ra, t0) }

// jump jumps to target.
func (m *MacroAssembler) jump(target uint64) { m.farCall(target, zr, t0) }

// rtCall calls the runtime entry e.
func (m *MacroAssembler) rtCall(e backend.RuntimeEntry) { m.call(m.rt.Address(e)) }

// rtCallWithArg calls the runtime entry e, which takes its argument in t0.
func (m *MacroAssembler) rtCallWithArg(e backend.RuntimeEntry) { m.farCall(m.rt.Address(e), ra, t1) }

// rtJump jumps to the runtime entry e.
func (m *MacroAssembler) rtJump(e backend.RuntimeEntry) { m.jump(m.rt.Address(e)) }

// enter pushes ra and fp and points fp at the saved fp.
func (m *MacroAssembler) enter() {
	m.addi(sp, sp, -16)
	m.sd(ra, sp, 8)
	m.sd(fp, sp, 0)
	m.mv(fp, sp)
}

// leave pops the frame pushed by enter.
func (m *MacroAssembler) leave() {
	m.mv(sp, fp)
	m.ld(fp, sp, 0)
	m.ld(ra, sp, 8)
	m.addi(sp, sp, 16)
}

func storeOpFor(r backend.RealReg) op {
	if r.IsFloat() {
		return opFSD
	}
	return opSD
}

func loadOpFor(r backend.RealReg) op {
	if r.IsFloat() {
		return opFLD
	}
	return opLD
}

// pushRegs saves regs below sp in a 16-byte aligned area and returns its size.
func (m *MacroAssembler) pushRegs(regs []backend.RealReg) int {
	size := backend.AlignUp(len(regs)*8, backend.StackAlignment)
	if size == 0 {
		return 0
	}
	m.addi(sp, sp, int64(-size))
	for i, r := range regs {
		m.store(storeOpFor(r), r, sp, int64(i*8))
	}
	return size
}

// popRegs restores the registers saved by pushRegs.
func (m *MacroAssembler) popRegs(regs []backend.RealReg) {
	size := backend.AlignUp(len(regs)*8, backend.StackAlignment)
	if size == 0 {
		return
	}
	for i, r := range regs {
		m.load(loadOpFor(r), r, sp, int64(i*8))
	}
	m.addi(sp, sp, int64(size))
}

// setLastJavaFrame records the frame anchor: lastSP, lastFP when valid, and
// the address of pc.
func (m *MacroAssembler) setLastJavaFrame(lastSP, lastFP backend.RealReg, pc *asm.Label, tmp backend.RealReg) {
	th := c1api.ThreadOffsets
	if lastFP.IsValid() {
		m.sd(lastFP, xthread, th.LastJavaFP.I64())
	}
	m.la(tmp, pc)
	m.sd(tmp, xthread, th.LastJavaPC.I64())
	m.sd(lastSP, xthread, th.LastJavaSP.I64())
}

// resetLastJavaFrame clears the frame anchor.
func (m *MacroAssembler) resetLastJavaFrame(clearFP bool) {
	th := c1api.ThreadOffsets
	m.sd(zr, xthread, th.LastJavaSP.I64())
	if clearFP {
		m.sd(zr, xthread, th.LastJavaFP.I64())
	}
	m.sd(zr, xthread, th.LastJavaPC.I64())
}

// safepointPollSize is the size of the sequence emitted by safepointPoll.
const safepointPollSize = 16

// safepointPoll branches to slow when a safepoint is requested. The
// sequence has a fixed size so the safepoint handler can step over it.
func (m *MacroAssembler) safepointPoll(slow *asm.Label) {
	m.ld(t0, xthread, c1api.ThreadOffsets.PollingWord.I64())
	m.andi(t0, t0, c1api.SafepointPollBit)
	m.emit(opBEQ, none, t0, zr, 8, 0)
	m.j(slow)
}

// storeThreadState publishes state with release semantics.
func (m *MacroAssembler) storeThreadState(state c1api.ThreadState) {
	m.li(t0, int64(state))
	m.membar(backend.OrderLoadStore | backend.OrderStoreStore)
	m.sw(t0, xthread, c1api.ThreadOffsets.ThreadState.I64())
}
