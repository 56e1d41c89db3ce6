package riscv64

import (
	"fmt"
	"strings"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// Kinds of asm.LabelUse.
const (
	// useBranch is a B-type conditional branch.
	useBranch byte = iota
	// useJAL is a J-type jump.
	useJAL
	// usePCRel is an auipc followed by an I-type instruction.
	usePCRel
)

// reasonBranchRange is recorded when a jump cannot reach its label.
const reasonBranchRange asm.BailoutReason = "branch target out of range"

// Assembler emits single instructions into an asm.CodeBuffer and resolves
// label references.
type Assembler struct {
	buf      *asm.CodeBuffer
	comments map[int][]string
	// lastFence is the offset of the last fence, used to merge adjacent barriers.
	lastFence int
	// lastBind is the offset of the last bound label.
	lastBind int
}

// NewAssembler returns an Assembler writing to buf.
func NewAssembler(buf *asm.CodeBuffer) *Assembler {
	return &Assembler{buf: buf, lastFence: -1, lastBind: -1}
}

// Buffer returns the underlying buffer.
func (a *Assembler) Buffer() *asm.CodeBuffer { return a.buf }

// Offset returns the current offset.
func (a *Assembler) Offset() int { return a.buf.Offset() }

// PC returns the absolute address of the current offset.
func (a *Assembler) PC() uint64 { return uint64(a.buf.PC()) }

// BlockComment attaches s to the current offset in listings.
func (a *Assembler) BlockComment(s string) {
	if !c1api.BlockCommentsEnabled {
		return
	}
	if a.comments == nil {
		a.comments = map[int][]string{}
	}
	off := a.Offset()
	a.comments[off] = append(a.comments[off], s)
}

// Listing returns the disassembly of the buffer with block comments.
func (a *Assembler) Listing(goSyntax bool) string {
	return formatListing(a.buf.Bytes(), uint64(a.buf.Base()), a.comments, goSyntax)
}

func formatListing(code []byte, base uint64, comments map[int][]string, goSyntax bool) string {
	lines := Disassemble(code, base, goSyntax)
	var sb strings.Builder
	for i, l := range lines {
		for _, c := range comments[i*4] {
			sb.WriteString(";; ")
			sb.WriteString(c)
			sb.WriteByte('\n')
		}
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func checkClass(o op, r backend.RealReg, class byte, what string) {
	switch class {
	case classNone:
		return
	case classInt:
		c1api.Check(r.IsValid() && !r.IsFloat(), "%s of %s must be an integer register, got %s", what, o, r)
	case classFloat:
		c1api.Check(r.IsFloat(), "%s of %s must be a float register, got %s", what, o, r)
	}
}

func (a *Assembler) emit(o op, rd, rs1, rs2 backend.RealReg, imm int64, aqrl uint32) {
	if c1api.AssertionsEnabled {
		info := &opInfos[o]
		checkClass(o, rd, info.rdC, "rd")
		checkClass(o, rs1, info.rs1C, "rs1")
		checkClass(o, rs2, info.rs2C, "rs2")
	}
	a.buf.Emit4Bytes(o.encode(rd, rs1, rs2, imm, aqrl))
}

// EmitWord64 emits a 64-bit data word.
func (a *Assembler) EmitWord64(v uint64) { a.buf.Emit8Bytes(v) }

const none = backend.RealRegInvalid

func (a *Assembler) rr(o op, rd, rs1, rs2 backend.RealReg) { a.emit(o, rd, rs1, rs2, 0, 0) }

func (a *Assembler) ri(o op, rd, rs1 backend.RealReg, imm int64) {
	c1api.Check(isImm12(imm), "%s immediate %d out of range", o, imm)
	a.emit(o, rd, rs1, none, imm, 0)
}

func (a *Assembler) shifti(o op, rd, rs1 backend.RealReg, shamt int64) {
	a.emit(o, rd, rs1, none, shamt, 0)
}

func (a *Assembler) load(o op, rd, base backend.RealReg, off int64) {
	c1api.Check(isImm12(off), "%s offset %d out of range", o, off)
	a.emit(o, rd, base, none, off, 0)
}

func (a *Assembler) store(o op, src, base backend.RealReg, off int64) {
	c1api.Check(isImm12(off), "%s offset %d out of range", o, off)
	a.emit(o, none, base, src, off, 0)
}

func (a *Assembler) addi(rd, rs1 backend.RealReg, imm int64)  { a.ri(opADDI, rd, rs1, imm) }
func (a *Assembler) addiw(rd, rs1 backend.RealReg, imm int64) { a.ri(opADDIW, rd, rs1, imm) }
func (a *Assembler) andi(rd, rs1 backend.RealReg, imm int64)  { a.ri(opANDI, rd, rs1, imm) }
func (a *Assembler) add(rd, rs1, rs2 backend.RealReg)         { a.rr(opADD, rd, rs1, rs2) }
func (a *Assembler) sub(rd, rs1, rs2 backend.RealReg)         { a.rr(opSUB, rd, rs1, rs2) }
func (a *Assembler) slli(rd, rs1 backend.RealReg, n int64)    { a.shifti(opSLLI, rd, rs1, n) }
func (a *Assembler) srli(rd, rs1 backend.RealReg, n int64)    { a.shifti(opSRLI, rd, rs1, n) }
func (a *Assembler) srai(rd, rs1 backend.RealReg, n int64)    { a.shifti(opSRAI, rd, rs1, n) }
func (a *Assembler) ld(rd, base backend.RealReg, off int64)   { a.load(opLD, rd, base, off) }
func (a *Assembler) lw(rd, base backend.RealReg, off int64)   { a.load(opLW, rd, base, off) }
func (a *Assembler) lwu(rd, base backend.RealReg, off int64)  { a.load(opLWU, rd, base, off) }
func (a *Assembler) sd(src, base backend.RealReg, off int64)  { a.store(opSD, src, base, off) }
func (a *Assembler) sw(src, base backend.RealReg, off int64)  { a.store(opSW, src, base, off) }
func (a *Assembler) sb(src, base backend.RealReg, off int64)  { a.store(opSB, src, base, off) }
func (a *Assembler) lbu(rd, base backend.RealReg, off int64)  { a.load(opLBU, rd, base, off) }
func (a *Assembler) ori(rd, rs1 backend.RealReg, imm int64)   { a.ri(opORI, rd, rs1, imm) }
func (a *Assembler) xori(rd, rs1 backend.RealReg, imm int64)  { a.ri(opXORI, rd, rs1, imm) }
func (a *Assembler) or(rd, rs1, rs2 backend.RealReg)          { a.rr(opOR, rd, rs1, rs2) }
func (a *Assembler) and(rd, rs1, rs2 backend.RealReg)         { a.rr(opAND, rd, rs1, rs2) }
func (a *Assembler) xor(rd, rs1, rs2 backend.RealReg)         { a.rr(opXOR, rd, rs1, rs2) }

// nop emits addi zr, zr, 0.
func (a *Assembler) nop() { a.emit(opADDI, zr, zr, none, 0, 0) }

// sextw sign-extends the low 32 bits of rs into rd.
func (a *Assembler) sextw(rd, rs backend.RealReg) { a.emit(opADDIW, rd, rs, none, 0, 0) }

func (a *Assembler) lui(rd backend.RealReg, imm20 int64)   { a.emit(opLUI, rd, none, none, imm20, 0) }
func (a *Assembler) auipc(rd backend.RealReg, imm20 int64) { a.emit(opAUIPC, rd, none, none, imm20, 0) }

func (a *Assembler) jalr(rd, base backend.RealReg, off int64) {
	c1api.Check(isImm12(off), "jalr offset %d out of range", off)
	a.emit(opJALR, rd, base, none, off, 0)
}

// jr jumps to the address in rs.
func (a *Assembler) jr(rs backend.RealReg) { a.jalr(zr, rs, 0) }

func (a *Assembler) ret() { a.jalr(zr, ra, 0) }

// jalOffset emits a jal to the byte offset off relative to the jal itself.
func (a *Assembler) jalOffset(rd backend.RealReg, off int64) {
	if !fitsSigned(off, 21) {
		a.buf.Fail(reasonBranchRange)
		return
	}
	a.emit(opJAL, rd, none, none, off, 0)
}

func (a *Assembler) ecall()  { a.emit(opECALL, none, none, none, 0, 0) }
func (a *Assembler) ebreak() { a.emit(opEBREAK, none, none, none, 0, 0) }
func (a *Assembler) fencei() { a.emit(opFENCEI, none, none, none, 0, 0) }

// fence emits a fence ordering the pred accesses before the succ ones.
// A fence right after another one, with no label in between, is merged into it.
func (a *Assembler) fence(pred, succ int64) {
	off := a.Offset()
	if a.lastFence >= 0 && a.lastFence == off-4 && a.lastBind != off && !a.buf.Failed() {
		in, ok := Decode(a.buf.Uint32At(a.lastFence))
		if ok && in.Op == opFENCE {
			merged := in.Imm | pred<<4 | succ
			a.buf.PatchUint32(a.lastFence, opFENCE.encode(none, none, none, merged, 0))
			return
		}
	}
	a.lastFence = off
	a.emit(opFENCE, none, none, none, pred<<4|succ, 0)
}

// amo emits an atomic memory operation: rd = *(addr), *(addr) = f(rd, src).
func (a *Assembler) amo(o op, rd, src, addr backend.RealReg, aqrl uint32) {
	a.emit(o, rd, addr, src, 0, aqrl)
}

func (a *Assembler) lr(o op, rd, addr backend.RealReg, aqrl uint32) {
	a.emit(o, rd, addr, none, 0, aqrl)
}

// sc emits a store conditional: rd is zero when src was stored.
func (a *Assembler) sc(o op, rd, src, addr backend.RealReg, aqrl uint32) {
	a.emit(o, rd, addr, src, 0, aqrl)
}

// farith emits a float op with the dynamic rounding mode.
func (a *Assembler) farith(o op, rd, rs1, rs2 backend.RealReg) { a.emit(o, rd, rs1, rs2, rmDYN, 0) }

// fcvt emits a conversion with the rounding mode rm.
func (a *Assembler) fcvt(o op, rd, rs backend.RealReg, rm int64) { a.emit(o, rd, rs, none, rm, 0) }

func (a *Assembler) fmv(o op, rd, rs backend.RealReg) { a.emit(o, rd, rs, none, 0, 0) }

// Bind binds l to the current offset and patches the pending references.
func (a *Assembler) Bind(l *asm.Label) {
	pos := a.Offset()
	a.lastBind = pos
	for _, use := range l.Bind(pos) {
		a.patch(use, pos)
	}
}

// refer records a reference of kind to l by the instruction at off.
func (a *Assembler) refer(l *asm.Label, off int, kind byte) {
	if l.IsBound() {
		a.patch(asm.LabelUse{Offset: off, Kind: kind}, l.Position())
		return
	}
	l.AddUse(off, kind)
}

func (a *Assembler) patch(use asm.LabelUse, target int) {
	if a.buf.Failed() {
		return
	}
	rel := int64(target - use.Offset)
	w := a.buf.Uint32At(use.Offset)
	switch use.Kind {
	case useBranch:
		if !fitsSigned(rel, 13) {
			a.buf.Fail(reasonBranchRange)
			return
		}
		a.buf.PatchUint32(use.Offset, w&^bImmMask|bImmBits(rel))
	case useJAL:
		if !fitsSigned(rel, 21) {
			a.buf.Fail(reasonBranchRange)
			return
		}
		a.buf.PatchUint32(use.Offset, w&^jImmMask|jImmBits(rel))
	case usePCRel:
		hi := (rel + 0x800) >> 12
		lo := rel - hi<<12
		a.buf.PatchUint32(use.Offset, w&0xfff|uint32(hi&0xfffff)<<12)
		next := a.buf.Uint32At(use.Offset + 4)
		a.buf.PatchUint32(use.Offset+4, next&0xfffff|uint32(lo&0xfff)<<20)
	default:
		panic(fmt.Sprintf("BUG: unknown label use %d", use.Kind))
	}
}

// branch emits a conditional branch to l which must be within ±4KiB.
func (a *Assembler) branch(o op, rs1, rs2 backend.RealReg, l *asm.Label) {
	off := a.Offset()
	a.emit(o, none, rs1, rs2, 0, 0)
	a.refer(l, off, useBranch)
}

func negateBranch(o op) op {
	switch o {
	case opBEQ:
		return opBNE
	case opBNE:
		return opBEQ
	case opBLT:
		return opBGE
	case opBGE:
		return opBLT
	case opBLTU:
		return opBGEU
	case opBGEU:
		return opBLTU
	default:
		panic(fmt.Sprintf("BUG: %s is not a branch", o))
	}
}

// bcond emits a conditional branch to l of any reach within ±1MiB: the near
// form when l is bound close enough, otherwise the negated branch over a jal.
func (a *Assembler) bcond(o op, rs1, rs2 backend.RealReg, l *asm.Label) {
	if l.IsBound() && fitsSigned(int64(l.Position()-a.Offset()), 13) {
		a.branch(o, rs1, rs2, l)
		return
	}
	a.emit(negateBranch(o), none, rs1, rs2, 8, 0)
	a.j(l)
}

func (a *Assembler) beqz(rs backend.RealReg, l *asm.Label) { a.bcond(opBEQ, rs, zr, l) }
func (a *Assembler) bnez(rs backend.RealReg, l *asm.Label) { a.bcond(opBNE, rs, zr, l) }

// jal emits a jal to l, linking into rd.
func (a *Assembler) jal(rd backend.RealReg, l *asm.Label) {
	off := a.Offset()
	a.emit(opJAL, rd, none, none, 0, 0)
	a.refer(l, off, useJAL)
}

// j jumps to l.
func (a *Assembler) j(l *asm.Label) { a.jal(zr, l) }

// la loads the address of l into rd with auipc+addi.
func (a *Assembler) la(rd backend.RealReg, l *asm.Label) {
	off := a.Offset()
	a.auipc(rd, 0)
	a.emit(opADDI, rd, rd, none, 0, 0)
	a.refer(l, off, usePCRel)
}

// alignTo pads with nops until the current offset is n modulo align.
func (a *Assembler) alignTo(align, n int) {
	for a.Offset()%align != n && !a.buf.Failed() {
		a.nop()
	}
}
