package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// is32 returns true for the kinds computed with the *w instructions, whose
// results stay sign-extended from bit 31.
func is32(k backend.ValueKind) bool { return k.IsIntLike() }

type arithOps struct {
	w, d op
}

var intArithOps = map[backend.Opcode]arithOps{
	backend.OpAdd: {opADDW, opADD},
	backend.OpSub: {opSUBW, opSUB},
	backend.OpMul: {opMULW, opMUL},
	backend.OpDiv: {opDIVW, opDIV},
	backend.OpRem: {opREMW, opREM},
	backend.OpAnd: {opAND, opAND},
	backend.OpOr:  {opOR, opOR},
	backend.OpXor: {opXOR, opXOR},
}

var immLogicOps = map[backend.Opcode]op{
	backend.OpAnd: opANDI,
	backend.OpOr:  opORI,
	backend.OpXor: opXORI,
}

var floatArithOps = map[backend.Opcode]arithOps{
	backend.OpAdd: {opFADDS, opFADDD},
	backend.OpSub: {opFSUBS, opFSUBD},
	backend.OpMul: {opFMULS, opFMULD},
	backend.OpDiv: {opFDIVS, opFDIVD},
}

func (l *lowering) lowerArith(ins *backend.Instruction) {
	left, right, res := ins.In[0], ins.In[1], ins.Result
	if left.Type().IsFloat() {
		l.lowerFloatArith(ins)
		return
	}
	k := left.Type()
	rd := reg(res, "arithmetic result")
	rs1 := reg(left, "left operand")
	ops := intArithOps[ins.Op]
	o := ops.d
	if is32(k) {
		o = ops.w
	}

	if right.IsConstant() {
		imm := right.AsLong()
		switch ins.Op {
		case backend.OpAdd, backend.OpSub:
			if ins.Op == backend.OpSub {
				imm = -imm
			}
			if isImm12(imm) {
				if is32(k) {
					l.addiw(rd, rs1, imm)
				} else {
					l.addi(rd, rs1, imm)
				}
				return
			}
		case backend.OpAnd, backend.OpOr, backend.OpXor:
			if isImm12(imm) {
				l.ri(immLogicOps[ins.Op], rd, rs1, imm)
				return
			}
		case backend.OpDiv, backend.OpRem:
			if imm == 0 {
				l.divByZero(ins.Info)
				return
			}
		}
	}

	rs2 := l.srcReg(right, t0)
	if ins.Op == backend.OpDiv || ins.Op == backend.OpRem {
		if !right.IsConstant() {
			l.checkDivisor(rs2, ins.Info)
		}
	}
	l.rr(o, rd, rs1, rs2)
}

// checkDivisor branches to the divide by zero stub when divisor is zero.
// Division overflow needs no check: div and rem yield the managed results
// for MIN / -1.
func (l *lowering) checkDivisor(divisor backend.RealReg, info *backend.CodeEmitInfo) {
	if info == nil {
		return
	}
	s := &divByZeroStub{info: info}
	l.addStub(s)
	l.beqz(divisor, &s.entry)
}

func (l *lowering) divByZero(info *backend.CodeEmitInfo) {
	c1api.Check(info != nil, "division by constant zero without debug info")
	s := &divByZeroStub{info: info}
	l.addStub(s)
	l.j(&s.entry)
}

func (l *lowering) lowerFloatArith(ins *backend.Instruction) {
	c1api.Check(ins.Op != backend.OpRem, "float remainder must be a runtime call")
	ops, ok := floatArithOps[ins.Op]
	c1api.Check(ok, "%s is not a float operation", ins.Op)
	o := ops.d
	if ins.In[0].Type() == backend.KindFloat {
		o = ops.w
	}
	l.farith(o, freg(ins.Result, "float result"), freg(ins.In[0], "left operand"), freg(ins.In[1], "right operand"))
}

func (l *lowering) lowerShift(ins *backend.Instruction) {
	left, count, res := ins.In[0], ins.In[1], ins.Result
	rd := reg(res, "shift result")
	rs := reg(left, "shifted value")
	w := is32(left.Type())
	if count.IsConstant() {
		if w {
			n := count.AsLong() & 31
			switch ins.Op {
			case backend.OpShl:
				l.shifti(opSLLIW, rd, rs, n)
			case backend.OpShr:
				l.shifti(opSRAIW, rd, rs, n)
			default:
				l.shifti(opSRLIW, rd, rs, n)
			}
			return
		}
		n := count.AsLong() & 63
		switch ins.Op {
		case backend.OpShl:
			l.slli(rd, rs, n)
		case backend.OpShr:
			l.srai(rd, rs, n)
		default:
			l.srli(rd, rs, n)
		}
		return
	}
	c := reg(count, "shift count")
	switch {
	case ins.Op == backend.OpShl && w:
		l.rr(opSLLW, rd, rs, c)
	case ins.Op == backend.OpShr && w:
		l.rr(opSRAW, rd, rs, c)
	case w:
		l.rr(opSRLW, rd, rs, c)
	case ins.Op == backend.OpShl:
		l.rr(opSLL, rd, rs, c)
	case ins.Op == backend.OpShr:
		l.rr(opSRA, rd, rs, c)
	default:
		l.rr(opSRL, rd, rs, c)
	}
}

func (l *lowering) lowerNeg(ins *backend.Instruction) {
	src, res := ins.In[0], ins.Result
	switch src.Type() {
	case backend.KindFloat:
		r := freg(src, "negated value")
		l.rr(opFSGNJNS, freg(res, "result"), r, r)
	case backend.KindDouble:
		r := freg(src, "negated value")
		l.rr(opFSGNJND, freg(res, "result"), r, r)
	default:
		if is32(src.Type()) {
			l.rr(opSUBW, reg(res, "result"), zr, reg(src, "negated value"))
		} else {
			l.sub(reg(res, "result"), zr, reg(src, "negated value"))
		}
	}
}

// lowerConvert emits the managed numeric conversions. Float to integer
// conversions truncate and saturate like fcvt with rtz, and map NaN to zero.
func (l *lowering) lowerConvert(ins *backend.Instruction) {
	src, res := ins.In[0], ins.Result
	switch ins.Conv {
	case backend.ConvI2L, backend.ConvL2I:
		l.sextw(reg(res, "result"), reg(src, "source"))
	case backend.ConvI2B:
		rd := reg(res, "result")
		l.slli(rd, reg(src, "source"), 56)
		l.srai(rd, rd, 56)
	case backend.ConvI2S:
		rd := reg(res, "result")
		l.slli(rd, reg(src, "source"), 48)
		l.srai(rd, rd, 48)
	case backend.ConvI2C:
		rd := reg(res, "result")
		l.slli(rd, reg(src, "source"), 48)
		l.srli(rd, rd, 48)
	case backend.ConvI2F:
		l.fcvt(opFCVTSW, freg(res, "result"), reg(src, "source"), rmDYN)
	case backend.ConvI2D:
		l.fcvt(opFCVTDW, freg(res, "result"), reg(src, "source"), rmDYN)
	case backend.ConvL2F:
		l.fcvt(opFCVTSL, freg(res, "result"), reg(src, "source"), rmDYN)
	case backend.ConvL2D:
		l.fcvt(opFCVTDL, freg(res, "result"), reg(src, "source"), rmDYN)
	case backend.ConvF2D:
		l.fcvt(opFCVTDS, freg(res, "result"), freg(src, "source"), rmDYN)
	case backend.ConvD2F:
		l.fcvt(opFCVTSD, freg(res, "result"), freg(src, "source"), rmDYN)
	case backend.ConvF2I:
		l.safeFloatToInt(opFCVTWS, opFEQS, res, src)
	case backend.ConvF2L:
		l.safeFloatToInt(opFCVTLS, opFEQS, res, src)
	case backend.ConvD2I:
		l.safeFloatToInt(opFCVTWD, opFEQD, res, src)
	case backend.ConvD2L:
		l.safeFloatToInt(opFCVTLD, opFEQD, res, src)
	default:
		c1api.Preconditionf("unknown conversion %s", ins.Conv)
	}
}

func (l *lowering) safeFloatToInt(cvt, feq op, res, src backend.Operand) {
	rd, fs := reg(res, "result"), freg(src, "source")
	var done asm.Label
	l.fcvt(cvt, rd, fs, rmRTZ)
	l.rr(feq, t0, fs, fs)
	l.branch(opBNE, t0, zr, &done)
	l.mv(rd, zr)
	l.Bind(&done)
}
