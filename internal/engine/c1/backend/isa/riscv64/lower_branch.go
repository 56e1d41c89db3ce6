package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

func (l *lowering) lowerCmpBranch(ins *backend.Instruction) {
	target := l.label(ins.Target)
	if ins.Cond == backend.CondAlways {
		l.j(target)
		return
	}
	l.condBranch(ins.Cond, ins.In[0], ins.In[1], ins.UnorderedIsTrue, target)
}

// condBranch jumps to target when left cond right holds. For floats a NaN
// operand takes the branch iff unorderedIsTrue.
func (l *lowering) condBranch(cond backend.Condition, left, right backend.Operand, unorderedIsTrue bool, target *asm.Label) {
	if left.Type().IsFloat() {
		l.floatCondBranch(cond, left, right, unorderedIsTrue, target)
		return
	}
	a := l.srcReg(left, t0)
	b := l.srcReg(right, t1)
	switch cond {
	case backend.CondEqual:
		l.bcond(opBEQ, a, b, target)
	case backend.CondNotEqual:
		l.bcond(opBNE, a, b, target)
	case backend.CondLess:
		l.bcond(opBLT, a, b, target)
	case backend.CondGreaterEqual:
		l.bcond(opBGE, a, b, target)
	case backend.CondLessEqual:
		l.bcond(opBGE, b, a, target)
	case backend.CondGreater:
		l.bcond(opBLT, b, a, target)
	case backend.CondBelowEqual:
		l.bcond(opBGEU, b, a, target)
	case backend.CondAboveEqual:
		l.bcond(opBGEU, a, b, target)
	default:
		c1api.Preconditionf("cannot branch on %s", cond)
	}
}

// floatCompare computes into t0 the predicate of cond on a and b, or its
// negation with unordered operands included when negate is set. It returns
// the compare ops for kind k.
func (l *lowering) floatPredicate(cond backend.Condition, k backend.ValueKind, a, b backend.RealReg, unorderedIsTrue bool) {
	feq, flt, fle := opFEQD, opFLTD, opFLED
	if k == backend.KindFloat {
		feq, flt, fle = opFEQS, opFLTS, opFLES
	}
	if !unorderedIsTrue {
		// t0 = cond holds, false for NaN.
		switch cond {
		case backend.CondLess:
			l.rr(flt, t0, a, b)
		case backend.CondLessEqual:
			l.rr(fle, t0, a, b)
		case backend.CondGreater:
			l.rr(flt, t0, b, a)
		case backend.CondGreaterEqual:
			l.rr(fle, t0, b, a)
		case backend.CondEqual:
			l.rr(feq, t0, a, b)
		case backend.CondNotEqual:
			l.rr(flt, t0, a, b)
			l.rr(flt, t1, b, a)
			l.or(t0, t0, t1)
		default:
			c1api.Preconditionf("cannot compare floats with %s", cond)
		}
		return
	}
	// t0 = the negated condition holds, false for NaN: cond or unordered
	// holds iff t0 is zero.
	switch cond {
	case backend.CondLess:
		l.rr(fle, t0, b, a)
	case backend.CondLessEqual:
		l.rr(flt, t0, b, a)
	case backend.CondGreater:
		l.rr(fle, t0, a, b)
	case backend.CondGreaterEqual:
		l.rr(flt, t0, a, b)
	case backend.CondEqual:
		l.rr(flt, t0, a, b)
		l.rr(flt, t1, b, a)
		l.or(t0, t0, t1)
	case backend.CondNotEqual:
		l.rr(feq, t0, a, b)
	default:
		c1api.Preconditionf("cannot compare floats with %s", cond)
	}
}

func (l *lowering) floatCondBranch(cond backend.Condition, left, right backend.Operand, unorderedIsTrue bool, target *asm.Label) {
	a, b := freg(left, "left operand"), freg(right, "right operand")
	l.floatPredicate(cond, left.Type(), a, b, unorderedIsTrue)
	if unorderedIsTrue {
		l.beqz(t0, target)
	} else {
		l.bnez(t0, target)
	}
}

func (l *lowering) lowerCmove(ins *backend.Instruction) {
	var isTrue, done asm.Label
	l.condBranch(ins.Cond, ins.In[0], ins.In[1], ins.UnorderedIsTrue, &isTrue)
	l.move(ins.In[3], ins.Result)
	l.j(&done)
	l.Bind(&isTrue)
	l.move(ins.In[2], ins.Result)
	l.Bind(&done)
}

func (l *lowering) lowerCmp3(ins *backend.Instruction) {
	left, right := ins.In[0], ins.In[1]
	rd := reg(ins.Result, "compare result")
	if !left.Type().IsFloat() {
		a := reg(left, "left operand")
		b := l.srcReg(right, t1)
		l.rr(opSLT, t0, a, b)
		l.rr(opSLT, t1, b, a)
		l.sub(rd, t1, t0)
		return
	}
	a, b := freg(left, "left operand"), freg(right, "right operand")
	flt, fle := opFLTD, opFLED
	if left.Type() == backend.KindFloat {
		flt, fle = opFLTS, opFLES
	}
	if ins.UnorderedIsTrue {
		// Unordered yields -1.
		l.rr(flt, rd, b, a)
		l.rr(fle, t0, b, a)
		l.addi(t0, t0, -1)
		l.add(rd, rd, t0)
		return
	}
	// Unordered yields 1.
	l.rr(flt, t0, a, b)
	l.rr(fle, rd, a, b)
	l.xori(rd, rd, 1)
	l.sub(rd, rd, t0)
}
