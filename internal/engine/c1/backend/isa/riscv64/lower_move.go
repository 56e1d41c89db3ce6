package riscv64

import (
	"fmt"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// memLoadOp returns the load of a value of kind k from a heap or stack
// address. References are handled by the callers when oops are compressed.
func memLoadOp(k backend.ValueKind) op {
	switch k {
	case backend.KindBoolean:
		return opLBU
	case backend.KindByte:
		return opLB
	case backend.KindChar:
		return opLHU
	case backend.KindShort:
		return opLH
	case backend.KindInt:
		return opLW
	case backend.KindNarrowOop, backend.KindNarrowKlass:
		return opLWU
	case backend.KindFloat:
		return opFLW
	case backend.KindDouble:
		return opFLD
	case backend.KindLong, backend.KindObject, backend.KindArray, backend.KindAddress, backend.KindMetadata:
		return opLD
	default:
		panic(fmt.Sprintf("BUG: cannot load %s", k))
	}
}

// memStoreOp is the store counterpart of memLoadOp.
func memStoreOp(k backend.ValueKind) op {
	switch k {
	case backend.KindBoolean, backend.KindByte:
		return opSB
	case backend.KindChar, backend.KindShort:
		return opSH
	case backend.KindInt, backend.KindNarrowOop, backend.KindNarrowKlass:
		return opSW
	case backend.KindFloat:
		return opFSW
	case backend.KindDouble:
		return opFSD
	case backend.KindLong, backend.KindObject, backend.KindArray, backend.KindAddress, backend.KindMetadata:
		return opSD
	default:
		panic(fmt.Sprintf("BUG: cannot store %s", k))
	}
}

// stackLoadOp returns the load of a value of kind k from a stack slot. Slots
// of single word kinds are 4 bytes wide.
func stackLoadOp(k backend.ValueKind) op {
	switch {
	case k.IsIntLike():
		return opLW
	case k == backend.KindFloat:
		return opFLW
	case k == backend.KindNarrowOop || k == backend.KindNarrowKlass:
		return opLWU
	case k == backend.KindDouble:
		return opFLD
	default:
		return opLD
	}
}

// stackStoreOp is the store counterpart of stackLoadOp.
func stackStoreOp(k backend.ValueKind) op {
	switch {
	case k == backend.KindFloat:
		return opFSW
	case k == backend.KindDouble:
		return opFSD
	case k.Is64():
		return opSD
	default:
		return opSW
	}
}

// isOop returns true for kinds stored compressed in the heap when compressed oops are on.
func isOop(k backend.ValueKind) bool { return k == backend.KindObject || k == backend.KindArray }

func (l *lowering) compressedOop(k backend.ValueKind) bool {
	return isOop(k) && l.opts.CompressedOops
}

func stackOffset(o backend.Operand) int64 { return int64(o.StackIndex()) * backend.StackSlotSize }

// move copies src into dst. t0 and t1 are clobbered.
func (l *lowering) move(src, dst backend.Operand) {
	switch src.Kind() {
	case backend.OperandRegister:
		l.moveFromReg(src, dst)
	case backend.OperandFloatRegister:
		l.moveFromFloatReg(src, dst)
	case backend.OperandStack:
		l.moveFromStack(src, dst)
	case backend.OperandConstant:
		l.moveFromConst(src, dst)
	case backend.OperandAddress:
		l.moveFromAddress(src, dst)
	default:
		c1api.Preconditionf("cannot move from %s", src)
	}
}

func (l *lowering) moveFromReg(src, dst backend.Operand) {
	r := src.Reg()
	switch dst.Kind() {
	case backend.OperandRegister:
		l.mv(dst.Reg(), r)
	case backend.OperandFloatRegister:
		if dst.Type() == backend.KindFloat {
			l.fmv(opFMVWX, dst.Reg(), r)
		} else {
			l.fmv(opFMVDX, dst.Reg(), r)
		}
	case backend.OperandStack:
		l.storeOff(stackStoreOp(dst.Type()), r, sp, stackOffset(dst), t0)
	case backend.OperandAddress:
		l.storeRegToAddress(r, dst)
	default:
		c1api.Preconditionf("cannot move %s to %s", src, dst)
	}
}

func (l *lowering) moveFromFloatReg(src, dst backend.Operand) {
	r := src.Reg()
	single := src.Type() == backend.KindFloat
	switch dst.Kind() {
	case backend.OperandRegister:
		if single {
			l.fmv(opFMVXW, dst.Reg(), r)
		} else {
			l.fmv(opFMVXD, dst.Reg(), r)
		}
	case backend.OperandFloatRegister:
		l.mv(dst.Reg(), r)
	case backend.OperandStack:
		l.storeOff(stackStoreOp(src.Type()), r, sp, stackOffset(dst), t0)
	case backend.OperandAddress:
		base, disp := l.legitimize(dst.Addr())
		l.store(memStoreOp(src.Type()), r, base, disp)
	default:
		c1api.Preconditionf("cannot move %s to %s", src, dst)
	}
}

func (l *lowering) moveFromStack(src, dst backend.Operand) {
	off := stackOffset(src)
	k := src.Type()
	switch dst.Kind() {
	case backend.OperandRegister:
		l.loadOff(stackLoadOp(k), dst.Reg(), sp, off, dst.Reg())
	case backend.OperandFloatRegister:
		l.loadOff(stackLoadOp(k), dst.Reg(), sp, off, t0)
	case backend.OperandStack:
		ld, st := opLW, opSW
		if k.Is64() {
			ld, st = opLD, opSD
		}
		l.loadOff(ld, t1, sp, off, t1)
		l.storeOff(st, t1, sp, stackOffset(dst), t0)
	case backend.OperandAddress:
		c1api.Check(dst.Type().Is64() || !k.Is64(), "cannot move %s to %s", src, dst)
		if l.compressedOop(dst.Type()) {
			a := dst.Addr()
			c1api.Check(!a.HasIndex() || isImm12(a.Disp), "cannot store a spilled reference to %s", dst)
			l.loadOff(opLD, t1, sp, off, t1)
			l.encodeHeapOop(t1, t1, t0)
			base, disp := l.legitimize(a)
			l.sw(t1, base, disp)
			return
		}
		base, disp := l.legitimize(dst.Addr())
		ld := opLW
		if k.Is64() {
			ld = opLD
		}
		l.loadOff(ld, t1, sp, off, t1)
		l.store(memStoreOp(dst.Type()), t1, base, disp)
	default:
		c1api.Preconditionf("cannot move %s to %s", src, dst)
	}
}

// constToReg materializes the constant c into the integer register rd. Float
// constants are materialized as their raw bits.
func (l *lowering) constToReg(c backend.Operand, rd backend.RealReg) {
	bits := c.Bits()
	switch c.Type() {
	case backend.KindObject, backend.KindArray:
		if bits == 0 {
			l.mv(rd, zr)
			return
		}
		l.movptr(rd, bits)
	case backend.KindMetadata:
		l.movptr(rd, bits)
	case backend.KindNarrowOop, backend.KindNarrowKlass:
		l.li(rd, int64(uint32(bits)))
	default:
		l.li(rd, c.AsLong())
	}
}

// narrowConst returns the compressed form of a non-null reference constant.
func (l *lowering) narrowConst(addr uint64) int64 {
	o := l.opts
	return int64(uint32((addr - o.OopBase) >> o.OopShift))
}

func (l *lowering) moveFromConst(src, dst backend.Operand) {
	switch dst.Kind() {
	case backend.OperandRegister:
		l.constToReg(src, dst.Reg())
	case backend.OperandFloatRegister:
		r := zr
		if !src.IsZeroConstant() {
			l.li(t0, int64(src.Bits()))
			r = t0
		}
		if dst.Type() == backend.KindFloat {
			l.fmv(opFMVWX, dst.Reg(), r)
		} else {
			l.fmv(opFMVDX, dst.Reg(), r)
		}
	case backend.OperandStack:
		r := zr
		if !src.IsZeroConstant() {
			l.constToReg(src, t1)
			r = t1
		}
		l.storeOff(stackStoreOp(dst.Type()), r, sp, stackOffset(dst), t0)
	case backend.OperandAddress:
		base, disp := l.legitimize(dst.Addr())
		k := dst.Type()
		st := memStoreOp(k)
		if k.IsFloat() {
			st = opSW
			if k == backend.KindDouble {
				st = opSD
			}
		}
		r := zr
		switch {
		case src.IsZeroConstant():
		case l.compressedOop(k):
			l.li(t1, l.narrowConst(src.Bits()))
			r = t1
		default:
			l.constToReg(src, t1)
			r = t1
		}
		if l.compressedOop(k) {
			st = opSW
		}
		l.store(st, r, base, disp)
	default:
		c1api.Preconditionf("cannot move %s to %s", src, dst)
	}
}

func (l *lowering) moveFromAddress(src, dst backend.Operand) {
	k := src.Type()
	switch dst.Kind() {
	case backend.OperandRegister:
		l.loadRegFromAddress(dst.Reg(), src)
	case backend.OperandFloatRegister:
		base, disp := l.legitimize(src.Addr())
		l.load(memLoadOp(k), dst.Reg(), base, disp)
	case backend.OperandStack:
		c1api.Check(!k.IsFloat(), "cannot move %s to %s", src, dst)
		l.loadRegFromAddress(t1, src)
		l.storeOff(stackStoreOp(dst.Type()), t1, sp, stackOffset(dst), t0)
	default:
		c1api.Preconditionf("cannot move %s to %s", src, dst)
	}
}

// loadRegFromAddress loads the value of the address operand src into rd,
// expanding compressed references.
func (l *lowering) loadRegFromAddress(rd backend.RealReg, src backend.Operand) {
	k := src.Type()
	base, disp := l.legitimize(src.Addr())
	if l.compressedOop(k) {
		l.lwu(rd, base, disp)
		tmp := t1
		if rd == t1 {
			tmp = t0
		}
		l.decodeHeapOop(rd, tmp)
		return
	}
	l.load(memLoadOp(k), rd, base, disp)
}

// storeRegToAddress stores the integer register r to the address operand
// dst, compressing references.
func (l *lowering) storeRegToAddress(r backend.RealReg, dst backend.Operand) {
	base, disp := l.legitimize(dst.Addr())
	if l.compressedOop(dst.Type()) {
		l.encodeHeapOop(t1, r, t1)
		l.sw(t1, base, disp)
		return
	}
	l.store(memStoreOp(dst.Type()), r, base, disp)
}

// srcReg returns a register holding the integer operand o: its own register,
// zr for zero, or scratch loaded with the constant.
func (l *lowering) srcReg(o backend.Operand, scratch backend.RealReg) backend.RealReg {
	switch {
	case o.IsCPURegister():
		return o.Reg()
	case o.IsZeroConstant():
		return zr
	case o.IsConstant():
		l.constToReg(o, scratch)
		return scratch
	case o.IsStack():
		l.loadOff(stackLoadOp(o.Type()), scratch, sp, stackOffset(o), scratch)
		return scratch
	default:
		c1api.Preconditionf("operand %s cannot be used as an integer source", o)
		return zr
	}
}
