package backend

import (
	"fmt"
	"math"
)

// OperandKind is the variant of an Operand. The set is closed: lowering code
// switches over all of them and panics on anything else.
type OperandKind byte

const (
	OperandIllegal OperandKind = iota
	OperandRegister
	OperandFloatRegister
	OperandStack
	OperandConstant
	OperandAddress
)

// String implements fmt.Stringer.
func (k OperandKind) String() string {
	switch k {
	case OperandIllegal:
		return "illegal"
	case OperandRegister:
		return "register"
	case OperandFloatRegister:
		return "fregister"
	case OperandStack:
		return "stack"
	case OperandConstant:
		return "constant"
	case OperandAddress:
		return "address"
	default:
		panic("BUG")
	}
}

// Address is a memory operand: Base + Index<<Scale + Disp.
type Address struct {
	Base RealReg
	// Index is RealRegInvalid when there is no index register.
	Index RealReg
	// Scale is the left shift applied to Index.
	Scale byte
	Disp  int64
}

// BaseDisp returns an Address without index.
func BaseDisp(base RealReg, disp int64) Address {
	return Address{Base: base, Index: RealRegInvalid, Disp: disp}
}

// HasIndex returns true when the address has an index register.
func (a Address) HasIndex() bool { return a.Index != RealRegInvalid }

// String implements fmt.Stringer.
func (a Address) String() string {
	if a.HasIndex() {
		return fmt.Sprintf("[%s+%s<<%d%+d]", a.Base, a.Index, a.Scale, a.Disp)
	}
	return fmt.Sprintf("[%s%+d]", a.Base, a.Disp)
}

// Operand is one input or output of an Instruction.
//
// The value kind decides the width: int-like, float and narrow kinds are single
// word, long, double, references and addresses double word. A double word
// integer register operand is a pair (lo, hi); on a 64-bit target both halves
// name the same register.
type Operand struct {
	kind OperandKind
	typ  ValueKind
	lo   RealReg
	hi   RealReg
	slot int
	bits uint64
	addr Address
}

// IllegalOperand is the "no operand" value.
var IllegalOperand = Operand{}

// RegisterOperand returns an integer register operand of kind t.
func RegisterOperand(r RealReg, t ValueKind) Operand {
	if r.IsFloat() || !r.IsValid() || t.IsFloat() {
		panic(fmt.Sprintf("BUG: %s is not an integer register operand of %s", r, t))
	}
	return Operand{kind: OperandRegister, typ: t, lo: r, hi: r}
}

// RegisterPairOperand returns a double word integer operand held in (lo, hi).
func RegisterPairOperand(lo, hi RealReg, t ValueKind) Operand {
	if !t.Is64() || t.IsFloat() {
		panic(fmt.Sprintf("BUG: register pair of %s", t))
	}
	return Operand{kind: OperandRegister, typ: t, lo: lo, hi: hi}
}

// FloatRegisterOperand returns a float register operand of kind t.
func FloatRegisterOperand(r RealReg, t ValueKind) Operand {
	if !r.IsFloat() || !t.IsFloat() {
		panic(fmt.Sprintf("BUG: %s is not a float register operand of %s", r, t))
	}
	return Operand{kind: OperandFloatRegister, typ: t, lo: r, hi: r}
}

// StackOperand returns a stack slot operand of kind t. Double word kinds
// occupy slots index and index+1.
func StackOperand(index int, t ValueKind) Operand {
	if index < 0 {
		panic(fmt.Sprintf("BUG: negative stack index %d", index))
	}
	return Operand{kind: OperandStack, typ: t, slot: index}
}

// AddressOperand returns a memory operand accessed as kind t.
func AddressOperand(a Address, t ValueKind) Operand {
	return Operand{kind: OperandAddress, typ: t, addr: a}
}

// IntConst returns an int constant.
func IntConst(v int32) Operand {
	return Operand{kind: OperandConstant, typ: KindInt, bits: uint64(uint32(v))}
}

// LongConst returns a long constant.
func LongConst(v int64) Operand {
	return Operand{kind: OperandConstant, typ: KindLong, bits: uint64(v)}
}

// FloatConst returns a float constant.
func FloatConst(v float32) Operand {
	return Operand{kind: OperandConstant, typ: KindFloat, bits: uint64(math.Float32bits(v))}
}

// DoubleConst returns a double constant.
func DoubleConst(v float64) Operand {
	return Operand{kind: OperandConstant, typ: KindDouble, bits: math.Float64bits(v)}
}

// ObjectConst returns a reference constant given as the address of the object, zero for null.
func ObjectConst(addr uint64) Operand {
	return Operand{kind: OperandConstant, typ: KindObject, bits: addr}
}

// MetadataConst returns a constant pointing to VM metadata.
func MetadataConst(addr uint64) Operand {
	return Operand{kind: OperandConstant, typ: KindMetadata, bits: addr}
}

// AddressConst returns a raw address constant.
func AddressConst(addr uint64) Operand {
	return Operand{kind: OperandConstant, typ: KindAddress, bits: addr}
}

// Kind returns the variant of o.
func (o Operand) Kind() OperandKind { return o.kind }

// Type returns the value kind of o.
func (o Operand) Type() ValueKind { return o.typ }

// IsIllegal returns true for IllegalOperand.
func (o Operand) IsIllegal() bool { return o.kind == OperandIllegal }

// IsRegister returns true for integer and float register operands.
func (o Operand) IsRegister() bool {
	return o.kind == OperandRegister || o.kind == OperandFloatRegister
}

// IsCPURegister returns true for integer register operands.
func (o Operand) IsCPURegister() bool { return o.kind == OperandRegister }

// IsFloatRegister returns true for float register operands.
func (o Operand) IsFloatRegister() bool { return o.kind == OperandFloatRegister }

// IsStack returns true for stack operands.
func (o Operand) IsStack() bool { return o.kind == OperandStack }

// IsConstant returns true for constants.
func (o Operand) IsConstant() bool { return o.kind == OperandConstant }

// IsAddress returns true for memory operands.
func (o Operand) IsAddress() bool { return o.kind == OperandAddress }

// IsSingleWord returns true if o occupies one logical slot.
func (o Operand) IsSingleWord() bool { return o.typ.SlotCount() == 1 }

// IsDoubleWord returns true if o occupies two logical slots.
func (o Operand) IsDoubleWord() bool { return o.typ.SlotCount() == 2 }

// Reg returns the register of a single register operand, or the low register of a pair.
func (o Operand) Reg() RealReg {
	if !o.IsRegister() {
		panic(fmt.Sprintf("BUG: Reg of %s operand", o.kind))
	}
	return o.lo
}

// RegLo returns the low register of an integer operand.
func (o Operand) RegLo() RealReg { return o.Reg() }

// RegHi returns the high register of an integer operand.
func (o Operand) RegHi() RealReg {
	if o.kind != OperandRegister {
		panic(fmt.Sprintf("BUG: RegHi of %s operand", o.kind))
	}
	return o.hi
}

// StackIndex returns the slot index of a stack operand.
func (o Operand) StackIndex() int {
	if o.kind != OperandStack {
		panic(fmt.Sprintf("BUG: StackIndex of %s operand", o.kind))
	}
	return o.slot
}

// Addr returns the memory address of an address operand.
func (o Operand) Addr() Address {
	if o.kind != OperandAddress {
		panic(fmt.Sprintf("BUG: Addr of %s operand", o.kind))
	}
	return o.addr
}

// Bits returns the raw bits of a constant.
func (o Operand) Bits() uint64 {
	if o.kind != OperandConstant {
		panic(fmt.Sprintf("BUG: Bits of %s operand", o.kind))
	}
	return o.bits
}

// AsInt returns the value of an int constant.
func (o Operand) AsInt() int32 { return int32(uint32(o.Bits())) }

// AsLong returns the value of an integral constant widened to 64 bits. Int
// constants are sign extended.
func (o Operand) AsLong() int64 {
	if o.typ.IsIntLike() {
		return int64(o.AsInt())
	}
	return int64(o.Bits())
}

// AsFloat returns the value of a float constant.
func (o Operand) AsFloat() float32 { return math.Float32frombits(uint32(o.Bits())) }

// AsDouble returns the value of a double constant.
func (o Operand) AsDouble() float64 { return math.Float64frombits(o.Bits()) }

// IsZeroConstant returns true for constants whose bits are all zero, including null.
func (o Operand) IsZeroConstant() bool { return o.kind == OperandConstant && o.bits == 0 }

// Location returns the physical home of a register or stack operand.
func (o Operand) Location() Location {
	switch o.kind {
	case OperandRegister, OperandFloatRegister:
		return RegLocation(o.lo)
	case OperandStack:
		return StackLocation(o.slot)
	default:
		panic(fmt.Sprintf("BUG: %s operand has no location", o.kind))
	}
}

// OperandAt returns the operand of kind t which lives at loc.
func OperandAt(loc Location, t ValueKind) Operand {
	switch loc.Kind {
	case LocationRegister:
		return RegisterOperand(loc.Reg, t)
	case LocationFloatRegister:
		return FloatRegisterOperand(loc.Reg, t)
	case LocationStack:
		return StackOperand(loc.Slot, t)
	default:
		panic("BUG: operand at invalid location")
	}
}

// String implements fmt.Stringer.
func (o Operand) String() string {
	switch o.kind {
	case OperandIllegal:
		return "-"
	case OperandRegister:
		if o.lo != o.hi {
			return fmt.Sprintf("%s:%s|%s", o.typ, o.lo, o.hi)
		}
		return fmt.Sprintf("%s:%s", o.typ, o.lo)
	case OperandFloatRegister:
		return fmt.Sprintf("%s:%s", o.typ, o.lo)
	case OperandStack:
		return fmt.Sprintf("%s:stack[%d]", o.typ, o.slot*StackSlotSize)
	case OperandConstant:
		switch o.typ {
		case KindFloat:
			return fmt.Sprintf("float:%v", o.AsFloat())
		case KindDouble:
			return fmt.Sprintf("double:%v", o.AsDouble())
		case KindInt:
			return fmt.Sprintf("int:%d", o.AsInt())
		case KindLong:
			return fmt.Sprintf("long:%d", int64(o.bits))
		default:
			return fmt.Sprintf("%s:%#x", o.typ, o.bits)
		}
	case OperandAddress:
		return fmt.Sprintf("%s:%s", o.typ, o.addr)
	default:
		panic("BUG")
	}
}
