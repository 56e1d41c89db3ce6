package backend

import "fmt"

// RealReg is a physical register of the target. Integer registers are numbered
// 0..31 and float registers 32..63.
type RealReg byte

// RealRegInvalid is the "no register" value.
const RealRegInvalid RealReg = 0xff

const numIntRegs = 32

// IntReg returns the n-th integer register.
func IntReg(n int) RealReg {
	if n < 0 || n >= numIntRegs {
		panic(fmt.Sprintf("BUG: invalid integer register %d", n))
	}
	return RealReg(n)
}

// FloatReg returns the n-th float register.
func FloatReg(n int) RealReg {
	if n < 0 || n >= numIntRegs {
		panic(fmt.Sprintf("BUG: invalid float register %d", n))
	}
	return RealReg(numIntRegs + n)
}

// IsValid returns false for RealRegInvalid.
func (r RealReg) IsValid() bool { return r < 2*numIntRegs }

// IsFloat returns true for float registers.
func (r RealReg) IsFloat() bool { return r.IsValid() && r >= numIntRegs }

// Encoding returns the 5-bit register number used in instruction encodings.
func (r RealReg) Encoding() uint32 {
	if !r.IsValid() {
		panic("BUG: encoding of invalid register")
	}
	return uint32(r) & (numIntRegs - 1)
}

// String implements fmt.Stringer.
func (r RealReg) String() string {
	switch {
	case !r.IsValid():
		return "invalid"
	case r.IsFloat():
		return fmt.Sprintf("f%d", r-numIntRegs)
	default:
		return fmt.Sprintf("x%d", r)
	}
}

// StackSlotSize is the size in bytes of one logical stack slot.
const StackSlotSize = 4

// StackAlignment is the required alignment of the stack pointer at calls.
const StackAlignment = 16

// SlotsPerWord is the number of stack slots in a machine word.
const SlotsPerWord = 2

// LocationKind is the kind of Location.
type LocationKind byte

const (
	LocationInvalid LocationKind = iota
	LocationRegister
	LocationFloatRegister
	LocationStack
)

// String implements fmt.Stringer.
func (k LocationKind) String() string {
	switch k {
	case LocationInvalid:
		return "invalid"
	case LocationRegister:
		return "reg"
	case LocationFloatRegister:
		return "freg"
	case LocationStack:
		return "stack"
	default:
		panic("BUG")
	}
}

// Location is the physical home of one value: a register, a float register or
// a stack slot. Stack slots are numbered in StackSlotSize units. A 64-bit value
// occupies one register, or two consecutive stack slots starting at Slot.
type Location struct {
	Kind LocationKind
	// Reg is valid for LocationRegister and LocationFloatRegister.
	Reg RealReg
	// Slot is valid for LocationStack.
	Slot int
}

// InvalidLocation is the zero Location, used for the second half of two-slot values.
var InvalidLocation = Location{}

// RegLocation returns the Location of a register.
func RegLocation(r RealReg) Location {
	if r.IsFloat() {
		return Location{Kind: LocationFloatRegister, Reg: r}
	}
	if !r.IsValid() {
		panic("BUG: location of invalid register")
	}
	return Location{Kind: LocationRegister, Reg: r}
}

// StackLocation returns the Location of the stack slot.
func StackLocation(slot int) Location {
	if slot < 0 {
		panic(fmt.Sprintf("BUG: negative stack slot %d", slot))
	}
	return Location{Kind: LocationStack, Slot: slot}
}

// IsValid returns true unless l is InvalidLocation.
func (l Location) IsValid() bool { return l.Kind != LocationInvalid }

// IsReg returns true for integer and float register locations.
func (l Location) IsReg() bool {
	return l.Kind == LocationRegister || l.Kind == LocationFloatRegister
}

// IsStack returns true for stack locations.
func (l Location) IsStack() bool { return l.Kind == LocationStack }

// ByteOffset returns the byte offset of a stack location relative to its base.
func (l Location) ByteOffset() int64 {
	if !l.IsStack() {
		panic("BUG: byte offset of a non-stack location " + l.String())
	}
	return int64(l.Slot) * StackSlotSize
}

// Aliases returns true if writing a 64-bit value at l can clobber a 64-bit
// value at o.
func (l Location) Aliases(o Location) bool {
	switch {
	case l.IsReg() && o.IsReg():
		return l.Reg == o.Reg
	case l.IsStack() && o.IsStack():
		d := l.Slot - o.Slot
		return d > -SlotsPerWord && d < SlotsPerWord
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (l Location) String() string {
	switch l.Kind {
	case LocationRegister, LocationFloatRegister:
		return l.Reg.String()
	case LocationStack:
		return fmt.Sprintf("stack[%d]", l.ByteOffset())
	default:
		return "-"
	}
}
