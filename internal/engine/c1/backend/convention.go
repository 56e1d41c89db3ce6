package backend

import "fmt"

// ConventionKind distinguishes the managed convention used between compiled
// methods from the native convention of the platform C ABI.
type ConventionKind byte

const (
	ConventionManaged ConventionKind = iota
	ConventionNative
)

// String implements fmt.Stringer.
func (k ConventionKind) String() string {
	switch k {
	case ConventionManaged:
		return "managed"
	case ConventionNative:
		return "native"
	default:
		panic("BUG")
	}
}

// Direction tells whether stack locations are seen by the caller, which
// stores outgoing arguments relative to its stack pointer, or by the callee,
// which reads incoming arguments relative to its frame pointer.
type Direction byte

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == DirectionIncoming {
		return "incoming"
	}
	return "outgoing"
}

// CallingConvention assigns argument locations. Values are built once at
// start-up by the target and never mutated.
type CallingConvention struct {
	Name string
	Kind ConventionKind
	// IntArgs and FloatArgs are the argument registers in assignment order.
	IntArgs, FloatArgs []RealReg
	// IntResult and FloatResult hold results.
	IntResult, FloatResult RealReg
	// IncomingBias is the number of slots between the callee frame pointer and
	// the first incoming stack argument.
	IncomingBias int
}

// Map is the calling convention mapper: it returns the location of every
// element of sig.Expanded() and the number of stack slots used by the
// arguments. Map has no state, the same inputs always give the same result.
func Map(sig *Signature, cc *CallingConvention, dir Direction) ([]Location, int) {
	return cc.MapKinds(sig.Expanded(), dir)
}

// MapKinds is Map on an expanded kind list, where every long and double is
// followed by KindVoid. The void halves get InvalidLocation.
func (cc *CallingConvention) MapKinds(kinds []ValueKind, dir Direction) ([]Location, int) {
	_ = dir // Slots are numbered identically in both directions, see StackByteOffset.
	locs := make([]Location, len(kinds))
	var ints, floats, stk int
	nextStack := func() Location {
		l := StackLocation(stk)
		stk += SlotsPerWord
		return l
	}
	for i, k := range kinds {
		switch k {
		case KindVoid:
			if i == 0 || !kinds[i-1].IsDoubleWord() {
				panic(fmt.Sprintf("BUG: void at %d does not follow a long or double", i))
			}
			locs[i] = InvalidLocation
		case KindBoolean, KindChar, KindByte, KindShort, KindInt,
			KindLong, KindObject, KindArray, KindAddress, KindMetadata, KindNarrowOop, KindNarrowKlass:
			if k.IsDoubleWord() && (i+1 >= len(kinds) || kinds[i+1] != KindVoid) {
				panic(fmt.Sprintf("BUG: %s at %d is not followed by void", k, i))
			}
			if k == KindMetadata && cc.Kind == ConventionManaged {
				panic("BUG: metadata argument in the managed convention")
			}
			if ints < len(cc.IntArgs) {
				locs[i] = RegLocation(cc.IntArgs[ints])
				ints++
			} else {
				locs[i] = nextStack()
			}
		case KindFloat, KindDouble:
			if k == KindDouble && (i+1 >= len(kinds) || kinds[i+1] != KindVoid) {
				panic(fmt.Sprintf("BUG: double at %d is not followed by void", i))
			}
			switch {
			case floats < len(cc.FloatArgs):
				locs[i] = RegLocation(cc.FloatArgs[floats])
				floats++
			case cc.Kind == ConventionNative && ints < len(cc.IntArgs):
				locs[i] = RegLocation(cc.IntArgs[ints])
				ints++
			default:
				locs[i] = nextStack()
			}
		default:
			panic(fmt.Sprintf("BUG: cannot pass %s", k))
		}
	}
	if cc.Kind == ConventionManaged {
		stk = alignUp(stk, SlotsPerWord)
	}
	return locs, stk
}

// StackByteOffset returns the byte offset of a stack argument location: from
// the stack pointer for outgoing arguments, from the frame pointer for
// incoming ones.
func (cc *CallingConvention) StackByteOffset(l Location, dir Direction) int64 {
	if dir == DirectionIncoming {
		return int64(l.Slot+cc.IncomingBias) * StackSlotSize
	}
	return l.ByteOffset()
}

// ResultLocation returns where a result of kind k is returned.
func (cc *CallingConvention) ResultLocation(k ValueKind) Location {
	switch {
	case k == KindVoid:
		return InvalidLocation
	case k.IsFloat():
		return RegLocation(cc.FloatResult)
	default:
		return RegLocation(cc.IntResult)
	}
}

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// AlignUp rounds n up to a multiple of the power of two a.
func AlignUp(n, a int) int { return alignUp(n, a) }
