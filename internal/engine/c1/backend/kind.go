package backend

import "fmt"

// ValueKind is the type of a value as seen by the code generator.
type ValueKind byte

const (
	KindInvalid ValueKind = iota
	KindBoolean
	KindChar
	KindFloat
	KindDouble
	KindByte
	KindShort
	KindInt
	KindLong
	KindObject
	KindArray
	// KindVoid is the second logical half of a long or double, and the "no value" return kind.
	KindVoid
	// KindAddress is a raw machine address, never a reference.
	KindAddress
	// KindNarrowOop is a compressed reference.
	KindNarrowOop
	// KindMetadata is a pointer to VM metadata such as a method or type descriptor.
	KindMetadata
	// KindNarrowKlass is a compressed type descriptor pointer.
	KindNarrowKlass
)

// String implements fmt.Stringer.
func (k ValueKind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindChar:
		return "char"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindByte:
		return "byte"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindVoid:
		return "void"
	case KindAddress:
		return "address"
	case KindNarrowOop:
		return "narrowoop"
	case KindMetadata:
		return "metadata"
	case KindNarrowKlass:
		return "narrowklass"
	default:
		return fmt.Sprintf("invalid(%d)", byte(k))
	}
}

// IsDoubleWord returns true for the kinds which occupy two logical slots.
func (k ValueKind) IsDoubleWord() bool {
	return k == KindLong || k == KindDouble
}

// IsReference returns true for kinds holding a managed reference the collector must see.
func (k ValueKind) IsReference() bool {
	return k == KindObject || k == KindArray || k == KindNarrowOop
}

// IsFloat returns true for float and double.
func (k ValueKind) IsFloat() bool {
	return k == KindFloat || k == KindDouble
}

// IsSubword returns true for the kinds narrower than int which the managed
// convention widens to int.
func (k ValueKind) IsSubword() bool {
	switch k {
	case KindBoolean, KindChar, KindByte, KindShort:
		return true
	}
	return false
}

// IsIntLike returns true for int and the subword kinds.
func (k ValueKind) IsIntLike() bool {
	return k == KindInt || k.IsSubword()
}

// SlotCount returns the number of logical 32-bit slots a value of kind k occupies.
func (k ValueKind) SlotCount() int {
	switch k {
	case KindLong, KindDouble:
		return 2
	case KindVoid, KindInvalid:
		return 0
	default:
		return 1
	}
}

// Size returns the size in bytes of a value of kind k in memory.
func (k ValueKind) Size() int {
	switch k {
	case KindBoolean, KindByte:
		return 1
	case KindChar, KindShort:
		return 2
	case KindInt, KindFloat, KindNarrowOop, KindNarrowKlass:
		return 4
	case KindLong, KindDouble, KindObject, KindArray, KindAddress, KindMetadata:
		return 8
	default:
		return 0
	}
}

// Is64 returns true if a value of kind k is 64 bits wide in a register.
func (k ValueKind) Is64() bool {
	return k.Size() == 8
}

// descriptorChar returns the character used by method descriptors and
// fingerprints for k.
func (k ValueKind) descriptorChar() byte {
	switch k {
	case KindBoolean:
		return 'Z'
	case KindChar:
		return 'C'
	case KindFloat:
		return 'F'
	case KindDouble:
		return 'D'
	case KindByte:
		return 'B'
	case KindShort:
		return 'S'
	case KindInt:
		return 'I'
	case KindLong:
		return 'J'
	case KindObject:
		return 'L'
	case KindArray:
		return '['
	case KindVoid:
		return 'V'
	case KindAddress:
		return 'A'
	case KindNarrowOop:
		return 'N'
	case KindMetadata:
		return 'M'
	case KindNarrowKlass:
		return 'K'
	default:
		panic(fmt.Sprintf("BUG: no descriptor for %s", k))
	}
}
