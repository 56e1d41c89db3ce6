package backend

import (
	"fmt"
	"strings"
)

// Signature describes the arguments and the result of a call. A Signature is
// never mutated after construction, so it can be shared and used as a cache key
// through Fingerprint.
type Signature struct {
	// Args are the argument kinds in call order, without the void halves of
	// longs and doubles. The receiver of an instance method is the first
	// argument.
	Args []ValueKind
	// Ret is the result kind, KindVoid when there is none.
	Ret ValueKind
}

// NewSignature returns a Signature. It panics on kinds which cannot be passed as arguments.
func NewSignature(ret ValueKind, args ...ValueKind) *Signature {
	for _, a := range args {
		if a == KindVoid || a == KindInvalid {
			panic(fmt.Sprintf("BUG: %s is not an argument kind", a))
		}
	}
	cp := make([]ValueKind, len(args))
	copy(cp, args)
	return &Signature{Args: cp, Ret: ret}
}

// Expanded returns the argument kinds with a KindVoid inserted after every
// long and double, which is the layout the calling conventions work on.
func (s *Signature) Expanded() []ValueKind {
	ret := make([]ValueKind, 0, len(s.Args)+2)
	for _, a := range s.Args {
		ret = append(ret, a)
		if a.IsDoubleWord() {
			ret = append(ret, KindVoid)
		}
	}
	return ret
}

// SizeOfParameters returns the number of logical slots taken by the arguments.
func (s *Signature) SizeOfParameters() int {
	var n int
	for _, a := range s.Args {
		n += a.SlotCount()
	}
	return n
}

// Fingerprint identifies the adapter shape of a signature.
type Fingerprint string

// Fingerprint returns the adapter fingerprint of s. Kinds which adapters move
// identically are folded together: the subword kinds become int and arrays
// become objects, so that methods differing only in those share one adapter.
func (s *Signature) Fingerprint() Fingerprint {
	var sb strings.Builder
	for _, a := range s.Args {
		switch {
		case a.IsSubword():
			a = KindInt
		case a == KindArray:
			a = KindObject
		}
		sb.WriteByte(a.descriptorChar())
	}
	return Fingerprint(sb.String())
}

// String implements fmt.Stringer.
func (s *Signature) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, a := range s.Args {
		sb.WriteByte(a.descriptorChar())
	}
	sb.WriteByte(')')
	sb.WriteByte(s.Ret.descriptorChar())
	return sb.String()
}

// ParseDescriptor parses a method descriptor such as "(ILjava/lang/String;[J)V".
// When isStatic is false an object receiver is prepended to the arguments.
func ParseDescriptor(desc string, isStatic bool) (*Signature, error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, fmt.Errorf("invalid descriptor %q: missing '('", desc)
	}
	sig := &Signature{}
	if !isStatic {
		sig.Args = append(sig.Args, KindObject)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		k, next, err := parseFieldType(desc, i)
		if err != nil {
			return nil, err
		}
		sig.Args = append(sig.Args, k)
		i = next
	}
	if i >= len(desc) {
		return nil, fmt.Errorf("invalid descriptor %q: missing ')'", desc)
	}
	i++
	if i < len(desc) && desc[i] == 'V' {
		sig.Ret = KindVoid
		i++
	} else {
		k, next, err := parseFieldType(desc, i)
		if err != nil {
			return nil, err
		}
		sig.Ret, i = k, next
	}
	if i != len(desc) {
		return nil, fmt.Errorf("invalid descriptor %q: trailing characters", desc)
	}
	return sig, nil
}

func parseFieldType(desc string, i int) (ValueKind, int, error) {
	if i >= len(desc) {
		return KindInvalid, i, fmt.Errorf("invalid descriptor %q: unexpected end", desc)
	}
	switch desc[i] {
	case 'Z':
		return KindBoolean, i + 1, nil
	case 'C':
		return KindChar, i + 1, nil
	case 'F':
		return KindFloat, i + 1, nil
	case 'D':
		return KindDouble, i + 1, nil
	case 'B':
		return KindByte, i + 1, nil
	case 'S':
		return KindShort, i + 1, nil
	case 'I':
		return KindInt, i + 1, nil
	case 'J':
		return KindLong, i + 1, nil
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			return KindInvalid, i, fmt.Errorf("invalid descriptor %q: unterminated class name at %d", desc, i)
		}
		return KindObject, i + end + 1, nil
	case '[':
		j := i
		for j < len(desc) && desc[j] == '[' {
			j++
		}
		_, next, err := parseFieldType(desc, j)
		if err != nil {
			return KindInvalid, i, err
		}
		return KindArray, next, nil
	default:
		return KindInvalid, i, fmt.Errorf("invalid descriptor %q: unexpected %q at %d", desc, desc[i], i)
	}
}
