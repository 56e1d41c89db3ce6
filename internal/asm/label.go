package asm

// Label is a code position which may be referenced before it is bound.
//
// Each reference records the offset of the referring instruction together with
// an ISA-defined kind, so that the assembler which owns the label can patch the
// instruction once the position is known.
type Label struct {
	pos   int
	bound bool
	uses  []LabelUse
}

// LabelUse is an unresolved reference to a Label.
type LabelUse struct {
	// Offset is the offset of the referring instruction.
	Offset int
	// Kind tells the owning assembler how to patch the instruction.
	Kind byte
}

// IsBound returns true once Bind has been called.
func (l *Label) IsBound() bool { return l.bound }

// Position returns the bound position. It must only be called on bound labels.
func (l *Label) Position() int {
	if !l.bound {
		panic("BUG: position of an unbound label")
	}
	return l.pos
}

// AddUse records a reference to be patched when the label gets bound.
func (l *Label) AddUse(offset int, kind byte) {
	l.uses = append(l.uses, LabelUse{Offset: offset, Kind: kind})
}

// Bind fixes the label at pos and returns the pending references, which are
// cleared from the label.
func (l *Label) Bind(pos int) []LabelUse {
	if l.bound {
		panic("BUG: label bound twice")
	}
	l.bound, l.pos = true, pos
	uses := l.uses
	l.uses = nil
	return uses
}

// HasPendingUses returns true if the label is referenced but not yet bound.
func (l *Label) HasPendingUses() bool { return !l.bound && len(l.uses) > 0 }
