package backend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// OopMapValueKind tells what a location recorded in an OopMap holds.
type OopMapValueKind byte

const (
	// OopValue is a full width reference.
	OopValue OopMapValueKind = iota
	// NarrowOopValue is a compressed reference.
	NarrowOopValue
	// CalleeSavedValue is the save slot of a register of the caller.
	CalleeSavedValue
)

// String implements fmt.Stringer.
func (k OopMapValueKind) String() string {
	switch k {
	case OopValue:
		return "oop"
	case NarrowOopValue:
		return "narrowoop"
	case CalleeSavedValue:
		return "callee_saved"
	default:
		panic("BUG")
	}
}

// OopMapValue is one entry of an OopMap.
type OopMapValue struct {
	Loc  Location
	Kind OopMapValueKind
	// Saved is the register whose value is saved at Loc, for CalleeSavedValue.
	Saved RealReg
}

// OopMap is the live reference map of one code offset: the set of locations
// which hold references the collector must visit while the frame is stopped
// there. Stack locations are relative to the stack pointer of the frame.
//
// An OopMap can be modified until it is added to an OopMapSet.
type OopMap struct {
	// Offset is the code offset of the site, set by OopMapSet.Add.
	Offset int
	// FrameSlots is the size of the frame in stack slots.
	FrameSlots int
	values     []OopMapValue
	frozen     bool
}

// NewOopMap returns an empty OopMap for a frame of frameSlots stack slots.
func NewOopMap(frameSlots int) *OopMap {
	return &OopMap{FrameSlots: frameSlots}
}

func (m *OopMap) add(v OopMapValue) {
	if m.frozen {
		panic("BUG: modifying an OopMap after it was added to a set")
	}
	if v.Loc.IsStack() {
		c1api.Check(v.Loc.Slot < m.FrameSlots || m.FrameSlots == 0 || v.Kind == CalleeSavedValue,
			"oop map slot %d outside of frame of %d slots", v.Loc.Slot, m.FrameSlots)
	}
	for i, e := range m.values {
		if e.Loc == v.Loc {
			m.values[i] = v
			return
		}
	}
	m.values = append(m.values, v)
}

// SetOop records that loc holds a reference.
func (m *OopMap) SetOop(loc Location) { m.add(OopMapValue{Loc: loc, Kind: OopValue}) }

// SetNarrowOop records that loc holds a compressed reference.
func (m *OopMap) SetNarrowOop(loc Location) { m.add(OopMapValue{Loc: loc, Kind: NarrowOopValue}) }

// SetCalleeSaved records that loc holds the saved value of reg.
func (m *OopMap) SetCalleeSaved(loc Location, reg RealReg) {
	m.add(OopMapValue{Loc: loc, Kind: CalleeSavedValue, Saved: reg})
}

// Values returns the entries sorted by location.
func (m *OopMap) Values() []OopMapValue {
	ret := make([]OopMapValue, len(m.values))
	copy(ret, m.values)
	sort.Slice(ret, func(i, j int) bool { return lessLocation(ret[i].Loc, ret[j].Loc) })
	return ret
}

// Oops returns the locations holding references, full width or narrow, sorted.
func (m *OopMap) Oops() []Location {
	var ret []Location
	for _, v := range m.Values() {
		if v.Kind == OopValue || v.Kind == NarrowOopValue {
			ret = append(ret, v.Loc)
		}
	}
	return ret
}

// Len returns the number of entries.
func (m *OopMap) Len() int { return len(m.values) }

// String implements fmt.Stringer.
func (m *OopMap) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "OopMap{off=%d", m.Offset)
	for _, v := range m.Values() {
		fmt.Fprintf(&sb, " %s=%s", v.Loc, v.Kind)
		if v.Kind == CalleeSavedValue {
			fmt.Fprintf(&sb, "(%s)", v.Saved)
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

func lessLocation(a, b Location) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.IsStack() {
		return a.Slot < b.Slot
	}
	return a.Reg < b.Reg
}

// OopMapSet holds the OopMaps of one generated code object.
type OopMapSet struct {
	maps []*OopMap
}

// Add freezes m and records it at the code offset off. Each offset holds at
// most one map: two debug sites at the same pc could not be told apart.
func (s *OopMapSet) Add(off int, m *OopMap) {
	for _, e := range s.maps {
		if e.Offset == off {
			c1api.Preconditionf("two oop maps at offset %d", off)
		}
	}
	m.Offset = off
	m.frozen = true
	s.maps = append(s.maps, m)
}

// Find returns the map at off, or nil.
func (s *OopMapSet) Find(off int) *OopMap {
	for _, m := range s.maps {
		if m.Offset == off {
			return m
		}
	}
	return nil
}

// Maps returns the maps in insertion order.
func (s *OopMapSet) Maps() []*OopMap { return s.maps }

// Len returns the number of maps.
func (s *OopMapSet) Len() int { return len(s.maps) }

// BuildOopMap returns the OopMap of a site from its declared live set: every
// register or stack operand of a reference kind is recorded, everything else
// is ignored.
func BuildOopMap(live []Operand, frameSlots int) *OopMap {
	m := NewOopMap(frameSlots)
	for _, o := range live {
		if !(o.IsRegister() || o.IsStack()) {
			continue
		}
		switch o.Type() {
		case KindObject, KindArray:
			m.SetOop(o.Location())
		case KindNarrowOop:
			m.SetNarrowOop(o.Location())
		}
	}
	return m
}
