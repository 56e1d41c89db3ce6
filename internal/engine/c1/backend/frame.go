package backend

import (
	"fmt"
	"strings"
)

// FrameRegion is a named byte range [Offset, Offset+Size) of a frame, relative
// to the stack pointer after the frame is built.
type FrameRegion struct {
	Name         string
	Offset, Size int
}

// FrameLayout is the geometry of a frame built by generated code. Regions are
// ordered by offset and never overlap; Size is a multiple of StackAlignment.
type FrameLayout struct {
	Regions []FrameRegion
	Size    int
}

// Region returns the region called name.
func (l *FrameLayout) Region(name string) (FrameRegion, bool) {
	for _, r := range l.Regions {
		if r.Name == name {
			return r, true
		}
	}
	return FrameRegion{}, false
}

// MustRegion is Region for regions known to exist.
func (l *FrameLayout) MustRegion(name string) FrameRegion {
	r, ok := l.Region(name)
	if !ok {
		panic(fmt.Sprintf("BUG: frame has no region %q", name))
	}
	return r
}

// Slots returns the size of the frame in stack slots.
func (l *FrameLayout) Slots() int { return l.Size / StackSlotSize }

// String implements fmt.Stringer.
func (l *FrameLayout) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "frame size=%d\n", l.Size)
	for _, r := range l.Regions {
		fmt.Fprintf(&sb, "  [%4d, %4d) %s\n", r.Offset, r.Offset+r.Size, r.Name)
	}
	return sb.String()
}

// FrameBuilder lays out a frame from the stack pointer upwards.
type FrameBuilder struct {
	regions []FrameRegion
	cur     int
}

// Reserve adds a region of size bytes aligned to align and returns its offset.
// Empty regions are recorded too, so callers can look them up uniformly.
func (b *FrameBuilder) Reserve(name string, size, align int) int {
	if align <= 0 || align&(align-1) != 0 {
		panic(fmt.Sprintf("BUG: invalid alignment %d", align))
	}
	if pad := alignUp(b.cur, align) - b.cur; pad > 0 {
		b.regions = append(b.regions, FrameRegion{Name: "padding", Offset: b.cur, Size: pad})
		b.cur += pad
	}
	off := b.cur
	b.regions = append(b.regions, FrameRegion{Name: name, Offset: off, Size: size})
	b.cur += size
	return off
}

// Offset returns the current end of the frame.
func (b *FrameBuilder) Offset() int { return b.cur }

// Finish places the top region of topSize bytes so that it ends exactly at the
// aligned frame size, padding in between when needed.
func (b *FrameBuilder) Finish(topName string, topSize int) FrameLayout {
	size := alignUp(b.cur+topSize, StackAlignment)
	if pad := size - topSize - b.cur; pad > 0 {
		b.regions = append(b.regions, FrameRegion{Name: "padding", Offset: b.cur, Size: pad})
	}
	b.regions = append(b.regions, FrameRegion{Name: topName, Offset: size - topSize, Size: topSize})
	ret := FrameLayout{Regions: b.regions, Size: size}
	b.regions, b.cur = nil, 0
	return ret
}

// Frame region names shared by the generators.
const (
	RegionOutgoingArgs = "outgoing args"
	RegionOopHandles   = "oop handles"
	RegionKlassHandle  = "klass handle"
	RegionLock         = "lock"
	RegionResultTemp   = "result temp"
	RegionSavedRegs    = "saved registers"
	RegionLinkage      = "fp/ra"
)
