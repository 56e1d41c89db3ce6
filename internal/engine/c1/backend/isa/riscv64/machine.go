package riscv64

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// Names of the entry points recorded in CodeBlob.Entries.
const (
	EntryVerified       = "verified_entry"
	EntryFrameComplete  = "frame_complete"
	EntryI2C            = "i2c"
	EntryC2I            = "c2i"
	EntryC2IUnverified  = "c2i_unverified"
	EntryUnverified     = "unverified_entry"
	EntryDeopt          = "deopt"
	EntryReexecute      = "reexecute"
	EntryException      = "exception"
	EntryExceptionInTLS = "exception_in_tls"
	EntryCapture        = "capture"
	EntryFill           = "fill"
)

// Backend generates riscv64 code: compiled methods from LIR, adapters,
// native wrappers and the shared runtime blobs.
//
// A Backend holds no mutable state, so one value can serve any number of
// goroutines. Every generation call owns its code buffer exclusively.
type Backend struct {
	opts backend.Options
	rt   *backend.RuntimeEntries
	log  logrus.FieldLogger
}

// NewBackend returns a Backend for opts. rt supplies the addresses of the
// runtime entries generated code calls. log may be nil.
func NewBackend(opts backend.Options, rt *backend.RuntimeEntries, log logrus.FieldLogger) (*Backend, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if rt == nil {
		return nil, fmt.Errorf("runtime entries are required")
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Backend{opts: opts, rt: rt, log: log.WithField("component", "c1")}, nil
}

// Options returns the options the Backend generates code for.
func (b *Backend) Options() backend.Options { return b.opts }

// Runtime returns the runtime entries.
func (b *Backend) Runtime() *backend.RuntimeEntries { return b.rt }

// CodeBlob is one generated unit of code.
type CodeBlob struct {
	Name string
	// Base is the address the code is meant to be installed at, zero if unknown.
	Base uint64
	Code []byte
	// MainSize is the size of the main instruction stream. Stubs follow it.
	MainSize int
	Stubs    []asm.StubRange
	// Entries maps entry point names to code offsets.
	Entries map[string]int
	// FrameSize is the size in bytes of the frame the code builds, zero for frameless code.
	FrameSize int
	OopMaps   *backend.OopMapSet
	comments  map[int][]string
}

// Blob returns c. Types embedding a *CodeBlob, such as NativeWrapper, get
// it promoted, which lets code caches handle every kind of blob the same way.
func (c *CodeBlob) Blob() *CodeBlob { return c }

// Size returns the size of the code in bytes.
func (c *CodeBlob) Size() int { return len(c.Code) }

// EntryOffset returns the offset of the named entry point.
func (c *CodeBlob) EntryOffset(name string) int {
	off, ok := c.Entries[name]
	if !ok {
		panic(fmt.Sprintf("BUG: %s has no entry %q", c.Name, name))
	}
	return off
}

// EntryAddress returns the absolute address of the named entry point.
func (c *CodeBlob) EntryAddress(name string) uint64 {
	return c.Base + uint64(c.EntryOffset(name))
}

// EntryNames returns the entry point names ordered by offset.
func (c *CodeBlob) EntryNames() []string {
	names := make([]string, 0, len(c.Entries))
	for n := range c.Entries {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := c.Entries[names[i]], c.Entries[names[j]]
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})
	return names
}

// Listing returns the disassembly of the code.
func (c *CodeBlob) Listing(goSyntax bool) string {
	return formatListing(c.Code, c.Base, c.comments, goSyntax)
}

// unit is one generation session.
type unit struct {
	*MacroAssembler
	name    string
	entries map[string]int
	oopMaps *backend.OopMapSet
}

func (b *Backend) newUnit(name string, base uint64, size int) *unit {
	buf := asm.NewCodeBuffer(name, uintptr(base), size)
	return &unit{
		MacroAssembler: NewMacroAssembler(buf, &b.opts, b.rt),
		name:           name,
		entries:        map[string]int{},
		oopMaps:        &backend.OopMapSet{},
	}
}

// markEntry records the current offset as the entry point name.
func (u *unit) markEntry(name string) {
	u.entries[name] = u.Offset()
	u.BlockComment(name)
}

// addOopMap records m at the current offset.
func (u *unit) addOopMap(m *backend.OopMap) {
	if u.buf.Failed() {
		return
	}
	u.oopMaps.Add(u.Offset(), m)
}

// finish turns the unit into a CodeBlob, or a bailout when the buffer ran out of space.
func (b *Backend) finish(u *unit, frameSize int) (*CodeBlob, error) {
	buf := u.Buffer()
	if buf.Failed() {
		reason := string(buf.FailureReason())
		b.log.WithFields(logrus.Fields{"method": u.name, "reason": reason}).Debug("bailout")
		return nil, c1api.NewBailout(u.name, reason)
	}
	blob := &CodeBlob{
		Name:      u.name,
		Base:      uint64(buf.Base()),
		Code:      append([]byte(nil), buf.Bytes()...),
		MainSize:  buf.MainSize(),
		Stubs:     append([]asm.StubRange(nil), buf.Stubs()...),
		Entries:   u.entries,
		FrameSize: frameSize,
		OopMaps:   u.oopMaps,
		comments:  u.comments,
	}
	if c1api.PrintFinalizedMachineCode {
		fmt.Printf("[[[finalized %s]]]\n%s\n", u.name, blob.Listing(false))
	}
	b.log.WithFields(logrus.Fields{"method": u.name, "size": len(blob.Code)}).Debug("generated")
	return blob, nil
}
