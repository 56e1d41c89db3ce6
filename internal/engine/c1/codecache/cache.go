// Package codecache owns the address range generated code is installed in.
//
// Code generators need to know the address their code will run at before
// they start emitting (calls are pc relative), so installing is two phased:
// Reserve hands out a region big enough for the worst case, the generator
// emits code for the region's base address, and Commit installs the result
// and gives back what the code did not use. A generation that bails out
// calls Release and nothing is installed.
//
// Since these methods are concurrently accessed, the implementations must be Goroutine-safe.
package codecache

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend/isa/riscv64"
)

// Installer makes code visible at its address.
type Installer interface {
	// Install copies code to addr. The range is inside the code cache and
	// was never installed to before.
	Install(addr uint64, code []byte) error
}

// EntryAlignment is the alignment of every region.
const EntryAlignment = 64

// ErrFull is returned by Reserve when the code cache cannot hold the request.
var ErrFull = errors.New("code cache is full")

// Region is a reserved address range.
type Region struct {
	Base uint64
	Size int
}

// End returns the first address after r.
func (r Region) End() uint64 { return r.Base + uint64(r.Size) }

// Installed describes a committed blob.
type Installed struct {
	Name string
	Region
	// Used is the size of the code, Region.Size rounded down to it.
	Used int
}

// Contains returns true if pc is inside the installed code.
func (i Installed) Contains(pc uint64) bool { return pc >= i.Base && pc < i.Base+uint64(i.Used) }

// CodeCache allocates regions of [base, base+size) in increasing address order.
type CodeCache struct {
	base      uint64
	size      int
	installer Installer
	log       logrus.FieldLogger

	mu sync.Mutex
	// top is the offset of the first never reserved byte.
	top int
	// wasted counts bytes of reservations which could not be given back.
	wasted    int
	pending   map[uint64]int
	installed []Installed
}

// New returns a CodeCache covering size bytes at base. log may be nil.
func New(base uint64, size int, installer Installer, log logrus.FieldLogger) (*CodeCache, error) {
	switch {
	case base%EntryAlignment != 0:
		return nil, fmt.Errorf("code cache base %#x is not aligned to %d", base, EntryAlignment)
	case size <= 0:
		return nil, fmt.Errorf("invalid code cache size %d", size)
	case installer == nil:
		return nil, fmt.Errorf("code cache needs an installer")
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &CodeCache{
		base:      base,
		size:      size,
		installer: installer,
		log:       log.WithField("component", "codecache"),
		pending:   map[uint64]int{},
	}, nil
}

// Base returns the first address of the code cache.
func (c *CodeCache) Base() uint64 { return c.base }

// Reserve returns a region of at least size bytes.
func (c *CodeCache) Reserve(size int) (Region, error) {
	if size <= 0 {
		panic(fmt.Sprintf("BUG: reservation of %d bytes", size))
	}
	size = alignUp(size)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.size-c.top < size {
		c.log.WithFields(logrus.Fields{"size": size, "used": c.top, "capacity": c.size}).Warn("code cache is full")
		return Region{}, fmt.Errorf("reserving %d bytes: %w", size, ErrFull)
	}
	r := Region{Base: c.base + uint64(c.top), Size: size}
	c.top += size
	c.pending[r.Base] = size
	return r, nil
}

// Commit installs blob, generated for r.Base, and releases the rest of r.
func (c *CodeCache) Commit(r Region, blob *riscv64.CodeBlob) (Installed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size, ok := c.pending[r.Base]; !ok || size != r.Size {
		panic(fmt.Sprintf("BUG: commit of %s to unreserved region %#x", blob.Name, r.Base))
	}
	if blob.Base != r.Base {
		return Installed{}, fmt.Errorf("%s was generated for %#x, not for region %#x", blob.Name, blob.Base, r.Base)
	}
	if blob.Size() > r.Size {
		return Installed{}, fmt.Errorf("%s takes %d bytes, region %#x holds %d", blob.Name, blob.Size(), r.Base, r.Size)
	}
	if err := c.installer.Install(r.Base, blob.Code); err != nil {
		return Installed{}, fmt.Errorf("installing %s: %w", blob.Name, err)
	}

	delete(c.pending, r.Base)
	kept := alignUp(blob.Size())
	c.giveBack(Region{Base: r.Base + uint64(kept), Size: r.Size - kept})
	in := Installed{Name: blob.Name, Region: Region{Base: r.Base, Size: kept}, Used: blob.Size()}
	i := sort.Search(len(c.installed), func(i int) bool { return c.installed[i].Base > in.Base })
	c.installed = append(c.installed, Installed{})
	copy(c.installed[i+1:], c.installed[i:])
	c.installed[i] = in
	c.log.WithFields(logrus.Fields{"method": blob.Name, "size": blob.Size()}).Debug("installed")
	return in, nil
}

// Release gives back a region whose generation failed.
func (c *CodeCache) Release(r Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size, ok := c.pending[r.Base]; !ok || size != r.Size {
		panic(fmt.Sprintf("BUG: release of unreserved region %#x", r.Base))
	}
	delete(c.pending, r.Base)
	c.giveBack(r)
}

// giveBack returns r to the free space when it ends at the top, and counts
// it as wasted otherwise.
func (c *CodeCache) giveBack(r Region) {
	if r.Size == 0 {
		return
	}
	if r.End() == c.base+uint64(c.top) {
		c.top -= r.Size
		return
	}
	c.wasted += r.Size
}

// Lookup returns the installed blob containing pc.
func (c *CodeCache) Lookup(pc uint64) (Installed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.Search(len(c.installed), func(i int) bool { return c.installed[i].Base > pc })
	if i == 0 || !c.installed[i-1].Contains(pc) {
		return Installed{}, false
	}
	return c.installed[i-1], true
}

// Installed returns the committed blobs by address.
func (c *CodeCache) Installed() []Installed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Installed(nil), c.installed...)
}

// Stats is a snapshot of the occupation of a CodeCache.
type Stats struct {
	Capacity, Reserved, Wasted, Pending, Blobs int
}

// Stats returns the current occupation.
func (c *CodeCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Capacity: c.size, Reserved: c.top, Wasted: c.wasted, Pending: len(c.pending), Blobs: len(c.installed)}
}

func alignUp(n int) int { return (n + EntryAlignment - 1) &^ (EntryAlignment - 1) }
