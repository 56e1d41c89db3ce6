package codecache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend/isa/riscv64"
)

// Blob is generated code as kept by a StubCache.
type Blob interface {
	Blob() *riscv64.CodeBlob
}

// StubCache installs stubs at most once per key.
type StubCache[T Blob] struct {
	cache *CodeCache
	group singleflight.Group

	mu    sync.RWMutex
	stubs map[string]T
}

// NewStubCache returns an empty StubCache installing into cache.
func NewStubCache[T Blob](cache *CodeCache) *StubCache[T] {
	return &StubCache[T]{cache: cache, stubs: map[string]T{}}
}

// Get returns the stub installed for key.
func (s *StubCache[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.stubs[key]
	return t, ok
}

// Len returns the number of installed stubs.
func (s *StubCache[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stubs)
}

// GetOrCreate returns the stub for key. If there is none yet, generate is
// called with the base address of a fresh region of size bytes and its
// result is installed. Concurrent callers asking for the same key share a
// single generation; a failed generation installs nothing and is retried by
// the next caller.
func (s *StubCache[T]) GetOrCreate(key string, size int, generate func(base uint64) (T, error)) (T, error) {
	if t, ok := s.Get(key); ok {
		return t, nil
	}
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if t, ok := s.Get(key); ok {
			return t, nil
		}
		t, err := Generate(s.cache, size, generate)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.stubs[key] = t
		s.mu.Unlock()
		return t, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Generate reserves size bytes of c, generates the code for their base
// address and installs it. Nothing is installed when generate fails.
func Generate[T Blob](c *CodeCache, size int, generate func(base uint64) (T, error)) (T, error) {
	var zero T
	r, err := c.Reserve(size)
	if err != nil {
		return zero, err
	}
	committed := false
	defer func() {
		if !committed {
			c.Release(r)
		}
	}()

	t, err := generate(r.Base)
	if err != nil {
		return zero, err
	}
	if _, err = c.Commit(r, t.Blob()); err != nil {
		return zero, err
	}
	committed = true
	return t, nil
}

// Stubs holds the code one Backend shares between compiled methods: the
// adapters, keyed by signature fingerprint, the native wrappers, keyed by
// method, and the runtime blobs.
type Stubs struct {
	be       *riscv64.Backend
	cache    *CodeCache
	adapters *StubCache[*riscv64.CodeBlob]
	wrappers *StubCache[*riscv64.NativeWrapper]
	shared   *StubCache[*riscv64.CodeBlob]
}

// NewStubs returns the stubs of be, installed into cache.
func NewStubs(be *riscv64.Backend, cache *CodeCache) *Stubs {
	return &Stubs{
		be:       be,
		cache:    cache,
		adapters: NewStubCache[*riscv64.CodeBlob](cache),
		wrappers: NewStubCache[*riscv64.NativeWrapper](cache),
		shared:   NewStubCache[*riscv64.CodeBlob](cache),
	}
}

// Adapters returns the i2c/c2i adapters for sig. Signatures with the same
// fingerprint share them.
func (s *Stubs) Adapters(sig *backend.Signature) (*riscv64.CodeBlob, error) {
	return s.adapters.GetOrCreate(string(sig.Fingerprint()), s.be.Options().StubBufferSize, func(base uint64) (*riscv64.CodeBlob, error) {
		return s.be.GenerateAdapters(sig, base)
	})
}

// AdapterCount returns the number of distinct adapters installed.
func (s *Stubs) AdapterCount() int { return s.adapters.Len() }

// NativeWrapper returns the wrapper of m.
func (s *Stubs) NativeWrapper(m *riscv64.NativeMethod) (*riscv64.NativeWrapper, error) {
	key := fmt.Sprintf("%s%s static=%t", m.Name, m.Sig, m.IsStatic)
	return s.wrappers.GetOrCreate(key, s.be.Options().CodeBufferSize, func(base uint64) (*riscv64.NativeWrapper, error) {
		return s.be.GenerateNativeWrapper(m, base)
	})
}

// sharedBlob is a runtime blob and the entry compiled code reaches it
// through, if any. Call sites reach the resolve blobs by patching.
type sharedBlob struct {
	name     string
	entry    backend.RuntimeEntry
	at       string
	generate func(base uint64) (*riscv64.CodeBlob, error)
}

func (s *Stubs) sharedBlobs() []sharedBlob {
	be := s.be
	return []sharedBlob{
		{name: "slow_subtype_check", entry: backend.EntrySlowSubtypeCheck, generate: be.GenerateSlowSubtypeCheckStub},
		{name: "safepoint_handler_blob", entry: backend.EntrySafepointHandler, generate: be.GenerateSafepointHandlerBlob},
		{name: "deopt_blob", entry: backend.EntryDeoptBlobUnpack, at: riscv64.EntryDeopt, generate: be.GenerateDeoptBlob},
		{name: "resolve_static_call", entry: backend.EntryInvalid, generate: func(base uint64) (*riscv64.CodeBlob, error) {
			return be.GenerateResolveBlob("resolve_static_call", backend.EntryResolveStaticCall, base)
		}},
		{name: "resolve_virtual_call", entry: backend.EntryInvalid, generate: func(base uint64) (*riscv64.CodeBlob, error) {
			return be.GenerateResolveBlob("resolve_virtual_call", backend.EntryResolveVirtualCall, base)
		}},
	}
}

// GenerateShared generates the runtime blobs in parallel and points the
// backend's runtime entries at them. It must complete before methods using
// the entries are compiled: runtime entries are not safe for concurrent
// update.
func (s *Stubs) GenerateShared() error {
	blobs := s.sharedBlobs()
	generated := make([]*riscv64.CodeBlob, len(blobs))
	var g errgroup.Group
	for i, sb := range blobs {
		i, sb := i, sb
		g.Go(func() error {
			blob, err := s.shared.GetOrCreate(sb.name, s.be.Options().StubBufferSize, sb.generate)
			if err != nil {
				return fmt.Errorf("generating %s: %w", sb.name, err)
			}
			generated[i] = blob
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rt := s.be.Runtime()
	for i, sb := range blobs {
		if sb.entry == backend.EntryInvalid {
			continue
		}
		addr := generated[i].Base
		if sb.at != "" {
			addr = generated[i].EntryAddress(sb.at)
		}
		rt.Set(sb.entry, addr)
	}
	return nil
}

// Shared returns the runtime blob called name, once GenerateShared succeeded.
func (s *Stubs) Shared(name string) (*riscv64.CodeBlob, bool) { return s.shared.Get(name) }
