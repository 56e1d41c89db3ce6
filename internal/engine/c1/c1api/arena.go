package c1api

import "fmt"

const arenaChunk = 64

// Arena hands out items of T addressed by a dense index, so that graphs can
// link their nodes by index. Addresses returned by New and At stay valid
// until Reset. The zero value is ready to use.
type Arena[T any] struct {
	chunks [][]T
	n      int
}

// New appends a zeroed item and returns its index and address.
func (a *Arena[T]) New() (int, *T) {
	c := a.n / arenaChunk
	if c == len(a.chunks) {
		a.chunks = append(a.chunks, make([]T, arenaChunk))
	}
	i := a.n
	a.n++
	return i, &a.chunks[c][i%arenaChunk]
}

// At returns the address of item i.
func (a *Arena[T]) At(i int) *T {
	if i < 0 || i >= a.n {
		panic(fmt.Sprintf("BUG: arena index %d out of range [0, %d)", i, a.n))
	}
	return &a.chunks[i/arenaChunk][i%arenaChunk]
}

// Len returns the number of items.
func (a *Arena[T]) Len() int { return a.n }

// Reset drops every item. The memory is kept for the next use.
func (a *Arena[T]) Reset() {
	var zero T
	for c := 0; c*arenaChunk < a.n; c++ {
		chunk := a.chunks[c]
		for i := range chunk {
			chunk[i] = zero
		}
	}
	a.n = 0
}
