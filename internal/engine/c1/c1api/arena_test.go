package c1api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArena(t *testing.T) {
	type node struct {
		next int
		v    uint64
	}
	var a Arena[node]
	const n = arenaChunk*3 + 5
	first, firstPtr := a.New()
	require.Zero(t, first)
	for i := 1; i < n; i++ {
		idx, nd := a.New()
		require.Equal(t, i, idx)
		nd.v = uint64(i)
		a.At(i - 1).next = i
	}
	require.Equal(t, n, a.Len())
	require.Same(t, firstPtr, a.At(0), "growing keeps addresses")
	for i := 1; i < n-1; i++ {
		nd := a.At(i)
		require.Equal(t, uint64(i), nd.v)
		require.Equal(t, i+1, nd.next)
	}
	require.Panics(t, func() { a.At(n) })
	require.Panics(t, func() { a.At(-1) })

	a.Reset()
	require.Zero(t, a.Len())
	idx, nd := a.New()
	require.Zero(t, idx)
	require.Equal(t, node{}, *nd)
	require.Same(t, firstPtr, nd, "memory is reused")
}
