package backend

import (
	"fmt"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// Move is a copy of one value between two locations.
type Move struct {
	Src, Dst Location
	Kind     ValueKind
}

// String implements fmt.Stringer.
func (m Move) String() string {
	return fmt.Sprintf("%s %s -> %s", m.Kind, m.Src, m.Dst)
}

const noMove = -1

// moveNode is a Move in the solver arena. Links are arena indexes.
type moveNode struct {
	m          Move
	next, prev int
	processed  bool
}

// MoveOrderSolver orders a set of parallel moves so that they can be
// performed one after the other without clobbering a source that is still
// needed.
//
// Each move is a graph edge from its source to its destination. A move must
// run before the move which overwrites its source. The dependencies form
// chains and cycles; chains are emitted from their head, cycles are broken by
// copying one destination through the scratch location.
//
// The solver is reusable: Solve resets the arena on each call.
type MoveOrderSolver struct {
	nodes  c1api.Arena[moveNode]
	killer map[Location]int
	out    []Move
}

// NewMoveOrderSolver returns a MoveOrderSolver.
func NewMoveOrderSolver() *MoveOrderSolver {
	return &MoveOrderSolver{killer: map[Location]int{}}
}

// Solve returns moves equivalent to performing all of moves in parallel.
// Moves whose source and destination are identical are dropped. Destinations
// must be distinct and scratch must be used by none of the moves.
func (s *MoveOrderSolver) Solve(moves []Move, scratch Location) []Move {
	s.nodes.Reset()
	for k := range s.killer {
		delete(s.killer, k)
	}
	s.out = s.out[:0]

	for _, m := range moves {
		if m.Src == m.Dst {
			continue
		}
		c1api.Check(!m.Src.Aliases(scratch) && !m.Dst.Aliases(scratch), "move %s uses the scratch location %s", m, scratch)
		if _, ok := s.killer[m.Dst]; ok {
			c1api.Preconditionf("two moves write %s", m.Dst)
		}
		idx, n := s.nodes.New()
		*n = moveNode{m: m, next: noMove, prev: noMove}
		s.killer[m.Dst] = idx
	}

	// A move must run before the move which overwrites its source.
	total := s.nodes.Len()
	for i := 0; i < total; i++ {
		n := s.nodes.At(i)
		k, ok := s.killer[n.m.Src]
		if !ok || k == i {
			continue
		}
		kn := s.nodes.At(k)
		if n.next != noMove || kn.prev != noMove {
			c1api.Preconditionf("%s is read by more than one move", n.m.Src)
		}
		n.next = k
		kn.prev = i
	}

	for i := 0; i < total; i++ {
		if s.nodes.At(i).processed {
			continue
		}
		// Walk back to the head of the chain, or around the cycle.
		start := i
		for {
			p := s.nodes.At(start).prev
			if p == noMove || p == i {
				break
			}
			start = p
		}
		if s.nodes.At(start).prev == i {
			s.breakCycle(start, scratch)
		}
		for cur := start; cur != noMove; cur = s.nodes.At(cur).next {
			n := s.nodes.At(cur)
			n.processed = true
			s.out = append(s.out, n.m)
		}
	}
	ret := make([]Move, len(s.out))
	copy(ret, s.out)
	return ret
}

// breakCycle redirects the move at idx into scratch and appends a move from
// scratch to its original destination at the end of the cycle.
func (s *MoveOrderSolver) breakCycle(idx int, scratch Location) {
	n := s.nodes.At(idx)
	p := n.prev
	tailIdx, tail := s.nodes.New()
	*tail = moveNode{m: Move{Src: scratch, Dst: n.m.Dst, Kind: n.m.Kind}, next: noMove, prev: p}

	n.prev = noMove
	s.nodes.At(p).next = tailIdx
	n.m.Dst = scratch
}
