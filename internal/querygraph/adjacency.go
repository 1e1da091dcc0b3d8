package querygraph

import (
	"github.com/juju/errors"

	"github.com/xmutable/engine/internal/bitset"
)

// ErrNonBinaryJoin is returned by BuildAdjacencyMatrix for a join with more
// than two participants; the DP enumerators only reason over pairwise
// edges.
var ErrNonBinaryJoin = errors.New("querygraph: non-binary join")

// AdjacencyMatrix is the dense n x n (n <= 64) join-graph representation
// used by the DP enumerators for O(1) connectivity/neighborhood queries.
// M[i] is the bitset of every source id directly joined to
// source i by at least one binary join.
type AdjacencyMatrix struct {
	M []bitset.SmallBitset
}

// BuildAdjacencyMatrix rejects non-binary joins: an n-ary join must be
// lowered into binary edges before enumeration begins.
func BuildAdjacencyMatrix(g *QueryGraph) (*AdjacencyMatrix, error) {
	n := len(g.Sources)
	m := make([]bitset.SmallBitset, n)
	for _, j := range g.Joins {
		if !j.IsBinary() {
			return nil, errors.Annotatef(ErrNonBinaryJoin, "%d participants", len(j.Participants))
		}
		a, b := j.Participants[0].ID, j.Participants[1].ID
		m[a] = m[a].Set(uint(b))
		m[b] = m[b].Set(uint(a))
	}
	return &AdjacencyMatrix{M: m}, nil
}

// Set records an (undirected) edge between i and j.
func (a *AdjacencyMatrix) Set(i, j uint) {
	a.M[i] = a.M[i].Set(j)
	a.M[j] = a.M[j].Set(i)
}

// IsConnectedPair reports whether at least one edge crosses between l and r.
func (a *AdjacencyMatrix) IsConnectedPair(l, r bitset.SmallBitset) bool {
	return !a.Neighbors(l).Intersect(r).IsEmpty()
}

// Neighbors returns every source directly reachable from any source in s,
// excluding s itself.
func (a *AdjacencyMatrix) Neighbors(s bitset.SmallBitset) bitset.SmallBitset {
	var out bitset.SmallBitset
	s.ForEach(func(i uint) bool {
		out = out.Union(a.M[i])
		return true
	})
	return out.Difference(s)
}

// IsConnected reports whether every source in s can reach every other
// source in s using only edges whose both endpoints lie in s.
func (a *AdjacencyMatrix) IsConnected(s bitset.SmallBitset) bool {
	if s.IsEmpty() {
		return true
	}
	least, _ := s.LeastElement()
	seed := bitset.Singleton(least)
	reached := a.closure(seed, s)
	return reached == s
}

// closure computes, within the confines of universe, the set of nodes
// reachable from seed (breadth-first over the adjacency matrix).
func (a *AdjacencyMatrix) closure(seed, universe bitset.SmallBitset) bitset.SmallBitset {
	frontier := seed
	reached := seed
	for !frontier.IsEmpty() {
		var next bitset.SmallBitset
		frontier.ForEach(func(i uint) bool {
			next = next.Union(a.M[i])
			return true
		})
		next = next.Intersect(universe).Difference(reached)
		reached = reached.Union(next)
		frontier = next
	}
	return reached
}

// ConnectedComponents partitions universe into its maximal connected
// subsets under this adjacency matrix, ordered by least member.
func (a *AdjacencyMatrix) ConnectedComponents(universe bitset.SmallBitset) []bitset.SmallBitset {
	var out []bitset.SmallBitset
	remaining := universe
	for !remaining.IsEmpty() {
		least, _ := remaining.LeastElement()
		seed := bitset.Singleton(least)
		comp := a.closure(seed, remaining)
		out = append(out, comp)
		remaining = remaining.Difference(comp)
	}
	return out
}
