package enumerator

import (
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cardinality"
	"github.com/xmutable/engine/internal/plantable"
	"github.com/xmutable/engine/internal/querygraph"
)

// DPccp enumerates only (L, R) pairs that are both connected subgraphs of
// the join graph with at least one crossing edge, following Moerkotte &
// Neumann's connected-subgraph-complement-pair algorithm.
type DPccp struct{}

func (d *DPccp) Name() string { return "DPccp" }

func (d *DPccp) Enumerate(g *querygraph.QueryGraph, adj *querygraph.AdjacencyMatrix, pt *plantable.PlanTable, est cardinality.Estimator) {
	n := pt.NumSources()
	if n == 0 {
		return
	}
	// Iterate vertices in reverse id order (n-1 down to 0), per the
	// published algorithm.
	for vi := int(n) - 1; vi >= 0; vi-- {
		v := uint(vi)
		seed := bitset.Singleton(v)
		excl := exclusionBelowOrEqual(v) // {u | u.id <= v.id}
		emitCsg(g, adj, pt, est, seed, excl) // EmitCsg(v)'s own X = B(v)
	}
}

// emitCsg enumerates every connected subgraph reachable from seed without
// crossing excl, emitting each one found (via emitCmp) as it goes. excl is
// scoped to this EmitCsg expansion only: EmitCmp computes its own
// exclusion set from S1 alone, per the published algorithm.
func emitCsg(g *querygraph.QueryGraph, adj *querygraph.AdjacencyMatrix, pt *plantable.PlanTable, est cardinality.Estimator, seed, excl bitset.SmallBitset) {
	emitCmp(g, adj, pt, est, seed)
	neighborhood := adj.Neighbors(seed).Difference(excl)
	enumerateSubsetsAscending(neighborhood, func(sub bitset.SmallBitset) {
		if sub.IsEmpty() {
			return
		}
		newExcl := excl.Union(neighborhood)
		emitCsg(g, adj, pt, est, seed.Union(sub), newExcl)
	})
}

// emitCmp enumerates every connected subgraph S2 disjoint from and
// complementary to S1 (the csg found by emitCsg), recording each valid
// (S1, S2) pair into the plan table. Its exclusion set X = S1 ∪ B(min(S1))
// depends only on S1, never on the EmitCsg recursion that produced it.
func emitCmp(g *querygraph.QueryGraph, adj *querygraph.AdjacencyMatrix, pt *plantable.PlanTable, est cardinality.Estimator, s1 bitset.SmallBitset) {
	minID, _ := s1.LeastElement()
	x := s1.Union(exclusionBelowOrEqual(minID))
	neighborhood := adj.Neighbors(s1).Difference(x)

	// Seed a complement at every neighbor u of S1 and grow it; the neighbors
	// at or below u stay excluded from that growth, so each complement is
	// produced from exactly one seed (its least member among the neighbors).
	seen := map[bitset.SmallBitset]bool{}
	neighborhood.ForEach(func(u uint) bool {
		s2 := bitset.Singleton(u)
		if !seen[s2] {
			seen[s2] = true
			if adj.IsConnected(s2) && crossEdge(adj, s1, s2) {
				tryUpdate(g, pt, est, s1, s2, "DPccp/EmitCmp")
			}
			newExcl := x.Union(neighborhood.Intersect(exclusionBelowOrEqual(u)))
			emitCsgFrom(g, adj, pt, est, s1, s2, newExcl)
		}
		return true
	})
}

// emitCsgFrom grows a candidate complement s2 (seeded at a single neighbor
// of s1) into every larger connected subgraph disjoint from excl, pairing
// each with s1.
func emitCsgFrom(g *querygraph.QueryGraph, adj *querygraph.AdjacencyMatrix, pt *plantable.PlanTable, est cardinality.Estimator, s1, s2, excl bitset.SmallBitset) {
	neighborhood := adj.Neighbors(s2).Difference(excl)
	enumerateSubsetsAscending(neighborhood, func(sub bitset.SmallBitset) {
		if sub.IsEmpty() {
			return
		}
		grown := s2.Union(sub)
		if adj.IsConnected(grown) && crossEdge(adj, s1, grown) {
			tryUpdate(g, pt, est, s1, grown, "DPccp/EmitCmp")
		}
		newExcl := excl.Union(neighborhood)
		emitCsgFrom(g, adj, pt, est, s1, grown, newExcl)
	})
}

// exclusionBelowOrEqual returns {u | u <= v}.
func exclusionBelowOrEqual(v uint) bitset.SmallBitset {
	return bitset.All(v + 1)
}

// enumerateSubsetsAscending calls f with every non-empty subset of universe
// (dense, via repeated k-subset enumeration for k = 1..popcount(universe)),
// using the Gosper's-hack-based SubsetEnumerator for each size.
func enumerateSubsetsAscending(universe bitset.SmallBitset, f func(bitset.SmallBitset)) {
	size := universe.Size()
	for k := 1; k <= size; k++ {
		e := bitset.NewSubsetEnumerator(universe, uint(k))
		for !e.Done() {
			f(e.Next())
		}
	}
}
