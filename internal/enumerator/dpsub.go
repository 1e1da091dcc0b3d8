package enumerator

import (
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cardinality"
	"github.com/xmutable/engine/internal/plantable"
	"github.com/xmutable/engine/internal/querygraph"
)

// DPsub enumerates all 2^|V| subproblems in ascending numerical order; for
// each S it walks every non-empty proper subset L of S via
// next_subset(L, S) = (L-S)&S, setting R = S\L. The Opt variant only visits
// the half with L < R, since (L, R) and (R, L) describe the same split.
type DPsub struct {
	Opt bool
}

func (d *DPsub) Name() string {
	if d.Opt {
		return "DPsubOpt"
	}
	return "DPsub"
}

func (d *DPsub) Enumerate(g *querygraph.QueryGraph, adj *querygraph.AdjacencyMatrix, pt *plantable.PlanTable, est cardinality.Estimator) {
	n := pt.NumSources()
	universe := bitset.All(n)

	for s := bitset.SmallBitset(1); ; s++ {
		if s.Size() >= 2 && s.IsSubsetOf(universe) && adj.IsConnected(s) {
			// Walk every non-empty proper subset of s in ascending order,
			// starting from s's own lowest non-empty subset (lowbit(s)).
			l := s.LowBit()
			for {
				r := s.Difference(l)
				if !l.IsEmpty() && !r.IsEmpty() {
					if !d.Opt || l < r {
						if adj.IsConnected(l) && adj.IsConnected(r) && crossEdge(adj, l, r) {
							tryUpdate(g, pt, est, l, r, d.Name())
						}
					}
				}
				next, ok := bitset.NextSubset(l, s)
				if !ok {
					break
				}
				l = next
			}
		}
		if s == universe {
			break
		}
	}
}
