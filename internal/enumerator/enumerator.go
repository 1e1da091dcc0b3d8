// Package enumerator implements the plan enumerators: DPsize/DPsizeOpt,
// DPsub/DPsubOpt, and DPccp, all sharing the fixed linear cost recurrence
// cost(L⋈R) = cost(L)+cost(R)+size(L)+size(R) and a common deterministic
// tie-break rule.
package enumerator

import (
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cardinality"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/plantable"
	"github.com/xmutable/engine/internal/querygraph"
)

// Enumerator fills every connected subproblem's entry in pt with its
// minimum-cost binary split, given singleton entries already seeded by the
// caller via pt.SetSingleton.
type Enumerator interface {
	Name() string
	Enumerate(g *querygraph.QueryGraph, adj *querygraph.AdjacencyMatrix, pt *plantable.PlanTable, est cardinality.Estimator)
}

// crossEdge reports whether at least one join edge runs between l and r.
func crossEdge(adj *querygraph.AdjacencyMatrix, l, r bitset.SmallBitset) bool {
	return !adj.Neighbors(l).Intersect(r).IsEmpty()
}

// lexLess is the lexicographically-smaller-(L,R)-pair tie-break: pairs are
// first normalized so the smaller bit-pattern is first,
// then compared as a 2-tuple of uint64s.
func lexLess(l1, r1, l2, r2 bitset.SmallBitset) bool {
	if l1 > r1 {
		l1, r1 = r1, l1
	}
	if l2 > r2 {
		l2, r2 = r2, l2
	}
	if l1 != l2 {
		return l1 < l2
	}
	return r1 < r2
}

// tryUpdate installs (l, r) as S = l|r's plan if it strictly improves the
// current best cost, or ties it while being lexicographically smaller, so
// enumeration order never changes the result. Returns false if either operand has no
// usable plan yet.
func tryUpdate(g *querygraph.QueryGraph, pt *plantable.PlanTable, est cardinality.Estimator, l, r bitset.SmallBitset, producedBy string) bool {
	leftEntry := pt.Get(l)
	rightEntry := pt.Get(r)
	if leftEntry.Cost == plantable.MaxCost || rightEntry.Cost == plantable.MaxCost {
		return false
	}
	leftSize := est.PredictCardinality(leftEntry.Model)
	rightSize := est.PredictCardinality(rightEntry.Model)
	cost := plantable.SaturatingAdd(leftEntry.Cost, rightEntry.Cost, leftSize, rightSize)

	s := l.Union(r)
	cur := pt.Get(s)
	if cost > cur.Cost {
		return false
	}
	if cost == cur.Cost && cur.Cost != plantable.MaxCost {
		if !lexLess(l, r, cur.Left, cur.Right) {
			return false
		}
	}
	model := est.EstimateJoin(g, leftEntry.Model, rightEntry.Model, cnf.CNF{})
	cur.Left, cur.Right, cur.Cost, cur.Model, cur.ProducedBy = l, r, cost, model, producedBy
	return true
}
