package enumerator

import (
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cardinality"
	"github.com/xmutable/engine/internal/plantable"
	"github.com/xmutable/engine/internal/querygraph"
)

// DPsize enumerates subproblems by increasing size 2..|V|; for size s it
// tries every split s = s1 + (s-s1) for s1 in 1..s/2. The Opt variant skips
// the redundant half of a same-size split (l == r bit pattern only possible
// when s1 == s-s1, and then only one of {l,r}/{r,l} need be tried).
type DPsize struct {
	Opt bool
}

func (d *DPsize) Name() string {
	if d.Opt {
		return "DPsizeOpt"
	}
	return "DPsize"
}

func (d *DPsize) Enumerate(g *querygraph.QueryGraph, adj *querygraph.AdjacencyMatrix, pt *plantable.PlanTable, est cardinality.Estimator) {
	n := pt.NumSources()
	all := bitset.All(n)

	// subsetsBySize[k] holds every connected k-element subset of {0,...,n-1},
	// built incrementally as each size is completed.
	subsetsBySize := make([][]bitset.SmallBitset, n+1)
	subsetsBySize[1] = make([]bitset.SmallBitset, 0, n)
	for i := uint(0); i < n; i++ {
		subsetsBySize[1] = append(subsetsBySize[1], bitset.Singleton(i))
	}

	for size := uint(2); size <= n; size++ {
		enumerateKSubsets(all, size, func(s bitset.SmallBitset) {
			if !adj.IsConnected(s) {
				return
			}
			for s1 := uint(1); s1*2 <= size; s1++ {
				s2 := size - s1
				for _, l := range subsetsBySize[s1] {
					if !l.IsSubsetOf(s) {
						continue
					}
					r := s.Difference(l)
					if r.Size() != int(s2) {
						continue
					}
					if d.Opt && s1 == s2 && l >= r {
						continue // same-size split: only try one orientation
					}
					if !adj.IsConnected(r) {
						continue
					}
					if !crossEdge(adj, l, r) {
						continue
					}
					tryUpdate(g, pt, est, l, r, d.Name())
				}
			}
			subsetsBySize[size] = append(subsetsBySize[size], s)
		})
	}
}

// enumerateKSubsets calls f with every k-element subset of universe, in
// ascending numerical order, via the dense Gosper's-hack/deposit-by-mask
// combination.
func enumerateKSubsets(universe bitset.SmallBitset, k uint, f func(bitset.SmallBitset)) {
	e := bitset.NewSubsetEnumerator(universe, k)
	for !e.Done() {
		f(e.Next())
	}
}
