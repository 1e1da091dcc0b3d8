// Package plantable implements the plan table: a map keyed by
// Subproblem (a SmallBitset) holding, for each connected subproblem, the
// minimum-cost split found so far.
package plantable

import (
	"math"

	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cardinality"
)

// Subproblem is a set of source ids, i.e. a candidate join subtree.
type Subproblem = bitset.SmallBitset

// MaxCost is the saturating sentinel used before any plan has been found
// for a subproblem, and the ceiling every cost sum saturates at.
const MaxCost uint64 = math.MaxUint64

// Entry is T[S]: the best plan found so far for producing subproblem S.
type Entry struct {
	Left, Right Subproblem
	Cost        uint64
	Model       cardinality.DataModel

	// ProducedBy names the enumerator step that last improved this entry
	// (e.g. "DPccp/EmitCmp" or "DPsub"), purely for debugging/tracing; it
	// has no effect on plan selection.
	ProducedBy string
}

// PlanTable is T, indexed by Subproblem over a fixed vertex count n.
type PlanTable struct {
	n       uint
	entries map[Subproblem]*Entry
}

// New allocates a plan table for n sources (n <= 64). Storage is a map
// rather than a dense 2^n array: n is bounded by 64 but real queries rarely
// approach that, so a map avoids committing 2^64 slots while still giving
// O(1) expected access; subproblem indexing is an addressing contract, not
// a literal memory-layout requirement.
func New(n uint) *PlanTable {
	return &PlanTable{n: n, entries: make(map[Subproblem]*Entry)}
}

// NumSources returns |V|.
func (t *PlanTable) NumSources() uint { return t.n }

// Universe returns U = (1 << |V|) - 1.
func (t *PlanTable) Universe() Subproblem { return bitset.All(t.n) }

// Get returns the entry for s, allocating a sentinel (cost = MaxCost) one
// if none exists yet.
func (t *PlanTable) Get(s Subproblem) *Entry {
	e, ok := t.entries[s]
	if !ok {
		e = &Entry{Cost: MaxCost}
		t.entries[s] = e
	}
	return e
}

// Has reports whether s has ever been written (distinguishes "never
// considered" from "considered, still at the sentinel cost").
func (t *PlanTable) Has(s Subproblem) bool {
	_, ok := t.entries[s]
	return ok
}

// SetSingleton seeds T[{i}] with cost 0 and the scan/filter model for the
// base case: singletons cost 0.
func (t *PlanTable) SetSingleton(i uint, model cardinality.DataModel) {
	t.entries[bitset.Singleton(i)] = &Entry{Cost: 0, Model: model, ProducedBy: "scan"}
}

// Update installs (left, right, cost, model) as T[s]'s new best plan iff
// cost is strictly lower than the current entry's cost (or no entry exists
// yet). Returns whether the update was applied.
func (t *PlanTable) Update(s, left, right Subproblem, cost uint64, model cardinality.DataModel, producedBy string) bool {
	cur := t.Get(s)
	if cost >= cur.Cost {
		return false
	}
	cur.Left, cur.Right, cur.Cost, cur.Model, cur.ProducedBy = left, right, cost, model, producedBy
	return true
}

// Cost returns the current best cost for s (MaxCost if never considered).
func (t *PlanTable) Cost(s Subproblem) uint64 {
	e, ok := t.entries[s]
	if !ok {
		return MaxCost
	}
	return e.Cost
}

// SaturatingAdd sums a..d with saturation at MaxCost, the cost recurrence's
// required overflow behavior.
func SaturatingAdd(values ...uint64) uint64 {
	var total uint64
	for _, v := range values {
		next := total + v
		if next < total { // overflow
			return MaxCost
		}
		total = next
	}
	return total
}
