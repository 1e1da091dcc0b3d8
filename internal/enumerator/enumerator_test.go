package enumerator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cardinality"
	"github.com/xmutable/engine/internal/catalog"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/plantable"
	"github.com/xmutable/engine/internal/querygraph"
	"github.com/xmutable/engine/internal/types"
)

// buildChainGraph reproduces the A/B/C/D chain-graph scenario: A.id=C.aid,
// A.id=D.aid, B.id=D.bid, C.id=D.cid, with bit indices 0=A,1=B,2=C,3=D.
func buildChainGraph(t *testing.T) (*querygraph.QueryGraph, *querygraph.AdjacencyMatrix) {
	t.Helper()
	pool := types.NewStringPool()
	g := querygraph.New()

	mk := func(name string, rows int64) *catalog.Table {
		schema := types.NewSchema()
		_ = schema.AddEntry(types.Entry{ID: types.NewIdentifier(pool, "", "id"), Type: types.Int(32)})
		store := physop.NewMemRowStore(schema)
		for r := int64(0); r < rows; r++ {
			_ = store.Append(physop.NewTuple(schema))
		}
		return &catalog.Table{Name: name, Schema: schema, Store: store}
	}

	a := g.AddBaseTable(pool, mk("a", 5), "a")
	b := g.AddBaseTable(pool, mk("b", 10), "b")
	c := g.AddBaseTable(pool, mk("c", 8), "c")
	d := g.AddBaseTable(pool, mk("d", 12), "d")

	g.AddJoin(cnf.CNF{}, a, c)
	g.AddJoin(cnf.CNF{}, a, d)
	g.AddJoin(cnf.CNF{}, b, d)
	g.AddJoin(cnf.CNF{}, c, d)

	adj, err := querygraph.BuildAdjacencyMatrix(g)
	require.NoError(t, err)
	return g, adj
}

func seedSingletons(g *querygraph.QueryGraph, est cardinality.Estimator, pt *plantable.PlanTable) {
	for _, s := range g.Sources {
		model := est.EstimateScan(g, bitset.Singleton(uint(s.ID)))
		pt.SetSingleton(uint(s.ID), model)
	}
}

func runAndCheck(t *testing.T, e Enumerator) {
	t.Helper()
	g, adj := buildChainGraph(t)
	est := cardinality.NewCartesianEstimator()
	pt := plantable.New(4)
	seedSingletons(g, est, pt)
	e.Enumerate(g, adj, pt, est)

	check := func(s bitset.SmallBitset, wantCost, wantSize uint64) {
		entry := pt.Get(s)
		require.Equal(t, wantCost, entry.Cost, "cost of %v (%s)", s, e.Name())
		require.Equal(t, wantSize, est.PredictCardinality(entry.Model), "size of %v (%s)", s, e.Name())
	}

	A, B, C, D := bitset.Singleton(0), bitset.Singleton(1), bitset.Singleton(2), bitset.Singleton(3)
	check(A.Union(C), 13, 40)
	check(A.Union(D), 17, 60)
	check(B.Union(D), 22, 120)
	check(C.Union(D), 20, 96)
	check(A.Union(B).Union(D), 87, 600)
	check(A.Union(C).Union(D), 65, 480)
	check(B.Union(C).Union(D), 126, 960)
	check(A.Union(B).Union(C).Union(D), 195, 4800)
}

func TestDPsizeMatchesExpectedCostTable(t *testing.T)    { runAndCheck(t, &DPsize{}) }
func TestDPsizeOptMatchesExpectedCostTable(t *testing.T) { runAndCheck(t, &DPsize{Opt: true}) }
func TestDPsubMatchesExpectedCostTable(t *testing.T)     { runAndCheck(t, &DPsub{}) }
func TestDPsubOptMatchesExpectedCostTable(t *testing.T)  { runAndCheck(t, &DPsub{Opt: true}) }
func TestDPccpMatchesExpectedCostTable(t *testing.T)     { runAndCheck(t, &DPccp{}) }

// TestPlanTableMonotonicity checks the DP invariant: after any enumerator
// runs, no valid split of a connected subproblem beats the recorded cost.
func TestPlanTableMonotonicity(t *testing.T) {
	for _, e := range []Enumerator{&DPsize{}, &DPsub{}, &DPccp{}} {
		g, adj := buildChainGraph(t)
		est := cardinality.NewCartesianEstimator()
		pt := plantable.New(4)
		seedSingletons(g, est, pt)
		e.Enumerate(g, adj, pt, est)

		universe := pt.Universe()
		for s := bitset.SmallBitset(1); s <= universe; s++ {
			if s.Size() < 2 || !s.IsSubsetOf(universe) || !adj.IsConnected(s) {
				continue
			}
			recorded := pt.Cost(s)
			l := s.LowBit()
			for {
				r := s.Difference(l)
				if !l.IsEmpty() && !r.IsEmpty() &&
					adj.IsConnected(l) && adj.IsConnected(r) &&
					!adj.Neighbors(l).Intersect(r).IsEmpty() {
					lc, rc := pt.Cost(l), pt.Cost(r)
					if lc != plantable.MaxCost && rc != plantable.MaxCost {
						ls := est.PredictCardinality(pt.Get(l).Model)
						rs := est.PredictCardinality(pt.Get(r).Model)
						split := plantable.SaturatingAdd(lc, rc, ls, rs)
						require.LessOrEqual(t, recorded, split,
							"%s: T[%v] beats recorded cost via split (%v, %v)", e.Name(), s, l, r)
					}
				}
				next, ok := bitset.NextSubset(l, s)
				if !ok {
					break
				}
				l = next
			}
		}
	}
}

func TestAllEnumeratorsAgreeOnFullProblemCost(t *testing.T) {
	results := make([]uint64, 0, 5)
	for _, e := range []Enumerator{&DPsize{}, &DPsize{Opt: true}, &DPsub{}, &DPsub{Opt: true}, &DPccp{}} {
		g, adj := buildChainGraph(t)
		est := cardinality.NewCartesianEstimator()
		pt := plantable.New(4)
		seedSingletons(g, est, pt)
		e.Enumerate(g, adj, pt, est)
		results = append(results, pt.Cost(pt.Universe()))
	}
	for _, r := range results {
		require.Equal(t, results[0], r)
	}
}
