// Package cardinality implements the cardinality estimator: an Estimator
// interface polymorphic over an opaque DataModel handle, with two concrete
// strategies (cartesian, injection).
package cardinality

import (
	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/querygraph"
)

// DataModel is an opaque per-subproblem size estimate. Both concrete
// implementations also satisfy it; callers should not type-switch on it
// outside this package.
type DataModel interface {
	Cardinality() uint64
}

// Estimator implements the six estimation operations over a chosen
// DataModel representation.
type Estimator interface {
	EstimateScan(g *querygraph.QueryGraph, s bitset.SmallBitset) DataModel
	EstimateFilter(g *querygraph.QueryGraph, model DataModel, c cnf.CNF) DataModel
	EstimateJoin(g *querygraph.QueryGraph, left, right DataModel, c cnf.CNF) DataModel
	EstimateGrouping(g *querygraph.QueryGraph, model DataModel, groupKeys []ast.Expr) DataModel
	EstimateLimit(model DataModel, limit, offset int64) DataModel
	PredictCardinality(model DataModel) uint64
}

// sourceAt returns the single DataSource named by the singleton subproblem
// s, or nil if s is not a singleton.
func sourceAt(g *querygraph.QueryGraph, s bitset.SmallBitset) *querygraph.DataSource {
	if s.Size() != 1 {
		return nil
	}
	i, _ := s.LeastElement()
	for _, src := range g.Sources {
		if src.ID == int(i) {
			return src
		}
	}
	return nil
}

// baseCardinality returns a source's own size estimate prior to any filter:
// a BaseTable's backing-store row count, or a SubQuery's previously-planned
// cardinality (populated by the engine once the nested graph has itself
// been optimized; a subquery source is a black box whose size must already
// be known by the time the enclosing graph is estimated).
func baseCardinality(src *querygraph.DataSource) uint64 {
	if src.Kind == querygraph.SourceBaseTable {
		return uint64(src.Table.Store.NumRows())
	}
	if src.EstimatedCardinality > 0 {
		return src.EstimatedCardinality
	}
	return 1
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	prod := a * b
	if prod/a != b {
		return ^uint64(0)
	}
	return prod
}
