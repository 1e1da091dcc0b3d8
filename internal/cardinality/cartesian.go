package cardinality

import (
	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/querygraph"
)

// CartesianModel is DataModel = (cardinality), the simplest strategy: every
// operation multiplies, preserves, or clamps a single row count.
type CartesianModel struct {
	Card uint64
}

func (m CartesianModel) Cardinality() uint64 { return m.Card }

// CartesianEstimator implements Estimator with no knowledge of correlation:
// filters preserve, joins multiply, grouping collapses to 1 when there are
// no keys (else preserves an upper bound), limit clamps.
type CartesianEstimator struct{}

func NewCartesianEstimator() *CartesianEstimator { return &CartesianEstimator{} }

func (e *CartesianEstimator) EstimateScan(g *querygraph.QueryGraph, s bitset.SmallBitset) DataModel {
	src := sourceAt(g, s)
	if src == nil {
		return CartesianModel{Card: 0}
	}
	return CartesianModel{Card: baseCardinality(src)}
}

func (e *CartesianEstimator) EstimateFilter(g *querygraph.QueryGraph, model DataModel, c cnf.CNF) DataModel {
	return CartesianModel{Card: model.Cardinality()}
}

func (e *CartesianEstimator) EstimateJoin(g *querygraph.QueryGraph, left, right DataModel, c cnf.CNF) DataModel {
	return CartesianModel{Card: saturatingMul(left.Cardinality(), right.Cardinality())}
}

func (e *CartesianEstimator) EstimateGrouping(g *querygraph.QueryGraph, model DataModel, groupKeys []ast.Expr) DataModel {
	if len(groupKeys) == 0 {
		return CartesianModel{Card: 1}
	}
	return CartesianModel{Card: model.Cardinality()}
}

func (e *CartesianEstimator) EstimateLimit(model DataModel, limit, offset int64) DataModel {
	card := model.Cardinality()
	if limit >= 0 && uint64(limit) < card {
		card = uint64(limit)
	}
	return CartesianModel{Card: card}
}

func (e *CartesianEstimator) PredictCardinality(model DataModel) uint64 { return model.Cardinality() }
