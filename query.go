package engine

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cardinality"
	"github.com/xmutable/engine/internal/exec"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/planconstructor"
	"github.com/xmutable/engine/internal/plantable"
	"github.com/xmutable/engine/internal/querygraph"
	"github.com/xmutable/engine/internal/types"
	"github.com/xmutable/engine/internal/xlog"
)

// Sink is where result tuples go: a per-tuple callback, a text
// printer, or a counting sink that discards every row.
type Sink struct {
	fn func(*types.Schema, *physop.Tuple)
	w  io.Writer
}

// CallbackSink invokes fn once per result tuple.
func CallbackSink(fn func(*types.Schema, *physop.Tuple)) Sink { return Sink{fn: fn} }

// PrintSink writes one formatted line per result tuple to w.
func PrintSink(w io.Writer) Sink { return Sink{w: w} }

// CountSink discards every tuple; ExecuteSelect still reports the count.
func CountSink() Sink { return Sink{} }

// ExecuteSelect runs the full pipeline on a resolved select statement:
// build the query graph, enumerate join orders, construct the physical
// plan, execute it into sink. Returns the number of result tuples.
func (e *Engine) ExecuteSelect(in *querygraph.SelectInput, sink Sink) (uint64, error) {
	g := querygraph.Build(e.Catalog.Pool, in)
	root, predicted, err := e.planGraph(g)
	if err != nil {
		return 0, err
	}
	xlog.Engine.Debugf("plan ready, predicted cardinality %d", predicted)

	var count uint64
	schema := root.Schema
	wrapped := exec.NewCallback(root, func(s *types.Schema, t *physop.Tuple) {
		count++
		if sink.fn != nil {
			sink.fn(s, t)
		}
		if sink.w != nil {
			fmt.Fprintln(sink.w, renderTuple(schema, t))
		}
	})
	if err := exec.Execute(wrapped); err != nil {
		return count, err
	}
	xlog.Engine.Infof("query done, %d rows emitted", count)
	return count, nil
}

// planGraph optimizes g into an executable operator tree and predicts the
// result cardinality. Nested subquery sources are planned first, depth
// first, so their estimated sizes feed the enclosing enumeration.
func (e *Engine) planGraph(g *querygraph.QueryGraph) (*exec.Operator, uint64, error) {
	n := len(g.Sources)
	if n == 0 {
		return nil, 0, errors.Wrap(ErrUnsupportedFeature, "select without FROM")
	}
	if n > 64 {
		return nil, 0, errors.Errorf("engine: %d sources exceed the 64-relation capacity", n)
	}

	sourcePlans := make([]*exec.Operator, n)
	pt := plantable.New(uint(n))
	for _, src := range g.Sources {
		producer, err := e.sourcePlan(g, src)
		if err != nil {
			return nil, 0, err
		}
		if !src.Filter.IsEmpty() {
			producer = exec.NewFilter(producer, src.Filter)
		}
		sourcePlans[src.ID] = producer

		model := e.est.EstimateScan(g, bitset.Singleton(uint(src.ID)))
		if !src.Filter.IsEmpty() {
			model = e.est.EstimateFilter(g, model, src.Filter)
		}
		pt.SetSingleton(uint(src.ID), model)
	}

	if n > 1 {
		adj, err := querygraph.BuildAdjacencyMatrix(g)
		if err != nil {
			return nil, 0, err
		}
		e.enum.Enumerate(g, adj, pt, e.est)
		xlog.Optimizer.Debugf("%s filled plan table, full-problem cost %d", e.enum.Name(), pt.Cost(pt.Universe()))
	}

	root, err := planconstructor.Construct(e.Catalog.Pool, g, pt, e.est, sourcePlans)
	if err != nil {
		return nil, 0, err
	}
	return root, e.predictResult(g, pt), nil
}

// sourcePlan produces the bare (unfiltered) producer for one source: a
// Scan over a base table's store, or the recursively planned subplan of a
// nested query.
func (e *Engine) sourcePlan(g *querygraph.QueryGraph, src *querygraph.DataSource) (*exec.Operator, error) {
	if src.Kind == querygraph.SourceBaseTable {
		return exec.NewScan(src.Table.Store, src.Alias, src.Schema()), nil
	}
	if src.Sub.Correlated {
		// non-equi correlation survived decorrelation; evaluating the
		// subquery per outer tuple is not implemented
		return nil, errors.Wrap(ErrUnsupportedFeature, "dependent subquery")
	}
	subRoot, subCard, err := e.planGraph(src.Sub)
	if err != nil {
		return nil, err
	}
	src.EstimatedCardinality = subCard
	// expose the subplan under the source's alias-renamed schema; the
	// entries align positionally with the nested graph's output
	if renamed := src.Schema(); renamed.NumEntries() == subRoot.Schema.NumEntries() {
		subRoot.Schema = renamed
	}
	return subRoot, nil
}

// predictResult folds the post-join clauses into the universe's model:
// grouping collapses or preserves, limit clamps.
func (e *Engine) predictResult(g *querygraph.QueryGraph, pt *plantable.PlanTable) uint64 {
	entry := pt.Get(pt.Universe())
	var model cardinality.DataModel = entry.Model
	if model == nil {
		return 0
	}
	if len(g.GroupBy) > 0 || len(g.Aggregates) > 0 {
		model = e.est.EstimateGrouping(g, model, g.GroupBy)
	}
	if g.Limit != nil {
		model = e.est.EstimateLimit(model, g.Limit.Limit, g.Limit.Offset)
	}
	return e.est.PredictCardinality(model)
}

func renderTuple(schema *types.Schema, t *physop.Tuple) string {
	out := "("
	for i := range schema.Entries {
		if i > 0 {
			out += ", "
		}
		if t.IsNull(i) {
			out += "NULL"
			continue
		}
		v, _ := t.Get(i)
		switch v.Kind {
		case physop.KindBool:
			out += fmt.Sprintf("%t", v.Bool)
		case physop.KindInt:
			out += fmt.Sprintf("%d", v.Int)
		case physop.KindFloat32:
			out += fmt.Sprintf("%g", v.F32)
		case physop.KindFloat64:
			out += fmt.Sprintf("%g", v.F64)
		case physop.KindPointer:
			out += v.AsString()
		}
	}
	return out + ")"
}
