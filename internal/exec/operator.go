// Package exec is the execution core: the physical Operator tagged-variant
// tree, the stack-machine bytecode interpreter, and the push-style
// pipeline interpreter that drives it.
package exec

import (
	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/types"
)

// Kind tags an Operator's variant. A single variant stands in for a
// producer/consumer class hierarchy; kinds that both consume and produce
// simply implement both roles on the same arm.
type Kind int

const (
	KindScan Kind = iota
	KindFilter
	KindJoin
	KindProjection
	KindGrouping
	KindAggregation
	KindSorting
	KindLimit
	KindCallback
	KindPrint
	KindNoOp
)

func (k Kind) String() string {
	switch k {
	case KindScan:
		return "Scan"
	case KindFilter:
		return "Filter"
	case KindJoin:
		return "Join"
	case KindProjection:
		return "Projection"
	case KindGrouping:
		return "Grouping"
	case KindAggregation:
		return "Aggregation"
	case KindSorting:
		return "Sorting"
	case KindLimit:
		return "Limit"
	case KindCallback:
		return "Callback"
	case KindPrint:
		return "Print"
	case KindNoOp:
		return "NoOp"
	}
	return "?"
}

// JoinAlgo selects the join algorithm.
type JoinAlgo int

const (
	NestedLoops JoinAlgo = iota
	SimpleHashJoin
)

// GroupingAlgo selects the grouping algorithm.
type GroupingAlgo int

const (
	GroupingHashing GroupingAlgo = iota
	GroupingOrdered
)

// ProjectionItem is one (Expr, optional alias) SELECT-list entry.
type ProjectionItem struct {
	Expr  ast.Expr
	Alias string
}

// OrderItem is one (Expr, ascending?) ORDER BY entry.
type OrderItem struct {
	Expr      ast.Expr
	Ascending bool
}

// SinkInfo pairs the three sink flavors a Callback/Print/NoOp leaf can be.
type SinkInfo struct {
	Callback func(schema *types.Schema, t *physop.Tuple) // valid iff Kind == KindCallback
}

// Information is the optional cached (subproblem, estimated cardinality)
// side-data an Operator may carry, attached by the Plan Constructor
// for diagnostics only: nothing in the execution core reads it.
type Information struct {
	Subproblem           bitset.SmallBitset
	EstimatedCardinality uint64
}

// Operator is the tagged variant over every physical operator kind in the
// plan tree. A node carrying zero Children is a pure Producer
// (only Scan); every other kind is simultaneously a Consumer of its
// Children and a Producer to whatever Operator holds it as a child.
type Operator struct {
	Kind     Kind
	Schema   *types.Schema
	Children []*Operator
	Info     *Information

	// Scan
	Store physop.Store
	Alias string
	// ColumnMap, when non-nil, maps each Schema entry to its column index
	// in the store's own schema: installed by schema minimization when it
	// drops unreferenced scan columns. nil means identity.
	ColumnMap []int

	// Filter, Join
	CNF      cnf.CNF
	JoinAlgo JoinAlgo

	// Projection
	Projections []ProjectionItem

	// Grouping, Aggregation
	GroupKeys    []ast.Expr
	Aggregates   []*ast.FnApplicationExpr
	GroupingAlgo GroupingAlgo

	// Sorting
	OrderBy []OrderItem

	// Limit
	Limit, Offset int64

	// Callback / Print / NoOp
	Sink SinkInfo
}

// NewScan builds a Producer-only leaf over store, addressed by alias, with
// the store's own (already-renamed) schema.
func NewScan(store physop.Store, alias string, schema *types.Schema) *Operator {
	return &Operator{Kind: KindScan, Store: store, Alias: alias, Schema: schema}
}

// NewFilter wraps child with a CNF predicate; its schema is child's,
// recomputed by AddChild (a Filter never adds or drops columns).
func NewFilter(child *Operator, c cnf.CNF) *Operator {
	op := &Operator{Kind: KindFilter, CNF: c}
	op.AddChild(child)
	return op
}

// NewJoin binds left and right under predicate c with the chosen algorithm.
// Join recomputes its schema as children are added, unlike Grouping/
// Aggregation/Projection/Sorting below.
func NewJoin(c cnf.CNF, algo JoinAlgo, children ...*Operator) *Operator {
	op := &Operator{Kind: KindJoin, CNF: c, JoinAlgo: algo}
	for _, ch := range children {
		op.AddChild(ch)
	}
	return op
}

// NewProjection fixes schema once at construction; later AddChild calls (if
// any) do not recompute it.
func NewProjection(child *Operator, items []ProjectionItem, schema *types.Schema) *Operator {
	return &Operator{Kind: KindProjection, Children: []*Operator{child}, Projections: items, Schema: schema}
}

// NewGrouping fixes schema once at construction, same as Projection.
func NewGrouping(child *Operator, keys []ast.Expr, aggs []*ast.FnApplicationExpr, algo GroupingAlgo, schema *types.Schema) *Operator {
	return &Operator{Kind: KindGrouping, Children: []*Operator{child}, GroupKeys: keys, Aggregates: aggs, GroupingAlgo: algo, Schema: schema}
}

// NewAggregation is Grouping with no keys: a single implicit group.
func NewAggregation(child *Operator, aggs []*ast.FnApplicationExpr, schema *types.Schema) *Operator {
	return &Operator{Kind: KindAggregation, Children: []*Operator{child}, Aggregates: aggs, Schema: schema}
}

// NewSorting fixes schema once at construction, same as Projection.
func NewSorting(child *Operator, order []OrderItem, schema *types.Schema) *Operator {
	return &Operator{Kind: KindSorting, Children: []*Operator{child}, OrderBy: order, Schema: schema}
}

// NewLimit wraps child with a (limit, offset) clause; schema passes through.
func NewLimit(child *Operator, limit, offset int64) *Operator {
	op := &Operator{Kind: KindLimit, Limit: limit, Offset: offset}
	op.AddChild(child)
	return op
}

// NewCallback wraps child with a user-supplied per-tuple callback sink.
func NewCallback(child *Operator, cb func(*types.Schema, *physop.Tuple)) *Operator {
	op := &Operator{Kind: KindCallback, Sink: SinkInfo{Callback: cb}}
	op.AddChild(child)
	return op
}

// NewPrint wraps child with a print-to-stream sink (the stream is the
// package-level PrintWriter, not stored on the operator).
func NewPrint(child *Operator) *Operator {
	op := &Operator{Kind: KindPrint}
	op.AddChild(child)
	return op
}

// NewNoOp wraps child with a counting sink that discards every tuple.
func NewNoOp(child *Operator) *Operator {
	op := &Operator{Kind: KindNoOp}
	op.AddChild(child)
	return op
}

// AddChild appends child and recomputes Schema as the concatenation of all
// Children's schemas: the default for every Consumer kind except
// Projection/Grouping/Aggregation/Sorting, whose constructors set Schema
// once and never call this helper again. The asymmetry is load-bearing:
// a Grouping's schema is fixed at construction while a Join's tracks its
// children.
func (op *Operator) AddChild(child *Operator) {
	op.Children = append(op.Children, child)
	s := types.NewSchema()
	for _, c := range op.Children {
		s = s.Concat(c.Schema)
	}
	op.Schema = s
}
