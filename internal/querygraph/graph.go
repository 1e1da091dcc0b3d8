// Package querygraph implements the relation-algebraic IR the optimizer
// works on: data sources (base tables or nested subqueries), joins, and
// the adjacency matrix used for connectivity queries during plan
// enumeration.
package querygraph

import (
	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/catalog"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/types"
)

// SourceKind distinguishes a BaseTable from a nested SubQuery.
type SourceKind int

const (
	SourceBaseTable SourceKind = iota
	SourceSubQuery
)

// DataSource is one FROM-clause entry.
type DataSource struct {
	ID    int
	Alias string
	Kind  SourceKind

	Table *catalog.Table // valid iff Kind == SourceBaseTable
	Sub   *QueryGraph     // valid iff Kind == SourceSubQuery

	Filter cnf.CNF
	Joins  []*Join // every join this source participates in

	// EstimatedCardinality is the size of a SubQuery source once its nested
	// graph has been planned by the engine; zero means "not yet planned".
	// Unused for BaseTable sources, whose size always comes from the
	// backing store's row count.
	EstimatedCardinality uint64

	schema *types.Schema
}

// Schema returns the data source's output schema: the renamed catalog
// table schema for a BaseTable, or the nested graph's projected schema for
// a SubQuery.
func (s *DataSource) Schema() *types.Schema { return s.schema }

// Join is a (possibly non-binary) edge; participants are referenced by
// pointer so removing a join only touches the O(degree) sources it lists.
type Join struct {
	CNF          cnf.CNF
	Participants []*DataSource
}

// IsBinary reports whether exactly two sources participate.
func (j *Join) IsBinary() bool { return len(j.Participants) == 2 }

// ParticipantSet returns the bitset of participant ids.
func (j *Join) ParticipantSet() bitset.SmallBitset {
	var s bitset.SmallBitset
	for _, p := range j.Participants {
		s = s.Set(uint(p.ID))
	}
	return s
}

// IDSetOf converts a slice of sources to their bitset of ids.
func IDSetOf(srcs []*DataSource) bitset.SmallBitset {
	var s bitset.SmallBitset
	for _, p := range srcs {
		s = s.Set(uint(p.ID))
	}
	return s
}

// ProjectionItem is one SELECT-list entry.
type ProjectionItem struct {
	Expr  ast.Expr
	Alias string
}

// OrderItem is one ORDER BY entry.
type OrderItem struct {
	Expr      ast.Expr
	Ascending bool
}

// LimitClause is a LIMIT [OFFSET] clause.
type LimitClause struct {
	Limit, Offset int64
}

// QueryGraph is G = (V, E, group_by, aggregates, projections, order_by, limit).
type QueryGraph struct {
	Sources []*DataSource
	Joins   []*Join

	GroupBy     []ast.Expr
	Aggregates  []*ast.FnApplicationExpr
	Projections []ProjectionItem
	OrderBy     []OrderItem
	Limit       *LimitClause

	// Correlated is set by decorrelation when a filter clause of one of
	// Sources still designates an outer-scope expression after equi
	// correlations were pulled out into joins.
	Correlated bool
}

// New returns an empty query graph.
func New() *QueryGraph { return &QueryGraph{} }

// AddBaseTable appends a BaseTable source, renaming the catalog table's
// schema by alias, and returns it. A BaseTable's schema exactly equals the
// catalog table's schema renamed by the source's alias.
func (g *QueryGraph) AddBaseTable(pool *types.StringPool, table *catalog.Table, alias string) *DataSource {
	if alias == "" {
		alias = table.Name
	}
	src := &DataSource{
		ID:     len(g.Sources),
		Alias:  alias,
		Kind:   SourceBaseTable,
		Table:  table,
		schema: table.Schema.Rename(pool, alias),
	}
	g.Sources = append(g.Sources, src)
	return src
}

// AddSubQuery appends a SubQuery source wrapping sub, whose exposed schema
// is sub's own projected schema (optionally renamed by alias).
func (g *QueryGraph) AddSubQuery(pool *types.StringPool, sub *QueryGraph, alias string) *DataSource {
	schema := sub.OutputSchema()
	if alias != "" {
		schema = schema.Rename(pool, alias)
	}
	src := &DataSource{
		ID:     len(g.Sources),
		Alias:  alias,
		Kind:   SourceSubQuery,
		Sub:    sub,
		schema: schema,
	}
	g.Sources = append(g.Sources, src)
	return src
}

// RefreshSchema recomputes a SubQuery source's exposed schema from its
// nested graph's current projections, renamed by the source alias: needed
// after decorrelation appends correlation columns to the nested query.
func (s *DataSource) RefreshSchema(pool *types.StringPool) {
	if s.Kind != SourceSubQuery {
		return
	}
	schema := s.Sub.OutputSchema()
	if s.Alias != "" {
		schema = schema.Rename(pool, s.Alias)
	}
	s.schema = schema
}

// OutputSchema derives the graph's result schema from its Projections (or,
// if there are none yet, the concatenation of every source's schema: the
// pre-SELECT-* expansion state).
func (g *QueryGraph) OutputSchema() *types.Schema {
	if len(g.Projections) == 0 {
		out := types.NewSchema()
		for _, s := range g.Sources {
			out = out.Concat(s.Schema())
		}
		return out
	}
	out := types.NewSchema()
	for _, p := range g.Projections {
		name := p.Alias
		out.Entries = append(out.Entries, types.Entry{
			ID:   types.Identifier{Name: internPtr(name)},
			Type: p.Expr.Type(),
		})
	}
	return out
}

func internPtr(s string) *string { return &s }

// RemoveSource removes source id, re-packing remaining ids to stay dense.
// Every join loses the removed source from its Participants list; a join
// left with fewer than two participants is dropped from the graph and from
// every remaining source's Joins.
func (g *QueryGraph) RemoveSource(id int) {
	idx := -1
	for i, s := range g.Sources {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	removed := g.Sources[idx]
	g.Sources = append(g.Sources[:idx], g.Sources[idx+1:]...)
	for i, s := range g.Sources {
		s.ID = i
	}
	// drop the removed source from every join it participated in
	keptJoins := g.Joins[:0]
	for _, j := range g.Joins {
		parts := j.Participants[:0]
		for _, p := range j.Participants {
			if p != removed {
				parts = append(parts, p)
			}
		}
		j.Participants = parts
		if len(j.Participants) >= 2 {
			keptJoins = append(keptJoins, j)
		}
	}
	g.Joins = keptJoins
	// rebuild each remaining source's Joins slice since pointers are stable
	for _, s := range g.Sources {
		kept := s.Joins[:0]
		for _, j := range s.Joins {
			if len(j.Participants) >= 2 {
				kept = append(kept, j)
			}
		}
		s.Joins = kept
	}
}

// AddJoin adds a join over participants, AND-merging into an existing join
// with the identical participant set if one exists.
func (g *QueryGraph) AddJoin(condition cnf.CNF, participants ...*DataSource) *Join {
	target := bitset.SmallBitset(0)
	for _, p := range participants {
		target = target.Set(uint(p.ID))
	}
	for _, j := range g.Joins {
		if j.ParticipantSet() == target {
			j.CNF = cnf.And(j.CNF, condition)
			return j
		}
	}
	j := &Join{CNF: condition, Participants: append([]*DataSource(nil), participants...)}
	g.Joins = append(g.Joins, j)
	for _, p := range participants {
		p.Joins = append(p.Joins, j)
	}
	return j
}

// IDSet returns the bitset of every current source id, i.e. {0,...,|V|-1}.
func (g *QueryGraph) IDSet() bitset.SmallBitset { return bitset.All(uint(len(g.Sources))) }
