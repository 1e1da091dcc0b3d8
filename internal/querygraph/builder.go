package querygraph

import (
	"fmt"

	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/catalog"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/types"
)

// FromItem is one FROM-clause entry as seen by the builder: either a
// reference to a catalog table, or a nested SelectInput (a correlated or
// uncorrelated subquery).
type FromItem struct {
	Alias string
	Table *catalog.Table
	Sub   *SelectInput
}

// SelectInput is the typed-select shape the builder consumes. A real
// resolver hands this to the builder after binding every Designator to its
// Attribute; tests construct it directly, which is exactly what such a
// resolver would do.
type SelectInput struct {
	From        []FromItem
	Where       cnf.CNF
	GroupBy     []ast.Expr
	Aggregates  []*ast.FnApplicationExpr
	Projections []ProjectionItem
	OrderBy     []OrderItem
	Limit       *LimitClause

	// Star marks a SELECT * statement: Projections is left empty by the
	// resolver and the builder expands it by enumerating the FROM clause's
	// output schema.
	Star bool
}

// Build constructs a QueryGraph from in, routing WHERE clauses and
// decorrelating nested subqueries. pool interns every
// alias-renamed identifier.
func Build(pool *types.StringPool, in *SelectInput) *QueryGraph {
	g := New()
	for _, item := range in.From {
		if item.Table != nil {
			g.AddBaseTable(pool, item.Table, item.Alias)
			continue
		}
		subGraph := Build(pool, item.Sub)
		src := g.AddSubQuery(pool, subGraph, item.Alias)
		decorrelate(g, src)
		src.RefreshSchema(pool)
	}

	g.GroupBy = in.GroupBy
	g.Aggregates = in.Aggregates
	g.Projections = in.Projections
	g.OrderBy = in.OrderBy
	g.Limit = in.Limit

	if in.Star && len(g.Projections) == 0 {
		expandStar(g)
	}

	routeClauses(g, in.Where)
	return g
}

// expandStar expands SELECT *: one projection per entry of
// the FROM clause's combined output schema, each a designator carrying the
// entry's own (prefix, name).
func expandStar(g *QueryGraph) {
	for _, src := range g.Sources {
		for _, e := range src.Schema().Entries {
			prefix := ""
			if e.ID.Prefix != nil {
				prefix = *e.ID.Prefix
			}
			name := ""
			if e.ID.Name != nil {
				name = *e.ID.Name
			}
			g.Projections = append(g.Projections, ProjectionItem{
				Expr:  ast.NewTypedDesignator(prefix, name, e.Type),
				Alias: name,
			})
		}
	}
}

// routeClauses routes every WHERE clause by its
// tables_referenced set. A clause naming exactly one source becomes that
// source's Filter; a clause naming two or more becomes (part of) the join
// condition over exactly those sources.
func routeClauses(g *QueryGraph, where cnf.CNF) {
	bySource := map[int]*DataSource{}
	for _, s := range g.Sources {
		bySource[s.ID] = s
	}
	aliasToID := map[string]int{}
	for _, s := range g.Sources {
		aliasToID[s.Alias] = s.ID
	}
	// unaliased designators reference the base table's own name
	for _, s := range g.Sources {
		if s.Kind == SourceBaseTable {
			if _, taken := aliasToID[s.Table.Name]; !taken {
				aliasToID[s.Table.Name] = s.ID
			}
		}
	}

	for _, clause := range where.Clauses {
		refs := clause.TablesReferenced()
		var participants []*DataSource
		seen := map[int]bool{}
		for name := range refs {
			if id, ok := aliasToID[name]; ok && !seen[id] {
				seen[id] = true
				participants = append(participants, bySource[id])
			}
		}
		single := cnf.New(clause)
		switch len(participants) {
		case 0:
			// No table reference (e.g. a constant-folded predicate): attach
			// to the first source's filter, matching an always-applicable
			// selection.
			if len(g.Sources) > 0 {
				g.Sources[0].Filter = cnf.And(g.Sources[0].Filter, single)
			}
		case 1:
			participants[0].Filter = cnf.And(participants[0].Filter, single)
		default:
			g.AddJoin(single, participants...)
		}
	}
}

// decorrelate pulls out a nested subquery's WHERE clauses that
// designate an outer-scope attribute are pulled out of the subquery's own
// filter. An equi-comparison between an outer designator and an attribute
// of the subquery's own sources becomes a join predicate between the outer
// source and the subquery source in the enclosing graph (the subquery is
// thereby decorrelated). Any other outer reference cannot be rewritten into
// a plain join and instead leaves QueryGraph.Correlated set on the
// subquery; the engine reports such a source as an unsupported feature
// (dependent, per-outer-tuple subplans are not evaluated).
func decorrelate(outer *QueryGraph, src *DataSource) {
	sub := src.Sub
	if sub == nil {
		return
	}
	for _, inner := range sub.Sources {
		var remaining cnf.CNF
		for _, clause := range inner.Filter.Clauses {
			if lit, outerExpr, innerExpr, ok := correlatingEquiLiteral(clause); ok {
				outerSrc := outerSourceFor(outer, outerExpr)
				if outerSrc != nil {
					// the correlation column becomes an additional
					// grouping key and output column of the nested query,
					// and the outer predicate is rewritten to join on the
					// new projected column.
					corrName := fmt.Sprintf("__corr%d", len(sub.Projections))
					sub.GroupBy = appendExprIfAbsent(sub.GroupBy, innerExpr)
					sub.Projections = append(sub.Projections, ProjectionItem{Expr: innerExpr, Alias: corrName})
					projected := ast.NewTypedDesignator(src.Alias, corrName, innerExpr.Type())
					rewritten := ast.NewBinaryExpr(ast.OpEq, outerExpr, projected, types.Boolean())
					join := cnf.New(cnf.NewClause(cnf.Literal{Negated: lit.Negated, Expr: rewritten}))
					outer.AddJoin(join, outerSrc, src)
					continue
				}
			}
			remaining.Clauses = append(remaining.Clauses, clause)
		}
		inner.Filter = remaining
	}
	sub.Correlated = hasResidualCorrelation(sub)
}

// correlatingEquiLiteral reports whether clause is a single equi-comparison
// literal between a TargetOuterExpr designator and some inner expression,
// returning that literal, the outer-scope expr it designates, and the
// inner-side expr it is equated with (the new grouping key and output
// column the nested query must expose).
func correlatingEquiLiteral(clause cnf.Clause) (lit cnf.Literal, outerExpr, innerExpr ast.Expr, ok bool) {
	if len(clause.Literals) != 1 {
		return cnf.Literal{}, nil, nil, false
	}
	lit = clause.Literals[0]
	bin, isBin := lit.Expr.(*ast.BinaryExpr)
	if !isBin || bin.Op != ast.OpEq {
		return cnf.Literal{}, nil, nil, false
	}
	if d, isD := bin.Left.(*ast.Designator); isD && d.TargetKind == ast.TargetOuterExpr {
		return lit, d.TargetExpr, bin.Right, true
	}
	if d, isD := bin.Right.(*ast.Designator); isD && d.TargetKind == ast.TargetOuterExpr {
		return lit, d.TargetExpr, bin.Left, true
	}
	return cnf.Literal{}, nil, nil, false
}

// appendExprIfAbsent appends e to keys unless keys already holds the same
// expression: designators compare by their resolved Attribute, anything
// else by pointer identity (exact AST equality is out of scope here).
func appendExprIfAbsent(keys []ast.Expr, e ast.Expr) []ast.Expr {
	for _, k := range keys {
		if exprLooksEqual(k, e) {
			return keys
		}
	}
	return append(keys, e)
}

func exprLooksEqual(a, b ast.Expr) bool {
	da, aok := a.(*ast.Designator)
	db, bok := b.(*ast.Designator)
	if aok && bok {
		return da.TargetAttr == db.TargetAttr
	}
	return a == b
}

// outerSourceFor finds the DataSource in outer whose schema the outer-scope
// expr reads from, by matching TablesReferenced against each source alias.
func outerSourceFor(outer *QueryGraph, outerExpr ast.Expr) *DataSource {
	refs := outerExpr.TablesReferenced()
	for name := range refs {
		for _, s := range outer.Sources {
			if s.Alias == name {
				return s
			}
		}
	}
	return nil
}

// hasResidualCorrelation reports whether any source in g still carries a
// filter clause designating an expression outside g: i.e. whether
// decorrelation left a non-equi (or otherwise unrewritable) outer reference
// behind.
func hasResidualCorrelation(g *QueryGraph) bool {
	for _, s := range g.Sources {
		for _, clause := range s.Filter.Clauses {
			for _, lit := range clause.Literals {
				if designatesOuter(lit.Expr) {
					return true
				}
			}
		}
	}
	return false
}

func designatesOuter(e ast.Expr) bool {
	switch x := e.(type) {
	case *ast.Designator:
		return x.TargetKind == ast.TargetOuterExpr
	case *ast.BinaryExpr:
		return designatesOuter(x.Left) || designatesOuter(x.Right)
	case *ast.UnaryExpr:
		return designatesOuter(x.Operand)
	case *ast.FnApplicationExpr:
		for _, a := range x.Args {
			if designatesOuter(a) {
				return true
			}
		}
	}
	return false
}
