// Package planconstructor converts a populated plan table, a query graph,
// and per-source producer plans into a physical operator tree, choosing
// join algorithms, wrapping the join tree with grouping/sorting/
// projection/limit, and minimizing operator schemas.
package planconstructor

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cardinality"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/exec"
	"github.com/xmutable/engine/internal/plantable"
	"github.com/xmutable/engine/internal/querygraph"
	"github.com/xmutable/engine/internal/types"
	"github.com/xmutable/engine/internal/xlog"
)

// ErrNoPlan indicates the plan table holds no usable entry for a requested
// subproblem: a bug in the enumerator or its caller.
var ErrNoPlan = errors.New("planconstructor: no plan for subproblem")

// Construct walks the plan table from the full problem down, builds the
// join tree over sourcePlans, wraps it with the query graph's grouping,
// ordering, projection, and limit clauses, and minimizes every operator's
// schema. sourcePlans[v] must be a Producer for source id v, already
// wrapped in a Filter if the source carries one.
func Construct(pool *types.StringPool, g *querygraph.QueryGraph, pt *plantable.PlanTable, est cardinality.Estimator, sourcePlans []*exec.Operator) (*exec.Operator, error) {
	if len(g.Sources) == 0 {
		return nil, errors.Wrap(ErrNoPlan, "empty FROM clause")
	}
	c := &constructor{g: g, pt: pt, est: est, sourcePlans: sourcePlans, remaining: make(map[*querygraph.Join]bool, len(g.Joins))}
	for _, j := range g.Joins {
		c.remaining[j] = true
	}

	root, err := c.buildJoinTree()
	if err != nil {
		return nil, err
	}
	// N-ary joins never enter the adjacency matrix; whatever remains
	// undrained after the binary join tree applies as a residual filter.
	if leftover := c.drainJoins(g.IDSet()); !leftover.IsEmpty() {
		root = exec.NewFilter(root, leftover)
	}

	root = wrapClauses(pool, g, root)
	MinimizeSchema(root)
	xlog.Optimizer.Debugf("constructed plan rooted at %s over %d sources", root.Kind, len(g.Sources))
	return root, nil
}

type constructor struct {
	g           *querygraph.QueryGraph
	pt          *plantable.PlanTable
	est         cardinality.Estimator
	sourcePlans []*exec.Operator
	remaining   map[*querygraph.Join]bool
}

// buildJoinTree produces the join tree for the full problem. A universe the
// enumerator could not connect (a cross product in the statement) is split
// into its planned fragments and combined with predicate-free nested-loops
// joins, left to right.
func (c *constructor) buildJoinTree() (*exec.Operator, error) {
	universe := c.g.IDSet()
	if c.pt.Cost(universe) != plantable.MaxCost || universe.Size() == 1 {
		return c.buildSub(universe)
	}
	var root *exec.Operator
	rest := universe
	for !rest.IsEmpty() {
		frag := c.largestPlannedFragment(rest)
		if frag.IsEmpty() {
			return nil, errors.Wrapf(ErrNoPlan, "subproblem %s", rest)
		}
		sub, err := c.buildSub(frag)
		if err != nil {
			return nil, err
		}
		if root == nil {
			root = sub
		} else {
			root = exec.NewJoin(cnf.CNF{}, exec.NestedLoops, root, sub)
		}
		rest = rest.Difference(frag)
	}
	return root, nil
}

// largestPlannedFragment finds the biggest subset of rest with a usable
// plan-table entry, preferring larger fragments so cross products join as
// few operands as possible.
func (c *constructor) largestPlannedFragment(rest bitset.SmallBitset) bitset.SmallBitset {
	for k := uint(rest.Size()); k >= 1; k-- {
		e := bitset.NewSubsetEnumerator(rest, k)
		for !e.Done() {
			s := e.Next()
			if s.Size() == 1 || c.pt.Cost(s) != plantable.MaxCost {
				return s
			}
		}
	}
	return bitset.Empty
}

// buildSub is the core recursion: singletons come from sourcePlans, larger
// subproblems read their (left, right) split from the plan table, drain the
// joins subsumed by the subproblem, and pick the join algorithm.
func (c *constructor) buildSub(s bitset.SmallBitset) (*exec.Operator, error) {
	if s.Size() == 1 {
		i, _ := s.LeastElement()
		if int(i) >= len(c.sourcePlans) || c.sourcePlans[i] == nil {
			return nil, errors.Wrapf(ErrNoPlan, "no source plan for %s", s)
		}
		return c.sourcePlans[i], nil
	}
	entry := c.pt.Get(s)
	if entry.Cost == plantable.MaxCost || entry.Left.IsEmpty() {
		return nil, errors.Wrapf(ErrNoPlan, "subproblem %s", s)
	}
	left, err := c.buildSub(entry.Left)
	if err != nil {
		return nil, err
	}
	right, err := c.buildSub(entry.Right)
	if err != nil {
		return nil, err
	}
	condition := c.drainJoins(s)
	algo := exec.NestedLoops
	if isSimpleEquiPredicate(condition) {
		algo = exec.SimpleHashJoin
	}
	op := exec.NewJoin(condition, algo, left, right)
	op.Info = &exec.Information{Subproblem: s, EstimatedCardinality: c.est.PredictCardinality(entry.Model)}
	return op, nil
}

// drainJoins removes from the remaining set every join whose participant
// set is a subset of s, ANDing their conditions.
func (c *constructor) drainJoins(s bitset.SmallBitset) cnf.CNF {
	var out cnf.CNF
	for _, j := range c.g.Joins {
		if !c.remaining[j] {
			continue
		}
		if j.ParticipantSet().IsSubsetOf(s) {
			out = cnf.And(out, j.CNF)
			c.remaining[j] = false
		}
	}
	return out
}

// isSimpleEquiPredicate reports whether condition is a single non-negated
// col == col literal, the only shape SimpleHashJoin accepts.
func isSimpleEquiPredicate(condition cnf.CNF) bool {
	if len(condition.Clauses) != 1 || len(condition.Clauses[0].Literals) != 1 {
		return false
	}
	lit := condition.Clauses[0].Literals[0]
	if lit.Negated {
		return false
	}
	bin, ok := lit.Expr.(*ast.BinaryExpr)
	if !ok || bin.Op != ast.OpEq {
		return false
	}
	_, lok := bin.Left.(*ast.Designator)
	_, rok := bin.Right.(*ast.Designator)
	return lok && rok
}

// wrapClauses applies the top-down wrapping order: grouping, sorting,
// projection (always after sorting, since ordering may reference
// non-projected keys), then limit.
func wrapClauses(pool *types.StringPool, g *querygraph.QueryGraph, root *exec.Operator) *exec.Operator {
	if len(g.GroupBy) > 0 || len(g.Aggregates) > 0 {
		schema := groupingSchema(pool, g)
		if len(g.GroupBy) == 0 {
			root = exec.NewAggregation(root, g.Aggregates, schema)
		} else {
			algo := exec.GroupingHashing
			if orderedOnKeys(root, g.GroupBy) {
				algo = exec.GroupingOrdered
			}
			root = exec.NewGrouping(root, g.GroupBy, g.Aggregates, algo, schema)
		}
	}
	if len(g.OrderBy) > 0 {
		order := make([]exec.OrderItem, len(g.OrderBy))
		for i, o := range g.OrderBy {
			order[i] = exec.OrderItem{Expr: rewriteAggRefs(o.Expr), Ascending: o.Ascending}
		}
		root = exec.NewSorting(root, order, root.Schema)
	}
	if len(g.Projections) > 0 {
		items := make([]exec.ProjectionItem, len(g.Projections))
		schema := types.NewSchema()
		for i, p := range g.Projections {
			e := rewriteAggRefs(p.Expr)
			items[i] = exec.ProjectionItem{Expr: e, Alias: p.Alias}
			name := p.Alias
			if name == "" {
				name = exprString(p.Expr)
			}
			schema.Entries = append(schema.Entries, types.Entry{
				ID:   types.Identifier{Name: pool.Intern(name)},
				Type: p.Expr.Type(),
			})
		}
		root = exec.NewProjection(root, items, schema)
	}
	if g.Limit != nil {
		root = exec.NewLimit(root, g.Limit.Limit, g.Limit.Offset)
	}
	return root
}

// groupingSchema is the schema a Grouping/Aggregation operator promises:
// one entry per group key followed by one per aggregate, named by the
// expression's rendered text so that projections above can designate them.
func groupingSchema(pool *types.StringPool, g *querygraph.QueryGraph) *types.Schema {
	schema := types.NewSchema()
	for _, k := range g.GroupBy {
		id := types.Identifier{Name: pool.Intern(exprString(k))}
		if d, ok := k.(*ast.Designator); ok {
			id = types.Identifier{Name: pool.Intern(d.Name)}
			if d.Prefix != "" {
				id.Prefix = pool.Intern(d.Prefix)
			}
		}
		schema.Entries = append(schema.Entries, types.Entry{ID: id, Type: k.Type()})
	}
	for _, a := range g.Aggregates {
		schema.Entries = append(schema.Entries, types.Entry{
			ID:   types.Identifier{Name: pool.Intern(exprString(a))},
			Type: a.Type(),
		})
	}
	return schema
}

// orderedOnKeys reports whether child already guarantees an ordering whose
// leading expressions cover keys: the only case Grouping may use the
// Ordered algorithm.
func orderedOnKeys(child *exec.Operator, keys []ast.Expr) bool {
	if child.Kind != exec.KindSorting || len(child.OrderBy) < len(keys) {
		return false
	}
	for i, k := range keys {
		if exprString(child.OrderBy[i].Expr) != exprString(k) {
			return false
		}
	}
	return true
}

// rewriteAggRefs replaces aggregate applications inside e with designators
// over the grouping operator's output columns, so expressions above a
// Grouping compile against its promised schema instead of re-evaluating the
// aggregate.
func rewriteAggRefs(e ast.Expr) ast.Expr {
	switch x := e.(type) {
	case *ast.FnApplicationExpr:
		switch x.Fn.ID {
		case ast.FnCount, ast.FnCountStar, ast.FnSum, ast.FnMin, ast.FnMax, ast.FnAvg:
			return ast.NewTypedDesignator("", exprString(x), x.Type())
		}
		return x
	case *ast.BinaryExpr:
		return ast.NewBinaryExpr(x.Op, rewriteAggRefs(x.Left), rewriteAggRefs(x.Right), x.Type())
	case *ast.UnaryExpr:
		return ast.NewUnaryExpr(x.Negated, rewriteAggRefs(x.Operand), x.Type())
	default:
		return e
	}
}

// exprString renders an expression deterministically, used to name
// synthesized schema entries and to compare ordering keys.
func exprString(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Designator:
		if x.Prefix != "" {
			return x.Prefix + "." + x.Name
		}
		return x.Name
	case *ast.Constant:
		if x.Val.IsNull {
			return "NULL"
		}
		if x.Ty != nil && x.Ty.IsNumeric() {
			if x.Ty.NumKind == types.NumericFloat {
				return fmt.Sprintf("%g", x.Val.Float)
			}
			return fmt.Sprintf("%d", x.Val.Int)
		}
		if x.Ty != nil && x.Ty.Kind == types.KindBoolean {
			return fmt.Sprintf("%t", x.Val.Bool)
		}
		return x.Val.Str
	case *ast.FnApplicationExpr:
		if x.Fn.ID == ast.FnCountStar {
			return "COUNT(*)"
		}
		args := ""
		for i, a := range x.Args {
			if i > 0 {
				args += ", "
			}
			args += exprString(a)
		}
		return x.Fn.Name + "(" + args + ")"
	case *ast.BinaryExpr:
		return "(" + exprString(x.Left) + binOpString(x.Op) + exprString(x.Right) + ")"
	case *ast.UnaryExpr:
		if x.Negated {
			return "-" + exprString(x.Operand)
		}
		return exprString(x.Operand)
	default:
		return fmt.Sprintf("%T", e)
	}
}

func binOpString(op ast.BinOp) string {
	switch op {
	case ast.OpEq:
		return "="
	case ast.OpNe:
		return "<>"
	case ast.OpLt:
		return "<"
	case ast.OpLe:
		return "<="
	case ast.OpGt:
		return ">"
	case ast.OpGe:
		return ">="
	case ast.OpAnd:
		return " AND "
	case ast.OpOr:
		return " OR "
	case ast.OpAdd:
		return "+"
	case ast.OpSub:
		return "-"
	case ast.OpMul:
		return "*"
	case ast.OpDiv:
		return "/"
	case ast.OpConcat:
		return "||"
	}
	return "?"
}
