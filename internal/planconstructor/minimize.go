package planconstructor

import (
	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/exec"
	"github.com/xmutable/engine/internal/types"
)

// colRef is one (prefix?, name) pair an ancestor expression designates.
type colRef struct {
	prefix, name string
}

// MinimizeSchema walks the operator tree top-down and records, for each
// operator, exactly the identifiers referenced by its ancestors'
// expressions; pass-through operators drop unreferenced entries from their
// schema, Projection/Grouping/Aggregation never shrink below what they
// promise, and Sorting takes its (possibly narrowed) child's schema.
// Applying it twice yields the same schemas.
func MinimizeSchema(root *exec.Operator) {
	minimize(root, nil)
}

func minimize(op *exec.Operator, required []colRef) {
	switch op.Kind {
	case exec.KindScan:
		shrinkScan(op, required)

	case exec.KindFilter:
		below := append(append([]colRef(nil), required...), cnfRefs(op.CNF)...)
		minimize(op.Children[0], below)
		op.Schema = op.Children[0].Schema

	case exec.KindJoin:
		below := append(append([]colRef(nil), required...), cnfRefs(op.CNF)...)
		s := types.NewSchema()
		for _, ch := range op.Children {
			minimize(ch, below)
			s = s.Concat(ch.Schema)
		}
		op.Schema = s

	case exec.KindProjection:
		// the projection's own expressions are the only requirement below
		// it; its promised schema is fixed.
		var below []colRef
		for _, p := range op.Projections {
			below = append(below, exprRefs(p.Expr)...)
		}
		minimize(op.Children[0], below)

	case exec.KindGrouping, exec.KindAggregation:
		var below []colRef
		for _, k := range op.GroupKeys {
			below = append(below, exprRefs(k)...)
		}
		for _, a := range op.Aggregates {
			for _, arg := range a.Args {
				below = append(below, exprRefs(arg)...)
			}
		}
		minimize(op.Children[0], below)

	case exec.KindSorting:
		below := append([]colRef(nil), required...)
		for _, o := range op.OrderBy {
			below = append(below, exprRefs(o.Expr)...)
		}
		minimize(op.Children[0], below)
		// a sort forwards its child's tuples untouched, so its schema
		// tracks the (possibly narrowed) child
		op.Schema = op.Children[0].Schema

	case exec.KindLimit, exec.KindCallback, exec.KindPrint, exec.KindNoOp:
		minimize(op.Children[0], required)
		op.Schema = op.Children[0].Schema
	}
}

// shrinkScan drops schema entries no ancestor references, recording the
// surviving store-column indices in ColumnMap. An empty requirement set
// (e.g. a bare SELECT * with no predicates) keeps every column.
func shrinkScan(op *exec.Operator, required []colRef) {
	if len(required) == 0 {
		return
	}
	var keep []int
	for i, e := range op.Schema.Entries {
		if entryReferenced(e, required) {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(op.Schema.Entries) {
		return
	}
	mapped := make([]int, len(keep))
	for i, idx := range keep {
		if op.ColumnMap != nil {
			mapped[i] = op.ColumnMap[idx]
		} else {
			mapped[i] = idx
		}
	}
	op.Schema = op.Schema.Project(keep)
	op.ColumnMap = mapped
}

func entryReferenced(e types.Entry, required []colRef) bool {
	name := ""
	if e.ID.Name != nil {
		name = *e.ID.Name
	}
	prefix := ""
	if e.ID.Prefix != nil {
		prefix = *e.ID.Prefix
	}
	for _, r := range required {
		if r.name == "" {
			// a designator whose column name could not be recovered keeps
			// everything it might reach
			return true
		}
		if r.name != name {
			continue
		}
		if r.prefix == "" || r.prefix == prefix {
			return true
		}
	}
	return false
}

func cnfRefs(c cnf.CNF) []colRef {
	var out []colRef
	for _, clause := range c.Clauses {
		for _, lit := range clause.Literals {
			out = append(out, exprRefs(lit.Expr)...)
		}
	}
	return out
}

func exprRefs(e ast.Expr) []colRef {
	switch x := e.(type) {
	case *ast.Designator:
		name := x.Name
		if name == "" && x.TargetAttr != nil {
			name = x.TargetAttr.Name
		}
		return []colRef{{prefix: x.Prefix, name: name}}
	case *ast.BinaryExpr:
		return append(exprRefs(x.Left), exprRefs(x.Right)...)
	case *ast.UnaryExpr:
		return exprRefs(x.Operand)
	case *ast.FnApplicationExpr:
		var out []colRef
		for _, a := range x.Args {
			out = append(out, exprRefs(a)...)
		}
		return out
	default:
		return nil
	}
}
