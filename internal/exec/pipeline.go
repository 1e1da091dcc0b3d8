package exec

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/OneOfOne/xxhash"
	"github.com/pingcap/errors"
	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/types"
)

// consumeFunc is what a push-style producer calls per output tuple; a
// non-nil error aborts the producer immediately and propagates up (errStop
// signals a clean early exit, any other error a real failure).
type consumeFunc func(*physop.Tuple) error

// errStop is the Limit operator's stack-unwind sentinel: once Limit has
// consumed enough rows it returns errStop from inside its child's Produce
// call, and every producer below Limit simply propagates the error back up
// until produceLimit recognizes and swallows it (Execute swallows it too).
var errStop = errors.New("exec: pipeline stopped early")

// Execute drives root (expected to be a Callback/Print/NoOp sink) to
// completion, the push-style counterpart of a Volcano-style pull loop.
func Execute(root *Operator) error {
	err := produce(root, func(*physop.Tuple) error { return nil })
	if errors.Cause(err) == errStop {
		return nil
	}
	return err
}

func produce(op *Operator, out consumeFunc) error {
	switch op.Kind {
	case KindScan:
		return produceScan(op, out)
	case KindFilter:
		return produceFilter(op, out)
	case KindJoin:
		return produceJoin(op, out)
	case KindProjection:
		return produceProjection(op, out)
	case KindGrouping, KindAggregation:
		return produceGrouping(op, out)
	case KindSorting:
		return produceSorting(op, out)
	case KindLimit:
		return produceLimit(op, out)
	case KindCallback:
		return produce(op.Children[0], func(t *physop.Tuple) error {
			op.Sink.Callback(op.Schema, t)
			return nil
		})
	case KindPrint:
		return producePrint(op, out)
	case KindNoOp:
		return produce(op.Children[0], func(*physop.Tuple) error { return nil })
	default:
		return errors.Errorf("exec: unknown operator kind %v", op.Kind)
	}
}

func produceScan(op *Operator, out consumeFunc) error {
	n := op.Store.NumRows()
	for row := int64(0); row < n; row++ {
		t := op.Store.RowAt(row)
		if op.ColumnMap != nil {
			narrow := physop.NewTuple(op.Schema)
			for i, col := range op.ColumnMap {
				if !t.IsNull(col) {
					v, _ := t.Get(col)
					narrow.Set(i, v)
				}
			}
			t = narrow
		}
		if err := out(t); err != nil {
			return err
		}
	}
	return nil
}

func produceFilter(op *Operator, out consumeFunc) error {
	compiled, err := compileCNF(op.Schema, op.CNF)
	if err != nil {
		return err
	}
	return produce(op.Children[0], func(t *physop.Tuple) error {
		if compiled.Eval(t) {
			return out(t)
		}
		return nil
	})
}

func produceProjection(op *Operator, out consumeFunc) error {
	progs := make([]Program, len(op.Projections))
	for i, item := range op.Projections {
		prog, err := Compile(op.Children[0].Schema, item.Expr)
		if err != nil {
			return err
		}
		progs[i] = prog
	}
	return produce(op.Children[0], func(t *physop.Tuple) error {
		res := physop.NewTuple(op.Schema)
		for i, prog := range progs {
			v := Eval(prog, t)
			if isNull(v) {
				res.SetNull(i)
			} else {
				res.Set(i, v)
			}
		}
		return out(res)
	})
}

func produceLimit(op *Operator, out consumeFunc) error {
	var seen int64
	err := produce(op.Children[0], func(t *physop.Tuple) error {
		seen++
		if seen <= op.Offset {
			return nil
		}
		if op.Limit >= 0 && seen > op.Offset+op.Limit {
			return errStop
		}
		return out(t)
	})
	if errors.Cause(err) == errStop {
		return nil
	}
	return err
}

// PrintWriter is where KindPrint operators write formatted tuples; tests
// may redirect it to a buffer.
var PrintWriter io.Writer = os.Stdout

func producePrint(op *Operator, out consumeFunc) error {
	return produce(op.Children[0], func(t *physop.Tuple) error {
		fmt.Fprintln(PrintWriter, formatTuple(op.Children[0].Schema, t))
		return out(t)
	})
}

func formatTuple(schema *types.Schema, t *physop.Tuple) string {
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
		out += valueString(v)
	}
	return out + ")"
}

func valueString(v physop.Value) string {
	switch v.Kind {
	case physop.KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case physop.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case physop.KindFloat32:
		return fmt.Sprintf("%g", v.F32)
	case physop.KindFloat64:
		return fmt.Sprintf("%g", v.F64)
	case physop.KindPointer:
		return v.AsString()
	default:
		return "NULL"
	}
}

// materialize fully drains op into an in-memory slice of (cloned) tuples:
// the blocking primitive Join/Grouping/Sorting need since they cannot
// produce a single output row until they've seen every input row.
func materialize(op *Operator) ([]*physop.Tuple, error) {
	var out []*physop.Tuple
	err := produce(op, func(t *physop.Tuple) error {
		out = append(out, t.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func combineTuples(schema *types.Schema, parts []*physop.Tuple) *physop.Tuple {
	t := physop.NewTuple(schema)
	idx := 0
	for _, p := range parts {
		for i := 0; i < len(p.Values); i++ {
			if p.IsNull(i) {
				t.SetNull(idx)
			} else {
				v, _ := p.Get(i)
				t.Set(idx, v)
			}
			idx++
		}
	}
	return t
}

func produceJoin(op *Operator, out consumeFunc) error {
	if op.JoinAlgo == SimpleHashJoin && len(op.Children) == 2 {
		if ok, err := produceSimpleHashJoin(op, out); ok {
			return err
		}
	}
	return produceNestedLoops(op, out)
}

// produceNestedLoops is the N-ary, odometer-style cartesian product:
// materialize every child, then walk every combination in
// lexicographic order, testing op.CNF once per combination.
func produceNestedLoops(op *Operator, out consumeFunc) error {
	sets := make([][]*physop.Tuple, len(op.Children))
	for i, c := range op.Children {
		ms, err := materialize(c)
		if err != nil {
			return err
		}
		sets[i] = ms
	}
	compiled, err := compileCNF(op.Schema, op.CNF)
	if err != nil {
		return err
	}
	acc := make([]*physop.Tuple, len(sets))
	var rec func(i int) error
	rec = func(i int) error {
		if i == len(sets) {
			combined := combineTuples(op.Schema, acc)
			if compiled.Eval(combined) {
				return out(combined)
			}
			return nil
		}
		for _, t := range sets[i] {
			acc[i] = t
			if err := rec(i + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return rec(0)
}

// produceSimpleHashJoin builds a hash table over the left child keyed by
// the xxhash 64-bit digest of the single equi-join column the CNF names, then
// streams the right child probing it. Returns ok=false if op.CNF isn't a
// single non-negated col==col clause, signalling the caller to fall back to
// nested loops.
func produceSimpleHashJoin(op *Operator, out consumeFunc) (ok bool, err error) {
	left, right := op.Children[0], op.Children[1]
	leftIdx, rightIdx, found := equiJoinColumns(left.Schema, right.Schema, op.CNF)
	if !found {
		return false, nil
	}
	leftRows, err := materialize(left)
	if err != nil {
		return true, err
	}
	buckets := map[uint64][]*physop.Tuple{}
	for _, t := range leftRows {
		if t.IsNull(leftIdx) {
			continue
		}
		v, _ := t.Get(leftIdx)
		h := hashValue(v)
		buckets[h] = append(buckets[h], t)
	}
	compiled, err := compileCNF(op.Schema, op.CNF)
	if err != nil {
		return true, err
	}
	probeErr := produce(right, func(rt *physop.Tuple) error {
		if rt.IsNull(rightIdx) {
			return nil
		}
		rv, _ := rt.Get(rightIdx)
		h := hashValue(rv)
		for _, lt := range buckets[h] {
			combined := combineTuples(op.Schema, []*physop.Tuple{lt, rt})
			if compiled.Eval(combined) {
				if err := out(combined); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return true, probeErr
}

func hashValue(v physop.Value) uint64 {
	h := xxhash.New64()
	switch v.Kind {
	case physop.KindBool:
		if v.Bool {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case physop.KindInt:
		h.Write([]byte(fmt.Sprintf("i%d", v.Int)))
	case physop.KindFloat32:
		h.Write([]byte(fmt.Sprintf("f%g", v.F32)))
	case physop.KindFloat64:
		h.Write([]byte(fmt.Sprintf("f%g", v.F64)))
	case physop.KindPointer:
		h.Write(v.Bytes)
	}
	return h.Sum64()
}

// equiJoinColumns recognizes the "single non-negated col == col" shape
// the plan constructor routes to SimpleHashJoin: a one-clause,
// one-literal CNF whose Expr is a BinaryExpr(OpEq) over two Designators,
// one resolving in leftSchema and the other in rightSchema.
func equiJoinColumns(leftSchema, rightSchema *types.Schema, c cnf.CNF) (leftIdx, rightIdx int, ok bool) {
	if len(c.Clauses) != 1 || len(c.Clauses[0].Literals) != 1 {
		return 0, 0, false
	}
	lit := c.Clauses[0].Literals[0]
	if lit.Negated {
		return 0, 0, false
	}
	bin, isBin := lit.Expr.(*ast.BinaryExpr)
	if !isBin || bin.Op != ast.OpEq {
		return 0, 0, false
	}
	ld, lok := bin.Left.(*ast.Designator)
	rd, rok := bin.Right.(*ast.Designator)
	if !lok || !rok {
		return 0, 0, false
	}
	if li, err := resolveDesignator(leftSchema, ld); err == nil {
		if ri, err := resolveDesignator(rightSchema, rd); err == nil {
			return li, ri, true
		}
	}
	if li, err := resolveDesignator(leftSchema, rd); err == nil {
		if ri, err := resolveDesignator(rightSchema, ld); err == nil {
			return li, ri, true
		}
	}
	return 0, 0, false
}

// compiledLiteral is one CNF literal lowered to a Program, keeping its
// Negated flag alongside.
type compiledLiteral struct {
	Negated bool
	Prog    Program
}

type compiledClause []compiledLiteral

// compiledCNF is a CNF predicate lowered once per operator construction and
// reevaluated per tuple by Eval, rather than recompiling on every row.
type compiledCNF struct {
	Clauses []compiledClause
}

func compileCNF(schema *types.Schema, c cnf.CNF) (*compiledCNF, error) {
	out := &compiledCNF{}
	for _, clause := range c.Clauses {
		var cc compiledClause
		for _, lit := range clause.Literals {
			prog, err := Compile(schema, lit.Expr)
			if err != nil {
				return nil, err
			}
			cc = append(cc, compiledLiteral{Negated: lit.Negated, Prog: prog})
		}
		out.Clauses = append(out.Clauses, cc)
	}
	return out, nil
}

// Eval applies SQL WHERE-clause semantics: a row passes only if every
// clause has at least one definitely-true literal; NULL/false literals
// never make a clause pass: under three-valued logic UNKNOWN rows are
// excluded just like FALSE ones.
func (c *compiledCNF) Eval(t *physop.Tuple) bool {
	for _, clause := range c.Clauses {
		anyTrue := false
		for _, lit := range clause {
			v := Eval(lit.Prog, t)
			if lit.Negated {
				v = kleeneNot(v)
			}
			if !isNull(v) && v.Bool {
				anyTrue = true
				break
			}
		}
		if !anyTrue {
			return false
		}
	}
	return true
}

// --- Grouping / Aggregation --------------------------------------------

type aggAccumulator struct {
	fn       ast.FnID
	count    int64
	sum      float64
	sumIsSet bool
	min, max physop.Value
	haveMM   bool
}

func newAggAccumulator(fn ast.FnID) *aggAccumulator { return &aggAccumulator{fn: fn} }

// update folds one input value (NullValue for COUNT(*), which has no argument)
// into the running accumulator, skipping NULLs per standard SQL aggregate
// semantics (COUNT(*) is the only aggregate that counts NULL rows).
func (a *aggAccumulator) update(v physop.Value, isNullArg bool) {
	switch a.fn {
	case ast.FnCountStar:
		a.count++
		return
	}
	if isNullArg {
		return
	}
	a.count++
	switch a.fn {
	case ast.FnSum, ast.FnAvg:
		f, _ := toFloat(v)
		a.sum += f
		a.sumIsSet = true
	case ast.FnMin:
		if !a.haveMM || compareValuesRaw(v, a.min) < 0 {
			a.min = v
			a.haveMM = true
		}
	case ast.FnMax:
		if !a.haveMM || compareValuesRaw(v, a.max) > 0 {
			a.max = v
			a.haveMM = true
		}
	}
}

func (a *aggAccumulator) result() physop.Value {
	switch a.fn {
	case ast.FnCount, ast.FnCountStar:
		return physop.IntValue(a.count)
	case ast.FnSum:
		if !a.sumIsSet {
			return physop.NullValue
		}
		return physop.F64Value(a.sum)
	case ast.FnAvg:
		if a.count == 0 {
			return physop.NullValue
		}
		return physop.F64Value(a.sum / float64(a.count))
	case ast.FnMin, ast.FnMax:
		if !a.haveMM {
			return physop.NullValue
		}
		if a.fn == ast.FnMin {
			return a.min
		}
		return a.max
	default:
		return physop.NullValue
	}
}

// compareValuesRaw is the non-NULL-aware three-way compare compareOp uses
// internally, reused here by MIN/MAX accumulation and by Sorting below.
func compareValuesRaw(a, b physop.Value) int {
	switch {
	case a.Kind == physop.KindBool && b.Kind == physop.KindBool:
		switch {
		case a.Bool == b.Bool:
			return 0
		case a.Bool:
			return 1
		default:
			return -1
		}
	case a.Kind == physop.KindPointer && b.Kind == physop.KindPointer:
		as, bs := a.AsString(), b.AsString()
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	default:
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
}

func groupKeyString(vals []physop.Value) string {
	s := ""
	for _, v := range vals {
		if isNull(v) {
			s += "\x00N\x1f"
			continue
		}
		s += fmt.Sprintf("%d:%s\x1f", v.Kind, valueString(v))
	}
	return s
}

type groupEntry struct {
	keys []physop.Value
	accs []*aggAccumulator
}

// aggCompiled pairs an aggregate function id with its pre-compiled argument
// program (nil for COUNT(*), which takes no argument).
type aggCompiled struct {
	fn   ast.FnID
	prog Program
}

func produceGrouping(op *Operator, out consumeFunc) error {
	childSchema := op.Children[0].Schema
	keyProgs := make([]Program, len(op.GroupKeys))
	for i, k := range op.GroupKeys {
		prog, err := Compile(childSchema, k)
		if err != nil {
			return err
		}
		keyProgs[i] = prog
	}
	aggs := make([]aggCompiled, len(op.Aggregates))
	for i, a := range op.Aggregates {
		if a.Fn.ID == ast.FnCountStar || len(a.Args) == 0 {
			aggs[i] = aggCompiled{fn: a.Fn.ID}
			continue
		}
		prog, err := Compile(childSchema, a.Args[0])
		if err != nil {
			return err
		}
		aggs[i] = aggCompiled{fn: a.Fn.ID, prog: prog}
	}

	if op.GroupingAlgo == GroupingOrdered {
		return produceGroupingOrdered(op, keyProgs, aggs, out)
	}

	groups := map[string]*groupEntry{}
	var order []string
	err := produce(op.Children[0], func(t *physop.Tuple) error {
		keys := make([]physop.Value, len(keyProgs))
		for i, p := range keyProgs {
			keys[i] = Eval(p, t)
		}
		k := groupKeyString(keys)
		e, found := groups[k]
		if !found {
			e = &groupEntry{keys: keys, accs: make([]*aggAccumulator, len(aggs))}
			for i, a := range aggs {
				e.accs[i] = newAggAccumulator(a.fn)
			}
			groups[k] = e
			order = append(order, k)
		}
		for i, a := range aggs {
			if a.prog == nil {
				e.accs[i].update(physop.NullValue, false)
				continue
			}
			v := Eval(a.prog, t)
			e.accs[i].update(v, isNull(v))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(order) == 0 && len(op.GroupKeys) == 0 {
		// Aggregation with no input rows still emits one row of empty
		// aggregates (COUNT=0, SUM/AVG/MIN/MAX=NULL), per standard SQL.
		accs := make([]*aggAccumulator, len(aggs))
		for i, a := range aggs {
			accs[i] = newAggAccumulator(a.fn)
		}
		return out(buildGroupTuple(op.Schema, nil, accs))
	}
	for _, k := range order {
		e := groups[k]
		if err := out(buildGroupTuple(op.Schema, e.keys, e.accs)); err != nil {
			return err
		}
	}
	return nil
}

// produceGroupingOrdered assumes its child yields rows already sorted on
// the group keys and flushes a group as soon as the key changes, never
// buffering more than the current group: the streaming counterpart of the
// hashing algorithm above.
func produceGroupingOrdered(op *Operator, keyProgs []Program, aggs []aggCompiled, out consumeFunc) error {
	var cur *groupEntry
	var curKey string
	flush := func() error {
		if cur == nil {
			return nil
		}
		return out(buildGroupTuple(op.Schema, cur.keys, cur.accs))
	}
	err := produce(op.Children[0], func(t *physop.Tuple) error {
		keys := make([]physop.Value, len(keyProgs))
		for i, p := range keyProgs {
			keys[i] = Eval(p, t)
		}
		k := groupKeyString(keys)
		if cur == nil || k != curKey {
			if err := flush(); err != nil {
				return err
			}
			cur = &groupEntry{keys: keys, accs: make([]*aggAccumulator, len(aggs))}
			for i, a := range aggs {
				cur.accs[i] = newAggAccumulator(a.fn)
			}
			curKey = k
		}
		for i, a := range aggs {
			if a.prog == nil {
				cur.accs[i].update(physop.NullValue, false)
				continue
			}
			v := Eval(a.prog, t)
			cur.accs[i].update(v, isNull(v))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func buildGroupTuple(schema *types.Schema, keys []physop.Value, accs []*aggAccumulator) *physop.Tuple {
	t := physop.NewTuple(schema)
	idx := 0
	for _, v := range keys {
		if isNull(v) {
			t.SetNull(idx)
		} else {
			t.Set(idx, v)
		}
		idx++
	}
	for _, a := range accs {
		v := a.result()
		if isNull(v) {
			t.SetNull(idx)
		} else {
			t.Set(idx, v)
		}
		idx++
	}
	return t
}

// --- Sorting -------------------------------------------------------------

func produceSorting(op *Operator, out consumeFunc) error {
	rows, err := materialize(op.Children[0])
	if err != nil {
		return err
	}
	progs := make([]Program, len(op.OrderBy))
	for i, item := range op.OrderBy {
		prog, err := Compile(op.Children[0].Schema, item.Expr)
		if err != nil {
			return err
		}
		progs[i] = prog
	}
	keys := make([][]physop.Value, len(rows))
	for i, r := range rows {
		ks := make([]physop.Value, len(progs))
		for j, p := range progs {
			ks[j] = Eval(p, r)
		}
		keys[i] = ks
	}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := keys[idx[i]], keys[idx[j]]
		for k, item := range op.OrderBy {
			av, bv := a[k], b[k]
			if isNull(av) && isNull(bv) {
				continue
			}
			if isNull(av) {
				return true
			}
			if isNull(bv) {
				return false
			}
			c := compareValuesRaw(av, bv)
			if c == 0 {
				continue
			}
			if item.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	for _, i := range idx {
		if err := out(rows[i]); err != nil {
			return err
		}
	}
	return nil
}
