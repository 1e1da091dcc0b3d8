package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/catalog"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/engineconf"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/querygraph"
	"github.com/xmutable/engine/internal/types"
)

func intVal(i int64) *physop.Value {
	v := physop.IntValue(i)
	return &v
}

func intEntry(pool *types.StringPool, name string) types.Entry {
	return types.Entry{ID: types.NewIdentifier(pool, "", name), Type: types.Int(32)}
}

// col builds a resolved column designator the way a name resolver would.
func col(tbl *catalog.Table, alias, name string, pos int) *ast.Designator {
	return ast.NewDesignator(alias, name, &ast.Attribute{Table: tbl, Position: pos, Type: types.Int(32), Name: name})
}

func eq(l, r ast.Expr) cnf.Clause {
	return cnf.NewClause(cnf.Literal{Expr: ast.NewBinaryExpr(ast.OpEq, l, r, types.Boolean())})
}

// chainFixture builds the A/B/C/D scenario tables: A(id) 5 rows,
// B(id, aid) 10 rows, C(id, aid) 8 rows, D(aid, bid, cid) 12 rows.
func chainFixture(t *testing.T, e *Engine) (a, b, c, d *catalog.Table) {
	t.Helper()
	pool := e.Catalog.Pool
	var err error
	a, err = e.CreateTable("test", "a", []types.Entry{intEntry(pool, "id")}, bitset.Singleton(0))
	require.NoError(t, err)
	b, err = e.CreateTable("test", "b", []types.Entry{intEntry(pool, "id"), intEntry(pool, "aid")}, bitset.Singleton(0))
	require.NoError(t, err)
	c, err = e.CreateTable("test", "c", []types.Entry{intEntry(pool, "id"), intEntry(pool, "aid")}, bitset.Singleton(0))
	require.NoError(t, err)
	d, err = e.CreateTable("test", "d", []types.Entry{intEntry(pool, "aid"), intEntry(pool, "bid"), intEntry(pool, "cid")}, bitset.Singleton(0))
	require.NoError(t, err)

	for i := int64(0); i < 5; i++ {
		require.NoError(t, Insert(a, intVal(i)))
	}
	for i := int64(0); i < 10; i++ {
		require.NoError(t, Insert(b, intVal(i), intVal(i%5)))
	}
	for i := int64(0); i < 8; i++ {
		require.NoError(t, Insert(c, intVal(i), intVal(i%5)))
	}
	for i := int64(0); i < 12; i++ {
		require.NoError(t, Insert(d, intVal(i%5), intVal(i%10), intVal(i%8)))
	}
	return a, b, c, d
}

func chainInput(a, b, c, d *catalog.Table) *querygraph.SelectInput {
	return &querygraph.SelectInput{
		From: []querygraph.FromItem{
			{Alias: "a", Table: a},
			{Alias: "b", Table: b},
			{Alias: "c", Table: c},
			{Alias: "d", Table: d},
		},
		Where: cnf.New(
			eq(col(a, "a", "id", 0), col(c, "c", "aid", 1)),
			eq(col(a, "a", "id", 0), col(d, "d", "aid", 0)),
			eq(col(b, "b", "id", 0), col(d, "d", "bid", 1)),
			eq(col(c, "c", "id", 0), col(d, "d", "cid", 2)),
		),
		Star: true,
	}
}

// Every D row matches exactly one A, B, and C row iff (r%8)%5 == r%5, which
// holds for r in 0..7 and fails for 8..11: 8 result rows.
const chainExpectedRows = 8

func TestChainQueryAcrossAllEnumerators(t *testing.T) {
	for _, name := range []string{"DPsize", "DPsizeOpt", "DPsub", "DPsubOpt", "DPccp"} {
		t.Run(name, func(t *testing.T) {
			cfg := engineconf.Default()
			cfg.PlanEnumerator = name
			e, err := New(catalog.New(), cfg)
			require.NoError(t, err)
			a, b, c, d := chainFixture(t, e)

			var width int
			rows, err := e.ExecuteSelect(chainInput(a, b, c, d), CallbackSink(func(s *types.Schema, tp *physop.Tuple) {
				width = s.NumEntries()
			}))
			require.NoError(t, err)
			require.Equal(t, uint64(chainExpectedRows), rows)
			require.Equal(t, 8, width) // 1 + 2 + 2 + 3 columns via SELECT *
		})
	}
}

func TestChainQueryWithInjectionEstimator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cards.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"test":[{"relations":["a"],"size":2},{"relations":["a","d"],"size":9}]}`), 0o644))

	cfg := engineconf.Default()
	cfg.CardinalityEstimator = "Injection"
	cfg.Database = "test"
	cfg.InjectionCatalogPath = path
	e, err := New(catalog.New(), cfg)
	require.NoError(t, err)
	a, b, c, d := chainFixture(t, e)

	rows, err := e.ExecuteSelect(chainInput(a, b, c, d), CountSink())
	require.NoError(t, err)
	require.Equal(t, uint64(chainExpectedRows), rows) // plan may differ, result must not
}

func TestGroupByWithAverage(t *testing.T) {
	e, err := New(catalog.New(), nil)
	require.NoError(t, err)
	pool := e.Catalog.Pool
	a, err := e.CreateTable("test", "a", []types.Entry{intEntry(pool, "id"), intEntry(pool, "val")}, bitset.Singleton(0))
	require.NoError(t, err)
	require.NoError(t, Insert(a, intVal(1), intVal(10)))
	require.NoError(t, Insert(a, intVal(2), intVal(10)))
	require.NoError(t, Insert(a, intVal(3), intVal(20)))

	avg := ast.NewFnApplicationExpr(&ast.Function{ID: ast.FnAvg, Name: "AVG"}, types.Float(64), col(a, "a", "id", 0))
	in := &querygraph.SelectInput{
		From:        []querygraph.FromItem{{Alias: "a", Table: a}},
		GroupBy:     []ast.Expr{col(a, "a", "val", 1)},
		Aggregates:  []*ast.FnApplicationExpr{avg},
		Projections: []querygraph.ProjectionItem{{Expr: avg, Alias: "avg_id"}},
	}

	var got []float64
	rows, err := e.ExecuteSelect(in, CallbackSink(func(s *types.Schema, tp *physop.Tuple) {
		v, _ := tp.Get(0)
		got = append(got, v.F64)
	}))
	require.NoError(t, err)
	require.Equal(t, uint64(2), rows)
	require.Equal(t, []float64{1.5, 3}, got)
}

func TestOrderByDescWithLimitAndOffset(t *testing.T) {
	e, err := New(catalog.New(), nil)
	require.NoError(t, err)
	pool := e.Catalog.Pool
	a, err := e.CreateTable("test", "a", []types.Entry{intEntry(pool, "id")}, bitset.Singleton(0))
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, Insert(a, intVal(i)))
	}

	in := &querygraph.SelectInput{
		From:        []querygraph.FromItem{{Alias: "a", Table: a}},
		Projections: []querygraph.ProjectionItem{{Expr: col(a, "a", "id", 0), Alias: "id"}},
		OrderBy:     []querygraph.OrderItem{{Expr: col(a, "a", "id", 0), Ascending: false}},
		Limit:       &querygraph.LimitClause{Limit: 2, Offset: 1},
	}

	var got []int64
	rows, err := e.ExecuteSelect(in, CallbackSink(func(s *types.Schema, tp *physop.Tuple) {
		v, _ := tp.Get(0)
		got = append(got, v.Int)
	}))
	require.NoError(t, err)
	require.Equal(t, uint64(2), rows)
	require.Equal(t, []int64{3, 2}, got)
}

// TestDecorrelatedScalarSubquery runs the rewritten form of
// SELECT * FROM a WHERE val = (SELECT MIN(b.val) FROM b WHERE a.id = b.id):
// the subquery groups by b.id and the outer predicate joins on the new
// projected correlation column.
func TestDecorrelatedScalarSubquery(t *testing.T) {
	e, err := New(catalog.New(), nil)
	require.NoError(t, err)
	pool := e.Catalog.Pool
	a, err := e.CreateTable("test", "a", []types.Entry{intEntry(pool, "id"), intEntry(pool, "val")}, bitset.Singleton(0))
	require.NoError(t, err)
	b, err := e.CreateTable("test", "b", []types.Entry{intEntry(pool, "id"), intEntry(pool, "val")}, bitset.Singleton(0))
	require.NoError(t, err)

	require.NoError(t, Insert(a, intVal(1), intVal(100)))
	require.NoError(t, Insert(a, intVal(2), intVal(200)))
	require.NoError(t, Insert(a, intVal(3), intVal(150)))
	require.NoError(t, Insert(b, intVal(1), intVal(100)))
	require.NoError(t, Insert(b, intVal(1), intVal(120)))
	require.NoError(t, Insert(b, intVal(2), intVal(250)))
	require.NoError(t, Insert(b, intVal(3), intVal(150)))
	require.NoError(t, Insert(b, intVal(3), intVal(90)))

	corr := ast.NewTypedDesignator("a", "id", types.Int(32))
	corr.TargetKind = ast.TargetOuterExpr
	corr.TargetExpr = col(a, "a", "id", 0)

	min := ast.NewFnApplicationExpr(&ast.Function{ID: ast.FnMin, Name: "MIN"}, types.Int(32), col(b, "b", "val", 1))
	subIn := &querygraph.SelectInput{
		From:        []querygraph.FromItem{{Alias: "b", Table: b}},
		Where:       cnf.New(eq(corr, col(b, "b", "id", 0))),
		Aggregates:  []*ast.FnApplicationExpr{min},
		Projections: []querygraph.ProjectionItem{{Expr: min, Alias: "min_val"}},
	}
	in := &querygraph.SelectInput{
		From: []querygraph.FromItem{
			{Alias: "a", Table: a},
			{Alias: "sub", Sub: subIn},
		},
		Where: cnf.New(eq(col(a, "a", "val", 1), ast.NewTypedDesignator("sub", "min_val", types.Int(32)))),
		Star:  true,
	}

	var ids []int64
	rows, err := e.ExecuteSelect(in, CallbackSink(func(s *types.Schema, tp *physop.Tuple) {
		v, _ := tp.Get(0)
		ids = append(ids, v.Int)
	}))
	require.NoError(t, err)
	require.Equal(t, uint64(1), rows) // only a.id=1 has val == MIN(b.val)
	require.Equal(t, []int64{1}, ids)
}

func TestNonEquiCorrelationIsReportedUnsupported(t *testing.T) {
	e, err := New(catalog.New(), nil)
	require.NoError(t, err)
	pool := e.Catalog.Pool
	a, err := e.CreateTable("test", "a", []types.Entry{intEntry(pool, "id"), intEntry(pool, "val")}, bitset.Singleton(0))
	require.NoError(t, err)
	b, err := e.CreateTable("test", "b", []types.Entry{intEntry(pool, "id"), intEntry(pool, "val")}, bitset.Singleton(0))
	require.NoError(t, err)

	corr := ast.NewTypedDesignator("a", "id", types.Int(32))
	corr.TargetKind = ast.TargetOuterExpr
	corr.TargetExpr = col(a, "a", "id", 0)
	ne := ast.NewBinaryExpr(ast.OpNe, corr, col(b, "b", "id", 0), types.Boolean())

	min := ast.NewFnApplicationExpr(&ast.Function{ID: ast.FnMin, Name: "MIN"}, types.Int(32), col(b, "b", "val", 1))
	subIn := &querygraph.SelectInput{
		From:        []querygraph.FromItem{{Alias: "b", Table: b}},
		Where:       cnf.New(cnf.NewClause(cnf.Literal{Expr: ne})),
		Aggregates:  []*ast.FnApplicationExpr{min},
		Projections: []querygraph.ProjectionItem{{Expr: min, Alias: "min_val"}},
	}
	in := &querygraph.SelectInput{
		From: []querygraph.FromItem{
			{Alias: "a", Table: a},
			{Alias: "sub", Sub: subIn},
		},
		Star: true,
	}

	_, err = e.ExecuteSelect(in, CountSink())
	require.Error(t, err)
	require.Equal(t, ErrUnsupportedFeature, errors.Cause(err))
}

func TestPrintSinkWritesOneLinePerRow(t *testing.T) {
	e, err := New(catalog.New(), nil)
	require.NoError(t, err)
	pool := e.Catalog.Pool
	a, err := e.CreateTable("test", "a", []types.Entry{intEntry(pool, "id")}, bitset.Singleton(0))
	require.NoError(t, err)
	require.NoError(t, Insert(a, intVal(7)))
	require.NoError(t, Insert(a, nil)) // NULL row

	var buf bytes.Buffer
	in := &querygraph.SelectInput{
		From: []querygraph.FromItem{{Alias: "a", Table: a}},
		Star: true,
	}
	rows, err := e.ExecuteSelect(in, PrintSink(&buf))
	require.NoError(t, err)
	require.Equal(t, uint64(2), rows)
	require.Equal(t, "(7)\n(NULL)\n", buf.String())
}

func TestUnknownEnumeratorAndEstimatorAreRejected(t *testing.T) {
	cfg := engineconf.Default()
	cfg.PlanEnumerator = "GreedyOperator"
	_, err := New(catalog.New(), cfg)
	require.Error(t, err)

	cfg = engineconf.Default()
	cfg.CardinalityEstimator = "Histogram"
	_, err = New(catalog.New(), cfg)
	require.Error(t, err)
	require.Equal(t, ErrUnknownEstimator, errors.Cause(err))
}
