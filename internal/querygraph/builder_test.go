package querygraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/catalog"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/types"
)

func mkTable(pool *types.StringPool, name string, cols ...string) *catalog.Table {
	schema := types.NewSchema()
	for _, c := range cols {
		_ = schema.AddEntry(types.Entry{ID: types.NewIdentifier(pool, "", c), Type: types.Int(32)})
	}
	return &catalog.Table{Name: name, Schema: schema, Store: physop.NewMemRowStore(schema)}
}

func eqExpr(pool *types.StringPool, table *catalog.Table, attr string, pos int, other *catalog.Table, otherAttr string, otherPos int) *ast.BinaryExpr {
	lhs := ast.NewDesignator("", "", &ast.Attribute{Table: table, Position: pos, Type: types.Int(32)})
	rhs := ast.NewDesignator("", "", &ast.Attribute{Table: other, Position: otherPos, Type: types.Int(32)})
	return ast.NewBinaryExpr(ast.OpEq, lhs, rhs, types.Boolean())
}

// TestBuildChainGraphRoutesJoins builds an A-B-C-D chain (A.id=B.aid,
// B.id=C.bid, C.id=D.cid) and checks that every clause becomes a binary
// join and the resulting graph is connected.
func TestBuildChainGraphRoutesJoins(t *testing.T) {
	pool := types.NewStringPool()
	a := mkTable(pool, "a", "id", "val")
	b := mkTable(pool, "b", "id", "aid")
	c := mkTable(pool, "c", "id", "bid")
	d := mkTable(pool, "d", "id", "cid")

	where := cnf.New(
		cnf.NewClause(cnf.Literal{Expr: eqExpr(pool, a, "id", 0, b, "aid", 1)}),
		cnf.NewClause(cnf.Literal{Expr: eqExpr(pool, b, "id", 0, c, "bid", 1)}),
		cnf.NewClause(cnf.Literal{Expr: eqExpr(pool, c, "id", 0, d, "cid", 1)}),
	)

	in := &SelectInput{
		From: []FromItem{
			{Alias: "a", Table: a},
			{Alias: "b", Table: b},
			{Alias: "c", Table: c},
			{Alias: "d", Table: d},
		},
		Where: where,
	}
	g := Build(pool, in)

	require.Len(t, g.Sources, 4)
	require.Len(t, g.Joins, 3)
	for _, j := range g.Joins {
		require.True(t, j.IsBinary())
	}

	adj, err := BuildAdjacencyMatrix(g)
	require.NoError(t, err)
	require.True(t, adj.IsConnected(g.IDSet()))
}

// TestBuildRoutesSingleTableFilterSeparatelyFromJoins checks that a clause
// naming exactly one table lands on that source's Filter, not on a Join.
func TestBuildRoutesSingleTableFilterSeparatelyFromJoins(t *testing.T) {
	pool := types.NewStringPool()
	a := mkTable(pool, "a", "id", "val")
	b := mkTable(pool, "b", "id", "aid")

	joinExpr := eqExpr(pool, a, "id", 0, b, "aid", 1)
	aValRef := ast.NewDesignator("", "", &ast.Attribute{Table: a, Position: 1, Type: types.Int(32)})
	filterExpr := ast.NewUnaryExpr(false, aValRef, types.Boolean())
	where := cnf.New(
		cnf.NewClause(cnf.Literal{Expr: joinExpr}),
		cnf.NewClause(cnf.Literal{Expr: filterExpr}),
	)

	in := &SelectInput{
		From:  []FromItem{{Alias: "a", Table: a}, {Alias: "b", Table: b}},
		Where: where,
	}
	g := Build(pool, in)
	require.Len(t, g.Joins, 1)
	require.True(t, g.Joins[0].IsBinary())
	require.Len(t, g.Sources[0].Filter.Clauses, 1)
	require.Empty(t, g.Sources[1].Filter.Clauses)
}

// TestStarExpandsToFromClauseOutputSchema checks that SELECT * becomes
// one projection per entry of the FROM clause's combined schema.
func TestStarExpandsToFromClauseOutputSchema(t *testing.T) {
	pool := types.NewStringPool()
	a := mkTable(pool, "a", "id", "val")
	b := mkTable(pool, "b", "id", "aid")

	in := &SelectInput{
		From: []FromItem{{Alias: "a", Table: a}, {Alias: "b", Table: b}},
		Star: true,
	}
	g := Build(pool, in)
	require.Len(t, g.Projections, 4)
	first, ok := g.Projections[0].Expr.(*ast.Designator)
	require.True(t, ok)
	require.Equal(t, "a", first.Prefix)
	require.Equal(t, "id", first.Name)
	require.Equal(t, "aid", g.Projections[3].Alias)
}

// TestDecorrelateEquiJoinRewritesIntoOuterJoin verifies that an equi
// correlation between an inner subquery attribute and an outer attribute is
// pulled up into a join on the enclosing graph, leaving the subquery
// uncorrelated.
func TestDecorrelateEquiJoinRewritesIntoOuterJoin(t *testing.T) {
	pool := types.NewStringPool()
	outerTable := mkTable(pool, "a", "id", "val")
	innerTable := mkTable(pool, "b", "id", "aid")

	outerDesignator := ast.NewDesignator("", "", &ast.Attribute{Table: outerTable, Position: 0, Type: types.Int(32)})
	correlated := ast.NewDesignator("", "", nil)
	correlated.TargetKind = ast.TargetOuterExpr
	correlated.TargetExpr = outerDesignator

	innerAttr := ast.NewDesignator("", "", &ast.Attribute{Table: innerTable, Position: 1, Type: types.Int(32)})
	eq := ast.NewBinaryExpr(ast.OpEq, correlated, innerAttr, types.Boolean())

	subIn := &SelectInput{
		From:  []FromItem{{Alias: "b", Table: innerTable}},
		Where: cnf.New(cnf.NewClause(cnf.Literal{Expr: eq})),
	}
	outerIn := &SelectInput{
		From: []FromItem{
			{Alias: "a", Table: outerTable},
			{Alias: "sub", Sub: subIn},
		},
	}
	g := Build(pool, outerIn)

	require.Len(t, g.Joins, 1, "equi correlation should be pulled into a join on the outer graph")
	subSrc := g.Sources[1]
	require.False(t, subSrc.Sub.Correlated)
	require.Empty(t, subSrc.Sub.Sources[0].Filter.Clauses)
}
