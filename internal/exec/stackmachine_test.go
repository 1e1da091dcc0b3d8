package exec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/types"
)

func strConst(s string) *ast.Constant {
	return &ast.Constant{Val: ast.Value{Str: s}, Ty: types.CharacterSequence(len(s), true)}
}

func intConst(i int64) *ast.Constant {
	return &ast.Constant{Val: ast.Value{Int: i}, Ty: types.Int(64)}
}

func boolConst(b bool) *ast.Constant {
	return &ast.Constant{Val: ast.Value{Bool: b}, Ty: types.Boolean()}
}

func nullConst() *ast.Constant {
	return &ast.Constant{Val: ast.Value{IsNull: true}, Ty: types.Boolean()}
}

func decConst(s string) *ast.Constant {
	return &ast.Constant{Val: ast.Value{Str: s}, Ty: types.Decimal(10, 2)}
}

func evalExpr(t *testing.T, e ast.Expr) physop.Value {
	t.Helper()
	schema := types.NewSchema()
	prog, err := Compile(schema, e)
	require.NoError(t, err)
	return Eval(prog, physop.NewTuple(schema))
}

func fnCall(id ast.FnID, name string, ty *types.Type, args ...ast.Expr) *ast.FnApplicationExpr {
	return ast.NewFnApplicationExpr(&ast.Function{ID: id, Name: name}, ty, args...)
}

func TestStrcmpReturnsNegativeForSmallerString(t *testing.T) {
	v := evalExpr(t, fnCall(ast.FnStrcmp, "STRCMP", types.Int(32), strConst("abc"), strConst("abd")))
	require.Equal(t, physop.KindInt, v.Kind)
	require.Less(t, v.Int, int64(0))
}

func TestLikeMatchesUnderscores(t *testing.T) {
	v := evalExpr(t, fnCall(ast.FnLike, "LIKE", types.Boolean(), strConst("axbyzc"), strConst("a_b__c")))
	require.Equal(t, physop.KindBool, v.Kind)
	require.True(t, v.Bool)
}

func TestLikeHonorsEscapedWildcards(t *testing.T) {
	// the pattern's escaped _ and % must match literally
	v := evalExpr(t, fnCall(ast.FnLike, "LIKE", types.Boolean(), strConst("xyz_u%vw"), strConst(`%\_u\%%`)))
	require.True(t, v.Bool)

	// unescaped, the same characters are wildcards and the escaped form
	// must NOT match a string without the literal characters
	v = evalExpr(t, fnCall(ast.FnLike, "LIKE", types.Boolean(), strConst("xyzAuBvw"), strConst(`%\_u\%%`)))
	require.False(t, v.Bool)
}

func TestLikeRejectsNonMatch(t *testing.T) {
	v := evalExpr(t, fnCall(ast.FnLike, "LIKE", types.Boolean(), strConst("abc"), strConst("a_b__c")))
	require.False(t, v.Bool)
}

func TestKleeneAndOrTruthTables(t *testing.T) {
	// NULL AND FALSE = FALSE
	v := evalExpr(t, ast.NewBinaryExpr(ast.OpAnd, nullConst(), boolConst(false), types.Boolean()))
	require.Equal(t, physop.KindBool, v.Kind)
	require.False(t, v.Bool)

	// NULL AND TRUE = NULL
	v = evalExpr(t, ast.NewBinaryExpr(ast.OpAnd, nullConst(), boolConst(true), types.Boolean()))
	require.Equal(t, physop.KindNull, v.Kind)

	// NULL OR TRUE = TRUE
	v = evalExpr(t, ast.NewBinaryExpr(ast.OpOr, nullConst(), boolConst(true), types.Boolean()))
	require.True(t, v.Bool)

	// NULL OR FALSE = NULL
	v = evalExpr(t, ast.NewBinaryExpr(ast.OpOr, nullConst(), boolConst(false), types.Boolean()))
	require.Equal(t, physop.KindNull, v.Kind)
}

func TestArithmeticOnNullPropagatesNull(t *testing.T) {
	v := evalExpr(t, ast.NewBinaryExpr(ast.OpAdd, nullConst(), intConst(1), types.Int(64)))
	require.Equal(t, physop.KindNull, v.Kind)

	v = evalExpr(t, ast.NewBinaryExpr(ast.OpEq, nullConst(), intConst(1), types.Boolean()))
	require.Equal(t, physop.KindNull, v.Kind)
}

func TestIntegerArithmeticAndComparison(t *testing.T) {
	sum := ast.NewBinaryExpr(ast.OpAdd, intConst(40), intConst(2), types.Int(64))
	v := evalExpr(t, sum)
	require.Equal(t, int64(42), v.Int)

	cmp := ast.NewBinaryExpr(ast.OpLt, intConst(1), intConst(2), types.Boolean())
	require.True(t, evalExpr(t, cmp).Bool)
}

func TestFloatDivisionByZeroFollowsIEEE(t *testing.T) {
	div := ast.NewBinaryExpr(ast.OpDiv,
		&ast.Constant{Val: ast.Value{Float: 1}, Ty: types.Float(64)},
		&ast.Constant{Val: ast.Value{Float: 0}, Ty: types.Float(64)},
		types.Float(64))
	v := evalExpr(t, div)
	require.True(t, math.IsInf(v.F64, 1))
}

func TestStringConcat(t *testing.T) {
	v := evalExpr(t, ast.NewBinaryExpr(ast.OpConcat, strConst("foo"), strConst("bar"), types.CharacterSequence(6, true)))
	require.Equal(t, "foobar", v.AsString())
}

func TestDecimalArithmeticRescalesBeforeComparing(t *testing.T) {
	// 1.50 + 2.25 == 3.75 must hold exactly, not via float rounding
	sum := ast.NewBinaryExpr(ast.OpAdd, decConst("1.50"), decConst("2.25"), types.Decimal(10, 2))
	eqExpr := ast.NewBinaryExpr(ast.OpEq, sum, decConst("3.75"), types.Boolean())
	v := evalExpr(t, eqExpr)
	require.Equal(t, physop.KindBool, v.Kind)
	require.True(t, v.Bool)

	// 0.1 + 0.2 == 0.3 exactly, the classic float failure
	sum = ast.NewBinaryExpr(ast.OpAdd, decConst("0.10"), decConst("0.20"), types.Decimal(10, 2))
	eqExpr = ast.NewBinaryExpr(ast.OpEq, sum, decConst("0.30"), types.Boolean())
	require.True(t, evalExpr(t, eqExpr).Bool)
}

func TestLoadFromTupleRespectsNullBitmap(t *testing.T) {
	schema := types.NewSchema()
	pool := types.NewStringPool()
	require.NoError(t, schema.AddEntry(types.Entry{ID: types.NewIdentifier(pool, "t", "x"), Type: types.Int(64)}))

	d := ast.NewDesignator("t", "x", &ast.Attribute{Type: types.Int(64), Name: "x"})
	prog, err := Compile(schema, d)
	require.NoError(t, err)

	tp := physop.NewTuple(schema)
	require.Equal(t, physop.KindNull, Eval(prog, tp).Kind)

	tp.Set(0, physop.IntValue(9))
	require.Equal(t, int64(9), Eval(prog, tp).Int)
}

func TestCompileRejectsAggregateOutsideGrouping(t *testing.T) {
	agg := fnCall(ast.FnMin, "MIN", types.Int(64), intConst(1))
	_, err := Compile(types.NewSchema(), agg)
	require.Error(t, err)
}
