// Package ast is the typed-AST contract the core consumes: the expressions
// of a select statement already bound to a catalog, with every Expr carrying a resolved Type and
// every Designator carrying a resolved target. A real lexer/parser/resolver
// sits outside this core: tests populate these types directly, exactly
// the way the core's only caller (a resolver) would.
package ast

import (
	"github.com/xmutable/engine/internal/catalog"
	"github.com/xmutable/engine/internal/types"
)

// TargetKind tags what a Designator resolves to.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetOuterExpr
	TargetAttribute
)

// Attribute is a resolved column reference: which table, which position.
type Attribute struct {
	Table    *catalog.Table
	Position int // dense id within Table, also the SmallBitset bit index
	Type     *types.Type
	Name     string
}

// Expr is the common interface every AST expression node implements.
type Expr interface {
	Type() *types.Type
	// TablesReferenced returns every base-table name this expression reads
	// from, used by the Query Graph builder to route WHERE clauses.
	TablesReferenced() map[string]bool
}

// Designator is a bare or qualified column reference.
type Designator struct {
	Prefix, Name string
	TargetKind   TargetKind
	TargetExpr   Expr        // valid iff TargetKind == TargetOuterExpr
	TargetAttr   *Attribute  // valid iff TargetKind == TargetAttribute
	ty           *types.Type
}

func NewDesignator(prefix, name string, attr *Attribute) *Designator {
	d := &Designator{Prefix: prefix, Name: name, TargetKind: TargetAttribute, TargetAttr: attr}
	if attr != nil {
		d.ty = attr.Type
	}
	return d
}

// NewTypedDesignator builds a designator with an explicit static type but no
// resolved attribute, e.g. a reference to a subquery's projected column.
func NewTypedDesignator(prefix, name string, ty *types.Type) *Designator {
	return &Designator{Prefix: prefix, Name: name, ty: ty}
}

func (d *Designator) Type() *types.Type { return d.ty }

// TablesReferenced prefers the written prefix (the source alias) over the
// resolved attribute's table name, so that aliased and self-joined tables
// route to the right source.
func (d *Designator) TablesReferenced() map[string]bool {
	out := map[string]bool{}
	if d.Prefix != "" {
		out[d.Prefix] = true
		return out
	}
	if d.TargetAttr != nil && d.TargetAttr.Table != nil {
		out[d.TargetAttr.Table.Name] = true
	}
	return out
}

// Constant is a literal value.
type Constant struct {
	Val Value
	Ty  *types.Type
}

func (c *Constant) Type() *types.Type                { return c.Ty }
func (c *Constant) TablesReferenced() map[string]bool { return nil }

// Value is a language-level literal; kept distinct from physop.Value since
// the AST layer has no opinion on in-memory layout.
type Value struct {
	IsNull bool
	Bool   bool
	Int    int64
	Float  float64
	Str    string
}

// FnID enumerates the functions the stack machine and aggregator know how
// to evaluate.
type FnID int

const (
	FnUnknown FnID = iota
	FnCount
	FnCountStar
	FnSum
	FnMin
	FnMax
	FnAvg
	FnStrcmp
	FnLike
)

// Function is a resolved function reference.
type Function struct {
	ID   FnID
	Name string
}

// FnApplicationExpr is a call to a resolved Function.
type FnApplicationExpr struct {
	Fn   *Function
	Args []Expr
	ty   *types.Type
}

func NewFnApplicationExpr(fn *Function, ty *types.Type, args ...Expr) *FnApplicationExpr {
	return &FnApplicationExpr{Fn: fn, Args: args, ty: ty}
}

func (f *FnApplicationExpr) Type() *types.Type { return f.ty }

func (f *FnApplicationExpr) TablesReferenced() map[string]bool {
	out := map[string]bool{}
	for _, a := range f.Args {
		for t := range a.TablesReferenced() {
			out[t] = true
		}
	}
	return out
}

// BinOp enumerates binary operators a BinaryExpr can carry.
type BinOp int

const (
	OpEq BinOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpConcat
)

// BinaryExpr is a two-operand expression.
type BinaryExpr struct {
	Op          BinOp
	Left, Right Expr
	ty          *types.Type
}

func NewBinaryExpr(op BinOp, l, r Expr, ty *types.Type) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: l, Right: r, ty: ty}
}

func (b *BinaryExpr) Type() *types.Type { return b.ty }

func (b *BinaryExpr) TablesReferenced() map[string]bool {
	out := map[string]bool{}
	for t := range b.Left.TablesReferenced() {
		out[t] = true
	}
	for t := range b.Right.TablesReferenced() {
		out[t] = true
	}
	return out
}

// UnaryExpr is a single-operand expression (NOT, unary minus).
type UnaryExpr struct {
	Negated bool
	Operand Expr
	ty      *types.Type
}

func NewUnaryExpr(negated bool, operand Expr, ty *types.Type) *UnaryExpr {
	return &UnaryExpr{Negated: negated, Operand: operand, ty: ty}
}

func (u *UnaryExpr) Type() *types.Type                { return u.ty }
func (u *UnaryExpr) TablesReferenced() map[string]bool { return u.Operand.TablesReferenced() }
