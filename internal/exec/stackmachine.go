package exec

import (
	"strings"

	"github.com/pingcap/errors"
	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/types"
)

// OpCode is one stack-machine instruction. Programs are flat Instr slices
// dispatched by a tight switch rather than threaded jumps; the opcode set
// covers loads, constants, logic, arithmetic, comparisons, and the string
// kernels.
type OpCode int

const (
	OpLoad OpCode = iota
	OpConstBool
	OpConstInt
	OpConstFloat
	OpConstStr
	OpConstNull
	OpNot
	OpNeg
	OpAnd
	OpOr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpConcat
	OpStrcmp
	OpLike
	OpConstDecimal
)

// Instr is one instruction: the opcode plus whichever immediate field it
// uses (Index for OpLoad, one of the ConstV fields for the OpConst* family).
// Decimal marks an Add/Sub/Mul/Div/Eq/Ne/Lt/Le/Gt/Ge instruction whose
// operands are NumericDecimal-typed, routing Eval through the
// shopspring/decimal path instead of float64 arithmetic (rescale both
// operands to a common scale, then operate).
type Instr struct {
	Op      OpCode
	Index   int
	BoolV   bool
	IntV    int64
	FloatV  float64
	StrV    string
	Decimal bool
}

// Program is a compiled, linear sequence of Instr evaluated against a single
// input Tuple by Eval's explicit value stack.
type Program []Instr

// ErrUnsupportedExpr is returned by Compile for an Expr shape the stack
// machine has no opcode for (aggregate functions outside a Grouping
// operator's own accumulator, chiefly).
var ErrUnsupportedExpr = errors.New("exec: expression not supported by stack machine")

// Compile lowers e, evaluated against rows of schema, into a Program.
func Compile(schema *types.Schema, e ast.Expr) (Program, error) {
	var prog Program
	if err := compile(schema, e, &prog); err != nil {
		return nil, err
	}
	return prog, nil
}

func compile(schema *types.Schema, e ast.Expr, prog *Program) error {
	switch v := e.(type) {
	case *ast.Designator:
		idx, err := resolveDesignator(schema, v)
		if err != nil {
			return err
		}
		*prog = append(*prog, Instr{Op: OpLoad, Index: idx})
		return nil

	case *ast.Constant:
		return compileConstant(v, prog)

	case *ast.UnaryExpr:
		if err := compile(schema, v.Operand, prog); err != nil {
			return err
		}
		if v.Negated {
			if v.Type().IsNumeric() {
				*prog = append(*prog, Instr{Op: OpNeg})
			} else {
				*prog = append(*prog, Instr{Op: OpNot})
			}
		}
		return nil

	case *ast.BinaryExpr:
		if err := compile(schema, v.Left, prog); err != nil {
			return err
		}
		if err := compile(schema, v.Right, prog); err != nil {
			return err
		}
		op, err := binOpcode(v.Op)
		if err != nil {
			return err
		}
		*prog = append(*prog, Instr{Op: op, Decimal: isDecimalOperand(v.Left) || isDecimalOperand(v.Right)})
		return nil

	case *ast.FnApplicationExpr:
		switch v.Fn.ID {
		case ast.FnStrcmp:
			if len(v.Args) != 2 {
				return errors.Annotatef(ErrUnsupportedExpr, "strcmp arity")
			}
			if err := compile(schema, v.Args[0], prog); err != nil {
				return err
			}
			if err := compile(schema, v.Args[1], prog); err != nil {
				return err
			}
			*prog = append(*prog, Instr{Op: OpStrcmp})
			return nil
		case ast.FnLike:
			if len(v.Args) != 2 {
				return errors.Annotatef(ErrUnsupportedExpr, "like arity")
			}
			if err := compile(schema, v.Args[0], prog); err != nil {
				return err
			}
			if err := compile(schema, v.Args[1], prog); err != nil {
				return err
			}
			*prog = append(*prog, Instr{Op: OpLike})
			return nil
		default:
			return errors.Annotatef(ErrUnsupportedExpr, "aggregate function %s outside Grouping/Aggregation", v.Fn.Name)
		}

	default:
		return errors.Annotatef(ErrUnsupportedExpr, "%T", e)
	}
}

func compileConstant(c *ast.Constant, prog *Program) error {
	if c.Val.IsNull {
		*prog = append(*prog, Instr{Op: OpConstNull})
		return nil
	}
	if c.Ty.IsNumeric() {
		switch c.Ty.NumKind {
		case types.NumericFloat:
			*prog = append(*prog, Instr{Op: OpConstFloat, FloatV: c.Val.Float})
		case types.NumericDecimal:
			*prog = append(*prog, Instr{Op: OpConstDecimal, StrV: decimalLiteralString(c.Val)})
		default:
			*prog = append(*prog, Instr{Op: OpConstInt, IntV: c.Val.Int})
		}
		return nil
	}
	if c.Ty.Kind == types.KindBoolean {
		*prog = append(*prog, Instr{Op: OpConstBool, BoolV: c.Val.Bool})
		return nil
	}
	*prog = append(*prog, Instr{Op: OpConstStr, StrV: c.Val.Str})
	return nil
}

// isDecimalOperand reports whether e's static type is NumericDecimal.
func isDecimalOperand(e ast.Expr) bool {
	ty := e.Type()
	return ty != nil && ty.IsNumeric() && ty.NumKind == types.NumericDecimal
}

func binOpcode(op ast.BinOp) (OpCode, error) {
	switch op {
	case ast.OpEq:
		return OpEq, nil
	case ast.OpNe:
		return OpNe, nil
	case ast.OpLt:
		return OpLt, nil
	case ast.OpLe:
		return OpLe, nil
	case ast.OpGt:
		return OpGt, nil
	case ast.OpGe:
		return OpGe, nil
	case ast.OpAnd:
		return OpAnd, nil
	case ast.OpOr:
		return OpOr, nil
	case ast.OpAdd:
		return OpAdd, nil
	case ast.OpSub:
		return OpSub, nil
	case ast.OpMul:
		return OpMul, nil
	case ast.OpDiv:
		return OpDiv, nil
	case ast.OpConcat:
		return OpConcat, nil
	default:
		return 0, errors.Annotatef(ErrUnsupportedExpr, "binop %d", op)
	}
}

func resolveDesignator(schema *types.Schema, d *ast.Designator) (int, error) {
	name := d.Name
	if name == "" && d.TargetAttr != nil {
		// resolver-bound designator with no written text: fall back to the
		// resolved attribute's own name
		name = d.TargetAttr.Name
	}
	id := types.Identifier{Name: &name}
	if d.Prefix != "" {
		prefix := d.Prefix
		id.Prefix = &prefix
	}
	return schema.Lookup(id)
}

// Eval runs prog against t and returns its scalar result, with Kleene
// three-valued NULL semantics on every logical/comparison/arithmetic op.
func Eval(prog Program, t *physop.Tuple) physop.Value {
	stack := make([]physop.Value, 0, 8)
	push := func(v physop.Value) { stack = append(stack, v) }
	pop := func() physop.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for _, in := range prog {
		switch in.Op {
		case OpLoad:
			if t.IsNull(in.Index) {
				push(physop.NullValue)
			} else {
				v, _ := t.Get(in.Index)
				push(v)
			}
		case OpConstBool:
			push(physop.BoolValue(in.BoolV))
		case OpConstInt:
			push(physop.IntValue(in.IntV))
		case OpConstFloat:
			push(physop.F64Value(in.FloatV))
		case OpConstStr:
			push(physop.StringValue([]byte(in.StrV)))
		case OpConstDecimal:
			push(decimalFromString(in.StrV))
		case OpConstNull:
			push(physop.NullValue)
		case OpNot:
			push(kleeneNot(pop()))
		case OpNeg:
			push(arithNeg(pop()))
		case OpAnd:
			b, a := pop(), pop()
			push(kleeneAnd(a, b))
		case OpOr:
			b, a := pop(), pop()
			push(kleeneOr(a, b))
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			b, a := pop(), pop()
			if in.Decimal {
				push(decimalCompare(in.Op, a, b))
			} else {
				push(compareOp(in.Op, a, b))
			}
		case OpAdd, OpSub, OpMul, OpDiv:
			b, a := pop(), pop()
			if in.Decimal {
				push(decimalArith(in.Op, a, b))
			} else {
				push(arithOp(in.Op, a, b))
			}
		case OpConcat:
			b, a := pop(), pop()
			push(concatOp(a, b))
		case OpStrcmp:
			b, a := pop(), pop()
			push(strcmpOp(a, b))
		case OpLike:
			b, a := pop(), pop()
			push(likeOp(a, b))
		}
	}
	if len(stack) == 0 {
		return physop.NullValue
	}
	return stack[len(stack)-1]
}

func isNull(v physop.Value) bool { return v.Kind == physop.KindNull }

// kleeneNot is three-valued logical negation: NOT NULL = NULL.
func kleeneNot(a physop.Value) physop.Value {
	if isNull(a) {
		return physop.NullValue
	}
	return physop.BoolValue(!a.Bool)
}

// kleeneAnd implements AND's truth table: a false operand dominates even a
// NULL partner, matching SQL's three-valued logic rather than short-circuit
// strictness.
func kleeneAnd(a, b physop.Value) physop.Value {
	if (!isNull(a) && !a.Bool) || (!isNull(b) && !b.Bool) {
		return physop.BoolValue(false)
	}
	if isNull(a) || isNull(b) {
		return physop.NullValue
	}
	return physop.BoolValue(true)
}

// kleeneOr implements OR's truth table: a true operand dominates a NULL
// partner.
func kleeneOr(a, b physop.Value) physop.Value {
	if (!isNull(a) && a.Bool) || (!isNull(b) && b.Bool) {
		return physop.BoolValue(true)
	}
	if isNull(a) || isNull(b) {
		return physop.NullValue
	}
	return physop.BoolValue(false)
}

func arithNeg(a physop.Value) physop.Value {
	if isNull(a) {
		return physop.NullValue
	}
	switch a.Kind {
	case physop.KindInt:
		return physop.IntValue(-a.Int)
	case physop.KindFloat32:
		return physop.F32Value(-a.F32)
	case physop.KindFloat64:
		return physop.F64Value(-a.F64)
	default:
		return physop.NullValue
	}
}

func toFloat(v physop.Value) (float64, bool) {
	switch v.Kind {
	case physop.KindInt:
		return float64(v.Int), true
	case physop.KindFloat32:
		return float64(v.F32), true
	case physop.KindFloat64:
		return v.F64, true
	default:
		return 0, false
	}
}

func arithOp(op OpCode, a, b physop.Value) physop.Value {
	if isNull(a) || isNull(b) {
		return physop.NullValue
	}
	if a.Kind == physop.KindInt && b.Kind == physop.KindInt {
		switch op {
		case OpAdd:
			return physop.IntValue(a.Int + b.Int)
		case OpSub:
			return physop.IntValue(a.Int - b.Int)
		case OpMul:
			return physop.IntValue(a.Int * b.Int)
		case OpDiv:
			if b.Int == 0 {
				return physop.NullValue
			}
			return physop.IntValue(a.Int / b.Int)
		}
	}
	af, _ := toFloat(a)
	bf, _ := toFloat(b)
	switch op {
	case OpAdd:
		return physop.F64Value(af + bf)
	case OpSub:
		return physop.F64Value(af - bf)
	case OpMul:
		return physop.F64Value(af * bf)
	case OpDiv:
		// IEEE-754: division by zero yields an infinity, not an error
		return physop.F64Value(af / bf)
	}
	return physop.NullValue
}

// compareOp dispatches by the static kind of its (non-NULL) operands; bool,
// numeric and string comparisons all funnel through a signed three-way
// compare.
func compareOp(op OpCode, a, b physop.Value) physop.Value {
	if isNull(a) || isNull(b) {
		return physop.NullValue
	}
	var cmp int
	switch {
	case a.Kind == physop.KindBool && b.Kind == physop.KindBool:
		switch {
		case a.Bool == b.Bool:
			cmp = 0
		case a.Bool:
			cmp = 1
		default:
			cmp = -1
		}
	case a.Kind == physop.KindPointer && b.Kind == physop.KindPointer:
		cmp = strings.Compare(a.AsString(), b.AsString())
	default:
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		switch {
		case af < bf:
			cmp = -1
		case af > bf:
			cmp = 1
		default:
			cmp = 0
		}
	}
	switch op {
	case OpEq:
		return physop.BoolValue(cmp == 0)
	case OpNe:
		return physop.BoolValue(cmp != 0)
	case OpLt:
		return physop.BoolValue(cmp < 0)
	case OpLe:
		return physop.BoolValue(cmp <= 0)
	case OpGt:
		return physop.BoolValue(cmp > 0)
	case OpGe:
		return physop.BoolValue(cmp >= 0)
	}
	return physop.NullValue
}

func concatOp(a, b physop.Value) physop.Value {
	if isNull(a) || isNull(b) {
		return physop.NullValue
	}
	return physop.StringValue([]byte(a.AsString() + b.AsString()))
}

func strcmpOp(a, b physop.Value) physop.Value {
	if isNull(a) || isNull(b) {
		return physop.NullValue
	}
	return physop.IntValue(int64(strings.Compare(a.AsString(), b.AsString())))
}

// likeOp evaluates SQL LIKE (% = any run of characters, _ = exactly one,
// \ escapes the next pattern character) via a classic O(|str|*|pat|)
// dynamic-programming table.
func likeOp(a, b physop.Value) physop.Value {
	if isNull(a) || isNull(b) {
		return physop.NullValue
	}
	return physop.BoolValue(likeMatch(a.AsString(), b.AsString()))
}

func likeMatch(s, pattern string) bool {
	p := make([]rune, 0, len(pattern))
	literal := make([]bool, 0, len(pattern))
	escaped := false
	for _, r := range pattern {
		if escaped {
			p = append(p, r)
			literal = append(literal, true)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		p = append(p, r)
		literal = append(literal, false)
	}
	str := []rune(s)
	n, m := len(str), len(p)
	dp := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]bool, m+1)
	}
	dp[0][0] = true
	for j := 1; j <= m; j++ {
		if p[j-1] == '%' && !literal[j-1] {
			dp[0][j] = dp[0][j-1]
		}
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			switch {
			case !literal[j-1] && p[j-1] == '%':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case !literal[j-1] && p[j-1] == '_':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && str[i-1] == p[j-1]
			}
		}
	}
	return dp[n][m]
}
