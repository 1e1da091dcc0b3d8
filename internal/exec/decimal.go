package exec

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/physop"
)

// decimalFromString decodes a literal's base-10 text into a physop.Value.
// Decimal values are carried through the stack machine the same way
// character sequences are (physop.KindPointer over an opaque byte payload);
// the Decimal flag on the Instr that produced or consumes them is what
// tells Eval to route through shopspring/decimal instead of float64.
func decimalFromString(s string) physop.Value {
	d, err := decimal.NewFromString(s)
	if err != nil {
		d = decimal.Zero
	}
	return encodeDecimal(d)
}

// decimalLiteralString recovers a base-10 string from an ast.Value carrying
// a decimal constant. The resolver is expected to populate Str with the
// literal's exact text (preserving scale); a bare Float is accepted as a
// fallback for constant-folded expressions.
func decimalLiteralString(v ast.Value) string {
	if v.Str != "" {
		return v.Str
	}
	return strconv.FormatFloat(v.Float, 'f', -1, 64)
}

func encodeDecimal(d decimal.Decimal) physop.Value {
	b, err := d.MarshalBinary()
	if err != nil {
		b = nil
	}
	return physop.StringValue(b)
}

func decodeDecimal(v physop.Value) decimal.Decimal {
	var d decimal.Decimal
	if err := d.UnmarshalBinary(v.Bytes); err != nil {
		return decimal.Zero
	}
	return d
}

// decimalArith rescales both operands to a common scale (shopspring/decimal
// does this internally on every op) and evaluates op, so scaled-decimal
// arithmetic never detours through binary floating point.
func decimalArith(op OpCode, a, b physop.Value) physop.Value {
	if isNull(a) || isNull(b) {
		return physop.NullValue
	}
	da, db := decodeDecimal(a), decodeDecimal(b)
	switch op {
	case OpAdd:
		return encodeDecimal(da.Add(db))
	case OpSub:
		return encodeDecimal(da.Sub(db))
	case OpMul:
		return encodeDecimal(da.Mul(db))
	case OpDiv:
		if db.IsZero() {
			return physop.NullValue
		}
		return encodeDecimal(da.Div(db))
	}
	return physop.NullValue
}

func decimalCompare(op OpCode, a, b physop.Value) physop.Value {
	if isNull(a) || isNull(b) {
		return physop.NullValue
	}
	cmp := decodeDecimal(a).Cmp(decodeDecimal(b))
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
