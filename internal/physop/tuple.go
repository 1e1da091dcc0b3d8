package physop

import (
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/types"
)

// Tuple is a fixed-size array of Values plus a NULL bitmap, created from a
// Schema. Bit i of Nulls set means entry i is NULL.
type Tuple struct {
	Values []Value
	Nulls  bitset.SmallBitset
}

// NewTuple allocates a Tuple sized for schema, with every entry NULL.
func NewTuple(schema *types.Schema) *Tuple {
	n := schema.NumEntries()
	t := &Tuple{Values: make([]Value, n)}
	for i := 0; i < n; i++ {
		t.Nulls = t.Nulls.Set(uint(i))
	}
	return t
}

// IsNull reports whether entry i is NULL.
func (t *Tuple) IsNull(i int) bool { return t.Nulls.At(uint(i)) }

// Set assigns entry i to a non-NULL value.
func (t *Tuple) Set(i int, v Value) {
	t.Values[i] = v
	t.Nulls = t.Nulls.Clear(uint(i))
}

// SetNull marks entry i as NULL; the stored Value is left as the zero value.
func (t *Tuple) SetNull(i int) {
	t.Values[i] = Value{}
	t.Nulls = t.Nulls.Set(uint(i))
}

// Get returns entry i's value and whether it is NULL.
func (t *Tuple) Get(i int) (Value, bool) {
	return t.Values[i], t.IsNull(i)
}

// Clone performs a deep-enough copy for safe accumulation (Sorting,
// Grouping materialize cloned tuples); byte buffers are copied so
// a clone never aliases the scratch region of its source.
func (t *Tuple) Clone() *Tuple {
	out := &Tuple{Values: make([]Value, len(t.Values)), Nulls: t.Nulls}
	for i, v := range t.Values {
		if v.Kind == KindPointer && v.Bytes != nil {
			cp := make([]byte, len(v.Bytes))
			copy(cp, v.Bytes)
			v.Bytes = cp
		}
		out.Values[i] = v
	}
	return out
}

// Equal compares two tuples value-by-value under their null masks: a NULL
// entry in both tuples compares equal regardless of stored Value.
func (t *Tuple) Equal(o *Tuple) bool {
	if t.Nulls != o.Nulls || len(t.Values) != len(o.Values) {
		return false
	}
	for i := range t.Values {
		if t.IsNull(i) {
			continue
		}
		a, b := t.Values[i], o.Values[i]
		if a.Kind != b.Kind {
			return false
		}
		switch a.Kind {
		case KindBool:
			if a.Bool != b.Bool {
				return false
			}
		case KindInt:
			if a.Int != b.Int {
				return false
			}
		case KindFloat32:
			if a.F32 != b.F32 {
				return false
			}
		case KindFloat64:
			if a.F64 != b.F64 {
				return false
			}
		case KindPointer:
			if string(a.Bytes) != string(b.Bytes) {
				return false
			}
		}
	}
	return true
}
