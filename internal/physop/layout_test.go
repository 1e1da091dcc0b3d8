package physop

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmutable/engine/internal/types"
)

func testSchema(t *testing.T) *types.Schema {
	t.Helper()
	pool := types.NewStringPool()
	s := types.NewSchema()
	require.NoError(t, s.AddEntry(types.Entry{ID: types.NewIdentifier(pool, "t", "flag"), Type: types.Boolean()}))
	require.NoError(t, s.AddEntry(types.Entry{ID: types.NewIdentifier(pool, "t", "n"), Type: types.Int(32)}))
	require.NoError(t, s.AddEntry(types.Entry{ID: types.NewIdentifier(pool, "t", "f"), Type: types.Float(64)}))
	return s
}

func TestColumnStoreRoundTripsValuesAndNulls(t *testing.T) {
	schema := testSchema(t)
	store := NewColumnStore(schema, 2) // force at least one grow

	rows := []*Tuple{}
	mk := func(flag interface{}, n interface{}, f interface{}) *Tuple {
		tp := NewTuple(schema)
		if flag != nil {
			tp.Set(0, BoolValue(flag.(bool)))
		}
		if n != nil {
			tp.Set(1, IntValue(int64(n.(int))))
		}
		if f != nil {
			tp.Set(2, F64Value(f.(float64)))
		}
		return tp
	}
	rows = append(rows,
		mk(true, 42, 3.5),
		mk(false, -7, -0.25), // negative int exercises sign extension
		mk(nil, nil, nil),    // all NULL
		mk(true, 1<<30, 0.0),
	)
	for _, r := range rows {
		require.NoError(t, store.Append(r))
	}
	require.Equal(t, int64(len(rows)), store.NumRows())

	for i, want := range rows {
		got := store.RowAt(int64(i))
		require.True(t, want.Equal(got), "row %d: want %v nulls=%v, got %v nulls=%v", i, want.Values, want.Nulls, got.Values, got.Nulls)
	}
}

func TestRowLayoutPlacesNullBitmapAfterValues(t *testing.T) {
	schema := testSchema(t)
	layout := RowLayout(schema)
	require.Len(t, layout.Children, schema.NumEntries()+1)

	nullLeaf := layout.Children[schema.NumEntries()]
	require.True(t, nullLeaf.IsLeaf)
	require.Equal(t, NullBitmapIndex(schema), nullLeaf.SchemaIndex)
	require.Equal(t, schema.NumEntries(), nullLeaf.StrideInBits)

	// 1 (bool) + 32 (int) + 64 (float) values precede the bitmap
	require.Equal(t, 1+32+64, nullLeaf.OffsetInBits)
	// the row stride is byte aligned
	require.Zero(t, layout.StrideInBits%8)
}

func TestRowLayoutCodecRoundTripsThroughRegions(t *testing.T) {
	schema := testSchema(t)
	layout := RowLayout(schema)
	regions := NewRegions(layout, schema, 3)

	in := NewTuple(schema)
	in.Set(0, BoolValue(true))
	in.Set(1, IntValue(-123))
	// f stays NULL

	StoreTupleAt(layout, schema, regions, 1, in)
	out := LoadTupleAt(layout, schema, regions, 1)
	require.True(t, in.Equal(out))

	// neighbors must be untouched: row 0 is still all-NULL
	row0 := LoadTupleAt(layout, schema, regions, 0)
	for i := 0; i < schema.NumEntries(); i++ {
		require.True(t, row0.IsNull(i))
	}
}

func TestCursorAdvancesSequentially(t *testing.T) {
	schema := testSchema(t)
	layout := RowLayout(schema)
	regions := NewRegions(layout, schema, 4)

	w := NewCursor(layout, schema)
	for i := 0; i < 4; i++ {
		tp := NewTuple(schema)
		tp.Set(1, IntValue(int64(i*11)))
		w.StoreTuple(regions, tp)
	}
	r := NewCursor(layout, schema)
	for i := 0; i < 4; i++ {
		tp := r.LoadTuple(regions)
		v, _ := tp.Get(1)
		require.Equal(t, int64(i*11), v.Int)
	}
}

func TestTupleCloneAndInsertRoundTripPreservesEquality(t *testing.T) {
	pool := types.NewStringPool()
	schema := types.NewSchema()
	require.NoError(t, schema.AddEntry(types.Entry{ID: types.NewIdentifier(pool, "t", "n"), Type: types.Int(64)}))
	require.NoError(t, schema.AddEntry(types.Entry{ID: types.NewIdentifier(pool, "t", "s"), Type: types.CharacterSequence(8, true)}))

	orig := NewTuple(schema)
	orig.Set(0, IntValue(7))
	orig.Set(1, StringValue([]byte("hello")))

	clone := orig.Clone()
	require.True(t, orig.Equal(clone))

	// the clone must not alias the original's character buffer
	clone.Values[1].Bytes[0] = 'H'
	v, _ := orig.Get(1)
	require.Equal(t, "hello", v.AsString())

	// round-trip through a store keeps equality under the null mask
	store := NewMemRowStore(schema)
	require.NoError(t, store.Append(orig.Clone()))
	require.True(t, orig.Equal(store.RowAt(0)))

	// differing null masks compare unequal
	other := orig.Clone()
	other.SetNull(0)
	require.False(t, orig.Equal(other))
}
