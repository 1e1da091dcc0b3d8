package physop

import (
	"math"

	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/types"
)

// Regions is a set of raw byte buffers addressed by a DataLayout's leaf
// Region numbers: a row-major layout uses only buffer 0 (the others stay
// empty), a column-major one uses one per column plus the NULL column.
type Regions [][]byte

// NewRegions allocates numTuples worth of storage for every region a
// layout over schema addresses, sized from each leaf's own stride, with
// every tuple's NULL bitmap initially all set.
func NewRegions(layout *DataLayout, schema *types.Schema, numTuples int) Regions {
	widths := regionByteWidths(layout, schema)
	out := make(Regions, len(widths))
	for i, w := range widths {
		out[i] = make([]byte, w*numTuples)
	}
	// every tuple starts with its whole NULL bitmap set, so a row that was
	// never stored decodes as all-NULL
	nullIdx := NullBitmapIndex(schema)
	for t := 0; t < numTuples; t++ {
		if region, bitOff, width, ok := locate(layout, int64(t), nullIdx); ok {
			writeBits(out[region], bitOff, width, uint64(1)<<uint(width)-1)
		}
	}
	return out
}

// regionByteWidths returns, per region, the number of bytes one tuple
// contributes to that region (the row-major layout has one region whose
// width is the whole row; a column-major layout has one region per column
// whose width is that column's own value width).
func regionByteWidths(layout *DataLayout, schema *types.Schema) []int {
	n := NumRegions(schema)
	widths := make([]int, n)
	var walk func(node *DataLayout)
	walk = func(node *DataLayout) {
		if node.IsLeaf {
			return
		}
		if len(node.Children) > 0 && allLeaves(node.Children) {
			// this node's stride is the combined width of one of its own
			// instances; if every child is a leaf, all of them share the
			// same region as whatever their own Region says (row-major:
			// region 0 for the whole node's stride; column-major: a single
			// leaf per node, already on its own region).
			if len(node.Children) == 1 {
				r := node.Children[0].Region
				if w := bitsToBytes(node.StrideInBits); w > widths[r] {
					widths[r] = w
				}
				return
			}
			r := 0
			if w := bitsToBytes(node.StrideInBits); w > widths[r] {
				widths[r] = w
			}
			return
		}
		for _, c := range node.Children {
			walk(c)
		}
	}
	walk(layout)
	return widths
}

func allLeaves(nodes []*DataLayout) bool {
	for _, n := range nodes {
		if !n.IsLeaf {
			return false
		}
	}
	return true
}

func bitsToBytes(bits int) int { return (bits + 7) / 8 }

// locate computes, for tupleID's instance of schemaIndex's leaf (relative
// to node being the layout's root), which region it lives in and its bit
// offset/width within that region: the point-access form of the data
// layout compiler: no mutable pointer state, every call recomputes from
// tupleID directly, which is the layout compiler's contract for random
// access (hash-join probes) and, wrapped in a small incrementing cursor
// below, for sequential scans too.
func locate(node *DataLayout, tupleID int64, schemaIndex int) (region, bitOffset, strideBits int, ok bool) {
	if node.IsLeaf {
		if node.SchemaIndex != schemaIndex {
			return 0, 0, 0, false
		}
		return node.Region, node.OffsetInBits, node.StrideInBits, true
	}
	if node.NumTuples <= 0 {
		return 0, 0, 0, false
	}
	rep := tupleID / int64(node.NumTuples)
	local := tupleID % int64(node.NumTuples)
	for _, child := range node.Children {
		r, off, stride, ok := locate(child, local, schemaIndex)
		if ok {
			return r, off + int(rep)*node.StrideInBits, stride, true
		}
	}
	return 0, 0, 0, false
}

// Cursor is the sequential variant of the layout compiler: it advances an
// internal running tuple id by one per Store/Load call instead of taking an
// explicit tuple id each time: the running tuple id increments by one
// after each tuple: implemented here by
// recomputing offsets from the counter rather than literally emitting
// stride-jump pointer arithmetic, since a managed-memory host has no
// pointers to advance.
type Cursor struct {
	layout  *DataLayout
	schema  *types.Schema
	tupleID int64
}

// NewCursor starts a sequential cursor over layout/schema at tuple 0.
func NewCursor(layout *DataLayout, schema *types.Schema) *Cursor {
	return &Cursor{layout: layout, schema: schema}
}

// StoreTuple writes t into regions at the cursor's current tuple id, then
// advances the cursor.
func (c *Cursor) StoreTuple(regions Regions, t *Tuple) {
	StoreTupleAt(c.layout, c.schema, regions, c.tupleID, t)
	c.tupleID++
}

// LoadTuple reads the tuple at the cursor's current id, then advances.
func (c *Cursor) LoadTuple(regions Regions) *Tuple {
	t := LoadTupleAt(c.layout, c.schema, regions, c.tupleID)
	c.tupleID++
	return t
}

// StoreTupleAt is the point-access store: write t's values and NULL bitmap
// into regions at tupleID, with no cursor state.
func StoreTupleAt(layout *DataLayout, schema *types.Schema, regions Regions, tupleID int64, t *Tuple) {
	for i, e := range schema.Entries {
		region, bitOff, width, ok := locate(layout, tupleID, i)
		if !ok || t.IsNull(i) {
			continue
		}
		v, _ := t.Get(i)
		writeValueBits(regions[region], bitOff, width, e.Type, v)
	}
	nullIdx := schema.NumEntries()
	if region, bitOff, width, ok := locate(layout, tupleID, nullIdx); ok {
		writeBits(regions[region], bitOff, width, uint64(t.Nulls))
	}
}

// LoadTupleAt is the point-access load counterpart of StoreTupleAt.
func LoadTupleAt(layout *DataLayout, schema *types.Schema, regions Regions, tupleID int64) *Tuple {
	t := NewTuple(schema)
	nullIdx := schema.NumEntries()
	if region, bitOff, width, ok := locate(layout, tupleID, nullIdx); ok {
		t.Nulls = bitset.SmallBitset(readBits(regions[region], bitOff, width))
	}
	for i, e := range schema.Entries {
		if t.IsNull(i) {
			continue
		}
		region, bitOff, width, ok := locate(layout, tupleID, i)
		if !ok {
			continue
		}
		t.Set(i, readValueBits(regions[region], bitOff, width, e.Type))
	}
	return t
}

// readBits extracts the low n (<=64) bits starting at bitOffset from buf,
// bit i of the result corresponding to bit (bitOffset+i) of buf.
func readBits(buf []byte, bitOffset, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		byteIdx := (bitOffset + i) / 8
		bitIdx := uint((bitOffset + i) % 8)
		if byteIdx < len(buf) && buf[byteIdx]&(1<<bitIdx) != 0 {
			v |= 1 << uint(i)
		}
	}
	return v
}

// writeBits is readBits' inverse.
func writeBits(buf []byte, bitOffset, n int, v uint64) {
	for i := 0; i < n; i++ {
		byteIdx := (bitOffset + i) / 8
		bitIdx := uint((bitOffset + i) % 8)
		if byteIdx >= len(buf) {
			continue
		}
		if v&(1<<uint(i)) != 0 {
			buf[byteIdx] |= 1 << bitIdx
		} else {
			buf[byteIdx] &^= 1 << bitIdx
		}
	}
}

// writeValueBits encodes v's payload (per its static type) into width bits
// at bitOffset. Pointer-kind (character sequence) values are out of scope
// for the raw byte path: a real variable-length backend stores them in a
// side heap and keeps only a handle inline: so the handle is 0 here; the
// in-memory row store (MemRowStore) keeps Tuples as live objects and never
// round-trips strings through this codec.
func writeValueBits(buf []byte, bitOffset, width int, ty *types.Type, v Value) {
	switch v.Kind {
	case KindBool:
		b := uint64(0)
		if v.Bool {
			b = 1
		}
		writeBits(buf, bitOffset, width, b)
	case KindInt:
		writeBits(buf, bitOffset, width, uint64(v.Int))
	case KindFloat32:
		writeBits(buf, bitOffset, width, uint64(math.Float32bits(v.F32)))
	case KindFloat64:
		writeBits(buf, bitOffset, width, math.Float64bits(v.F64))
	case KindPointer:
		writeBits(buf, bitOffset, width, 0)
	}
}

// readValueBits is writeValueBits' inverse, dispatching on ty's Kind since
// the raw bits alone don't carry the ValueKind tag.
func readValueBits(buf []byte, bitOffset, width int, ty *types.Type) Value {
	raw := readBits(buf, bitOffset, width)
	switch ty.Kind {
	case types.KindBoolean:
		return BoolValue(raw != 0)
	case types.KindNumeric:
		switch ty.NumKind {
		case types.NumericFloat:
			if width <= 32 {
				return F32Value(math.Float32frombits(uint32(raw)))
			}
			return F64Value(math.Float64frombits(raw))
		default:
			return IntValue(signExtend(raw, width))
		}
	case types.KindDate:
		return IntValue(signExtend(raw, width))
	case types.KindDateTime:
		return IntValue(signExtend(raw, width))
	default:
		return NullValue
	}
}

func signExtend(raw uint64, width int) int64 {
	if width <= 0 || width >= 64 {
		return int64(raw)
	}
	shift := uint(64 - width)
	return int64(raw<<shift) >> shift
}
