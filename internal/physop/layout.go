package physop

import "github.com/xmutable/engine/internal/types"

// DataLayout describes, independent of row- vs column-orientation, how
// tuples of a schema are stored in memory. It is a tree: leaves
// designate either one schema entry or the NULL bitmap (leaf index ==
// schema.NumEntries()); non-leaves publish StrideInBits/NumTuples, leaves
// publish OffsetInBits/StrideInBits within their parent.
type DataLayout struct {
	// Leaf fields (IsLeaf == true)
	IsLeaf       bool
	SchemaIndex  int // index into the layout's schema; == NumEntries() for the NULL bitmap
	OffsetInBits int
	StrideInBits int
	// Region selects which of a multi-region byte buffer (see
	// layout_compiler.go's Regions) this leaf's bits live in. A row-major
	// layout packs every leaf into Region 0 (one shared buffer); a
	// column-major layout gives every leaf its own Region so columns sit in
	// disjoint memory regions.
	Region int

	// Non-leaf fields
	NumTuples int // tuples held by one instance of this node before the parent advances
	Children  []*DataLayout
}

// NullBitmapIndex is the reserved schema index that designates the NULL
// bitmap leaf.
func NullBitmapIndex(schema *types.Schema) int { return schema.NumEntries() }

// RowLayout builds the textbook row-major layout: a single INode of
// NumTuples rows, its children packed leaf-per-schema-entry followed by the
// NULL bitmap leaf, each at a byte-aligned offset. This is the layout a
// fresh in-memory row Store publishes.
func RowLayout(schema *types.Schema) *DataLayout {
	n := schema.NumEntries()
	children := make([]*DataLayout, 0, n+1)
	offset := 0
	for i, e := range schema.Entries {
		bits := e.Type.SizeInBits()
		children = append(children, &DataLayout{
			IsLeaf:       true,
			SchemaIndex:  i,
			OffsetInBits: offset,
			StrideInBits: bits,
		})
		offset += bits
	}
	// NULL bitmap: the whole n-bit vector packed after the values as one
	// field, so its leaf's own width is n bits, not 1: each tuple carries
	// exactly one instance of the full bitmap.
	children = append(children, &DataLayout{
		IsLeaf:       true,
		SchemaIndex:  n,
		OffsetInBits: offset,
		StrideInBits: n,
	})
	offset += n
	rowStride := (offset + 7) &^ 7 // byte-align the row stride
	return &DataLayout{NumTuples: 1, StrideInBits: rowStride, Children: children}
}

// ColumnLayout builds a column-major layout: one top-level INode per
// schema entry (including the NULL bitmap), each holding NumTuples=1 of its
// own column, so distinct columns can be stored in disjoint memory regions.
func ColumnLayout(schema *types.Schema) *DataLayout {
	n := schema.NumEntries()
	top := &DataLayout{NumTuples: 1 << 30} // effectively unbounded outer repetition
	for i, e := range schema.Entries {
		bits := e.Type.SizeInBits()
		col := &DataLayout{NumTuples: 1, StrideInBits: bits, Children: []*DataLayout{{
			IsLeaf: true, SchemaIndex: i, OffsetInBits: 0, StrideInBits: bits, Region: i,
		}}}
		top.Children = append(top.Children, col)
	}
	// the NULL column carries the whole n-bit bitmap per tuple
	nullCol := &DataLayout{NumTuples: 1, StrideInBits: n, Children: []*DataLayout{{
		IsLeaf: true, SchemaIndex: n, OffsetInBits: 0, StrideInBits: n, Region: n,
	}}}
	top.Children = append(top.Children, nullCol)
	return top
}

// NumRegions reports how many region slots a Regions value over schema
// has: NumEntries()+1, one per column plus the NULL column. A column-major
// layout uses every slot; a row-major layout uses only slot 0.
func NumRegions(schema *types.Schema) int { return schema.NumEntries() + 1 }
