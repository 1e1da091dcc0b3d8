package physop

import "github.com/xmutable/engine/internal/types"

// ColumnStore is a column-major append-only in-memory Store, backed by the
// data-layout compiler's byte-region codec rather than a live []*Tuple
// slice like MemRowStore. It is the storage-format-agnostic counterpart
// MemRowStore's row-major layout is meant to contrast with: both
// satisfy the same Store contract, but this one actually round-trips every
// row through ColumnLayout's per-column byte regions, exercising the data
// layout compiler on the write and read paths instead of keeping tuples as
// live objects. Character-sequence values do not survive the round trip:
// the codec stores a zero handle for them and reads them back as NullValue.
type ColumnStore struct {
	schema  *types.Schema
	layout  *DataLayout
	regions Regions
	numRows int64
	cap     int64
}

// NewColumnStore creates an empty column store for schema with room for
// initialCap rows before the next Append triggers a reallocation.
func NewColumnStore(schema *types.Schema, initialCap int64) *ColumnStore {
	if initialCap <= 0 {
		initialCap = 16
	}
	layout := ColumnLayout(schema)
	return &ColumnStore{
		schema:  schema,
		layout:  layout,
		regions: NewRegions(layout, schema, int(initialCap)),
		cap:     initialCap,
	}
}

func (s *ColumnStore) NumRows() int64 { return s.numRows }

func (s *ColumnStore) Linearization() *DataLayout { return s.layout }

// Append writes t at the next row id, growing every region's backing
// buffer (doubling) if capacity is exhausted.
func (s *ColumnStore) Append(t *Tuple) error {
	if s.numRows >= s.cap {
		s.grow()
	}
	StoreTupleAt(s.layout, s.schema, s.regions, s.numRows, t)
	s.numRows++
	return nil
}

func (s *ColumnStore) grow() {
	newCap := s.cap * 2
	grown := NewRegions(s.layout, s.schema, int(newCap))
	for i, buf := range s.regions {
		copy(grown[i], buf)
	}
	s.regions = grown
	s.cap = newCap
}

// RowAt decodes row id's tuple straight out of the column regions.
func (s *ColumnStore) RowAt(row int64) *Tuple {
	return LoadTupleAt(s.layout, s.schema, s.regions, row)
}
