package physop

import (
	"github.com/xmutable/engine/internal/types"
)

// Store is the opaque backing region a Table publishes: addressed by
// row id via the DataLayout it returns from Linearization. Only the methods
// the core needs are part of the contract.
type Store interface {
	NumRows() int64
	Append(t *Tuple) error
	Linearization() *DataLayout
	// RowAt performs an in-memory point access, used by Scan and by
	// hash-join probes in lieu of compiling a loader off the physical
	// layout for every store kind (the layout is still what a real
	// column/row backend would use to derive this).
	RowAt(row int64) *Tuple
}

// MemRowStore is a minimal append-only in-memory row store satisfying the
// Store contract; a disk-backed row or column store would plug in behind
// the same interface.
type MemRowStore struct {
	schema *types.Schema
	layout *DataLayout
	rows   []*Tuple
}

// NewMemRowStore creates an empty store for schema.
func NewMemRowStore(schema *types.Schema) *MemRowStore {
	return &MemRowStore{schema: schema, layout: RowLayout(schema)}
}

func (s *MemRowStore) NumRows() int64 { return int64(len(s.rows)) }

func (s *MemRowStore) Append(t *Tuple) error {
	s.rows = append(s.rows, t)
	return nil
}

func (s *MemRowStore) Linearization() *DataLayout { return s.layout }

func (s *MemRowStore) RowAt(row int64) *Tuple { return s.rows[row] }
