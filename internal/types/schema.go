package types

import (
	"fmt"

	"github.com/pingcap/errors"
)

// ErrDuplicateIdentifier is returned when AddEntry would introduce a
// duplicate (prefix, name) pair; the error is signaled to the caller and
// the Schema is left unchanged.
var ErrDuplicateIdentifier = errors.New("schema: duplicate identifier")

// ErrAmbiguousIdentifier is returned by Lookup when a bare name matches more
// than one entry.
var ErrAmbiguousIdentifier = errors.New("schema: ambiguous identifier")

// ErrIdentifierNotFound is returned by Lookup when no entry matches.
var ErrIdentifierNotFound = errors.New("schema: identifier not found")

// Entry is one (Identifier, Type, constraints) triple in a Schema.
type Entry struct {
	ID       Identifier
	Type     *Type
	Nullable bool
}

// Schema is an ordered sequence of Entries.
type Schema struct {
	Entries []Entry
}

// NewSchema constructs an empty schema.
func NewSchema() *Schema { return &Schema{} }

// NumEntries returns len(Entries); also the reserved index of the NULL
// bitmap leaf in a DataLayout built over this schema.
func (s *Schema) NumEntries() int { return len(s.Entries) }

// AddEntry appends e, rejecting an exact (prefix, name) duplicate.
func (s *Schema) AddEntry(e Entry) error {
	for _, existing := range s.Entries {
		if existing.ID.Equal(e.ID) {
			return errors.Annotatef(ErrDuplicateIdentifier, "%s", e.ID.String())
		}
	}
	s.Entries = append(s.Entries, e)
	return nil
}

// Index returns the position of an exact (prefix, name) match, or -1.
func (s *Schema) Index(id Identifier) int {
	for i, e := range s.Entries {
		if e.ID.Equal(id) {
			return i
		}
	}
	return -1
}

// Lookup resolves an identifier. If id.Prefix is nil, matches are by bare
// name only; more than one match is an ambiguity error.
func (s *Schema) Lookup(id Identifier) (int, error) {
	if id.Prefix != nil {
		idx := s.Index(id)
		if idx < 0 {
			return -1, fmt.Errorf("%w: %s", ErrIdentifierNotFound, id.String())
		}
		return idx, nil
	}
	found := -1
	for i, e := range s.Entries {
		if e.ID.Name == id.Name || (e.ID.Name != nil && id.Name != nil && *e.ID.Name == *id.Name) {
			if found >= 0 {
				return -1, fmt.Errorf("%w: %s", ErrAmbiguousIdentifier, id.String())
			}
			found = i
		}
	}
	if found < 0 {
		return -1, fmt.Errorf("%w: %s", ErrIdentifierNotFound, id.String())
	}
	return found, nil
}

// Concat returns a new Schema whose entries are s's entries followed by
// o's, with no de-duplication.
func (s *Schema) Concat(o *Schema) *Schema {
	out := &Schema{Entries: make([]Entry, 0, len(s.Entries)+len(o.Entries))}
	out.Entries = append(out.Entries, s.Entries...)
	out.Entries = append(out.Entries, o.Entries...)
	return out
}

// Union returns s's entries, plus any of o's entries whose identifier is
// not already present.
func (s *Schema) Union(o *Schema) *Schema {
	out := &Schema{Entries: append([]Entry(nil), s.Entries...)}
	for _, e := range o.Entries {
		if s.Index(e.ID) < 0 {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

// Clone returns a shallow copy whose Entries slice is independent.
func (s *Schema) Clone() *Schema {
	return &Schema{Entries: append([]Entry(nil), s.Entries...)}
}

// Project returns a new Schema containing only the entries at the given
// indices, in the given order; schema minimization builds on this.
func (s *Schema) Project(indices []int) *Schema {
	out := &Schema{Entries: make([]Entry, len(indices))}
	for i, idx := range indices {
		out.Entries[i] = s.Entries[idx]
	}
	return out
}

// Rename returns a copy of s with every entry's prefix replaced by alias:
// used when a base table's schema is renamed by its source alias.
func (s *Schema) Rename(pool *StringPool, alias string) *Schema {
	out := &Schema{Entries: make([]Entry, len(s.Entries))}
	prefix := pool.Intern(alias)
	for i, e := range s.Entries {
		out.Entries[i] = Entry{
			ID:       Identifier{Prefix: prefix, Name: e.ID.Name},
			Type:     e.Type,
			Nullable: e.Nullable,
		}
	}
	return out
}
