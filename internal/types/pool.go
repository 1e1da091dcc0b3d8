// Package types implements the engine's data model: pooled identifiers,
// the tagged Type variant, and Schema (an ordered, composable sequence of
// typed identifiers).
package types

import (
	"sync"

	"github.com/OneOfOne/xxhash"
)

// StringPool interns strings so that downstream comparisons can rely on
// pointer equality. A pooled string is immutable and outlives every AST
// and query graph that references it. Interning hashes with xxhash to
// bucket candidates before the exact string compare.
type StringPool struct {
	mu      sync.Mutex
	buckets map[uint64][]*string
}

// NewStringPool creates an empty pool.
func NewStringPool() *StringPool {
	return &StringPool{buckets: make(map[uint64][]*string)}
}

// Intern returns the pooled *string for s, allocating a new pooled copy on
// first sight. Two calls with equal s return the identical pointer.
func (p *StringPool) Intern(s string) *string {
	h := xxhash.ChecksumString64(s)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, candidate := range p.buckets[h] {
		if *candidate == s {
			return candidate
		}
	}
	copied := s
	p.buckets[h] = append(p.buckets[h], &copied)
	return &copied
}
