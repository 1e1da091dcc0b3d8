// Package bitset implements SmallBitset, a dense set over {0, ..., 63}
// backed by a single uint64 word, plus the two subset-enumeration
// primitives the plan enumerator relies on: Gosper's hack (k-subsets of
// {0,...,n-1} in increasing numerical order) and deposit-by-mask (mapping a
// dense k-subset onto the bits of an arbitrary superset).
//
// This is the sole set type used throughout the optimizer; capacity 64 is
// a design constant baked into the DP algorithms.
package bitset

import (
	"fmt"
	"math/bits"
)

// SmallBitset is a set over {0, ..., 63} represented as a single machine word.
type SmallBitset uint64

// Empty is the empty set.
const Empty SmallBitset = 0

// Singleton returns the set containing only i.
func Singleton(i uint) SmallBitset {
	mustBeInRange(i)
	return SmallBitset(1) << i
}

// All returns the set {0, ..., n-1}. n must be in [0, 64].
func All(n uint) SmallBitset {
	if n == 0 {
		return Empty
	}
	if n >= 64 {
		return ^SmallBitset(0)
	}
	return SmallBitset(1)<<n - 1
}

func mustBeInRange(i uint) {
	if i >= 64 {
		panic(fmt.Sprintf("bitset: index %d out of range [0,64)", i))
	}
}

// Set returns the set with bit i added.
func (s SmallBitset) Set(i uint) SmallBitset {
	mustBeInRange(i)
	return s | SmallBitset(1)<<i
}

// Clear returns the set with bit i removed.
func (s SmallBitset) Clear(i uint) SmallBitset {
	mustBeInRange(i)
	return s &^ (SmallBitset(1) << i)
}

// At reports whether bit i is a member of s. Panics for i >= 64, the only
// error condition the bitset can raise.
func (s SmallBitset) At(i uint) bool {
	mustBeInRange(i)
	return s&(SmallBitset(1)<<i) != 0
}

// Union returns s ∪ o.
func (s SmallBitset) Union(o SmallBitset) SmallBitset { return s | o }

// Intersect returns s ∩ o.
func (s SmallBitset) Intersect(o SmallBitset) SmallBitset { return s & o }

// Difference returns s ∖ o.
func (s SmallBitset) Difference(o SmallBitset) SmallBitset { return s &^ o }

// IsSubsetOf reports whether s ⊆ o.
func (s SmallBitset) IsSubsetOf(o SmallBitset) bool { return s&o == s }

// IsDisjoint reports whether s ∩ o = ∅.
func (s SmallBitset) IsDisjoint(o SmallBitset) bool { return s&o == 0 }

// IsEmpty reports whether the set is empty.
func (s SmallBitset) IsEmpty() bool { return s == 0 }

// Size returns the popcount of s.
func (s SmallBitset) Size() int { return bits.OnesCount64(uint64(s)) }

// LeastElement returns the index of the lowest set bit and true, or
// (0, false) if s is empty.
func (s SmallBitset) LeastElement() (uint, bool) {
	if s == 0 {
		return 0, false
	}
	return uint(bits.TrailingZeros64(uint64(s))), true
}

// LowBit isolates the least significant set bit: s & -s.
func (s SmallBitset) LowBit() SmallBitset {
	return s & -s
}

// Elements returns the set bits in ascending order. O(popcount), not O(64).
func (s SmallBitset) Elements() []uint {
	out := make([]uint, 0, s.Size())
	for rest := s; rest != 0; {
		i := uint(bits.TrailingZeros64(uint64(rest)))
		out = append(out, i)
		rest &= rest - 1
	}
	return out
}

// ForEach calls f with every set bit in ascending order, stopping early if f
// returns false.
func (s SmallBitset) ForEach(f func(i uint) bool) {
	for rest := s; rest != 0; {
		i := uint(bits.TrailingZeros64(uint64(rest)))
		if !f(i) {
			return
		}
		rest &= rest - 1
	}
}

// String renders the set as e.g. "{0,2,3}".
func (s SmallBitset) String() string {
	out := "{"
	for i, e := range s.Elements() {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", e)
	}
	return out + "}"
}

// NextSubset implements the DPsub recurrence: given a non-empty proper
// subset L of S (in ascending numerical enumeration order), returns the next
// subset of S after L, or (0, false) once L == S. The classic formula is
// next = (L - S) & S, i.e. subtract S (as a big number) from L and mask back
// down to S's bits; starting from L = 0 (represented by the caller skipping
// to S's lowest subset) enumerates every subset of S in ascending order.
func NextSubset(l, s SmallBitset) (SmallBitset, bool) {
	if l == s {
		return 0, false
	}
	next := (l - s) & s
	return next, true
}

// GospersHack enumerates all k-element subsets of {0, ..., n-1} as
// SmallBitsets, in strictly increasing numerical order of the underlying
// word. It yields exactly C(n, k) distinct subsets, each of popcount k.
type GospersHack struct {
	set SmallBitset
	n   uint
	ok  bool
}

// NewGospersHack starts enumeration of all k-subsets of {0,...,n-1}.
func NewGospersHack(k, n uint) *GospersHack {
	if k > n {
		return &GospersHack{ok: false}
	}
	if k == 0 {
		return &GospersHack{set: 0, n: n, ok: true}
	}
	return &GospersHack{set: All(k), n: n, ok: true}
}

// ResumeGospersHack resumes enumeration from a given subset (inclusive),
// e.g. to continue a suspended Gosper's-hack walk. The subset must itself be
// a valid k-subset the hack would have produced.
func ResumeGospersHack(from SmallBitset, n uint) *GospersHack {
	return &GospersHack{set: from, n: n, ok: true}
}

// Done reports whether enumeration has been exhausted.
func (g *GospersHack) Done() bool { return !g.ok }

// Next returns the current subset and advances to the next one.
func (g *GospersHack) Next() SmallBitset {
	cur := g.set
	g.advance()
	return cur
}

func (g *GospersHack) advance() {
	if !g.ok {
		return
	}
	if g.set == 0 {
		// k == 0 case: the empty set is the only 0-subset.
		g.ok = false
		return
	}
	c := g.set & -g.set // lowest set bit
	r := g.set + c
	next := (((g.set ^ r) >> 2) / c) | r
	limit := All(g.n)
	if next&^limit != 0 || next == 0 {
		g.ok = false
		return
	}
	g.set = next
}

// SubsetEnumerator enumerates all k-subsets of an arbitrary set S (not of
// {0,...,n-1}): it drives a GospersHack over the dense index space
// {0,...,|S|-1} and maps each dense subset onto S's bits with
// DepositByMask, so subsets of S come out in dense (index-space) order.
type SubsetEnumerator struct {
	hack *GospersHack
	s    SmallBitset
}

// NewSubsetEnumerator enumerates all k-subsets of s.
func NewSubsetEnumerator(s SmallBitset, k uint) *SubsetEnumerator {
	return &SubsetEnumerator{hack: NewGospersHack(k, uint(s.Size())), s: s}
}

// Done reports whether enumeration is exhausted.
func (e *SubsetEnumerator) Done() bool { return e.hack.Done() }

// Next returns the next k-subset of the enumerator's superset s.
func (e *SubsetEnumerator) Next() SmallBitset {
	dense := e.hack.Next()
	return DepositByMask(dense, e.s)
}

// DepositByMask implements the "deposit bits" (PDEP-style) primitive: given
// a dense subset s of {0,...,k-1} (k = popcount(mask)) and a mask M, returns
// the subset of M whose i-th lowest bit (in M's ascending bit order) is set
// iff bit i of s is set.
func DepositByMask(s SmallBitset, mask SmallBitset) SmallBitset {
	var result SmallBitset
	rest := mask
	bit := uint(0)
	for rest != 0 {
		lsb := rest & -rest
		idx := uint(bits.TrailingZeros64(uint64(lsb)))
		if s.At(bit) {
			result = result.Set(idx)
		}
		rest &= rest - 1
		bit++
	}
	return result
}
