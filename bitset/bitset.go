// Package bitset is a fixed-size set of small non-negative integers.
package bitset

import (
	"fmt"
	"math/bits"
)

// BitSet is not safe for concurrent use.
type BitSet []uint64

func NewBitSet(len uint64) BitSet {
	words := (len + 63) / 64
	return make(BitSet, words)
}

func (b BitSet) IsSet(index uint64) bool {
	return b[index/64]&(uint64(1)<<(index%64)) != 0
}

func (b BitSet) Set(index uint64) {
	b[index/64] |= uint64(1) << (index % 64)
}

func (b BitSet) Unset(index uint64) {
	b[index/64] &^= uint64(1) << (index % 64)
}

func (b BitSet) Clear() {
	clear(b)
}

// Any reports whether at least one bit is set.
func (b BitSet) Any() bool {
	for _, w := range b {
		if w != 0 {
			return true
		}
	}
	return false
}

// Indices returns the set bits in ascending order.
func (b BitSet) Indices() []uint64 {
	var out []uint64
	for i, w := range b {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			out = append(out, uint64(i)*64+uint64(tz))
			w &= w - 1
		}
	}
	return out
}

func (b BitSet) SetFrom(o BitSet) {
	if len(b) != len(o) {
		panic(fmt.Sprintf("bitsets must be same size: got %d vs %d", len(b), len(o)))
	}
	copy(b, o)
}
