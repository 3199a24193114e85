// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package courier

import (
	"math/bits"
)

// Bits is a byte-backed bit set recording which guardians signed
type Bits []byte

// NewBits creates an empty bit set
func NewBits() Bits {
	return make(Bits, 0)
}

// Add adds an index to the bit set
func (b *Bits) Add(i int) {
	if i < 0 {
		return
	}
	byteIndex := i / 8
	bitIndex := i % 8

	for len(*b) <= byteIndex {
		*b = append(*b, 0)
	}

	(*b)[byteIndex] |= 1 << uint(bitIndex)
}

// Contains returns true if the bit set contains the index
func (b Bits) Contains(i int) bool {
	if i < 0 {
		return false
	}
	byteIndex := i / 8
	if byteIndex >= len(b) {
		return false
	}
	return (b[byteIndex] & (1 << uint(i%8))) != 0
}

// BitLen returns the number of bits the set can currently represent
func (b Bits) BitLen() int {
	return len(b) * 8
}

// Len returns the number of set bits
func (b Bits) Len() int {
	count := 0
	for _, x := range b {
		count += bits.OnesCount8(x)
	}
	return count
}

// Equal returns true if two bit sets contain the same indices
func (b Bits) Equal(other Bits) bool {
	b = b.trim()
	other = other.trim()
	if len(b) != len(other) {
		return false
	}
	for i := range b {
		if b[i] != other[i] {
			return false
		}
	}
	return true
}

// trim removes trailing zero bytes
func (b Bits) trim() Bits {
	i := len(b) - 1
	for i >= 0 && b[i] == 0 {
		i--
	}
	return b[:i+1]
}
