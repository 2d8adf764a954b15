// pbc: Poisson Binomial Comorbidity network inference
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package comorbidity

import "math/bits"

// Bitset is a fixed-size set of subject IDs, one bit per subject.
type Bitset []uint64

// NewBitset creates an empty bitset that can hold n subjects.
func NewBitset(n int) Bitset {
	return make(Bitset, (n+63)/64)
}

// Set adds i to the set.
func (b Bitset) Set(i int) {
	b[i/64] |= 1 << uint(i%64)
}

// Test tells whether i is a member of the set.
func (b Bitset) Test(i int) bool {
	return b[i/64]&(1<<uint(i%64)) != 0
}

// Count returns the number of members.
func (b Bitset) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// AndCount returns the size of the intersection of two bitsets of the same size.
func (b Bitset) AndCount(other Bitset) int {
	n := 0
	for i, w := range b {
		n += bits.OnesCount64(w & other[i])
	}
	return n
}

// ForEach calls f for every member in increasing order.
func (b Bitset) ForEach(f func(i int)) {
	for wi, w := range b {
		for w != 0 {
			t := bits.TrailingZeros64(w)
			f(wi*64 + t)
			w &= w - 1
		}
	}
}

// And returns the members of both b and other in increasing order.
func (b Bitset) And(other Bitset) []int {
	var members []int
	for wi, w := range b {
		w &= other[wi]
		for w != 0 {
			t := bits.TrailingZeros64(w)
			members = append(members, wi*64+t)
			w &= w - 1
		}
	}
	return members
}
