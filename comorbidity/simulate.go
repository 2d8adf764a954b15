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

import "github.com/valyala/fastrand"

// Sampling the Poisson binomial null distribution. Used to check the normal approximation for pairs with a small
// expected count.

// DefaultSimulationIterations is the default number of draws per simulated pair.
const DefaultSimulationIterations = 1000

// PairSeed derives the seed of unit id from a run seed. The result is never 0, which fastrand would replace by a
// random seed.
func PairSeed(seed uint32, id int) uint32 {
	x := seed ^ (uint32(id)*0x9e3779b9 + 0x7f4a7c15)
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	if x == 0 {
		x = 1
	}
	return x
}

// SimulateCoOccurrence draws iter samples of a sum of independent Bernoulli(q[s]) variables and returns the
// empirical upper-tail p-value of the observed count: (1 + #{draw >= observed}) / (1 + iter).
func SimulateCoOccurrence(q []float64, observed, iter int, seed uint32) float64 {
	// only subjects with a non-zero chance contribute
	thresholds := make([]uint32, 0, len(q))
	certain := 0
	for _, p := range q {
		switch {
		case p >= 1:
			certain++
		case p > 0:
			thresholds = append(thresholds, uint32(p*4294967296.0))
		}
	}
	var rng fastrand.RNG
	rng.Seed(seed)
	exceed := 0
	for i := 0; i < iter; i++ {
		ctr := certain
		for _, t := range thresholds {
			if rng.Uint32() < t {
				ctr++
			}
		}
		if ctr >= observed {
			exceed++
		}
	}
	return float64(1+exceed) / float64(1+iter)
}
