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

package utils

import (
	"math"
	"sort"
)

// Multiple testing corrections. NaN entries are not part of the test family: they are returned as NaN and do not count
// towards the number of tests.

// countTests returns the number of non-NaN p-values.
func countTests(pvalues []float64) int {
	n := 0
	for _, p := range pvalues {
		if !math.IsNaN(p) {
			n++
		}
	}
	return n
}

// Bonferroni adjusts p-values for family-wise error: min(1, p*n) with n the size of the family. The result has the same
// length and order as the input.
func Bonferroni(pvalues []float64) []float64 {
	adjusted := make([]float64, len(pvalues))
	copy(adjusted, pvalues)
	if len(pvalues) <= 1 {
		return adjusted
	}
	n := float64(countTests(pvalues))
	for i, p := range pvalues {
		if math.IsNaN(p) {
			continue
		}
		adjusted[i] = math.Min(1.0, p*n)
	}
	return adjusted
}

// BenjaminiHochberg adjusts p-values for false discovery rate with the step-up procedure. The p-values are ranked
// ascending, scaled by n/rank, and made monotone by taking the running minimum from the largest rank down. The result
// is returned in the original input order.
func BenjaminiHochberg(pvalues []float64) []float64 {
	adjusted := make([]float64, len(pvalues))
	copy(adjusted, pvalues)
	if len(pvalues) <= 1 {
		return adjusted
	}
	order := make([]int, 0, len(pvalues))
	for i, p := range pvalues {
		if !math.IsNaN(p) {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return pvalues[order[i]] < pvalues[order[j]]
	})
	m := float64(len(order))
	cummin := 1.0
	for rank := len(order); rank >= 1; rank-- {
		idx := order[rank-1]
		cummin = math.Min(cummin, pvalues[idx]*m/float64(rank))
		adjusted[idx] = cummin
	}
	return adjusted
}
