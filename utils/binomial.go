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

	"gonum.org/v1/gonum/mathext"
)

// BinomialUpperTail computes P(X >= k) for X ~ Binomial(n, p), using the identity P(X >= k) = I_p(k, n-k+1) with I
// the regularized incomplete beta function.
func BinomialUpperTail(p float64, n, k int) float64 {
	switch {
	case n < 0 || p < 0 || p > 1 || math.IsNaN(p):
		return math.NaN()
	case k <= 0:
		return 1.0
	case k > n:
		return 0.0
	case p == 0:
		return 0.0
	case p == 1:
		return 1.0
	}
	return mathext.RegIncBeta(float64(k), float64(n-k+1), p)
}

// SignTest is a one-sided sign test: the chance of observing at least k successes out of n untied comparisons when
// both outcomes are equally likely.
func SignTest(n, k int) float64 {
	if n == 0 {
		return math.NaN()
	}
	return BinomialUpperTail(0.5, n, k)
}
