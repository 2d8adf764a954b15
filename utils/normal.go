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

	"gonum.org/v1/gonum/stat/distuv"
)

// UpperTailP returns 1 - Phi(z) for the standard normal distribution. The survival function is used instead of
// subtracting the CDF from 1 so that tiny p-values for large z are not rounded to zero.
func UpperTailP(z float64) float64 {
	return distuv.UnitNormal.Survival(z)
}

// TwoSidedP returns the two-sided p-value 2 * (1 - Phi(|z|)) of a Wald statistic.
func TwoSidedP(z float64) float64 {
	return math.Min(1.0, 2*distuv.UnitNormal.Survival(math.Abs(z)))
}

// ZScore standardizes an observed value against its expectation and variance. A non-positive variance yields NaN.
func ZScore(observed, expected, variance float64) float64 {
	if !(variance > 0) {
		return math.NaN()
	}
	return (observed - expected) / math.Sqrt(variance)
}
