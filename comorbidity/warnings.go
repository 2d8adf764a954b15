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

import (
	"math"
	"strings"

	"github.com/montanaflynn/stats"
)

// Statistical validity warnings. They never block a result, they are reported next to it.

// ValidityWarning is a set of warnings attached to a pair test.
type ValidityWarning uint8

const (
	LowExpected  ValidityWarning = 1 << iota //expected count below the minimum for the normal approximation
	HighVariance                             //variance larger than the observed count
)

// DefaultMinExpected is the expected count below which the normal approximation of a pair test is flagged.
const DefaultMinExpected = 5.0

func (w ValidityWarning) String() string {
	var names []string
	if w&LowExpected != 0 {
		names = append(names, "low-expected")
	}
	if w&HighVariance != 0 {
		names = append(names, "high-variance")
	}
	return strings.Join(names, ",")
}

// pairWarnings collects the validity warnings for a pair with the given statistics.
func pairWarnings(observed int, expected, variance, minExpected float64) ValidityWarning {
	var w ValidityWarning
	if expected < minExpected {
		w |= LowExpected
	}
	if observed > 0 && variance > float64(observed) {
		w |= HighVariance
	}
	return w
}

const (
	// indicator covariates with a prevalence among cases outside [minCaseProportion, 1-minCaseProportion]
	minCaseProportion = 0.01
	// continuous covariates with an absolute standardized mean difference above maxStandardizedDifference
	maxStandardizedDifference = 1.0
)

// isIndicator tells whether a column only holds 0/1 values.
func isIndicator(column []float64) bool {
	for _, v := range column {
		if v != 0 && v != 1 {
			return false
		}
	}
	return true
}

// covariateWarnings checks every covariate of a design for extreme imbalance between cases (y == 1) and non-cases.
// It returns a warning per term index of the design.
func covariateWarnings(design *Design, y []float64) map[int]string {
	warnings := map[int]string{}
	n, k := design.X.Dims()
	for j := 1; j < k; j++ {
		var cases, controls stats.Float64Data
		column := make([]float64, n)
		for i := 0; i < n; i++ {
			v := design.X.At(i, j)
			column[i] = v
			if y[i] == 1 {
				cases = append(cases, v)
			} else {
				controls = append(controls, v)
			}
		}
		if len(cases) < 2 || len(controls) < 2 {
			continue
		}
		caseMean, _ := stats.Mean(cases)
		if isIndicator(column) {
			if caseMean < minCaseProportion || caseMean > 1-minCaseProportion {
				warnings[j] = "imbalance"
			}
			continue
		}
		controlMean, _ := stats.Mean(controls)
		caseVar, _ := stats.SampleVariance(cases)
		controlVar, _ := stats.SampleVariance(controls)
		pooled := math.Sqrt((caseVar + controlVar) / 2)
		if pooled == 0 {
			if caseMean != controlMean {
				warnings[j] = "imbalance"
			}
			continue
		}
		if math.Abs(caseMean-controlMean)/pooled > maxStandardizedDifference {
			warnings[j] = "imbalance"
		}
	}
	return warnings
}
