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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fitAll fits the risk models of all diseases of a cohort and fails the test on any error.
func fitAll(t *testing.T, c *Cohort) []*RiskModel {
	t.Helper()
	design, err := NewDesign(c)
	require.NoError(t, err)
	models, failed, err := EstimateRisks(c, design, DefaultFitOptions())
	require.NoError(t, err)
	require.Empty(t, failed)
	return models
}

func TestPairIndependentDiseases(t *testing.T) {
	// disease a: subjects 0-49, disease b: subjects 25-74, no covariate effect
	c := makeCohort(100, []string{"age"}, flat, testDisease{"a", span(0, 50)}, testDisease{"b", span(25, 75)})
	models := fitAll(t, c)
	pairs := TestPairs(c, models, DefaultPairOptions())
	require.Len(t, pairs, 1)
	p := pairs[0]
	assert.Equal(t, Tested, p.Status)
	assert.Equal(t, 25, p.Observed)
	assert.InDelta(t, 25.0, p.Expected, 1e-9)
	assert.InDelta(t, 18.75, p.Variance, 1e-9)
	assert.InDelta(t, 0.0, p.Z, 1e-9)
	assert.InDelta(t, 0.5, p.P, 1e-9)
	assert.False(t, p.Positive)
	assert.Equal(t, 1, CorrectPairs(pairs))
	assert.InDelta(t, p.P, p.AdjustedP, 1e-15)
	assert.Empty(t, Promote(pairs, DefaultAlpha))
}

func TestPairOverlappingDiseases(t *testing.T) {
	// disease b only occurs in dogs that also have disease a
	c := makeCohort(100, []string{"age"}, flat, testDisease{"a", span(0, 50)}, testDisease{"b", span(0, 45)})
	models := fitAll(t, c)
	pairs := TestPairs(c, models, DefaultPairOptions())
	require.Len(t, pairs, 1)
	p := pairs[0]
	assert.Equal(t, 45, p.Observed)
	assert.InDelta(t, 22.5, p.Expected, 1e-9)
	assert.InDelta(t, 17.4375, p.Variance, 1e-9)
	assert.InDelta(t, 22.5/math.Sqrt(17.4375), p.Z, 1e-9)
	assert.Less(t, p.P, 1e-6)
	assert.True(t, p.Positive)
	CorrectPairs(pairs)
	promoted := Promote(pairs, DefaultAlpha)
	require.Len(t, promoted, 1)
	assert.Same(t, p, promoted[0])
}

func TestPairZeroVariance(t *testing.T) {
	c := makeCohort(4, []string{"age"}, flat,
		testDisease{"a", []int{0, 1}}, testDisease{"b", []int{0, 2}}, testDisease{"c", []int{1, 3}})
	models := []*RiskModel{
		{Disease: c.Diseases[0], Probabilities: []float64{1, 1, 0, 0}},
		{Disease: c.Diseases[1], Probabilities: []float64{1, 0, 1, 0}},
		{Disease: c.Diseases[2], Probabilities: []float64{0.5, 0.5, 0.5, 0.5}},
	}
	pairs := TestPairs(c, models, PairOptions{MinExpected: 0})
	require.Len(t, pairs, 3)
	ab, ac, bc := pairs[0], pairs[1], pairs[2]
	assert.Equal(t, "a|b", ab.Name())
	assert.Equal(t, ZeroVariance, ab.Status)
	assert.Equal(t, 0.0, ab.Variance)
	assert.True(t, math.IsNaN(ab.P))
	assert.Equal(t, "a|c", ac.Name())
	assert.Equal(t, Tested, ac.Status)
	assert.InDelta(t, 0.5, ac.Variance, 1e-12)
	assert.Equal(t, 1, ac.Observed)
	assert.Equal(t, "b|c", bc.Name())
	for _, p := range pairs {
		assert.GreaterOrEqual(t, p.Variance, 0.0)
	}
	// zero variance pairs are not part of the correction family and never promoted
	assert.Equal(t, 2, CorrectPairs(pairs))
	assert.True(t, math.IsNaN(ab.AdjustedP))
	assert.InDelta(t, math.Min(1, 2*ac.P), ac.AdjustedP, 1e-15)
	for _, p := range Promote(pairs, 1.1) {
		assert.NotEqual(t, ab, p)
	}
}

func TestPromoteOrder(t *testing.T) {
	pairs := []*PairStatistic{
		{ID: 0, Status: Tested, Positive: true, AdjustedP: 0.0005},
		{ID: 1, Status: Tested, Positive: false, AdjustedP: 0.00001},
		{ID: 2, Status: Tested, Positive: true, AdjustedP: 0.0001},
		{ID: 3, Status: Tested, Positive: true, AdjustedP: 0.002},
		{ID: 4, Status: ZeroVariance, Positive: true, AdjustedP: math.NaN()},
		{ID: 5, Status: Tested, Positive: true, AdjustedP: 0.0001},
	}
	promoted := Promote(pairs, 0.001)
	ids := []int{}
	for _, p := range promoted {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int{2, 5, 0}, ids)
}

func TestPairWarnings(t *testing.T) {
	assert.Equal(t, LowExpected, pairWarnings(3, 2.5, 2, 5))
	assert.Equal(t, HighVariance, pairWarnings(3, 12, 4, 5))
	assert.Equal(t, LowExpected|HighVariance, pairWarnings(1, 2, 1.5, 5))
	assert.Equal(t, ValidityWarning(0), pairWarnings(0, 12, 4, 5))
	assert.Equal(t, "low-expected,high-variance", (LowExpected | HighVariance).String())
	assert.Equal(t, "", ValidityWarning(0).String())
}

func TestLowExpectedPairsAreSimulated(t *testing.T) {
	c := makeCohort(200, []string{"age"}, flat, testDisease{"a", span(0, 10)}, testDisease{"b", span(5, 15)})
	models := fitAll(t, c)
	opts := PairOptions{MinExpected: DefaultMinExpected, SimulationIterations: 500, Seed: 42}
	pairs := TestPairs(c, models, opts)
	require.Len(t, pairs, 1)
	p := pairs[0]
	assert.Equal(t, LowExpected, p.Warnings&LowExpected)
	assert.False(t, math.IsNaN(p.EmpiricalP))
	assert.Greater(t, p.EmpiricalP, 0.0)
	assert.Less(t, p.EmpiricalP, 0.05)
	again := TestPairs(c, models, opts)
	assert.Equal(t, p.EmpiricalP, again[0].EmpiricalP)
	unsimulated := TestPairs(c, models, PairOptions{MinExpected: DefaultMinExpected})
	assert.True(t, math.IsNaN(unsimulated[0].EmpiricalP))
}

func TestSimulateCoOccurrence(t *testing.T) {
	q := make([]float64, 100)
	for i := range q {
		q[i] = 0.01
	}
	assert.Equal(t, 1.0, SimulateCoOccurrence(q, 0, 200, 3))
	assert.InDelta(t, 1.0/201.0, SimulateCoOccurrence(q, 12, 200, 3), 1e-12)
	p1 := SimulateCoOccurrence(q, 2, 1000, 11)
	p2 := SimulateCoOccurrence(q, 2, 1000, 11)
	assert.Equal(t, p1, p2)
	// P(X >= 2) for X ~ Binomial(100, 0.01) is about 0.264
	assert.InDelta(t, 0.264, p1, 0.05)
	certain := []float64{1, 1, 0, 0}
	assert.Equal(t, 1.0, SimulateCoOccurrence(certain, 2, 10, 5))
	assert.InDelta(t, 1.0/11.0, SimulateCoOccurrence(certain, 3, 10, 5), 1e-12)
}

func TestPairSeed(t *testing.T) {
	seen := map[uint32]bool{}
	for id := 0; id < 1000; id++ {
		s := PairSeed(7, id)
		assert.NotZero(t, s)
		seen[s] = true
	}
	assert.Len(t, seen, 1000)
	assert.Equal(t, PairSeed(7, 3), PairSeed(7, 3))
	assert.NotEqual(t, PairSeed(7, 3), PairSeed(8, 3))
}

func TestNofPairs(t *testing.T) {
	assert.Equal(t, 0, NofPairs(1))
	assert.Equal(t, 10, NofPairs(5))
	assert.Equal(t, [][2]int{{0, 1}, {0, 2}, {1, 2}}, enumeratePairs(3))
}
