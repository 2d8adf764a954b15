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
	"fmt"
	"math"
	"sort"

	"github.com/exascience/pargo/parallel"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"pbc/utils"
)

// Pairwise comorbidity tests: for every pair of diseases, the number of subjects with both diseases is compared with
// its distribution under conditional independence given the risk models. That distribution is a Poisson binomial:
// a sum of independent Bernoulli variables, one per subject, with success probability p_1 * p_2.

// Status tells whether a test produced a statistic.
type Status int

const (
	Tested       Status = iota
	ZeroVariance        //the null distribution is degenerate, no statistic
)

func (s Status) String() string {
	switch s {
	case Tested:
		return "tested"
	case ZeroVariance:
		return "zero-variance"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// DefaultAlpha is the significance threshold for Bonferroni adjusted pair p-values.
const DefaultAlpha = 0.001

// PairOptions controls the pair tests.
type PairOptions struct {
	MinExpected          float64 //pairs with a smaller expected count get a LowExpected warning
	SimulationIterations int     //Monte Carlo draws for LowExpected pairs, 0 disables simulation
	Seed                 uint32
}

// DefaultPairOptions returns the default pair options.
func DefaultPairOptions() PairOptions {
	return PairOptions{MinExpected: DefaultMinExpected, SimulationIterations: DefaultSimulationIterations, Seed: 1}
}

// PairStatistic holds the test of one unordered disease pair.
type PairStatistic struct {
	ID            int //enumeration index of the pair
	First, Second *RiskModel
	Observed      int
	Expected      float64
	Variance      float64
	Z             float64
	P             float64 //one-sided, upper tail
	AdjustedP     float64 //Bonferroni adjusted p-value, filled in by CorrectPairs
	Positive      bool    //observed > expected
	Status        Status
	Warnings      ValidityWarning
	EmpiricalP    float64 //Monte Carlo p-value, NaN when not simulated
}

// Name returns a printable identifier for the pair.
func (p *PairStatistic) Name() string {
	return fmt.Sprintf("%s|%s", p.First.Disease.Code, p.Second.Disease.Code)
}

// NofPairs returns the number of unordered pairs of k diseases.
func NofPairs(k int) int {
	return k * (k - 1) / 2
}

// enumeratePairs lists all index pairs i < j of k diseases in lexicographic order.
func enumeratePairs(k int) [][2]int {
	pairs := make([][2]int, 0, NofPairs(k))
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

// testPair computes the statistic of one pair. q is scratch space for the per-subject joint probabilities.
func testPair(c *Cohort, first, second *RiskModel, q []float64, opts PairOptions) *PairStatistic {
	stat := &PairStatistic{
		First:      first,
		Second:     second,
		Observed:   c.Occurrences[first.Disease.DID].AndCount(c.Occurrences[second.Disease.DID]),
		AdjustedP:  math.NaN(),
		EmpiricalP: math.NaN(),
	}
	floats.MulTo(q, first.Probabilities, second.Probabilities)
	stat.Expected = floats.Sum(q)
	variance := 0.0
	for _, x := range q {
		variance += x * (1 - x)
	}
	stat.Variance = variance
	stat.Positive = float64(stat.Observed) > stat.Expected
	if variance == 0 {
		stat.Status = ZeroVariance
		stat.Z, stat.P = math.NaN(), math.NaN()
		return stat
	}
	stat.Z = utils.ZScore(float64(stat.Observed), stat.Expected, variance)
	stat.P = utils.UpperTailP(stat.Z)
	stat.Warnings = pairWarnings(stat.Observed, stat.Expected, variance, opts.MinExpected)
	return stat
}

// TestPairs tests all unordered pairs of the given risk models, in parallel. The result is in enumeration order:
// (0,1), (0,2), ..., (1,2), ...
func TestPairs(c *Cohort, models []*RiskModel, opts PairOptions) []*PairStatistic {
	indices := enumeratePairs(len(models))
	log.Info("Testing ", len(indices), " disease pairs...")
	result := make([]*PairStatistic, len(indices))
	n := c.NofSubjects()
	parallel.Range(0, len(indices), 0, func(low, high int) {
		q := make([]float64, n)
		for id := low; id < high; id++ {
			first, second := models[indices[id][0]], models[indices[id][1]]
			stat := testPair(c, first, second, q, opts)
			stat.ID = id
			if stat.Warnings&LowExpected != 0 && opts.SimulationIterations > 0 {
				stat.EmpiricalP = SimulateCoOccurrence(q, stat.Observed, opts.SimulationIterations,
					PairSeed(opts.Seed, id))
			}
			result[id] = stat
		}
	})
	return result
}

// CorrectPairs adjusts the p-values of all tested pairs as one Bonferroni family. Pairs without a statistic are not
// part of the family. It returns the size of the family.
func CorrectPairs(pairs []*PairStatistic) int {
	var tested []*PairStatistic
	var pvalues []float64
	for _, p := range pairs {
		if p.Status == Tested {
			tested = append(tested, p)
			pvalues = append(pvalues, p.P)
		}
	}
	adjusted := utils.Bonferroni(pvalues)
	for i, p := range tested {
		p.AdjustedP = adjusted[i]
	}
	return len(pvalues)
}

// Promote selects the pairs with an adjusted p-value below alpha and a positive deviation, sorted ascending by
// adjusted p-value. Ties keep their enumeration order.
func Promote(pairs []*PairStatistic, alpha float64) []*PairStatistic {
	promoted := []*PairStatistic{}
	for _, p := range pairs {
		if p.Status == Tested && p.Positive && p.AdjustedP < alpha {
			promoted = append(promoted, p)
		}
	}
	sort.SliceStable(promoted, func(i, j int) bool {
		return promoted[i].AdjustedP < promoted[j].AdjustedP
	})
	log.Info("Promoted ", len(promoted), " of ", len(pairs), " pairs at alpha ", alpha)
	return promoted
}
