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

	"github.com/exascience/pargo/parallel"
	log "github.com/sirupsen/logrus"
	"pbc/utils"
)

// Temporal directionality of promoted pairs. For a pair (A, B), every subject with both diseases and known diagnosis
// dates contributes a vote for the disease diagnosed first. Votes are weighted down when the diagnoses lie further
// apart than a window, and compared with the votes expected from the risk models.

// DefaultDirectedAlpha is the significance threshold for Bonferroni adjusted directed p-values.
const DefaultDirectedAlpha = 0.01

// DefaultWindows are the default window sizes in months.
var DefaultWindows = []int{6, 12, 24}

// WindowWeight returns the weight of a vote for two diagnoses that lie months apart: 1 within the window, and
// (w/d)(2 - w/d) beyond it, which decreases towards 0 for large gaps.
func WindowWeight(months, window int) float64 {
	if months <= window {
		return 1.0
	}
	r := float64(window) / float64(months)
	return r * (2 - r)
}

// DirectedPairStatistic holds the test that Source tends to be diagnosed before Target, for one window size.
type DirectedPairStatistic struct {
	Pair        *PairStatistic
	Source      *RiskModel
	Target      *RiskModel
	Window      int
	Subjects    int     //subjects with both diseases and valid dates for both
	Expected    float64 //sum of weighted probabilities that Source comes first
	Observed    float64 //weighted count of subjects with Source first
	Variance    float64
	Z           float64
	P           float64 //one-sided, upper tail
	AdjustedP   float64 //Bonferroni adjusted over both directions of all pairs with the same window
	Significant bool
	Status      Status
	First       int     //unweighted count of subjects with Source strictly first
	Untied      int     //unweighted count of subjects without a tie
	SignTestP   float64 //sign test on the unweighted counts, ties excluded
}

// Name returns a printable identifier for the directed pair.
func (d *DirectedPairStatistic) Name() string {
	return fmt.Sprintf("%s->%s@%d", d.Source.Disease.Code, d.Target.Disease.Code, d.Window)
}

// vote is the contribution of one subject to the directed tests of a pair.
type vote struct {
	qA     float64 //p_A / (p_A + p_B)
	months int
	aFirst bool //ties count for A
	tie    bool
}

// collectVotes gathers the votes of the subjects that have both diseases of a pair with valid diagnosis dates. It
// returns the votes and the number of eligible subjects.
func collectVotes(c *Cohort, a, b *RiskModel) ([]vote, int) {
	didA, didB := a.Disease.DID, b.Disease.DID
	if c.Dates[didA] == nil || c.Dates[didB] == nil {
		return nil, 0
	}
	votes := []vote{}
	eligible := 0
	for _, sid := range c.Occurrences[didA].And(c.Occurrences[didB]) {
		dateA, dateB := c.Dates[didA][sid], c.Dates[didB][sid]
		if !dateA.Valid() || !dateB.Valid() {
			continue
		}
		eligible++
		pA, pB := a.Probabilities[sid], b.Probabilities[sid]
		if pA+pB == 0 {
			continue
		}
		votes = append(votes, vote{
			qA:     pA / (pA + pB),
			months: MonthsBetween(dateA, dateB),
			aFirst: !DiagnosisDateSmallerThan(dateB, dateA),
			tie:    dateA == dateB,
		})
	}
	return votes, eligible
}

// testDirection computes the directed statistic from the accumulated sums.
func testDirection(d *DirectedPairStatistic) {
	d.AdjustedP = math.NaN()
	if d.Variance == 0 {
		d.Status = ZeroVariance
		d.Z, d.P = math.NaN(), math.NaN()
		return
	}
	d.Z = utils.ZScore(d.Observed, d.Expected, d.Variance)
	d.P = utils.UpperTailP(d.Z)
}

// testDirections tests both directions of a pair for every window. The result holds, per window, the test of
// First->Second followed by the test of Second->First.
func testDirections(pair *PairStatistic, votes []vote, eligible int, windows []int) []*DirectedPairStatistic {
	aFirst, bFirst := 0, 0
	for _, v := range votes {
		switch {
		case v.tie:
		case v.aFirst:
			aFirst++
		default:
			bFirst++
		}
	}
	untied := aFirst + bFirst
	result := make([]*DirectedPairStatistic, 0, 2*len(windows))
	for _, window := range windows {
		ab := &DirectedPairStatistic{Pair: pair, Source: pair.First, Target: pair.Second, Window: window,
			Subjects: eligible, First: aFirst, Untied: untied, SignTestP: utils.SignTest(untied, aFirst)}
		ba := &DirectedPairStatistic{Pair: pair, Source: pair.Second, Target: pair.First, Window: window,
			Subjects: eligible, First: bFirst, Untied: untied, SignTestP: utils.SignTest(untied, bFirst)}
		for _, v := range votes {
			w := WindowWeight(v.months, window)
			eA := v.qA * w
			eB := (1 - v.qA) * w
			ab.Expected += eA
			ab.Variance += eA * (1 - eA)
			ba.Expected += eB
			ba.Variance += eB * (1 - eB)
			if v.aFirst {
				ab.Observed += w
			} else {
				ba.Observed += w
			}
		}
		testDirection(ab)
		testDirection(ba)
		result = append(result, ab, ba)
	}
	return result
}

// TestDirections runs the directed tests for the promoted pairs, in parallel. Pairs without any subject that has
// valid diagnosis dates for both diseases are not tested and are returned separately.
func TestDirections(c *Cohort, promoted []*PairStatistic, windows []int) ([]*DirectedPairStatistic, []*PairStatistic) {
	log.Info("Testing temporal direction of ", len(promoted), " promoted pairs for windows ", windows)
	perPair := make([][]*DirectedPairStatistic, len(promoted))
	parallel.Range(0, len(promoted), 0, func(low, high int) {
		for i := low; i < high; i++ {
			pair := promoted[i]
			votes, eligible := collectVotes(c, pair.First, pair.Second)
			if eligible == 0 {
				continue
			}
			perPair[i] = testDirections(pair, votes, eligible, windows)
		}
	})
	directed := []*DirectedPairStatistic{}
	skipped := []*PairStatistic{}
	for i, ds := range perPair {
		if ds == nil {
			log.WithFields(log.Fields{"pair": promoted[i].Name()}).
				Warn("no subjects with valid diagnosis dates for both diseases, temporal test skipped")
			skipped = append(skipped, promoted[i])
			continue
		}
		directed = append(directed, ds...)
	}
	return directed, skipped
}

// CorrectDirections adjusts the directed p-values with Bonferroni, one family per window size pooling both directions
// of all pairs, and marks the directions with an adjusted p-value below alpha as significant.
func CorrectDirections(directed []*DirectedPairStatistic, alpha float64) int {
	families := map[int][]*DirectedPairStatistic{}
	var windows []int
	for _, d := range directed {
		if d.Status != Tested {
			continue
		}
		if _, ok := families[d.Window]; !ok {
			windows = append(windows, d.Window)
		}
		families[d.Window] = append(families[d.Window], d)
	}
	total := 0
	for _, window := range windows {
		family := families[window]
		pvalues := make([]float64, len(family))
		for i, d := range family {
			pvalues[i] = d.P
		}
		adjusted := utils.Bonferroni(pvalues)
		for i, d := range family {
			d.AdjustedP = adjusted[i]
			d.Significant = adjusted[i] < alpha
		}
		total += len(family)
	}
	return total
}
