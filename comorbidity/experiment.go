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
	log "github.com/sirupsen/logrus"
)

// Options collects the parameters of all stages of an experiment.
type Options struct {
	Fit           FitOptions
	Pairs         PairOptions
	Alpha         float64 //threshold for promoting pairs
	DirectedAlpha float64 //threshold for significant directions
	Windows       []int   //window sizes in months, no temporal tests when empty
}

// DefaultOptions returns the default experiment options.
func DefaultOptions() Options {
	return Options{
		Fit:           DefaultFitOptions(),
		Pairs:         DefaultPairOptions(),
		Alpha:         DefaultAlpha,
		DirectedAlpha: DefaultDirectedAlpha,
		Windows:       append([]int(nil), DefaultWindows...),
	}
}

// Experiment contains the inputs and outputs of a comorbidity analysis of one cohort. Every stage only reads the
// results of the previous stages.
type Experiment struct {
	Name     string
	Cohort   *Cohort
	Design   *Design
	Models   []*RiskModel             //fitted risk models, in disease order
	Pairs    []*PairStatistic         //all tested pairs, in enumeration order
	Promoted []*PairStatistic         //promoted pairs, ascending by adjusted p-value
	Directed []*DirectedPairStatistic //directed tests of the promoted pairs
	Skipped  []*PairStatistic         //promoted pairs without dated co-occurrences
	Excluded []ExcludedUnit
	// sizes of the correction families
	NofCoefficientTests, NofPairTests, NofDirectedTests int
}

// NewExperiment creates an experiment for a cohort.
func NewExperiment(name string, cohort *Cohort) *Experiment {
	return &Experiment{Name: name, Cohort: cohort}
}

// Exclude records a unit that is left out of the results.
func (exp *Experiment) Exclude(stage, unit, reason string) {
	exp.Excluded = append(exp.Excluded, ExcludedUnit{Stage: stage, Unit: unit, Reason: reason})
}

// EstimateRisks builds the model matrix and fits the risk model of every disease. Diseases whose model fails are
// excluded. It fails when no disease is left or when a probability mass is zero.
func (exp *Experiment) EstimateRisks(opts FitOptions) error {
	design, err := NewDesign(exp.Cohort)
	if err != nil {
		return err
	}
	exp.Design = design
	models, failed, err := EstimateRisks(exp.Cohort, design, opts)
	if err != nil {
		return err
	}
	for _, f := range failed {
		exp.Exclude(StageRisk, f.Disease, f.Err.Error())
	}
	if len(models) == 0 {
		return ErrNoDiseases
	}
	exp.Models = models
	exp.NofCoefficientTests = CorrectCoefficients(models)
	return nil
}

// TestPairs tests and corrects all pairs of fitted diseases, then promotes the significant positive pairs.
func (exp *Experiment) TestPairs(opts PairOptions, alpha float64) {
	exp.Pairs = TestPairs(exp.Cohort, exp.Models, opts)
	for _, p := range exp.Pairs {
		if p.Status != Tested {
			exp.Exclude(StagePair, p.Name(), p.Status.String())
		}
	}
	exp.NofPairTests = CorrectPairs(exp.Pairs)
	exp.Promoted = Promote(exp.Pairs, alpha)
}

// TestDirections runs and corrects the directed tests of the promoted pairs.
func (exp *Experiment) TestDirections(windows []int, alpha float64) {
	exp.Directed, exp.Skipped = TestDirections(exp.Cohort, exp.Promoted, windows)
	for _, p := range exp.Skipped {
		exp.Exclude(StageTemporal, p.Name(), "no subjects with valid diagnosis dates for both diseases")
	}
	for _, d := range exp.Directed {
		if d.Status != Tested {
			exp.Exclude(StageTemporal, d.Name(), d.Status.String())
		}
	}
	exp.NofDirectedTests = CorrectDirections(exp.Directed, alpha)
}

// Run executes all stages of the experiment in order.
func (exp *Experiment) Run(opts Options) error {
	log.Info("Running experiment ", exp.Name)
	PrintCohort(exp.Cohort, 20)
	if err := exp.EstimateRisks(opts.Fit); err != nil {
		return err
	}
	exp.TestPairs(opts.Pairs, opts.Alpha)
	if len(opts.Windows) > 0 {
		exp.TestDirections(opts.Windows, opts.DirectedAlpha)
	}
	return nil
}
