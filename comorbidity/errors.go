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
	"errors"
	"fmt"
)

var (
	// ErrZeroProbabilityMass is fatal: the predicted probabilities of a disease sum to zero and cannot be rescaled.
	ErrZeroProbabilityMass = errors.New("predicted probabilities sum to zero")
	// ErrNoDiseases is fatal: no disease is left to analyse.
	ErrNoDiseases = errors.New("no diseases left to analyse")

	ErrDegenerateOutcome = errors.New("outcome has no variation")
	ErrNotConverged      = errors.New("logistic regression did not converge")
	ErrSingularDesign    = errors.New("information matrix is not positive definite")
	ErrSeparation        = errors.New("fitted probabilities numerically 0 or 1")
)

// FitError reports that the risk model of one disease could not be estimated. The disease is left out of all
// downstream tables, the other diseases are unaffected.
type FitError struct {
	Disease string
	Err     error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("risk model for disease %s: %v", e.Disease, e.Err)
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// Stages, as reported in the table of excluded units.
const (
	StageLoad     = "load"
	StageRisk     = "risk"
	StagePair     = "pair"
	StageTemporal = "temporal"
)

// ExcludedUnit records a disease, pair, or directed pair that was left out of the results, and why.
type ExcludedUnit struct {
	Stage  string
	Unit   string
	Reason string
}
