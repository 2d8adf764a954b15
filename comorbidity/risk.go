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
	"math"

	"github.com/exascience/pargo/parallel"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"pbc/utils"
)

// Risk models: one logistic regression per disease on the covariates of the cohort.

// InterceptTerm is the name of the intercept in coefficient tables.
const InterceptTerm = "(Intercept)"

const (
	DefaultMaxIterations = 25
	DefaultTolerance     = 1e-8
	// maxLinearPredictor bounds the linear predictor of a fit. Beyond it a fitted probability is numerically 0 or 1,
	// which only happens when the covariates (quasi-)separate cases from non-cases.
	maxLinearPredictor = 30.0
)

// FitOptions controls the iteratively reweighted least squares fit.
type FitOptions struct {
	MaxIterations int
	Tolerance     float64 //convergence when the largest coefficient update is smaller
}

// DefaultFitOptions returns the default fit options.
func DefaultFitOptions() FitOptions {
	return FitOptions{MaxIterations: DefaultMaxIterations, Tolerance: DefaultTolerance}
}

// Design is the model matrix shared by all diseases: an intercept column followed by the non-constant covariates.
type Design struct {
	X       *mat.Dense
	Terms   []string //term name per column of X
	Columns []int    //covariate index in the cohort per column of X, -1 for the intercept
	Dropped []string //covariates left out because they are constant or aliased with other terms
}

// aliasTolerance is the relative residual norm below which a covariate column is taken to be a linear combination
// of the columns before it.
const aliasTolerance = 1e-9

// residual returns the component of column orthogonal to the orthonormal basis.
func residual(column []float64, basis [][]float64) []float64 {
	r := append([]float64(nil), column...)
	for _, q := range basis {
		floats.AddScaled(r, -floats.Dot(q, r), q)
	}
	return r
}

// NewDesign builds the model matrix of a cohort. Constant covariates are aliased with the intercept and are left out.
// So are covariates that are a linear combination of the intercept and the covariates kept before them, for example
// the last indicator of a categorical variable once a stratum fixes the others. The fit of every disease would fail
// on such a design.
func NewDesign(c *Cohort) (*Design, error) {
	n := c.NofSubjects()
	if n == 0 {
		return nil, errors.New("cannot build a model matrix for an empty cohort")
	}
	design := &Design{Terms: []string{InterceptTerm}, Columns: []int{-1}}
	intercept := make([]float64, n)
	for i := range intercept {
		intercept[i] = 1 / math.Sqrt(float64(n))
	}
	basis := [][]float64{intercept}
	var columns [][]float64
	for j, name := range c.CovariateNames {
		column := c.Covariate(j)
		if floats.Min(column) == floats.Max(column) {
			log.WithFields(log.Fields{"covariate": name, "value": column[0]}).
				Warn("covariate is constant in this cohort, dropped from the risk models")
			design.Dropped = append(design.Dropped, name)
			continue
		}
		r := residual(column, basis)
		norm := floats.Norm(r, 2)
		if norm <= aliasTolerance*floats.Norm(column, 2) {
			log.WithFields(log.Fields{"covariate": name, "terms": design.Terms}).
				Warn("covariate is a linear combination of other terms in this cohort, dropped from the risk models")
			design.Dropped = append(design.Dropped, name)
			continue
		}
		floats.Scale(1/norm, r)
		basis = append(basis, r)
		design.Terms = append(design.Terms, name)
		design.Columns = append(design.Columns, j)
		columns = append(columns, column)
	}
	design.X = mat.NewDense(n, len(design.Terms), nil)
	for i := 0; i < n; i++ {
		design.X.Set(i, 0, 1)
		for j, column := range columns {
			design.X.Set(i, j+1, column[i])
		}
	}
	return design, nil
}

// Coefficient is one row of the coefficient table of a risk model.
type Coefficient struct {
	Term      string
	Estimate  float64
	StdError  float64
	Z         float64
	P         float64 //two-sided Wald p-value
	AdjustedP float64 //Benjamini-Hochberg adjusted p-value, NaN for the intercept
	Warning   string
}

// RiskModel is the fitted risk model of one disease. It is the single source of both the coefficient table and the
// probability vector of that disease.
type RiskModel struct {
	Disease       *Disease
	Coefficients  []*Coefficient
	Probabilities []float64 //per subject, the rescaled probability of having the disease
	ScalingFactor float64   //observed count / sum of the raw probabilities
	Observed      int
	Iterations    int
	Capped        int //nr of probabilities that exceeded 1 after rescaling
}

// logisticFit is the result of fitLogistic.
type logisticFit struct {
	beta       []float64
	cov        *mat.SymDense
	eta        []float64
	iterations int
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// fitLogistic fits a logistic regression of y on x with Newton-Raphson, which for the logit link coincides with
// iteratively reweighted least squares. Every iteration solves (X'WX) step = X'(y - mu) with a Cholesky
// factorization. The inverse of the last information matrix is the covariance of the estimates.
func fitLogistic(x *mat.Dense, y []float64, opts FitOptions) (*logisticFit, error) {
	n, k := x.Dims()
	ybar := floats.Sum(y) / float64(n)
	if ybar <= 0 || ybar >= 1 {
		return nil, ErrDegenerateOutcome
	}
	beta := mat.NewVecDense(k, nil)
	beta.SetVec(0, math.Log(ybar/(1-ybar)))
	eta := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	sw := make([]float64, n)
	xw := mat.NewDense(n, k, nil)
	var (
		info       mat.SymDense
		grad, step mat.VecDense
		chol       mat.Cholesky
	)
	for iter := 1; iter <= opts.MaxIterations; iter++ {
		eta.MulVec(x, beta)
		for i := 0; i < n; i++ {
			e := eta.AtVec(i)
			if math.Abs(e) > maxLinearPredictor {
				return nil, ErrSeparation
			}
			mu := sigmoid(e)
			resid.SetVec(i, y[i]-mu)
			sw[i] = math.Sqrt(mu * (1 - mu))
		}
		xw.Apply(func(i, j int, v float64) float64 { return v * sw[i] }, x)
		info.SymOuterK(1, xw.T())
		if ok := chol.Factorize(&info); !ok {
			return nil, ErrSingularDesign
		}
		grad.MulVec(x.T(), resid)
		if err := chol.SolveVecTo(&step, &grad); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSingularDesign, err)
		}
		beta.AddVec(beta, &step)
		if mat.Norm(&step, math.Inf(1)) < opts.Tolerance {
			cov := mat.NewSymDense(k, nil)
			if err := chol.InverseTo(cov); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSingularDesign, err)
			}
			eta.MulVec(x, beta)
			fit := &logisticFit{
				beta:       make([]float64, k),
				cov:        cov,
				eta:        make([]float64, n),
				iterations: iter,
			}
			for j := 0; j < k; j++ {
				fit.beta[j] = beta.AtVec(j)
			}
			for i := 0; i < n; i++ {
				fit.eta[i] = eta.AtVec(i)
				if math.Abs(fit.eta[i]) > maxLinearPredictor {
					return nil, ErrSeparation
				}
			}
			return fit, nil
		}
	}
	return nil, ErrNotConverged
}

// scaleProbabilities multiplies the raw probabilities by count / sum(raw), so that they sum to the observed count.
// Rescaled values above 1 are capped, and the mass removed by the cap is spread over the other subjects in proportion
// to their probabilities, so the sum still matches the count. It returns the scaled probabilities, the scaling factor
// of the first pass, and the number of capped values.
func scaleProbabilities(raw []float64, count int) ([]float64, float64, int, error) {
	total := floats.Sum(raw)
	if total == 0 || math.IsNaN(total) {
		return nil, 0, 0, ErrZeroProbabilityMass
	}
	factor := float64(count) / total
	scaled := make([]float64, len(raw))
	floats.ScaleTo(scaled, factor, raw)
	isCapped := make([]bool, len(raw))
	capped := 0
	for {
		newlyCapped := 0
		var free float64
		for i, q := range scaled {
			switch {
			case isCapped[i]:
			case q > 1:
				scaled[i], isCapped[i] = 1, true
				newlyCapped++
			default:
				free += q
			}
		}
		capped += newlyCapped
		if newlyCapped == 0 || free == 0 {
			break
		}
		f := float64(count-capped) / free
		for i := range scaled {
			if !isCapped[i] {
				scaled[i] *= f
			}
		}
	}
	return scaled, factor, capped, nil
}

// EstimateRisk fits the risk model of disease did. Estimation failures are returned as a *FitError, a zero
// probability mass is returned as ErrZeroProbabilityMass.
func EstimateRisk(c *Cohort, design *Design, did int, opts FitOptions) (*RiskModel, error) {
	disease := c.Diseases[did]
	count := c.Prevalence(did)
	if count == 0 || count == c.NofSubjects() {
		return nil, &FitError{Disease: disease.Code, Err: ErrDegenerateOutcome}
	}
	y := c.Outcome(did)
	fit, err := fitLogistic(design.X, y, opts)
	if err != nil {
		return nil, &FitError{Disease: disease.Code, Err: err}
	}
	model := &RiskModel{
		Disease:      disease,
		Coefficients: make([]*Coefficient, len(design.Terms)),
		Observed:     count,
		Iterations:   fit.iterations,
	}
	for j, term := range design.Terms {
		se := math.Sqrt(fit.cov.At(j, j))
		z := fit.beta[j] / se
		model.Coefficients[j] = &Coefficient{
			Term:      term,
			Estimate:  fit.beta[j],
			StdError:  se,
			Z:         z,
			P:         utils.TwoSidedP(z),
			AdjustedP: math.NaN(),
		}
	}
	for j, warning := range covariateWarnings(design, y) {
		model.Coefficients[j].Warning = warning
	}
	raw := make([]float64, len(fit.eta))
	for i, e := range fit.eta {
		raw[i] = sigmoid(e)
	}
	scaled, factor, capped, err := scaleProbabilities(raw, count)
	if err != nil {
		return nil, fmt.Errorf("disease %s: %w", disease.Code, err)
	}
	model.Probabilities, model.ScalingFactor, model.Capped = scaled, factor, capped
	if capped > 0 {
		log.WithFields(log.Fields{"disease": disease.Code, "capped": capped}).
			Warn("rescaled probabilities exceeded 1 and were capped")
	}
	return model, nil
}

// EstimateRisks fits the risk models of all diseases of a cohort in parallel. It returns the fitted models in disease
// order and the per-disease failures. A zero probability mass for any disease aborts the estimation.
func EstimateRisks(c *Cohort, design *Design, opts FitOptions) ([]*RiskModel, []*FitError, error) {
	log.Info("Estimating risk models for ", len(c.Diseases), " diseases with terms: ", design.Terms)
	models := make([]*RiskModel, len(c.Diseases))
	errs := make([]error, len(c.Diseases))
	parallel.Range(0, len(c.Diseases), 0, func(low, high int) {
		for did := low; did < high; did++ {
			models[did], errs[did] = EstimateRisk(c, design, did, opts)
		}
	})
	fitted := []*RiskModel{}
	failed := []*FitError{}
	for did, err := range errs {
		if err == nil {
			fitted = append(fitted, models[did])
			continue
		}
		var fitErr *FitError
		if errors.As(err, &fitErr) {
			log.WithFields(log.Fields{"disease": fitErr.Disease}).Warn(fitErr.Err)
			failed = append(failed, fitErr)
			continue
		}
		return nil, nil, err
	}
	log.Info("Fitted ", len(fitted), " risk models, ", len(failed), " failed.")
	return fitted, failed, nil
}

// CorrectCoefficients adjusts the p-values of all non-intercept coefficients of all models as one Benjamini-Hochberg
// family. It returns the size of the family.
func CorrectCoefficients(models []*RiskModel) int {
	var coefficients []*Coefficient
	var pvalues []float64
	for _, m := range models {
		for _, coeff := range m.Coefficients {
			if coeff.Term == InterceptTerm || math.IsNaN(coeff.P) {
				continue
			}
			coefficients = append(coefficients, coeff)
			pvalues = append(pvalues, coeff.P)
		}
	}
	adjusted := utils.BenjaminiHochberg(pvalues)
	for i, coeff := range coefficients {
		coeff.AdjustedP = adjusted[i]
	}
	return len(pvalues)
}
