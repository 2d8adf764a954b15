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

// Subject represents one individual of the cohort.
type Subject struct {
	SID        int               //analysis ID, index of the subject in its cohort
	SIDString  string            //ID from the input table
	Covariates []float64         //covariate values, aligned with Cohort.CovariateNames
	Attributes map[string]string //raw values of the non-disease columns, used by the analysis selectors
}

// DiagnosisDate represents the month in which a diagnosis was made. A zero year or a month outside 1-12 marks a
// missing date.
type DiagnosisDate struct {
	Year, Month int
}

// Valid tells whether both the year and the month of a diagnosis date are known.
func (d DiagnosisDate) Valid() bool {
	return d.Year > 0 && d.Month >= 1 && d.Month <= 12
}

// monthIndex converts a diagnosis date to a number of months since year 0.
func (d DiagnosisDate) monthIndex() int {
	return d.Year*12 + d.Month
}

// DiagnosisDateSmallerThan compares diagnosis dates lexicographically on (year, month).
func DiagnosisDateSmallerThan(d1, d2 DiagnosisDate) bool {
	if d1.Year != d2.Year {
		return d1.Year < d2.Year
	}
	return d1.Month < d2.Month
}

// MonthsBetween returns the absolute number of months between two diagnosis dates.
func MonthsBetween(d1, d2 DiagnosisDate) int {
	d := d2.monthIndex() - d1.monthIndex()
	if d < 0 {
		return -d
	}
	return d
}

// Disease is a tracked condition.
type Disease struct {
	DID      int    //analysis ID, index of the disease in its cohort
	Code     string //column name of the disease in the input table
	Name     string //human-readable name from the crosswalk, may be empty
	Category string //category from the crosswalk, may be empty
	Count    int    //prevalence reported by the crosswalk
}

// Label returns the display name of a disease, falling back to its code.
func (d *Disease) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Code
}

// Cohort contains the subjects of an analysis together with their disease occurrences and diagnosis dates. A cohort
// is never modified by the analysis: selections create new cohorts.
type Cohort struct {
	Subjects       []*Subject
	CovariateNames []string
	Diseases       []*Disease
	Occurrences    []Bitset          //per DID, the subjects diagnosed with the disease
	Dates          [][]DiagnosisDate //per DID, per SID, the diagnosis date; nil for diseases without date columns
}

// NewCohort creates a cohort for the given subjects and diseases without any occurrences. Subject and disease IDs are
// (re)assigned to match their positions.
func NewCohort(subjects []*Subject, covariateNames []string, diseases []*Disease) *Cohort {
	for i, s := range subjects {
		s.SID = i
	}
	for i, d := range diseases {
		d.DID = i
	}
	cohort := &Cohort{
		Subjects:       subjects,
		CovariateNames: covariateNames,
		Diseases:       diseases,
		Occurrences:    make([]Bitset, len(diseases)),
		Dates:          make([][]DiagnosisDate, len(diseases)),
	}
	for i := range cohort.Occurrences {
		cohort.Occurrences[i] = NewBitset(len(subjects))
	}
	return cohort
}

// NofSubjects returns the number of subjects in the cohort.
func (c *Cohort) NofSubjects() int {
	return len(c.Subjects)
}

// SetOccurrence records that subject sid was diagnosed with disease did.
func (c *Cohort) SetOccurrence(did, sid int) {
	c.Occurrences[did].Set(sid)
}

// HasDisease tells whether subject sid was diagnosed with disease did.
func (c *Cohort) HasDisease(did, sid int) bool {
	return c.Occurrences[did].Test(sid)
}

// SetDiagnosisDate records when subject sid was diagnosed with disease did.
func (c *Cohort) SetDiagnosisDate(did, sid int, date DiagnosisDate) {
	if c.Dates[did] == nil {
		c.Dates[did] = make([]DiagnosisDate, len(c.Subjects))
	}
	c.Dates[did][sid] = date
}

// DiagnosisDate returns the diagnosis date of disease did for subject sid, or the zero date if unknown.
func (c *Cohort) DiagnosisDate(did, sid int) DiagnosisDate {
	if c.Dates[did] == nil {
		return DiagnosisDate{}
	}
	return c.Dates[did][sid]
}

// Prevalence returns the number of subjects diagnosed with disease did.
func (c *Cohort) Prevalence(did int) int {
	return c.Occurrences[did].Count()
}

// Outcome returns the occurrence vector of disease did as 0/1 values.
func (c *Cohort) Outcome(did int) []float64 {
	y := make([]float64, len(c.Subjects))
	c.Occurrences[did].ForEach(func(sid int) {
		y[sid] = 1
	})
	return y
}

// Covariate returns the values of covariate column j for all subjects.
func (c *Cohort) Covariate(j int) []float64 {
	column := make([]float64, len(c.Subjects))
	for i, s := range c.Subjects {
		column[i] = s.Covariates[j]
	}
	return column
}

// SelectSubjects returns a new cohort with the given subjects of c, in the given order. Occurrences and dates are
// copied, the subjects are copied so that their IDs can be renumbered.
func (c *Cohort) SelectSubjects(sids []int) *Cohort {
	subjects := make([]*Subject, len(sids))
	for i, sid := range sids {
		s := *c.Subjects[sid]
		subjects[i] = &s
	}
	diseases := make([]*Disease, len(c.Diseases))
	for i, d := range c.Diseases {
		dd := *d
		diseases[i] = &dd
	}
	selection := NewCohort(subjects, c.CovariateNames, diseases)
	for did := range c.Diseases {
		for i, sid := range sids {
			if c.HasDisease(did, sid) {
				selection.SetOccurrence(did, i)
			}
			if c.Dates[did] != nil {
				selection.SetDiagnosisDate(did, i, c.Dates[did][sid])
			}
		}
	}
	return selection
}

// SelectDiseases returns a new cohort that only tracks the diseases diagnosed in at least minCount subjects, together
// with the diseases left out. The subjects are shared with c.
func (c *Cohort) SelectDiseases(minCount int) (*Cohort, []*Disease) {
	var kept, dropped []*Disease
	var keptDIDs []int
	for did, d := range c.Diseases {
		if c.Prevalence(did) >= minCount && c.Prevalence(did) > 0 {
			dd := *d
			kept = append(kept, &dd)
			keptDIDs = append(keptDIDs, did)
		} else {
			dropped = append(dropped, d)
		}
	}
	selection := &Cohort{
		Subjects:       c.Subjects,
		CovariateNames: c.CovariateNames,
		Diseases:       kept,
		Occurrences:    make([]Bitset, len(kept)),
		Dates:          make([][]DiagnosisDate, len(kept)),
	}
	for i, did := range keptDIDs {
		kept[i].DID = i
		selection.Occurrences[i] = c.Occurrences[did]
		selection.Dates[i] = c.Dates[did]
	}
	for _, d := range dropped {
		log.WithFields(log.Fields{"disease": d.Code, "count": c.Prevalence(d.DID), "minimum": minCount}).
			Warn("disease below inclusion floor, dropped from analysis")
	}
	return selection, dropped
}

// PrintCohort logs a summary of a cohort.
func PrintCohort(c *Cohort, max int) {
	log.Info("Cohort: ", len(c.Subjects), " subjects, ", len(c.Diseases), " diseases, covariates: ", c.CovariateNames)
	for i, d := range c.Diseases {
		if i == max {
			log.Info("...")
			break
		}
		log.Infof("%s (%s): %d", d.Code, d.Label(), c.Prevalence(i))
	}
}
