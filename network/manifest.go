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

package network

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"pbc/comorbidity"
)

// Manifest describes one run of an experiment. The run ID is the only value that differs between runs on the same
// input.
type Manifest struct {
	RunID               string   `json:"run_id"`
	Name                string   `json:"name"`
	Config              any      `json:"config,omitempty"`
	Subjects            int      `json:"subjects"`
	Diseases            int      `json:"diseases"`
	Covariates          []string `json:"covariates"`
	DroppedCovariates   []string `json:"dropped_covariates,omitempty"`
	CoefficientTests    int      `json:"coefficient_tests"`
	PairTests           int      `json:"pair_tests"`
	PromotedPairs       int      `json:"promoted_pairs"`
	DirectedTests       int      `json:"directed_tests"`
	SignificantDirected int      `json:"significant_directed_pairs"`
	Excluded            int      `json:"excluded"`
	Files               []string `json:"files"`
}

// NewManifest summarizes an experiment and its network. The config is stored as is.
func NewManifest(exp *comorbidity.Experiment, net *Network, config any) *Manifest {
	m := &Manifest{
		RunID:               uuid.NewString(),
		Name:                exp.Name,
		Config:              config,
		Subjects:            exp.Cohort.NofSubjects(),
		Diseases:            len(exp.Models),
		CoefficientTests:    exp.NofCoefficientTests,
		PairTests:           exp.NofPairTests,
		PromotedPairs:       len(exp.Promoted),
		DirectedTests:       exp.NofDirectedTests,
		SignificantDirected: len(net.Arcs),
		Excluded:            len(exp.Excluded),
	}
	if exp.Design != nil {
		m.Covariates = exp.Design.Terms[1:]
		m.DroppedCovariates = exp.Design.Dropped
	}
	for _, suffix := range []string{CoefficientsFile, ProbabilitiesFile, PairsFile, SignificantPairsFile,
		DirectedPairsFile, NodesFile, GraphFile, AbcFile, ExcludedFile, ManifestFile} {
		m.Files = append(m.Files, OutputFileName(exp.Name, suffix))
	}
	return m
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(name string) error {
	bytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(name, append(bytes, '\n'), 0644)
}

// LoadManifest reads a manifest written by Save.
func LoadManifest(name string) (*Manifest, error) {
	bytes, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := json.Unmarshal(bytes, m); err != nil {
		return nil, err
	}
	return m, nil
}
