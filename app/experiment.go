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

package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
	"pbc/comorbidity"
	"pbc/network"
)

// OutputDir returns the directory where the output files of a run are written.
func (p *ExperimentParams) OutputDir() string {
	return filepath.Join(p.OutputPath, p.Name)
}

// Run a comorbidity experiment with the given parameters. It returns the experiment for inspection, also when a later
// stage fails.
func Run(params *ExperimentParams) (exp *comorbidity.Experiment, err error) {
	defer func() {
		// converts any panics into errors to avoid crashing the app
		if r := recover(); r != nil {
			log.Error("Recovered from panic during experiment: ", r)
			err = fmt.Errorf("failed to run experiment: %v", r)
		}
	}()

	if err = params.Validate(); err != nil {
		return nil, err
	}
	outputDir := params.OutputDir()
	if err = os.MkdirAll(outputDir, 0700); err != nil {
		return nil, err
	}
	if params.NrOfThreads > 0 {
		runtime.GOMAXPROCS(params.NrOfThreads)
	}

	// 1. Parse input into a cohort restricted to the analysed stratum
	cohort, excluded, err := ParseCohortData(params)
	if err != nil {
		return nil, err
	}
	exp = comorbidity.NewExperiment(params.Name, cohort)
	exp.Excluded = append(exp.Excluded, excluded...)

	// 2. Risk models, pair tests, and temporal tests
	if err = exp.Run(params.Options()); err != nil {
		return exp, fmt.Errorf("experiment %s: %w", params.Name, err)
	}

	// 3. Assemble the network and write all results
	net := network.Assemble(exp)
	manifest := network.NewManifest(exp, net, params)
	if err = network.PrintExperimentToFiles(exp, net, manifest, outputDir); err != nil {
		return exp, err
	}
	log.WithFields(log.Fields{"run": manifest.RunID, "promoted": len(exp.Promoted), "directed": len(net.Arcs)}).
		Info("Experiment ", params.Name, " finished.")
	return exp, nil
}
