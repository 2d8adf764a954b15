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
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
	"pbc/comorbidity"
)

// ExperimentParams holds all parameters of a run. They can be set on the command line or in a TOML file with the
// keys given by the toml tags.
type ExperimentParams struct {
	// required parameters
	Name          string `toml:"name"`
	CohortFile    string `toml:"cohort"`    // path to the cohort table: one row per dog with covariates and disease flags
	CrosswalkFile string `toml:"crosswalk"` // path to the disease crosswalk: code, name, category, count
	OutputPath    string `toml:"output"`    // path where output files are written to

	// optional parameters
	Analysis             string   `toml:"analysis"` // stratum selector: all, or column=value / column!=value terms
	Covariates           []string `toml:"covariates"`
	IDColumn             string   `toml:"id_column"`
	YearSuffix           string   `toml:"year_suffix"`
	MonthSuffix          string   `toml:"month_suffix"`
	MinCount             int      `toml:"min_count"` // inclusion floor for diseases
	Alpha                float64  `toml:"alpha"`
	DirectedAlpha        float64  `toml:"directed_alpha"`
	Windows              []int    `toml:"windows"` // months
	MinExpected          float64  `toml:"min_expected"`
	SimulationIterations int      `toml:"simulation_iterations"`
	Seed                 uint     `toml:"seed"`
	MaxIterations        int      `toml:"max_iterations"`
	Tolerance            float64  `toml:"tolerance"`
	NrOfThreads          int      `toml:"threads"`
}

// Default values of the optional parameters.
const (
	DefaultAnalysis    = "all"
	DefaultIDColumn    = "dog_id"
	DefaultYearSuffix  = "_year"
	DefaultMonthSuffix = "_month"
	DefaultMinCount    = 60
)

// DefaultCovariates are age, weight, breed purity, and the sex by sterilization status indicators with intact males
// as reference level.
var DefaultCovariates = []string{"age", "weight", "purebred", "female_intact", "female_spayed", "male_neutered"}

// DefaultExperimentParams returns the parameters of a run with all optional parameters set to their defaults.
func DefaultExperimentParams() ExperimentParams {
	return ExperimentParams{
		Name:                 "exp1",
		Analysis:             DefaultAnalysis,
		Covariates:           append([]string(nil), DefaultCovariates...),
		IDColumn:             DefaultIDColumn,
		YearSuffix:           DefaultYearSuffix,
		MonthSuffix:          DefaultMonthSuffix,
		MinCount:             DefaultMinCount,
		Alpha:                comorbidity.DefaultAlpha,
		DirectedAlpha:        comorbidity.DefaultDirectedAlpha,
		Windows:              append([]int(nil), comorbidity.DefaultWindows...),
		MinExpected:          comorbidity.DefaultMinExpected,
		SimulationIterations: comorbidity.DefaultSimulationIterations,
		Seed:                 1,
		MaxIterations:        comorbidity.DefaultMaxIterations,
		Tolerance:            comorbidity.DefaultTolerance,
	}
}

// ErrInvalidConfig is returned for parameters outside their valid range.
var ErrInvalidConfig = errors.New("invalid configuration")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks that the parameters describe a run that can be executed.
func (p *ExperimentParams) Validate() error {
	switch {
	case p.Name == "":
		return invalid("empty experiment name")
	case p.CohortFile == "":
		return invalid("no cohort file")
	case p.CrosswalkFile == "":
		return invalid("no crosswalk file")
	case p.OutputPath == "":
		return invalid("no output path")
	case p.IDColumn == "":
		return invalid("empty id column")
	case !(p.Alpha > 0 && p.Alpha < 1):
		return invalid("alpha %v not in (0, 1)", p.Alpha)
	case !(p.DirectedAlpha > 0 && p.DirectedAlpha < 1):
		return invalid("directed alpha %v not in (0, 1)", p.DirectedAlpha)
	case p.MinCount < 1:
		return invalid("inclusion floor %d smaller than 1", p.MinCount)
	case p.MinExpected < 0:
		return invalid("negative minimum expected count %v", p.MinExpected)
	case p.SimulationIterations < 0:
		return invalid("negative number of simulation iterations %d", p.SimulationIterations)
	case p.Seed > math.MaxUint32:
		return invalid("seed %d does not fit in 32 bits", p.Seed)
	case p.MaxIterations < 1:
		return invalid("maximum number of iterations %d smaller than 1", p.MaxIterations)
	case !(p.Tolerance > 0):
		return invalid("tolerance %v not positive", p.Tolerance)
	case p.NrOfThreads < 0:
		return invalid("negative number of threads %d", p.NrOfThreads)
	}
	seen := map[string]bool{}
	for _, c := range p.Covariates {
		switch {
		case c == "":
			return invalid("empty covariate name")
		case c == p.IDColumn:
			return invalid("id column %q used as covariate", c)
		case seen[c]:
			return invalid("covariate %q listed twice", c)
		}
		seen[c] = true
	}
	windows := map[int]bool{}
	for _, w := range p.Windows {
		switch {
		case w < 1:
			return invalid("window %d smaller than 1 month", w)
		case windows[w]:
			return invalid("window %d listed twice", w)
		}
		windows[w] = true
	}
	return nil
}

// Options converts the parameters to the options of a comorbidity experiment.
func (p *ExperimentParams) Options() comorbidity.Options {
	return comorbidity.Options{
		Fit: comorbidity.FitOptions{MaxIterations: p.MaxIterations, Tolerance: p.Tolerance},
		Pairs: comorbidity.PairOptions{
			MinExpected:          p.MinExpected,
			SimulationIterations: p.SimulationIterations,
			Seed:                 uint32(p.Seed),
		},
		Alpha:         p.Alpha,
		DirectedAlpha: p.DirectedAlpha,
		Windows:       append([]int(nil), p.Windows...),
	}
}

// LoadConfigFile reads a TOML file into params. Keys missing from the file keep their current value.
func LoadConfigFile(file string, params *ExperimentParams) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", file, err)
	}
	if err := toml.Unmarshal(data, params); err != nil {
		return fmt.Errorf("failed to parse TOML config file '%s': %w", file, err)
	}
	return nil
}

// InitLogging sets the log level from the LOG_LEVEL environment variable, optionally loaded from a .env file in the
// working directory. The default level is info.
func InitLogging() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	level := log.InfoLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		var err error
		if level, err = log.ParseLevel(s); err != nil {
			return invalid("LOG_LEVEL: %v", err)
		}
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

// IntList is a flag value for a comma separated list of ints.
type IntList []int

func (l *IntList) String() string {
	if l == nil {
		return ""
	}
	s := make([]string, len(*l))
	for i, x := range *l {
		s[i] = strconv.Itoa(x)
	}
	return strings.Join(s, ",")
}

// Set replaces the list with the values in s.
func (l *IntList) Set(s string) error {
	var result []int
	for _, field := range splitList(s) {
		x, err := strconv.Atoi(field)
		if err != nil {
			return fmt.Errorf("invalid list element %q: %w", field, err)
		}
		result = append(result, x)
	}
	*l = result
	return nil
}

// StringList is a flag value for a comma separated list of strings.
type StringList []string

func (l *StringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

// Set replaces the list with the values in s.
func (l *StringList) Set(s string) error {
	*l = splitList(s)
	return nil
}

// splitList splits a comma separated list, dropping empty elements.
func splitList(s string) []string {
	var result []string
	for _, field := range strings.Split(s, ",") {
		if field = strings.TrimSpace(field); field != "" {
			result = append(result, field)
		}
	}
	return result
}
