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

package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
	"pbc/app"
)

/*
Pbc is a tool for building canine comorbidity networks with the Poisson binomial comorbidity approach.

Usage:
	pbc cohortFile crosswalkFile outputPath [flags]

Example:
	pbc dogs.csv crosswalk.csv ./results/ --name purebred --analysis "purebred=1" --windows 6,12,24 --seed 7

The flags are:

--config file
	A TOML file with parameters. Keys are the flag names with underscores, e.g. min_count. Flags given on the command
	line take precedence over the file.
--name string
	Sets the name of the experiment. This name is used to generate names for output files.
--analysis all | column=value,column!=value,...
	Restricts the analysis to the dogs whose non-disease columns match all terms, e.g. "purebred=1" or
	"sex=F,age_group!=senior".
--covariates list
	The comma separated covariate columns of the risk models. Categorical covariates must be encoded as 0/1 indicator
	columns. Covariates that are constant in the analysed stratum are dropped.
--idColumn string
	The column with the dog IDs.
--yearSuffix string, --monthSuffix string
	The suffixes of the diagnosis year and month columns of a disease. Without both columns a disease has no dates.
--minCount nr
	The minimum number of dogs with a disease in the analysed stratum for the disease to be included.
--alpha p
	The threshold for Bonferroni adjusted pair p-values.
--directedAlpha p
	The threshold for adjusted p-values of directed pairs.
--windows list
	The comma separated window sizes in months of the directed tests. Pass an empty list to skip them.
--minExpected nr
	Pairs with a smaller expected count are also tested by simulation.
--iter nr
	The number of simulation iterations for pairs with a low expected count.
--seed nr
	The seed of the simulations. Runs with the same seed and inputs produce identical results.
--maxIterations nr, --tolerance x
	Convergence settings of the logistic regressions.
--nrOfThreads nr
	The number of threads pbc uses.
*/

const (
	programVersion = 0.1
	programName    = "pbc"
)

func programMessage() string {
	return fmt.Sprint(programName, " version ", programVersion, " compiled with ", runtime.Version())
}

const pbcHelp = "\npbc parameters:\n" +
	"pbc cohortFile crosswalkFile outputPath\n" +
	"[--config file]\n" +
	"[--name string]\n" +
	"[--analysis all | column=value,column!=value,...]\n" +
	"[--covariates list]\n" +
	"[--idColumn string]\n" +
	"[--yearSuffix string]\n" +
	"[--monthSuffix string]\n" +
	"[--minCount nr]\n" +
	"[--alpha p]\n" +
	"[--directedAlpha p]\n" +
	"[--windows list]\n" +
	"[--minExpected nr]\n" +
	"[--iter nr]\n" +
	"[--seed nr]\n" +
	"[--maxIterations nr]\n" +
	"[--tolerance x]\n" +
	"[--nrOfThreads nr]\n"

func parseFlags(flags *flag.FlagSet, requiredArgs int, help string) {
	if len(os.Args) < requiredArgs {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flags.SetOutput(io.Discard)
	if err := flags.Parse(os.Args[requiredArgs:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

func getFileName(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	return s
}

func main() {
	if err := app.InitLogging(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	params := app.DefaultExperimentParams()
	var configFile string
	var flags flag.FlagSet
	flags.StringVar(&configFile, "config", "", "A TOML file with parameters.")
	flags.StringVar(&params.Name, "name", params.Name, "The name of the run. This is used to generate the "+
		"names of the output files.")
	flags.StringVar(&params.Analysis, "analysis", params.Analysis, "Restricts the analysis to the dogs "+
		"matching all column=value and column!=value terms.")
	flags.Var((*app.StringList)(&params.Covariates), "covariates", "The covariate columns of the risk models.")
	flags.StringVar(&params.IDColumn, "idColumn", params.IDColumn, "The column with the dog IDs.")
	flags.StringVar(&params.YearSuffix, "yearSuffix", params.YearSuffix, "The suffix of diagnosis year columns.")
	flags.StringVar(&params.MonthSuffix, "monthSuffix", params.MonthSuffix, "The suffix of diagnosis month "+
		"columns.")
	flags.IntVar(&params.MinCount, "minCount", params.MinCount, "The minimum number of dogs with a disease "+
		"for the disease to be included.")
	flags.Float64Var(&params.Alpha, "alpha", params.Alpha, "The threshold for adjusted pair p-values.")
	flags.Float64Var(&params.DirectedAlpha, "directedAlpha", params.DirectedAlpha, "The threshold for "+
		"adjusted p-values of directed pairs.")
	flags.Var((*app.IntList)(&params.Windows), "windows", "The window sizes in months of the directed tests.")
	flags.Float64Var(&params.MinExpected, "minExpected", params.MinExpected, "Pairs with a smaller expected "+
		"count are also tested by simulation.")
	flags.IntVar(&params.SimulationIterations, "iter", params.SimulationIterations, "The number of "+
		"simulation iterations.")
	flags.UintVar(&params.Seed, "seed", params.Seed, "The seed of the simulations.")
	flags.IntVar(&params.MaxIterations, "maxIterations", params.MaxIterations, "The maximum number of "+
		"iterations of a logistic regression.")
	flags.Float64Var(&params.Tolerance, "tolerance", params.Tolerance, "The convergence tolerance of a "+
		"logistic regression.")
	flags.IntVar(&params.NrOfThreads, "nrOfThreads", 0, "The number of threads pbc uses.")
	// parse optional arguments
	parseFlags(&flags, 4, pbcHelp)
	// flags and required arguments given on the command line take precedence over the config file
	if configFile != "" {
		given := map[string]string{}
		flags.Visit(func(f *flag.Flag) { given[f.Name] = f.Value.String() })
		if err := app.LoadConfigFile(configFile, &params); err != nil {
			log.Fatal(err)
		}
		for name, value := range given {
			if err := flags.Set(name, value); err != nil {
				log.Fatal(err)
			}
		}
	}
	// parse required arguments
	params.CohortFile = getFileName(os.Args[1], pbcHelp)
	params.CrosswalkFile = getFileName(os.Args[2], pbcHelp)
	outputPath, err := filepath.Abs(getFileName(os.Args[3], pbcHelp))
	if err != nil {
		log.Fatal(err)
	}
	params.OutputPath = outputPath
	// print the command
	var command bytes.Buffer
	fmt.Fprint(&command, programName, " ", params.CohortFile, " ", params.CrosswalkFile, " ", params.OutputPath)
	flags.VisitAll(func(f *flag.Flag) {
		fmt.Fprint(&command, " --", f.Name, " ", f.Value.String())
	})
	log.Info(programMessage())
	log.Info("Executing command: ", command.String())
	if _, err := app.Run(&params); err != nil {
		log.Fatal(err)
	}
}
