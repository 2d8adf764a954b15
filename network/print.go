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
	"bufio"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"pbc/comorbidity"
)

// Printing of experiment results. All tables are tab separated with a header line. Missing values are printed as NA.

// File name suffixes of the outputs of an experiment.
const (
	CoefficientsFile     = "coefficients.tab"
	ProbabilitiesFile    = "probabilities.tab"
	PairsFile            = "pairs.tab"
	SignificantPairsFile = "significant-pairs.tab"
	DirectedPairsFile    = "directed-pairs.tab"
	NodesFile            = "nodes.tab"
	GraphFile            = "network.gml"
	AbcFile              = "network.abc"
	ExcludedFile         = "excluded.tab"
	ManifestFile         = "manifest.json"
)

// OutputFileName returns the name of an output file of experiment name.
func OutputFileName(name, suffix string) string {
	return fmt.Sprintf("%s-%s", name, suffix)
}

// FormatFloat prints a float with the shortest representation that reads back identically, NaN as NA.
func FormatFloat(x float64) string {
	if math.IsNaN(x) {
		return "NA"
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// createFile creates a file and passes a buffered writer for it to print. The file is flushed and closed afterwards.
func createFile(name string, print func(w *bufio.Writer) error) (err error) {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(file)
	if err = print(w); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return w.Flush()
}

// printTabFile prints a header line followed by the given rows to a tab file.
func printTabFile(name string, header []string, rows func(emit func(record ...string) error) error) error {
	return createFile(name, func(bw *bufio.Writer) error {
		w := csv.NewWriter(bw)
		w.Comma = '\t'
		if err := w.Write(header); err != nil {
			return err
		}
		if err := rows(func(record ...string) error { return w.Write(record) }); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	})
}

// printCoefficientsToTabFile prints the coefficient table of every risk model: one line per disease and term.
func printCoefficientsToTabFile(exp *comorbidity.Experiment, name string) error {
	header := []string{"disease", "term", "estimate", "std_error", "z", "p", "bh_p", "warning"}
	return printTabFile(name, header, func(emit func(...string) error) error {
		for _, m := range exp.Models {
			for _, c := range m.Coefficients {
				if err := emit(m.Disease.Code, c.Term, FormatFloat(c.Estimate), FormatFloat(c.StdError),
					FormatFloat(c.Z), FormatFloat(c.P), FormatFloat(c.AdjustedP), c.Warning); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// printProbabilitiesToTabFile prints the scaled probabilities: one line per subject, one column per disease.
func printProbabilitiesToTabFile(exp *comorbidity.Experiment, name string) error {
	header := []string{"id"}
	for _, m := range exp.Models {
		header = append(header, m.Disease.Code)
	}
	return printTabFile(name, header, func(emit func(...string) error) error {
		record := make([]string, len(header))
		for _, s := range exp.Cohort.Subjects {
			record[0] = s.SIDString
			for j, m := range exp.Models {
				record[j+1] = FormatFloat(m.Probabilities[s.SID])
			}
			if err := emit(record...); err != nil {
				return err
			}
		}
		return nil
	})
}

var pairHeader = []string{"d1", "d2", "name1", "name2", "observed", "expected", "variance", "z", "p", "adj_p",
	"positive", "status", "warnings", "empirical_p"}

func pairRecord(p *comorbidity.PairStatistic) []string {
	return []string{
		p.First.Disease.Code, p.Second.Disease.Code, p.First.Disease.Label(), p.Second.Disease.Label(),
		strconv.Itoa(p.Observed), FormatFloat(p.Expected), FormatFloat(p.Variance), FormatFloat(p.Z),
		FormatFloat(p.P), FormatFloat(p.AdjustedP), formatBool(p.Positive), p.Status.String(), p.Warnings.String(),
		FormatFloat(p.EmpiricalP),
	}
}

// printPairsToTabFile prints pair statistics, one line per pair, in the given order.
func printPairsToTabFile(pairs []*comorbidity.PairStatistic, name string) error {
	return printTabFile(name, pairHeader, func(emit func(...string) error) error {
		for _, p := range pairs {
			if err := emit(pairRecord(p)...); err != nil {
				return err
			}
		}
		return nil
	})
}

// printDirectedPairsToTabFile prints one line per directed pair and window.
func printDirectedPairsToTabFile(directed []*comorbidity.DirectedPairStatistic, name string) error {
	header := []string{"source", "target", "window", "subjects", "expected", "observed", "variance", "z", "p",
		"adj_p", "significant", "status", "first", "untied", "sign_test_p"}
	return printTabFile(name, header, func(emit func(...string) error) error {
		for _, d := range directed {
			if err := emit(d.Source.Disease.Code, d.Target.Disease.Code, strconv.Itoa(d.Window),
				strconv.Itoa(d.Subjects), FormatFloat(d.Expected), FormatFloat(d.Observed), FormatFloat(d.Variance),
				FormatFloat(d.Z), FormatFloat(d.P), FormatFloat(d.AdjustedP), formatBool(d.Significant),
				d.Status.String(), strconv.Itoa(d.First), strconv.Itoa(d.Untied),
				FormatFloat(d.SignTestP)); err != nil {
				return err
			}
		}
		return nil
	})
}

// printNodesToTabFile prints one line per disease of the network.
func printNodesToTabFile(net *Network, name string) error {
	header := []string{"code", "name", "category", "count", "prevalence", "degree", "out_degree", "in_degree"}
	return printTabFile(name, header, func(emit func(...string) error) error {
		for _, n := range net.Nodes {
			if err := emit(n.Disease.Code, n.Disease.Name, n.Disease.Category, strconv.Itoa(n.Disease.Count),
				strconv.Itoa(n.Prevalence), strconv.Itoa(n.Degree), strconv.Itoa(n.OutDegree),
				strconv.Itoa(n.InDegree)); err != nil {
				return err
			}
		}
		return nil
	})
}

// printExcludedToTabFile prints the units that were left out of the analysis, and why.
func printExcludedToTabFile(exp *comorbidity.Experiment, name string) error {
	return printTabFile(name, []string{"stage", "unit", "reason"}, func(emit func(...string) error) error {
		for _, e := range exp.Excluded {
			if err := emit(e.Stage, e.Unit, e.Reason); err != nil {
				return err
			}
		}
		return nil
	})
}

// printNetworkToGraphFile prints the network to a GML file. Promoted pairs are printed as edges of type
// "comorbidity" in both directions, significant directed pairs as edges of type "directed". Only diseases that are
// part of a promoted pair are printed as nodes.
func printNetworkToGraphFile(net *Network, name string) error {
	return createFile(name, func(w *bufio.Writer) error {
		fmt.Fprintf(w, "graph [\n directed 1\nmultigraph 1\n")
		for _, n := range net.ConnectedNodes() {
			fmt.Fprintf(w, "node [ id %d\nlabel %q\ncode %q\ncategory %q\nprevalence %d\n]\n", n.Disease.DID,
				n.Disease.Label(), n.Disease.Code, n.Disease.Category, n.Prevalence)
		}
		for _, e := range net.Edges {
			d1, d2 := e.Pair.First.Disease.DID, e.Pair.Second.Disease.DID
			for _, st := range [][2]int{{d1, d2}, {d2, d1}} {
				fmt.Fprintf(w, "edge [\nsource %d\ntarget %d\ntype \"comorbidity\"\nweight %s\nlabel \"%d\"\n]\n",
					st[0], st[1], FormatFloat(e.Weight), e.Pair.Observed)
			}
		}
		for _, a := range net.Arcs {
			fmt.Fprintf(w, "edge [\nsource %d\ntarget %d\ntype \"directed\"\nwindow %d\nweight %s\n]\n",
				a.Source.Disease.DID, a.Target.Disease.DID, a.Window, FormatFloat(a.Observed))
		}
		_, err := fmt.Fprintf(w, "]\n")
		return err
	})
}

// printNetworkToAbcFile prints the promoted pairs in the abc format read by graph clustering tools such as mcl: one
// line per edge with both disease codes and the observed/expected ratio as weight.
func printNetworkToAbcFile(net *Network, name string) error {
	return createFile(name, func(w *bufio.Writer) error {
		for _, e := range net.Edges {
			if math.IsNaN(e.Weight) {
				continue
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\t%f\n", e.Pair.First.Disease.Code, e.Pair.Second.Disease.Code,
				e.Weight); err != nil {
				return err
			}
		}
		return nil
	})
}

// PrintExperimentToFiles writes all results of an experiment to the given directory. The files are written
// concurrently, each by its own goroutine:
// - <name>-coefficients.tab: the coefficient table of every risk model
// - <name>-probabilities.tab: the scaled probabilities per subject and disease
// - <name>-pairs.tab: all tested pairs, in enumeration order
// - <name>-significant-pairs.tab: the promoted pairs, ascending by adjusted p-value
// - <name>-directed-pairs.tab: the directed tests of the promoted pairs
// - <name>-nodes.tab, <name>-network.gml, <name>-network.abc: the network
// - <name>-excluded.tab: the units that were left out
// - <name>-manifest.json: the manifest of the run
func PrintExperimentToFiles(exp *comorbidity.Experiment, net *Network, manifest *Manifest, path string) error {
	file := func(suffix string) string {
		return filepath.Join(path, OutputFileName(exp.Name, suffix))
	}
	var g errgroup.Group
	g.Go(func() error { return printCoefficientsToTabFile(exp, file(CoefficientsFile)) })
	g.Go(func() error { return printProbabilitiesToTabFile(exp, file(ProbabilitiesFile)) })
	g.Go(func() error { return printPairsToTabFile(exp.Pairs, file(PairsFile)) })
	g.Go(func() error { return printPairsToTabFile(exp.Promoted, file(SignificantPairsFile)) })
	g.Go(func() error { return printDirectedPairsToTabFile(exp.Directed, file(DirectedPairsFile)) })
	g.Go(func() error { return printNodesToTabFile(net, file(NodesFile)) })
	g.Go(func() error { return printNetworkToGraphFile(net, file(GraphFile)) })
	g.Go(func() error { return printNetworkToAbcFile(net, file(AbcFile)) })
	g.Go(func() error { return printExcludedToTabFile(exp, file(ExcludedFile)) })
	g.Go(func() error { return manifest.Save(file(ManifestFile)) })
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Results written to ", path)
	return nil
}
