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
	"math"

	log "github.com/sirupsen/logrus"
	"pbc/comorbidity"
)

// Node is a disease of the comorbidity network.
type Node struct {
	Disease    *comorbidity.Disease
	Prevalence int //observed number of subjects with the disease in the analysed cohort
	Degree     int //number of promoted pairs the disease is part of
	OutDegree  int //number of significant directed pairs with the disease as source
	InDegree   int //number of significant directed pairs with the disease as target
}

// Edge is a promoted, undirected comorbidity.
type Edge struct {
	Pair   *comorbidity.PairStatistic
	Weight float64 //observed / expected co-occurrence
}

// Network is the comorbidity network of an experiment: one node per fitted disease, one edge per promoted pair, and
// one arc per significant directed pair.
type Network struct {
	Nodes []*Node
	Edges []*Edge
	Arcs  []*comorbidity.DirectedPairStatistic
}

// coOccurrenceRatio returns observed / expected, or NaN when nothing is expected.
func coOccurrenceRatio(p *comorbidity.PairStatistic) float64 {
	if p.Expected == 0 {
		return math.NaN()
	}
	return float64(p.Observed) / p.Expected
}

// Assemble builds the network of an experiment from its promoted and directed pairs. Nodes follow the order of the
// fitted models, edges the order of the promoted pairs.
func Assemble(exp *comorbidity.Experiment) *Network {
	net := &Network{}
	nodes := map[int]*Node{}
	for _, m := range exp.Models {
		node := &Node{Disease: m.Disease, Prevalence: m.Observed}
		nodes[m.Disease.DID] = node
		net.Nodes = append(net.Nodes, node)
	}
	for _, p := range exp.Promoted {
		nodes[p.First.Disease.DID].Degree++
		nodes[p.Second.Disease.DID].Degree++
		net.Edges = append(net.Edges, &Edge{Pair: p, Weight: coOccurrenceRatio(p)})
	}
	for _, d := range exp.Directed {
		if !d.Significant {
			continue
		}
		nodes[d.Source.Disease.DID].OutDegree++
		nodes[d.Target.Disease.DID].InDegree++
		net.Arcs = append(net.Arcs, d)
	}
	log.Info("Assembled network with ", len(net.Nodes), " nodes, ", len(net.Edges), " edges, ", len(net.Arcs),
		" directed edges.")
	return net
}

// ConnectedNodes returns the nodes that are part of at least one edge.
func (net *Network) ConnectedNodes() []*Node {
	var result []*Node
	for _, n := range net.Nodes {
		if n.Degree > 0 {
			result = append(result, n)
		}
	}
	return result
}
