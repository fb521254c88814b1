// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package group gathers finished clonotypes into display groups of similar
// clonotypes.
package group

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/orbit"
	"github.com/grailbio/vdj/util"
	"github.com/samber/lo"
)

// Opts controls grouping.
type Opts struct {
	// SameVJ requires grouped clonotypes to share the V and J segments of
	// their first chain.
	SameVJ bool
	// MaxCDR3AADist is the maximum edit distance between the CDR3 amino acid
	// sequences of the first chains of two clonotypes in one group.
	MaxCDR3AADist int
	// MinGroupSize drops groups with fewer clonotypes.
	MinGroupSize int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	SameVJ:        true,
	MaxCDR3AADist: 1,
	MinGroupSize:  1,
}

// Validate checks that the option values are usable.
func (o Opts) Validate() error {
	if o.MaxCDR3AADist < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("group: max CDR3 distance must be non-negative, got %d", o.MaxCDR3AADist))
	}
	if o.MinGroupSize < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("group: min group size must be positive, got %d", o.MinGroupSize))
	}
	return nil
}

type signature struct {
	chain      exact.ChainType
	vRef, jRef int
}

// Group groups clonotypes, given as lists of exact subclonotype indices of
// es. Each clonotype is represented by its exact subclonotype with the most
// live cells; two clonotypes are linked if the first chains of their
// representatives have the same chain type (and V and J segments, if
// SameVJ) and CDR3 amino acids within MaxCDR3AADist edits. Groups are the
// transitive closure of the links. Clonotypes with no live cells are left
// out. Each group lists clonotype indices in increasing order; groups are
// ordered by first member.
func Group(es []exact.Subclonotype, clonotypes [][]int, opts Opts) [][]int {
	reps := make([]*exact.SharedChain, len(clonotypes))
	var live []int
	for o, members := range clonotypes {
		members = lo.Filter(members, func(i, _ int) bool { return es[i].LiveCells() > 0 })
		if len(members) == 0 {
			continue
		}
		best := lo.MaxBy(members, func(a, b int) bool { return es[a].LiveCells() > es[b].LiveCells() })
		reps[o] = &es[best].Shared[0]
		live = append(live, o)
	}
	buckets := lo.GroupBy(live, func(o int) signature {
		sig := signature{chain: reps[o].Chain}
		if opts.SameVJ {
			sig.vRef, sig.jRef = reps[o].VRef, reps[o].JRef
		}
		return sig
	})
	eq := orbit.NewSequential(len(clonotypes))
	links := 0
	for _, b := range buckets {
		for x := 0; x < len(b); x++ {
			for y := x + 1; y < len(b); y++ {
				if util.Levenshtein(reps[b[x]].CDR3AA, reps[b[y]].CDR3AA) <= opts.MaxCDR3AADist && eq.Union(b[x], b[y]) {
					links++
				}
			}
		}
	}
	var groups [][]int
	for _, g := range eq.Orbits() {
		if reps[g[0]] == nil || len(g) < opts.MinGroupSize {
			continue
		}
		groups = append(groups, g)
	}
	log.Printf("group: %d clonotypes in %d groups", len(live), len(groups))
	log.Debug.Printf("group: %d links", links)
	return groups
}
