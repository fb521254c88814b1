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

// Package clonotype runs the clonotyping pipeline: exact subclonotype
// aggregation, donor allele inference, pair scoring, orbit construction,
// filtering and grouping.
package clonotype

import (
	"context"
	"runtime"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/vdj/donorref"
	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/filter"
	"github.com/grailbio/vdj/group"
	"github.com/grailbio/vdj/join"
	"github.com/grailbio/vdj/orbit"
	"github.com/grailbio/vdj/refdata"
)

// StageTime is the wall time of one pipeline stage.
type StageTime struct {
	Stage   string
	Elapsed time.Duration
}

// Stats collects the statistics of every stage of one run.
type Stats struct {
	Aggregate exact.Stats
	Donor     donorref.Stats
	Join      join.Stats
	Orbit     orbit.Stats
	Filter    filter.Stats
	// Clonotypes is the number of clonotypes with live cells.
	Clonotypes int
	// Groups is the number of groups.
	Groups int
	Times  []StageTime
}

// Result is the output of Run.
type Result struct {
	// Exact lists the exact subclonotypes, with the deletions made by the
	// filters.
	Exact []exact.Subclonotype
	// Orbits are the clonotypes before filtering.
	Orbits [][]int
	// Clonotypes are the clonotypes after filtering: the live members of
	// each orbit, for the orbits that have any.
	Clonotypes [][]int
	// Groups index Clonotypes. Nil if grouping is disabled.
	Groups [][]int
	// Donor is the donor allele table.
	Donor *donorref.Table
	Stats Stats
}

// Parallelism returns the number of workers used for opts.
func Parallelism(opts Opts) int {
	n := runtime.NumCPU()
	if opts.Parallelism > 0 && opts.Parallelism < n {
		n = opts.Parallelism
	}
	return n
}

// Run computes the clonotypes of datasets. Invalid options and malformed
// contigs are reported as errors.Invalid before any clustering is done.
// Run checks ctx between stages.
func Run(ctx context.Context, datasets []exact.Dataset, ref refdata.Reference, opts Opts) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cascade, err := filter.NewCascade(opts.Filter)
	if err != nil {
		return nil, err
	}
	parallelism := Parallelism(opts)
	r := &Result{}
	stage := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return errors.E(err, "clonotype: "+name)
		}
		start := time.Now()
		err := fn()
		elapsed := time.Since(start)
		r.Stats.Times = append(r.Stats.Times, StageTime{name, elapsed})
		log.Debug.Printf("clonotype: %s took %v", name, elapsed)
		return err
	}

	if err := stage("aggregate", func() (err error) {
		r.Exact, r.Stats.Aggregate, err = exact.Aggregate(datasets, ref)
		return err
	}); err != nil {
		return nil, err
	}
	es := r.Exact

	if err := stage("donorref", func() error {
		r.Donor, r.Stats.Donor = donorref.Infer(es, ref, parallelism, opts.Donor)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := stage("orbits", func() error {
		var eq orbit.Equivalence = orbit.NewSequential(len(es))
		if opts.ConcurrentOrbits {
			eq = orbit.NewConcurrent(len(es))
		}
		b := orbit.NewBuilder(eq)
		r.Stats.Join = join.ScoreAll(es, r.Donor, parallelism, opts.Join, b.Apply)
		b.MergeOnesies(es, opts.Orbit)
		r.Orbits, r.Stats.Orbit = b.Orbits()
		return nil
	}); err != nil {
		return nil, err
	}

	if err := stage("filter", func() error {
		r.Stats.Filter = cascade.Run(es, r.Orbits, r.Donor, parallelism)
		for _, o := range r.Orbits {
			var live []int
			for _, i := range o {
				if es[i].LiveCells() > 0 {
					live = append(live, i)
				}
			}
			if len(live) > 0 {
				r.Clonotypes = append(r.Clonotypes, live)
			}
		}
		r.Stats.Clonotypes = len(r.Clonotypes)
		return nil
	}); err != nil {
		return nil, err
	}

	if !opts.NoGroup {
		if err := stage("group", func() error {
			r.Groups = group.Group(es, r.Clonotypes, opts.Group)
			r.Stats.Groups = len(r.Groups)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	log.Printf("clonotype: %d exact subclonotypes, %d clonotypes, %d groups",
		len(es), r.Stats.Clonotypes, r.Stats.Groups)
	return r, nil
}
