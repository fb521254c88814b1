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

// Package filter removes exact subclonotypes and cells that look like
// technical artifacts rather than biology.
//
// Filters run in a fixed order. Each filter is evaluated clonotype by
// clonotype, in parallel, against the state left by the previous filters;
// its decisions are then applied in one deterministic pass. A deleted exact
// subclonotype records the name of the filter that deleted it.
package filter

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/vdj/exact"
	"github.com/samber/lo"
)

// Filter names, in cascade order.
const (
	NotGex           = "NOT_GEX"
	DuplicateBarcode = "DUPLICATE_BARCODE"
	Cross            = "CROSS"
	WeakChains       = "WEAK_CHAINS"
	FoursieKill      = "FOURSIE_KILL"
	WeakOnesies      = "WEAK_ONESIES"
	Qual             = "QUAL"
	GraphFilter      = "GRAPH_FILTER"
	DonorMixing      = "DONOR_MIXING"
	UserFilter       = "USER_FILTER"
)

// Action is what a filter does to an exact subclonotype or a cell.
type Action uint8

const (
	// Keep leaves the target alone. Filters normally express it by
	// returning no decision.
	Keep Action = iota
	// Delete removes the target.
	Delete
	// Mark records the filter name on the exact subclonotype without
	// removing it.
	Mark
)

// Decision is the action of a filter on one exact subclonotype, or on one of
// its cells.
type Decision struct {
	ES int
	// Cell indexes the cell, or is -1 for the whole exact subclonotype.
	Cell   int
	Action Action
}

func deleteES(es int) Decision { return Decision{ES: es, Cell: -1, Action: Delete} }

func deleteCell(es, c int) Decision { return Decision{ES: es, Cell: c, Action: Delete} }

func markES(es int) Decision { return Decision{ES: es, Cell: -1, Action: Mark} }

func deleteAll(live []int) []Decision {
	return lo.Map(live, func(i, _ int) Decision { return deleteES(i) })
}

// Germline supplies the germline V and J sequences assigned to each chain of
// each exact subclonotype.
type Germline interface {
	VSeq(es, c int) string
	JSeq(es, c int) string
}

// Snapshot is the read-only state a filter is evaluated against.
type Snapshot struct {
	ES []exact.Subclonotype
	// Orbits lists the clonotypes as sorted exact subclonotype indices.
	Orbits   [][]int
	Germline Germline
	total    int
}

func newSnapshot(es []exact.Subclonotype, orbits [][]int, germ Germline) *Snapshot {
	s := &Snapshot{ES: es, Orbits: orbits, Germline: germ}
	for i := range es {
		s.total += es[i].LiveCells()
	}
	return s
}

// TotalCells returns the number of live cells.
func (s *Snapshot) TotalCells() int { return s.total }

// Live returns the members of clonotype o that have live cells.
func (s *Snapshot) Live(o int) []int {
	return lo.Filter(s.Orbits[o], func(i, _ int) bool { return s.ES[i].LiveCells() > 0 })
}

// Evaluator returns the decisions of a filter for clonotype o. It must be
// safe for concurrent use.
type Evaluator func(o int) []Decision

// Filter is one stage of the cascade.
type Filter interface {
	// Name is recorded on the exact subclonotypes the filter deletes.
	Name() string
	// Prepare computes whatever global state the filter needs and returns
	// the per-clonotype evaluator.
	Prepare(s *Snapshot) Evaluator
}

// FilterStats counts what one filter removed.
type FilterStats struct {
	Name string
	// Subclonotypes is the number of exact subclonotypes deleted.
	Subclonotypes int
	// Cells is the number of cells deleted, including the cells of deleted
	// exact subclonotypes.
	Cells int
	// Marked is the number of exact subclonotypes marked.
	Marked int
}

// Stats holds the statistics of every filter that ran, in order.
type Stats struct {
	Filters []FilterStats
}

// Cascade is an ordered list of filters.
type Cascade struct {
	filters []Filter
}

// NewCascade returns the cascade configured by opts. It fails if opts are
// inconsistent or the user filter does not parse.
func NewCascade(opts Opts) (*Cascade, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := &Cascade{}
	add := func(disabled bool, f Filter) {
		if !disabled && !opts.NoFilters {
			c.filters = append(c.filters, f)
		}
	}
	add(opts.NoNotGex, notGex{})
	add(opts.NoDuplicateBarcode, duplicateBarcode{})
	add(opts.NoCross, cross{opts})
	add(opts.NoWeakChains, weakChains{opts})
	add(opts.NoFoursieKill, foursieKill{opts})
	add(opts.NoWeakOnesies, weakOnesies{opts})
	add(opts.NoQual, qual{opts})
	add(opts.NoGraphFilter, graphFilter{opts})
	add(false, donorMixing{opts})
	if opts.UserFilter != "" {
		e, err := ParseExpr(opts.UserFilter)
		if err != nil {
			return nil, err
		}
		c.filters = append(c.filters, userFilter{e})
	}
	return c, nil
}

// Names returns the names of the filters that run, in order.
func (c *Cascade) Names() []string {
	return lo.Map(c.filters, func(f Filter, _ int) string { return f.Name() })
}

// Run applies the cascade to es, whose clonotypes are orbits. It updates the
// deletion fields of es and returns per-filter statistics. The result does
// not depend on parallelism.
func (c *Cascade) Run(es []exact.Subclonotype, orbits [][]int, germ Germline, parallelism int) Stats {
	if parallelism < 1 {
		parallelism = 1
	}
	var stats Stats
	for _, f := range c.filters {
		snap := newSnapshot(es, orbits, germ)
		ev := f.Prepare(snap)
		results := make([][]Decision, len(orbits))
		nShard := parallelism
		if nShard > len(orbits) {
			nShard = len(orbits)
		}
		if nShard > 0 {
			err := traverse.Each(nShard, func(jobIdx int) error {
				startIdx := (jobIdx * len(orbits)) / nShard
				endIdx := ((jobIdx + 1) * len(orbits)) / nShard
				for o := startIdx; o < endIdx; o++ {
					results[o] = evaluate(f.Name(), ev, o)
				}
				return nil
			})
			if err != nil {
				log.Panicf("filter %s: %v", f.Name(), err)
			}
		}
		fs := apply(es, f.Name(), lo.Flatten(results))
		log.Printf("filter %s: deleted %d exact subclonotypes, %d cells; marked %d",
			fs.Name, fs.Subclonotypes, fs.Cells, fs.Marked)
		stats.Filters = append(stats.Filters, fs)
	}
	return stats
}

// evaluate runs ev on clonotype o. A panicking filter keeps the clonotype.
func evaluate(name string, ev Evaluator, o int) (ds []Decision) {
	defer func() {
		if r := recover(); r != nil {
			log.Error.Printf("filter %s: clonotype %d: %v", name, o, r)
			ds = nil
		}
	}()
	return ev(o)
}

// apply performs the decisions in (exact subclonotype, cell) order.
func apply(es []exact.Subclonotype, name string, ds []Decision) FilterStats {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].ES != ds[j].ES {
			return ds[i].ES < ds[j].ES
		}
		if ds[i].Cell != ds[j].Cell {
			return ds[i].Cell < ds[j].Cell
		}
		return ds[i].Action < ds[j].Action
	})
	fs := FilterStats{Name: name}
	for _, d := range ds {
		s := &es[d.ES]
		if s.Deleted() {
			continue
		}
		switch {
		case d.Action == Mark:
			if !lo.Contains(s.Marks, name) {
				s.Marks = append(s.Marks, name)
				fs.Marked++
			}
		case d.Action != Delete:
		case d.Cell < 0:
			fs.Cells += s.LiveCells()
			s.Filter = name
			fs.Subclonotypes++
		default:
			cell := &s.Cells[d.Cell]
			if cell.Deleted {
				continue
			}
			cell.Deleted, cell.Filter = true, name
			fs.Cells++
			if s.LiveCells() == 0 {
				s.Filter = name
				fs.Subclonotypes++
			}
		}
	}
	return fs
}
