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

package filter

import (
	"github.com/grailbio/vdj/exact"
	"gonum.org/v1/gonum/stat/distuv"
)

// notGex deletes cells that gene expression data calls non-cells. Cells
// without a call are kept.
type notGex struct{}

func (notGex) Name() string { return NotGex }

func (notGex) Prepare(s *Snapshot) Evaluator {
	return func(o int) []Decision {
		var ds []Decision
		for _, i := range s.Live(o) {
			for c := range s.ES[i].Cells {
				cell := &s.ES[i].Cells[c]
				if !cell.Deleted && cell.Gex == exact.GexNotCell {
					ds = append(ds, deleteCell(i, c))
				}
			}
		}
		return ds
	}
}

// duplicateBarcode keeps a barcode that occurs in several exact
// subclonotypes of one dataset only in the one where it has the most UMIs.
// Ties go to the lower exact subclonotype index.
type duplicateBarcode struct{}

func (duplicateBarcode) Name() string { return DuplicateBarcode }

type datasetBarcode struct {
	dataset int
	barcode string
}

type occurrence struct {
	es, cell, umis int
}

func (duplicateBarcode) Prepare(s *Snapshot) Evaluator {
	occs := map[datasetBarcode][]occurrence{}
	for i := range s.ES {
		if s.ES[i].Deleted() {
			continue
		}
		for c := range s.ES[i].Cells {
			cell := &s.ES[i].Cells[c]
			if cell.Deleted {
				continue
			}
			k := datasetBarcode{cell.Dataset, cell.Barcode}
			occs[k] = append(occs[k], occurrence{i, c, cell.UMIs()})
		}
	}
	losers := map[int][]Decision{}
	for _, list := range occs {
		if len(list) < 2 {
			continue
		}
		// list is in exact subclonotype order.
		best := list[0]
		for _, oc := range list[1:] {
			if oc.umis > best.umis {
				best = oc
			}
		}
		for _, oc := range list {
			if oc.es != best.es {
				losers[oc.es] = append(losers[oc.es], deleteCell(oc.es, oc.cell))
			}
		}
	}
	return func(o int) []Decision {
		var ds []Decision
		for _, i := range s.Orbits[o] {
			ds = append(ds, losers[i]...)
		}
		return ds
	}
}

// cross deletes exact subclonotypes whose cells all come from one dataset
// although other datasets of the same origin hold enough cells that the
// subclonotype should have appeared there too. Under sampling without
// contamination, each of its n cells lands in a sibling dataset with
// probability f, the siblings' share of the origin's cells; the probability
// of observing none there is Binomial(n, f) at zero.
type cross struct{ opts Opts }

func (cross) Name() string { return Cross }

func (f cross) Prepare(s *Snapshot) Evaluator {
	datasetCells := map[int]int{}
	origins := map[int]int{}
	for i := range s.ES {
		if s.ES[i].Deleted() {
			continue
		}
		for c := range s.ES[i].Cells {
			cell := &s.ES[i].Cells[c]
			if !cell.Deleted {
				datasetCells[cell.Dataset]++
				origins[cell.Dataset] = cell.Origin
			}
		}
	}
	originCells := map[int]int{}
	for d, n := range datasetCells {
		originCells[origins[d]] += n
	}
	return func(o int) []Decision {
		var ds []Decision
		for _, i := range s.Live(o) {
			dataset, n, single := -1, 0, true
			for c := range s.ES[i].Cells {
				cell := &s.ES[i].Cells[c]
				if cell.Deleted {
					continue
				}
				if dataset >= 0 && cell.Dataset != dataset {
					single = false
					break
				}
				dataset = cell.Dataset
				n++
			}
			if !single || n < f.opts.CrossMinCells {
				continue
			}
			own := datasetCells[dataset]
			siblings := originCells[origins[dataset]] - own
			if siblings <= 0 {
				continue
			}
			dist := distuv.Binomial{N: float64(n), P: float64(siblings) / float64(siblings+own)}
			if dist.Prob(0) < f.opts.CrossMaxProb {
				ds = append(ds, deleteES(i))
			}
		}
		return ds
	}
}
