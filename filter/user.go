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
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/vdj/exact"
	"github.com/samber/lo"
)

// userFilter deletes the clonotypes for which a user expression is false.
// Clonotypes for which it cannot be evaluated, for example because it
// refers to a feature no cell has, are kept.
type userFilter struct{ expr *Expr }

func (userFilter) Name() string { return UserFilter }

func (f userFilter) Prepare(s *Snapshot) Evaluator {
	return func(o int) []Decision {
		live := s.Live(o)
		if len(live) == 0 {
			return nil
		}
		ok, err := f.expr.Eval(clonotypeEnv{s, live})
		if err != nil {
			log.Debug.Printf("filter %s: clonotype %d: %v", UserFilter, o, err)
			return nil
		}
		if ok {
			return nil
		}
		return deleteAll(live)
	}
}

// clonotypeEnv defines the variables of a clonotype:
//
//	ncells     live cells
//	nexact     exact subclonotypes with live cells
//	nchains    largest chain count
//	ndonors    distinct donors
//	ndatasets  distinct datasets
//	umis       total UMIs
//	cdr3_aa    CDR3 amino acids of the first chain of the largest exact subclonotype
//	cdr3_len   length of cdr3_aa
//	gex_frac   fraction of cells with a gene expression call that are called cells
//	feature.X  mean value of feature X over the cells that have it
type clonotypeEnv struct {
	s    *Snapshot
	live []int
}

func (e clonotypeEnv) cells() []*exact.Cell {
	var cells []*exact.Cell
	for _, i := range e.live {
		for c := range e.s.ES[i].Cells {
			if cell := &e.s.ES[i].Cells[c]; !cell.Deleted {
				cells = append(cells, cell)
			}
		}
	}
	return cells
}

// representative returns the member with the most live cells, the first
// one on ties.
func (e clonotypeEnv) representative() *exact.Subclonotype {
	best := lo.MaxBy(e.live, func(a, b int) bool {
		return e.s.ES[a].LiveCells() > e.s.ES[b].LiveCells()
	})
	return &e.s.ES[best]
}

func (e clonotypeEnv) Lookup(name string) (Value, bool) {
	if feature := strings.TrimPrefix(name, "feature."); feature != name {
		var values []float64
		for _, cell := range e.cells() {
			if v, ok := cell.Features[feature]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return Value{}, false
		}
		return Num(lo.Mean(values)), true
	}
	switch name {
	case "ncells":
		return Num(float64(len(e.cells()))), true
	case "nexact":
		return Num(float64(len(e.live))), true
	case "nchains":
		return Num(float64(lo.Max(lo.Map(e.live, func(i, _ int) int { return e.s.ES[i].NumChains() })))), true
	case "ndonors":
		return Num(float64(len(lo.Uniq(lo.Map(e.cells(), func(c *exact.Cell, _ int) int { return c.Donor }))))), true
	case "ndatasets":
		return Num(float64(len(lo.Uniq(lo.Map(e.cells(), func(c *exact.Cell, _ int) int { return c.Dataset }))))), true
	case "umis":
		return Num(float64(lo.SumBy(e.cells(), func(c *exact.Cell) int { return c.UMIs() }))), true
	case "cdr3_aa":
		return Str(e.representative().Shared[0].CDR3AA), true
	case "cdr3_len":
		return Num(float64(len(e.representative().Shared[0].CDR3AA))), true
	case "gex_frac":
		called, known := 0, 0
		for _, cell := range e.cells() {
			switch cell.Gex {
			case exact.GexCell:
				called++
				known++
			case exact.GexNotCell:
				known++
			}
		}
		if known == 0 {
			return Value{}, false
		}
		return Num(float64(called) / float64(known)), true
	}
	return Value{}, false
}
