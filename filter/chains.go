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
	"strconv"

	"github.com/grailbio/vdj/exact"
	"github.com/samber/lo"
)

// weakChains deletes exact subclonotypes with three or more chains when one
// chain has far fewer UMIs than the strongest. Such a chain usually comes
// from a second cell sharing the barcode, or from ambient RNA.
type weakChains struct{ opts Opts }

func (weakChains) Name() string { return WeakChains }

func (f weakChains) Prepare(s *Snapshot) Evaluator {
	return func(o int) []Decision {
		var ds []Decision
		for _, i := range s.Live(o) {
			e := &s.ES[i]
			if e.NumChains() < 3 {
				continue
			}
			umis := make([]int, e.NumChains())
			for c := range umis {
				umis[c] = e.ChainUMIs(c)
			}
			if float64(lo.Min(umis)) < f.opts.WeakChainFraction*float64(lo.Max(umis)) {
				ds = append(ds, deleteES(i))
			}
		}
		return ds
	}
}

// chainKey identifies a chain by type and V..J sequence.
func chainKey(sc *exact.SharedChain) string {
	return strconv.Itoa(int(sc.Chain)) + ":" + sc.Seq
}

func pairKey(a, b *exact.SharedChain) string {
	return chainKey(a) + "|" + chainKey(b)
}

// foursieKill deletes exact subclonotypes with four or more chains that
// contain both chains of an abundant two-chain exact subclonotype. They are
// doublets of a cell of that twosie and another cell.
type foursieKill struct{ opts Opts }

func (foursieKill) Name() string { return FoursieKill }

func (f foursieKill) Prepare(s *Snapshot) Evaluator {
	twosies := map[string]bool{}
	for i := range s.ES {
		e := &s.ES[i]
		if e.NumChains() == 2 && e.LiveCells() >= f.opts.FoursieMinTwosieCells {
			twosies[pairKey(&e.Shared[0], &e.Shared[1])] = true
		}
	}
	return func(o int) []Decision {
		var ds []Decision
		for _, i := range s.Live(o) {
			e := &s.ES[i]
			if e.NumChains() < 4 {
				continue
			}
		pairs:
			for c1 := 0; c1 < e.NumChains(); c1++ {
				for c2 := c1 + 1; c2 < e.NumChains(); c2++ {
					if twosies[pairKey(&e.Shared[c1], &e.Shared[c2])] {
						ds = append(ds, deleteES(i))
						break pairs
					}
				}
			}
		}
		return ds
	}
}

// cdr3Key identifies a chain by type and CDR3 nucleotides.
func cdr3Key(sc *exact.SharedChain) string {
	return strconv.Itoa(int(sc.Chain)) + ":" + sc.CDR3()
}

// weakOnesies deletes small clonotypes made only of one-chain exact
// subclonotypes when their CDR3 also occurs in a multi-chain exact
// subclonotype. They are fragments of that lineage that could not be
// merged.
type weakOnesies struct{ opts Opts }

func (weakOnesies) Name() string { return WeakOnesies }

func (f weakOnesies) Prepare(s *Snapshot) Evaluator {
	multi := map[string]bool{}
	for i := range s.ES {
		e := &s.ES[i]
		if e.NumChains() < 2 || e.LiveCells() == 0 {
			continue
		}
		for c := range e.Shared {
			multi[cdr3Key(&e.Shared[c])] = true
		}
	}
	limit := f.opts.WeakOnesieFraction * float64(s.TotalCells())
	return func(o int) []Decision {
		live := s.Live(o)
		if len(live) == 0 {
			return nil
		}
		cells, shared := 0, false
		for _, i := range live {
			e := &s.ES[i]
			if e.NumChains() != 1 {
				return nil
			}
			cells += e.LiveCells()
			shared = shared || multi[cdr3Key(&e.Shared[0])]
		}
		if !shared || float64(cells) >= limit {
			return nil
		}
		return deleteAll(live)
	}
}
