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

// graphFilter looks at the heavy-light pairings inside a clonotype. A
// pairing whose cells are outnumbered GraphRatio times by another pairing
// sharing its heavy or its light chain is taken for ambient contamination,
// and its exact subclonotypes are deleted.
type graphFilter struct{ opts Opts }

func (graphFilter) Name() string { return GraphFilter }

type pairing struct {
	heavy, light string
}

func (f graphFilter) Prepare(s *Snapshot) Evaluator {
	return func(o int) []Decision {
		live := s.Live(o)
		weights := map[pairing]int{}
		pairings := map[int]pairing{}
		for _, i := range live {
			e := &s.ES[i]
			if e.NumChains() != 2 || !e.Shared[0].Chain.IsHeavy() || e.Shared[1].Chain.IsHeavy() {
				continue
			}
			p := pairing{chainKey(&e.Shared[0]), chainKey(&e.Shared[1])}
			pairings[i] = p
			weights[p] += e.LiveCells()
		}
		if len(weights) < 2 {
			return nil
		}
		strongest := map[string]int{}
		for p, w := range weights {
			if w > strongest[p.heavy] {
				strongest[p.heavy] = w
			}
			if w > strongest[p.light] {
				strongest[p.light] = w
			}
		}
		var ds []Decision
		for _, i := range live {
			p, ok := pairings[i]
			if !ok {
				continue
			}
			w := f.opts.GraphRatio * float64(weights[p])
			if float64(strongest[p.heavy]) >= w || float64(strongest[p.light]) >= w {
				ds = append(ds, deleteES(i))
			}
		}
		return ds
	}
}
