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

import "github.com/grailbio/vdj/exact"

// qual deletes exact subclonotypes that carry a base which no cell reads
// at QualTrusted and fewer than two cells read at QualSupported, which no
// other exact subclonotype of the clonotype shares although some have
// another base there, and which is not the germline base. Positions without
// a germline base, such as the CDR3, count as disagreeing. Only exact
// subclonotypes with the same chain type and V..J length at a chain are
// compared.
type qual struct{ opts Opts }

func (qual) Name() string { return Qual }

func (f qual) trusted(e *exact.Subclonotype, c, pos int) bool {
	supported := 0
	for k := range e.Cells {
		cell := &e.Cells[k]
		if cell.Deleted || pos >= len(cell.Chains[c].Qual) {
			continue
		}
		q := int(cell.Chains[c].Qual[pos])
		if q >= f.opts.QualTrusted {
			return true
		}
		if q >= f.opts.QualSupported {
			supported++
		}
	}
	return supported >= 2
}

func (f qual) Prepare(s *Snapshot) Evaluator {
	sameShape := func(i, j, c int) bool {
		a, b := &s.ES[i], &s.ES[j]
		return c < b.NumChains() && a.Shared[c].Chain == b.Shared[c].Chain &&
			len(a.Shared[c].Seq) == len(b.Shared[c].Seq)
	}
	untrustedVariant := func(live []int, i int) bool {
		e := &s.ES[i]
		for c := range e.Shared {
			sc := &e.Shared[c]
			var v, j string
			if s.Germline != nil {
				v, j = s.Germline.VSeq(i, c), s.Germline.JSeq(i, c)
			}
			for pos := 0; pos < len(sc.Seq); pos++ {
				if f.trusted(e, c, pos) {
					continue
				}
				base := sc.Seq[pos]
				supported, variant := false, false
				for _, other := range live {
					if other == i || !sameShape(i, other, c) {
						continue
					}
					if s.ES[other].Shared[c].Seq[pos] == base {
						supported = true
						break
					}
					variant = true
				}
				if supported || !variant {
					continue
				}
				if g, ok := sc.GermlineBase(v, j, pos); ok && g == base {
					continue
				}
				return true
			}
		}
		return false
	}
	return func(o int) []Decision {
		live := s.Live(o)
		if len(live) < 2 {
			return nil
		}
		var ds []Decision
		for _, i := range live {
			if untrustedVariant(live, i) {
				ds = append(ds, deleteES(i))
			}
		}
		return ds
	}
}
