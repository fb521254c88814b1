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

import "github.com/samber/lo"

// donorMixing deletes clonotypes whose cells come from more than one donor.
// Cells of different people cannot share an ancestor, so such a clonotype
// is a false join. With AllowDonorMixing the clonotype is only marked.
type donorMixing struct{ opts Opts }

func (donorMixing) Name() string { return DonorMixing }

func (f donorMixing) Prepare(s *Snapshot) Evaluator {
	return func(o int) []Decision {
		live := s.Live(o)
		var donors []int
		for _, i := range live {
			donors = append(donors, s.ES[i].Donors()...)
		}
		if len(lo.Uniq(donors)) < 2 {
			return nil
		}
		if f.opts.AllowDonorMixing {
			return lo.Map(live, func(i, _ int) Decision { return markES(i) })
		}
		return deleteAll(live)
	}
}
