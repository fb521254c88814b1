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

package group_test

import (
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/group"
	"github.com/grailbio/vdj/internal/vdjtest"
)

func TestGroup(t *testing.T) {
	l := vdjtest.Light("GGGCCC")
	h := vdjtest.Heavy("ACGTTGCAA")
	es := []exact.Subclonotype{
		vdjtest.Subclonotype("a", 3, h, l),
		// One amino acid away from a.
		vdjtest.Subclonotype("b", 2, vdjtest.Heavy("ACGTTGCAT"), l),
		// One away from b, two from a.
		vdjtest.Subclonotype("c", 2, vdjtest.Heavy("GCGTTGCAT"), l),
		// Same CDR3 as a, another V gene.
		vdjtest.Subclonotype("d", 2, h.Mutate(10), l),
		vdjtest.Subclonotype("e", 2, vdjtest.Heavy("TTTTTTTTT"), l),
		// Deleted.
		vdjtest.Subclonotype("f", 2, h, l),
	}
	es[3].Shared[0].VRef = vdjtest.HeavyV2
	es[5].Filter = "QUAL"
	clonotypes := [][]int{{0}, {1}, {2}, {3}, {4}, {5}}

	groups := group.Group(es, clonotypes, group.DefaultOpts)
	expect.EQ(t, groups, [][]int{{0, 1, 2}, {3}, {4}})

	opts := group.DefaultOpts
	opts.SameVJ = false
	expect.EQ(t, group.Group(es, clonotypes, opts), [][]int{{0, 1, 2, 3}, {4}})

	opts = group.DefaultOpts
	opts.MaxCDR3AADist = 0
	opts.MinGroupSize = 2
	expect.EQ(t, len(group.Group(es, clonotypes, opts)), 0)
	opts.SameVJ = false
	expect.EQ(t, group.Group(es, clonotypes, opts), [][]int{{0, 3}})
}

func TestOptsValidate(t *testing.T) {
	assert.NoError(t, group.DefaultOpts.Validate())
	opts := group.DefaultOpts
	opts.MinGroupSize = 0
	expect.NotNil(t, opts.Validate())
}
