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

package filter_test

import (
	"fmt"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/filter"
	"github.com/grailbio/vdj/internal/vdjtest"
)

var (
	heavy  = vdjtest.Heavy("ACGTTGCAA")
	light  = vdjtest.Light("GGGCCC")
	light2 = vdjtest.Light("TTTAAA")
	light3 = vdjtest.Light("CATCAT")
)

func run(t *testing.T, es []exact.Subclonotype, orbits [][]int, opts filter.Opts) filter.Stats {
	c, err := filter.NewCascade(opts)
	assert.NoError(t, err)
	return c.Run(es, orbits, vdjtest.Germline{ES: es}, 4)
}

// only returns options that run the named filter alone.
func only(name string) filter.Opts {
	opts := filter.DefaultOpts
	opts.NoNotGex = name != filter.NotGex
	opts.NoDuplicateBarcode = name != filter.DuplicateBarcode
	opts.NoCross = name != filter.Cross
	opts.NoWeakChains = name != filter.WeakChains
	opts.NoFoursieKill = name != filter.FoursieKill
	opts.NoWeakOnesies = name != filter.WeakOnesies
	opts.NoQual = name != filter.Qual
	opts.NoGraphFilter = name != filter.GraphFilter
	return opts
}

func singletons(n int) [][]int {
	orbits := make([][]int, n)
	for i := range orbits {
		orbits[i] = []int{i}
	}
	return orbits
}

func filters(es []exact.Subclonotype) []string {
	out := make([]string, len(es))
	for i := range es {
		out[i] = es[i].Filter
	}
	return out
}

func TestCascadeNames(t *testing.T) {
	c, err := filter.NewCascade(filter.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, c.Names(), []string{
		filter.NotGex, filter.DuplicateBarcode, filter.Cross, filter.WeakChains, filter.FoursieKill,
		filter.WeakOnesies, filter.Qual, filter.GraphFilter, filter.DonorMixing,
	})

	opts := filter.DefaultOpts
	opts.NoQual = true
	opts.UserFilter = "ncells > 1"
	c, err = filter.NewCascade(opts)
	assert.NoError(t, err)
	names := c.Names()
	expect.EQ(t, len(names), 9)
	expect.EQ(t, names[len(names)-1], filter.UserFilter)

	opts = filter.DefaultOpts
	opts.NoFilters = true
	c, err = filter.NewCascade(opts)
	assert.NoError(t, err)
	expect.EQ(t, len(c.Names()), 0)
}

func TestCascadeConfigErrors(t *testing.T) {
	for _, mod := range []func(*filter.Opts){
		func(o *filter.Opts) { o.NoFilters, o.UserFilter = true, "ncells > 1" },
		func(o *filter.Opts) { o.UserFilter = "ncells >" },
		func(o *filter.Opts) { o.UserFilter = "len(cdr3_aa) > 3" },
		func(o *filter.Opts) { o.GraphRatio = 1 },
		func(o *filter.Opts) { o.QualSupported = 70 },
	} {
		opts := filter.DefaultOpts
		mod(&opts)
		_, err := filter.NewCascade(opts)
		expect.True(t, errors.Is(errors.Invalid, err), "%+v: %v", opts, err)
	}
}

func TestNotGex(t *testing.T) {
	es := []exact.Subclonotype{
		vdjtest.Subclonotype("a", 3, heavy, light),
		vdjtest.Subclonotype("b", 2, heavy, light2),
	}
	es[0].Cells[1].Gex = exact.GexNotCell
	es[0].Cells[2].Gex = exact.GexCell
	es[1].Cells[0].Gex = exact.GexNotCell
	es[1].Cells[1].Gex = exact.GexNotCell
	stats := run(t, es, singletons(2), only(filter.NotGex))
	expect.EQ(t, filters(es), []string{"", filter.NotGex})
	expect.True(t, es[0].Cells[1].Deleted)
	expect.EQ(t, es[0].Cells[1].Filter, filter.NotGex)
	expect.EQ(t, es[0].LiveCells(), 2)
	expect.EQ(t, stats.Filters[0], filter.FilterStats{Name: filter.NotGex, Subclonotypes: 1, Cells: 3})
}

func TestDuplicateBarcode(t *testing.T) {
	strong := heavy
	strong.UMIs = 9
	es := []exact.Subclonotype{
		vdjtest.Subclonotype("a", 2, heavy, light),
		vdjtest.Subclonotype("b", 2, strong, light2),
		vdjtest.Subclonotype("c", 1, heavy, light3),
	}
	es[1].Cells[0].Barcode = es[0].Cells[0].Barcode
	// Same barcode in another dataset is a different cell.
	es[2].Cells[0].Barcode = es[0].Cells[1].Barcode
	es[2].Cells[0].Dataset = 1
	run(t, es, singletons(3), only(filter.DuplicateBarcode))
	expect.True(t, es[0].Cells[0].Deleted)
	expect.False(t, es[1].Cells[0].Deleted)
	expect.False(t, es[0].Cells[1].Deleted)
	expect.False(t, es[2].Cells[0].Deleted)
	expect.EQ(t, filters(es), []string{"", "", ""})
}

func setDataset(s *exact.Subclonotype, dataset, origin int) {
	for i := range s.Cells {
		s.Cells[i].Dataset, s.Cells[i].Origin = dataset, origin
	}
}

func TestCross(t *testing.T) {
	es := []exact.Subclonotype{
		vdjtest.Subclonotype("a", 12, heavy, light),
		vdjtest.Subclonotype("b", 200, heavy, light2),
		vdjtest.Subclonotype("d", 12, heavy.Mutate(3), light),
		vdjtest.Subclonotype("e", 12, heavy.Mutate(4), light),
		vdjtest.Subclonotype("f", 200, heavy.Mutate(5), light),
		vdjtest.Subclonotype("g", 9, heavy.Mutate(6), light),
	}
	// b and d are split over the two datasets of origin 0.
	for i := 0; i < 100; i++ {
		es[1].Cells[i].Dataset = 1
	}
	for i := 0; i < 6; i++ {
		es[2].Cells[i].Dataset = 1
	}
	// e and f come from a dataset whose origin has no sibling.
	setDataset(&es[3], 2, 1)
	setDataset(&es[4], 2, 1)
	stats := run(t, es, singletons(len(es)), only(filter.Cross))
	expect.EQ(t, filters(es), []string{filter.Cross, "", "", "", "", ""})
	expect.EQ(t, stats.Filters[0].Cells, 12)
}

func TestWeakChains(t *testing.T) {
	strongH, strongL := heavy, light
	strongH.UMIs, strongL.UMIs = 20, 20
	weak, fair := light2, light2
	weak.UMIs, fair.UMIs = 1, 5
	es := []exact.Subclonotype{
		vdjtest.Subclonotype("a", 1, strongH, strongL, weak),
		vdjtest.Subclonotype("b", 1, strongH, strongL, fair),
		vdjtest.Subclonotype("c", 1, strongH, weak),
	}
	run(t, es, singletons(3), only(filter.WeakChains))
	expect.EQ(t, filters(es), []string{filter.WeakChains, "", ""})
}

func TestFoursieKill(t *testing.T) {
	h2 := vdjtest.Heavy("TTTTTTTTT")
	es := []exact.Subclonotype{
		vdjtest.Subclonotype("twosie", 10, heavy, light),
		vdjtest.Subclonotype("rare", 9, h2, light2),
		vdjtest.Subclonotype("foursie", 1, heavy, light, h2, light3),
		vdjtest.Subclonotype("foursie2", 1, h2, light2, heavy, light3),
	}
	run(t, es, singletons(4), only(filter.FoursieKill))
	expect.EQ(t, filters(es), []string{"", "", filter.FoursieKill, ""})
}

func TestWeakOnesies(t *testing.T) {
	es := []exact.Subclonotype{
		vdjtest.Subclonotype("big", 1200, heavy, light),
		vdjtest.Subclonotype("frag", 1, heavy.Mutate(2)),
		vdjtest.Subclonotype("other", 1, vdjtest.Heavy("TTTTTTTTT")),
		vdjtest.Subclonotype("abundant", 5, heavy.Mutate(7)),
	}
	run(t, es, singletons(4), only(filter.WeakOnesies))
	expect.EQ(t, filters(es), []string{"", filter.WeakOnesies, "", ""})
}

func qualFixture(lowQual byte, lowCells int) []exact.Subclonotype {
	hb := heavy.Mutate(20)
	hb.LowQual = map[int]byte{20: lowQual}
	return []exact.Subclonotype{
		vdjtest.Subclonotype("a", 3, heavy, light),
		vdjtest.Subclonotype("b", lowCells, hb, light),
	}
}

func TestQual(t *testing.T) {
	es := qualFixture(30, 1)
	stats := run(t, es, [][]int{{0, 1}}, filter.DefaultOpts)
	expect.EQ(t, filters(es), []string{"", filter.Qual})
	for _, fs := range stats.Filters {
		if fs.Name == filter.Qual {
			expect.EQ(t, fs.Subclonotypes, 1)
		} else {
			expect.EQ(t, fs.Subclonotypes, 0, fs.Name)
		}
	}

	es = qualFixture(30, 1)
	opts := filter.DefaultOpts
	opts.NoQual = true
	run(t, es, [][]int{{0, 1}}, opts)
	expect.EQ(t, filters(es), []string{"", ""})

	// Two cells at Q45 make the base trusted.
	es = qualFixture(45, 2)
	run(t, es, [][]int{{0, 1}}, only(filter.Qual))
	expect.EQ(t, filters(es), []string{"", ""})

	// A low quality base that agrees with the germline is kept.
	low := heavy
	low.LowQual = map[int]byte{20: 30}
	es = []exact.Subclonotype{
		vdjtest.Subclonotype("a", 3, heavy.Mutate(20), light),
		vdjtest.Subclonotype("b", 1, low, light),
	}
	run(t, es, [][]int{{0, 1}}, only(filter.Qual))
	expect.EQ(t, filters(es), []string{"", ""})

	// Without another member the base is not variant.
	es = qualFixture(30, 1)
	run(t, es, [][]int{{0}, {1}}, only(filter.Qual))
	expect.EQ(t, filters(es), []string{"", ""})
}

func TestGraphFilter(t *testing.T) {
	es := []exact.Subclonotype{
		vdjtest.Subclonotype("main", 20, heavy, light),
		vdjtest.Subclonotype("ambient", 2, heavy, light2),
		vdjtest.Subclonotype("minor", 3, heavy, light3),
		vdjtest.Subclonotype("onesie", 1, heavy),
	}
	run(t, es, [][]int{{0, 1, 2, 3}}, only(filter.GraphFilter))
	expect.EQ(t, filters(es), []string{"", filter.GraphFilter, "", ""})
}

func TestDonorMixing(t *testing.T) {
	fixture := func() []exact.Subclonotype {
		es := []exact.Subclonotype{
			vdjtest.Subclonotype("a", 3, heavy, light),
			vdjtest.Subclonotype("b", 3, heavy.Mutate(3), light),
			vdjtest.Subclonotype("c", 3, heavy, light2),
		}
		for i := range es[1].Cells {
			es[1].Cells[i].Donor = 1
		}
		return es
	}
	es := fixture()
	run(t, es, [][]int{{0, 1}, {2}}, only(""))
	expect.EQ(t, filters(es), []string{filter.DonorMixing, filter.DonorMixing, ""})

	es = fixture()
	opts := only("")
	opts.AllowDonorMixing = true
	stats := run(t, es, [][]int{{0, 1}, {2}}, opts)
	expect.EQ(t, filters(es), []string{"", "", ""})
	expect.EQ(t, es[0].Marks, []string{filter.DonorMixing})
	expect.EQ(t, es[1].Marks, []string{filter.DonorMixing})
	expect.EQ(t, len(es[2].Marks), 0)
	expect.EQ(t, stats.Filters[0].Marked, 2)
}

func TestUserFilter(t *testing.T) {
	es := []exact.Subclonotype{
		vdjtest.Subclonotype("a", 2, heavy, light),
		vdjtest.Subclonotype("b", 5, heavy.Mutate(3), light2),
		vdjtest.Subclonotype("c", 1, heavy.Mutate(4), light2),
	}
	es[1].Cells[0].Features = map[string]float64{"CD19": 4}
	tests := []struct {
		expr string
		want []string
	}{
		{"ncells >= 3", []string{filter.UserFilter, "", ""}},
		{"nexact == 1 && nchains == 2", []string{"", filter.UserFilter, filter.UserFilter}},
		{"feature.CD19 > 3", []string{"", "", ""}},
		{"feature.CD19 > 5", []string{"", filter.UserFilter, filter.UserFilter}},
		{fmt.Sprintf("cdr3_aa == %q", es[0].Shared[0].CDR3AA), []string{"", "", ""}},
		{"umis / ncells > 10", []string{filter.UserFilter, filter.UserFilter, filter.UserFilter}},
		{"ndonors == 1 && !(gex_frac < 0.5)", []string{"", "", ""}},
	}
	for _, test := range tests {
		es := append([]exact.Subclonotype(nil), es...)
		opts := only("")
		opts.UserFilter = test.expr
		run(t, es, [][]int{{0}, {1, 2}}, opts)
		expect.EQ(t, filters(es), test.want, test.expr)
	}
}

func fullFixture() ([]exact.Subclonotype, [][]int) {
	var es []exact.Subclonotype
	for k := 0; k < 30; k++ {
		h := heavy.Mutate(k % 10)
		es = append(es, vdjtest.Subclonotype(fmt.Sprintf("x%d", k), 1+k%4, h, light))
		pos := 40 + k%3
		hb := h.Mutate(pos)
		hb.LowQual = map[int]byte{pos: 20}
		es = append(es, vdjtest.Subclonotype(fmt.Sprintf("y%d", k), 1, hb, light))
		if k%3 == 0 {
			es = append(es, vdjtest.Subclonotype(fmt.Sprintf("z%d", k), 2, h, light2))
		}
	}
	es[4].Cells[0].Gex = exact.GexNotCell
	var orbits [][]int
	for i := 0; i < len(es); i += 5 {
		var o []int
		for j := i; j < i+5 && j < len(es); j++ {
			o = append(o, j)
		}
		orbits = append(orbits, o)
	}
	return es, orbits
}

func TestCascadeIndependentOfParallelism(t *testing.T) {
	c, err := filter.NewCascade(filter.DefaultOpts)
	assert.NoError(t, err)
	es1, orbits := fullFixture()
	s1 := c.Run(es1, orbits, vdjtest.Germline{ES: es1}, 1)
	es8, _ := fullFixture()
	s8 := c.Run(es8, orbits, vdjtest.Germline{ES: es8}, 8)
	expect.EQ(t, s1, s8)
	expect.EQ(t, es1, es8)
	deleted := 0
	for _, fs := range s1.Filters {
		deleted += fs.Subclonotypes
	}
	expect.GE(t, deleted, 1)
}

func TestOptsValidate(t *testing.T) {
	assert.NoError(t, filter.DefaultOpts.Validate())
}
