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

package donorref_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/vdj/donorref"
	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/internal/vdjtest"
	"github.com/grailbio/vdj/refdata"
)

// junction returns a distinct 9-base junction for each i.
func junction(i int) string {
	const bases = "ACGT"
	b := make([]byte, 9)
	for j := range b {
		b[j] = bases[i%4]
		i /= 4
	}
	return string(b)
}

// makeES returns nMut exact subclonotypes whose heavy V carries the given
// germline variant, followed by nRef unmutated ones, all from donor.
func makeES(donor, nMut, nRef int, variant map[int]byte) []exact.Subclonotype {
	var es []exact.Subclonotype
	for i := 0; i < nMut+nRef; i++ {
		h := vdjtest.Heavy(junction(1000*donor + i))
		if i < nMut {
			for p, b := range variant {
				h = h.With(p, b)
			}
		}
		s := vdjtest.Subclonotype(fmt.Sprintf("d%d-%d", donor, i), 1, h, vdjtest.Light("AAACCC"))
		for c := range s.Cells {
			s.Cells[c].Donor = donor
		}
		es = append(es, s)
	}
	return es
}

func variantAt(positions ...int) map[int]byte {
	v := vdjtest.Seg(vdjtest.HeavyV)
	m := map[int]byte{}
	for _, p := range positions {
		m[p] = vdjtest.Other(v[p])
	}
	return m
}

func TestInferNoAlleles(t *testing.T) {
	es := makeES(0, 0, 10, nil)
	table, stats := donorref.Infer(es, vdjtest.Reference(), 2, donorref.DefaultOpts)
	expect.EQ(t, stats.Keys, 2)
	expect.EQ(t, stats.Samples, 20)
	expect.EQ(t, stats.AltPositions, 0)
	expect.EQ(t, stats.Alleles, 0)
	expect.EQ(t, len(table.Keys()), 0)
	for i := range es {
		for c := range es[i].Shared {
			expect.EQ(t, table.Assignment(i, c), donorref.Universal)
		}
		expect.EQ(t, table.VSeq(i, 0), vdjtest.Seg(vdjtest.HeavyV))
		expect.EQ(t, table.JSeq(i, 1), vdjtest.Seg(vdjtest.LightJ))
	}
}

func TestInferAllele(t *testing.T) {
	variant := variantAt(20, 30)
	es := append(makeES(0, 8, 8, variant), makeES(1, 0, 8, nil)...)
	table, stats := donorref.Infer(es, vdjtest.Reference(), 3, donorref.DefaultOpts)
	expect.EQ(t, stats.AltPositions, 2)
	expect.EQ(t, stats.Alleles, 1)
	expect.EQ(t, stats.AssignedChains, 8)

	key := donorref.Key{Donor: 0, VRef: vdjtest.HeavyV}
	expect.EQ(t, table.Keys(), []donorref.Key{key})
	alleles := table.Alleles(key)
	assert.EQ(t, len(alleles), 1)
	expect.EQ(t, alleles[0].Support, 8)
	expect.EQ(t, alleles[0].Deviations, []donorref.Deviation{{Pos: 20, Base: variant[20]}, {Pos: 30, Base: variant[30]}})

	for i := range es {
		want := donorref.Universal
		if i < 8 {
			want = 0
		}
		expect.EQ(t, table.Assignment(i, 0), want, "es %d", i)
		expect.EQ(t, table.Assignment(i, 1), donorref.Universal)
	}
	v := table.VSeq(0, 0)
	expect.EQ(t, v[20], variant[20])
	expect.EQ(t, v[30], variant[30])
	expect.EQ(t, table.VSeq(8, 0), vdjtest.Seg(vdjtest.HeavyV))
	// Donor 1 does not carry the allele.
	expect.EQ(t, table.VSeq(16, 0), vdjtest.Seg(vdjtest.HeavyV))
}

func TestInferThresholdBoundary(t *testing.T) {
	tests := []struct {
		nMut, nRef int
		want       int
	}{
		{4, 12, 1}, // count == 4, fraction == 0.25
		{3, 9, 0},  // count below the minimum
		{4, 13, 0}, // fraction just below 0.25
		{5, 15, 1},
	}
	for _, test := range tests {
		es := makeES(0, test.nMut, test.nRef, variantAt(40))
		_, stats := donorref.Infer(es, vdjtest.Reference(), 1, donorref.DefaultOpts)
		expect.EQ(t, stats.AltPositions, test.want, "nMut %d nRef %d", test.nMut, test.nRef)
	}
}

func TestInferJunctionTrim(t *testing.T) {
	pos := vdjtest.VLen - 12
	es := makeES(0, 8, 8, variantAt(pos))
	_, stats := donorref.Infer(es, vdjtest.Reference(), 1, donorref.DefaultOpts)
	expect.EQ(t, stats.AltPositions, 0)

	opts := donorref.DefaultOpts
	opts.JunctionTrim = 5
	_, stats = donorref.Infer(es, vdjtest.Reference(), 1, opts)
	expect.EQ(t, stats.AltPositions, 1)

	opts.Disable = true
	_, stats = donorref.Infer(es, vdjtest.Reference(), 1, opts)
	expect.EQ(t, stats, donorref.Stats{})
}

func TestInferIndependentOfParallelism(t *testing.T) {
	es := append(makeES(0, 6, 10, variantAt(12, 50)), makeES(1, 5, 5, variantAt(33))...)
	es = append(es, makeES(2, 7, 3, variantAt(7))...)
	t1, s1 := donorref.Infer(es, vdjtest.Reference(), 1, donorref.DefaultOpts)
	t8, s8 := donorref.Infer(es, vdjtest.Reference(), 8, donorref.DefaultOpts)
	expect.EQ(t, s1, s8)
	expect.EQ(t, t1.All(), t8.All())
	expect.EQ(t, len(t1.All()), 3)
	for i := range es {
		expect.EQ(t, t1.Assignment(i, 0), t8.Assignment(i, 0))
	}
}

// hiddenSegment hides one segment of a reference.
type hiddenSegment struct {
	refdata.Reference
	id int
}

func (r hiddenSegment) Segment(id int) (*refdata.Segment, bool) {
	if id == r.id {
		return nil, false
	}
	return r.Reference.Segment(id)
}

func TestInferMissingSegmentPanics(t *testing.T) {
	es := makeES(0, 6, 10, variantAt(12, 50))
	ref := hiddenSegment{vdjtest.Reference(), vdjtest.HeavyV}
	for _, parallelism := range []int{1, 4} {
		var msg interface{}
		func() {
			defer func() { msg = recover() }()
			donorref.Infer(es, ref, parallelism, donorref.DefaultOpts)
		}()
		assert.NotNil(t, msg, "parallelism %d", parallelism)
		assert.HasSubstr(t, fmt.Sprint(msg), fmt.Sprintf("V segment %d missing", vdjtest.HeavyV))
	}
}

func TestWriteFASTA(t *testing.T) {
	es := makeES(4, 8, 8, variantAt(20))
	ref := vdjtest.Reference()
	table, _ := donorref.Infer(es, ref, 1, donorref.DefaultOpts)
	var buf bytes.Buffer
	assert.NoError(t, donorref.WriteFASTA(&buf, table, ref))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.EQ(t, len(lines), 3)
	v := vdjtest.Seg(vdjtest.HeavyV)
	expect.EQ(t, lines[0], fmt.Sprintf(">donor4|IGHV1|%d|alt1|support=8|21%c", vdjtest.HeavyV, vdjtest.Other(v[20])))
	expect.EQ(t, lines[1]+lines[2], table.Alleles(donorref.Key{Donor: 4, VRef: vdjtest.HeavyV})[0].Seq)
	expect.EQ(t, len(lines[1]), 80)
}

func TestOptsValidate(t *testing.T) {
	assert.NoError(t, donorref.DefaultOpts.Validate())
	opts := donorref.DefaultOpts
	opts.MinAltFraction = 1.5
	expect.NotNil(t, opts.Validate())
	opts = donorref.DefaultOpts
	opts.MinAltCount = 0
	expect.NotNil(t, opts.Validate())
}
