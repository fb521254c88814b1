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

// Package donorref infers, for each donor, the germline alleles of the V
// segments that differ from the universal reference. Without it, a germline
// difference would look like a somatic mutation shared by every lineage of
// the donor that uses the segment.
package donorref

import (
	"fmt"
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/refdata"
)

// Universal is the allele index of chains that use the universal reference.
const Universal = -1

// Key identifies a donor and a universal V segment.
type Key struct {
	Donor, VRef int
}

// Deviation is one base where an allele differs from the universal segment.
type Deviation struct {
	Pos  int
	Base byte
}

// Allele is an inferred donor variant of a universal V segment.
type Allele struct {
	Key
	// Deviations lists the differences from the universal segment, sorted by
	// position.
	Deviations []Deviation
	// Support is the number of sampled exact subclonotypes whose footprint
	// matched the allele.
	Support int
	// Seq is the allele sequence.
	Seq string
}

// Stats summarizes an inference run.
type Stats struct {
	// Keys is the number of (donor, V segment) pairs examined.
	Keys int
	// Samples is the number of sampled chains.
	Samples int
	// AltPositions is the number of alternate-allele positions.
	AltPositions int
	// Alleles is the number of alleles called.
	Alleles int
	// AssignedChains is the number of chains assigned a donor allele.
	AssignedChains int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Keys += o.Keys
	s.Samples += o.Samples
	s.AltPositions += o.AltPositions
	s.Alleles += o.Alleles
	s.AssignedChains += o.AssignedChains
	return s
}

// Table is the result of Infer. It is read-only and safe for concurrent use.
type Table struct {
	ref     refdata.Reference
	es      []exact.Subclonotype
	keys    []Key
	alleles map[Key][]Allele
	// assign[i][c] is the allele index of chain c of exact subclonotype i, or
	// Universal.
	assign [][]int
	donors []int
}

// Keys returns the (donor, V segment) pairs that have at least one allele,
// sorted.
func (t *Table) Keys() []Key { return t.keys }

// Alleles returns the alleles of the given donor and V segment, most
// supported first.
func (t *Table) Alleles(k Key) []Allele { return t.alleles[k] }

// All returns every allele, ordered by key.
func (t *Table) All() []Allele {
	var all []Allele
	for _, k := range t.keys {
		all = append(all, t.alleles[k]...)
	}
	return all
}

// Assignment returns the allele index of chain c of exact subclonotype es,
// or Universal.
func (t *Table) Assignment(es, c int) int { return t.assign[es][c] }

// VSeq returns the donor-corrected V segment of chain c of exact
// subclonotype es.
func (t *Table) VSeq(es, c int) string {
	sc := &t.es[es].Shared[c]
	if a := t.assign[es][c]; a != Universal {
		return t.alleles[Key{t.donors[es], sc.VRef}][a].Seq
	}
	seg, _ := t.ref.Segment(sc.VRef)
	return seg.Seq
}

// JSeq returns the J segment of chain c of exact subclonotype es. J segments
// are not donor-corrected.
func (t *Table) JSeq(es, c int) string {
	seg, _ := t.ref.Segment(t.es[es].Shared[c].JRef)
	return seg.Seq
}

// sample is one chain of one exact subclonotype.
type sample struct {
	es, chain int
}

// keySamples lists the samples of one key. It is stored in an llrb.Tree
// ordered by key.
type keySamples struct {
	Key
	samples []sample
}

// Compare orders by donor, then V segment, for use in llrb.
func (k *keySamples) Compare(c llrb.Comparable) int {
	o := c.(*keySamples)
	if diff := k.Donor - o.Donor; diff != 0 {
		return diff
	}
	return k.VRef - o.VRef
}

type keyResult struct {
	alleles      []Allele
	assign       []int // parallel to the key's samples.
	altPositions int
}

// Infer computes the donor allele table. Each exact subclonotype contributes
// one sample per chain, attributed to its majority donor. The work is spread
// over parallelism workers, one (donor, V segment) pair at a time; the result
// does not depend on the number of workers.
func Infer(es []exact.Subclonotype, ref refdata.Reference, parallelism int, opts Opts) (*Table, Stats) {
	t := &Table{
		ref:     ref,
		es:      es,
		alleles: map[Key][]Allele{},
		assign:  make([][]int, len(es)),
		donors:  make([]int, len(es)),
	}
	byKey := llrb.Tree{}
	for i := range es {
		t.donors[i] = es[i].Donor()
		t.assign[i] = make([]int, es[i].NumChains())
		for c := range t.assign[i] {
			t.assign[i][c] = Universal
			if opts.Disable || t.donors[i] < 0 {
				continue
			}
			k := &keySamples{Key: Key{t.donors[i], es[i].Shared[c].VRef}}
			if e := byKey.Get(k); e != nil {
				k = e.(*keySamples)
			} else {
				byKey.Insert(k)
			}
			k.samples = append(k.samples, sample{i, c})
		}
	}
	keys := make([]*keySamples, 0, byKey.Len())
	byKey.Do(func(c llrb.Comparable) bool {
		keys = append(keys, c.(*keySamples))
		return false
	})

	results := make([]keyResult, len(keys))
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(keys) {
		parallelism = len(keys)
	}
	if len(keys) > 0 {
		err := traverse.Each(parallelism, func(jobIdx int) error {
			startIdx := (jobIdx * len(keys)) / parallelism
			endIdx := ((jobIdx + 1) * len(keys)) / parallelism
			for i := startIdx; i < endIdx; i++ {
				k := keys[i]
				seg, ok := ref.Segment(k.VRef)
				if !ok {
					return errors.E(errors.NotExist, fmt.Sprintf("V segment %d missing from the reference", k.VRef))
				}
				results[i] = inferKey(k.Key, seg.Seq, k.samples, es, opts)
			}
			return nil
		})
		if err != nil {
			// Aggregate validated every segment id.
			log.Panicf("donorref: %v", err)
		}
	}

	stats := Stats{Keys: len(keys)}
	for i, k := range keys {
		r := &results[i]
		stats.Samples += len(k.samples)
		stats.AltPositions += r.altPositions
		stats.Alleles += len(r.alleles)
		if len(r.alleles) > 0 {
			t.alleles[k.Key] = r.alleles
			t.keys = append(t.keys, k.Key)
		}
		for j, s := range k.samples {
			t.assign[s.es][s.chain] = r.assign[j]
			if r.assign[j] != Universal {
				stats.AssignedChains++
			}
		}
	}
	log.Printf("donorref: %d donor/V pairs, %d alternate positions, %d alleles, %d chains assigned",
		stats.Keys, stats.AltPositions, stats.Alleles, stats.AssignedChains)
	return t, stats
}

// acgtIndex maps A, C, G, T to {0,1,2,3} and other bytes to -1.
var acgtIndex [256]int8

func init() {
	for i := range acgtIndex {
		acgtIndex[i] = -1
	}
	for i, b := range []byte("ACGT") {
		acgtIndex[b] = int8(i)
	}
}

// coverage returns the number of leading V bases of the chain that are
// examined: up to the junction trim, the CDR3 start and the sequence end.
func coverage(sc *exact.SharedChain, limit int) int {
	n := limit
	if sc.CDR3Start < n {
		n = sc.CDR3Start
	}
	if len(sc.Seq) < n {
		n = len(sc.Seq)
	}
	return n
}

// altPositions returns the positions of vseq[:limit] where a non-reference
// base is carried by at least opts.MinAltCount samples and at least
// opts.MinAltFraction of the samples covering the position.
func altPositions(vseq string, limit int, seqs []string, covers []int, opts Opts) []int {
	counts := make([][4]int, limit)
	totals := make([]int, limit)
	for i, seq := range seqs {
		for p := 0; p < covers[i]; p++ {
			if b := acgtIndex[seq[p]]; b >= 0 {
				counts[p][b]++
				totals[p]++
			}
		}
	}
	var alt []int
	for p := 0; p < limit; p++ {
		refBase := acgtIndex[vseq[p]]
		for b, n := range counts[p] {
			if int8(b) == refBase {
				continue
			}
			if n >= opts.MinAltCount && float64(n) >= opts.MinAltFraction*float64(totals[p]) {
				alt = append(alt, p)
				break
			}
		}
	}
	return alt
}

// inferKey calls the alleles of one (donor, V segment) pair, and assigns each
// sample to the closest allele.
func inferKey(k Key, vseq string, samples []sample, es []exact.Subclonotype, opts Opts) keyResult {
	r := keyResult{assign: make([]int, len(samples))}
	for i := range r.assign {
		r.assign[i] = Universal
	}
	limit := len(vseq) - opts.JunctionTrim
	if limit <= 0 {
		return r
	}
	seqs := make([]string, len(samples))
	covers := make([]int, len(samples))
	for i, s := range samples {
		sc := &es[s.es].Shared[s.chain]
		seqs[i] = sc.Seq
		covers[i] = coverage(sc, limit)
	}
	alt := altPositions(vseq, limit, seqs, covers, opts)
	r.altPositions = len(alt)
	if len(alt) == 0 {
		return r
	}

	// Cluster the footprints of the samples that cover every alternate
	// position and carry only ACGT there.
	footprint := func(i int) (string, bool) {
		if covers[i] <= alt[len(alt)-1] {
			return "", false
		}
		fp := make([]byte, len(alt))
		for j, p := range alt {
			fp[j] = seqs[i][p]
			if acgtIndex[fp[j]] < 0 {
				return "", false
			}
		}
		return string(fp), true
	}
	refFP := make([]byte, len(alt))
	for j, p := range alt {
		refFP[j] = vseq[p]
	}
	support := map[string]int{}
	for i := range samples {
		if fp, ok := footprint(i); ok && fp != string(refFP) {
			support[fp]++
		}
	}
	var fps []string
	for fp, n := range support {
		if n >= opts.MinAlleleSupport {
			fps = append(fps, fp)
		}
	}
	sort.Slice(fps, func(i, j int) bool {
		if support[fps[i]] != support[fps[j]] {
			return support[fps[i]] > support[fps[j]]
		}
		return fps[i] < fps[j]
	})
	if len(fps) == 0 {
		return r
	}
	for _, fp := range fps {
		a := Allele{Key: k, Support: support[fp]}
		seq := []byte(vseq)
		for j, p := range alt {
			if fp[j] != vseq[p] {
				a.Deviations = append(a.Deviations, Deviation{Pos: p, Base: fp[j]})
				seq[p] = fp[j]
			}
		}
		a.Seq = string(seq)
		r.alleles = append(r.alleles, a)
	}

	// Assign each sample to the candidate with the fewest mismatches over the
	// alternate positions it covers. The universal reference wins ties, then
	// the more supported allele.
	candidates := append([]string{string(refFP)}, fps...)
	for i := range samples {
		best, bestMis := Universal, len(alt)+1
		for ci, fp := range candidates {
			mis := 0
			for j, p := range alt {
				if p < covers[i] && seqs[i][p] != fp[j] {
					mis++
				}
			}
			if mis < bestMis {
				best, bestMis = ci-1, mis
			}
		}
		r.assign[i] = best
	}
	return r
}
