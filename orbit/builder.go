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

package orbit

import (
	"sort"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/join"
)

// Stats summarizes orbit construction.
type Stats struct {
	// Joins is the number of accepted joins applied.
	Joins int
	// Unions is the number of joins that merged two distinct orbits.
	Unions int
	// Onesies is the number of one-chain exact subclonotypes.
	Onesies int
	// OnesiesMerged is the number of onesies merged into a multi-chain orbit.
	OnesiesMerged int
	// OnesiesAmbiguous is the number of onesies compatible with more than one
	// multi-chain orbit.
	OnesiesAmbiguous int
	// OnesiesTooSmall is the number of onesies with a unique target that
	// hold too few cells.
	OnesiesTooSmall int
	// Orbits is the final number of orbits.
	Orbits int
}

// Builder applies joins to an Equivalence. Apply may be called from
// multiple goroutines.
type Builder struct {
	mu    sync.Mutex
	eq    Equivalence
	stats Stats
}

// NewBuilder returns a Builder over eq.
func NewBuilder(eq Equivalence) *Builder {
	return &Builder{eq: eq}
}

// Apply unions the two sides of every join. Joins from different batches
// may be applied in any order.
func (b *Builder) Apply(joins []join.Join) {
	if b.eq.Concurrent() {
		unions := 0
		for _, j := range joins {
			if b.eq.Union(j.A, j.B) {
				unions++
			}
		}
		b.mu.Lock()
		b.stats.Joins += len(joins)
		b.stats.Unions += unions
		b.mu.Unlock()
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, j := range joins {
		if b.eq.Union(j.A, j.B) {
			b.stats.Unions++
		}
	}
	b.stats.Joins += len(joins)
}

// onesieKey identifies the chains a onesie may attach to.
type onesieKey struct {
	chain      exact.ChainType
	vRef, jRef int
	cdr3       string
}

func keyOf(sc *exact.SharedChain) onesieKey {
	return onesieKey{sc.Chain, sc.VRef, sc.JRef, sc.CDR3()}
}

// MergeOnesies merges each onesie of es into the multi-chain orbit that has
// a member chain with the same chain type, V and J segments and CDR3
// nucleotides, when exactly one such orbit exists. The onesie must hold at
// least opts.OnesieMinFraction of all cells unless opts.MergeAllOnesies is
// set. Targets are computed before any onesie is merged, so the result does
// not depend on the onesie order.
func (b *Builder) MergeOnesies(es []exact.Subclonotype, opts Opts) {
	b.mu.Lock()
	defer b.mu.Unlock()
	targets := map[onesieKey][]int{}
	for i := range es {
		if es[i].NumChains() < 2 {
			continue
		}
		root := b.eq.Find(i)
		for c := range es[i].Shared {
			k := keyOf(&es[i].Shared[c])
			targets[k] = appendUnique(targets[k], root)
		}
	}
	total := float64(exact.TotalCells(es))
	type merge struct{ onesie, root int }
	var merges []merge
	for i := range es {
		if es[i].NumChains() != 1 {
			continue
		}
		b.stats.Onesies++
		if opts.NoOnesieMerge {
			continue
		}
		roots := targets[keyOf(&es[i].Shared[0])]
		switch {
		case len(roots) == 0:
		case len(roots) > 1:
			b.stats.OnesiesAmbiguous++
		case !opts.MergeAllOnesies && float64(len(es[i].Cells)) < opts.OnesieMinFraction*total:
			b.stats.OnesiesTooSmall++
		default:
			merges = append(merges, merge{i, roots[0]})
		}
	}
	for _, m := range merges {
		b.eq.Union(m.onesie, m.root)
		b.stats.OnesiesMerged++
	}
	log.Printf("orbit: %d onesies, %d merged, %d ambiguous, %d too small",
		b.stats.Onesies, b.stats.OnesiesMerged, b.stats.OnesiesAmbiguous, b.stats.OnesiesTooSmall)
}

func appendUnique(roots []int, r int) []int {
	i := sort.SearchInts(roots, r)
	if i < len(roots) && roots[i] == r {
		return roots
	}
	roots = append(roots, 0)
	copy(roots[i+1:], roots[i:])
	roots[i] = r
	return roots
}

// Orbits returns the orbits and the final statistics.
func (b *Builder) Orbits() ([][]int, Stats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	orbits := b.eq.Orbits()
	b.stats.Orbits = len(orbits)
	return orbits, b.stats
}
