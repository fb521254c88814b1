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

// Package join scores pairs of exact subclonotypes for common ancestry.
//
// A pair is scored only if both sides have two or three chains of the same
// types in the same order, with equal V..J and CDR3 lengths per chain.
// Scoring then applies, in order, a cap on total mismatches, a test of the
// shared somatic mutations against chance coincidence, a cap on CDR3
// differences, a composite score ceiling, a check that the assigned germline
// references agree, and a stricter rule for one-cell exact subclonotypes.
package join

import (
	"fmt"
	"math"

	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/util"
)

// References supplies the germline V and J sequences assigned to each chain
// of each exact subclonotype. *donorref.Table implements it.
type References interface {
	VSeq(es, c int) string
	JSeq(es, c int) string
}

// Reason is the outcome of scoring a pair.
type Reason uint8

const (
	// Accepted means the pair is joined.
	Accepted Reason = iota
	// Ineligible means the pair does not satisfy the chain and length
	// preconditions.
	Ineligible
	// Diffs means too many V..J mismatches.
	Diffs
	// CDR3Diffs means too many CDR3 differences.
	CDR3Diffs
	// ScoreCeiling means p * N_cdr3 exceeds the ceiling, or is not a number.
	ScoreCeiling
	// RefDiffs means the assigned references differ too much.
	RefDiffs
	// Singleton means a one-cell side has more CDR3 differences than shared
	// mutations.
	Singleton
	numReasons
)

var reasonNames = [...]string{"accepted", "ineligible", "diffs", "cdr3_diffs", "score", "ref_diffs", "singleton"}

func (r Reason) String() string {
	if r < numReasons {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", r)
}

// Join describes a scored pair of exact subclonotypes.
type Join struct {
	// A and B index the exact subclonotypes, A < B.
	A, B int
	// Diffs is the number of V..J mismatches.
	Diffs int
	// CDR3Diffs is the number of CDR3 nucleotide differences and CDR3Len the
	// total CDR3 length, both summed over chains.
	CDR3Diffs, CDR3Len int
	// Shared counts the positions where both sides deviate identically from
	// their references; Private counts the other deviations.
	Shared, Private int
	// K is the total number of mutations of both sides and N the number of
	// positions that have a germline base.
	K, N int
	// P is the probability of at least Shared coincidences by chance.
	P float64
	// CDR3Space is the number of CDR3 sequences within CDR3Diffs
	// substitutions.
	CDR3Space float64
	// Score is P * CDR3Space.
	Score float64
	// RefDiffs is the number of positions at which the references assigned
	// to the two sides differ.
	RefDiffs int
	Accepted bool
	Reason   Reason
}

// Eligible reports whether a and b satisfy the preconditions for scoring.
func Eligible(a, b *exact.Subclonotype) bool {
	n := a.NumChains()
	if n != b.NumChains() || n < 2 || n > 3 {
		return false
	}
	for c := 0; c < n; c++ {
		sa, sb := &a.Shared[c], &b.Shared[c]
		if sa.Chain != sb.Chain || len(sa.Seq) != len(sb.Seq) || sa.CDR3Len() != sb.CDR3Len() {
			return false
		}
	}
	return true
}

// Score scores the pair (ai, bi) of es. It is a pure function of its
// arguments.
func Score(es []exact.Subclonotype, refs References, ai, bi int, opts Opts) Join {
	if ai > bi {
		ai, bi = bi, ai
	}
	j := Join{A: ai, B: bi, P: 1}
	a, b := &es[ai], &es[bi]
	if !Eligible(a, b) {
		return j.reject(Ineligible)
	}

	for c := range a.Shared {
		j.Diffs += util.Hamming(a.Shared[c].Seq, b.Shared[c].Seq)
	}
	if j.Diffs > opts.MaxDiffs {
		return j.reject(Diffs)
	}

	for c := range a.Shared {
		sa, sb := &a.Shared[c], &b.Shared[c]
		va, ja := refs.VSeq(ai, c), refs.JSeq(ai, c)
		vb, jb := refs.VSeq(bi, c), refs.JSeq(bi, c)
		for pos := 0; pos < len(sa.Seq); pos++ {
			ga, okA := sa.GermlineBase(va, ja, pos)
			gb, okB := sb.GermlineBase(vb, jb, pos)
			if !okA || !okB {
				continue
			}
			j.N++
			mutA, mutB := sa.Seq[pos] != ga, sb.Seq[pos] != gb
			switch {
			case mutA && mutB && sa.Seq[pos] == sb.Seq[pos]:
				j.Shared++
				j.K += 2
			case mutA && mutB:
				j.Private += 2
				j.K += 2
			case mutA || mutB:
				j.Private++
				j.K++
			}
		}
	}
	j.P = sharedMutationProb(j.N, j.K, j.Shared)

	for c := range a.Shared {
		sa, sb := &a.Shared[c], &b.Shared[c]
		j.CDR3Diffs += util.HammingRange(sa.Seq, sb.Seq, sa.CDR3Start, sa.CDR3Stop)
		j.CDR3Len += sa.CDR3Len()
	}
	if j.CDR3Diffs > opts.MaxCDR3Diffs {
		return j.reject(CDR3Diffs)
	}
	j.CDR3Space = cdr3Space(j.CDR3Len, j.CDR3Diffs)

	j.Score = j.P * j.CDR3Space
	if math.IsNaN(j.Score) || math.IsInf(j.Score, 0) || j.Score > opts.MaxScore {
		return j.reject(ScoreCeiling)
	}

	for c := range a.Shared {
		j.RefDiffs += util.Hamming(refs.VSeq(ai, c), refs.VSeq(bi, c))
		j.RefDiffs += util.Hamming(refs.JSeq(ai, c), refs.JSeq(bi, c))
	}
	if !opts.IgnoreRefDiffs && j.RefDiffs > opts.MaxRefDiffs {
		return j.reject(RefDiffs)
	}

	if !opts.AllowSingletonJoins && (len(a.Cells) == 1 || len(b.Cells) == 1) && j.CDR3Diffs > j.Shared {
		return j.reject(Singleton)
	}
	j.Accepted = true
	j.Reason = Accepted
	return j
}

func (j Join) reject(r Reason) Join {
	j.Accepted = false
	j.Reason = r
	return j
}
