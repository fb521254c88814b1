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

package join

import "math"

// sharedMutationProb returns the probability that k draws with replacement
// from n positions hit at most k-d distinct positions. When the k mutations
// of two sequences fall on only k-d distinct positions, d of them coincide;
// a small probability is evidence that the coincidences are inherited rather
// than independent.
//
// The distribution of the number of distinct positions after j draws is
// computed with the recurrence for Stirling numbers of the second kind,
// normalized by n at every step so that no term overflows:
//
//	P[j+1][m] = P[j][m]*m/n + P[j][m-1]*(n-m+1)/n
//
// Degenerate inputs (n <= 0, k <= 0, d <= 0) give 1.
func sharedMutationProb(n, k, d int) float64 {
	if n <= 0 || k <= 0 || d <= 0 {
		return 1
	}
	limit := k - d
	if limit < 0 {
		return 0
	}
	if limit >= k || limit >= n {
		return 1
	}
	// prob[m] is the probability of m distinct positions after j draws. At
	// most min(k, n) positions can be hit.
	maxM := k
	if n < maxM {
		maxM = n
	}
	prob := make([]float64, maxM+1)
	next := make([]float64, maxM+1)
	prob[0] = 1
	fn := float64(n)
	for j := 0; j < k; j++ {
		next[0] = 0
		top := j + 1
		if top > maxM {
			top = maxM
		}
		for m := 1; m <= top; m++ {
			next[m] = prob[m]*float64(m)/fn + prob[m-1]*float64(n-m+1)/fn
		}
		for m := top + 1; m <= maxM; m++ {
			next[m] = 0
		}
		prob, next = next, prob
	}
	p := 0.0
	for m := 0; m <= limit; m++ {
		p += prob[m]
	}
	if math.IsNaN(p) || p > 1 {
		return 1
	}
	return p
}

// cdr3Space returns the number of length-n strings within cd substitutions
// of a fixed string, sum_{m=0..cd} C(n, m), ignoring the alphabet size.
func cdr3Space(n, cd int) float64 {
	if cd > n {
		cd = n
	}
	sum, term := 0.0, 1.0
	for m := 0; m <= cd; m++ {
		if m > 0 {
			term = term * float64(n-m+1) / float64(m)
		}
		sum += term
	}
	return sum
}
