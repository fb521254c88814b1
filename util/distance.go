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

package util

// Hamming returns the number of positions at which a and b differ. When the
// lengths differ, every position past the end of the shorter string counts as
// a difference.
func Hamming(a, b string) int {
	n := len(a)
	extra := len(b) - len(a)
	if extra < 0 {
		n = len(b)
		extra = -extra
	}
	d := extra
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

// HammingRange is Hamming restricted to the half-open range [start, limit) of
// two equal-length strings.
//
// REQUIRES: len(a) == len(b), 0 <= start <= limit <= len(a).
func HammingRange(a, b string, start, limit int) int {
	d := 0
	for i := start; i < limit; i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

// row is one row of a Levenshtein edit distance matrix. Only two rows are
// live at any time: the previous one and the one being filled.
type row []int

func min3(x, y, z int) int {
	if y < x {
		x = y
	}
	if z < x {
		x = z
	}
	return x
}

// Levenshtein computes the edit distance between s1 and s2: the number of
// insertions, deletions and substitutions it takes to transform s1 into s2.
// Each step costs one distance point. The strings may have different
// lengths.
func Levenshtein(s1, s2 string) int {
	if len(s1) < len(s2) {
		// Keep the rows as short as possible.
		s1, s2 = s2, s1
	}
	if len(s2) == 0 {
		return len(s1)
	}
	prev := make(row, len(s2)+1)
	cur := make(row, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			if s1[i-1] == s2[j-1] {
				cur[j] = prev[j-1]
				continue
			}
			cur[j] = min3(prev[j]+1, prev[j-1]+1, cur[j-1]+1)
		}
		prev, cur = cur, prev
	}
	return prev[len(s2)]
}
