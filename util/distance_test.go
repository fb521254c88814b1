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

import (
	"testing"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/testutil/expect"
)

func TestHamming(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"ACGT", "ACGT", 0},
		{"ACGT", "ACGA", 1},
		{"ACGT", "TGCA", 4},
		{"ACGT", "AC", 2},
		{"AC", "ACGTT", 3},
	}
	for _, test := range tests {
		expect.EQ(t, Hamming(test.a, test.b), test.want, "%s vs %s", test.a, test.b)
		expect.EQ(t, Hamming(test.b, test.a), test.want, "%s vs %s", test.b, test.a)
	}
}

func TestHammingRange(t *testing.T) {
	expect.EQ(t, HammingRange("AAAACCCC", "ATAACGGC", 0, 8), 3)
	expect.EQ(t, HammingRange("AAAACCCC", "ATAACGGC", 2, 8), 2)
	expect.EQ(t, HammingRange("AAAACCCC", "ATAACGGC", 4, 4), 0)
}

// TestLevenshtein checks the edit distance against matchr's implementation,
// and a few hand-computed cases.
func TestLevenshtein(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"", "", 0},
		{"", "CAR", 3},
		{"CARDY", "CARDY", 0},
		{"CARDY", "CAKDY", 1},
		{"CARDYW", "CARDY", 1},
		{"ACAATTGG", "AXAAXTGX", 3},
		{"ATATACGGT", "ACGGTHIJK", 8},
		{"CASSLGQGAEAFF", "CASSPGTGYEQYF", 5},
		{"CTCAGCGGCT", "AGCCTAACTC", 8},
	}
	for _, test := range tests {
		got := Levenshtein(test.s1, test.s2)
		expect.EQ(t, got, test.want, "%s vs %s", test.s1, test.s2)
		expect.EQ(t, Levenshtein(test.s2, test.s1), got)
		expect.EQ(t, got, matchr.Levenshtein(test.s1, test.s2), "%s vs %s", test.s1, test.s2)
	}
}
