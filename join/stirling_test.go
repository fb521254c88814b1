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

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestSharedMutationProbDegenerate(t *testing.T) {
	expect.EQ(t, sharedMutationProb(0, 5, 2), 1.0)
	expect.EQ(t, sharedMutationProb(100, 0, 0), 1.0)
	expect.EQ(t, sharedMutationProb(100, 6, 0), 1.0)
	// Two draws from one position always coincide.
	expect.EQ(t, sharedMutationProb(1, 2, 1), 1.0)
}

func TestSharedMutationProbExact(t *testing.T) {
	// With d = 1 the probability is that of at least one coincidence.
	for _, test := range []struct{ n, k int }{{216, 2}, {20, 5}, {50, 9}} {
		allDistinct := 1.0
		for i := 0; i < test.k; i++ {
			allDistinct *= float64(test.n-i) / float64(test.n)
		}
		got := sharedMutationProb(test.n, test.k, 1)
		expect.True(t, math.Abs(got-(1-allDistinct)) < 1e-12, "n %d k %d: %v", test.n, test.k, got)
	}
	// Two draws give one distinct position with probability 1/n.
	expect.True(t, math.Abs(sharedMutationProb(216, 2, 1)-1.0/216) < 1e-15)
}

func TestSharedMutationProbMonotone(t *testing.T) {
	prev := 1.0
	for d := 1; d <= 20; d++ {
		p := sharedMutationProb(300, 40, d)
		expect.LE(t, p, prev)
		prev = p
	}
}

func TestSharedMutationProbLarge(t *testing.T) {
	for _, test := range []struct{ n, k, d int }{{500, 300, 50}, {800, 400, 200}, {300, 300, 1}} {
		p := sharedMutationProb(test.n, test.k, test.d)
		expect.False(t, math.IsNaN(p))
		expect.GE(t, p, 0.0)
		expect.LE(t, p, 1.0)
	}
}

func TestCDR3Space(t *testing.T) {
	expect.EQ(t, cdr3Space(10, 0), 1.0)
	expect.EQ(t, cdr3Space(10, 1), 11.0)
	expect.EQ(t, cdr3Space(10, 2), 56.0)
	expect.EQ(t, cdr3Space(4, 10), 16.0)
	expect.False(t, math.IsInf(cdr3Space(300, 15), 0))
}
