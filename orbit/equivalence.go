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

// Package orbit builds clonotypes ("orbits") as the connected components of
// the accepted joins between exact subclonotypes.
package orbit

import "sync/atomic"

// Equivalence is a disjoint-set structure over the indices 0..Len()-1. The
// representative of a set is always its smallest member, so the partition
// and the representatives do not depend on the order of unions.
type Equivalence interface {
	// Find returns the representative of the set containing i.
	Find(i int) int
	// Union merges the sets containing a and b. It reports whether they
	// were distinct.
	Union(a, b int) bool
	// OrbitMembers returns the sorted members of the set containing i.
	OrbitMembers(i int) []int
	// Orbits returns every set, sorted, ordered by smallest member.
	Orbits() [][]int
	// Len returns the number of elements.
	Len() int
	// Concurrent reports whether Find and Union may be called from multiple
	// goroutines without locking.
	Concurrent() bool
}

// Sequential is an Equivalence with path compression. It must not be used
// concurrently.
type Sequential struct {
	parent []int
}

// NewSequential returns n singleton sets.
func NewSequential(n int) *Sequential {
	s := &Sequential{parent: make([]int, n)}
	for i := range s.parent {
		s.parent[i] = i
	}
	return s
}

// Len implements Equivalence.
func (s *Sequential) Len() int { return len(s.parent) }

// Concurrent implements Equivalence.
func (s *Sequential) Concurrent() bool { return false }

// Find implements Equivalence.
func (s *Sequential) Find(i int) int {
	root := i
	for s.parent[root] != root {
		root = s.parent[root]
	}
	for s.parent[i] != root {
		s.parent[i], i = root, s.parent[i]
	}
	return root
}

// Union implements Equivalence.
func (s *Sequential) Union(a, b int) bool {
	ra, rb := s.Find(a), s.Find(b)
	if ra == rb {
		return false
	}
	if ra > rb {
		ra, rb = rb, ra
	}
	s.parent[rb] = ra
	return true
}

// OrbitMembers implements Equivalence.
func (s *Sequential) OrbitMembers(i int) []int { return members(s, i) }

// Orbits implements Equivalence.
func (s *Sequential) Orbits() [][]int { return orbits(s) }

// Concurrent is an Equivalence whose Find and Union may be called from
// multiple goroutines. Parent links are updated with compare-and-swap and
// only ever point to a smaller index.
type Concurrent struct {
	parent []int32
}

// NewConcurrent returns n singleton sets.
func NewConcurrent(n int) *Concurrent {
	c := &Concurrent{parent: make([]int32, n)}
	for i := range c.parent {
		c.parent[i] = int32(i)
	}
	return c
}

// Len implements Equivalence.
func (c *Concurrent) Len() int { return len(c.parent) }

// Concurrent implements Equivalence.
func (c *Concurrent) Concurrent() bool { return true }

// Find implements Equivalence. It halves the path as it goes.
func (c *Concurrent) Find(i int) int {
	x := int32(i)
	for {
		p := atomic.LoadInt32(&c.parent[x])
		if p == x {
			return int(x)
		}
		gp := atomic.LoadInt32(&c.parent[p])
		if gp != p {
			atomic.CompareAndSwapInt32(&c.parent[x], p, gp)
		}
		x = p
	}
}

// Union implements Equivalence.
func (c *Concurrent) Union(a, b int) bool {
	for {
		ra, rb := int32(c.Find(a)), int32(c.Find(b))
		if ra == rb {
			return false
		}
		if ra > rb {
			ra, rb = rb, ra
		}
		// Link the larger root under the smaller one, unless rb stopped being
		// a root meanwhile.
		if atomic.CompareAndSwapInt32(&c.parent[rb], rb, ra) {
			return true
		}
	}
}

// OrbitMembers implements Equivalence.
func (c *Concurrent) OrbitMembers(i int) []int { return members(c, i) }

// Orbits implements Equivalence.
func (c *Concurrent) Orbits() [][]int { return orbits(c) }

func members(e Equivalence, i int) []int {
	root := e.Find(i)
	var m []int
	for j := 0; j < e.Len(); j++ {
		if e.Find(j) == root {
			m = append(m, j)
		}
	}
	return m
}

func orbits(e Equivalence) [][]int {
	byRoot := map[int]int{}
	var out [][]int
	for j := 0; j < e.Len(); j++ {
		root := e.Find(j)
		k, ok := byRoot[root]
		if !ok {
			// Roots are the smallest members, so they are met in order.
			k = len(out)
			byRoot[root] = k
			out = append(out, nil)
		}
		out[k] = append(out[k], j)
	}
	return out
}
