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
	"encoding/binary"
	"sort"
	"sync"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/vdj/exact"
)

// Stats summarizes a ScoreAll run.
type Stats struct {
	// Buckets is the number of signature buckets with at least two members.
	Buckets int
	// Pairs is the number of pairs scored.
	Pairs int
	// Accepted is the number of pairs joined.
	Accepted int
	// Rejected counts the rejected pairs by reason.
	Rejected [numReasons]int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Buckets += o.Buckets
	s.Pairs += o.Pairs
	s.Accepted += o.Accepted
	for i := range s.Rejected {
		s.Rejected[i] += o.Rejected[i]
	}
	return s
}

// appendSignature appends the bucket signature of s to buf: the chain count,
// and per chain the chain type, V..J length and CDR3 length.
func appendSignature(buf []byte, s *exact.Subclonotype) []byte {
	buf = binary.AppendUvarint(buf, uint64(s.NumChains()))
	for c := range s.Shared {
		sc := &s.Shared[c]
		buf = append(buf, byte(sc.Chain))
		buf = binary.AppendUvarint(buf, uint64(len(sc.Seq)))
		buf = binary.AppendUvarint(buf, uint64(sc.CDR3Len()))
	}
	return buf
}

// Buckets partitions the two- and three-chain exact subclonotypes by
// signature. Only members of one bucket can be eligible pairs. Buckets with a
// single member are dropped. Members are sorted, and buckets are ordered by
// their first member.
func Buckets(es []exact.Subclonotype) [][]int {
	type bucket struct {
		sig     string
		members []int
	}
	byHash := map[uint64][]*bucket{}
	var all []*bucket
	var buf []byte
	for i := range es {
		if n := es[i].NumChains(); n < 2 || n > 3 {
			continue
		}
		buf = appendSignature(buf[:0], &es[i])
		h := farm.Hash64(buf)
		var b *bucket
		for _, cand := range byHash[h] {
			if cand.sig == string(buf) {
				b = cand
				break
			}
		}
		if b == nil {
			b = &bucket{sig: string(buf)}
			byHash[h] = append(byHash[h], b)
			all = append(all, b)
		}
		b.members = append(b.members, i)
	}
	var buckets [][]int
	for _, b := range all {
		if len(b.members) > 1 {
			buckets = append(buckets, b.members)
		}
	}
	// Members were appended in index order, and buckets were created in the
	// order of their first member.
	return buckets
}

// task scores member i of a bucket against the later members.
type task struct {
	bucket, i int
}

// ScoreAll scores every pair of es that shares a bucket. The work is split
// over parallelism workers; each worker passes the accepted joins of one
// bucket row to sink, which must be safe for concurrent use. The set of
// accepted joins does not depend on the number of workers.
func ScoreAll(es []exact.Subclonotype, refs References, parallelism int, opts Opts, sink func([]Join)) Stats {
	buckets := Buckets(es)
	var tasks []task
	for bi, b := range buckets {
		for i := 0; i < len(b)-1; i++ {
			tasks = append(tasks, task{bi, i})
		}
	}
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(tasks) {
		parallelism = len(tasks)
	}
	stats := Stats{Buckets: len(buckets)}
	if len(tasks) == 0 {
		return stats
	}
	workerStats := make([]Stats, parallelism)
	err := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(tasks)) / parallelism
		endIdx := ((jobIdx + 1) * len(tasks)) / parallelism
		ws := &workerStats[jobIdx]
		var accepted []Join
		for _, t := range tasks[startIdx:endIdx] {
			b := buckets[t.bucket]
			accepted = accepted[:0]
			for _, other := range b[t.i+1:] {
				j := Score(es, refs, b[t.i], other, opts)
				ws.Pairs++
				if j.Accepted {
					ws.Accepted++
					accepted = append(accepted, j)
				} else {
					ws.Rejected[j.Reason]++
				}
			}
			if len(accepted) > 0 {
				sink(append([]Join(nil), accepted...))
			}
		}
		return nil
	})
	if err != nil {
		log.Panicf("join: scoring %d buckets: %v", len(buckets), err)
	}
	for _, ws := range workerStats {
		stats = stats.Merge(ws)
	}
	log.Printf("join: %d buckets, %d pairs scored, %d accepted", stats.Buckets, stats.Pairs, stats.Accepted)
	log.Debug.Printf("join: rejections %v", stats.Rejected)
	return stats
}

// Collect scores every bucketed pair and returns the accepted joins sorted by
// (A, B).
func Collect(es []exact.Subclonotype, refs References, parallelism int, opts Opts) ([]Join, Stats) {
	var (
		mu    sync.Mutex
		joins []Join
	)
	stats := ScoreAll(es, refs, parallelism, opts, func(js []Join) {
		mu.Lock()
		joins = append(joins, js...)
		mu.Unlock()
	})
	sort.Slice(joins, func(i, j int) bool {
		if joins[i].A != joins[j].A {
			return joins[i].A < joins[j].A
		}
		return joins[i].B < joins[j].B
	})
	return joins, stats
}
