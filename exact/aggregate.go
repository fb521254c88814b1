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

package exact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/vdj/refdata"
	"github.com/minio/highwayhash"
)

// Stats counts the records seen by Aggregate.
type Stats struct {
	Datasets int
	// Cells is the number of barcodes with at least one contig.
	Cells int
	// EmptyCells is the number of barcodes without contigs.
	EmptyCells int
	Contigs    int
	// Subclonotypes is the number of exact subclonotypes produced.
	Subclonotypes int
}

// cellChain pairs the shared and per-cell views of one contig while a cell
// is being keyed.
type cellChain struct {
	shared SharedChain
	cell   CellChain
}

// cellRecord is one barcode, with its chains in canonical order.
type cellRecord struct {
	cell   Cell
	chains []cellChain
	key    []byte
}

type hashKey = [highwayhash.Size]uint8

var zeroSeed hashKey

// chainLess orders the chains of a cell: heavy chains first, then by chain
// type, then by sequence.
func chainLess(a, b *SharedChain) bool {
	if ah, bh := a.Chain.IsHeavy(), b.Chain.IsHeavy(); ah != bh {
		return ah
	}
	if a.Chain != b.Chain {
		return a.Chain < b.Chain
	}
	return a.Seq < b.Seq
}

// appendKey encodes the grouping key of a cell: the chain count, and for
// each chain the V..J sequence, the C reference id and the J-C offset.
func appendKey(buf []byte, chains []cellChain) []byte {
	var tmp [binary.MaxVarintLen64]byte
	putInt := func(v int) {
		n := binary.PutVarint(tmp[:], int64(v))
		buf = append(buf, tmp[:n]...)
	}
	putInt(len(chains))
	for i := range chains {
		s := &chains[i].shared
		putInt(len(s.Seq))
		buf = append(buf, s.Seq...)
		putInt(s.CRef)
		if s.HasC {
			buf = append(buf, 1)
			putInt(s.JCOffset)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func newCellChain(c *Contig) cellChain {
	cc := cellChain{
		shared: SharedChain{
			Chain:     c.Chain,
			UTRRef:    c.UTRRef,
			VRef:      c.VRef,
			DRef:      c.DRef,
			JRef:      c.JRef,
			CRef:      c.CRef,
			Seq:       c.Seq[c.VStart:c.JStop],
			CDR3Start: c.CDR3Start - c.VStart,
			CDR3Stop:  c.CDR3Stop - c.VStart,
		},
		cell: CellChain{
			UMIs:  c.UMIs,
			Reads: c.Reads,
			Qual:  c.Qual[c.VStart:c.JStop],
		},
	}
	if c.CStart != NoRef {
		cc.shared.HasC = true
		cc.shared.JCOffset = c.JStop - c.CStart
	}
	cc.shared.CDR3AA = Translate(cc.shared.CDR3())
	return cc
}

// Aggregate validates the contigs of every dataset and groups the cells into
// exact subclonotypes. The output is sorted by grouping key, and the cells
// of each exact subclonotype are in input order, so the result depends only
// on the input, never on map iteration order.
//
// A malformed contig aborts the aggregation with an errors.Invalid error
// naming the dataset and barcode.
func Aggregate(datasets []Dataset, ref refdata.Reference) ([]Subclonotype, Stats, error) {
	stats := Stats{Datasets: len(datasets)}
	var records []cellRecord
	for di := range datasets {
		ds := &datasets[di]
		for ci := range ds.Cells {
			cc := &ds.Cells[ci]
			if len(cc.Contigs) == 0 {
				stats.EmptyCells++
				continue
			}
			rec := cellRecord{
				cell: Cell{
					Barcode:  cc.Barcode,
					Dataset:  di,
					Origin:   ds.Origin,
					Donor:    ds.Donor,
					Gex:      cc.Gex,
					Features: cc.Features,
				},
				chains: make([]cellChain, len(cc.Contigs)),
			}
			for i := range cc.Contigs {
				c := &cc.Contigs[i]
				if err := c.Validate(ref); err != nil {
					return nil, stats, errors.E(err, fmt.Sprintf("dataset %s, barcode %s, contig %d", ds.Name, cc.Barcode, i))
				}
				rec.chains[i] = newCellChain(c)
			}
			sort.SliceStable(rec.chains, func(i, j int) bool {
				return chainLess(&rec.chains[i].shared, &rec.chains[j].shared)
			})
			rec.key = appendKey(nil, rec.chains)
			stats.Cells++
			stats.Contigs += len(cc.Contigs)
			records = append(records, rec)
		}
	}

	// Bucket the cells by key hash, then split each bucket by the full key to
	// tolerate collisions.
	buckets := map[hashKey][]int{}
	for i := range records {
		h := highwayhash.Sum(records[i].key, zeroSeed[:])
		buckets[h] = append(buckets[h], i)
	}
	var groups [][]int
	for _, indices := range buckets {
		for len(indices) > 0 {
			key := records[indices[0]].key
			var same, rest []int
			for _, ri := range indices {
				if bytes.Equal(records[ri].key, key) {
					same = append(same, ri)
				} else {
					rest = append(rest, ri)
				}
			}
			groups = append(groups, same)
			indices = rest
		}
	}
	// Each group's indices are ascending, i.e., in input order. Sorting the
	// groups by key removes the dependency on map iteration order.
	sort.Slice(groups, func(i, j int) bool {
		return bytes.Compare(records[groups[i][0]].key, records[groups[j][0]].key) < 0
	})

	es := make([]Subclonotype, len(groups))
	for gi, g := range groups {
		first := &records[g[0]]
		s := &es[gi]
		s.Shared = make([]SharedChain, len(first.chains))
		for i := range first.chains {
			s.Shared[i] = first.chains[i].shared
		}
		s.Cells = make([]Cell, len(g))
		for i, ri := range g {
			rec := &records[ri]
			cell := rec.cell
			cell.Chains = make([]CellChain, len(rec.chains))
			for j := range rec.chains {
				cell.Chains[j] = rec.chains[j].cell
			}
			s.Cells[i] = cell
		}
	}
	stats.Subclonotypes = len(es)
	log.Printf("exact: %d cells, %d contigs -> %d exact subclonotypes", stats.Cells, stats.Contigs, len(es))
	return es, stats, nil
}
