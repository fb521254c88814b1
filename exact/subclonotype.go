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

import "sort"

// SharedChain holds the fields of one chain that are identical across every
// cell of an exact subclonotype. Offsets are relative to Seq.
type SharedChain struct {
	Chain ChainType
	// UTRRef, DRef and CRef may be NoRef.
	UTRRef, VRef, DRef, JRef, CRef int
	// Seq is the V..J nucleotide sequence.
	Seq string
	// CDR3Start and CDR3Stop delimit the CDR3 nucleotides in Seq.
	CDR3Start, CDR3Stop int
	// CDR3AA is the translated CDR3.
	CDR3AA string
	// JCOffset is JStop - CStart on the contig. It is meaningful only when
	// HasC is set.
	JCOffset int
	HasC     bool
}

// CDR3 returns the CDR3 nucleotide sequence.
func (s *SharedChain) CDR3() string { return s.Seq[s.CDR3Start:s.CDR3Stop] }

// CDR3Len returns the CDR3 length in nucleotides.
func (s *SharedChain) CDR3Len() int { return s.CDR3Stop - s.CDR3Start }

// GermlineBase returns the reference base that position pos of Seq aligns
// to, given the (possibly donor-corrected) V and J segment sequences. V is
// aligned from the first base of Seq, J from the last. Positions inside the
// CDR3, and positions that neither segment reaches, have no germline base.
func (s *SharedChain) GermlineBase(v, j string, pos int) (byte, bool) {
	if pos < s.CDR3Start {
		if pos < len(v) {
			return v[pos], true
		}
		return 0, false
	}
	if pos >= s.CDR3Stop {
		jp := len(j) - (len(s.Seq) - pos)
		if jp >= 0 && jp < len(j) {
			return j[jp], true
		}
	}
	return 0, false
}

// CellChain holds the per-cell data for one chain.
type CellChain struct {
	UMIs, Reads int
	// Qual holds the phred scores of the V..J bases.
	Qual []byte
}

// Cell is the per-cell record of an exact subclonotype.
type Cell struct {
	Barcode string
	// Dataset is the index of the dataset in the Aggregate input.
	Dataset int
	Origin  int
	Donor   int
	// Chains is parallel to Subclonotype.Shared.
	Chains   []CellChain
	Gex      GexCall
	Features map[string]float64
	// Deleted is set by the filter cascade; Filter names the filter.
	Deleted bool
	Filter  string
}

// UMIs returns the total UMI count of the cell over all chains.
func (c *Cell) UMIs() int {
	n := 0
	for _, ch := range c.Chains {
		n += ch.UMIs
	}
	return n
}

// Subclonotype is an exact subclonotype.
type Subclonotype struct {
	// Shared holds one entry per chain, heavy (VDJ) chains first.
	Shared []SharedChain
	// Cells lists the cells in input order.
	Cells []Cell
	// Filter names the filter that deleted the whole exact subclonotype, or
	// "" if it was retained.
	Filter string
	// Marks lists the filters that flagged it without deleting it.
	Marks []string
}

// NumChains returns the number of chains.
func (s *Subclonotype) NumChains() int { return len(s.Shared) }

// Deleted reports whether the exact subclonotype was removed by a filter.
func (s *Subclonotype) Deleted() bool { return s.Filter != "" }

// LiveCells returns the number of cells not deleted by a filter.
func (s *Subclonotype) LiveCells() int {
	if s.Deleted() {
		return 0
	}
	n := 0
	for i := range s.Cells {
		if !s.Cells[i].Deleted {
			n++
		}
	}
	return n
}

// ChainUMIs returns the total UMI count of chain c over the live cells.
func (s *Subclonotype) ChainUMIs(c int) int {
	n := 0
	for i := range s.Cells {
		if !s.Cells[i].Deleted {
			n += s.Cells[i].Chains[c].UMIs
		}
	}
	return n
}

// Donor returns the donor of the majority of the cells, breaking ties in
// favor of the smaller donor index. It returns -1 for an empty subclonotype.
func (s *Subclonotype) Donor() int {
	counts := map[int]int{}
	for i := range s.Cells {
		counts[s.Cells[i].Donor]++
	}
	best, bestN := -1, 0
	for d, n := range counts {
		if n > bestN || (n == bestN && d < best) {
			best, bestN = d, n
		}
	}
	return best
}

// Donors returns the sorted distinct donors of the live cells.
func (s *Subclonotype) Donors() []int {
	seen := map[int]bool{}
	var donors []int
	for i := range s.Cells {
		c := &s.Cells[i]
		if !c.Deleted && !seen[c.Donor] {
			seen[c.Donor] = true
			donors = append(donors, c.Donor)
		}
	}
	sort.Ints(donors)
	return donors
}

// TotalCells returns the number of cells over all exact subclonotypes,
// deleted or not.
func TotalCells(es []Subclonotype) int {
	n := 0
	for i := range es {
		n += len(es[i].Cells)
	}
	return n
}
