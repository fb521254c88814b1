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

// Package vdjtest builds small synthetic references, contigs and exact
// subclonotypes for tests.
//
// Every chain built here has the layout
//
//	UTR | V | junction | J | C
//
// where the CDR3 covers the last CDR3Flank bases of V, the junction and the
// first CDR3Flank bases of J. V..J positions are numbered from the first base
// of V.
package vdjtest

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/refdata"
)

const (
	// VLen, JLen, CLen and UTRLen are the segment lengths.
	VLen   = 90
	JLen   = 30
	CLen   = 30
	UTRLen = 12
	// CDR3Flank is the number of V and J bases inside the CDR3.
	CDR3Flank = 6
	// DefaultQual is the quality given to every base unless overridden.
	DefaultQual = 60
)

// Segment ids of the synthetic reference. The second V gene of each chain
// differs from the first at every tenth position.
const (
	HeavyUTR = 1
	HeavyV   = 2
	HeavyV2  = 3
	HeavyD   = 4
	HeavyJ   = 5
	HeavyC   = 6
	LightUTR = 11
	LightV   = 12
	LightV2  = 13
	LightJ   = 15
	LightC   = 16
)

var segments []refdata.Segment

func randomSeq(r *rand.Rand, n int) string {
	const bases = "ACGT"
	b := make([]byte, n)
	for i := range b {
		b[i] = bases[r.Intn(4)]
	}
	return string(b)
}

// variant changes every tenth base of seq.
func variant(seq string) string {
	b := []byte(seq)
	for i := 5; i < len(b); i += 10 {
		b[i] = Other(b[i])
	}
	return string(b)
}

// Other returns a base different from b.
func Other(b byte) byte {
	if b == 'A' {
		return 'C'
	}
	return 'A'
}

func init() {
	r := rand.New(rand.NewSource(0))
	hv, lv := randomSeq(r, VLen), randomSeq(r, VLen)
	segments = []refdata.Segment{
		{ID: HeavyUTR, Name: "IGHV1-UTR", Region: refdata.UTR, Chain: "IGH", Seq: randomSeq(r, UTRLen)},
		{ID: HeavyV, Name: "IGHV1", Region: refdata.V, Chain: "IGH", Seq: hv},
		{ID: HeavyV2, Name: "IGHV2", Region: refdata.V, Chain: "IGH", Seq: variant(hv)},
		{ID: HeavyD, Name: "IGHD1", Region: refdata.D, Chain: "IGH", Seq: randomSeq(r, 15)},
		{ID: HeavyJ, Name: "IGHJ1", Region: refdata.J, Chain: "IGH", Seq: randomSeq(r, JLen)},
		{ID: HeavyC, Name: "IGHM", Region: refdata.C, Chain: "IGH", Seq: randomSeq(r, CLen)},
		{ID: LightUTR, Name: "IGKV1-UTR", Region: refdata.UTR, Chain: "IGK", Seq: randomSeq(r, UTRLen)},
		{ID: LightV, Name: "IGKV1", Region: refdata.V, Chain: "IGK", Seq: lv},
		{ID: LightV2, Name: "IGKV2", Region: refdata.V, Chain: "IGK", Seq: variant(lv)},
		{ID: LightJ, Name: "IGKJ1", Region: refdata.J, Chain: "IGK", Seq: randomSeq(r, JLen)},
		{ID: LightC, Name: "IGKC", Region: refdata.C, Chain: "IGK", Seq: randomSeq(r, CLen)},
	}
}

// Reference returns the synthetic reference.
func Reference() refdata.Reference {
	ref, err := refdata.New(segments)
	if err != nil {
		panic(err)
	}
	return ref
}

func seg(id int) string {
	for _, s := range segments {
		if s.ID == id {
			return s.Seq
		}
	}
	panic(fmt.Sprintf("no segment %d", id))
}

// Chain describes one chain to build.
type Chain struct {
	// Light selects the IGK chain; the default is IGH.
	Light bool
	// V2 selects the second V gene.
	V2 bool
	// Junction is inserted between V and J. Its length must be a multiple
	// of 3.
	Junction string
	// Muts replaces V..J bases.
	Muts map[int]byte
	// UMIs per cell; zero means 5.
	UMIs int
	// LowQual sets the given V..J positions to the given quality.
	LowQual map[int]byte
}

// Heavy returns an IGH chain with the given junction.
func Heavy(junction string) Chain { return Chain{Junction: junction} }

// Light returns an IGK chain with the given junction.
func Light(junction string) Chain { return Chain{Light: true, Junction: junction} }

// With returns a copy of c with V..J position pos replaced by base.
func (c Chain) With(pos int, base byte) Chain {
	m := map[int]byte{}
	for p, b := range c.Muts {
		m[p] = b
	}
	m[pos] = base
	c.Muts = m
	return c
}

// Mutate returns a copy of c with V..J position pos replaced by a base
// different from the unmutated one.
func (c Chain) Mutate(pos int) Chain {
	return c.With(pos, Other(c.vj()[pos]))
}

func (c Chain) ids() (chain exact.ChainType, utr, v, j, cr int) {
	if c.Light {
		chain, utr, v, j, cr = exact.IGK, LightUTR, LightV, LightJ, LightC
		if c.V2 {
			v = LightV2
		}
		return
	}
	chain, utr, v, j, cr = exact.IGH, HeavyUTR, HeavyV, HeavyJ, HeavyC
	if c.V2 {
		v = HeavyV2
	}
	return
}

// vj returns the V..J sequence without mutations.
func (c Chain) vj() string {
	_, _, v, j, _ := c.ids()
	return seg(v) + c.Junction + seg(j)
}

// VJ returns the V..J sequence, mutations included.
func (c Chain) VJ() string {
	b := []byte(c.vj())
	for p, base := range c.Muts {
		b[p] = base
	}
	return string(b)
}

// CDR3Start and CDR3Stop return the CDR3 range in V..J coordinates.
func (c Chain) CDR3Start() int { return VLen - CDR3Flank }

// CDR3Stop returns the end of the CDR3 in V..J coordinates.
func (c Chain) CDR3Stop() int { return VLen + len(c.Junction) + CDR3Flank }

func (c Chain) umis() int {
	if c.UMIs == 0 {
		return 5
	}
	return c.UMIs
}

func (c Chain) qual() []byte {
	q := make([]byte, len(c.vj()))
	for i := range q {
		q[i] = DefaultQual
	}
	for p, v := range c.LowQual {
		q[p] = v
	}
	return q
}

// Contig returns the full contig for the chain.
func (c Chain) Contig() exact.Contig {
	chain, utr, v, j, cr := c.ids()
	u := seg(utr)
	vj := c.VJ()
	seq := u + vj + seg(cr)
	qual := make([]byte, len(seq))
	for i := range qual {
		qual[i] = DefaultQual
	}
	copy(qual[len(u):], c.qual())
	return exact.Contig{
		Seq:       seq,
		Qual:      qual,
		Chain:     chain,
		UTRRef:    utr,
		VRef:      v,
		DRef:      exact.NoRef,
		JRef:      j,
		CRef:      cr,
		VStart:    len(u),
		JStop:     len(u) + len(vj),
		CStart:    len(u) + len(vj),
		CDR3Start: len(u) + c.CDR3Start(),
		CDR3Stop:  len(u) + c.CDR3Stop(),
		UMIs:      c.umis(),
		Reads:     10 * c.umis(),
	}
}

// CellContigs returns a barcode carrying the given chains.
func CellContigs(barcode string, chains ...Chain) exact.CellContigs {
	cc := exact.CellContigs{Barcode: barcode}
	for _, c := range chains {
		cc.Contigs = append(cc.Contigs, c.Contig())
	}
	return cc
}

// Shared returns the shared record of the chain.
func (c Chain) Shared() exact.SharedChain {
	chain, utr, v, j, cr := c.ids()
	vj := c.VJ()
	return exact.SharedChain{
		Chain:     chain,
		UTRRef:    utr,
		VRef:      v,
		DRef:      exact.NoRef,
		JRef:      j,
		CRef:      cr,
		Seq:       vj,
		CDR3Start: c.CDR3Start(),
		CDR3Stop:  c.CDR3Stop(),
		CDR3AA:    exact.Translate(vj[c.CDR3Start():c.CDR3Stop()]),
		HasC:      true,
	}
}

// Subclonotype builds an exact subclonotype with ncells cells from dataset
// 0, origin 0 and donor 0. Barcodes are prefix-0, prefix-1, ...
func Subclonotype(prefix string, ncells int, chains ...Chain) exact.Subclonotype {
	var s exact.Subclonotype
	for _, c := range chains {
		s.Shared = append(s.Shared, c.Shared())
	}
	for i := 0; i < ncells; i++ {
		cell := exact.Cell{Barcode: fmt.Sprintf("%s-%d", prefix, i)}
		for _, c := range chains {
			cell.Chains = append(cell.Chains, exact.CellChain{UMIs: c.umis(), Reads: 10 * c.umis(), Qual: c.qual()})
		}
		s.Cells = append(s.Cells, cell)
	}
	return s
}

// Germline is a germline lookup that returns the universal reference
// segments, without donor alleles.
type Germline struct {
	ES []exact.Subclonotype
}

// VSeq returns the universal V segment of chain c of exact subclonotype es.
func (g Germline) VSeq(es, c int) string { return seg(g.ES[es].Shared[c].VRef) }

// JSeq returns the universal J segment of chain c of exact subclonotype es.
func (g Germline) JSeq(es, c int) string { return seg(g.ES[es].Shared[c].JRef) }

// Seg returns the sequence of a synthetic reference segment.
func Seg(id int) string { return seg(id) }

// WriteReference writes the synthetic reference as a FASTA file that
// refdata.ReadFASTA accepts.
func WriteReference(w io.Writer) error {
	for _, s := range segments {
		if _, err := fmt.Fprintf(w, ">%d|%s|%s|%v|IG|%s|None|00\n%s\n", s.ID, s.Name, s.Name, s.Region, s.Chain, s.Seq); err != nil {
			return err
		}
	}
	return nil
}
