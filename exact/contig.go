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
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/vdj/refdata"
)

// NoRef marks an absent optional reference segment (D, C or UTR), and an
// absent C start offset.
const NoRef = -1

// ChainType is the receptor chain of a contig.
type ChainType uint8

const (
	IGH ChainType = iota
	IGK
	IGL
	TRA
	TRB
	TRD
	TRG
	numChainTypes
)

var chainTypeNames = [...]string{"IGH", "IGK", "IGL", "TRA", "TRB", "TRD", "TRG"}

func (c ChainType) String() string {
	if c < numChainTypes {
		return chainTypeNames[c]
	}
	return fmt.Sprintf("ChainType(%d)", c)
}

// IsHeavy reports whether the chain is a VDJ chain (carries a D segment).
func (c ChainType) IsHeavy() bool { return c == IGH || c == TRB || c == TRD }

// ParseChainType converts a chain name such as "IGH" to a ChainType.
func ParseChainType(s string) (ChainType, error) {
	for i, name := range chainTypeNames {
		if name == s {
			return ChainType(i), nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown chain type %q", s))
}

// GexCall is the gene-expression cell call for a barcode. Most inputs come
// without gene expression data, so the zero value is "unknown".
type GexCall uint8

const (
	GexUnknown GexCall = iota
	GexCell
	GexNotCell
)

// Contig is one productive V(D)J transcript assembled from one cell barcode.
// All offsets are 0-based positions in Seq; ranges are half-open.
type Contig struct {
	// Seq is the full contig nucleotide sequence.
	Seq string
	// Qual holds one phred score per base of Seq.
	Qual []byte
	// Chain is the receptor chain.
	Chain ChainType
	// UTRRef, DRef and CRef are optional (NoRef when absent). VRef and JRef
	// are required.
	UTRRef, VRef, DRef, JRef, CRef int
	// VStart is the contig position aligned to the first base of the V
	// segment. JStop is the position just past the last base of J.
	VStart, JStop int
	// CStart is the first base of the constant region, or NoRef.
	CStart int
	// CDR3Start and CDR3Stop delimit the CDR3 nucleotides.
	CDR3Start, CDR3Stop int
	// UMIs and Reads count the molecules and reads supporting the contig.
	UMIs, Reads int
}

func (c *Contig) invalid(format string, args ...interface{}) error {
	return errors.E(errors.Invalid, fmt.Sprintf("%v contig: ", c.Chain)+fmt.Sprintf(format, args...))
}

// Validate checks the internal consistency of the contig offsets, and that
// every referenced segment exists in ref with the right region type.
func (c *Contig) Validate(ref refdata.Reference) error {
	n := len(c.Seq)
	switch {
	case n == 0:
		return c.invalid("empty sequence")
	case len(c.Qual) != n:
		return c.invalid("%d quality scores for %d bases", len(c.Qual), n)
	case c.Chain >= numChainTypes:
		return c.invalid("unknown chain type")
	case c.VStart < 0 || c.VStart >= c.JStop || c.JStop > n:
		return c.invalid("V start %d and J stop %d inconsistent with sequence length %d", c.VStart, c.JStop, n)
	case c.CDR3Start < c.VStart || c.CDR3Start >= c.CDR3Stop || c.CDR3Stop > c.JStop:
		return c.invalid("CDR3 [%d,%d) outside of V..J [%d,%d)", c.CDR3Start, c.CDR3Stop, c.VStart, c.JStop)
	case (c.CDR3Stop-c.CDR3Start)%3 != 0:
		return c.invalid("CDR3 length %d is not a multiple of 3", c.CDR3Stop-c.CDR3Start)
	case c.CStart != NoRef && (c.CStart < 0 || c.CStart > n):
		return c.invalid("C start %d beyond sequence length %d", c.CStart, n)
	case c.CStart == NoRef && c.CRef != NoRef:
		return c.invalid("C segment %d without a C start", c.CRef)
	case c.UMIs < 0 || c.Reads < 0:
		return c.invalid("negative UMI or read count")
	}
	for _, r := range []struct {
		id       int
		region   refdata.Region
		optional bool
	}{
		{c.UTRRef, refdata.UTR, true},
		{c.VRef, refdata.V, false},
		{c.DRef, refdata.D, true},
		{c.JRef, refdata.J, false},
		{c.CRef, refdata.C, true},
	} {
		if r.id == NoRef && r.optional {
			continue
		}
		seg, ok := ref.Segment(r.id)
		if !ok {
			return c.invalid("%v segment %d not in the reference", r.region, r.id)
		}
		if seg.Region != r.region {
			return c.invalid("segment %d (%s) is a %v segment, want %v", r.id, seg.Name, seg.Region, r.region)
		}
	}
	return nil
}

// CellContigs is the set of contigs assembled for one barcode, with the
// auxiliary per-cell signals some filters consult.
type CellContigs struct {
	Barcode string
	Contigs []Contig
	// Gex is the gene-expression cell call, if any.
	Gex GexCall
	// Features maps feature-barcode names to UMI counts. Nil when absent.
	Features map[string]float64
}

// Dataset is one library. Datasets with the same Origin were made from the
// same sample.
type Dataset struct {
	Name   string
	Origin int
	Donor  int
	Cells  []CellContigs
}
