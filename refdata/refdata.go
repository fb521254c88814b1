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

// Package refdata holds the universal V(D)J reference: an indexed lookup of
// UTR, V, D, J and C segments keyed by numeric id.
//
// The reference is usually read from a 10x-style FASTA file whose headers
// carry '|'-separated fields, for example:
//
// >12|IGHV3-23 ENST00000390615|IGHV3-23|L-REGION+V-REGION|IG|IGH|None|00
// ATGGAGTTTGGGCTGAGCTGG...
//
// The fields are: segment id, record name, gene name, region type, receptor
// class, chain, isotype and allele. Only the id, gene name, region type and
// chain are used.
package refdata

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const bufferInitSize = 1024 * 1024 // 1 MB, enough for any single segment line.

// Region is the kind of a reference segment.
type Region uint8

const (
	UTR Region = iota
	V
	D
	J
	C
)

var regionNames = [...]string{"UTR", "V", "D", "J", "C"}

func (r Region) String() string {
	if int(r) < len(regionNames) {
		return regionNames[r]
	}
	return "Region(" + strconv.Itoa(int(r)) + ")"
}

// parseRegion converts the region field of a FASTA header.
func parseRegion(s string) (Region, bool) {
	switch s {
	case "5'UTR", "UTR":
		return UTR, true
	case "L-REGION+V-REGION", "V-REGION", "V":
		return V, true
	case "D-REGION", "D":
		return D, true
	case "J-REGION", "J":
		return J, true
	case "C-REGION", "C":
		return C, true
	}
	return 0, false
}

// Segment is one reference segment.
type Segment struct {
	// ID is the numeric id contigs use to refer to this segment.
	ID int
	// Name is the gene name, e.g. "IGHV3-23".
	Name string
	// Region is the segment type.
	Region Region
	// Chain is the chain name, e.g. "IGH" or "TRB".
	Chain string
	// Seq is the upper-case nucleotide sequence. For V segments it starts at
	// the first base of the leader.
	Seq string
}

// Reference is an opaque lookup of segments by id. It is safe for concurrent
// reads.
type Reference interface {
	// Segment returns the segment with the given id.
	Segment(id int) (*Segment, bool)
	// IDs returns the ids of all segments in ascending order.
	IDs() []int
}

type reference struct {
	segs []Segment
	byID map[int]int // segment id -> index in segs.
	ids  []int
}

// New creates a Reference from segments. Segment ids must be unique and
// sequences nonempty.
func New(segs []Segment) (Reference, error) {
	r := &reference{
		segs: make([]Segment, len(segs)),
		byID: make(map[int]int, len(segs)),
	}
	for i, s := range segs {
		if _, ok := r.byID[s.ID]; ok {
			return nil, errors.Errorf("duplicate reference segment id %d (%s)", s.ID, s.Name)
		}
		if len(s.Seq) == 0 {
			return nil, errors.Errorf("reference segment %d (%s) has an empty sequence", s.ID, s.Name)
		}
		s.Seq = strings.ToUpper(s.Seq)
		r.segs[i] = s
		r.byID[s.ID] = i
		r.ids = append(r.ids, s.ID)
	}
	sort.Ints(r.ids)
	return r, nil
}

// Segment implements Reference.Segment.
func (r *reference) Segment(id int) (*Segment, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return &r.segs[i], true
}

// IDs implements Reference.IDs.
func (r *reference) IDs() []int { return r.ids }

// parseHeader parses the text after '>' of a reference FASTA record.
func parseHeader(line string) (Segment, error) {
	fields := strings.Split(line, "|")
	if len(fields) < 6 {
		return Segment{}, errors.Errorf("malformed reference header %q: want at least 6 '|'-separated fields, got %d", line, len(fields))
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return Segment{}, errors.Wrapf(err, "malformed segment id in reference header %q", line)
	}
	region, ok := parseRegion(fields[3])
	if !ok {
		return Segment{}, errors.Errorf("unknown region %q in reference header %q", fields[3], line)
	}
	return Segment{ID: id, Name: fields[2], Region: region, Chain: fields[5]}, nil
}

// ReadFASTA reads a reference in the format described in the package
// comment. Sequences may span multiple lines.
func ReadFASTA(r io.Reader) (Reference, error) {
	var (
		segs []Segment
		cur  *Segment
		seq  strings.Builder
	)
	flush := func() {
		if cur != nil {
			cur.Seq = seq.String()
			segs = append(segs, *cur)
			seq.Reset()
		}
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			s, err := parseHeader(line[1:])
			if err != nil {
				return nil, err
			}
			cur = &s
			continue
		}
		if cur == nil {
			return nil, errors.Errorf("malformed reference FASTA: sequence before the first header")
		}
		seq.WriteString(line)
	}
	if scanner.Err() != nil {
		return nil, errors.Wrap(scanner.Err(), "couldn't read reference FASTA data")
	}
	flush()
	if len(segs) == 0 {
		return nil, errors.Errorf("empty reference FASTA")
	}
	return New(segs)
}
