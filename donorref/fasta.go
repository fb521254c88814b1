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

package donorref

import (
	"bufio"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/vdj/refdata"
)

const fastaLineWidth = 80

// WriteFASTA writes every allele of the table as a FASTA record. Headers have
// the form
//
//	>donor<D>|<V gene>|<V id>|alt<i>|support=<n>|<pos><base>,...
//
// where i numbers the alleles of one donor and V segment from 1, and the
// last field lists the deviations from the universal segment with 1-based
// positions.
func WriteFASTA(w io.Writer, t *Table, ref refdata.Reference) error {
	bw := bufio.NewWriter(w)
	for _, k := range t.Keys() {
		name := fmt.Sprintf("v%d", k.VRef)
		if seg, ok := ref.Segment(k.VRef); ok {
			name = seg.Name
		}
		for i, a := range t.Alleles(k) {
			fmt.Fprintf(bw, ">donor%d|%s|%d|alt%d|support=%d|", k.Donor, name, k.VRef, i+1, a.Support)
			for j, d := range a.Deviations {
				if j > 0 {
					bw.WriteByte(',')
				}
				fmt.Fprintf(bw, "%d%c", d.Pos+1, d.Base)
			}
			bw.WriteByte('\n')
			for off := 0; off < len(a.Seq); off += fastaLineWidth {
				end := off + fastaLineWidth
				if end > len(a.Seq) {
					end = len(a.Seq)
				}
				bw.WriteString(a.Seq[off:end])
				bw.WriteByte('\n')
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.E(err, "donorref: writing allele FASTA")
	}
	return nil
}
