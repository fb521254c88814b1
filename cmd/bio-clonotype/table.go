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

package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/vdj/exact"
	"github.com/samber/lo"
)

const tableHeader = "#clonotype\tgroup\texact\tchains\tcells\ttotal_cells\tumis\tdonors\tdatasets\tfilter\tmarks\n"

func (d *dump) segmentName(id int) string {
	if name, ok := d.Segments[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}

// chainString renders the chains of s as CHAIN:V:J:CDR3AA, separated by ';'.
func (d *dump) chainString(s *exact.Subclonotype) string {
	return strings.Join(lo.Map(s.Shared, func(sc exact.SharedChain, _ int) string {
		return fmt.Sprintf("%v:%s:%s:%s", sc.Chain, d.segmentName(sc.VRef), d.segmentName(sc.JRef), sc.CDR3AA)
	}), ";")
}

func joinInts(v []int) string {
	if len(v) == 0 {
		return "."
	}
	return strings.Join(lo.Map(v, func(x int, _ int) string { return strconv.Itoa(x) }), ",")
}

func sortedUniq(v []int) []int {
	v = lo.Uniq(v)
	sort.Ints(v)
	return v
}

// writeTable writes one line per exact subclonotype. The members of each
// clonotype come first, in clonotype order; exact subclonotypes that belong
// to no clonotype follow with clonotype ".". It returns the seahash checksum
// of the table.
func writeTable(out io.Writer, d *dump) (uint64, error) {
	h := seahash.New()
	w := io.MultiWriter(out, h)
	group := map[int]int{}
	for g, members := range d.Groups {
		for _, c := range members {
			group[c] = g
		}
	}
	placed := make([]bool, len(d.Exact))
	er := errors.Once{}
	_, err := io.WriteString(w, tableHeader)
	er.Set(err)
	writeLine := func(clonotype string, groupID string, i int) {
		s := &d.Exact[i]
		// Counts cover the live cells only, so a deleted exact subclonotype
		// reports none.
		umis := 0
		var donors, datasets []int
		for _, c := range s.Cells {
			if !s.Deleted() && !c.Deleted {
				umis += c.UMIs()
				donors = append(donors, c.Donor)
				datasets = append(datasets, c.Dataset)
			}
		}
		filter := s.Filter
		if filter == "" {
			filter = "."
		}
		marks := strings.Join(s.Marks, ",")
		if marks == "" {
			marks = "."
		}
		_, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
			clonotype, groupID, i, d.chainString(s), s.LiveCells(), len(s.Cells), umis,
			joinInts(sortedUniq(donors)), joinInts(sortedUniq(datasets)), filter, marks)
		er.Set(err)
	}
	for c, members := range d.Clonotypes {
		groupID := "."
		if g, ok := group[c]; ok {
			groupID = strconv.Itoa(g)
		}
		for _, i := range members {
			placed[i] = true
			writeLine(strconv.Itoa(c), groupID, i)
		}
	}
	for i := range d.Exact {
		if !placed[i] {
			writeLine(".", ".", i)
		}
	}
	return h.Sum64(), er.Err()
}
