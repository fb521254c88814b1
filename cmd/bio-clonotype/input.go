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
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/refdata"
	"github.com/klauspost/compress/gzip"
)

// phredOffset is the ASCII offset of the quality strings in the input.
const phredOffset = 33

// jsonContig is the input form of exact.Contig. The optional segments are
// pointers so that an absent field maps to exact.NoRef.
type jsonContig struct {
	Seq       string `json:"seq"`
	Qual      string `json:"qual"`
	Chain     string `json:"chain"`
	UTRRef    *int   `json:"utr_ref"`
	VRef      int    `json:"v_ref"`
	DRef      *int   `json:"d_ref"`
	JRef      int    `json:"j_ref"`
	CRef      *int   `json:"c_ref"`
	VStart    int    `json:"v_start"`
	JStop     int    `json:"j_stop"`
	CStart    *int   `json:"c_start"`
	CDR3Start int    `json:"cdr3_start"`
	CDR3Stop  int    `json:"cdr3_stop"`
	UMIs      int    `json:"umis"`
	Reads     int    `json:"reads"`
}

type jsonCell struct {
	Barcode  string             `json:"barcode"`
	Gex      string             `json:"gex"`
	Features map[string]float64 `json:"features"`
	Contigs  []jsonContig       `json:"contigs"`
}

type jsonDataset struct {
	Name   string     `json:"name"`
	Origin int        `json:"origin"`
	Donor  int        `json:"donor"`
	Cells  []jsonCell `json:"cells"`
}

func optionalRef(v *int) int {
	if v == nil {
		return exact.NoRef
	}
	return *v
}

func parseGex(s string) (exact.GexCall, error) {
	switch s {
	case "":
		return exact.GexUnknown, nil
	case "cell":
		return exact.GexCell, nil
	case "not_cell":
		return exact.GexNotCell, nil
	}
	return exact.GexUnknown, errors.E(errors.Invalid, fmt.Sprintf("unknown gex call %q", s))
}

func (jc *jsonContig) contig() (exact.Contig, error) {
	chain, err := exact.ParseChainType(jc.Chain)
	if err != nil {
		return exact.Contig{}, err
	}
	qual := make([]byte, len(jc.Qual))
	for i := 0; i < len(jc.Qual); i++ {
		if jc.Qual[i] < phredOffset {
			return exact.Contig{}, errors.E(errors.Invalid, fmt.Sprintf("quality character %q at %d below '!'", jc.Qual[i], i))
		}
		qual[i] = jc.Qual[i] - phredOffset
	}
	return exact.Contig{
		Seq:       jc.Seq,
		Qual:      qual,
		Chain:     chain,
		UTRRef:    optionalRef(jc.UTRRef),
		VRef:      jc.VRef,
		DRef:      optionalRef(jc.DRef),
		JRef:      jc.JRef,
		CRef:      optionalRef(jc.CRef),
		VStart:    jc.VStart,
		JStop:     jc.JStop,
		CStart:    optionalRef(jc.CStart),
		CDR3Start: jc.CDR3Start,
		CDR3Stop:  jc.CDR3Stop,
		UMIs:      jc.UMIs,
		Reads:     jc.Reads,
	}, nil
}

func (jd *jsonDataset) dataset() (exact.Dataset, error) {
	d := exact.Dataset{
		Name:   jd.Name,
		Origin: jd.Origin,
		Donor:  jd.Donor,
		Cells:  make([]exact.CellContigs, len(jd.Cells)),
	}
	for i := range jd.Cells {
		jc := &jd.Cells[i]
		gex, err := parseGex(jc.Gex)
		if err != nil {
			return exact.Dataset{}, errors.E(err, "barcode "+jc.Barcode)
		}
		cell := exact.CellContigs{
			Barcode:  jc.Barcode,
			Gex:      gex,
			Features: jc.Features,
			Contigs:  make([]exact.Contig, len(jc.Contigs)),
		}
		for j := range jc.Contigs {
			if cell.Contigs[j], err = jc.Contigs[j].contig(); err != nil {
				return exact.Dataset{}, errors.E(err, fmt.Sprintf("barcode %s contig %d", jc.Barcode, j))
			}
		}
		d.Cells[i] = cell
	}
	return d, nil
}

// openInput opens path for reading, decompressing it if its name ends in
// ".gz". The returned cleanup function closes the file.
func openInput(ctx context.Context, path string) (r io.Reader, cleanup func(), err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "open", path)
	}
	r = in.Reader(ctx)
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if r, err = gzip.NewReader(r); err != nil {
			_ = in.Close(ctx)
			return nil, nil, errors.E(err, "gzip", path)
		}
	}
	cleanup = func() {
		if err := in.Close(ctx); err != nil {
			log.Error.Printf("close %s: %v", path, err)
		}
	}
	return r, cleanup, nil
}

func readDataset(ctx context.Context, path string) (exact.Dataset, error) {
	r, cleanup, err := openInput(ctx, path)
	if err != nil {
		return exact.Dataset{}, err
	}
	defer cleanup()
	var jd jsonDataset
	if err := json.NewDecoder(r).Decode(&jd); err != nil {
		return exact.Dataset{}, errors.E(errors.Invalid, err, path)
	}
	if jd.Name == "" {
		jd.Name = path
	}
	d, err := jd.dataset()
	if err != nil {
		return exact.Dataset{}, errors.E(err, path)
	}
	return d, nil
}

// readDatasets reads one library per path, in order.
func readDatasets(ctx context.Context, paths []string) ([]exact.Dataset, error) {
	datasets := make([]exact.Dataset, 0, len(paths))
	for _, path := range paths {
		d, err := readDataset(ctx, path)
		if err != nil {
			return nil, err
		}
		log.Printf("Read %d barcodes from %s", len(d.Cells), path)
		datasets = append(datasets, d)
	}
	return datasets, nil
}

func readReference(ctx context.Context, path string) (refdata.Reference, error) {
	r, cleanup, err := openInput(ctx, path)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	ref, err := refdata.ReadFASTA(r)
	if err != nil {
		return nil, errors.E(errors.Invalid, err, path)
	}
	log.Printf("Read %d reference segments from %s", len(ref.IDs()), path)
	return ref, nil
}
