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

// This file defines the recordio dump of a run. writeDump stores the exact
// subclonotypes, clonotypes and groups of a run, and readDump reads them
// back. The dump can be used to re-render the table without clustering
// again.

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/vdj/clonotype"
	"github.com/grailbio/vdj/donorref"
	"github.com/grailbio/vdj/exact"
	"github.com/grailbio/vdj/refdata"
)

const (
	// <fileVersionHeader, fileVersion> is stored in a recordio header.
	fileVersionHeader = "clonotypeversion"
	fileVersion       = "CLONOTYPE_V1"
)

// dumpHeader is stored in the trailer section of the recordio file.
type dumpHeader struct {
	// Opts is the list of options used for the run.
	Opts clonotype.Opts
	// Clonotypes and Groups are copies of the fields of clonotype.Result.
	Clonotypes, Groups [][]int
	// Alleles lists the inferred donor alleles.
	Alleles []donorref.Allele
	// Segments maps reference segment ids to names.
	Segments map[int]string
	Stats    clonotype.Stats
}

// dump is the content of a recordio file: one record per exact
// subclonotype, and the header.
type dump struct {
	dumpHeader
	Exact []exact.Subclonotype
}

func newDump(r *clonotype.Result, ref refdata.Reference, opts clonotype.Opts) *dump {
	d := &dump{
		dumpHeader: dumpHeader{
			Opts:       opts,
			Clonotypes: r.Clonotypes,
			Groups:     r.Groups,
			Alleles:    r.Donor.All(),
			Segments:   map[int]string{},
			Stats:      r.Stats,
		},
		Exact: r.Exact,
	}
	for _, id := range ref.IDs() {
		seg, _ := ref.Segment(id)
		d.Segments[id] = seg.Name
	}
	return d
}

func encodeGOB(gw *gob.Encoder, v interface{}) {
	if err := gw.Encode(v); err != nil {
		panic(err)
	}
}

func decodeGOB(gr *gob.Decoder, v interface{}) {
	if err := gr.Decode(v); err != nil {
		panic(err)
	}
}

// writeDump writes d to a zstd-compressed recordio file. Any error will crash
// the process.
func writeDump(ctx context.Context, outPath string, d *dump) {
	recordiozstd.Init()
	out, err := file.Create(ctx, outPath)
	if err != nil {
		log.Panicf("rio open %v: %v", outPath, err)
	}
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(fileVersionHeader, fileVersion)
	w.AddHeader(recordio.KeyTrailer, true)
	for i := range d.Exact {
		b := bytes.NewBuffer(nil)
		encodeGOB(gob.NewEncoder(b), &d.Exact[i])
		w.Append(b.Bytes())
	}
	b := bytes.NewBuffer(nil)
	encodeGOB(gob.NewEncoder(b), &d.dumpHeader)
	w.SetTrailer(b.Bytes())
	if err := w.Finish(); err != nil {
		log.Panicf("rio close %v: %v", outPath, err)
	}
	if err := out.Close(ctx); err != nil {
		log.Panicf("close %v: %v", outPath, err)
	}
	log.Printf("Wrote %d exact subclonotypes to %s", len(d.Exact), outPath)
}

// readDump reads a file created by writeDump. Any error will crash the
// process.
func readDump(ctx context.Context, inPath string) *dump {
	in, err := file.Open(ctx, inPath)
	if err != nil {
		log.Panicf("open %s: %v", inPath, err)
	}
	recordiozstd.Init()
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	versionFound := false
	for _, kv := range r.Header() {
		if kv.Key == fileVersionHeader {
			if kv.Value.(string) != fileVersion {
				log.Panicf("clonotype file version mismatch, got %v, expect %v",
					kv.Value.(string), fileVersion)
			}
			versionFound = true
			break
		}
	}
	if !versionFound {
		log.Panic(fileVersionHeader + " not found")
	}
	d := &dump{}
	decodeGOB(gob.NewDecoder(bytes.NewReader(r.Trailer())), &d.dumpHeader)
	for r.Scan() {
		var es exact.Subclonotype
		decodeGOB(gob.NewDecoder(bytes.NewReader(r.Get().([]byte))), &es)
		d.Exact = append(d.Exact, es)
	}
	if err := r.Err(); err != nil {
		log.Panic(err)
	}
	if err := in.Close(ctx); err != nil {
		log.Panic(err)
	}
	return d
}

// createFile creates path for writing. The cleanup function flushes and
// closes the file. Any error will crash the process.
func createFile(ctx context.Context, path string) (io.Writer, func()) {
	out, err := file.Create(ctx, path)
	if err != nil {
		log.Panicf("create %v: %v", path, err)
	}
	w := bufio.NewWriter(out.Writer(ctx))
	return w, func() {
		if err := w.Flush(); err != nil {
			log.Panicf("flush %v: %v", path, err)
		}
		if err := out.Close(ctx); err != nil {
			log.Panicf("close %v: %v", path, err)
		}
	}
}

// writeOutput creates path and fills it with write. The file is flushed and
// closed even if write fails.
func writeOutput(ctx context.Context, path string, write func(w io.Writer) error) error {
	out, cleanup := createFile(ctx, path)
	defer cleanup()
	return write(out)
}
