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

//
// bio-clonotype groups the cells of single-cell V(D)J libraries into
// clonotypes.
//
// The application has two phases
//
//   1. aggregate, score, cluster and filter the input contigs, writing the
//      results in --rio-output and the donor alleles in --donor-fasta.
//
//   2. render the clonotype table in --output.
//
// Example 1: run both phases.
//
//    bio-clonotype --reference=ref.fa --input=lib1.json.gz,lib2.json.gz --output=clonotypes.tsv --rio-output=all.rio
//
// Example 2: re-render the table from the dump of a previous run.
//
//    bio-clonotype --rio-input=all.rio --output=clonotypes.tsv

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/vdj/clonotype"
	"github.com/grailbio/vdj/donorref"
)

// Collection of options set via cmdline flags
type clonotypeFlags struct {
	referencePath  string
	inputs         string
	outputPath     string
	donorFASTAPath string
	rioOutputPath  string
	rioInputPath   string
}

// Clonotype runs the pipeline, or reloads the results of an earlier run, and
// writes the outputs named in flags.
func Clonotype(ctx context.Context, flags clonotypeFlags, opts clonotype.Opts) error {
	var d *dump
	if flags.rioInputPath == "" {
		if flags.referencePath == "" || flags.inputs == "" {
			return errors.E(errors.Invalid, "--reference and --input are required unless --rio-input is set")
		}
		ref, err := readReference(ctx, flags.referencePath)
		if err != nil {
			return err
		}
		datasets, err := readDatasets(ctx, strings.Split(flags.inputs, ","))
		if err != nil {
			return err
		}
		r, err := clonotype.Run(ctx, datasets, ref, opts)
		if err != nil {
			return err
		}
		logStats(r.Stats)
		if flags.donorFASTAPath != "" {
			if err := writeOutput(ctx, flags.donorFASTAPath, func(w io.Writer) error {
				return donorref.WriteFASTA(w, r.Donor, ref)
			}); err != nil {
				return err
			}
			log.Printf("Wrote %d donor alleles to %s", len(r.Donor.All()), flags.donorFASTAPath)
		}
		d = newDump(r, ref, opts)
		if flags.rioOutputPath != "" {
			writeDump(ctx, flags.rioOutputPath, d)
		}
	} else {
		d = readDump(ctx, flags.rioInputPath)
		log.Printf("Read %d exact subclonotypes from %s", len(d.Exact), flags.rioInputPath)
	}
	var csum uint64
	if err := writeOutput(ctx, flags.outputPath, func(w io.Writer) (err error) {
		csum, err = writeTable(w, d)
		return err
	}); err != nil {
		return err
	}
	log.Printf("Stats: %d clonotypes, %d groups written to %s, checksum %016x",
		len(d.Clonotypes), len(d.Groups), flags.outputPath, csum)
	return nil
}

func logStats(s clonotype.Stats) {
	log.Printf("Stats: aggregate: %+v", s.Aggregate)
	log.Printf("Stats: donor alleles: %+v", s.Donor)
	log.Printf("Stats: joins: %+v", s.Join)
	log.Printf("Stats: orbits: %+v", s.Orbit)
	for _, f := range s.Filter.Filters {
		log.Printf("Stats: filter %s: %d exact subclonotypes, %d cells deleted, %d marked",
			f.Name, f.Subclonotypes, f.Cells, f.Marked)
	}
	for _, t := range s.Times {
		log.Printf("Stats: stage %s: %v", t.Stage, t.Elapsed)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `
bio-clonotype reads the productive contigs of one or more single-cell V(D)J
libraries and writes one line per exact subclonotype, tagged with its
clonotype and group.

Inputs are JSON documents, optionally gzipped, each describing one library:

    {"name": "lib1", "origin": 0, "donor": 0, "cells": [
      {"barcode": "AAAC-1", "gex": "cell", "features": {"CD19": 12},
       "contigs": [{"seq": "...", "qual": "...", "chain": "IGH",
                    "v_ref": 3, "j_ref": 17, "v_start": 40, "j_stop": 420,
                    "cdr3_start": 370, "cdr3_stop": 409, "umis": 8, "reads": 210}]}]}

Usage:
  bio-clonotype --reference=ref.fa --input=a.json,b.json.gz --output=out.tsv [flags]
  bio-clonotype --rio-input=all.rio --output=out.tsv
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage

	opts := clonotype.DefaultOpts
	flags := clonotypeFlags{}
	flag.StringVar(&flags.referencePath, "reference", "", "FASTA file of the V(D)J reference segments.")
	flag.StringVar(&flags.inputs, "input", "", "Comma-separated list of JSON library files.")
	flag.StringVar(&flags.outputPath, "output", "./clonotypes.tsv", "TSV file to store the clonotype table.")
	flag.StringVar(&flags.donorFASTAPath, "donor-fasta", "", "If set, FASTA file to store the inferred donor alleles.")
	flag.StringVar(&flags.rioOutputPath, "rio-output", "", "If set, recordio file to store the exact subclonotypes and clonotypes.")
	flag.StringVar(&flags.rioInputPath, "rio-input", "", `Recordio file written by --rio-output. If this flag is nonempty,
only the table is rendered from the file, and no clustering is done.`)

	flag.IntVar(&opts.Parallelism, "parallelism", clonotype.DefaultOpts.Parallelism, "Max number of workers. 0 means one per CPU.")
	flag.BoolVar(&opts.ConcurrentOrbits, "concurrent-orbits", clonotype.DefaultOpts.ConcurrentOrbits, "Build orbits with the lock-free union-find.")
	flag.BoolVar(&opts.NoGroup, "no-group", clonotype.DefaultOpts.NoGroup, "Skip grouping of clonotypes.")

	flag.BoolVar(&opts.Donor.Disable, "no-donor-ref", clonotype.DefaultOpts.Donor.Disable, "Skip donor allele inference.")
	flag.IntVar(&opts.Donor.JunctionTrim, "donor-junction-trim", clonotype.DefaultOpts.Donor.JunctionTrim, "V bases next to the junction never examined for alleles.")
	flag.IntVar(&opts.Donor.MinAltCount, "donor-min-alt-count", clonotype.DefaultOpts.Donor.MinAltCount, "Min samples carrying an alternate base.")
	flag.Float64Var(&opts.Donor.MinAltFraction, "donor-min-alt-fraction", clonotype.DefaultOpts.Donor.MinAltFraction, "Min fraction of samples carrying an alternate base.")
	flag.IntVar(&opts.Donor.MinAlleleSupport, "donor-min-allele-support", clonotype.DefaultOpts.Donor.MinAlleleSupport, "Min samples sharing an allele footprint.")

	flag.IntVar(&opts.Join.MaxDiffs, "max-diffs", clonotype.DefaultOpts.Join.MaxDiffs, "Max V..J mismatches between joined exact subclonotypes.")
	flag.IntVar(&opts.Join.MaxCDR3Diffs, "max-cdr3-diffs", clonotype.DefaultOpts.Join.MaxCDR3Diffs, "Max CDR3 mismatches between joined exact subclonotypes.")
	flag.Float64Var(&opts.Join.MaxScore, "max-score", clonotype.DefaultOpts.Join.MaxScore, "Max join score.")
	flag.IntVar(&opts.Join.MaxRefDiffs, "max-ref-diffs", clonotype.DefaultOpts.Join.MaxRefDiffs, "Max differences between the references of joined exact subclonotypes.")
	flag.BoolVar(&opts.Join.IgnoreRefDiffs, "ignore-ref-diffs", clonotype.DefaultOpts.Join.IgnoreRefDiffs, "Do not check reference differences.")
	flag.BoolVar(&opts.Join.AllowSingletonJoins, "allow-singleton-joins", clonotype.DefaultOpts.Join.AllowSingletonJoins, "Do not apply the one-cell CDR3 guard.")

	flag.Float64Var(&opts.Orbit.OnesieMinFraction, "onesie-min-fraction", clonotype.DefaultOpts.Orbit.OnesieMinFraction, "Min fraction of all cells for a onesie to be merged.")
	flag.BoolVar(&opts.Orbit.MergeAllOnesies, "merge-all-onesies", clonotype.DefaultOpts.Orbit.MergeAllOnesies, "Merge onesies regardless of size.")
	flag.BoolVar(&opts.Orbit.NoOnesieMerge, "no-onesie-merge", clonotype.DefaultOpts.Orbit.NoOnesieMerge, "Never merge onesies.")

	flag.BoolVar(&opts.Filter.NoFilters, "no-filters", clonotype.DefaultOpts.Filter.NoFilters, "Disable every built-in filter.")
	flag.BoolVar(&opts.Filter.NoNotGex, "no-not-gex", clonotype.DefaultOpts.Filter.NoNotGex, "Disable NOT_GEX.")
	flag.BoolVar(&opts.Filter.NoDuplicateBarcode, "no-duplicate-barcode", clonotype.DefaultOpts.Filter.NoDuplicateBarcode, "Disable DUPLICATE_BARCODE.")
	flag.BoolVar(&opts.Filter.NoCross, "no-cross", clonotype.DefaultOpts.Filter.NoCross, "Disable CROSS.")
	flag.BoolVar(&opts.Filter.NoWeakChains, "no-weak-chains", clonotype.DefaultOpts.Filter.NoWeakChains, "Disable WEAK_CHAINS.")
	flag.BoolVar(&opts.Filter.NoFoursieKill, "no-foursie-kill", clonotype.DefaultOpts.Filter.NoFoursieKill, "Disable FOURSIE_KILL.")
	flag.BoolVar(&opts.Filter.NoWeakOnesies, "no-weak-onesies", clonotype.DefaultOpts.Filter.NoWeakOnesies, "Disable WEAK_ONESIES.")
	flag.BoolVar(&opts.Filter.NoQual, "no-qual", clonotype.DefaultOpts.Filter.NoQual, "Disable QUAL.")
	flag.BoolVar(&opts.Filter.NoGraphFilter, "no-graph-filter", clonotype.DefaultOpts.Filter.NoGraphFilter, "Disable GRAPH_FILTER.")
	flag.BoolVar(&opts.Filter.AllowDonorMixing, "allow-donor-mixing", clonotype.DefaultOpts.Filter.AllowDonorMixing, "Mark, rather than delete, clonotypes spanning donors.")
	flag.IntVar(&opts.Filter.CrossMinCells, "cross-min-cells", clonotype.DefaultOpts.Filter.CrossMinCells, "Min cells for the CROSS test.")
	flag.Float64Var(&opts.Filter.CrossMaxProb, "cross-max-prob", clonotype.DefaultOpts.Filter.CrossMaxProb, "CROSS probability threshold.")
	flag.Float64Var(&opts.Filter.WeakChainFraction, "weak-chain-fraction", clonotype.DefaultOpts.Filter.WeakChainFraction, "WEAK_CHAINS UMI fraction.")
	flag.IntVar(&opts.Filter.FoursieMinTwosieCells, "foursie-min-twosie-cells", clonotype.DefaultOpts.Filter.FoursieMinTwosieCells, "Min cells of a two-chain exact subclonotype condemning a foursie.")
	flag.Float64Var(&opts.Filter.WeakOnesieFraction, "weak-onesie-fraction", clonotype.DefaultOpts.Filter.WeakOnesieFraction, "WEAK_ONESIES cell fraction.")
	flag.IntVar(&opts.Filter.QualTrusted, "qual-trusted", clonotype.DefaultOpts.Filter.QualTrusted, "Phred score at which one cell makes a base trusted.")
	flag.IntVar(&opts.Filter.QualSupported, "qual-supported", clonotype.DefaultOpts.Filter.QualSupported, "Phred score at which two cells make a base trusted.")
	flag.Float64Var(&opts.Filter.GraphRatio, "graph-ratio", clonotype.DefaultOpts.Filter.GraphRatio, "GRAPH_FILTER weight ratio.")
	flag.StringVar(&opts.Filter.UserFilter, "filter", clonotype.DefaultOpts.Filter.UserFilter,
		`Boolean expression over clonotype variables, e.g. "ncells >= 2 && cdr3_len > 10".
Clonotypes for which it is false are deleted.`)

	flag.BoolVar(&opts.Group.SameVJ, "group-same-vj", clonotype.DefaultOpts.Group.SameVJ, "Group only clonotypes with the same V and J segments.")
	flag.IntVar(&opts.Group.MaxCDR3AADist, "group-max-cdr3-dist", clonotype.DefaultOpts.Group.MaxCDR3AADist, "Max CDR3 amino acid edit distance within a group.")
	flag.IntVar(&opts.Group.MinGroupSize, "group-min-size", clonotype.DefaultOpts.Group.MinGroupSize, "Min clonotypes per reported group.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()
	if err := Clonotype(ctx, flags, opts); err != nil {
		log.Fatal(err)
	}
	log.Printf("All done")
}
