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

package filter

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Opts controls the filter cascade. Each built-in filter can be disabled on
// its own; NoFilters disables all of them.
type Opts struct {
	// NoFilters disables every built-in filter.
	NoFilters bool

	// NoNotGex disables NOT_GEX.
	NoNotGex bool
	// NoDuplicateBarcode disables DUPLICATE_BARCODE.
	NoDuplicateBarcode bool
	// NoCross disables CROSS.
	NoCross bool
	// NoWeakChains disables WEAK_CHAINS.
	NoWeakChains bool
	// NoFoursieKill disables FOURSIE_KILL.
	NoFoursieKill bool
	// NoWeakOnesies disables WEAK_ONESIES.
	NoWeakOnesies bool
	// NoQual disables QUAL.
	NoQual bool
	// NoGraphFilter disables GRAPH_FILTER.
	NoGraphFilter bool
	// AllowDonorMixing turns DONOR_MIXING into a mark-only filter.
	AllowDonorMixing bool

	// CrossMinCells is the minimum number of cells, all in one dataset, for
	// an exact subclonotype to be tested for cross-dataset contamination.
	CrossMinCells int
	// CrossMaxProb is the binomial probability below which the absence of
	// an exact subclonotype from the sibling datasets is implausible.
	CrossMaxProb float64
	// WeakChainFraction is the fraction of the strongest chain's UMIs below
	// which a chain of a three-or-more chain exact subclonotype is weak.
	WeakChainFraction float64
	// FoursieMinTwosieCells is the minimum number of cells of a two-chain
	// exact subclonotype whose chains condemn a four-chain one.
	FoursieMinTwosieCells int
	// WeakOnesieFraction is the fraction of all cells below which a
	// onesie-only clonotype is disintegrated.
	WeakOnesieFraction float64
	// QualTrusted and QualSupported are the phred thresholds of QUAL. A base
	// is trusted if one cell reaches QualTrusted or two cells reach
	// QualSupported.
	QualTrusted, QualSupported int
	// GraphRatio is the factor by which a chain pairing must be weaker than
	// the strongest pairing of one of its chains to be deleted.
	GraphRatio float64

	// UserFilter is an optional boolean expression over clonotype variables.
	// Clonotypes for which it is false are deleted.
	UserFilter string
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	CrossMinCells:         10,
	CrossMaxProb:          1e-3,
	WeakChainFraction:     0.2,
	FoursieMinTwosieCells: 10,
	WeakOnesieFraction:    0.001,
	QualTrusted:           60,
	QualSupported:         40,
	GraphRatio:            10,
}

// Validate checks that the option values are usable and consistent.
func (o Opts) Validate() error {
	switch {
	case o.NoFilters && o.UserFilter != "":
		return errors.E(errors.Invalid, "filter: NoFilters and UserFilter are mutually exclusive")
	case o.CrossMinCells < 1:
		return errors.E(errors.Invalid, fmt.Sprintf("filter: cross min cells must be positive, got %d", o.CrossMinCells))
	case o.CrossMaxProb < 0 || o.CrossMaxProb > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("filter: cross max prob must be in [0,1], got %v", o.CrossMaxProb))
	case o.WeakChainFraction < 0 || o.WeakChainFraction > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("filter: weak chain fraction must be in [0,1], got %v", o.WeakChainFraction))
	case o.WeakOnesieFraction < 0 || o.WeakOnesieFraction > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("filter: weak onesie fraction must be in [0,1], got %v", o.WeakOnesieFraction))
	case o.QualSupported > o.QualTrusted:
		return errors.E(errors.Invalid, fmt.Sprintf("filter: qual supported %d exceeds qual trusted %d", o.QualSupported, o.QualTrusted))
	case !(o.GraphRatio > 1):
		return errors.E(errors.Invalid, fmt.Sprintf("filter: graph ratio must exceed 1, got %v", o.GraphRatio))
	}
	return nil
}
