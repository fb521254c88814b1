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

package join

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
)

// Opts controls pair scoring.
type Opts struct {
	// MaxDiffs is the maximum number of V..J mismatches, summed over chains.
	MaxDiffs int
	// MaxCDR3Diffs is the maximum number of CDR3 nucleotide differences,
	// summed over chains.
	MaxCDR3Diffs int
	// MaxScore is the ceiling on p * N_cdr3 for accepting a pair.
	MaxScore float64
	// MaxRefDiffs is the maximum number of positions at which the references
	// assigned to the two sides may differ.
	MaxRefDiffs int
	// IgnoreRefDiffs disables the MaxRefDiffs check.
	IgnoreRefDiffs bool
	// AllowSingletonJoins disables the requirement that a pair involving a
	// one-cell exact subclonotype has no more CDR3 differences than shared
	// mutations.
	AllowSingletonJoins bool
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	MaxDiffs:     55,
	MaxCDR3Diffs: 15,
	MaxScore:     500000,
	MaxRefDiffs:  2,
}

// Validate checks that the option values are usable.
func (o Opts) Validate() error {
	switch {
	case o.MaxDiffs < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("join: max diffs must be non-negative, got %d", o.MaxDiffs))
	case o.MaxCDR3Diffs < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("join: max CDR3 diffs must be non-negative, got %d", o.MaxCDR3Diffs))
	case math.IsNaN(o.MaxScore) || o.MaxScore < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("join: max score must be non-negative, got %v", o.MaxScore))
	case o.MaxRefDiffs < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("join: max ref diffs must be non-negative, got %d", o.MaxRefDiffs))
	}
	return nil
}
