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

package orbit

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Opts controls how one-chain exact subclonotypes (onesies) join orbits.
type Opts struct {
	// OnesieMinFraction is the minimum fraction of all cells that a onesie
	// must hold to be merged into a multi-chain orbit.
	OnesieMinFraction float64
	// MergeAllOnesies merges onesies regardless of their size.
	MergeAllOnesies bool
	// NoOnesieMerge leaves every onesie in its own orbit.
	NoOnesieMerge bool
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	OnesieMinFraction: 0.001,
}

// Validate checks that the option values are usable and consistent.
func (o Opts) Validate() error {
	if o.OnesieMinFraction < 0 || o.OnesieMinFraction > 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("orbit: onesie min fraction must be in [0,1], got %v", o.OnesieMinFraction))
	}
	if o.MergeAllOnesies && o.NoOnesieMerge {
		return errors.E(errors.Invalid, "orbit: MergeAllOnesies and NoOnesieMerge are mutually exclusive")
	}
	return nil
}
