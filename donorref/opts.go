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
	"fmt"

	"github.com/grailbio/base/errors"
)

// Opts controls donor allele inference.
type Opts struct {
	// Disable skips inference. Every chain then uses the universal reference.
	Disable bool
	// JunctionTrim is the number of bases at the 3' end of each V segment that
	// are never examined. Near the recombination junction the observed bases
	// reflect trimming and N-additions rather than the germline.
	JunctionTrim int
	// MinAltCount is the minimum number of sampled exact subclonotypes that
	// must carry a non-reference base for its position to be considered an
	// alternate-allele position.
	MinAltCount int
	// MinAltFraction is the minimum fraction of the sampled exact
	// subclonotypes covering a position that must carry the non-reference
	// base.
	MinAltFraction float64
	// MinAlleleSupport is the minimum number of samples that must share a
	// footprint for it to be called an allele.
	MinAlleleSupport int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	JunctionTrim:     15,
	MinAltCount:      4,
	MinAltFraction:   0.25,
	MinAlleleSupport: 4,
}

// Validate checks that the option values are usable.
func (o Opts) Validate() error {
	switch {
	case o.JunctionTrim < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("donorref: junction trim must be non-negative, got %d", o.JunctionTrim))
	case o.MinAltCount < 1:
		return errors.E(errors.Invalid, fmt.Sprintf("donorref: min alt count must be positive, got %d", o.MinAltCount))
	case o.MinAltFraction < 0 || o.MinAltFraction > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("donorref: min alt fraction must be in [0,1], got %v", o.MinAltFraction))
	case o.MinAlleleSupport < 1:
		return errors.E(errors.Invalid, fmt.Sprintf("donorref: min allele support must be positive, got %d", o.MinAlleleSupport))
	}
	return nil
}
