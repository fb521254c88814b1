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

package clonotype

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/vdj/donorref"
	"github.com/grailbio/vdj/filter"
	"github.com/grailbio/vdj/group"
	"github.com/grailbio/vdj/join"
	"github.com/grailbio/vdj/orbit"
)

// Opts configures a pipeline run.
type Opts struct {
	// Parallelism caps the number of workers. Zero means one per CPU. The
	// result does not depend on it.
	Parallelism int
	// ConcurrentOrbits builds orbits with the lock-free union-find instead of
	// a mutex-guarded one.
	ConcurrentOrbits bool
	// NoGroup skips grouping.
	NoGroup bool

	Donor  donorref.Opts
	Join   join.Opts
	Orbit  orbit.Opts
	Filter filter.Opts
	Group  group.Opts
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	Donor:  donorref.DefaultOpts,
	Join:   join.DefaultOpts,
	Orbit:  orbit.DefaultOpts,
	Filter: filter.DefaultOpts,
	Group:  group.DefaultOpts,
}

// Validate checks every option group.
func (o Opts) Validate() error {
	if o.Parallelism < 0 {
		return errors.E(errors.Invalid, "clonotype: parallelism must be non-negative")
	}
	for _, err := range []error{
		o.Donor.Validate(),
		o.Join.Validate(),
		o.Orbit.Validate(),
		o.Filter.Validate(),
		o.Group.Validate(),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
