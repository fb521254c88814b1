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

// Package exact defines the per-contig input records and groups them into
// exact subclonotypes: maximal sets of cells that share an identical
// rearranged V..J sequence on every chain, the same constant-region
// assignment and the same J-stop to C-start offset.
//
// Exact subclonotypes are the unit of clustering for the rest of the
// pipeline. After Aggregate returns they are treated as read-only, except
// for the deletion flags and audit fields written by the filter cascade.
package exact
