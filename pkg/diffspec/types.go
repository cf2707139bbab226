// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package diffspec parses a persona's free-form implementation reply into
// a normalized set of file mutations, and applies them to a repository
// working tree under a size and extension whitelist.
package diffspec

// Op is one file-level mutation. Exactly one of three shapes applies:
// Delete removes Path; a non-nil Content replaces Path's full text
// outright (used for pre-parsed {ops:[...]} entries and brand-new
// files); otherwise Hunks is applied against Path's current contents in
// the working tree (the normal diff-derived case, where the "before"
// text is only known at apply time).
type Op struct {
	Path    string
	Delete  bool
	Content *string
	Hunks   []Hunk
}

// EditSpec is a normalized, ready-to-apply set of file operations, built
// from whatever shape the persona reply carried (raw diff text, one of
// several known wrapper keys, or pre-parsed ops).
type EditSpec struct {
	Ops []Op
}

// AppliedFile records one file's outcome within an ApplyResult.
type AppliedFile struct {
	Path    string
	Deleted bool
	Bytes   int
}

// ApplyResult is the outcome of Apply, in either dry_run or real mode.
type ApplyResult struct {
	DryRun       bool
	ChangedFiles []AppliedFile
}
