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

package diffspec

import (
	"fmt"
	"regexp"
)

// fencedBlock matches a fenced code block, capturing its body. The
// language tag (diff, patch, or none) is not significant: a block only
// needs to contain recognizable diff markers to be treated as a diff.
var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\n(.*?)```")

// ExtractFencedDiffs returns the body of every fenced code block in text
// that looks like a unified diff (contains a --- / +++ pair or an @@
// hunk header). A persona reply that is itself bare diff text with no
// fences at all is returned as its own single-element slice.
func ExtractFencedDiffs(text string) []string {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	var out []string
	for _, m := range matches {
		if looksLikeDiff(m[1]) {
			out = append(out, m[1])
		}
	}
	if len(out) == 0 && looksLikeDiff(text) {
		out = append(out, text)
	}
	return out
}

func looksLikeDiff(s string) bool {
	return regexp.MustCompile(`(?m)^(--- |\+\+\+ |@@ )`).MatchString(s)
}

// BuildEditSpec normalizes a persona implementation reply's payload into
// an EditSpec, accepting the shapes named in §4.6: a raw string, a map
// with one of the diffs/code_diffs/implementation_diff/diff keys, or a
// map with a pre-parsed "ops" list. It never touches the filesystem —
// Hunks are resolved against the working tree later, by Apply.
func BuildEditSpec(raw interface{}) (*EditSpec, error) {
	switch v := raw.(type) {
	case string:
		return buildFromDiffText(v)

	case map[string]interface{}:
		if ops, ok := v["ops"]; ok {
			return buildFromPreParsedOps(ops)
		}
		for _, key := range []string{"diffs", "code_diffs", "implementation_diff", "diff"} {
			if s, ok := v[key]; ok {
				if text, ok := s.(string); ok {
					return buildFromDiffText(text)
				}
			}
		}
		return nil, fmt.Errorf("diffspec: no recognized diff field among diffs/code_diffs/implementation_diff/diff/ops")

	default:
		return nil, fmt.Errorf("diffspec: unsupported payload type %T", raw)
	}
}

func buildFromDiffText(text string) (*EditSpec, error) {
	blocks := ExtractFencedDiffs(text)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("diffspec: no fenced diff blocks found in implementation reply")
	}

	spec := &EditSpec{}
	for _, block := range blocks {
		files, err := ParseUnifiedDiff(block)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			path := f.NewPath
			if path == "" || path == "/dev/null" {
				path = f.OldPath
			}
			if f.NewPath == "/dev/null" {
				spec.Ops = append(spec.Ops, Op{Path: f.OldPath, Delete: true})
				continue
			}
			spec.Ops = append(spec.Ops, Op{Path: path, Hunks: f.Hunks})
		}
	}

	if len(spec.Ops) == 0 {
		return nil, fmt.Errorf("diffspec: diff parsed but produced zero operations")
	}
	return spec, nil
}

// buildFromPreParsedOps converts an already-structured []{path, content,
// delete} list. Per §4.6, pre-parsed ops are round-tripped through a
// synthetic unified diff and re-parsed, so ParseUnifiedDiff/ApplyHunks
// remains the single code path that actually computes file content —
// this catches a malformed pre-parsed op (e.g. binary content) the same
// way a malformed raw diff would be caught.
func buildFromPreParsedOps(raw interface{}) (*EditSpec, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("diffspec: ops must be a list")
	}

	spec := &EditSpec{}
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("diffspec: ops[%d] is not an object", i)
		}
		path, _ := m["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("diffspec: ops[%d] has no path", i)
		}

		if del, _ := m["delete"].(bool); del {
			spec.Ops = append(spec.Ops, Op{Path: path, Delete: true})
			continue
		}

		content, _ := m["content"].(string)
		diffText, err := ToUnifiedDiffText(path, "", content)
		if err != nil {
			return nil, fmt.Errorf("diffspec: ops[%d]: %w", i, err)
		}
		files, err := ParseUnifiedDiff(diffText)
		if err != nil {
			return nil, fmt.Errorf("diffspec: ops[%d] round-trip failed: %w", i, err)
		}
		rebuilt, err := ApplyHunks("", files[0].Hunks)
		if err != nil {
			return nil, fmt.Errorf("diffspec: ops[%d] round-trip failed: %w", i, err)
		}
		spec.Ops = append(spec.Ops, Op{Path: path, Content: &rebuilt})
	}

	if len(spec.Ops) == 0 {
		return nil, fmt.Errorf("diffspec: ops list produced zero operations")
	}
	return spec, nil
}
