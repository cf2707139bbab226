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
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Hunk is one @@ -a,b +c,d @@ block: Lines carries the body, each
// prefixed ' ' (context), '+' (addition) or '-' (removal), matching the
// unified diff format difflib.GetUnifiedDiffString produces.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []string
}

// FileDiff is every hunk for one file, plus its declared old/new paths
// (as they appeared after the a/ b/ prefix strip).
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

var (
	fileHeaderOld = regexp.MustCompile(`^--- (?:a/)?(\S+)`)
	fileHeaderNew = regexp.MustCompile(`^\+\+\+ (?:b/)?(\S+)`)
	hunkHeader    = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
)

// ParseUnifiedDiff splits diffText into one FileDiff per --- / +++ pair.
// Lines outside of a recognized header or hunk are ignored, which lets a
// persona's reply wrap the diff in commentary without confusing the
// parser — callers are expected to have already isolated the fenced code
// block via ExtractFencedDiffs.
func ParseUnifiedDiff(diffText string) ([]FileDiff, error) {
	lines := splitLines(diffText)

	var files []FileDiff
	var cur *FileDiff
	var hunk *Hunk

	flushHunk := func() {
		if hunk != nil && cur != nil {
			cur.Hunks = append(cur.Hunks, *hunk)
			hunk = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			files = append(files, *cur)
			cur = nil
		}
	}

	for _, raw := range lines {
		line := strings.TrimRight(raw, "\n")

		if m := fileHeaderOld.FindStringSubmatch(line); m != nil {
			flushFile()
			cur = &FileDiff{OldPath: m[1]}
			continue
		}
		if m := fileHeaderNew.FindStringSubmatch(line); m != nil && cur != nil {
			cur.NewPath = m[1]
			continue
		}
		if m := hunkHeader.FindStringSubmatch(line); m != nil {
			flushHunk()
			oldStart, _ := strconv.Atoi(m[1])
			oldLines := 1
			if m[2] != "" {
				oldLines, _ = strconv.Atoi(m[2])
			}
			newStart, _ := strconv.Atoi(m[3])
			newLines := 1
			if m[4] != "" {
				newLines, _ = strconv.Atoi(m[4])
			}
			hunk = &Hunk{OldStart: oldStart, OldLines: oldLines, NewStart: newStart, NewLines: newLines}
			continue
		}
		if hunk != nil && cur != nil {
			if line == "" {
				// A blank context line: some generators drop the
				// otherwise-mandatory leading space on an empty line.
				hunk.Lines = append(hunk.Lines, " ")
				continue
			}
			switch line[0] {
			case ' ', '+', '-':
				hunk.Lines = append(hunk.Lines, line)
			case '\\':
				// "\ No newline at end of file" marker: ignored.
			}
		}
	}
	flushFile()

	if len(files) == 0 {
		return nil, fmt.Errorf("diffspec: no recognizable unified diff hunks found")
	}
	return files, nil
}

// ApplyHunks reconstructs a file's full text by walking original's lines
// and splicing in each hunk's additions/removals at its declared
// position. original may be empty for a newly created file.
func ApplyHunks(original string, hunks []Hunk) (string, error) {
	srcLines := splitLines(original)
	var out []string
	srcIdx := 0 // 0-based cursor into srcLines

	for _, h := range hunks {
		target := h.OldStart - 1
		if h.OldStart == 0 {
			target = 0
		}
		if target < srcIdx {
			return "", fmt.Errorf("diffspec: hunk at line %d overlaps previous hunk", h.OldStart)
		}
		for srcIdx < target && srcIdx < len(srcLines) {
			out = append(out, srcLines[srcIdx])
			srcIdx++
		}

		for _, l := range h.Lines {
			switch l[0] {
			case ' ':
				out = append(out, l[1:]+"\n")
				srcIdx++
			case '-':
				srcIdx++
			case '+':
				out = append(out, l[1:]+"\n")
			}
		}
	}

	for srcIdx < len(srcLines) {
		out = append(out, srcLines[srcIdx])
		srcIdx++
	}

	result := strings.Join(out, "")
	return normalizeTrailingNewline(result, original), nil
}

// normalizeTrailingNewline keeps the rebuilt file's trailing-newline
// convention consistent with the original, since ApplyHunks appends a
// synthetic "\n" to every line it joins in. A brand-new file (empty
// original) is returned as built, ending in its last line's "\n".
func normalizeTrailingNewline(result, original string) string {
	if original == "" {
		return result
	}
	if !strings.HasSuffix(original, "\n") {
		return strings.TrimSuffix(result, "\n")
	}
	return result
}

// ToUnifiedDiffText reconstructs unified diff text for a single file from
// pre-parsed Ops, used when a persona reply arrives as {ops: [...]}
// rather than raw diff text — it keeps ParseUnifiedDiff / ApplyHunks as
// the single code path that actually mutates file content.
func ToUnifiedDiffText(path, before, after string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}

// splitLines splits s after each "\n", keeping the separators. Unlike
// difflib.SplitLines it adds no synthetic final line: "a\n" yields
// ["a\n"] and "" yields no lines.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
