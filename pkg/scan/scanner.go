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

// Package scan builds and persists the repository context artifacts
// (snapshot.json, summary.md) that ContextScanStep and
// checkContextFreshness read and compare against.
package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tombee/taskforge/pkg/security"
)

// artifactDir is repo-relative, per §6's persisted-artifacts layout.
const artifactDir = ".ma/context"

// ignoredDirs are never descended into while scanning.
var ignoredDirs = map[string]bool{
	".git":         true,
	".ma":          true,
	"node_modules": true,
	"vendor":       true,
}

// FileEntry is one scanned file's summary.
type FileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Lang string `json:"lang,omitempty"`
}

// Snapshot is the full repository scan result, serialized to
// .ma/context/snapshot.json.
type Snapshot struct {
	Commit      string            `json:"commit"`
	ScannedAt   string            `json:"scanned_at"`
	FileCount   int               `json:"file_count"`
	TotalBytes  int64             `json:"total_bytes"`
	LangCounts  map[string]int    `json:"lang_counts"`
	Files       []FileEntry       `json:"files"`
}

// Scan walks repoRoot, building a Snapshot. commit is the HEAD SHA the
// snapshot is taken against, supplied by the caller (gitops.Client) so
// this package stays free of a git dependency of its own. scannedAt is
// passed in rather than computed here (time.Now is unavailable to
// workflow-engine callers that need deterministic replay in tests).
func Scan(repoRoot, commit, scannedAt string) (*Snapshot, error) {
	snap := &Snapshot{
		Commit:     commit,
		ScannedAt:  scannedAt,
		LangCounts: make(map[string]int),
	}

	err := filepath.WalkDir(repoRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(repoRoot, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		lang := languageOf(rel)
		snap.Files = append(snap.Files, FileEntry{Path: filepath.ToSlash(rel), Size: info.Size(), Lang: lang})
		snap.FileCount++
		snap.TotalBytes += info.Size()
		if lang != "" {
			snap.LangCounts[lang]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan: walking %s: %w", repoRoot, err)
	}

	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].Path < snap.Files[j].Path })

	return snap, nil
}

func languageOf(path string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx":
		return "javascript"
	case ".py":
		return "python"
	case ".rb":
		return "ruby"
	case ".md":
		return "markdown"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

// Summary renders a short human-readable markdown digest of snap, for
// summary.md.
func Summary(snap *Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Repository context snapshot\n\n")
	fmt.Fprintf(&b, "- Commit: `%s`\n", snap.Commit)
	fmt.Fprintf(&b, "- Scanned at: %s\n", snap.ScannedAt)
	fmt.Fprintf(&b, "- Files: %d (%d bytes)\n\n", snap.FileCount, snap.TotalBytes)

	if len(snap.LangCounts) > 0 {
		b.WriteString("## Languages\n\n")
		langs := make([]string, 0, len(snap.LangCounts))
		for l := range snap.LangCounts {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		for _, l := range langs {
			fmt.Fprintf(&b, "- %s: %d files\n", l, snap.LangCounts[l])
		}
	}
	return b.String()
}

// Persist writes snapshot.json and summary.md under
// {repoRoot}/.ma/context/, returning the repo-relative paths written so
// the caller can stage them for commit.
func Persist(repoRoot string, snap *Snapshot) ([]string, error) {
	dir := filepath.Join(repoRoot, artifactDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("scan: creating artifact directory: %w", err)
	}

	fsConfig := security.DefaultFileSecurityConfig()
	fsConfig.AllowedWritePaths = []string{repoRoot}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("scan: encoding snapshot: %w", err)
	}
	snapshotPath := filepath.Join(dir, "snapshot.json")
	if err := fsConfig.WriteFileAtomic(snapshotPath, data, 0o640); err != nil {
		return nil, fmt.Errorf("scan: writing snapshot.json: %w", err)
	}

	summaryPath := filepath.Join(dir, "summary.md")
	if err := fsConfig.WriteFileAtomic(summaryPath, []byte(Summary(snap)), 0o640); err != nil {
		return nil, fmt.Errorf("scan: writing summary.md: %w", err)
	}

	return []string{
		filepath.ToSlash(filepath.Join(artifactDir, "snapshot.json")),
		filepath.ToSlash(filepath.Join(artifactDir, "summary.md")),
	}, nil
}

// Load reads a previously persisted snapshot, or (nil, nil) if none
// exists yet.
func Load(repoRoot string) (*Snapshot, error) {
	path := filepath.Join(repoRoot, artifactDir, "snapshot.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: reading snapshot.json: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("scan: parsing snapshot.json: %w", err)
	}
	return &snap, nil
}

// DefaultScannedAt formats t in the same RFC3339 form Scan expects,
// exposed so callers provide a consistent timestamp without reaching
// for time.Now() in a code path that tests replay deterministically.
func DefaultScannedAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
