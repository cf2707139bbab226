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
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/taskforge/pkg/security"
)

// Options bounds what Apply is willing to touch.
type Options struct {
	RepoRoot          string
	AllowedExtensions []string // glob patterns, e.g. "*.go", "**/*.md"
	MaxFileBytes      int64
	DryRun            bool
}

// Validate checks an EditSpec against Options before any filesystem
// access: at least one op, and every path repo-relative, non-escaping,
// and matching the extension whitelist.
func Validate(spec *EditSpec, opts Options) error {
	if len(spec.Ops) == 0 {
		return fmt.Errorf("diffspec: edit spec has zero operations")
	}
	for _, op := range spec.Ops {
		norm, err := normalizePath(opts.RepoRoot, op.Path)
		if err != nil {
			return err
		}
		if len(opts.AllowedExtensions) > 0 && !matchesAny(opts.AllowedExtensions, norm) {
			return fmt.Errorf("diffspec: path %q does not match any allowed extension pattern", op.Path)
		}
	}
	return nil
}

// normalizePath resolves path relative to repoRoot and rejects anything
// that would escape it (absolute paths, "../" traversal, symlink games
// are the caller's concern via security.FileSecurityConfig).
func normalizePath(repoRoot, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("diffspec: path %q must be repo-relative, not absolute", path)
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("diffspec: path %q escapes the repository root", path)
	}
	return clean, nil
}

func matchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// Apply writes every op in spec under opts.RepoRoot. In dry_run mode it
// computes and records what would change without touching disk. Returns
// an error if any single op fails; ops already applied before the
// failing one are not rolled back (the caller is the commit/push
// pipeline, which simply never commits a partially-written tree).
func Apply(spec *EditSpec, opts Options) (*ApplyResult, error) {
	if err := Validate(spec, opts); err != nil {
		return nil, err
	}

	result := &ApplyResult{DryRun: opts.DryRun}

	fsConfig := security.DefaultFileSecurityConfig()
	fsConfig.AllowedWritePaths = []string{opts.RepoRoot}
	fsConfig.AllowedReadPaths = []string{opts.RepoRoot}
	if opts.MaxFileBytes > 0 {
		fsConfig.MaxFileSize = opts.MaxFileBytes
	}

	for _, op := range spec.Ops {
		norm, err := normalizePath(opts.RepoRoot, op.Path)
		if err != nil {
			return nil, err
		}
		fullPath := filepath.Join(opts.RepoRoot, norm)

		if op.Delete {
			if !opts.DryRun {
				if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
					return nil, fmt.Errorf("diffspec: deleting %s: %w", norm, err)
				}
			}
			result.ChangedFiles = append(result.ChangedFiles, AppliedFile{Path: norm, Deleted: true})
			continue
		}

		final, err := resolveFinalContent(fullPath, op)
		if err != nil {
			return nil, fmt.Errorf("diffspec: %s: %w", norm, err)
		}

		if opts.MaxFileBytes > 0 && int64(len(final)) > opts.MaxFileBytes {
			return nil, fmt.Errorf("diffspec: %s exceeds max file size (%d > %d bytes)", norm, len(final), opts.MaxFileBytes)
		}

		if !opts.DryRun {
			fileMode, dirMode := security.DeterminePermissions(fullPath)
			if err := os.MkdirAll(filepath.Dir(fullPath), dirMode); err != nil {
				return nil, fmt.Errorf("diffspec: creating directory for %s: %w", norm, err)
			}
			if err := fsConfig.WriteFileAtomic(fullPath, []byte(final), fileMode); err != nil {
				return nil, fmt.Errorf("diffspec: writing %s: %w", norm, err)
			}
		}

		result.ChangedFiles = append(result.ChangedFiles, AppliedFile{Path: norm, Bytes: len(final)})
	}

	return result, nil
}

func resolveFinalContent(fullPath string, op Op) (string, error) {
	if op.Content != nil {
		return *op.Content, nil
	}

	original := ""
	if data, err := os.ReadFile(fullPath); err == nil {
		original = string(data)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading current contents: %w", err)
	}

	return ApplyHunks(original, op.Hunks)
}
