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

package security

import (
	"os"
	"path/filepath"
	"strings"
)

// expandHomePaths expands a leading "~" in each path to the user's home
// directory and resolves relative paths to absolute ones.
func expandHomePaths(paths []string) []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return paths
	}

	expanded := make([]string, len(paths))
	for i, p := range paths {
		if strings.HasPrefix(p, "~/") {
			expanded[i] = filepath.Join(home, p[2:])
		} else if p == "~" {
			expanded[i] = home
		} else {
			// Also resolve relative paths to absolute
			if abs, err := filepath.Abs(p); err == nil {
				expanded[i] = abs
			} else {
				expanded[i] = p
			}
		}
	}
	return expanded
}

// matchesPath checks if a path matches a pattern.
// Supports wildcards like /**/*.env
func matchesPath(path, pattern string) bool {
	// Expand pattern if it contains ~
	if strings.HasPrefix(pattern, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			pattern = filepath.Join(home, pattern[2:])
		}
	} else if pattern == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			pattern = home
		}
	}

	// Convert pattern to absolute path if needed
	if !filepath.IsAbs(pattern) {
		if abs, err := filepath.Abs(pattern); err == nil {
			pattern = abs
		}
	}

	// Check for wildcard patterns
	if strings.Contains(pattern, "*") {
		matched, err := filepath.Match(pattern, path)
		if err == nil && matched {
			return true
		}

		// Handle /**/ pattern for recursive matching
		if strings.Contains(pattern, "/**/") {
			parts := strings.Split(pattern, "/**/")
			if len(parts) == 2 {
				prefix := parts[0]
				suffix := parts[1]
				if strings.HasPrefix(path, prefix) {
					if suffix == "" {
						return true
					}
					if matched, err := filepath.Match(suffix, filepath.Base(path)); err == nil && matched {
						return true
					}
				}
			}
		}
	}

	// Check if path is within the pattern directory
	rel, err := filepath.Rel(pattern, path)
	if err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel) {
		return true
	}

	return false
}
