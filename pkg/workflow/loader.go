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

package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// testFilePattern matches workflow filenames that are fixtures for the
// loader's own tests rather than real workflow definitions, so a
// directory shared between the loader's tests and a coordinator's
// workflow set never accidentally picks up a test fixture.
var testFilePattern = regexp.MustCompile(`(?i)^test[-_.]`)

// LoadDirectory reads every *.yaml/*.yml file in dir, skipping filenames
// matching testFilePattern, parses each as one Definition, and validates
// it against registry. It returns all definitions keyed by name, or the
// first error encountered (a malformed file or a failed Validate/Sort).
func LoadDirectory(dir string, registry *Registry) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("workflow: read directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if testFilePattern.MatchString(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make(map[string]*Definition, len(names))
	loadedFrom := make(map[string]string, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		def, err := loadFile(path, registry)
		if err != nil {
			return nil, err
		}
		if _, ok := defs[def.Name]; ok {
			return nil, fmt.Errorf("workflow: %s redeclares workflow %q already loaded from another file (%q)", path, def.Name, loadedFrom[def.Name])
		}
		defs[def.Name] = def
		loadedFrom[def.Name] = path
	}

	return defs, nil
}

func loadFile(path string, registry *Registry) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("workflow: parse %s: %w", path, err)
	}

	if err := Validate(&def, registry); err != nil {
		return nil, fmt.Errorf("workflow: %s: %w", path, err)
	}
	if _, err := Sort(&def); err != nil {
		return nil, fmt.Errorf("workflow: %s: %w", path, err)
	}

	return &def, nil
}
