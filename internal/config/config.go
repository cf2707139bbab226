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

// Package config loads coordinator configuration from a YAML file overlaid
// with environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/tombee/taskforge/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds every option the coordinator and workflow engine read at
// startup. Field names match spec-level option names; yaml tags use the
// camelCase option names (requestStream, dashboardBaseUrl, ...).
type Config struct {
	// RequestStream is the stream name used for outgoing persona requests.
	RequestStream string `yaml:"requestStream"`

	// GroupPrefix is prefixed to persona names to build reply consumer
	// group names: "{groupPrefix}:{persona}".
	GroupPrefix string `yaml:"groupPrefix"`

	// DashboardBaseURL is the base URL of the dashboard HTTP API.
	DashboardBaseURL string `yaml:"dashboardBaseUrl"`

	// DashboardAPIKey is the bearer token sent to the dashboard API.
	// May reference an environment variable as ${VAR_NAME}.
	DashboardAPIKey string `yaml:"dashboardApiKey"`

	// RedisAddr is the address of the Redis Streams backend. Empty uses
	// the in-process transport (intended for tests and local runs).
	RedisAddr string `yaml:"redisAddr"`

	// CoordinatorMaxIterations caps how many tasks a single coordinator
	// run will process for one project. Production default 500, tests
	// typically set this much lower.
	CoordinatorMaxIterations int `yaml:"coordinatorMaxIterations"`

	// CoordinatorMaxRevisionAttempts is the default QA-loop iteration cap
	// when a workflow does not declare its own.
	CoordinatorMaxRevisionAttempts int `yaml:"coordinatorMaxRevisionAttempts"`

	// PersonaTimeoutMaxRetries is the default retry budget for a persona
	// request that repeatedly times out.
	PersonaTimeoutMaxRetries int `yaml:"personaTimeoutMaxRetries"`

	// EnablePersonaCompatMode toggles legacy persona reply emissions.
	// Retained only as a configuration flag; the coordinator and engine do
	// not special-case it beyond exposing it to steps that might consult it.
	EnablePersonaCompatMode bool `yaml:"enablePersonaCompatMode"`

	// PersonaTimeouts maps a persona name to its request timeout in
	// seconds, populated from PERSONA_TIMEOUT_<PERSONA> environment
	// variables during Load. Not set directly in YAML.
	PersonaTimeouts map[string]int `yaml:"-"`

	// WorkflowsDir is the directory workflow definitions are loaded from.
	WorkflowsDir string `yaml:"workflowsDir"`
}

// DefaultPersonaTimeoutSeconds is used for any persona without an explicit
// PERSONA_TIMEOUT_<PERSONA> override.
const DefaultPersonaTimeoutSeconds = 120

// Default returns a Config populated with the production defaults named in
// the external interfaces section of the specification.
func Default() *Config {
	return &Config{
		RequestStream:                  "persona:requests",
		GroupPrefix:                    "persona-replies",
		CoordinatorMaxIterations:       500,
		CoordinatorMaxRevisionAttempts: 5,
		PersonaTimeoutMaxRetries:       3,
		PersonaTimeouts:                map[string]int{},
		WorkflowsDir:                   "workflows/definitions",
	}
}

var envRefPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// Load reads a YAML configuration file at path (if path is non-empty and
// the file exists), overlays PERSONA_TIMEOUT_<PERSONA> and top-level
// environment variable overrides, and resolves any ${VAR} value references
// against the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, &errors.ConfigError{Key: path, Reason: "could not read config file", Cause: err}
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &errors.ConfigError{Key: path, Reason: "could not parse config file", Cause: err}
		}
	}

	applyEnvOverrides(cfg)
	resolveEnvReferences(cfg)
	loadPersonaTimeouts(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DASHBOARD_BASE_URL"); v != "" {
		cfg.DashboardBaseURL = v
	}
	if v := os.Getenv("DASHBOARD_API_KEY"); v != "" {
		cfg.DashboardAPIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("COORDINATOR_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CoordinatorMaxIterations = n
		}
	}
}

// resolveEnvReferences expands "${VAR}"-shaped config values against the
// process environment. Unresolvable references are left as-is.
func resolveEnvReferences(cfg *Config) {
	cfg.DashboardAPIKey = resolveEnvRef(cfg.DashboardAPIKey)
	cfg.DashboardBaseURL = resolveEnvRef(cfg.DashboardBaseURL)
}

func resolveEnvRef(v string) string {
	m := envRefPattern.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	if resolved, ok := os.LookupEnv(m[1]); ok {
		return resolved
	}
	return v
}

// loadPersonaTimeouts scans the process environment for
// PERSONA_TIMEOUT_<PERSONA> variables (persona name upper-cased, hyphens
// turned into underscores) and records them in seconds.
func loadPersonaTimeouts(cfg *Config) {
	const prefix = "PERSONA_TIMEOUT_"
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], prefix) {
			continue
		}
		persona := strings.ToLower(strings.TrimPrefix(parts[0], prefix))
		persona = strings.ReplaceAll(persona, "_", "-")
		seconds, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		cfg.PersonaTimeouts[persona] = seconds
	}
}

// PersonaTimeoutSeconds returns the configured timeout for a persona,
// falling back to DefaultPersonaTimeoutSeconds.
func (c *Config) PersonaTimeoutSeconds(persona string) int {
	if s, ok := c.PersonaTimeouts[persona]; ok {
		return s
	}
	return DefaultPersonaTimeoutSeconds
}

// ReplyGroup returns the consumer-group name for a persona's reply stream.
func (c *Config) ReplyGroup(persona string) string {
	return fmt.Sprintf("%s:%s", c.GroupPrefix, persona)
}

// Validate checks the options the coordinator cannot safely run without.
func (c *Config) Validate() error {
	if c.RequestStream == "" {
		return &errors.FatalConfigError{Reason: "requestStream must not be empty"}
	}
	if c.GroupPrefix == "" {
		return &errors.FatalConfigError{Reason: "groupPrefix must not be empty"}
	}
	if c.CoordinatorMaxIterations <= 0 {
		return &errors.FatalConfigError{Reason: "coordinatorMaxIterations must be > 0"}
	}
	return nil
}
