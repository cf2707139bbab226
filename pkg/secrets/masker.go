// Package secrets keeps credential material out of persona payloads,
// iteration history, and log output. The coordinator handles two kinds of
// sensitive data: configured credential values it knows outright (the
// dashboard bearer token, anything a config ${VAR} resolved), and
// credential-shaped fields inside free-form persona payloads whose values
// it cannot know in advance. Masker covers both: registered values are
// replaced wherever they appear, and map entries under a sensitive key
// are masked wholesale regardless of value.
package secrets

import (
	"encoding/json"
	"strings"
)

// mask is what every hidden value is replaced with.
const mask = "***"

// sensitiveKeyFragments are matched case-insensitively as substrings of
// map keys, so they catch api_key, apiKey, dashboardApiKey,
// authorization_header, and similar spellings without enumerating each.
var sensitiveKeyFragments = []string{
	"token",
	"secret",
	"password",
	"apikey",
	"api_key",
	"authorization",
	"credential",
	"bearer",
}

// Masker masks registered credential values and sensitive-keyed payload
// fields. The zero value is not usable; construct with NewMasker.
type Masker struct {
	keyFragments []string
	values       map[string]bool
}

// NewMasker returns a Masker with the default sensitive-key fragments and
// no registered values.
func NewMasker() *Masker {
	return &Masker{
		keyFragments: sensitiveKeyFragments,
		values:       make(map[string]bool),
	}
}

// AddValue registers a credential value to be masked wherever it appears.
// Empty values are ignored so callers can pass optional config fields
// unconditionally.
func (m *Masker) AddValue(value string) {
	if value != "" {
		m.values[value] = true
	}
}

// SensitiveKey reports whether a payload key names credential material.
func (m *Masker) SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range m.keyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Mask replaces every registered value in s.
func (m *Masker) Mask(s string) string {
	result := s
	for value := range m.values {
		if strings.Contains(result, value) {
			result = strings.ReplaceAll(result, value, mask)
		}
	}
	return result
}

// MaskPayload returns a copy of a persona payload (or any nested map)
// safe to log or record in iteration history: entries under a sensitive
// key are masked wholesale, and registered values are replaced inside
// every remaining string. The input is never mutated — payloads are
// still live request data when they get logged.
func (m *Masker) MaskPayload(payload map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if m.SensitiveKey(k) {
			result[k] = mask
			continue
		}
		result[k] = m.maskValue(v)
	}
	return result
}

func (m *Masker) maskValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return m.Mask(val)
	case map[string]interface{}:
		return m.MaskPayload(val)
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = m.maskValue(item)
		}
		return result
	default:
		return val
	}
}

// MaskJSON masks a persona reply's result string, which is typically
// JSON: parsed payloads get the full key-aware treatment, anything that
// fails to parse falls back to registered-value replacement on the raw
// string.
func (m *Masker) MaskJSON(result string) string {
	var data interface{}
	if err := json.Unmarshal([]byte(result), &data); err != nil {
		return m.Mask(result)
	}

	masked := m.maskValue(data)
	out, err := json.Marshal(masked)
	if err != nil {
		return m.Mask(result)
	}
	return string(out)
}
