package secrets

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMasker_AddValueAndMask(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		input  string
		want   string
	}{
		{
			name:   "registered bearer token",
			values: []string{"tf-live-8a31bc"},
			input:  "Authorization: Bearer tf-live-8a31bc",
			want:   "Authorization: Bearer ***",
		},
		{
			name:   "multiple occurrences",
			values: []string{"tf-live-8a31bc"},
			input:  "tf-live-8a31bc used twice: tf-live-8a31bc",
			want:   "*** used twice: ***",
		},
		{
			name:   "multiple registered values",
			values: []string{"dash-key-1", "redis-pass-2"},
			input:  "dashboard=dash-key-1 transport=redis-pass-2",
			want:   "dashboard=*** transport=***",
		},
		{
			name:   "no registered values leaves input alone",
			values: nil,
			input:  "nothing secret here",
			want:   "nothing secret here",
		},
		{
			name:   "empty value is ignored",
			values: []string{""},
			input:  "unchanged",
			want:   "unchanged",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMasker()
			for _, v := range tt.values {
				m.AddValue(v)
			}
			if got := m.Mask(tt.input); got != tt.want {
				t.Errorf("Mask(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMasker_SensitiveKey(t *testing.T) {
	m := NewMasker()

	sensitive := []string{
		"token", "api_key", "apiKey", "dashboardApiKey",
		"authorization", "AUTHORIZATION_HEADER", "bearer_token",
		"db_password", "client_secret", "credentials",
	}
	for _, key := range sensitive {
		if !m.SensitiveKey(key) {
			t.Errorf("SensitiveKey(%q) = false, want true", key)
		}
	}

	benign := []string{"task_id", "plan", "iteration", "branch", "repo", "description"}
	for _, key := range benign {
		if m.SensitiveKey(key) {
			t.Errorf("SensitiveKey(%q) = true, want false", key)
		}
	}
}

func TestMasker_MaskPayload(t *testing.T) {
	m := NewMasker()
	m.AddValue("tf-live-8a31bc")

	payload := map[string]interface{}{
		"task_id":   "t-1",
		"api_key":   "sk-abc123",
		"plan":      "call the dashboard with tf-live-8a31bc",
		"iteration": 2,
		"context": map[string]interface{}{
			"bearer_token": "whatever",
			"branch":       "feat/login",
		},
		"previous_attempts": []interface{}{
			map[string]interface{}{"password": "hunter2", "passed": false},
		},
	}

	got := m.MaskPayload(payload)

	if got["api_key"] != "***" {
		t.Errorf("api_key = %v, want masked", got["api_key"])
	}
	if got["plan"] != "call the dashboard with ***" {
		t.Errorf("plan = %v, want registered value masked", got["plan"])
	}
	if got["task_id"] != "t-1" || got["iteration"] != 2 {
		t.Error("benign fields must pass through unchanged")
	}

	nested := got["context"].(map[string]interface{})
	if nested["bearer_token"] != "***" {
		t.Errorf("nested bearer_token = %v, want masked", nested["bearer_token"])
	}
	if nested["branch"] != "feat/login" {
		t.Errorf("nested branch = %v, want unchanged", nested["branch"])
	}

	attempts := got["previous_attempts"].([]interface{})
	attempt := attempts[0].(map[string]interface{})
	if attempt["password"] != "***" {
		t.Errorf("list-nested password = %v, want masked", attempt["password"])
	}
	if attempt["passed"] != false {
		t.Errorf("list-nested passed = %v, want unchanged", attempt["passed"])
	}
}

func TestMasker_MaskPayload_DoesNotMutateInput(t *testing.T) {
	m := NewMasker()
	payload := map[string]interface{}{
		"api_key": "sk-abc123",
		"context": map[string]interface{}{"token": "xyz"},
	}

	m.MaskPayload(payload)

	if payload["api_key"] != "sk-abc123" {
		t.Error("input payload was mutated")
	}
	if payload["context"].(map[string]interface{})["token"] != "xyz" {
		t.Error("nested input map was mutated")
	}
}

func TestMasker_MaskJSON(t *testing.T) {
	m := NewMasker()
	m.AddValue("tf-live-8a31bc")

	masked := m.MaskJSON(`{"status":"pass","api_key":"sk-abc","notes":"used tf-live-8a31bc"}`)

	var got map[string]interface{}
	if err := json.Unmarshal([]byte(masked), &got); err != nil {
		t.Fatalf("MaskJSON returned invalid JSON: %v", err)
	}
	if got["status"] != "pass" {
		t.Errorf("status = %v, want pass", got["status"])
	}
	if got["api_key"] != "***" {
		t.Errorf("api_key = %v, want masked", got["api_key"])
	}
	if got["notes"] != "used ***" {
		t.Errorf("notes = %v, want registered value masked", got["notes"])
	}
}

func TestMasker_MaskJSON_NonJSONFallsBackToValueMasking(t *testing.T) {
	m := NewMasker()
	m.AddValue("tf-live-8a31bc")

	got := m.MaskJSON("plain reply mentioning tf-live-8a31bc")
	if got != "plain reply mentioning ***" {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "tf-live") {
		t.Error("registered value leaked through non-JSON fallback")
	}
}
