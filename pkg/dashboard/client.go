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

// Package dashboard is the bearer-authenticated HTTP client the
// Coordinator uses to fetch project/task state and report task status
// back to the dashboard service.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tombee/taskforge/pkg/httpclient"
)

// Client is a thin REST client over the dashboard's /v1 API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a Client. cfg is validated and wrapped via httpclient.New so
// dashboard requests share the same retry/backoff/logging transport as
// every other outbound call this module makes.
func New(baseURL, token string, cfg httpclient.Config) (*Client, error) {
	hc, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("dashboard: building http client: %w", err)
	}
	return &Client{baseURL: baseURL, token: token, http: hc}, nil
}

// Project is a dashboard project summary.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectDetails extends Project with repository coordinates and any
// per-project milestone data coordinator workflows seed into context.
type ProjectDetails struct {
	Project
	RepoRemote string                 `json:"repo_remote"`
	Milestone  map[string]interface{} `json:"milestone,omitempty"`
}

// Task is one dashboard task record.
type Task struct {
	ID            string   `json:"id"`
	ProjectID     string   `json:"project_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Labels        []string `json:"labels"`
	Status        string   `json:"status"`
	PriorityScore float64  `json:"priority_score"`
	Order         int      `json:"order"`
	Slug          string   `json:"slug,omitempty"`

	// MilestoneID references a project milestone; empty when unset.
	MilestoneID string `json:"milestone_id,omitempty"`

	// BlockedAttemptCount counts prior unblock attempts recorded against
	// this task; 0 until an UnblockAttemptStep has run against it.
	BlockedAttemptCount int `json:"blocked_attempt_count,omitempty"`

	// BlockedDependencies lists task ids that must reach status "done"
	// before a blocked task becomes eligible to unblock.
	BlockedDependencies []string `json:"blocked_dependencies,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("dashboard: encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("dashboard: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dashboard: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("dashboard: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dashboard: decoding response from %s %s: %w", method, path, err)
	}
	return nil
}

// GetProject fetches GET /v1/projects/{id}.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodGet, "/v1/projects/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProjectDetails fetches GET /v1/projects/{id}/details.
func (c *Client) GetProjectDetails(ctx context.Context, id string) (*ProjectDetails, error) {
	var d ProjectDetails
	if err := c.do(ctx, http.MethodGet, "/v1/projects/"+id+"/details", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListTasks fetches GET /v1/tasks?project_id={id}, returning every task
// for the project regardless of status — filtering/sorting by the
// coordinator's selection rules happens downstream, not here, so this
// call always reflects the dashboard's live state.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	var tasks []Task
	path := "/v1/tasks?project_id=" + projectID
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateTaskStatus posts POST /v1/tasks/{id}/status.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/status", body, nil)
}

// CreateTask posts POST /v1/tasks, used by BlockedTaskAnalysisStep to
// file a follow-up task when a blocked task's resolution requires new
// work rather than an unblock.
func (c *Client) CreateTask(ctx context.Context, task Task) (*Task, error) {
	var created Task
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// statusBucket implements the coordinator's tie-break ordering (§4.8):
// blocked=0, in_review=1, in_progress=2, open=3, anything else last.
func statusBucket(status string) int {
	switch status {
	case "blocked":
		return 0
	case "in_review":
		return 1
	case "in_progress":
		return 2
	case "open":
		return 3
	default:
		return 4
	}
}

// StatusBucket exposes statusBucket for callers outside this package
// (the coordinator's sort comparator) without duplicating the table.
func StatusBucket(status string) int { return statusBucket(status) }

// String renders a Task for log lines without leaking its full
// description/labels payload.
func (t Task) String() string {
	return fmt.Sprintf("Task{id=%s status=%s priority=%s}", t.ID, t.Status, strconv.FormatFloat(t.PriorityScore, 'f', -1, 64))
}
