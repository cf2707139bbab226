package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tombee/taskforge/pkg/httpclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	c, err := New(srv.URL, "test-token", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c, srv
}

func TestGetProject_SendsBearerToken(t *testing.T) {
	var gotAuth string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Project{ID: "p1", Name: "demo"})
	})
	defer srv.Close()

	p, err := c.GetProject(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("got auth header %q", gotAuth)
	}
	if p.ID != "p1" {
		t.Fatalf("got %+v", p)
	}
}

func TestListTasks_ReturnsDecodedTasks(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("project_id") != "p1" {
			t.Errorf("expected project_id=p1, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]Task{{ID: "t1", Status: "open"}})
	})
	defer srv.Close()

	tasks, err := c.ListTasks(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("got %+v", tasks)
	}
}

func TestUpdateTaskStatus_PostsBody(t *testing.T) {
	var gotBody map[string]string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	})
	defer srv.Close()

	if err := c.UpdateTaskStatus(context.Background(), "t1", "in_progress"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody["status"] != "in_progress" {
		t.Fatalf("got body %+v", gotBody)
	}
}

func TestDo_ReturnsErrorOnNon2xx(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	if _, err := c.GetProject(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestStatusBucket_OrdersBlockedFirst(t *testing.T) {
	cases := map[string]int{"blocked": 0, "in_review": 1, "in_progress": 2, "open": 3, "done": 4}
	for status, want := range cases {
		if got := StatusBucket(status); got != want {
			t.Errorf("StatusBucket(%q) = %d, want %d", status, got, want)
		}
	}
}
