package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScan_CountsFilesAndLanguages(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "main.go", "package main\n")
	writeTestFile(t, root, "lib/util.go", "package lib\n")
	writeTestFile(t, root, "README.md", "# hi\n")
	writeTestFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeTestFile(t, root, "node_modules/pkg/index.js", "module.exports = {}\n")

	snap, err := Scan(root, "deadbeef", "2026-07-30T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.FileCount != 3 {
		t.Fatalf("expected 3 files (ignoring .git and node_modules), got %d: %+v", snap.FileCount, snap.Files)
	}
	if snap.LangCounts["go"] != 2 {
		t.Fatalf("expected 2 go files, got %d", snap.LangCounts["go"])
	}
	if snap.LangCounts["markdown"] != 1 {
		t.Fatalf("expected 1 markdown file, got %d", snap.LangCounts["markdown"])
	}
}

func TestPersistAndLoad_RoundTrips(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "main.go", "package main\n")

	snap, err := Scan(root, "abc123", "2026-07-30T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	paths, err := Persist(root, snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 persisted paths, got %v", paths)
	}

	loaded, err := Load(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded == nil || loaded.Commit != "abc123" {
		t.Fatalf("got %+v", loaded)
	}
}

func TestLoad_ReturnsNilWhenNoSnapshotExists(t *testing.T) {
	root := t.TempDir()
	snap, err := Load(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot, got %+v", snap)
	}
}

func TestSummary_RendersMarkdown(t *testing.T) {
	snap := &Snapshot{Commit: "abc", ScannedAt: "now", FileCount: 2, TotalBytes: 10, LangCounts: map[string]int{"go": 2}}
	out := Summary(snap)
	if !contains(out, "# Repository context snapshot") || !contains(out, "go: 2 files") {
		t.Fatalf("unexpected summary output: %s", out)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
