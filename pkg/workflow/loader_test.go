package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleWorkflowYAML = `
name: project-loop
trigger: task_type == "feature"
steps:
  - name: scan
    type: noop
  - name: plan
    type: noop
    depends_on: ["scan"]
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDirectory_LoadsValidWorkflows(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "project-loop.yaml", sampleWorkflowYAML)

	defs, err := LoadDirectory(dir, testRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := defs["project-loop"]; !ok {
		t.Fatalf("expected project-loop to be loaded, got %v", defs)
	}
}

func TestLoadDirectory_SkipsTestFixtureFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "project-loop.yaml", sampleWorkflowYAML)
	writeFile(t, dir, "test-fixture.yaml", "name: should-be-skipped\nsteps: []\n")
	writeFile(t, dir, "TEST_other.yml", "name: also-skipped\nsteps: []\n")

	defs, err := LoadDirectory(dir, testRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected only project-loop loaded, got %v", defs)
	}
}

func TestLoadDirectory_IgnoresNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "project-loop.yaml", sampleWorkflowYAML)
	writeFile(t, dir, "README.md", "# not a workflow")

	defs, err := LoadDirectory(dir, testRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected only project-loop loaded, got %v", defs)
	}
}

func TestLoadDirectory_RejectsInvalidWorkflow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nsteps:\n  - name: a\n    type: mystery\n")

	if _, err := LoadDirectory(dir, testRegistry()); err == nil {
		t.Fatal("expected an error for unknown step type")
	}
}

func TestLoadDirectory_RejectsCyclicWorkflow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cyclic.yaml", "name: cyclic\nsteps:\n  - name: a\n    type: noop\n    depends_on: [\"b\"]\n  - name: b\n    type: noop\n    depends_on: [\"a\"]\n")

	if _, err := LoadDirectory(dir, testRegistry()); err == nil {
		t.Fatal("expected an error for cyclic dependency")
	}
}

func TestLoadDirectory_RejectsDuplicateWorkflowName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "name: dup\nsteps:\n  - name: a\n    type: noop\n")
	writeFile(t, dir, "b.yaml", "name: dup\nsteps:\n  - name: a\n    type: noop\n")

	if _, err := LoadDirectory(dir, testRegistry()); err == nil {
		t.Fatal("expected an error for duplicate workflow name")
	}
}
