package workflow

import "testing"

func newTestContext() *WorkflowContext {
	ctx := NewWorkflowContext("wf-1", "proj-1", map[string]interface{}{"x": "v"}, nil, nil)
	ctx.RepoRoot = "/repo"
	ctx.Branch = "feat/thing"
	ctx.SetOutput("plan", StepOutput{Data: map[string]interface{}{"status": "pass"}})
	return ctx
}

func TestResolvePlaceholders_ReservedNames(t *testing.T) {
	ctx := newTestContext()
	got, unresolved := ResolvePlaceholders("${repoRoot}/${branch}", ctx)
	if got != "/repo/feat/thing" {
		t.Errorf("got %q", got)
	}
	if len(unresolved) != 0 {
		t.Errorf("expected no unresolved, got %v", unresolved)
	}
}

func TestResolvePlaceholders_VariableRoundTrip(t *testing.T) {
	ctx := newTestContext()
	got, _ := ResolvePlaceholders("${x}", ctx)
	if got != "v" {
		t.Errorf("got %q, want v", got)
	}
}

func TestResolvePlaceholders_DottedVariablePath(t *testing.T) {
	ctx := newTestContext()
	ctx.Variables["task"] = map[string]interface{}{"id": "t-42"}
	got, _ := ResolvePlaceholders("${task.id}", ctx)
	if got != "t-42" {
		t.Errorf("got %q, want t-42", got)
	}
}

func TestResolvePlaceholders_DottedVariableWinsOverStepOutput(t *testing.T) {
	ctx := newTestContext()
	ctx.Variables["plan"] = map[string]interface{}{"status": "from-variable"}
	got, _ := ResolvePlaceholders("${plan.status}", ctx)
	if got != "from-variable" {
		t.Errorf("got %q, want from-variable", got)
	}
}

func TestResolvePlaceholders_DottedStepOutputPath(t *testing.T) {
	ctx := newTestContext()
	got, _ := ResolvePlaceholders("${plan.status}", ctx)
	if got != "pass" {
		t.Errorf("got %q, want pass", got)
	}
}

func TestResolvePlaceholders_UnresolvedRoundTripsLiteral(t *testing.T) {
	ctx := newTestContext()
	got, unresolved := ResolvePlaceholders("${nope}", ctx)
	if got != "${nope}" {
		t.Errorf("got %q, want literal round-trip", got)
	}
	if len(unresolved) != 1 || unresolved[0] != "nope" {
		t.Errorf("expected unresolved=[nope], got %v", unresolved)
	}
}

func TestResolveConfigPlaceholders_Nested(t *testing.T) {
	ctx := newTestContext()
	cfg := map[string]interface{}{
		"nested": map[string]interface{}{
			"path": "${repoRoot}/file.go",
		},
		"list": []interface{}{"${branch}"},
	}
	resolved := ResolveConfigPlaceholders(cfg, ctx)
	nested := resolved["nested"].(map[string]interface{})
	if nested["path"] != "/repo/file.go" {
		t.Errorf("got %v", nested["path"])
	}
	list := resolved["list"].([]interface{})
	if list[0] != "feat/thing" {
		t.Errorf("got %v", list[0])
	}
}
