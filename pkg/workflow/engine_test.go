package workflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStep struct {
	out   StepOutput
	err   error
	delay time.Duration
}

func (f *fakeStep) Execute(ctx context.Context, config map[string]interface{}, wfCtx *WorkflowContext) (StepOutput, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return StepOutput{}, ctx.Err()
		}
	}
	return f.out, f.err
}

func newEngineTestRegistry(steps map[string]*fakeStep) *Registry {
	r := NewRegistry()
	for name, s := range steps {
		s := s
		r.Register(name, func(def *StepDefinition) Step { return s })
	}
	return r
}

func TestEngine_RunsStepsInDependencyOrder(t *testing.T) {
	var order []string

	reg := NewRegistry()
	reg.Register("a", func(def *StepDefinition) Step {
		return &recordingStep{name: "a", trace: &order}
	})
	reg.Register("b", func(def *StepDefinition) Step {
		return &recordingStep{name: "b", trace: &order}
	})

	def := &Definition{Name: "wf", Steps: []StepDefinition{
		{Name: "second", Type: "b", DependsOn: []string{"first"}},
		{Name: "first", Type: "a"},
	}}
	wfCtx := NewWorkflowContext("w1", "p1", nil, nil, nil)
	eng := NewEngine(reg, nil)

	res, err := eng.Run(context.Background(), def, wfCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Succeeded {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected first then second, got %v", order)
	}
}

type recordingStep struct {
	name  string
	trace *[]string
}

func (r *recordingStep) Execute(ctx context.Context, config map[string]interface{}, wfCtx *WorkflowContext) (StepOutput, error) {
	*r.trace = append(*r.trace, r.name)
	return StepOutput{}, nil
}

func TestEngine_GatesOutDependentsOfFailedStep(t *testing.T) {
	reg := newEngineTestRegistry(map[string]*fakeStep{
		"fails":   {err: errors.New("boom")},
		"succeed": {out: StepOutput{}},
	})
	def := &Definition{Name: "wf", Steps: []StepDefinition{
		{Name: "a", Type: "fails"},
		{Name: "b", Type: "succeed", DependsOn: []string{"a"}},
	}}
	wfCtx := NewWorkflowContext("w1", "p1", nil, nil, nil)
	eng := NewEngine(reg, nil)

	res, err := eng.Run(context.Background(), def, wfCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Succeeded {
		t.Fatal("expected workflow to be marked failed")
	}
	if res.Steps[0].Status != StepFailed {
		t.Fatalf("expected step a failed, got %v", res.Steps[0].Status)
	}
	if res.Steps[1].Status != StepGatedOut {
		t.Fatalf("expected step b gated-out, got %v", res.Steps[1].Status)
	}
}

func TestEngine_GatesOutFalseCondition(t *testing.T) {
	reg := newEngineTestRegistry(map[string]*fakeStep{
		"noop": {out: StepOutput{}},
	})
	def := &Definition{Name: "wf", Steps: []StepDefinition{
		{Name: "a", Type: "noop", Condition: "1 == 2"},
	}}
	wfCtx := NewWorkflowContext("w1", "p1", nil, nil, nil)
	eng := NewEngine(reg, nil)

	res, err := eng.Run(context.Background(), def, wfCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Steps[0].Status != StepGatedOut {
		t.Fatalf("expected gated-out, got %v", res.Steps[0].Status)
	}
	if !res.Succeeded {
		t.Fatal("a gated-out step does not fail the workflow")
	}
}

func TestEngine_TimesOutSlowStep(t *testing.T) {
	reg := newEngineTestRegistry(map[string]*fakeStep{
		"slow": {delay: 1200 * time.Millisecond},
	})
	def := &Definition{
		Name:  "wf",
		Steps: []StepDefinition{{Name: "a", Type: "slow", Timeout: 1}},
	}

	wfCtx := NewWorkflowContext("w1", "p1", nil, nil, nil)
	eng := NewEngine(reg, nil)

	res, err := eng.Run(context.Background(), def, wfCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Steps[0].Status != StepTimedOut {
		t.Fatalf("expected timed-out, got %v", res.Steps[0].Status)
	}
}

func TestEngine_RecordsOutputsAllowList(t *testing.T) {
	reg := newEngineTestRegistry(map[string]*fakeStep{
		"noop": {out: StepOutput{Data: map[string]interface{}{"keep": "yes", "drop": "no"}}},
	})
	def := &Definition{Name: "wf", Steps: []StepDefinition{
		{Name: "a", Type: "noop", Outputs: []string{"keep"}},
	}}
	wfCtx := NewWorkflowContext("w1", "p1", nil, nil, nil)
	eng := NewEngine(reg, nil)

	if _, err := eng.Run(context.Background(), def, wfCtx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := wfCtx.StepOutputs["a"]
	if _, ok := out.Data["drop"]; ok {
		t.Fatal("expected drop to be excluded by outputs allow-list")
	}
	if out.Data["keep"] != "yes" {
		t.Fatalf("expected keep=yes, got %v", out.Data["keep"])
	}
}

func TestEngine_RunsFailureHandlerOnStepFailure(t *testing.T) {
	var handlerRan bool
	reg := newEngineTestRegistry(map[string]*fakeStep{
		"fails": {err: errors.New("boom")},
	})
	reg.Register("notify", func(def *StepDefinition) Step {
		return &fakeStepFunc{fn: func() { handlerRan = true }}
	})
	def := &Definition{
		Name:          "wf",
		Steps:         []StepDefinition{{Name: "a", Type: "fails"}},
		OnStepFailure: []StepDefinition{{Name: "notify-step", Type: "notify"}},
	}
	wfCtx := NewWorkflowContext("w1", "p1", nil, nil, nil)
	eng := NewEngine(reg, nil)

	if _, err := eng.Run(context.Background(), def, wfCtx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerRan {
		t.Fatal("expected on_step_failure handler to run")
	}
}

type fakeStepFunc struct {
	fn func()
}

func (f *fakeStepFunc) Execute(ctx context.Context, config map[string]interface{}, wfCtx *WorkflowContext) (StepOutput, error) {
	f.fn()
	return StepOutput{}, nil
}

func TestEngine_CyclicDefinitionFailsFast(t *testing.T) {
	reg := newEngineTestRegistry(map[string]*fakeStep{"noop": {}})
	def := &Definition{Name: "wf", Steps: []StepDefinition{
		{Name: "a", Type: "noop", DependsOn: []string{"b"}},
		{Name: "b", Type: "noop", DependsOn: []string{"a"}},
	}}
	wfCtx := NewWorkflowContext("w1", "p1", nil, nil, nil)
	eng := NewEngine(reg, nil)

	if _, err := eng.Run(context.Background(), def, wfCtx); err == nil {
		t.Fatal("expected an error for a cyclic definition")
	}
}
