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

package steps

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/taskforge/pkg/workflow"
)

// setupGitRepo creates a bare "origin" and a working clone with one file
// committed on main, returning the working clone's root.
func setupGitRepo(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	bare := filepath.Join(base, "origin.git")
	work := filepath.Join(base, "work")

	run := func(dir string, args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	require.NoError(t, os.MkdirAll(bare, 0o755))
	run(bare, "init", "--bare", "-b", "main")
	run(base, "clone", bare, work)
	require.NoError(t, os.WriteFile(filepath.Join(work, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	run(work, "add", "main.go")
	run(work, "commit", "-m", "initial commit")
	run(work, "push", "origin", "main")

	return work
}

const qaFixDiff = "```diff\n" +
	"--- a/main.go\n" +
	"+++ b/main.go\n" +
	"@@ -1,3 +1,4 @@\n" +
	" package main\n" +
	"\n" +
	"+// fixed per QA feedback\n" +
	" func main() {}\n" +
	"```\n"

func TestQAIterationLoopStep_PassesOnFirstRetest(t *testing.T) {
	deps, tr := newTestDeps(t)
	repoRoot := setupGitRepo(t)

	wfCtx := newTestWorkflowContext(tr)
	wfCtx.RepoRemote = "git@example.com:org/repo.git"
	wfCtx.RepoRoot = repoRoot
	wfCtx.Branch = "main"

	fakePersonaWorker(t, tr, "planner", func(n int) string { return `{"fix_plan":"add a comment"}` })
	fakePersonaWorker(t, tr, "lead-engineer", func(n int) string { return qaFixDiff })
	fakePersonaWorker(t, tr, "tester-qa", func(n int) string { return `{"status":"pass"}` })

	step := NewQAIterationLoopStep(deps)(&workflow.StepDefinition{Name: "qa-loop"})
	out, err := step.Execute(context.Background(), map[string]interface{}{
		"plannerPersona":      "planner",
		"leadEngineerPersona": "lead-engineer",
		"qaPersona":           "tester-qa",
		"maxIterations":       3,
	}, wfCtx)

	require.NoError(t, err)
	require.Equal(t, "pass", out.Data["qa_request_status"])
	require.Equal(t, 1, out.Data["qa_iteration_count"])
}

func TestQAIterationLoopStep_ExhaustsIterationsAndReportsHistory(t *testing.T) {
	deps, tr := newTestDeps(t)
	repoRoot := setupGitRepo(t)

	wfCtx := newTestWorkflowContext(tr)
	wfCtx.RepoRemote = "git@example.com:org/repo.git"
	wfCtx.RepoRoot = repoRoot
	wfCtx.Branch = "main"

	fakePersonaWorker(t, tr, "planner", func(n int) string { return `{"fix_plan":"try again"}` })
	fakePersonaWorker(t, tr, "lead-engineer", func(n int) string {
		return "```diff\n--- a/main.go\n+++ b/main.go\n@@ -1,3 +1,4 @@\n package main\n\n+// attempt\n func main() {}\n```\n"
	})
	fakePersonaWorker(t, tr, "tester-qa", func(n int) string { return `{"status":"fail"}` })

	step := NewQAIterationLoopStep(deps)(&workflow.StepDefinition{Name: "qa-loop"})
	_, err := step.Execute(context.Background(), map[string]interface{}{
		"plannerPersona":      "planner",
		"leadEngineerPersona": "lead-engineer",
		"qaPersona":           "tester-qa",
		"maxIterations":       1,
	}, wfCtx)

	require.Error(t, err)
}
