package planner

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cascade/internal/weakness"
)

func TestReport_Tasks(t *testing.T) {
	r := &Report{
		SeedID: "core.go",
		Waves:  [][]string{{"core.go"}, {"a.go", "b.go"}, {"c.go"}},
		Weakness: &weakness.Score{
			ArtifactID: "core.go",
			Signals: []weakness.Signal{
				{Type: weakness.LowCoverage, Severity: 0.3},
				{Type: weakness.LintErrors, Severity: 0.2},
			},
		},
	}

	tasks := r.Tasks()
	if len(tasks) != 5 {
		t.Fatalf("len(tasks) = %d, want 5", len(tasks))
	}

	seed := tasks[0]
	if seed.Mode != ModeRegenerate || seed.Wave != 0 || len(seed.DependsOn) != 0 {
		t.Errorf("seed task = %+v", seed)
	}
	if !strings.Contains(seed.Description, "low_coverage, lint_errors") {
		t.Errorf("seed description = %q", seed.Description)
	}
	if len(seed.Signals) != 2 {
		t.Errorf("seed task should carry the weakness signals")
	}

	c := tasks[3]
	if c.ID != "cascade-c.go" || c.Mode != ModeModify || c.Wave != 2 {
		t.Errorf("c task = %+v", c)
	}
	if diff := cmp.Diff([]string{"cascade-a.go", "cascade-b.go"}, c.DependsOn); diff != "" {
		t.Errorf("c DependsOn mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(c.Description, "compatible with regenerated core.go") {
		t.Errorf("c description = %q", c.Description)
	}

	verify := tasks[4]
	if verify.ID != VerifyTaskID || verify.Mode != ModeVerify {
		t.Errorf("verify task = %+v", verify)
	}
	if diff := cmp.Diff([]string{"cascade-c.go"}, verify.DependsOn); diff != "" {
		t.Errorf("verify DependsOn mismatch (-want +got):\n%s", diff)
	}
}

func TestReport_TaskUnknown(t *testing.T) {
	r := &Report{SeedID: "s", Waves: [][]string{{"s"}}}
	if _, ok := r.Task("other"); ok {
		t.Error("Task() should fail for a non-member")
	}
	if task, ok := r.Task("s"); !ok || !strings.Contains(task.Description, "no recorded weaknesses") {
		t.Errorf("Task(s) = %+v, %v", task, ok)
	}
}

func TestReport_WaveOf(t *testing.T) {
	r := &Report{Waves: [][]string{{"s"}, {"a", "b"}}}
	tests := map[string]int{"s": 0, "a": 1, "b": 1, "z": -1}
	for id, want := range tests {
		if got := r.WaveOf(id); got != want {
			t.Errorf("WaveOf(%s) = %d, want %d", id, got, want)
		}
	}
}
