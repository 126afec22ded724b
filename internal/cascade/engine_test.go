package cascade

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cascade/internal/errors"
	"cascade/internal/execution"
	"cascade/internal/history"
	"cascade/internal/planner"
	"cascade/internal/regen"
	"cascade/internal/scan"
	"cascade/internal/slogutil"
	"cascade/internal/weakness"
)

func sampleManifest() *scan.Manifest {
	return &scan.Manifest{Artifacts: []scan.ArtifactEntry{
		{ID: "core.go", Signals: []scan.SignalEntry{{
			Type:     "lint_errors",
			Severity: 0.5,
			Evidence: map[string]interface{}{"error_count": 3},
		}}},
		{ID: "a.go", Imports: []string{"core.go"}},
		{ID: "b.go", Imports: []string{"core.go"}},
		{ID: "c.go", Imports: []string{"a.go"}},
	}}
}

func newEngine(t *testing.T, store *history.Store) (*Engine, *regen.Static) {
	t.Helper()
	static := regen.NewStatic()
	e := New(Options{
		Regenerator: static,
		History:     store,
		Logger:      slogutil.NewDiscardLogger(),
	})
	if _, err := e.Apply(sampleManifest()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return e, static
}

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(t.TempDir(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runToCompletion(t *testing.T, e *Engine, id string) *execution.State {
	t.Helper()
	for {
		if _, err := e.ExecuteWave(context.Background(), id); err != nil {
			t.Fatalf("ExecuteWave() error = %v", err)
		}
		st, err := e.Approve(id)
		if err != nil {
			t.Fatalf("Approve() error = %v", err)
		}
		if st.Terminal() {
			return st
		}
	}
}

func TestEngine_PlanAndRun(t *testing.T) {
	e, static := newEngine(t, openStore(t))

	top := e.TopWeaknesses(10)
	if len(top) != 1 || top[0].ArtifactID != "core.go" {
		t.Fatalf("TopWeaknesses() = %+v, want core.go only", top)
	}

	report, err := e.PlanCascade("core.go")
	if err != nil {
		t.Fatalf("PlanCascade() error = %v", err)
	}
	want := [][]string{{"core.go"}, {"a.go", "b.go"}, {"c.go"}}
	if diff := cmp.Diff(want, report.Waves); diff != "" {
		t.Errorf("Waves mismatch (-want +got):\n%s", diff)
	}
	if got, err := e.Report(report.ID); err != nil || got != report {
		t.Errorf("Report(%s) = %v, %v", report.ID, got, err)
	}

	st, err := e.StartExecutionByID(report.ID)
	if err != nil {
		t.Fatalf("StartExecutionByID() error = %v", err)
	}
	if len(st.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", st.Warnings)
	}
	if got := e.ActiveExecutions(); len(got) != 1 || got[0] != st.ID {
		t.Errorf("ActiveExecutions() = %v", got)
	}

	final := runToCompletion(t, e, st.ID)
	if !final.Completed || final.OverallConfidence != 1 {
		t.Errorf("final = completed %v confidence %v", final.Completed, final.OverallConfidence)
	}
	if got := len(static.Tasks()); got != 4 {
		t.Errorf("regenerated %d tasks, want 4", got)
	}
	if got := e.ActiveExecutions(); len(got) != 0 {
		t.Errorf("ActiveExecutions() after completion = %v", got)
	}

	records, err := e.History(history.ListOptions{})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 1 || records[0].ExecutionID != st.ID || records[0].Outcome != "completed" {
		t.Errorf("History() = %+v", records)
	}
}

func TestEngine_ReportNotFound(t *testing.T) {
	e, _ := newEngine(t, nil)
	if _, err := e.StartExecutionByID("nope"); !errors.HasCode(err, errors.ReportNotFound) {
		t.Errorf("StartExecutionByID() error = %v, want %s", err, errors.ReportNotFound)
	}
	if _, err := e.ExecuteWave(context.Background(), "nope"); !errors.HasCode(err, errors.ExecutionNotFound) {
		t.Errorf("ExecuteWave() error = %v, want %s", err, errors.ExecutionNotFound)
	}
	if _, err := e.ExecutionState("nope"); !errors.HasCode(err, errors.ExecutionNotFound) {
		t.Errorf("ExecutionState() error = %v, want %s", err, errors.ExecutionNotFound)
	}
}

func TestEngine_Reentrant(t *testing.T) {
	e, _ := newEngine(t, nil)
	report, err := e.PlanCascade("core.go")
	if err != nil {
		t.Fatal(err)
	}
	first, err := e.StartExecution(report)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.StartExecution(report); !errors.HasCode(err, errors.ReentrantExecution) {
		t.Fatalf("second StartExecution() error = %v, want %s", err, errors.ReentrantExecution)
	}

	// A finished execution releases the report.
	if _, err := e.Abort(first.ID, "changed my mind"); err != nil {
		t.Fatal(err)
	}
	second, err := e.StartExecution(report)
	if err != nil {
		t.Fatalf("StartExecution() after abort error = %v", err)
	}
	if second.ID == first.ID {
		t.Error("restarted execution reused the old id")
	}
}

func TestEngine_StaleReport(t *testing.T) {
	e, _ := newEngine(t, nil)
	report, err := e.PlanCascade("core.go")
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Apply(&scan.Manifest{Artifacts: []scan.ArtifactEntry{
		{ID: "d.go", Imports: []string{"core.go"}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	st, err := e.StartExecution(report)
	if err != nil {
		t.Fatalf("StartExecution() error = %v", err)
	}
	if len(st.Warnings) != 1 || !strings.Contains(st.Warnings[0], string(errors.PlanningStale)) {
		t.Errorf("Warnings = %v, want one %s warning", st.Warnings, errors.PlanningStale)
	}
	// The report is executed as planned.
	if diff := cmp.Diff(report.Waves, st.Report.Waves); diff != "" {
		t.Errorf("executed waves changed (-planned +executing):\n%s", diff)
	}
}

func TestEngine_FinishedExecutions(t *testing.T) {
	store := openStore(t)
	e, _ := newEngine(t, store)
	report, err := e.PlanCascade("core.go")
	if err != nil {
		t.Fatal(err)
	}
	st, err := e.StartExecution(report)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Abort(st.ID, "operator stop"); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Approve(st.ID); !errors.HasCode(err, errors.InvalidTransition) {
		t.Errorf("Approve() after abort error = %v, want %s", err, errors.InvalidTransition)
	}
	if _, err := e.Abort(st.ID, "again"); !errors.HasCode(err, errors.InvalidTransition) {
		t.Errorf("Abort() after abort error = %v, want %s", err, errors.InvalidTransition)
	}

	got, err := e.ExecutionState(st.ID)
	if err != nil {
		t.Fatalf("ExecutionState() error = %v", err)
	}
	if !got.Aborted || got.AbortReason != "operator stop" {
		t.Errorf("state = aborted %v reason %q", got.Aborted, got.AbortReason)
	}

	// A fresh engine over the same store still finds it.
	fresh := New(Options{Regenerator: regen.NewStatic(), History: store, Logger: slogutil.NewDiscardLogger()})
	persisted, err := fresh.ExecutionState(st.ID)
	if err != nil {
		t.Fatalf("ExecutionState() from store error = %v", err)
	}
	if persisted.Phase != execution.PhaseAborted {
		t.Errorf("persisted Phase = %s, want %s", persisted.Phase, execution.PhaseAborted)
	}
}

func TestEngine_NoRegenerator(t *testing.T) {
	e := New(Options{Logger: slogutil.NewDiscardLogger()})
	if _, err := e.Apply(sampleManifest()); err != nil {
		t.Fatal(err)
	}
	report, err := e.PlanCascade("core.go")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.StartExecution(report); !errors.HasCode(err, errors.InvalidArgument) {
		t.Errorf("StartExecution() error = %v, want %s", err, errors.InvalidArgument)
	}
}

func TestEngine_RiskFollowsLaterManifests(t *testing.T) {
	e, _ := newEngine(t, nil)

	var importers []scan.ArtifactEntry
	for i := 0; i < 12; i++ {
		importers = append(importers, scan.ArtifactEntry{
			ID:      fmt.Sprintf("user%02d.go", i),
			Imports: []string{"core.go"},
		})
	}
	if _, err := e.Apply(&scan.Manifest{Artifacts: importers}); err != nil {
		t.Fatal(err)
	}

	top := e.TopWeaknesses(1)
	if len(top) != 1 || top[0].FanOut != 14 || top[0].CascadeRisk != weakness.RiskCritical {
		t.Fatalf("TopWeaknesses() = %+v, want core.go with fan-out 14 and critical", top)
	}
	report, err := e.PlanCascade("core.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.DirectDependents) != 14 {
		t.Errorf("DirectDependents = %d, want 14", len(report.DirectDependents))
	}
	if report.CascadeRisk != weakness.RiskCritical {
		t.Errorf("CascadeRisk = %s, want critical", report.CascadeRisk)
	}
}

func TestEngine_RejectsReportWithoutID(t *testing.T) {
	e, _ := newEngine(t, nil)
	report := &planner.Report{SeedID: "core.go", Waves: [][]string{{"core.go"}}}
	if _, err := e.StartExecution(report); !errors.HasCode(err, errors.InvalidArgument) {
		t.Fatalf("StartExecution() error = %v, want %s", err, errors.InvalidArgument)
	}
	if got := e.ActiveExecutions(); len(got) != 0 {
		t.Errorf("ActiveExecutions() = %v, want none", got)
	}
}

func newBoundedEngine(t *testing.T, store *history.Store, max int) *Engine {
	t.Helper()
	e := New(Options{
		Regenerator: regen.NewStatic(),
		History:     store,
		MaxRetained: max,
		Logger:      slogutil.NewDiscardLogger(),
	})
	if _, err := e.Apply(sampleManifest()); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEngine_ReportsAreBounded(t *testing.T) {
	e := newBoundedEngine(t, nil, 2)

	plan := func() *planner.Report {
		t.Helper()
		r, err := e.PlanCascade("core.go")
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
	r1, r2, r3 := plan(), plan(), plan()
	if _, err := e.Report(r1.ID); !errors.HasCode(err, errors.ReportNotFound) {
		t.Errorf("oldest report error = %v, want %s", err, errors.ReportNotFound)
	}

	// A report with a live execution is never dropped.
	if _, err := e.StartExecution(r2); err != nil {
		t.Fatal(err)
	}
	r4 := plan()
	for _, id := range []string{r2.ID, r4.ID} {
		if _, err := e.Report(id); err != nil {
			t.Errorf("Report(%s) error = %v", id, err)
		}
	}
	if _, err := e.Report(r3.ID); !errors.HasCode(err, errors.ReportNotFound) {
		t.Errorf("idle report error = %v, want %s", err, errors.ReportNotFound)
	}
}

func TestEngine_FinishedStatesAreBounded(t *testing.T) {
	e := newBoundedEngine(t, nil, 2)

	var ids []string
	for i := 0; i < 3; i++ {
		r, err := e.PlanCascade("core.go")
		if err != nil {
			t.Fatal(err)
		}
		st, err := e.StartExecution(r)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Abort(st.ID, "done"); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, st.ID)
	}

	if _, err := e.ExecutionState(ids[0]); !errors.HasCode(err, errors.ExecutionNotFound) {
		t.Errorf("oldest finished state error = %v, want %s", err, errors.ExecutionNotFound)
	}
	if _, err := e.ExecutionState(ids[2]); err != nil {
		t.Errorf("newest finished state error = %v", err)
	}
}

func TestEngine_SavedStatesLeaveMemory(t *testing.T) {
	e := newBoundedEngine(t, openStore(t), 2)
	r, err := e.PlanCascade("core.go")
	if err != nil {
		t.Fatal(err)
	}
	st, err := e.StartExecution(r)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Abort(st.ID, "done"); err != nil {
		t.Fatal(err)
	}

	e.mu.Lock()
	held := len(e.finished)
	e.mu.Unlock()
	if held != 0 {
		t.Errorf("finished states in memory = %d, want 0 once saved", held)
	}
	if _, err := e.Approve(st.ID); !errors.HasCode(err, errors.InvalidTransition) {
		t.Errorf("Approve() after abort error = %v, want %s", err, errors.InvalidTransition)
	}
}

func TestEngine_ReloadWithoutChangesIsNotStale(t *testing.T) {
	e, _ := newEngine(t, nil)
	report, err := e.PlanCascade("core.go")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Apply(sampleManifest()); err != nil {
		t.Fatal(err)
	}

	st, err := e.StartExecution(report)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none after an identical reload", st.Warnings)
	}
}
