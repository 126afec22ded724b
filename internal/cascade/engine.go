// Package cascade is the scheduler's operation surface: it plans cascades
// for weak artifacts and drives their executions.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"cascade/internal/confidence"
	"cascade/internal/errors"
	"cascade/internal/execution"
	"cascade/internal/graph"
	"cascade/internal/history"
	"cascade/internal/planner"
	"cascade/internal/scan"
	"cascade/internal/slogutil"
	"cascade/internal/weakness"
)

// DefaultMaxRetained bounds planned reports and in-memory finished states.
const DefaultMaxRetained = 256

// Options configures an Engine.
type Options struct {
	Regenerator execution.Regenerator

	// History is optional; without it finished executions are kept in memory.
	History     *history.Store
	MaxParallel int

	// MaxRetained caps planned reports and finished states held in memory;
	// the oldest are dropped first. Zero means DefaultMaxRetained.
	MaxRetained int
	Ignore      *scan.Ignore
	Logger      *slog.Logger
}

// Engine owns the shared graph and index plus every planned report and
// live execution.
type Engine struct {
	graph   *graph.Graph
	index   *weakness.Index
	planner *planner.Planner
	opts    Options
	logger  *slog.Logger

	mu             sync.Mutex
	reports        map[string]*planner.Report
	reportOrder    []string
	active         map[string]*execution.Execution
	activeByReport map[string]string

	// finished holds terminal states that could not be handed to History.
	finished      map[string]*execution.State
	finishedOrder []string
}

// New creates an engine over an empty graph and index.
func New(opts Options) *Engine {
	g := graph.New()
	logger := slogutil.OrDiscard(opts.Logger)
	if opts.MaxRetained <= 0 {
		opts.MaxRetained = DefaultMaxRetained
	}
	idx := weakness.NewIndex(g, logger)
	return &Engine{
		graph:          g,
		index:          idx,
		planner:        planner.New(g, idx, logger),
		opts:           opts,
		logger:         logger,
		reports:        make(map[string]*planner.Report),
		active:         make(map[string]*execution.Execution),
		activeByReport: make(map[string]string),
		finished:       make(map[string]*execution.State),
	}
}

// Graph returns the dependency graph.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Index returns the weakness index.
func (e *Engine) Index() *weakness.Index { return e.index }

// Apply feeds a scan manifest into the graph and index.
func (e *Engine) Apply(m *scan.Manifest) (*scan.Result, error) {
	a := &scan.Applier{Graph: e.graph, Index: e.index, Ignore: e.opts.Ignore, Logger: e.logger}
	return a.Apply(m)
}

// ApplyGraph feeds import edges only, leaving weakness scores untouched.
func (e *Engine) ApplyGraph(m *scan.Manifest) (*scan.Result, error) {
	a := &scan.Applier{Graph: e.graph, Ignore: e.opts.Ignore, Logger: e.logger}
	return a.Apply(m)
}

// TopWeaknesses returns the weakest artifacts first.
func (e *Engine) TopWeaknesses(limit int) []*weakness.Score {
	return e.index.TopWeaknesses(limit)
}

// PlanCascade plans the cascade for seedID and keeps the report for later
// execution.
func (e *Engine) PlanCascade(seedID string) (*planner.Report, error) {
	report, err := e.planner.Plan(seedID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.rememberReport(report)
	e.mu.Unlock()
	return report, nil
}

// Report returns a planned report. Old reports without a live execution are
// dropped once more than MaxRetained are held.
func (e *Engine) Report(id string) (*planner.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.reports[id]
	if !ok {
		return nil, errors.Newf(errors.ReportNotFound, "report %s not found", id)
	}
	return r, nil
}

// StartExecutionByID starts executing a previously planned report.
func (e *Engine) StartExecutionByID(reportID string) (*execution.State, error) {
	report, err := e.Report(reportID)
	if err != nil {
		return nil, err
	}
	return e.StartExecution(report)
}

// StartExecution starts executing report. A report with a live execution is
// rejected. A report planned against an older graph starts anyway with a
// staleness warning.
func (e *Engine) StartExecution(report *planner.Report) (*execution.State, error) {
	if report == nil {
		return nil, errors.Newf(errors.InvalidArgument, "report is required")
	}
	if report.ID == "" {
		return nil, errors.Newf(errors.InvalidArgument, "report has no id; plan it with PlanCascade")
	}
	if e.opts.Regenerator == nil {
		return nil, errors.Newf(errors.InvalidArgument, "no regenerator configured")
	}

	var warnings []string
	if current := e.graph.Version(); current != report.GraphVersion {
		warnings = append(warnings, fmt.Sprintf(
			"[%s] graph changed since report %s was planned (version %d, now %d); re-plan for a fresh snapshot",
			errors.PlanningStale, report.ID, report.GraphVersion, current))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if id, busy := e.activeByReport[report.ID]; busy {
		return nil, errors.Newf(errors.ReentrantExecution,
			"report %s already has active execution %s", report.ID, id)
	}

	exec, err := execution.Start(report, e.opts.Regenerator, execution.Options{
		MaxParallel: e.opts.MaxParallel,
		Logger:      e.logger,
		Warnings:    warnings,
		OnTerminal:  e.onTerminal,
	})
	if err != nil {
		return nil, err
	}
	id := exec.ID()
	e.active[id] = exec
	e.activeByReport[report.ID] = id
	e.rememberReport(report)
	return exec.State(), nil
}

// ExecuteWave runs the current wave of an execution.
func (e *Engine) ExecuteWave(ctx context.Context, executionID string) (*confidence.WaveConfidence, error) {
	exec, err := e.live(executionID)
	if err != nil {
		return nil, err
	}
	return exec.ExecuteCurrentWave(ctx)
}

// Approve confirms the current wave of an execution.
func (e *Engine) Approve(executionID string) (*execution.State, error) {
	exec, err := e.live(executionID)
	if err != nil {
		return nil, err
	}
	if err := exec.Approve(); err != nil {
		return nil, err
	}
	return exec.State(), nil
}

// Abort stops an execution.
func (e *Engine) Abort(executionID, reason string) (*execution.State, error) {
	exec, err := e.live(executionID)
	if err != nil {
		return nil, err
	}
	if err := exec.Abort(reason); err != nil {
		return nil, err
	}
	return exec.State(), nil
}

// ExecutionState returns the state of a live or finished execution.
func (e *Engine) ExecutionState(executionID string) (*execution.State, error) {
	e.mu.Lock()
	if exec, ok := e.active[executionID]; ok {
		e.mu.Unlock()
		return exec.State(), nil
	}
	if st, ok := e.finished[executionID]; ok {
		e.mu.Unlock()
		return st.Clone(), nil
	}
	e.mu.Unlock()

	if e.opts.History != nil {
		st, err := e.opts.History.Get(executionID)
		if err != nil {
			return nil, err
		}
		if st != nil {
			return st, nil
		}
	}
	return nil, errors.Newf(errors.ExecutionNotFound, "execution %s not found", executionID)
}

// ActiveExecutions returns the ids of non-terminal executions, sorted.
func (e *Engine) ActiveExecutions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// History lists finished executions from the store.
func (e *Engine) History(opts history.ListOptions) ([]history.Record, error) {
	if e.opts.History == nil {
		return []history.Record{}, nil
	}
	return e.opts.History.List(opts)
}

// live finds a non-terminal execution. A finished id is an invalid
// transition rather than a missing one.
func (e *Engine) live(executionID string) (*execution.Execution, error) {
	e.mu.Lock()
	if exec, ok := e.active[executionID]; ok {
		e.mu.Unlock()
		return exec, nil
	}
	if st, ok := e.finished[executionID]; ok {
		e.mu.Unlock()
		return nil, errors.Newf(errors.InvalidTransition, "execution %s is %s", executionID, st.Phase)
	}
	e.mu.Unlock()

	if e.opts.History != nil {
		if st, err := e.opts.History.Get(executionID); err == nil && st != nil {
			return nil, errors.Newf(errors.InvalidTransition, "execution %s is %s", executionID, st.Phase)
		}
	}
	return nil, errors.Newf(errors.ExecutionNotFound, "execution %s not found", executionID)
}

// onTerminal records a finished execution and releases its report. A state
// saved to History is served from there; otherwise it stays in memory.
func (e *Engine) onTerminal(final *execution.State) {
	saved := false
	if e.opts.History != nil {
		if err := e.opts.History.Save(final); err != nil {
			e.logger.Error("Failed to persist execution record",
				"execution", final.ID,
				"error", err.Error(),
			)
		} else {
			saved = true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, final.ID)
	if e.activeByReport[final.ReportID] == final.ID {
		delete(e.activeByReport, final.ReportID)
	}
	if saved {
		return
	}
	e.finished[final.ID] = final
	e.finishedOrder = append(e.finishedOrder, final.ID)
	for len(e.finishedOrder) > e.opts.MaxRetained {
		delete(e.finished, e.finishedOrder[0])
		e.finishedOrder = e.finishedOrder[1:]
	}
}

// rememberReport stores r and drops the oldest other reports without a live
// execution while more than MaxRetained are held. Callers hold e.mu.
func (e *Engine) rememberReport(r *planner.Report) {
	if _, ok := e.reports[r.ID]; !ok {
		e.reportOrder = append(e.reportOrder, r.ID)
	}
	e.reports[r.ID] = r

	for len(e.reports) > e.opts.MaxRetained {
		evicted := false
		for i, id := range e.reportOrder {
			if _, busy := e.activeByReport[id]; busy || id == r.ID {
				continue
			}
			delete(e.reports, id)
			e.reportOrder = append(e.reportOrder[:i], e.reportOrder[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}
