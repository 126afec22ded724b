package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cascade/internal/confidence"
	"cascade/internal/errors"
	"cascade/internal/planner"
	"cascade/internal/slogutil"
)

const (
	// EscalationThreshold is the confidence below which a wave counts as weak.
	EscalationThreshold = 0.6
	// EscalationWindow is how many consecutive weak waves escalate.
	EscalationWindow = 2
)

// Regenerator produces new content for one artifact and reports how it
// verified. Implementations may be slow and may fail; they are not retried.
type Regenerator interface {
	Regenerate(ctx context.Context, task planner.Task) (confidence.Verification, error)
}

// RegeneratorFunc adapts a function to Regenerator.
type RegeneratorFunc func(ctx context.Context, task planner.Task) (confidence.Verification, error)

// Regenerate calls f.
func (f RegeneratorFunc) Regenerate(ctx context.Context, task planner.Task) (confidence.Verification, error) {
	return f(ctx, task)
}

// Options configures an execution.
type Options struct {
	// MaxParallel bounds concurrent regenerations within a wave (default 4).
	MaxParallel int
	Logger      *slog.Logger
	// Warnings are attached to the state at start, e.g. staleness.
	Warnings []string
	// OnTerminal is called once, outside the lock, with a copy of the final state.
	OnTerminal func(*State)
}

// Execution is the controller for one running cascade.
type Execution struct {
	mu       sync.Mutex
	state    *State
	regen    Regenerator
	opts     Options
	logger   *slog.Logger
	inFlight bool
	cancel   context.CancelFunc
	now      func() time.Time
}

// Start creates an execution for report positioned at wave 0.
func Start(report *planner.Report, regen Regenerator, opts Options) (*Execution, error) {
	if report == nil || len(report.Waves) == 0 {
		return nil, errors.Newf(errors.InvalidArgument, "report has no waves")
	}
	if regen == nil {
		return nil, errors.Newf(errors.InvalidArgument, "regenerator is required")
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}

	e := &Execution{
		regen:  regen,
		opts:   opts,
		logger: slogutil.OrDiscard(opts.Logger),
		now:    time.Now,
	}
	e.state = &State{
		ID:              uuid.New().String(),
		ReportID:        report.ID,
		Report:          report,
		Phase:           PhaseIdle,
		WaveConfidences: []confidence.WaveConfidence{},
		Warnings:        append([]string(nil), opts.Warnings...),
		Transitions:     []Transition{},
		StartedAt:       e.now().UTC(),
	}
	e.transition(PhaseRunning, "started")
	activeExecutions.Inc()

	e.logger.Info("Execution started",
		"execution", e.state.ID,
		"report", report.ID,
		"seed", report.SeedID,
		"waves", len(report.Waves),
	)
	for _, w := range e.state.Warnings {
		e.logger.Warn("Execution warning", "execution", e.state.ID, "warning", w)
	}
	return e, nil
}

// ID returns the execution id.
func (e *Execution) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ID
}

// State returns a deep copy of the current state.
func (e *Execution) State() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// ExecuteCurrentWave regenerates every member of the current wave
// concurrently, waits for all of them, scores the wave and pauses for
// approval. Member failures lower confidence; they never stop the wave.
// If the execution is aborted while the wave runs, the result is discarded.
func (e *Execution) ExecuteCurrentWave(ctx context.Context) (*confidence.WaveConfidence, error) {
	e.mu.Lock()
	if err := e.require(PhaseRunning, "execute wave"); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if e.inFlight {
		e.mu.Unlock()
		return nil, errors.Newf(errors.InvalidTransition, "wave %d is already running", e.state.CurrentWave)
	}
	waveIdx := e.state.CurrentWave
	report := e.state.Report
	execID := e.state.ID
	waveCtx, cancel := context.WithCancel(ctx)
	e.inFlight = true
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	members := report.Waves[waveIdx]
	e.logger.Info("Executing wave",
		"execution", execID,
		"wave", waveIdx,
		"members", len(members),
	)

	results := e.runWave(waveCtx, report, waveIdx)

	e.mu.Lock()
	e.inFlight = false
	e.cancel = nil
	if e.state.Aborted {
		e.mu.Unlock()
		e.logger.Warn("Discarding wave result after abort", "execution", execID, "wave", waveIdx)
		return nil, errors.Newf(errors.InvalidTransition, "execution aborted while wave %d was running", waveIdx)
	}

	wc := confidence.EvaluateWave(waveIdx, results)
	e.state.WaveConfidences = append(e.state.WaveConfidences, wc)
	e.state.OverallConfidence = meanConfidence(e.state.WaveConfidences)
	newlyEscalated := false
	if !e.state.EscalatedToHuman && shouldEscalate(e.state.WaveConfidences) {
		e.state.EscalatedToHuman = true
		newlyEscalated = true
	}
	e.state.PausedForApproval = true
	e.transition(PhaseAwaitingApproval, fmt.Sprintf("wave %d confidence %.2f", waveIdx, wc.Confidence))
	out := cloneWave(wc)
	e.mu.Unlock()

	wavesExecuted.Inc()
	waveConfidence.Observe(wc.Confidence)
	if len(wc.Failures) > 0 {
		e.logger.Warn("Wave verification failure",
			"execution", execID,
			"wave", waveIdx,
			"code", errors.WaveVerificationFailure,
			"failed", len(wc.Failures),
		)
	}
	if newlyEscalated {
		escalations.Inc()
		e.logger.Warn("Execution escalated to human",
			"execution", execID,
			"wave", waveIdx,
			"confidence", wc.Confidence,
		)
	}
	e.logger.Info("Wave awaiting approval",
		"execution", execID,
		"wave", waveIdx,
		"confidence", wc.Confidence,
		"deductions", len(wc.Deductions),
	)
	return &out, nil
}

// runWave dispatches each member through an errgroup. Errors are kept in the
// per-member results so one failure never cancels its siblings.
func (e *Execution) runWave(ctx context.Context, report *planner.Report, waveIdx int) []confidence.MemberResult {
	members := report.Waves[waveIdx]
	results := make([]confidence.MemberResult, len(members))
	for i, id := range members {
		results[i].ArtifactID = id
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxParallel)

	for i, id := range members {
		if gctx.Err() != nil {
			results[i].Err = gctx.Err()
			continue
		}
		task, _ := report.Task(id)
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i].Err = gctx.Err()
				return nil
			}
			start := time.Now()
			v, err := e.regen.Regenerate(gctx, task)
			regenerationDuration.WithLabelValues(string(task.Mode)).Observe(time.Since(start).Seconds())
			results[i].Verification = v
			if err != nil {
				regenerationFailures.Inc()
				results[i].Err = err
				e.logger.Warn("Regeneration failed", "artifact", id, "wave", waveIdx, "error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Approve confirms the current wave. Approving the last wave completes the
// execution; otherwise the next wave becomes current.
func (e *Execution) Approve() error {
	e.mu.Lock()
	if err := e.require(PhaseAwaitingApproval, "approve"); err != nil {
		e.mu.Unlock()
		return err
	}

	e.state.PausedForApproval = false
	if e.state.CurrentWave == len(e.state.Report.Waves)-1 {
		e.state.Completed = true
		e.state.OverallConfidence = meanConfidence(e.state.WaveConfidences)
		e.finish(PhaseCompleted, "last wave approved")
		final := e.state.Clone()
		e.mu.Unlock()

		e.logger.Info("Execution completed",
			"execution", final.ID,
			"overallConfidence", final.OverallConfidence,
			"escalated", final.EscalatedToHuman,
		)
		e.terminal(final)
		return nil
	}

	e.state.CurrentWave++
	e.transition(PhaseRunning, fmt.Sprintf("wave %d approved", e.state.CurrentWave-1))
	id, wave := e.state.ID, e.state.CurrentWave
	e.mu.Unlock()

	e.logger.Info("Wave approved", "execution", id, "nextWave", wave)
	return nil
}

// Abort stops the execution from any non-terminal phase. A wave in flight is
// cancelled and its result discarded; waves not yet executed never start.
func (e *Execution) Abort(reason string) error {
	e.mu.Lock()
	if e.state.Terminal() {
		err := errors.Newf(errors.InvalidTransition, "cannot abort: execution is %s", e.state.Phase)
		e.mu.Unlock()
		return err
	}

	e.state.Aborted = true
	e.state.AbortReason = reason
	e.state.PausedForApproval = false
	if e.cancel != nil {
		e.cancel()
	}
	e.finish(PhaseAborted, reason)
	final := e.state.Clone()
	e.mu.Unlock()

	e.logger.Warn("Execution aborted",
		"execution", final.ID,
		"wave", final.CurrentWave,
		"reason", reason,
	)
	e.terminal(final)
	return nil
}

// require checks the phase; callers hold e.mu.
func (e *Execution) require(phase Phase, op string) error {
	if e.state.Terminal() {
		return errors.Newf(errors.InvalidTransition, "cannot %s: execution is %s", op, e.state.Phase)
	}
	if e.state.Phase != phase {
		return errors.Newf(errors.InvalidTransition, "cannot %s: execution is %s, want %s", op, e.state.Phase, phase)
	}
	return nil
}

// transition records a phase change; callers hold e.mu.
func (e *Execution) transition(to Phase, reason string) {
	e.state.Transitions = append(e.state.Transitions, Transition{
		From:   e.state.Phase,
		To:     to,
		Wave:   e.state.CurrentWave,
		Reason: reason,
		At:     e.now().UTC(),
	})
	e.state.Phase = to
}

// finish moves to a terminal phase; callers hold e.mu.
func (e *Execution) finish(to Phase, reason string) {
	e.transition(to, reason)
	t := e.now().UTC()
	e.state.FinishedAt = &t
}

func (e *Execution) terminal(final *State) {
	activeExecutions.Dec()
	executionsFinished.WithLabelValues(final.Outcome()).Inc()
	if e.opts.OnTerminal != nil {
		e.opts.OnTerminal(final)
	}
}

// shouldEscalate reports whether the trailing window of waves are all weak.
func shouldEscalate(confs []confidence.WaveConfidence) bool {
	if len(confs) < EscalationWindow {
		return false
	}
	for _, wc := range confs[len(confs)-EscalationWindow:] {
		if wc.Confidence >= EscalationThreshold {
			return false
		}
	}
	return true
}

func meanConfidence(confs []confidence.WaveConfidence) float64 {
	if len(confs) == 0 {
		return 0
	}
	sum := 0.0
	for _, wc := range confs {
		sum += wc.Confidence
	}
	return sum / float64(len(confs))
}
