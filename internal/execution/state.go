// Package execution drives a planned cascade wave by wave through a
// confidence-gated, human-approved state machine.
package execution

import (
	"time"

	"cascade/internal/confidence"
	"cascade/internal/planner"
)

// Phase is the state-machine position of an execution.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseRunning          Phase = "running"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseCompleted        Phase = "completed"
	PhaseAborted          Phase = "aborted"
)

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

// Transition is one entry of the audit trail.
type Transition struct {
	From   Phase     `json:"from"`
	To     Phase     `json:"to"`
	Wave   int       `json:"wave"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// State is the live record of one execution. Once terminal it is an
// immutable audit record.
type State struct {
	ID                string                      `json:"id"`
	ReportID          string                      `json:"reportId"`
	Report            *planner.Report             `json:"report"`
	Phase             Phase                       `json:"phase"`
	CurrentWave       int                         `json:"currentWave"`
	WaveConfidences   []confidence.WaveConfidence `json:"waveConfidences"`
	PausedForApproval bool                        `json:"pausedForApproval"`
	EscalatedToHuman  bool                        `json:"escalatedToHuman"`
	OverallConfidence float64                     `json:"overallConfidence"`
	Completed         bool                        `json:"completed"`
	Aborted           bool                        `json:"aborted"`
	AbortReason       string                      `json:"abortReason,omitempty"`
	Warnings          []string                    `json:"warnings,omitempty"`
	Transitions       []Transition                `json:"transitions"`
	StartedAt         time.Time                   `json:"startedAt"`
	FinishedAt        *time.Time                  `json:"finishedAt,omitempty"`
}

// Terminal reports whether the execution has completed or been aborted.
func (s *State) Terminal() bool {
	return s.Completed || s.Aborted
}

// Outcome names the terminal result, or the phase while still live.
func (s *State) Outcome() string {
	switch {
	case s.Completed:
		return "completed"
	case s.Aborted:
		return "aborted"
	}
	return string(s.Phase)
}

// Clone returns a deep copy. The report is shared: reports are immutable.
func (s *State) Clone() *State {
	c := *s
	c.WaveConfidences = make([]confidence.WaveConfidence, len(s.WaveConfidences))
	for i, wc := range s.WaveConfidences {
		c.WaveConfidences[i] = cloneWave(wc)
	}
	c.Warnings = append([]string(nil), s.Warnings...)
	c.Transitions = append([]Transition(nil), s.Transitions...)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

func cloneWave(wc confidence.WaveConfidence) confidence.WaveConfidence {
	wc.Deductions = append([]string{}, wc.Deductions...)
	wc.Artifacts = append([]string(nil), wc.Artifacts...)
	wc.Failures = append([]confidence.Failure(nil), wc.Failures...)
	return wc
}
