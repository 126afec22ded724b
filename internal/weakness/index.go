package weakness

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cascade/internal/errors"
	"cascade/internal/slogutil"
)

// FanOutSource reports how many artifacts import a given artifact.
type FanOutSource interface {
	FanOut(id string) int
}

// Score is the aggregate weakness of one artifact. Signals and severity are
// fixed when the scan is recorded; FanOut and CascadeRisk reflect the graph at
// the time the score is read. Callers get their own copy.
type Score struct {
	ArtifactID    string    `json:"artifactId"`
	Signals       []Signal  `json:"signals"`
	TotalSeverity float64   `json:"totalSeverity"`
	FanOut        int       `json:"fanOut"`
	CascadeRisk   RiskLevel `json:"cascadeRisk"`
	ScannedAt     time.Time `json:"scannedAt"`
}

// CriticalSignals returns the signals with severity >= 0.8.
func (s *Score) CriticalSignals() []Signal {
	var out []Signal
	for _, sig := range s.Signals {
		if sig.Critical() {
			out = append(out, sig)
		}
	}
	return out
}

// Index holds the latest score per artifact.
type Index struct {
	mu     sync.RWMutex
	scores map[string]*Score
	fanOut FanOutSource
	logger *slog.Logger
	now    func() time.Time
}

// NewIndex creates an index reading fan-out from src.
func NewIndex(src FanOutSource, logger *slog.Logger) *Index {
	return &Index{
		scores: make(map[string]*Score),
		fanOut: src,
		logger: slogutil.OrDiscard(logger),
		now:    time.Now,
	}
}

// RecordScan replaces the score of artifactID with one built from signals.
// An empty signal list means the artifact is clean and drops its score.
func (x *Index) RecordScan(artifactID string, signals []Signal) error {
	if artifactID == "" {
		return errors.Newf(errors.InvalidArgument, "artifact id is required")
	}
	for i, s := range signals {
		if err := s.Validate(); err != nil {
			return errors.New(errors.InvalidArgument,
				fmt.Sprintf("invalid signal %d for %s", i, artifactID), err)
		}
	}

	if len(signals) == 0 {
		x.Remove(artifactID)
		return nil
	}

	own := make([]Signal, len(signals))
	copy(own, signals)

	total := TotalSeverity(own)
	score := &Score{
		ArtifactID:    artifactID,
		Signals:       own,
		TotalSeverity: total,
		ScannedAt:     x.now().UTC(),
	}

	x.mu.Lock()
	x.scores[artifactID] = score
	x.mu.Unlock()

	x.logger.Debug("Recorded weakness scan",
		"artifact", artifactID,
		"signals", len(own),
		"severity", total,
	)
	return nil
}

// Remove drops the score of artifactID.
func (x *Index) Remove(artifactID string) {
	x.mu.Lock()
	delete(x.scores, artifactID)
	x.mu.Unlock()
}

// Get returns the current score of artifactID.
func (x *Index) Get(artifactID string) (*Score, bool) {
	x.mu.RLock()
	s, ok := x.scores[artifactID]
	x.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return x.current(s), true
}

// current copies s with fan-out and cascade risk taken from the graph as it
// is now. Must be called without x.mu held.
func (x *Index) current(s *Score) *Score {
	out := *s
	out.FanOut = 0
	if x.fanOut != nil {
		out.FanOut = x.fanOut.FanOut(s.ArtifactID)
	}
	out.CascadeRisk = DeriveRisk(out.FanOut, out.TotalSeverity)
	return &out
}

// Len returns the number of weak artifacts.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.scores)
}

// TopWeaknesses returns scores ordered by total severity, then fan-out,
// both descending, then artifact id. limit <= 0 returns every score.
func (x *Index) TopWeaknesses(limit int) []*Score {
	x.mu.RLock()
	recorded := make([]*Score, 0, len(x.scores))
	for _, s := range x.scores {
		recorded = append(recorded, s)
	}
	x.mu.RUnlock()

	out := make([]*Score, len(recorded))
	for i, s := range recorded {
		out[i] = x.current(s)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TotalSeverity != b.TotalSeverity {
			return a.TotalSeverity > b.TotalSeverity
		}
		if a.FanOut != b.FanOut {
			return a.FanOut > b.FanOut
		}
		return a.ArtifactID < b.ArtifactID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
