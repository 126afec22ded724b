// Package weakness holds per-artifact weakness signals and the cascade risk
// derived from them.
package weakness

import (
	"fmt"
	"math"
)

// Type identifies the detector that produced a signal.
type Type string

const (
	LowCoverage    Type = "low_coverage"
	HighComplexity Type = "high_complexity"
	LintErrors     Type = "lint_errors"
	StaleCode      Type = "stale_code"
	MissingTypes   Type = "missing_types"
)

// Types lists every known weakness type.
var Types = []Type{LowCoverage, HighComplexity, LintErrors, StaleCode, MissingTypes}

// Valid reports whether t is a known weakness type.
func (t Type) Valid() bool {
	switch t {
	case LowCoverage, HighComplexity, LintErrors, StaleCode, MissingTypes:
		return true
	}
	return false
}

// RiskLevel is an ordered severity bucket for regenerating an artifact.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskOrder = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank returns the position of r in low < medium < high < critical.
// Unknown levels rank as low.
func (r RiskLevel) Rank() int {
	for i, lvl := range riskOrder {
		if lvl == r {
			return i
		}
	}
	return 0
}

// Bump raises r by one level, capped at critical.
func (r RiskLevel) Bump() RiskLevel {
	i := r.Rank() + 1
	if i >= len(riskOrder) {
		i = len(riskOrder) - 1
	}
	return riskOrder[i]
}

// MaxRisk returns the higher of a and b.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// DeriveRisk buckets an artifact by fan-out and total severity. Either
// condition alone is enough to reach a bucket.
func DeriveRisk(fanOut int, totalSeverity float64) RiskLevel {
	switch {
	case fanOut >= 10 || totalSeverity >= 0.8:
		return RiskCritical
	case fanOut >= 5 || totalSeverity >= 0.6:
		return RiskHigh
	case fanOut >= 2 || totalSeverity >= 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Signal is one detected issue on an artifact.
type Signal struct {
	Type     Type     `json:"type"`
	Severity float64  `json:"severity"`
	Evidence Evidence `json:"evidence,omitempty"`
}

// NewSignal builds a validated signal.
func NewSignal(t Type, severity float64, evidence Evidence) (Signal, error) {
	s := Signal{Type: t, Severity: severity, Evidence: evidence}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// Validate checks the type, severity range and evidence shape.
func (s Signal) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown weakness type %q", s.Type)
	}
	if math.IsNaN(s.Severity) || s.Severity < 0 || s.Severity > 1 {
		return fmt.Errorf("%s: severity %v outside [0,1]", s.Type, s.Severity)
	}
	if s.Evidence != nil && s.Evidence.Type() != s.Type {
		return fmt.Errorf("%s: evidence is for %s", s.Type, s.Evidence.Type())
	}
	return nil
}

// Critical reports whether the signal alone is severe enough to call out.
func (s Signal) Critical() bool {
	return s.Severity >= 0.8
}

// TotalSeverity combines signal severities as a sum saturating at 1.
func TotalSeverity(signals []Signal) float64 {
	total := 0.0
	for _, s := range signals {
		total += s.Severity
	}
	return math.Min(1, total)
}
