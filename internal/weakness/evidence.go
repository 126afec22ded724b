package weakness

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Evidence is the detector-specific payload of a signal. The set of
// implementations is closed: one struct per Type.
type Evidence interface {
	Type() Type
	isEvidence()
}

// CoverageEvidence backs a low_coverage signal.
type CoverageEvidence struct {
	Coverage  float64 `json:"coverage"`
	Threshold float64 `json:"threshold"`
}

// ComplexityEvidence backs a high_complexity signal.
type ComplexityEvidence struct {
	Complexity int `json:"complexity"`
	Threshold  int `json:"threshold"`
}

// LintEvidence backs a lint_errors signal.
type LintEvidence struct {
	ErrorCount int `json:"error_count"`
}

// StalenessEvidence backs a stale_code signal.
type StalenessEvidence struct {
	MonthsStale float64 `json:"months_stale"`
	FanOut      int     `json:"fan_out"`
	Coverage    float64 `json:"coverage"`
}

// TypeErrorEvidence backs a missing_types signal.
type TypeErrorEvidence struct {
	TypeErrors int `json:"type_errors"`
}

func (CoverageEvidence) Type() Type   { return LowCoverage }
func (ComplexityEvidence) Type() Type { return HighComplexity }
func (LintEvidence) Type() Type       { return LintErrors }
func (StalenessEvidence) Type() Type  { return StaleCode }
func (TypeErrorEvidence) Type() Type  { return MissingTypes }

func (CoverageEvidence) isEvidence()   {}
func (ComplexityEvidence) isEvidence() {}
func (LintEvidence) isEvidence()       {}
func (StalenessEvidence) isEvidence()  {}
func (TypeErrorEvidence) isEvidence()  {}

func newEvidence(t Type) (Evidence, error) {
	switch t {
	case LowCoverage:
		return &CoverageEvidence{}, nil
	case HighComplexity:
		return &ComplexityEvidence{}, nil
	case LintErrors:
		return &LintEvidence{}, nil
	case StaleCode:
		return &StalenessEvidence{}, nil
	case MissingTypes:
		return &TypeErrorEvidence{}, nil
	}
	return nil, fmt.Errorf("unknown weakness type %q", t)
}

// deref turns the pointer produced by newEvidence into the value form
// stored on signals.
func deref(e Evidence) Evidence {
	switch v := e.(type) {
	case *CoverageEvidence:
		return *v
	case *ComplexityEvidence:
		return *v
	case *LintEvidence:
		return *v
	case *StalenessEvidence:
		return *v
	case *TypeErrorEvidence:
		return *v
	}
	return e
}

type signalJSON struct {
	Type     Type            `json:"type"`
	Severity float64         `json:"severity"`
	Evidence json.RawMessage `json:"evidence,omitempty"`
}

// UnmarshalJSON decodes the evidence into the struct matching the signal
// type. Unknown evidence keys are rejected.
func (s *Signal) UnmarshalJSON(data []byte) error {
	var raw signalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Signal{Type: raw.Type, Severity: raw.Severity}
	if len(raw.Evidence) > 0 && !bytes.Equal(bytes.TrimSpace(raw.Evidence), []byte("null")) {
		ev, err := newEvidence(raw.Type)
		if err != nil {
			return err
		}
		dec := json.NewDecoder(bytes.NewReader(raw.Evidence))
		dec.DisallowUnknownFields()
		if err := dec.Decode(ev); err != nil {
			return fmt.Errorf("%s evidence: %w", raw.Type, err)
		}
		out.Evidence = deref(ev)
	}
	if err := out.Validate(); err != nil {
		return err
	}

	*s = out
	return nil
}

// EvidenceFromMap builds typed evidence from a generic map, as produced by
// YAML or TOML decoders. Unknown keys are rejected.
func EvidenceFromMap(t Type, m map[string]interface{}) (Evidence, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	ev, err := newEvidence(t)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ev); err != nil {
		return nil, fmt.Errorf("%s evidence: %w", t, err)
	}
	return deref(ev), nil
}
