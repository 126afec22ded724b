// Package confidence scores the outcome of a regenerated wave from its
// verification signals.
package confidence

import (
	"math"
)

// Deduction weights. Contract breakage weighs most because it invalidates
// every downstream wave.
const (
	TestsFailedPenalty     = 0.4
	TypeCheckPenalty       = 0.25
	LintPenalty            = 0.15
	ContractChangedPenalty = 0.5
)

// Deduction labels recorded on a WaveConfidence.
const (
	DeductionTestsFailed     = "tests failed"
	DeductionTypeCheckFailed = "type check failed"
	DeductionLintErrors      = "lint errors"
	DeductionContractChanged = "public contract changed"
)

// Verification is the bundle a regenerator reports for an artifact or wave.
type Verification struct {
	TestsPassed        bool `json:"testsPassed"`
	TypesClean         bool `json:"typesClean"`
	LintClean          bool `json:"lintClean"`
	ContractsPreserved bool `json:"contractsPreserved"`
}

// Passing is a bundle with every check green.
func Passing() Verification {
	return Verification{TestsPassed: true, TypesClean: true, LintClean: true, ContractsPreserved: true}
}

// MemberResult is the outcome of regenerating one wave member.
type MemberResult struct {
	ArtifactID   string
	Verification Verification
	Err          error
}

// Failure records a wave member whose regeneration errored.
type Failure struct {
	ArtifactID string `json:"artifactId"`
	Error      string `json:"error"`
}

// WaveConfidence is the verified outcome of one wave.
type WaveConfidence struct {
	WaveIndex          int       `json:"waveIndex"`
	Confidence         float64   `json:"confidence"`
	TestsPassed        bool      `json:"testsPassed"`
	TypesClean         bool      `json:"typesClean"`
	LintClean          bool      `json:"lintClean"`
	ContractsPreserved bool      `json:"contractsPreserved"`
	Deductions         []string  `json:"deductions"`
	Artifacts          []string  `json:"artifacts,omitempty"`
	Failures           []Failure `json:"failures,omitempty"`
}

// Evaluate scores a verification bundle. It is a pure function of its inputs.
func Evaluate(waveIndex int, v Verification) WaveConfidence {
	wc := WaveConfidence{
		WaveIndex:          waveIndex,
		TestsPassed:        v.TestsPassed,
		TypesClean:         v.TypesClean,
		LintClean:          v.LintClean,
		ContractsPreserved: v.ContractsPreserved,
		Deductions:         []string{},
	}

	score := 1.0
	if !v.TestsPassed {
		score -= TestsFailedPenalty
		wc.Deductions = append(wc.Deductions, DeductionTestsFailed)
	}
	if !v.TypesClean {
		score -= TypeCheckPenalty
		wc.Deductions = append(wc.Deductions, DeductionTypeCheckFailed)
	}
	if !v.LintClean {
		score -= LintPenalty
		wc.Deductions = append(wc.Deductions, DeductionLintErrors)
	}
	if !v.ContractsPreserved {
		score -= ContractChangedPenalty
		wc.Deductions = append(wc.Deductions, DeductionContractChanged)
	}

	wc.Confidence = clamp(round(score))
	return wc
}

// Merge folds per-member results into one wave bundle. Every check must
// hold for every member; a member that errored counts as failing tests.
// An empty wave verifies as passing.
func Merge(results []MemberResult) (Verification, []Failure) {
	v := Passing()
	var failures []Failure
	for _, r := range results {
		if r.Err != nil {
			v.TestsPassed = false
			failures = append(failures, Failure{ArtifactID: r.ArtifactID, Error: r.Err.Error()})
			continue
		}
		v.TestsPassed = v.TestsPassed && r.Verification.TestsPassed
		v.TypesClean = v.TypesClean && r.Verification.TypesClean
		v.LintClean = v.LintClean && r.Verification.LintClean
		v.ContractsPreserved = v.ContractsPreserved && r.Verification.ContractsPreserved
	}
	return v, failures
}

// EvaluateWave merges member results and scores the wave.
func EvaluateWave(waveIndex int, results []MemberResult) WaveConfidence {
	v, failures := Merge(results)
	wc := Evaluate(waveIndex, v)
	wc.Failures = failures
	for _, r := range results {
		wc.Artifacts = append(wc.Artifacts, r.ArtifactID)
	}
	return wc
}

// round drops float noise from the subtractions, e.g. 1-0.4-0.25.
func round(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
