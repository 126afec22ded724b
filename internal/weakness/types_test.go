package weakness

import (
	"math"
	"testing"
)

func TestDeriveRisk(t *testing.T) {
	tests := []struct {
		name     string
		fanOut   int
		severity float64
		want     RiskLevel
	}{
		{"clean leaf", 0, 0, RiskLow},
		{"low coverage leaf", 0, 0.2, RiskLow},
		{"medium by fan-out", 2, 0, RiskMedium},
		{"medium by severity", 0, 0.3, RiskMedium},
		{"high by fan-out", 5, 0, RiskHigh},
		{"high by severity", 1, 0.6, RiskHigh},
		{"critical by fan-out", 10, 0, RiskCritical},
		{"fan-out 12 any severity", 12, 0.01, RiskCritical},
		{"critical by severity", 0, 0.8, RiskCritical},
		{"either condition wins", 4, 0.79, RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveRisk(tt.fanOut, tt.severity); got != tt.want {
				t.Errorf("DeriveRisk(%d, %v) = %s, want %s", tt.fanOut, tt.severity, got, tt.want)
			}
		})
	}
}

func TestDeriveRisk_Monotonic(t *testing.T) {
	for fan := 0; fan <= 15; fan++ {
		for sev := 0; sev <= 100; sev++ {
			s := float64(sev) / 100
			base := DeriveRisk(fan, s).Rank()
			if DeriveRisk(fan+1, s).Rank() < base {
				t.Fatalf("raising fan-out from %d at severity %v lowered risk", fan, s)
			}
			if sev < 100 && DeriveRisk(fan, float64(sev+1)/100).Rank() < base {
				t.Fatalf("raising severity from %v at fan-out %d lowered risk", s, fan)
			}
		}
	}
}

func TestRiskLevel_Ordering(t *testing.T) {
	if RiskLow.Bump() != RiskMedium || RiskHigh.Bump() != RiskCritical {
		t.Error("Bump should advance one level")
	}
	if RiskCritical.Bump() != RiskCritical {
		t.Error("Bump should cap at critical")
	}
	if MaxRisk(RiskMedium, RiskHigh) != RiskHigh || MaxRisk(RiskCritical, RiskLow) != RiskCritical {
		t.Error("MaxRisk returned the lower level")
	}
	if RiskLevel("bogus").Rank() != 0 {
		t.Error("unknown level should rank as low")
	}
}

func TestSignal_Validate(t *testing.T) {
	tests := []struct {
		name    string
		signal  Signal
		wantErr bool
	}{
		{"valid", Signal{Type: LowCoverage, Severity: 0.2, Evidence: CoverageEvidence{Coverage: 0.6, Threshold: 0.8}}, false},
		{"no evidence", Signal{Type: LintErrors, Severity: 0.5}, false},
		{"unknown type", Signal{Type: "flaky", Severity: 0.1}, true},
		{"negative severity", Signal{Type: StaleCode, Severity: -0.1}, true},
		{"severity above one", Signal{Type: StaleCode, Severity: 1.01}, true},
		{"NaN severity", Signal{Type: StaleCode, Severity: math.NaN()}, true},
		{"mismatched evidence", Signal{Type: LowCoverage, Severity: 0.1, Evidence: LintEvidence{ErrorCount: 3}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.signal.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTotalSeverity(t *testing.T) {
	tests := []struct {
		name       string
		severities []float64
		want       float64
	}{
		{"none", nil, 0},
		{"single", []float64{0.2}, 0.2},
		{"sum", []float64{0.25, 0.5}, 0.75},
		{"saturates", []float64{0.7, 0.6}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var signals []Signal
			for _, s := range tt.severities {
				signals = append(signals, Signal{Type: LintErrors, Severity: s})
			}
			if got := TotalSeverity(signals); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TotalSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}
