package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"cascade/internal/confidence"
	"cascade/internal/execution"
	"cascade/internal/history"
	"cascade/internal/planner"
	"cascade/internal/weakness"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case []*weakness.Score:
		return formatWeaknessesHuman(v), nil
	case *planner.Report:
		return formatReportHuman(v), nil
	case *confidence.WaveConfidence:
		return formatWaveHuman(v), nil
	case *execution.State:
		return formatStateHuman(v), nil
	case []history.Record:
		return formatHistoryHuman(v), nil
	default:
		// Unknown types fall back to JSON
		return formatJSON(resp)
	}
}

func formatWeaknessesHuman(scores []*weakness.Score) string {
	if len(scores) == 0 {
		return "No weak artifacts recorded."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-4s %-48s %8s %7s  %-8s %s\n", "#", "ARTIFACT", "SEVERITY", "FAN-OUT", "RISK", "SIGNALS"))
	for i, s := range scores {
		types := make([]string, 0, len(s.Signals))
		for _, sig := range s.Signals {
			types = append(types, fmt.Sprintf("%s(%.2f)", sig.Type, sig.Severity))
		}
		b.WriteString(fmt.Sprintf("%-4d %-48s %8.2f %7d  %-8s %s\n",
			i+1, s.ArtifactID, s.TotalSeverity, s.FanOut, s.CascadeRisk, strings.Join(types, ", ")))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatReportHuman(r *planner.Report) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Cascade for %s\n", r.SeedID))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("Report:    %s\n", r.ID))
	b.WriteString(fmt.Sprintf("Impacted:  %d (%d direct, %d transitive)\n",
		r.TotalImpacted, len(r.DirectDependents), len(r.TransitiveDependents)))
	b.WriteString(fmt.Sprintf("Effort:    %s\n", r.EstimatedEffort))
	b.WriteString(fmt.Sprintf("Risk:      %s\n", r.RiskAssessment))

	b.WriteString("\nWaves:\n")
	for i, wave := range r.Waves {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i, strings.Join(wave, ", ")))
	}
	if len(r.Notes) > 0 {
		b.WriteString("\nNotes:\n")
		for _, n := range r.Notes {
			b.WriteString("  - " + n + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatWaveHuman(wc *confidence.WaveConfidence) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Wave %d: confidence %.2f (%d artifacts)\n", wc.WaveIndex, wc.Confidence, len(wc.Artifacts)))
	for _, d := range wc.Deductions {
		b.WriteString("  - " + d + "\n")
	}
	for _, f := range wc.Failures {
		b.WriteString(fmt.Sprintf("  ! %s: %s\n", f.ArtifactID, f.Error))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStateHuman(s *execution.State) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Execution %s\n", s.ID))
	b.WriteString(fmt.Sprintf("Phase:      %s\n", s.Phase))
	if s.Report != nil {
		b.WriteString(fmt.Sprintf("Seed:       %s\n", s.Report.SeedID))
		b.WriteString(fmt.Sprintf("Wave:       %d of %d\n", s.CurrentWave+1, len(s.Report.Waves)))
	}
	b.WriteString(fmt.Sprintf("Confidence: %.2f\n", s.OverallConfidence))
	if s.EscalatedToHuman {
		b.WriteString("Escalated:  yes, consecutive waves fell below threshold\n")
	}
	if s.Aborted {
		b.WriteString(fmt.Sprintf("Aborted:    %s\n", s.AbortReason))
	}
	for _, w := range s.Warnings {
		b.WriteString("Warning:    " + w + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistoryHuman(records []history.Record) string {
	if len(records) == 0 {
		return "No finished executions."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-36s  %-32s %-9s %5s %10s  %s\n", "EXECUTION", "SEED", "OUTCOME", "WAVES", "CONFIDENCE", "FINISHED"))
	for _, r := range records {
		finished := ""
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format("2006-01-02 15:04")
		}
		outcome := r.Outcome
		if r.Escalated {
			outcome += "*"
		}
		b.WriteString(fmt.Sprintf("%-36s  %-32s %-9s %2d/%-2d %10.2f  %s\n",
			r.ExecutionID, r.SeedID, outcome, r.WavesExecuted, r.Waves, r.OverallConfidence, finished))
	}
	return strings.TrimRight(b.String(), "\n")
}

// printResponse writes resp to stdout in the --format encoding.
func printResponse(resp interface{}) error {
	out, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
