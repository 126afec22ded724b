// Package planner partitions the blast radius of a seed artifact into
// dependency-ordered waves and estimates the effort and risk of the cascade.
package planner

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"cascade/internal/errors"
	"cascade/internal/graph"
	"cascade/internal/impact"
	"cascade/internal/slogutil"
	"cascade/internal/weakness"
)

// wideCascadeWaves is the wave count above which cascade risk is bumped.
const wideCascadeWaves = 3

// Planner builds cascade impact reports.
type Planner struct {
	graph  *graph.Graph
	index  *weakness.Index
	logger *slog.Logger
	now    func() time.Time
}

// New creates a planner over g and idx.
func New(g *graph.Graph, idx *weakness.Index, logger *slog.Logger) *Planner {
	return &Planner{
		graph:  g,
		index:  idx,
		logger: slogutil.OrDiscard(logger),
		now:    time.Now,
	}
}

// Plan computes the impact report for seedID. The graph is read under a
// single snapshot. An unknown seed is not an error: the report holds just the
// seed and a note.
func (p *Planner) Plan(seedID string) (*Report, error) {
	if seedID == "" {
		return nil, errors.Newf(errors.InvalidArgument, "seed id is required")
	}

	var score *weakness.Score
	if p.index != nil {
		if s, ok := p.index.Get(seedID); ok {
			score = s
		}
	}

	var report *Report
	p.graph.Read(func(r graph.Reader) {
		report = build(r, seedID, score)
	})
	report.ID = uuid.New().String()
	report.CreatedAt = p.now().UTC()

	p.logger.Info("Planned cascade",
		"seed", seedID,
		"report", report.ID,
		"waves", len(report.Waves),
		"impacted", report.TotalImpacted,
		"risk", report.CascadeRisk,
	)
	for _, note := range report.Notes {
		p.logger.Warn("Cascade planning note", "seed", seedID, "note", note)
	}
	return report, nil
}

// PlanIn builds a report against an existing graph view without assigning an
// id or timestamp.
func PlanIn(r graph.Reader, seedID string, score *weakness.Score) *Report {
	return build(r, seedID, score)
}

func build(r graph.Reader, seedID string, score *weakness.Score) *Report {
	br := impact.ComputeIn(r, seedID)

	report := &Report{
		SeedID:               seedID,
		DirectDependents:     br.Direct,
		TransitiveDependents: br.Transitive,
		TotalImpacted:        br.TotalImpacted,
		EstimatedEffort:      EstimateEffort(br.TotalImpacted),
		Weakness:             score,
		GraphVersion:         r.Version(),
	}

	if !br.SeedKnown {
		report.Notes = append(report.Notes,
			fmt.Sprintf("%s: seed %s is not in the dependency graph", errors.GraphInconsistency, seedID))
	}

	waves, notes := layer(r, br)
	report.Waves = waves
	report.Notes = append(report.Notes, notes...)

	// Fan-out comes from this snapshot, not from when the seed was scanned.
	severity := 0.0
	if score != nil {
		severity = score.TotalSeverity
		current := *score
		current.FanOut = len(br.Direct)
		current.CascadeRisk = weakness.DeriveRisk(current.FanOut, severity)
		report.Weakness = &current
	}
	seedRisk := weakness.DeriveRisk(len(br.Direct), severity)
	report.CascadeRisk = seedRisk
	if len(waves) > wideCascadeWaves {
		report.CascadeRisk = weakness.MaxRisk(seedRisk, seedRisk.Bump())
	}

	report.RiskAssessment = assess(report, len(br.Direct))
	return report
}

// layer assigns the blast radius to waves. Wave 0 is the seed; each later
// wave holds every unplaced node whose in-scope imports are all placed. When
// no node qualifies the rest are forced into one final wave.
func layer(r graph.Reader, br *impact.BlastRadius) ([][]string, []string) {
	var notes []string
	members := br.Members()

	scope := make(map[string]bool, len(members))
	for _, id := range members {
		scope[id] = true
	}
	deps := make(map[string][]string, len(members))
	for _, id := range members {
		for _, imp := range r.ImportsOf(id) {
			if scope[imp] {
				deps[id] = append(deps[id], imp)
			}
		}
	}

	seed := br.SeedID
	if len(deps[seed]) > 0 {
		notes = append(notes, fmt.Sprintf("seed %s sits on an import cycle through %s",
			seed, strings.Join(deps[seed], ", ")))
	}

	waves := [][]string{{seed}}
	placed := map[string]bool{seed: true}
	remaining := append([]string(nil), members[1:]...)

	for len(remaining) > 0 {
		var wave, rest []string
		for _, id := range remaining {
			if allPlaced(deps[id], placed) {
				wave = append(wave, id)
			} else {
				rest = append(rest, id)
			}
		}

		if len(wave) == 0 {
			sort.Strings(rest)
			notes = append(notes, fmt.Sprintf("import cycle among %s; force-placed in wave %d",
				strings.Join(rest, ", "), len(waves)))
			waves = append(waves, rest)
			break
		}

		sort.Strings(wave)
		for _, id := range wave {
			placed[id] = true
		}
		waves = append(waves, wave)
		remaining = rest
	}

	return waves, notes
}

func allPlaced(ids []string, placed map[string]bool) bool {
	for _, id := range ids {
		if !placed[id] {
			return false
		}
	}
	return true
}

// assess renders the human-readable risk explanation.
func assess(r *Report, fanOut int) string {
	waveWord := "waves"
	if len(r.Waves) == 1 {
		waveWord = "wave"
	}
	summary := fmt.Sprintf("Risk %s: %d %s, %d artifacts impacted",
		r.CascadeRisk, len(r.Waves), waveWord, r.TotalImpacted)

	var factors []string
	if len(r.Waves) > wideCascadeWaves {
		factors = append(factors, "Wide cascade raised risk one level")
	}
	if r.TotalImpacted-1 > 20 {
		factors = append(factors, fmt.Sprintf("Large cascade (%d files)", r.TotalImpacted-1))
	}
	if fanOut > 10 {
		factors = append(factors, fmt.Sprintf("High fan-out (%d dependents)", fanOut))
	}
	if r.Weakness != nil {
		var types []string
		for _, s := range r.Weakness.CriticalSignals() {
			types = append(types, string(s.Type))
		}
		if len(types) > 0 {
			factors = append(factors, "Critical weaknesses: "+strings.Join(types, ", "))
		}
	}
	for _, note := range r.Notes {
		if strings.Contains(note, "cycle") {
			factors = append(factors, "Import cycle in blast radius")
			break
		}
	}

	if len(factors) == 0 {
		if r.CascadeRisk == weakness.RiskLow {
			return summary + " | Small, isolated change"
		}
		return summary
	}
	return summary + " | " + strings.Join(factors, " | ")
}
