package planner

import (
	"fmt"
	"strings"
	"time"

	"cascade/internal/weakness"
)

// Effort estimates how much work a cascade is.
type Effort string

const (
	EffortSmall  Effort = "small"
	EffortMedium Effort = "medium"
	EffortLarge  Effort = "large"
)

// EstimateEffort buckets the number of impacted artifacts, seed included.
func EstimateEffort(totalImpacted int) Effort {
	switch {
	case totalImpacted <= 3:
		return EffortSmall
	case totalImpacted <= 15:
		return EffortMedium
	default:
		return EffortLarge
	}
}

// Report is the plan for regenerating one seed artifact. It is a snapshot:
// if the graph changes before execution, plan again.
type Report struct {
	ID                   string             `json:"id"`
	SeedID               string             `json:"seedId"`
	DirectDependents     []string           `json:"directDependents"`
	TransitiveDependents []string           `json:"transitiveDependents"`
	TotalImpacted        int                `json:"totalImpacted"`
	EstimatedEffort      Effort             `json:"estimatedEffort"`
	CascadeRisk          weakness.RiskLevel `json:"cascadeRisk"`
	RiskAssessment       string             `json:"riskAssessment"`
	Waves                [][]string         `json:"waves"`
	Notes                []string           `json:"notes,omitempty"`
	Weakness             *weakness.Score    `json:"weakness,omitempty"`
	GraphVersion         uint64             `json:"graphVersion"`
	CreatedAt            time.Time          `json:"createdAt"`
}

// WaveOf returns the wave index of id, or -1.
func (r *Report) WaveOf(id string) int {
	for i, wave := range r.Waves {
		for _, member := range wave {
			if member == id {
				return i
			}
		}
	}
	return -1
}

// TaskMode says what a regeneration task is expected to do.
type TaskMode string

const (
	ModeRegenerate TaskMode = "regenerate"
	ModeModify     TaskMode = "modify"
	ModeVerify     TaskMode = "verify"
)

// VerifyTaskID is the id of the trailing verification task.
const VerifyTaskID = "cascade-verify"

// Task is the unit of work handed to the regeneration executor.
type Task struct {
	ID          string            `json:"id"`
	ArtifactID  string            `json:"artifactId,omitempty"`
	SeedID      string            `json:"seedId"`
	Wave        int               `json:"wave"`
	Mode        TaskMode          `json:"mode"`
	Description string            `json:"description"`
	DependsOn   []string          `json:"dependsOn"`
	Signals     []weakness.Signal `json:"signals,omitempty"`
}

// TaskID returns the task id for an artifact.
func TaskID(artifactID string) string {
	return "cascade-" + artifactID
}

// Task builds the task for one member of the plan.
func (r *Report) Task(artifactID string) (Task, bool) {
	wave := r.WaveOf(artifactID)
	if wave < 0 {
		return Task{}, false
	}

	t := Task{
		ID:         TaskID(artifactID),
		ArtifactID: artifactID,
		SeedID:     r.SeedID,
		Wave:       wave,
		DependsOn:  []string{},
	}
	if wave == 0 {
		t.Mode = ModeRegenerate
		t.Description = fmt.Sprintf("Regenerate %s to fix: %s. Maintain all existing public interfaces.",
			artifactID, r.weaknessTypes())
		if r.Weakness != nil && artifactID == r.SeedID {
			t.Signals = r.Weakness.Signals
		}
	} else {
		t.Mode = ModeModify
		t.Description = fmt.Sprintf("Update %s to be compatible with regenerated %s. Preserve existing behavior.",
			artifactID, r.SeedID)
		for _, dep := range r.Waves[wave-1] {
			t.DependsOn = append(t.DependsOn, TaskID(dep))
		}
	}
	return t, true
}

// Tasks converts the plan into ordered regeneration tasks followed by a
// verification task that depends on the last wave.
func (r *Report) Tasks() []Task {
	var tasks []Task
	for _, wave := range r.Waves {
		for _, id := range wave {
			t, _ := r.Task(id)
			tasks = append(tasks, t)
		}
	}
	if len(r.Waves) > 0 {
		last := r.Waves[len(r.Waves)-1]
		verify := Task{
			ID:          VerifyTaskID,
			SeedID:      r.SeedID,
			Wave:        len(r.Waves),
			Mode:        ModeVerify,
			Description: "Run full test suite to verify cascade didn't break anything",
			DependsOn:   make([]string, 0, len(last)),
		}
		for _, id := range last {
			verify.DependsOn = append(verify.DependsOn, TaskID(id))
		}
		tasks = append(tasks, verify)
	}
	return tasks
}

func (r *Report) weaknessTypes() string {
	if r.Weakness == nil || len(r.Weakness.Signals) == 0 {
		return "no recorded weaknesses"
	}
	types := make([]string, 0, len(r.Weakness.Signals))
	for _, s := range r.Weakness.Signals {
		types = append(types, string(s.Type))
	}
	return strings.Join(types, ", ")
}
