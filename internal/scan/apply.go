package scan

import (
	"fmt"
	"log/slog"

	"cascade/internal/errors"
	"cascade/internal/graph"
	"cascade/internal/slogutil"
	"cascade/internal/weakness"
)

// Result counts what a manifest changed.
type Result struct {
	Removed   int `json:"removed"`
	Updated   int `json:"updated"`
	Weak      int `json:"weak"`
	Ignored   int `json:"ignored"`
	GraphSize int `json:"graphSize"`
}

// Applier writes manifests into a graph and, optionally, a weakness index.
type Applier struct {
	Graph  *graph.Graph
	Index  *weakness.Index
	Ignore *Ignore
	Logger *slog.Logger
}

// Apply validates every signal first, then applies removals, graph updates
// and finally weakness scans. A nil Index applies the graph only.
func (a *Applier) Apply(m *Manifest) (*Result, error) {
	logger := slogutil.OrDiscard(a.Logger)
	if m == nil {
		return nil, errors.Newf(errors.InvalidArgument, "manifest is required")
	}

	filtered := a.Ignore.Filter(m)
	res := &Result{Ignored: len(m.Artifacts) - len(filtered.Artifacts)}

	signals := make([][]weakness.Signal, len(filtered.Artifacts))
	for i, entry := range filtered.Artifacts {
		if entry.ID == "" {
			return nil, errors.Newf(errors.InvalidArgument, "artifact %d has no id", i)
		}
		for j, se := range entry.Signals {
			s, err := se.Signal()
			if err != nil {
				return nil, errors.New(errors.InvalidArgument,
					fmt.Sprintf("artifact %s signal %d", entry.ID, j), err)
			}
			signals[i] = append(signals[i], s)
		}
	}

	for _, id := range filtered.Removed {
		a.Graph.RemoveArtifact(id)
		if a.Index != nil {
			a.Index.Remove(id)
		}
		res.Removed++
	}

	for _, entry := range filtered.Artifacts {
		a.Graph.AddOrUpdateArtifact(entry.ID, entry.Imports)
		res.Updated++
	}

	if a.Index != nil {
		for i, entry := range filtered.Artifacts {
			if err := a.Index.RecordScan(entry.ID, signals[i]); err != nil {
				return nil, err
			}
			if len(signals[i]) > 0 {
				res.Weak++
			}
		}
	}

	res.GraphSize = a.Graph.Len()
	logger.Info("Applied scan manifest",
		"updated", res.Updated,
		"removed", res.Removed,
		"weak", res.Weak,
		"ignored", res.Ignored,
		"graphSize", res.GraphSize,
	)
	return res, nil
}
