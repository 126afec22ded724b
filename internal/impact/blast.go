package impact

import (
	"sort"

	"cascade/internal/graph"
)

// BlastRadius is the set of artifacts affected by regenerating a seed.
type BlastRadius struct {
	SeedID string `json:"seedId"`
	// Direct holds the seed's direct dependents, sorted.
	Direct []string `json:"directDependents"`
	// Transitive holds dependents reached through Direct, sorted. It never
	// contains the seed or a member of Direct.
	Transitive []string `json:"transitiveDependents"`
	// TotalImpacted counts Direct, Transitive and the seed itself.
	TotalImpacted int `json:"totalImpacted"`
	// Distances maps each impacted artifact to its hop count from the seed.
	Distances map[string]int `json:"distances"`
	// SeedKnown is false when the graph has no node for the seed.
	SeedKnown bool `json:"seedKnown"`
}

// Members returns the seed followed by every impacted artifact.
func (b *BlastRadius) Members() []string {
	out := make([]string, 0, len(b.Direct)+len(b.Transitive)+1)
	out = append(out, b.SeedID)
	out = append(out, b.Direct...)
	out = append(out, b.Transitive...)
	return out
}

// Contains reports whether id is the seed or an impacted artifact.
func (b *BlastRadius) Contains(id string) bool {
	if id == b.SeedID {
		return true
	}
	_, ok := b.Distances[id]
	return ok
}

// Analyzer computes blast radii against a live graph.
type Analyzer struct {
	graph *graph.Graph
}

// NewAnalyzer creates an analyzer over g.
func NewAnalyzer(g *graph.Graph) *Analyzer {
	return &Analyzer{graph: g}
}

// Compute returns the blast radius of seedID under a single graph snapshot.
func (a *Analyzer) Compute(seedID string) *BlastRadius {
	var br *BlastRadius
	a.graph.Read(func(r graph.Reader) {
		br = ComputeIn(r, seedID)
	})
	return br
}

// ComputeIn returns the blast radius of seedID as seen by r.
func ComputeIn(r graph.Reader, seedID string) *BlastRadius {
	br := &BlastRadius{
		SeedID:     seedID,
		Direct:     []string{},
		Transitive: []string{},
		Distances:  make(map[string]int),
		SeedKnown:  r.Has(seedID),
	}

	visited := map[string]bool{seedID: true}
	queue := make([]string, 0)

	for _, dep := range r.DirectDependentsOf(seedID) {
		if visited[dep] {
			continue
		}
		visited[dep] = true
		br.Direct = append(br.Direct, dep)
		br.Distances[dep] = 1
		queue = append(queue, dep)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range r.DirectDependentsOf(cur) {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			br.Transitive = append(br.Transitive, dep)
			br.Distances[dep] = br.Distances[cur] + 1
			queue = append(queue, dep)
		}
	}

	sort.Strings(br.Transitive)
	br.TotalImpacted = len(br.Direct) + len(br.Transitive) + 1
	return br
}
