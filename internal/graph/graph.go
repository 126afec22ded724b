// Package graph maintains the artifact import graph that impact analysis runs on.
package graph

import (
	"sort"
	"sync"
)

// Reader is a read-only view of the dependency graph.
type Reader interface {
	// DirectDependentsOf returns the artifacts importing id, sorted.
	// Unknown ids yield an empty result.
	DirectDependentsOf(id string) []string
	// ImportsOf returns the artifacts id imports, sorted.
	ImportsOf(id string) []string
	Has(id string) bool
	Version() uint64
}

// Stats summarizes the graph shape.
type Stats struct {
	Nodes     int     `json:"nodes"`
	Edges     int     `json:"edges"`
	AvgFanOut float64 `json:"avgFanOut"`
}

type node struct {
	importsOf  map[string]struct{}
	importedBy map[string]struct{}
}

func newNode() *node {
	return &node{
		importsOf:  make(map[string]struct{}),
		importedBy: make(map[string]struct{}),
	}
}

// Graph is a directed graph of artifact imports with an inverse index.
// Edges are kept symmetric: b in importsOf(a) iff a in importedBy(b).
type Graph struct {
	mu      sync.RWMutex
	nodes   map[string]*node
	edges   int
	version uint64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddOrUpdateArtifact replaces the imports of id. Imported artifacts that are
// not yet known are registered without imports of their own. Self-imports are
// ignored. The version only moves when a node or edge changed.
func (g *Graph) AddOrUpdateArtifact(id string, imports []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, known := g.nodes[id]
	changed := !known
	n := g.ensure(id)

	next := make(map[string]struct{}, len(imports))
	for _, imp := range imports {
		if imp == "" || imp == id {
			continue
		}
		next[imp] = struct{}{}
	}

	for old := range n.importsOf {
		if _, keep := next[old]; keep {
			continue
		}
		delete(n.importsOf, old)
		if target, ok := g.nodes[old]; ok {
			delete(target.importedBy, id)
		}
		g.edges--
		changed = true
	}
	for imp := range next {
		if _, had := n.importsOf[imp]; had {
			continue
		}
		n.importsOf[imp] = struct{}{}
		g.ensure(imp).importedBy[id] = struct{}{}
		g.edges++
		changed = true
	}

	if changed {
		g.version++
	}
}

// RemoveArtifact deletes id and every edge touching it. Removing an unknown id
// is a no-op.
func (g *Graph) RemoveArtifact(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return
	}
	for imp := range n.importsOf {
		if target, ok := g.nodes[imp]; ok {
			delete(target.importedBy, id)
		}
		g.edges--
	}
	for dep := range n.importedBy {
		if importer, ok := g.nodes[dep]; ok {
			delete(importer.importsOf, id)
		}
		g.edges--
	}
	delete(g.nodes, id)
	g.version++
}

// DirectDependentsOf returns the artifacts that import id.
func (g *Graph) DirectDependentsOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return view{g}.DirectDependentsOf(id)
}

// ImportsOf returns the artifacts imported by id.
func (g *Graph) ImportsOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return view{g}.ImportsOf(id)
}

// Has reports whether id is a known artifact.
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return view{g}.Has(id)
}

// FanOut returns the number of direct dependents of id.
func (g *Graph) FanOut(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[id]; ok {
		return len(n.importedBy)
	}
	return 0
}

// Len returns the number of artifacts.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Version returns a counter incremented on every change to nodes or edges.
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// Stats returns node and edge counts.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{Nodes: len(g.nodes), Edges: g.edges}
	if s.Nodes > 0 {
		s.AvgFanOut = float64(s.Edges) / float64(s.Nodes)
	}
	return s
}

// Artifacts returns every artifact id, sorted.
func (g *Graph) Artifacts() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Read runs fn against a consistent view of the graph. Writers are blocked
// until fn returns, so fn must not call mutating methods.
func (g *Graph) Read(fn func(Reader)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(view{g})
}

func (g *Graph) ensure(id string) *node {
	n, ok := g.nodes[id]
	if !ok {
		n = newNode()
		g.nodes[id] = n
	}
	return n
}

// view reads the graph without locking; callers hold g.mu.
type view struct {
	g *Graph
}

func (v view) DirectDependentsOf(id string) []string {
	if n, ok := v.g.nodes[id]; ok {
		return sortedKeys(n.importedBy)
	}
	return []string{}
}

func (v view) ImportsOf(id string) []string {
	if n, ok := v.g.nodes[id]; ok {
		return sortedKeys(n.importsOf)
	}
	return []string{}
}

func (v view) Has(id string) bool {
	_, ok := v.g.nodes[id]
	return ok
}

func (v view) Version() uint64 {
	return v.g.version
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
