package graph

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// checkSymmetry verifies b in importsOf(a) iff a in importedBy(b).
func checkSymmetry(t *testing.T, g *Graph) {
	t.Helper()
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := 0
	for id, n := range g.nodes {
		for imp := range n.importsOf {
			target, ok := g.nodes[imp]
			if !ok {
				t.Fatalf("%s imports unknown node %s", id, imp)
			}
			if _, ok := target.importedBy[id]; !ok {
				t.Fatalf("%s imports %s but %s.importedBy lacks it", id, imp, imp)
			}
			edges++
		}
		for dep := range n.importedBy {
			importer, ok := g.nodes[dep]
			if !ok {
				t.Fatalf("%s importedBy unknown node %s", id, dep)
			}
			if _, ok := importer.importsOf[id]; !ok {
				t.Fatalf("%s importedBy %s but %s.importsOf lacks it", id, dep, dep)
			}
		}
	}
	if edges != g.edges {
		t.Fatalf("edge counter = %d, actual edges = %d", g.edges, edges)
	}
}

func TestAddOrUpdateArtifact(t *testing.T) {
	g := New()
	g.AddOrUpdateArtifact("a.go", []string{"b.go", "c.go"})
	g.AddOrUpdateArtifact("d.go", []string{"b.go"})

	if diff := cmp.Diff([]string{"a.go", "d.go"}, g.DirectDependentsOf("b.go")); diff != "" {
		t.Errorf("DirectDependentsOf(b.go) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b.go", "c.go"}, g.ImportsOf("a.go")); diff != "" {
		t.Errorf("ImportsOf(a.go) mismatch (-want +got):\n%s", diff)
	}
	if !g.Has("c.go") {
		t.Error("import target c.go should be registered")
	}
	if g.Len() != 4 {
		t.Errorf("Len() = %d, want 4", g.Len())
	}
	checkSymmetry(t, g)

	// Rewriting imports drops stale inverse edges.
	g.AddOrUpdateArtifact("a.go", []string{"c.go"})
	if diff := cmp.Diff([]string{"d.go"}, g.DirectDependentsOf("b.go")); diff != "" {
		t.Errorf("after update DirectDependentsOf(b.go) mismatch (-want +got):\n%s", diff)
	}
	checkSymmetry(t, g)
}

func TestAddOrUpdateArtifact_SelfImport(t *testing.T) {
	g := New()
	g.AddOrUpdateArtifact("a.go", []string{"a.go", "", "b.go", "b.go"})

	if got := g.ImportsOf("a.go"); len(got) != 1 || got[0] != "b.go" {
		t.Errorf("ImportsOf(a.go) = %v, want [b.go]", got)
	}
	if got := g.Stats().Edges; got != 1 {
		t.Errorf("Edges = %d, want 1", got)
	}
	checkSymmetry(t, g)
}

func TestRemoveArtifact(t *testing.T) {
	g := New()
	g.AddOrUpdateArtifact("a.go", []string{"b.go"})
	g.AddOrUpdateArtifact("b.go", []string{"c.go"})

	g.RemoveArtifact("b.go")

	if g.Has("b.go") {
		t.Error("b.go should be gone")
	}
	if got := g.ImportsOf("a.go"); len(got) != 0 {
		t.Errorf("ImportsOf(a.go) = %v, want empty", got)
	}
	if got := g.DirectDependentsOf("c.go"); len(got) != 0 {
		t.Errorf("DirectDependentsOf(c.go) = %v, want empty", got)
	}
	if got := g.Stats().Edges; got != 0 {
		t.Errorf("Edges = %d, want 0", got)
	}
	checkSymmetry(t, g)

	before := g.Version()
	g.RemoveArtifact("missing.go")
	if g.Version() != before {
		t.Error("removing an unknown id should not bump the version")
	}
}

func TestUnknownQueries(t *testing.T) {
	g := New()

	tests := []struct {
		name string
		got  []string
	}{
		{"dependents", g.DirectDependentsOf("nope")},
		{"imports", g.ImportsOf("nope")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got == nil || len(tt.got) != 0 {
				t.Errorf("got %#v, want empty non-nil slice", tt.got)
			}
		})
	}
	if g.FanOut("nope") != 0 {
		t.Error("FanOut of unknown id should be 0")
	}
}

func TestVersionAndStats(t *testing.T) {
	g := New()
	if g.Version() != 0 {
		t.Fatalf("new graph version = %d", g.Version())
	}
	g.AddOrUpdateArtifact("a", []string{"b"})
	g.AddOrUpdateArtifact("c", []string{"b"})
	if g.Version() != 2 {
		t.Errorf("Version() = %d, want 2", g.Version())
	}

	want := Stats{Nodes: 3, Edges: 2, AvgFanOut: 2.0 / 3.0}
	if diff := cmp.Diff(want, g.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, g.Artifacts()); diff != "" {
		t.Errorf("Artifacts() mismatch (-want +got):\n%s", diff)
	}
}

func TestRead(t *testing.T) {
	g := New()
	g.AddOrUpdateArtifact("a", []string{"b"})

	g.Read(func(r Reader) {
		if !r.Has("a") || !r.Has("b") {
			t.Error("view should see both nodes")
		}
		if got := r.DirectDependentsOf("b"); len(got) != 1 || got[0] != "a" {
			t.Errorf("DirectDependentsOf(b) = %v", got)
		}
		if r.Version() != 1 {
			t.Errorf("Version() = %d, want 1", r.Version())
		}
	})
}

func TestVersion_UnchangedImportsKeepVersion(t *testing.T) {
	g := New()
	g.AddOrUpdateArtifact("a", []string{"b", "c"})
	before := g.Version()

	g.AddOrUpdateArtifact("a", []string{"c", "b", "b", "a"})
	g.AddOrUpdateArtifact("b", nil)
	if g.Version() != before {
		t.Errorf("Version() = %d after no-op updates, want %d", g.Version(), before)
	}

	g.AddOrUpdateArtifact("a", []string{"b"})
	if g.Version() != before+1 {
		t.Errorf("Version() = %d after dropping an edge, want %d", g.Version(), before+1)
	}
	g.AddOrUpdateArtifact("d", nil)
	if g.Version() != before+2 {
		t.Errorf("Version() = %d after adding a node, want %d", g.Version(), before+2)
	}
}

func TestRandomMutationsKeepSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := New()
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		if rng.Intn(5) == 0 {
			g.RemoveArtifact(id)
		} else {
			var imports []string
			for _, other := range ids {
				if rng.Intn(3) == 0 {
					imports = append(imports, other)
				}
			}
			g.AddOrUpdateArtifact(id, imports)
		}
		checkSymmetry(t, g)
	}
}

func TestConcurrentAccess(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			g.AddOrUpdateArtifact(string(rune('a'+i)), []string{"root"})
		}(i)
		go func() {
			defer wg.Done()
			_ = g.DirectDependentsOf("root")
		}()
	}
	wg.Wait()

	if got := len(g.DirectDependentsOf("root")); got != 8 {
		t.Errorf("root dependents = %d, want 8", got)
	}
	checkSymmetry(t, g)
}
