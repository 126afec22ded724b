// Package impact computes the blast radius of regenerating an artifact.
//
// The blast radius of a seed is every artifact that depends on it, directly
// or through a chain of imports. It is computed breadth-first over the
// dependency graph's inverse index:
//
//	g := graph.New()
//	g.AddOrUpdateArtifact("api/handler.go", []string{"core/store.go"})
//	g.AddOrUpdateArtifact("cmd/main.go", []string{"api/handler.go"})
//
//	br := impact.NewAnalyzer(g).Compute("core/store.go")
//	// br.Direct        == [api/handler.go]
//	// br.Transitive    == [cmd/main.go]
//	// br.TotalImpacted == 3
//
// Import cycles are not an error. Every artifact is visited at most once, so
// a cycle that leads back to the seed or to an already visited dependent is
// simply not followed again.
//
// Unknown seeds produce an empty blast radius with TotalImpacted 1; the graph
// is eventually consistent with the scanner and a missing node is not fatal.
// Use ComputeIn to run the analysis against a graph.Reader obtained from
// graph.Graph.Read when several queries must observe the same snapshot.
package impact
