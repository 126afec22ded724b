package scan

import (
	"path"

	"github.com/bmatcuk/doublestar/v4"

	"cascade/internal/errors"
)

// Ignore drops artifacts whose id matches any glob. A pattern without a
// slash also matches the base name.
type Ignore struct {
	patterns []string
}

// NewIgnore validates the patterns.
func NewIgnore(patterns []string) (*Ignore, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Newf(errors.InvalidArgument, "invalid ignore pattern %q", p)
		}
	}
	return &Ignore{patterns: append([]string(nil), patterns...)}, nil
}

// Match reports whether id is ignored.
func (ig *Ignore) Match(id string) bool {
	if ig == nil {
		return false
	}
	for _, p := range ig.patterns {
		if ok, _ := doublestar.Match(p, id); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, path.Base(id)); ok {
			return true
		}
	}
	return false
}

// Filter returns a copy of m without ignored artifacts. Imports of ignored
// artifacts are dropped too so they never enter the graph.
func (ig *Ignore) Filter(m *Manifest) *Manifest {
	if ig == nil || len(ig.patterns) == 0 {
		return m
	}
	out := &Manifest{Removed: m.Removed}
	for _, a := range m.Artifacts {
		if ig.Match(a.ID) {
			continue
		}
		kept := a
		kept.Imports = nil
		for _, imp := range a.Imports {
			if !ig.Match(imp) {
				kept.Imports = append(kept.Imports, imp)
			}
		}
		out.Artifacts = append(out.Artifacts, kept)
	}
	return out
}
