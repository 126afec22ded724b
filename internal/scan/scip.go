package scan

import (
	"fmt"
	"os"
	"sort"
	"strings"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"cascade/internal/errors"
)

// LoadSCIP reads a SCIP index and derives the document import graph.
func LoadSCIP(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.InvalidArgument, "SCIP index not found at "+path, err)
		}
		return nil, fmt.Errorf("failed to read SCIP index: %w", err)
	}

	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return nil, errors.New(errors.InvalidArgument, "failed to parse SCIP index "+path, err)
	}
	return FromSCIP(&index), nil
}

// FromSCIP turns documents into artifacts. Document A imports document B
// when A references a global symbol whose definition lives in B. The result
// carries no signals; apply it with a nil index.
func FromSCIP(index *scippb.Index) *Manifest {
	definedIn := make(map[string]string)
	for _, doc := range index.GetDocuments() {
		for _, occ := range doc.GetOccurrences() {
			if isDefinition(occ) && !isLocal(occ.GetSymbol()) {
				definedIn[occ.GetSymbol()] = doc.GetRelativePath()
			}
		}
	}

	m := &Manifest{}
	for _, doc := range index.GetDocuments() {
		path := doc.GetRelativePath()
		imports := make(map[string]struct{})
		for _, occ := range doc.GetOccurrences() {
			sym := occ.GetSymbol()
			if isDefinition(occ) || isLocal(sym) {
				continue
			}
			if target, ok := definedIn[sym]; ok && target != path {
				imports[target] = struct{}{}
			}
		}

		entry := ArtifactEntry{ID: path}
		for imp := range imports {
			entry.Imports = append(entry.Imports, imp)
		}
		sort.Strings(entry.Imports)
		m.Artifacts = append(m.Artifacts, entry)
	}

	sort.Slice(m.Artifacts, func(i, j int) bool {
		return m.Artifacts[i].ID < m.Artifacts[j].ID
	})
	return m
}

func isDefinition(occ *scippb.Occurrence) bool {
	return occ.GetSymbolRoles()&int32(scippb.SymbolRole_Definition) != 0
}

func isLocal(symbol string) bool {
	return symbol == "" || strings.HasPrefix(symbol, "local ")
}
