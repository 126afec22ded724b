// Package scan feeds scanner output into the dependency graph and the
// weakness index. Each scanned artifact fully replaces its previous state.
package scan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"cascade/internal/errors"
	"cascade/internal/weakness"
)

// Format is a manifest encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Manifest is one scanner run.
type Manifest struct {
	Artifacts []ArtifactEntry `json:"artifacts" yaml:"artifacts" toml:"artifacts"`
	// Removed lists artifacts deleted since the previous scan.
	Removed []string `json:"removed,omitempty" yaml:"removed,omitempty" toml:"removed,omitempty"`
}

// ArtifactEntry describes one artifact as of this scan.
type ArtifactEntry struct {
	ID      string        `json:"id" yaml:"id" toml:"id"`
	Imports []string      `json:"imports,omitempty" yaml:"imports,omitempty" toml:"imports,omitempty"`
	Signals []SignalEntry `json:"signals,omitempty" yaml:"signals,omitempty" toml:"signals,omitempty"`
}

// SignalEntry is the encoding-neutral form of a weakness signal.
type SignalEntry struct {
	Type     string                 `json:"type" yaml:"type" toml:"type"`
	Severity float64                `json:"severity" yaml:"severity" toml:"severity"`
	Evidence map[string]interface{} `json:"evidence,omitempty" yaml:"evidence,omitempty" toml:"evidence,omitempty"`
}

// Signal converts the entry into a validated weakness signal.
func (e SignalEntry) Signal() (weakness.Signal, error) {
	t := weakness.Type(e.Type)
	if !t.Valid() {
		return weakness.Signal{}, fmt.Errorf("unknown weakness type %q", e.Type)
	}
	ev, err := weakness.EvidenceFromMap(t, e.Evidence)
	if err != nil {
		return weakness.Signal{}, err
	}
	return weakness.NewSignal(t, e.Severity, ev)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", errors.Newf(errors.InvalidArgument, "unsupported manifest extension %q", filepath.Ext(path))
}

// FormatFromContentType picks the format from an HTTP Content-Type. Anything
// unrecognised is treated as JSON.
func FormatFromContentType(ct string) Format {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "yaml"):
		return FormatYAML
	case strings.Contains(ct, "toml"):
		return FormatTOML
	}
	return FormatJSON
}

// Parse decodes a manifest. Unknown fields are rejected in every format.
func Parse(r io.Reader, format Format) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&m)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&m)
		if err == io.EOF {
			err = nil
		}
	case FormatTOML:
		var md toml.MetaData
		md, err = toml.Decode(string(data), &m)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown keys: %v", undecoded)
			}
		}
	default:
		return nil, errors.Newf(errors.InvalidArgument, "unsupported manifest format %q", format)
	}
	if err != nil {
		return nil, errors.New(errors.InvalidArgument, fmt.Sprintf("invalid %s manifest", format), err)
	}
	return &m, nil
}

// LoadFile reads a manifest, choosing the format from the extension.
func LoadFile(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f, format)
}
