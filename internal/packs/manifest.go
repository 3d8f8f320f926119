// Package packs manages versioned provider packs on disk: manifests, the
// per-kind active pointer, loading packs through engine factories, and
// pulling updates from the distribution index.
package packs

import (
	"fmt"
	"strings"

	"github.com/michaldziwisz/programista-core/internal/guide"
)

const (
	// ManifestName is the manifest file inside every pack version directory.
	ManifestName = "pack.json"
	// SupportedSchema is the only manifest schema this build understands.
	SupportedSchema = 1
	// SupportedProviderAPI is the provider API version this build implements.
	SupportedProviderAPI = 1
)

// Manifest describes one installed pack version.
type Manifest struct {
	Schema             int        `json:"schema"`
	Kind               guide.Kind `json:"kind"`
	Version            string     `json:"version"`
	Package            string     `json:"package"`
	Entrypoint         string     `json:"entrypoint"`
	ProviderAPIVersion int        `json:"provider_api_version"`
}

// Engine splits the entrypoint into its engine name and constructor
// argument. Both halves must be non-empty.
func (m Manifest) Engine() (engine, constructor string, ok bool) {
	engine, constructor, ok = strings.Cut(m.Entrypoint, ":")
	if !ok || engine == "" || constructor == "" {
		return "", "", false
	}
	return engine, constructor, true
}

// Validate checks the manifest against the expected kind and this build's
// supported schema and provider API.
func (m Manifest) Validate(kind guide.Kind) error {
	if m.Schema != SupportedSchema {
		return fmt.Errorf("packs: unsupported schema %d", m.Schema)
	}
	if m.Kind != kind {
		return fmt.Errorf("packs: manifest kind %q does not match %q", m.Kind, kind)
	}
	if !ValidVersion(m.Version) {
		return fmt.Errorf("packs: invalid version %q", m.Version)
	}
	if _, _, ok := m.Engine(); !ok {
		return fmt.Errorf("packs: malformed entrypoint %q", m.Entrypoint)
	}
	if m.ProviderAPIVersion != SupportedProviderAPI {
		return fmt.Errorf("packs: provider api version %d not supported", m.ProviderAPIVersion)
	}
	return nil
}

// ValidVersion reports whether v is usable as a single path element under
// the pack root. Versions come from remote indexes, so anything that could
// navigate the filesystem is rejected.
func ValidVersion(v string) bool {
	if v == "" || v == "." || v == ".." {
		return false
	}
	return !strings.ContainsAny(v, `/\`)
}
