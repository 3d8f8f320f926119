package packs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
)

const activeName = "active.json"

// Store is the on-disk pack layout: <root>/<kind>/<version>/pack.json plus
// payload files, and an active.json pointer per kind. Old versions stay on
// disk until someone cleans them up.
type Store struct {
	root   string
	logger zerolog.Logger
}

// NewStore wraps an existing or to-be-created pack root directory.
func NewStore(root string) *Store {
	return &Store{root: root, logger: log.WithComponent("packs")}
}

// Root returns the pack root directory.
func (s *Store) Root() string { return s.root }

// KindDir returns the directory holding every version of one kind.
func (s *Store) KindDir(kind guide.Kind) string {
	return filepath.Join(s.root, string(kind))
}

// PackDir returns the directory of one pack version.
func (s *Store) PackDir(kind guide.Kind, version string) string {
	return filepath.Join(s.KindDir(kind), version)
}

type activeFile struct {
	Version int    `json:"version"`
	Active  string `json:"active"`
}

// ActiveVersion reads the active pointer for kind. A missing or unreadable
// pointer means no pack is active.
func (s *Store) ActiveVersion(kind guide.Kind) (string, bool) {
	raw, err := os.ReadFile(filepath.Join(s.KindDir(kind), activeName))
	if err != nil {
		return "", false
	}
	var af activeFile
	if err := json.Unmarshal(raw, &af); err != nil {
		s.logger.Warn().Err(err).
			Str(log.FieldKind, string(kind)).
			Str(log.FieldEvent, "packs.pointer_invalid").
			Msg("active pointer is not valid JSON")
		return "", false
	}
	if !ValidVersion(af.Active) {
		return "", false
	}
	return af.Active, true
}

// SetActiveVersion atomically rewrites the active pointer for kind.
func (s *Store) SetActiveVersion(kind guide.Kind, version string) error {
	if !ValidVersion(version) {
		return fmt.Errorf("packs: invalid version %q", version)
	}
	dir := s.KindDir(kind)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("packs: create %s: %w", dir, err)
	}

	payload, err := json.Marshal(activeFile{Version: 1, Active: version})
	if err != nil {
		return fmt.Errorf("packs: encode active pointer: %w", err)
	}
	payload = append(payload, '\n')

	pf, err := renameio.NewPendingFile(filepath.Join(dir, activeName), renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("packs: stage active pointer: %w", err)
	}
	defer func() {
		if err := pf.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Msg("pending file cleanup")
		}
	}()
	if _, err := pf.Write(payload); err != nil {
		return fmt.Errorf("packs: write active pointer: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("packs: replace active pointer: %w", err)
	}
	return nil
}

// InstalledVersions lists the version directories present for kind, sorted
// lexically. A kind that was never installed yields an empty list.
func (s *Store) InstalledVersions(kind guide.Kind) ([]string, error) {
	entries, err := os.ReadDir(s.KindDir(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("packs: list versions: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && ValidVersion(e.Name()) {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

// ReadManifest loads and decodes the manifest of one installed version.
func (s *Store) ReadManifest(kind guide.Kind, version string) (Manifest, error) {
	if !ValidVersion(version) {
		return Manifest{}, fmt.Errorf("packs: invalid version %q", version)
	}
	path := filepath.Join(s.PackDir(kind, version), ManifestName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("packs: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("packs: decode manifest %s: %w", path, err)
	}
	return m, nil
}
