// Package settings persists user preferences and hub credentials in one
// JSON file. The store rewrites the file atomically and preserves keys it
// does not understand, so older and newer app versions can share it.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
)

const (
	keyTVAccessibilityFilters = "tv_accessibility_filters"
	keySearchKindFilters      = "search_kind_filters"
	keyHubInstallID           = "hub_install_id"
	keyHubAPIKey              = "hub_api_key"
)

// TVAccessibilityFilters selects which accessibility features the TV
// accessibility view shows. Everything defaults to enabled.
type TVAccessibilityFilters struct {
	AD bool
	JM bool
	N  bool
}

// DefaultTVAccessibilityFilters enables every feature.
func DefaultTVAccessibilityFilters() TVAccessibilityFilters {
	return TVAccessibilityFilters{AD: true, JM: true, N: true}
}

// SearchKindFilters selects which kinds a search spans. Everything defaults
// to enabled.
type SearchKindFilters struct {
	TV              bool
	Radio           bool
	TVAccessibility bool
	Archive         bool
}

// DefaultSearchKindFilters enables every kind.
func DefaultSearchKindFilters() SearchKindFilters {
	return SearchKindFilters{TV: true, Radio: true, TVAccessibility: true, Archive: true}
}

// EnabledKinds lists the enabled kinds in walk order.
func (f SearchKindFilters) EnabledKinds() []guide.Kind {
	var kinds []guide.Kind
	if f.TV {
		kinds = append(kinds, guide.KindTV)
	}
	if f.TVAccessibility {
		kinds = append(kinds, guide.KindTVAccessibility)
	}
	if f.Radio {
		kinds = append(kinds, guide.KindRadio)
	}
	if f.Archive {
		kinds = append(kinds, guide.KindArchive)
	}
	return kinds
}

// Store is the settings file held in memory. Unreadable or malformed files
// start from defaults; preferences are never worth blocking startup over.
type Store struct {
	path   string
	logger zerolog.Logger

	mu   sync.Mutex
	data map[string]json.RawMessage
}

// Open loads the settings file at path, creating the parent directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("settings: ensure directory: %w", err)
	}
	s := &Store{
		path:   path,
		logger: log.WithComponent("settings"),
		data:   map[string]json.RawMessage{},
	}
	s.load()
	return s, nil
}

// TVAccessibilityFilters returns the stored filters, defaulting each
// missing field to enabled.
func (s *Store) TVAccessibilityFilters() TVAccessibilityFilters {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := DefaultTVAccessibilityFilters()
	raw, ok := s.data[keyTVAccessibilityFilters]
	if !ok {
		return out
	}
	var w struct {
		AD *bool `json:"ad"`
		JM *bool `json:"jm"`
		N  *bool `json:"n"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return out
	}
	if w.AD != nil {
		out.AD = *w.AD
	}
	if w.JM != nil {
		out.JM = *w.JM
	}
	if w.N != nil {
		out.N = *w.N
	}
	return out
}

// SetTVAccessibilityFilters stores the filters and saves the file.
func (s *Store) SetTVAccessibilityFilters(f TVAccessibilityFilters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[keyTVAccessibilityFilters] = mustRaw(struct {
		AD bool `json:"ad"`
		JM bool `json:"jm"`
		N  bool `json:"n"`
	}{f.AD, f.JM, f.N})
	return s.saveLocked()
}

// SearchKindFilters returns the stored filters, defaulting each missing
// field to enabled.
func (s *Store) SearchKindFilters() SearchKindFilters {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := DefaultSearchKindFilters()
	raw, ok := s.data[keySearchKindFilters]
	if !ok {
		return out
	}
	var w struct {
		TV              *bool `json:"tv"`
		Radio           *bool `json:"radio"`
		TVAccessibility *bool `json:"tv_accessibility"`
		Archive         *bool `json:"archive"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return out
	}
	if w.TV != nil {
		out.TV = *w.TV
	}
	if w.Radio != nil {
		out.Radio = *w.Radio
	}
	if w.TVAccessibility != nil {
		out.TVAccessibility = *w.TVAccessibility
	}
	if w.Archive != nil {
		out.Archive = *w.Archive
	}
	return out
}

// SetSearchKindFilters stores the filters and saves the file.
func (s *Store) SetSearchKindFilters(f SearchKindFilters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[keySearchKindFilters] = mustRaw(struct {
		TV              bool `json:"tv"`
		Radio           bool `json:"radio"`
		TVAccessibility bool `json:"tv_accessibility"`
		Archive         bool `json:"archive"`
	}{f.TV, f.Radio, f.TVAccessibility, f.Archive})
	return s.saveLocked()
}

// HubInstallID returns the stable anonymous id this installation registers
// with, minting and persisting one on first use.
func (s *Store) HubInstallID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id := s.stringLocked(keyHubInstallID); id != "" {
		return id, nil
	}
	id := uuid.NewString()
	s.data[keyHubInstallID] = mustRaw(id)
	if err := s.saveLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// HubAPIKey returns the stored key, empty when absent.
func (s *Store) HubAPIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stringLocked(keyHubAPIKey)
}

// SetHubAPIKey stores the key and saves the file.
func (s *Store) SetHubAPIKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[keyHubAPIKey] = mustRaw(key)
	return s.saveLocked()
}

// ClearHubAPIKey removes the stored key, forcing a re-registration on the
// next hub call.
func (s *Store) ClearHubAPIKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[keyHubAPIKey]; !ok {
		return nil
	}
	delete(s.data, keyHubAPIKey)
	return s.saveLocked()
}

func (s *Store) stringLocked(key string) string {
	raw, ok := s.data[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

func (s *Store) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str(log.FieldPath, s.path).
				Str("event", "settings.load_failed").Msg("settings file unreadable, using defaults")
		}
		return
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldPath, s.path).
			Str("event", "settings.load_failed").Msg("settings file malformed, using defaults")
		return
	}
	s.data = data
}

func (s *Store) saveLocked() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.data); err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	pending, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return fmt.Errorf("settings: create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Msg("cleanup pending settings file")
		}
	}()

	if _, err := pending.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("settings: replace %s: %w", s.path, err)
	}
	return nil
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Only reached for unmarshalable types, which the setters never pass.
		panic(err)
	}
	return b
}
