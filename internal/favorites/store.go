package favorites

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
)

// Store holds the favorites file in memory and rewrites it atomically on
// every change. A missing or unreadable file starts an empty store; losing
// favorites to a corrupt file must never block startup.
type Store struct {
	path   string
	logger zerolog.Logger

	mu    sync.Mutex
	byRef map[Ref]Entry
}

type storeFile struct {
	Version   int               `json:"version"`
	Favorites []json.RawMessage `json:"favorites"`
}

type storeEntry struct {
	Kind       string `json:"kind"`
	ProviderID string `json:"provider_id"`
	SourceID   string `json:"source_id"`
	Name       string `json:"name"`
}

// Open loads the favorites file at path.
func Open(path string) *Store {
	s := &Store{
		path:   path,
		logger: log.WithComponent("favorites"),
		byRef:  map[Ref]Entry{},
	}
	s.load()
	return s
}

// Entries returns all favorites ordered by kind, folded name, provider and
// source.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entriesLocked()
}

// Get looks up the stored entry for ref.
func (s *Store) Get(ref Ref) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byRef[ref]
	return e, ok
}

// IsFavorite reports whether ref is pinned.
func (s *Store) IsFavorite(ref Ref) bool {
	_, ok := s.Get(ref)
	return ok
}

// Add pins an entry, replacing a stored name that drifted. The returned
// bool reports whether anything changed; an identical entry is a no-op that
// skips the disk write.
func (s *Store) Add(entry Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.byRef[entry.Ref]; ok && current == entry {
		return false, nil
	}
	s.byRef[entry.Ref] = entry
	if err := s.saveLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// AddSource pins a live source under the given kind.
func (s *Store) AddSource(kind guide.Kind, src guide.Source) (bool, error) {
	return s.Add(Entry{
		Ref:  Ref{Kind: kind, ProviderID: src.ProviderID, SourceID: src.ID},
		Name: src.Name,
	})
}

// Remove unpins ref; false means it was not pinned.
func (s *Store) Remove(ref Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byRef[ref]; !ok {
		return false, nil
	}
	delete(s.byRef, ref)
	if err := s.saveLocked(); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) entriesLocked() []Entry {
	entries := make([]Entry, 0, len(s.byRef))
	for _, e := range s.byRef {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, compareEntries)
	return entries
}

func compareEntries(a, b Entry) int {
	if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
		return c
	}
	if c := strings.Compare(guide.Fold(a.Name), guide.Fold(b.Name)); c != 0 {
		return c
	}
	if c := strings.Compare(a.ProviderID, b.ProviderID); c != 0 {
		return c
	}
	return strings.Compare(a.SourceID, b.SourceID)
}

func (s *Store) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str(log.FieldPath, s.path).
				Str("event", "favorites.load_failed").Msg("favorites file unreadable, starting empty")
		}
		return
	}

	var doc storeFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldPath, s.path).
			Str("event", "favorites.load_failed").Msg("favorites file malformed, starting empty")
		return
	}

	for _, row := range doc.Favorites {
		var se storeEntry
		if err := json.Unmarshal(row, &se); err != nil {
			continue
		}
		if se.Kind != string(guide.KindTV) && se.Kind != string(guide.KindRadio) {
			continue
		}
		pid := strings.TrimSpace(se.ProviderID)
		sid := strings.TrimSpace(se.SourceID)
		name := strings.TrimSpace(se.Name)
		if pid == "" || sid == "" || name == "" {
			continue
		}
		entry := Entry{
			Ref:  Ref{Kind: guide.Kind(se.Kind), ProviderID: pid, SourceID: sid},
			Name: name,
		}
		s.byRef[entry.Ref] = entry
	}
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("favorites: ensure directory: %w", err)
	}

	doc := struct {
		Version   int          `json:"version"`
		Favorites []storeEntry `json:"favorites"`
	}{Version: 1, Favorites: make([]storeEntry, 0, len(s.byRef))}
	for _, e := range s.entriesLocked() {
		doc.Favorites = append(doc.Favorites, storeEntry{
			Kind:       string(e.Kind),
			ProviderID: e.ProviderID,
			SourceID:   e.SourceID,
			Name:       e.Name,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("favorites: encode: %w", err)
	}

	pending, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return fmt.Errorf("favorites: create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Msg("cleanup pending favorites file")
		}
	}()

	if _, err := pending.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("favorites: write: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("favorites: replace %s: %w", s.path, err)
	}
	return nil
}
