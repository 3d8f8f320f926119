package packs

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/config"
	"github.com/michaldziwisz/programista-core/internal/fetch"
	"github.com/michaldziwisz/programista-core/internal/fsutil"
	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/metrics"
)

const (
	indexName     = "index.json"
	indexCacheKey = "packs/index_v1"
	indexTTL      = 15 * time.Minute

	// maxEntryBytes caps a single extracted file so a hostile archive
	// cannot fill the disk.
	maxEntryBytes = 64 << 20
)

type packIndex struct {
	Packs map[string]indexEntry `json:"packs"`
}

type indexEntry struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256"`
}

// Result reports one update pass.
type Result struct {
	Updated []guide.Kind
	Checked bool
	Message string
}

// Updater polls the distribution index and installs pack versions that
// differ from the locally active ones.
type Updater struct {
	fetcher *fetch.Client
	store   *Store
	baseURL string
	logger  zerolog.Logger
}

// NewUpdater builds an Updater. An empty baseURL falls back to the default
// distribution endpoint.
func NewUpdater(fetcher *fetch.Client, store *Store, baseURL string) *Updater {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = config.DefaultPacksBaseURL
	}
	return &Updater{
		fetcher: fetcher,
		store:   store,
		baseURL: baseURL,
		logger:  log.WithComponent("packs"),
	}
}

// UpdateIfNeeded fetches the index and installs every pack whose upstream
// version differs from the active one. force bypasses the cached index, not
// the version comparison. Per-kind failures are logged and counted, never
// fatal; only an unreachable or unreadable index is an error.
func (u *Updater) UpdateIfNeeded(ctx context.Context, force bool) (Result, error) {
	body, err := u.fetcher.GetText(ctx, u.indexURL(), fetch.ReqOpt{
		CacheKey: indexCacheKey,
		TTL:      indexTTL,
		Force:    force,
	})
	if err != nil {
		return Result{Message: "Nie udało się pobrać indeksu pakietów."},
			fmt.Errorf("packs: fetch index: %w", err)
	}

	var index packIndex
	if err := json.Unmarshal([]byte(body), &index); err != nil {
		return Result{Message: "Nie udało się odczytać indeksu pakietów."},
			fmt.Errorf("packs: decode index: %w", err)
	}

	var updated []guide.Kind
	failures := 0
	for _, kind := range guide.AllKinds() {
		entry, ok := index.Packs[string(kind)]
		if !ok {
			continue
		}
		installed, err := u.installIfNewer(ctx, kind, entry)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Updated: updated, Checked: true, Message: "Przerwano."}, ctx.Err()
			}
			u.logger.Warn().Err(err).
				Str(log.FieldKind, string(kind)).
				Str(log.FieldEvent, "packs.update_failed").
				Msg("pack update failed")
			metrics.IncPackUpdate(string(kind), "error")
			failures++
			continue
		}
		if installed {
			updated = append(updated, kind)
		}
	}

	return Result{
		Updated: updated,
		Checked: true,
		Message: updateMessage(updated, failures),
	}, nil
}

func (u *Updater) installIfNewer(ctx context.Context, kind guide.Kind, entry indexEntry) (bool, error) {
	if !ValidVersion(entry.Version) {
		return false, fmt.Errorf("packs: index version %q invalid", entry.Version)
	}
	if active, ok := u.store.ActiveVersion(kind); ok && active == entry.Version {
		metrics.IncPackUpdate(string(kind), "current")
		return false, nil
	}

	logger := u.logger.With().
		Str(log.FieldKind, string(kind)).
		Str(log.FieldVersion, entry.Version).
		Logger()
	downloadURL := u.resolveURL(entry.URL)
	logger.Info().
		Str(log.FieldEvent, "packs.update_start").
		Str("url", downloadURL).
		Msg("downloading pack")

	// The archive body is never cached; the index already gates how often
	// downloads happen.
	body, err := u.fetcher.GetText(ctx, downloadURL, fetch.ReqOpt{})
	if err != nil {
		return false, fmt.Errorf("packs: download %s: %w", downloadURL, err)
	}
	blob := []byte(body)

	if err := verifySHA256(blob, entry.SHA256); err != nil {
		return false, err
	}
	if err := extractZip(blob, u.store.PackDir(kind, entry.Version)); err != nil {
		return false, err
	}
	if err := u.store.SetActiveVersion(kind, entry.Version); err != nil {
		return false, err
	}

	metrics.IncPackUpdate(string(kind), "updated")
	logger.Info().
		Str(log.FieldEvent, "packs.update_done").
		Int("bytes", len(blob)).
		Msg("pack installed")
	return true, nil
}

func (u *Updater) indexURL() string {
	return strings.TrimSuffix(u.baseURL, "/") + "/" + indexName
}

// resolveURL joins relative archive references against the base URL and
// passes absolute ones through.
func (u *Updater) resolveURL(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil || parsed.IsAbs() {
		return ref
	}
	base, err := url.Parse(u.baseURL)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func verifySHA256(blob []byte, want string) error {
	sum := sha256.Sum256(blob)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return fmt.Errorf("packs: checksum mismatch: got %s want %s", got, want)
	}
	return nil
}

func extractZip(blob []byte, destDir string) error {
	reader, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return fmt.Errorf("packs: open archive: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("packs: create %s: %w", destDir, err)
	}
	for _, f := range reader.File {
		target, err := fsutil.ConfineRelPath(destDir, f.Name)
		if err != nil {
			return fmt.Errorf("packs: unsafe entry %q: %w", f.Name, err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("packs: create %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return fmt.Errorf("packs: create %s: %w", filepath.Dir(target), err)
		}
		if err := writeZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("packs: open entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("packs: create %s: %w", target, err)
	}

	written, err := io.Copy(out, io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("packs: write %s: %w", target, err)
	}
	if written > maxEntryBytes {
		_ = out.Close()
		return fmt.Errorf("packs: entry %s exceeds %d bytes", f.Name, int64(maxEntryBytes))
	}
	return out.Close()
}

func updateMessage(updated []guide.Kind, failures int) string {
	if len(updated) == 0 {
		if failures > 0 {
			return "Nie udało się zaktualizować pakietów."
		}
		return "Pakiety dostawców są aktualne."
	}
	names := make([]string, 0, len(updated))
	for _, kind := range updated {
		names = append(names, string(kind))
	}
	msg := "Zaktualizowano pakiety: " + strings.Join(names, ", ") + "."
	if failures > 0 {
		msg += " Część pobrań nie powiodła się."
	}
	return msg
}
