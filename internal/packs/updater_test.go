package packs

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaldziwisz/programista-core/internal/fetch"
	"github.com/michaldziwisz/programista-core/internal/guide"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string]string)} }

func (k *fakeKV) GetText(_ context.Context, key string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	return v, ok
}

func (k *fakeKV) SetText(_ context.Context, key, value string, _ time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = value
	return nil
}

func newTestFetcher(srv *httptest.Server, kv fetch.KV) *fetch.Client {
	return fetch.New(fetch.Options{
		MinInterval: time.Millisecond,
		Backoff:     time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
		Cache:       kv,
		HTTPClient:  srv.Client(),
	})
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func tvPackZip(t *testing.T, version string) []byte {
	t.Helper()
	manifest := fmt.Sprintf(
		`{"schema":1,"kind":"tv","version":%q,"package":"pack","entrypoint":"static:providers.json","provider_api_version":1}`,
		version)
	return buildZip(t, map[string]string{
		ManifestName:     manifest,
		"providers.json": staticProvidersJSON(guide.KindTV),
	})
}

// packServer serves an index naming one tv pack plus its archive.
func packServer(t *testing.T, version string, archive []byte, indexHits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, _ *http.Request) {
		if indexHits != nil {
			indexHits.Add(1)
		}
		fmt.Fprintf(w, `{"packs":{"tv":{"version":%q,"url":"pack.zip","sha256":%q}}}`,
			version, sha256Hex(archive))
	})
	mux.HandleFunc("/pack.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestUpdaterInstallsNewPack(t *testing.T) {
	store := NewStore(t.TempDir())
	archive := tvPackZip(t, "1.0.0")
	srv := packServer(t, "1.0.0", archive, nil)
	updater := NewUpdater(newTestFetcher(srv, newFakeKV()), store, srv.URL)

	result, err := updater.UpdateIfNeeded(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, result.Checked)
	assert.Equal(t, []guide.Kind{guide.KindTV}, result.Updated)
	assert.Equal(t, "Zaktualizowano pakiety: tv.", result.Message)

	active, ok := store.ActiveVersion(guide.KindTV)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", active)

	m, err := store.ReadManifest(guide.KindTV, "1.0.0")
	require.NoError(t, err)
	require.NoError(t, m.Validate(guide.KindTV))
	assert.FileExists(t, filepath.Join(store.PackDir(guide.KindTV, "1.0.0"), "providers.json"))
}

func TestUpdaterSkipsCurrentVersion(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.SetActiveVersion(guide.KindTV, "1.0.0"))
	archive := tvPackZip(t, "1.0.0")
	srv := packServer(t, "1.0.0", archive, nil)
	updater := NewUpdater(newTestFetcher(srv, newFakeKV()), store, srv.URL)

	result, err := updater.UpdateIfNeeded(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, result.Checked)
	assert.Empty(t, result.Updated)
	assert.Equal(t, "Pakiety dostawców są aktualne.", result.Message)
}

func TestUpdaterCachesIndex(t *testing.T) {
	store := NewStore(t.TempDir())
	archive := tvPackZip(t, "1.0.0")
	var indexHits atomic.Int32
	srv := packServer(t, "1.0.0", archive, &indexHits)
	updater := NewUpdater(newTestFetcher(srv, newFakeKV()), store, srv.URL)
	ctx := context.Background()

	_, err := updater.UpdateIfNeeded(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), indexHits.Load())

	_, err = updater.UpdateIfNeeded(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), indexHits.Load(), "second check must hit the cached index")

	_, err = updater.UpdateIfNeeded(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), indexHits.Load(), "force must bypass the cached index")
}

func TestUpdaterRejectsChecksumMismatch(t *testing.T) {
	store := NewStore(t.TempDir())
	archive := tvPackZip(t, "1.0.0")

	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"packs":{"tv":{"version":"1.0.0","url":"pack.zip","sha256":"deadbeef"}}}`)
	})
	mux.HandleFunc("/pack.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	updater := NewUpdater(newTestFetcher(srv, newFakeKV()), store, srv.URL)
	result, err := updater.UpdateIfNeeded(context.Background(), false)
	require.NoError(t, err, "per-kind failures are not fatal")
	assert.Empty(t, result.Updated)
	assert.Equal(t, "Nie udało się zaktualizować pakietów.", result.Message)

	_, ok := store.ActiveVersion(guide.KindTV)
	assert.False(t, ok, "a rejected pack must not become active")
}

func TestUpdaterRejectsZipSlip(t *testing.T) {
	store := NewStore(t.TempDir())
	archive := buildZip(t, map[string]string{"../evil.txt": "boom"})
	srv := packServer(t, "1.0.0", archive, nil)
	updater := NewUpdater(newTestFetcher(srv, newFakeKV()), store, srv.URL)

	result, err := updater.UpdateIfNeeded(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, result.Updated)

	assert.NoFileExists(t, filepath.Join(store.KindDir(guide.KindTV), "evil.txt"))
	assert.NoFileExists(t, filepath.Join(store.Root(), "evil.txt"))
	_, ok := store.ActiveVersion(guide.KindTV)
	assert.False(t, ok)
}

func TestUpdaterIndexFailures(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)

		updater := NewUpdater(newTestFetcher(srv, newFakeKV()), NewStore(t.TempDir()), srv.URL)
		result, err := updater.UpdateIfNeeded(context.Background(), false)
		require.Error(t, err)
		assert.False(t, result.Checked)
		assert.Equal(t, "Nie udało się pobrać indeksu pakietów.", result.Message)
	})

	t.Run("malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		t.Cleanup(srv.Close)

		updater := NewUpdater(newTestFetcher(srv, newFakeKV()), NewStore(t.TempDir()), srv.URL)
		result, err := updater.UpdateIfNeeded(context.Background(), false)
		require.Error(t, err)
		assert.False(t, result.Checked)
		assert.Equal(t, "Nie udało się odczytać indeksu pakietów.", result.Message)
	})
}

func TestUpdaterKeepsOldVersions(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.PackDir(guide.KindTV, "0.9.0"), 0o750))
	require.NoError(t, store.SetActiveVersion(guide.KindTV, "0.9.0"))

	archive := tvPackZip(t, "1.0.0")
	srv := packServer(t, "1.0.0", archive, nil)
	updater := NewUpdater(newTestFetcher(srv, newFakeKV()), store, srv.URL)

	result, err := updater.UpdateIfNeeded(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []guide.Kind{guide.KindTV}, result.Updated)

	versions, err := store.InstalledVersions(guide.KindTV)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.9.0", "1.0.0"}, versions)

	active, ok := store.ActiveVersion(guide.KindTV)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", active)
}
