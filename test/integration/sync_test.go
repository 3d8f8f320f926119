//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaldziwisz/programista-core/internal/fetch"
	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/kvcache"
	"github.com/michaldziwisz/programista-core/internal/packs"
	"github.com/michaldziwisz/programista-core/internal/prefetch"
	"github.com/michaldziwisz/programista-core/internal/schedcache"
	"github.com/michaldziwisz/programista-core/internal/searchindex"
)

const tvPackData = `{
  "providers": [
    {
      "id": "teletydzien",
      "name": "Teletydzień",
      "sources": [
        {"id": "tvp1", "name": "TVP 1"},
        {"id": "tvp2", "name": "TVP 2"}
      ],
      "days": ["2026-03-14", "2026-03-15"],
      "schedules": {
        "tvp1": {
          "2026-03-14": [
            {"start": "20:00", "end": "20:30", "title": "Wiadomości", "accessibility": ["AD"]},
            {"start": "20:35", "end": "22:00", "title": "Teatr Telewizji", "details_ref": "tt-1"}
          ]
        },
        "tvp2": {
          "2026-03-15": [
            {"start": "18:00", "end": "19:00", "title": "Panorama"}
          ]
        }
      },
      "details": {"tt-1": "Spektakl na podstawie dramatu."}
    }
  ]
}`

const archivePackData = `{
  "archives": [
    {
      "id": "archiwum-prl",
      "name": "Archiwum PRL",
      "years": [1987],
      "days": {"1987-06": ["1987-06-01"]},
      "sources": {"1987-06-01": [{"id": "pr1", "name": "Program I"}]},
      "schedules": {
        "pr1": {
          "1987-06-01": [
            {"start": "19:00", "title": "Teleranek"},
            {"start": "19:30", "title": "Dziennik Telewizyjny"}
          ]
        }
      }
    }
  ]
}`

// radioPackData pins the radio schedule to the given day; the radio stage
// only walks today and later.
func radioPackData(day guide.Day) string {
	return fmt.Sprintf(`{
  "providers": [
    {
      "id": "polskieradio",
      "name": "Polskie Radio",
      "sources": [{"id": "pr3", "name": "Trójka"}],
      "days": ["%s"],
      "schedules": {
        "pr3": {
          "%s": [
            {"start": "10:00", "end": "12:00", "title": "Lista przebojów"}
          ]
        }
      }
    }
  ]
}`, day, day)
}

// installStaticPack lays one pack version on disk and points the active
// pointer at it: manifest, data file, active.json.
func installStaticPack(t *testing.T, store *packs.Store, kind guide.Kind, version, data string) {
	t.Helper()
	dir := store.PackDir(kind, version)
	require.NoError(t, os.MkdirAll(dir, 0o750))

	manifest := fmt.Sprintf(
		`{"schema":1,"kind":%q,"version":%q,"package":"test-pack","entrypoint":"static:providers.json","provider_api_version":1}`,
		kind, version,
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, packs.ManifestName), []byte(manifest), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "providers.json"), []byte(data), 0o600))
	require.NoError(t, store.SetActiveVersion(kind, version))
}

type syncEnv struct {
	kv    *kvcache.Store
	index *searchindex.Index
	store *packs.Store
	svc   *packs.Service
}

func newSyncEnv(t *testing.T) *syncEnv {
	t.Helper()
	dataDir := t.TempDir()
	cacheDir := t.TempDir()

	kv, err := kvcache.Open(filepath.Join(cacheDir, "cache.sqlite3"), kvcache.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	index, err := searchindex.Open(filepath.Join(cacheDir, "search.sqlite3"), searchindex.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	store := packs.NewStore(filepath.Join(dataDir, "providers"))
	fetcher := fetch.New(fetch.Options{Cache: kv})

	return &syncEnv{
		kv:    kv,
		index: index,
		store: store,
		svc:   packs.NewService(store, fetcher, "", packs.Fallbacks{}),
	}
}

// runFullSync wires the cached wrappers over the live provider roots and
// walks everything synchronously, returning the streamed updates.
func runFullSync(ctx context.Context, env *syncEnv) []prefetch.Update {
	tv := schedcache.NewCachedSchedule(env.svc.Schedule(guide.KindTV), env.kv, guide.KindTV, time.Hour)
	tvA11y := schedcache.NewCachedSchedule(env.svc.Schedule(guide.KindTVAccessibility), env.kv, guide.KindTVAccessibility, time.Hour)
	radio := schedcache.NewCachedSchedule(env.svc.Schedule(guide.KindRadio), env.kv, guide.KindRadio, time.Hour)
	archive := schedcache.NewCachedArchive(env.svc.Archive(), env.kv, time.Hour)

	orch := prefetch.New(prefetch.Providers{
		TV:              tv,
		TVAccessibility: tvA11y,
		Radio:           radio,
		Archive:         archive,
	}, env.index)

	var updates []prefetch.Update
	orch.Run(ctx, func(u prefetch.Update) { updates = append(updates, u) })
	return updates
}

func TestFullSyncOverInstalledPacks(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	installStaticPack(t, env.store, guide.KindTV, "1.0.0", tvPackData)
	installStaticPack(t, env.store, guide.KindRadio, "1.0.0", radioPackData(guide.Today()))
	installStaticPack(t, env.store, guide.KindArchive, "1.0.0", archivePackData)

	require.NoError(t, env.svc.LoadInstalled(ctx))

	updates := runFullSync(ctx, env)
	require.NotEmpty(t, updates)

	last := updates[len(updates)-1]
	assert.True(t, last.Finished)
	assert.False(t, last.Cancelled)
	assert.Equal(t, "Gotowe.", last.Message)
	assert.Zero(t, last.Errors)

	// Index lookups fold case and diacritics-preserving comparisons alike.
	results, err := env.index.Search(ctx, "WIADOMOŚCI", nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, guide.KindTV, results[0].Kind)
	assert.Equal(t, "TVP 1", results[0].SourceName)
	assert.Equal(t, "20:00", results[0].Start)
	assert.Equal(t, []string{guide.FeatureAudioDescription}, results[0].Accessibility)

	results, err = env.index.Search(ctx, "lista przebojów", nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, guide.KindRadio, results[0].Kind)
	assert.Equal(t, guide.Today(), results[0].Day)

	results, err = env.index.Search(ctx, "teleranek", []guide.Kind{guide.KindArchive}, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "archiwum-prl", results[0].ProviderID)
	assert.Equal(t, "Program I", results[0].SourceName)

	// Kind restriction keeps archive rows out of schedule queries.
	results, err = env.index.Search(ctx, "teleranek", []guide.Kind{guide.KindTV}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Fetched schedules land durably under their canonical cache keys.
	_, ok := env.kv.GetText(ctx, "schedule:v1:tv:teletydzien:tvp1:2026-03-14")
	assert.True(t, ok)
	_, ok = env.kv.GetText(ctx, "schedule:v1:archive:archiwum-prl:pr1:1987-06-01")
	assert.True(t, ok)

	// A second walk refreshes rows in place; nothing duplicates.
	updates = runFullSync(ctx, env)
	last = updates[len(updates)-1]
	assert.True(t, last.Finished)
	assert.Zero(t, last.Errors)

	results, err = env.index.Search(ctx, "wiadomości", nil, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestPackUpgradeReachesHeldHandles(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	installStaticPack(t, env.store, guide.KindTV, "1.0.0", tvPackData)
	require.NoError(t, env.svc.LoadInstalled(ctx))

	// Handles wrapped before the upgrade keep working after it.
	tv := schedcache.NewCachedSchedule(env.svc.Schedule(guide.KindTV), env.kv, guide.KindTV, time.Hour)
	orch := prefetch.New(prefetch.Providers{
		TV:              tv,
		TVAccessibility: env.svc.Schedule(guide.KindTVAccessibility),
		Radio:           env.svc.Schedule(guide.KindRadio),
		Archive:         env.svc.Archive(),
	}, env.index)
	orch.Run(ctx, nil)

	results, err := env.index.Search(ctx, "kabaret", nil, 0)
	require.NoError(t, err)
	require.Empty(t, results)

	upgraded := `{
  "providers": [
    {
      "id": "teletydzien",
      "name": "Teletydzień",
      "sources": [{"id": "tvp1", "name": "TVP 1"}],
      "days": ["2026-03-16"],
      "schedules": {
        "tvp1": {
          "2026-03-16": [
            {"start": "21:00", "end": "22:30", "title": "Kabaret na żywo"}
          ]
        }
      }
    }
  ]
}`
	installStaticPack(t, env.store, guide.KindTV, "2.0.0", upgraded)
	require.NoError(t, env.svc.LoadInstalled(ctx))

	active, ok := env.store.ActiveVersion(guide.KindTV)
	require.True(t, ok)
	assert.Equal(t, "2.0.0", active)

	// The same orchestrator sees the new pack through the held handle.
	orch.Run(ctx, nil)

	results, err = env.index.Search(ctx, "kabaret", nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, guide.NewDay(2026, 3, 16), results[0].Day)

	// Rows from the previous pack stay until pruned.
	results, err = env.index.Search(ctx, "wiadomości", nil, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
