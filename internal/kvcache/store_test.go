package kvcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, now *time.Time) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.sqlite3"), Options{
		Now: func() time.Time { return *now },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetWithinTTL(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)
	ctx := context.Background()

	require.NoError(t, s.SetText(ctx, "k", "v", time.Minute))

	got, ok := s.GetText(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	// At expiry the read must miss.
	now = now.Add(time.Minute)
	_, ok = s.GetText(ctx, "k")
	assert.False(t, ok)

	// The expired row was removed opportunistically.
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSetOverwrites(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)
	ctx := context.Background()

	require.NoError(t, s.SetText(ctx, "k", "first", time.Minute))
	require.NoError(t, s.SetText(ctx, "k", "second", time.Minute))

	got, ok := s.GetText(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestNonPositiveTTLRemoves(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)
	ctx := context.Background()

	require.NoError(t, s.SetText(ctx, "k", "v", time.Minute))
	require.NoError(t, s.SetText(ctx, "k", "v", 0))

	_, ok := s.GetText(ctx, "k")
	assert.False(t, ok)
}

func TestGetMissingKey(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)

	_, ok := s.GetText(context.Background(), "absent")
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	require.NoError(t, s.SetJSON(ctx, "j", payload{Name: "x", N: 3}, time.Minute))

	var got payload
	require.True(t, s.GetJSON(ctx, "j", &got))
	assert.Equal(t, payload{Name: "x", N: 3}, got)
}

func TestGetJSONInvalidIsMiss(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)
	ctx := context.Background()

	require.NoError(t, s.SetText(ctx, "j", "{not json", time.Minute))

	var got map[string]any
	assert.False(t, s.GetJSON(ctx, "j", &got))
}

func TestPruneExpired(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)
	ctx := context.Background()

	require.NoError(t, s.SetText(ctx, "short", "v", time.Minute))
	require.NoError(t, s.SetText(ctx, "long", "v", time.Hour))

	now = now.Add(2 * time.Minute)
	n, err := s.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok := s.GetText(ctx, "long")
	assert.True(t, ok)
}

func TestClearPreservesSchema(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, &now)
	ctx := context.Background()

	require.NoError(t, s.SetText(ctx, "k", "v", time.Minute))
	require.NoError(t, s.Clear(ctx))

	_, ok := s.GetText(ctx, "k")
	assert.False(t, ok)

	// Still writable after clear.
	require.NoError(t, s.SetText(ctx, "k2", "v2", time.Minute))
	got, ok := s.GetText(ctx, "k2")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestPruneOnOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.sqlite3")
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	s, err := Open(path, Options{Now: func() time.Time { return now }})
	require.NoError(t, err)
	require.NoError(t, s.SetText(context.Background(), "k", "v", time.Minute))
	require.NoError(t, s.Close())

	later := now.Add(time.Hour)
	s2, err := Open(path, Options{Now: func() time.Time { return later }})
	require.NoError(t, err)
	defer s2.Close()

	var count int
	require.NoError(t, s2.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count))
	assert.Equal(t, 0, count)
}
