package packs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaldziwisz/programista-core/internal/guide"
)

func loadStaticFixture(t *testing.T, kind guide.Kind) Providers {
	t.Helper()
	store := NewStore(t.TempDir())
	writeStaticPack(t, store, kind, "1.0.0")
	built, err := newStaticPack(context.Background(), "providers.json", Env{
		Kind: kind,
		Dir:  store.PackDir(kind, "1.0.0"),
	})
	require.NoError(t, err)
	return built
}

func TestStaticScheduleServesPackData(t *testing.T) {
	ctx := context.Background()
	built := loadStaticFixture(t, guide.KindTV)
	require.Len(t, built.Schedules, 1)

	p := built.Schedules[0]
	assert.Equal(t, "tele", p.ID())
	assert.Equal(t, "Telemagazyn", p.DisplayName())

	sources, err := p.Sources(ctx, false)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, guide.Source{ProviderID: "tele", ID: "tvp1", Name: "TVP 1"}, sources[0])

	days, err := p.Days(ctx, false)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2026-08-25", days[0].String())

	items, err := p.ScheduleOf(ctx, sources[0], days[0], false)
	require.NoError(t, err)

	// The blank-title row is dropped and the unknown "XX" tag filtered out.
	want := []guide.ScheduleItem{{
		ProviderID:    "tele",
		Source:        sources[0],
		Day:           days[0],
		Start:         "20:00",
		End:           "20:30",
		Title:         "Wiadomości",
		DetailsRef:    "ref-1",
		Accessibility: []string{"AD"},
	}}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Fatalf("schedule mismatch (-want +got):\n%s", diff)
	}
}

func TestStaticScheduleItemDetails(t *testing.T) {
	ctx := context.Background()
	built := loadStaticFixture(t, guide.KindTV)
	p := built.Schedules[0]

	withRef := guide.ScheduleItem{ProviderID: "tele", Title: "Wiadomości", DetailsRef: "ref-1"}
	text, err := p.ItemDetails(ctx, withRef, false)
	require.NoError(t, err)
	assert.Equal(t, "Opis programu.", text)

	summaryOnly := guide.ScheduleItem{ProviderID: "tele", Title: "Film", DetailsSummary: "Krótki opis."}
	text, err = p.ItemDetails(ctx, summaryOnly, false)
	require.NoError(t, err)
	assert.Equal(t, "Krótki opis.", text)

	unknownRef := guide.ScheduleItem{ProviderID: "tele", Title: "Film", DetailsRef: "nope", DetailsSummary: "Zapasowy."}
	text, err = p.ItemDetails(ctx, unknownRef, false)
	require.NoError(t, err)
	assert.Equal(t, "Zapasowy.", text)
}

func TestStaticArchiveServesPackData(t *testing.T) {
	ctx := context.Background()
	built := loadStaticFixture(t, guide.KindArchive)
	require.Len(t, built.Archives, 1)

	p := built.Archives[0]
	assert.Equal(t, "arch", p.ID())
	assert.Equal(t, "Archiwum", p.DisplayName())

	years, err := p.Years(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2001}, years)

	days, err := p.DaysInMonth(ctx, 2001, time.March, false)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2001-03-02", days[0].String())

	sources, err := p.SourcesForDay(ctx, days[0], false)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, guide.Source{ProviderID: "arch", ID: "p1", Name: "Program 1"}, sources[0])

	items, err := p.ScheduleOf(ctx, sources[0], days[0], false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Dziennik", items[0].Title)
	assert.Equal(t, days[0], items[0].Day)

	// Unknown months and days yield empty results, not errors.
	days, err = p.DaysInMonth(ctx, 2001, time.April, false)
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestStaticPackRejectsBadData(t *testing.T) {
	store := NewStore(t.TempDir())
	writeStaticPack(t, store, guide.KindTV, "1.0.0")
	env := Env{Kind: guide.KindTV, Dir: store.PackDir(guide.KindTV, "1.0.0")}
	ctx := context.Background()

	_, err := newStaticPack(ctx, "../providers.json", env)
	assert.Error(t, err, "data file outside the pack dir")

	_, err = newStaticPack(ctx, "missing.json", env)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(env.Dir, "noid.json"), []byte(`{"providers":[{"name":"x"}]}`), 0o600))
	_, err = newStaticPack(ctx, "noid.json", env)
	assert.Error(t, err, "provider without id")

	require.NoError(t, os.WriteFile(filepath.Join(env.Dir, "bad.json"), []byte("{"), 0o600))
	_, err = newStaticPack(ctx, "bad.json", env)
	assert.Error(t, err)
}
