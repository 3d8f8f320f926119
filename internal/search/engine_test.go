package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/settings"
)

type fakeHub struct {
	rows   []guide.SearchResult
	err    error
	calls  int
	kinds  []guide.Kind
	cursor int64
}

func (f *fakeHub) Search(_ context.Context, _ string, kinds []guide.Kind, _ int, cursor int64) ([]guide.SearchResult, error) {
	f.calls++
	f.kinds = kinds
	f.cursor = cursor
	return f.rows, f.err
}

type fakeIndex struct {
	rows  []guide.SearchResult
	err   error
	calls int
	kinds []guide.Kind
}

func (f *fakeIndex) Search(_ context.Context, _ string, kinds []guide.Kind, _ int) ([]guide.SearchResult, error) {
	f.calls++
	f.kinds = kinds
	return f.rows, f.err
}

type fakeFilters struct {
	filters settings.SearchKindFilters
}

func (f *fakeFilters) SearchKindFilters() settings.SearchKindFilters {
	return f.filters
}

func allFilters() *fakeFilters {
	return &fakeFilters{filters: settings.DefaultSearchKindFilters()}
}

func row(title string) guide.SearchResult {
	return guide.SearchResult{
		Kind:       guide.KindTV,
		ProviderID: "tele",
		SourceID:   "tvp1",
		SourceName: "TVP 1",
		Title:      title,
	}
}

func TestEngineBlankQueryIsEmpty(t *testing.T) {
	hub := &fakeHub{}
	index := &fakeIndex{}
	engine := New(hub, index, allFilters())

	out := engine.Search(context.Background(), "   ", 10, 0)
	assert.Zero(t, out)
	assert.Equal(t, 0, hub.calls)
	assert.Equal(t, 0, index.calls)
}

func TestEngineServesRemoteResults(t *testing.T) {
	hub := &fakeHub{rows: []guide.SearchResult{row("Wiadomości")}}
	index := &fakeIndex{rows: []guide.SearchResult{row("lokalny")}}
	engine := New(hub, index, allFilters())

	out := engine.Search(context.Background(), "wiado", 10, 41)
	require.NoError(t, out.Err)
	assert.True(t, out.Remote)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Wiadomości", out.Results[0].Title)
	assert.Equal(t, int64(41), hub.cursor)
	assert.Equal(t, 0, index.calls)
}

func TestEngineFallsBackToIndexOnHubError(t *testing.T) {
	hubErr := errors.New("hub down")
	hub := &fakeHub{err: hubErr}
	index := &fakeIndex{rows: []guide.SearchResult{row("lokalny")}}
	engine := New(hub, index, allFilters())

	out := engine.Search(context.Background(), "lok", 10, 0)
	assert.False(t, out.Remote)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "lokalny", out.Results[0].Title)
	assert.ErrorIs(t, out.Err, hubErr)
}

func TestEngineJoinsErrorsWhenBothBackendsFail(t *testing.T) {
	hubErr := errors.New("hub down")
	indexErr := errors.New("index locked")
	engine := New(&fakeHub{err: hubErr}, &fakeIndex{err: indexErr}, allFilters())

	out := engine.Search(context.Background(), "lok", 10, 0)
	assert.Empty(t, out.Results)
	assert.ErrorIs(t, out.Err, hubErr)
	assert.ErrorIs(t, out.Err, indexErr)
}

func TestEngineSkipsFallbackWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	index := &fakeIndex{}
	engine := New(&fakeHub{err: errors.New("hub down")}, index, allFilters())

	out := engine.Search(ctx, "lok", 10, 0)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 0, index.calls)
}

func TestEngineWithoutHubSearchesLocally(t *testing.T) {
	index := &fakeIndex{rows: []guide.SearchResult{row("lokalny")}}
	engine := New(nil, index, allFilters())

	out := engine.Search(context.Background(), "lok", 10, 0)
	require.NoError(t, out.Err)
	assert.False(t, out.Remote)
	assert.Len(t, out.Results, 1)
}

func TestEngineAppliesKindFilters(t *testing.T) {
	hub := &fakeHub{}
	index := &fakeIndex{}
	filters := &fakeFilters{filters: settings.SearchKindFilters{Radio: true}}
	engine := New(hub, index, filters)

	engine.Search(context.Background(), "rano", 10, 0)
	assert.Equal(t, []guide.Kind{guide.KindRadio}, hub.kinds)

	engine.SearchLocal(context.Background(), "rano", 10)
	assert.Equal(t, []guide.Kind{guide.KindRadio}, index.kinds)
}

func TestEngineSearchLocalSkipsHub(t *testing.T) {
	hub := &fakeHub{rows: []guide.SearchResult{row("zdalny")}}
	index := &fakeIndex{rows: []guide.SearchResult{row("lokalny")}}
	engine := New(hub, index, allFilters())

	out := engine.SearchLocal(context.Background(), "lok", 10)
	require.NoError(t, out.Err)
	assert.False(t, out.Remote)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "lokalny", out.Results[0].Title)
	assert.Equal(t, 0, hub.calls)
}
