package favorites

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaldziwisz/programista-core/internal/guide"
)

func TestEncodeSourceIDIsCompactAndUnescaped(t *testing.T) {
	id := EncodeSourceID(Ref{Kind: guide.KindTV, ProviderID: "tele", SourceID: "a&b<c"})
	assert.Equal(t, `{"k":"tv","p":"tele","s":"a&b<c"}`, id)
}

func TestDecodeSourceID(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  Ref
		ok    bool
	}{
		{
			name:  "compact keys",
			value: `{"k":"radio","p":"pr","s":"trojka"}`,
			want:  Ref{Kind: guide.KindRadio, ProviderID: "pr", SourceID: "trojka"},
			ok:    true,
		},
		{
			name:  "legacy long keys",
			value: `{"kind":"tv","provider_id":"tele","source_id":"tvp1"}`,
			want:  Ref{Kind: guide.KindTV, ProviderID: "tele", SourceID: "tvp1"},
			ok:    true,
		},
		{
			name:  "whitespace trimmed",
			value: `{"k":"tv","p":" tele ","s":" tvp1 "}`,
			want:  Ref{Kind: guide.KindTV, ProviderID: "tele", SourceID: "tvp1"},
			ok:    true,
		},
		{name: "unknown kind", value: `{"k":"archive","p":"a","s":"b"}`},
		{name: "missing source", value: `{"k":"tv","p":"a"}`},
		{name: "blank provider", value: `{"k":"tv","p":"  ","s":"b"}`},
		{name: "not json", value: `tvp1`},
		{name: "not an object", value: `["tv","a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeSourceID(tt.value)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.json")

	s := Open(path)
	assert.Empty(t, s.Entries())

	changed, err := s.AddSource(guide.KindTV, guide.Source{ProviderID: "tele", ID: "tvp1", Name: "TVP 1"})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.AddSource(guide.KindRadio, guide.Source{ProviderID: "pr", ID: "trojka", Name: "Trójka"})
	require.NoError(t, err)
	assert.True(t, changed)

	reopened := Open(path)
	entries := reopened.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Trójka", entries[0].Name)
	assert.Equal(t, "TVP 1", entries[1].Name)
	assert.True(t, reopened.IsFavorite(Ref{Kind: guide.KindTV, ProviderID: "tele", SourceID: "tvp1"}))
}

func TestStoreAddIsIdempotentUntilNameChanges(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "favorites.json"))
	src := guide.Source{ProviderID: "tele", ID: "tvp1", Name: "TVP 1"}

	changed, err := s.AddSource(guide.KindTV, src)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.AddSource(guide.KindTV, src)
	require.NoError(t, err)
	assert.False(t, changed, "identical entry is a no-op")

	src.Name = "TVP 1 HD"
	changed, err = s.AddSource(guide.KindTV, src)
	require.NoError(t, err)
	assert.True(t, changed, "a renamed source updates the stored name")

	entry, ok := s.Get(Ref{Kind: guide.KindTV, ProviderID: "tele", SourceID: "tvp1"})
	require.True(t, ok)
	assert.Equal(t, "TVP 1 HD", entry.Name)
}

func TestStoreRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.json")
	s := Open(path)
	ref := Ref{Kind: guide.KindTV, ProviderID: "tele", SourceID: "tvp1"}

	removed, err := s.Remove(ref)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.Add(Entry{Ref: ref, Name: "TVP 1"})
	require.NoError(t, err)

	removed, err = s.Remove(ref)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, Open(path).IsFavorite(ref))
}

func TestStoreSortsEntries(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "favorites.json"))
	for _, e := range []Entry{
		{Ref: Ref{Kind: guide.KindTV, ProviderID: "b", SourceID: "1"}, Name: "zulu"},
		{Ref: Ref{Kind: guide.KindRadio, ProviderID: "a", SourceID: "2"}, Name: "Alfa"},
		{Ref: Ref{Kind: guide.KindTV, ProviderID: "a", SourceID: "3"}, Name: "Echo"},
		{Ref: Ref{Kind: guide.KindTV, ProviderID: "a", SourceID: "4"}, Name: "echo"},
	} {
		_, err := s.Add(e)
		require.NoError(t, err)
	}

	var names []string
	for _, e := range s.Entries() {
		names = append(names, string(e.Kind)+":"+e.Name)
	}
	assert.Equal(t, []string{"radio:Alfa", "tv:Echo", "tv:echo", "tv:zulu"}, names)
}

func TestStoreStartsEmptyOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	assert.Empty(t, Open(path).Entries())
}

func TestStoreSkipsInvalidRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.json")
	blob := `{"version":1,"favorites":[
		{"kind":"tv","provider_id":"tele","source_id":"tvp1","name":"TVP 1"},
		{"kind":"archive","provider_id":"x","source_id":"y","name":"Old"},
		{"kind":"tv","provider_id":"  ","source_id":"y","name":"Blank"},
		"garbage",
		{"kind":"radio","provider_id":"pr","source_id":"","name":"NoSource"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	entries := Open(path).Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "TVP 1", entries[0].Name)
}

func TestStoreFileShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.json")
	s := Open(path)
	_, err := s.Add(Entry{
		Ref:  Ref{Kind: guide.KindTV, ProviderID: "tele", SourceID: "tvp1"},
		Name: "Jedynka & Co",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	want := `{
  "version": 1,
  "favorites": [
    {
      "kind": "tv",
      "provider_id": "tele",
      "source_id": "tvp1",
      "name": "Jedynka & Co"
    }
  ]
}
`
	assert.Equal(t, want, string(raw))
}
