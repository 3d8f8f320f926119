package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(root, "pack"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pack", "pack.json"), []byte("{}"), 0o600))
	require.NoError(t, os.Symlink("..", filepath.Join(root, "escape")))

	tests := []struct {
		name       string
		entry      string
		wantErr    bool
		wantSuffix string
	}{
		{
			name:       "existing file",
			entry:      "pack/pack.json",
			wantSuffix: filepath.Join("pack", "pack.json"),
		},
		{
			name:       "new file under existing dir",
			entry:      "pack/providers.json",
			wantSuffix: filepath.Join("pack", "providers.json"),
		},
		{
			name:       "new file under missing dirs",
			entry:      "tv/1.2.0/pack.json",
			wantSuffix: filepath.Join("tv", "1.2.0", "pack.json"),
		},
		{
			name:       "dotdot folded away by clean",
			entry:      "pack/../pack/pack.json",
			wantSuffix: filepath.Join("pack", "pack.json"),
		},
		{
			name:    "bare dotdot",
			entry:   "..",
			wantErr: true,
		},
		{
			name:    "leading dotdot",
			entry:   "../outside.txt",
			wantErr: true,
		},
		{
			name:    "absolute path",
			entry:   "/etc/passwd",
			wantErr: true,
		},
		{
			name:    "backslash",
			entry:   `pack\pack.json`,
			wantErr: true,
		},
		{
			name:    "symlink escape",
			entry:   "escape/outside.txt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tt.entry)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(got, tt.wantSuffix), "got %q, want suffix %q", got, tt.wantSuffix)
		})
	}
}

func TestConfineRelPathResolvesSymlinkedRoot(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real")
	require.NoError(t, os.Mkdir(real, 0o750))
	link := filepath.Join(base, "link")
	require.NoError(t, os.Symlink(real, link))

	got, err := ConfineRelPath(link, "pack.json")
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(real)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolved, "pack.json"), got)
}

func TestConfineRelPathMissingRoot(t *testing.T) {
	_, err := ConfineRelPath(filepath.Join(t.TempDir(), "nope"), "pack.json")
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}
