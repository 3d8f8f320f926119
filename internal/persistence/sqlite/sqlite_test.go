package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite3")

	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	_, err = db.Exec("CREATE TABLE t (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t (k, v) VALUES ('a', 'b')")
	require.NoError(t, err)
}

func TestVerifyIntegrityHealthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite3")

	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE t (k TEXT PRIMARY KEY)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	problems, err := VerifyIntegrity(path, "quick")
	require.NoError(t, err)
	assert.Nil(t, problems)
}
