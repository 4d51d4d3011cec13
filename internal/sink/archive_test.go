package sink

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveBatchesAndFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nanocat.db")
	a, err := OpenArchive(path, "s1", "adb logcat", 2)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Write(rawEntry(0)))
	n, err := a.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n, "below batch size nothing is inserted")

	require.NoError(t, a.Write(rawEntry(1)))
	require.NoError(t, a.Write(rawEntry(2)))
	n, err = a.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, a.Flush())
	n, err = a.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, a.Close())
}

func TestArchiveSessionsShareFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nanocat.db")
	for _, session := range []string{"s1", "s2"} {
		a, err := OpenArchive(path, session, "file", 0)
		require.NoError(t, err)
		e := rawEntry(7)
		e.Highlighted = true
		require.NoError(t, a.Write(e))
		require.NoError(t, a.Flush())
		require.NoError(t, a.Close())
	}

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var sessions, records int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&sessions))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&records))
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 2, records)

	var level, raw string
	var seq int
	var highlighted bool
	require.NoError(t, db.QueryRow(`SELECT seq, level, raw, highlighted FROM records WHERE session = 's2'`).
		Scan(&seq, &level, &raw, &highlighted))
	assert.Equal(t, 1, seq)
	assert.Equal(t, "info", level)
	assert.Equal(t, "I/t: 7", raw)
	assert.True(t, highlighted)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}
