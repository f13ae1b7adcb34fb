package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemoryAndMigrate(t *testing.T) {
	db, err := Open(Config{Path: "file:dbtest_memory?mode=memory&cache=shared"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db), "migration is idempotent")

	_, err = db.Exec(`INSERT INTO timetables (id, school_level, grade, kind, data) VALUES ('img_0', 'elementary', '1', 'img', '{}')`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM timetables`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.db")
	db, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(db))

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, MemoryPath, DefaultConfig().Path)
	assert.True(t, DefaultConfig().inMemory())
	assert.False(t, Config{Path: "/var/lib/timetabler/data.db"}.inMemory())
}
