package iocache

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateAnalysis_NoneBackend(t *testing.T) {
	err := MigrateAnalysis(&bytes.Buffer{}, schema.NoneBackend, "", -1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations are not supported for NoneBackend")
}

func TestMigrateAnalysis_UnsupportedBackend(t *testing.T) {
	assert.Error(t, MigrateAnalysis(&bytes.Buffer{}, "oracle", "", -1))
}

func TestMigrateAnalysis_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_migration.db")
	var out bytes.Buffer

	require.NoError(t, MigrateAnalysis(&out, schema.SQLiteBackend, dbPath, -1))
	assert.Contains(t, out.String(), "to version 3")

	out.Reset()
	require.NoError(t, MigrateAnalysis(&out, schema.SQLiteBackend, dbPath, -1))
	assert.Contains(t, out.String(), "No migration needed")

	// tables created by the migrations are usable by the store
	store, err := NewAnalysisStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	id, err := store.BeginRun("a.ms", testNow(), nil)
	require.NoError(t, err)
	require.NoError(t, store.RecordOutlier(id, sampleOutlier(1, "")))
	require.NoError(t, store.Close())

	require.NoError(t, MigrateAnalysis(&out, schema.SQLiteBackend, dbPath, 1))
	assert.False(t, tableExists(t, dbPath, outliersTable))
	assert.True(t, tableExists(t, dbPath, analysisRunsTable))

	require.NoError(t, MigrateAnalysis(&out, schema.SQLiteBackend, dbPath, 0))
	assert.False(t, tableExists(t, dbPath, analysisRunsTable))

	require.NoError(t, MigrateAnalysis(&out, schema.SQLiteBackend, dbPath, 3))
	assert.True(t, tableExists(t, dbPath, outliersTable))
}

func TestMigrationDirsCoverEveryBackend(t *testing.T) {
	for backend := range schema.ValidDatabaseBackends {
		if backend == schema.NoneBackend {
			continue
		}
		dir, ok := migrationDirs[backend]
		require.True(t, ok, "no migrations for %s", backend)

		entries, err := migrationsFS.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 6, "%s has an up and a down file per version", backend)
	}
}

func tableExists(t *testing.T, dbPath, table string) bool {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var n int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	require.NoError(t, err)
	return n == 1
}
