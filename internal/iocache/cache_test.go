package iocache

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetStores isolates the global manager and the default DB paths for one test.
func resetStores(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	initOnce = sync.Once{}
	closeOnce = sync.Once{}
	t.Cleanup(func() {
		CloseStores()
		initOnce = sync.Once{}
		closeOnce = sync.Once{}
	})
}

func TestStores(t *testing.T) {
	t.Run("single setup", func(t *testing.T) {
		resetStores(t)

		err := InitStores(schema.SQLiteBackend, "", schema.SQLiteBackend, "")
		require.NoError(t, err, "Failed to initialize persistence")
		assert.NotNil(t, Manager.GetWidthStore(), "Width store should not be nil")
		assert.NotNil(t, Manager.GetAnalysisStore(), "Analysis store should not be nil")

		CloseStores()

		_, err = os.Stat(GetDBFilePath())
		assert.NoError(t, err, "Cache database file should be created")
		_, err = os.Stat(GetAnalysisDBFilePath())
		assert.NoError(t, err, "Analysis database file should be created")
	})

	t.Run("idempotent setup", func(t *testing.T) {
		resetStores(t)

		assert.NoError(t, InitStores(schema.SQLiteBackend, "", "", ""))
		assert.NoError(t, InitStores(schema.SQLiteBackend, "", "", ""))
		assert.NoError(t, InitStores(schema.MySQLBackend, "invalid", "", ""), "later calls are no-ops")

		CloseStores()
		CloseStores()
	})

	t.Run("empty backends disable stores", func(t *testing.T) {
		resetStores(t)

		require.NoError(t, InitStores("", "", "", ""))
		assert.Nil(t, Manager.GetWidthStore())
		assert.Nil(t, Manager.GetAnalysisStore())
	})

	t.Run("none backend operations", func(t *testing.T) {
		store, err := NewCacheStore("test_table", schema.NoneBackend, "")
		require.NoError(t, err, "Failed to create none backend store")

		_, _, _, err = store.Get("test_key")
		assert.Equal(t, sql.ErrNoRows, err, "Get on none backend has no data")

		assert.NoError(t, store.Set("test_key", []byte("test_value"), 1, 123456789))

		_, _, _, err = store.Get("test_key")
		assert.Equal(t, sql.ErrNoRows, err, "Set is a no-op on none backend")

		assert.NoError(t, store.Close())
	})
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name      string
		tableName string
		wantErr   bool
	}{
		{name: "valid simple name", tableName: "width_cache"},
		{name: "valid name with numbers", tableName: "width_cache_2"},
		{name: "leading underscore", tableName: "_width"},
		{name: "empty", tableName: "", wantErr: true},
		{name: "leading digit", tableName: "1width", wantErr: true},
		{name: "hyphen", tableName: "width-cache", wantErr: true},
		{name: "sql injection", tableName: "width; DROP TABLE x", wantErr: true},
		{name: "unicode", tableName: "width_表", wantErr: true},
		{name: "very long", tableName: strings.Repeat("a", 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTableName(tt.tableName)
			if tt.wantErr {
				assert.Error(t, err, "validateTableName should error for %q", tt.tableName)
			} else {
				assert.NoError(t, err, "validateTableName should not error for %q", tt.tableName)
			}
		})
	}
}

func TestQuoteTableName(t *testing.T) {
	tests := []struct {
		backend schema.DatabaseBackend
		want    string
	}{
		{backend: schema.SQLiteBackend, want: `"width_cache"`},
		{backend: schema.MySQLBackend, want: "`width_cache`"},
		{backend: schema.PostgreSQLBackend, want: `"width_cache"`},
		{backend: schema.NoneBackend, want: `"width_cache"`},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			assert.Equal(t, tt.want, quoteTableName("width_cache", tt.backend))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		backend schema.DatabaseBackend
		want    string
	}{
		{backend: schema.SQLiteBackend, want: "?, ?, ?"},
		{backend: schema.MySQLBackend, want: "?, ?, ?"},
		{backend: schema.PostgreSQLBackend, want: "$1, $2, $3"},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			assert.Equal(t, tt.want, placeholders(tt.backend, 3))
		})
	}
	assert.Equal(t, "$4", placeholder(schema.PostgreSQLBackend, 4))
}

func TestTimeScanner(t *testing.T) {
	want := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)

	tests := []struct {
		name  string
		src   any
		valid bool
	}{
		{name: "native time", src: want, valid: true},
		{name: "rfc3339 text", src: want.Format(time.RFC3339Nano), valid: true},
		{name: "mysql datetime bytes", src: []byte("2026-03-14 09:26:53.589"), valid: true},
		{name: "null", src: nil, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts timeScanner
			require.NoError(t, ts.Scan(tt.src))
			if !tt.valid {
				assert.Nil(t, ts.ptr())
				return
			}
			require.NotNil(t, ts.ptr())
			assert.True(t, want.Equal(*ts.ptr()))
		})
	}

	var ts timeScanner
	assert.Error(t, ts.Scan("yesterday"))
	assert.Error(t, ts.Scan(42))
}

func TestSQLiteBackendOperations(t *testing.T) {
	newStore := func(t *testing.T) *CacheStoreImpl {
		t.Helper()
		store, err := NewCacheStore("width_cache", schema.SQLiteBackend, ":memory:")
		require.NoError(t, err, "Failed to create SQLite store")
		t.Cleanup(func() { _ = store.Close() })
		return store.(*CacheStoreImpl)
	}

	t.Run("set and get operations", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set("widths", []byte(`{"w":5}`), 1, 1234567890))

		value, version, timestamp, err := store.Get("widths")
		require.NoError(t, err)
		assert.Equal(t, `{"w":5}`, string(value))
		assert.Equal(t, 1, version)
		assert.Equal(t, int64(1234567890), timestamp)
	})

	t.Run("upsert behavior", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set("upsert_key", []byte("initial_value"), 1, 1000))
		require.NoError(t, store.Set("upsert_key", []byte("updated_value"), 2, 2000))

		value, version, timestamp, err := store.Get("upsert_key")
		require.NoError(t, err)
		assert.Equal(t, "updated_value", string(value))
		assert.Equal(t, 2, version)
		assert.Equal(t, int64(2000), timestamp)
	})

	t.Run("get non-existent key", func(t *testing.T) {
		store := newStore(t)

		_, _, _, err := store.Get("non_existent_key")
		assert.Equal(t, sql.ErrNoRows, err)
	})
}

func TestGetUpsertQuery(t *testing.T) {
	tests := []struct {
		backend      schema.DatabaseBackend
		wantContains []string
	}{
		{backend: schema.SQLiteBackend, wantContains: []string{"INSERT OR REPLACE", `"width_cache"`}},
		{backend: schema.MySQLBackend, wantContains: []string{"INSERT INTO", "ON DUPLICATE KEY UPDATE", "`width_cache`"}},
		{backend: schema.PostgreSQLBackend, wantContains: []string{"ON CONFLICT", "DO UPDATE SET", "$1", "$4"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			store := &CacheStoreImpl{backend: tt.backend, tableName: "width_cache"}
			got := store.getUpsertQuery()
			for _, want := range tt.wantContains {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestGetCreateTableQuery(t *testing.T) {
	tests := []struct {
		backend      schema.DatabaseBackend
		wantContains []string
	}{
		{backend: schema.SQLiteBackend, wantContains: []string{"CREATE TABLE IF NOT EXISTS", "cache_value BLOB"}},
		{backend: schema.MySQLBackend, wantContains: []string{"VARCHAR(255)", "`width_cache`"}},
		{backend: schema.PostgreSQLBackend, wantContains: []string{"BYTEA", "cache_timestamp BIGINT"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			got := getCreateTableQuery("width_cache", tt.backend)
			for _, want := range tt.wantContains {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestNewCacheStoreErrors(t *testing.T) {
	t.Run("invalid table name", func(t *testing.T) {
		_, err := NewCacheStore("invalid-name", schema.SQLiteBackend, ":memory:")
		assert.Error(t, err)
	})

	t.Run("empty table name", func(t *testing.T) {
		_, err := NewCacheStore("", schema.SQLiteBackend, ":memory:")
		assert.Error(t, err)
	})

	t.Run("unsupported backend", func(t *testing.T) {
		_, err := NewCacheStore("width_cache", "unsupported", "")
		assert.Error(t, err)
	})

	t.Run("unreachable mysql", func(t *testing.T) {
		resetStores(t)
		err := InitStores(schema.MySQLBackend, "invalid://connection", "", "")
		assert.Error(t, err)
	})
}

func TestClearCache(t *testing.T) {
	t.Run("SQLite backend", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test_clear.db")

		store, err := NewCacheStore("width_cache", schema.SQLiteBackend, dbPath)
		require.NoError(t, err)
		require.NoError(t, store.Close())

		_, err = os.Stat(dbPath)
		require.NoError(t, err, "Database file should exist before ClearCache")

		require.NoError(t, ClearCache(schema.SQLiteBackend, dbPath, ""))

		_, err = os.Stat(dbPath)
		assert.True(t, os.IsNotExist(err), "Database file should be removed after ClearCache")
	})

	t.Run("SQLite backend - non-existent file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "non_existent.db")
		assert.NoError(t, ClearCache(schema.SQLiteBackend, dbPath, ""))
	})

	t.Run("NoneBackend", func(t *testing.T) {
		assert.NoError(t, ClearCache(schema.NoneBackend, "", ""))
		assert.NoError(t, ClearAnalysis(schema.NoneBackend, "", ""))
	})

	t.Run("empty dbFilePath for SQLite", func(t *testing.T) {
		assert.Error(t, ClearCache(schema.SQLiteBackend, "", ""))
	})

	t.Run("unsupported backend", func(t *testing.T) {
		assert.Error(t, ClearAnalysis("unsupported", "", ""))
	})
}

func TestCacheStoreManagerConcurrency(t *testing.T) {
	resetStores(t)
	require.NoError(t, InitStores(schema.SQLiteBackend, ":memory:", "", ""))

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Go(func() {
			store := Manager.GetWidthStore()
			if !assert.NotNil(t, store) {
				return
			}
			assert.NoError(t, store.Set("concurrent_key", []byte("value"), 1, int64(1000+i)))
		})
	}
	wg.Wait()

	_, _, ts, err := Manager.GetWidthStore().Get("concurrent_key")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts, int64(1000))
}

func TestCacheStoreGetStatus(t *testing.T) {
	t.Run("SQLite backend with data", func(t *testing.T) {
		store, err := NewCacheStore("width_cache", schema.SQLiteBackend, ":memory:")
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		for key, ts := range map[string]int64{"key1": 1000, "key2": 2000, "key3": 1500} {
			require.NoError(t, store.Set(key, []byte("value"), 1, ts))
		}

		status, err := store.GetStatus()
		require.NoError(t, err)
		assert.Equal(t, "sqlite", status.Backend)
		assert.True(t, status.Connected)
		assert.Equal(t, 3, status.TotalEntries)
		assert.Equal(t, time.Unix(2000, 0), status.LastEntryTime)
		assert.Equal(t, time.Unix(1000, 0), status.OldestEntryTime)
		assert.Greater(t, status.TableSizeBytes, int64(0))
	})

	t.Run("SQLite backend empty", func(t *testing.T) {
		store, err := NewCacheStore("width_cache", schema.SQLiteBackend, ":memory:")
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		status, err := store.GetStatus()
		require.NoError(t, err)
		assert.True(t, status.Connected)
		assert.Equal(t, 0, status.TotalEntries)
		assert.True(t, status.LastEntryTime.IsZero())
		assert.Equal(t, int64(0), status.TableSizeBytes)
	})

	t.Run("None backend", func(t *testing.T) {
		store, err := NewCacheStore("width_cache", schema.NoneBackend, "")
		require.NoError(t, err)

		status, err := store.GetStatus()
		require.NoError(t, err)
		assert.Equal(t, "none", status.Backend)
		assert.False(t, status.Connected)
	})
}
