package iocache

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNow() time.Time {
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func TestExecuteAnalysisExport(t *testing.T) {
	t.Run("writes one file per table", func(t *testing.T) {
		store := newSQLiteAnalysisStore(t)
		id, err := store.BeginRun("a.ms", testNow(), map[string]any{"mode": "if"})
		require.NoError(t, err)
		require.NoError(t, store.RecordFit(id, sampleFit(0, "XX")))
		require.NoError(t, store.RecordOutlier(id, sampleOutlier(0, "DA41")))
		require.NoError(t, store.EndRun(id, testNow().Add(time.Second), 1))

		out := filepath.Join(t.TempDir(), "export")
		var buf bytes.Buffer
		require.NoError(t, ExecuteAnalysisExport(&buf, store, out))

		for _, suffix := range []string{".analysis_runs.parquet", ".antenna_fits.parquet", ".outliers.parquet"} {
			assert.FileExists(t, out+suffix)
		}
		assert.Contains(t, buf.String(), "Exported 1 analysis runs")
		assert.Contains(t, buf.String(), "Exported 1 outliers")
	})

	t.Run("requires an output file", func(t *testing.T) {
		err := ExecuteAnalysisExport(&bytes.Buffer{}, newSQLiteAnalysisStore(t), "")
		assert.ErrorContains(t, err, "--output-file")
	})

	t.Run("disabled tracking", func(t *testing.T) {
		err := ExecuteAnalysisExport(&bytes.Buffer{}, nil, "out")
		assert.Error(t, err)
	})

	t.Run("empty store", func(t *testing.T) {
		err := ExecuteAnalysisExport(&bytes.Buffer{}, newSQLiteAnalysisStore(t), "out")
		assert.ErrorContains(t, err, "no analysis data")
	})

	t.Run("store failure", func(t *testing.T) {
		store := &MockAnalysisStore{}
		store.On("GetStatus").Return(schema.AnalysisStatus{TotalRuns: 1}, nil)
		store.On("GetAllAnalysisRuns").Return(nil, errors.New("boom"))

		err := ExecuteAnalysisExport(&bytes.Buffer{}, store, filepath.Join(t.TempDir(), "out"))
		assert.ErrorContains(t, err, "boom")
		store.AssertExpectations(t)
	})
}

func TestPrintStatus(t *testing.T) {
	t.Run("cache", func(t *testing.T) {
		var buf bytes.Buffer
		PrintCacheStatus(&buf, schema.CacheStatus{
			Backend: "sqlite", Connected: true, TotalEntries: 2,
			LastEntryTime: testNow(), OldestEntryTime: testNow(), TableSizeBytes: 4096,
		})
		assert.Contains(t, buf.String(), "Total Entries: 2")
		assert.Contains(t, buf.String(), "Last Entry: 2026-05-01 12:00:00")
		assert.Contains(t, buf.String(), "Table Size: 4096 bytes")
	})

	t.Run("disconnected cache", func(t *testing.T) {
		var buf bytes.Buffer
		PrintCacheStatus(&buf, schema.CacheStatus{Backend: "none"})
		assert.Equal(t, "Cache Backend: none\nConnected: false\n", buf.String())
	})

	t.Run("analysis", func(t *testing.T) {
		var buf bytes.Buffer
		PrintAnalysisStatus(&buf, schema.AnalysisStatus{
			Backend: "sqlite", Connected: true, TotalRuns: 1, LastRunID: 7, TotalUnitsEvaluated: 12,
			TableSizes: map[string]int64{outliersTable: 3, analysisRunsTable: 1},
		})
		out := buf.String()
		assert.Contains(t, out, "Last Run ID: 7")
		assert.Contains(t, out, "Total Units Evaluated: 12")
		assert.Less(t, bytes.Index(buf.Bytes(), []byte(analysisRunsTable)), bytes.Index(buf.Bytes(), []byte(outliersTable)),
			"tables are listed in sorted order")
	})
}
