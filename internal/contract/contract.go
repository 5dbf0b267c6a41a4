// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/huangsam/visqa/schema"
)

// VisibilitySource loads the calibrated visibilities of one measurement set.
// This allows the evaluation to be tested without a real MS reader.
type VisibilitySource interface {
	// Load returns the dataset with every spw, scan and antenna cube.
	Load(ctx context.Context) (*schema.Dataset, error)
}

// TrecSource provides receiver temperature spectra for single-dish corroboration.
type TrecSource interface {
	// Trec returns the spectra of one (spw, scan) keyed by antenna name.
	Trec(ctx context.Context, spw, scan int) (map[string]schema.TrecSpectrum, error)
}

// CacheManager defines the interface for managing cache stores.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetWidthStore() CacheStore
	GetAnalysisStore() AnalysisStore
}

// CacheStore defines the interface for cache data storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// AnalysisStore defines the interface for tracking QA runs and their results.
type AnalysisStore interface {
	// BeginRun creates a new QA run and returns its unique ID
	BeginRun(vis string, startTime time.Time, configParams map[string]any) (int64, error)

	// EndRun updates the QA run with completion data
	EndRun(analysisID int64, endTime time.Time, totalUnits int) error

	// RecordFit stores the amplitude and phase fit of one antenna/polarization
	RecordFit(analysisID int64, fit schema.AntennaFit) error

	// RecordOutlier stores one outlier record
	RecordOutlier(analysisID int64, rec schema.OutlierRecord) error

	// GetStatus returns status information about the analysis store
	GetStatus() (schema.AnalysisStatus, error)

	// GetAllAnalysisRuns retrieves all QA runs from the store
	GetAllAnalysisRuns() ([]schema.AnalysisRunRecord, error)

	// GetAllFits retrieves all recorded fits from the store
	GetAllFits() ([]schema.FitRowRecord, error)

	// GetAllOutliers retrieves all recorded outliers from the store
	GetAllOutliers() ([]schema.OutlierRowRecord, error)

	// Close closes the underlying connection
	Close() error
}
