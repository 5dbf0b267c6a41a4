package iocache

import (
	"time"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/mock"
)

// MockCacheManager is a mock implementation of CacheManager for testing.
type MockCacheManager struct {
	mock.Mock
}

var _ contract.CacheManager = &MockCacheManager{} // Compile-time check

// GetWidthStore implements the CacheManager interface.
func (m *MockCacheManager) GetWidthStore() contract.CacheStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.CacheStore)
	return store
}

// GetAnalysisStore implements the CacheManager interface.
func (m *MockCacheManager) GetAnalysisStore() contract.AnalysisStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.AnalysisStore)
	return store
}

// MockCacheStore is a mock implementation of CacheStore for testing.
type MockCacheStore struct {
	mock.Mock
}

var _ contract.CacheStore = &MockCacheStore{} // Compile-time check

// Get implements the CacheStore interface.
func (m *MockCacheStore) Get(key string) ([]byte, int, int64, error) {
	args := m.Called(key)
	data, _ := args.Get(0).([]byte)
	return data, args.Int(1), args.Get(2).(int64), args.Error(3)
}

// Set implements the CacheStore interface.
func (m *MockCacheStore) Set(key string, data []byte, version int, ts int64) error {
	args := m.Called(key, data, version, ts)
	return args.Error(0)
}

// GetStatus implements the CacheStore interface.
func (m *MockCacheStore) GetStatus() (schema.CacheStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.CacheStatus), args.Error(1)
}

// Close implements the CacheStore interface.
func (m *MockCacheStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockAnalysisStore is a mock implementation of AnalysisStore for testing.
type MockAnalysisStore struct {
	mock.Mock
}

var _ contract.AnalysisStore = &MockAnalysisStore{} // Compile-time check

// BeginRun implements the AnalysisStore interface.
func (m *MockAnalysisStore) BeginRun(vis string, startTime time.Time, configParams map[string]any) (int64, error) {
	args := m.Called(vis, startTime, configParams)
	return args.Get(0).(int64), args.Error(1)
}

// EndRun implements the AnalysisStore interface.
func (m *MockAnalysisStore) EndRun(analysisID int64, endTime time.Time, totalUnits int) error {
	args := m.Called(analysisID, endTime, totalUnits)
	return args.Error(0)
}

// RecordFit implements the AnalysisStore interface.
func (m *MockAnalysisStore) RecordFit(analysisID int64, fit schema.AntennaFit) error {
	args := m.Called(analysisID, fit)
	return args.Error(0)
}

// RecordOutlier implements the AnalysisStore interface.
func (m *MockAnalysisStore) RecordOutlier(analysisID int64, rec schema.OutlierRecord) error {
	args := m.Called(analysisID, rec)
	return args.Error(0)
}

// GetStatus implements the AnalysisStore interface.
func (m *MockAnalysisStore) GetStatus() (schema.AnalysisStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.AnalysisStatus), args.Error(1)
}

// GetAllAnalysisRuns implements the AnalysisStore interface.
func (m *MockAnalysisStore) GetAllAnalysisRuns() ([]schema.AnalysisRunRecord, error) {
	args := m.Called()
	runs, _ := args.Get(0).([]schema.AnalysisRunRecord)
	return runs, args.Error(1)
}

// GetAllFits implements the AnalysisStore interface.
func (m *MockAnalysisStore) GetAllFits() ([]schema.FitRowRecord, error) {
	args := m.Called()
	fits, _ := args.Get(0).([]schema.FitRowRecord)
	return fits, args.Error(1)
}

// GetAllOutliers implements the AnalysisStore interface.
func (m *MockAnalysisStore) GetAllOutliers() ([]schema.OutlierRowRecord, error) {
	args := m.Called()
	outliers, _ := args.Get(0).([]schema.OutlierRowRecord)
	return outliers, args.Error(1)
}

// Close implements the AnalysisStore interface.
func (m *MockAnalysisStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
