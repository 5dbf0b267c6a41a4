package iocache

import (
	"sync"

	"github.com/huangsam/visqa/internal/contract"
)

// CacheStoreManager manages the width cache and the analysis store.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	width        contract.CacheStore
	analysis     contract.AnalysisStore
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// GetWidthStore returns the detector width CacheStore.
func (mgr *CacheStoreManager) GetWidthStore() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.width
}

// GetAnalysisStore returns the analysis AnalysisStore.
func (mgr *CacheStoreManager) GetAnalysisStore() contract.AnalysisStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.analysis
}
