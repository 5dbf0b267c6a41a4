package core

import (
	"context"

	"github.com/huangsam/visqa/internal/contract"
)

// Context keys for evaluation options
type contextKey string

const (
	analysisIDKey   contextKey = "analysisID"
	cacheManagerKey contextKey = "cacheManager"
)

// withAnalysisID stores the run ID used to record fits and outliers
func withAnalysisID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, analysisIDKey, id)
}

// getAnalysisID returns the run ID from context, if run tracking is active
func getAnalysisID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(analysisIDKey).(int64)
	return id, ok
}

// contextWithCacheManager makes the cache manager available to worker goroutines
func contextWithCacheManager(ctx context.Context, mgr contract.CacheManager) context.Context {
	if mgr == nil {
		return ctx
	}
	return context.WithValue(ctx, cacheManagerKey, mgr)
}

// cacheManagerFromContext returns the cache manager from context, or nil
func cacheManagerFromContext(ctx context.Context) contract.CacheManager {
	mgr, _ := ctx.Value(cacheManagerKey).(contract.CacheManager)
	return mgr
}
