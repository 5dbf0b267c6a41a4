package core

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/huangsam/visqa/core/algo"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
)

// currentCacheVersion defines the version of the cache schema
const currentCacheVersion = 1

// cacheTTL is how long a stored smoothing width stays valid
const cacheTTL = 7 * 24 * time.Hour

// widthEntry is the cached outcome of one width search.
type widthEntry struct {
	Width float64 `json:"width"`
}

// detectSettings are the detector options that change the searched width.
type detectSettings struct {
	maxSmoothFrac float64
	baselineWidth int
}

func (s detectSettings) options() []algo.DetectOption {
	return []algo.DetectOption{
		algo.WithMaxSmoothFrac(s.maxSmoothFrac),
		algo.WithBaselineSmoothWidth(s.baselineWidth),
	}
}

func settingsFromConfig(cfg *contract.Config) detectSettings {
	return detectSettings{maxSmoothFrac: cfg.MaxSmoothFrac, baselineWidth: cfg.BaselineSmoothWidth}
}

// cachedDetect runs the adaptive detector, reusing a previously searched width for
// an identical signal, threshold and mode. Without a width store it detects directly.
func cachedDetect(ctx context.Context, sig schema.Signal, threshold float64, mode schema.DetectMode, s detectSettings) (schema.DetectionResult, error) {
	var store contract.CacheStore
	if mgr := cacheManagerFromContext(ctx); mgr != nil {
		store = mgr.GetWidthStore()
	}
	if store == nil {
		return algo.Detect(sig, threshold, mode, s.options()...)
	}

	key := generateCacheKey(sig, threshold, mode, s)

	// Check for cache hit
	if width, ok := checkCacheHit(store, key); ok {
		opts := append(s.options(), algo.WithFixedWidth(width))
		return algo.Detect(sig, threshold, mode, opts...)
	}

	// Cache miss: compute and store
	return computeAndStore(store, key, sig, threshold, mode, s)
}

// checkCacheHit attempts to retrieve and validate a cached width
func checkCacheHit(store contract.CacheStore, key string) (float64, bool) {
	data, version, ts, err := store.Get(key)
	if err != nil {
		return 0, false // Cache miss
	}

	// Validate version and staleness
	if version != currentCacheVersion || time.Since(time.Unix(ts, 0)) > cacheTTL {
		return 0, false
	}
	var entry widthEntry
	if err := json.Unmarshal(data, &entry); err != nil || !(entry.Width >= 1) {
		return 0, false
	}
	return entry.Width, true
}

// computeAndStore runs the width search and stores its outcome
func computeAndStore(store contract.CacheStore, key string, sig schema.Signal, threshold float64, mode schema.DetectMode, s detectSettings) (schema.DetectionResult, error) {
	res, err := algo.Detect(sig, threshold, mode, s.options()...)
	if err != nil {
		return res, err
	}
	if data, err := json.Marshal(widthEntry{Width: res.WidthMax}); err == nil {
		if err := store.Set(key, data, currentCacheVersion, time.Now().Unix()); err != nil {
			contract.LogWarn("Failed to cache smoothing width", err)
		}
	}
	return res, nil
}

// generateCacheKey hashes everything the width search depends on
func generateCacheKey(sig schema.Signal, threshold float64, mode schema.DetectMode, s detectSettings) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s:%g:%g:%d:%d:", mode, threshold, s.maxSmoothFrac, s.baselineWidth, sig.Len())
	buf := make([]byte, 0, 9*sig.Len())
	for i, v := range sig.Values {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		if sig.Masked(i) {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	_, _ = h.Write(buf)
	return fmt.Sprintf("%x", h.Sum(nil))
}
