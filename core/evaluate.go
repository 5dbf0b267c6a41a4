package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
	"go.uber.org/zap"
)

// evalUnit is one piece of work handed to the worker pool.
type evalUnit struct {
	spw  schema.SpectralWindowData
	scan schema.ScanData
	// aggErr is set when the all-scan unit could not be assembled.
	aggErr error
}

// EvaluateDataset loads a dataset and runs the QA flow selected by cfg.Mode over
// every unit. Interferometric units are (scan, spw) pairs plus an optional
// all-scan aggregate per spw; single-dish units are whole spws. Units that fail
// are reported as not evaluated without stopping the others.
func EvaluateDataset(ctx context.Context, cfg *contract.Config, src contract.VisibilitySource, trec contract.TrecSource, mgr contract.CacheManager) (*schema.EvaluationResult, error) {
	ds, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset %s: %w", ds.Vis, err)
	}

	// Add cache manager to context for use in worker goroutines
	ctx = contextWithCacheManager(ctx, mgr)

	result := &schema.EvaluationResult{
		Vis:       ds.Vis,
		Intent:    ds.Intent,
		Mode:      cfg.Mode,
		StartTime: time.Now(),
	}

	// --- 0. Begin Run Tracking (if configured) ---
	var analysisID int64
	analysisStore := analysisStoreOf(mgr)
	if analysisStore != nil {
		analysisID, err = analysisStore.BeginRun(ds.Vis, result.StartTime, cfg.RunParams())
		if err != nil {
			contract.LogWarn("Run tracking initialization failed", err)
		} else if analysisID > 0 {
			ctx = withAnalysisID(ctx, analysisID)
			result.AnalysisID = analysisID
		}
	}

	// --- 1. Unit Building ---
	units := buildUnits(cfg, ds)
	contract.LogInfo("Evaluating dataset",
		zap.String("vis", ds.Vis), zap.String("intent", ds.Intent), zap.String("mode", string(cfg.Mode)),
		zap.Int("units", len(units)), zap.Int("workers", cfg.Workers))

	// --- 2. Core Evaluation ---
	result.Units = evaluateUnits(ctx, cfg, ds, trec, units)
	result.EndTime = time.Now()

	// --- 3. End Run Tracking ---
	if analysisStore != nil && analysisID > 0 {
		if err := analysisStore.EndRun(analysisID, result.EndTime, len(result.Units)); err != nil {
			contract.LogWarn("Failed to finalize run tracking", err)
		}
	}

	contract.LogInfo("Evaluation finished",
		zap.String("vis", ds.Vis), zap.Int("evaluated", result.EvaluatedCount()),
		zap.Int("outliers", len(result.Outliers())), zap.Duration("elapsed", result.EndTime.Sub(result.StartTime)))

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("evaluation interrupted: %w", err)
	}
	return result, nil
}

// buildUnits lists the units of a dataset ordered by spw, then scan.
func buildUnits(cfg *contract.Config, ds *schema.Dataset) []evalUnit {
	var units []evalUnit
	for _, spw := range ds.SpectralWindows {
		if cfg.Mode == schema.SingleDishMode {
			units = append(units, evalUnit{spw: spw, scan: schema.ScanData{ID: schema.AllScanAggregate}})
			continue
		}
		for _, scan := range spw.Scans {
			units = append(units, evalUnit{spw: spw, scan: scan})
		}
		if cfg.ScanAggregate && len(spw.Scans) > 1 {
			merged, err := aggregateScans(spw)
			units = append(units, evalUnit{spw: spw, scan: merged, aggErr: err})
		}
	}
	return units
}

// evaluateUnits processes all units in parallel using a worker pool.
// Each worker writes to the slot of its unit, so results keep the unit order.
func evaluateUnits(ctx context.Context, cfg *contract.Config, ds *schema.Dataset, trec contract.TrecSource, units []evalUnit) []schema.UnitResult {
	indexCh := make(chan int, len(units))
	results := make([]schema.UnitResult, len(units))
	var wg sync.WaitGroup

	for range max(cfg.Workers, 1) {
		wg.Go(func() {
			for i := range indexCh {
				results[i] = evaluateUnit(ctx, cfg, ds, trec, units[i])
			}
		})
	}

	for i := range units {
		indexCh <- i
	}
	close(indexCh)
	wg.Wait()

	return results
}

// evaluateUnit runs one unit and records its fits and outliers when run tracking is active.
func evaluateUnit(ctx context.Context, cfg *contract.Config, ds *schema.Dataset, trec contract.TrecSource, u evalUnit) schema.UnitResult {
	start := time.Now()
	var result schema.UnitResult
	switch {
	case ctx.Err() != nil:
		result = notEvaluated(u, ctx.Err())
	case u.aggErr != nil:
		result = notEvaluated(u, u.aggErr)
	case cfg.Mode == schema.SingleDishMode:
		result = evaluateSingleDish(ctx, cfg, ds, u.spw, trec)
	default:
		result = NewUnitResultBuilder(ctx, cfg, ds, u.spw, u.scan).
			FitAntennas().  // Time-average and fit every antenna/polarization
			FindOutliers(). // Compare fits across the array per metric
			EnlargeFlags(). // Spread >90 degree phase offsets
			Build()
	}
	result.Duration = time.Since(start)

	if !result.Evaluated {
		contract.LogWarn(fmt.Sprintf("Unit spw %d scan %d not evaluated", u.spw.ID, u.scan.ID), errors.New(result.Err))
	}

	if analysisID, ok := getAnalysisID(ctx); ok && analysisID > 0 {
		recordUnit(ctx, analysisID, &result)
	}
	return result
}

func notEvaluated(u evalUnit, err error) schema.UnitResult {
	return schema.UnitResult{SPW: u.spw.ID, Scan: u.scan.ID, Err: err.Error()}
}

// recordUnit records the fits and outliers of one unit to the analysis store.
func recordUnit(ctx context.Context, analysisID int64, result *schema.UnitResult) {
	analysisStore := analysisStoreOf(cacheManagerFromContext(ctx))
	if analysisStore == nil {
		return
	}
	for _, fit := range result.Fits {
		if err := analysisStore.RecordFit(analysisID, fit); err != nil {
			logTrackingError("RecordFit", result, err)
		}
	}
	for _, rec := range result.Outliers {
		if err := analysisStore.RecordOutlier(analysisID, rec); err != nil {
			logTrackingError("RecordOutlier", result, err)
		}
	}
}

func analysisStoreOf(mgr contract.CacheManager) contract.AnalysisStore {
	if mgr == nil {
		return nil
	}
	return mgr.GetAnalysisStore()
}

// logTrackingError logs database tracking errors without disrupting evaluation.
func logTrackingError(operation string, result *schema.UnitResult, err error) {
	contract.LogWarn(fmt.Sprintf("Run tracking failed for %s on spw %d scan %d", operation, result.SPW, result.Scan), err)
}
