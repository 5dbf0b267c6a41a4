// Package core has core logic for dataset evaluation and single-signal analysis.
package core

import (
	"context"
	"fmt"
	"math/cmplx"

	"github.com/huangsam/visqa/core/algo"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/internal/outwriter"
	"github.com/huangsam/visqa/internal/vissource"
	"github.com/huangsam/visqa/schema"
)

// ExecutorFunc defines the function signature for executing the CLI commands.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error

// ExecuteEvaluate evaluates the dataset at cfg.DatasetPath and prints its outliers.
// It serves as the main entry point for the 'evaluate' command. An interrupted run
// still prints the units that finished before returning the error.
func ExecuteEvaluate(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	src, err := vissource.Open(cfg.DatasetPath)
	if err != nil {
		return err
	}
	var trec contract.TrecSource
	if cfg.TrecPath != "" {
		trec = vissource.NewTrecFile(cfg.TrecPath)
	}

	result, err := EvaluateDataset(ctx, cfg, src, trec, mgr)
	if result == nil {
		return err
	}
	if werr := outwriter.NewOutWriter().WriteEvaluation(result, cfg); werr != nil {
		return werr
	}
	return err
}

// ExecuteDetect runs the adaptive detector on the signal at cfg.DatasetPath.
func ExecuteDetect(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	sf, err := vissource.LoadSignal(cfg.DatasetPath)
	if err != nil {
		return err
	}
	result, err := DetectSignal(ctx, cfg, mgr, sf)
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteDetection(result, cfg)
}

// ExecuteSpectrum prints the segmented spectral power of the signal at cfg.DatasetPath.
func ExecuteSpectrum(_ context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	sf, err := vissource.LoadSignal(cfg.DatasetPath)
	if err != nil {
		return err
	}
	result, err := SpectrumOf(cfg, sf)
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteSpectrum(result, cfg)
}

// ExecuteThresholds prints the active gates.
func ExecuteThresholds(_ context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	return outwriter.NewOutWriter().WriteThresholds(cfg)
}

// DetectSignal runs the detector on one signal. Complex signals are detected on
// their amplitude. A fixed width skips the search; otherwise the searched width
// is cached in the width store of mgr.
func DetectSignal(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager, sf vissource.SignalFile) (schema.DetectionResult, error) {
	sig, err := amplitudeOf(sf)
	if err != nil {
		return schema.DetectionResult{}, err
	}
	s := settingsFromConfig(cfg)
	if cfg.FixedWidth > 0 {
		opts := append(s.options(), algo.WithFixedWidth(cfg.FixedWidth))
		return algo.Detect(sig, cfg.DetectThreshold, cfg.Sided, opts...)
	}
	return cachedDetect(contextWithCacheManager(ctx, mgr), sig, cfg.DetectThreshold, cfg.Sided, s)
}

// SpectrumOf returns the segmented spectral power of one signal. Real signals
// use the non-negative frequencies; complex signals the full ascending axis.
func SpectrumOf(cfg *contract.Config, sf vissource.SignalFile) (schema.SpectrumResult, error) {
	n := len(sf.Values)
	opts := []algo.SpectralOption{
		algo.WithSampleSpacing(cfg.SampleSpacing),
		algo.WithMinSegmentSize(cfg.MinSegmentSize),
	}

	if sf.IsComplex() {
		sig, err := sf.Complex()
		if err != nil {
			return schema.SpectrumResult{}, err
		}
		freq := algo.FFTFreqShifted(n, cfg.SampleSpacing)
		power, err := algo.SpectralPowerComplex(sig, freq, opts...)
		if err != nil {
			return schema.SpectrumResult{}, fmt.Errorf("spectral power: %w", err)
		}
		return schema.SpectrumResult{Freq: freq, Power: power}, nil
	}

	sig, err := sf.Real()
	if err != nil {
		return schema.SpectrumResult{}, err
	}
	freq := algo.RFFTFreq(n, cfg.SampleSpacing)
	power, err := algo.SpectralPower(sig, freq, opts...)
	if err != nil {
		return schema.SpectrumResult{}, fmt.Errorf("spectral power: %w", err)
	}
	return schema.SpectrumResult{Freq: freq, Power: power}, nil
}

func amplitudeOf(sf vissource.SignalFile) (schema.Signal, error) {
	if !sf.IsComplex() {
		return sf.Real()
	}
	cs, err := sf.Complex()
	if err != nil {
		return schema.Signal{}, err
	}
	values := make([]float64, cs.Len())
	for i, v := range cs.Values {
		values[i] = cmplx.Abs(v)
	}
	return schema.NewSignal(values, cs.Mask)
}
