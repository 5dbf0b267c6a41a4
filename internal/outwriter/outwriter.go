// Package outwriter has output and writer logic.
package outwriter

import (
	"os"

	"github.com/huangsam/visqa/core/agg"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
	"golang.org/x/term"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API for the core logic.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteEvaluation prints the outliers (and optionally fits) of a dataset evaluation.
func (ow *OutWriter) WriteEvaluation(result *schema.EvaluationResult, cfg *contract.Config) error {
	return WriteEvaluationResults(result, cfg)
}

// WriteDetection prints the result of one adaptive detection pass.
func (ow *OutWriter) WriteDetection(result schema.DetectionResult, cfg *contract.Config) error {
	return WriteDetectionResult(result, cfg)
}

// WriteSpectrum prints the segmented spectral power of one signal.
func (ow *OutWriter) WriteSpectrum(result schema.SpectrumResult, cfg *contract.Config) error {
	return WriteSpectrumResult(result, cfg)
}

// WriteThresholds prints the active gates of every metric and detector.
func (ow *OutWriter) WriteThresholds(cfg *contract.Config) error {
	return WriteThresholdsTable(cfg)
}

// GetMaxTableReasonWidth calculates the maximum width for the reasons column in
// table output based on terminal width.
func GetMaxTableReasonWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 { // Not set by override
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			// Fallback to conservative default if terminal size can't be detected
			termWidth = 80
		} else {
			termWidth = detectedWidth
		}
	}

	// Rank + SPW + Scan + Antenna + Pol + Metric + Sigma + Delta + Label with borders/padding
	baseWidth := 95

	available := termWidth - baseWidth
	if available < 15 {
		return 15
	}
	if available > 60 {
		return 60
	}
	return available
}

// sigmaGate returns the sigma threshold each metric was gated at.
func sigmaGate(cfg *contract.Config) func(schema.Metric) float64 {
	th := cfg.Thresholds
	return func(m schema.Metric) float64 {
		switch m {
		case schema.SDDeviation:
			return cfg.DeviationThreshold
		case schema.SDPeriodicity:
			return cfg.PeriodicityThreshold
		default:
			return th.For(m).Sigma
		}
	}
}

// gateOf returns the dual gate of a fitted metric.
func gateOf(cfg *contract.Config, m schema.Metric) agg.Threshold {
	return cfg.Thresholds.For(m)
}
