// Package algo has the numeric kernels of the QA engine: robust statistics,
// masked smoothing, adaptive detection, segmented spectral power and model fitting.
package algo

import (
	"fmt"
	"math"
	"slices"

	"github.com/huangsam/visqa/schema"
)

// madToSigma converts a median absolute deviation to a Gaussian-consistent sigma.
const madToSigma = 1.482602218505602

// Median returns the median of values, averaging the middle two for even lengths.
// It does not modify values. Empty input yields NaN.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}

// RobustStats returns the median and the small-sample corrected MAD scale
// of the unmasked samples of sig.
func RobustStats(sig schema.Signal) (location, scale float64, err error) {
	if err := sig.Validate(); err != nil {
		return 0, 0, err
	}
	return RobustStatsValues(sig.Compressed())
}

// RobustStatsValues is RobustStats over an already compressed slice.
func RobustStatsValues(values []float64) (location, scale float64, err error) {
	n := len(values)
	if n < 2 {
		return 0, 0, fmt.Errorf("robust stats over %d valid points: %w", n, schema.ErrInsufficientData)
	}
	location = Median(values)
	dev := make([]float64, n)
	for i, v := range values {
		dev[i] = math.Abs(v - location)
	}
	scale = madToSigma * Median(dev) / smallSampleBias(n)
	return location, scale, nil
}

// smallSampleBias is b(n) = 1 - 1/(1.32n + beta).
func smallSampleBias(n int) float64 {
	beta := -0.9
	if n%2 == 0 {
		beta = -1.5
	}
	return 1 - 1/(1.32*float64(n)+beta)
}
