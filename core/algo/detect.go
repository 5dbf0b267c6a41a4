package algo

import (
	"fmt"
	"math"

	"github.com/huangsam/visqa/schema"
)

// Default detector settings.
const (
	DefaultMaxSmoothFrac      = 0.1
	DefaultBaselineSmoothSize = 20
	DefaultSearchTolerance    = 1e-5
	DefaultSearchMaxIter      = 500
)

type detectOptions struct {
	maxSmoothFrac float64
	baselineWidth int
	fixedWidth    float64
	tolerance     float64
	maxIter       int
	boxSigmaRatio float64
}

// DetectOption customizes Detect.
type DetectOption func(*detectOptions)

// WithMaxSmoothFrac caps the searched smoothing width at frac*N.
func WithMaxSmoothFrac(frac float64) DetectOption {
	return func(o *detectOptions) { o.maxSmoothFrac = frac }
}

// WithBaselineSmoothWidth sets the boxcar width of the noise baseline.
func WithBaselineSmoothWidth(width int) DetectOption {
	return func(o *detectOptions) { o.baselineWidth = width }
}

// WithFixedWidth skips the width search and smooths with width directly.
func WithFixedWidth(width float64) DetectOption {
	return func(o *detectOptions) { o.fixedWidth = width }
}

// WithTolerance sets the absolute width tolerance of the search.
func WithTolerance(tol float64) DetectOption {
	return func(o *detectOptions) { o.tolerance = tol }
}

// WithMaxIterations bounds the number of objective evaluations of the search.
func WithMaxIterations(n int) DetectOption {
	return func(o *detectOptions) { o.maxIter = n }
}

// WithBoxSigmaRatio overrides DefaultBoxSigmaRatio for the Gaussian smoothing.
func WithBoxSigmaRatio(ratio float64) DetectOption {
	return func(o *detectOptions) { o.boxSigmaRatio = ratio }
}

func (o detectOptions) validate() error {
	switch {
	case o.maxSmoothFrac <= 0:
		return fmt.Errorf("%w: max smooth fraction %g", schema.ErrInvalidConfiguration, o.maxSmoothFrac)
	case o.baselineWidth < 1:
		return fmt.Errorf("%w: baseline width %d", schema.ErrInvalidConfiguration, o.baselineWidth)
	case o.fixedWidth != 0 && o.fixedWidth < 1:
		return fmt.Errorf("%w: fixed width %g < 1", schema.ErrInvalidConfiguration, o.fixedWidth)
	case o.tolerance <= 0 || o.maxIter < 1:
		return fmt.Errorf("%w: search tolerance %g, max iterations %d", schema.ErrInvalidConfiguration, o.tolerance, o.maxIter)
	case o.boxSigmaRatio <= 0:
		return fmt.Errorf("%w: box/sigma ratio %g", schema.ErrInvalidConfiguration, o.boxSigmaRatio)
	}
	return nil
}

// Detect runs the smoothed sigma clip on sig: it estimates a robust centre and
// point-to-point noise, searches the Gaussian smoothing width that maximizes the
// peak normalized SNR, and flags samples whose normalized SNR exceeds threshold.
func Detect(sig schema.Signal, threshold float64, mode schema.DetectMode, opts ...DetectOption) (schema.DetectionResult, error) {
	o := detectOptions{
		maxSmoothFrac: DefaultMaxSmoothFrac,
		baselineWidth: DefaultBaselineSmoothSize,
		tolerance:     DefaultSearchTolerance,
		maxIter:       DefaultSearchMaxIter,
		boxSigmaRatio: DefaultBoxSigmaRatio,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if _, ok := schema.ValidDetectModes[mode]; !ok {
		return schema.DetectionResult{}, fmt.Errorf("%w: detect mode %q", schema.ErrInvalidConfiguration, mode)
	}
	if err := o.validate(); err != nil {
		return schema.DetectionResult{}, err
	}
	if err := sig.Validate(); err != nil {
		return schema.DetectionResult{}, err
	}

	mu, _, err := RobustStats(sig)
	if err != nil {
		return schema.DetectionResult{}, fmt.Errorf("detection centre: %w", err)
	}
	sigma, err := baselineNoise(sig, min(o.baselineWidth, sig.Len()))
	if err != nil {
		return schema.DetectionResult{}, err
	}

	twoSided := mode == schema.TwoSided
	widthmax := o.fixedWidth
	if widthmax == 0 {
		upper := math.Max(1, o.maxSmoothFrac*float64(sig.Len()))
		objective := func(w float64) float64 {
			nd, err := normalizedSNR(sig, w, mu, sigma, o.boxSigmaRatio)
			if err != nil {
				return math.Inf(1)
			}
			_, peak, ok := peakOf(nd, twoSided)
			if !ok || math.IsNaN(peak) {
				return math.Inf(1)
			}
			return -peak
		}
		widthmax, _, err = minimizeBounded(objective, 1, upper, o.tolerance, o.maxIter)
		if err != nil {
			return schema.DetectionResult{}, fmt.Errorf("smoothing width search: %w", err)
		}
	}

	normdata, err := normalizedSNR(sig, widthmax, mu, sigma, o.boxSigmaRatio)
	if err != nil {
		return schema.DetectionResult{}, err
	}
	chanmax, _, ok := peakOf(normdata, twoSided)
	if !ok {
		return schema.DetectionResult{}, fmt.Errorf("no unmasked smoothed samples: %w", schema.ErrInsufficientData)
	}
	_, snrmax, _ := peakOf(normdata, false)

	outliers := make([]bool, normdata.Len())
	for i, v := range normdata.Values {
		if normdata.Masked(i) {
			continue
		}
		if twoSided {
			outliers[i] = math.Abs(v) > threshold
		} else {
			outliers[i] = v > threshold
		}
	}

	return schema.DetectionResult{
		ChanMax:  chanmax,
		SNRMax:   snrmax,
		Outliers: outliers,
		WidthMax: widthmax,
		SmSigma:  sigma / math.Sqrt(widthmax),
		DataMax:  sig.Values[chanmax],
		NormData: normdata,
	}, nil
}

// baselineNoise is the robust scale of sig minus its boxcar baseline.
func baselineNoise(sig schema.Signal, width int) (float64, error) {
	baseline, err := BoxcarSmooth(sig, width)
	if err != nil {
		return 0, err
	}
	resid, err := sig.Sub(baseline)
	if err != nil {
		return 0, err
	}
	_, sigma, err := RobustStats(resid)
	if err != nil {
		return 0, fmt.Errorf("baseline noise: %w", err)
	}
	if sigma == 0 || math.IsNaN(sigma) {
		return 0, fmt.Errorf("baseline noise is zero: %w", schema.ErrInsufficientData)
	}
	return sigma, nil
}

// normalizedSNR is (gaussian(sig, w) - mu) / (sigma / sqrt(w)).
func normalizedSNR(sig schema.Signal, w, mu, sigma, ratio float64) (schema.Signal, error) {
	sm, err := GaussianSmooth(sig, w, ratio)
	if err != nil {
		return schema.Signal{}, err
	}
	smSigma := sigma / math.Sqrt(w)
	for i := range sm.Values {
		sm.Values[i] = (sm.Values[i] - mu) / smSigma
	}
	return sm, nil
}

// peakOf returns the index and value of the largest unmasked sample, comparing
// (and returning) magnitudes when absolute is set.
func peakOf(sig schema.Signal, absolute bool) (idx int, value float64, ok bool) {
	best := math.Inf(-1)
	idx = -1
	for i, v := range sig.Values {
		if sig.Masked(i) {
			continue
		}
		key := v
		if absolute {
			key = math.Abs(v)
		}
		if key > best || idx < 0 {
			best, idx = key, i
		}
	}
	if idx < 0 {
		return 0, 0, false
	}
	if absolute {
		return idx, best, true
	}
	return idx, sig.Values[idx], true
}
