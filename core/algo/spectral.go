package algo

import (
	"fmt"
	"math/cmplx"

	"github.com/huangsam/visqa/schema"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/interp"
)

// DefaultMinSegmentSize is the shortest unmasked run that gets its own transform.
const DefaultMinSegmentSize = 20

// Segment is a half-open run [Start, End) of unmasked samples.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of samples in the run.
func (s Segment) Len() int { return s.End - s.Start }

type spectralOptions struct {
	spacing  float64
	minSize  int
	segments []Segment
	cached   bool
}

// SpectralOption customizes SpectralPower.
type SpectralOption func(*spectralOptions)

// WithSampleSpacing sets the sample spacing used to build frequency grids.
func WithSampleSpacing(d float64) SpectralOption {
	return func(o *spectralOptions) { o.spacing = d }
}

// WithMinSegmentSize sets the shortest run worth transforming.
func WithMinSegmentSize(n int) SpectralOption {
	return func(o *spectralOptions) { o.minSize = n }
}

// WithSegments reuses runs computed earlier by Segments for the same mask.
func WithSegments(segs []Segment) SpectralOption {
	return func(o *spectralOptions) {
		o.segments = segs
		o.cached = true
	}
}

func newSpectralOptions(opts []SpectralOption) (spectralOptions, error) {
	o := spectralOptions{spacing: 1, minSize: DefaultMinSegmentSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.spacing <= 0 {
		return o, fmt.Errorf("%w: sample spacing %g", schema.ErrInvalidConfiguration, o.spacing)
	}
	if o.minSize < 2 {
		return o, fmt.Errorf("%w: minimum segment size %d < 2", schema.ErrInvalidConfiguration, o.minSize)
	}
	return o, nil
}

// Segments partitions the unmasked indices of mask into maximal contiguous runs
// and keeps those at least minSize long.
func Segments(mask []bool, minSize int) []Segment {
	var segs []Segment
	start := -1
	for i := 0; i <= len(mask); i++ {
		masked := i == len(mask) || mask[i]
		switch {
		case !masked && start < 0:
			start = i
		case masked && start >= 0:
			if i-start >= minSize {
				segs = append(segs, Segment{Start: start, End: i})
			}
			start = -1
		}
	}
	return segs
}

// RFFTFreq returns the n/2+1 non-negative frequencies of a real transform of n
// samples spaced d apart.
func RFFTFreq(n int, d float64) []float64 {
	out := make([]float64, n/2+1)
	for k := range out {
		out[k] = float64(k) / (float64(n) * d)
	}
	return out
}

// FFTFreqShifted returns the n frequencies of a complex transform in ascending order.
func FFTFreqShifted(n int, d float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i-n/2) / (float64(n) * d)
	}
	return out
}

// SpectralPower returns the FFT magnitude of a masked real signal on freqAxis.
// Unmasked input gives |rFFT| directly; masked input sums the magnitudes of
// every long enough unmasked run, each resampled onto freqAxis. Too little
// unmasked data gives an all-zero spectrum.
func SpectralPower(sig schema.Signal, freqAxis []float64, opts ...SpectralOption) ([]float64, error) {
	o, err := newSpectralOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	n := sig.Len()
	if n == 0 {
		return nil, fmt.Errorf("empty signal: %w", schema.ErrInsufficientData)
	}

	valid := sig.CountValid()
	if valid == n {
		if len(freqAxis) != n/2+1 {
			return nil, fmt.Errorf("%w: frequency axis has %d points, real transform of %d samples has %d",
				schema.ErrInvalidConfiguration, len(freqAxis), n, n/2+1)
		}
		return realMagnitude(sig.Values), nil
	}

	power := make([]float64, len(freqAxis))
	if valid < o.minSize {
		return power, nil
	}
	segs := o.segments
	if !o.cached {
		segs = Segments(sig.MaskOf(), o.minSize)
	}
	for _, seg := range segs {
		if seg.Len() < o.minSize || seg.Start < 0 || seg.End > n {
			continue
		}
		mag := realMagnitude(sig.Values[seg.Start:seg.End])
		accumulate(power, freqAxis, RFFTFreq(seg.Len(), o.spacing), mag)
	}
	return power, nil
}

// SpectralPowerComplex is SpectralPower for complex signals. Spectra are in
// ascending frequency order, so freqAxis for unmasked input has n points.
func SpectralPowerComplex(sig schema.ComplexSignal, freqAxis []float64, opts ...SpectralOption) ([]float64, error) {
	o, err := newSpectralOptions(opts)
	if err != nil {
		return nil, err
	}
	n := sig.Len()
	if sig.Mask != nil && len(sig.Mask) != n {
		return nil, fmt.Errorf("%w: mask length %d != value length %d", schema.ErrInvalidConfiguration, len(sig.Mask), n)
	}
	if n == 0 {
		return nil, fmt.Errorf("empty signal: %w", schema.ErrInsufficientData)
	}

	valid := sig.CountValid()
	if valid == n {
		if len(freqAxis) != n {
			return nil, fmt.Errorf("%w: frequency axis has %d points, complex transform has %d",
				schema.ErrInvalidConfiguration, len(freqAxis), n)
		}
		return complexMagnitude(sig.Values), nil
	}

	power := make([]float64, len(freqAxis))
	if valid < o.minSize {
		return power, nil
	}
	segs := o.segments
	if !o.cached {
		segs = Segments(sig.MaskOf(), o.minSize)
	}
	for _, seg := range segs {
		if seg.Len() < o.minSize || seg.Start < 0 || seg.End > n {
			continue
		}
		mag := complexMagnitude(sig.Values[seg.Start:seg.End])
		accumulate(power, freqAxis, FFTFreqShifted(seg.Len(), o.spacing), mag)
	}
	return power, nil
}

func realMagnitude(x []float64) []float64 {
	coeff := fourier.NewFFT(len(x)).Coefficients(nil, x)
	out := make([]float64, len(coeff))
	for i, c := range coeff {
		out[i] = cmplx.Abs(c)
	}
	return out
}

// complexMagnitude returns |FFT(x)| with the zero frequency moved to the centre.
func complexMagnitude(x []complex128) []float64 {
	fft := fourier.NewCmplxFFT(len(x))
	coeff := fft.Coefficients(nil, x)
	out := make([]float64, len(coeff))
	for i := range out {
		out[i] = cmplx.Abs(coeff[fft.ShiftIdx(i)])
	}
	return out
}

// accumulate adds mag, sampled on grid, to power sampled on axis. Values beyond
// the ends of grid are clamped to the end values.
func accumulate(power, axis, grid, mag []float64) {
	var pl interp.PiecewiseLinear
	if err := pl.Fit(grid, mag); err != nil {
		return
	}
	for i, f := range axis {
		power[i] += pl.Predict(f)
	}
}
