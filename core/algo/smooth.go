package algo

import (
	"fmt"
	"math"

	"github.com/huangsam/visqa/schema"
	"gonum.org/v1/gonum/floats"
)

// DefaultBoxSigmaRatio converts a boxcar-equivalent width into a Gaussian sigma.
const DefaultBoxSigmaRatio = 3.55

// gaussTruncate is the kernel half-width in units of sigma.
const gaussTruncate = 4.0

// BoxcarSmooth convolves sig with a uniform kernel of the given width.
// The mask grows wherever the kernel touches a masked sample.
func BoxcarSmooth(sig schema.Signal, width int) (schema.Signal, error) {
	if width < 1 {
		return schema.Signal{}, fmt.Errorf("%w: boxcar width %d < 1", schema.ErrInvalidConfiguration, width)
	}
	kernel := make([]float64, width)
	for i := range kernel {
		kernel[i] = 1 / float64(width)
	}
	return maskedConvolve(sig, kernel)
}

// GaussianSmooth convolves sig with a Gaussian of sigma width/boxSigmaRatio,
// truncated at four sigma. width may be fractional.
func GaussianSmooth(sig schema.Signal, width, boxSigmaRatio float64) (schema.Signal, error) {
	if width < 1 || math.IsNaN(width) || math.IsInf(width, 0) {
		return schema.Signal{}, fmt.Errorf("%w: gaussian width %g < 1", schema.ErrInvalidConfiguration, width)
	}
	if boxSigmaRatio <= 0 {
		return schema.Signal{}, fmt.Errorf("%w: box/sigma ratio %g", schema.ErrInvalidConfiguration, boxSigmaRatio)
	}
	return maskedConvolve(sig, gaussianKernel(width/boxSigmaRatio))
}

// gaussianKernel returns an odd-length normalized Gaussian.
func gaussianKernel(sigma float64) []float64 {
	radius := int(gaussTruncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// maskedConvolve fills masked samples with zero, convolves data and mask with the
// same kernel and masks every output whose convolved mask is positive.
func maskedConvolve(sig schema.Signal, kernel []float64) (schema.Signal, error) {
	if err := sig.Validate(); err != nil {
		return schema.Signal{}, err
	}
	n := sig.Len()
	filled := make([]float64, n)
	maskf := make([]float64, n)
	for i, v := range sig.Values {
		if sig.Masked(i) {
			maskf[i] = 1
			continue
		}
		filled[i] = v
	}

	out := schema.Signal{Values: convolveReflect(filled, kernel), Mask: make([]bool, n)}
	grown := convolveReflect(maskf, kernel)
	for i, m := range grown {
		out.Mask[i] = m > 0
	}
	return out, nil
}

// convolveReflect correlates x with kernel centred at len(kernel)/2 using
// half-sample symmetric padding (d c b a | a b c d | d c b a).
func convolveReflect(x, kernel []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	origin := len(kernel) / 2
	for i := range out {
		var acc float64
		for j, k := range kernel {
			acc += k * x[reflectIndex(i+j-origin, n)]
		}
		out[i] = acc
	}
	return out
}

// reflectIndex folds idx into [0, n) with half-sample symmetry.
func reflectIndex(idx, n int) int {
	period := 2 * n
	m := idx % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}
