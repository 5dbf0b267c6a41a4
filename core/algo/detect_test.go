package algo

import (
	"math"
	"testing"

	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bumpSignal is unit Gaussian noise plus a Gaussian feature of the given
// amplitude and sigma centred at centre.
func bumpSignal(seed uint64, n, centre int, amplitude, width float64) []float64 {
	values := noise(seed, n, 0, 1)
	for i := range values {
		d := float64(i-centre) / width
		values[i] += amplitude * math.Exp(-0.5*d*d)
	}
	return values
}

func TestDetectNullCase(t *testing.T) {
	for _, mode := range []schema.DetectMode{schema.TwoSided, schema.OneSided} {
		t.Run(string(mode), func(t *testing.T) {
			falsePositives := 0
			for seed := range uint64(30) {
				sig := mustSignal(t, noise(seed+100, 256, 5, 1), nil)
				res, err := Detect(sig, 10, mode)
				require.NoError(t, err)
				if res.OutlierCount() > 0 {
					falsePositives++
				}
			}
			assert.Zero(t, falsePositives)
		})
	}
}

func TestDetectFindsBump(t *testing.T) {
	for seed := range uint64(5) {
		sig := mustSignal(t, bumpSignal(seed, 200, 100, 20, 2), nil)
		res, err := Detect(sig, 10, schema.TwoSided)
		require.NoError(t, err)

		assert.True(t, res.Outliers[res.ChanMax], "seed %d", seed)
		assert.InDelta(t, 100, res.ChanMax, 5, "seed %d", seed)
		assert.GreaterOrEqual(t, res.WidthMax, 1.0)
		assert.LessOrEqual(t, res.WidthMax, 20.0)
		assert.InDelta(t, sig.Values[res.ChanMax], res.DataMax, 0)
		assert.Greater(t, res.SNRMax, 10.0)
	}
}

func TestDetectOneSidedIgnoresDips(t *testing.T) {
	sig := mustSignal(t, bumpSignal(9, 200, 60, -20, 2), nil)

	res, err := Detect(sig, 10, schema.OneSided)
	require.NoError(t, err)
	assert.Zero(t, res.OutlierCount())

	res, err = Detect(sig, 10, schema.TwoSided)
	require.NoError(t, err)
	assert.Positive(t, res.OutlierCount())
}

func TestDetectSNRMaxIsSignedMaximum(t *testing.T) {
	sig := mustSignal(t, bumpSignal(4, 200, 80, -20, 2), nil)
	res, err := Detect(sig, 10, schema.TwoSided)
	require.NoError(t, err)

	atPeak := res.NormData.Values[res.ChanMax]
	assert.Less(t, atPeak, -10.0, "chanmax follows the absolute value")
	assert.True(t, res.Outliers[res.ChanMax])

	maxND := math.Inf(-1)
	for i, v := range res.NormData.Values {
		if !res.NormData.Masked(i) {
			maxND = math.Max(maxND, v)
		}
	}
	assert.Equal(t, maxND, res.SNRMax)
	assert.NotEqual(t, atPeak, res.SNRMax)
}

func TestDetectFixedWidth(t *testing.T) {
	sig := mustSignal(t, bumpSignal(2, 200, 120, 20, 2), nil)
	searched, err := Detect(sig, 10, schema.TwoSided)
	require.NoError(t, err)

	fixed, err := Detect(sig, 10, schema.TwoSided, WithFixedWidth(searched.WidthMax))
	require.NoError(t, err)
	assert.Equal(t, searched.WidthMax, fixed.WidthMax)
	assert.Equal(t, searched.ChanMax, fixed.ChanMax)
	assert.Equal(t, searched.Outliers, fixed.Outliers)

	three, err := Detect(sig, 10, schema.TwoSided, WithFixedWidth(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, three.WidthMax)
	assert.InDelta(t, searched.SmSigma*math.Sqrt(searched.WidthMax)/math.Sqrt(3), three.SmSigma, 1e-12)
}

func TestDetectDeterministic(t *testing.T) {
	sig := mustSignal(t, bumpSignal(3, 300, 150, 15, 3), nil)
	a, err := Detect(sig, 8, schema.TwoSided)
	require.NoError(t, err)
	b, err := Detect(sig, 8, schema.TwoSided)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDetectMaskedSamples(t *testing.T) {
	values := bumpSignal(5, 200, 100, 20, 2)
	mask := make([]bool, len(values))
	for i := 10; i < 20; i++ {
		mask[i] = true
		values[i] = 1e6
	}
	res, err := Detect(mustSignal(t, values, mask), 10, schema.TwoSided)
	require.NoError(t, err)
	assert.InDelta(t, 100, res.ChanMax, 5)
	for i := 10; i < 20; i++ {
		assert.False(t, res.Outliers[i], "masked index %d", i)
		assert.True(t, res.NormData.Mask[i])
	}
}

func TestDetectErrors(t *testing.T) {
	good := mustSignal(t, noise(1, 100, 0, 1), nil)
	allMasked := mustSignal(t, noise(1, 100, 0, 1), make([]bool, 100))
	for i := range allMasked.Mask {
		allMasked.Mask[i] = true
	}
	constant := mustSignal(t, make([]float64, 100), nil)

	tests := []struct {
		name string
		sig  schema.Signal
		mode schema.DetectMode
		opts []DetectOption
		err  error
	}{
		{"unknown mode", good, "three", nil, schema.ErrInvalidConfiguration},
		{"all masked", allMasked, schema.TwoSided, nil, schema.ErrInsufficientData},
		{"zero noise", constant, schema.TwoSided, nil, schema.ErrInsufficientData},
		{"fractional fixed width", good, schema.TwoSided, []DetectOption{WithFixedWidth(0.5)}, schema.ErrInvalidConfiguration},
		{"zero baseline", good, schema.TwoSided, []DetectOption{WithBaselineSmoothWidth(0)}, schema.ErrInvalidConfiguration},
		{"bad fraction", good, schema.TwoSided, []DetectOption{WithMaxSmoothFrac(0)}, schema.ErrInvalidConfiguration},
		{"search budget", good, schema.TwoSided, []DetectOption{WithMaxIterations(2)}, schema.ErrFitConvergence},
		{"bad mask", schema.Signal{Values: []float64{1, 2}, Mask: []bool{true}}, schema.TwoSided, nil, schema.ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Detect(tt.sig, 10, tt.mode, tt.opts...)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDetectShortSignal(t *testing.T) {
	// max(1, 0.1*N) collapses the search interval to a single width
	sig := mustSignal(t, []float64{0.1, -0.3, 0.2, 0.05, -0.1, 0.3, -0.2, 0.15}, nil)
	res, err := Detect(sig, 10, schema.TwoSided)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.WidthMax)
	assert.Zero(t, res.OutlierCount())
}

func BenchmarkDetect(b *testing.B) {
	sig := mustSignal(b, bumpSignal(1, 1024, 500, 20, 3), nil)
	for b.Loop() {
		_, _ = Detect(sig, 10, schema.TwoSided)
	}
}
