package schema_test

import (
	"testing"

	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignal(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		mask    []bool
		wantErr bool
		valid   int
	}{
		{"nil mask means all valid", []float64{1, 2, 3}, nil, false, 3},
		{"partial mask", []float64{1, 2, 3}, []bool{false, true, false}, false, 2},
		{"length mismatch", []float64{1, 2, 3}, []bool{false}, true, 0},
		{"empty", nil, nil, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := schema.NewSignal(tt.values, tt.mask)
			if tt.wantErr {
				assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.valid, sig.CountValid())
			assert.Len(t, sig.Mask, len(tt.values))
		})
	}
}

func TestNewSignalCopiesInput(t *testing.T) {
	values := []float64{1, 2, 3}
	mask := []bool{false, false, true}
	sig, err := schema.NewSignal(values, mask)
	require.NoError(t, err)

	values[0] = 100
	mask[2] = false
	assert.Equal(t, 1.0, sig.Values[0])
	assert.True(t, sig.Mask[2])
}

func TestSignalSub(t *testing.T) {
	a, _ := schema.NewSignal([]float64{5, 6, 7}, []bool{false, true, false})
	b, _ := schema.NewSignal([]float64{1, 1, 1}, []bool{false, false, true})

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, diff.Values)
	assert.Equal(t, []bool{false, true, true}, diff.Mask)
	assert.Equal(t, []float64{4}, diff.Compressed())

	_, err = a.Sub(schema.Signal{Values: []float64{1}})
	assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
}

func TestOutlierRecordReasons(t *testing.T) {
	var rec schema.OutlierRecord
	rec.AddReason(schema.Reason(schema.PhaseIntercept))
	rec.AddReason(schema.ReasonGT90DegOffset)
	rec.AddReason(schema.Reason(schema.PhaseIntercept))
	rec.AddReason(schema.Reason(schema.AmpSlope))

	assert.Equal(t, []schema.Reason{
		"amp_vs_freq.slope",
		"gt90deg_offset_phase_vs_freq.intercept",
		"phase_vs_freq.intercept",
	}, rec.Reasons)
	assert.True(t, rec.HasReason(schema.ReasonGT90DegOffset))
	assert.False(t, rec.HasReason(schema.ReasonAmpSymOff))
}

func TestAntennaFitValue(t *testing.T) {
	fit := schema.AntennaFit{
		Amp:   schema.FitResult{Slope: schema.Measurement{Value: 1}, Intercept: schema.Measurement{Value: 2}},
		Phase: schema.FitResult{Slope: schema.Measurement{Value: 3}, Intercept: schema.Measurement{Value: 4}},
	}
	for i, m := range schema.AllMetrics {
		assert.Equal(t, float64(i+1), fit.Value(m).Value, m)
	}
}

func TestSpectralWindowBandwidth(t *testing.T) {
	spw := schema.SpectralWindowData{Freq: []float64{100e9, 101e9, 102e9, 103e9}}
	assert.InDelta(t, 4e9, spw.Bandwidth(), 1)

	spw.BandwidthHz = 2e9
	assert.Equal(t, 2e9, spw.Bandwidth())

	assert.Zero(t, schema.SpectralWindowData{Freq: []float64{1}}.Bandwidth())
}

func TestVisibilityCubeValidate(t *testing.T) {
	good := schema.VisibilityCube{
		Polarizations: []string{"XX"},
		Data:          [][][]complex128{{{1, 2}, {3, 4}}},
	}
	require.NoError(t, good.Validate())
	assert.Equal(t, 1, good.NumPols())
	assert.Equal(t, 2, good.NumChans())
	assert.Equal(t, 2, good.NumTimes())
	assert.False(t, good.Flagged(0, 1, 1))

	ragged := schema.VisibilityCube{
		Polarizations: []string{"XX"},
		Data:          [][][]complex128{{{1, 2}, {3}}},
	}
	assert.ErrorIs(t, ragged.Validate(), schema.ErrInvalidConfiguration)

	unlabeled := schema.VisibilityCube{Data: [][][]complex128{{{1}}}}
	assert.ErrorIs(t, unlabeled.Validate(), schema.ErrInvalidConfiguration)
}

func TestEvaluationResultFlatten(t *testing.T) {
	res := schema.EvaluationResult{Units: []schema.UnitResult{
		{Evaluated: true, Outliers: []schema.OutlierRecord{{Antenna: 1}}, Fits: []schema.AntennaFit{{Antenna: 1}}},
		{Evaluated: false, Err: "insufficient data"},
		{Evaluated: true, Outliers: []schema.OutlierRecord{{Antenna: 2}, {Antenna: 3}}},
	}}
	assert.Len(t, res.Outliers(), 3)
	assert.Len(t, res.Fits(), 1)
	assert.Equal(t, 2, res.EvaluatedCount())
}
