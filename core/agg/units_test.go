package agg

import (
	"math"
	"testing"

	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnitFactors(t *testing.T) {
	units, err := NewUnitFactors(2e9, map[string]float64{"XX": 2, "YY": 0.5})
	require.NoError(t, err)

	tests := []struct {
		pol      string
		metric   schema.Metric
		expected float64
	}{
		{"XX", schema.AmpSlope, 25},
		{"XX", schema.AmpIntercept, 50},
		{"YY", schema.AmpIntercept, 200},
		{"XX", schema.PhaseSlope, 90 / math.Pi},
		{"YY", schema.PhaseIntercept, 180 / math.Pi},
		{schema.StokesI, schema.AmpIntercept, 80},
	}
	for _, tt := range tests {
		f, ok := units.Factor(tt.pol, tt.metric)
		require.True(t, ok, "%s %s", tt.pol, tt.metric)
		assert.InDelta(t, tt.expected, f, 1e-12, "%s %s", tt.pol, tt.metric)
	}

	_, ok := units.Factor("RR", schema.AmpSlope)
	assert.False(t, ok)
}

func TestNewUnitFactorsInvalid(t *testing.T) {
	_, err := NewUnitFactors(0, map[string]float64{"XX": 1})
	assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)

	_, err = NewUnitFactors(math.NaN(), map[string]float64{"XX": 1})
	assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)

	_, err = NewUnitFactors(1e9, nil)
	assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)

	_, err = NewUnitFactors(1e9, map[string]float64{"XX": 0})
	assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
}
