package core

import (
	"context"
	"testing"

	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitResultBuilderChaining(t *testing.T) {
	ds := ifDataset(21, 6, 1, map[int]float64{2: -2.5})
	spw := ds.SpectralWindows[0]

	res := NewUnitResultBuilder(context.Background(), testConfig(), ds, spw, spw.Scans[0]).
		FitAntennas().
		FindOutliers().
		EnlargeFlags().
		Build()

	require.True(t, res.Evaluated, res.Err)
	assert.Empty(t, res.Err)
	require.Len(t, res.Fits, 12)
	for _, f := range res.Fits {
		assert.Equal(t, ds.Vis, f.Vis)
		assert.Equal(t, 17, f.SPW)
		assert.Equal(t, 1, f.Scan)
		assert.False(t, f.LowSNR)
		assert.InDelta(t, 1, f.Amp.Intercept.Value, 0.01)
	}

	require.Len(t, res.Outliers, 2)
	for _, rec := range res.Outliers {
		assert.Equal(t, 2, rec.Antenna)
		assert.Equal(t, "DA43", rec.AntennaName)
		assert.Less(t, rec.NumSigma, 0.0)
		assert.True(t, rec.HasReason(schema.ReasonGT90DegOffset))
	}
}

func TestUnitResultBuilderFailures(t *testing.T) {
	t.Run("no antenna can be fitted", func(t *testing.T) {
		ds := ifDataset(22, 3, 1, nil)
		flagScan(ds, 1)
		spw := ds.SpectralWindows[0]

		res := NewUnitResultBuilder(context.Background(), testConfig(), ds, spw, spw.Scans[0]).
			FitAntennas().FindOutliers().EnlargeFlags().Build()
		assert.False(t, res.Evaluated)
		assert.Contains(t, res.Err, "no antenna could be fitted")
		assert.Nil(t, res.Fits)
		assert.Nil(t, res.Outliers)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ds := ifDataset(23, 3, 1, nil)
		spw := ds.SpectralWindows[0]
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := NewUnitResultBuilder(ctx, testConfig(), ds, spw, spw.Scans[0]).FitAntennas().Build()
		assert.False(t, res.Evaluated)
		assert.Equal(t, context.Canceled.Error(), res.Err)
	})

	t.Run("single antenna has no reference", func(t *testing.T) {
		ds := ifDataset(24, 1, 1, map[int]float64{0: 2})
		spw := ds.SpectralWindows[0]

		res := NewUnitResultBuilder(context.Background(), testConfig(), ds, spw, spw.Scans[0]).
			FitAntennas().FindOutliers().EnlargeFlags().Build()
		require.True(t, res.Evaluated, res.Err)
		assert.Len(t, res.Fits, 2)
		// phase is compared with zero, so a lone antenna can still be flagged
		assert.Len(t, res.Outliers, 2)
	})
}

func TestMedianFluxByPol(t *testing.T) {
	fit := func(pol string, amp float64) schema.AntennaFit {
		return schema.AntennaFit{Polarization: pol, Amp: schema.FitResult{Intercept: schema.Measurement{Value: amp}}}
	}
	flux := medianFluxByPol([]schema.AntennaFit{
		fit("XX", 1), fit("XX", 3), fit("XX", 2),
		fit("YY", 4), fit("YY", 6),
	})
	assert.Equal(t, map[string]float64{"XX": 2, "YY": 5}, flux)
}

func TestAggregateScans(t *testing.T) {
	ds := ifDataset(25, 2, 3, nil)
	spw := ds.SpectralWindows[0]

	merged, err := aggregateScans(spw)
	require.NoError(t, err)
	assert.Equal(t, schema.AllScanAggregate, merged.ID)
	require.Len(t, merged.Antennas, 2)
	for _, ant := range merged.Antennas {
		assert.Equal(t, 48, ant.Cube.NumTimes())
		assert.NoError(t, ant.Cube.Validate())
	}
	assert.Equal(t, 16, spw.Scans[0].Antennas[0].Cube.NumTimes(), "input cubes are untouched")

	t.Run("mismatched polarizations", func(t *testing.T) {
		bad := ifDataset(26, 2, 2, nil).SpectralWindows[0]
		bad.Scans[1].Antennas[0].Cube.Polarizations = []string{"RR", "LL"}
		_, err := aggregateScans(bad)
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
	})

	t.Run("mismatched channels", func(t *testing.T) {
		bad := ifDataset(27, 2, 2, nil).SpectralWindows[0]
		cube := &bad.Scans[1].Antennas[1].Cube
		for p := range cube.Data {
			cube.Data[p] = cube.Data[p][:8]
		}
		_, err := aggregateScans(bad)
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
	})
}
