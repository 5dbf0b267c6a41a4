package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sdOptions shape the synthetic single-dish dataset.
type sdOptions struct {
	nScans   int
	ntime    int
	dipScan  int // scan with a negative spectral feature on antenna 1
	periodic int // antenna whose gain oscillates with a period of 8 integrations, -1 for none
}

// sdDataset builds autocorrelation spectra of two antennas (XX only) around 10 units.
// Every spectrum carries the same science line at channel 40.
func sdDataset(seed uint64, o sdOptions) *schema.Dataset {
	const nAnt, nchan = 2, 128
	dist := newNormal(seed, 0.1)
	gauss := func(ch, centre, width float64) float64 {
		d := (ch - centre) / width
		return math.Exp(-0.5 * d * d)
	}

	freq := make([]float64, nchan)
	for ch := range freq {
		freq[ch] = 230e9 + float64(ch)*1e6
	}
	spw := schema.SpectralWindowData{ID: 3, Freq: freq}
	for s := range o.nScans {
		scan := schema.ScanData{ID: s + 1}
		for ant := range nAnt {
			plane := make([][]complex128, nchan)
			for ch := range plane {
				level := 10 + 5*gauss(float64(ch), 40, 3)
				if scan.ID == o.dipScan && ant == 1 {
					level -= 2 * gauss(float64(ch), 90, 2)
				}
				plane[ch] = make([]complex128, o.ntime)
				for t := range plane[ch] {
					gain := 1.0
					if ant == o.periodic {
						gain += 0.05 * math.Sin(2*math.Pi*float64(t)/8)
					}
					plane[ch][t] = complex(gain*level+dist.Rand(), 0)
				}
			}
			scan.Antennas = append(scan.Antennas, schema.AntennaData{
				ID:   ant,
				Name: fmt.Sprintf("PM0%d", ant+1),
				Cube: schema.VisibilityCube{Polarizations: []string{"XX"}, Data: [][][]complex128{plane}},
			})
		}
		spw.Scans = append(spw.Scans, scan)
	}
	return &schema.Dataset{Vis: "uid___A002_X2.ms", Intent: "TARGET", SpectralWindows: []schema.SpectralWindowData{spw}}
}

// stubTrec serves a receiver temperature bump at channel 90 for one antenna and scan.
type stubTrec struct {
	scan    int
	antenna string
	calls   int
}

func (s *stubTrec) Trec(_ context.Context, _, scan int) (map[string]schema.TrecSpectrum, error) {
	s.calls++
	if scan != s.scan {
		return nil, errors.New("no Trec for scan")
	}
	dist := newNormal(99, 0.1)
	values := make([]float64, 128)
	for ch := range values {
		d := (float64(ch) - 90) / 2
		values[ch] = 50 + 5*math.Exp(-0.5*d*d) + dist.Rand()
	}
	return map[string]schema.TrecSpectrum{
		s.antenna: {Antenna: s.antenna, Polarizations: []string{"XX"}, Values: [][]float64{values}},
	}, nil
}

func filterMetric(records []schema.OutlierRecord, metric schema.Metric) []schema.OutlierRecord {
	var out []schema.OutlierRecord
	for _, r := range records {
		if r.Metric == metric {
			out = append(out, r)
		}
	}
	return out
}

func TestEvaluateSingleDishDeviation(t *testing.T) {
	ds := sdDataset(11, sdOptions{nScans: 4, ntime: 16, dipScan: 3, periodic: -1})
	cfg := testConfig()
	cfg.Mode = schema.SingleDishMode

	unit := evaluateSingleDish(context.Background(), cfg, ds, ds.SpectralWindows[0], nil)
	require.True(t, unit.Evaluated, unit.Err)
	assert.Equal(t, 3, unit.SPW)
	assert.Equal(t, schema.AllScanAggregate, unit.Scan)

	devs := filterMetric(unit.Outliers, schema.SDDeviation)
	require.Len(t, devs, 1, "the science line is common to every scan and is not a deviation")
	rec := devs[0]
	assert.Equal(t, 1, rec.Antenna)
	assert.Equal(t, "PM02", rec.AntennaName)
	assert.Equal(t, 3, rec.Scan)
	assert.Equal(t, "XX", rec.Polarization)
	assert.Equal(t, "uid___A002_X2.ms", rec.Vis)
	assert.Less(t, rec.NumSigma, -10.0, "a dip has negative significance")
	assert.InDelta(t, 20, rec.DeltaPhysical, 3, "deviation in percent of the median spectrum")
	assert.Equal(t, []schema.Reason{schema.ReasonSDDeviation}, rec.Reasons)

	assert.Empty(t, filterMetric(unit.Outliers, schema.SDPeriodicity))
}

func TestEvaluateSingleDishTrecCorroboration(t *testing.T) {
	ds := sdDataset(12, sdOptions{nScans: 4, ntime: 16, dipScan: 2, periodic: -1})
	cfg := testConfig()
	cfg.Mode = schema.SingleDishMode
	trec := &stubTrec{scan: 2, antenna: "PM02"}

	unit := evaluateSingleDish(context.Background(), cfg, ds, ds.SpectralWindows[0], trec)
	require.True(t, unit.Evaluated, unit.Err)

	devs := filterMetric(unit.Outliers, schema.SDDeviation)
	require.Len(t, devs, 1)
	assert.True(t, devs[0].HasReason(schema.ReasonTrecConfirmed))
	assert.True(t, devs[0].HasReason(schema.ReasonSDDeviation))
	assert.Equal(t, 1, trec.calls, "Trec is loaded once per scan")
}

func TestEvaluateSingleDishTrecUnavailable(t *testing.T) {
	ds := sdDataset(13, sdOptions{nScans: 4, ntime: 16, dipScan: 2, periodic: -1})
	cfg := testConfig()
	cfg.Mode = schema.SingleDishMode
	trec := &stubTrec{scan: 4, antenna: "PM02"}

	unit := evaluateSingleDish(context.Background(), cfg, ds, ds.SpectralWindows[0], trec)
	require.True(t, unit.Evaluated, unit.Err)

	devs := filterMetric(unit.Outliers, schema.SDDeviation)
	require.Len(t, devs, 1)
	assert.False(t, devs[0].HasReason(schema.ReasonTrecConfirmed))
}

func TestEvaluateSingleDishPeriodicity(t *testing.T) {
	ds := sdDataset(14, sdOptions{nScans: 3, ntime: 256, periodic: 0})
	cfg := testConfig()
	cfg.Mode = schema.SingleDishMode
	cfg.PeriodicityThreshold = 10

	unit := evaluateSingleDish(context.Background(), cfg, ds, ds.SpectralWindows[0], nil)
	require.True(t, unit.Evaluated, unit.Err)

	var found []schema.OutlierRecord
	for _, r := range filterMetric(unit.Outliers, schema.SDPeriodicity) {
		if r.Antenna == 0 {
			found = append(found, r)
		}
	}
	require.Len(t, found, 3, "every scan of the oscillating antenna")
	for _, r := range found {
		assert.InDelta(t, 0.125, r.DeltaPhysical, 2.0/256, "peak at one cycle per 8 integrations")
		assert.Greater(t, r.NumSigma, 10.0)
	}
}

func TestEvaluateSingleDishCancelled(t *testing.T) {
	ds := sdDataset(15, sdOptions{nScans: 2, ntime: 16, periodic: -1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	unit := evaluateSingleDish(ctx, testConfig(), ds, ds.SpectralWindows[0], nil)
	assert.False(t, unit.Evaluated)
	assert.Equal(t, context.Canceled.Error(), unit.Err)
}

func TestCollectTargets(t *testing.T) {
	ds := sdDataset(16, sdOptions{nScans: 3, ntime: 4, periodic: -1})
	targets := collectTargets(ds.SpectralWindows[0])
	require.Len(t, targets, 2)
	for i, tg := range targets {
		assert.Equal(t, i, tg.antenna)
		assert.Equal(t, "XX", tg.pol)
		require.Len(t, tg.scans, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{tg.scans[0].id, tg.scans[1].id, tg.scans[2].id})
	}
}

func TestCombineSpectra(t *testing.T) {
	a := schema.Signal{Values: []float64{1, 2, 3}, Mask: []bool{false, true, false}}
	b := schema.Signal{Values: []float64{3, 9, 5}, Mask: []bool{false, true, false}}
	c := schema.Signal{Values: []float64{2, 9, 100}, Mask: []bool{false, true, false}}

	median := combineSpectra([]schema.Signal{a, b, c}, func(v []float64) float64 {
		if len(v) == 3 {
			return v[0] + v[1] + v[2] - math.Max(v[0], math.Max(v[1], v[2])) - math.Min(v[0], math.Min(v[1], v[2]))
		}
		return v[0]
	})
	assert.Equal(t, []float64{2, 0, 5}, median.Values)
	assert.Equal(t, []bool{false, true, false}, median.Mask, "channels masked everywhere stay masked")

	avg := combineSpectra([]schema.Signal{a, b}, mean)
	assert.Equal(t, []float64{2, 0, 4}, avg.Values)

	assert.Zero(t, combineSpectra(nil, mean).Len())
}

func TestAmplitudeSpectrumAndSeries(t *testing.T) {
	cube := schema.VisibilityCube{
		Polarizations: []string{"XX"},
		Data: [][][]complex128{{
			{3 + 4i, 0 + 1i},
			{1, 1},
		}},
		Flags: [][][]bool{{
			{false, false},
			{true, true},
		}},
	}

	spec := amplitudeSpectrum(cube, 0)
	assert.Equal(t, []float64{3, 0}, spec.Values)
	assert.Equal(t, []bool{false, true}, spec.Mask)

	series := amplitudeSeries(cube, 0, nil)
	assert.Equal(t, []float64{5, 1}, series.Values)

	excluded := amplitudeSeries(cube, 0, []bool{true, false})
	assert.Equal(t, []bool{true, true}, excluded.Mask, "no channel is left")
}
