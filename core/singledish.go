package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"slices"

	"github.com/huangsam/visqa/core/algo"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// sdScan is one scan of a single-dish target.
type sdScan struct {
	id   int
	cube schema.VisibilityCube
	pol  int
}

// sdTarget is one antenna/polarization followed across the scans of an spw.
type sdTarget struct {
	antenna int
	name    string
	pol     string
	scans   []sdScan
}

// singleDishEvaluator runs the single-dish flow over one spw.
type singleDishEvaluator struct {
	cfg      *contract.Config
	ds       *schema.Dataset
	spw      schema.SpectralWindowData
	trec     contract.TrecSource
	settings detectSettings

	trecByScan map[int]map[string]schema.TrecSpectrum
}

// evaluateSingleDish looks for per-scan spectral deviations and periodic gain
// fluctuations of every antenna/polarization of an spw.
func evaluateSingleDish(ctx context.Context, cfg *contract.Config, ds *schema.Dataset, spw schema.SpectralWindowData, trec contract.TrecSource) schema.UnitResult {
	result := schema.UnitResult{SPW: spw.ID, Scan: schema.AllScanAggregate}
	e := &singleDishEvaluator{
		cfg:        cfg,
		ds:         ds,
		spw:        spw,
		trec:       trec,
		settings:   settingsFromConfig(cfg),
		trecByScan: make(map[int]map[string]schema.TrecSpectrum),
	}

	for _, target := range collectTargets(spw) {
		if err := ctx.Err(); err != nil {
			result.Err = err.Error()
			return result
		}
		records, err := e.evaluateTarget(ctx, target)
		if err != nil {
			result.Err = fmt.Sprintf("antenna %s %s: %v", target.name, target.pol, err)
			return result
		}
		result.Outliers = append(result.Outliers, records...)
	}

	slices.SortStableFunc(result.Outliers, func(a, b schema.OutlierRecord) int {
		return cmp.Or(
			cmp.Compare(a.Scan, b.Scan),
			cmp.Compare(a.Antenna, b.Antenna),
			cmp.Compare(a.Polarization, b.Polarization),
			cmp.Compare(a.Metric, b.Metric),
		)
	})
	result.Evaluated = true
	return result
}

// collectTargets groups the cubes of an spw by (antenna, polarization), in order.
func collectTargets(spw schema.SpectralWindowData) []sdTarget {
	type key struct {
		antenna int
		pol     string
	}
	index := make(map[key]int)
	var targets []sdTarget
	for _, scan := range spw.Scans {
		for _, ant := range scan.Antennas {
			for p, pol := range ant.Cube.Polarizations {
				k := key{ant.ID, pol}
				i, ok := index[k]
				if !ok {
					i = len(targets)
					index[k] = i
					targets = append(targets, sdTarget{antenna: ant.ID, name: ant.Name, pol: pol})
				}
				targets[i].scans = append(targets[i].scans, sdScan{id: scan.ID, cube: ant.Cube, pol: p})
			}
		}
	}
	slices.SortStableFunc(targets, func(a, b sdTarget) int {
		return cmp.Or(cmp.Compare(a.antenna, b.antenna), cmp.Compare(a.pol, b.pol))
	})
	return targets
}

func (e *singleDishEvaluator) evaluateTarget(ctx context.Context, t sdTarget) ([]schema.OutlierRecord, error) {
	spectra := make([]schema.Signal, len(t.scans))
	for i, sc := range t.scans {
		spectra[i] = amplitudeSpectrum(sc.cube, sc.pol)
	}
	median := combineSpectra(spectra, algo.Median)
	lines, err := e.scienceLines(ctx, combineSpectra(spectra, mean))
	if err != nil {
		return nil, err
	}

	var records []schema.OutlierRecord
	for i, sc := range t.scans {
		rec, found, err := e.deviation(ctx, t, sc, spectra[i], median, lines)
		if err != nil {
			return nil, fmt.Errorf("scan %d deviation: %w", sc.id, err)
		}
		if found {
			records = append(records, rec)
		}

		rec, found, err = e.periodicity(ctx, t, sc, lines)
		if err != nil {
			return nil, fmt.Errorf("scan %d periodicity: %w", sc.id, err)
		}
		if found {
			records = append(records, rec)
		}
	}
	return records, nil
}

// scienceLines marks channels of astronomical emission on the scan-averaged
// spectrum so they are not mistaken for deviations.
func (e *singleDishEvaluator) scienceLines(ctx context.Context, avg schema.Signal) ([]bool, error) {
	res, err := cachedDetect(ctx, avg, e.cfg.LineThreshold, schema.OneSided, e.settings)
	if errors.Is(err, schema.ErrInsufficientData) {
		return make([]bool, avg.Len()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("line search: %w", err)
	}
	return res.Outliers, nil
}

// deviation compares one scan's spectrum with the median over scans.
func (e *singleDishEvaluator) deviation(ctx context.Context, t sdTarget, sc sdScan, spectrum, median schema.Signal, lines []bool) (schema.OutlierRecord, bool, error) {
	dev, err := spectrum.Sub(median)
	if err != nil {
		return schema.OutlierRecord{}, false, err
	}
	for c, isLine := range lines {
		if isLine {
			dev.Mask[c] = true
		}
	}

	res, err := cachedDetect(ctx, dev, e.cfg.DeviationThreshold, schema.TwoSided, e.settings)
	if errors.Is(err, schema.ErrInsufficientData) {
		return schema.OutlierRecord{}, false, nil
	}
	if err != nil || res.OutlierCount() == 0 {
		return schema.OutlierRecord{}, false, err
	}

	delta := math.Abs(res.DataMax)
	if level := median.Values[res.ChanMax]; !median.Masked(res.ChanMax) && level > 0 {
		delta = 100 * delta / level
	}
	rec := e.newRecord(t, sc.id, schema.SDDeviation, res.NormData.Values[res.ChanMax], delta)
	if e.corroborated(ctx, t, sc.id, res.Outliers) {
		rec.AddReason(schema.ReasonTrecConfirmed)
	}
	return rec, true, nil
}

// periodicity searches the power spectrum of the channel-averaged amplitude time
// series for a significant periodic component. The DC bin is ignored.
func (e *singleDishEvaluator) periodicity(ctx context.Context, t sdTarget, sc sdScan, lines []bool) (schema.OutlierRecord, bool, error) {
	series := amplitudeSeries(sc.cube, sc.pol, lines)
	n := series.Len()
	if n < 4 {
		return schema.OutlierRecord{}, false, nil
	}
	loc, _, err := algo.RobustStats(series)
	if errors.Is(err, schema.ErrInsufficientData) {
		return schema.OutlierRecord{}, false, nil
	}
	if err != nil {
		return schema.OutlierRecord{}, false, err
	}
	centred := series.Clone()
	for i := range centred.Values {
		centred.Values[i] -= loc
	}

	freq := algo.RFFTFreq(n, 1)
	power, err := algo.SpectralPower(centred, freq, algo.WithMinSegmentSize(e.cfg.MinSegmentSize))
	if err != nil {
		return schema.OutlierRecord{}, false, err
	}
	spectrum, err := schema.NewSignal(power[1:], nil)
	if err != nil {
		return schema.OutlierRecord{}, false, err
	}

	res, err := cachedDetect(ctx, spectrum, e.cfg.PeriodicityThreshold, schema.OneSided, e.settings)
	if errors.Is(err, schema.ErrInsufficientData) {
		return schema.OutlierRecord{}, false, nil
	}
	if err != nil || res.OutlierCount() == 0 {
		return schema.OutlierRecord{}, false, err
	}
	// DeltaPhysical carries the peak frequency in cycles per integration.
	return e.newRecord(t, sc.id, schema.SDPeriodicity, res.SNRMax, freq[res.ChanMax+1]), true, nil
}

// corroborated reports whether the receiver temperature of the same antenna and
// scan deviates in any channel flagged by the visibility detection.
func (e *singleDishEvaluator) corroborated(ctx context.Context, t sdTarget, scan int, flagged []bool) bool {
	spec, ok := e.trecSpectrum(ctx, scan, t.name)
	if !ok {
		return false
	}
	p := slices.Index(spec.Polarizations, t.pol)
	if p < 0 || p >= len(spec.Values) || len(spec.Values[p]) != len(flagged) {
		return false
	}
	med := algo.Median(spec.Values[p])
	values := make([]float64, len(spec.Values[p]))
	for c, v := range spec.Values[p] {
		values[c] = v - med
	}
	sig, err := schema.NewSignal(values, nil)
	if err != nil {
		return false
	}
	res, err := cachedDetect(ctx, sig, e.cfg.DeviationThreshold, schema.TwoSided, e.settings)
	if err != nil {
		return false
	}
	for c, out := range res.Outliers {
		if out && flagged[c] {
			return true
		}
	}
	return false
}

func (e *singleDishEvaluator) trecSpectrum(ctx context.Context, scan int, antenna string) (schema.TrecSpectrum, bool) {
	if e.trec == nil {
		return schema.TrecSpectrum{}, false
	}
	byAnt, ok := e.trecByScan[scan]
	if !ok {
		var err error
		byAnt, err = e.trec.Trec(ctx, e.spw.ID, scan)
		if err != nil {
			contract.LogWarn(fmt.Sprintf("Trec unavailable for spw %d scan %d", e.spw.ID, scan), err)
		}
		e.trecByScan[scan] = byAnt
	}
	spec, ok := byAnt[antenna]
	return spec, ok
}

func (e *singleDishEvaluator) newRecord(t sdTarget, scan int, metric schema.Metric, numSigma, delta float64) schema.OutlierRecord {
	rec := schema.OutlierRecord{
		Vis:           e.ds.Vis,
		Intent:        e.ds.Intent,
		Scan:          scan,
		SPW:           e.spw.ID,
		Antenna:       t.antenna,
		AntennaName:   t.name,
		Polarization:  t.pol,
		Metric:        metric,
		NumSigma:      numSigma,
		DeltaPhysical: delta,
	}
	rec.AddReason(schema.Reason(metric))
	contract.LogDebug("Single-dish outlier",
		zap.String("metric", string(metric)), zap.Int("spw", e.spw.ID), zap.Int("scan", scan),
		zap.String("antenna", t.name), zap.String("pol", t.pol), zap.Float64("num_sigma", numSigma))
	return rec
}

// amplitudeSpectrum averages |V| over the unflagged integrations of each channel.
func amplitudeSpectrum(cube schema.VisibilityCube, p int) schema.Signal {
	nchan := cube.NumChans()
	sig := schema.Signal{Values: make([]float64, nchan), Mask: make([]bool, nchan)}
	for ch := range nchan {
		var sum float64
		var n int
		for t, v := range cube.Data[p][ch] {
			if cube.Flagged(p, ch, t) {
				continue
			}
			sum += cmplx.Abs(v)
			n++
		}
		if n == 0 {
			sig.Mask[ch] = true
			continue
		}
		sig.Values[ch] = sum / float64(n)
	}
	return sig
}

// amplitudeSeries averages |V| over the unflagged channels of each integration,
// skipping excluded channels.
func amplitudeSeries(cube schema.VisibilityCube, p int, exclude []bool) schema.Signal {
	ntime := cube.NumTimes()
	sig := schema.Signal{Values: make([]float64, ntime), Mask: make([]bool, ntime)}
	for t := range ntime {
		var sum float64
		var n int
		for ch := range cube.Data[p] {
			if (ch < len(exclude) && exclude[ch]) || cube.Flagged(p, ch, t) {
				continue
			}
			sum += cmplx.Abs(cube.Data[p][ch][t])
			n++
		}
		if n == 0 {
			sig.Mask[t] = true
			continue
		}
		sig.Values[t] = sum / float64(n)
	}
	return sig
}

// combineSpectra reduces the unmasked values of each channel across scans.
// A channel masked in every scan stays masked.
func combineSpectra(spectra []schema.Signal, reduce func([]float64) float64) schema.Signal {
	if len(spectra) == 0 {
		return schema.Signal{}
	}
	nchan := spectra[0].Len()
	out := schema.Signal{Values: make([]float64, nchan), Mask: make([]bool, nchan)}
	column := make([]float64, 0, len(spectra))
	for ch := range nchan {
		column = column[:0]
		for _, s := range spectra {
			if ch < s.Len() && !s.Masked(ch) {
				column = append(column, s.Values[ch])
			}
		}
		if len(column) == 0 {
			out.Mask[ch] = true
			continue
		}
		out.Values[ch] = reduce(column)
	}
	return out
}

func mean(values []float64) float64 {
	return stat.Mean(values, nil)
}
