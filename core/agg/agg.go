// Package agg compares per-antenna fits across the array and turns significant,
// physically relevant deviations into outlier records.
package agg

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/huangsam/visqa/core/algo"
	"github.com/huangsam/visqa/schema"
)

// gt90Degrees is the phase offset that marks a separate failure mode.
const gt90Degrees = 90.0

// medianErrFactor is sqrt(pi/2), the ratio of the standard error of the median
// to that of the mean.
var medianErrFactor = math.Sqrt(math.Pi / 2)

// Selection stamps the records of one comparison.
type Selection struct {
	Vis    string
	Intent string
}

// reference is the cross-antenna expectation of one polarization.
type reference struct {
	value float64
	sigma float64
}

// deviation is the comparison of one fit against its reference.
type deviation struct {
	fit      schema.AntennaFit
	value    float64
	ref      reference
	combined float64
	numSigma float64
	delta    float64
}

// FindOutliers compares fits of one spw and metric against their per-polarization
// reference and returns the antennas that fail both the sigma and the physical gate.
// Amplitude references are the cross-antenna median; phase references are zero.
func FindOutliers(fits []schema.AntennaFit, metric schema.Metric, units UnitFactors, th Thresholds, sel Selection) ([]schema.OutlierRecord, error) {
	if _, ok := defaultThresholds[metric]; !ok {
		return nil, fmt.Errorf("%w: unknown metric %q", schema.ErrInvalidConfiguration, metric)
	}
	gate := th.For(metric)

	byPol := groupByPolarization(fits)
	pols := slices.Sorted(maps.Keys(byPol))

	var records []schema.OutlierRecord
	devs := make(map[string]map[int]deviation) // pol -> antenna
	for _, pol := range pols {
		group := byPol[pol]
		factor, ok := units.Factor(pol, metric)
		if !ok {
			return nil, fmt.Errorf("%w: no unit factor for %s %s", schema.ErrInvalidConfiguration, pol, metric)
		}
		ref, ok := referenceOf(group, metric)
		if !ok {
			continue
		}
		devs[pol] = make(map[int]deviation, len(group))
		for _, fit := range group {
			d, ok := compare(fit, metric, ref, factor)
			if !ok {
				continue
			}
			devs[pol][fit.Antenna] = d
			if math.Abs(d.numSigma) <= gate.Sigma || d.delta <= gate.Physical {
				continue
			}
			rec := newRecord(sel, d, metric, pol)
			if metric == schema.PhaseIntercept && d.delta > gt90Degrees {
				rec.AddReason(schema.ReasonGT90DegOffset)
			}
			records = append(records, rec)
		}
	}

	if metric == schema.AmpIntercept {
		records = append(records, stokesCheck(records, devs, units, gate, sel)...)
	}

	slices.SortStableFunc(records, func(a, b schema.OutlierRecord) int {
		return cmp.Or(cmp.Compare(a.Antenna, b.Antenna), cmp.Compare(a.Polarization, b.Polarization))
	})
	return records, nil
}

func groupByPolarization(fits []schema.AntennaFit) map[string][]schema.AntennaFit {
	out := make(map[string][]schema.AntennaFit)
	for _, f := range fits {
		out[f.Polarization] = append(out[f.Polarization], f)
	}
	return out
}

// referenceOf returns the reference of one polarization, or false when there
// are too few antennas to define one.
func referenceOf(group []schema.AntennaFit, metric schema.Metric) (reference, bool) {
	if !metric.IsAmplitude() {
		return reference{}, true
	}
	values := make([]float64, 0, len(group))
	for _, f := range group {
		values = append(values, f.Value(metric).Value)
	}
	loc, scale, err := algo.RobustStatsValues(values)
	if err != nil {
		return reference{}, false
	}
	return reference{value: loc, sigma: scale * medianErrFactor / math.Sqrt(float64(len(values)))}, true
}

func compare(fit schema.AntennaFit, metric schema.Metric, ref reference, factor float64) (deviation, bool) {
	m := fit.Value(metric)
	combined := math.Hypot(ref.sigma, m.Err)
	if !(combined > 0) || math.IsNaN(m.Value) {
		return deviation{}, false
	}
	diff := m.Value - ref.value
	return deviation{
		fit:      fit,
		value:    m.Value,
		ref:      ref,
		combined: combined,
		numSigma: diff / combined,
		delta:    math.Abs(diff) * factor,
	}, true
}

func newRecord(sel Selection, d deviation, metric schema.Metric, pol string) schema.OutlierRecord {
	rec := schema.OutlierRecord{
		Vis:           sel.Vis,
		Intent:        sel.Intent,
		Scan:          d.fit.Scan,
		SPW:           d.fit.SPW,
		Antenna:       d.fit.Antenna,
		AntennaName:   d.fit.AntennaName,
		Polarization:  pol,
		Metric:        metric,
		NumSigma:      d.numSigma,
		DeltaPhysical: d.delta,
	}
	rec.AddReason(schema.Reason(metric))
	return rec
}

// stokesCheck averages the polarizations of every antenna with an amplitude
// intercept outlier. When the combined deviation also passes both gates the
// per-polarization records are marked and a Stokes I record is returned.
func stokesCheck(records []schema.OutlierRecord, devs map[string]map[int]deviation, units UnitFactors, gate Threshold, sel Selection) []schema.OutlierRecord {
	factor, ok := units.Factor(schema.StokesI, schema.AmpIntercept)
	if !ok {
		return nil
	}
	var combined []schema.OutlierRecord
	seen := make(map[int]bool)
	for _, rec := range records {
		if seen[rec.Antenna] {
			continue
		}
		seen[rec.Antenna] = true

		var perPol []deviation
		for _, byAnt := range devs {
			if d, ok := byAnt[rec.Antenna]; ok {
				perPol = append(perPol, d)
			}
		}
		if len(perPol) < 2 {
			continue
		}
		var value, ref, invVar float64
		for _, d := range perPol {
			value += d.value
			ref += d.ref.value
			invVar += 1 / (d.combined * d.combined)
		}
		n := float64(len(perPol))
		value, ref = value/n, ref/n
		sigma := 1 / math.Sqrt(invVar)
		numSigma := (value - ref) / sigma
		delta := math.Abs(value-ref) * factor
		if math.Abs(numSigma) <= gate.Sigma || delta <= gate.Physical {
			continue
		}

		for i := range records {
			if records[i].Antenna == rec.Antenna {
				records[i].AmpFreqSymOff = true
			}
		}
		stokes := schema.OutlierRecord{
			Vis:           sel.Vis,
			Intent:        sel.Intent,
			Scan:          rec.Scan,
			SPW:           rec.SPW,
			Antenna:       rec.Antenna,
			AntennaName:   rec.AntennaName,
			Polarization:  schema.StokesI,
			Metric:        schema.AmpIntercept,
			NumSigma:      numSigma,
			DeltaPhysical: delta,
			AmpFreqSymOff: true,
		}
		stokes.AddReason(schema.ReasonAmpSymOff)
		combined = append(combined, stokes)
	}
	return combined
}

type enlargeKey struct {
	vis     string
	spw     int
	scan    int
	antenna int
}

// EnlargeGT90Flags propagates the >90 degree phase offset reason to every record
// of the same (vis, spw, scan, antenna). The input is not modified.
func EnlargeGT90Flags(records []schema.OutlierRecord) []schema.OutlierRecord {
	keyOf := func(r schema.OutlierRecord) enlargeKey {
		return enlargeKey{vis: r.Vis, spw: r.SPW, scan: r.Scan, antenna: r.Antenna}
	}
	flagged := make(map[enlargeKey]bool)
	for _, r := range records {
		if r.HasReason(schema.ReasonGT90DegOffset) {
			flagged[keyOf(r)] = true
		}
	}

	out := make([]schema.OutlierRecord, len(records))
	for i, r := range records {
		r.Reasons = slices.Clone(r.Reasons)
		if flagged[keyOf(r)] {
			r.AddReason(schema.ReasonGT90DegOffset)
		}
		out[i] = r
	}
	return out
}
