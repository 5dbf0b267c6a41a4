package agg

import (
	"fmt"
	"math"

	"github.com/huangsam/visqa/schema"
)

const radToDeg = 180 / math.Pi

// UnitFactors converts fit-space deviations into physical units, per
// polarization and metric.
type UnitFactors map[string]map[schema.Metric]float64

// NewUnitFactors derives the factors of one spw. Amplitude deviations become
// percent of the median flux of the polarization, phase deviations degrees;
// slopes are per GHz of bandwidth. A Stokes I entry uses the mean flux.
func NewUnitFactors(bandwidthHz float64, medianFlux map[string]float64) (UnitFactors, error) {
	if !(bandwidthHz > 0) {
		return nil, fmt.Errorf("%w: bandwidth %g Hz", schema.ErrInvalidConfiguration, bandwidthHz)
	}
	if len(medianFlux) == 0 {
		return nil, fmt.Errorf("%w: no polarization fluxes", schema.ErrInvalidConfiguration)
	}
	bwGHz := bandwidthHz / 1e9
	units := make(UnitFactors, len(medianFlux)+1)
	var sum float64
	for pol, flux := range medianFlux {
		if !(flux > 0) || math.IsInf(flux, 0) {
			return nil, fmt.Errorf("%w: median flux %g for %s", schema.ErrInvalidConfiguration, flux, pol)
		}
		units[pol] = factorsFor(flux, bwGHz)
		sum += flux
	}
	if _, ok := units[schema.StokesI]; !ok {
		units[schema.StokesI] = factorsFor(sum/float64(len(medianFlux)), bwGHz)
	}
	return units, nil
}

func factorsFor(flux, bwGHz float64) map[schema.Metric]float64 {
	return map[schema.Metric]float64{
		schema.AmpSlope:       100 / (flux * bwGHz),
		schema.AmpIntercept:   100 / flux,
		schema.PhaseSlope:     radToDeg / bwGHz,
		schema.PhaseIntercept: radToDeg,
	}
}

// Factor returns the factor of pol and metric, or false if unknown.
func (u UnitFactors) Factor(pol string, metric schema.Metric) (float64, bool) {
	byMetric, ok := u[pol]
	if !ok {
		return 0, false
	}
	f, ok := byMetric[metric]
	return f, ok
}
