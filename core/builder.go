package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/huangsam/visqa/core/agg"
	"github.com/huangsam/visqa/core/algo"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
	"go.uber.org/zap"
)

// UnitResultBuilder builds the interferometric result of one (scan, spw) unit.
// The first failing step is kept and turns the unit into "not evaluated".
type UnitResultBuilder struct {
	ctx    context.Context
	cfg    *contract.Config
	ds     *schema.Dataset
	spw    schema.SpectralWindowData
	scan   schema.ScanData
	result *schema.UnitResult

	// Internal data collected during the build process
	fits []schema.AntennaFit
	err  error
}

// NewUnitResultBuilder is the starting point for evaluating one unit.
func NewUnitResultBuilder(ctx context.Context, cfg *contract.Config, ds *schema.Dataset, spw schema.SpectralWindowData, scan schema.ScanData) *UnitResultBuilder {
	return &UnitResultBuilder{
		ctx:    ctx,
		cfg:    cfg,
		ds:     ds,
		spw:    spw,
		scan:   scan,
		result: &schema.UnitResult{SPW: spw.ID, Scan: scan.ID},
	}
}

// FitAntennas time-averages every antenna/polarization and fits amplitude and phase
// against frequency. Antennas without valid channels are skipped.
func (b *UnitResultBuilder) FitAntennas() *UnitResultBuilder {
	if b.err != nil {
		return b
	}
	for _, ant := range b.scan.Antennas {
		if err := b.ctx.Err(); err != nil {
			b.err = err
			return b
		}
		for p, pol := range ant.Cube.Polarizations {
			avg, err := algo.TimeAverage(ant.Cube, p, nil)
			if err != nil {
				b.err = fmt.Errorf("antenna %s %s: %w", ant.Name, pol, err)
				return b
			}
			fit, err := algo.FitAmpPhase(avg.FitInput(b.spw.Freq))
			if errors.Is(err, schema.ErrInsufficientData) {
				contract.LogDebug("Skipping antenna without valid channels",
					zap.Int("spw", b.spw.ID), zap.Int("scan", b.scan.ID), zap.String("antenna", ant.Name), zap.String("pol", pol))
				continue
			}
			if err != nil {
				b.err = fmt.Errorf("antenna %s %s: %w", ant.Name, pol, err)
				return b
			}
			b.fits = append(b.fits, schema.AntennaFit{
				Vis:          b.ds.Vis,
				SPW:          b.spw.ID,
				Scan:         b.scan.ID,
				Antenna:      ant.ID,
				AntennaName:  ant.Name,
				Polarization: pol,
				Amp:          fit.Amp,
				Phase:        fit.Phase,
				LowSNR:       fit.LowSNR,
			})
		}
	}
	if len(b.fits) == 0 {
		b.err = fmt.Errorf("%w: no antenna could be fitted", schema.ErrInsufficientData)
	}
	return b
}

// FindOutliers compares the fits across antennas for every metric.
func (b *UnitResultBuilder) FindOutliers() *UnitResultBuilder {
	if b.err != nil {
		return b
	}
	units, err := agg.NewUnitFactors(b.spw.Bandwidth(), medianFluxByPol(b.fits))
	if err != nil {
		b.err = err
		return b
	}
	sel := agg.Selection{Vis: b.ds.Vis, Intent: b.ds.Intent}
	for _, metric := range schema.AllMetrics {
		records, err := agg.FindOutliers(b.fits, metric, units, b.cfg.Thresholds, sel)
		if err != nil {
			b.err = fmt.Errorf("%s: %w", metric, err)
			return b
		}
		b.result.Outliers = append(b.result.Outliers, records...)
	}
	return b
}

// EnlargeFlags spreads the >90 degree phase reason over each affected antenna.
func (b *UnitResultBuilder) EnlargeFlags() *UnitResultBuilder {
	if b.err != nil {
		return b
	}
	b.result.Outliers = agg.EnlargeGT90Flags(b.result.Outliers)
	return b
}

// Build returns the final unit result.
func (b *UnitResultBuilder) Build() schema.UnitResult {
	res := *b.result
	res.Fits = b.fits
	if b.err != nil {
		res.Evaluated = false
		res.Err = b.err.Error()
		res.Fits = nil
		res.Outliers = nil
		return res
	}
	res.Evaluated = true
	return res
}

// medianFluxByPol is the cross-antenna median amplitude intercept of each polarization.
func medianFluxByPol(fits []schema.AntennaFit) map[string]float64 {
	byPol := make(map[string][]float64)
	for _, f := range fits {
		byPol[f.Polarization] = append(byPol[f.Polarization], f.Amp.Intercept.Value)
	}
	flux := make(map[string]float64, len(byPol))
	for _, pol := range slices.Sorted(maps.Keys(byPol)) {
		flux[pol] = algo.Median(byPol[pol])
	}
	return flux
}

// aggregateScans concatenates every antenna's cubes of an spw along the time axis,
// producing the all-scan unit. Antennas are matched by ID; a cube whose
// polarizations or channels disagree with the antenna's first scan is rejected.
func aggregateScans(spw schema.SpectralWindowData) (schema.ScanData, error) {
	merged := schema.ScanData{ID: schema.AllScanAggregate}
	index := make(map[int]int)
	for _, scan := range spw.Scans {
		for _, ant := range scan.Antennas {
			i, seen := index[ant.ID]
			if !seen {
				index[ant.ID] = len(merged.Antennas)
				merged.Antennas = append(merged.Antennas, schema.AntennaData{
					ID:   ant.ID,
					Name: ant.Name,
					Cube: cloneCube(ant.Cube),
				})
				continue
			}
			if err := appendTimes(&merged.Antennas[i].Cube, ant.Cube); err != nil {
				return schema.ScanData{}, fmt.Errorf("spw %d scan %d antenna %s: %w", spw.ID, scan.ID, ant.Name, err)
			}
		}
	}
	return merged, nil
}

func cloneCube(c schema.VisibilityCube) schema.VisibilityCube {
	out := schema.VisibilityCube{
		Polarizations: slices.Clone(c.Polarizations),
		Data:          make([][][]complex128, len(c.Data)),
		Flags:         make([][][]bool, len(c.Data)),
	}
	for p := range c.Data {
		out.Data[p] = make([][]complex128, len(c.Data[p]))
		out.Flags[p] = make([][]bool, len(c.Data[p]))
		for ch := range c.Data[p] {
			out.Data[p][ch] = slices.Clone(c.Data[p][ch])
			out.Flags[p][ch] = make([]bool, len(c.Data[p][ch]))
			for t := range c.Data[p][ch] {
				out.Flags[p][ch][t] = c.Flagged(p, ch, t)
			}
		}
	}
	return out
}

func appendTimes(dst *schema.VisibilityCube, src schema.VisibilityCube) error {
	if !slices.Equal(dst.Polarizations, src.Polarizations) {
		return fmt.Errorf("%w: polarizations %v differ from %v", schema.ErrInvalidConfiguration, src.Polarizations, dst.Polarizations)
	}
	if dst.NumChans() != src.NumChans() {
		return fmt.Errorf("%w: %d channels differ from %d", schema.ErrInvalidConfiguration, src.NumChans(), dst.NumChans())
	}
	for p := range src.Data {
		for ch := range src.Data[p] {
			dst.Data[p][ch] = append(dst.Data[p][ch], src.Data[p][ch]...)
			for t := range src.Data[p][ch] {
				dst.Flags[p][ch] = append(dst.Flags[p][ch], src.Flagged(p, ch, t))
			}
		}
	}
	return nil
}
