package vissource

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/huangsam/visqa/internal/parquet"
	"github.com/huangsam/visqa/schema"
)

// ParquetSource reads a long-format dataset: one row per visibility sample.
// Samples missing from the file are treated as flagged.
type ParquetSource struct {
	path string
}

// NewParquetSource creates a source for the Parquet dataset at path.
func NewParquetSource(path string) *ParquetSource {
	return &ParquetSource{path: path}
}

// antennaRows collects the samples of one antenna in one scan.
type antennaRows struct {
	name  string
	pols  []string
	ntime int
	rows  []parquet.VisRow
}

// Load reads the rows and assembles the cubes.
func (s *ParquetSource) Load(ctx context.Context) (*schema.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadVisRows(s.path)
	if err != nil {
		return nil, err
	}
	return datasetFromRows(rows)
}

func datasetFromRows(rows []parquet.VisRow) (*schema.Dataset, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: dataset has no rows", schema.ErrInsufficientData)
	}
	ds := &schema.Dataset{Vis: rows[0].Vis, Intent: rows[0].Intent}

	freqs := make(map[int]map[int]float64)               // spw -> channel -> Hz
	groups := make(map[int]map[int]map[int]*antennaRows) // spw -> scan -> antenna
	for _, r := range rows {
		if r.Vis != ds.Vis {
			return nil, fmt.Errorf("%w: rows from %s and %s in one file", schema.ErrInvalidConfiguration, ds.Vis, r.Vis)
		}
		if r.Channel < 0 || r.Time < 0 {
			return nil, fmt.Errorf("%w: negative channel or time index", schema.ErrInvalidConfiguration)
		}
		spw, scan, ant := int(r.SPW), int(r.Scan), int(r.Antenna)
		if freqs[spw] == nil {
			freqs[spw] = make(map[int]float64)
			groups[spw] = make(map[int]map[int]*antennaRows)
		}
		if f, ok := freqs[spw][int(r.Channel)]; ok && f != r.FreqHz {
			return nil, fmt.Errorf("%w: spw %d channel %d has frequencies %g and %g", schema.ErrInvalidConfiguration, spw, r.Channel, f, r.FreqHz)
		}
		freqs[spw][int(r.Channel)] = r.FreqHz

		if groups[spw][scan] == nil {
			groups[spw][scan] = make(map[int]*antennaRows)
		}
		acc := groups[spw][scan][ant]
		if acc == nil {
			acc = &antennaRows{name: r.AntennaName}
			groups[spw][scan][ant] = acc
		}
		if !slices.Contains(acc.pols, r.Polarization) {
			acc.pols = append(acc.pols, r.Polarization)
		}
		acc.ntime = max(acc.ntime, int(r.Time)+1)
		acc.rows = append(acc.rows, r)
	}

	for _, spwID := range slices.Sorted(maps.Keys(groups)) {
		freq, err := channelAxis(spwID, freqs[spwID])
		if err != nil {
			return nil, err
		}
		spw := schema.SpectralWindowData{ID: spwID, Freq: freq}
		for _, scanID := range slices.Sorted(maps.Keys(groups[spwID])) {
			scan := schema.ScanData{ID: scanID}
			byAnt := groups[spwID][scanID]
			for _, antID := range slices.Sorted(maps.Keys(byAnt)) {
				acc := byAnt[antID]
				if acc.ntime > len(acc.rows) {
					return nil, fmt.Errorf("%w: spw %d scan %d antenna %d has time index %d but only %d rows",
						schema.ErrInvalidConfiguration, spwID, scanID, antID, acc.ntime-1, len(acc.rows))
				}
				scan.Antennas = append(scan.Antennas, schema.AntennaData{ID: antID, Name: acc.name, Cube: acc.cube(len(freq))})
			}
			spw.Scans = append(spw.Scans, scan)
		}
		ds.SpectralWindows = append(ds.SpectralWindows, spw)
	}
	return ds, nil
}

func channelAxis(spw int, byChan map[int]float64) ([]float64, error) {
	n := 0
	for ch := range byChan {
		n = max(n, ch+1)
	}
	if n > len(byChan) {
		return nil, fmt.Errorf("%w: spw %d has channel index %d but only %d channels", schema.ErrInvalidConfiguration, spw, n-1, len(byChan))
	}
	freq := make([]float64, n)
	for ch := range n {
		f, ok := byChan[ch]
		if !ok {
			return nil, fmt.Errorf("%w: spw %d channel %d has no frequency", schema.ErrInvalidConfiguration, spw, ch)
		}
		freq[ch] = f
	}
	return freq, nil
}

// cube starts fully flagged and fills in the samples present in the file.
func (a *antennaRows) cube(nchan int) schema.VisibilityCube {
	pols := slices.Clone(a.pols)
	slices.SortFunc(pols, cmp.Compare)
	c := schema.VisibilityCube{
		Polarizations: pols,
		Data:          make([][][]complex128, len(pols)),
		Flags:         make([][][]bool, len(pols)),
	}
	for p := range pols {
		c.Data[p] = make([][]complex128, nchan)
		c.Flags[p] = make([][]bool, nchan)
		for ch := range nchan {
			c.Data[p][ch] = make([]complex128, a.ntime)
			c.Flags[p][ch] = make([]bool, a.ntime)
			for t := range a.ntime {
				c.Flags[p][ch][t] = true
			}
		}
	}
	for _, r := range a.rows {
		p := slices.Index(pols, r.Polarization)
		c.Data[p][r.Channel][r.Time] = complex(r.Re, r.Im)
		c.Flags[p][r.Channel][r.Time] = r.Flag
	}
	return c
}

// DatasetRows flattens a dataset into long-format rows for WriteVisRowsParquet.
func DatasetRows(ds *schema.Dataset) []parquet.VisRow {
	var rows []parquet.VisRow
	for _, spw := range ds.SpectralWindows {
		for _, scan := range spw.Scans {
			for _, ant := range scan.Antennas {
				c := ant.Cube
				for p, pol := range c.Polarizations {
					for ch, samples := range c.Data[p] {
						for t, v := range samples {
							rows = append(rows, parquet.VisRow{
								Vis:          ds.Vis,
								Intent:       ds.Intent,
								SPW:          int32(spw.ID),
								Scan:         int32(scan.ID),
								Antenna:      int32(ant.ID),
								AntennaName:  ant.Name,
								Polarization: pol,
								Channel:      int32(ch),
								FreqHz:       spw.Freq[ch],
								Time:         int32(t),
								Re:           real(v),
								Im:           imag(v),
								Flag:         c.Flagged(p, ch, t),
							})
						}
					}
				}
			}
		}
	}
	return rows
}
