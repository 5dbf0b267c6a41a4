package vissource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/huangsam/visqa/schema"
)

// JSONSource reads a dataset from a JSON document. Cubes carry their real and
// imaginary parts as separate pol x chan x time arrays.
type JSONSource struct {
	path string
}

// NewJSONSource creates a source for the JSON dataset at path.
func NewJSONSource(path string) *JSONSource {
	return &JSONSource{path: path}
}

type jsonDataset struct {
	Vis             string    `json:"vis"`
	Intent          string    `json:"intent"`
	SpectralWindows []jsonSPW `json:"spectral_windows"`
}

type jsonSPW struct {
	ID          int        `json:"id"`
	Freq        []float64  `json:"freq"`
	BandwidthHz float64    `json:"bandwidth_hz,omitempty"`
	Scans       []jsonScan `json:"scans"`
}

type jsonScan struct {
	ID       int           `json:"id"`
	Antennas []jsonAntenna `json:"antennas"`
}

type jsonAntenna struct {
	ID   int      `json:"id"`
	Name string   `json:"name"`
	Cube jsonCube `json:"cube"`
}

type jsonCube struct {
	Polarizations []string      `json:"polarizations"`
	Re            [][][]float64 `json:"re"`
	Im            [][][]float64 `json:"im"`
	Flags         [][][]bool    `json:"flags,omitempty"`
}

// Load reads and converts the document.
func (s *JSONSource) Load(ctx context.Context) (*schema.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	var raw jsonDataset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", s.path, err)
	}
	return raw.toDataset()
}

func (raw jsonDataset) toDataset() (*schema.Dataset, error) {
	ds := &schema.Dataset{Vis: raw.Vis, Intent: raw.Intent}
	for _, rs := range raw.SpectralWindows {
		spw := schema.SpectralWindowData{ID: rs.ID, Freq: rs.Freq, BandwidthHz: rs.BandwidthHz}
		for _, rsc := range rs.Scans {
			scan := schema.ScanData{ID: rsc.ID}
			for _, ra := range rsc.Antennas {
				cube, err := ra.Cube.toCube()
				if err != nil {
					return nil, fmt.Errorf("spw %d scan %d antenna %d: %w", rs.ID, rsc.ID, ra.ID, err)
				}
				scan.Antennas = append(scan.Antennas, schema.AntennaData{ID: ra.ID, Name: ra.Name, Cube: cube})
			}
			spw.Scans = append(spw.Scans, scan)
		}
		ds.SpectralWindows = append(ds.SpectralWindows, spw)
	}
	return ds, nil
}

func (c jsonCube) toCube() (schema.VisibilityCube, error) {
	if len(c.Re) != len(c.Im) {
		return schema.VisibilityCube{}, fmt.Errorf("%w: re has %d polarizations, im has %d", schema.ErrInvalidConfiguration, len(c.Re), len(c.Im))
	}
	data := make([][][]complex128, len(c.Re))
	for p := range c.Re {
		if len(c.Re[p]) != len(c.Im[p]) {
			return schema.VisibilityCube{}, fmt.Errorf("%w: re/im channel counts differ in pol %d", schema.ErrInvalidConfiguration, p)
		}
		data[p] = make([][]complex128, len(c.Re[p]))
		for ch := range c.Re[p] {
			if len(c.Re[p][ch]) != len(c.Im[p][ch]) {
				return schema.VisibilityCube{}, fmt.Errorf("%w: re/im time counts differ in pol %d chan %d", schema.ErrInvalidConfiguration, p, ch)
			}
			data[p][ch] = make([]complex128, len(c.Re[p][ch]))
			for t, re := range c.Re[p][ch] {
				data[p][ch][t] = complex(re, c.Im[p][ch][t])
			}
		}
	}
	return schema.VisibilityCube{Polarizations: c.Polarizations, Data: data, Flags: c.Flags}, nil
}

// WriteJSON stores a dataset in the format read by JSONSource.
func WriteJSON(path string, ds *schema.Dataset) error {
	raw := jsonDataset{Vis: ds.Vis, Intent: ds.Intent}
	for _, spw := range ds.SpectralWindows {
		rs := jsonSPW{ID: spw.ID, Freq: spw.Freq, BandwidthHz: spw.BandwidthHz}
		for _, scan := range spw.Scans {
			rsc := jsonScan{ID: scan.ID}
			for _, ant := range scan.Antennas {
				rsc.Antennas = append(rsc.Antennas, jsonAntenna{ID: ant.ID, Name: ant.Name, Cube: fromCube(ant.Cube)})
			}
			rs.Scans = append(rs.Scans, rsc)
		}
		raw.SpectralWindows = append(raw.SpectralWindows, rs)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func fromCube(c schema.VisibilityCube) jsonCube {
	out := jsonCube{
		Polarizations: c.Polarizations,
		Re:            make([][][]float64, len(c.Data)),
		Im:            make([][][]float64, len(c.Data)),
		Flags:         c.Flags,
	}
	for p := range c.Data {
		out.Re[p] = make([][]float64, len(c.Data[p]))
		out.Im[p] = make([][]float64, len(c.Data[p]))
		for ch, samples := range c.Data[p] {
			out.Re[p][ch] = make([]float64, len(samples))
			out.Im[p][ch] = make([]float64, len(samples))
			for t, v := range samples {
				out.Re[p][ch][t] = real(v)
				out.Im[p][ch][t] = imag(v)
			}
		}
	}
	return out
}
