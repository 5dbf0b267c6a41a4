package vissource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/huangsam/visqa/schema"
)

// TrecFile serves receiver temperature spectra from a JSON document. The file
// is read once, on first use.
type TrecFile struct {
	path string

	once    sync.Once
	byUnit  map[trecKey]map[string]schema.TrecSpectrum
	loadErr error
}

type trecKey struct {
	spw  int
	scan int
}

type trecDocument struct {
	Units []struct {
		SPW     int                   `json:"spw"`
		Scan    int                   `json:"scan"`
		Spectra []schema.TrecSpectrum `json:"spectra"`
	} `json:"units"`
}

// NewTrecFile creates a Trec source for the JSON document at path.
func NewTrecFile(path string) *TrecFile {
	return &TrecFile{path: path}
}

// Trec returns the spectra of one (spw, scan), keyed by antenna name. A unit
// absent from the file yields an empty map.
func (f *TrecFile) Trec(ctx context.Context, spw, scan int) (map[string]schema.TrecSpectrum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.once.Do(f.load)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.byUnit[trecKey{spw: spw, scan: scan}], nil
}

func (f *TrecFile) load() {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.loadErr = fmt.Errorf("failed to read Trec file: %w", err)
		return
	}
	var doc trecDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		f.loadErr = fmt.Errorf("failed to decode Trec file %s: %w", f.path, err)
		return
	}
	f.byUnit = make(map[trecKey]map[string]schema.TrecSpectrum, len(doc.Units))
	for _, u := range doc.Units {
		key := trecKey{spw: u.SPW, scan: u.Scan}
		if f.byUnit[key] == nil {
			f.byUnit[key] = make(map[string]schema.TrecSpectrum, len(u.Spectra))
		}
		for _, s := range u.Spectra {
			if len(s.Values) != len(s.Polarizations) {
				f.loadErr = fmt.Errorf("%w: Trec of %s in spw %d scan %d has %d spectra for %d polarizations",
					schema.ErrInvalidConfiguration, s.Antenna, u.SPW, u.Scan, len(s.Values), len(s.Polarizations))
				return
			}
			f.byUnit[key][s.Antenna] = s
		}
	}
}
