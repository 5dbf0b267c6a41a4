package schema

import (
	"fmt"
	"math"
)

// Dataset is the in-memory view of one measurement set.
type Dataset struct {
	Vis             string               `json:"vis"`
	Intent          string               `json:"intent"`
	SpectralWindows []SpectralWindowData `json:"spectral_windows"`
}

// SpectralWindowData holds the channel axis and per-scan data of one spw.
type SpectralWindowData struct {
	ID          int        `json:"id"`
	Freq        []float64  `json:"freq"` // channel centres in Hz
	BandwidthHz float64    `json:"bandwidth_hz,omitempty"`
	Scans       []ScanData `json:"scans"`
}

// ScanData groups antennas observed in one scan.
type ScanData struct {
	ID       int           `json:"id"`
	Antennas []AntennaData `json:"antennas"`
}

// AntennaData holds the visibility cube of one antenna (baseline-averaged or autocorrelation).
type AntennaData struct {
	ID   int            `json:"id"`
	Name string         `json:"name"`
	Cube VisibilityCube `json:"cube"`
}

// VisibilityCube is a pol x chan x time complex array with flags (true = flagged).
type VisibilityCube struct {
	Polarizations []string         `json:"polarizations"`
	Data          [][][]complex128 `json:"-"`
	Flags         [][][]bool       `json:"flags,omitempty"`
}

// TrecSpectrum is the receiver temperature of one antenna, pol x chan.
type TrecSpectrum struct {
	Antenna       string      `json:"antenna"`
	Polarizations []string    `json:"polarizations"`
	Values        [][]float64 `json:"values"`
}

// Bandwidth returns the spw bandwidth in Hz, derived from the channel axis when unset.
func (s SpectralWindowData) Bandwidth() float64 {
	if s.BandwidthHz > 0 {
		return s.BandwidthHz
	}
	n := len(s.Freq)
	if n < 2 {
		return 0
	}
	span := math.Abs(s.Freq[n-1] - s.Freq[0])
	return span * float64(n) / float64(n-1)
}

// NumPols returns the polarization count.
func (c VisibilityCube) NumPols() int { return len(c.Data) }

// NumChans returns the channel count.
func (c VisibilityCube) NumChans() int {
	if len(c.Data) == 0 {
		return 0
	}
	return len(c.Data[0])
}

// NumTimes returns the integration count.
func (c VisibilityCube) NumTimes() int {
	if len(c.Data) == 0 || len(c.Data[0]) == 0 {
		return 0
	}
	return len(c.Data[0][0])
}

// Flagged reports whether sample (pol, chan, time) is flagged.
func (c VisibilityCube) Flagged(p, ch, t int) bool {
	if p >= len(c.Flags) || ch >= len(c.Flags[p]) || t >= len(c.Flags[p][ch]) {
		return false
	}
	return c.Flags[p][ch][t]
}

// Validate checks the cube is rectangular and consistent with its flags and labels.
func (c VisibilityCube) Validate() error {
	if len(c.Polarizations) != len(c.Data) {
		return fmt.Errorf("%w: %d polarization labels for %d planes", ErrInvalidConfiguration, len(c.Polarizations), len(c.Data))
	}
	nchan, ntime := c.NumChans(), c.NumTimes()
	for p := range c.Data {
		if len(c.Data[p]) != nchan {
			return fmt.Errorf("%w: ragged channel axis at pol %d", ErrInvalidConfiguration, p)
		}
		for ch := range c.Data[p] {
			if len(c.Data[p][ch]) != ntime {
				return fmt.Errorf("%w: ragged time axis at pol %d chan %d", ErrInvalidConfiguration, p, ch)
			}
		}
	}
	if c.Flags != nil && len(c.Flags) != len(c.Data) {
		return fmt.Errorf("%w: flag planes %d != data planes %d", ErrInvalidConfiguration, len(c.Flags), len(c.Data))
	}
	return nil
}

// Validate checks every spw and cube of the dataset.
func (d *Dataset) Validate() error {
	for _, spw := range d.SpectralWindows {
		for _, scan := range spw.Scans {
			for _, ant := range scan.Antennas {
				if err := ant.Cube.Validate(); err != nil {
					return fmt.Errorf("spw %d scan %d antenna %s: %w", spw.ID, scan.ID, ant.Name, err)
				}
				if n := ant.Cube.NumChans(); n != 0 && n != len(spw.Freq) {
					return fmt.Errorf("%w: spw %d has %d channels, antenna %s has %d",
						ErrInvalidConfiguration, spw.ID, len(spw.Freq), ant.Name, n)
				}
			}
		}
	}
	return nil
}

// Window returns the spw with the given id.
func (d *Dataset) Window(id int) (SpectralWindowData, bool) {
	for _, spw := range d.SpectralWindows {
		if spw.ID == id {
			return spw, true
		}
	}
	return SpectralWindowData{}, false
}
