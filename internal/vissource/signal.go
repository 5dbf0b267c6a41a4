package vissource

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/huangsam/visqa/schema"
)

// SignalFile is a standalone 1-D signal. Imag is set for complex signals;
// Mask marks invalid samples.
type SignalFile struct {
	Values []float64 `json:"values"`
	Imag   []float64 `json:"imag,omitempty"`
	Mask   []bool    `json:"mask,omitempty"`
}

// LoadSignal reads a signal from a JSON document.
func LoadSignal(path string) (SignalFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SignalFile{}, fmt.Errorf("failed to read signal: %w", err)
	}
	var sf SignalFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return SignalFile{}, fmt.Errorf("failed to decode signal %s: %w", path, err)
	}
	if len(sf.Values) == 0 {
		return SignalFile{}, fmt.Errorf("%w: signal %s has no values", schema.ErrInsufficientData, path)
	}
	if sf.IsComplex() && len(sf.Imag) != len(sf.Values) {
		return SignalFile{}, fmt.Errorf("%w: %d imaginary parts for %d values", schema.ErrInvalidConfiguration, len(sf.Imag), len(sf.Values))
	}
	return sf, nil
}

// IsComplex reports whether the signal carries imaginary parts.
func (sf SignalFile) IsComplex() bool {
	return len(sf.Imag) > 0
}

// Real returns the real signal.
func (sf SignalFile) Real() (schema.Signal, error) {
	return schema.NewSignal(sf.Values, sf.Mask)
}

// Complex returns the complex signal.
func (sf SignalFile) Complex() (schema.ComplexSignal, error) {
	values := make([]complex128, len(sf.Values))
	for i, re := range sf.Values {
		var im float64
		if i < len(sf.Imag) {
			im = sf.Imag[i]
		}
		values[i] = complex(re, im)
	}
	return schema.NewComplexSignal(values, sf.Mask)
}
