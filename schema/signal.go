package schema

import "fmt"

// Signal is a real 1-D sequence with a per-sample mask (true = invalid).
// Transforms never modify a Signal in place; they return new ones.
type Signal struct {
	Values []float64 `json:"values"`
	Mask   []bool    `json:"mask,omitempty"`
}

// ComplexSignal is the complex counterpart of Signal.
type ComplexSignal struct {
	Values []complex128
	Mask   []bool
}

// NewSignal builds a Signal, copying both slices. A nil mask means all valid.
func NewSignal(values []float64, mask []bool) (Signal, error) {
	if mask != nil && len(mask) != len(values) {
		return Signal{}, fmt.Errorf("%w: mask length %d != value length %d", ErrInvalidConfiguration, len(mask), len(values))
	}
	s := Signal{Values: make([]float64, len(values)), Mask: make([]bool, len(values))}
	copy(s.Values, values)
	copy(s.Mask, mask)
	return s, nil
}

// NewComplexSignal builds a ComplexSignal, copying both slices.
func NewComplexSignal(values []complex128, mask []bool) (ComplexSignal, error) {
	if mask != nil && len(mask) != len(values) {
		return ComplexSignal{}, fmt.Errorf("%w: mask length %d != value length %d", ErrInvalidConfiguration, len(mask), len(values))
	}
	s := ComplexSignal{Values: make([]complex128, len(values)), Mask: make([]bool, len(values))}
	copy(s.Values, values)
	copy(s.Mask, mask)
	return s, nil
}

// Len returns the number of samples.
func (s Signal) Len() int { return len(s.Values) }

// Masked reports whether sample i is invalid.
func (s Signal) Masked(i int) bool { return i < len(s.Mask) && s.Mask[i] }

// Validate checks the mask/value length invariant.
func (s Signal) Validate() error {
	if s.Mask != nil && len(s.Mask) != len(s.Values) {
		return fmt.Errorf("%w: mask length %d != value length %d", ErrInvalidConfiguration, len(s.Mask), len(s.Values))
	}
	return nil
}

// CountValid returns the number of unmasked samples.
func (s Signal) CountValid() int {
	n := 0
	for i := range s.Values {
		if !s.Masked(i) {
			n++
		}
	}
	return n
}

// Compressed returns the unmasked values in order.
func (s Signal) Compressed() []float64 {
	out := make([]float64, 0, len(s.Values))
	for i, v := range s.Values {
		if !s.Masked(i) {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns a deep copy with a full-length mask.
func (s Signal) Clone() Signal {
	c, _ := NewSignal(s.Values, s.fullMask())
	return c
}

// Sub returns s - o, masked where either input is masked.
func (s Signal) Sub(o Signal) (Signal, error) {
	if s.Len() != o.Len() {
		return Signal{}, fmt.Errorf("%w: length %d != %d", ErrInvalidConfiguration, s.Len(), o.Len())
	}
	out := Signal{Values: make([]float64, s.Len()), Mask: make([]bool, s.Len())}
	for i := range s.Values {
		out.Values[i] = s.Values[i] - o.Values[i]
		out.Mask[i] = s.Masked(i) || o.Masked(i)
	}
	return out, nil
}

func (s Signal) fullMask() []bool {
	if len(s.Mask) == len(s.Values) {
		return s.Mask
	}
	return make([]bool, len(s.Values))
}

// Len returns the number of samples.
func (s ComplexSignal) Len() int { return len(s.Values) }

// Masked reports whether sample i is invalid.
func (s ComplexSignal) Masked(i int) bool { return i < len(s.Mask) && s.Mask[i] }

// CountValid returns the number of unmasked samples.
func (s ComplexSignal) CountValid() int {
	n := 0
	for i := range s.Values {
		if !s.Masked(i) {
			n++
		}
	}
	return n
}

// MaskOf returns the effective mask of length Len.
func (s ComplexSignal) MaskOf() []bool {
	if len(s.Mask) == len(s.Values) {
		return s.Mask
	}
	return make([]bool, len(s.Values))
}

// MaskOf returns the effective mask of length Len.
func (s Signal) MaskOf() []bool {
	return s.fullMask()
}
