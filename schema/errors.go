package schema

import "errors"

// Engine error taxonomy. Callers wrap these with fmt.Errorf and test with errors.Is.
var (
	// ErrInsufficientData means too few valid points for the requested statistic.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrFitConvergence means an iterative fit or search did not converge.
	ErrFitConvergence = errors.New("fit did not converge")

	// ErrInvalidConfiguration means malformed thresholds, shapes or modes.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
