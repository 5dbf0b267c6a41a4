// Package schema has models, constants and errors for all parts of visqa.
package schema

import (
	"slices"
	"strconv"
	"time"
)

// Measurement is a value with its one-sigma uncertainty.
type Measurement struct {
	Value float64 `json:"value"`
	Err   float64 `json:"err"`
}

// FitResult is a linear model over normalized frequency.
type FitResult struct {
	Slope     Measurement `json:"slope"`
	Intercept Measurement `json:"intercept"`
}

// AntennaFit holds the amplitude and phase fits of one antenna/polarization in a unit.
type AntennaFit struct {
	Vis          string    `json:"vis"`
	SPW          int       `json:"spw"`
	Scan         int       `json:"scan"`
	Antenna      int       `json:"antenna"`
	AntennaName  string    `json:"antenna_name"`
	Polarization string    `json:"polarization"`
	Amp          FitResult `json:"amp"`
	Phase        FitResult `json:"phase"`
	LowSNR       bool      `json:"low_snr"` // produced by the flat fallback
}

// Value returns the fitted parameter named by metric.
func (f AntennaFit) Value(metric Metric) Measurement {
	switch metric {
	case AmpSlope:
		return f.Amp.Slope
	case AmpIntercept:
		return f.Amp.Intercept
	case PhaseSlope:
		return f.Phase.Slope
	default:
		return f.Phase.Intercept
	}
}

// OutlierRecord is one antenna/polarization/metric that failed both gates.
type OutlierRecord struct {
	Vis           string   `json:"vis"`
	Intent        string   `json:"intent"`
	Scan          int      `json:"scan"`
	SPW           int      `json:"spw"`
	Antenna       int      `json:"antenna"`
	AntennaName   string   `json:"antenna_name"`
	Polarization  string   `json:"polarization"`
	Metric        Metric   `json:"metric"`
	NumSigma      float64  `json:"num_sigma"`
	DeltaPhysical float64  `json:"delta_physical"`
	Reasons       []Reason `json:"reasons"`
	AmpFreqSymOff bool     `json:"amp_freq_sym_off"`
}

// AddReason inserts a tag, keeping Reasons sorted and free of duplicates.
func (r *OutlierRecord) AddReason(reason Reason) {
	i, found := slices.BinarySearch(r.Reasons, reason)
	if found {
		return
	}
	r.Reasons = slices.Insert(r.Reasons, i, reason)
}

// HasReason reports whether the tag is present.
func (r OutlierRecord) HasReason(reason Reason) bool {
	_, found := slices.BinarySearch(r.Reasons, reason)
	return found
}

// DetectionResult is the outcome of one adaptive detection pass.
type DetectionResult struct {
	ChanMax  int     `json:"chan_max"`
	SNRMax   float64 `json:"snr_max"`
	Outliers []bool  `json:"outliers"`
	WidthMax float64 `json:"width_max"`
	SmSigma  float64 `json:"sm_sigma"`
	DataMax  float64 `json:"data_max"`
	NormData Signal  `json:"norm_data"`
}

// OutlierCount returns the number of flagged samples.
func (d DetectionResult) OutlierCount() int {
	n := 0
	for _, o := range d.Outliers {
		if o {
			n++
		}
	}
	return n
}

// UnitResult is the outcome of one (scan, spw) unit of work.
// Evaluated=false with Err set is the explicit "not evaluated" marker.
type UnitResult struct {
	SPW       int             `json:"spw"`
	Scan      int             `json:"scan"`
	Evaluated bool            `json:"evaluated"`
	Err       string          `json:"error,omitempty"`
	Fits      []AntennaFit    `json:"fits,omitempty"`
	Outliers  []OutlierRecord `json:"outliers"`
	Duration  time.Duration   `json:"duration"`
}

// EvaluationResult is handed to the QA-scoring consumers.
type EvaluationResult struct {
	AnalysisID int64        `json:"analysis_id,omitempty"` // set when the run was tracked
	Vis        string       `json:"vis"`
	Intent     string       `json:"intent"`
	Mode       EvalMode     `json:"mode"`
	Units      []UnitResult `json:"units"`
	StartTime  time.Time    `json:"start_time"`
	EndTime    time.Time    `json:"end_time"`
}

// Outliers flattens the outlier records of all evaluated units.
func (e *EvaluationResult) Outliers() []OutlierRecord {
	var out []OutlierRecord
	for _, u := range e.Units {
		out = append(out, u.Outliers...)
	}
	return out
}

// Fits flattens the fits of all evaluated units.
func (e *EvaluationResult) Fits() []AntennaFit {
	var out []AntennaFit
	for _, u := range e.Units {
		out = append(out, u.Fits...)
	}
	return out
}

// EvaluatedCount returns how many units were evaluated.
func (e *EvaluationResult) EvaluatedCount() int {
	n := 0
	for _, u := range e.Units {
		if u.Evaluated {
			n++
		}
	}
	return n
}

// AntennaLabel prefers the antenna name and falls back to its index.
func AntennaLabel(name string, id int) string {
	if name != "" {
		return name
	}
	return "ant" + strconv.Itoa(id)
}
