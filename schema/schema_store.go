package schema

import "time"

// AnalysisRunRecord represents a row from the visqa_analysis_runs table.
type AnalysisRunRecord struct {
	AnalysisID          int64
	Vis                 string
	StartTime           time.Time
	EndTime             *time.Time
	RunDurationMs       *int32
	TotalUnitsEvaluated int32
	ConfigParams        *string
}

// FitRowRecord represents a row from the visqa_antenna_fits table.
type FitRowRecord struct {
	AnalysisID        int64
	SPW               int32
	Scan              int32
	Antenna           string
	Polarization      string
	AmpSlope          float64
	AmpSlopeErr       float64
	AmpIntercept      float64
	AmpInterceptErr   float64
	PhaseSlope        float64
	PhaseSlopeErr     float64
	PhaseIntercept    float64
	PhaseInterceptErr float64
	LowSNR            bool
}

// OutlierRowRecord represents a row from the visqa_outliers table.
type OutlierRowRecord struct {
	AnalysisID    int64
	RecordedAt    time.Time
	SPW           int32
	Scan          int32
	Antenna       string
	Polarization  string
	Metric        string
	NumSigma      float64
	DeltaPhysical float64
	Reasons       string // comma-joined sorted tags
	AmpFreqSymOff bool
}
