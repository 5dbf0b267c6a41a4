// Package parquet provides data structures and functions for exchanging visqa
// data as Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/huangsam/visqa/schema"
	"github.com/parquet-go/parquet-go"
)

// AnalysisRun represents a single QA run with metadata.
// This struct maps to the visqa_analysis_runs database table.
type AnalysisRun struct {
	// AnalysisID is the unique identifier for this run
	AnalysisID int64 `parquet:"analysis_id,snappy"`

	// Vis is the measurement set the run evaluated
	Vis string `parquet:"vis,snappy"`

	// StartTime is when the run began (stored as TIMESTAMP with nanosecond precision)
	StartTime time.Time `parquet:"start_time,snappy"`

	// EndTime is when the run completed (nullable)
	EndTime *time.Time `parquet:"end_time,optional,snappy"`

	// RunDurationMs is the duration of the run in milliseconds (nullable)
	RunDurationMs *int32 `parquet:"run_duration_ms,optional,snappy"`

	// TotalUnitsEvaluated is the number of units processed in this run
	TotalUnitsEvaluated int32 `parquet:"total_units_evaluated,snappy"`

	// ConfigParams contains the JSON-encoded configuration parameters (nullable)
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// AntennaFitRow is the amplitude and phase fit of one antenna/polarization in a unit.
// This struct maps to the visqa_antenna_fits database table.
type AntennaFitRow struct {
	AnalysisID        int64   `parquet:"analysis_id,snappy"`
	SPW               int32   `parquet:"spw,snappy"`
	Scan              int32   `parquet:"scan,snappy"`
	Antenna           string  `parquet:"antenna,snappy,dict"`
	Polarization      string  `parquet:"polarization,snappy,dict"`
	AmpSlope          float64 `parquet:"amp_slope,snappy"`
	AmpSlopeErr       float64 `parquet:"amp_slope_err,snappy"`
	AmpIntercept      float64 `parquet:"amp_intercept,snappy"`
	AmpInterceptErr   float64 `parquet:"amp_intercept_err,snappy"`
	PhaseSlope        float64 `parquet:"phase_slope,snappy"`
	PhaseSlopeErr     float64 `parquet:"phase_slope_err,snappy"`
	PhaseIntercept    float64 `parquet:"phase_intercept,snappy"`
	PhaseInterceptErr float64 `parquet:"phase_intercept_err,snappy"`
	LowSNR            bool    `parquet:"low_snr,snappy"`
}

// OutlierRow is one flagged antenna/polarization/metric.
// This struct maps to the visqa_outliers database table.
type OutlierRow struct {
	AnalysisID    int64     `parquet:"analysis_id,snappy"`
	RecordedAt    time.Time `parquet:"recorded_at,snappy"`
	SPW           int32     `parquet:"spw,snappy"`
	Scan          int32     `parquet:"scan,snappy"`
	Antenna       string    `parquet:"antenna,snappy,dict"`
	Polarization  string    `parquet:"polarization,snappy,dict"`
	Metric        string    `parquet:"metric,snappy,dict"`
	NumSigma      float64   `parquet:"num_sigma,snappy"`
	DeltaPhysical float64   `parquet:"delta_physical,snappy"`
	Reasons       string    `parquet:"reasons,snappy"`
	AmpFreqSymOff bool      `parquet:"amp_freq_sym_off,snappy"`
}

// VisRow is one visibility sample of a long-format dataset file.
// A dataset is the set of rows sharing vis and intent.
type VisRow struct {
	Vis          string  `parquet:"vis,snappy,dict"`
	Intent       string  `parquet:"intent,snappy,dict"`
	SPW          int32   `parquet:"spw,snappy"`
	Scan         int32   `parquet:"scan,snappy"`
	Antenna      int32   `parquet:"antenna,snappy"`
	AntennaName  string  `parquet:"antenna_name,snappy,dict"`
	Polarization string  `parquet:"polarization,snappy,dict"`
	Channel      int32   `parquet:"channel,snappy"`
	FreqHz       float64 `parquet:"freq_hz,snappy"`
	Time         int32   `parquet:"time,snappy"`
	Re           float64 `parquet:"re,snappy"`
	Im           float64 `parquet:"im,snappy"`
	Flag         bool    `parquet:"flag,snappy"`
}

// writeRows writes a slice of T to a Parquet file, with the schema derived from its struct tags.
func writeRows[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// WriteAnalysisRunsParquet writes a slice of AnalysisRun structs to a Parquet file.
func WriteAnalysisRunsParquet(data []AnalysisRun, outputPath string) error {
	return writeRows(data, outputPath)
}

// WriteAntennaFitsParquet writes a slice of AntennaFitRow structs to a Parquet file.
func WriteAntennaFitsParquet(data []AntennaFitRow, outputPath string) error {
	return writeRows(data, outputPath)
}

// WriteOutliersParquet writes a slice of OutlierRow structs to a Parquet file.
func WriteOutliersParquet(data []OutlierRow, outputPath string) error {
	return writeRows(data, outputPath)
}

// WriteVisRowsParquet writes a long-format dataset file.
func WriteVisRowsParquet(data []VisRow, outputPath string) error {
	return writeRows(data, outputPath)
}

// ReadVisRows reads every row of a long-format dataset file.
func ReadVisRows(path string) ([]VisRow, error) {
	rows, err := parquet.ReadFile[VisRow](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file %s: %w", path, err)
	}
	return rows, nil
}

// ConvertAnalysisRunRecords converts schema.AnalysisRunRecord to AnalysisRun for Parquet export.
func ConvertAnalysisRunRecords(records []schema.AnalysisRunRecord) []AnalysisRun {
	result := make([]AnalysisRun, len(records))
	for i, record := range records {
		result[i] = AnalysisRun{
			AnalysisID:          record.AnalysisID,
			Vis:                 record.Vis,
			StartTime:           record.StartTime,
			EndTime:             record.EndTime,
			RunDurationMs:       record.RunDurationMs,
			TotalUnitsEvaluated: record.TotalUnitsEvaluated,
			ConfigParams:        record.ConfigParams,
		}
	}
	return result
}

// ConvertFitRowRecords converts schema.FitRowRecord to AntennaFitRow for Parquet export.
func ConvertFitRowRecords(records []schema.FitRowRecord) []AntennaFitRow {
	result := make([]AntennaFitRow, len(records))
	for i, r := range records {
		result[i] = AntennaFitRow(r)
	}
	return result
}

// ConvertOutlierRowRecords converts schema.OutlierRowRecord to OutlierRow for Parquet export.
func ConvertOutlierRowRecords(records []schema.OutlierRowRecord) []OutlierRow {
	result := make([]OutlierRow, len(records))
	for i, r := range records {
		result[i] = OutlierRow(r)
	}
	return result
}

// OutlierRowsFromRecords flattens in-memory outlier records, e.g. for a run that was not tracked.
func OutlierRowsFromRecords(analysisID int64, recordedAt time.Time, records []schema.OutlierRecord) []OutlierRow {
	result := make([]OutlierRow, len(records))
	for i, r := range records {
		reasons := make([]string, len(r.Reasons))
		for j, reason := range r.Reasons {
			reasons[j] = string(reason)
		}
		result[i] = OutlierRow{
			AnalysisID:    analysisID,
			RecordedAt:    recordedAt,
			SPW:           int32(r.SPW),
			Scan:          int32(r.Scan),
			Antenna:       schema.AntennaLabel(r.AntennaName, r.Antenna),
			Polarization:  r.Polarization,
			Metric:        string(r.Metric),
			NumSigma:      r.NumSigma,
			DeltaPhysical: r.DeltaPhysical,
			Reasons:       strings.Join(reasons, ","),
			AmpFreqSymOff: r.AmpFreqSymOff,
		}
	}
	return result
}

// FitRowsFromFits flattens in-memory antenna fits.
func FitRowsFromFits(analysisID int64, fits []schema.AntennaFit) []AntennaFitRow {
	result := make([]AntennaFitRow, len(fits))
	for i, f := range fits {
		result[i] = AntennaFitRow{
			AnalysisID:        analysisID,
			SPW:               int32(f.SPW),
			Scan:              int32(f.Scan),
			Antenna:           schema.AntennaLabel(f.AntennaName, f.Antenna),
			Polarization:      f.Polarization,
			AmpSlope:          f.Amp.Slope.Value,
			AmpSlopeErr:       f.Amp.Slope.Err,
			AmpIntercept:      f.Amp.Intercept.Value,
			AmpInterceptErr:   f.Amp.Intercept.Err,
			PhaseSlope:        f.Phase.Slope.Value,
			PhaseSlopeErr:     f.Phase.Slope.Err,
			PhaseIntercept:    f.Phase.Intercept.Value,
			PhaseInterceptErr: f.Phase.Intercept.Err,
			LowSNR:            f.LowSNR,
		}
	}
	return result
}
