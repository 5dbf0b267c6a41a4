package schema

// Custom string types for type safety.
type (
	// Metric identifies one fitted parameter compared across antennas.
	Metric string

	// Reason is a tag attached to an outlier record.
	Reason string

	// OutputMode represents the format of the output.
	OutputMode string

	// EvalMode selects the interferometric or single-dish QA flow.
	EvalMode string

	// DetectMode selects which excursions the adaptive detector flags.
	DetectMode string

	// DatabaseBackend represents the database backend for caching.
	DatabaseBackend string
)

// All fitted metrics.
const (
	AmpSlope       Metric = "amp_vs_freq.slope"
	AmpIntercept   Metric = "amp_vs_freq.intercept"
	PhaseSlope     Metric = "phase_vs_freq.slope"
	PhaseIntercept Metric = "phase_vs_freq.intercept"
)

// Single-dish detections reported through the same record type.
const (
	SDDeviation   Metric = "sd_deviation"
	SDPeriodicity Metric = "sd_periodicity"
)

// Reason tags beyond the metric names themselves.
const (
	ReasonGT90DegOffset Reason = "gt90deg_offset_phase_vs_freq.intercept"
	ReasonAmpSymOff     Reason = "amp_freq_sym_off"
	ReasonSDDeviation   Reason = Reason(SDDeviation)
	ReasonSDPeriodicity Reason = Reason(SDPeriodicity)
	ReasonTrecConfirmed Reason = "trec_corroborated"
)

// All output modes supported.
const (
	CSVOut     OutputMode = "csv"
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All evaluation modes supported.
const (
	InterferometricMode EvalMode = "if" // default
	SingleDishMode      EvalMode = "sd"
)

// Detector modes.
const (
	TwoSided DetectMode = "two"
	OneSided DetectMode = "one"
)

// All cache backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// StokesI labels the polarization-combined record.
const StokesI = "I"

// AllScanAggregate is the scan id used for the all-scan aggregate unit.
const AllScanAggregate = -1

// AllMetrics lists the fitted metrics in reporting order.
var AllMetrics = []Metric{AmpSlope, AmpIntercept, PhaseSlope, PhaseIntercept}

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	CSVOut:     {},
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidEvalModes lists all valid evaluation modes.
var ValidEvalModes = map[EvalMode]struct{}{
	InterferometricMode: {},
	SingleDishMode:      {},
}

// ValidDetectModes lists all valid detector modes.
var ValidDetectModes = map[DetectMode]struct{}{
	TwoSided: {},
	OneSided: {},
}

// ValidDatabaseBackends lists all valid cache backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// IsAmplitude reports whether the metric is an amplitude parameter.
func (m Metric) IsAmplitude() bool {
	return m == AmpSlope || m == AmpIntercept
}

// IsSlope reports whether the metric is a slope parameter.
func (m Metric) IsSlope() bool {
	return m == AmpSlope || m == PhaseSlope
}
