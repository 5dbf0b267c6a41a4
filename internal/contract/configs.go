package contract

import (
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/huangsam/visqa/core/agg"
	"github.com/huangsam/visqa/schema"
	"go.uber.org/zap/zapcore"
)

// Default values for configuration.
const (
	DefaultResultLimit          = 100
	MaxResultLimit              = 100000
	DefaultPrecision            = 2
	DefaultDeviationThreshold   = 7.0
	DefaultLineThreshold        = 10.0
	DefaultPeriodicityThreshold = 10.0
	DefaultDetectThreshold      = 7.0
	DefaultMaxSmoothFrac        = 0.1
	DefaultBaselineWidth        = 20
	DefaultMinSegmentSize       = 20
	DefaultLogLevel             = "info"
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for an evaluation.
// This struct remains the "final, validated" config.
type Config struct {
	DatasetPath string
	TrecPath    string
	Mode        schema.EvalMode
	Workers     int
	ResultLimit int
	Precision   int
	Output      schema.OutputMode
	OutputFile  string
	Width       int // Terminal width override (0 = auto-detect)
	ShowFits    bool

	ScanAggregate bool

	// Single-dish detector thresholds in units of the smoothed noise.
	DeviationThreshold   float64
	LineThreshold        float64
	PeriodicityThreshold float64

	// Detector tuning shared by every flow.
	MaxSmoothFrac       float64
	BaselineSmoothWidth int
	MinSegmentSize      int

	// Single-signal commands (detect, spectrum).
	DetectThreshold float64
	Sided           schema.DetectMode
	FixedWidth      float64
	SampleSpacing   float64

	// Thresholds are the validated per-metric gates of the aggregator.
	Thresholds agg.Thresholds

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	AnalysisBackend   schema.DatabaseBackend
	AnalysisDBConnect string // Please use env var as this is plaintext

	UseColors bool
	LogLevel  string
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// This is set manually from positional args, so no tag
	DatasetPathStr string

	// --- Fields from rootCmd.PersistentFlags() ---
	OutputFile        string  `mapstructure:"output-file"`
	Limit             int     `mapstructure:"limit"`
	Workers           int     `mapstructure:"workers"`
	Precision         int     `mapstructure:"precision"`
	Output            string  `mapstructure:"output"`
	Width             int     `mapstructure:"width"`
	CacheBackend      string  `mapstructure:"cache-backend"`
	CacheDBConnect    string  `mapstructure:"cache-db-connect"`
	AnalysisBackend   string  `mapstructure:"analysis-backend"`
	AnalysisDBConnect string  `mapstructure:"analysis-db-connect"`
	Color             string  `mapstructure:"color"`
	LogLevel          string  `mapstructure:"log-level"`
	MaxSmoothFrac     float64 `mapstructure:"max-smooth-frac"`
	BaselineWidth     int     `mapstructure:"baseline-width"`
	MinSegment        int     `mapstructure:"min-segment"`

	// --- Fields from evaluateCmd.Flags() ---
	Mode                 string  `mapstructure:"mode"`
	Trec                 string  `mapstructure:"trec"`
	Fits                 bool    `mapstructure:"fits"`
	ScanAggregate        bool    `mapstructure:"scan-aggregate"`
	DeviationThreshold   float64 `mapstructure:"deviation-threshold"`
	LineThreshold        float64 `mapstructure:"line-threshold"`
	PeriodicityThreshold float64 `mapstructure:"periodicity-threshold"`

	// --- Fields from detectCmd.Flags() and spectrumCmd.Flags() ---
	Threshold     float64 `mapstructure:"threshold"`
	Sided         string  `mapstructure:"sided"`
	FixedWidth    float64 `mapstructure:"fixed-width"`
	SampleSpacing float64 `mapstructure:"sample-spacing"`

	// --- Gate overrides; the flag takes precedence over the config file ---
	ThresholdsStr string                   `mapstructure:"thresholds-override"`
	Thresholds    map[string]agg.Threshold `mapstructure:"thresholds"`
}

// Clone returns a copy of the Config struct. Thresholds are immutable and shared.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// RunParams returns the parameters recorded with a QA run.
func (c *Config) RunParams() map[string]any {
	params := map[string]any{
		"mode":           string(c.Mode),
		"workers":        c.Workers,
		"scan_aggregate": c.ScanAggregate,
	}
	if c.Mode == schema.SingleDishMode {
		params["deviation_threshold"] = c.DeviationThreshold
		params["line_threshold"] = c.LineThreshold
		params["periodicity_threshold"] = c.PeriodicityThreshold
	}
	gates := c.Thresholds.All()
	metrics := make([]string, 0, len(gates))
	for m := range gates {
		metrics = append(metrics, string(m))
	}
	sort.Strings(metrics)
	for _, m := range metrics {
		g := gates[schema.Metric(m)]
		params["threshold."+m] = fmt.Sprintf("%g/%g", g.Sigma, g.Physical)
	}
	return params
}

// ProcessAndValidate performs all complex parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processDetectorSettings(cfg, input); err != nil {
		return err
	}
	if err := processMetricThresholds(cfg, input); err != nil {
		return err
	}
	if err := resolveInputPaths(cfg, input); err != nil {
		return err
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("db connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("db connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates cache and analysis backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Cache Backend Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if _, ok := schema.ValidDatabaseBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return err
	}

	// --- Analysis Backend Validation ---
	cfg.AnalysisBackend = schema.DatabaseBackend(strings.ToLower(input.AnalysisBackend))
	if cfg.AnalysisBackend == "" {
		return nil
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.AnalysisBackend]; !ok {
		return fmt.Errorf("invalid analysis backend '%s'. must be sqlite, mysql, postgresql, none", input.AnalysisBackend)
	}
	cfg.AnalysisDBConnect = input.AnalysisDBConnect
	if err := ValidateDatabaseConnectionString(cfg.AnalysisBackend, cfg.AnalysisDBConnect); err != nil {
		return err
	}

	// Cache and analysis must not share one SQLite file
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.AnalysisBackend == schema.SQLiteBackend {
		cacheDBPath := cfg.CacheDBConnect
		if cacheDBPath == "" {
			cacheDBPath = GetCacheDBFilePath()
		}
		analysisDBPath := cfg.AnalysisDBConnect
		if analysisDBPath == "" {
			analysisDBPath = GetAnalysisDBFilePath()
		}
		if cacheDBPath == analysisDBPath {
			return fmt.Errorf("cache and analysis storage must use different SQLite database files. Both resolve to %q", cacheDBPath)
		}
	}
	return nil
}

// validateSimpleInputs processes and validates all non-path related fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	// --- 0. Transfer simple non-validated fields from input -> cfg ---
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.ShowFits = input.Fits
	cfg.ScanAggregate = input.ScanAggregate

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(input.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid --log-level value: %w", err)
	}

	// --- 1. ResultLimit Validation ---
	if input.Limit <= 0 || input.Limit > MaxResultLimit {
		return fmt.Errorf("limit must be greater than 0 and cannot exceed %d (received %d)", MaxResultLimit, input.Limit)
	}
	cfg.ResultLimit = input.Limit

	// --- 2. Workers Validation ---
	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	// --- 3. Mode Validation ---
	cfg.Mode = schema.EvalMode(strings.ToLower(input.Mode))
	if cfg.Mode == "" {
		cfg.Mode = schema.InterferometricMode
	}
	if _, ok := schema.ValidEvalModes[cfg.Mode]; !ok {
		return fmt.Errorf("invalid mode '%s'. must be if, sd", input.Mode)
	}

	// --- 4. Precision and Output Validation ---
	if input.Precision < 1 || input.Precision > 6 {
		return fmt.Errorf("precision must be between 1 and 6 (received %d)", input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", cfg.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("parquet output requires --output-file")
	}

	// --- 5. Backend Validation ---
	return validateBackendConfigs(cfg, input)
}

// processDetectorSettings validates the adaptive detector and spectrum settings.
func processDetectorSettings(cfg *Config, input *ConfigRawInput) error {
	positive := map[string]float64{
		"deviation-threshold":   input.DeviationThreshold,
		"line-threshold":        input.LineThreshold,
		"periodicity-threshold": input.PeriodicityThreshold,
		"threshold":             input.Threshold,
		"sample-spacing":        input.SampleSpacing,
	}
	for name, v := range positive {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a positive number (received %g)", name, v)
		}
	}
	cfg.DeviationThreshold = input.DeviationThreshold
	cfg.LineThreshold = input.LineThreshold
	cfg.PeriodicityThreshold = input.PeriodicityThreshold
	cfg.DetectThreshold = input.Threshold
	cfg.SampleSpacing = input.SampleSpacing

	if !(input.MaxSmoothFrac > 0) || input.MaxSmoothFrac > 1 {
		return fmt.Errorf("max-smooth-frac must be in (0, 1] (received %g)", input.MaxSmoothFrac)
	}
	cfg.MaxSmoothFrac = input.MaxSmoothFrac

	if input.BaselineWidth < 1 {
		return fmt.Errorf("baseline-width must be at least 1 (received %d)", input.BaselineWidth)
	}
	cfg.BaselineSmoothWidth = input.BaselineWidth

	if input.MinSegment < 2 {
		return fmt.Errorf("min-segment must be at least 2 (received %d)", input.MinSegment)
	}
	cfg.MinSegmentSize = input.MinSegment

	if input.FixedWidth < 0 || math.IsNaN(input.FixedWidth) || math.IsInf(input.FixedWidth, 0) {
		return fmt.Errorf("fixed-width cannot be negative (received %g)", input.FixedWidth)
	}
	cfg.FixedWidth = input.FixedWidth

	cfg.Sided = schema.DetectMode(strings.ToLower(input.Sided))
	if cfg.Sided == "" {
		cfg.Sided = schema.TwoSided
	}
	if _, ok := schema.ValidDetectModes[cfg.Sided]; !ok {
		return fmt.Errorf("invalid sided value '%s'. must be one, two", input.Sided)
	}
	return nil
}

// processMetricThresholds merges the config file gates and the --thresholds-override
// flag into validated aggregator thresholds. The flag takes precedence.
func processMetricThresholds(cfg *Config, input *ConfigRawInput) error {
	overrides := make(map[schema.Metric]agg.Threshold)
	for name, gate := range input.Thresholds {
		metric, err := agg.ResolveMetric(name)
		if err != nil {
			return fmt.Errorf("invalid thresholds entry: %w", err)
		}
		overrides[metric] = gate
	}

	if input.ThresholdsStr != "" {
		parsed, err := agg.ParseThresholdOverrides(input.ThresholdsStr)
		if err != nil {
			return fmt.Errorf("invalid --thresholds-override format: %w", err)
		}
		maps.Copy(overrides, parsed)
	}

	th, err := agg.NewThresholds(overrides)
	if err != nil {
		return err
	}
	cfg.Thresholds = th
	return nil
}

// resolveInputPaths turns the dataset and Trec arguments into absolute, existing paths.
func resolveInputPaths(cfg *Config, input *ConfigRawInput) error {
	if input.DatasetPathStr != "" {
		p, err := existingPath(input.DatasetPathStr)
		if err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
		cfg.DatasetPath = p
	}
	if input.Trec != "" {
		p, err := existingPath(input.Trec)
		if err != nil {
			return fmt.Errorf("trec: %w", err)
		}
		cfg.TrecPath = p
	}
	return nil
}

func existingPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}
	return abs, nil
}

// RevalidateEvaluate applies the dataset, Trec and mode arguments of a tool request to cfg.
func RevalidateEvaluate(cfg *Config, datasetPath, trecPath, mode string) error {
	if datasetPath == "" {
		return fmt.Errorf("dataset_path is required")
	}
	p, err := existingPath(datasetPath)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	cfg.DatasetPath = p

	cfg.TrecPath = ""
	if trecPath != "" {
		if cfg.TrecPath, err = existingPath(trecPath); err != nil {
			return fmt.Errorf("trec: %w", err)
		}
	}

	if mode != "" {
		m := schema.EvalMode(strings.ToLower(mode))
		if _, ok := schema.ValidEvalModes[m]; !ok {
			return fmt.Errorf("invalid mode '%s'. must be if, sd", mode)
		}
		cfg.Mode = m
	}
	return nil
}

// RevalidateSignal applies the signal path and detector arguments of a tool request to cfg.
// Zero values keep the configured settings.
func RevalidateSignal(cfg *Config, signalPath, sided string, threshold, fixedWidth float64) error {
	if signalPath == "" {
		return fmt.Errorf("signal_path is required")
	}
	p, err := existingPath(signalPath)
	if err != nil {
		return fmt.Errorf("signal: %w", err)
	}
	cfg.DatasetPath = p

	if sided != "" {
		s := schema.DetectMode(strings.ToLower(sided))
		if _, ok := schema.ValidDetectModes[s]; !ok {
			return fmt.Errorf("invalid sided value '%s'. must be one, two", sided)
		}
		cfg.Sided = s
	}
	if threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return fmt.Errorf("threshold must be a positive number (received %g)", threshold)
	}
	if threshold > 0 {
		cfg.DetectThreshold = threshold
	}
	if fixedWidth < 0 || math.IsNaN(fixedWidth) || math.IsInf(fixedWidth, 0) {
		return fmt.Errorf("fixed_width cannot be negative (received %g)", fixedWidth)
	}
	if fixedWidth > 0 {
		cfg.FixedWidth = fixedWidth
	}
	return nil
}

// ProcessProfilingConfig enables profiling when a file prefix is given.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}
