// Package cmd defines the command-line interface for visqa.
package cmd

import (
	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(spectrumCmd)
	rootCmd.AddCommand(thresholdsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(analysisCmd)
	rootCmd.AddCommand(mcpCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	// Add the analysis subcommands to the parent analysis command
	analysisCmd.AddCommand(analysisClearCmd)
	analysisCmd.AddCommand(analysisStatusCmd)
	analysisCmd.AddCommand(analysisExportCmd)
	analysisCmd.AddCommand(analysisMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().IntP("limit", "l", contract.DefaultResultLimit, "Number of results to display")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.SQLiteBackend), "Width cache backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("analysis-backend", "", "QA run tracking backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("analysis-db-connect", "", "Database connection string for run tracking (must differ from cache-db-connect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("log-level", contract.DefaultLogLevel, "Log level: debug or info or warn or error")
	rootCmd.PersistentFlags().Float64("max-smooth-frac", contract.DefaultMaxSmoothFrac, "Largest smoothing width as a fraction of the signal length")
	rootCmd.PersistentFlags().Int("baseline-width", contract.DefaultBaselineWidth, "Width of the baseline smoothing kernel in channels")
	rootCmd.PersistentFlags().Int("min-segment", contract.DefaultMinSegmentSize, "Minimum unmasked segment length for spectral power")
	rootCmd.PersistentFlags().Float64("sample-spacing", 1.0, "Spacing between samples for spectral frequency axes")
	rootCmd.PersistentFlags().String("thresholds-override", "", "Per-metric gates (format: 'amp_slope:50/1.5,phase_intercept:53/90')")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of evaluateCmd to Viper
	evaluateCmd.Flags().String("mode", string(schema.InterferometricMode), "QA flow: if (interferometric) or sd (single-dish)")
	evaluateCmd.Flags().String("trec", "", "Path to receiver temperature spectra for single-dish corroboration")
	evaluateCmd.Flags().Bool("fits", false, "Print the per-antenna fit table")
	evaluateCmd.Flags().Bool("scan-aggregate", false, "Also evaluate all scans of each spw aggregated in time")
	evaluateCmd.Flags().Float64("deviation-threshold", contract.DefaultDeviationThreshold, "Single-dish spectral deviation threshold")
	evaluateCmd.Flags().Float64("line-threshold", contract.DefaultLineThreshold, "Single-dish science line exclusion threshold")
	evaluateCmd.Flags().Float64("periodicity-threshold", contract.DefaultPeriodicityThreshold, "Single-dish periodic gain threshold")
	if err := viper.BindPFlags(evaluateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding evaluate flags", err)
	}

	// Bind all flags of detectCmd to Viper
	detectCmd.Flags().Float64("threshold", contract.DefaultDetectThreshold, "Detection threshold in units of the smoothed noise")
	detectCmd.Flags().String("sided", string(schema.TwoSided), "Flag both excursions (two) or positive ones only (one)")
	detectCmd.Flags().Float64("fixed-width", 0, "Use this smoothing width instead of searching for one (0 = search)")
	if err := viper.BindPFlags(detectCmd.Flags()); err != nil {
		contract.LogFatal("Error binding detect flags", err)
	}

	// Bind all flags of analysisMigrateCmd to Viper
	analysisMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(analysisMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding analysis migrate flags", err)
	}
}
