package cmd

import (
	"github.com/huangsam/visqa/core"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/spf13/cobra"
)

// evaluateCmd runs the QA flow over a calibration dataset.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate <dataset>",
	Short: "Rank the antennas whose data deviate from the array.",
	Long: `Evaluate a calibration dataset and report per-antenna outliers.

In interferometric mode (if) every spectral window and scan is evaluated on its own:
- Each antenna's bandpass is fitted with a line in amplitude and phase
- Slopes and intercepts are compared against the rest of the array
- Outliers must pass both a significance gate and a physical gate

In single-dish mode (sd) the autocorrelation spectra of each antenna are
compared against the median spectrum of the spw, and the time series are
searched for periodic gain variations. Receiver temperature spectra given
with --trec corroborate spectral deviations.

Datasets are read from JSON (.json) or long-format Parquet (.parquet) files.

Examples:
  # Evaluate a bandpass calibrator
  visqa evaluate uid___A002_X1.json

  # Include the all-scan aggregate and the fit table
  visqa evaluate --scan-aggregate --fits uid___A002_X1.json

  # Single-dish evaluation with receiver temperature corroboration
  visqa evaluate --mode sd --trec trec.json uid___A002_X2.parquet

  # Tighten the phase intercept gate and export to Parquet
  visqa evaluate --thresholds-override 'phase_intercept:40/45' --output parquet --output-file outliers.parquet dataset.json`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteEvaluate(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot run evaluation", err)
		}
	},
}
