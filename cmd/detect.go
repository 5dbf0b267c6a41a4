package cmd

import (
	"github.com/huangsam/visqa/core"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/spf13/cobra"
)

// detectCmd runs the adaptive outlier detector on a single signal.
var detectCmd = &cobra.Command{
	Use:   "detect <signal>",
	Short: "Flag the outlying samples of a single signal.",
	Long: `Run the adaptive outlier detector on a single signal.

The signal is a JSON document with a "values" array and optional "imag"
and "mask" arrays. Complex signals are detected on their amplitude.

The detector removes a smoothed baseline, searches for the smoothing width
that maximizes the significance of the strongest feature, and flags every
sample whose normalized value exceeds the threshold. Searched widths are
cached in the width cache.

Examples:
  # Flag excursions in both directions
  visqa detect spectrum.json

  # Positive excursions only, with a fixed smoothing width
  visqa detect --sided one --fixed-width 6.55 spectrum.json

  # Export the per-sample flags
  visqa detect --output csv --output-file flags.csv spectrum.json`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteDetect(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot run detection", err)
		}
	},
}
