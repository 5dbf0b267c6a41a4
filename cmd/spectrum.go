package cmd

import (
	"github.com/huangsam/visqa/core"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/spf13/cobra"
)

// spectrumCmd computes the segmented spectral power of a single signal.
var spectrumCmd = &cobra.Command{
	Use:   "spectrum <signal>",
	Short: "Compute the spectral power of a signal with masked gaps.",
	Long: `Compute the power spectrum of a single signal around its masked samples.

Unmasked runs of at least --min-segment samples are transformed separately
and their power is interpolated onto a common frequency axis. Real signals
use the non-negative frequencies; complex signals use the full axis.

Examples:
  # Power spectrum of a gain time series sampled every 2 seconds
  visqa spectrum --sample-spacing 2 gains.json

  # Allow short segments between flagged integrations
  visqa spectrum --min-segment 8 --output json gains.json`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteSpectrum(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot compute spectrum", err)
		}
	},
}
