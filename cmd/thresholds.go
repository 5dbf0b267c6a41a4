package cmd

import (
	"github.com/huangsam/visqa/core"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/spf13/cobra"
)

// thresholdsCmd prints the active gates.
var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Show the active outlier gates.",
	Long: `Print the significance and physical gates used by evaluate.

Gates come from the built-in defaults, the "thresholds" section of the
config file, and --thresholds-override, in increasing precedence.

Examples:
  # Show the defaults
  visqa thresholds

  # Check the effect of an override
  visqa thresholds --thresholds-override 'amp_slope:30/2'`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteThresholds(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot print thresholds", err)
		}
	},
}
