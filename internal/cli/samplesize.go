package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/stats"
)

func init() {
	rootCmd.AddCommand(newSampleSizeCmd())
}

func newSampleSizeCmd() *cobra.Command {
	var (
		baseline float64
		mde      float64
		alpha    float64
		power    float64
	)

	cmd := &cobra.Command{
		Use:   "samplesize",
		Short: "Estimate the per-variant sample size for an experiment",
		Long: `Estimate how many subjects each variant needs before a difference of the
given size becomes detectable.

Example:
  splitpilot samplesize --baseline 0.05 --mde 0.01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			n := stats.RequiredSampleSize(baseline, mde, alpha, power)
			if n == 0 {
				return fmt.Errorf("invalid parameters: baseline must be in (0,1) and mde positive")
			}

			fmt.Printf("Baseline conversion rate:   %s\n", formatPercent(baseline))
			fmt.Printf("Minimum detectable effect:  %s (absolute)\n", formatPercent(mde))
			fmt.Printf("Significance level (alpha): %.2f\n", alpha)
			fmt.Printf("Statistical power:          %.2f\n", power)
			fmt.Printf("\nRequired sample size: %d subjects per variant\n", n)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&baseline, "baseline", "b", 0.05, "expected conversion rate of the control")
	cmd.Flags().Float64VarP(&mde, "mde", "m", 0.01, "minimum detectable effect (absolute rate change)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "significance level")
	cmd.Flags().Float64Var(&power, "power", 0.80, "statistical power")

	return cmd
}
