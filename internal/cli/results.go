package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
)

var resultsCmd = &cobra.Command{
	Use:   "results <experiment-id>",
	Short: "Show detailed results for an experiment",
	Long:  `Show per-variant statistics including conversion rates, uplift vs control, and significance verdicts.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		ctx := context.Background()

		exp, err := eng.GetExperiment(ctx, args[0])
		if err != nil {
			return fmt.Errorf("experiment '%s' not found", args[0])
		}

		snap, err := eng.ComputeSnapshot(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to compute snapshot: %w", err)
		}

		fmt.Printf("EXPERIMENT: %s\n", exp.Name)
		fmt.Printf("SCOPE: %s\n", exp.Scope)
		fmt.Printf("STATUS: %s\n", strings.ToUpper(string(exp.Status)))
		fmt.Printf("CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
		fmt.Println()

		fmt.Println("VARIANT           ENROLLED  CONV   RATE     vs CONTROL  CONFIDENCE  REVENUE")
		fmt.Println(strings.Repeat("─", 78))

		for _, v := range snap.Variants {
			name := v.Name
			if v.IsControl {
				name += " *"
			}
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			delta := "—"
			if v.ConversionRateChange != nil {
				delta = fmt.Sprintf("%+.1f%%", *v.ConversionRateChange*100)
			}

			confidence := "—"
			if v.Confidence != nil {
				confidence = fmt.Sprintf("%.1f%%", *v.Confidence*100)
				if v.Significant {
					confidence += " ✓"
				}
			}

			fmt.Printf("%-16s  %-8d  %-5d  %-7s  %-10s  %-10s  %.2f\n",
				name,
				v.SampleSize,
				v.Conversions,
				formatPercent(v.ConversionRate),
				delta,
				confidence,
				v.Revenue,
			)
		}

		fmt.Println()
		fmt.Println("* control variant")

		if winner := snap.PickWinner(); winner != nil {
			fmt.Printf("\nStatistically significant winner: \"%s\" (%.1f%% confidence)\n",
				winner.Name, *winner.Confidence*100)
		} else {
			fmt.Println("\nNo statistically significant winner yet.")
		}

		return nil
	})
}
