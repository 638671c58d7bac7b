package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
}

func newWinnerCmd() *cobra.Command {
	var variantID string

	cmd := &cobra.Command{
		Use:   "winner <experiment-id>",
		Short: "Declare a winner and complete an experiment",
		Long: `Declare a winning variant and complete the experiment.

Without --variant, the winner is picked from the current snapshot: the
significant, positive-uplift variant with the highest conversion rate. If no
variant qualifies, nothing happens.

Examples:
  splitpilot winner 8f14e45f-...            # auto-pick from the snapshot
  splitpilot winner 8f14e45f-... --variant 6512bd43-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			experimentID := args[0]

			return withEngine(func(eng *engine.Engine) error {
				ctx := context.Background()

				exp, err := eng.GetExperiment(ctx, experimentID)
				if err != nil {
					return fmt.Errorf("experiment not found: %s", experimentID)
				}
				if exp.Status != experiment.StatusRunning && exp.Status != experiment.StatusPaused {
					return fmt.Errorf("experiment is not active (current status: %s)", exp.Status)
				}

				winnerID := variantID
				winnerName := ""
				if winnerID == "" {
					snap, err := eng.ComputeSnapshot(ctx, experimentID)
					if err != nil {
						return fmt.Errorf("failed to compute snapshot: %w", err)
					}
					winner := snap.PickWinner()
					if winner == nil {
						return fmt.Errorf("no statistically significant winner yet; pass --variant to force one")
					}
					winnerID = winner.VariantID
					winnerName = winner.Name
				} else {
					for _, v := range exp.Variants {
						if v.ID == winnerID {
							winnerName = v.Name
						}
					}
				}

				if err := eng.Complete(ctx, experimentID, &winnerID); err != nil {
					return fmt.Errorf("failed to complete experiment: %w", err)
				}

				fmt.Printf("Declared winner for '%s': \"%s\"\n", exp.Name, winnerName)
				fmt.Println("Experiment has been marked as completed.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variantID, "variant", "v", "", "winning variant id (default: auto-pick significant winner)")

	return cmd
}
