package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
)

var startCmd = &cobra.Command{
	Use:   "start <experiment-id>",
	Short: "Start a draft or paused experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			ctx := context.Background()
			if err := eng.Start(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to start experiment: %w", err)
			}
			fmt.Println("Experiment is now running.")
			return nil
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <experiment-id>",
	Short: "Pause a running experiment",
	Long: `Pause a running experiment. New subjects are no longer assigned, but
existing enrollments keep resolving to their variant and events keep landing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			ctx := context.Background()
			if err := eng.Pause(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to pause experiment: %w", err)
			}
			fmt.Println("Experiment paused. Resume with 'splitpilot start'.")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(pauseCmd)
}
