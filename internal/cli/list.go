package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
)

var listScope string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and headline statistics.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listScope, "scope", "", "filter by treatment scope")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		ctx := context.Background()

		experiments, err := eng.ListExperiments(ctx, listScope)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with:")
			fmt.Println("  splitpilot create <name> --variants \"Control,B\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCOPE\tSTATUS\tVARIANTS\tENROLLED\tCONVERSIONS\tCREATED")

		for _, exp := range experiments {
			snap, err := eng.ComputeSnapshot(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to get snapshot for %s: %w", exp.Name, err)
			}

			enrolled := 0
			conversions := 0
			for _, v := range snap.Variants {
				enrolled += v.SampleSize
				conversions += v.Conversions
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				exp.Name,
				exp.Scope,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variants),
				enrolled,
				conversions,
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		w.Flush()
		return nil
	})
}
