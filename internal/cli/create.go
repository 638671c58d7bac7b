package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		scope    string
		variants string
		weights  string
		start    bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new experiment with the specified name and variants.
The first variant is the control unless weights say otherwise.

Examples:
  splitpilot create welcome-subject --variants "Control,Emoji Subject"
  splitpilot create upsell-copy --scope post-purchase-offer --variants "Control,Bundle,Discount" --weights "2,1,1"
  splitpilot create welcome-subject --variants "A,B" --start`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			variantList := strings.Split(variants, ",")
			for i := range variantList {
				variantList[i] = strings.TrimSpace(variantList[i])
			}
			if len(variantList) < 2 {
				return fmt.Errorf("need at least 2 variants. Example: --variants \"Control,B\"")
			}

			weightList, err := parseWeights(weights, len(variantList))
			if err != nil {
				return err
			}

			if scope == "" {
				scope, err = promptScope()
				if err != nil {
					return err
				}
			}

			newVariants := make([]engine.NewVariant, len(variantList))
			for i, vn := range variantList {
				newVariants[i] = engine.NewVariant{
					Name:      vn,
					Weight:    weightList[i],
					IsControl: i == 0,
				}
			}

			return withEngine(func(eng *engine.Engine) error {
				ctx := context.Background()

				exp, err := eng.CreateExperiment(ctx, name, scope, newVariants)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (%s) with %d variants:\n", exp.Name, exp.ID, len(exp.Variants))
				for _, v := range exp.Variants {
					marker := ""
					if v.IsControl {
						marker = " (control)"
					}
					fmt.Printf("  %s: weight %g%s\n", v.Name, v.Weight, marker)
				}

				if start {
					if err := eng.Start(ctx, exp.ID); err != nil {
						return fmt.Errorf("failed to start experiment: %w", err)
					}
					fmt.Println("Experiment is now running.")
				} else {
					fmt.Println("Experiment is in draft. Start it with 'splitpilot start' or the API before assigning.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "treatment scope (automation-step or post-purchase-offer)")
	cmd.Flags().StringVar(&variants, "variants", "", "comma-separated variant names, control first (required)")
	cmd.Flags().StringVar(&weights, "weights", "", "comma-separated relative weights (default: equal)")
	cmd.Flags().BoolVar(&start, "start", false, "start the experiment immediately")
	cmd.MarkFlagRequired("variants")

	return cmd
}

func parseWeights(weights string, n int) ([]float64, error) {
	result := make([]float64, n)
	if weights == "" {
		for i := range result {
			result[i] = 1
		}
		return result, nil
	}

	parts := strings.Split(weights, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("got %d weights for %d variants", len(parts), n)
	}
	for i, p := range parts {
		w, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", p, err)
		}
		if w < 0 {
			return nil, fmt.Errorf("weight %q is negative", p)
		}
		result[i] = w
	}
	return result, nil
}

func promptScope() (string, error) {
	prompt := promptui.Select{
		Label: "What kind of treatment is being tested?",
		Items: []string{experiment.ScopeAutomationStep, experiment.ScopePostPurchaseOffer},
	}

	_, choice, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			return "", fmt.Errorf("cancelled")
		}
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return choice, nil
}
