package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "splitpilot",
	Short: "Splitpilot - experiment assignment and significance engine for e-commerce treatments",
	Long: `Splitpilot splits traffic across named variants of a treatment (an automation
email, a post-purchase offer), tracks behavioral outcomes per enrolled subject,
and produces a statistically defensible verdict on which variant beats control.

Single Go binary, embedded SQLite.

Running without a subcommand starts the server (same as 'splitpilot serve').`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Default action is to start server; set here to avoid an initialization cycle.
	rootCmd.RunE = runServe
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("SPLITPILOT_DB_PATH", "./splitpilot.db"), "database path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
