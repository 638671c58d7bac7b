package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/config"
	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/scheduler"
	"github.com/splitpilot/splitpilot/internal/server"
	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
	"github.com/splitpilot/splitpilot/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the splitpilot HTTP server.

The server provides:
  - Assignment endpoint for enrolling subjects
  - Event endpoint for delivery/telemetry callbacks
  - Snapshot endpoint for reporting surfaces
  - Health check endpoint

Example:
  splitpilot serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The --db flag wins over the environment when set explicitly.
	if rootCmd.PersistentFlags().Changed("db") {
		cfg.DBPath = dbPath
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	eng := engine.New(s, stats.Config{
		MinSampleSize:   cfg.MinSampleSize,
		ConfidenceLevel: cfg.ConfidenceLevel,
	}, log)

	if cfg.AutoWinner {
		sched := scheduler.New(eng, log)
		if err := sched.Start(cfg.AutoWinnerCron); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := server.New(eng, cfg.Port, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
