package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
)

// withEngine opens the database, wires the engine, executes the function,
// and handles cleanup. CLI commands log nothing structured; output goes to
// stdout.
func withEngine(fn func(*engine.Engine) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	eng := engine.New(s, stats.Config{}, zerolog.Nop())
	return fn(eng)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
