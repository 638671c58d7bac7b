// Package scheduler runs the periodic auto-winner sweep over running
// experiments.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/splitpilot/splitpilot/internal/engine"
)

// Scheduler owns the cron instance driving periodic experiment evaluation.
type Scheduler struct {
	cron   *cron.Cron
	engine *engine.Engine
	log    zerolog.Logger
}

func New(eng *engine.Engine, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: eng,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the auto-winner sweep at the given cron spec and starts
// the scheduler.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.sweep)
	if err != nil {
		return fmt.Errorf("failed to schedule auto-winner sweep: %w", err)
	}
	s.cron.Start()
	s.log.Info().Str("spec", spec).Msg("auto-winner sweep scheduled")
	return nil
}

// Stop stops the scheduler, waiting for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweep() {
	completed, err := s.engine.EvaluateRunning(context.Background())
	if err != nil {
		s.log.Error().Err(err).Msg("auto-winner sweep failed")
		return
	}
	if len(completed) > 0 {
		s.log.Info().Strs("experiment_ids", completed).Msg("completed experiments with winners")
	}
}
