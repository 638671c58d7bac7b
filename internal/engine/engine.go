// Package engine exposes the three core operations of the split-testing
// core: AssignVariant, RecordEvent, and ComputeSnapshot, plus the experiment
// lifecycle around them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/splitpilot/splitpilot/internal/assign"
	"github.com/splitpilot/splitpilot/internal/experiment"
	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
)

// Engine coordinates assignment, event recording, and statistics. All state
// lives in the store; the engine itself is stateless and safe for concurrent
// use.
type Engine struct {
	store store.Store
	stats stats.Config
	log   zerolog.Logger
	now   func() time.Time
}

func New(s store.Store, cfg stats.Config, log zerolog.Logger) *Engine {
	return &Engine{
		store: s,
		stats: cfg,
		log:   log.With().Str("component", "engine").Logger(),
		now:   time.Now,
	}
}

// NewVariant is the caller-supplied definition of one treatment arm.
type NewVariant struct {
	Name      string
	Weight    float64
	IsControl bool
	Payload   []byte
}

// CreateExperiment registers a new experiment in draft state. Weights must
// be non-negative; at most one variant may be flagged as control. The full
// running-state invariants (positive total weight, exactly one control) are
// enforced at Start.
func (e *Engine) CreateExperiment(ctx context.Context, name, scope string, variants []NewVariant) (*experiment.Experiment, error) {
	if name == "" || len(variants) == 0 {
		return nil, fmt.Errorf("%w: name and at least one variant are required", experiment.ErrInvalidArgument)
	}

	controls := 0
	for _, v := range variants {
		if v.Name == "" {
			return nil, fmt.Errorf("%w: variant name is required", experiment.ErrInvalidArgument)
		}
		if v.Weight < 0 {
			return nil, fmt.Errorf("%w: variant weight must be non-negative", experiment.ErrInvalidArgument)
		}
		if v.IsControl {
			controls++
		}
	}
	if controls > 1 {
		return nil, fmt.Errorf("%w: at most one control variant", experiment.ErrInvalidArgument)
	}

	exp := &experiment.Experiment{
		ID:        uuid.NewString(),
		Name:      name,
		Scope:     scope,
		Status:    experiment.StatusDraft,
		Seed:      rand.Int63(),
		CreatedAt: e.now().UTC(),
	}
	for _, v := range variants {
		exp.Variants = append(exp.Variants, experiment.Variant{
			ID:           uuid.NewString(),
			ExperimentID: exp.ID,
			Name:         v.Name,
			Weight:       v.Weight,
			IsControl:    v.IsControl,
			Payload:      v.Payload,
		})
	}

	if err := e.store.CreateExperiment(ctx, exp); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("experiment_id", exp.ID).
		Str("scope", exp.Scope).
		Int("variants", len(exp.Variants)).
		Msg("created experiment")

	return exp, nil
}

// Start moves a draft or paused experiment to running. The variant set must
// satisfy the running-state invariants.
func (e *Engine) Start(ctx context.Context, experimentID string) error {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return err
	}
	if exp.Status != experiment.StatusDraft && exp.Status != experiment.StatusPaused {
		return fmt.Errorf("%w: cannot start a %s experiment", experiment.ErrInvalidArgument, exp.Status)
	}

	// Borrow the running-state check: validate as if already running.
	check := *exp
	check.Status = experiment.StatusRunning
	if err := check.ValidateForAssignment(); err != nil {
		return err
	}

	return e.store.UpdateExperimentStatus(ctx, experimentID, experiment.StatusRunning, nil)
}

// Pause stops new assignments without discarding any collected data.
func (e *Engine) Pause(ctx context.Context, experimentID string) error {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return err
	}
	if exp.Status != experiment.StatusRunning {
		return fmt.Errorf("%w: cannot pause a %s experiment", experiment.ErrInvalidArgument, exp.Status)
	}
	return e.store.UpdateExperimentStatus(ctx, experimentID, experiment.StatusPaused, nil)
}

// Complete ends an experiment, optionally recording a winning variant.
func (e *Engine) Complete(ctx context.Context, experimentID string, winnerVariantID *string) error {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return err
	}
	if winnerVariantID != nil {
		found := false
		for _, v := range exp.Variants {
			if v.ID == *winnerVariantID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: winner is not a variant of this experiment", experiment.ErrInvalidArgument)
		}
	}
	return e.store.UpdateExperimentStatus(ctx, experimentID, experiment.StatusCompleted, winnerVariantID)
}

// AssignVariant resolves exactly one variant for a subject. Repeated calls
// for the same subject return the existing enrollment; first-time calls run
// the deterministic weighted draw and persist the result. A lost insert race
// is recovered by re-reading the winning enrollment and is never surfaced.
func (e *Engine) AssignVariant(ctx context.Context, experimentID, subjectID string) (*experiment.Enrollment, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject id is required", experiment.ErrInvalidArgument)
	}

	existing, err := e.store.GetEnrollmentBySubject(ctx, experimentID, subjectID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, experiment.ErrNotFound) {
		return nil, err
	}

	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if err := exp.ValidateForAssignment(); err != nil {
		return nil, err
	}

	variant, err := assign.Pick(exp, subjectID)
	if err != nil {
		return nil, err
	}

	enrollment := &experiment.Enrollment{
		ID:           uuid.NewString(),
		ExperimentID: experimentID,
		SubjectID:    subjectID,
		VariantID:    variant.ID,
		AssignedAt:   e.now().UTC(),
	}

	err = e.store.CreateEnrollment(ctx, enrollment)
	if errors.Is(err, experiment.ErrDuplicateEnrollment) {
		// Someone else won the first-assignment race; their row is the
		// truth for this subject.
		return e.store.GetEnrollmentBySubject(ctx, experimentID, subjectID)
	}
	if err != nil {
		return nil, err
	}

	e.log.Debug().
		Str("experiment_id", experimentID).
		Str("subject_id", subjectID).
		Str("variant_id", variant.ID).
		Msg("assigned variant")

	return enrollment, nil
}

// RecordEvent appends a behavioral event to an enrollment's ledger. The
// first occurrence of each kind wins; later duplicates succeed as no-ops so
// webhook retries are safe. Value is only meaningful for converted events
// and must be non-negative.
func (e *Engine) RecordEvent(ctx context.Context, enrollmentID string, kind experiment.EventKind, occurredAt time.Time, value *float64) error {
	if !experiment.ValidKind(kind) {
		return fmt.Errorf("%w: unknown event kind %q", experiment.ErrInvalidArgument, kind)
	}
	if value != nil {
		if kind != experiment.EventConverted {
			value = nil
		} else if *value < 0 {
			return fmt.Errorf("%w: conversion value must be non-negative", experiment.ErrInvalidArgument)
		}
	}

	if _, err := e.store.GetEnrollment(ctx, enrollmentID); err != nil {
		return err
	}

	if occurredAt.IsZero() {
		occurredAt = e.now()
	}

	return e.store.RecordEvent(ctx, &experiment.Event{
		EnrollmentID: enrollmentID,
		Kind:         kind,
		OccurredAt:   occurredAt.UTC(),
		Value:        value,
	})
}

// ComputeSnapshot derives the current statistics view for an experiment.
// It never fails on sparse data: zero conversions, a missing control rate,
// or undersampled arms degrade to "not significant" / undefined deltas.
func (e *Engine) ComputeSnapshot(ctx context.Context, experimentID string) (*stats.Snapshot, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	sampleSizes, err := e.store.CountEnrollmentsByVariant(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	eventStats, err := e.store.GetVariantEventStats(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	return stats.BuildSnapshot(exp, sampleSizes, eventStats, e.stats), nil
}

// GetExperiment returns an experiment with its variants.
func (e *Engine) GetExperiment(ctx context.Context, experimentID string) (*experiment.Experiment, error) {
	return e.store.GetExperiment(ctx, experimentID)
}

// ListExperiments returns experiments, optionally filtered by scope tag.
func (e *Engine) ListExperiments(ctx context.Context, scope string) ([]*experiment.Experiment, error) {
	return e.store.ListExperiments(ctx, scope)
}

// GetEnrollmentBySubject resolves the enrollment for a subject, for callers
// that lost the enrollment id returned by assignment.
func (e *Engine) GetEnrollmentBySubject(ctx context.Context, experimentID, subjectID string) (*experiment.Enrollment, error) {
	return e.store.GetEnrollmentBySubject(ctx, experimentID, subjectID)
}

// EvaluateRunning snapshots every running experiment and completes those
// with a significant winner. Returns the ids of experiments completed this
// pass. Used by the auto-winner sweep.
func (e *Engine) EvaluateRunning(ctx context.Context) ([]string, error) {
	running, err := e.store.ListExperimentsByStatus(ctx, experiment.StatusRunning)
	if err != nil {
		return nil, err
	}

	var completed []string
	for _, exp := range running {
		snap, err := e.ComputeSnapshot(ctx, exp.ID)
		if err != nil {
			e.log.Error().Err(err).Str("experiment_id", exp.ID).Msg("failed to snapshot experiment")
			continue
		}

		winner := snap.PickWinner()
		if winner == nil {
			continue
		}

		winnerID := winner.VariantID
		if err := e.Complete(ctx, exp.ID, &winnerID); err != nil {
			e.log.Error().Err(err).Str("experiment_id", exp.ID).Msg("failed to complete experiment")
			continue
		}

		e.log.Info().
			Str("experiment_id", exp.ID).
			Str("winner_variant_id", winnerID).
			Float64("conversion_rate", winner.ConversionRate).
			Msg("auto-selected winning variant")

		completed = append(completed, exp.ID)
	}

	return completed, nil
}
