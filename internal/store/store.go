package store

import (
	"context"

	"github.com/splitpilot/splitpilot/internal/experiment"
)

// Store defines the durable collections backing the engine: experiment
// configuration, enrollments (unique on experiment+subject), and the
// append-only event ledger.
type Store interface {
	// Experiment configuration
	CreateExperiment(ctx context.Context, exp *experiment.Experiment) error
	GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error)
	ListExperiments(ctx context.Context, scope string) ([]*experiment.Experiment, error)
	ListExperimentsByStatus(ctx context.Context, status experiment.Status) ([]*experiment.Experiment, error)
	UpdateExperimentStatus(ctx context.Context, id string, status experiment.Status, winnerVariantID *string) error

	// Enrollments
	CreateEnrollment(ctx context.Context, e *experiment.Enrollment) error
	GetEnrollment(ctx context.Context, id string) (*experiment.Enrollment, error)
	GetEnrollmentBySubject(ctx context.Context, experimentID, subjectID string) (*experiment.Enrollment, error)
	CountEnrollmentsByVariant(ctx context.Context, experimentID string) (map[string]int, error)

	// Event ledger
	RecordEvent(ctx context.Context, ev *experiment.Event) error
	GetVariantEventStats(ctx context.Context, experimentID string) ([]VariantEventStats, error)
	GetEvents(ctx context.Context, enrollmentID string) ([]*experiment.Event, error)

	// Lifecycle
	Close() error
}

// VariantEventStats is the per-variant rollup read by the statistics
// aggregator: distinct enrollments per event kind plus summed revenue.
type VariantEventStats struct {
	VariantID   string
	Impressions int
	Opens       int
	Clicks      int
	Conversions int
	Revenue     float64
}
