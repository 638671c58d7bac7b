package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpilot/splitpilot/internal/experiment"
	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, stats.Config{}, zerolog.Nop())
}

func twoArmVariants() []NewVariant {
	return []NewVariant{
		{Name: "Control", Weight: 1, IsControl: true},
		{Name: "Treatment", Weight: 1, Payload: []byte(`{"subject":"New!"}`)},
	}
}

func createRunning(t *testing.T, eng *Engine) *experiment.Experiment {
	t.Helper()
	ctx := context.Background()
	exp, err := eng.CreateExperiment(ctx, "welcome-subject", experiment.ScopeAutomationStep, twoArmVariants())
	require.NoError(t, err)
	require.NoError(t, eng.Start(ctx, exp.ID))
	return exp
}

func TestCreateExperiment_Validation(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CreateExperiment(ctx, "", "scope", twoArmVariants())
	assert.ErrorIs(t, err, experiment.ErrInvalidArgument)

	_, err = eng.CreateExperiment(ctx, "x", "scope", nil)
	assert.ErrorIs(t, err, experiment.ErrInvalidArgument)

	_, err = eng.CreateExperiment(ctx, "x", "scope", []NewVariant{
		{Name: "A", Weight: -1, IsControl: true},
	})
	assert.ErrorIs(t, err, experiment.ErrInvalidArgument)

	_, err = eng.CreateExperiment(ctx, "x", "scope", []NewVariant{
		{Name: "A", Weight: 1, IsControl: true},
		{Name: "B", Weight: 1, IsControl: true},
	})
	assert.ErrorIs(t, err, experiment.ErrInvalidArgument)
}

func TestStart_RequiresControl(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	exp, err := eng.CreateExperiment(ctx, "no-control", "scope", []NewVariant{
		{Name: "A", Weight: 1},
		{Name: "B", Weight: 1},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, eng.Start(ctx, exp.ID), experiment.ErrInvalidConfig)
}

func TestStart_RequiresPositiveWeight(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	exp, err := eng.CreateExperiment(ctx, "zero-weight", "scope", []NewVariant{
		{Name: "A", Weight: 0, IsControl: true},
		{Name: "B", Weight: 0},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, eng.Start(ctx, exp.ID), experiment.ErrInvalidConfig)
}

func TestAssignVariant_Idempotent(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	exp := createRunning(t, eng)

	first, err := eng.AssignVariant(ctx, exp.ID, "conv-42")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := eng.AssignVariant(ctx, exp.ID, "conv-42")
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, first.VariantID, again.VariantID)
	}
}

func TestAssignVariant_NoDoubleEnrollmentUnderConcurrency(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	exp := createRunning(t, eng)

	const callers = 32
	results := make([]*experiment.Enrollment, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = eng.AssignVariant(ctx, exp.ID, "conv-42")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, results[0].ID, results[i].ID, "caller %d saw a different enrollment", i)
	}
}

func TestAssignVariant_Errors(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AssignVariant(ctx, "missing", "conv-1")
	assert.ErrorIs(t, err, experiment.ErrNotFound)

	exp, err := eng.CreateExperiment(ctx, "draft-only", "scope", twoArmVariants())
	require.NoError(t, err)

	_, err = eng.AssignVariant(ctx, exp.ID, "conv-1")
	assert.ErrorIs(t, err, experiment.ErrNotRunning)

	_, err = eng.AssignVariant(ctx, exp.ID, "")
	assert.ErrorIs(t, err, experiment.ErrInvalidArgument)
}

func TestAssignVariant_PausedStopsNewAssignments(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	exp := createRunning(t, eng)

	enrolled, err := eng.AssignVariant(ctx, exp.ID, "conv-1")
	require.NoError(t, err)

	require.NoError(t, eng.Pause(ctx, exp.ID))

	// New subjects are rejected
	_, err = eng.AssignVariant(ctx, exp.ID, "conv-2")
	assert.ErrorIs(t, err, experiment.ErrNotRunning)

	// Already-enrolled subjects still resolve to their variant
	again, err := eng.AssignVariant(ctx, exp.ID, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, enrolled.ID, again.ID)
}

func TestRecordEvent(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	exp := createRunning(t, eng)

	enrollment, err := eng.AssignVariant(ctx, exp.ID, "conv-1")
	require.NoError(t, err)

	require.NoError(t, eng.RecordEvent(ctx, enrollment.ID, experiment.EventImpression, time.Now(), nil))
	require.NoError(t, eng.RecordEvent(ctx, enrollment.ID, experiment.EventOpened, time.Now(), nil))

	value := 19.90
	require.NoError(t, eng.RecordEvent(ctx, enrollment.ID, experiment.EventConverted, time.Now(), &value))

	// Retries are safe no-ops
	retry := 999.0
	require.NoError(t, eng.RecordEvent(ctx, enrollment.ID, experiment.EventConverted, time.Now(), &retry))

	snap, err := eng.ComputeSnapshot(ctx, exp.ID)
	require.NoError(t, err)

	total := 0.0
	for _, v := range snap.Variants {
		total += v.Revenue
	}
	assert.Equal(t, 19.90, total, "duplicate conversion must not double-count revenue")
}

func TestRecordEvent_Errors(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	exp := createRunning(t, eng)

	enrollment, err := eng.AssignVariant(ctx, exp.ID, "conv-1")
	require.NoError(t, err)

	err = eng.RecordEvent(ctx, "missing", experiment.EventOpened, time.Now(), nil)
	assert.ErrorIs(t, err, experiment.ErrNotFound)

	negative := -1.0
	err = eng.RecordEvent(ctx, enrollment.ID, experiment.EventConverted, time.Now(), &negative)
	assert.ErrorIs(t, err, experiment.ErrInvalidArgument)

	err = eng.RecordEvent(ctx, enrollment.ID, experiment.EventKind("bounced"), time.Now(), nil)
	assert.ErrorIs(t, err, experiment.ErrInvalidArgument)
}

func TestComputeSnapshot_RenderableWhenSparse(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	exp := createRunning(t, eng)

	// No enrollments at all: snapshot still renders, nothing significant.
	snap, err := eng.ComputeSnapshot(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, snap.Variants, 2)
	for _, v := range snap.Variants {
		assert.Zero(t, v.SampleSize)
		assert.False(t, v.Significant)
	}
}

func TestComputeSnapshot_EndToEnd(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	exp := createRunning(t, eng)

	value := 10.0
	for i := 0; i < 200; i++ {
		enrollment, err := eng.AssignVariant(ctx, exp.ID, fmt.Sprintf("conv-%d", i))
		require.NoError(t, err)
		require.NoError(t, eng.RecordEvent(ctx, enrollment.ID, experiment.EventImpression, time.Now(), nil))
		if i%10 == 0 {
			require.NoError(t, eng.RecordEvent(ctx, enrollment.ID, experiment.EventConverted, time.Now(), &value))
		}
	}

	snap, err := eng.ComputeSnapshot(ctx, exp.ID)
	require.NoError(t, err)

	totalSample := 0
	totalConversions := 0
	for _, v := range snap.Variants {
		totalSample += v.SampleSize
		totalConversions += v.Conversions
		assert.Equal(t, v.SampleSize, v.Impressions)
	}
	assert.Equal(t, 200, totalSample)
	assert.Equal(t, 20, totalConversions)
}

func TestEvaluateRunning_AutoCompletesWinner(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	exp := createRunning(t, eng)

	// Feed a decisive split: treatment converts at 9%, control at 5%,
	// 1000 subjects per arm.
	perVariant := map[string]int{}
	converted := map[string]int{}
	target := map[bool]float64{true: 0.05, false: 0.09}
	value := 10.0

	for i := 0; i < 2000; i++ {
		enrollment, err := eng.AssignVariant(ctx, exp.ID, fmt.Sprintf("conv-%d", i))
		require.NoError(t, err)

		isControl := enrollment.VariantID == exp.Control().ID
		perVariant[enrollment.VariantID]++

		rate := target[isControl]
		if float64(converted[enrollment.VariantID]) < rate*float64(perVariant[enrollment.VariantID]) {
			converted[enrollment.VariantID]++
			require.NoError(t, eng.RecordEvent(ctx, enrollment.ID, experiment.EventConverted, time.Now(), &value))
		}
	}

	completed, err := eng.EvaluateRunning(ctx)
	require.NoError(t, err)
	require.Contains(t, completed, exp.ID)

	got, err := eng.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusCompleted, got.Status)
	require.NotNil(t, got.WinnerVariantID)
	assert.NotEqual(t, exp.Control().ID, *got.WinnerVariantID)
}

func TestGetEnrollmentBySubject(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	exp := createRunning(t, eng)

	enrollment, err := eng.AssignVariant(ctx, exp.ID, "conv-7")
	require.NoError(t, err)

	got, err := eng.GetEnrollmentBySubject(ctx, exp.ID, "conv-7")
	require.NoError(t, err)
	assert.Equal(t, enrollment.ID, got.ID)
}
