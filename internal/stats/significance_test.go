package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpilot/splitpilot/internal/experiment"
	"github.com/splitpilot/splitpilot/internal/store"
)

func TestCompare_BelowThreshold(t *testing.T) {
	// Control 5.0% (50/1000), variant 7.0% (70/1000): raw uplift is +40%
	// but z ≈ 1.88 stays under the 1.96 bar.
	cmp := Compare(Arm{1000, 70}, Arm{1000, 50}, Config{})

	assert.InDelta(t, 1.883, cmp.Z, 0.01)
	assert.False(t, cmp.Significant)
	assert.False(t, cmp.Undersampled)
	assert.Less(t, cmp.Confidence, 0.95)
	assert.Greater(t, cmp.Confidence, 0.90)
}

func TestCompare_Significant(t *testing.T) {
	// Control 5.0%, variant 9.0%: clearly significant at 95%.
	cmp := Compare(Arm{1000, 90}, Arm{1000, 50}, Config{})

	assert.Greater(t, cmp.Z, 1.96)
	assert.True(t, cmp.Significant)
	assert.GreaterOrEqual(t, cmp.Confidence, 0.95)
}

func TestCompare_SmallSampleGuard(t *testing.T) {
	// Both arms below the 30-per-arm floor: never significant, whatever z says.
	cmp := Compare(Arm{10, 5}, Arm{10, 2}, Config{})

	assert.True(t, cmp.Undersampled)
	assert.False(t, cmp.Significant)
}

func TestCompare_OneArmUnderFloor(t *testing.T) {
	cmp := Compare(Arm{1000, 90}, Arm{20, 1}, Config{})

	assert.True(t, cmp.Undersampled)
	assert.False(t, cmp.Significant)
}

func TestCompare_ZeroSampleSize(t *testing.T) {
	cmp := Compare(Arm{0, 0}, Arm{1000, 50}, Config{})

	assert.True(t, cmp.Undersampled)
	assert.False(t, cmp.Significant)
	assert.Zero(t, cmp.Z)
}

func TestCompare_NonComputableSE(t *testing.T) {
	// No conversions on either arm: pooled proportion 0, SE 0.
	cmp := Compare(Arm{100, 0}, Arm{100, 0}, Config{})

	assert.False(t, cmp.Significant)
	assert.Equal(t, 1.0, cmp.PValue)
}

func TestCompare_ConfigurableFloor(t *testing.T) {
	// Same data, stricter floor: verdict flips to not significant.
	loose := Compare(Arm{1000, 90}, Arm{1000, 50}, Config{MinSampleSize: 30})
	strict := Compare(Arm{1000, 90}, Arm{1000, 50}, Config{MinSampleSize: 2000})

	assert.True(t, loose.Significant)
	assert.False(t, strict.Significant)
}

func testExperiment() *experiment.Experiment {
	return &experiment.Experiment{
		ID:     "exp-1",
		Name:   "subject-line",
		Status: experiment.StatusRunning,
		Variants: []experiment.Variant{
			{ID: "control", Name: "Control", Weight: 1, IsControl: true},
			{ID: "treatment", Name: "Treatment", Weight: 1},
		},
	}
}

func TestBuildSnapshot_ControlRowOmitsComparisons(t *testing.T) {
	exp := testExperiment()
	sizes := map[string]int{"control": 1000, "treatment": 1000}
	events := []store.VariantEventStats{
		{VariantID: "control", Conversions: 50, Revenue: 500},
		{VariantID: "treatment", Conversions: 90, Revenue: 1200},
	}

	snap := BuildSnapshot(exp, sizes, events, Config{})
	require.Len(t, snap.Variants, 2)
	assert.Equal(t, "control", snap.ControlVariantID)

	var control, treatment *VariantStat
	for i := range snap.Variants {
		if snap.Variants[i].IsControl {
			control = &snap.Variants[i]
		} else {
			treatment = &snap.Variants[i]
		}
	}
	require.NotNil(t, control)
	require.NotNil(t, treatment)

	// The control's own row reports only raw metrics.
	assert.Nil(t, control.ConversionRateChange)
	assert.Nil(t, control.Confidence)
	assert.False(t, control.Significant)
	assert.Equal(t, 0.05, control.ConversionRate)

	require.NotNil(t, treatment.ConversionRateChange)
	assert.InDelta(t, 0.8, *treatment.ConversionRateChange, 1e-9) // (0.09-0.05)/0.05
	require.NotNil(t, treatment.Confidence)
	assert.True(t, treatment.Significant)
	assert.InDelta(t, 1.2, treatment.RevenuePerRecipient, 1e-9)
}

func TestBuildSnapshot_ZeroControlRateDelta(t *testing.T) {
	exp := testExperiment()
	sizes := map[string]int{"control": 500, "treatment": 500}
	events := []store.VariantEventStats{
		{VariantID: "control", Conversions: 0},
		{VariantID: "treatment", Conversions: 10},
	}

	snap := BuildSnapshot(exp, sizes, events, Config{})

	for _, v := range snap.Variants {
		if !v.IsControl {
			// Delta vs a zero control rate is undefined, not infinity.
			assert.Nil(t, v.ConversionRateChange)
			assert.NotNil(t, v.Confidence)
		}
	}
}

func TestBuildSnapshot_EmptyExperiment(t *testing.T) {
	exp := testExperiment()

	snap := BuildSnapshot(exp, map[string]int{}, nil, Config{})
	require.Len(t, snap.Variants, 2)

	for _, v := range snap.Variants {
		assert.Zero(t, v.SampleSize)
		assert.Zero(t, v.ConversionRate)
		assert.Zero(t, v.RevenuePerRecipient)
		assert.False(t, v.Significant)
	}
}

func TestBuildSnapshot_Idempotent(t *testing.T) {
	exp := testExperiment()
	sizes := map[string]int{"control": 1000, "treatment": 1000}
	events := []store.VariantEventStats{
		{VariantID: "control", Conversions: 50},
		{VariantID: "treatment", Conversions: 90},
	}

	a := BuildSnapshot(exp, sizes, events, Config{})
	b := BuildSnapshot(exp, sizes, events, Config{})

	require.Equal(t, len(a.Variants), len(b.Variants))
	for i := range a.Variants {
		av, bv := a.Variants[i], b.Variants[i]
		assert.Equal(t, av.ConversionRate, bv.ConversionRate)
		assert.Equal(t, av.Significant, bv.Significant)
	}
}

func TestPickWinner(t *testing.T) {
	exp := testExperiment()
	sizes := map[string]int{"control": 1000, "treatment": 1000}

	// Significant positive uplift: treatment wins.
	snap := BuildSnapshot(exp, sizes, []store.VariantEventStats{
		{VariantID: "control", Conversions: 50},
		{VariantID: "treatment", Conversions: 90},
	}, Config{})
	winner := snap.PickWinner()
	require.NotNil(t, winner)
	assert.Equal(t, "treatment", winner.VariantID)

	// Not significant: no winner.
	snap = BuildSnapshot(exp, sizes, []store.VariantEventStats{
		{VariantID: "control", Conversions: 50},
		{VariantID: "treatment", Conversions: 70},
	}, Config{})
	assert.Nil(t, snap.PickWinner())

	// Significant but negative uplift: no winner.
	snap = BuildSnapshot(exp, sizes, []store.VariantEventStats{
		{VariantID: "control", Conversions: 90},
		{VariantID: "treatment", Conversions: 50},
	}, Config{})
	assert.Nil(t, snap.PickWinner())
}
