package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func running(variants ...Variant) *Experiment {
	return &Experiment{ID: "exp-1", Status: StatusRunning, Variants: variants}
}

func TestControl(t *testing.T) {
	exp := running(
		Variant{ID: "a", Weight: 1},
		Variant{ID: "b", Weight: 1, IsControl: true},
	)
	assert.Equal(t, "b", exp.Control().ID)

	exp = running(Variant{ID: "a", Weight: 1})
	assert.Nil(t, exp.Control())
}

func TestTotalWeight(t *testing.T) {
	exp := running(
		Variant{ID: "a", Weight: 2.5},
		Variant{ID: "b", Weight: 1.5},
	)
	assert.Equal(t, 4.0, exp.TotalWeight())
}

func TestValidateForAssignment(t *testing.T) {
	valid := running(
		Variant{ID: "a", Weight: 1, IsControl: true},
		Variant{ID: "b", Weight: 1},
	)
	assert.NoError(t, valid.ValidateForAssignment())

	notRunning := &Experiment{Status: StatusDraft, Variants: valid.Variants}
	assert.ErrorIs(t, notRunning.ValidateForAssignment(), ErrNotRunning)

	paused := &Experiment{Status: StatusPaused, Variants: valid.Variants}
	assert.ErrorIs(t, paused.ValidateForAssignment(), ErrNotRunning)

	zeroWeight := running(
		Variant{ID: "a", Weight: 0, IsControl: true},
		Variant{ID: "b", Weight: 0},
	)
	assert.ErrorIs(t, zeroWeight.ValidateForAssignment(), ErrInvalidConfig)

	noControl := running(
		Variant{ID: "a", Weight: 1},
		Variant{ID: "b", Weight: 1},
	)
	assert.ErrorIs(t, noControl.ValidateForAssignment(), ErrInvalidConfig)

	twoControls := running(
		Variant{ID: "a", Weight: 1, IsControl: true},
		Variant{ID: "b", Weight: 1, IsControl: true},
	)
	assert.ErrorIs(t, twoControls.ValidateForAssignment(), ErrInvalidConfig)
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind(EventImpression))
	assert.True(t, ValidKind(EventOpened))
	assert.True(t, ValidKind(EventClicked))
	assert.True(t, ValidKind(EventConverted))
	assert.False(t, ValidKind(EventKind("bounced")))
}
