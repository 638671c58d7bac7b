package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequiredSampleSize_KnownCase(t *testing.T) {
	// Textbook case: 50% baseline, 10-point MDE, alpha 0.05, power 0.80.
	n := RequiredSampleSize(0.50, 0.10, 0.05, 0.80)
	assert.InDelta(t, 388, n, 5)
}

func TestRequiredSampleSize_SmallerEffectNeedsMore(t *testing.T) {
	big := RequiredSampleSize(0.05, 0.02, 0.05, 0.80)
	small := RequiredSampleSize(0.05, 0.01, 0.05, 0.80)

	assert.Greater(t, small, big)
}

func TestRequiredSampleSize_HigherPowerNeedsMore(t *testing.T) {
	p80 := RequiredSampleSize(0.05, 0.02, 0.05, 0.80)
	p90 := RequiredSampleSize(0.05, 0.02, 0.05, 0.90)

	assert.Greater(t, p90, p80)
}

func TestRequiredSampleSize_InvalidInputs(t *testing.T) {
	assert.Zero(t, RequiredSampleSize(0.05, 0, 0.05, 0.80))
	assert.Zero(t, RequiredSampleSize(-0.1, 0.02, 0.05, 0.80))
	assert.Zero(t, RequiredSampleSize(1.5, 0.02, 0.05, 0.80))
}
