// Package assign implements deterministic, weight-proportional variant
// selection. The draw for a subject is a pure function of the experiment
// seed, the experiment id, and the subject id, so re-running the selection
// for the same inputs always lands on the same variant.
package assign

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/splitpilot/splitpilot/internal/experiment"
)

// Draw maps (seed, experimentID, subjectID) to a uniform value in [0, 1).
func Draw(seed int64, experimentID, subjectID string) float64 {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", seed, experimentID, subjectID)))
	u := binary.BigEndian.Uint64(h[:8])
	// Top 53 bits over 2^53 gives an exactly representable value in [0, 1).
	return float64(u>>11) / (1 << 53)
}

// Pick selects the variant whose cumulative normalized-weight interval
// contains the subject's draw. Variants with zero weight are never picked.
// Returns ErrInvalidConfig when no positive weight exists.
func Pick(exp *experiment.Experiment, subjectID string) (*experiment.Variant, error) {
	total := exp.TotalWeight()
	if total <= 0 {
		return nil, experiment.ErrInvalidConfig
	}

	draw := Draw(exp.Seed, exp.ID, subjectID)

	cumulative := 0.0
	for i := range exp.Variants {
		v := &exp.Variants[i]
		if v.Weight <= 0 {
			continue
		}
		cumulative += v.Weight / total
		if draw < cumulative {
			return v, nil
		}
	}

	// Floating-point accumulation can leave the last interval a hair short
	// of 1; the draw belongs to the last eligible variant.
	for i := len(exp.Variants) - 1; i >= 0; i-- {
		if exp.Variants[i].Weight > 0 {
			return &exp.Variants[i], nil
		}
	}
	return nil, experiment.ErrInvalidConfig
}
