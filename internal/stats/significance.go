// Package stats implements the inferential statistics behind experiment
// verdicts: two-proportion z-tests against the control arm, Wilson score
// intervals, and required-sample-size estimation.
package stats

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/splitpilot/splitpilot/internal/experiment"
	"github.com/splitpilot/splitpilot/internal/store"
)

const (
	// DefaultConfidenceLevel is the two-tailed confidence required for a
	// significant verdict (95%, |z| >= 1.96).
	DefaultConfidenceLevel = 0.95

	// DefaultMinSampleSize is the per-arm floor below which verdicts are
	// forced to not-significant, guarding against early-peeking false
	// positives.
	DefaultMinSampleSize = 30
)

// Config holds the thresholds for significance verdicts. The zero value
// gets the defaults.
type Config struct {
	MinSampleSize   int
	ConfidenceLevel float64
}

func (c Config) withDefaults() Config {
	if c.MinSampleSize <= 0 {
		c.MinSampleSize = DefaultMinSampleSize
	}
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		c.ConfidenceLevel = DefaultConfidenceLevel
	}
	return c
}

// Arm is one side of a two-proportion comparison.
type Arm struct {
	SampleSize  int
	Conversions int
}

func (a Arm) Rate() float64 {
	if a.SampleSize == 0 {
		return 0
	}
	return float64(a.Conversions) / float64(a.SampleSize)
}

// Comparison is the outcome of a two-proportion z-test of a variant against
// the control. Confidence is two-tailed (1 - p-value).
type Comparison struct {
	Z            float64
	PValue       float64
	Confidence   float64
	Significant  bool
	Undersampled bool
}

// Compare runs a pooled two-proportion z-test between a variant arm and the
// control arm. When either arm is below the sample floor, or the standard
// error is not computable, the verdict is forced to not-significant; the raw
// z and confidence are still reported where computable.
func Compare(variant, control Arm, cfg Config) Comparison {
	cfg = cfg.withDefaults()

	undersampled := variant.SampleSize < cfg.MinSampleSize || control.SampleSize < cfg.MinSampleSize

	if variant.SampleSize == 0 || control.SampleSize == 0 {
		return Comparison{Undersampled: true}
	}

	n1 := float64(variant.SampleSize)
	n2 := float64(control.SampleSize)
	pooled := float64(variant.Conversions+control.Conversions) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))

	if se == 0 {
		// All conversions or none across both arms; no evidence of a
		// difference either way.
		return Comparison{PValue: 1, Undersampled: undersampled}
	}

	z := (variant.Rate() - control.Rate()) / se
	pValue := 2 * distuv.UnitNormal.Survival(math.Abs(z))
	confidence := 1 - pValue

	return Comparison{
		Z:            z,
		PValue:       pValue,
		Confidence:   confidence,
		Significant:  !undersampled && confidence >= cfg.ConfidenceLevel,
		Undersampled: undersampled,
	}
}

// VariantStat is one row of an experiment snapshot. ConversionRateChange and
// Confidence are nil on the control's own row; ConversionRateChange is also
// nil when the control rate is zero (the relative delta is undefined, never
// infinity).
type VariantStat struct {
	VariantID            string   `json:"variant_id"`
	Name                 string   `json:"name"`
	IsControl            bool     `json:"is_control"`
	SampleSize           int      `json:"sample_size"`
	Impressions          int      `json:"impressions"`
	Opens                int      `json:"opens"`
	Clicks               int      `json:"clicks"`
	Conversions          int      `json:"conversions"`
	OpenRate             float64  `json:"open_rate"`
	ClickRate            float64  `json:"click_rate"`
	ConversionRate       float64  `json:"conversion_rate"`
	ConversionRateChange *float64 `json:"conversion_rate_change,omitempty"`
	Confidence           *float64 `json:"confidence,omitempty"`
	Significant          bool     `json:"significant"`
	CILower              float64  `json:"ci_lower"`
	CIUpper              float64  `json:"ci_upper"`
	Revenue              float64  `json:"revenue"`
	RevenuePerRecipient  float64  `json:"revenue_per_recipient"`
}

// Snapshot is the derived statistics view of one experiment. It is computed
// on demand from enrollments and events and holds no source-of-truth state.
type Snapshot struct {
	ExperimentID     string        `json:"experiment_id"`
	ControlVariantID string        `json:"control_variant_id"`
	GeneratedAt      time.Time     `json:"generated_at"`
	Variants         []VariantStat `json:"variants"`
}

// BuildSnapshot assembles per-variant statistics and significance verdicts
// against the control. sampleSizes is the enrollment count per variant;
// eventStats is the event-ledger rollup. The computation is pure: identical
// inputs yield identical output.
func BuildSnapshot(exp *experiment.Experiment, sampleSizes map[string]int, eventStats []store.VariantEventStats, cfg Config) *Snapshot {
	cfg = cfg.withDefaults()

	byVariant := make(map[string]store.VariantEventStats, len(eventStats))
	for _, es := range eventStats {
		byVariant[es.VariantID] = es
	}

	control := exp.Control()
	var controlArm Arm
	if control != nil {
		controlArm = Arm{
			SampleSize:  sampleSizes[control.ID],
			Conversions: byVariant[control.ID].Conversions,
		}
	}

	snap := &Snapshot{
		ExperimentID: exp.ID,
		GeneratedAt:  time.Now().UTC(),
		Variants:     make([]VariantStat, 0, len(exp.Variants)),
	}
	if control != nil {
		snap.ControlVariantID = control.ID
	}

	for _, v := range exp.Variants {
		es := byVariant[v.ID]
		n := sampleSizes[v.ID]

		row := VariantStat{
			VariantID:   v.ID,
			Name:        v.Name,
			IsControl:   v.IsControl,
			SampleSize:  n,
			Impressions: es.Impressions,
			Opens:       es.Opens,
			Clicks:      es.Clicks,
			Conversions: es.Conversions,
			Revenue:     es.Revenue,
		}

		if n > 0 {
			fn := float64(n)
			row.OpenRate = float64(es.Opens) / fn
			row.ClickRate = float64(es.Clicks) / fn
			row.ConversionRate = float64(es.Conversions) / fn
			row.RevenuePerRecipient = es.Revenue / fn
		}

		row.CILower, row.CIUpper = WilsonInterval(es.Conversions, n, cfg.ConfidenceLevel)

		// The control row reports only its raw metrics.
		if control != nil && !v.IsControl {
			cmp := Compare(Arm{SampleSize: n, Conversions: es.Conversions}, controlArm, cfg)
			confidence := cmp.Confidence
			row.Confidence = &confidence
			row.Significant = cmp.Significant

			if controlRate := controlArm.Rate(); controlRate > 0 {
				change := (row.ConversionRate - controlRate) / controlRate
				row.ConversionRateChange = &change
			}
		}

		snap.Variants = append(snap.Variants, row)
	}

	return snap
}

// PickWinner returns the non-control variant with the highest conversion
// rate among those with a significant, positive uplift, or nil when no
// variant qualifies yet.
func (s *Snapshot) PickWinner() *VariantStat {
	var winner *VariantStat
	for i := range s.Variants {
		v := &s.Variants[i]
		if v.IsControl || !v.Significant {
			continue
		}
		if v.ConversionRateChange == nil || *v.ConversionRateChange <= 0 {
			continue
		}
		if winner == nil || v.ConversionRate > winner.ConversionRate {
			winner = v
		}
	}
	return winner
}
