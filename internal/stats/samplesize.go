package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// RequiredSampleSize estimates the per-arm sample size needed to detect an
// absolute uplift of mde over baselineRate with the given significance level
// (alpha, e.g. 0.05) and power (e.g. 0.80), using the two-proportion z-test
// formula. Returns 0 when the inputs cannot produce a detectable effect.
func RequiredSampleSize(baselineRate, mde, alpha, power float64) int {
	if mde <= 0 || baselineRate < 0 || baselineRate > 1 {
		return 0
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	if power <= 0 || power >= 1 {
		power = 0.80
	}

	p1 := baselineRate
	p2 := baselineRate + mde
	if p2 > 1 {
		p2 = 1
	}
	pBar := (p1 + p2) / 2

	zAlpha := distuv.UnitNormal.Quantile(1 - alpha/2)
	zBeta := distuv.UnitNormal.Quantile(power)

	numerator := zAlpha*math.Sqrt(2*pBar*(1-pBar)) + zBeta*math.Sqrt(p1*(1-p1)+p2*(1-p2))
	n := (numerator * numerator) / ((p2 - p1) * (p2 - p1))

	return int(math.Ceil(n))
}
