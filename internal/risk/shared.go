package risk

import (
	"math"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

// normalize clamps (x-lo)/(hi-lo) to [0,1].
func normalize(x, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return clamp((x-lo)/(hi-lo), 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// varianceWithMissing widens a base variance by the number of missing
// features a model relied on.
func varianceWithMissing(base float64, k int) float64 {
	return base * (1 + 0.5*float64(k))
}

// confidence maps a used/ideal feature-count ratio into [0.3, 1.0].
func confidence(used, ideal int) float64 {
	if ideal <= 0 {
		return 0.3
	}
	return clamp(float64(used)/float64(ideal), 0.3, 1.0)
}

// distributionFromMean implements the categorical-banding heuristic: the
// reported mean is the input mean, not the expectation of the categorical
// distribution below. The two are intentionally decoupled so the continuous
// score stays a faithful signal while the banding stays presentation-only.
func distributionFromMean(mean, variance float64) (pLow, pMedium, pHigh float64) {
	m := clamp(mean, 0, 1)
	const loBand, hiBand = 0.33, 0.67

	switch {
	case m < loBand:
		pLow = 0.7 + (loBand-m)*0.5
		pMedium = 0.25 - (loBand-m)*0.3
		pHigh = 0.05
	case m < hiBand:
		d := math.Abs(m - 0.5)
		pLow = 0.15 + (0.5-m)*0.4
		pMedium = 0.7 - d*0.6
		pHigh = 0.15 + (m-0.5)*0.4
	default:
		pLow = 0.05
		pMedium = 0.25 - (m-hiBand)*0.3
		pHigh = 0.7 + (m-hiBand)*0.5
	}

	sum := pLow + pMedium + pHigh
	if sum <= 0 {
		return 1.0 / 3, 1.0 / 3, 1.0 / 3
	}
	return pLow / sum, pMedium / sum, pHigh / sum
}

func buildDistribution(mean, variance float64) model.RiskDistribution {
	mean = clamp(mean, 0, 1)
	if variance < 0 {
		variance = 0
	}
	pLow, pMedium, pHigh := distributionFromMean(mean, variance)
	return model.RiskDistribution{
		PLow:     pLow,
		PMedium:  pMedium,
		PHigh:    pHigh,
		Mean:     mean,
		Variance: variance,
	}
}
