package risk

import (
	"fmt"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

const landslideModelVersion = "landslide-v0.2.1-enhanced-heuristic"

// slopeFactor maps a slope angle in degrees to [0,1.3].
// Above 45 degrees the factor gets a non-linear boost and saturates at 70.
func slopeFactor(slopeDeg float64) float64 {
	switch {
	case slopeDeg <= 0:
		return 0
	case slopeDeg <= 45:
		return slopeDeg / 45
	case slopeDeg <= 70:
		return clamp(1+0.3*(slopeDeg-45)/25, 0, 1.3)
	default:
		return 1.3
	}
}

// elsusFactorFromSlope infers an ELSUS-class-like factor from slope alone
// when the ELSUS layer itself was not sampled. Less trustworthy than the
// real class, hence the confidence penalty applied by the caller.
func elsusFactorFromSlope(slopeDeg float64) float64 {
	switch {
	case slopeDeg < 10:
		return 0.1
	case slopeDeg < 20:
		return 0.3
	case slopeDeg < 30:
		return 0.5
	case slopeDeg < 40:
		return 0.7
	default:
		return 0.85
	}
}

// ComputeLandslide scores landslide susceptibility from slope and the
// ELSUS susceptibility class, falling back to a slope-band inference of the
// ELSUS factor when the class itself is missing.
func ComputeLandslide(f model.CellFeatures, cfg Config) (model.RiskResult, error) {
	var used, missing []string

	if f.Slope == nil {
		if cfg.MissingDataStrategy == StrategyFail {
			return model.RiskResult{}, fmt.Errorf("landslide: slope required, missing under fail strategy")
		}
		return missingSlopeLandslide(cfg), nil
	}
	used = append(used, "slope")
	sf := slopeFactor(*f.Slope)

	var ef float64
	elsusInferred := false
	if f.ElsusClass != nil {
		used = append(used, "elsusClass")
		ef = clamp(float64(*f.ElsusClass-1)/4, 0, 1)
	} else {
		missing = append(missing, "elsusClass")
		ef = elsusFactorFromSlope(*f.Slope)
		elsusInferred = true
	}

	mean := clamp(0.6*sf+0.4*ef, 0, 1)
	variance := varianceWithMissing(0.05, len(missing))
	conf := confidence(len(used), 2)
	if elsusInferred {
		conf *= 0.8
	}
	conf = clamp(conf, 0.3, 1.0)

	result := model.RiskResult{
		Distribution:    buildDistribution(mean, variance),
		FeaturesUsed:    used,
		FeaturesMissing: missing,
		Confidence:      conf,
		ModelVersion:    landslideModelVersion,
		IsPlaceholder:   false,
	}
	if elsusInferred && cfg.GenerateExplanations {
		result.Explanation = "elsusClass not sampled; susceptibility inferred from slope band"
	}
	return result, nil
}

// missingSlopeLandslide handles the no-slope case per the active
// MissingDataStrategy: the model has nothing geometric to anchor on.
func missingSlopeLandslide(cfg Config) model.RiskResult {
	missing := []string{"slope", "elsusClass"}
	mean := 0.3
	if cfg.MissingDataStrategy == StrategyConservative {
		mean = 0.5
	}
	return model.RiskResult{
		Distribution:    buildDistribution(mean, varianceWithMissing(0.05, len(missing))),
		FeaturesUsed:    nil,
		FeaturesMissing: missing,
		Confidence:      0.3,
		ModelVersion:    landslideModelVersion,
		IsPlaceholder:   true,
		UseCaseWarning:  "slope unavailable; landslide score is a low-confidence placeholder",
	}
}
