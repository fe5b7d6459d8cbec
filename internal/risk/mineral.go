package risk

import "github.com/sottomarino/geolens-europa/internal/core/model"

const mineralModelVersion = "mineral-v0.2.1-PLACEHOLDER-existing-site-detector"

const mineralExtractionClcClass = 131

// ComputeMineral detects known mineral-extraction land cover only; it makes
// no claim about undiscovered deposits.
func ComputeMineral(f model.CellFeatures, cfg Config) (model.RiskResult, error) {
	var used, missing []string

	mean := 0.1
	if f.ClcClass != nil {
		used = append(used, "clcClass")
		if *f.ClcClass == mineralExtractionClcClass {
			mean = 0.9
		}
	} else {
		missing = append(missing, "clcClass")
	}

	variance := varianceWithMissing(0.15, len(missing))
	conf := clamp(confidence(len(used), 1)*0.4, 0.3, 1.0)

	return model.RiskResult{
		Distribution:    buildDistribution(mean, variance),
		FeaturesUsed:    used,
		FeaturesMissing: missing,
		Confidence:      conf,
		ModelVersion:    mineralModelVersion,
		IsPlaceholder:   true,
		UseCaseWarning:  "existing-site detector only: does not predict undiscovered mineral deposits",
	}, nil
}
