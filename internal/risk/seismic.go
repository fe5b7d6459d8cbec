package risk

import (
	"fmt"
	"math"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

const seismicModelVersion = "seismic-v0.2.1-pga-site-enhanced"

// SeismicClass buckets a seismic mean score into a human label.
type SeismicClass string

const (
	SeismicLow      SeismicClass = "LOW"
	SeismicModerate SeismicClass = "MODERATE"
	SeismicHigh     SeismicClass = "HIGH"
	SeismicVeryHigh SeismicClass = "VERY_HIGH"
)

// ClassifySeismic maps a seismic risk mean to its discrete label.
func ClassifySeismic(mean float64) SeismicClass {
	switch {
	case mean < 0.1:
		return SeismicLow
	case mean < 0.3:
		return SeismicModerate
	case mean < 0.5:
		return SeismicHigh
	default:
		return SeismicVeryHigh
	}
}

// siteAmplification returns the land-cover-inferred amplification factor and
// whether it was inferred (as opposed to derived from a known lithology).
func siteAmplification(f model.CellFeatures) (amp float64, inferred bool) {
	if f.Lithology != nil {
		// Reserved hook: no amplification formula tied to lithology is
		// specified yet. Its presence simply disables the clcClass
		// inference rather than itself contributing a different value.
		return 1.0, false
	}
	if f.ClcClass == nil {
		return 1.0, true
	}
	c := *f.ClcClass
	switch {
	case (c >= 411 && c <= 423) || (c >= 511 && c <= 523):
		return 1.8, true
	case c >= 111 && c <= 142:
		return 1.3, true
	default:
		return 1.0, true
	}
}

// ComputeSeismic scores seismic hazard from PGA, amplified by a land-cover
// site class.
func ComputeSeismic(f model.CellFeatures, cfg Config) (model.RiskResult, error) {
	var used, missing []string

	var basePGA float64
	switch {
	case f.HazardPGA != nil:
		used = append(used, "hazardPGA")
		basePGA = *f.HazardPGA
	case cfg.MissingDataStrategy == StrategyFail:
		return model.RiskResult{}, fmt.Errorf("seismic: hazardPGA required, missing under fail strategy")
	case cfg.MissingDataStrategy == StrategyMean:
		missing = append(missing, "hazardPGA")
		basePGA = 0.1
	default: // conservative
		missing = append(missing, "hazardPGA")
		basePGA = 0.2
	}

	amp, inferred := siteAmplification(f)
	if f.ClcClass != nil {
		used = append(used, "clcClass")
	} else if f.Lithology == nil {
		missing = append(missing, "clcClass")
	}
	if f.Lithology != nil {
		used = append(used, "lithology")
	}

	amplified := basePGA * amp
	mean := clamp(math.Pow(normalize(amplified, 0, 0.5), 0.8), 0, 1)
	variance := varianceWithMissing(0.15, len(missing))
	conf := confidence(len(used), 2)
	if inferred {
		conf *= 0.7
	}
	conf = clamp(conf, 0.3, 1.0)

	return model.RiskResult{
		Distribution:    buildDistribution(mean, variance),
		FeaturesUsed:    used,
		FeaturesMissing: missing,
		Confidence:      conf,
		ModelVersion:    seismicModelVersion,
		IsPlaceholder:   false,
	}, nil
}
