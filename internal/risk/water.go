package risk

import "github.com/sottomarino/geolens-europa/internal/core/model"

const (
	waterProductionModelVersion  = "water-v1.0.0-PRODUCTION-precipitation-integrated"
	waterPlaceholderModelVersion = "water-v0.2.1-PLACEHOLDER-terrain-proxy"
)

// landCoverCategory buckets a Corine Land Cover code into the coarse
// categories the water and infiltration tables key on.
type landCoverCategory string

const (
	lcUrban        landCoverCategory = "urban"
	lcAgricultural landCoverCategory = "agricultural"
	lcForest       landCoverCategory = "forest"
	lcGrassland    landCoverCategory = "grassland"
	lcBare         landCoverCategory = "bare"
	lcWetland      landCoverCategory = "wetland"
	lcWater        landCoverCategory = "water"
	lcUnknown      landCoverCategory = "unknown"
)

func clcCategory(clcClass *int) landCoverCategory {
	if clcClass == nil {
		return lcUnknown
	}
	c := *clcClass
	switch {
	case c >= 111 && c <= 142:
		return lcUrban
	case c >= 211 && c <= 244:
		return lcAgricultural
	case c >= 311 && c <= 313:
		return lcForest
	case c >= 321 && c <= 324:
		return lcGrassland
	case c >= 331 && c <= 335:
		return lcBare
	case c >= 411 && c <= 423:
		return lcWetland
	case c >= 511 && c <= 523:
		return lcWater
	default:
		return lcUnknown
	}
}

// runoffCoeffFromSlope interpolates a base runoff coefficient from slope
// across four bands: flat, gentle, moderate, steep.
func runoffCoeffFromSlope(slopeDeg float64) float64 {
	switch {
	case slopeDeg <= 2:
		return 0.1 + (slopeDeg/2)*0.1
	case slopeDeg <= 10:
		return 0.2 + ((slopeDeg-2)/8)*0.2
	case slopeDeg <= 20:
		return 0.4 + ((slopeDeg-10)/10)*0.3
	default:
		extreme := clamp((slopeDeg-20)/25, 0, 1)
		return 0.7 + extreme*0.2
	}
}

func runoffLandCoverAdjustment(cat landCoverCategory) float64 {
	switch cat {
	case lcUrban:
		return 0.2
	case lcForest:
		return -0.15
	case lcWetland:
		return -0.2
	default:
		return 0
	}
}

// infiltrationCapacityMMh returns the land-cover infiltration capacity in
// mm/h; categories without a documented value use the agricultural rate.
func infiltrationCapacityMMh(cat landCoverCategory) float64 {
	switch cat {
	case lcForest:
		return 50
	case lcGrassland:
		return 30
	case lcAgricultural:
		return 15
	case lcUrban:
		return 5
	case lcWetland:
		return 80
	case lcWater:
		return 1000
	case lcBare:
		return 10
	default:
		return 15
	}
}

func placeholderLandCoverAdjustment(cat landCoverCategory) float64 {
	switch cat {
	case lcForest:
		return -0.15
	case lcGrassland:
		return -0.05
	case lcUrban:
		return 0.2
	case lcWetland:
		return -0.3
	case lcWater:
		return -0.4
	default:
		return 0
	}
}

// ComputeWater dispatches to the production model when any precipitation
// field is present, else the terrain-proxy placeholder.
func ComputeWater(f model.CellFeatures, cfg Config) (model.RiskResult, error) {
	if f.Rain24h != nil || f.Rain72h != nil {
		return computeWaterProduction(f, cfg), nil
	}
	return computeWaterPlaceholder(f, cfg), nil
}

func computeWaterProduction(f model.CellFeatures, cfg Config) model.RiskResult {
	var used, missing []string

	slope := 10.0 // default when slope is missing: the top of the gentle band
	if f.Slope != nil {
		used = append(used, "slope")
		slope = *f.Slope
	} else {
		missing = append(missing, "slope")
	}

	cat := clcCategory(f.ClcClass)
	if f.ClcClass != nil {
		used = append(used, "clcClass")
	} else {
		missing = append(missing, "clcClass")
	}

	coeff := runoffCoeffFromSlope(slope) + runoffLandCoverAdjustment(cat)
	if cat == lcWater {
		coeff = 0
	}
	coeff = clamp(coeff, 0, 1)

	capacity := infiltrationCapacityMMh(cat)

	var rain24, rain72 float64
	if f.Rain24h != nil {
		used = append(used, "rain24h")
		rain24 = *f.Rain24h
	} else {
		missing = append(missing, "rain24h")
	}
	if f.Rain72h != nil {
		used = append(used, "rain72h")
		rain72 = *f.Rain72h
	} else {
		missing = append(missing, "rain72h")
	}

	stress24 := clamp((rain24*coeff)/(capacity*24), 0, 1)
	stress72 := clamp((rain72*coeff)/(capacity*72), 0, 1)
	combined := 0.6*stress24 + 0.4*stress72

	boost := 0.0
	switch {
	case rain24 > 100:
		boost = 0.2
	case rain24 > 60:
		boost = 0.1
	}

	mean := clamp(combined+boost, 0, 1)
	variance := varianceWithMissing(0.06, len(missing))
	conf := clamp(confidence(len(used), 4), 0.3, 0.85)

	return model.RiskResult{
		Distribution:    buildDistribution(mean, variance),
		FeaturesUsed:    used,
		FeaturesMissing: missing,
		Confidence:      conf,
		ModelVersion:    waterProductionModelVersion,
		IsPlaceholder:   false,
	}
}

func computeWaterPlaceholder(f model.CellFeatures, cfg Config) model.RiskResult {
	var used, missing []string

	slopeNorm := 0.0
	if f.Slope != nil {
		used = append(used, "slope")
		slopeNorm = normalize(*f.Slope, 0, 20)
	} else {
		missing = append(missing, "slope")
	}

	cat := clcCategory(f.ClcClass)
	if f.ClcClass != nil {
		used = append(used, "clcClass")
	} else {
		missing = append(missing, "clcClass")
	}

	mean := clamp(slopeNorm+placeholderLandCoverAdjustment(cat), 0, 1)
	variance := varianceWithMissing(0.12, len(missing))
	conf := clamp(confidence(len(used), 2)*0.3, 0.3, 1.0)

	return model.RiskResult{
		Distribution:    buildDistribution(mean, variance),
		FeaturesUsed:    used,
		FeaturesMissing: missing,
		Confidence:      conf,
		ModelVersion:    waterPlaceholderModelVersion,
		IsPlaceholder:   true,
		UseCaseWarning:  "terrain-proxy water stress estimate: no precipitation data was available for this cell",
	}
}
