// Package model defines core domain types shared across the service.
package model

import "fmt"

// BBox is an axis-aligned bounding box in decimal degrees, WGS84.
type BBox struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// Cells is an ordered, duplicate-free set of H3 cell ids.
type Cells []string

// AreaRequest describes a bounding-box query at a target H3 resolution.
type AreaRequest struct {
	BBox       BBox
	Resolution int
}

func (a AreaRequest) Validate() error {
	if a.Resolution < 0 || a.Resolution > 15 {
		return fmt.Errorf("resolution %d out of range [0,15]", a.Resolution)
	}
	if a.BBox.MinLon > a.BBox.MaxLon {
		return fmt.Errorf("minLon %.6f must be <= maxLon %.6f", a.BBox.MinLon, a.BBox.MaxLon)
	}
	if a.BBox.MinLat > a.BBox.MaxLat {
		return fmt.Errorf("minLat %.6f must be <= maxLat %.6f", a.BBox.MinLat, a.BBox.MaxLat)
	}
	if a.BBox.MinLon < -180 || a.BBox.MaxLon > 180 {
		return fmt.Errorf("longitude out of [-180,180]")
	}
	if a.BBox.MinLat < -90 || a.BBox.MaxLat > 90 {
		return fmt.Errorf("latitude out of [-90,90]")
	}
	return nil
}

// CellFeatures is a sparse record of every signal the risk engine may read
// for one cell. A nil pointer field means "not sampled or not available".
type CellFeatures struct {
	Elevation *float64
	Slope     *float64

	ElsusClass *int
	HazardPGA  *float64
	ClcClass   *int

	Rain24h *float64
	Rain72h *float64

	Lithology           *float64
	Permeability        *float64
	SoilMoisture        *float64
	SnowWaterEquivalent *float64
	Aspect              *float64
	Curvature           *float64
	DemRoughness        *float64

	// Extra carries unrecognized field names through untouched; current
	// models never read it.
	Extra map[string]float64
}

// Merge folds src's fields into dst wherever dst's field is still unset.
// Later sources never overwrite an earlier non-missing value.
func (dst *CellFeatures) Merge(src CellFeatures) {
	if dst.Elevation == nil {
		dst.Elevation = src.Elevation
	}
	if dst.Slope == nil {
		dst.Slope = src.Slope
	}
	if dst.ElsusClass == nil {
		dst.ElsusClass = src.ElsusClass
	}
	if dst.HazardPGA == nil {
		dst.HazardPGA = src.HazardPGA
	}
	if dst.ClcClass == nil {
		dst.ClcClass = src.ClcClass
	}
	if dst.Rain24h == nil {
		dst.Rain24h = src.Rain24h
	}
	if dst.Rain72h == nil {
		dst.Rain72h = src.Rain72h
	}
	if dst.Lithology == nil {
		dst.Lithology = src.Lithology
	}
	if dst.Permeability == nil {
		dst.Permeability = src.Permeability
	}
	if dst.SoilMoisture == nil {
		dst.SoilMoisture = src.SoilMoisture
	}
	if dst.SnowWaterEquivalent == nil {
		dst.SnowWaterEquivalent = src.SnowWaterEquivalent
	}
	if dst.Aspect == nil {
		dst.Aspect = src.Aspect
	}
	if dst.Curvature == nil {
		dst.Curvature = src.Curvature
	}
	if dst.DemRoughness == nil {
		dst.DemRoughness = src.DemRoughness
	}
	if len(src.Extra) == 0 {
		return
	}
	if dst.Extra == nil {
		dst.Extra = make(map[string]float64, len(src.Extra))
	}
	for k, v := range src.Extra {
		if _, ok := dst.Extra[k]; !ok {
			dst.Extra[k] = v
		}
	}
}

// RiskDistribution is a categorical+continuous hazard score.
type RiskDistribution struct {
	PLow     float64 `json:"p_low"`
	PMedium  float64 `json:"p_medium"`
	PHigh    float64 `json:"p_high"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// RiskResult is the full output of one hazard model for one cell.
type RiskResult struct {
	Distribution    RiskDistribution `json:"distribution"`
	FeaturesUsed    []string         `json:"featuresUsed"`
	FeaturesMissing []string         `json:"featuresMissing"`
	Confidence      float64          `json:"confidence"`
	ModelVersion    string           `json:"modelVersion"`
	IsPlaceholder   bool             `json:"isPlaceholder"`
	Explanation     string           `json:"explanation,omitempty"`
	UseCaseWarning  string           `json:"useCaseWarning,omitempty"`
}

// Risks bundles the four hazard results computed for one cell.
type Risks struct {
	Landslide RiskResult `json:"landslide"`
	Seismic   RiskResult `json:"seismic"`
	Water     RiskResult `json:"water"`
	Mineral   RiskResult `json:"mineral"`
}

// CellMetadata carries provenance info attached to a scored cell.
type CellMetadata struct {
	DataSource    string `json:"dataSource"`
	CacheHit      bool   `json:"cacheHit"`
	ComputeTimeMs int64  `json:"computeTimeMs"`
	// Lat/Lon are preserved for v1 wire compatibility; never populated.
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ScoredCellV2 is the full-distribution cache/wire schema.
type ScoredCellV2 struct {
	H3Index    string       `json:"h3Index"`
	Timestamp  int64        `json:"timestamp"`
	Features   CellFeatures `json:"-"`
	Risks      Risks        `json:"risks"`
	Metadata   CellMetadata `json:"metadata"`
	UpdatedAt  int64        `json:"updatedAt"`
	SourceHash string       `json:"sourceHash"`
}

// ScoredCellV1 is the legacy flat-score schema.
type ScoredCellV1 struct {
	H3Index    string       `json:"h3Index"`
	UpdatedAt  int64        `json:"updatedAt"`
	SourceHash string       `json:"sourceHash"`
	Water      float64      `json:"water"`
	Landslide  float64      `json:"landslide"`
	Seismic    float64      `json:"seismic"`
	Mineral    float64      `json:"mineral"`
	Metadata   CellMetadata `json:"metadata"`
}

// CompactCell is the tile/optimized wire shape.
type CompactCell struct {
	I string   `json:"i"`
	W float64  `json:"w"`
	L float64  `json:"l"`
	S float64  `json:"s"`
	M float64  `json:"m"`
	E *float64 `json:"e,omitempty"`
	P *float64 `json:"p,omitempty"`
}

// Tile is an XYZ map tile coordinate.
type Tile struct {
	X, Y, Z int
}
