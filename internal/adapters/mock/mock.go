// Package mock implements deterministic-pseudorandom dataset adapters used
// to stand up the orchestrator pipeline without upstream credentials. These
// region heuristics are test fixtures, not models, and must never leak into
// the real adapter path.
package mock

import (
	"context"
	"math"

	h3mapper "github.com/sottomarino/geolens-europa/internal/mapper/h3"

	"github.com/sottomarino/geolens-europa/internal/adapters"
	"github.com/sottomarino/geolens-europa/internal/core/model"
)

// cellSeed derives a stable pseudo-random value in [0,1) from a cell
// centroid, so repeated calls for the same cell are byte-identical.
func cellSeed(lat, lon float64) float64 {
	x := math.Sin(lat*12.9898+lon*78.233) * 43758.5453
	return x - math.Floor(x)
}

// inAlps is a rough bounding box over the Alpine arc.
func inAlps(lat, lon float64) bool {
	return lat >= 45.0 && lat <= 47.8 && lon >= 5.5 && lon <= 14.5
}

// inItalyOrGreece is a rough bounding box covering both seismically active
// regions.
func inItalyOrGreece(lat, lon float64) bool {
	italy := lat >= 36.5 && lat <= 47.0 && lon >= 6.5 && lon <= 18.5
	greece := lat >= 34.5 && lat <= 41.8 && lon >= 19.0 && lon <= 28.2
	return italy || greece
}

type base struct {
	mapper *h3mapper.Mapper
}

func newBase() base { return base{mapper: h3mapper.New()} }

func (b base) centroid(cellID string) (lat, lon float64, err error) {
	return b.mapper.CellToCentroid(cellID)
}

// Healthy is always true: mock adapters have no upstream to fail against.
func (b base) Healthy() bool { return true }

// ElevationAdapter fabricates elevation and slope from the cell centroid.
type ElevationAdapter struct{ base }

func NewElevationAdapter() *ElevationAdapter { return &ElevationAdapter{newBase()} }

func (a *ElevationAdapter) Name() string { return "mock-elevation" }

func (a *ElevationAdapter) EnsureCoverage(ctx context.Context, area model.AreaRequest) error {
	return nil
}

func (a *ElevationAdapter) SampleFeatures(ctx context.Context, area model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	out := make(map[string]model.CellFeatures, len(cellIDs))
	for _, id := range cellIDs {
		lat, lon, err := a.centroid(id)
		if err != nil {
			continue
		}
		seed := cellSeed(lat, lon)

		elevation := seed * 2500 // [0, 2500) m baseline
		slope := seed * 30       // [0, 30) degrees baseline
		if inAlps(lat, lon) {
			elevation = 800 + seed*3200 // higher, steeper terrain
			slope = 15 + seed*55
		}
		if slope > 90 {
			slope = 90
		}
		out[id] = model.CellFeatures{
			Elevation: ptr(elevation),
			Slope:     ptr(slope),
			Extra:     map[string]float64{"source": 1}, // tags presence of mock data, never read by models
		}
	}
	return out, nil
}

// LandslideSusceptibilityAdapter fabricates an ELSUS class 1..5.
type LandslideSusceptibilityAdapter struct{ base }

func NewLandslideSusceptibilityAdapter() *LandslideSusceptibilityAdapter {
	return &LandslideSusceptibilityAdapter{newBase()}
}

func (a *LandslideSusceptibilityAdapter) Name() string { return "mock-elsus" }

func (a *LandslideSusceptibilityAdapter) EnsureCoverage(ctx context.Context, area model.AreaRequest) error {
	return nil
}

func (a *LandslideSusceptibilityAdapter) SampleFeatures(ctx context.Context, area model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	out := make(map[string]model.CellFeatures, len(cellIDs))
	for _, id := range cellIDs {
		lat, lon, err := a.centroid(id)
		if err != nil {
			continue
		}
		seed := cellSeed(lat, lon)
		class := int(seed*5) + 1
		if inAlps(lat, lon) && class < 4 {
			class = 4
		}
		if class > 5 {
			class = 5
		}
		out[id] = model.CellFeatures{ElsusClass: intPtr(class)}
	}
	return out, nil
}

// SeismicAdapter fabricates a peak ground acceleration in g.
type SeismicAdapter struct{ base }

func NewSeismicAdapter() *SeismicAdapter { return &SeismicAdapter{newBase()} }

func (a *SeismicAdapter) Name() string { return "mock-pga" }

func (a *SeismicAdapter) EnsureCoverage(ctx context.Context, area model.AreaRequest) error {
	return nil
}

func (a *SeismicAdapter) SampleFeatures(ctx context.Context, area model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	out := make(map[string]model.CellFeatures, len(cellIDs))
	for _, id := range cellIDs {
		lat, lon, err := a.centroid(id)
		if err != nil {
			continue
		}
		seed := cellSeed(lat, lon)
		pga := seed * 0.15
		if inItalyOrGreece(lat, lon) {
			pga = 0.15 + seed*0.35
		}
		if pga > 0.6 {
			pga = 0.6
		}
		out[id] = model.CellFeatures{HazardPGA: ptr(pga)}
	}
	return out, nil
}

// LandCoverAdapter fabricates a Corine Land Cover class code.
type LandCoverAdapter struct{ base }

func NewLandCoverAdapter() *LandCoverAdapter { return &LandCoverAdapter{newBase()} }

func (a *LandCoverAdapter) Name() string { return "mock-clc" }

func (a *LandCoverAdapter) EnsureCoverage(ctx context.Context, area model.AreaRequest) error {
	return nil
}

// clcBuckets lists representative class codes per coarse category, sampled
// uniformly by the cell seed.
var clcBuckets = []int{112, 211, 312, 321, 411, 511, 131}

func (a *LandCoverAdapter) SampleFeatures(ctx context.Context, area model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	out := make(map[string]model.CellFeatures, len(cellIDs))
	for _, id := range cellIDs {
		lat, lon, err := a.centroid(id)
		if err != nil {
			continue
		}
		seed := cellSeed(lat, lon)
		idx := int(seed * float64(len(clcBuckets)))
		if idx >= len(clcBuckets) {
			idx = len(clcBuckets) - 1
		}
		out[id] = model.CellFeatures{ClcClass: intPtr(clcBuckets[idx])}
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }
func intPtr(v int) *int      { return &v }

var (
	_ adapters.DatasetAdapter = (*ElevationAdapter)(nil)
	_ adapters.DatasetAdapter = (*LandslideSusceptibilityAdapter)(nil)
	_ adapters.DatasetAdapter = (*SeismicAdapter)(nil)
	_ adapters.DatasetAdapter = (*LandCoverAdapter)(nil)
)
