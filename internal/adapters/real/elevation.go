package real

import (
	"context"
	"math"
	"time"

	"github.com/sottomarino/geolens-europa/internal/adapters"
	"github.com/sottomarino/geolens-europa/internal/adapters/rasterstore"
	"github.com/sottomarino/geolens-europa/internal/core/model"
	h3mapper "github.com/sottomarino/geolens-europa/internal/mapper/h3"
)

const (
	arcSecondDeg  = 1.0 / 3600
	metersPerDeg  = 111320.0
	elevationLRU  = 100
)

// ElevationAdapter samples terrain height from S3-hosted GeoTIFF tiles and
// derives slope from a four-neighbour finite-difference gradient.
type ElevationAdapter struct {
	store  *rasterstore.Store
	mapper *h3mapper.Mapper
}

func NewElevationAdapter(ctx context.Context, bucket, region, rawDataDir string, maxRetries int, baseDelay time.Duration, accessKeyID, secretAccessKey string) (*ElevationAdapter, error) {
	store, err := rasterstore.NewStore(ctx, "elevation", bucket, region, rawDataDir, elevationLRU, maxRetries, baseDelay, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}
	return &ElevationAdapter{store: store, mapper: h3mapper.New()}, nil
}

func (a *ElevationAdapter) Name() string { return "real-elevation" }

func (a *ElevationAdapter) Healthy() bool { return a.store.Healthy() }

func (a *ElevationAdapter) EnsureCoverage(ctx context.Context, area model.AreaRequest) error {
	for _, key := range tilesOverlappingBbox(area.BBox) {
		if _, err := a.store.EnsureTile(ctx, key); err != nil {
			return err // caller logs and treats the whole call as best-effort
		}
	}
	return nil
}

func (a *ElevationAdapter) SampleFeatures(ctx context.Context, area model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	out := make(map[string]model.CellFeatures, len(cellIDs))
	for _, id := range cellIDs {
		lat, lon, err := a.mapper.CellToCentroid(id)
		if err != nil {
			continue
		}

		elevation, ok, err := a.sample(ctx, lat, lon)
		if err != nil || !ok {
			continue
		}

		features := model.CellFeatures{Elevation: &elevation}
		if slope, ok := a.slopeAt(ctx, lat, lon); ok {
			features.Slope = &slope
		}
		out[id] = features
	}
	return out, nil
}

func (a *ElevationAdapter) sample(ctx context.Context, lat, lon float64) (float64, bool, error) {
	return a.store.SamplePoint(ctx, tileKeyForPoint(lat, lon), lat, lon)
}

// slopeAt derives slope in degrees from a finite-difference gradient sampled
// roughly one arc-second (~30m) from the centroid in each cardinal direction.
func (a *ElevationAdapter) slopeAt(ctx context.Context, lat, lon float64) (float64, bool) {
	north, okN, errN := a.sample(ctx, lat+arcSecondDeg, lon)
	south, okS, errS := a.sample(ctx, lat-arcSecondDeg, lon)
	east, okE, errE := a.sample(ctx, lat, lon+arcSecondDeg)
	west, okW, errW := a.sample(ctx, lat, lon-arcSecondDeg)
	if errN != nil || errS != nil || errE != nil || errW != nil || !okN || !okS || !okE || !okW {
		return 0, false
	}

	metersPerDegLon := metersPerDeg * math.Cos(lat*math.Pi/180)
	dzdy := (north - south) / (2 * arcSecondDeg * metersPerDeg)
	dzdx := (east - west) / (2 * arcSecondDeg * metersPerDegLon)
	gradient := math.Hypot(dzdx, dzdy)
	return math.Atan(gradient) * 180 / math.Pi, true
}

var _ adapters.DatasetAdapter = (*ElevationAdapter)(nil)
