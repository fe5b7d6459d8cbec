package real

import (
	"context"
	"time"

	"github.com/sottomarino/geolens-europa/internal/adapters"
	"github.com/sottomarino/geolens-europa/internal/adapters/rasterstore"
	"github.com/sottomarino/geolens-europa/internal/core/model"
	h3mapper "github.com/sottomarino/geolens-europa/internal/mapper/h3"
)

const pgaLRU = 50

// SeismicAdapter samples peak ground acceleration (g) from S3-hosted
// GeoTIFF hazard rasters.
type SeismicAdapter struct {
	store  *rasterstore.Store
	mapper *h3mapper.Mapper
}

func NewSeismicAdapter(ctx context.Context, bucket, region, rawDataDir string, maxRetries int, baseDelay time.Duration, accessKeyID, secretAccessKey string) (*SeismicAdapter, error) {
	store, err := rasterstore.NewStore(ctx, "pga", bucket, region, rawDataDir, pgaLRU, maxRetries, baseDelay, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}
	return &SeismicAdapter{store: store, mapper: h3mapper.New()}, nil
}

func (a *SeismicAdapter) Name() string { return "real-pga" }

func (a *SeismicAdapter) Healthy() bool { return a.store.Healthy() }

func (a *SeismicAdapter) EnsureCoverage(ctx context.Context, area model.AreaRequest) error {
	for _, key := range tilesOverlappingBbox(area.BBox) {
		if _, err := a.store.EnsureTile(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *SeismicAdapter) SampleFeatures(ctx context.Context, area model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	out := make(map[string]model.CellFeatures, len(cellIDs))
	for _, id := range cellIDs {
		lat, lon, err := a.mapper.CellToCentroid(id)
		if err != nil {
			continue
		}
		value, ok, err := a.store.SamplePoint(ctx, tileKeyForPoint(lat, lon), lat, lon)
		if err != nil || !ok {
			continue
		}
		out[id] = model.CellFeatures{HazardPGA: &value}
	}
	return out, nil
}

var _ adapters.DatasetAdapter = (*SeismicAdapter)(nil)
