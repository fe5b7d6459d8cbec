package real

import (
	"context"
	"time"

	"github.com/sottomarino/geolens-europa/internal/adapters"
	"github.com/sottomarino/geolens-europa/internal/adapters/rasterstore"
	"github.com/sottomarino/geolens-europa/internal/core/model"
	h3mapper "github.com/sottomarino/geolens-europa/internal/mapper/h3"
)

const clcLRU = 50

// LandCoverAdapter samples a Corine Land Cover class code from S3-hosted
// GeoTIFF tiles.
type LandCoverAdapter struct {
	store  *rasterstore.Store
	mapper *h3mapper.Mapper
}

func NewLandCoverAdapter(ctx context.Context, bucket, region, rawDataDir string, maxRetries int, baseDelay time.Duration, accessKeyID, secretAccessKey string) (*LandCoverAdapter, error) {
	store, err := rasterstore.NewStore(ctx, "clc", bucket, region, rawDataDir, clcLRU, maxRetries, baseDelay, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}
	return &LandCoverAdapter{store: store, mapper: h3mapper.New()}, nil
}

func (a *LandCoverAdapter) Name() string { return "real-clc" }

func (a *LandCoverAdapter) Healthy() bool { return a.store.Healthy() }

func (a *LandCoverAdapter) EnsureCoverage(ctx context.Context, area model.AreaRequest) error {
	for _, key := range tilesOverlappingBbox(area.BBox) {
		if _, err := a.store.EnsureTile(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *LandCoverAdapter) SampleFeatures(ctx context.Context, area model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
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
		class := int(value + 0.5)
		out[id] = model.CellFeatures{ClcClass: &class}
	}
	return out, nil
}

var _ adapters.DatasetAdapter = (*LandCoverAdapter)(nil)
