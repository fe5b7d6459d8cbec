package real

import (
	"context"
	"time"

	"github.com/sottomarino/geolens-europa/internal/adapters"
	"github.com/sottomarino/geolens-europa/internal/adapters/rasterstore"
	"github.com/sottomarino/geolens-europa/internal/core/model"
	h3mapper "github.com/sottomarino/geolens-europa/internal/mapper/h3"
)

const elsusLRU = 50

// LandslideSusceptibilityAdapter samples the European landslide
// susceptibility map (class 1..5) from S3-hosted GeoTIFF tiles.
type LandslideSusceptibilityAdapter struct {
	store  *rasterstore.Store
	mapper *h3mapper.Mapper
}

func NewLandslideSusceptibilityAdapter(ctx context.Context, bucket, region, rawDataDir string, maxRetries int, baseDelay time.Duration, accessKeyID, secretAccessKey string) (*LandslideSusceptibilityAdapter, error) {
	store, err := rasterstore.NewStore(ctx, "elsus", bucket, region, rawDataDir, elsusLRU, maxRetries, baseDelay, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}
	return &LandslideSusceptibilityAdapter{store: store, mapper: h3mapper.New()}, nil
}

func (a *LandslideSusceptibilityAdapter) Name() string { return "real-elsus" }

func (a *LandslideSusceptibilityAdapter) Healthy() bool { return a.store.Healthy() }

func (a *LandslideSusceptibilityAdapter) EnsureCoverage(ctx context.Context, area model.AreaRequest) error {
	for _, key := range tilesOverlappingBbox(area.BBox) {
		if _, err := a.store.EnsureTile(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *LandslideSusceptibilityAdapter) SampleFeatures(ctx context.Context, area model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
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
		class := clampClass(int(value+0.5), 1, 5)
		out[id] = model.CellFeatures{ElsusClass: &class}
	}
	return out, nil
}

func clampClass(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ adapters.DatasetAdapter = (*LandslideSusceptibilityAdapter)(nil)
