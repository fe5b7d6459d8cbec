package risk

import (
	"fmt"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

// ComputeAll runs the four hazard models against one cell's merged features
// and the given config. A per-model guard failure under the "fail" missing
// data strategy aborts the whole cell: the caller should drop the cell from
// its response rather than cache a partial record.
func ComputeAll(features model.CellFeatures, cfg Config) (model.Risks, error) {
	landslide, err := ComputeLandslide(features, cfg)
	if err != nil {
		return model.Risks{}, fmt.Errorf("landslide: %w", err)
	}
	seismic, err := ComputeSeismic(features, cfg)
	if err != nil {
		return model.Risks{}, fmt.Errorf("seismic: %w", err)
	}
	water, err := ComputeWater(features, cfg)
	if err != nil {
		return model.Risks{}, fmt.Errorf("water: %w", err)
	}
	mineral, err := ComputeMineral(features, cfg)
	if err != nil {
		return model.Risks{}, fmt.Errorf("mineral: %w", err)
	}

	return model.Risks{
		Landslide: landslide,
		Seismic:   seismic,
		Water:     water,
		Mineral:   mineral,
	}, nil
}
