package orchestrator

import (
	"log/slog"

	"github.com/sottomarino/geolens-europa/internal/adapters"
	"github.com/sottomarino/geolens-europa/internal/adapters/factory"
	"github.com/sottomarino/geolens-europa/internal/adapters/mock"
	"github.com/sottomarino/geolens-europa/internal/cellcache"
	"github.com/sottomarino/geolens-europa/internal/risk"
)

// NewLegacy builds the deprecated mock-only orchestrator: it always uses
// mock adapters, regardless of USE_REAL_DATA. It exists for callers that
// have not migrated onto the adapter factory. New integrations should use
// New with a factory.Build result instead.
//
// Deprecated: use New with factory.Build.
func NewLegacy(cache *cellcache.V2Store, legacy *cellcache.V1Store, logger *slog.Logger) *Orchestrator {
	mockSet := factory.Set{
		Elevation: mock.NewElevationAdapter(),
		Landslide: mock.NewLandslideSusceptibilityAdapter(),
		Seismic:   mock.NewSeismicAdapter(),
		LandCover: mock.NewLandCoverAdapter(),
		Tag:       adapters.TagMockData,
	}
	return New(mockSet, cache, legacy, DefaultChunkSize, risk.DefaultConfig(), logger)
}
