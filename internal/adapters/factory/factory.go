// Package factory selects and constructs the per-layer dataset adapters for
// one process, per the USE_REAL_DATA flag. Living outside package
// adapters avoids an import cycle: the mock and real implementations both
// import adapters for their interface assertions.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/sottomarino/geolens-europa/internal/adapters"
	"github.com/sottomarino/geolens-europa/internal/adapters/mock"
	"github.com/sottomarino/geolens-europa/internal/adapters/precipitation"
	"github.com/sottomarino/geolens-europa/internal/adapters/real"
)

// Config carries the settings Build needs to construct adapters. Only the
// fields relevant to the selected mode are read.
type Config struct {
	UseRealData bool
	RawDataDir  string

	AdapterMaxRetries int
	AdapterBaseDelay  time.Duration

	ElevationS3Bucket string
	ElevationS3Region string
	ElsusS3Bucket     string
	PGAS3Bucket       string
	LandCoverS3Bucket string

	AWSAccessKeyID     string
	AWSSecretAccessKey string

	NASAPrecipURL    string
	PrecipTimeout    time.Duration
	PrecipChunkSize  int
	PrecipMaxRetries int
}

// Set is the fully assembled dataset-adapter layer for one process.
type Set struct {
	Elevation     adapters.DatasetAdapter
	Landslide     adapters.DatasetAdapter
	Seismic       adapters.DatasetAdapter
	LandCover     adapters.DatasetAdapter
	Precipitation *precipitation.Client
	Tag           adapters.DataSourceTag
}

// All returns the four per-layer adapters in a stable order, for callers
// that fan out EnsureCoverage/SampleFeatures uniformly.
func (s Set) All() []adapters.DatasetAdapter {
	return []adapters.DatasetAdapter{s.Elevation, s.Landslide, s.Seismic, s.LandCover}
}

// Health reports each adapter's current health keyed by Name(), for a
// /healthz-style consumer. A real adapter that has hit an unrecoverable
// upstream auth failure reports false for the remainder of the process.
func (s Set) Health() map[string]bool {
	out := make(map[string]bool, len(s.All()))
	for _, a := range s.All() {
		out[a.Name()] = a.Healthy()
	}
	return out
}

// Build assembles the adapter set for the configured mode. Mock construction
// never fails; real construction can (AWS config load, raw-data dir create).
func Build(ctx context.Context, cfg Config) (Set, error) {
	precip := precipitation.New(cfg.NASAPrecipURL, cfg.PrecipTimeout, cfg.PrecipChunkSize, cfg.PrecipMaxRetries)

	if !cfg.UseRealData {
		return Set{
			Elevation:     mock.NewElevationAdapter(),
			Landslide:     mock.NewLandslideSusceptibilityAdapter(),
			Seismic:       mock.NewSeismicAdapter(),
			LandCover:     mock.NewLandCoverAdapter(),
			Precipitation: precip,
			Tag:           adapters.TagMockData,
		}, nil
	}

	elevation, err := real.NewElevationAdapter(ctx, cfg.ElevationS3Bucket, cfg.ElevationS3Region, cfg.RawDataDir, cfg.AdapterMaxRetries, cfg.AdapterBaseDelay, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		return Set{}, fmt.Errorf("factory: build elevation adapter: %w", err)
	}
	landslide, err := real.NewLandslideSusceptibilityAdapter(ctx, cfg.ElsusS3Bucket, cfg.ElevationS3Region, cfg.RawDataDir, cfg.AdapterMaxRetries, cfg.AdapterBaseDelay, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		return Set{}, fmt.Errorf("factory: build elsus adapter: %w", err)
	}
	seismic, err := real.NewSeismicAdapter(ctx, cfg.PGAS3Bucket, cfg.ElevationS3Region, cfg.RawDataDir, cfg.AdapterMaxRetries, cfg.AdapterBaseDelay, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		return Set{}, fmt.Errorf("factory: build seismic adapter: %w", err)
	}
	landCover, err := real.NewLandCoverAdapter(ctx, cfg.LandCoverS3Bucket, cfg.ElevationS3Region, cfg.RawDataDir, cfg.AdapterMaxRetries, cfg.AdapterBaseDelay, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		return Set{}, fmt.Errorf("factory: build land cover adapter: %w", err)
	}

	return Set{
		Elevation:     elevation,
		Landslide:     landslide,
		Seismic:       seismic,
		LandCover:     landCover,
		Precipitation: precip,
		Tag:           adapters.TagRealData,
	}, nil
}
