// Package adapters defines the uniform dataset-adapter contract shared by
// the mock and real implementations and by everything that consumes them.
package adapters

import (
	"context"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

// DatasetAdapter is the contract every per-layer feature source implements.
// ensureCoverage is a best-effort prefetch/validation hook that must never
// fail the request; sampleFeatures returns a partial map where an absent
// cell id means "no data from this source", not failure.
type DatasetAdapter interface {
	Name() string
	EnsureCoverage(ctx context.Context, area model.AreaRequest) error
	SampleFeatures(ctx context.Context, area model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error)

	// Healthy reports whether the adapter can still serve data. Real adapters
	// latch false after an unrecoverable upstream auth failure; mock adapters
	// are always healthy.
	Healthy() bool
}

// DataSourceTag is attached to adapter output so callers can tell mock from
// real data without inspecting individual fields.
type DataSourceTag string

const (
	TagMockData  DataSourceTag = "v1-mock-data"
	TagRealData  DataSourceTag = "v2-real-data"
	TagNASAImerg DataSourceTag = "v3-nasa-imerg"
)
