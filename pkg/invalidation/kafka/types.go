package kafka

import (
	"errors"
	"time"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

// WireEvent is published to the dataset-invalidation topic whenever an
// upstream raster, ELSUS, PGA, or precipitation release republishes
// coverage. It carries either an explicit set of affected H3 cells (a
// targeted patch) or a bounding box (a bulk re-publish), never both.
type WireEvent struct {
	Dataset string      `json:"dataset"`
	H3Cells []string    `json:"h3_cells,omitempty"`
	BBox    *model.BBox `json:"bbox,omitempty"`
	Version uint64      `json:"version"`
	TS      time.Time   `json:"ts"`
	Op      string      `json:"op,omitempty"`
}

var (
	errVersionRequired  = errors.New("version must be > 0")
	errDatasetRequired  = errors.New("dataset is required")
	errExactlyOneTarget = errors.New("exactly one of h3_cells or bbox is required")
)

func (w WireEvent) Validate() error {
	if w.Version == 0 {
		return errVersionRequired
	}
	if w.Dataset == "" {
		return errDatasetRequired
	}
	if (len(w.H3Cells) > 0) == (w.BBox != nil) {
		return errExactlyOneTarget
	}
	return nil
}
