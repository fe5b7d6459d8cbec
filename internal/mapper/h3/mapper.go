// Package h3mapper wraps uber/h3-go with the three operations the
// orchestrator needs: bbox -> cell ids, cell -> centroid, cell -> resolution.
package h3mapper

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellsInBbox enumerates, in deterministic sorted order with duplicates
// removed, every cell at res whose centroid lies within the inclusive bbox.
//
// h3.PolygonToCells returns every cell whose polygon intersects the loop,
// which over-covers the bbox at the edges; we polyfill the bbox loop itself
// (a safe superset) and then filter down to the centroid-in-bbox cells the
// edge-tie policy requires.
func (m *Mapper) CellsInBbox(bb model.BBox, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if bb.MinLon > bb.MaxLon || bb.MinLat > bb.MaxLat {
		return nil, fmt.Errorf("invalid bbox %s", bb.String())
	}

	outer := h3.GeoLoop{
		{Lat: bb.MinLat, Lng: bb.MinLon},
		{Lat: bb.MinLat, Lng: bb.MaxLon},
		{Lat: bb.MaxLat, Lng: bb.MaxLon},
		{Lat: bb.MaxLat, Lng: bb.MinLon},
	}
	poly := h3.GeoPolygon{GeoLoop: outer}

	candidates, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ll, err := c.LatLng()
		if err != nil {
			continue
		}
		if ll.Lat < bb.MinLat || ll.Lat > bb.MaxLat || ll.Lng < bb.MinLon || ll.Lng > bb.MaxLon {
			continue
		}
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// CellToCentroid returns the (lat, lon) centroid of a cell id.
func (m *Mapper) CellToCentroid(cellID string) (lat, lon float64, err error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cellID)); err != nil {
		return 0, 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, 0, fmt.Errorf("invalid h3 cell %q", cellID)
	}
	ll, err := c.LatLng()
	if err != nil {
		return 0, 0, fmt.Errorf("h3 centroid: %w", err)
	}
	return ll.Lat, ll.Lng, nil
}

// CellToResolution returns the resolution encoded in a cell id.
func (m *Mapper) CellToResolution(cellID string) (int, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cellID)); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cellID)
	}
	return c.Resolution(), nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
