package h3mapper

import (
	"reflect"
	"sort"
	"testing"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

func TestCellsInBbox_HappyPath_SortedUnique(t *testing.T) {
	m := New()
	bb := model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.15, MaxLat: 59.40}

	cells, err := m.CellsInBbox(bb, 8)
	if err != nil {
		t.Fatalf("CellsInBbox err: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected non-empty cells for bbox")
	}
	if !sort.StringsAreSorted([]string(cells)) {
		t.Fatalf("cells must be sorted")
	}
	if hasDups(cells) {
		t.Fatalf("cells must be de-duplicated")
	}
}

func TestCellsInBbox_CentroidsAreInsideBbox(t *testing.T) {
	m := New()
	bb := model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.15, MaxLat: 59.40}

	cells, err := m.CellsInBbox(bb, 8)
	if err != nil {
		t.Fatalf("CellsInBbox err: %v", err)
	}
	for _, c := range cells {
		lat, lon, err := m.CellToCentroid(c)
		if err != nil {
			t.Fatalf("CellToCentroid(%s): %v", c, err)
		}
		if lat < bb.MinLat || lat > bb.MaxLat || lon < bb.MinLon || lon > bb.MaxLon {
			t.Fatalf("cell %s centroid (%v,%v) outside bbox %s", c, lat, lon, bb.String())
		}
	}
}

func TestCellsInBbox_Deterministic(t *testing.T) {
	m := New()
	bb := model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.15, MaxLat: 59.40}

	a, err := m.CellsInBbox(bb, 8)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	b, err := m.CellsInBbox(bb, 8)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestCellsInBbox_FinerResolutionYieldsMoreCells(t *testing.T) {
	m := New()
	bb := model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.15, MaxLat: 59.40}

	coarse, err := m.CellsInBbox(bb, 7)
	if err != nil {
		t.Fatalf("coarse: %v", err)
	}
	fine, err := m.CellsInBbox(bb, 9)
	if err != nil {
		t.Fatalf("fine: %v", err)
	}
	if len(fine) <= len(coarse) {
		t.Fatalf("expected finer resolution (%d cells) to yield more cells than coarser (%d)", len(fine), len(coarse))
	}
}

func TestCellsInBbox_InvalidResolution(t *testing.T) {
	m := New()
	bb := model.BBox{MinLon: 11, MinLat: 55, MaxLon: 12, MaxLat: 56}

	if _, err := m.CellsInBbox(bb, -1); err == nil {
		t.Fatalf("expected error for res=-1")
	}
	if _, err := m.CellsInBbox(bb, 16); err == nil {
		t.Fatalf("expected error for res=16")
	}
}

func TestCellsInBbox_InvalidBoundsOrdering(t *testing.T) {
	m := New()
	bb := model.BBox{MinLon: 12, MinLat: 56, MaxLon: 11, MaxLat: 55}
	if _, err := m.CellsInBbox(bb, 6); err == nil {
		t.Fatalf("expected error for minLon > maxLon / minLat > maxLat")
	}
}

func TestCellToResolution(t *testing.T) {
	m := New()
	bb := model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.15, MaxLat: 59.40}
	cells, err := m.CellsInBbox(bb, 8)
	if err != nil || len(cells) == 0 {
		t.Fatalf("setup: CellsInBbox err=%v len=%d", err, len(cells))
	}
	res, err := m.CellToResolution(cells[0])
	if err != nil {
		t.Fatalf("CellToResolution: %v", err)
	}
	if res != 8 {
		t.Fatalf("CellToResolution = %d, want 8", res)
	}
}

func TestCellToCentroid_InvalidCell(t *testing.T) {
	m := New()
	if _, _, err := m.CellToCentroid("not-a-cell"); err == nil {
		t.Fatalf("expected error for invalid cell id")
	}
}

func hasDups(s []string) bool {
	seen := map[string]struct{}{}
	for _, v := range s {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
