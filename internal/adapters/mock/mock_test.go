package mock

import (
	"context"
	"reflect"
	"testing"

	h3mapper "github.com/sottomarino/geolens-europa/internal/mapper/h3"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

func sampleCells(t *testing.T) model.Cells {
	t.Helper()
	m := h3mapper.New()
	bb := model.BBox{MinLon: 6.0, MinLat: 45.5, MaxLon: 14.0, MaxLat: 47.0} // Alpine arc
	cells, err := m.CellsInBbox(bb, 6)
	if err != nil {
		t.Fatalf("CellsInBbox: %v", err)
	}
	if len(cells) == 0 {
		t.Fatal("expected non-empty cells")
	}
	return cells
}

func TestElevationAdapterDeterministic(t *testing.T) {
	a := NewElevationAdapter()
	cells := sampleCells(t)
	area := model.AreaRequest{Resolution: 6}

	first, err := a.SampleFeatures(context.Background(), area, cells)
	if err != nil {
		t.Fatalf("first sample: %v", err)
	}
	second, err := a.SampleFeatures(context.Background(), area, cells)
	if err != nil {
		t.Fatalf("second sample: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("mock adapter output should be deterministic for the same input")
	}
	for id, f := range first {
		if f.Elevation == nil || f.Slope == nil {
			t.Fatalf("cell %s: expected elevation and slope set", id)
		}
		if *f.Slope < 0 || *f.Slope > 90 {
			t.Fatalf("cell %s: slope %v out of [0,90]", id, *f.Slope)
		}
	}
}

func TestSeismicAdapterRegionBias(t *testing.T) {
	a := NewSeismicAdapter()
	m := h3mapper.New()

	alpineCells, _ := m.CellsInBbox(model.BBox{MinLon: 7, MinLat: 47.1, MaxLon: 10, MaxLat: 47.8}, 6)
	italyCells, _ := m.CellsInBbox(model.BBox{MinLon: 12, MinLat: 41, MaxLon: 15, MaxLat: 43}, 6)

	alpine, err := a.SampleFeatures(context.Background(), model.AreaRequest{}, alpineCells)
	if err != nil {
		t.Fatalf("alpine sample: %v", err)
	}
	italy, err := a.SampleFeatures(context.Background(), model.AreaRequest{}, italyCells)
	if err != nil {
		t.Fatalf("italy sample: %v", err)
	}

	avgPGA := func(m map[string]model.CellFeatures) float64 {
		sum, n := 0.0, 0
		for _, f := range m {
			if f.HazardPGA != nil {
				sum += *f.HazardPGA
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}

	if avgPGA(italy) <= avgPGA(alpine) {
		t.Fatalf("expected Italy average PGA (%v) to exceed non-seismic Alpine average (%v)", avgPGA(italy), avgPGA(alpine))
	}
}

func TestLandCoverAdapterAssignsKnownClasses(t *testing.T) {
	a := NewLandCoverAdapter()
	cells := sampleCells(t)
	out, err := a.SampleFeatures(context.Background(), model.AreaRequest{}, cells)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	known := map[int]bool{}
	for _, c := range clcBuckets {
		known[c] = true
	}
	for id, f := range out {
		if f.ClcClass == nil || !known[*f.ClcClass] {
			t.Fatalf("cell %s: unexpected clcClass %v", id, f.ClcClass)
		}
	}
}
