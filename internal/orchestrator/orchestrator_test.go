package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sottomarino/geolens-europa/internal/adapters"
	"github.com/sottomarino/geolens-europa/internal/adapters/factory"
	"github.com/sottomarino/geolens-europa/internal/adapters/precipitation"
	"github.com/sottomarino/geolens-europa/internal/cellcache"
	"github.com/sottomarino/geolens-europa/internal/core/model"
	"github.com/sottomarino/geolens-europa/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubAdapter reports a fixed slope/elsusClass for every sampled cell so
// tests stay independent of the real mock region heuristics.
type stubAdapter struct {
	name  string
	slope float64
	elsus int
}

func (s stubAdapter) Name() string { return s.name }
func (s stubAdapter) Healthy() bool { return true }
func (s stubAdapter) EnsureCoverage(context.Context, model.AreaRequest) error { return nil }
func (s stubAdapter) SampleFeatures(_ context.Context, _ model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	out := make(map[string]model.CellFeatures, len(cellIDs))
	for _, id := range cellIDs {
		slope, elsus := s.slope, s.elsus
		out[id] = model.CellFeatures{Slope: &slope, ElsusClass: &elsus}
	}
	return out, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, model.AreaRequest) {
	t.Helper()
	dir := t.TempDir()
	v2 := cellcache.NewV2Store(filepath.Join(dir, "h3_cache_v2.json"), testLogger(), nil, 0)
	v1 := cellcache.NewV1Store(filepath.Join(dir, "h3_cache.json"), testLogger())

	adapterSet := factory.Set{
		Elevation: stubAdapter{name: "stub-elevation"},
		Landslide: stubAdapter{name: "stub-elsus", slope: 35, elsus: 4},
		Seismic:   stubAdapter{name: "stub-pga"},
		LandCover: stubAdapter{name: "stub-clc"},
		Tag:       adapters.TagMockData,
	}

	o := New(adapterSet, v2, v1, DefaultChunkSize, risk.DefaultConfig(), testLogger())
	area := model.AreaRequest{
		BBox:       model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.15, MaxLat: 59.40},
		Resolution: 8,
	}
	return o, area
}

func TestGetRisksForArea_FirstCall_ComputesEveryCell(t *testing.T) {
	o, area := newTestOrchestrator(t)

	res, err := o.GetRisksForArea(context.Background(), area, nil, Query{})
	if err != nil {
		t.Fatalf("GetRisksForArea: %v", err)
	}
	if res.Metrics.TotalCells == 0 {
		t.Fatalf("expected non-empty bbox to enumerate cells")
	}
	if res.Metrics.CacheMisses != res.Metrics.TotalCells {
		t.Fatalf("expected a cold cache to miss every cell: %+v", res.Metrics)
	}
	if len(res.Cells) != res.Metrics.TotalCells {
		t.Fatalf("expected one result per cell, got %d for %d cells", len(res.Cells), res.Metrics.TotalCells)
	}
}

func TestGetRisksForArea_SecondCall_IsAllCacheHits(t *testing.T) {
	o, area := newTestOrchestrator(t)

	first, err := o.GetRisksForArea(context.Background(), area, nil, Query{})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	second, err := o.GetRisksForArea(context.Background(), area, nil, Query{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if second.Metrics.CacheHits != first.Metrics.TotalCells {
		t.Fatalf("expected second call's cacheHits (%d) to equal first call's totalCells (%d)",
			second.Metrics.CacheHits, first.Metrics.TotalCells)
	}
	if second.Metrics.CacheMisses != 0 {
		t.Fatalf("expected zero cache misses on second call, got %d", second.Metrics.CacheMisses)
	}
	if len(second.Cells) != len(first.Cells) {
		t.Fatalf("expected the same cell count on repeat query")
	}
}

func TestGetRisksForArea_OnProgress_ReceivesEveryCellAcrossChunks(t *testing.T) {
	dir := t.TempDir()
	v2 := cellcache.NewV2Store(filepath.Join(dir, "h3_cache_v2.json"), testLogger(), nil, 0)
	v1 := cellcache.NewV1Store(filepath.Join(dir, "h3_cache.json"), testLogger())
	adapterSet := factory.Set{
		Elevation: stubAdapter{name: "stub-elevation"},
		Landslide: stubAdapter{name: "stub-elsus", slope: 20, elsus: 2},
		Seismic:   stubAdapter{name: "stub-pga"},
		LandCover: stubAdapter{name: "stub-clc"},
		Tag:       adapters.TagMockData,
	}
	// Force many small chunks so onProgress fires more than once.
	o := New(adapterSet, v2, v1, 3, risk.DefaultConfig(), testLogger())
	area := model.AreaRequest{
		BBox:       model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.15, MaxLat: 59.40},
		Resolution: 8,
	}

	var seen int
	calls := 0
	_, err := o.GetRisksForArea(context.Background(), area, func(processed, total int, chunk []model.ScoredCellV2) {
		calls++
		seen += len(chunk)
		if processed > total {
			t.Fatalf("processed (%d) must never exceed total (%d)", processed, total)
		}
	}, Query{})
	if err != nil {
		t.Fatalf("GetRisksForArea: %v", err)
	}
	if calls < 2 {
		t.Fatalf("expected multiple progress callbacks with a small chunk size, got %d", calls)
	}
	if seen == 0 {
		t.Fatalf("expected onProgress to observe computed cells")
	}
}

func TestGetRisksForArea_StaleTimestamp_RecomputesInsteadOfServingCached(t *testing.T) {
	o, area := newTestOrchestrator(t)

	first, err := o.GetRisksForArea(context.Background(), area, nil, Query{})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Metrics.CacheMisses != first.Metrics.TotalCells {
		t.Fatalf("expected a cold cache to miss every cell: %+v", first.Metrics)
	}

	staleTs := first.Cells[0].Timestamp - 1
	second, err := o.GetRisksForArea(context.Background(), area, nil, Query{Timestamp: &staleTs})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.Metrics.CacheHits != 0 {
		t.Fatalf("expected a mismatched requested timestamp to miss every cell, got %d hits", second.Metrics.CacheHits)
	}
	if second.Metrics.CacheMisses != second.Metrics.TotalCells {
		t.Fatalf("expected a mismatched requested timestamp to miss every cell: %+v", second.Metrics)
	}

	exactTs := first.Cells[0].Timestamp
	third, err := o.GetRisksForArea(context.Background(), area, nil, Query{Timestamp: &exactTs})
	if err != nil {
		t.Fatalf("third call: %v", err)
	}
	if third.Metrics.CacheHits != third.Metrics.TotalCells {
		t.Fatalf("expected an exact requested timestamp to hit every cell: %+v", third.Metrics)
	}
}

// slopeOnlyAdapter reports Slope but never ElsusClass, so landslide always
// falls into its slope-inferred branch (the one that sets Explanation).
type slopeOnlyAdapter struct {
	name  string
	slope float64
}

func (s slopeOnlyAdapter) Name() string    { return s.name }
func (s slopeOnlyAdapter) Healthy() bool   { return true }
func (s slopeOnlyAdapter) EnsureCoverage(context.Context, model.AreaRequest) error { return nil }
func (s slopeOnlyAdapter) SampleFeatures(_ context.Context, _ model.AreaRequest, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	out := make(map[string]model.CellFeatures, len(cellIDs))
	for _, id := range cellIDs {
		slope := s.slope
		out[id] = model.CellFeatures{Slope: &slope}
	}
	return out, nil
}

// emptyAdapter contributes nothing, keeping the other three layer slots from
// accidentally supplying an ElsusClass value through the feature merge.
type emptyAdapter struct{ name string }

func (a emptyAdapter) Name() string    { return a.name }
func (a emptyAdapter) Healthy() bool   { return true }
func (a emptyAdapter) EnsureCoverage(context.Context, model.AreaRequest) error { return nil }
func (a emptyAdapter) SampleFeatures(_ context.Context, _ model.AreaRequest, _ model.Cells) (map[string]model.CellFeatures, error) {
	return map[string]model.CellFeatures{}, nil
}

func TestGetRisksForArea_ExplanationsOverride_ControlsPerRequestOutput(t *testing.T) {
	dir := t.TempDir()
	v2 := cellcache.NewV2Store(filepath.Join(dir, "h3_cache_v2.json"), testLogger(), nil, 0)
	v1 := cellcache.NewV1Store(filepath.Join(dir, "h3_cache.json"), testLogger())
	adapterSet := factory.Set{
		Elevation: emptyAdapter{name: "empty-elevation"},
		Landslide: slopeOnlyAdapter{name: "slope-only-elsus", slope: 35},
		Seismic:   emptyAdapter{name: "empty-pga"},
		LandCover: emptyAdapter{name: "empty-clc"},
		Tag:       adapters.TagMockData,
	}
	area := model.AreaRequest{
		BBox:       model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.00, MaxLat: 59.32},
		Resolution: 8,
	}

	off := New(adapterSet, v2, v1, DefaultChunkSize, risk.DefaultConfig(), testLogger())
	resOff, err := off.GetRisksForArea(context.Background(), area, nil, Query{})
	if err != nil {
		t.Fatalf("default-config call: %v", err)
	}
	for _, c := range resOff.Cells {
		if c.Risks.Landslide.Explanation != "" {
			t.Fatalf("expected no explanation with default config, got %q", c.Risks.Landslide.Explanation)
		}
	}

	dir2 := t.TempDir()
	v2b := cellcache.NewV2Store(filepath.Join(dir2, "h3_cache_v2.json"), testLogger(), nil, 0)
	v1b := cellcache.NewV1Store(filepath.Join(dir2, "h3_cache.json"), testLogger())
	on := New(adapterSet, v2b, v1b, DefaultChunkSize, risk.DefaultConfig(), testLogger())
	explain := true
	resOn, err := on.GetRisksForArea(context.Background(), area, nil, Query{GenerateExplanations: &explain})
	if err != nil {
		t.Fatalf("explanations-override call: %v", err)
	}
	found := false
	for _, c := range resOn.Cells {
		if c.Risks.Landslide.Explanation != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected at least one explanation when GenerateExplanations is overridden true")
	}
}

func TestGetRisksForArea_RealAdaptersWithLivePrecipitation_TagsNASAImerg(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"cells":  []map[string]any{},
			"source": "nasa-imerg-v6",
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	v2 := cellcache.NewV2Store(filepath.Join(dir, "h3_cache_v2.json"), testLogger(), nil, 0)
	v1 := cellcache.NewV1Store(filepath.Join(dir, "h3_cache.json"), testLogger())
	adapterSet := factory.Set{
		Elevation:     stubAdapter{name: "stub-elevation"},
		Landslide:     stubAdapter{name: "stub-elsus", slope: 35, elsus: 4},
		Seismic:       stubAdapter{name: "stub-pga"},
		LandCover:     stubAdapter{name: "stub-clc"},
		Precipitation: precipitation.New(srv.URL, time.Second, 0, 0),
		Tag:           adapters.TagRealData,
	}
	o := New(adapterSet, v2, v1, DefaultChunkSize, risk.DefaultConfig(), testLogger())
	area := model.AreaRequest{
		BBox:       model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.00, MaxLat: 59.32},
		Resolution: 8,
	}

	res, err := o.GetRisksForArea(context.Background(), area, nil, Query{})
	if err != nil {
		t.Fatalf("GetRisksForArea: %v", err)
	}
	if len(res.Cells) == 0 {
		t.Fatalf("expected at least one computed cell")
	}
	for _, c := range res.Cells {
		if c.Metadata.DataSource != string(adapters.TagNASAImerg) {
			t.Fatalf("cell %s DataSource = %q, want %q", c.H3Index, c.Metadata.DataSource, adapters.TagNASAImerg)
		}
	}
}

func TestGetRisksForArea_RealAdaptersWithPrecipitationDown_KeepsRealDataTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	v2 := cellcache.NewV2Store(filepath.Join(dir, "h3_cache_v2.json"), testLogger(), nil, 0)
	v1 := cellcache.NewV1Store(filepath.Join(dir, "h3_cache.json"), testLogger())
	adapterSet := factory.Set{
		Elevation:     stubAdapter{name: "stub-elevation"},
		Landslide:     stubAdapter{name: "stub-elsus", slope: 35, elsus: 4},
		Seismic:       stubAdapter{name: "stub-pga"},
		LandCover:     stubAdapter{name: "stub-clc"},
		Precipitation: precipitation.New(srv.URL, 200*time.Millisecond, 0, 0),
		Tag:           adapters.TagRealData,
	}
	o := New(adapterSet, v2, v1, DefaultChunkSize, risk.DefaultConfig(), testLogger())
	area := model.AreaRequest{
		BBox:       model.BBox{MinLon: 17.95, MinLat: 59.30, MaxLon: 18.00, MaxLat: 59.32},
		Resolution: 8,
	}

	res, err := o.GetRisksForArea(context.Background(), area, nil, Query{})
	if err != nil {
		t.Fatalf("GetRisksForArea: %v", err)
	}
	if len(res.Cells) == 0 {
		t.Fatalf("expected at least one computed cell")
	}
	for _, c := range res.Cells {
		if c.Metadata.DataSource != string(adapters.TagRealData) {
			t.Fatalf("cell %s DataSource = %q, want %q when precipitation is unreachable", c.H3Index, c.Metadata.DataSource, adapters.TagRealData)
		}
	}
}

func TestProjectV1_FlattensMeansAndPreservesIdentity(t *testing.T) {
	v2 := model.ScoredCellV2{
		H3Index:    "cell1",
		UpdatedAt:  42,
		SourceHash: "abc",
		Risks: model.Risks{
			Water:     model.RiskResult{Distribution: model.RiskDistribution{Mean: 0.1}},
			Landslide: model.RiskResult{Distribution: model.RiskDistribution{Mean: 0.2}},
			Seismic:   model.RiskResult{Distribution: model.RiskDistribution{Mean: 0.3}},
			Mineral:   model.RiskResult{Distribution: model.RiskDistribution{Mean: 0.4}},
		},
	}
	v1 := ProjectV1(v2)
	if v1.H3Index != "cell1" || v1.UpdatedAt != 42 || v1.SourceHash != "abc" {
		t.Fatalf("identity fields not preserved: %+v", v1)
	}
	if v1.Water != 0.1 || v1.Landslide != 0.2 || v1.Seismic != 0.3 || v1.Mineral != 0.4 {
		t.Fatalf("means not flattened correctly: %+v", v1)
	}
	if v1.Metadata.Lat != 0 || v1.Metadata.Lon != 0 {
		t.Fatalf("expected lat/lon to stay zero per v1 compatibility")
	}
}
