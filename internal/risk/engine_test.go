package risk

import (
	"testing"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

func TestComputeAllPopulatesAllFourHazards(t *testing.T) {
	f := model.CellFeatures{
		Slope: f64(22), ElsusClass: intp(3), HazardPGA: f64(0.15),
		ClcClass: intp(312), Rain24h: f64(40), Rain72h: f64(70),
	}
	risks, err := ComputeAll(f, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for name, r := range map[string]model.RiskResult{
		"landslide": risks.Landslide,
		"seismic":   risks.Seismic,
		"water":     risks.Water,
		"mineral":   risks.Mineral,
	} {
		if r.ModelVersion == "" {
			t.Fatalf("%s: empty modelVersion", name)
		}
		if r.Confidence < 0.3 || r.Confidence > 1.0 {
			t.Fatalf("%s: confidence %v out of [0.3,1.0]", name, r.Confidence)
		}
	}
}

func TestComputeAllAbortsWholeCellUnderFailStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MissingDataStrategy = StrategyFail
	_, err := ComputeAll(model.CellFeatures{}, cfg)
	if err == nil {
		t.Fatal("expected error: slope and hazardPGA both missing under fail strategy")
	}
}
