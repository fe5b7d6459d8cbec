package risk

import (
	"math"
	"testing"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

func TestComputeSeismicScenarioB(t *testing.T) {
	forest, err := ComputeSeismic(model.CellFeatures{HazardPGA: f64(0.20), ClcClass: intp(312)}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantForest := math.Pow(0.20/0.5, 0.8)
	if math.Abs(forest.Distribution.Mean-wantForest) > 1e-9 {
		t.Fatalf("forest mean = %v, want %v", forest.Distribution.Mean, wantForest)
	}

	wetland, err := ComputeSeismic(model.CellFeatures{HazardPGA: f64(0.20), ClcClass: intp(411)}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantWetland := math.Pow((0.20*1.8)/0.5, 0.8)
	if math.Abs(wetland.Distribution.Mean-wantWetland) > 1e-9 {
		t.Fatalf("wetland mean = %v, want %v", wetland.Distribution.Mean, wantWetland)
	}

	if wetland.Distribution.Mean <= forest.Distribution.Mean {
		t.Fatalf("wetland amplified mean %v should exceed forest mean %v", wetland.Distribution.Mean, forest.Distribution.Mean)
	}
}

func TestComputeSeismicMonotonicInPGA(t *testing.T) {
	prevMean := -1.0
	for _, pga := range []float64{0, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5} {
		r, err := ComputeSeismic(model.CellFeatures{HazardPGA: f64(pga)}, DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Distribution.Mean < prevMean-1e-12 {
			t.Fatalf("mean not non-decreasing in PGA: pga=%v mean=%v < prev=%v", pga, r.Distribution.Mean, prevMean)
		}
		prevMean = r.Distribution.Mean
	}
}

func TestComputeSeismicClassification(t *testing.T) {
	cases := []struct {
		mean float64
		want SeismicClass
	}{
		{0.05, SeismicLow},
		{0.2, SeismicModerate},
		{0.4, SeismicHigh},
		{0.8, SeismicVeryHigh},
	}
	for _, c := range cases {
		if got := ClassifySeismic(c.mean); got != c.want {
			t.Fatalf("ClassifySeismic(%v) = %v, want %v", c.mean, got, c.want)
		}
	}
}

func TestComputeSeismicFailStrategyAbortsOnMissingPGA(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MissingDataStrategy = StrategyFail
	_, err := ComputeSeismic(model.CellFeatures{}, cfg)
	if err == nil {
		t.Fatal("expected error when hazardPGA missing under fail strategy")
	}
}

func TestComputeSeismicConservativeDefault(t *testing.T) {
	r, err := ComputeSeismic(model.CellFeatures{}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Confidence < 0.3 || r.Confidence > 1.0 {
		t.Fatalf("confidence %v out of [0.3,1.0]", r.Confidence)
	}
}
