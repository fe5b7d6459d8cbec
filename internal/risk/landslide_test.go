package risk

import (
	"math"
	"reflect"
	"testing"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

func TestComputeLandslideScenarioA(t *testing.T) {
	f := model.CellFeatures{Slope: f64(35), ElsusClass: intp(4)}
	got, err := ComputeLandslide(f, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 0.6*(35.0/45) + 0.4*((4.0-1)/4)
	if math.Abs(got.Distribution.Mean-want) > 1e-9 {
		t.Fatalf("mean = %v, want %v", got.Distribution.Mean, want)
	}
	if got.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", got.Confidence)
	}
	d := got.Distribution
	if !(d.PHigh > d.PMedium && d.PMedium > d.PLow) {
		t.Fatalf("expected p_high > p_medium > p_low, got %+v", d)
	}
}

func TestComputeLandslideScenarioF(t *testing.T) {
	withElsus, err := ComputeLandslide(model.CellFeatures{Slope: f64(25), ElsusClass: intp(3)}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	withoutElsus, err := ComputeLandslide(model.CellFeatures{Slope: f64(25)}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if withoutElsus.Distribution.Variance <= withElsus.Distribution.Variance {
		t.Fatalf("variance without elsusClass (%v) should exceed with it (%v)",
			withoutElsus.Distribution.Variance, withElsus.Distribution.Variance)
	}
	if math.Abs(withElsus.Distribution.Variance-0.05) > 1e-12 {
		t.Fatalf("with-elsus variance = %v, want 0.05", withElsus.Distribution.Variance)
	}
	if math.Abs(withoutElsus.Distribution.Variance-0.075) > 1e-12 {
		t.Fatalf("without-elsus variance = %v, want 0.075", withoutElsus.Distribution.Variance)
	}
	if withoutElsus.Confidence > 0.8*withElsus.Confidence+1e-12 {
		t.Fatalf("without-elsus confidence %v should be <= 0.8x with-elsus confidence %v",
			withoutElsus.Confidence, withElsus.Confidence)
	}
}

func TestComputeLandslideMonotonicInSlope(t *testing.T) {
	prevMean := -1.0
	for _, slope := range []float64{0, 10, 20, 30, 40, 50, 60, 70, 80} {
		r, err := ComputeLandslide(model.CellFeatures{Slope: f64(slope), ElsusClass: intp(3)}, DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Distribution.Mean < prevMean-1e-12 {
			t.Fatalf("mean not non-decreasing in slope: slope=%v mean=%v < prev=%v", slope, r.Distribution.Mean, prevMean)
		}
		prevMean = r.Distribution.Mean
	}
}

func TestComputeLandslideMonotonicInElsusClass(t *testing.T) {
	prevMean := -1.0
	for class := 1; class <= 5; class++ {
		r, err := ComputeLandslide(model.CellFeatures{Slope: f64(20), ElsusClass: intp(class)}, DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Distribution.Mean < prevMean-1e-12 {
			t.Fatalf("mean not non-decreasing in elsusClass: class=%v mean=%v < prev=%v", class, r.Distribution.Mean, prevMean)
		}
		prevMean = r.Distribution.Mean
	}
}

func TestComputeLandslideFeaturesUsedMissingDisjoint(t *testing.T) {
	r, err := ComputeLandslide(model.CellFeatures{Slope: f64(20)}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[string]bool{}
	for _, name := range r.FeaturesUsed {
		seen[name] = true
	}
	for _, name := range r.FeaturesMissing {
		if seen[name] {
			t.Fatalf("feature %q present in both used and missing", name)
		}
	}
}

func TestComputeLandslideExplanationGatedByConfig(t *testing.T) {
	f := model.CellFeatures{Slope: f64(25)}

	off := DefaultConfig()
	off.GenerateExplanations = false
	r, err := ComputeLandslide(f, off)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Explanation != "" {
		t.Fatalf("explanation=%q want empty when GenerateExplanations is false", r.Explanation)
	}

	on := DefaultConfig()
	on.GenerateExplanations = true
	r, err = ComputeLandslide(f, on)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Explanation == "" {
		t.Fatalf("expected a non-empty explanation when GenerateExplanations is true")
	}
}

func TestComputeLandslideFailStrategyAbortsOnMissingSlope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MissingDataStrategy = StrategyFail
	_, err := ComputeLandslide(model.CellFeatures{}, cfg)
	if err == nil {
		t.Fatal("expected error when slope missing under fail strategy")
	}
}

func TestComputeLandslideDeterministic(t *testing.T) {
	f := model.CellFeatures{Slope: f64(18), ElsusClass: intp(2)}
	a, _ := ComputeLandslide(f, DefaultConfig())
	b, _ := ComputeLandslide(f, DefaultConfig())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("compute not deterministic: %+v vs %+v", a, b)
	}
}
