package precipitation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

func TestFetch_ParsesCellsAndSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/precip/h3" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"cells": []map[string]any{
				{"h3_index": "cell1", "rain24h_mm": 3.5, "rain72h_mm": 10.2},
			},
			"source": "nasa-imerg-v6",
			"t_ref":  1700000000,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 0, 0)
	out, err := c.Fetch(context.Background(), model.Cells{"cell1"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	f, ok := out["cell1"]
	if !ok {
		t.Fatalf("expected cell1 in output")
	}
	if f.Rain24h == nil || *f.Rain24h != 3.5 {
		t.Fatalf("rain24h = %v, want 3.5", f.Rain24h)
	}
	if f.Rain72h == nil || *f.Rain72h != 10.2 {
		t.Fatalf("rain72h = %v, want 10.2", f.Rain72h)
	}
}

func TestFetchWithFallback_ServiceDown_ReturnsZerosAndLiveFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 200*time.Millisecond, 0, 0)
	out, live, err := c.FetchWithFallback(context.Background(), model.Cells{"cell1", "cell2"})
	if err == nil {
		t.Fatal("expected an error from a service that always 500s")
	}
	if live {
		t.Fatal("expected live=false when the service never succeeded")
	}
	for _, id := range []string{"cell1", "cell2"} {
		f, ok := out[id]
		if !ok {
			t.Fatalf("expected fallback entry for %s", id)
		}
		if f.Rain24h == nil || *f.Rain24h != 0 || f.Rain72h == nil || *f.Rain72h != 0 {
			t.Fatalf("expected zero fallback values for %s, got %+v", id, f)
		}
	}
}

func TestFetchWithFallback_ServiceUp_ReturnsLiveTrue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"cells": []map[string]any{
				{"h3_index": "cell1", "rain24h_mm": 1.0, "rain72h_mm": 2.0},
			},
			"source": "nasa-imerg-v6",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 0, 0)
	out, live, err := c.FetchWithFallback(context.Background(), model.Cells{"cell1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !live {
		t.Fatal("expected live=true on a successful fetch")
	}
	if out["cell1"].Rain24h == nil || *out["cell1"].Rain24h != 1.0 {
		t.Fatalf("unexpected cell1: %+v", out["cell1"])
	}
}

func TestFetch_ClientErrorIsNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 0, 3)
	_, err := c.Fetch(context.Background(), model.Cells{"cell1"})
	if err == nil {
		t.Fatal("expected an error on a 400 response")
	}
	if attempts != 1 {
		t.Fatalf("expected a 4xx to short-circuit retries, got %d attempts", attempts)
	}
}
