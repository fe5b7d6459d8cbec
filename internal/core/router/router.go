// Package router implements the HTTP surface over the risk orchestrator,
// the tile cache, and both cell-result caches: bbox area queries, XYZ tile
// queries in flat and compact shapes, single-cell lookup, the
// full-distribution v2 area endpoint (with an ndjson streaming variant),
// and tile-cache introspection/clear.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sottomarino/geolens-europa/internal/cache/keys"
	"github.com/sottomarino/geolens-europa/internal/cellcache"
	"github.com/sottomarino/geolens-europa/internal/core/model"
	"github.com/sottomarino/geolens-europa/internal/core/observability"
	h3mapper "github.com/sottomarino/geolens-europa/internal/mapper/h3"
	"github.com/sottomarino/geolens-europa/internal/orchestrator"
	"github.com/sottomarino/geolens-europa/internal/tilecache"
)

const defaultResolution = 6

// RiskOrchestrator is the subset of *orchestrator.Orchestrator the HTTP
// layer depends on, narrowed so handlers are testable against a stub.
type RiskOrchestrator interface {
	GetRisksForArea(ctx context.Context, area model.AreaRequest, onProgress orchestrator.ProgressFunc, query orchestrator.Query) (orchestrator.Result, error)
}

// Handler wires the orchestrator and both caches to the HTTP routes.
type Handler struct {
	logger *slog.Logger
	orch   RiskOrchestrator
	v1     *cellcache.V1Store
	v2     *cellcache.V2Store
	tiles  *tilecache.Cache
	mapper *h3mapper.Mapper
}

func New(logger *slog.Logger, orch RiskOrchestrator, v1 *cellcache.V1Store, v2 *cellcache.V2Store, tiles *tilecache.Cache) *Handler {
	return &Handler{
		logger: logger,
		orch:   orch,
		v1:     v1,
		v2:     v2,
		tiles:  tiles,
		mapper: h3mapper.New(),
	}
}

// Mount registers every route onto r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/h3/area", h.withMetrics("/h3/area", h.handleArea))
	r.Get("/h3/tile", h.withMetrics("/h3/tile", h.handleTile))
	r.Get("/h3/tile/optimized", h.withMetrics("/h3/tile/optimized", h.handleTileOptimized))
	r.Get("/cell/{h3Index}", h.withMetrics("/cell/{h3Index}", h.handleCell))
	r.Get("/v2/h3/area", h.withMetrics("/v2/h3/area", h.handleAreaV2))
	r.Get("/h3/tile/cache/stats", h.withMetrics("/h3/tile/cache/stats", h.handleTileCacheStats))
	r.Delete("/h3/tile/cache", h.withMetrics("/h3/tile/cache", h.handleTileCacheClear))
}

// withMetrics wraps a route handler with the status-aware request timer
// shared by every endpoint.
func (h *Handler) withMetrics(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseAreaRequest reads the bbox+res query contract shared by /h3/area and
// /v2/h3/area. Missing bbox fields are a validation error.
func ParseAreaRequest(r *http.Request, defaultRes int) (model.AreaRequest, error) {
	q := r.URL.Query()

	minLon, err := parseRequiredFloat(q, "minLon")
	if err != nil {
		return model.AreaRequest{}, err
	}
	minLat, err := parseRequiredFloat(q, "minLat")
	if err != nil {
		return model.AreaRequest{}, err
	}
	maxLon, err := parseRequiredFloat(q, "maxLon")
	if err != nil {
		return model.AreaRequest{}, err
	}
	maxLat, err := parseRequiredFloat(q, "maxLat")
	if err != nil {
		return model.AreaRequest{}, err
	}

	res := defaultRes
	if raw := strings.TrimSpace(q.Get("res")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return model.AreaRequest{}, fmt.Errorf("res: %w", err)
		}
		res = n
	}

	area := model.AreaRequest{
		BBox:       model.BBox{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat},
		Resolution: res,
	}
	if err := area.Validate(); err != nil {
		return model.AreaRequest{}, err
	}
	return area, nil
}

func parseRequiredFloat(q map[string][]string, name string) (float64, error) {
	vals, ok := q[name]
	if !ok || strings.TrimSpace(vals[0]) == "" {
		return 0, fmt.Errorf("missing required parameter: %s", name)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// ParseTile reads the x,y,z query contract shared by the tile endpoints.
func ParseTile(r *http.Request) (model.Tile, error) {
	q := r.URL.Query()
	x, err := parseRequiredInt(q, "x")
	if err != nil {
		return model.Tile{}, err
	}
	y, err := parseRequiredInt(q, "y")
	if err != nil {
		return model.Tile{}, err
	}
	z, err := parseRequiredInt(q, "z")
	if err != nil {
		return model.Tile{}, err
	}
	if z < 0 || z > 30 {
		return model.Tile{}, fmt.Errorf("z out of range: %d", z)
	}
	return model.Tile{X: x, Y: y, Z: z}, nil
}

func parseRequiredInt(q map[string][]string, name string) (int, error) {
	vals, ok := q[name]
	if !ok || strings.TrimSpace(vals[0]) == "" {
		return 0, fmt.Errorf("missing required parameter: %s", name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(vals[0]))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// TileToBBox converts an XYZ tile coordinate into its WGS84 bounding box
// under the standard Web Mercator tile scheme.
func TileToBBox(t model.Tile) model.BBox {
	n := math.Exp2(float64(t.Z))
	lonAt := func(x float64) float64 { return x/n*360 - 180 }
	latAt := func(y float64) float64 {
		rad := math.Atan(math.Sinh(math.Pi - 2*math.Pi*y/n))
		return rad * 180 / math.Pi
	}
	minLon := lonAt(float64(t.X))
	maxLon := lonAt(float64(t.X + 1))
	// y increases southward in the XYZ scheme, so the smaller y is the
	// northern (max-lat) edge.
	maxLat := latAt(float64(t.Y))
	minLat := latAt(float64(t.Y + 1))
	return model.BBox{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}
}

// ResolutionForZoom maps a tile zoom level to the H3 resolution coarse
// enough to cover it without excessive cell counts.
func ResolutionForZoom(z int) int {
	switch {
	case z < 5:
		return 2
	case z < 7:
		return 3
	case z < 9:
		return 4
	case z < 11:
		return 5
	default:
		return 6
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(logger *slog.Logger, w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleArea serves GET /h3/area: a bbox query returning the legacy flat
// v1 record shape, computed via the canonical orchestrator and projected
// down for the response.
func (h *Handler) handleArea(w http.ResponseWriter, r *http.Request) {
	area, err := ParseAreaRequest(r, defaultResolution)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err)
		return
	}

	result, err := h.orch.GetRisksForArea(r.Context(), area, nil, orchestrator.Query{})
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, err)
		return
	}

	cells := make([]model.ScoredCellV1, 0, len(result.Cells))
	for _, c := range result.Cells {
		cells = append(cells, orchestrator.ProjectV1(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"area":  area.BBox.String(),
		"cells": cells,
	})
}

// areaForTile resolves an XYZ tile into the AreaRequest the orchestrator
// expects, shared by both tile endpoints.
func (h *Handler) areaForTile(r *http.Request) (model.Tile, model.AreaRequest, error) {
	tile, err := ParseTile(r)
	if err != nil {
		return model.Tile{}, model.AreaRequest{}, err
	}
	area := model.AreaRequest{BBox: TileToBBox(tile), Resolution: ResolutionForZoom(tile.Z)}
	if err := area.Validate(); err != nil {
		return model.Tile{}, model.AreaRequest{}, err
	}
	return tile, area, nil
}

// handleTile serves GET /h3/tile: an XYZ tile returning the flat v1 record
// shape, cached wholesale in the tile cache.
func (h *Handler) handleTile(w http.ResponseWriter, r *http.Request) {
	tile, area, err := h.areaForTile(r)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err)
		return
	}

	cacheKey := keys.TileKey(tile.Z, tile.X, tile.Y)
	if h.tiles != nil {
		if cached, ok := h.tiles.Get(cacheKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	result, err := h.orch.GetRisksForArea(r.Context(), area, nil, orchestrator.Query{})
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, err)
		return
	}

	cells := make([]model.ScoredCellV1, 0, len(result.Cells))
	for _, c := range result.Cells {
		cells = append(cells, orchestrator.ProjectV1(c))
	}

	body, err := json.Marshal(cells)
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, err)
		return
	}
	if h.tiles != nil {
		h.tiles.Set(cacheKey, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleTileOptimized serves GET /h3/tile/optimized: the same tile query,
// compacted to the {i,w,l,s,m,e?,p?} wire shape.
func (h *Handler) handleTileOptimized(w http.ResponseWriter, r *http.Request) {
	tile, area, err := h.areaForTile(r)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err)
		return
	}

	cacheKey := keys.OptimizedTileKey(tile.Z, tile.X, tile.Y)
	if h.tiles != nil {
		if cached, ok := h.tiles.Get(cacheKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	result, err := h.orch.GetRisksForArea(r.Context(), area, nil, orchestrator.Query{})
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, err)
		return
	}

	compact := make([]model.CompactCell, 0, len(result.Cells))
	for _, c := range result.Cells {
		compact = append(compact, toCompactCell(c))
	}

	body, err := json.Marshal(compact)
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, err)
		return
	}
	if h.tiles != nil {
		h.tiles.Set(cacheKey, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func toCompactCell(c model.ScoredCellV2) model.CompactCell {
	cc := model.CompactCell{
		I: c.H3Index,
		W: c.Risks.Water.Distribution.Mean,
		L: c.Risks.Landslide.Distribution.Mean,
		S: c.Risks.Seismic.Distribution.Mean,
		M: c.Risks.Mineral.Distribution.Mean,
	}
	if c.Features.Elevation != nil {
		cc.E = c.Features.Elevation
	}
	if c.Features.Rain24h != nil {
		cc.P = c.Features.Rain24h
	}
	return cc
}

// handleCell serves GET /cell/:h3Index: a single-cell lookup against the
// v1 cache, falling back to computing its one-cell area when absent.
func (h *Handler) handleCell(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "h3Index"))
	if id == "" {
		writeError(h.logger, w, http.StatusBadRequest, errors.New("missing h3Index path parameter"))
		return
	}

	if h.v1 != nil {
		if rec, ok := h.v1.Get(id); ok {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}

	res, err := h.mapper.CellToResolution(id)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, fmt.Errorf("invalid h3Index: %w", err))
		return
	}
	lat, lon, err := h.mapper.CellToCentroid(id)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, fmt.Errorf("invalid h3Index: %w", err))
		return
	}
	area := model.AreaRequest{
		BBox:       model.BBox{MinLon: lon, MinLat: lat, MaxLon: lon, MaxLat: lat},
		Resolution: res,
	}
	result, err := h.orch.GetRisksForArea(r.Context(), area, nil, orchestrator.Query{})
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, err)
		return
	}
	for _, c := range result.Cells {
		if c.H3Index == id {
			writeJSON(w, http.StatusOK, orchestrator.ProjectV1(c))
			return
		}
	}
	writeError(h.logger, w, http.StatusNotFound, fmt.Errorf("cell not found: %s", id))
}

// handleAreaV2 serves GET /v2/h3/area: the full-distribution bbox query,
// either as a single JSON object or, with stream=true, as newline-delimited
// progress/data/complete messages.
func (h *Handler) handleAreaV2(w http.ResponseWriter, r *http.Request) {
	area, err := ParseAreaRequest(r, defaultResolution)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err)
		return
	}
	query, err := parseV2Query(r)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err)
		return
	}

	stream := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("stream")), "true")
	if !stream {
		result, err := h.orch.GetRisksForArea(r.Context(), area, nil, query)
		if err != nil {
			writeError(h.logger, w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"cells":   result.Cells,
			"metrics": result.Metrics,
		})
		return
	}

	h.streamArea(w, r, area, query)
}

// parseV2Query reads /v2/h3/area's timestamp and explanations parameters.
// timestamp is "latest" (the default, meaning no freshness filter) or an
// exact Unix-seconds value a cached v2 record's Timestamp must match;
// anything else is a 400. explanations, when present, overrides the
// orchestrator's default risk.Config.GenerateExplanations for this request.
func parseV2Query(r *http.Request) (orchestrator.Query, error) {
	var q orchestrator.Query

	ts := strings.TrimSpace(r.URL.Query().Get("timestamp"))
	if ts != "" && !strings.EqualFold(ts, "latest") {
		parsed, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return orchestrator.Query{}, fmt.Errorf("invalid timestamp %q: must be \"latest\" or a unix-seconds integer", ts)
		}
		q.Timestamp = &parsed
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("explanations")); raw != "" {
		explain, err := strconv.ParseBool(raw)
		if err != nil {
			return orchestrator.Query{}, fmt.Errorf("invalid explanations %q: must be a boolean", raw)
		}
		q.GenerateExplanations = &explain
	}

	return q, nil
}

func (h *Handler) streamArea(w http.ResponseWriter, r *http.Request, area model.AreaRequest, query orchestrator.Query) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	writeLine := func(v any) {
		_ = enc.Encode(v)
		if flusher != nil {
			flusher.Flush()
		}
	}

	onProgress := func(processed, total int, chunk []model.ScoredCellV2) {
		writeLine(map[string]any{"type": "progress", "processed": processed, "total": total})
		if len(chunk) > 0 {
			writeLine(map[string]any{"type": "data", "cells": chunk})
		}
	}

	result, err := h.orch.GetRisksForArea(r.Context(), area, onProgress, query)
	if err != nil {
		writeLine(map[string]any{"type": "error", "error": err.Error()})
		return
	}
	writeLine(map[string]any{"type": "complete", "metrics": result.Metrics})
}

// handleTileCacheStats serves GET /h3/tile/cache/stats.
func (h *Handler) handleTileCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.tiles == nil {
		writeJSON(w, http.StatusOK, tilecache.Stats{})
		return
	}
	writeJSON(w, http.StatusOK, h.tiles.Stats())
}

// handleTileCacheClear serves DELETE /h3/tile/cache, the operational clear.
func (h *Handler) handleTileCacheClear(w http.ResponseWriter, r *http.Request) {
	if h.tiles != nil {
		h.tiles.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "tile cache cleared"})
}
