// Package orchestrator implements the canonical getRisksForArea pipeline:
// enumerate cells, partition against the cell-result cache, fan out to
// every dataset adapter concurrently, merge their partial features, compute
// the four hazard models in bounded chunks, and write results back to the
// cache. New takes its adapters as a factory.Set; the deprecated mock-only
// NewLegacy constructor (legacy.go) builds that set by hand from mock adapters.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sottomarino/geolens-europa/internal/adapters"
	"github.com/sottomarino/geolens-europa/internal/adapters/factory"
	"github.com/sottomarino/geolens-europa/internal/cellcache"
	h3mapper "github.com/sottomarino/geolens-europa/internal/mapper/h3"
	"github.com/sottomarino/geolens-europa/internal/core/model"
	"github.com/sottomarino/geolens-europa/internal/risk"
)

// DefaultChunkSize bounds the working set kept in memory during risk
// computation.
const DefaultChunkSize = 100

// ProgressFunc is invoked after each chunk of newly computed cells so a
// streaming HTTP handler can forward backpressure to its caller.
type ProgressFunc func(processed, total int, chunk []model.ScoredCellV2)

// Query carries the per-request overrides GetRisksForArea accepts on top of
// the area itself. The zero value means "latest" (no freshness filter, the
// plain cache GetMulti lookup) and "use the orchestrator's default risk
// config" (no explanations override).
type Query struct {
	// Timestamp, when set, requires an exact match against a cached v2
	// record's Timestamp field; a cached record at any other timestamp is
	// treated as a miss and recomputed, per the cell-result cache's
	// freshness rule. Nil means "latest": the plain GetMulti lookup, which
	// always accepts whatever is cached regardless of timestamp.
	Timestamp *int64
	// GenerateExplanations, when set, overrides the orchestrator's default
	// risk.Config.GenerateExplanations for this request only.
	GenerateExplanations *bool
}

// Timings records, in milliseconds, how long each pipeline stage took.
type Timings struct {
	GenerateCellsMs   int64 `json:"generateCells"`
	CacheLookupMs     int64 `json:"cacheLookup"`
	DataFetchMs       int64 `json:"dataFetch"`
	RiskComputationMs int64 `json:"riskComputation"`
	TotalMs           int64 `json:"total"`
}

// Metrics accompanies every getRisksForArea response.
type Metrics struct {
	TotalCells   int     `json:"totalCells"`
	CacheHits    int     `json:"cacheHits"`
	CacheMisses  int     `json:"cacheMisses"`
	DataCubeUsed bool    `json:"dataCubeUsed"`
	Timings      Timings `json:"timings"`
}

// Result is getRisksForArea's return value.
type Result struct {
	Cells   []model.ScoredCellV2
	Metrics Metrics
}

// Orchestrator mediates between the H3 helper, the dataset adapters, the
// risk engine, and the cell-result cache.
type Orchestrator struct {
	mapper    *h3mapper.Mapper
	adapters  factory.Set
	cache     *cellcache.V2Store
	legacy    *cellcache.V1Store
	chunkSize int
	config    risk.Config
	logger    *slog.Logger
	clock     func() time.Time
}

// New builds the canonical orchestrator. legacy may be nil if the process
// has no use for the flat-score schema (it is still written whenever
// present, keeping both schemas in sync).
func New(adapterSet factory.Set, cache *cellcache.V2Store, legacy *cellcache.V1Store, chunkSize int, cfg risk.Config, logger *slog.Logger) *Orchestrator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Orchestrator{
		mapper:    h3mapper.New(),
		adapters:  adapterSet,
		cache:     cache,
		legacy:    legacy,
		chunkSize: chunkSize,
		config:    cfg,
		logger:    logger,
		clock:     time.Now,
	}
}

// GetRisksForArea runs the full pipeline: enumerate -> cache-partition ->
// (short-circuit | fetch -> merge -> chunked-compute -> cache-write) ->
// respond. query carries the optional per-request timestamp-freshness and
// explanations overrides; its zero value reproduces the unqualified
// "latest, default config" behavior.
func (o *Orchestrator) GetRisksForArea(ctx context.Context, area model.AreaRequest, onProgress ProgressFunc, query Query) (Result, error) {
	start := o.clock()

	t0 := o.clock()
	cellIDs, err := o.mapper.CellsInBbox(area.BBox, area.Resolution)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: enumerate cells: %w", err)
	}
	generateCellsMs := o.clock().Sub(t0).Milliseconds()

	t1 := o.clock()
	cached, missing := o.lookupCache(ctx, cellIDs, query.Timestamp)
	cacheLookupMs := o.clock().Sub(t1).Milliseconds()

	metrics := Metrics{
		TotalCells:  len(cellIDs),
		CacheHits:   len(cached),
		CacheMisses: len(missing),
	}
	metrics.Timings.GenerateCellsMs = generateCellsMs
	metrics.Timings.CacheLookupMs = cacheLookupMs

	if len(missing) == 0 {
		metrics.Timings.TotalMs = o.clock().Sub(start).Milliseconds()
		return Result{Cells: cached, Metrics: metrics}, nil
	}

	cfg := o.config
	if query.GenerateExplanations != nil {
		cfg.GenerateExplanations = *query.GenerateExplanations
	}

	t2 := o.clock()
	features, precipitationLive := o.fetchAndMerge(ctx, area, missing)
	metrics.Timings.DataFetchMs = o.clock().Sub(t2).Milliseconds()

	t3 := o.clock()
	newlyComputed := o.computeChunks(missing, features, onProgress, cfg, precipitationLive)
	metrics.Timings.RiskComputationMs = o.clock().Sub(t3).Milliseconds()

	metrics.Timings.TotalMs = o.clock().Sub(start).Milliseconds()

	return Result{Cells: append(cached, newlyComputed...), Metrics: metrics}, nil
}

// lookupCache partitions cellIDs into cached/missing. With ts nil it is the
// plain "latest" GetMulti lookup (including the Redis mirror backfill); with
// ts set, each cell must match it exactly via GetFresh or it counts as a
// miss, so a stale cached record drives a recompute instead of being served.
func (o *Orchestrator) lookupCache(ctx context.Context, cellIDs []string, ts *int64) ([]model.ScoredCellV2, []string) {
	cached := make([]model.ScoredCellV2, 0, len(cellIDs))
	var missing []string

	if ts == nil {
		lookup := o.cache.GetMulti(ctx, cellIDs)
		for i, rec := range lookup {
			if rec == nil {
				missing = append(missing, cellIDs[i])
				continue
			}
			hit := *rec
			hit.Metadata.CacheHit = true
			cached = append(cached, hit)
		}
		return cached, missing
	}

	for _, id := range cellIDs {
		rec, ok := o.cache.GetFresh(id, *ts)
		if !ok {
			missing = append(missing, id)
			continue
		}
		rec.Metadata.CacheHit = true
		cached = append(cached, rec)
	}
	return cached, missing
}

// fetchAndMerge runs ensureCoverage and sampleFeatures concurrently across
// every adapter (plus the precipitation client), then folds their partial
// results into one CellFeatures per missing cell. Adapter failures are
// logged and contribute nothing, never aborting the request. The bool
// result reports whether live precipitation data was obtained (as opposed
// to the zero fallback, or no precipitation client at all).
func (o *Orchestrator) fetchAndMerge(ctx context.Context, area model.AreaRequest, missing []string) (map[string]model.CellFeatures, bool) {
	layers := o.adapters.All()

	var coverage sync.WaitGroup
	for _, a := range layers {
		coverage.Add(1)
		go func(a adapters.DatasetAdapter) {
			defer coverage.Done()
			if err := a.EnsureCoverage(ctx, area); err != nil {
				o.logger.Warn("orchestrator: ensureCoverage failed", "adapter", a.Name(), "error", err)
			}
		}(a)
	}
	coverage.Wait()

	type sampled struct {
		name string
		out  map[string]model.CellFeatures
	}
	results := make(chan sampled, len(layers)+1)

	var sampling sync.WaitGroup
	for _, a := range layers {
		sampling.Add(1)
		go func(a adapters.DatasetAdapter) {
			defer sampling.Done()
			out, err := a.SampleFeatures(ctx, area, missing)
			if err != nil {
				o.logger.Warn("orchestrator: sampleFeatures failed", "adapter", a.Name(), "error", err)
				out = map[string]model.CellFeatures{}
			}
			results <- sampled{name: a.Name(), out: out}
		}(a)
	}
	var precipitationLive atomic.Bool
	if o.adapters.Precipitation != nil {
		sampling.Add(1)
		go func() {
			defer sampling.Done()
			out, live, err := o.adapters.Precipitation.FetchWithFallback(ctx, missing)
			if err != nil {
				o.logger.Warn("orchestrator: precipitation fallback engaged", "error", err)
			}
			precipitationLive.Store(live)
			results <- sampled{name: "precipitation", out: out}
		}()
	}
	go func() {
		sampling.Wait()
		close(results)
	}()

	merged := make(map[string]model.CellFeatures, len(missing))
	for _, id := range missing {
		merged[id] = model.CellFeatures{}
	}
	for r := range results {
		for id, feat := range r.out {
			dst, ok := merged[id]
			if !ok {
				continue
			}
			dst.Merge(feat)
			merged[id] = dst
		}
	}
	return merged, precipitationLive.Load()
}

// computeChunks runs the four risk models over missing cells in bounded
// chunks, writing each result to the cache as it is produced and invoking
// onProgress after every chunk. precipitationLive is true when this batch's
// precipitation data came from the NASA IMERG-backed microservice rather
// than the zero fallback; real-adapter cells then report TagNASAImerg
// instead of the set's plain TagRealData.
func (o *Orchestrator) computeChunks(missing []string, features map[string]model.CellFeatures, onProgress ProgressFunc, cfg risk.Config, precipitationLive bool) []model.ScoredCellV2 {
	out := make([]model.ScoredCellV2, 0, len(missing))
	total := len(missing)
	processed := 0
	now := o.clock().Unix()

	dataSource := string(o.adapters.Tag)
	if precipitationLive && o.adapters.Tag == adapters.TagRealData {
		dataSource = string(adapters.TagNASAImerg)
	}

	for start := 0; start < total; start += o.chunkSize {
		end := start + o.chunkSize
		if end > total {
			end = total
		}
		chunkIDs := missing[start:end]
		chunk := make([]model.ScoredCellV2, 0, len(chunkIDs))

		for _, id := range chunkIDs {
			cellStart := o.clock()
			risks, err := risk.ComputeAll(features[id], cfg)
			if err != nil {
				o.logger.Warn("orchestrator: risk computation failed, skipping cell", "cell", id, "error", err)
				continue
			}
			computeMs := o.clock().Sub(cellStart).Milliseconds()

			rec := model.ScoredCellV2{
				H3Index:   id,
				Timestamp: now,
				Features:  features[id],
				Risks:     risks,
				Metadata: model.CellMetadata{
					DataSource:    dataSource,
					CacheHit:      false,
					ComputeTimeMs: computeMs,
				},
				UpdatedAt:  now,
				SourceHash: sourceHash(id, now),
			}
			o.cache.Set(id, rec)
			if o.legacy != nil {
				o.legacy.Set(id, ProjectV1(rec))
			}
			chunk = append(chunk, rec)
		}

		out = append(out, chunk...)
		processed += len(chunkIDs)
		if onProgress != nil {
			onProgress(processed, total, chunk)
		}
	}
	return out
}

func sourceHash(id string, ts int64) string {
	h := xxhash.Sum64String(id + ":" + strconv.FormatInt(ts, 10))
	return strconv.FormatUint(h, 16)
}

// ProjectV1 flattens a full-distribution v2 record into the legacy v1
// scalar-score schema. metadata.lat/lon are preserved-but-never-inferred
// compatibility fields and are always left at zero.
func ProjectV1(v2 model.ScoredCellV2) model.ScoredCellV1 {
	return model.ScoredCellV1{
		H3Index:    v2.H3Index,
		UpdatedAt:  v2.UpdatedAt,
		SourceHash: v2.SourceHash,
		Water:      v2.Risks.Water.Distribution.Mean,
		Landslide:  v2.Risks.Landslide.Distribution.Mean,
		Seismic:    v2.Risks.Seismic.Distribution.Mean,
		Mineral:    v2.Risks.Mineral.Distribution.Mean,
		Metadata:   v2.Metadata,
	}
}
