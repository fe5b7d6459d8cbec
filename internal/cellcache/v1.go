package cellcache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sottomarino/geolens-europa/internal/core/model"
)

// V1Store is the legacy flat-score cell-result cache, persisted to
// h3_cache.json. It exists alongside V2Store so live deployments keep a
// migration window onto the full-distribution schema.
type V1Store struct {
	inner  *shardedStore[model.ScoredCellV1]
	path   string
	dirty  atomic.Bool
	logger *slog.Logger
}

func NewV1Store(path string, logger *slog.Logger) *V1Store {
	s := &V1Store{inner: newShardedStore[model.ScoredCellV1](), path: path, logger: logger}
	recs := loadJSONArray[model.ScoredCellV1](path, logger)
	s.inner.loadAll(recs, func(r model.ScoredCellV1) string { return r.H3Index })
	return s
}

func (s *V1Store) Get(id string) (model.ScoredCellV1, bool) {
	return s.inner.get(id)
}

func (s *V1Store) Set(id string, rec model.ScoredCellV1) {
	s.inner.set(id, rec)
	s.dirty.Store(true)
}

// GetMulti preserves input order; a nil entry means the id was not cached.
func (s *V1Store) GetMulti(ids []string) []*model.ScoredCellV1 {
	return s.inner.getMulti(ids)
}

func (s *V1Store) Len() int { return s.inner.len() }

// DeleteMany removes cells from the in-memory store, used by dataset
// invalidation.
func (s *V1Store) DeleteMany(ids []string) {
	for _, id := range ids {
		sh := s.inner.shardFor(id)
		sh.mu.Lock()
		delete(sh.records, id)
		sh.mu.Unlock()
	}
	s.dirty.Store(true)
}

// Flush persists the store to disk if anything changed since the last
// flush. Safe to call concurrently with Get/Set.
func (s *V1Store) Flush() error {
	if !s.dirty.CompareAndSwap(true, false) {
		return nil
	}
	if err := saveJSONArray(s.path, s.inner.snapshot()); err != nil {
		s.dirty.Store(true)
		return err
	}
	return nil
}

// Run drives the background flusher on interval until ctx is cancelled,
// flushing once more on the way out.
func (s *V1Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(); err != nil {
				s.logger.Warn("cellcache: final v1 flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Warn("cellcache: v1 flush failed", "error", err)
			}
		}
	}
}
