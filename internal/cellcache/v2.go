package cellcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	cachev2 "github.com/sottomarino/geolens-europa/internal/cache/v2"
	"github.com/sottomarino/geolens-europa/internal/core/model"
)

const mirrorLayer = "v2"

// V2Store is the full-distribution cell-result cache, persisted to
// h3_cache_v2.json. When a Redis client is configured it also mirrors
// writes to a shared L2 so multiple orchestrator replicas see warm cells
// before the disk file catches up; the disk file stays the system of record.
type V2Store struct {
	inner  *shardedStore[model.ScoredCellV2]
	path   string
	dirty  atomic.Bool
	logger *slog.Logger
	mirror *cachev2.Store
	ttl    time.Duration
}

func NewV2Store(path string, logger *slog.Logger, mirror *cachev2.Store, mirrorTTL time.Duration) *V2Store {
	s := &V2Store{
		inner:  newShardedStore[model.ScoredCellV2](),
		path:   path,
		logger: logger,
		mirror: mirror,
		ttl:    mirrorTTL,
	}
	recs := loadJSONArray[model.ScoredCellV2](path, logger)
	s.inner.loadAll(recs, func(r model.ScoredCellV2) string { return r.H3Index })
	return s
}

// Get returns the record regardless of its timestamp.
func (s *V2Store) Get(id string) (model.ScoredCellV2, bool) {
	return s.inner.get(id)
}

// GetFresh returns the record only when its Timestamp exactly matches ts; a
// record at any other timestamp is a miss.
func (s *V2Store) GetFresh(id string, ts int64) (model.ScoredCellV2, bool) {
	rec, ok := s.inner.get(id)
	if !ok || rec.Timestamp != ts {
		return model.ScoredCellV2{}, false
	}
	return rec, true
}

func (s *V2Store) Set(id string, rec model.ScoredCellV2) {
	s.inner.set(id, rec)
	s.dirty.Store(true)
	s.mirrorWrite(id, rec)
}

// GetMulti preserves input order; a nil entry means the id was not cached.
// Entries absent from the local store are backfilled from the Redis mirror
// when one is configured, the mirror read failure is logged and treated as
// a miss rather than propagated.
func (s *V2Store) GetMulti(ctx context.Context, ids []string) []*model.ScoredCellV2 {
	out := s.inner.getMulti(ids)
	if s.mirror == nil {
		return out
	}

	var missingIDs []string
	for i, rec := range out {
		if rec == nil {
			missingIDs = append(missingIDs, ids[i])
		}
	}
	if len(missingIDs) == 0 {
		return out
	}

	raw, err := s.mirror.Features.MGetFeatures(ctx, mirrorLayer, missingIDs)
	if err != nil {
		s.logger.Warn("cellcache: v2 mirror read failed", "error", err)
		return out
	}
	for i, id := range ids {
		if out[i] != nil {
			continue
		}
		body, ok := raw[id]
		if !ok {
			continue
		}
		var rec model.ScoredCellV2
		if err := json.Unmarshal(body, &rec); err != nil {
			continue
		}
		s.inner.set(id, rec)
		out[i] = &rec
	}
	return out
}

func (s *V2Store) mirrorWrite(id string, rec model.ScoredCellV2) {
	if s.mirror == nil {
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.mirror.Features.PutFeatures(context.Background(), mirrorLayer, map[string][]byte{id: body}, s.ttl); err != nil {
		s.logger.Warn("cellcache: v2 mirror write failed", "error", err)
	}
}

func (s *V2Store) Len() int { return s.inner.len() }

func (s *V2Store) Flush() error {
	if !s.dirty.CompareAndSwap(true, false) {
		return nil
	}
	if err := saveJSONArray(s.path, s.inner.snapshot()); err != nil {
		s.dirty.Store(true)
		return err
	}
	return nil
}

func (s *V2Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(); err != nil {
				s.logger.Warn("cellcache: final v2 flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Warn("cellcache: v2 flush failed", "error", err)
			}
		}
	}
}

// DeleteMany removes cells from the in-memory store, used by dataset
// invalidation. It does not touch the Redis mirror's TTL'd entries directly;
// those expire naturally or are overwritten on the next write.
func (s *V2Store) DeleteMany(ids []string) {
	for _, id := range ids {
		sh := s.inner.shardFor(id)
		sh.mu.Lock()
		delete(sh.records, id)
		sh.mu.Unlock()
	}
	s.dirty.Store(true)
}
