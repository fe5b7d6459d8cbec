// Package cellcache implements the dual-schema, disk-persisted cell-result
// cache: a v1 flat-score store and a v2 full-distribution store, kept as
// separate files with no in-place migration between them.
package cellcache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sottomarino/geolens-europa/internal/cache/keys"
)

// shardCount bounds lock contention without going as far as one mutex per
// cell id; a cell's shard is chosen by hashing its id.
const shardCount = 64

type shard[T any] struct {
	mu      sync.RWMutex
	records map[string]T
}

// shardedStore is a sharded, in-memory map shared by the v1 and v2 stores.
// Sharding gives single-writer-per-key behaviour without a lock per cell.
type shardedStore[T any] struct {
	shards [shardCount]*shard[T]
}

func newShardedStore[T any]() *shardedStore[T] {
	s := &shardedStore[T]{}
	for i := range s.shards {
		s.shards[i] = &shard[T]{records: make(map[string]T)}
	}
	return s
}

func (s *shardedStore[T]) shardFor(id string) *shard[T] {
	return s.shards[keys.StripeIndex(id, shardCount)]
}

func (s *shardedStore[T]) get(id string) (T, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.records[id]
	return v, ok
}

func (s *shardedStore[T]) set(id string, rec T) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	sh.records[id] = rec
	sh.mu.Unlock()
}

// getMulti preserves input order: out[i] is nil when ids[i] was absent.
func (s *shardedStore[T]) getMulti(ids []string) []*T {
	out := make([]*T, len(ids))
	for i, id := range ids {
		if v, ok := s.get(id); ok {
			vv := v
			out[i] = &vv
		}
	}
	return out
}

func (s *shardedStore[T]) snapshot() []T {
	out := make([]T, 0, shardCount*8)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, v := range sh.records {
			out = append(out, v)
		}
		sh.mu.RUnlock()
	}
	return out
}

func (s *shardedStore[T]) loadAll(recs []T, idOf func(T) string) {
	for _, r := range recs {
		s.set(idOf(r), r)
	}
}

func (s *shardedStore[T]) len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}

// loadJSONArray reads a JSON array of records from disk. A missing file is
// silent (first run); a malformed file logs a warning and starts empty.
func loadJSONArray[T any](path string, logger *slog.Logger) []T {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cellcache: read cache file failed, starting empty", "path", path, "error", err)
		}
		return nil
	}
	var recs []T
	if err := json.Unmarshal(data, &recs); err != nil {
		logger.Warn("cellcache: malformed cache file, starting empty", "path", path, "error", err)
		return nil
	}
	return recs
}

// saveJSONArray writes recs to path via a temp-file-then-rename, so a reader
// (or a crash mid-write) never observes a half-written file.
func saveJSONArray[T any](path string, recs []T) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("cellcache: marshal records: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cellcache: create cache dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cellcache: write temp cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cellcache: rename temp cache file: %w", err)
	}
	return nil
}
