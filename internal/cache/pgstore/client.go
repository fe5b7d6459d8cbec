// Package pgstore wraps a pgxpool-backed Postgres connection used as the
// cell-result cache's optional L2 mirror, selected when DB_DSN is
// configured, in place of Redis (DB_DSN wins when REDIS_ADDR is also set).
// Same shape as redisstore so
// it can sit behind the same featurestore.FeatureStore interface.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sottomarino/geolens-europa/internal/core/observability"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cell_features (
	layer      TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (layer, id)
)`

// Client is a minimal key-value store over a Postgres table, scoped by a
// layer namespace the same way redisstore.Client keys are namespaced by
// the caller.
type Client struct {
	pool *pgxpool.Pool
}

// New opens a pool against dsn and ensures the backing table exists.
func New(ctx context.Context, dsn string) (*Client, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ensure schema: %w", err)
	}

	return &Client{pool: pool}, nil
}

// MGet returns the non-expired rows found for the given (layer, id) keys.
func (c *Client) MGet(ctx context.Context, layer string, ids []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	start := time.Now()
	rows, err := c.pool.Query(ctx,
		`SELECT id, body FROM cell_features WHERE layer = $1 AND id = ANY($2) AND expires_at > now()`,
		layer, ids,
	)
	observability.ObserveCacheOp("pg_mget", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("pgstore: select %d ids: %w", len(ids), err)
	}
	defer rows.Close()

	hits := 0
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("pgstore: scan row: %w", err)
		}
		out[id] = body
		hits++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate rows: %w", err)
	}

	if miss := len(ids) - hits; hits > 0 {
		observability.AddCacheHits(hits)
		if miss > 0 {
			observability.AddCacheMisses(miss)
		}
	} else {
		observability.AddCacheMisses(len(ids))
	}
	return out, nil
}

// MSetWithTTL upserts every (layer, id) -> body pair, expiring at now()+ttl.
// Writes run inside a batch so a full PutFeatures call is one round trip.
func (c *Client) MSetWithTTL(ctx context.Context, layer string, kv map[string][]byte, ttl time.Duration) error {
	if len(kv) == 0 {
		return nil
	}

	start := time.Now()
	expiresAt := time.Now().Add(ttl)

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		observability.ObserveCacheOp("pg_mset", err, time.Since(start).Seconds())
		return fmt.Errorf("pgstore: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for id, body := range kv {
		if _, err := tx.Exec(ctx,
			`INSERT INTO cell_features (layer, id, body, expires_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (layer, id) DO UPDATE SET body = $3, expires_at = $4`,
			layer, id, body, expiresAt,
		); err != nil {
			observability.ObserveCacheOp("pg_mset", err, time.Since(start).Seconds())
			return fmt.Errorf("pgstore: upsert %q: %w", id, err)
		}
	}

	err = tx.Commit(ctx)
	observability.ObserveCacheOp("pg_mset", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("pgstore: commit tx: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	c.pool.Close()
}
