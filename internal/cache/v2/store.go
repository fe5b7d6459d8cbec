// Package v2 bundles the L2 mirror stores the cell-result cache writes
// through to when REDIS_ADDR or DB_DSN is configured.
package v2

import (
	"time"

	"github.com/sottomarino/geolens-europa/internal/cache/featurestore"
	"github.com/sottomarino/geolens-europa/internal/cache/pgstore"
	"github.com/sottomarino/geolens-europa/internal/cache/redisstore"
)

// Store is the set of stores the cell-result cache mirrors through when a
// mirror backend is configured. The disk-JSON file stays the system of
// record; this only lets warm cells be shared across replicas.
type Store struct {
	Features featurestore.FeatureStore
}

func NewRedisStore(cli *redisstore.Client, defaultTTL time.Duration) *Store {
	return &Store{
		Features: featurestore.NewRedisStore(cli, defaultTTL),
	}
}

// NewPostgresStore is the DB_DSN-configured alternative to NewRedisStore,
// behind the same Store shape the rest of the cell-result cache consumes.
func NewPostgresStore(cli *pgstore.Client, defaultTTL time.Duration) *Store {
	return &Store{
		Features: featurestore.NewPostgresStore(cli, defaultTTL),
	}
}
