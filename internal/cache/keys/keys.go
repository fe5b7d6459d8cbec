// Package keys defines cache key formats shared by the tile cache and the
// cell-result cache's striping scheme.
package keys

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// TileKey identifies one rendered Web Mercator tile response in the tile
// cache, independent of which hazard layers it was composed from.
func TileKey(z, x, y int) string {
	return fmt.Sprintf("tile:%d:%d:%d", z, x, y)
}

// OptimizedTileKey identifies a CompactCell-encoded tile response, kept
// separate from TileKey since the two endpoints serve different payload
// shapes for the same coordinates.
func OptimizedTileKey(z, x, y int) string {
	return fmt.Sprintf("tile:optimized:%d:%d:%d", z, x, y)
}

// StripeIndex returns a deterministic bucket in [0,n) for a cell id, used to
// shard the cell-result cache's per-key mutexes without one lock per cell.
func StripeIndex(cellID string, n int) int {
	if n <= 0 {
		return 0
	}
	return int(xxhash.Sum64String(cellID) % uint64(n))
}
