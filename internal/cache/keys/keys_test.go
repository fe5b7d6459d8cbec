package keys

import "testing"

func TestTileKey_DistinctCoordinatesProduceDistinctKeys(t *testing.T) {
	k1 := TileKey(8, 10, 20)
	k2 := TileKey(8, 10, 21)
	if k1 == k2 {
		t.Fatalf("expected different tile coordinates to produce different keys")
	}
	if k1 != "tile:8:10:20" {
		t.Fatalf("unexpected key format: %s", k1)
	}
}

func TestOptimizedTileKey_DoesNotCollideWithTileKey(t *testing.T) {
	if TileKey(8, 1, 1) == OptimizedTileKey(8, 1, 1) {
		t.Fatalf("expected tile and optimized-tile keys for the same coordinates to differ")
	}
}

func TestStripeIndex_Deterministic(t *testing.T) {
	a := StripeIndex("892a100d2b3ffff", 64)
	b := StripeIndex("892a100d2b3ffff", 64)
	if a != b {
		t.Fatalf("expected deterministic bucket for the same cell id")
	}
	if a < 0 || a >= 64 {
		t.Fatalf("bucket %d out of range [0,64)", a)
	}
}

func TestStripeIndex_ZeroOrNegativeNIsSafe(t *testing.T) {
	if got := StripeIndex("x", 0); got != 0 {
		t.Fatalf("expected 0 for n<=0, got %d", got)
	}
	if got := StripeIndex("x", -1); got != 0 {
		t.Fatalf("expected 0 for n<=0, got %d", got)
	}
}

func TestStripeIndex_SpreadsAcrossBuckets(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		id := TileKey(8, i, i*7)
		seen[StripeIndex(id, 64)] = true
	}
	if len(seen) < 10 {
		t.Fatalf("expected cell ids to spread across many buckets, got %d distinct", len(seen))
	}
}
