package tilecache

import (
	"bytes"
	"testing"
	"time"
)

func TestCache_SetThenGet_HappyPath(t *testing.T) {
	c := New(200, 10*time.Minute, nil)
	c.Set("tile:1:2:3", []byte("payload"))

	got, ok := c.Get("tile:1:2:3")
	if !ok {
		t.Fatalf("expected hit")
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("got %q, want %q", got, "payload")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Sets != 1 || stats.Entries != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCache_Get_Miss(t *testing.T) {
	c := New(200, 10*time.Minute, nil)
	if _, ok := c.Get("nope"); ok {
		t.Fatalf("expected miss for absent key")
	}
	if c.Stats().Misses != 1 {
		t.Fatalf("expected misses=1")
	}
}

func TestCache_TTLExpiry_IsAMissAndDeletesEntry(t *testing.T) {
	c := New(200, time.Millisecond, nil)
	c.Set("k", []byte("v"))
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if c.Stats().Entries != 0 {
		t.Fatalf("expected entry removed after expiry, got %+v", c.Stats())
	}
}

func TestCache_ByteBudget_EvictsLeastRecentlyUsed(t *testing.T) {
	// Each entry is 2*len(data) = 8 bytes; a budget of 10 bytes forces
	// eviction on every insert beyond the first.
	c := New(0, 10*time.Minute, nil)
	c.budgetBytes = 10 // override the MB-rounded zero budget for a tight test

	c.Set("a", []byte("aaaa"))
	c.Set("b", []byte("bbbb"))
	c.Set("c", []byte("cccc"))

	stats := c.Stats()
	if stats.Evictions == 0 {
		t.Fatalf("expected at least one eviction, got %+v", stats)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected oldest entry 'a' to have been evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("expected most recently set entry 'c' to survive")
	}
}

func TestCache_Sweep_RemovesExpiredOnly(t *testing.T) {
	c := New(200, time.Millisecond, nil)
	c.Set("expiring", []byte("v"))
	time.Sleep(5 * time.Millisecond)
	c.ttl = time.Hour
	c.Set("fresh", []byte("v"))

	removed := c.Sweep()
	if removed != 1 {
		t.Fatalf("expected to sweep exactly 1 expired entry, got %d", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatalf("expected fresh entry to survive the sweep")
	}
}

func TestCache_Clear_EmptiesStore(t *testing.T) {
	c := New(200, 10*time.Minute, nil)
	c.Set("a", []byte("v"))
	c.Clear()

	if c.Stats().Entries != 0 {
		t.Fatalf("expected no entries after Clear")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss after Clear")
	}
}
