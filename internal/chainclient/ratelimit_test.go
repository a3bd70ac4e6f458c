package chainclient

import (
	"context"
	"testing"
	"time"
)

func TestSpacingLimiterEnforcesMinimumGap(t *testing.T) {
	l := newSpacingLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 100*time.Millisecond {
		t.Fatalf("expected at least 100ms across 3 calls with 50ms spacing, got %s", elapsed)
	}
}

func TestSpacingLimiterRespectsCancellation(t *testing.T) {
	l := newSpacingLimiter(time.Second)
	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(cctx); err == nil {
		t.Fatal("expected cancellation error on second wait")
	}
}

func TestCursorCacheEvictsOldestOverCap(t *testing.T) {
	c := newCursorCache()
	for i := 0; i < cursorCacheMax+10; i++ {
		c.set(walletName(i), "cursor")
	}
	if len(c.cursors) > cursorCacheMax {
		t.Fatalf("cursor cache should be bounded at %d, got %d", cursorCacheMax, len(c.cursors))
	}
	if _, ok := c.get(walletName(0)); ok {
		t.Fatal("oldest wallet should have been evicted")
	}
	if _, ok := c.get(walletName(cursorCacheMax + 9)); !ok {
		t.Fatal("most recently set wallet should still be present")
	}
}

func walletName(i int) string {
	return "wallet" + string(rune('A'+i%26)) + string(rune('0'+i%10))
}
