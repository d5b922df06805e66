package reputation_test

import (
	"testing"
	"time"

	"github.com/thedtvn/reverseproxy/domain/reputation"
)

func TestCache_GetMiss(t *testing.T) {
	c := reputation.NewCache()
	if _, ok := c.Get("1.2.3.4"); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestCache_PutThenGet(t *testing.T) {
	c := reputation.NewCache()
	c.Put("1.2.3.4", true, time.Minute)

	v, ok := c.Get("1.2.3.4")
	if !ok || !v {
		t.Fatalf("Get = (%v, %v), want (true, true)", v, ok)
	}
}

// TestScenario6_ReputationBlock mirrors the spec's cache-hit-avoids-second-
// API-call scenario at the cache layer: a put followed by a get within the
// TTL still reports the blocked verdict.
func TestScenario6_ReputationBlock(t *testing.T) {
	c := reputation.NewCache()
	c.Put("9.9.9.9", true, 60*time.Second)

	v, ok := c.Get("9.9.9.9")
	if !ok || !v {
		t.Fatal("expected a cached block verdict")
	}
}

func TestCache_SlidingTTL_NeverEvictedWhileAccessed(t *testing.T) {
	c := reputation.NewCache()
	c.Put("5.5.5.5", false, 30*time.Millisecond)

	for i := 0; i < 5; i++ {
		time.Sleep(15 * time.Millisecond)
		if _, ok := c.Get("5.5.5.5"); !ok {
			t.Fatalf("entry evicted early on access %d despite sliding TTL", i)
		}
	}
}

func TestCache_ExpiresWithoutAccess(t *testing.T) {
	c := reputation.NewCache()
	c.Put("6.6.6.6", true, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("6.6.6.6"); ok {
		t.Fatal("entry should have expired without a refreshing Get")
	}
}

func TestSweeper_RemovesExpiredEntries(t *testing.T) {
	c := reputation.NewCache()
	c.Put("7.7.7.7", true, 10*time.Millisecond)

	c.StartSweeper(5 * time.Millisecond)
	defer c.Stop()

	time.Sleep(50 * time.Millisecond)

	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after sweep", c.Len())
	}
}
