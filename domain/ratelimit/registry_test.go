package ratelimit_test

import (
	"testing"
	"time"

	"github.com/thedtvn/reverseproxy/domain/ratelimit"
	"github.com/thedtvn/reverseproxy/domain/route"
)

func TestAdmit_NoSpecAlwaysAllows(t *testing.T) {
	r := ratelimit.NewRegistry()
	for i := 0; i < 5; i++ {
		if !r.Admit("unconfigured", "example.com", "1.2.3.4") {
			t.Fatalf("admit %d: expected allow for a route with no rate-limit spec", i)
		}
	}
}

// TestScenario3_RateLimitTrip mirrors the spec's burst=2, limit=2/sec
// scenario: three requests in quick succession yield allow, allow, deny.
func TestScenario3_RateLimitTrip(t *testing.T) {
	r := ratelimit.NewRegistry()
	r.Configure("wc *.r.example", &route.RateLimitSpec{Unit: route.UnitSecond, Limit: 2, Burst: 2})

	var got []bool
	for i := 0; i < 3; i++ {
		got = append(got, r.Admit("wc *.r.example", "a.r.example", "10.0.0.1"))
	}

	want := []bool{true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("admit %d = %v, want %v (full sequence %v)", i, got[i], want[i], got)
		}
	}
}

func TestAdmit_KeysAreIndependentPerHostAndIP(t *testing.T) {
	r := ratelimit.NewRegistry()
	r.Configure("rk", &route.RateLimitSpec{Unit: route.UnitSecond, Limit: 1, Burst: 1})

	if !r.Admit("rk", "a.example", "1.1.1.1") {
		t.Fatal("first request for a.example|1.1.1.1 should be allowed")
	}
	if r.Admit("rk", "a.example", "1.1.1.1") {
		t.Fatal("second immediate request for the same key should be denied")
	}
	if !r.Admit("rk", "a.example", "2.2.2.2") {
		t.Fatal("a different client IP should have its own bucket")
	}
	if !r.Admit("rk", "b.example", "1.1.1.1") {
		t.Fatal("a different host should have its own bucket even for the same IP")
	}
}

func TestConfigure_RemovesBucketsWhenSpecCleared(t *testing.T) {
	r := ratelimit.NewRegistry()
	r.Configure("rk", &route.RateLimitSpec{Unit: route.UnitSecond, Limit: 1, Burst: 1})
	r.Admit("rk", "a.example", "1.1.1.1")

	r.Configure("rk", nil)
	if !r.Admit("rk", "a.example", "1.1.1.1") {
		t.Fatal("clearing the spec should make the route unrestricted again")
	}
}

func TestSync_DropsRoutesNotInNewConfig(t *testing.T) {
	r := ratelimit.NewRegistry()
	r.Sync([]route.Route{
		{Key: "a", RateLimit: &route.RateLimitSpec{Unit: route.UnitSecond, Limit: 1, Burst: 1}},
		{Key: "b", RateLimit: &route.RateLimitSpec{Unit: route.UnitSecond, Limit: 1, Burst: 1}},
	})
	r.Admit("a", "h", "ip")

	r.Sync([]route.Route{
		{Key: "b", RateLimit: &route.RateLimitSpec{Unit: route.UnitSecond, Limit: 1, Burst: 1}},
	})

	if !r.Admit("a", "h", "ip") {
		t.Fatal("route a was dropped from config, so it should no longer be rate-limited")
	}
}

func TestSweeper_RemovesIdleBuckets(t *testing.T) {
	r := ratelimit.NewRegistry()
	r.Configure("rk", &route.RateLimitSpec{Unit: route.UnitSecond, Limit: 1, Burst: 1})
	r.Admit("rk", "a.example", "1.1.1.1")

	r.StartSweeper(10*time.Millisecond, 20*time.Millisecond)
	defer r.Stop()

	time.Sleep(80 * time.Millisecond)

	if !r.Admit("rk", "a.example", "1.1.1.1") {
		t.Fatal("bucket should have been swept and recreated full, allowing the request")
	}
}
