package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyStore wraps a MemoryStore and starts failing after failAfter
// successful increments. failAfter < 0 means never fail.
type flakyStore struct {
	inner     *MemoryStore
	calls     int
	failAfter int
	keys      []string
}

func (s *flakyStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.calls++
	s.keys = append(s.keys, key)
	if s.failAfter >= 0 && s.calls > s.failAfter {
		return 0, errors.New("store unreachable")
	}
	return s.inner.Incr(ctx, key, ttl)
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

// midWindow is an instant safely inside all four window granularities so
// repeated checks in one test never straddle a bucket boundary.
var midWindow = time.Date(2026, 3, 14, 10, 30, 30, 0, time.UTC)

func TestCheck_AllowsUnderLimit(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, Windows{PerSecond: 10}, fixedClock(midWindow))

	d := l.Check(context.Background(), "198.51.100.7", "k-1", Windows{PerMinute: 5})

	if !d.Allowed {
		t.Fatalf("Check() denied, want allow: %+v", d)
	}
	// One IP second window plus one key minute window were observed.
	if len(d.Observations) != 2 {
		t.Fatalf("observations = %d, want 2: %+v", len(d.Observations), d.Observations)
	}
	if d.Observations[0].Granularity != Second || d.Observations[0].Remaining != 9 {
		t.Errorf("ip observation = %+v, want second window with 9 remaining", d.Observations[0])
	}
	if d.Observations[1].Granularity != Minute || d.Observations[1].Remaining != 4 {
		t.Errorf("key observation = %+v, want minute window with 4 remaining", d.Observations[1])
	}
}

func TestCheck_DeniesOverKeyLimit(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, Windows{}, fixedClock(midWindow))

	key := Windows{PerMinute: 5}
	for i := 0; i < 5; i++ {
		if d := l.Check(context.Background(), "198.51.100.7", "k-1", key); !d.Allowed {
			t.Fatalf("request %d denied, want allow", i+1)
		}
	}

	d := l.Check(context.Background(), "198.51.100.7", "k-1", key)
	if d.Allowed {
		t.Fatal("sixth request allowed, want deny")
	}
	if d.ViolatedScope != "key" || d.Violated != Minute {
		t.Errorf("violation = %s/%s, want key/minute", d.ViolatedScope, d.Violated)
	}
	if d.ViolatedLimit != 5 {
		t.Errorf("ViolatedLimit = %d, want 5", d.ViolatedLimit)
	}
	if d.ViolatedReset <= 0 || d.ViolatedReset > 60 {
		t.Errorf("ViolatedReset = %d, want within (0,60]", d.ViolatedReset)
	}
}

func TestCheck_DeniesOverIPLimit(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, Windows{PerSecond: 2}, fixedClock(midWindow))

	for i := 0; i < 2; i++ {
		if d := l.Check(context.Background(), "198.51.100.7", "", Windows{}); !d.Allowed {
			t.Fatalf("request %d denied, want allow", i+1)
		}
	}

	d := l.Check(context.Background(), "198.51.100.7", "", Windows{})
	if d.Allowed {
		t.Fatal("third request allowed, want deny")
	}
	if d.ViolatedScope != "ip" || d.Violated != Second {
		t.Errorf("violation = %s/%s, want ip/second", d.ViolatedScope, d.Violated)
	}
}

func TestCheck_IPWindowsIndependentPerAddress(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, Windows{PerSecond: 1}, fixedClock(midWindow))

	if d := l.Check(context.Background(), "198.51.100.7", "", Windows{}); !d.Allowed {
		t.Fatal("first address denied, want allow")
	}
	if d := l.Check(context.Background(), "198.51.100.8", "", Windows{}); !d.Allowed {
		t.Fatal("second address shares the first's counter, want independent windows")
	}
	if d := l.Check(context.Background(), "198.51.100.7", "", Windows{}); d.Allowed {
		t.Fatal("first address's second request allowed, want deny")
	}
}

func TestCheck_LoopbackExempt(t *testing.T) {
	store := &flakyStore{inner: NewMemoryStore(), failAfter: -1}
	l := New(store, Windows{PerSecond: 1}, fixedClock(midWindow))

	for _, addr := range []string{"127.0.0.1", "::1"} {
		for i := 0; i < 5; i++ {
			if d := l.Check(context.Background(), addr, "", Windows{}); !d.Allowed {
				t.Fatalf("loopback %s request %d denied", addr, i+1)
			}
		}
	}
	if store.calls != 0 {
		t.Errorf("store touched %d times for loopback-only traffic, want 0", store.calls)
	}
}

func TestCheck_LoopbackStillBoundByKeyWindows(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, Windows{PerSecond: 1}, fixedClock(midWindow))

	key := Windows{PerSecond: 2}
	for i := 0; i < 2; i++ {
		if d := l.Check(context.Background(), "127.0.0.1", "k-1", key); !d.Allowed {
			t.Fatalf("request %d denied, want allow", i+1)
		}
	}
	if d := l.Check(context.Background(), "127.0.0.1", "k-1", key); d.Allowed {
		t.Fatal("key window should still bind loopback callers")
	}
}

func TestCheck_WindowBoundaryResetsCounter(t *testing.T) {
	store := NewMemoryStore()
	now := midWindow
	l := New(store, Windows{}, WithClock(func() time.Time { return now }))

	key := Windows{PerSecond: 2}
	for i := 0; i < 2; i++ {
		if d := l.Check(context.Background(), "198.51.100.7", "k-1", key); !d.Allowed {
			t.Fatalf("request %d denied, want allow", i+1)
		}
	}
	if d := l.Check(context.Background(), "198.51.100.7", "k-1", key); d.Allowed {
		t.Fatal("third request in window allowed, want deny")
	}

	// Crossing the bucket boundary starts a fresh counter, which is how a
	// client can legitimately see up to 2x the limit across the boundary.
	now = now.Add(time.Second)
	for i := 0; i < 2; i++ {
		if d := l.Check(context.Background(), "198.51.100.7", "k-1", key); !d.Allowed {
			t.Fatalf("post-boundary request %d denied, want allow", i+1)
		}
	}
}

func TestCheck_ShortCircuitsOnFirstViolation(t *testing.T) {
	store := &flakyStore{inner: NewMemoryStore(), failAfter: -1}
	l := New(store, Windows{PerSecond: 1}, fixedClock(midWindow))

	key := Windows{PerSecond: 10, PerMinute: 10}
	if d := l.Check(context.Background(), "198.51.100.7", "k-1", key); !d.Allowed {
		t.Fatal("first request denied, want allow")
	}
	callsAfterFirst := store.calls

	d := l.Check(context.Background(), "198.51.100.7", "k-1", key)
	if d.Allowed {
		t.Fatal("second request allowed, want ip deny")
	}
	// The ip second window denies; no key counters may have been consumed.
	if got := store.calls - callsAfterFirst; got != 1 {
		t.Errorf("counters touched on denied request = %d, want 1", got)
	}
}

func TestCheck_FailOpenOnFirstProbe(t *testing.T) {
	store := &flakyStore{inner: NewMemoryStore(), failAfter: 0}
	l := New(store, Windows{PerSecond: 1}, fixedClock(midWindow))

	d := l.Check(context.Background(), "198.51.100.7", "k-1", Windows{PerMinute: 1})

	if !d.Allowed {
		t.Fatal("store outage denied the request, want fail-open allow")
	}
	if len(d.Observations) != 0 {
		t.Errorf("observations = %+v, want none", d.Observations)
	}
	// The sequence is abandoned at the first failed round trip.
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}

func TestCheck_FailOpenMidSequenceKeepsEarlierObservations(t *testing.T) {
	store := &flakyStore{inner: NewMemoryStore(), failAfter: 1}
	l := New(store, Windows{PerSecond: 10, PerMinute: 100}, fixedClock(midWindow))

	d := l.Check(context.Background(), "198.51.100.7", "k-1", Windows{PerMinute: 5})

	if !d.Allowed {
		t.Fatal("mid-sequence outage denied the request, want fail-open allow")
	}
	if len(d.Observations) != 1 {
		t.Fatalf("observations = %+v, want the one successful window", d.Observations)
	}
	if d.Observations[0].Granularity != Second {
		t.Errorf("kept observation = %+v, want the ip second window", d.Observations[0])
	}
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2 (second failed, rest abandoned)", store.calls)
	}
}

func TestCheck_NoWindowsConfigured(t *testing.T) {
	store := &flakyStore{inner: NewMemoryStore(), failAfter: -1}
	l := New(store, Windows{}, fixedClock(midWindow))

	d := l.Check(context.Background(), "198.51.100.7", "k-1", Windows{})

	if !d.Allowed {
		t.Fatal("unlimited principal denied")
	}
	if store.calls != 0 {
		t.Errorf("store calls = %d, want 0", store.calls)
	}
}

func TestCounterKeyFormat(t *testing.T) {
	now := time.Unix(120, 0)
	got := CounterKey("key:k-1", Minute, bucketOf(now, Minute))
	want := "rl:key:k-1:minute:2"
	if got != want {
		t.Errorf("CounterKey = %q, want %q", got, want)
	}
}

func TestBucketOfBoundaries(t *testing.T) {
	t1 := time.Unix(59, 999_000_000)
	t2 := time.Unix(60, 0)

	if bucketOf(t1, Minute) == bucketOf(t2, Minute) {
		t.Error("instants on opposite sides of a minute boundary share a bucket")
	}
	if bucketOf(t1, Hour) != bucketOf(t2, Hour) {
		t.Error("instants within one hour landed in different hour buckets")
	}
}

func TestResetSeconds(t *testing.T) {
	now := time.Unix(45, 0)

	if got := resetSeconds(now, Minute); got != 15 {
		t.Errorf("resetSeconds(45s, minute) = %d, want 15", got)
	}
	if got := resetSeconds(time.Unix(60, 0), Minute); got != 60 {
		t.Errorf("resetSeconds(on boundary, minute) = %d, want 60", got)
	}
	if got := resetSeconds(now, Second); got != 1 {
		t.Errorf("resetSeconds(second) = %d, want 1", got)
	}
}
