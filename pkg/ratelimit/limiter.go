package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/haugen-media/gatekeeper/pkg/debug"
	"github.com/haugen-media/gatekeeper/pkg/observability"
)

// ipGranularities lists the granularities enforced globally per source
// address. Hour and day windows exist only per credential.
var ipGranularities = [2]Granularity{Second, Minute}

// Limiter evaluates fixed-window limits against a shared counter store.
//
// Every request runs up to two independent sequences: the global IP-level
// windows (second and minute) and the credential-level windows configured
// on the principal. The first violated window denies the request and no
// further counters are touched.
type Limiter struct {
	store CounterStore
	ip    Windows

	// now is the clock, overridable in tests.
	now func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's clock. Used in tests to pin bucket
// boundaries.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter. ip carries the global per-address limits; only
// its second and minute windows are honored.
func New(store CounterStore, ip Windows, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		ip:    ip,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check runs the per-request algorithm. ip is the caller's source address
// (loopback addresses are exempt from the IP-level windows), keyID the
// resolved credential identifier ("" when the credential carries no
// per-key windows), and key the credential's window configuration.
//
// Store errors never deny: the first failed round trip abandons all
// remaining checks and the request is allowed with a warning to the
// observability collaborator. A deny is only ever produced from a
// successfully observed counter value.
func (l *Limiter) Check(ctx context.Context, ip string, keyID string, key Windows) Decision {
	now := l.now()
	obs := make([]Observation, 0, 6)

	if !isLoopback(ip) {
		for _, g := range ipGranularities {
			limit := l.ip.Limit(g)
			if limit <= 0 {
				continue
			}
			d, ok := l.checkWindow(ctx, "ip:"+ip, "ip", g, limit, now, obs)
			if !ok {
				return failOpen(obs)
			}
			if !d.Allowed {
				return d
			}
			obs = d.Observations
		}
	}

	if keyID != "" {
		for _, g := range granularities {
			limit := key.Limit(g)
			if limit <= 0 {
				continue
			}
			d, ok := l.checkWindow(ctx, "key:"+keyID, "key", g, limit, now, obs)
			if !ok {
				return failOpen(obs)
			}
			if !d.Allowed {
				return d
			}
			obs = d.Observations
		}
	}

	return Decision{Allowed: true, Observations: obs}
}

// checkWindow increments one counter and folds the result into a decision.
// The second return value is false when the store was unreachable.
func (l *Limiter) checkWindow(ctx context.Context, ident, scope string, g Granularity, limit int, now time.Time, obs []Observation) (Decision, bool) {
	counterKey := CounterKey(ident, g, bucketOf(now, g))

	v, err := l.store.Incr(ctx, counterKey, g.Duration())
	if err != nil {
		slog.Warn("counter store unavailable, allowing request",
			"key", counterKey,
			"error", err,
		)
		observability.CounterStoreErrorsTotal.Inc()
		return Decision{}, false
	}
	debug.Trace("ratelimit", "counter observed", "key", counterKey, "value", v, "limit", limit)

	if v > int64(limit) {
		return Decision{
			Allowed:       false,
			Violated:      g,
			ViolatedScope: scope,
			ViolatedLimit: limit,
			ViolatedReset: resetSeconds(now, g),
		}, true
	}

	remaining := limit - int(v)
	obs = append(obs, Observation{
		Granularity:  g,
		Limit:        limit,
		Remaining:    remaining,
		ResetSeconds: resetSeconds(now, g),
	})
	return Decision{Allowed: true, Observations: obs}, true
}

// failOpen converts store unavailability into an allow. Observations
// gathered before the failure are kept so headers stay meaningful.
func failOpen(obs []Observation) Decision {
	return Decision{Allowed: true, Observations: obs}
}

// isLoopback reports whether the address is a loopback address. Loopback
// callers are permanently exempt from the IP-level windows.
func isLoopback(addr string) bool {
	if addr == "" {
		return false
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}
