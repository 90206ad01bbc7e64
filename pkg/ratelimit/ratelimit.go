package ratelimit

import (
	"fmt"
	"time"
)

// Granularity is one of the four fixed window sizes a counter can span.
type Granularity int

const (
	Second Granularity = iota
	Minute
	Hour
	Day
)

// granularities lists every granularity in checking order.
var granularities = [4]Granularity{Second, Minute, Hour, Day}

// Duration returns the window length of the granularity.
func (g Granularity) Duration() time.Duration {
	switch g {
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	default:
		return time.Second
	}
}

// String returns the lowercase granularity name.
func (g Granularity) String() string {
	switch g {
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// Windows holds one optional limit per granularity. A zero or negative
// value disables that granularity.
type Windows struct {
	PerSecond int
	PerMinute int
	PerHour   int
	PerDay    int
}

// Limit returns the configured limit for the granularity, or zero when
// the granularity is not enforced.
func (w Windows) Limit(g Granularity) int {
	switch g {
	case Second:
		return w.PerSecond
	case Minute:
		return w.PerMinute
	case Hour:
		return w.PerHour
	case Day:
		return w.PerDay
	default:
		return 0
	}
}

// CounterKey builds the shared-store key for one identifier, granularity
// and bucket. Identifiers are prefixed ("ip:<addr>" or "key:<id>") so
// keys never collide across identifier kinds.
func CounterKey(ident string, g Granularity, bucket int64) string {
	return fmt.Sprintf("rl:%s:%s:%d", ident, g, bucket)
}

// bucketOf returns the fixed-window bucket the instant falls into.
func bucketOf(now time.Time, g Granularity) int64 {
	return now.Unix() / int64(g.Duration().Seconds())
}

// resetSeconds returns the whole seconds until the bucket rolls over.
func resetSeconds(now time.Time, g Granularity) int {
	window := int64(g.Duration().Seconds())
	elapsed := now.Unix() % window
	return int(window - elapsed)
}

// Observation records the state of one window that was checked and passed.
type Observation struct {
	Granularity  Granularity
	Limit        int
	Remaining    int
	ResetSeconds int
}

// Decision is the outcome of a rate limit check for one request.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Violated names the granularity whose limit was exceeded.
	// Only meaningful when Allowed is false.
	Violated Granularity

	// ViolatedScope is "ip" or "key", naming which identifier's window
	// was exceeded. Only meaningful when Allowed is false.
	ViolatedScope string

	// ViolatedLimit is the numeric limit of the violated window.
	ViolatedLimit int

	// ViolatedReset is the whole seconds until the violated window rolls
	// over. Only meaningful when Allowed is false.
	ViolatedReset int

	// Observations lists every window that was checked and passed, in
	// checking order. Empty on a deny or when the store was unreachable.
	Observations []Observation
}
