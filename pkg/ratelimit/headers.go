package ratelimit

// HeaderValues are the three scalar values rendered into the rate limit
// response headers on an allowed request.
type HeaderValues struct {
	Limit        int
	Remaining    int
	ResetSeconds int
}

// PickHeaders selects the window closest to exhaustion from the checked
// observations: the one minimizing remaining/limit, ties broken by the
// smaller limit. That is the most actionable signal for a well-behaved
// client. Returns false when nothing was checked (loopback caller with
// no key windows, or the store was down before the first observation).
func PickHeaders(obs []Observation) (HeaderValues, bool) {
	if len(obs) == 0 {
		return HeaderValues{}, false
	}

	best := obs[0]
	for _, o := range obs[1:] {
		if exhaustedBefore(o, best) {
			best = o
		}
	}

	return HeaderValues{
		Limit:        best.Limit,
		Remaining:    best.Remaining,
		ResetSeconds: best.ResetSeconds,
	}, true
}

// exhaustedBefore reports whether a is closer to exhaustion than b.
// remaining_a/limit_a < remaining_b/limit_b is compared by
// cross-multiplication to stay in integer arithmetic.
func exhaustedBefore(a, b Observation) bool {
	lhs := a.Remaining * b.Limit
	rhs := b.Remaining * a.Limit
	if lhs != rhs {
		return lhs < rhs
	}
	return a.Limit < b.Limit
}
