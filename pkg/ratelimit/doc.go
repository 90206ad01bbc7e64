// Package ratelimit enforces distributed fixed-window rate limits.
//
// Counters live in a shared store (Redis in production) and are bucketed
// into fixed, non-overlapping windows: bucket = floor(unix / window
// seconds). A counter is incremented atomically on every check and reset
// only by key expiry, so up to 2x the limit can pass across a bucket
// boundary. That burst is an accepted property of the fixed-window
// design, not a defect; do not replace it with a sliding window.
//
// The limiter fails open: any store error, including a timeout, aborts
// the remaining checks and allows the request. Availability of the
// content API is preferred over strict enforcement.
package ratelimit
