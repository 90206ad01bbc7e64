// Package keystore defines the credential store contract consumed by the
// identity resolver, along with the stored record model.
//
// Records are looked up by the SHA-256 hex hash of the raw key; plaintext
// keys are never stored. Fields are kept as stored text (level, site) and
// mapped into domain types by the resolver, so the package stays free of
// auth dependencies.
package keystore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for key store operations.
var (
	// ErrNotFound is returned when no record matches the given hash or ID.
	ErrNotFound = errors.New("api key not found")
)

// Status is the stored lifecycle state of a credential.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Record is one stored API credential.
type Record struct {
	// ID is the stable credential identifier, also used as the key-level
	// rate limit identifier.
	ID string

	// KeyHash is the SHA-256 hex hash of the raw key.
	KeyHash string

	// Label is a human-readable name for operators.
	Label string

	// Site is the tenant scope ("*" for all sites).
	Site string

	// Level is the stored permission level name (read/write/admin/master).
	Level string

	// Status is the stored lifecycle state. The resolver performs its own
	// expiry check against ExpiresAt, so a stale "active" on an expired
	// key still resolves as expired.
	Status Status

	// Per-window request limits. Zero disables a granularity.
	PerSecond int
	PerMinute int
	PerHour   int
	PerDay    int

	// ExpiresAt is the optional credential expiry.
	ExpiresAt *time.Time

	// LastUsedAt tracks the most recent successful resolution.
	LastUsedAt *time.Time

	CreatedAt time.Time
}

// Store is the key store collaborator contract.
type Store interface {
	// LookupByHash returns the record whose key hash matches, or
	// ErrNotFound.
	LookupByHash(ctx context.Context, hash string) (*Record, error)

	// TouchLastUsed records a successful use of the credential. Callers
	// treat it as fire-and-forget; failures must not affect requests.
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}
