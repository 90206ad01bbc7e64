package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haugen-media/gatekeeper/pkg/debug"
	"github.com/haugen-media/gatekeeper/pkg/keystore"
	"github.com/haugen-media/gatekeeper/pkg/observability"
	"github.com/haugen-media/gatekeeper/pkg/ratelimit"
)

const (
	// HeaderAPIKey carries the static credential.
	HeaderAPIKey = "X-API-Key"

	// headerAuthorization carries the signed session token as a bearer.
	headerAuthorization = "Authorization"

	bearerPrefix = "Bearer "

	// touchTimeout bounds the fire-and-forget last-used update.
	touchTimeout = 2 * time.Second
)

// TokenVerifier verifies a signed session token into a principal.
// Implemented by the token subpackage.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, *Failure)
}

// Resolver turns a raw request credential into a canonical principal or a
// specific failure. It holds only read-only collaborators and is safe for
// concurrent use.
type Resolver struct {
	keys   keystore.Store
	tokens TokenVerifier
}

// NewResolver creates a resolver. tokens may be nil when signed-token
// authentication is not configured; bearer tokens then resolve as
// malformed.
func NewResolver(keys keystore.Store, tokens TokenVerifier) *Resolver {
	return &Resolver{keys: keys, tokens: tokens}
}

// Resolve inspects the credential headers exactly once and dispatches on
// the credential kind.
//
// Header policy: X-API-Key selects the static credential path, a bearer
// Authorization header selects the signed-token path. Presenting both is
// ambiguous and rejected as malformed; presenting neither is missing.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Principal, *Failure) {
	apiKey := strings.TrimSpace(req.Header.Get(HeaderAPIKey))
	bearer := bearerToken(req.Header.Get(headerAuthorization))

	switch {
	case apiKey != "" && bearer != "":
		return nil, &Failure{Kind: FailureMalformed, Detail: "both API key and bearer token presented"}
	case apiKey != "":
		return r.resolveAPIKey(ctx, apiKey)
	case bearer != "":
		return r.resolveToken(ctx, bearer)
	default:
		return nil, &Failure{Kind: FailureMissing}
	}
}

// resolveAPIKey hashes the key, looks it up, and maps stored status and
// expiry into a principal or failure.
func (r *Resolver) resolveAPIKey(ctx context.Context, rawKey string) (*Principal, *Failure) {
	hash := HashKey(rawKey)
	debug.Log("auth", "api key lookup", "hash", debug.Truncate(hash, 12))

	rec, err := r.keys.LookupByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return nil, &Failure{Kind: FailureUnknown}
		}
		slog.Error("key store lookup failed", "error", err)
		observability.KeyStoreErrorsTotal.Inc()
		return nil, &Failure{Kind: FailureInternal, Detail: "key store lookup failed"}
	}

	// The stored status transitions eventually; the expiry check below is
	// authoritative even while status still reads active.
	switch rec.Status {
	case keystore.StatusBlocked, keystore.StatusRevoked:
		return nil, &Failure{Kind: FailureBlocked}
	case keystore.StatusExpired:
		return nil, &Failure{Kind: FailureExpired}
	case keystore.StatusActive:
		// fall through to the expiry check
	default:
		slog.Warn("api key has unrecognized status", "id", rec.ID, "status", rec.Status)
		return nil, &Failure{Kind: FailureBlocked}
	}

	if rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt) {
		return nil, &Failure{Kind: FailureExpired}
	}

	level, err := ParseLevel(rec.Level)
	if err != nil {
		slog.Error("api key has invalid stored level", "id", rec.ID, "level", rec.Level)
		return nil, &Failure{Kind: FailureInternal, Detail: "invalid stored permission level"}
	}

	p := &Principal{
		Kind:  KindAPIKey,
		ID:    rec.ID,
		Site:  SiteID(rec.Site),
		Level: level,
		Windows: ratelimit.Windows{
			PerSecond: rec.PerSecond,
			PerMinute: rec.PerMinute,
			PerHour:   rec.PerHour,
			PerDay:    rec.PerDay,
		},
	}

	// Fire-and-forget usage notification. Never awaited, never blocks the
	// request, and runs on its own context so upstream cancellation does
	// not abort it.
	go func(id string) {
		touchCtx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := r.keys.TouchLastUsed(touchCtx, id, time.Now()); err != nil {
			slog.Debug("touching last used failed", "id", id, "error", err)
		}
	}(rec.ID)

	return p, nil
}

// resolveToken delegates to the configured token verifier.
func (r *Resolver) resolveToken(ctx context.Context, token string) (*Principal, *Failure) {
	if r.tokens == nil {
		return nil, &Failure{Kind: FailureMalformed, Detail: "token authentication not configured"}
	}
	return r.tokens.Verify(ctx, token)
}

// HashKey returns the SHA-256 hex hash under which a raw key is stored.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// bearerToken extracts the token from a bearer Authorization header.
// Returns empty for other schemes so basic-auth probes read as missing
// rather than malformed.
func bearerToken(header string) string {
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}
