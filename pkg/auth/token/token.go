// Package token verifies signed session tokens against a cached JWKS
// (JSON Web Key Set) endpoint.
//
// It supports RSA-signed tokens with configurable issuer, audience, and
// claim names for the tenant scope and permission level. The key set is
// cached with a TTL; when the provider is unreachable the last-known key
// set keeps serving, so a provider outage does not take down token
// authentication.
package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/haugen-media/gatekeeper/pkg/auth"
	"github.com/haugen-media/gatekeeper/pkg/debug"
)

// Config holds the token verifier configuration.
type Config struct {
	// Issuer is the expected token issuer (iss claim). If empty, issuer is not validated.
	Issuer string

	// Audience is the expected token audience (aud claim). If empty, audience is not validated.
	Audience string

	// JWKSURL is the URL to fetch the JSON Web Key Set for signature verification.
	JWKSURL string

	// SiteClaim is the claim carrying the tenant scope. Default: "site".
	SiteClaim string

	// LevelClaim is the claim carrying the permission level name. Default: "level".
	LevelClaim string

	// CacheTTL controls how long JWKS keys are cached before a refresh is
	// attempted. Default: 1 hour. A failed refresh keeps the stale set.
	CacheTTL time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.SiteClaim == "" {
		c.SiteClaim = "site"
	}
	if c.LevelClaim == "" {
		c.LevelClaim = "level"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 1 * time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Verifier validates signed session tokens against a JWKS endpoint.
type Verifier struct {
	config    Config
	jwksCache *jwksCache
}

// Ensure Verifier satisfies the resolver's contract at compile time.
var _ auth.TokenVerifier = (*Verifier)(nil)

// New creates a token verifier with the given configuration.
func New(cfg Config) *Verifier {
	cfg.applyDefaults()
	return &Verifier{
		config: cfg,
		jwksCache: &jwksCache{
			keys:    make(map[string]*rsa.PublicKey),
			ttl:     cfg.CacheTTL,
			jwksURL: cfg.JWKSURL,
			client:  cfg.HTTPClient,
		},
	}
}

// Verify validates the token and extracts the principal from its claims.
//
// Failure mapping:
//   - expired exp claim -> FailureExpired
//   - anything else the caller got wrong (signature, shape, issuer,
//     audience, missing claims) -> FailureMalformed
func (v *Verifier) Verify(ctx context.Context, tokenStr string) (*auth.Principal, *auth.Failure) {
	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		// Ensure the signing method is RSA.
		if _, ok := token.Method.(*jwtlib.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token missing kid header")
		}

		key, fetchErr := v.jwksCache.getKey(ctx, kid)
		if fetchErr != nil {
			return nil, fmt.Errorf("fetching JWKS key for kid %q: %w", kid, fetchErr)
		}

		return key, nil
	}, v.parserOptions()...)
	if err != nil {
		debug.Log("token", "token validation failed", "error", err)
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, &auth.Failure{Kind: auth.FailureExpired}
		}
		return nil, &auth.Failure{Kind: auth.FailureMalformed, Detail: "invalid token"}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, &auth.Failure{Kind: auth.FailureMalformed, Detail: "invalid token claims"}
	}

	subject := claimString(claims, "sub")
	if subject == "" {
		return nil, &auth.Failure{Kind: auth.FailureMalformed, Detail: "token missing sub claim"}
	}

	level, err := auth.ParseLevel(claimString(claims, v.config.LevelClaim))
	if err != nil {
		return nil, &auth.Failure{Kind: auth.FailureMalformed, Detail: fmt.Sprintf("token missing or invalid %q claim", v.config.LevelClaim)}
	}

	site := auth.SiteID(claimString(claims, v.config.SiteClaim))
	if site == "" {
		// Only cross-tenant principals may omit the site claim.
		if level != auth.LevelMaster {
			return nil, &auth.Failure{Kind: auth.FailureMalformed, Detail: fmt.Sprintf("token missing %q claim", v.config.SiteClaim)}
		}
		site = auth.AllSites
	}

	// Session tokens carry no per-credential rate windows; only the
	// global IP-level windows apply to them.
	return &auth.Principal{
		Kind:  auth.KindToken,
		ID:    subject,
		Site:  site,
		Level: level,
	}, nil
}

// parserOptions builds parser options based on the configuration.
func (v *Verifier) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithExpirationRequired(),
	}

	if v.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.config.Issuer))
	}

	if v.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(v.config.Audience))
	}

	return opts
}

// claimString extracts a string value from token claims.
// Returns empty string if the claim is missing or not a string.
func claimString(claims jwtlib.MapClaims, key string) string {
	val, ok := claims[key]
	if !ok {
		return ""
	}
	s, ok := val.(string)
	if !ok {
		return ""
	}
	return s
}

// jwksCache caches RSA public keys fetched from a JWKS endpoint.
// It is thread-safe and refreshes on TTL expiry, falling back to the
// last-known key set when the provider is unreachable.
type jwksCache struct {
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey // kid -> public key
	fetchedAt time.Time
	ttl       time.Duration
	jwksURL   string
	client    *http.Client
}

// getKey returns the RSA public key for the given kid. It fetches from
// the JWKS endpoint if the cache is expired or the kid is unknown; when
// the fetch fails but a previous key set exists, the stale set is used.
func (c *jwksCache) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	// Try cache first with read lock.
	c.mu.RLock()
	if key, ok := c.keys[kid]; ok && time.Since(c.fetchedAt) < c.ttl {
		c.mu.RUnlock()
		return key, nil
	}
	c.mu.RUnlock()

	// Cache miss or expired: refresh with write lock.
	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed).
	if key, ok := c.keys[kid]; ok && time.Since(c.fetchedAt) < c.ttl {
		return key, nil
	}

	if err := c.fetchJWKS(ctx); err != nil {
		if key, ok := c.keys[kid]; ok {
			slog.Warn("JWKS refresh failed, using last-known key set", "error", err)
			return key, nil
		}
		return nil, err
	}

	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}

	return key, nil
}

// fetchJWKS fetches the JWKS from the configured URL and populates the key cache.
// Must be called with the write lock held.
func (c *jwksCache) fetchJWKS(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading JWKS response: %w", err)
	}
	debug.Raw("token", string(body))

	var jwks jwksDocument
	if err := json.Unmarshal(body, &jwks); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}

		pubKey, err := parseRSAPublicKey(jwk)
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", jwk.Kid, "error", err)
			continue
		}

		keys[jwk.Kid] = pubKey
	}

	c.keys = keys
	c.fetchedAt = time.Now()

	debug.Log("token", "JWKS cache refreshed", "keys", len(keys), "url", c.jwksURL)
	return nil
}

// jwksDocument represents the JSON Web Key Set response.
type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey represents a single JSON Web Key.
type jwkKey struct {
	Kty string `json:"kty"` // Key type (e.g., "RSA")
	Kid string `json:"kid"` // Key ID
	Use string `json:"use"` // Key use (e.g., "sig")
	N   string `json:"n"`   // RSA modulus (base64url-encoded)
	E   string `json:"e"`   // RSA public exponent (base64url-encoded)
}

// parseRSAPublicKey constructs an *rsa.PublicKey from a JWK.
func parseRSAPublicKey(jwk jwkKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	if !e.IsInt64() {
		return nil, fmt.Errorf("RSA exponent too large")
	}

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}
