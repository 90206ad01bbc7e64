// Package auth resolves request credentials into principals and evaluates
// tenant-scoped permissions.
//
// Two credential mechanisms feed one permission model: a static API key
// (X-API-Key header, looked up by SHA-256 hash in the key store) and a
// signed session token (Authorization bearer, verified against a cached
// JWKS key set by the token subpackage). The Resolver decides which
// mechanism applies exactly once, at the top; presenting both headers is
// rejected as malformed rather than guessing a precedence.
//
// Permission evaluation is a pure function over the resolved principal:
// an ordinal level comparison plus a tenant confinement check that only
// Master-level principals are exempt from.
package auth
