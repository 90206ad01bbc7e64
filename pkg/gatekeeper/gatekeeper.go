// Package gatekeeper orchestrates request admission for the content API:
// identity resolution, permission evaluation, and rate limiting run in
// strict sequence, short-circuiting on the first failure. Domain handlers
// behind the gatekeeper receive the resolved principal through the
// request context and never see a request that failed a stage.
package gatekeeper

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/haugen-media/gatekeeper/pkg/api"
	"github.com/haugen-media/gatekeeper/pkg/auth"
	"github.com/haugen-media/gatekeeper/pkg/observability"
	"github.com/haugen-media/gatekeeper/pkg/ratelimit"
)

// Rate limit response headers emitted on allowed requests.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Gatekeeper holds the read-only collaborators built once at startup.
type Gatekeeper struct {
	resolver *auth.Resolver
	limiter  *ratelimit.Limiter
}

// New creates a gatekeeper. limiter may be nil to disable rate limiting
// (development setups without a counter store).
func New(resolver *auth.Resolver, limiter *ratelimit.Limiter) *Gatekeeper {
	return &Gatekeeper{resolver: resolver, limiter: limiter}
}

// Protect wraps a domain handler with the admission sequence for the
// given permission requirement. Site-scoped requirements read the
// requested tenant from the route's "site" path value.
func (g *Gatekeeper) Protect(requirement auth.Requirement, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stage 1: identity.
		principal, failure := g.resolver.Resolve(r.Context(), r)
		if failure != nil {
			g.rejectAuth(w, r, failure)
			return
		}

		// Stage 2: permission.
		site := auth.SiteID(r.PathValue("site"))
		if err := auth.Evaluate(principal, site, requirement); err != nil {
			slog.Warn("permission denied",
				"principal", principal.ID,
				"level", principal.Level.String(),
				"site", string(site),
				"path", r.URL.Path,
			)
			observability.ForbiddenTotal.Inc()
			api.WriteProblem(w, api.NewForbiddenProblem("insufficient permission for this operation"))
			return
		}

		// Stage 3: rate limits.
		if g.limiter != nil {
			decision := g.limiter.Check(r.Context(), clientIP(r), principal.ID, principal.Windows)
			if !decision.Allowed {
				g.rejectRateLimited(w, r, principal, decision)
				return
			}

			// Stage 4: surface the window closest to exhaustion.
			if hv, ok := ratelimit.PickHeaders(decision.Observations); ok {
				w.Header().Set(HeaderLimit, strconv.Itoa(hv.Limit))
				w.Header().Set(HeaderRemaining, strconv.Itoa(hv.Remaining))
				w.Header().Set(HeaderReset, strconv.Itoa(hv.ResetSeconds))
			}
		}

		// Handoff: the principal rides the context, read-only.
		ctx := auth.SetPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rejectAuth writes the 401/500 problem for a resolution failure.
func (g *Gatekeeper) rejectAuth(w http.ResponseWriter, r *http.Request, failure *auth.Failure) {
	var problem *api.Problem
	switch failure.Kind {
	case auth.FailureMissing:
		problem = api.NewAuthProblem(api.CodeAuthMissing, "no credential presented")
	case auth.FailureMalformed:
		problem = api.NewAuthProblem(api.CodeAuthMalformed, failure.Detail)
	case auth.FailureExpired:
		problem = api.NewAuthProblem(api.CodeAuthExpired, "credential has expired")
	case auth.FailureBlocked:
		problem = api.NewAuthProblem(api.CodeAuthBlocked, "credential is blocked or revoked")
	case auth.FailureUnknown:
		problem = api.NewAuthProblem(api.CodeAuthUnknown, "credential does not match a known principal")
	case auth.FailureInternal:
		problem = api.NewInternalProblem()
	default:
		problem = api.NewInternalProblem()
	}

	slog.Warn("authentication failed",
		"code", string(problem.Code),
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"error", failure,
	)
	observability.AuthFailuresTotal.WithLabelValues(string(problem.Code)).Inc()
	api.WriteProblem(w, problem)
}

// rejectRateLimited writes the 429 problem with the violated window's
// own limit and reset.
func (g *Gatekeeper) rejectRateLimited(w http.ResponseWriter, r *http.Request, principal *auth.Principal, decision ratelimit.Decision) {
	slog.Info("rate limit exceeded",
		"principal", principal.ID,
		"scope", decision.ViolatedScope,
		"granularity", decision.Violated.String(),
		"limit", decision.ViolatedLimit,
		"path", r.URL.Path,
	)
	observability.RateLimitRejectedTotal.
		WithLabelValues(decision.ViolatedScope, decision.Violated.String()).Inc()

	w.Header().Set(HeaderLimit, strconv.Itoa(decision.ViolatedLimit))
	w.Header().Set(HeaderRemaining, "0")
	w.Header().Set(HeaderReset, strconv.Itoa(decision.ViolatedReset))
	w.Header().Set("Retry-After", strconv.Itoa(decision.ViolatedReset))
	api.WriteProblem(w, api.NewRateLimitedProblem(decision.Violated.String(), decision.ViolatedLimit))
}

// clientIP extracts the caller's network address from the connection.
// The gatekeeper sits at the edge, so the socket peer is authoritative;
// forwarding headers are deliberately not consulted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
