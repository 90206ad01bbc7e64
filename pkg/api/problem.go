// Package api defines the structured problem payloads the gatekeeper
// returns on rejection, and their HTTP rendering.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Code is the stable machine-readable rejection code clients key their
// retry logic on.
type Code string

const (
	CodeAuthMissing   Code = "AUTH_MISSING"
	CodeAuthMalformed Code = "AUTH_MALFORMED"
	CodeAuthExpired   Code = "AUTH_EXPIRED"
	CodeAuthBlocked   Code = "AUTH_BLOCKED"
	CodeAuthUnknown   Code = "AUTH_UNKNOWN"
	CodeForbidden     Code = "FORBIDDEN"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL"
)

// Problem is a structured error response (type/title/status/detail/code).
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   Code   `json:"code"`
}

// Error implements the error interface.
func (p *Problem) Error() string {
	if p.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", p.Title, p.Status, p.Detail)
	}
	return fmt.Sprintf("%s (%d)", p.Title, p.Status)
}

// problemType builds the type URI for a problem code.
func problemType(code Code) string {
	return "https://haugen.media/problems/" + string(code)
}

// NewAuthProblem creates a 401 problem for the given auth failure code.
func NewAuthProblem(code Code, detail string) *Problem {
	titles := map[Code]string{
		CodeAuthMissing:   "Credential Missing",
		CodeAuthMalformed: "Credential Malformed",
		CodeAuthExpired:   "Credential Expired",
		CodeAuthBlocked:   "Credential Blocked",
		CodeAuthUnknown:   "Unknown Principal",
	}
	return &Problem{
		Type:   problemType(code),
		Title:  titles[code],
		Status: http.StatusUnauthorized,
		Detail: detail,
		Code:   code,
	}
}

// NewForbiddenProblem creates a 403 problem.
func NewForbiddenProblem(detail string) *Problem {
	return &Problem{
		Type:   problemType(CodeForbidden),
		Title:  "Forbidden",
		Status: http.StatusForbidden,
		Detail: detail,
		Code:   CodeForbidden,
	}
}

// NewRateLimitedProblem creates a 429 problem naming the violated
// granularity and its numeric limit.
func NewRateLimitedProblem(granularity string, limit int) *Problem {
	return &Problem{
		Type:   problemType(CodeRateLimited),
		Title:  "Rate Limit Exceeded",
		Status: http.StatusTooManyRequests,
		Detail: fmt.Sprintf("exceeded %d requests per %s", limit, granularity),
		Code:   CodeRateLimited,
	}
}

// NewInternalProblem creates a 500 problem. The detail stays generic;
// internals are logged, not surfaced.
func NewInternalProblem() *Problem {
	return &Problem{
		Type:   problemType(CodeInternal),
		Title:  "Internal Server Error",
		Status: http.StatusInternalServerError,
		Code:   CodeInternal,
	}
}

// WriteProblem renders the problem as application/problem+json with its
// status code.
func WriteProblem(w http.ResponseWriter, p *Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	json.NewEncoder(w).Encode(p)
}
