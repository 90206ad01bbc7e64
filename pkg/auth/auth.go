package auth

import (
	"fmt"

	"github.com/haugen-media/gatekeeper/pkg/ratelimit"
)

// Level is the ordinal permission level of a principal. Levels are strictly
// ordered: Read < Write < Admin < Master.
type Level int

const (
	LevelRead Level = iota
	LevelWrite
	LevelAdmin
	LevelMaster
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	case LevelAdmin:
		return "admin"
	case LevelMaster:
		return "master"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a stored level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "read":
		return LevelRead, nil
	case "write":
		return LevelWrite, nil
	case "admin":
		return LevelAdmin, nil
	case "master":
		return LevelMaster, nil
	default:
		return 0, fmt.Errorf("unknown permission level %q", s)
	}
}

// SiteID identifies a tenant's content namespace.
type SiteID string

// AllSites is the scope of principals that are not confined to a single
// tenant. Only Master-level principals carry it.
const AllSites SiteID = "*"

// CredentialKind distinguishes the two supported credential mechanisms.
type CredentialKind string

const (
	// KindAPIKey is a static credential presented in the X-API-Key header.
	KindAPIKey CredentialKind = "api_key"

	// KindToken is a signed session token presented as a bearer token.
	KindToken CredentialKind = "token"
)

// Principal is the resolved caller identity. It is constructed once per
// request by the Resolver and is immutable afterwards.
type Principal struct {
	// Kind records which credential mechanism produced this principal.
	Kind CredentialKind

	// ID is the stable identifier of the credential (key record ID or
	// token subject).
	ID string

	// Site is the tenant the principal is confined to, or AllSites.
	Site SiteID

	// Level is the principal's permission level.
	Level Level

	// Windows holds the per-credential rate limits. Zero values disable
	// the corresponding granularity.
	Windows ratelimit.Windows
}

// FailureKind enumerates the specific reasons identity resolution can fail.
type FailureKind int

const (
	// FailureMissing means no credential was presented.
	FailureMissing FailureKind = iota

	// FailureMalformed means a credential was presented but could not be
	// interpreted (bad token shape or signature, or ambiguous headers).
	FailureMalformed

	// FailureExpired means the credential was valid once but its expiry
	// has passed.
	FailureExpired

	// FailureBlocked means the credential exists but has been blocked or
	// revoked.
	FailureBlocked

	// FailureUnknown means the credential does not match any known
	// principal.
	FailureUnknown

	// FailureInternal means resolution could not complete because of an
	// infrastructure error. It is the only kind not caused by the caller.
	FailureInternal
)

// Failure is a resolution failure with a machine-readable kind.
type Failure struct {
	Kind   FailureKind
	Detail string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s", f.kindString(), f.Detail)
	}
	return f.kindString()
}

func (f *Failure) kindString() string {
	switch f.Kind {
	case FailureMissing:
		return "credential missing"
	case FailureMalformed:
		return "credential malformed"
	case FailureExpired:
		return "credential expired"
	case FailureBlocked:
		return "credential blocked"
	case FailureUnknown:
		return "unknown principal"
	case FailureInternal:
		return "internal resolution error"
	default:
		return fmt.Sprintf("failure(%d)", int(f.Kind))
	}
}
