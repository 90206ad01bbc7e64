package auth

import "errors"

// ErrForbidden is returned when a principal fails a permission requirement.
var ErrForbidden = errors.New("access denied")

// Requirement is the minimum permission a handler demands. It is supplied
// per route by the caller and never persisted.
type Requirement struct {
	// MinLevel is the lowest level allowed to perform the operation.
	MinLevel Level

	// SiteScoped requires the principal's tenant scope to match the
	// requested site. Master-level principals are exempt.
	SiteScoped bool
}

// Evaluate decides whether the principal may perform an operation against
// the requested site. It is a pure function with no I/O.
func Evaluate(p *Principal, site SiteID, req Requirement) error {
	if p == nil {
		return ErrForbidden
	}
	if p.Level < req.MinLevel {
		return ErrForbidden
	}
	// Master acts across tenants; everyone else is confined to their own.
	if req.SiteScoped && p.Level != LevelMaster {
		if p.Site != site {
			return ErrForbidden
		}
	}
	return nil
}
