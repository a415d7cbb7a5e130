package domain

import (
	"errors"
	"time"
)

// Roles a registered principal can hold within a temple.
const (
	RoleServant   = "servant"
	RoleAuthority = "authority"
)

var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrProfileExists       = errors.New("profile already registered")
	ErrInvalidRole         = errors.New("invalid role")
	ErrAuthorizationDenied = errors.New("authorization denied")
)

// Profile binds an authenticated identity to a role and a temple. The
// identity provider supplies uid, name and email; the role and temple
// assignment live here.
type Profile struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	TempleID  string    `json:"temple_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the explicit per-request principal context. It replaces any
// ambient global user state: every operation that needs to know who is acting
// receives one.
type Session struct {
	UID   string
	Name  string
	Email string
	Role  string
	// TempleID is the temple the principal is registered into. Empty until
	// registration completes.
	TempleID string
}

// CanActOn reports whether the session may mutate the given servant's counter
// in the given temple. Servants may only touch their own counter; authorities
// do not increment at all.
func (s Session) CanActOn(templeID, servantID string) bool {
	return s.Role == RoleServant && s.TempleID == templeID && s.UID == servantID
}

// IsAuthorityFor reports whether the session holds the authority role for the
// given temple.
func (s Session) IsAuthorityFor(templeID string) bool {
	return s.Role == RoleAuthority && s.TempleID == templeID
}
