package auth

import (
	"github.com/go-faster/errors"
)

// Role is the capability label attached to a caller's identity.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var (
	// ErrNotAuthenticated is returned when a request carries no usable credentials.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrUnauthorized is returned when the caller's role does not permit the operation.
	ErrUnauthorized = errors.New("unauthorized")
)

// ParseRole maps a role claim to a Role. Unknown or empty values are treated
// as an ordinary user.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Identity is the caller of a core operation: an opaque user id issued by the
// authentication service plus the role used for authorization.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the identity carries administrative capability.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess reports whether the identity may read a resource owned by ownerID.
func (i Identity) CanAccess(ownerID string) bool {
	return i.IsAdmin() || (i.UserID != "" && i.UserID == ownerID)
}

// RequireAdmin returns ErrUnauthorized unless the identity is an administrator.
func (i Identity) RequireAdmin() error {
	if !i.IsAdmin() {
		return ErrUnauthorized
	}
	return nil
}
