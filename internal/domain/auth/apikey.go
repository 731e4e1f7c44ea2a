package auth

import (
	"context"
	"slices"
)

// ScopeOrdersAdmin grants administrative access to orders.
const ScopeOrdersAdmin = "orders:admin"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Identity converts the key into a caller identity. Keys are identified by
// their id; the orders:admin scope confers the admin role.
func (k *APIKeyInfo) Identity() Identity {
	role := RoleUser
	if slices.Contains(k.Scopes, ScopeOrdersAdmin) {
		role = RoleAdmin
	}
	return Identity{UserID: "apikey:" + k.ID, Role: role}
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
