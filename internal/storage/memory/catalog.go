package memory

import (
	"context"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/product"
)

var (
	_ product.Repository = (*Catalog)(nil)
	_ auth.Repository    = (*APIKeys)(nil)
)

// Catalog is a read-only product repository. It is not safe to mutate the
// slice passed to NewCatalog afterwards.
type Catalog struct {
	byID map[string]product.Product
}

// NewCatalog indexes products by id. Later duplicates win.
func NewCatalog(products []product.Product) *Catalog {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &Catalog{byID: byID}
}

// GetByID returns product.ErrNotFound for unknown ids.
func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.byID) }

// APIKeys resolves API keys from a fixed set, keyed by hash.
type APIKeys struct {
	byHash map[string]auth.APIKeyInfo
}

// NewAPIKeys indexes keys by KeyHash.
func NewAPIKeys(keys ...auth.APIKeyInfo) *APIKeys {
	byHash := make(map[string]auth.APIKeyInfo, len(keys))
	for _, k := range keys {
		byHash[k.KeyHash] = k
	}
	return &APIKeys{byHash: byHash}
}

// FindByHash returns auth.ErrNotAuthenticated for unknown hashes.
func (a *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	k, ok := a.byHash[hash]
	if !ok {
		return nil, auth.ErrNotAuthenticated
	}
	return &k, nil
}
