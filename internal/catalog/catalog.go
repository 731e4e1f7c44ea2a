// Package catalog is the read path to product snapshots used by the cart and
// checkout.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// Cache stores product snapshots in front of the source of truth.
type Cache interface {
	Get(ctx context.Context, id string) (*product.Product, bool, error)
	Set(ctx context.Context, p product.Product) error
}

var (
	_ product.Repository  = (*Accessor)(nil)
	_ order.LineValidator = (*LineValidator)(nil)
)

// Accessor resolves products through an optional cache. Concurrent misses
// for the same id share a single source lookup.
type Accessor struct {
	source product.Repository
	cache  Cache
	group  singleflight.Group
}

// NewAccessor returns an Accessor reading from source. cache may be nil.
func NewAccessor(source product.Repository, cache Cache) *Accessor {
	return &Accessor{source: source, cache: cache}
}

// GetByID returns product.ErrNotFound for unknown ids. Cache failures are
// logged and fall through to the source.
func (a *Accessor) GetByID(ctx context.Context, id string) (*product.Product, error) {
	lg := zctx.From(ctx)
	if a.cache != nil {
		p, ok, err := a.cache.Get(ctx, id)
		switch {
		case err != nil:
			lg.Warn("Product cache read failed", zap.String("product", id), zap.Error(err))
		case ok:
			return p, nil
		}
	}

	v, err, _ := a.group.Do(id, func() (any, error) {
		// The load is shared by every waiter, so one caller's cancellation
		// must not fail the others.
		ctx := context.WithoutCancel(ctx)
		p, err := a.source.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if a.cache != nil {
			if err := a.cache.Set(ctx, *p); err != nil {
				lg.Warn("Product cache write failed", zap.String("product", id), zap.Error(err))
			}
		}
		return *p, nil
	})
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "load product")
	}
	p := v.(product.Product)
	return &p, nil
}

// LineValidator rejects cart lines whose product has left the catalog.
type LineValidator struct {
	products product.Repository
}

// NewLineValidator returns a LineValidator that checks against products.
func NewLineValidator(products product.Repository) *LineValidator {
	return &LineValidator{products: products}
}

// ValidateLines returns *cart.ProductNotFoundError for the first line whose
// product no longer resolves.
func (v *LineValidator) ValidateLines(ctx context.Context, items []cart.Item) error {
	for _, it := range items {
		if _, err := v.products.GetByID(ctx, it.ProductID); err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return &cart.ProductNotFoundError{ProductID: it.ProductID}
			}
			return errors.Wrapf(err, "check product %s", it.ProductID)
		}
	}
	return nil
}
