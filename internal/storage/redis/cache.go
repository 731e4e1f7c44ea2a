// Package redis caches catalog snapshots in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/kart-orders/internal/catalog"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/storage"
)

var _ catalog.Cache = (*ProductCache)(nil)

// ProductCache stores products as JSON under "product:<id>" with a fixed TTL.
type ProductCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewProductCache returns a ProductCache using client.
func NewProductCache(client redis.Cmdable, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl}
}

func cacheKey(id string) string {
	return "product:" + id
}

// Get reports ok=false on a miss.
func (c *ProductCache) Get(ctx context.Context, id string) (*product.Product, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.Wrap("cache get", err)
	}

	var p product.Product
	if err := p.Decode(jx.DecodeBytes(raw)); err != nil {
		return nil, false, storage.Wrap("cache decode", err)
	}
	return &p, true, nil
}

// Set stores p for the configured TTL.
func (c *ProductCache) Set(ctx context.Context, p product.Product) error {
	var e jx.Encoder
	p.Encode(&e)
	if err := c.client.Set(ctx, cacheKey(p.ID), e.Bytes(), c.ttl).Err(); err != nil {
		return storage.Wrap("cache set", err)
	}
	return nil
}

// Ping checks connectivity.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	return client.Ping(ctx).Err()
}
