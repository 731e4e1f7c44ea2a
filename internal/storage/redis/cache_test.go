package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/storage"
)

func TestProductCache_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProductCache(db, time.Minute)

	p := product.Product{ID: "p1", Name: "Mug", Price: decimal.RequireFromString("4.99"), Image: "mug.png"}
	mock.ExpectSet("product:p1", []byte(`{"_id":"p1","name":"Mug","price":4.99,"image":"mug.png"}`), time.Minute).SetVal("OK")

	require.NoError(t, cache.Set(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductCache_Get(t *testing.T) {
	t.Run("hit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewProductCache(db, time.Minute)
		mock.ExpectGet("product:p1").SetVal(`{"_id":"p1","name":"Mug","price":4.99,"image":"mug.png"}`)

		p, ok, err := cache.Get(context.Background(), "p1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Mug", p.Name)
		assert.True(t, decimal.RequireFromString("4.99").Equal(p.Price))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewProductCache(db, time.Minute)
		mock.ExpectGet("product:p1").RedisNil()

		p, ok, err := cache.Get(context.Background(), "p1")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, p)
	})

	t.Run("error", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewProductCache(db, time.Minute)
		mock.ExpectGet("product:p1").SetErr(errors.New("connection refused"))

		_, _, err := cache.Get(context.Background(), "p1")
		require.Error(t, err)
		assert.True(t, storage.IsError(err))
	})

	t.Run("corrupt payload", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewProductCache(db, time.Minute)
		mock.ExpectGet("product:p1").SetVal(`not json`)

		_, _, err := cache.Get(context.Background(), "p1")
		require.Error(t, err)
	})
}
