package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/storage"
)

const (
	ensureCartSQL = `INSERT INTO carts (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING`

	lockCartSQL = `SELECT owner_id FROM carts WHERE owner_id = $1 FOR UPDATE`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE owner_id = $1`

	listCartItemsSQL = `SELECT id, product_id, product_name, image, unit_price, quantity
	FROM cart_items WHERE owner_id = $1 ORDER BY position, id`

	pruneCartItemsSQL = `DELETE FROM cart_items WHERE owner_id = $1 AND NOT (id = ANY($2))`

	upsertCartItemSQL = `INSERT INTO cart_items (id, owner_id, product_id, product_name, image, unit_price, quantity, position)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity, position = EXCLUDED.position
	WHERE cart_items.owner_id = EXCLUDED.owner_id`

	clearCartSQL = `DELETE FROM cart_items WHERE owner_id = $1`
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store. Writers lock the owner's carts row, which
// serializes them with each other and with checkout.
type CartStore struct {
	pool *pgxpool.Pool
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

// Get returns the owner's cart. A missing cart is returned empty.
func (s *CartStore) Get(ctx context.Context, ownerID string) (*cart.Cart, error) {
	items, err := listCartItems(ctx, s.pool, ownerID)
	if err != nil {
		return nil, storage.Wrap("get cart", err)
	}
	return &cart.Cart{OwnerID: ownerID, Items: items}, nil
}

// Update runs fn against the locked cart and writes the difference back in
// the same transaction.
func (s *CartStore) Update(ctx context.Context, ownerID string, fn func(c *cart.Cart) error) (*cart.Cart, error) {
	var out *cart.Cart
	err := inTx(ctx, s.pool, "update cart", func(tx pgx.Tx) error {
		c, err := lockCart(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return callback(err)
		}
		if err := saveCart(ctx, tx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listCartItems(ctx context.Context, q querier, ownerID string) ([]cart.Item, error) {
	rows, err := q.Query(ctx, listCartItemsSQL, ownerID)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []cart.Item{}
	}
	return items, nil
}

// lockCart creates the owner's carts row if needed, locks it and loads the
// items.
func lockCart(ctx context.Context, tx pgx.Tx, ownerID string) (*cart.Cart, error) {
	if _, err := tx.Exec(ctx, ensureCartSQL, ownerID); err != nil {
		return nil, err
	}
	var locked string
	if err := tx.QueryRow(ctx, lockCartSQL, ownerID).Scan(&locked); err != nil {
		return nil, err
	}
	items, err := listCartItems(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	return &cart.Cart{OwnerID: ownerID, Items: items}, nil
}

// saveCart replaces the stored items with c.Items. Positions follow slice
// order.
func saveCart(ctx context.Context, tx pgx.Tx, c *cart.Cart) error {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ID
	}

	batch := &pgx.Batch{}
	batch.Queue(pruneCartItemsSQL, c.OwnerID, ids)
	for i, it := range c.Items {
		batch.Queue(upsertCartItemSQL,
			it.ID, c.OwnerID, it.ProductID, it.ProductName, it.Image, it.UnitPrice, it.Quantity, i,
		)
	}
	batch.Queue(touchCartSQL, c.OwnerID)
	return tx.SendBatch(ctx, batch).Close()
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.Image, &it.UnitPrice, &it.Quantity)
	return it, err
}
