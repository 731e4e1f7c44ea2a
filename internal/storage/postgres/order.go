package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/storage"
)

const (
	orderColumns = `id, owner_id, status, total_amount,
	address_full_name, address_street, address_city, address_state, address_country, address_zip, address_phone,
	created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, position, product_id, name, image, unit_price, quantity)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`

	listOrdersByOwnerSQL = `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`

	listOrderItemsSQL = `SELECT order_id, product_id, name, image, unit_price, quantity
	FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Orders
// and their items live in separate tables; items keep cart order.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Checkout locks the owner's cart, lets place build the order from it, then
// inserts the order and empties the cart in the same transaction.
func (r *OrderRepository) Checkout(ctx context.Context, ownerID string, place func(c *cart.Cart) (*order.Order, error)) (*order.Order, error) {
	var out *order.Order
	err := inTx(ctx, r.pool, "checkout", func(tx pgx.Tx) error {
		c, err := lockCart(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		o, err := place(c)
		if err != nil {
			return callback(err)
		}

		batch := &pgx.Batch{}
		a := o.Address
		batch.Queue(insertOrderSQL,
			o.ID, o.OwnerID, string(o.Status), o.Total,
			a.FullName, a.Street, a.City, a.State, a.Country, a.Zip, a.Phone,
			o.CreatedAt, o.UpdatedAt,
		)
		for i, it := range o.Items {
			batch.Queue(insertOrderItemSQL, o.ID, i, it.ProductID, it.Name, it.Image, it.UnitPrice, it.Quantity)
		}
		batch.Queue(clearCartSQL, ownerID)
		batch.Queue(touchCartSQL, ownerID)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID returns the order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	orders, err := r.query(ctx, "get order", getOrderSQL, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, order.ErrOrderNotFound
	}
	return &orders[0], nil
}

// ListByOwner returns the owner's orders, most recent first.
func (r *OrderRepository) ListByOwner(ctx context.Context, ownerID string) ([]order.Order, error) {
	return r.query(ctx, "list orders by owner", listOrdersByOwnerSQL, ownerID)
}

// List returns every order, most recent first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.query(ctx, "list orders", listOrdersSQL)
}

// UpdateStatus locks the order row, runs fn and writes back the status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, fn func(o *order.Order) error) (*order.Order, error) {
	var out *order.Order
	err := inTx(ctx, r.pool, "update order status", func(tx pgx.Tx) error {
		orders, err := loadOrders(ctx, tx, lockOrderSQL, id)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return callback(order.ErrOrderNotFound)
		}
		o := &orders[0]
		if err := fn(o); err != nil {
			return callback(err)
		}
		if _, err := tx.Exec(ctx, updateOrderStatusSQL, o.ID, string(o.Status), o.UpdatedAt); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OrderRepository) query(ctx context.Context, op, sql string, args ...any) ([]order.Order, error) {
	orders, err := loadOrders(ctx, r.pool, sql, args...)
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	return orders, nil
}

// loadOrders runs an orders query and attaches items with a second query.
func loadOrders(ctx context.Context, q querier, sql string, args ...any) ([]order.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err = q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, err
	}
	var (
		orderID string
		it      order.OrderItem
	)
	_, err = pgx.ForEachRow(rows, []any{&orderID, &it.ProductID, &it.Name, &it.Image, &it.UnitPrice, &it.Quantity}, func() error {
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		status  string
		total   decimal.Decimal
		created time.Time
		updated time.Time
	)
	a := &o.Address
	err := row.Scan(
		&o.ID, &o.OwnerID, &status, &total,
		&a.FullName, &a.Street, &a.City, &a.State, &a.Country, &a.Zip, &a.Phone,
		&created, &updated,
	)
	o.Status = order.Status(status)
	o.Total = total
	o.CreatedAt = created.UTC()
	o.UpdatedAt = updated.UTC()
	return o, err
}
