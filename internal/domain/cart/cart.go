package cart

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/product"
)

// MaxQuantity bounds a single line item's quantity.
const MaxQuantity = 1_000_000

var (
	// ErrItemNotFound is returned when an item id does not belong to the owner's cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrQuantityLimit is returned when an add would push a line past MaxQuantity.
	ErrQuantityLimit = errors.Errorf("quantity must not exceed %d", MaxQuantity)
)

// ProductNotFoundError indicates the catalog could not resolve a product id.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error {
	return product.ErrNotFound
}

// InvalidQuantityError indicates a requested quantity below one.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1, got %d", e.Quantity)
}

// Item is a single line in a cart. Name, image and price are snapshots taken
// when the product was first added.
type Item struct {
	ID          string
	ProductID   string
	ProductName string
	Image       string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// LineTotal returns UnitPrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is a user's in-progress selection. Items keep insertion order and hold
// at most one entry per product.
type Cart struct {
	OwnerID string
	Items   []Item
}

// Empty returns a cart with no items for owner.
func Empty(ownerID string) *Cart {
	return &Cart{OwnerID: ownerID, Items: []Item{}}
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Count returns the total number of units across all items.
func (c *Cart) Count() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Subtotal sums the line totals using snapshot prices.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	return &Cart{OwnerID: c.OwnerID, Items: slices.Clone(c.Items)}
}

// Item returns the line with the given id.
func (c *Cart) Item(itemID string) (Item, bool) {
	i := c.indexOf(itemID)
	if i < 0 {
		return Item{}, false
	}
	return c.Items[i], true
}

// Add merges item into the cart. When a line for the same product exists its
// quantity is incremented and its snapshot kept; otherwise item is appended.
// The resulting line is returned.
func (c *Cart) Add(item Item) (Item, error) {
	if item.Quantity < 1 {
		return Item{}, &InvalidQuantityError{Quantity: item.Quantity}
	}
	for i := range c.Items {
		if c.Items[i].ProductID != item.ProductID {
			continue
		}
		if c.Items[i].Quantity > MaxQuantity-item.Quantity {
			return Item{}, ErrQuantityLimit
		}
		c.Items[i].Quantity += item.Quantity
		return c.Items[i], nil
	}
	if item.Quantity > MaxQuantity {
		return Item{}, ErrQuantityLimit
	}
	c.Items = append(c.Items, item)
	return item, nil
}

// AdjustQuantity changes a line's quantity by delta, flooring at 1 and
// capping at MaxQuantity. Removal is a separate operation.
func (c *Cart) AdjustQuantity(itemID string, delta int) (Item, error) {
	i := c.indexOf(itemID)
	if i < 0 {
		return Item{}, ErrItemNotFound
	}
	q := c.Items[i].Quantity
	switch {
	case delta < 0 && q+delta < 1:
		q = 1
	case delta > 0 && q > MaxQuantity-delta:
		q = MaxQuantity
	default:
		q += delta
	}
	c.Items[i].Quantity = q
	return c.Items[i], nil
}

// Remove deletes the line with the given id.
func (c *Cart) Remove(itemID string) error {
	i := c.indexOf(itemID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items = slices.Delete(c.Items, i, i+1)
	return nil
}

func (c *Cart) indexOf(itemID string) int {
	return slices.IndexFunc(c.Items, func(it Item) bool { return it.ID == itemID })
}

// Store persists carts.
//
// Update runs fn against the owner's current cart as an exclusive
// read-modify-write: concurrent Updates for the same owner are serialized and
// never lose writes, while different owners do not contend. If fn returns an
// error nothing is persisted and the error is returned unchanged. A missing
// cart is presented to fn as an empty one.
type Store interface {
	Get(ctx context.Context, ownerID string) (*Cart, error)
	Update(ctx context.Context, ownerID string, fn func(c *Cart) error) (*Cart, error)
}
