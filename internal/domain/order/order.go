package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/cart"
)

var (
	// ErrEmptyCart is returned when checking out a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrOrderNotFound is returned when an order id is unknown.
	ErrOrderNotFound = errors.New("order not found")
)

// InvalidAddressError names the first required address field that is blank.
type InvalidAddressError struct {
	Field string
}

func (e *InvalidAddressError) Error() string {
	return "address field " + e.Field + " is required"
}

// Address is the shipping address copied into an order at checkout.
type Address struct {
	FullName string
	Street   string
	City     string
	State    string
	Country  string
	Zip      string
	Phone    string
}

// Normalize trims surrounding whitespace from every field.
func (a Address) Normalize() Address {
	return Address{
		FullName: strings.TrimSpace(a.FullName),
		Street:   strings.TrimSpace(a.Street),
		City:     strings.TrimSpace(a.City),
		State:    strings.TrimSpace(a.State),
		Country:  strings.TrimSpace(a.Country),
		Zip:      strings.TrimSpace(a.Zip),
		Phone:    strings.TrimSpace(a.Phone),
	}
}

// Validate requires every field to be non-blank.
func (a Address) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"fullName", a.FullName},
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"country", a.Country},
		{"zip", a.Zip},
		{"phone", a.Phone},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &InvalidAddressError{Field: f.name}
		}
	}
	return nil
}

// OrderItem is a frozen copy of a cart line at checkout time.
type OrderItem struct {
	ProductID string
	Name      string
	Image     string
	UnitPrice decimal.Decimal
	Quantity  int
}

// LineTotal returns UnitPrice * Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the durable record of a checkout. Only Status and UpdatedAt
// change after creation.
type Order struct {
	ID        string
	OwnerID   string
	Items     []OrderItem
	Address   Address
	Total     decimal.Decimal
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository persists orders and performs the checkout transaction.
type Repository interface {
	// GetByID returns ErrOrderNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Order, error)
	// ListByOwner returns the owner's orders, most recent first.
	ListByOwner(ctx context.Context, ownerID string) ([]Order, error)
	// List returns all orders, most recent first.
	List(ctx context.Context) ([]Order, error)
	// UpdateStatus runs fn on the current order while holding that order
	// exclusively, then persists Status and UpdatedAt. Errors from fn are
	// returned unchanged and nothing is written.
	UpdateStatus(ctx context.Context, id string, fn func(o *Order) error) (*Order, error)
	// Checkout holds the owner's cart under the same exclusive lock that
	// cart.Store.Update uses, passes a copy to place, then persists the
	// returned order and empties the cart as one atomic unit. Errors from
	// place are returned unchanged and nothing is written.
	Checkout(ctx context.Context, ownerID string, place func(c *cart.Cart) (*Order, error)) (*Order, error)
}
