package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a point-in-time snapshot of a catalog item. The catalog is owned
// by another service; this core only reads it.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	// Image is a reference resolved against the static asset location.
	Image string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}
