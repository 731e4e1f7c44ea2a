package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// Service implements the cart operations on top of a Store and the catalog.
type Service struct {
	store    Store
	products product.Repository
	newID    func() string
}

// NewService creates a cart Service.
func NewService(store Store, products product.Repository) *Service {
	return &Service{
		store:    store,
		products: products,
		newID:    uuid.NewString,
	}
}

// GetCart returns the owner's cart, or an empty cart if none exists yet.
func (s *Service) GetCart(ctx context.Context, ownerID string) (*Cart, error) {
	if ownerID == "" {
		return nil, auth.ErrNotAuthenticated
	}
	c, err := s.store.Get(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddItem adds quantity units of a product to the owner's cart. A product
// already in the cart has its quantity incremented; a new product is
// appended with the catalog's current price as its snapshot.
func (s *Service) AddItem(ctx context.Context, ownerID, productID string, quantity int) (Item, error) {
	if ownerID == "" {
		return Item{}, auth.ErrNotAuthenticated
	}
	if quantity < 1 {
		return Item{}, &InvalidQuantityError{Quantity: quantity}
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return Item{}, &ProductNotFoundError{ProductID: productID}
		}
		return Item{}, errors.Wrap(err, "get product")
	}

	candidate := Item{
		ID:          s.newID(),
		ProductID:   p.ID,
		ProductName: p.Name,
		Image:       p.Image,
		UnitPrice:   p.Price,
		Quantity:    quantity,
	}

	var added Item
	if _, err := s.store.Update(ctx, ownerID, func(c *Cart) error {
		var err error
		added, err = c.Add(candidate)
		return err
	}); err != nil {
		return Item{}, errors.Wrap(err, "add item")
	}

	zctx.From(ctx).Debug("Cart item added",
		zap.String("owner", ownerID),
		zap.String("product", productID),
		zap.Int("quantity", added.Quantity),
	)
	return added, nil
}

// UpdateQuantity adjusts an item's quantity by delta. The result never drops
// below one.
func (s *Service) UpdateQuantity(ctx context.Context, ownerID, itemID string, delta int) (*Cart, error) {
	if ownerID == "" {
		return nil, auth.ErrNotAuthenticated
	}
	c, err := s.store.Update(ctx, ownerID, func(c *Cart) error {
		_, err := c.AdjustQuantity(itemID, delta)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "update quantity")
	}
	return c, nil
}

// RemoveItem deletes an item from the owner's cart.
func (s *Service) RemoveItem(ctx context.Context, ownerID, itemID string) (*Cart, error) {
	if ownerID == "" {
		return nil, auth.ErrNotAuthenticated
	}
	c, err := s.store.Update(ctx, ownerID, func(c *Cart) error {
		return c.Remove(itemID)
	})
	if err != nil {
		return nil, errors.Wrap(err, "remove item")
	}
	return c, nil
}
