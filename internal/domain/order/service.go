package order

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/cart"
)

// LineValidator re-checks cart lines against the catalog during checkout.
// Snapshot prices are kept either way; a validator can only reject.
type LineValidator interface {
	ValidateLines(ctx context.Context, items []cart.Item) error
}

// Option configures a Service.
type Option func(*Service)

// WithLineValidator enables checkout-time revalidation of cart lines.
func WithLineValidator(v LineValidator) Option {
	return func(s *Service) { s.validator = v }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service encapsulates checkout and the order lifecycle.
type Service struct {
	orders    Repository
	validator LineValidator
	now       func() time.Time
	newID     func() string
}

// NewService creates an order Service.
func NewService(orders Repository, opts ...Option) *Service {
	s := &Service{
		orders: orders,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Checkout converts the owner's cart into a Pending order and empties the
// cart. Both happen or neither does.
func (s *Service) Checkout(ctx context.Context, ownerID string, addr Address) (*Order, error) {
	if ownerID == "" {
		return nil, auth.ErrNotAuthenticated
	}
	addr = addr.Normalize()

	o, err := s.orders.Checkout(ctx, ownerID, func(c *cart.Cart) (*Order, error) {
		if c.IsEmpty() {
			return nil, ErrEmptyCart
		}
		if err := addr.Validate(); err != nil {
			return nil, err
		}
		if s.validator != nil {
			if err := s.validator.ValidateLines(ctx, c.Items); err != nil {
				return nil, errors.Wrap(err, "validate lines")
			}
		}
		return s.build(ownerID, addr, c), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "checkout")
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.Int("order.items", len(o.Items)),
	)
	zctx.From(ctx).Info("Order placed",
		zap.String("order", o.ID),
		zap.String("owner", ownerID),
		zap.Stringer("total", o.Total),
	)
	return o, nil
}

func (s *Service) build(ownerID string, addr Address, c *cart.Cart) *Order {
	items := make([]OrderItem, len(c.Items))
	for i, it := range c.Items {
		items[i] = OrderItem{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			Image:     it.Image,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}
	now := s.now().UTC()
	return &Order{
		ID:        s.newID(),
		OwnerID:   ownerID,
		Items:     items,
		Address:   addr,
		Total:     c.Subtotal().Round(2),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus moves an order to next. Only administrators may call it, and only
// along the edges of the status graph.
func (s *Service) SetStatus(ctx context.Context, orderID string, next Status, actor auth.Identity) (*Order, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, &InvalidStatusError{Value: string(next)}
	}

	var prev Status
	o, err := s.orders.UpdateStatus(ctx, orderID, func(o *Order) error {
		st, err := o.Status.TransitionTo(next)
		if err != nil {
			return err
		}
		prev = o.Status
		o.Status = st
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "set status")
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order", orderID),
		zap.String("from", string(prev)),
		zap.String("to", string(o.Status)),
		zap.String("actor", actor.UserID),
	)
	return o, nil
}

// GetOrder returns an order. Non-administrators may only read their own.
func (s *Service) GetOrder(ctx context.Context, orderID string, requester auth.Identity) (*Order, error) {
	if requester.UserID == "" {
		return nil, auth.ErrNotAuthenticated
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !requester.CanAccess(o.OwnerID) {
		return nil, auth.ErrUnauthorized
	}
	return o, nil
}

// ListOrders returns the requester's orders, or every order for an
// administrator, most recent first.
func (s *Service) ListOrders(ctx context.Context, requester auth.Identity) ([]Order, error) {
	if requester.UserID == "" {
		return nil, auth.ErrNotAuthenticated
	}
	var (
		orders []Order
		err    error
	)
	if requester.IsAdmin() {
		orders, err = s.orders.List(ctx)
	} else {
		orders, err = s.orders.ListByOwner(ctx, requester.UserID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	sortNewestFirst(orders)
	return orders, nil
}

// OwnOrders returns the orders placed by the requester regardless of role.
func (s *Service) OwnOrders(ctx context.Context, requester auth.Identity) ([]Order, error) {
	if requester.UserID == "" {
		return nil, auth.ErrNotAuthenticated
	}
	orders, err := s.orders.ListByOwner(ctx, requester.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list own orders")
	}
	sortNewestFirst(orders)
	return orders, nil
}

func sortNewestFirst(orders []Order) {
	slices.SortStableFunc(orders, func(a, b Order) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
}
