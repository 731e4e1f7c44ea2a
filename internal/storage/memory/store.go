// Package memory implements the cart and order stores in process memory.
//
// Locking: each owner has a mutex guarding its cart, held for the whole of a
// read-modify-write or checkout. Each order has a mutex guarding its status.
// The maps themselves are guarded by s.mu, which is never held while waiting
// on an owner or order lock.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
)

var (
	_ cart.Store       = (*Store)(nil)
	_ order.Repository = (*Store)(nil)
)

type ownerCart struct {
	mu   sync.Mutex
	cart *cart.Cart
}

type orderEntry struct {
	mu    sync.Mutex
	order order.Order
}

// Store keeps carts and orders in memory.
type Store struct {
	mu      sync.RWMutex
	carts   map[string]*ownerCart
	orders  map[string]*orderEntry
	byOwner map[string][]string
	seq     []string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		carts:   make(map[string]*ownerCart),
		orders:  make(map[string]*orderEntry),
		byOwner: make(map[string][]string),
	}
}

func (s *Store) owner(ownerID string) *ownerCart {
	s.mu.RLock()
	oc, ok := s.carts[ownerID]
	s.mu.RUnlock()
	if ok {
		return oc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if oc, ok = s.carts[ownerID]; !ok {
		oc = &ownerCart{cart: cart.Empty(ownerID)}
		s.carts[ownerID] = oc
	}
	return oc
}

// Get returns a copy of the owner's cart.
func (s *Store) Get(ctx context.Context, ownerID string) (*cart.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oc := s.owner(ownerID)
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.cart.Clone(), nil
}

// Update applies fn to a copy of the owner's cart and keeps the copy if fn
// succeeds.
func (s *Store) Update(ctx context.Context, ownerID string, fn func(c *cart.Cart) error) (*cart.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oc := s.owner(ownerID)
	oc.mu.Lock()
	defer oc.mu.Unlock()

	working := oc.cart.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	oc.cart = working
	return working.Clone(), nil
}

// Checkout places an order from the owner's cart and empties it while the
// owner lock is held.
func (s *Store) Checkout(ctx context.Context, ownerID string, place func(c *cart.Cart) (*order.Order, error)) (*order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oc := s.owner(ownerID)
	oc.mu.Lock()
	defer oc.mu.Unlock()

	o, err := place(oc.cart.Clone())
	if err != nil {
		return nil, err
	}
	stored := cloneOrder(*o)

	s.mu.Lock()
	s.orders[stored.ID] = &orderEntry{order: stored}
	s.byOwner[stored.OwnerID] = append(s.byOwner[stored.OwnerID], stored.ID)
	s.seq = append(s.seq, stored.ID)
	s.mu.Unlock()

	oc.cart = cart.Empty(ownerID)

	out := cloneOrder(stored)
	return &out, nil
}

func (s *Store) entry(id string) (*orderEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.orders[id]
	return e, ok
}

// GetByID returns a copy of the order with the given id.
func (s *Store) GetByID(ctx context.Context, id string) (*order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	o := cloneOrder(e.order)
	return &o, nil
}

// ListByOwner returns the owner's orders, most recent first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]order.Order, error) {
	s.mu.RLock()
	ids := slices.Clone(s.byOwner[ownerID])
	s.mu.RUnlock()
	return s.collect(ctx, ids)
}

// List returns every order, most recent first.
func (s *Store) List(ctx context.Context) ([]order.Order, error) {
	s.mu.RLock()
	ids := slices.Clone(s.seq)
	s.mu.RUnlock()
	return s.collect(ctx, ids)
}

func (s *Store) collect(ctx context.Context, ids []string) ([]order.Order, error) {
	out := make([]order.Order, 0, len(ids))
	for _, id := range slices.Backward(ids) {
		o, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

// UpdateStatus applies fn while holding the order lock and keeps only the
// status fields of the result.
func (s *Store) UpdateStatus(ctx context.Context, id string, fn func(o *order.Order) error) (*order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := cloneOrder(e.order)
	if err := fn(&working); err != nil {
		return nil, err
	}
	e.order.Status = working.Status
	e.order.UpdatedAt = working.UpdatedAt

	out := cloneOrder(e.order)
	return &out, nil
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}
