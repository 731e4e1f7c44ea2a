package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/storage/memory"
)

// --- Mock implementations ---

type mockValidator struct {
	err   error
	calls int
}

func (m *mockValidator) ValidateLines(_ context.Context, _ []cart.Item) error {
	m.calls++
	return m.err
}

// --- Helpers ---

var (
	admin = auth.Identity{UserID: "admin", Role: auth.RoleAdmin}
	alice = auth.Identity{UserID: "u1", Role: auth.RoleUser}
	bob   = auth.Identity{UserID: "u2", Role: auth.RoleUser}

	home = order.Address{
		FullName: "Alice Doe",
		Street:   "1 Main St",
		City:     "Springfield",
		State:    "IL",
		Country:  "US",
		Zip:      "62701",
		Phone:    "555-0100",
	}
)

type fixture struct {
	store  *memory.Store
	carts  *cart.Service
	orders *order.Service
}

// tick returns a clock that advances one second per call.
func tick() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newFixture(opts ...order.Option) *fixture {
	store := memory.NewStore()
	catalog := memory.NewCatalog([]product.Product{
		{ID: "p1", Name: "Mug", Price: decimal.RequireFromString("10.00"), Image: "mug.png"},
		{ID: "p2", Name: "Tee", Price: decimal.RequireFromString("5.50"), Image: "tee.png"},
	})
	opts = append([]order.Option{order.WithClock(tick())}, opts...)
	return &fixture{
		store:  store,
		carts:  cart.NewService(store, catalog),
		orders: order.NewService(store, opts...),
	}
}

func (f *fixture) fill(t *testing.T, owner string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, owner, "p1", 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, owner, "p2", 1)
	require.NoError(t, err)
}

func (f *fixture) place(t *testing.T, owner string) *order.Order {
	t.Helper()
	f.fill(t, owner)
	o, err := f.orders.Checkout(context.Background(), owner, home)
	require.NoError(t, err)
	return o
}

// --- Tests ---

func TestService_Checkout(t *testing.T) {
	ctx := context.Background()

	t.Run("places pending order and clears cart", func(t *testing.T) {
		f := newFixture()
		f.fill(t, "u1")

		o, err := f.orders.Checkout(ctx, "u1", home)
		require.NoError(t, err)
		assert.NotEmpty(t, o.ID)
		assert.Equal(t, "u1", o.OwnerID)
		assert.Equal(t, order.StatusPending, o.Status)
		assert.Equal(t, "25.5", o.Total.String())
		assert.Equal(t, home, o.Address)
		assert.Equal(t, o.CreatedAt, o.UpdatedAt)
		require.Len(t, o.Items, 2)
		assert.Equal(t, "Mug", o.Items[0].Name)
		assert.Equal(t, 2, o.Items[0].Quantity)

		c, err := f.carts.GetCart(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, c.IsEmpty())

		stored, err := f.orders.GetOrder(ctx, o.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, o.Total.String(), stored.Total.String())
	})

	t.Run("address is trimmed", func(t *testing.T) {
		f := newFixture()
		f.fill(t, "u1")

		addr := home
		addr.City = "  Springfield  "
		o, err := f.orders.Checkout(ctx, "u1", addr)
		require.NoError(t, err)
		assert.Equal(t, "Springfield", o.Address.City)
	})

	t.Run("empty cart", func(t *testing.T) {
		f := newFixture()

		_, err := f.orders.Checkout(ctx, "u1", home)
		require.ErrorIs(t, err, order.ErrEmptyCart)

		all, err := f.orders.ListOrders(ctx, admin)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("invalid address leaves cart untouched", func(t *testing.T) {
		f := newFixture()
		f.fill(t, "u1")

		addr := home
		addr.Zip = "   "
		_, err := f.orders.Checkout(ctx, "u1", addr)
		var ae *order.InvalidAddressError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "zip", ae.Field)

		c, err := f.carts.GetCart(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 3, c.Count())
	})

	t.Run("validator rejection leaves cart untouched", func(t *testing.T) {
		v := &mockValidator{err: errors.New("price changed")}
		f := newFixture(order.WithLineValidator(v))
		f.fill(t, "u1")

		_, err := f.orders.Checkout(ctx, "u1", home)
		require.Error(t, err)
		assert.Equal(t, 1, v.calls)

		c, err := f.carts.GetCart(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, c.IsEmpty())
	})

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture()
		_, err := f.orders.Checkout(ctx, "", home)
		require.ErrorIs(t, err, auth.ErrNotAuthenticated)
	})
}

func TestService_ConcurrentCheckoutAndAdd(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.fill(t, "u1")

	var (
		g      errgroup.Group
		placed *order.Order
	)
	g.Go(func() error {
		o, err := f.orders.Checkout(ctx, "u1", home)
		placed = o
		return err
	})
	g.Go(func() error {
		_, err := f.carts.AddItem(ctx, "u1", "p2", 1)
		return err
	})
	require.NoError(t, g.Wait())

	c, err := f.carts.GetCart(ctx, "u1")
	require.NoError(t, err)

	// The add either landed before checkout and is in the order, or after
	// and is the only thing left in the cart.
	orderedTees := 0
	for _, it := range placed.Items {
		if it.ProductID == "p2" {
			orderedTees = it.Quantity
		}
	}
	switch orderedTees {
	case 2:
		assert.True(t, c.IsEmpty())
	case 1:
		require.Len(t, c.Items, 1)
		assert.Equal(t, 1, c.Items[0].Quantity)
	default:
		t.Fatalf("unexpected tee quantity %d", orderedTees)
	}
}

func TestService_SetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("walks the lifecycle", func(t *testing.T) {
		f := newFixture()
		o := f.place(t, "u1")

		for _, next := range []order.Status{order.StatusProcessing, order.StatusOutForDelivery, order.StatusDelivered} {
			got, err := f.orders.SetStatus(ctx, o.ID, next, admin)
			require.NoError(t, err)
			assert.Equal(t, next, got.Status)
			assert.True(t, got.UpdatedAt.After(o.CreatedAt))
		}

		_, err := f.orders.SetStatus(ctx, o.ID, order.StatusCancelled, admin)
		var te *order.InvalidTransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, order.StatusDelivered, te.From)
	})

	t.Run("rejects backward and skipping moves", func(t *testing.T) {
		f := newFixture()
		o := f.place(t, "u1")

		_, err := f.orders.SetStatus(ctx, o.ID, order.StatusDelivered, admin)
		var te *order.InvalidTransitionError
		require.ErrorAs(t, err, &te)

		_, err = f.orders.SetStatus(ctx, o.ID, order.StatusProcessing, admin)
		require.NoError(t, err)
		_, err = f.orders.SetStatus(ctx, o.ID, order.StatusPending, admin)
		require.ErrorAs(t, err, &te)

		got, err := f.orders.GetOrder(ctx, o.ID, admin)
		require.NoError(t, err)
		assert.Equal(t, order.StatusProcessing, got.Status)
	})

	t.Run("non-admin", func(t *testing.T) {
		f := newFixture()
		o := f.place(t, "u1")

		_, err := f.orders.SetStatus(ctx, o.ID, order.StatusCancelled, alice)
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newFixture()
		o := f.place(t, "u1")

		_, err := f.orders.SetStatus(ctx, o.ID, order.Status("Shipped"), admin)
		var se *order.InvalidStatusError
		require.ErrorAs(t, err, &se)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture()
		_, err := f.orders.SetStatus(ctx, "missing", order.StatusProcessing, admin)
		require.ErrorIs(t, err, order.ErrOrderNotFound)
	})
}

func TestService_ConcurrentStatusChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o := f.place(t, "u1")

	targets := []order.Status{order.StatusCancelled, order.StatusProcessing}
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, next := range targets {
		g.Go(func() error {
			_, errs[i] = f.orders.SetStatus(ctx, o.ID, next, admin)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	got, err := f.orders.GetOrder(ctx, o.ID, admin)
	require.NoError(t, err)

	// Cancelled first makes Processing illegal. Processing first still
	// allows Cancelled.
	switch {
	case errs[0] == nil && errs[1] == nil:
		assert.Equal(t, order.StatusCancelled, got.Status)
	case errs[0] == nil:
		var te *order.InvalidTransitionError
		require.ErrorAs(t, errs[1], &te)
		assert.Equal(t, order.StatusCancelled, got.Status)
	default:
		t.Fatalf("cancel failed: %v", errs[0])
	}
}

func TestService_GetOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o := f.place(t, "u1")

	_, err := f.orders.GetOrder(ctx, o.ID, alice)
	require.NoError(t, err)
	_, err = f.orders.GetOrder(ctx, o.ID, admin)
	require.NoError(t, err)

	_, err = f.orders.GetOrder(ctx, o.ID, bob)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = f.orders.GetOrder(ctx, o.ID, auth.Identity{})
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)

	_, err = f.orders.GetOrder(ctx, "missing", alice)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestService_ListOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	first := f.place(t, "u1")
	other := f.place(t, "u2")
	second := f.place(t, "u1")

	mine, err := f.orders.ListOrders(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	all, err := f.orders.ListOrders(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{second.ID, other.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	own, err := f.orders.OwnOrders(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, own)

	_, err = f.orders.ListOrders(ctx, auth.Identity{})
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)
}
