// Package metrics defines the business counters exported by the API.
package metrics

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-orders/internal/domain/order"
)

const meterName = "github.com/xenking/kart-orders"

// Metrics records cart and order events. A nil *Metrics records nothing.
type Metrics struct {
	cartAdds       metric.Int64Counter
	checkouts      metric.Int64Counter
	checkoutAmount metric.Float64Histogram
	statusChanges  metric.Int64Counter
}

// New registers the instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	cartAdds, err := meter.Int64Counter("kart.cart.items_added",
		metric.WithDescription("Units added to carts"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cart adds counter")
	}
	checkouts, err := meter.Int64Counter("kart.orders.placed",
		metric.WithDescription("Orders placed"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkouts counter")
	}
	checkoutAmount, err := meter.Float64Histogram("kart.orders.amount",
		metric.WithDescription("Order totals"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout amount histogram")
	}
	statusChanges, err := meter.Int64Counter("kart.orders.status_changes",
		metric.WithDescription("Order status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "status changes counter")
	}

	return &Metrics{
		cartAdds:       cartAdds,
		checkouts:      checkouts,
		checkoutAmount: checkoutAmount,
		statusChanges:  statusChanges,
	}, nil
}

// CartItemAdded records quantity units added to a cart.
func (m *Metrics) CartItemAdded(ctx context.Context, quantity int) {
	if m == nil {
		return
	}
	m.cartAdds.Add(ctx, int64(quantity))
}

// OrderPlaced records a successful checkout.
func (m *Metrics) OrderPlaced(ctx context.Context, o *order.Order) {
	if m == nil {
		return
	}
	m.checkouts.Add(ctx, 1)
	m.checkoutAmount.Record(ctx, o.Total.InexactFloat64())
}

// StatusChanged records a transition into to.
func (m *Metrics) StatusChanged(ctx context.Context, to order.Status) {
	if m == nil {
		return
	}
	m.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))
}
