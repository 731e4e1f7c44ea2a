package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

// checkout places an order from the caller's cart. Items and total sent by
// the client are not trusted; a differing total is only logged.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	d, err := readBody(w, r)
	if err != nil {
		return err
	}
	req, err := decodeCheckout(d)
	if err != nil {
		return err
	}

	ctx := r.Context()
	o, err := h.orders.Checkout(ctx, id.UserID, req.Address)
	if err != nil {
		return err
	}
	if req.ClientTotal != nil && !req.ClientTotal.Equal(o.Total) {
		zctx.From(ctx).Warn("Client total differs from order total",
			zap.String("order", o.ID),
			zap.Stringer("client_total", req.ClientTotal),
			zap.Stringer("total", o.Total),
		)
	}
	h.metrics.OrderPlaced(ctx, o)

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.images.encodeOrder(e, o) })
	return nil
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	orders, err := h.orders.OwnOrders(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.images.encodeOrders(e, orders) })
	return nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	o, err := h.orders.GetOrder(r.Context(), r.PathValue("id"), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.images.encodeOrder(e, o) })
	return nil
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	if err := id.RequireAdmin(); err != nil {
		return err
	}
	orders, err := h.orders.ListOrders(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.images.encodeOrders(e, orders) })
	return nil
}

func (h *Handler) adminSetStatus(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	if err := id.RequireAdmin(); err != nil {
		return err
	}
	d, err := readBody(w, r)
	if err != nil {
		return err
	}
	next, err := decodeStatus(d)
	if err != nil {
		return err
	}
	o, err := h.orders.SetStatus(r.Context(), r.PathValue("id"), next, id)
	if err != nil {
		return err
	}
	h.metrics.StatusChanged(r.Context(), o.Status)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.images.encodeOrder(e, o) })
	return nil
}
