// Package handler implements the REST API on net/http.
package handler

import (
	"net/http"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/metrics"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image references in responses.
	ImageBaseURL string
}

// Handler serves the cart, checkout and order routes.
type Handler struct {
	carts    *cart.Service
	orders   *order.Service
	security *SecurityHandler
	metrics  *metrics.Metrics
	images   imageResolver
}

// NewHandler constructs a Handler. m may be nil.
func NewHandler(
	cfg HandlerConfig,
	carts *cart.Service,
	orders *order.Service,
	security *SecurityHandler,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		security: security,
		metrics:  m,
		images:   imageResolver{base: cfg.ImageBaseURL},
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/cart", h.authed(h.getCart))
	mux.Handle("POST /api/cart/add", h.authed(h.addToCart))
	mux.Handle("POST /api/cart/update", h.authed(h.updateCartItem))
	mux.Handle("DELETE /api/cart/{itemId}", h.authed(h.removeCartItem))

	mux.Handle("POST /api/orders/checkout", h.authed(h.checkout))
	mux.Handle("GET /api/orders/myorders", h.authed(h.myOrders))
	mux.Handle("GET /api/orders/{id}", h.authed(h.getOrder))

	mux.Handle("GET /api/admin/orders", h.authed(h.adminListOrders))
	mux.Handle("PUT /api/admin/orders/{id}/status", h.authed(h.adminSetStatus))

	mux.Handle("/api/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	}))
}

// routeFunc is an authenticated route. A returned error is mapped to an
// HTTP response by writeDomainError.
type routeFunc func(w http.ResponseWriter, r *http.Request, id auth.Identity) error

func (h *Handler) authed(fn routeFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.security.Authenticate(r)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		r = r.WithContext(auth.WithIdentity(r.Context(), id))
		if err := fn(w, r, id); err != nil {
			writeDomainError(w, r, err)
		}
	})
}
