package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	c, err := h.carts.GetCart(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.images.encodeCart(e, c) })
	return nil
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	d, err := readBody(w, r)
	if err != nil {
		return err
	}
	req, err := decodeAddToCart(d)
	if err != nil {
		return err
	}
	if _, err := h.carts.AddItem(r.Context(), id.UserID, req.ProductID, req.Quantity); err != nil {
		return err
	}
	h.metrics.CartItemAdded(r.Context(), req.Quantity)
	writeMessage(w, "Added to cart")
	return nil
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	d, err := readBody(w, r)
	if err != nil {
		return err
	}
	req, err := decodeUpdateCart(d)
	if err != nil {
		return err
	}
	c, err := h.carts.UpdateQuantity(r.Context(), id.UserID, req.ItemID, req.Delta)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.images.encodeCart(e, c) })
	return nil
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	if _, err := h.carts.RemoveItem(r.Context(), id.UserID, r.PathValue("itemId")); err != nil {
		return err
	}
	writeMessage(w, "Item removed from cart")
	return nil
}
