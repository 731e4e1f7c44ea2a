package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
)

// requestError reports a malformed request body or parameter.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusFor maps an error to its HTTP status and client message. ok is false
// for errors that must not be shown to clients.
func statusFor(err error) (code int, message string, ok bool) {
	var (
		reqErr        *requestError
		productErr    *cart.ProductNotFoundError
		quantityErr   *cart.InvalidQuantityError
		addressErr    *order.InvalidAddressError
		transitionErr *order.InvalidTransitionError
		statusErr     *order.InvalidStatusError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.Error(), true
	case errors.Is(err, auth.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not authenticated", true
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized", true
	case errors.As(err, &productErr):
		return http.StatusNotFound, productErr.Error(), true
	case errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound, cart.ErrItemNotFound.Error(), true
	case errors.As(err, &quantityErr):
		return http.StatusBadRequest, quantityErr.Error(), true
	case errors.Is(err, cart.ErrQuantityLimit):
		return http.StatusBadRequest, cart.ErrQuantityLimit.Error(), true
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, order.ErrEmptyCart.Error(), true
	case errors.As(err, &addressErr):
		return http.StatusBadRequest, addressErr.Error(), true
	case errors.As(err, &statusErr):
		return http.StatusBadRequest, statusErr.Error(), true
	case errors.As(err, &transitionErr):
		return http.StatusConflict, transitionErr.Error(), true
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, order.ErrOrderNotFound.Error(), true
	}
	return http.StatusInternalServerError, "internal server error", false
}

// writeDomainError answers with the mapped status. Unmapped errors, storage
// failures included, are logged and hidden behind a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code, message, ok := statusFor(err)
	if !ok {
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		}
		if id, found := auth.FromContext(r.Context()); found {
			fields = append(fields, zap.String("user", id.UserID))
		}
		zctx.From(r.Context()).Error("Request failed", fields...)
	}
	writeError(w, code, message)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(code)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}
