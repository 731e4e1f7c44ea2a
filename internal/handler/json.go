package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// timeLayout renders timestamps as UTC ISO-8601 with milliseconds.
const timeLayout = "2006-01-02T15:04:05.000Z"

type imageResolver struct {
	base string
}

// resolve prefixes relative references with the base URL.
func (r imageResolver) resolve(ref string) string {
	if r.base == "" || ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return strings.TrimRight(r.base, "/") + "/" + strings.TrimLeft(ref, "/")
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

func (r imageResolver) encodeProduct(e *jx.Encoder, id, name string, price decimal.Decimal, image string) {
	product.Product{ID: id, Name: name, Price: price, Image: r.resolve(image)}.Encode(e)
}

func (r imageResolver) encodeCartItem(e *jx.Encoder, it cart.Item) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(it.ID)
	e.FieldStart("itemId")
	e.Str(it.ID)
	e.FieldStart("productId")
	e.Str(it.ProductID)
	e.FieldStart("product")
	r.encodeProduct(e, it.ProductID, it.ProductName, it.UnitPrice, it.Image)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("unitPriceSnapshot")
	encodeDecimal(e, it.UnitPrice)
	e.ObjEnd()
}

func (r imageResolver) encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range c.Items {
		r.encodeCartItem(e, it)
	}
	e.ArrEnd()
	e.FieldStart("count")
	e.Int(c.Count())
	e.FieldStart("subtotal")
	encodeDecimal(e, c.Subtotal())
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.ObjStart()
	for _, f := range []struct{ k, v string }{
		{"fullName", a.FullName},
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"country", a.Country},
		{"zip", a.Zip},
		{"phone", a.Phone},
	} {
		e.FieldStart(f.k)
		e.Str(f.v)
	}
	e.ObjEnd()
}

func (r imageResolver) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(o.ID)
	e.FieldStart("user")
	e.Str(o.OwnerID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		encodeDecimal(e, it.UnitPrice)
		e.FieldStart("image")
		e.Str(r.resolve(it.Image))
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("product")
		r.encodeProduct(e, it.ProductID, it.Name, it.UnitPrice, it.Image)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("address")
	encodeAddress(e, o.Address)
	e.FieldStart("totalAmount")
	encodeDecimal(e, o.Total)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("createdAt")
	e.Str(formatTime(o.CreatedAt))
	e.FieldStart("updatedAt")
	e.Str(formatTime(o.UpdatedAt))
	e.ObjEnd()
}

func (r imageResolver) encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range orders {
		r.encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

// readBody reads a bounded JSON body. An empty body is an error.
func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest("request body too large")
		}
		return nil, errors.Wrap(err, "read body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, badRequest("request body is required")
	}
	return jx.DecodeBytes(data), nil
}

type addToCartRequest struct {
	ProductID string
	Quantity  int
}

func decodeAddToCart(d *jx.Decoder) (addToCartRequest, error) {
	req := addToCartRequest{Quantity: 1}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId":
			req.ProductID, err = d.Str()
		case "quantity":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, badRequest("invalid request body: %s", err)
	}
	if req.ProductID == "" {
		return req, badRequest("productId is required")
	}
	return req, nil
}

type updateCartRequest struct {
	ItemID string
	Delta  int
}

func decodeUpdateCart(d *jx.Decoder) (updateCartRequest, error) {
	var (
		req      updateCartRequest
		hasDelta bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "itemId":
			req.ItemID, err = d.Str()
		case "delta":
			req.Delta, err = d.Int()
			hasDelta = true
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, badRequest("invalid request body: %s", err)
	}
	if req.ItemID == "" {
		return req, badRequest("itemId is required")
	}
	if !hasDelta {
		return req, badRequest("delta is required")
	}
	return req, nil
}

type checkoutRequest struct {
	Address order.Address
	// ClientTotal is informational; the server computes the total.
	ClientTotal *decimal.Decimal
}

func decodeCheckout(d *jx.Decoder) (checkoutRequest, error) {
	var req checkoutRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "address":
			return decodeAddress(d, &req.Address)
		case "totalAmount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := product.DecodeDecimal(d)
			if err != nil {
				return err
			}
			req.ClientTotal = &v
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, badRequest("invalid request body: %s", err)
	}
	return req, nil
}

func decodeAddress(d *jx.Decoder, a *order.Address) error {
	fields := map[string]*string{
		"fullName": &a.FullName,
		"street":   &a.Street,
		"city":     &a.City,
		"state":    &a.State,
		"country":  &a.Country,
		"zip":      &a.Zip,
		"phone":    &a.Phone,
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		dst, ok := fields[string(key)]
		if !ok {
			return d.Skip()
		}
		// Clients sometimes send numeric zip or phone values.
		switch d.Next() {
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			*dst = n.String()
			return nil
		case jx.Null:
			return d.Null()
		default:
			v, err := d.Str()
			*dst = v
			return err
		}
	})
}

func decodeStatus(d *jx.Decoder) (order.Status, error) {
	var raw string
	var found bool
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "status" {
			return d.Skip()
		}
		found = true
		var err error
		raw, err = d.Str()
		return err
	})
	if err != nil {
		return "", badRequest("invalid request body: %s", err)
	}
	if !found {
		return "", badRequest("status is required")
	}
	return order.ParseStatus(raw)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
