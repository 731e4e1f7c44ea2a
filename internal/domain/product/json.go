package product

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode writes the product as a JSON object.
func (p Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.String()))
	e.FieldStart("image")
	e.Str(p.Image)
	e.ObjEnd()
}

// Decode reads a product object. Both "_id" and "id" are accepted, and price
// may be a number or a numeric string.
func (p *Product) Decode(d *jx.Decoder) error {
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "_id", "id":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "id")
			}
			p.ID = v
		case "name":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "name")
			}
			p.Name = v
		case "price":
			v, err := DecodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			if v.IsNegative() {
				return errors.Errorf("price %s is negative", v)
			}
			p.Price = v
		case "image":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "image")
			}
			p.Image = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "decode product")
	}
	if p.ID == "" {
		return errors.New("decode product: missing id")
	}
	return nil
}

// Limits for decoded decimals. Arithmetic on a decimal rescales it, so an
// unbounded exponent costs time proportional to its magnitude.
const (
	maxDecimalLen      = 64
	maxDecimalExponent = 18
	maxDecimalDigits   = 30
)

// DecodeDecimal reads a JSON number or numeric string as a decimal. Values
// with more than maxDecimalDigits digits or an exponent outside
// ±maxDecimalExponent are rejected.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = v
	case jx.Number:
		v, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = v.String()
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s", d.Next())
	}
	if len(raw) > maxDecimalLen {
		return decimal.Decimal{}, errors.Errorf("decimal is longer than %d characters", maxDecimalLen)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if exp := v.Exponent(); exp > maxDecimalExponent || exp < -maxDecimalExponent || v.NumDigits() > maxDecimalDigits {
		return decimal.Decimal{}, errors.Errorf("decimal %s is out of range", raw)
	}
	return v, nil
}

// DecodeList reads a JSON array of products.
func DecodeList(d *jx.Decoder) ([]Product, error) {
	var out []Product
	if err := d.Arr(func(d *jx.Decoder) error {
		var p Product
		if err := p.Decode(d); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}
