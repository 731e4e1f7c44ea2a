package catalog

import (
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"

	"github.com/xenking/kart-orders/internal/domain/product"
)

// LoadFile reads a JSON array of products from path. Files ending in .gz are
// gunzipped on the fly.
func LoadFile(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open products file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return Load(r)
}

// Load reads a JSON array of products from r.
func Load(r io.Reader) ([]product.Product, error) {
	products, err := product.DecodeList(jx.Decode(r, 64*1024))
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return products, nil
}
