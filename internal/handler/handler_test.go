package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/storage"
	"github.com/xenking/kart-orders/internal/storage/memory"
)

// --- Mock implementations ---

type brokenCartStore struct{}

func (brokenCartStore) Get(context.Context, string) (*cart.Cart, error) {
	return nil, storage.Wrap("get cart", errors.New("connection reset"))
}

func (brokenCartStore) Update(context.Context, string, func(c *cart.Cart) error) (*cart.Cart, error) {
	return nil, storage.Wrap("update cart", errors.New("connection reset"))
}

// --- Helpers ---

var (
	jwtSecret = []byte("test-secret")
	pepper    = []byte("pepper")
)

const adminKey = "ops-key"

type testServer struct {
	t    *testing.T
	mux  *http.ServeMux
	logs *observer.ObservedLogs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	return newTestServerWith(t, store, store)
}

func newTestServerWith(t *testing.T, carts cart.Store, orders *memory.Store) *testServer {
	t.Helper()
	catalog := memory.NewCatalog([]product.Product{
		{ID: "p1", Name: "Aviator", Price: decimal.RequireFromString("120.00"), Image: "images/aviator.png"},
		{ID: "p2", Name: "Round", Price: decimal.RequireFromString("80.50"), Image: "https://cdn.example/round.png"},
	})
	keys := memory.NewAPIKeys(auth.APIKeyInfo{
		ID:      "ops",
		KeyHash: hex.EncodeToString(HashAPIKey(pepper, adminKey)),
		Scopes:  []string{auth.ScopeOrdersAdmin},
	})

	h := NewHandler(
		HandlerConfig{ImageBaseURL: "https://static.example/"},
		cart.NewService(carts, catalog),
		order.NewService(orders),
		NewSecurityHandler(keys, pepper, jwtSecret),
		nil,
	)
	api := http.NewServeMux()
	h.Register(api)

	core, logs := observer.New(zap.DebugLevel)
	lg := zap.New(core)
	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), lg)))
	}))
	return &testServer{t: t, mux: mux, logs: logs}
}

func token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	tok, err := IssueToken(jwtSecret, auth.Identity{UserID: userID, Role: role}, time.Hour, time.Now())
	require.NoError(t, err)
	return "Bearer " + tok
}

func (ts *testServer) do(method, path, authz, body string) (*httptest.ResponseRecorder, map[string]any) {
	ts.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authz != "" {
		if strings.HasPrefix(authz, "Bearer ") {
			req.Header.Set("Authorization", authz)
		} else {
			req.Header.Set(APIKeyHeader, authz)
		}
	}
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(ts.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

const validAddress = `{"fullName":"Ann Lee","street":"1 Main St","city":"Austin","state":"TX","country":"US","zip":78701,"phone":"555-0100"}`

// --- Tests ---

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		authz string
		want  int
	}{
		{name: "missing", authz: "", want: http.StatusUnauthorized},
		{name: "garbage token", authz: "Bearer not-a-jwt", want: http.StatusUnauthorized},
		{name: "wrong api key", authz: "nope", want: http.StatusUnauthorized},
		{name: "valid token", authz: token(t, "u1", auth.RoleUser), want: http.StatusOK},
		{name: "valid api key", authz: adminKey, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := ts.do(http.MethodGet, "/api/cart", tt.authz, "")
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.EqualValues(t, 401, body["code"])
				assert.Equal(t, "not authenticated", body["message"])
			}
		})
	}

	t.Run("expired token", func(t *testing.T) {
		tok, err := IssueToken(jwtSecret, auth.Identity{UserID: "u1"}, time.Minute, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		w, _ := ts.do(http.MethodGet, "/api/cart", "Bearer "+tok, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		tok, err := IssueToken([]byte("other"), auth.Identity{UserID: "u1"}, time.Hour, time.Now())
		require.NoError(t, err)
		w, _ := ts.do(http.MethodGet, "/api/cart", "Bearer "+tok, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCartRoutes(t *testing.T) {
	ts := newTestServer(t)
	u1 := token(t, "u1", auth.RoleUser)

	w, body := ts.do(http.MethodPost, "/api/cart/add", u1, `{"productId":"p1","quantity":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Added to cart", body["message"])

	w, _ = ts.do(http.MethodPost, "/api/cart/add", u1, `{"productId":"p1","quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(http.MethodPost, "/api/cart/add", u1, `{"productId":"p2"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = ts.do(http.MethodGet, "/api/cart", u1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 6, body["count"])
	assert.EqualValues(t, 680.5, body["subtotal"])

	items := body["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, first["_id"], first["itemId"])
	assert.Equal(t, "p1", first["productId"])
	assert.EqualValues(t, 5, first["quantity"])
	assert.EqualValues(t, 120, first["unitPriceSnapshot"])
	prod := first["product"].(map[string]any)
	assert.Equal(t, "Aviator", prod["name"])
	assert.Equal(t, "https://static.example/images/aviator.png", prod["image"])
	second := items[1].(map[string]any)
	assert.Equal(t, "https://cdn.example/round.png", second["product"].(map[string]any)["image"])

	itemID := first["_id"].(string)

	w, body = ts.do(http.MethodPost, "/api/cart/update", u1, `{"itemId":"`+itemID+`","delta":-10}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["items"].([]any)[0].(map[string]any)["quantity"])

	w, body = ts.do(http.MethodDelete, "/api/cart/"+itemID, u1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Item removed from cart", body["message"])

	w, body = ts.do(http.MethodDelete, "/api/cart/"+itemID, u1, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "cart item not found", body["message"])

	t.Run("other users see their own cart", func(t *testing.T) {
		w, body := ts.do(http.MethodGet, "/api/cart", token(t, "u2", auth.RoleUser), "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, body["items"])
		assert.EqualValues(t, 0, body["count"])
	})
}

func TestCartRoutes_Errors(t *testing.T) {
	ts := newTestServer(t)
	u1 := token(t, "u1", auth.RoleUser)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "unknown product", method: http.MethodPost, path: "/api/cart/add", body: `{"productId":"nope"}`, want: http.StatusNotFound},
		{name: "zero quantity", method: http.MethodPost, path: "/api/cart/add", body: `{"productId":"p1","quantity":0}`, want: http.StatusBadRequest},
		{name: "missing product id", method: http.MethodPost, path: "/api/cart/add", body: `{"quantity":1}`, want: http.StatusBadRequest},
		{name: "malformed json", method: http.MethodPost, path: "/api/cart/add", body: `{"productId":`, want: http.StatusBadRequest},
		{name: "empty body", method: http.MethodPost, path: "/api/cart/add", body: ``, want: http.StatusBadRequest},
		{name: "update unknown item", method: http.MethodPost, path: "/api/cart/update", body: `{"itemId":"x","delta":1}`, want: http.StatusNotFound},
		{name: "update without delta", method: http.MethodPost, path: "/api/cart/update", body: `{"itemId":"x"}`, want: http.StatusBadRequest},
		{name: "unknown route", method: http.MethodGet, path: "/api/nothing", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := ts.do(tt.method, tt.path, u1, tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.EqualValues(t, tt.want, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestCheckout(t *testing.T) {
	ts := newTestServer(t)
	u1 := token(t, "u1", auth.RoleUser)

	w, body := ts.do(http.MethodPost, "/api/orders/checkout", u1, `{"address":`+validAddress+`}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "cart is empty", body["message"])

	_, _ = ts.do(http.MethodPost, "/api/cart/add", u1, `{"productId":"p1","quantity":2}`)

	w, body = ts.do(http.MethodPost, "/api/orders/checkout", u1, `{"address":{"fullName":"Ann"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "address field street is required", body["message"])

	w, body = ts.do(http.MethodPost, "/api/orders/checkout", u1,
		`{"items":[{"productId":"p1","quantity":99}],"address":`+validAddress+`,"totalAmount":1}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, body["_id"])
	assert.Equal(t, "u1", body["user"])
	assert.Equal(t, "Pending", body["status"])
	assert.EqualValues(t, 240, body["totalAmount"])
	assert.Equal(t, "78701", body["address"].(map[string]any)["zip"])
	assert.NotEmpty(t, body["createdAt"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, 2, items[0].(map[string]any)["quantity"])

	warned := ts.logs.FilterMessage("Client total differs from order total")
	assert.Equal(t, 1, warned.Len())

	w, body = ts.do(http.MethodGet, "/api/cart", u1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])
}

func TestCheckout_RejectsOutOfRangeTotal(t *testing.T) {
	ts := newTestServer(t)
	u1 := token(t, "u1", auth.RoleUser)
	_, _ = ts.do(http.MethodPost, "/api/cart/add", u1, `{"productId":"p1"}`)

	for _, total := range []string{`1e99999999`, `"1e-99999999"`, `123456789012345678901234567890123`} {
		w, body := ts.do(http.MethodPost, "/api/orders/checkout", u1, `{"address":`+validAddress+`,"totalAmount":`+total+`}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, total)
		assert.Contains(t, body["message"], "invalid request body", total)
	}

	w, body := ts.do(http.MethodGet, "/api/cart", u1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestOrderRoutes(t *testing.T) {
	ts := newTestServer(t)
	u1 := token(t, "u1", auth.RoleUser)
	u2 := token(t, "u2", auth.RoleUser)
	admin := token(t, "boss", auth.RoleAdmin)

	place := func(authz string) string {
		_, _ = ts.do(http.MethodPost, "/api/cart/add", authz, `{"productId":"p2"}`)
		w, body := ts.do(http.MethodPost, "/api/orders/checkout", authz, `{"address":`+validAddress+`}`)
		require.Equal(t, http.StatusCreated, w.Code)
		return body["_id"].(string)
	}
	first := place(u1)
	place(u2)
	second := place(u1)

	w, body := ts.do(http.MethodGet, "/api/orders/myorders", u1, "")
	require.Equal(t, http.StatusOK, w.Code)
	orders := body["orders"].([]any)
	require.Len(t, orders, 2)
	ids := []string{orders[0].(map[string]any)["_id"].(string), orders[1].(map[string]any)["_id"].(string)}
	assert.ElementsMatch(t, []string{first, second}, ids)

	w, _ = ts.do(http.MethodGet, "/api/orders/"+first, u1, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(http.MethodGet, "/api/orders/"+first, u2, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = ts.do(http.MethodGet, "/api/orders/"+first, admin, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(http.MethodGet, "/api/orders/missing", admin, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(http.MethodGet, "/api/admin/orders", u1, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, body = ts.do(http.MethodGet, "/api/admin/orders", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["orders"], 3)

	w, body = ts.do(http.MethodGet, "/api/admin/orders", adminKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["orders"], 3)
}

func TestAdminSetStatus(t *testing.T) {
	ts := newTestServer(t)
	u1 := token(t, "u1", auth.RoleUser)
	admin := token(t, "boss", auth.RoleAdmin)

	_, _ = ts.do(http.MethodPost, "/api/cart/add", u1, `{"productId":"p1"}`)
	_, body := ts.do(http.MethodPost, "/api/orders/checkout", u1, `{"address":`+validAddress+`}`)
	id := body["_id"].(string)
	path := "/api/admin/orders/" + id + "/status"

	w, _ := ts.do(http.MethodPut, path, u1, `{"status":"Processing"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = ts.do(http.MethodPut, path, admin, `{"status":"Delivered"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, body["message"], "Pending")

	w, body = ts.do(http.MethodPut, path, admin, `{"status":"Shipped"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, next := range []string{"Processing", "out for delivery", "Delivered"} {
		w, body = ts.do(http.MethodPut, path, admin, `{"status":"`+next+`"}`)
		require.Equal(t, http.StatusOK, w.Code, next)
	}
	assert.Equal(t, "Delivered", body["status"])

	w, _ = ts.do(http.MethodPut, path, adminKey, `{"status":"Cancelled"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = ts.do(http.MethodPut, "/api/admin/orders/missing/status", admin, `{"status":"Cancelled"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStorageFailureIsHidden(t *testing.T) {
	ts := newTestServerWith(t, brokenCartStore{}, memory.NewStore())

	w, body := ts.do(http.MethodGet, "/api/cart", token(t, "u1", auth.RoleUser), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", body["message"])

	logged := ts.logs.FilterMessage("Request failed").All()
	require.Len(t, logged, 1)
	assert.Equal(t, "u1", logged[0].ContextMap()["user"])
	assert.Contains(t, logged[0].ContextMap()["error"], "connection reset")
}

func TestImageResolver(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"", "a.png", "a.png"},
		{"https://s.example", "a.png", "https://s.example/a.png"},
		{"https://s.example/", "/img/a.png", "https://s.example/img/a.png"},
		{"https://s.example", "http://other/a.png", "http://other/a.png"},
		{"https://s.example", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, imageResolver{base: tt.base}.resolve(tt.ref))
	}
}
