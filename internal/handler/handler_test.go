package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/foodcart/internal/auth"
	"github.com/xenking/foodcart/internal/domain/cart"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/product"
	"github.com/xenking/foodcart/internal/domain/user"
)

// --- In-memory storage ---

type memProducts struct {
	mu    sync.Mutex
	order []string
	byID  map[string]product.Product
}

func (m *memProducts) List(_ context.Context) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]product.Product, 0, len(m.order))
	for _, id := range m.order {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProducts) Create(_ context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID]; ok {
		return product.ErrInvalid
	}
	m.byID[p.ID] = *p
	m.order = append(m.order, p.ID)
	return nil
}

func (m *memProducts) Update(_ context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.byID[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	p.CreatedAt = old.CreatedAt
	m.byID[p.ID] = *p
	return nil
}

func (m *memProducts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return product.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memStore struct {
	mu     sync.Mutex
	carts  map[string]cart.Cart
	orders map[string]order.Order
	seq    []string
	users  *memUsers
}

type memCarts struct{ *memStore }

func (m memCarts) Get(_ context.Context, ownerID string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[ownerID]
	if !ok {
		return &cart.Cart{OwnerID: ownerID}, nil
	}
	c.Items = append([]cart.Item(nil), c.Items...)
	return &c, nil
}

func (m memCarts) Save(_ context.Context, c *cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.carts[c.OwnerID].Version != c.Version {
		return cart.ErrVersionConflict
	}
	c.Version++
	stored := *c
	stored.Items = append([]cart.Item(nil), c.Items...)
	m.carts[c.OwnerID] = stored
	return nil
}

type memOrders struct{ *memStore }

func (m memOrders) CreateFromCart(_ context.Context, o *order.Order, cartVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.users.GetByID(context.Background(), o.UserID); err != nil {
		return err
	}
	c := m.carts[o.UserID]
	if c.Version != cartVersion {
		return order.ErrCartChanged
	}
	c.Items, c.CouponCode = nil, ""
	c.Version++
	m.carts[o.UserID] = c
	m.orders[o.ID] = *o
	m.seq = append(m.seq, o.ID)
	return nil
}

func (m memOrders) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m memOrders) UpdateStatus(_ context.Context, id string, from, to order.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.DeliveryStatus != from {
		return order.ErrStatusConflict
	}
	o.DeliveryStatus, o.UpdatedAt = to, at
	m.orders[id] = o
	return nil
}

func (m memOrders) List(_ context.Context, f order.Filter) ([]order.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Summary
	for i := len(m.seq) - 1; i >= 0; i-- {
		o := m.orders[m.seq[i]]
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		var customer order.Customer
		if u, err := m.users.GetByID(context.Background(), o.UserID); err == nil {
			customer = order.Customer{Name: u.Name, Email: u.Email}
		}
		out = append(out, order.Summary{Order: o, Customer: customer})
	}
	return out, nil
}

type memUsers struct {
	mu   sync.Mutex
	byID map[string]user.User
}

func newMemUsers() *memUsers {
	m := &memUsers{byID: map[string]user.User{}}
	for id, u := range testUsers {
		m.byID[id] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) Upsert(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.byID {
		if other.ID != u.ID && other.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	m.byID[u.ID] = *u
	return nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memIdempotency) Reserve(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[scope+key]
	if !ok {
		m.keys[scope+key] = ""
		return "", true, nil
	}
	return v, false, nil
}

func (m *memIdempotency) Complete(_ context.Context, scope, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[scope+key] = orderID
	return nil
}

func (m *memIdempotency) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, scope+key)
	return nil
}

// --- Test server ---

var testUsers = map[string]user.User{
	"u1":    {ID: "u1", Name: "Asha", Email: "asha@example.com", Role: user.RoleCustomer},
	"u2":    {ID: "u2", Name: "Ravi", Email: "ravi@example.com", Role: user.RoleCustomer},
	"admin": {ID: "admin", Name: "Admin", Email: "admin@example.com", Role: user.RoleAdmin},
}

type testEnv struct {
	srv    *httptest.Server
	tokens map[string]string
	issuer *auth.Tokens
	users  *memUsers
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	products := &memProducts{byID: map[string]product.Product{}}
	for _, p := range []product.Product{
		{ID: "thali", Name: "Veg Thali", Price: d("400"), Category: "Mains", Image: "thali.jpg"},
		{ID: "kheer", Name: "Kheer", Price: d("100"), Category: "Desserts", Image: "kheer.jpg"},
	} {
		require.NoError(t, products.Create(context.Background(), &p))
	}

	pricing, err := product.NewPricing(map[string]decimal.Decimal{"desserts": d("10")})
	require.NoError(t, err)
	registry, err := coupon.NewStaticRegistry(coupon.DefaultRules()...)
	require.NoError(t, err)
	coupons := coupon.NewEvaluator(registry)

	users := newMemUsers()
	store := &memStore{carts: map[string]cart.Cart{}, orders: map[string]order.Order{}, users: users}
	carts := cart.NewService(memCarts{store}, products, pricing, coupons)
	orders := order.NewService(memCarts{store}, coupons, memOrders{store}, users, nil, order.Options{
		Idempotency: &memIdempotency{keys: map[string]string{}},
	})

	tokens, err := auth.NewTokens("handler-test-secret", "foodcart", time.Hour)
	require.NoError(t, err)

	h := New(Deps{
		Products: products,
		Pricing:  pricing,
		Carts:    carts,
		Orders:   orders,
		Coupons:  coupons,
		Tokens:   tokens,
		Users:    users,
	})
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	env := &testEnv{srv: srv, tokens: map[string]string{}, issuer: tokens, users: users}
	for _, u := range testUsers {
		env.login(t, u)
	}
	return env
}

// login issues a token for u without registering it with the user store.
func (env *testEnv) login(t *testing.T, u user.User) {
	t.Helper()
	raw, err := env.issuer.Issue(u)
	require.NoError(t, err)
	env.tokens[u.ID] = raw
}

type response struct {
	status int
	header http.Header
	body   any
}

func (r response) obj(t *testing.T) map[string]any {
	t.Helper()
	m, ok := r.body.(map[string]any)
	require.True(t, ok, "expected JSON object, got %T", r.body)
	return m
}

func (r response) arr(t *testing.T) []any {
	t.Helper()
	a, ok := r.body.([]any)
	require.True(t, ok, "expected JSON array, got %T", r.body)
	return a
}

func (env *testEnv) do(t *testing.T, method, path, as string, body any, headers ...string) response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+env.tokens[as])
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, header: resp.Header}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out.body))
	}
	return out
}

func requireError(t *testing.T, r response, status int, kind string) {
	t.Helper()
	require.Equal(t, status, r.status, "body: %v", r.body)
	body := r.obj(t)
	assert.Equal(t, float64(status), body["code"])
	assert.Equal(t, kind, body["error"])
	assert.NotEmpty(t, body["message"])
}

// --- Tests ---

func TestProducts_Public(t *testing.T) {
	env := newTestEnv(t)

	r := env.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, r.status)
	list := r.arr(t)
	require.Len(t, list, 2)
	kheer := list[1].(map[string]any)
	assert.Equal(t, "Kheer", kheer["name"])
	assert.Equal(t, 100.0, kheer["price"])
	assert.Equal(t, 90.0, kheer["discountPrice"])

	r = env.do(t, http.MethodGet, "/api/products?category=mains", "", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Len(t, r.arr(t), 1)

	r = env.do(t, http.MethodGet, "/api/products/thali", "", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "Veg Thali", r.obj(t)["name"])

	requireError(t, env.do(t, http.MethodGet, "/api/products/missing", "", nil), http.StatusNotFound, KindNotFound)
}

func TestProducts_AdminCRUD(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{
		"name":     "Gulab Jamun",
		"price":    "80",
		"category": "Desserts",
		"rating":   map[string]any{"average": 4.8, "count": 10},
		"metadata": map[string]any{"ingredients": []string{"khoya"}, "calories": 300, "veg": true},
	}

	requireError(t, env.do(t, http.MethodPost, "/api/products", "", body), http.StatusUnauthorized, KindAuth)
	requireError(t, env.do(t, http.MethodPost, "/api/products", "u1", body), http.StatusForbidden, KindAuth)

	r := env.do(t, http.MethodPost, "/api/products", "admin", body)
	require.Equal(t, http.StatusCreated, r.status, "body: %v", r.body)
	created := r.obj(t)
	id := created["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, 72.0, created["discountPrice"])

	body["price"] = "95.5"
	r = env.do(t, http.MethodPut, "/api/products/"+id, "admin", body)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, 95.5, r.obj(t)["price"])

	r = env.do(t, http.MethodDelete, "/api/products/"+id, "admin", nil)
	require.Equal(t, http.StatusNoContent, r.status)
	requireError(t, env.do(t, http.MethodDelete, "/api/products/"+id, "admin", nil), http.StatusNotFound, KindNotFound)
}

func TestProducts_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "unknown field", body: `{"name":"X","category":"Y","price":1,"colour":"red"}`},
		{name: "missing name", body: map[string]any{"category": "Y", "price": 1}},
		{name: "negative price", body: map[string]any{"name": "X", "category": "Y", "price": -1}},
		{name: "rating out of range", body: map[string]any{"name": "X", "category": "Y", "price": 1, "rating": map[string]any{"average": 6}}},
		{name: "malformed", body: `{"name":`},
		{name: "trailing data", body: `{"name":"X","category":"Y","price":1} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireError(t, env.do(t, http.MethodPost, "/api/products", "admin", tt.body), http.StatusBadRequest, KindValidation)
		})
	}
}

func TestCart_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	requireError(t, env.do(t, http.MethodGet, "/api/cart/get_cart_items", "", nil), http.StatusUnauthorized, KindAuth)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/cart/get_cart_items", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer forged")
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCart_Flow(t *testing.T) {
	env := newTestEnv(t)

	r := env.do(t, http.MethodPost, "/api/cart/add_item", "u1", map[string]any{"productId": "thali", "quantity": 2})
	require.Equal(t, http.StatusCreated, r.status, "body: %v", r.body)
	c := r.obj(t)
	items := c["items"].([]any)
	require.Len(t, items, 1)
	itemID := items[0].(map[string]any)["id"].(string)
	assert.Equal(t, 800.0, c["subtotal"])

	r = env.do(t, http.MethodPost, "/api/cart/add_item", "u1", map[string]any{"productId": "thali"})
	requireError(t, r, http.StatusBadRequest, KindConflict)

	r = env.do(t, http.MethodPatch, "/api/cart/update_cart_quantity", "u1", map[string]any{"itemId": itemID, "quantity": 0})
	requireError(t, r, http.StatusBadRequest, KindValidation)

	r = env.do(t, http.MethodPatch, "/api/cart/update_cart_quantity", "u1", map[string]any{"itemId": "nope", "quantity": 1})
	requireError(t, r, http.StatusNotFound, KindNotFound)

	r = env.do(t, http.MethodPost, "/api/cart/apply_coupon", "u1", map[string]any{"code": "save100"})
	require.Equal(t, http.StatusOK, r.status, "body: %v", r.body)
	c = r.obj(t)
	assert.Equal(t, "SAVE100", c["couponCode"])
	assert.Equal(t, 100.0, c["discount"])
	assert.Equal(t, 700.0, c["payable"])

	r = env.do(t, http.MethodPost, "/api/cart/apply_coupon", "u1", map[string]any{"code": "FIRST20"})
	requireError(t, r, http.StatusBadRequest, KindConflict)

	// Dropping below the minimum revokes the coupon.
	r = env.do(t, http.MethodPatch, "/api/cart/update_cart_quantity", "u1", map[string]any{"itemId": itemID, "quantity": 1})
	require.Equal(t, http.StatusOK, r.status)
	c = r.obj(t)
	assert.Equal(t, "", c["couponCode"])
	assert.Equal(t, "SAVE100", c["revokedCoupon"])
	assert.Equal(t, 400.0, c["payable"])

	r = env.do(t, http.MethodPost, "/api/cart/apply_coupon", "u1", map[string]any{"code": "FIRST20"})
	requireError(t, r, http.StatusBadRequest, KindValidation)

	// Carts are per user.
	r = env.do(t, http.MethodGet, "/api/cart/get_cart_items", "u2", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Empty(t, r.obj(t)["items"])

	requireError(t, env.do(t, http.MethodDelete, "/api/cart/delete_cart_item/Kheer", "u1", nil), http.StatusNotFound, KindNotFound)

	r = env.do(t, http.MethodDelete, "/api/cart/delete_cart_item/Veg%20Thali", "u1", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Empty(t, r.obj(t)["items"])

	r = env.do(t, http.MethodDelete, "/api/cart/clear_cart", "u1", nil)
	require.Equal(t, http.StatusOK, r.status)
}

func TestCart_DeleteItemByEscapedName(t *testing.T) {
	tests := []struct {
		name    string
		product string
		path    string
	}{
		{name: "reserved characters", product: "Mac & Cheese", path: "Mac%20%26%20Cheese"},
		{name: "plus and comma", product: "Dal+Rice, Large", path: "Dal%2BRice%2C%20Large"},
		{name: "literal percent", product: "100% Mango Lassi", path: "100%25%20Mango%20Lassi"},
		{name: "default escaping", product: "Paneer Tikka", path: "Paneer%20Tikka"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			r := env.do(t, http.MethodPost, "/api/products", "admin", map[string]any{
				"name": tt.product, "price": "250", "category": "Mains",
			})
			require.Equal(t, http.StatusCreated, r.status, "body: %v", r.body)
			productID := r.obj(t)["id"].(string)

			r = env.do(t, http.MethodPost, "/api/cart/add_item", "u1", map[string]any{"productId": productID})
			require.Equal(t, http.StatusCreated, r.status, "body: %v", r.body)

			r = env.do(t, http.MethodDelete, "/api/cart/delete_cart_item/"+tt.path, "u1", nil)
			require.Equal(t, http.StatusOK, r.status, "body: %v", r.body)
			assert.Empty(t, r.obj(t)["items"])
		})
	}
}

func TestOrders_Checkout(t *testing.T) {
	env := newTestEnv(t)

	requireError(t, env.do(t, http.MethodPost, "/api/orders", "u1", nil), http.StatusBadRequest, KindState)

	r := env.do(t, http.MethodPost, "/api/cart/add_item", "u1", map[string]any{"productId": "thali", "quantity": 2})
	require.Equal(t, http.StatusCreated, r.status)
	r = env.do(t, http.MethodPost, "/api/cart/add_item", "u1", map[string]any{"productId": "kheer", "quantity": 1})
	require.Equal(t, http.StatusCreated, r.status)
	r = env.do(t, http.MethodPost, "/api/cart/apply_coupon", "u1", map[string]any{"code": "SAVE100"})
	require.Equal(t, http.StatusOK, r.status)

	r = env.do(t, http.MethodPost, "/api/orders", "u1", nil, IdempotencyHeader, "checkout-1")
	require.Equal(t, http.StatusCreated, r.status, "body: %v", r.body)
	o := r.obj(t)
	orderID := o["id"].(string)
	assert.Equal(t, 890.0, o["subtotal"])
	assert.Equal(t, 100.0, o["discount"])
	assert.Equal(t, 790.0, o["totalAmount"])
	assert.Equal(t, "SAVE100", o["couponCode"])
	assert.Equal(t, "Pending", o["deliveryStatus"])
	assert.Len(t, o["items"], 2)

	r = env.do(t, http.MethodPost, "/api/orders", "u1", nil, IdempotencyHeader, "checkout-1")
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, orderID, r.obj(t)["id"])

	r = env.do(t, http.MethodGet, "/api/cart/get_cart_items", "u1", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Empty(t, r.obj(t)["items"])
	assert.Equal(t, "", r.obj(t)["couponCode"])

	r = env.do(t, http.MethodGet, "/api/orders/myorders", "u1", nil)
	require.Equal(t, http.StatusOK, r.status)
	require.Len(t, r.arr(t), 1)

	r = env.do(t, http.MethodGet, "/api/orders/myorders", "u2", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Empty(t, r.arr(t))

	r = env.do(t, http.MethodGet, "/api/orders/"+orderID, "u1", nil)
	require.Equal(t, http.StatusOK, r.status)
	requireError(t, env.do(t, http.MethodGet, "/api/orders/"+orderID, "u2", nil), http.StatusNotFound, KindNotFound)
	r = env.do(t, http.MethodGet, "/api/orders/"+orderID, "admin", nil)
	require.Equal(t, http.StatusOK, r.status)

	requireError(t, env.do(t, http.MethodGet, "/api/orders", "u1", nil), http.StatusForbidden, KindAuth)
	r = env.do(t, http.MethodGet, "/api/orders", "admin", nil)
	require.Equal(t, http.StatusOK, r.status)
	all := r.arr(t)
	require.Len(t, all, 1)
	owner := all[0].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "Asha", owner["name"])
	assert.Equal(t, "asha@example.com", owner["email"])
}

func TestOrders_CheckoutRegistersTokenUser(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, user.User{ID: "u9", Name: "Meera", Email: "meera@example.com", Role: user.RoleCustomer})

	r := env.do(t, http.MethodPost, "/api/cart/add_item", "u9", map[string]any{"productId": "kheer", "quantity": 2})
	require.Equal(t, http.StatusCreated, r.status, "body: %v", r.body)

	r = env.do(t, http.MethodPost, "/api/orders", "u9", nil)
	require.Equal(t, http.StatusCreated, r.status, "body: %v", r.body)

	u, err := env.users.GetByID(context.Background(), "u9")
	require.NoError(t, err)
	assert.Equal(t, "Meera", u.Name)
	assert.Equal(t, "meera@example.com", u.Email)
	assert.Equal(t, user.RoleCustomer, u.Role)

	r = env.do(t, http.MethodGet, "/api/orders", "admin", nil)
	require.Equal(t, http.StatusOK, r.status)
	owner := r.arr(t)[0].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "Meera", owner["name"])
}

func TestOrders_CheckoutKeepsExistingProfile(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, user.User{ID: "u1", Name: "Renamed", Email: "asha@example.com", Role: user.RoleCustomer})

	r := env.do(t, http.MethodPost, "/api/cart/add_item", "u1", map[string]any{"productId": "kheer"})
	require.Equal(t, http.StatusCreated, r.status)
	r = env.do(t, http.MethodPost, "/api/orders", "u1", nil)
	require.Equal(t, http.StatusCreated, r.status, "body: %v", r.body)

	u, err := env.users.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", u.Name)
}

func TestOrders_CheckoutEmailTaken(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, user.User{ID: "u8", Name: "Impostor", Email: "asha@example.com", Role: user.RoleCustomer})

	r := env.do(t, http.MethodPost, "/api/cart/add_item", "u8", map[string]any{"productId": "kheer"})
	require.Equal(t, http.StatusCreated, r.status)

	requireError(t, env.do(t, http.MethodPost, "/api/orders", "u8", nil), http.StatusConflict, KindConflict)

	r = env.do(t, http.MethodGet, "/api/cart/get_cart_items", "u8", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Len(t, r.obj(t)["items"], 1, "cart is kept")
}

func TestOrders_StatusLifecycle(t *testing.T) {
	env := newTestEnv(t)

	r := env.do(t, http.MethodPost, "/api/cart/add_item", "u1", map[string]any{"productId": "kheer", "quantity": 3})
	require.Equal(t, http.StatusCreated, r.status)
	r = env.do(t, http.MethodPost, "/api/orders", "u1", nil)
	require.Equal(t, http.StatusCreated, r.status)
	id := r.obj(t)["id"].(string)
	path := "/api/orders/" + id + "/status"

	requireError(t, env.do(t, http.MethodPatch, path, "u1", map[string]any{"status": "Shipped"}), http.StatusForbidden, KindAuth)
	requireError(t, env.do(t, http.MethodPatch, path, "admin", map[string]any{"status": "Lost"}), http.StatusBadRequest, KindValidation)
	requireError(t, env.do(t, http.MethodPatch, path, "admin", map[string]any{"status": "Delivered"}), http.StatusBadRequest, KindState)

	r = env.do(t, http.MethodPatch, path, "admin", map[string]any{"status": "Shipped"})
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "Shipped", r.obj(t)["deliveryStatus"])

	r = env.do(t, http.MethodPatch, path, "admin", map[string]any{"status": "Delivered"})
	require.Equal(t, http.StatusOK, r.status)

	requireError(t, env.do(t, http.MethodPatch, path, "admin", map[string]any{"status": "Pending"}), http.StatusBadRequest, KindState)

	r = env.do(t, http.MethodGet, "/api/orders/"+id, "u1", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "Delivered", r.obj(t)["deliveryStatus"])

	requireError(t, env.do(t, http.MethodPatch, "/api/orders/missing/status", "admin", map[string]any{"status": "Shipped"}), http.StatusNotFound, KindNotFound)
}

func TestCoupons_List(t *testing.T) {
	env := newTestEnv(t)

	r := env.do(t, http.MethodGet, "/api/coupons", "", nil)
	require.Equal(t, http.StatusOK, r.status)
	list := r.arr(t)
	require.Len(t, list, len(coupon.DefaultRules()))
	first := list[0].(map[string]any)
	assert.Equal(t, "FEAST15", first["code"])
	assert.Equal(t, "percentage", first["type"])
	assert.Equal(t, "2027-12-31", first["validTill"])
}
