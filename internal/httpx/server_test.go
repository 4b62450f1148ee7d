package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/appointments"
	"github.com/ariefcatur/storefront-orders/internal/auth"
	"github.com/ariefcatur/storefront-orders/internal/inventory"
	"github.com/ariefcatur/storefront-orders/internal/memstore"
	"github.com/ariefcatur/storefront-orders/internal/orders"
)

const jwtSecret = "handler-secret"

type memCache struct {
	mu     sync.Mutex
	idem   map[string]string
	orders map[string][]byte
	hits   int
}

func newMemCache() *memCache {
	return &memCache{idem: map[string]string{}, orders: map[string][]byte{}}
}

func (c *memCache) ReserveOrder(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.idem[key]; ok {
		return id, false, nil
	}
	c.idem[key] = ""
	return "", true, nil
}

func (c *memCache) ReleaseOrder(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.idem, key)
	return nil
}

func (c *memCache) RememberOrder(_ context.Context, key, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idem[key] = orderID
	return nil
}

func (c *memCache) GetOrder(_ context.Context, idOrRef string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.orders[idOrRef]
	if ok {
		c.hits++
	}
	return b, ok, nil
}

func (c *memCache) PutOrder(_ context.Context, idOrRef string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[idOrRef] = body
	return nil
}

func (c *memCache) EvictOrder(_ context.Context, idsOrRefs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range idsOrRefs {
		delete(c.orders, k)
	}
	return nil
}

func (c *memCache) cached(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.orders[key]
	return ok
}

type server struct {
	t     *testing.T
	h     http.Handler
	cache *memCache
	token string
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := memstore.New()
	ledger := inventory.NewLedger(inventory.LedgerDeps{})
	verifier := auth.NewVerifier(jwtSecret, "storefront", "storefront-admin")
	cache := newMemCache()

	r := NewRouter(zap.NewNop())
	(&OrdersHandler{
		Orders:   orders.NewService(orders.Deps{Store: store, Ledger: ledger}),
		Cache:    cache,
		Verifier: verifier,
	}).Register(r)
	(&ProductsHandler{
		Products: &inventory.Service{Store: store, Ledger: ledger},
		Verifier: verifier,
	}).Register(r)
	(&AppointmentsHandler{
		Appointments: &appointments.Service{Store: store},
		Verifier:     verifier,
	}).Register(r)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role: auth.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			Issuer:    "storefront",
			Audience:  jwt.ClaimStrings{"storefront-admin"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return &server{t: t, h: r, cache: cache, token: signed}
}

func (s *server) do(method, path string, body any, admin bool, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *server) product(code string, qty int) inventory.Product {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/products", map[string]any{
		"code": code, "name": "Frame " + code, "category": "frames", "price": "12500", "quantity": qty,
	}, true)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[inventory.Product](s.t, rec)
}

func orderBody(productID string, qty int) map[string]any {
	return map[string]any{
		"items":    []map[string]any{{"product_id": productID, "qty": qty}},
		"customer": map[string]any{"full_name": "Ada Obi", "phone": "08030000000"},
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)
	p := s.product("FR-1", 3)

	rec := s.do(http.MethodPost, "/orders", orderBody(p.ID, 2), false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[CreateOrderResp](t, rec)
	assert.False(t, created.Idempotent)
	assert.Equal(t, "25000", created.Total.String())
	assert.True(t, strings.HasPrefix(created.Ref, "GLS-"))

	rec = s.do(http.MethodGet, "/orders/"+strings.ToLower(created.Ref), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.cache.cached(created.Ref))
	rec = s.do(http.MethodGet, "/orders/ref/"+created.Ref, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.cache.hits)

	rec = s.do(http.MethodPost, "/orders/"+created.ID+"/mark-paid", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[orders.TransitionResult](t, rec)
	assert.Equal(t, orders.StatusPaid, res.Order.Status)
	assert.Equal(t, orders.StatusPending, res.From)
	assert.False(t, s.cache.cached(created.Ref), "snapshot evicted after transition")

	rec = s.do(http.MethodGet, "/products/"+p.ID, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[inventory.Product](t, rec).AvailableQuantity)

	rec = s.do(http.MethodPost, "/orders/"+created.ID+"/mark-paid", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeAlreadyPaid, decodeBody[errorBody](t, rec).Error)

	rec = s.do(http.MethodPut, "/orders/"+created.ID, map[string]any{"status": "Cancelled"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodGet, "/products/"+p.ID, nil, false)
	assert.Equal(t, 3, decodeBody[inventory.Product](t, rec).AvailableQuantity)

	rec = s.do(http.MethodDelete, "/orders/"+created.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/orders/"+created.ID, nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	s := newServer(t)
	p := s.product("FR-2", 5)

	first := s.do(http.MethodPost, "/orders", orderBody(p.ID, 1), false, "Idempotency-Key", "checkout-42")
	require.Equal(t, http.StatusCreated, first.Code)
	second := s.do(http.MethodPost, "/orders", orderBody(p.ID, 1), false, "Idempotency-Key", "checkout-42")
	require.Equal(t, http.StatusOK, second.Code)

	a := decodeBody[CreateOrderResp](t, first)
	b := decodeBody[CreateOrderResp](t, second)
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, b.Idempotent)

	rec := s.do(http.MethodGet, "/orders", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]orders.Order](t, rec), 1)
}

func TestCreateOrderIdempotencyKeyInFlight(t *testing.T) {
	s := newServer(t)
	p := s.product("FR-5", 5)
	_, reserved, err := s.cache.ReserveOrder(context.Background(), "checkout-7")
	require.NoError(t, err)
	require.True(t, reserved)

	rec := s.do(http.MethodPost, "/orders", orderBody(p.ID, 1), false, "Idempotency-Key", "checkout-7")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, apperr.CodeIdempotencyInFlight, decodeBody[errorBody](t, rec).Error)

	rec = s.do(http.MethodGet, "/orders", nil, true)
	assert.Empty(t, decodeBody[[]orders.Order](t, rec))
}

func TestCreateOrderIdempotencyKeyConcurrent(t *testing.T) {
	s := newServer(t)
	p := s.product("FR-6", 10)

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = s.do(http.MethodPost, "/orders", orderBody(p.ID, 1), false, "Idempotency-Key", "checkout-9").Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		if c == http.StatusCreated {
			created++
			continue
		}
		assert.Contains(t, []int{http.StatusOK, http.StatusConflict}, c)
	}
	assert.Equal(t, 1, created)

	rec := s.do(http.MethodGet, "/orders", nil, true)
	assert.Len(t, decodeBody[[]orders.Order](t, rec), 1)
	rec = s.do(http.MethodGet, "/products/"+p.ID, nil, false)
	assert.Equal(t, 9, decodeBody[inventory.Product](t, rec).AvailableQuantity)
}

func TestCreateOrderFailureReleasesIdempotencyKey(t *testing.T) {
	s := newServer(t)
	p := s.product("FR-7", 1)

	rec := s.do(http.MethodPost, "/orders", orderBody(p.ID, 2), false, "Idempotency-Key", "checkout-11")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperr.KindInsufficientStock), decodeBody[errorBody](t, rec).Error)

	rec = s.do(http.MethodPost, "/orders", orderBody(p.ID, 1), false, "Idempotency-Key", "checkout-11")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[CreateOrderResp](t, rec).Idempotent)
}

func TestInsufficientStockEnvelope(t *testing.T) {
	s := newServer(t)
	p := s.product("FR-3", 1)

	rec := s.do(http.MethodPost, "/orders", orderBody(p.ID, 4), false)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, string(apperr.KindInsufficientStock), body.Error)
	assert.Equal(t, http.StatusConflict, body.Status)
	assert.NotEmpty(t, body.RequestID)
	require.Len(t, body.Details, 1)
	assert.Equal(t, 4, body.Details[0].Requested)
	assert.Equal(t, 1, body.Details[0].Available)
}

func TestCreateOrderRejectsBadJSON(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":`))
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newServer(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/orders"},
		{http.MethodPost, "/orders/x/mark-paid"},
		{http.MethodPut, "/orders/x"},
		{http.MethodDelete, "/orders/x"},
		{http.MethodPost, "/products"},
		{http.MethodPost, "/products/x/stock"},
		{http.MethodGet, "/appointments"},
		{http.MethodPut, "/appointments/x/status"},
	} {
		rec := s.do(tc.method, tc.path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestStockAdjustAndDeactivate(t *testing.T) {
	s := newServer(t)
	p := s.product("FR-4", 0)

	rec := s.do(http.MethodPost, "/products/"+p.ID+"/stock", map[string]any{"delta": 4, "note": "restock"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decodeBody[inventory.Change](t, rec)
	assert.Equal(t, 4, c.Current)
	assert.True(t, c.InStock)

	rec = s.do(http.MethodPost, "/products/"+p.ID+"/active", map[string]any{"active": false}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/orders", orderBody(p.ID, 1), false)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAppointmentBooking(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodPost, "/appointments", map[string]any{
		"first_name": "Ada", "last_name": "Obi", "email": "ada@mail.com", "phone": "0803",
		"service": "Eye exam", "date": "2025-11-03", "slot": "10:00",
	}, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeBody[appointments.Appointment](t, rec)
	assert.True(t, strings.HasPrefix(a.Ref, "CEC-"))
	assert.Equal(t, appointments.ContactWhatsApp, a.ContactPref)

	rec = s.do(http.MethodPut, "/appointments/"+a.ID+"/status", map[string]any{"status": "confirmed"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointments.StatusConfirmed, decodeBody[appointments.Appointment](t, rec).Status)
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("op", "bad"), http.StatusBadRequest},
		{apperr.NotFound("op", "missing"), http.StatusNotFound},
		{apperr.Conflict("op", apperr.CodeVersionMismatch, "raced"), http.StatusConflict},
		{apperr.InsufficientStock("op", nil), http.StatusConflict},
		{apperr.Forbidden("op", "no"), http.StatusForbidden},
		{apperr.Unavailable("op", errors.New("dial tcp")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) { writeError(w, r, tc.err) })
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
		body := decodeBody[errorBody](t, rec)
		assert.NotEmpty(t, body.RequestID)
		if tc.want >= http.StatusInternalServerError {
			assert.NotContains(t, body.Message, "dial tcp")
			assert.NotContains(t, body.Message, "boom")
		}
	}
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
