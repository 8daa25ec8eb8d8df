package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/events"
	"github.com/example/storefront-orders/internal/infrastructure/store/memory"
	"github.com/example/storefront-orders/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

// memoryKeys is an in-process IdempotencyStore.
type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryKeys) Claim(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, held := m.keys[key]; held {
		return id, false, nil
	}
	m.keys[key] = ""
	return "", true, nil
}

func (m *memoryKeys) Complete(_ context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *memoryKeys) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type testServer struct {
	handler http.Handler
	store   *memory.Store
	jwt     *auth.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memory.NewStore()
	st.PutProduct(catalog.Product{
		ID: "shirt", Name: "Home Shirt", Price: 5000,
		Inventory: []catalog.StockLevel{{Size: catalog.SizeM, Quantity: 3}},
	})

	pricer := order.NewPricer(st, st.Coupons(), order.DefaultCustomizationFee)
	cmd := command.NewHandler(pricer, st, st.Orders(), &events.Recorder{}, &memoryKeys{keys: map[string]string{}})
	qry := query.NewHandler(st.Orders(), st)
	jwtService := auth.NewJWTService(testSecret, 15*time.Minute)

	router := NewRouter(NewHandlers(cmd, qry), NewCouponHandlers(coupon.NewService(st.Coupons())), NewAuthHandlers(), jwtService)
	return &testServer{handler: router, store: st, jwt: jwtService}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, _, err := s.jwt.GenerateAccessToken(userID, userID+"@example.com", role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func orderBody(qty int, size string) map[string]any {
	return map[string]any{
		"items": []map[string]any{{"product_id": "shirt", "quantity": qty, "size": size}},
		"shipping_address": map[string]any{
			"address": "Av. Corrientes 1234", "city": "Buenos Aires", "postal_code": "C1043", "country": "AR",
		},
		"contact": "+5491100000000",
	}
}

func (s *testServer) placeOrder(t *testing.T, token string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/orders", token, orderBody(1, "M"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["id"].(string)
}

// ============================================
// Routing Tests
// ============================================

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestRouter_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/orders", "", orderBody(1, "M"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_Me(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/auth/me", s.token(t, "user-1", auth.RoleCustomer), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "user-1", body["user_id"])
	assert.Equal(t, auth.RoleCustomer, body["role"])
}

// ============================================
// Place Order Tests
// ============================================

func TestPlaceOrder_Created(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/orders", s.token(t, "user-1", auth.RoleCustomer), orderBody(2, "m"))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "user-1", body["user_id"])
	assert.InDelta(t, 100.0, body["total_amount"], 0.001)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/orders", s.token(t, "user-1", auth.RoleCustomer), orderBody(4, "M"))

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "insufficient_stock", body["error"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "Home Shirt", details["product_name"])
	assert.EqualValues(t, 3, details["available"])
	assert.EqualValues(t, 4, details["requested"])
}

func TestPlaceOrder_ValidationFailed(t *testing.T) {
	s := newTestServer(t)
	body := orderBody(0, "XXXL")
	body["shipping_address"] = map[string]any{"address": "x"}

	rec := s.do(t, http.MethodPost, "/api/orders", s.token(t, "user-1", auth.RoleCustomer), body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "validation_failed", resp["error"])
	details := resp["details"].(map[string]any)
	assert.Equal(t, "min=1", details["items[0].quantity"])
	assert.Contains(t, details, "items[0].size")
	assert.Equal(t, "required", details["shipping_address.city"])
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	s := newTestServer(t)
	body := orderBody(1, "M")
	body["items"] = []any{}

	rec := s.do(t, http.MethodPost, "/api/orders", s.token(t, "user-1", auth.RoleCustomer), body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_cart", decode(t, rec)["error"])
}

func TestPlaceOrder_MalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+s.token(t, "user-1", auth.RoleCustomer))
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decode(t, rec)["error"])
}

func TestPlaceOrder_IdempotencyKeyReplays(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "user-1", auth.RoleCustomer)

	first := s.do(t, http.MethodPost, "/api/orders", tok, orderBody(1, "M"), IdempotencyHeader, "abc")
	second := s.do(t, http.MethodPost, "/api/orders", tok, orderBody(1, "M"), IdempotencyHeader, "abc")

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, decode(t, first)["id"], decode(t, second)["id"])

	p, _ := s.store.Product("shirt")
	q, _ := p.StockFor(catalog.SizeM)
	assert.Equal(t, 2, q)
}

// ============================================
// Order Read Tests
// ============================================

func TestGetOrder_OwnerAdminAndStranger(t *testing.T) {
	s := newTestServer(t)
	id := s.placeOrder(t, s.token(t, "user-1", auth.RoleCustomer))
	path := "/api/orders/" + id

	owner := s.do(t, http.MethodGet, path, s.token(t, "user-1", auth.RoleCustomer), nil)
	admin := s.do(t, http.MethodGet, path, s.token(t, "admin-1", auth.RoleAdmin), nil)
	stranger := s.do(t, http.MethodGet, path, s.token(t, "user-2", auth.RoleCustomer), nil)

	require.Equal(t, http.StatusOK, owner.Code)
	items := decode(t, owner)["items"].([]any)
	assert.Equal(t, "Home Shirt", items[0].(map[string]any)["product_name"])
	assert.Equal(t, http.StatusOK, admin.Code)
	assert.Equal(t, http.StatusForbidden, stranger.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/orders/missing", s.token(t, "user-1", auth.RoleCustomer), nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order_not_found", decode(t, rec)["error"])
}

func TestListOrders_MineAndAdmin(t *testing.T) {
	s := newTestServer(t)
	s.placeOrder(t, s.token(t, "user-1", auth.RoleCustomer))
	s.placeOrder(t, s.token(t, "user-2", auth.RoleCustomer))

	mine := s.do(t, http.MethodGet, "/api/orders", s.token(t, "user-1", auth.RoleCustomer), nil)
	all := s.do(t, http.MethodGet, "/api/admin/orders", s.token(t, "admin-1", auth.RoleAdmin), nil)
	denied := s.do(t, http.MethodGet, "/api/admin/orders", s.token(t, "user-1", auth.RoleCustomer), nil)

	var mineList, allList []map[string]any
	require.NoError(t, json.Unmarshal(mine.Body.Bytes(), &mineList))
	require.NoError(t, json.Unmarshal(all.Body.Bytes(), &allList))
	assert.Len(t, mineList, 1)
	assert.Len(t, allList, 2)
	assert.Equal(t, http.StatusForbidden, denied.Code)
}

// ============================================
// Lifecycle Tests
// ============================================

func TestUpdateStatus_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	id := s.placeOrder(t, s.token(t, "user-1", auth.RoleCustomer))
	path := "/api/orders/" + id + "/status"

	denied := s.do(t, http.MethodPut, path, s.token(t, "user-1", auth.RoleCustomer), map[string]string{"status": "confirmed"})
	ok := s.do(t, http.MethodPut, path, s.token(t, "admin-1", auth.RoleAdmin), map[string]string{"status": "confirmed"})
	skip := s.do(t, http.MethodPut, path, s.token(t, "admin-1", auth.RoleAdmin), map[string]string{"status": "delivered"})
	unknown := s.do(t, http.MethodPut, path, s.token(t, "admin-1", auth.RoleAdmin), map[string]string{"status": "refunded"})

	assert.Equal(t, http.StatusForbidden, denied.Code)
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "confirmed", decode(t, ok)["status"])
	assert.Equal(t, true, decode(t, ok)["whatsapp_notified"])
	require.Equal(t, http.StatusConflict, skip.Code)
	assert.Equal(t, "illegal_transition", decode(t, skip)["error"])
	assert.Equal(t, http.StatusBadRequest, unknown.Code)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "user-1", auth.RoleCustomer)
	id := s.placeOrder(t, tok)

	stranger := s.do(t, http.MethodPut, "/api/orders/"+id+"/cancel", s.token(t, "user-2", auth.RoleCustomer), nil)
	first := s.do(t, http.MethodPut, "/api/orders/"+id+"/cancel", tok, nil)
	again := s.do(t, http.MethodPut, "/api/orders/"+id+"/cancel", tok, nil)

	assert.Equal(t, http.StatusForbidden, stranger.Code)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "cancelled", decode(t, first)["status"])
	assert.Equal(t, http.StatusConflict, again.Code)

	p, _ := s.store.Product("shirt")
	q, _ := p.StockFor(catalog.SizeM)
	assert.Equal(t, 3, q)
}

func TestUpdateShipping_LockedAfterConfirm(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "user-1", auth.RoleCustomer)
	id := s.placeOrder(t, tok)
	path := "/api/orders/" + id + "/shipping"

	ok := s.do(t, http.MethodPut, path, tok, map[string]any{"contact": "+5491199999999"})
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "+5491199999999", decode(t, ok)["contact"])

	confirm := s.do(t, http.MethodPut, "/api/orders/"+id+"/status", s.token(t, "admin-1", auth.RoleAdmin),
		map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, confirm.Code)

	locked := s.do(t, http.MethodPut, path, tok, map[string]any{"contact": "+1"})
	require.Equal(t, http.StatusConflict, locked.Code)
	body := decode(t, locked)
	assert.Equal(t, "order_locked", body["error"])
	assert.Equal(t, "confirmed", body["details"].(map[string]any)["current_status"])
}

// ============================================
// Coupon Tests
// ============================================

func TestCoupons_AdminCreateAndValidate(t *testing.T) {
	s := newTestServer(t)
	adminTok := s.token(t, "admin-1", auth.RoleAdmin)
	payload := map[string]any{
		"code":           " save10 ",
		"discount_type":  "percentage",
		"discount_value": 10,
		"expiry_date":    time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"min_purchase":   50,
	}

	created := s.do(t, http.MethodPost, "/api/admin/coupons", adminTok, payload)
	duplicate := s.do(t, http.MethodPost, "/api/admin/coupons", adminTok, payload)
	denied := s.do(t, http.MethodPost, "/api/admin/coupons", s.token(t, "user-1", auth.RoleCustomer), payload)

	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	assert.Equal(t, "SAVE10", decode(t, created)["code"])
	assert.Equal(t, "duplicate_coupon_code", decode(t, duplicate)["error"])
	assert.Equal(t, http.StatusForbidden, denied.Code)

	quote := s.do(t, http.MethodPost, "/api/coupons/validate", s.token(t, "user-1", auth.RoleCustomer),
		map[string]any{"coupon_code": "save10", "subtotal": 100})
	require.Equal(t, http.StatusOK, quote.Code, quote.Body.String())
	assert.InDelta(t, 10.0, decode(t, quote)["discount_amount"], 0.001)

	short := s.do(t, http.MethodPost, "/api/coupons/validate", s.token(t, "user-1", auth.RoleCustomer),
		map[string]any{"coupon_code": "SAVE10", "subtotal": 20})
	require.Equal(t, http.StatusBadRequest, short.Code)
	assert.Equal(t, "coupon_minimum_not_met", decode(t, short)["error"])
}

func TestCoupons_ValidateWithoutToken(t *testing.T) {
	s := newTestServer(t)
	adminTok := s.token(t, "admin-1", auth.RoleAdmin)
	created := s.do(t, http.MethodPost, "/api/admin/coupons", adminTok, map[string]any{
		"code": "GUEST5", "discount_type": "fixed", "discount_value": 5,
		"expiry_date": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	quote := s.do(t, http.MethodPost, "/api/coupons/validate", "",
		map[string]any{"coupon_code": "guest5", "subtotal": 40})
	require.Equal(t, http.StatusOK, quote.Code, quote.Body.String())
	assert.InDelta(t, 5.0, decode(t, quote)["discount_amount"], 0.001)

	listed := s.do(t, http.MethodGet, "/api/admin/coupons", "", nil)
	assert.Equal(t, http.StatusUnauthorized, listed.Code)
}

func TestCoupons_UpdateAndDelete(t *testing.T) {
	s := newTestServer(t)
	adminTok := s.token(t, "admin-1", auth.RoleAdmin)
	created := s.do(t, http.MethodPost, "/api/admin/coupons", adminTok, map[string]any{
		"code": "FIVE", "discount_type": "fixed", "discount_value": 5,
		"expiry_date": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	id := decode(t, created)["id"].(string)

	updated := s.do(t, http.MethodPut, "/api/admin/coupons/"+id, adminTok, map[string]any{"is_active": false, "usage_limit": 3})
	require.Equal(t, http.StatusOK, updated.Code, updated.Body.String())
	body := decode(t, updated)
	assert.Equal(t, false, body["is_active"])
	assert.EqualValues(t, 3, body["usage_limit"])

	invalid := s.do(t, http.MethodPut, "/api/admin/coupons/"+id, adminTok, map[string]any{"discount_type": "bogus"})
	assert.Equal(t, http.StatusBadRequest, invalid.Code)

	deleted := s.do(t, http.MethodDelete, "/api/admin/coupons/"+id, adminTok, nil)
	missing := s.do(t, http.MethodDelete, "/api/admin/coupons/"+id, adminTok, nil)
	assert.Equal(t, http.StatusOK, deleted.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

// ============================================
// Error Mapping Tests
// ============================================

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{command.ErrRequestInProgress, http.StatusConflict, "request_in_progress"},
		{fmt.Errorf("wrapped: %w", order.ErrStaleOrder), http.StatusConflict, "stale_order"},
		{fmt.Errorf("%w: %w", order.ErrRestitutionFailed, errors.New("db down")), http.StatusServiceUnavailable, "restitution_failed"},
		{coupon.ErrInvalidUsageLimit, http.StatusBadRequest, "invalid_request"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	writeError(rec, req, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["message"])
}
