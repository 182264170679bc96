package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Parthik04-cyber/shopbackend/internal/auth"
	"github.com/Parthik04-cyber/shopbackend/internal/lifecycle"
	"github.com/Parthik04-cyber/shopbackend/internal/orders"
	"github.com/Parthik04-cyber/shopbackend/internal/validation"
)

const (
	testSecret = "handler-secret"
	testAdmin  = "ops@shop.test"
)

type stubService struct {
	direct    validation.DirectOrderRequest
	directKey string
	placement lifecycle.Placement
	otpReq    validation.OTPOrderRequest
	verified  [2]string
	statusSet [2]string
	listFor   string
	list      []orders.Order
	resent    string
	err       error
}

func (s *stubService) PlaceDirect(_ context.Context, req validation.DirectOrderRequest, key string) (lifecycle.Placement, error) {
	s.direct, s.directKey = req, key
	return s.placement, s.err
}

func (s *stubService) PlaceWithOTP(_ context.Context, req validation.OTPOrderRequest) (lifecycle.Placement, error) {
	s.otpReq = req
	return s.placement, s.err
}

func (s *stubService) ResendOTP(_ context.Context, orderID string) error {
	s.resent = orderID
	return s.err
}

func (s *stubService) VerifyOTP(_ context.Context, orderID, code string) (orders.Order, error) {
	s.verified = [2]string{orderID, code}
	return orders.Order{OrderID: orderID, Status: orders.StatusConfirmed}, s.err
}

func (s *stubService) UpdateStatus(_ context.Context, orderID, status string) error {
	s.statusSet = [2]string{orderID, status}
	return s.err
}

func (s *stubService) ListAll(context.Context) ([]orders.Order, error) {
	return s.list, s.err
}

func (s *stubService) ListForCustomer(_ context.Context, customerID string) ([]orders.Order, error) {
	s.listFor = customerID
	return s.list, s.err
}

func newTestRouter(svc OrderService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterOrdersRoutes(r, HandlerConfig{
		Service: svc,
		Auth:    auth.NewVerifier(auth.Config{Secret: testSecret, AdminEmail: testAdmin}),
	})
	return r
}

func userToken(t *testing.T, id string) string {
	t.Helper()
	tok, err := auth.Issue(testSecret, auth.Claims{ID: id}, time.Hour)
	require.NoError(t, err)
	return tok
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok, err := auth.Issue(testSecret, auth.Claims{Email: testAdmin, Admin: true}, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, r http.Handler, method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("token", token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func placeBody() map[string]interface{} {
	return map[string]interface{}{
		"items":  []map[string]interface{}{{"sku": "A", "qty": 2}},
		"amount": 40,
		"address": map[string]string{
			"firstName": "Asha", "lastName": "Rao", "email": "asha@example.com",
			"street": "1 MG Road", "city": "Pune", "state": "MH", "zipcode": "411001",
			"country": "IN", "phone": "9999999999",
		},
	}
}

func TestPlaceRoutes_TagPaymentMethodAndUseTokenIdentity(t *testing.T) {
	cases := map[string]string{
		"/api/order/place":    "COD",
		"/api/order/stripe":   "Stripe",
		"/api/order/razorpay": "Razorpay",
	}
	for path, method := range cases {
		t.Run(method, func(t *testing.T) {
			svc := &stubService{placement: lifecycle.Placement{OrderID: "o1", Status: orders.StatusOrderPlaced}}
			r := newTestRouter(svc)

			w, body := do(t, r, http.MethodPost, path, userToken(t, "u1"), placeBody(), "Idempotency-Key", "k1")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, "Order Placed", body["message"])
			assert.Equal(t, "o1", body["orderId"])

			assert.Equal(t, method, svc.direct.PaymentMethod)
			assert.Equal(t, "u1", svc.direct.CustomerIdentity)
			assert.Equal(t, "k1", svc.directKey)
			assert.Equal(t, 40.0, svc.direct.Amount)
			require.NotNil(t, svc.direct.Address)
			assert.Equal(t, "Pune", svc.direct.Address.City)
		})
	}
}

func TestPlace_RequiresToken(t *testing.T) {
	svc := &stubService{}
	r := newTestRouter(svc)

	w, body := do(t, r, http.MethodPost, "/api/order/place", "", placeBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, auth.MsgNoToken, body["message"])
	assert.Empty(t, svc.direct.CustomerIdentity)
}

func TestPlace_ReplayHeader(t *testing.T) {
	svc := &stubService{placement: lifecycle.Placement{OrderID: "o1", Replayed: true}}
	r := newTestRouter(svc)

	w, _ := do(t, r, http.MethodPost, "/api/order/place", userToken(t, "u1"), placeBody(), "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
}

func TestMalformedBody(t *testing.T) {
	r := newTestRouter(&stubService{})
	w, body := do(t, r, http.MethodPost, "/api/order/place-otp", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{&lifecycle.ValidationError{Message: validation.MsgMissingFields}, http.StatusBadRequest, validation.MsgMissingFields},
		{lifecycle.ErrInvalidOrExpired, http.StatusBadRequest, "Invalid or expired OTP"},
		{lifecycle.ErrNotFound, http.StatusNotFound, "Order not found"},
		{lifecycle.ErrNotPending, http.StatusConflict, "Order is not awaiting OTP verification"},
		{lifecycle.ErrRequestInProgress, http.StatusConflict, "Request already in progress"},
		{fmt.Errorf("verify otp: %w: %w", lifecycle.ErrDependency, errors.New("throttled")), http.StatusInternalServerError, "Something went wrong. Please try again."},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			r := newTestRouter(&stubService{err: tc.err})
			w, body := do(t, r, http.MethodPost, "/api/order/verify-otp", "", map[string]string{"orderId": "o1", "otp": "123456"})
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.message, body["message"])
		})
	}
}

func TestPlaceOTP_FailureCarriesOrderID(t *testing.T) {
	svc := &stubService{
		placement: lifecycle.Placement{OrderID: "o9", Status: orders.StatusPendingOTP},
		err:       fmt.Errorf("send otp: %w: %w", lifecycle.ErrDependency, errors.New("ses down")),
	}
	r := newTestRouter(svc)

	w, body := do(t, r, http.MethodPost, "/api/order/place-otp", "", map[string]interface{}{
		"items": []map[string]interface{}{{"sku": "B"}}, "total": 25, "customerIdentity": "c@x.com",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "o9", body["orderId"])
	assert.Equal(t, "c@x.com", svc.otpReq.CustomerIdentity)
	assert.Equal(t, 25.0, svc.otpReq.Total)
}

func TestVerifyAndResend(t *testing.T) {
	svc := &stubService{}
	r := newTestRouter(svc)

	w, body := do(t, r, http.MethodPost, "/api/order/verify-otp", "", map[string]string{"orderId": "o1", "otp": "004213"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Order confirmed", body["message"])
	assert.Equal(t, [2]string{"o1", "004213"}, svc.verified)

	w, _ = do(t, r, http.MethodPost, "/api/order/resend-otp", "", map[string]string{"orderId": "o1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "o1", svc.resent)
}

func TestAdminRoutes(t *testing.T) {
	svc := &stubService{list: []orders.Order{{OrderID: "o1", Status: "Shipped"}}}
	r := newTestRouter(svc)

	w, body := do(t, r, http.MethodGet, "/api/order/list", adminToken(t), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["orders"], 1)

	w, body = do(t, r, http.MethodPost, "/api/order/status", adminToken(t), map[string]string{"orderId": "o1", "status": "Shipped"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Status Updated", body["message"])
	assert.Equal(t, [2]string{"o1", "Shipped"}, svc.statusSet)

	w, _ = do(t, r, http.MethodGet, "/api/order/list", userToken(t, "u1"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserOrders(t *testing.T) {
	svc := &stubService{}
	r := newTestRouter(svc)

	w, body := do(t, r, http.MethodPost, "/api/order/userorders", userToken(t, "u7"), map[string]string{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u7", svc.listFor)
	assert.Equal(t, []interface{}{}, body["orders"])
}
