package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	bookingRepo "travelpay/database/repository/booking"
	"travelpay/middleware"
	"travelpay/models"
	"travelpay/services/payment"
	"travelpay/services/payment/stripecheckout"
	"travelpay/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const publicBase = "https://tours.example.com"

type mockSubmitter struct{ mock.Mock }

func (m *mockSubmitter) Submit(ctx context.Context, ref, gateway string) (*payment.SubmitResult, error) {
	args := m.Called(ref, gateway)
	res, _ := args.Get(0).(*payment.SubmitResult)
	return res, args.Error(1)
}

type mockReconciler struct{ mock.Mock }

func (m *mockReconciler) HandleCallback(ctx context.Context, gateway, trackingID, ref string) (*payment.ReconcileResult, error) {
	args := m.Called(gateway, trackingID, ref)
	res, _ := args.Get(0).(*payment.ReconcileResult)
	return res, args.Error(1)
}

func (m *mockReconciler) ApplyPushNotification(ctx context.Context, n payment.PushNotification) (*payment.ReconcileResult, error) {
	args := m.Called(n)
	res, _ := args.Get(0).(*payment.ReconcileResult)
	return res, args.Error(1)
}

func (m *mockReconciler) Cancel(ctx context.Context, ref, by string) (*payment.ReconcileResult, error) {
	args := m.Called(ref, by)
	res, _ := args.Get(0).(*payment.ReconcileResult)
	return res, args.Error(1)
}

type stubWebhooks struct {
	event *stripecheckout.WebhookEvent
	err   error
}

func (s stubWebhooks) ParseWebhook([]byte, string) (*stripecheckout.WebhookEvent, error) {
	return s.event, s.err
}

type stubQueue struct {
	ref, by string
	err     error
}

func (q *stubQueue) EnqueueReconcile(_ context.Context, ref, by string) (string, error) {
	q.ref, q.by = ref, by
	if q.err != nil {
		return "", q.err
	}
	return "task-42", nil
}

func settled(ref string, status models.BookingStatus, changed bool) *payment.ReconcileResult {
	return &payment.ReconcileResult{
		Booking:  &models.Booking{Ref: ref, Status: status},
		Previous: models.BookingPending,
		Changed:  changed,
	}
}

func serve(r http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func paymentRouter(s Submitter, rec Reconciler, hooks WebhookParser) *gin.Engine {
	h := NewPaymentHandler(s, rec, hooks, publicBase, zap.NewNop())
	r := gin.New()
	r.Use(middleware.RequestLogger(zap.NewNop()))
	r.POST("/api/payments/checkout", h.CheckoutHandler)
	r.GET("/pay/:ref", h.PayRedirectHandler)
	r.GET("/api/payments/pesapal/callback", h.PesapalCallbackHandler)
	r.GET("/api/payments/pesapal/ipn", h.PesapalIPNHandler)
	r.POST("/api/payments/pesapal/ipn", h.PesapalIPNHandler)
	r.GET("/api/payments/paypal/callback", h.PaypalCallbackHandler)
	r.GET("/api/payments/paypal/cancel", h.CancelReturnHandler("paypal"))
	r.GET("/api/payments/stripe/callback", h.StripeCallbackHandler)
	r.POST("/api/payments/stripe/webhook", h.StripeWebhookHandler)
	return r
}

func TestCheckout(t *testing.T) {
	s := &mockSubmitter{}
	s.On("Submit", "SEV-1001", "").Return(&payment.SubmitResult{
		BookingRef:      "SEV-1001",
		Gateway:         "pesapal",
		ProviderOrderID: "trk-1",
		RedirectURL:     "https://pay.pesapal.com/iframe?OrderTrackingId=trk-1",
	}, nil)

	w := serve(paymentRouter(s, &mockReconciler{}, nil), http.MethodPost, "/api/payments/checkout",
		[]byte(`{"booking_ref":" SEV-1001 "}`), map[string]string{"Content-Type": "application/json"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"booking_ref":"SEV-1001","gateway":"pesapal","provider_order_id":"trk-1",
		"redirect_url":"https://pay.pesapal.com/iframe?OrderTrackingId=trk-1","simulated":false,"deduplicated":false}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestCheckout_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", payment.ErrBookingNotFound, http.StatusNotFound},
		{"settled", payment.ErrInvalidBookingState, http.StatusConflict},
		{"in progress", payment.ErrSubmissionInProgress, http.StatusConflict},
		{"other gateway active", payment.ErrAttemptActive, http.StatusConflict},
		{"no gateway", payment.ErrNoGatewayConfigured, http.StatusServiceUnavailable},
		{"unknown gateway", payment.ErrUnknownGateway, http.StatusBadRequest},
		{"auth", &payment.GatewayAuthError{Gateway: "pesapal", StatusCode: 401}, http.StatusBadGateway},
		{"order", &payment.GatewayOrderError{Gateway: "paypal", StatusCode: 422, Message: "CURRENCY_NOT_SUPPORTED"}, http.StatusUnprocessableEntity},
		{"timeout", &payment.GatewayOrderError{Gateway: "paypal", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &mockSubmitter{}
			s.On("Submit", "SEV-1001", "paypal").Return(nil, tc.err)

			w := serve(paymentRouter(s, &mockReconciler{}, nil), http.MethodPost, "/api/payments/checkout",
				[]byte(`{"booking_ref":"SEV-1001","gateway":"paypal"}`), map[string]string{"Content-Type": "application/json"})
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestCheckout_OrderErrorCarriesProviderMessage(t *testing.T) {
	s := &mockSubmitter{}
	s.On("Submit", "SEV-1001", "").Return(nil, &payment.GatewayOrderError{Gateway: "paypal", StatusCode: 422, Message: "CURRENCY_NOT_SUPPORTED"})

	w := serve(paymentRouter(s, &mockReconciler{}, nil), http.MethodPost, "/api/payments/checkout",
		[]byte(`{"booking_ref":"SEV-1001"}`), map[string]string{"Content-Type": "application/json"})
	assert.Contains(t, w.Body.String(), `"message":"CURRENCY_NOT_SUPPORTED"`)
}

func TestCheckout_ProviderPayloadNotEchoed(t *testing.T) {
	s := &mockSubmitter{}
	s.On("Submit", "SEV-1001", "").Return(nil, &payment.GatewayStatusError{
		Gateway:    "pesapal",
		StatusCode: 500,
		Payload:    `{"error":{"code":"internal","debug_id":"dbg-7781"}}`,
	})

	w := serve(paymentRouter(s, &mockReconciler{}, nil), http.MethodPost, "/api/payments/checkout",
		[]byte(`{"booking_ref":"SEV-1001"}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "dbg-7781")
	assert.JSONEq(t, `{"message":"Could not read the payment status"}`, w.Body.String())
}

func TestCheckout_RequiresRef(t *testing.T) {
	w := serve(paymentRouter(&mockSubmitter{}, &mockReconciler{}, nil), http.MethodPost, "/api/payments/checkout",
		[]byte(`{}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayRedirect(t *testing.T) {
	s := &mockSubmitter{}
	s.On("Submit", "SEV-1001", "whatsapp").Return(&payment.SubmitResult{RedirectURL: "https://wa.me/254700000001?text=hi"}, nil)

	w := serve(paymentRouter(s, &mockReconciler{}, nil), http.MethodGet, "/pay/SEV-1001?gateway=whatsapp", nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://wa.me/254700000001?text=hi", w.Header().Get("Location"))
}

func TestProviderReturns_RedirectByOutcome(t *testing.T) {
	cases := []struct {
		name     string
		target   string
		gateway  string
		tracking string
		result   *payment.ReconcileResult
		err      error
		location string
	}{
		{"pesapal paid", "/api/payments/pesapal/callback?OrderTrackingId=trk-1&OrderMerchantReference=SEV-1001&OrderNotificationType=CALLBACKURL",
			"pesapal", "trk-1", settled("SEV-1001", models.BookingPaid, true), nil, publicBase + "/payment/success?ref=SEV-1001"},
		{"paypal declined", "/api/payments/paypal/callback?ref=SEV-1001&token=5O190127TN364715T&PayerID=X",
			"paypal", "5O190127TN364715T", settled("SEV-1001", models.BookingCancelled, true), nil, publicBase + "/payment/failed?ref=SEV-1001"},
		{"stripe still pending", "/api/payments/stripe/callback?ref=SEV-1001&session_id=cs_test_123",
			"stripe", "cs_test_123", settled("SEV-1001", models.BookingPending, false), nil, publicBase + "/payment/pending?ref=SEV-1001"},
		{"provider down", "/api/payments/paypal/callback?ref=SEV-1001&token=5O190127TN364715T",
			"paypal", "5O190127TN364715T", nil, &payment.GatewayStatusError{Gateway: "paypal", StatusCode: 503}, publicBase + "/payment/pending?ref=SEV-1001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &mockReconciler{}
			rec.On("HandleCallback", tc.gateway, tc.tracking, "SEV-1001").Return(tc.result, tc.err).Once()

			w := serve(paymentRouter(&mockSubmitter{}, rec, nil), http.MethodGet, tc.target, nil, nil)
			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, tc.location, w.Header().Get("Location"))
			rec.AssertExpectations(t)
		})
	}
}

func TestProviderReturn_MissingRef(t *testing.T) {
	w := serve(paymentRouter(&mockSubmitter{}, &mockReconciler{}, nil), http.MethodGet, "/api/payments/paypal/callback?token=X", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelReturn_LeavesBookingAlone(t *testing.T) {
	rec := &mockReconciler{}
	w := serve(paymentRouter(&mockSubmitter{}, rec, nil), http.MethodGet, "/api/payments/paypal/cancel?ref=SEV-1001", nil, nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, publicBase+"/payment/failed?ref=SEV-1001", w.Header().Get("Location"))
	rec.AssertNotCalled(t, "HandleCallback", mock.Anything, mock.Anything, mock.Anything)
	rec.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestPesapalIPN_Ack(t *testing.T) {
	rec := &mockReconciler{}
	rec.On("HandleCallback", "pesapal", "trk-1", "SEV-1001").Return(settled("SEV-1001", models.BookingPaid, true), nil)
	r := paymentRouter(&mockSubmitter{}, rec, nil)

	w := serve(r, http.MethodGet, "/api/payments/pesapal/ipn?OrderTrackingId=trk-1&OrderMerchantReference=SEV-1001&OrderNotificationType=IPNCHANGE", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"orderNotificationType":"IPNCHANGE","orderTrackingId":"trk-1","orderMerchantReference":"SEV-1001","status":200}`, w.Body.String())

	w = serve(r, http.MethodPost, "/api/payments/pesapal/ipn",
		[]byte(`{"OrderNotificationType":"IPNCHANGE","OrderTrackingId":"trk-1","OrderMerchantReference":"SEV-1001"}`),
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":200`)
}

func TestPesapalIPN_FailureAsksForRetry(t *testing.T) {
	rec := &mockReconciler{}
	rec.On("HandleCallback", "pesapal", "trk-1", "SEV-1001").Return(nil, &payment.GatewayStatusError{Gateway: "pesapal", StatusCode: 500})

	w := serve(paymentRouter(&mockSubmitter{}, rec, nil), http.MethodGet,
		"/api/payments/pesapal/ipn?OrderTrackingId=trk-1&OrderMerchantReference=SEV-1001&OrderNotificationType=IPNCHANGE", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":500`)
}

func TestPesapalIPN_PermanentFailureIsAcknowledged(t *testing.T) {
	for _, err := range []error{payment.ErrReferenceMismatch, payment.ErrUncorroborated, payment.ErrUnknownGateway, payment.ErrBookingNotFound} {
		rec := &mockReconciler{}
		rec.On("HandleCallback", "pesapal", "trk-1", "SEV-1001").Return(nil, err)

		w := serve(paymentRouter(&mockSubmitter{}, rec, nil), http.MethodGet,
			"/api/payments/pesapal/ipn?OrderTrackingId=trk-1&OrderMerchantReference=SEV-1001", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":200`, err.Error())
	}
}

func TestPesapalIPN_Incomplete(t *testing.T) {
	w := serve(paymentRouter(&mockSubmitter{}, &mockReconciler{}, nil), http.MethodGet, "/api/payments/pesapal/ipn?OrderTrackingId=trk-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhook(t *testing.T) {
	rec := &mockReconciler{}
	rec.On("HandleCallback", "stripe", "cs_test_123", "SEV-1001").Return(settled("SEV-1001", models.BookingPaid, true), nil).Once()
	hooks := stubWebhooks{event: &stripecheckout.WebhookEvent{ID: "evt_1", SessionID: "cs_test_123", BookingRef: "SEV-1001"}}

	w := serve(paymentRouter(&mockSubmitter{}, rec, hooks), http.MethodPost, "/api/payments/stripe/webhook", []byte(`{}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"status":"PAID"}`, w.Body.String())
	rec.AssertExpectations(t)
}

func TestStripeWebhook_Rejections(t *testing.T) {
	r := paymentRouter(&mockSubmitter{}, &mockReconciler{}, stubWebhooks{err: errors.New("signature mismatch")})
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/payments/stripe/webhook", []byte(`{}`), nil).Code)

	r = paymentRouter(&mockSubmitter{}, &mockReconciler{}, stubWebhooks{err: stripecheckout.ErrIgnoredEvent})
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/payments/stripe/webhook", []byte(`{}`), nil).Code)

	r = paymentRouter(&mockSubmitter{}, &mockReconciler{}, nil)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/api/payments/stripe/webhook", []byte(`{}`), nil).Code)
}

func TestStripeWebhook_ReconcileErrorRetries(t *testing.T) {
	rec := &mockReconciler{}
	rec.On("HandleCallback", "stripe", "cs_test_123", "SEV-1001").Return(nil, &payment.GatewayStatusError{Gateway: "stripe", StatusCode: 500})
	hooks := stubWebhooks{event: &stripecheckout.WebhookEvent{ID: "evt_1", SessionID: "cs_test_123", BookingRef: "SEV-1001"}}

	w := serve(paymentRouter(&mockSubmitter{}, rec, hooks), http.MethodPost, "/api/payments/stripe/webhook", []byte(`{}`), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStripeWebhook_PermanentErrorIsAcknowledged(t *testing.T) {
	rec := &mockReconciler{}
	rec.On("HandleCallback", "stripe", "cs_test_123", "SEV-1001").Return(nil, payment.ErrReferenceMismatch)
	hooks := stubWebhooks{event: &stripecheckout.WebhookEvent{ID: "evt_1", SessionID: "cs_test_123", BookingRef: "SEV-1001"}}

	w := serve(paymentRouter(&mockSubmitter{}, rec, hooks), http.MethodPost, "/api/payments/stripe/webhook", []byte(`{}`), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
}

// Admin

func adminRouter(repo bookingRepo.BookingRepository, rec Reconciler, queue ReconcileEnqueuer) *gin.Engine {
	ah := NewAdminHandler(repo, rec, queue, zap.NewNop())
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.AdminSubjectKey, "ops@example.com") })
	r.GET("/api/admin/payments/:ref", ah.GetPaymentHandler)
	r.POST("/api/admin/payments/:ref/confirm", ah.ConfirmPaymentHandler)
	r.POST("/api/admin/payments/:ref/reject", ah.RejectPaymentHandler)
	r.POST("/api/admin/payments/:ref/cancel", ah.CancelBookingHandler)
	r.POST("/api/admin/payments/:ref/reconcile", ah.ReconcileHandler)
	return r
}

func seededRepo(t *testing.T, gateway string) *bookingRepo.MemoryBookingRepo {
	t.Helper()
	repo := bookingRepo.NewMemoryBookingRepo()
	require.NoError(t, repo.Create(context.Background(), &models.Booking{Ref: "SEV-1001", Amount: 250, Currency: "USD"}))
	if gateway != "" {
		_, err := repo.RecordAttempt(context.Background(), "SEV-1001", 0, models.PaymentAttempt{
			ID: "a1", BookingRef: "SEV-1001", Gateway: gateway, GatewayOrderID: "WA-SEV-1001",
		})
		require.NoError(t, err)
	}
	return repo
}

func TestAdminGetPayment(t *testing.T) {
	r := adminRouter(seededRepo(t, "whatsapp"), &mockReconciler{}, &stubQueue{})

	w := serve(r, http.MethodGet, "/api/admin/payments/SEV-1001", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"gateway":"whatsapp"`)

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/admin/payments/SEV-404", nil, nil).Code)
}

func TestAdminConfirm(t *testing.T) {
	rec := &mockReconciler{}
	rec.On("ApplyPushNotification", payment.PushNotification{
		Gateway:    "whatsapp",
		BookingRef: "SEV-1001",
		TrackingID: "MPESA-QX12",
		Status:     models.PaymentCompleted,
		VerifiedBy: "ops@example.com",
	}).Return(settled("SEV-1001", models.BookingPaid, true), nil).Once()

	w := serve(adminRouter(seededRepo(t, "whatsapp"), rec, &stubQueue{}), http.MethodPost, "/api/admin/payments/SEV-1001/confirm",
		[]byte(`{"tracking_id":"MPESA-QX12","note":"M-Pesa receipt checked"}`), map[string]string{"Content-Type": "application/json"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"booking_ref":"SEV-1001","status":"PAID","previous":"PENDING","changed":true}`, w.Body.String())
	rec.AssertExpectations(t)
}

func TestAdminReject_UntrustedGateway(t *testing.T) {
	rec := &mockReconciler{}
	rec.On("ApplyPushNotification", mock.MatchedBy(func(n payment.PushNotification) bool {
		return n.Gateway == "pesapal" && n.Status == models.PaymentFailed
	})).Return(nil, payment.ErrUntrustedNotification)

	w := serve(adminRouter(seededRepo(t, "pesapal"), rec, &stubQueue{}), http.MethodPost, "/api/admin/payments/SEV-1001/reject", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAdminConfirm_NoAttempt(t *testing.T) {
	rec := &mockReconciler{}
	w := serve(adminRouter(seededRepo(t, ""), rec, &stubQueue{}), http.MethodPost, "/api/admin/payments/SEV-1001/confirm", nil, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	rec.AssertNotCalled(t, "ApplyPushNotification", mock.Anything)
}

func TestAdminCancel(t *testing.T) {
	rec := &mockReconciler{}
	rec.On("Cancel", "SEV-1001", "ops@example.com").Return(settled("SEV-1001", models.BookingCancelled, true), nil)
	rec.On("Cancel", "SEV-2002", "ops@example.com").Return(nil, payment.ErrBookingNotFound)
	r := adminRouter(seededRepo(t, ""), rec, &stubQueue{})

	w := serve(r, http.MethodPost, "/api/admin/payments/SEV-1001/cancel", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"CANCELLED"`)

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/api/admin/payments/SEV-2002/cancel", nil, nil).Code)
}

func TestAdminReconcile_Enqueues(t *testing.T) {
	q := &stubQueue{}
	r := adminRouter(seededRepo(t, "pesapal"), &mockReconciler{}, q)

	w := serve(r, http.MethodPost, "/api/admin/payments/SEV-1001/reconcile", nil, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"booking_ref":"SEV-1001","task_id":"task-42"}`, w.Body.String())
	assert.Equal(t, "SEV-1001", q.ref)
	assert.Equal(t, "ops@example.com", q.by)

	q.err = errors.New("redis down")
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/api/admin/payments/SEV-1001/reconcile", nil, nil).Code)
}

func TestHealthHandler(t *testing.T) {
	utils.CheckHealth(context.Background(), nil, nil, func() []string { return []string{"pesapal", "whatsapp"} })

	r := gin.New()
	r.GET("/health", HealthHandler)
	w := serve(r, http.MethodGet, "/health", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"gateways":["pesapal","whatsapp"]`)
}
