package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"travelpay/handlers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func stubBundle(hit *string) *handlers.HandlerBundle {
	named := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			*hit = name
			c.Status(http.StatusNoContent)
		}
	}
	return &handlers.HandlerBundle{
		CheckoutHandler:        named("checkout"),
		PayRedirectHandler:     named("pay"),
		PesapalCallbackHandler: named("pesapal-callback"),
		PesapalIPNHandler:      named("pesapal-ipn"),
		PaypalCallbackHandler:  named("paypal-callback"),
		StripeCallbackHandler:  named("stripe-callback"),
		StripeWebhookHandler:   named("stripe-webhook"),
		CancelReturnHandler:    func(gateway string) gin.HandlerFunc { return named(gateway + "-cancel") },
		AdminHandler:           &handlers.AdminHandler{},
		HealthHandler:          named("health"),
	}
}

func TestRegisterRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var hit string
	r := gin.New()
	RegisterRoutes(r, stubBundle(&hit), Options{
		AllowOrigins:      []string{"https://tours.example.com"},
		MaxRequestsPerMin: 600,
		Gateways:          []string{"pesapal", "paypal", "stripe", "whatsapp"},
	})

	cases := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/payments/checkout", "checkout"},
		{http.MethodGet, "/pay/SEV-1001", "pay"},
		{http.MethodGet, "/api/payments/pesapal/callback", "pesapal-callback"},
		{http.MethodGet, "/api/payments/pesapal/ipn", "pesapal-ipn"},
		{http.MethodPost, "/api/payments/pesapal/ipn", "pesapal-ipn"},
		{http.MethodGet, "/api/payments/paypal/callback", "paypal-callback"},
		{http.MethodGet, "/api/payments/stripe/callback", "stripe-callback"},
		{http.MethodPost, "/api/payments/stripe/webhook", "stripe-webhook"},
		{http.MethodGet, "/api/payments/whatsapp/cancel", "whatsapp-cancel"},
		{http.MethodGet, "/api/payments/paypal/cancel", "paypal-cancel"},
		{http.MethodGet, "/health", "health"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			hit = ""
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, tc.want, hit)
		})
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var hit string
	r := gin.New()
	RegisterRoutes(r, stubBundle(&hit), Options{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/payments/SEV-1001/confirm", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
