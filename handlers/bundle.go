package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Checkout endpoints
	CheckoutHandler    gin.HandlerFunc
	PayRedirectHandler gin.HandlerFunc

	// Provider return, IPN and webhook endpoints
	PesapalCallbackHandler gin.HandlerFunc
	PesapalIPNHandler      gin.HandlerFunc
	PaypalCallbackHandler  gin.HandlerFunc
	StripeCallbackHandler  gin.HandlerFunc
	StripeWebhookHandler   gin.HandlerFunc
	CancelReturnHandler    func(gateway string) gin.HandlerFunc

	// Admin endpoints
	AdminHandler *AdminHandler

	HealthHandler gin.HandlerFunc
}

// NewHandlerBundle wires the payment and admin handlers into a bundle.
func NewHandlerBundle(ph *PaymentHandler, ah *AdminHandler) *HandlerBundle {
	return &HandlerBundle{
		CheckoutHandler:        ph.CheckoutHandler,
		PayRedirectHandler:     ph.PayRedirectHandler,
		PesapalCallbackHandler: ph.PesapalCallbackHandler,
		PesapalIPNHandler:      ph.PesapalIPNHandler,
		PaypalCallbackHandler:  ph.PaypalCallbackHandler,
		StripeCallbackHandler:  ph.StripeCallbackHandler,
		StripeWebhookHandler:   ph.StripeWebhookHandler,
		CancelReturnHandler:    ph.CancelReturnHandler,
		AdminHandler:           ah,
		HealthHandler:          HealthHandler,
	}
}
