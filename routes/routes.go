package routes

import (
	"net/http"
	"time"

	"travelpay/handlers"
	"travelpay/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Options carries the route-level settings that come from config.
type Options struct {
	AllowOrigins      []string
	MaxRequestsPerMin int
	Gateways          []string
}

// RegisterCheckoutRoutes registers the customer-facing checkout endpoints.
func RegisterCheckoutRoutes(r *gin.Engine, hb *handlers.HandlerBundle, limiter gin.HandlerFunc) {
	r.GET("/pay/:ref", limiter, hb.PayRedirectHandler)

	api := r.Group("/api/payments")
	{
		api.POST("/checkout", limiter, hb.CheckoutHandler)
	}
}

// RegisterProviderRoutes registers the endpoints payment providers call or
// send the customer back to. Server-to-server notifications skip the rate limiter.
func RegisterProviderRoutes(r *gin.Engine, hb *handlers.HandlerBundle, limiter gin.HandlerFunc, gateways []string) {
	api := r.Group("/api/payments")
	{
		api.GET("/pesapal/callback", limiter, hb.PesapalCallbackHandler)
		api.GET("/pesapal/ipn", hb.PesapalIPNHandler)
		api.POST("/pesapal/ipn", hb.PesapalIPNHandler)

		api.GET("/paypal/callback", limiter, hb.PaypalCallbackHandler)

		api.GET("/stripe/callback", limiter, hb.StripeCallbackHandler)
		api.POST("/stripe/webhook", hb.StripeWebhookHandler)

		for _, gateway := range gateways {
			api.GET("/"+gateway+"/cancel", limiter, hb.CancelReturnHandler(gateway))
		}
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
	r.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
}

// RegisterAdminRoutes sets up endpoints for admin payment operations.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	adminGroup := r.Group("/api/admin/payments")
	{
		adminGroup.Use(middleware.JWTAuthAdminMiddleware())
		adminGroup.GET("/:ref", hb.AdminHandler.GetPaymentHandler)
		adminGroup.POST("/:ref/confirm", hb.AdminHandler.ConfirmPaymentHandler)
		adminGroup.POST("/:ref/reject", hb.AdminHandler.RejectPaymentHandler)
		adminGroup.POST("/:ref/cancel", hb.AdminHandler.CancelBookingHandler)
		adminGroup.POST("/:ref/reconcile", hb.AdminHandler.ReconcileHandler)
	}
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, opts Options) {
	corsCfg := cors.Config{
		AllowOrigins:     opts.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	limiter := middleware.RateLimitMiddleware(opts.MaxRequestsPerMin)

	RegisterHealthRoute(r, hb)
	RegisterCheckoutRoutes(r, hb, limiter)
	RegisterProviderRoutes(r, hb, limiter, opts.Gateways)
	RegisterAdminRoutes(r, hb)
}
