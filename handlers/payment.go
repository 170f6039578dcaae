package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"travelpay/models"
	"travelpay/services/payment"
	"travelpay/services/payment/paypal"
	"travelpay/services/payment/pesapal"
	"travelpay/services/payment/stripecheckout"
	"travelpay/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Submitter is the checkout entry point.
type Submitter interface {
	Submit(ctx context.Context, ref, requestedGateway string) (*payment.SubmitResult, error)
}

// Reconciler is the callback entry point, plus the admin actions.
type Reconciler interface {
	HandleCallback(ctx context.Context, gateway, trackingID, ref string) (*payment.ReconcileResult, error)
	ApplyPushNotification(ctx context.Context, n payment.PushNotification) (*payment.ReconcileResult, error)
	Cancel(ctx context.Context, ref, by string) (*payment.ReconcileResult, error)
}

// WebhookParser verifies Stripe webhook deliveries.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*stripecheckout.WebhookEvent, error)
}

const maxWebhookBody = 64 << 10

// PaymentHandler serves checkout and the provider return, IPN and webhook endpoints.
type PaymentHandler struct {
	Submitter     Submitter
	Reconciler    Reconciler
	Webhooks      WebhookParser
	PublicBaseURL string
	Logger        *zap.Logger
}

func NewPaymentHandler(submitter Submitter, reconciler Reconciler, webhooks WebhookParser, publicBaseURL string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		Submitter:     submitter,
		Reconciler:    reconciler,
		Webhooks:      webhooks,
		PublicBaseURL: publicBaseURL,
		Logger:        logger,
	}
}

type checkoutRequest struct {
	BookingRef string `json:"booking_ref" binding:"required"`
	Gateway    string `json:"gateway"`
}

// CheckoutHandler submits an order for a booking and returns where to send the customer.
func (h *PaymentHandler) CheckoutHandler(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid checkout request", err.Error())
		return
	}

	result, err := h.Submitter.Submit(c.Request.Context(), strings.TrimSpace(req.BookingRef), req.Gateway)
	if err != nil {
		getLogger(c, h.Logger).Warn("Checkout failed", zap.String("ref", req.BookingRef), zap.String("gateway", req.Gateway), zap.Error(err))
		respondPaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PayRedirectHandler is the link a booking confirmation points at: it submits
// the order and sends the browser straight to the provider.
func (h *PaymentHandler) PayRedirectHandler(c *gin.Context) {
	ref := c.Param("ref")
	result, err := h.Submitter.Submit(c.Request.Context(), ref, c.Query("gateway"))
	if err != nil {
		getLogger(c, h.Logger).Warn("Pay link failed", zap.String("ref", ref), zap.Error(err))
		respondPaymentError(c, err)
		return
	}
	c.Redirect(http.StatusFound, result.RedirectURL)
}

// PesapalCallbackHandler handles the customer returning from PesaPal.
func (h *PaymentHandler) PesapalCallbackHandler(c *gin.Context) {
	ref := firstNonEmpty(c.Query("OrderMerchantReference"), c.Query("ref"))
	h.reconcileAndRedirect(c, pesapal.Name, c.Query("OrderTrackingId"), ref)
}

type pesapalIPN struct {
	OrderNotificationType  string `json:"OrderNotificationType" form:"OrderNotificationType"`
	OrderTrackingID        string `json:"OrderTrackingId" form:"OrderTrackingId"`
	OrderMerchantReference string `json:"OrderMerchantReference" form:"OrderMerchantReference"`
}

// PesapalIPNHandler acknowledges PesaPal's instant payment notification. A
// non-200 status in the ack makes PesaPal retry.
func (h *PaymentHandler) PesapalIPNHandler(c *gin.Context) {
	var ipn pesapalIPN
	if c.Request.Method == http.MethodPost && c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&ipn); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "Invalid IPN payload", err.Error())
			return
		}
	} else if err := c.ShouldBind(&ipn); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid IPN payload", err.Error())
		return
	}
	if ipn.OrderTrackingID == "" || ipn.OrderMerchantReference == "" {
		utils.JSONError(c, http.StatusBadRequest, "Invalid IPN payload", "OrderTrackingId and OrderMerchantReference are required")
		return
	}

	status := http.StatusOK
	_, err := h.Reconciler.HandleCallback(c.Request.Context(), pesapal.Name, ipn.OrderTrackingID, ipn.OrderMerchantReference)
	if err != nil && !payment.IsPermanent(err) {
		status = http.StatusInternalServerError
	}
	if err != nil {
		getLogger(c, h.Logger).Warn("PesaPal IPN not applied",
			zap.String("ref", ipn.OrderMerchantReference),
			zap.String("tracking_id", ipn.OrderTrackingID),
			zap.Error(err))
	}

	notificationType := ipn.OrderNotificationType
	if notificationType == "" {
		notificationType = "IPNCHANGE"
	}
	c.JSON(http.StatusOK, gin.H{
		"orderNotificationType":  notificationType,
		"orderTrackingId":        ipn.OrderTrackingID,
		"orderMerchantReference": ipn.OrderMerchantReference,
		"status":                 status,
	})
}

// PaypalCallbackHandler handles the buyer approving the order; the
// reconcile captures it. PayPal passes the order id as "token".
func (h *PaymentHandler) PaypalCallbackHandler(c *gin.Context) {
	h.reconcileAndRedirect(c, paypal.Name, c.Query("token"), c.Query("ref"))
}

// StripeCallbackHandler handles the success return from Stripe Checkout.
func (h *PaymentHandler) StripeCallbackHandler(c *gin.Context) {
	h.reconcileAndRedirect(c, stripecheckout.Name, c.Query("session_id"), c.Query("ref"))
}

// CancelReturnHandler handles a customer backing out at the provider. The
// booking stays PENDING so they can try again.
func (h *PaymentHandler) CancelReturnHandler(gateway string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Query("ref")
		getLogger(c, h.Logger).Info("Customer cancelled at provider", zap.String("ref", ref), zap.String("gateway", gateway))
		c.Redirect(http.StatusFound, payment.PageURL(h.PublicBaseURL, "failed", ref))
	}
}

// StripeWebhookHandler triggers a reconcile for verified Checkout events.
func (h *PaymentHandler) StripeWebhookHandler(c *gin.Context) {
	if h.Webhooks == nil {
		utils.JSONError(c, http.StatusNotFound, "Stripe webhooks are not enabled", "")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Could not read webhook body", err.Error())
		return
	}

	event, err := h.Webhooks.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, stripecheckout.ErrIgnoredEvent):
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	case err != nil:
		utils.JSONError(c, http.StatusBadRequest, "Invalid webhook", err.Error())
		return
	}
	if event.BookingRef == "" {
		getLogger(c, h.Logger).Warn("Stripe event without booking reference", zap.String("event_id", event.ID))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	result, err := h.Reconciler.HandleCallback(c.Request.Context(), stripecheckout.Name, event.SessionID, event.BookingRef)
	if err != nil && !payment.IsPermanent(err) {
		getLogger(c, h.Logger).Error("Stripe webhook reconcile failed",
			zap.String("event_id", event.ID), zap.String("ref", event.BookingRef), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Reconcile failed", "")
		return
	}
	if err != nil {
		getLogger(c, h.Logger).Warn("Stripe event not applied",
			zap.String("event_id", event.ID), zap.String("ref", event.BookingRef), zap.Error(err))
	}
	resp := gin.H{"received": true}
	if result != nil {
		resp["status"] = result.Booking.Status
	}
	c.JSON(http.StatusOK, resp)
}

// reconcileAndRedirect sends the customer to the page matching the booking's
// status. Reconcile errors land on the pending page; IPN or a recheck settles later.
func (h *PaymentHandler) reconcileAndRedirect(c *gin.Context, gateway, trackingID, ref string) {
	if ref == "" {
		utils.JSONError(c, http.StatusBadRequest, "Missing booking reference", "")
		return
	}

	page := "pending"
	result, err := h.Reconciler.HandleCallback(c.Request.Context(), gateway, trackingID, ref)
	if err != nil {
		getLogger(c, h.Logger).Warn("Callback reconcile failed",
			zap.String("ref", ref), zap.String("gateway", gateway), zap.String("tracking_id", trackingID), zap.Error(err))
	} else {
		page = resultPage(result.Booking.Status)
	}
	c.Redirect(http.StatusFound, payment.PageURL(h.PublicBaseURL, page, ref))
}

func resultPage(status models.BookingStatus) string {
	switch status {
	case models.BookingPaid:
		return "success"
	case models.BookingCancelled:
		return "failed"
	default:
		return "pending"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
