package handlers

import (
	"context"
	"errors"
	"net/http"

	"travelpay/services/payment"
	"travelpay/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondPaymentError maps payment core errors onto HTTP statuses. Provider
// payloads and transport errors are logged, never echoed to the caller.
func respondPaymentError(c *gin.Context, err error) {
	var (
		authErr   *payment.GatewayAuthError
		orderErr  *payment.GatewayOrderError
		statusErr *payment.GatewayStatusError
	)

	switch {
	case errors.Is(err, payment.ErrBookingNotFound):
		utils.JSONError(c, http.StatusNotFound, "Booking not found", err.Error())
	case errors.Is(err, payment.ErrUnknownGateway):
		utils.JSONError(c, http.StatusBadRequest, "Unknown payment gateway", err.Error())
	case errors.Is(err, payment.ErrInvalidBookingState),
		errors.Is(err, payment.ErrSubmissionInProgress),
		errors.Is(err, payment.ErrAttemptActive),
		errors.Is(err, payment.ErrNoAttempt):
		utils.JSONError(c, http.StatusConflict, "Payment cannot proceed for this booking", err.Error())
	case errors.Is(err, payment.ErrReferenceMismatch), errors.Is(err, payment.ErrUncorroborated):
		utils.JSONError(c, http.StatusConflict, "Provider order does not match this booking", err.Error())
	case errors.Is(err, payment.ErrUntrustedNotification):
		utils.JSONError(c, http.StatusUnprocessableEntity, "This gateway must be confirmed by the provider", err.Error())
	case errors.Is(err, payment.ErrNoGatewayConfigured):
		utils.JSONError(c, http.StatusServiceUnavailable, "No payment method is available right now", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		providerError(c, http.StatusGatewayTimeout, "The payment provider did not answer in time", err)
	case errors.As(err, &orderErr):
		msg := orderErr.Message
		if msg == "" {
			msg = "The payment provider rejected the order"
		}
		providerError(c, http.StatusUnprocessableEntity, msg, err)
	case errors.As(err, &authErr):
		providerError(c, http.StatusBadGateway, "Could not authenticate with the payment provider", err)
	case errors.As(err, &statusErr):
		providerError(c, http.StatusBadGateway, "Could not read the payment status", err)
	default:
		providerError(c, http.StatusInternalServerError, "Payment processing failed", err)
	}
}

func providerError(c *gin.Context, status int, message string, err error) {
	getLogger(c, utils.GetLogger()).Error("Payment provider error",
		zap.Int("status", status),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	utils.JSONError(c, status, message, "")
}
