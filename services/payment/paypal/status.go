package paypal

import (
	"strings"

	"travelpay/models"
)

// MapStatus folds an order status and its latest capture status into the
// canonical enum. The capture, when there is one, decides.
func MapStatus(orderStatus, captureStatus string) models.PaymentStatus {
	if captureStatus != "" {
		switch strings.ToUpper(captureStatus) {
		case "COMPLETED":
			return models.PaymentCompleted
		case "DECLINED", "FAILED":
			return models.PaymentFailed
		default:
			return models.PaymentPending
		}
	}

	switch strings.ToUpper(orderStatus) {
	case "COMPLETED":
		return models.PaymentCompleted
	case "VOIDED":
		return models.PaymentFailed
	default:
		// CREATED, SAVED, APPROVED, PAYER_ACTION_REQUIRED
		return models.PaymentPending
	}
}
