package stripecheckout

import (
	"travelpay/models"

	"github.com/stripe/stripe-go/v76"
)

// MapStatus maps a Checkout Session's status and payment_status.
func MapStatus(status, paymentStatus string) models.PaymentStatus {
	switch {
	case paymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid):
		return models.PaymentCompleted
	case status == string(stripe.CheckoutSessionStatusExpired):
		return models.PaymentFailed
	default:
		return models.PaymentPending
	}
}
