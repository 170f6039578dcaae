package pesapal

import (
	"strings"

	"travelpay/models"
)

// MapStatus translates payment_status_description, falling back to
// status_code when the description is missing or unfamiliar.
//
//	COMPLETED / 1 -> COMPLETED
//	FAILED    / 2 -> FAILED
//	REVERSED  / 3 -> FAILED
//	INVALID   / 0 -> PENDING
func MapStatus(description string, code int) models.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(description)) {
	case "COMPLETED":
		return models.PaymentCompleted
	case "FAILED", "REVERSED":
		return models.PaymentFailed
	case "INVALID":
		return models.PaymentPending
	}

	switch code {
	case 1:
		return models.PaymentCompleted
	case 2, 3:
		return models.PaymentFailed
	default:
		return models.PaymentPending
	}
}
