package payment

import "travelpay/models"

// Transition applies an observed provider status to a booking status.
// It returns the resulting status and whether it differs from "from".
//
//	PENDING   + COMPLETED -> PAID
//	PENDING   + FAILED    -> CANCELLED
//	PENDING   + PENDING   -> PENDING (no-op)
//	PAID | CANCELLED + any -> unchanged
//
// Observed values outside the canonical enum count as PENDING.
func Transition(from models.BookingStatus, observed models.PaymentStatus) (models.BookingStatus, bool) {
	if from != models.BookingPending {
		return from, false
	}
	switch observed {
	case models.PaymentCompleted:
		return models.BookingPaid, true
	case models.PaymentFailed:
		return models.BookingCancelled, true
	default:
		return models.BookingPending, false
	}
}

// CancelTransition is the explicit-cancel event.
func CancelTransition(from models.BookingStatus) (models.BookingStatus, bool) {
	if from != models.BookingPending {
		return from, false
	}
	return models.BookingCancelled, true
}
