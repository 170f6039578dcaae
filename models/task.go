package models

// BookingPaidPayload is the asynq payload enqueued when a booking becomes PAID.
type BookingPaidPayload struct {
	BookingRef     string  `json:"booking_ref"`
	Gateway        string  `json:"gateway"`
	GatewayOrderID string  `json:"gateway_order_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Email          string  `json:"email"`
}

// ReconcilePayload asks the worker to re-check a booking's latest attempt.
type ReconcilePayload struct {
	BookingRef  string `json:"booking_ref"`
	RequestedBy string `json:"requested_by"`
}
