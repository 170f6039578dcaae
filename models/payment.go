package models

import "time"

// PaymentStatus is the canonical status every provider vocabulary maps into.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentPending   PaymentStatus = "PENDING"
)

// PaymentAttempt records one order submission to a gateway.
type PaymentAttempt struct {
	ID             string    `bson:"id" json:"id"`
	BookingRef     string    `bson:"booking_ref" json:"booking_ref"`
	Gateway        string    `bson:"gateway" json:"gateway"`
	GatewayOrderID string    `bson:"gateway_order_id" json:"gateway_order_id"`
	RedirectURL    string    `bson:"redirect_url" json:"redirect_url"`
	SubmittedAt    time.Time `bson:"submitted_at" json:"submitted_at"`
}

// GatewayToken is a provider bearer credential cached for the process lifetime.
type GatewayToken struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether the token may still be used at now, keeping margin in reserve.
func (t *GatewayToken) ValidAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.Value == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-margin))
}

// OrderRequest is the provider-agnostic order handed to a gateway.
// IdempotencyKey is unique per attempt; providers that support it dedupe retries on it.
type OrderRequest struct {
	MerchantReference string
	IdempotencyKey    string
	Amount            float64
	Currency          string
	Description       string
	CallbackURL       string
	CancelURL         string
	Billing           Contact
}

// OrderResponse is what a gateway returns for an accepted order.
type OrderResponse struct {
	ProviderOrderID   string
	RedirectURL       string
	MerchantReference string
}

// StatusReport is a provider status translated into the canonical enum.
// Amount is zero when the provider does not report one.
type StatusReport struct {
	Status            PaymentStatus
	ProviderStatus    string
	MerchantReference string
	Amount            float64
	Currency          string
	ConfirmationCode  string
}
