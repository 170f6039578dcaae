package models

import "time"

// BookingStatus is the payment lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingPaid      BookingStatus = "PAID"
	BookingCancelled BookingStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingPaid || s == BookingCancelled
}

// Contact carries the billing details sent to a gateway.
type Contact struct {
	FirstName   string `bson:"first_name" json:"first_name"`
	LastName    string `bson:"last_name" json:"last_name"`
	Email       string `bson:"email" json:"email"`
	Phone       string `bson:"phone" json:"phone"`
	CountryCode string `bson:"country_code" json:"country_code"` // ISO 3166-1 alpha-2
}

// Booking is the tour booking record the payment core reads and transitions.
// Bookings are created PENDING by the booking flow; the core only records
// attempts and moves them to a terminal state.
type Booking struct {
	Ref            string           `bson:"ref" json:"ref"` // e.g. "SEV-1001", immutable
	Description    string           `bson:"description" json:"description"`
	Amount         float64          `bson:"amount" json:"amount"`
	Currency       string           `bson:"currency" json:"currency"`
	Status         BookingStatus    `bson:"status" json:"status"`
	Gateway        string           `bson:"gateway,omitempty" json:"gateway,omitempty"`
	GatewayOrderID string           `bson:"gateway_order_id,omitempty" json:"gateway_order_id,omitempty"`
	Customer       Contact          `bson:"customer" json:"customer"`
	Attempts       []PaymentAttempt `bson:"attempts,omitempty" json:"attempts,omitempty"`
	Version        int              `bson:"version" json:"version"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `bson:"updated_at" json:"updated_at"`
	PaidAt         *time.Time       `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}

// LatestAttempt returns the most recent recorded attempt, or nil.
func (b *Booking) LatestAttempt() *PaymentAttempt {
	if len(b.Attempts) == 0 {
		return nil
	}
	return &b.Attempts[len(b.Attempts)-1]
}

// ActiveAttempt returns the latest attempt if the booking is still pending
// and the attempt was submitted less than ttl ago.
func (b *Booking) ActiveAttempt(now time.Time, ttl time.Duration) *PaymentAttempt {
	if b.Status != BookingPending {
		return nil
	}
	latest := b.LatestAttempt()
	if latest == nil || !now.Before(latest.SubmittedAt.Add(ttl)) {
		return nil
	}
	return latest
}

// FindAttempt looks up a recorded attempt by gateway and provider order id.
func (b *Booking) FindAttempt(gateway, orderID string) *PaymentAttempt {
	for i := len(b.Attempts) - 1; i >= 0; i-- {
		if b.Attempts[i].Gateway == gateway && b.Attempts[i].GatewayOrderID == orderID {
			return &b.Attempts[i]
		}
	}
	return nil
}
