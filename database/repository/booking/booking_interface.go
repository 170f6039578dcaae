package bookingRepo

import (
	"context"
	"errors"

	"travelpay/models"
)

var (
	ErrNotFound        = errors.New("booking not found")
	ErrDuplicateRef    = errors.New("booking reference already exists")
	ErrVersionConflict = errors.New("booking was modified concurrently")
	ErrNotPending      = errors.New("booking is no longer pending")
)

// BookingRepository is the booking store the payment core depends on.
// UpdateStatus and RecordAttempt are conditional: they only apply to a PENDING
// booking whose version still equals expectedVersion, and bump the version.
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	FindByRef(ctx context.Context, ref string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, ref string, expectedVersion int, status models.BookingStatus, gatewayOrderID string) (*models.Booking, error)
	RecordAttempt(ctx context.Context, ref string, expectedVersion int, attempt models.PaymentAttempt) (*models.Booking, error)
}
