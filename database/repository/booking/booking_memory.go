package bookingRepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"travelpay/models"
)

// MemoryBookingRepo implements BookingRepository in memory.
// Used by tests.
type MemoryBookingRepo struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	writes   int
}

// NewMemoryBookingRepo creates an empty in-memory repository.
func NewMemoryBookingRepo() *MemoryBookingRepo {
	return &MemoryBookingRepo{bookings: make(map[string]*models.Booking)}
}

func (r *MemoryBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bookings[booking.Ref]; exists {
		return ErrDuplicateRef
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if booking.Status == "" {
		booking.Status = models.BookingPending
	}
	r.bookings[booking.Ref] = clone(booking)
	return nil
}

func (r *MemoryBookingRepo) FindByRef(ctx context.Context, ref string) (*models.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

func (r *MemoryBookingRepo) UpdateStatus(ctx context.Context, ref string, expectedVersion int, status models.BookingStatus, gatewayOrderID string) (*models.Booking, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("refusing to write non-terminal status %q for booking %s", status, ref)
	}
	return r.mutate(ref, expectedVersion, func(b *models.Booking, now time.Time) {
		b.Status = status
		if gatewayOrderID != "" {
			b.GatewayOrderID = gatewayOrderID
		}
		if status == models.BookingPaid {
			b.PaidAt = &now
		}
	})
}

func (r *MemoryBookingRepo) RecordAttempt(ctx context.Context, ref string, expectedVersion int, attempt models.PaymentAttempt) (*models.Booking, error) {
	return r.mutate(ref, expectedVersion, func(b *models.Booking, _ time.Time) {
		b.Gateway = attempt.Gateway
		b.GatewayOrderID = attempt.GatewayOrderID
		b.Attempts = append(b.Attempts, attempt)
	})
}

// Writes returns how many conditional updates have been applied.
func (r *MemoryBookingRepo) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

func (r *MemoryBookingRepo) mutate(ref string, expectedVersion int, apply func(*models.Booking, time.Time)) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[ref]
	if !ok {
		return nil, ErrNotFound
	}
	if b.Status != models.BookingPending {
		return nil, ErrNotPending
	}
	if b.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	now := time.Now().UTC()
	apply(b, now)
	b.Version++
	b.UpdatedAt = now
	r.writes++
	return clone(b), nil
}

func clone(b *models.Booking) *models.Booking {
	c := *b
	c.Attempts = append([]models.PaymentAttempt(nil), b.Attempts...)
	if b.PaidAt != nil {
		paid := *b.PaidAt
		c.PaidAt = &paid
	}
	return &c
}
