package payment

import (
	"context"

	"travelpay/models"
)

// TransitionListener is told about every status change the core persists.
// It runs after the write; failures are the listener's to log.
type TransitionListener interface {
	OnTransition(ctx context.Context, booking *models.Booking, from models.BookingStatus)
}

// ListenerFunc adapts a function to TransitionListener.
type ListenerFunc func(ctx context.Context, booking *models.Booking, from models.BookingStatus)

func (f ListenerFunc) OnTransition(ctx context.Context, booking *models.Booking, from models.BookingStatus) {
	f(ctx, booking, from)
}

type noopListener struct{}

func (noopListener) OnTransition(context.Context, *models.Booking, models.BookingStatus) {}
