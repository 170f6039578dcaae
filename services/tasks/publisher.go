package tasks

import (
	"context"
	"errors"
	"time"

	"travelpay/models"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher turns booking transitions into asynq tasks. It satisfies
// payment.TransitionListener.
type Publisher struct {
	client Enqueuer
	logger *zap.Logger
}

func NewPublisher(client Enqueuer, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// OnTransition enqueues the booking-paid follow-up. Other transitions are only logged.
func (p *Publisher) OnTransition(ctx context.Context, booking *models.Booking, from models.BookingStatus) {
	p.logger.Info("Booking status changed",
		zap.String("ref", booking.Ref),
		zap.String("from", string(from)),
		zap.String("to", string(booking.Status)),
		zap.String("gateway", booking.Gateway))

	if booking.Status != models.BookingPaid {
		return
	}

	task, opts, err := NewBookingPaidTask(models.BookingPaidPayload{
		BookingRef:     booking.Ref,
		Gateway:        booking.Gateway,
		GatewayOrderID: booking.GatewayOrderID,
		Amount:         booking.Amount,
		Currency:       booking.Currency,
		Email:          booking.Customer.Email,
	})
	if err != nil {
		p.logger.Error("Failed to build booking-paid task", zap.String("ref", booking.Ref), zap.Error(err))
		return
	}

	// The caller's request may already be finishing; the enqueue gets its own deadline.
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	info, err := p.client.EnqueueContext(enqueueCtx, task, opts...)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		p.logger.Debug("Booking-paid task already queued", zap.String("ref", booking.Ref))
	case err != nil:
		p.logger.Error("Failed to enqueue booking-paid task", zap.String("ref", booking.Ref), zap.Error(err))
	default:
		p.logger.Info("Booking-paid task enqueued", zap.String("ref", booking.Ref), zap.String("task_id", info.ID))
	}
}

// EnqueueReconcile schedules a provider re-check for ref.
func (p *Publisher) EnqueueReconcile(ctx context.Context, ref, requestedBy string) (string, error) {
	task, opts, err := NewReconcileTask(models.ReconcilePayload{BookingRef: ref, RequestedBy: requestedBy}, 0)
	if err != nil {
		return "", err
	}
	info, err := p.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}
