package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"travelpay/services/notification"
	"travelpay/services/payment"
	"travelpay/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Rechecker is the reconciler entry point used by the reconcile task.
type Rechecker interface {
	Recheck(ctx context.Context, ref string) (*payment.ReconcileResult, error)
}

// NewPaymentMux routes the payment task types to their handlers.
func NewPaymentMux(notifSvc notification.NotificationService, reconciler Rechecker, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeBookingPaid, handleBookingPaidTask(notifSvc, logger))
	mux.HandleFunc(tasks.TypeReconcile, handleReconcileTask(reconciler, logger))
	return mux
}

// InitPaymentWorker starts the asynq server in the background and returns it
// so the caller can shut it down.
func InitPaymentWorker(redisOpts asynq.RedisClientOpt, mux *asynq.ServeMux, logger *zap.Logger) *asynq.Server {
	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QueuePayments: 1,
			},
			Logger:   logger.Sugar(),
			LogLevel: asynq.InfoLevel,
		},
	)

	go func() {
		logger.Info("Starting payment worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Start(mux)
			if err == nil {
				return
			}
			if errors.Is(err, asynq.ErrServerClosed) {
				return
			}
			logger.Warn("Payment worker failed to start",
				zap.Int("attempt", attempts), zap.Int("max_attempts", maxAttempts), zap.Error(err))
			if attempts == maxAttempts {
				logger.Error("Payment worker gave up; paid-booking follow-ups will queue until restart")
				return
			}
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}()
	return srv
}

func handleBookingPaidTask(notifSvc notification.NotificationService, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := tasks.DecodeBookingPaid(task)
		if err != nil {
			logger.Error("Invalid booking-paid payload", zap.Error(err))
			return fmt.Errorf("decode booking-paid payload: %v: %w", err, asynq.SkipRetry)
		}

		if err := notifSvc.NotifyBookingPaid(ctx, p); err != nil {
			logger.Warn("Failed to send booking-paid notification", zap.String("ref", p.BookingRef), zap.Error(err))
			return err
		}
		return nil
	}
}

func handleReconcileTask(reconciler Rechecker, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := tasks.DecodeReconcile(task)
		if err != nil {
			logger.Error("Invalid reconcile payload", zap.Error(err))
			return fmt.Errorf("decode reconcile payload: %v: %w", err, asynq.SkipRetry)
		}

		result, err := reconciler.Recheck(ctx, p.BookingRef)
		switch {
		case payment.IsPermanent(err):
			logger.Warn("Reconcile task cannot proceed", zap.String("ref", p.BookingRef), zap.Error(err))
			return fmt.Errorf("reconcile %s: %v: %w", p.BookingRef, err, asynq.SkipRetry)
		case err != nil:
			logger.Warn("Reconcile task failed", zap.String("ref", p.BookingRef), zap.Error(err))
			return err
		}

		logger.Info("Reconcile task done",
			zap.String("ref", p.BookingRef),
			zap.String("requested_by", p.RequestedBy),
			zap.String("status", string(result.Booking.Status)),
			zap.Bool("changed", result.Changed))
		return nil
	}
}
