package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"travelpay/models"

	"github.com/hibiken/asynq"
)

const (
	TypeBookingPaid = "payment:booking_paid"
	TypeReconcile   = "payment:reconcile"

	// QueuePayments is the asynq queue both task types run on.
	QueuePayments = "payments"
)

// NewBookingPaidTask carries the follow-up work for a booking that just became PAID.
// The task id is derived from the ref so a duplicate enqueue is rejected by asynq.
func NewBookingPaidTask(payload models.BookingPaidPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeBookingPaid, b)
	opts := []asynq.Option{
		asynq.Queue(QueuePayments),
		asynq.TaskID(TypeBookingPaid + ":" + payload.BookingRef),
		asynq.MaxRetry(10),
		asynq.Retention(24 * time.Hour),
	}
	return task, opts, nil
}

// NewReconcileTask asks the worker to re-check a booking with its provider.
func NewReconcileTask(payload models.ReconcilePayload, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	if payload.BookingRef == "" {
		return nil, nil, fmt.Errorf("reconcile task: booking ref is required")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeReconcile, b)
	opts := []asynq.Option{
		asynq.Queue(QueuePayments),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	return task, opts, nil
}

// DecodeBookingPaid and DecodeReconcile are used by the worker handlers.
func DecodeBookingPaid(task *asynq.Task) (models.BookingPaidPayload, error) {
	var p models.BookingPaidPayload
	err := json.Unmarshal(task.Payload(), &p)
	return p, err
}

func DecodeReconcile(task *asynq.Task) (models.ReconcilePayload, error) {
	var p models.ReconcilePayload
	err := json.Unmarshal(task.Payload(), &p)
	return p, err
}
