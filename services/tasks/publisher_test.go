package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"travelpay/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func paidBooking() *models.Booking {
	return &models.Booking{
		Ref:            "SEV-1001",
		Amount:         250,
		Currency:       "USD",
		Status:         models.BookingPaid,
		Gateway:        "pesapal",
		GatewayOrderID: "trk-1",
		Customer:       models.Contact{Email: "amina@example.com"},
	}
}

func TestOnTransition_EnqueuesBookingPaid(t *testing.T) {
	q := &recordingEnqueuer{}
	p := NewPublisher(q, zap.NewNop())

	p.OnTransition(context.Background(), paidBooking(), models.BookingPending)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, TypeBookingPaid, q.tasks[0].Type())

	payload, err := DecodeBookingPaid(q.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaidPayload{
		BookingRef:     "SEV-1001",
		Gateway:        "pesapal",
		GatewayOrderID: "trk-1",
		Amount:         250,
		Currency:       "USD",
		Email:          "amina@example.com",
	}, payload)
}

func TestOnTransition_IgnoresCancellation(t *testing.T) {
	q := &recordingEnqueuer{}
	p := NewPublisher(q, zap.NewNop())

	b := paidBooking()
	b.Status = models.BookingCancelled
	p.OnTransition(context.Background(), b, models.BookingPending)

	assert.Empty(t, q.tasks)
}

func TestOnTransition_SwallowsDuplicates(t *testing.T) {
	q := &recordingEnqueuer{err: asynq.ErrTaskIDConflict}
	p := NewPublisher(q, zap.NewNop())

	assert.NotPanics(t, func() {
		p.OnTransition(context.Background(), paidBooking(), models.BookingPending)
	})
}

func TestEnqueueReconcile(t *testing.T) {
	q := &recordingEnqueuer{}
	p := NewPublisher(q, zap.NewNop())

	id, err := p.EnqueueReconcile(context.Background(), "SEV-1001", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)

	payload, err := DecodeReconcile(q.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, "SEV-1001", payload.BookingRef)
	assert.Equal(t, "ops@example.com", payload.RequestedBy)

	_, err = p.EnqueueReconcile(context.Background(), "", "ops")
	assert.Error(t, err)

	q.err = errors.New("redis down")
	_, err = p.EnqueueReconcile(context.Background(), "SEV-1001", "ops")
	assert.EqualError(t, err, "redis down")
}
