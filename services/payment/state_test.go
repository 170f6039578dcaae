package payment

import (
	"testing"

	"travelpay/models"

	"github.com/stretchr/testify/assert"
)

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		from     models.BookingStatus
		observed models.PaymentStatus
		want     models.BookingStatus
		changed  bool
	}{
		{models.BookingPending, models.PaymentCompleted, models.BookingPaid, true},
		{models.BookingPending, models.PaymentFailed, models.BookingCancelled, true},
		{models.BookingPending, models.PaymentPending, models.BookingPending, false},
		{models.BookingPending, models.PaymentStatus("Completed"), models.BookingPending, false},
		{models.BookingPending, models.PaymentStatus(""), models.BookingPending, false},
		{models.BookingPaid, models.PaymentFailed, models.BookingPaid, false},
		{models.BookingPaid, models.PaymentCompleted, models.BookingPaid, false},
		{models.BookingPaid, models.PaymentPending, models.BookingPaid, false},
		{models.BookingCancelled, models.PaymentCompleted, models.BookingCancelled, false},
		{models.BookingCancelled, models.PaymentFailed, models.BookingCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.observed), func(t *testing.T) {
			got, changed := Transition(tt.from, tt.observed)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestCancelTransition(t *testing.T) {
	got, changed := CancelTransition(models.BookingPending)
	assert.Equal(t, models.BookingCancelled, got)
	assert.True(t, changed)

	got, changed = CancelTransition(models.BookingPaid)
	assert.Equal(t, models.BookingPaid, got)
	assert.False(t, changed)
}
