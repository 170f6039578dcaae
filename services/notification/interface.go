package notification

import (
	"context"
	"fmt"
	"strconv"

	"travelpay/models"

	"go.uber.org/zap"
)

// NotificationService tells the agency and the customer a booking has been paid.
type NotificationService interface {
	NotifyBookingPaid(ctx context.Context, payload models.BookingPaidPayload) error
}

// LogNotificationService records the confirmation in the structured log. It is
// the default until a mail or push channel is configured for the agency.
type LogNotificationService struct {
	logger *zap.Logger
	brand  string
}

func NewLogNotificationService(logger *zap.Logger, brand string) (*LogNotificationService, error) {
	if logger == nil {
		return nil, fmt.Errorf("notification service initialization error: logger is nil")
	}
	return &LogNotificationService{logger: logger, brand: brand}, nil
}

func (s *LogNotificationService) NotifyBookingPaid(ctx context.Context, p models.BookingPaidPayload) error {
	if p.BookingRef == "" {
		return fmt.Errorf("NotifyBookingPaid: booking ref is empty")
	}
	s.logger.Info("Booking payment confirmed",
		zap.String("ref", p.BookingRef),
		zap.String("gateway", p.Gateway),
		zap.String("gateway_order_id", p.GatewayOrderID),
		zap.String("email", p.Email),
		zap.String("subject", Subject(s.brand, p)))
	return nil
}

// Subject is the confirmation headline sent to the customer.
func Subject(brand string, p models.BookingPaidPayload) string {
	if brand == "" {
		brand = "Your booking"
	}
	return fmt.Sprintf("%s: payment of %s %s received for booking %s",
		brand, p.Currency, strconv.FormatFloat(p.Amount, 'f', 2, 64), p.BookingRef)
}
