package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bookingRepo "travelpay/database/repository/booking"
	"travelpay/models"

	"go.uber.org/zap"
)

const (
	maxApplyRetries = 3
	amountTolerance = 0.005
)

type ReconcilerConfig struct {
	StatusTimeout time.Duration
}

// ReconcileResult describes what a reconcile observed and did.
type ReconcileResult struct {
	Booking  *models.Booking
	Previous models.BookingStatus
	Report   *models.StatusReport
	Changed  bool
}

// PushNotification is a provider-side outcome delivered to us rather than
// polled, e.g. an admin confirming a manual WhatsApp payment.
type PushNotification struct {
	Gateway    string
	BookingRef string
	TrackingID string
	Status     models.PaymentStatus
	VerifiedBy string
}

// CallbackReconciler turns provider callbacks, IPNs and rechecks into booking
// transitions. A callback is only ever a trigger: the outcome always comes
// from the provider's own status endpoint.
type CallbackReconciler struct {
	repo     bookingRepo.BookingRepository
	registry *Registry
	tokens   *TokenCache
	listener TransitionListener
	cfg      ReconcilerConfig
	logger   *zap.Logger
}

func NewCallbackReconciler(
	repo bookingRepo.BookingRepository,
	registry *Registry,
	tokens *TokenCache,
	listener TransitionListener,
	cfg ReconcilerConfig,
	logger *zap.Logger,
) *CallbackReconciler {
	if listener == nil {
		listener = noopListener{}
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 15 * time.Second
	}
	return &CallbackReconciler{
		repo:     repo,
		registry: registry,
		tokens:   tokens,
		listener: listener,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleCallback reconciles one provider order against its booking.
// trackingID may be empty, in which case the latest attempt recorded for
// gateway is used.
func (r *CallbackReconciler) HandleCallback(ctx context.Context, gateway, trackingID, ref string) (*ReconcileResult, error) {
	booking, err := r.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		r.logger.Debug("callback for settled booking ignored",
			zap.String("ref", ref),
			zap.String("gateway", gateway),
			zap.String("status", string(booking.Status)))
		return &ReconcileResult{Booking: booking, Previous: booking.Status}, nil
	}

	client, err := r.registry.Get(gateway)
	if err != nil {
		return nil, err
	}
	if trackingID == "" {
		attempt := latestAttemptFor(booking, client.Name())
		if attempt == nil {
			return nil, fmt.Errorf("%w: %s via %s", ErrNoAttempt, ref, client.Name())
		}
		trackingID = attempt.GatewayOrderID
	}

	report, err := r.queryStatus(ctx, client, trackingID)
	if err != nil {
		r.logger.Error("provider status query failed",
			zap.String("ref", ref),
			zap.String("gateway", client.Name()),
			zap.String("order_id", trackingID),
			zap.Error(err))
		return nil, err
	}

	observed, err := r.corroborate(booking, client.Name(), trackingID, report)
	if err != nil {
		r.logger.Warn("provider status rejected",
			zap.String("ref", ref),
			zap.String("gateway", client.Name()),
			zap.String("order_id", trackingID),
			zap.String("reported_ref", report.MerchantReference),
			zap.Error(err))
		return nil, err
	}

	return r.apply(ctx, booking, trackingID, report, func(from models.BookingStatus) (models.BookingStatus, bool) {
		return Transition(from, observed)
	})
}

// Recheck reconciles the latest recorded attempt of a booking.
func (r *CallbackReconciler) Recheck(ctx context.Context, ref string) (*ReconcileResult, error) {
	booking, err := r.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return &ReconcileResult{Booking: booking, Previous: booking.Status}, nil
	}
	attempt := booking.LatestAttempt()
	if attempt == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAttempt, ref)
	}
	return r.HandleCallback(ctx, attempt.Gateway, attempt.GatewayOrderID, ref)
}

// ApplyPushNotification accepts an outcome that cannot be polled. Only
// push-only gateways qualify, and only when someone vouches for it.
func (r *CallbackReconciler) ApplyPushNotification(ctx context.Context, n PushNotification) (*ReconcileResult, error) {
	client, err := r.registry.Get(n.Gateway)
	if err != nil {
		return nil, err
	}
	if !isPushOnly(client) || strings.TrimSpace(n.VerifiedBy) == "" {
		return nil, ErrUntrustedNotification
	}

	booking, err := r.load(ctx, n.BookingRef)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return &ReconcileResult{Booking: booking, Previous: booking.Status}, nil
	}

	var attempt *models.PaymentAttempt
	if n.TrackingID != "" {
		attempt = booking.FindAttempt(client.Name(), n.TrackingID)
	} else {
		attempt = latestAttemptFor(booking, client.Name())
	}
	if attempt == nil {
		return nil, fmt.Errorf("%w: %s via %s", ErrNoAttempt, n.BookingRef, client.Name())
	}

	report := &models.StatusReport{
		Status:            n.Status,
		ProviderStatus:    "MANUAL_" + string(n.Status),
		MerchantReference: booking.Ref,
	}
	r.logger.Info("push notification accepted",
		zap.String("ref", booking.Ref),
		zap.String("gateway", client.Name()),
		zap.String("status", string(n.Status)),
		zap.String("verified_by", n.VerifiedBy))

	return r.apply(ctx, booking, attempt.GatewayOrderID, report, func(from models.BookingStatus) (models.BookingStatus, bool) {
		return Transition(from, n.Status)
	})
}

// Cancel moves a pending booking to CANCELLED. Settled bookings are left as they are.
func (r *CallbackReconciler) Cancel(ctx context.Context, ref, by string) (*ReconcileResult, error) {
	booking, err := r.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	r.logger.Info("booking cancellation requested", zap.String("ref", ref), zap.String("by", by))
	return r.apply(ctx, booking, "", nil, CancelTransition)
}

func (r *CallbackReconciler) load(ctx context.Context, ref string) (*models.Booking, error) {
	if ref == "" {
		return nil, ErrBookingNotFound
	}
	booking, err := r.repo.FindByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (r *CallbackReconciler) queryStatus(ctx context.Context, client GatewayClient, orderID string) (*models.StatusReport, error) {
	var token string
	if client.RequiresToken() {
		tok, err := r.tokens.GetToken(ctx, client)
		if err != nil {
			return nil, asAuthError(client.Name(), err)
		}
		token = tok.Value
	}

	statusCtx, cancel := context.WithTimeout(ctx, r.cfg.StatusTimeout)
	defer cancel()

	statusCtx, span := startGatewaySpan(statusCtx, "capture_or_get_status", client.Name(), orderID)
	report, err := client.CaptureOrGetStatus(statusCtx, token, orderID)
	endSpan(span, err)
	if err != nil {
		if IsUnauthorized(err) {
			r.tokens.Invalidate(client.Name())
		}
		return nil, err
	}
	if report == nil {
		return nil, &GatewayStatusError{Gateway: client.Name(), OrderID: orderID, Err: errors.New("empty status report")}
	}
	return report, nil
}

// corroborate checks that the report is about this booking and, for a
// completed payment, that it covers the booking amount. A completed payment
// that does not is treated as still pending.
func (r *CallbackReconciler) corroborate(booking *models.Booking, gateway, orderID string, report *models.StatusReport) (models.PaymentStatus, error) {
	switch {
	case report.MerchantReference != "" && report.MerchantReference != booking.Ref:
		return "", ErrReferenceMismatch
	case report.MerchantReference == "" && booking.FindAttempt(gateway, orderID) == nil:
		return "", ErrUncorroborated
	}

	if report.Status != models.PaymentCompleted {
		return report.Status, nil
	}
	if report.Amount > 0 && report.Amount < booking.Amount-amountTolerance {
		r.logger.Warn("completed payment below booking amount, keeping booking pending",
			zap.String("ref", booking.Ref),
			zap.Float64("reported", report.Amount),
			zap.Float64("expected", booking.Amount))
		return models.PaymentPending, nil
	}
	if report.Currency != "" && !strings.EqualFold(report.Currency, booking.Currency) {
		r.logger.Warn("completed payment in unexpected currency, keeping booking pending",
			zap.String("ref", booking.Ref),
			zap.String("reported", report.Currency),
			zap.String("expected", booking.Currency))
		return models.PaymentPending, nil
	}
	return models.PaymentCompleted, nil
}

// apply persists the transition computed by next, re-reading the booking
// when a concurrent writer got there first.
func (r *CallbackReconciler) apply(
	ctx context.Context,
	booking *models.Booking,
	orderID string,
	report *models.StatusReport,
	next func(models.BookingStatus) (models.BookingStatus, bool),
) (*ReconcileResult, error) {
	previous := booking.Status
	for i := 0; i < maxApplyRetries; i++ {
		status, changed := next(booking.Status)
		if !changed {
			return &ReconcileResult{Booking: booking, Previous: previous, Report: report}, nil
		}

		updated, err := r.repo.UpdateStatus(ctx, booking.Ref, booking.Version, status, orderID)
		if err == nil {
			r.logger.Info("booking status changed",
				zap.String("ref", updated.Ref),
				zap.String("from", string(booking.Status)),
				zap.String("to", string(updated.Status)),
				zap.String("order_id", orderID))
			r.listener.OnTransition(ctx, updated, booking.Status)
			return &ReconcileResult{Booking: updated, Previous: previous, Report: report, Changed: true}, nil
		}
		if !errors.Is(err, bookingRepo.ErrVersionConflict) && !errors.Is(err, bookingRepo.ErrNotPending) {
			return nil, err
		}

		fresh, err := r.load(ctx, booking.Ref)
		if err != nil {
			return nil, err
		}
		if fresh.Status.IsTerminal() {
			return &ReconcileResult{Booking: fresh, Previous: previous, Report: report}, nil
		}
		booking = fresh
	}
	return nil, fmt.Errorf("update booking %s: %w", booking.Ref, bookingRepo.ErrVersionConflict)
}

func latestAttemptFor(b *models.Booking, gateway string) *models.PaymentAttempt {
	for i := len(b.Attempts) - 1; i >= 0; i-- {
		if b.Attempts[i].Gateway == gateway {
			return &b.Attempts[i]
		}
	}
	return nil
}
