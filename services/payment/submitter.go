package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	bookingRepo "travelpay/database/repository/booking"
	"travelpay/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimulatedGateway is recorded on attempts made in simulation mode.
const SimulatedGateway = "simulated"

// SubmitterConfig holds the URLs and limits used when submitting orders.
type SubmitterConfig struct {
	CallbackBaseURL string
	PublicBaseURL   string

	// SimulatePayments marks bookings PAID without any provider when no
	// gateway is configured. Never enable outside development.
	SimulatePayments bool
	OrderTimeout     time.Duration
	AttemptTTL       time.Duration
	LockTTL          time.Duration
}

// SubmitResult is what the web layer needs to redirect the customer.
type SubmitResult struct {
	BookingRef      string `json:"booking_ref"`
	Gateway         string `json:"gateway"`
	ProviderOrderID string `json:"provider_order_id"`
	RedirectURL     string `json:"redirect_url"`
	Simulated       bool   `json:"simulated"`
	Deduplicated    bool   `json:"deduplicated"`
}

// OrderSubmitter turns a pending booking into a provider order.
type OrderSubmitter struct {
	repo     bookingRepo.BookingRepository
	registry *Registry
	tokens   *TokenCache
	lock     SubmissionLock
	listener TransitionListener
	cfg      SubmitterConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrderSubmitter(
	repo bookingRepo.BookingRepository,
	registry *Registry,
	tokens *TokenCache,
	lock SubmissionLock,
	listener TransitionListener,
	cfg SubmitterConfig,
	logger *zap.Logger,
) *OrderSubmitter {
	if listener == nil {
		listener = noopListener{}
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 30 * time.Second
	}
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = 30 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.OrderTimeout + 15*time.Second
	}
	return &OrderSubmitter{
		repo:     repo,
		registry: registry,
		tokens:   tokens,
		lock:     lock,
		listener: listener,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit creates (or reuses) the payment attempt for a pending booking and
// returns where to send the customer. requestedGateway may be empty.
func (s *OrderSubmitter) Submit(ctx context.Context, ref, requestedGateway string) (*SubmitResult, error) {
	release, err := s.lock.Acquire(ctx, ref, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	booking, err := s.repo.FindByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if booking.Status != models.BookingPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidBookingState, ref, booking.Status)
	}

	active := booking.ActiveAttempt(s.now(), s.cfg.AttemptTTL)
	if active != nil && requestedGateway == "" {
		return s.reuse(ref, active), nil
	}

	client, err := s.registry.Select(requestedGateway)
	if err != nil {
		if errors.Is(err, ErrNoGatewayConfigured) && s.cfg.SimulatePayments && len(s.registry.Configured()) == 0 {
			return s.simulate(ctx, booking)
		}
		return nil, err
	}

	if active != nil {
		if active.Gateway != client.Name() {
			return nil, fmt.Errorf("%w: %s via %s", ErrAttemptActive, ref, active.Gateway)
		}
		return s.reuse(ref, active), nil
	}

	var token string
	if client.RequiresToken() {
		tok, err := s.tokens.GetToken(ctx, client)
		if err != nil {
			s.logger.Error("gateway authentication failed", zap.String("ref", ref), zap.String("gateway", client.Name()), zap.Error(err))
			return nil, asAuthError(client.Name(), err)
		}
		token = tok.Value
	}

	attemptID := uuid.New().String()
	req := s.buildOrderRequest(booking, client.Name(), attemptID)

	orderCtx, cancel := context.WithTimeout(ctx, s.cfg.OrderTimeout)
	defer cancel()

	orderCtx, span := startGatewaySpan(orderCtx, "submit_order", client.Name(), ref)
	resp, err := client.SubmitOrder(orderCtx, token, req)
	endSpan(span, err)
	if err != nil {
		s.logger.Error("order submission failed", zap.String("ref", ref), zap.String("gateway", client.Name()), zap.Error(err))
		if client.RequiresToken() && IsUnauthorized(err) {
			s.tokens.Invalidate(client.Name())
		}
		return nil, asOrderError(client.Name(), err)
	}
	if resp.ProviderOrderID == "" || resp.RedirectURL == "" {
		return nil, &GatewayOrderError{Gateway: client.Name(), Message: "provider response has no order id or redirect url"}
	}

	attempt := models.PaymentAttempt{
		ID:             attemptID,
		BookingRef:     ref,
		Gateway:        client.Name(),
		GatewayOrderID: resp.ProviderOrderID,
		RedirectURL:    resp.RedirectURL,
		SubmittedAt:    s.now().UTC(),
	}
	if _, err := s.repo.RecordAttempt(ctx, ref, booking.Version, attempt); err != nil {
		// The provider order exists but is not ours to hand out anymore.
		s.logger.Warn("payment attempt not recorded",
			zap.String("ref", ref),
			zap.String("gateway", client.Name()),
			zap.String("order_id", resp.ProviderOrderID),
			zap.Error(err))
		if errors.Is(err, bookingRepo.ErrVersionConflict) {
			return nil, ErrSubmissionInProgress
		}
		if errors.Is(err, bookingRepo.ErrNotPending) {
			return nil, ErrInvalidBookingState
		}
		return nil, err
	}

	s.logger.Info("payment order submitted",
		zap.String("ref", ref),
		zap.String("gateway", client.Name()),
		zap.String("order_id", resp.ProviderOrderID))

	return &SubmitResult{
		BookingRef:      ref,
		Gateway:         client.Name(),
		ProviderOrderID: resp.ProviderOrderID,
		RedirectURL:     resp.RedirectURL,
	}, nil
}

func (s *OrderSubmitter) reuse(ref string, active *models.PaymentAttempt) *SubmitResult {
	s.logger.Info("reusing active payment attempt",
		zap.String("ref", ref),
		zap.String("gateway", active.Gateway),
		zap.String("order_id", active.GatewayOrderID))
	return &SubmitResult{
		BookingRef:      ref,
		Gateway:         active.Gateway,
		ProviderOrderID: active.GatewayOrderID,
		RedirectURL:     active.RedirectURL,
		Deduplicated:    true,
	}
}

func (s *OrderSubmitter) buildOrderRequest(b *models.Booking, gateway, attemptID string) models.OrderRequest {
	description := b.Description
	if description == "" {
		description = "Booking " + b.Ref
	}
	return models.OrderRequest{
		MerchantReference: b.Ref,
		IdempotencyKey:    attemptID,
		Amount:            b.Amount,
		Currency:          strings.ToUpper(b.Currency),
		Description:       description,
		CallbackURL:       CallbackURL(s.cfg.CallbackBaseURL, gateway, "callback", b.Ref),
		CancelURL:         CallbackURL(s.cfg.CallbackBaseURL, gateway, "cancel", b.Ref),
		Billing:           b.Customer,
	}
}

// simulate marks the booking paid without contacting any provider.
func (s *OrderSubmitter) simulate(ctx context.Context, booking *models.Booking) (*SubmitResult, error) {
	orderID := "SIM-" + booking.Ref
	s.logger.Warn("SIMULATED PAYMENT: no gateway configured, marking booking paid",
		zap.String("ref", booking.Ref),
		zap.Float64("amount", booking.Amount),
		zap.String("currency", booking.Currency))

	redirect := PageURL(s.cfg.PublicBaseURL, "success", booking.Ref)
	attempt := models.PaymentAttempt{
		ID:             uuid.New().String(),
		BookingRef:     booking.Ref,
		Gateway:        SimulatedGateway,
		GatewayOrderID: orderID,
		RedirectURL:    redirect,
		SubmittedAt:    s.now().UTC(),
	}
	recorded, err := s.repo.RecordAttempt(ctx, booking.Ref, booking.Version, attempt)
	if err != nil {
		return nil, err
	}

	next, _ := Transition(recorded.Status, models.PaymentCompleted)
	updated, err := s.repo.UpdateStatus(ctx, booking.Ref, recorded.Version, next, orderID)
	if err != nil {
		return nil, err
	}
	s.listener.OnTransition(ctx, updated, booking.Status)

	return &SubmitResult{
		BookingRef:      booking.Ref,
		Gateway:         SimulatedGateway,
		ProviderOrderID: orderID,
		RedirectURL:     redirect,
		Simulated:       true,
	}, nil
}

// CallbackURL builds the provider return URL for a booking, e.g.
// https://api.example.com/api/payments/pesapal/callback?ref=SEV-1001.
func CallbackURL(base, gateway, action, ref string) string {
	q := url.Values{"ref": {ref}}
	return fmt.Sprintf("%s/api/payments/%s/%s?%s", strings.TrimRight(base, "/"), gateway, action, q.Encode())
}

// PageURL builds a customer-facing result page URL ("success", "failed", "pending").
func PageURL(base, page, ref string) string {
	q := url.Values{"ref": {ref}}
	return fmt.Sprintf("%s/payment/%s?%s", strings.TrimRight(base, "/"), page, q.Encode())
}

func asAuthError(gateway string, err error) error {
	var authErr *GatewayAuthError
	if errors.As(err, &authErr) {
		return err
	}
	return &GatewayAuthError{Gateway: gateway, Err: err}
}

func asOrderError(gateway string, err error) error {
	var orderErr *GatewayOrderError
	if errors.As(err, &orderErr) {
		return err
	}
	var authErr *GatewayAuthError
	if errors.As(err, &authErr) {
		return err
	}
	return &GatewayOrderError{Gateway: gateway, Err: err}
}
