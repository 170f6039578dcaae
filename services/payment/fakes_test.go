package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	bookingRepo "travelpay/database/repository/booking"
	"travelpay/models"

	"github.com/stretchr/testify/mock"
)

// fakeGateway is a scriptable GatewayClient.
type fakeGateway struct {
	name       string
	configured bool
	needsToken bool
	pushOnly   bool

	mu         sync.Mutex
	authCalls  int
	submits    int
	polls      int
	tokenTTL   time.Duration
	clock      func() time.Time
	authDelay  time.Duration
	ctxAware   bool
	orderDelay time.Duration
	authErr    error
	submitErr  error
	statusErr  error
	response   *models.OrderResponse
	report     *models.StatusReport
	lastToken  string
	lastReq    models.OrderRequest
	lastPolled string
}

func newFakeGateway(name string, needsToken bool) *fakeGateway {
	return &fakeGateway{
		name:       name,
		configured: true,
		needsToken: needsToken,
		tokenTTL:   10 * time.Minute,
		clock:      time.Now,
	}
}

func (f *fakeGateway) Name() string        { return f.name }
func (f *fakeGateway) IsConfigured() bool  { return f.configured }
func (f *fakeGateway) RequiresToken() bool { return f.needsToken }
func (f *fakeGateway) PushOnly() bool      { return f.pushOnly }

func (f *fakeGateway) Authenticate(ctx context.Context) (*models.GatewayToken, error) {
	if f.authDelay > 0 {
		time.Sleep(f.authDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.ctxAware && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &models.GatewayToken{
		Value:     fmt.Sprintf("tok-%d", f.authCalls),
		ExpiresAt: f.clock().Add(f.tokenTTL),
	}, nil
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, token string, req models.OrderRequest) (*models.OrderResponse, error) {
	if f.orderDelay > 0 {
		time.Sleep(f.orderDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.lastToken = token
	f.lastReq = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.response != nil {
		resp := *f.response
		return &resp, nil
	}
	return &models.OrderResponse{
		ProviderOrderID:   fmt.Sprintf("%s-order-%d", f.name, f.submits),
		RedirectURL:       fmt.Sprintf("https://%s.test/pay/%d", f.name, f.submits),
		MerchantReference: req.MerchantReference,
	}, nil
}

func (f *fakeGateway) CaptureOrGetStatus(ctx context.Context, token string, providerOrderID string) (*models.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	f.lastToken = token
	f.lastPolled = providerOrderID
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.report == nil {
		return &models.StatusReport{Status: models.PaymentPending}, nil
	}
	report := *f.report
	return &report, nil
}

func (f *fakeGateway) counts() (auth, submits, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls, f.submits, f.polls
}

type mockListener struct {
	mock.Mock
}

func (m *mockListener) OnTransition(ctx context.Context, booking *models.Booking, from models.BookingStatus) {
	m.Called(ctx, booking, from)
}

func bookingWithStatus(status models.BookingStatus) interface{} {
	return mock.MatchedBy(func(b *models.Booking) bool { return b.Status == status })
}

func newBooking(ref string) *models.Booking {
	return &models.Booking{
		Ref:         ref,
		Description: "Serengeti 3-day safari",
		Amount:      250,
		Currency:    "USD",
		Status:      models.BookingPending,
		Customer: models.Contact{
			FirstName:   "Amina",
			LastName:    "Otieno",
			Email:       "amina@example.com",
			Phone:       "+254700000001",
			CountryCode: "KE",
		},
	}
}

// stepClock is a manually advanced clock.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// interferingRepo runs hook once, just before the first UpdateStatus, to
// simulate a concurrent writer.
type interferingRepo struct {
	*bookingRepo.MemoryBookingRepo
	once sync.Once
	hook func(ctx context.Context, repo *bookingRepo.MemoryBookingRepo, ref string)
}

func (r *interferingRepo) UpdateStatus(ctx context.Context, ref string, expectedVersion int, status models.BookingStatus, gatewayOrderID string) (*models.Booking, error) {
	r.once.Do(func() { r.hook(ctx, r.MemoryBookingRepo, ref) })
	return r.MemoryBookingRepo.UpdateStatus(ctx, ref, expectedVersion, status, gatewayOrderID)
}
