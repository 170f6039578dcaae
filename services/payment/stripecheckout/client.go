package stripecheckout

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"travelpay/models"
	"travelpay/services/payment"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

const Name = "stripe"

type Config struct {
	SecretKey     string
	WebhookSecret string

	// BackendURL overrides api.stripe.com.
	BackendURL        string
	MaxNetworkRetries int64
}

// Client creates Stripe Checkout Sessions. Stripe authenticates every call
// with the secret key, so no bearer token is cached for it.
type Client struct {
	payment.NoTokenAuth

	cfg    Config
	api    *client.API
	logger *zap.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     logger.Sugar(),
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &Client{cfg: cfg, api: api, logger: logger}
}

func (c *Client) Name() string { return Name }

func (c *Client) IsConfigured() bool { return c.cfg.SecretKey != "" }

func (c *Client) SubmitOrder(ctx context.Context, _ string, req models.OrderRequest) (*models.OrderResponse, error) {
	currency := strings.ToLower(req.Currency)
	description := req.Description
	if description == "" {
		description = "Booking " + req.MerchantReference
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.MerchantReference),
		SuccessURL:        stripe.String(successURL(req.CallbackURL)),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(ToMinorUnits(req.Amount, currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(description),
				},
			},
		}},
	}
	if req.Billing.Email != "" {
		params.CustomerEmail = stripe.String(req.Billing.Email)
	}
	params.AddMetadata("booking_ref", req.MerchantReference)
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		status, msg := describe(err)
		return nil, &payment.GatewayOrderError{Gateway: Name, StatusCode: status, Message: msg, Err: err}
	}
	if session.URL == "" {
		return nil, &payment.GatewayOrderError{Gateway: Name, Message: "checkout session has no url"}
	}

	return &models.OrderResponse{
		ProviderOrderID:   session.ID,
		RedirectURL:       session.URL,
		MerchantReference: session.ClientReferenceID,
	}, nil
}

// CaptureOrGetStatus reads the Checkout Session. Stripe captures on its own.
func (c *Client) CaptureOrGetStatus(ctx context.Context, _ string, sessionID string) (*models.StatusReport, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		status, _ := describe(err)
		return nil, &payment.GatewayStatusError{Gateway: Name, OrderID: sessionID, StatusCode: status, Err: err}
	}

	currency := string(session.Currency)
	return &models.StatusReport{
		Status:            MapStatus(string(session.Status), string(session.PaymentStatus)),
		ProviderStatus:    string(session.Status) + "/" + string(session.PaymentStatus),
		MerchantReference: session.ClientReferenceID,
		Amount:            FromMinorUnits(session.AmountTotal, currency),
		Currency:          strings.ToUpper(currency),
	}, nil
}

// successURL asks Stripe to append the session id to our callback.
func successURL(callback string) string {
	sep := "?"
	if strings.Contains(callback, "?") {
		sep = "&"
	}
	return callback + sep + "session_id={CHECKOUT_SESSION_ID}"
}

func describe(err error) (int, string) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode, stripeErr.Msg
	}
	return 0, ""
}

// zeroDecimal lists the currencies Stripe charges in whole units.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

func ToMinorUnits(amount float64, currency string) int64 {
	if zeroDecimal[strings.ToLower(currency)] {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(amount int64, currency string) float64 {
	if zeroDecimal[strings.ToLower(currency)] {
		return float64(amount)
	}
	return float64(amount) / 100
}
