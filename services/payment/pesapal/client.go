package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"travelpay/models"
	"travelpay/services/payment"

	"go.uber.org/zap"
)

const (
	Name          = "pesapal"
	SandboxURL    = "https://cybqa.pesapal.com/pesapalv3"
	ProductionURL = "https://pay.pesapal.com/v3"

	// Tokens are documented to last five minutes; used when expiryDate is unreadable.
	defaultTokenLifetime = 5 * time.Minute
	maxDescriptionLen    = 100
	maxBodySize          = 1 << 20
)

// Config holds the merchant credentials. IPNURL is the public address PesaPal
// should notify; IPNID pins an already registered notification id.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	Environment    string
	IPNID          string
	IPNURL         string
	// BaseURL overrides the environment URL.
	BaseURL string
}

// Client talks to the PesaPal API 3.0.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	ipns    IPNStore
	logger  *zap.Logger

	ipnMu sync.Mutex
	ipnID string
}

func NewClient(cfg Config, httpClient *http.Client, ipns IPNStore, logger *zap.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = SandboxURL
		if strings.EqualFold(cfg.Environment, "production") || strings.EqualFold(cfg.Environment, "live") {
			base = ProductionURL
		}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if ipns == nil {
		ipns = NewMemoryIPNStore()
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		http:    httpClient,
		ipns:    ipns,
		logger:  logger,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) IsConfigured() bool {
	return c.cfg.ConsumerKey != "" && c.cfg.ConsumerSecret != ""
}

func (c *Client) RequiresToken() bool { return true }

type apiError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// PesaPal sends an all-null error object on success.
func (e *apiError) present() bool {
	return e != nil && (e.Code != "" || e.Message != "")
}

func (e *apiError) String() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

type authRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type authResponse struct {
	Token      string    `json:"token"`
	ExpiryDate string    `json:"expiryDate"`
	Error      *apiError `json:"error"`
	Message    string    `json:"message"`
}

func (c *Client) Authenticate(ctx context.Context) (*models.GatewayToken, error) {
	var resp authResponse
	status, raw, err := c.do(ctx, http.MethodPost, "/api/Auth/RequestToken", "", authRequest{
		ConsumerKey:    c.cfg.ConsumerKey,
		ConsumerSecret: c.cfg.ConsumerSecret,
	}, &resp)
	if err != nil {
		return nil, &payment.GatewayAuthError{Gateway: Name, StatusCode: status, Payload: string(raw), Err: err}
	}
	if resp.Error.present() || resp.Token == "" {
		return nil, &payment.GatewayAuthError{Gateway: Name, StatusCode: status, Payload: string(raw)}
	}
	return &models.GatewayToken{Value: resp.Token, ExpiresAt: parseExpiry(resp.ExpiryDate)}, nil
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func parseExpiry(s string) time.Time {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now().Add(defaultTokenLifetime)
}

type billingAddress struct {
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

type orderRequest struct {
	ID              string         `json:"id"`
	Currency        string         `json:"currency"`
	Amount          float64        `json:"amount"`
	Description     string         `json:"description"`
	CallbackURL     string         `json:"callback_url"`
	CancellationURL string         `json:"cancellation_url,omitempty"`
	NotificationID  string         `json:"notification_id"`
	BillingAddress  billingAddress `json:"billing_address"`
}

type orderResponse struct {
	OrderTrackingID   string    `json:"order_tracking_id"`
	MerchantReference string    `json:"merchant_reference"`
	RedirectURL       string    `json:"redirect_url"`
	Error             *apiError `json:"error"`
}

func (c *Client) SubmitOrder(ctx context.Context, token string, req models.OrderRequest) (*models.OrderResponse, error) {
	ipnID, err := c.EnsureIPN(ctx, token)
	if err != nil {
		return nil, &payment.GatewayOrderError{Gateway: Name, Message: "notification id unavailable", Err: err}
	}

	body := orderRequest{
		ID:              req.MerchantReference,
		Currency:        req.Currency,
		Amount:          req.Amount,
		Description:     truncateRunes(req.Description, maxDescriptionLen),
		CallbackURL:     req.CallbackURL,
		CancellationURL: req.CancelURL,
		NotificationID:  ipnID,
		BillingAddress: billingAddress{
			EmailAddress: req.Billing.Email,
			PhoneNumber:  req.Billing.Phone,
			CountryCode:  req.Billing.CountryCode,
			FirstName:    req.Billing.FirstName,
			LastName:     req.Billing.LastName,
		},
	}

	var resp orderResponse
	status, raw, err := c.do(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", token, body, &resp)
	if err != nil {
		return nil, &payment.GatewayOrderError{Gateway: Name, StatusCode: status, Message: resp.Error.describe(), Payload: string(raw), Err: err}
	}
	if resp.Error.present() {
		return nil, &payment.GatewayOrderError{Gateway: Name, StatusCode: status, Message: resp.Error.String(), Payload: string(raw)}
	}
	if resp.OrderTrackingID == "" || resp.RedirectURL == "" {
		return nil, &payment.GatewayOrderError{Gateway: Name, StatusCode: status, Message: "missing order_tracking_id or redirect_url", Payload: string(raw)}
	}

	return &models.OrderResponse{
		ProviderOrderID:   resp.OrderTrackingID,
		RedirectURL:       resp.RedirectURL,
		MerchantReference: resp.MerchantReference,
	}, nil
}

type statusResponse struct {
	PaymentMethod            string    `json:"payment_method"`
	Amount                   float64   `json:"amount"`
	ConfirmationCode         string    `json:"confirmation_code"`
	PaymentStatusDescription string    `json:"payment_status_description"`
	Description              string    `json:"description"`
	StatusCode               int       `json:"status_code"`
	MerchantReference        string    `json:"merchant_reference"`
	Currency                 string    `json:"currency"`
	Error                    *apiError `json:"error"`
}

// CaptureOrGetStatus polls GetTransactionStatus. PesaPal has no capture step.
func (c *Client) CaptureOrGetStatus(ctx context.Context, token string, orderTrackingID string) (*models.StatusReport, error) {
	path := "/api/Transactions/GetTransactionStatus?" + url.Values{"orderTrackingId": {orderTrackingID}}.Encode()

	var resp statusResponse
	status, raw, err := c.do(ctx, http.MethodGet, path, token, nil, &resp)
	if err != nil {
		return nil, &payment.GatewayStatusError{Gateway: Name, OrderID: orderTrackingID, StatusCode: status, Payload: string(raw), Err: err}
	}
	// An error alongside a status code is a regular failed payment, not a failed query.
	if resp.Error.present() && resp.PaymentStatusDescription == "" && resp.StatusCode == 0 {
		return nil, &payment.GatewayStatusError{Gateway: Name, OrderID: orderTrackingID, StatusCode: status, Payload: string(raw)}
	}

	return &models.StatusReport{
		Status:            MapStatus(resp.PaymentStatusDescription, resp.StatusCode),
		ProviderStatus:    resp.PaymentStatusDescription,
		MerchantReference: resp.MerchantReference,
		Amount:            resp.Amount,
		Currency:          resp.Currency,
		ConfirmationCode:  resp.ConfirmationCode,
	}, nil
}

func (e *apiError) describe() string {
	if !e.present() {
		return ""
	}
	return e.String()
}

// do sends a JSON request and decodes a JSON response into out. Non-2xx
// responses are returned as errors along with the raw body.
func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, out); jsonErr != nil && resp.StatusCode < 300 {
			return resp.StatusCode, raw, fmt.Errorf("decode response: %w", jsonErr)
		}
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, raw, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}
	return resp.StatusCode, raw, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
