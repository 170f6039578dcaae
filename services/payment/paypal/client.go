package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"travelpay/models"
	"travelpay/services/payment"

	"go.uber.org/zap"
)

const (
	Name          = "paypal"
	SandboxURL    = "https://api-m.sandbox.paypal.com"
	ProductionURL = "https://api-m.paypal.com"

	maxDescriptionLen = 127
	maxBodySize       = 1 << 20
)

type Config struct {
	ClientID     string
	ClientSecret string
	Environment  string
	BrandName    string
	BaseURL      string
}

// Client implements the Orders v2 checkout flow: create, approve on PayPal,
// capture on return.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
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
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		http:    httpClient,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) IsConfigured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

func (c *Client) RequiresToken() bool { return true }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) Authenticate(ctx context.Context) (*models.GatewayToken, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &payment.GatewayAuthError{Gateway: Name, Err: err}
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp tokenResponse
	status, raw, err := c.send(req, &resp)
	if err != nil {
		return nil, &payment.GatewayAuthError{Gateway: Name, StatusCode: status, Payload: string(raw), Err: err}
	}
	if resp.AccessToken == "" {
		return nil, &payment.GatewayAuthError{Gateway: Name, StatusCode: status, Payload: string(raw)}
	}
	return &models.GatewayToken{
		Value:     resp.AccessToken,
		ExpiresAt: c.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type capture struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   *money `json:"amount,omitempty"`
	CustomID string `json:"custom_id,omitempty"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      *money `json:"amount,omitempty"`
	Payments    *struct {
		Captures []capture `json:"captures"`
	} `json:"payments,omitempty"`
}

type applicationContext struct {
	ReturnURL          string `json:"return_url"`
	CancelURL          string `json:"cancel_url"`
	BrandName          string `json:"brand_name,omitempty"`
	UserAction         string `json:"user_action"`
	ShippingPreference string `json:"shipping_preference"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Links         []link         `json:"links"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e apiError) hasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

func (e apiError) String() string {
	if len(e.Details) > 0 && e.Details[0].Description != "" {
		return e.Details[0].Issue + ": " + e.Details[0].Description
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Name
}

func (c *Client) SubmitOrder(ctx context.Context, token string, req models.OrderRequest) (*models.OrderResponse, error) {
	currency := strings.ToUpper(req.Currency)
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.MerchantReference,
			CustomID:    req.MerchantReference,
			Description: truncateRunes(req.Description, maxDescriptionLen),
			Amount:      &money{CurrencyCode: currency, Value: FormatAmount(req.Amount, currency)},
		}},
		ApplicationContext: applicationContext{
			ReturnURL:          req.CallbackURL,
			CancelURL:          req.CancelURL,
			BrandName:          c.cfg.BrandName,
			UserAction:         "PAY_NOW",
			ShippingPreference: "NO_SHIPPING",
		},
	}

	httpReq, err := c.jsonRequest(ctx, http.MethodPost, "/v2/checkout/orders", token, body)
	if err != nil {
		return nil, &payment.GatewayOrderError{Gateway: Name, Err: err}
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("PayPal-Request-Id", req.IdempotencyKey)
	}

	var o order
	status, raw, err := c.send(httpReq, &o)
	if err != nil {
		return nil, &payment.GatewayOrderError{Gateway: Name, StatusCode: status, Message: decodeError(raw).String(), Payload: string(raw), Err: err}
	}

	redirect := approvalLink(o.Links)
	if o.ID == "" || redirect == "" {
		return nil, &payment.GatewayOrderError{Gateway: Name, StatusCode: status, Message: "order has no approval link", Payload: string(raw)}
	}
	return &models.OrderResponse{
		ProviderOrderID:   o.ID,
		RedirectURL:       redirect,
		MerchantReference: req.MerchantReference,
	}, nil
}

// CaptureOrGetStatus reads the order and captures it once the buyer has
// approved. A capture that lost a race with another capture re-reads the order.
func (c *Client) CaptureOrGetStatus(ctx context.Context, token string, orderID string) (*models.StatusReport, error) {
	o, err := c.getOrder(ctx, token, orderID)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(o.Status, "APPROVED") {
		captured, status, raw, err := c.capture(ctx, token, orderID)
		switch {
		case err == nil:
			o = captured
		case status == http.StatusUnprocessableEntity && decodeError(raw).hasIssue("ORDER_ALREADY_CAPTURED"):
			c.logger.Info("paypal order already captured, re-reading", zap.String("order_id", orderID))
			if o, err = c.getOrder(ctx, token, orderID); err != nil {
				return nil, err
			}
		default:
			return nil, &payment.GatewayStatusError{Gateway: Name, OrderID: orderID, StatusCode: status, Payload: string(raw), Err: err}
		}
	}

	return buildReport(o), nil
}

func (c *Client) getOrder(ctx context.Context, token, orderID string) (*order, error) {
	req, err := c.jsonRequest(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), token, nil)
	if err != nil {
		return nil, &payment.GatewayStatusError{Gateway: Name, OrderID: orderID, Err: err}
	}
	var o order
	status, raw, err := c.send(req, &o)
	if err != nil {
		return nil, &payment.GatewayStatusError{Gateway: Name, OrderID: orderID, StatusCode: status, Payload: string(raw), Err: err}
	}
	return &o, nil
}

func (c *Client) capture(ctx context.Context, token, orderID string) (*order, int, []byte, error) {
	req, err := c.jsonRequest(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", token, struct{}{})
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("PayPal-Request-Id", "capture-"+orderID)
	req.Header.Set("Prefer", "return=representation")

	var o order
	status, raw, err := c.send(req, &o)
	if err != nil {
		return nil, status, raw, err
	}
	return &o, status, raw, nil
}

func buildReport(o *order) *models.StatusReport {
	report := &models.StatusReport{ProviderStatus: o.Status}
	var captureStatus string

	if len(o.PurchaseUnits) > 0 {
		pu := o.PurchaseUnits[0]
		report.MerchantReference = pu.ReferenceID
		if report.MerchantReference == "" {
			report.MerchantReference = pu.CustomID
		}
		amount := pu.Amount
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			latest := pu.Payments.Captures[len(pu.Payments.Captures)-1]
			captureStatus = latest.Status
			report.ConfirmationCode = latest.ID
			report.ProviderStatus = o.Status + "/" + latest.Status
			if latest.Amount != nil {
				amount = latest.Amount
			}
		}
		if amount != nil {
			report.Currency = amount.CurrencyCode
			report.Amount, _ = strconv.ParseFloat(amount.Value, 64)
		}
	}

	report.Status = MapStatus(o.Status, captureStatus)
	return report
}

func approvalLink(links []link) string {
	for _, rel := range []string{"payer-action", "approve"} {
		for _, l := range links {
			if l.Rel == rel {
				return l.Href
			}
		}
	}
	return ""
}

func decodeError(raw []byte) apiError {
	var e apiError
	_ = json.Unmarshal(raw, &e)
	return e
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, in interface{}) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) send(req *http.Request, out interface{}) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, raw, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, raw, nil
}

// zeroDecimal currencies are sent without a fractional part.
var zeroDecimal = map[string]bool{"HUF": true, "JPY": true, "TWD": true}

// FormatAmount renders an amount the way the Orders API expects it.
func FormatAmount(amount float64, currency string) string {
	if zeroDecimal[strings.ToUpper(currency)] {
		return strconv.FormatFloat(amount, 'f', 0, 64)
	}
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
