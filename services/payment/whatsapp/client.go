package whatsapp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"travelpay/models"
	"travelpay/services/payment"
)

const Name = "whatsapp"

// Client is the manual fallback: the customer messages the operator on
// WhatsApp and an admin confirms the payment by hand. There is nothing to
// poll, so the admin confirmation is the only way a booking settles.
type Client struct {
	payment.NoTokenAuth

	number string
	brand  string
}

// NewClient takes the operator's number in international format.
func NewClient(number, brand string) *Client {
	return &Client{number: digitsOnly(number), brand: brand}
}

func (c *Client) Name() string { return Name }

func (c *Client) IsConfigured() bool { return c.number != "" }

func (c *Client) PushOnly() bool { return true }

func (c *Client) SubmitOrder(_ context.Context, _ string, req models.OrderRequest) (*models.OrderResponse, error) {
	if c.number == "" {
		return nil, &payment.GatewayOrderError{Gateway: Name, Message: "no WhatsApp number configured"}
	}
	return &models.OrderResponse{
		ProviderOrderID:   OrderID(req.MerchantReference),
		RedirectURL:       "https://wa.me/" + c.number + "?" + url.Values{"text": {c.message(req)}}.Encode(),
		MerchantReference: req.MerchantReference,
	}, nil
}

// CaptureOrGetStatus always reports PENDING.
func (c *Client) CaptureOrGetStatus(_ context.Context, _ string, orderID string) (*models.StatusReport, error) {
	return &models.StatusReport{
		Status:         models.PaymentPending,
		ProviderStatus: "AWAITING_MANUAL_CONFIRMATION",
	}, nil
}

func OrderID(ref string) string { return "WA-" + ref }

func (c *Client) message(req models.OrderRequest) string {
	var b strings.Builder
	if c.brand != "" {
		fmt.Fprintf(&b, "Hello %s, ", c.brand)
	} else {
		b.WriteString("Hello, ")
	}
	fmt.Fprintf(&b, "I would like to pay for booking %s", req.MerchantReference)
	if req.Description != "" {
		fmt.Fprintf(&b, " (%s)", req.Description)
	}
	fmt.Fprintf(&b, ". Amount: %s %s.", strings.ToUpper(req.Currency), strconv.FormatFloat(req.Amount, 'f', 2, 64))
	return b.String()
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
