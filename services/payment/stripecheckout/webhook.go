package stripecheckout

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76/webhook"
)

var ErrIgnoredEvent = errors.New("stripe event type not handled")

// reconcileEvents are the session events that can change a booking.
var reconcileEvents = map[string]bool{
	"checkout.session.completed":               true,
	"checkout.session.async_payment_succeeded": true,
	"checkout.session.async_payment_failed":    true,
	"checkout.session.expired":                 true,
}

// WebhookEvent is the part of a verified event needed to trigger a reconcile.
type WebhookEvent struct {
	ID         string
	Type       string
	SessionID  string
	BookingRef string
}

// ParseWebhook verifies the Stripe-Signature header and extracts the session.
// Events that cannot affect a booking return ErrIgnoredEvent.
func (c *Client) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if c.cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify stripe webhook: %w", err)
	}
	if !reconcileEvents[string(event.Type)] {
		return nil, ErrIgnoredEvent
	}

	var session struct {
		ID                string            `json:"id"`
		ClientReferenceID string            `json:"client_reference_id"`
		Metadata          map[string]string `json:"metadata"`
	}
	if event.Data == nil {
		return nil, errors.New("stripe event has no data")
	}
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	ref := session.ClientReferenceID
	if ref == "" {
		ref = session.Metadata["booking_ref"]
	}
	return &WebhookEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		SessionID:  session.ID,
		BookingRef: ref,
	}, nil
}
