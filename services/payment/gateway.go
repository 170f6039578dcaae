package payment

import (
	"context"

	"travelpay/models"
)

// GatewayClient is implemented once per payment provider. The submitter and
// reconciler depend only on this contract.
type GatewayClient interface {
	// Name is the stable identifier used in config, routes and stored attempts.
	Name() string
	// IsConfigured reports whether the provider's credentials are present.
	IsConfigured() bool
	// RequiresToken is false for providers that authenticate every request
	// themselves; such providers are never asked to Authenticate.
	RequiresToken() bool
	Authenticate(ctx context.Context) (*models.GatewayToken, error)
	SubmitOrder(ctx context.Context, token string, req models.OrderRequest) (*models.OrderResponse, error)
	// CaptureOrGetStatus captures a provider-held authorization or polls the
	// order's status, and maps the result into the canonical enum.
	CaptureOrGetStatus(ctx context.Context, token string, providerOrderID string) (*models.StatusReport, error)
}

// PushOnly is implemented by providers that have no status endpoint; their
// verified notifications are authoritative.
type PushOnly interface {
	PushOnly() bool
}

// NoTokenAuth can be embedded by self-authenticating providers.
type NoTokenAuth struct{}

func (NoTokenAuth) RequiresToken() bool { return false }

func (NoTokenAuth) Authenticate(context.Context) (*models.GatewayToken, error) {
	return nil, ErrTokenNotRequired
}

func isPushOnly(c GatewayClient) bool {
	p, ok := c.(PushOnly)
	return ok && p.PushOnly()
}
