package payment

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoGatewayConfigured   = errors.New("no payment gateway configured")
	ErrUnknownGateway        = errors.New("unknown payment gateway")
	ErrInvalidBookingState   = errors.New("booking is not pending payment")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrSubmissionInProgress  = errors.New("payment submission already in progress for booking")
	ErrAttemptActive         = errors.New("booking has an active payment attempt with another gateway")
	ErrTokenNotRequired      = errors.New("gateway authenticates requests without a bearer token")
	ErrUntrustedNotification = errors.New("payment notification cannot be trusted without provider corroboration")
	ErrNoAttempt             = errors.New("booking has no recorded payment attempt")
	ErrReferenceMismatch     = errors.New("provider order belongs to a different booking")
	ErrUncorroborated        = errors.New("provider status cannot be tied to the booking")
)

// GatewayAuthError reports a failed login with a provider. Payload carries the
// provider's raw response for diagnostics.
type GatewayAuthError struct {
	Gateway    string
	StatusCode int
	Payload    string
	Err        error
}

func (e *GatewayAuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (status %d): %s", e.Gateway, e.StatusCode, describe(e.Payload, e.Err))
}

func (e *GatewayAuthError) Unwrap() error { return e.Err }

// GatewayOrderError reports an order the provider rejected. Message is the
// provider's own explanation when it sent one.
type GatewayOrderError struct {
	Gateway    string
	StatusCode int
	Message    string
	Payload    string
	Err        error
}

func (e *GatewayOrderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = describe(e.Payload, e.Err)
	}
	return fmt.Sprintf("%s: order rejected (status %d): %s", e.Gateway, e.StatusCode, msg)
}

func (e *GatewayOrderError) Unwrap() error { return e.Err }

// GatewayStatusError reports a failed status query or capture.
type GatewayStatusError struct {
	Gateway    string
	OrderID    string
	StatusCode int
	Payload    string
	Err        error
}

func (e *GatewayStatusError) Error() string {
	return fmt.Sprintf("%s: status query for %s failed (status %d): %s", e.Gateway, e.OrderID, e.StatusCode, describe(e.Payload, e.Err))
}

func (e *GatewayStatusError) Unwrap() error { return e.Err }

// IsPermanent reports whether retrying a reconcile can never succeed: the
// booking or attempt is missing, or the provider order is not this booking's.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrNoAttempt) ||
		errors.Is(err, ErrUnknownGateway) ||
		errors.Is(err, ErrReferenceMismatch) ||
		errors.Is(err, ErrUncorroborated)
}

// IsUnauthorized reports whether a provider refused the bearer token.
func IsUnauthorized(err error) bool {
	var authErr *GatewayAuthError
	if errors.As(err, &authErr) && authErr.StatusCode == http.StatusUnauthorized {
		return true
	}
	var orderErr *GatewayOrderError
	if errors.As(err, &orderErr) && orderErr.StatusCode == http.StatusUnauthorized {
		return true
	}
	var statusErr *GatewayStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized
}

func describe(payload string, err error) string {
	switch {
	case payload != "" && err != nil:
		return fmt.Sprintf("%v: %s", err, truncate(payload, 512))
	case payload != "":
		return truncate(payload, 512)
	case err != nil:
		return err.Error()
	default:
		return "no details"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
