package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"travelpay/models"

	"golang.org/x/sync/singleflight"
)

// TokenCache keeps one bearer token per gateway for the life of the process.
// A cached token is handed out only while now < ExpiresAt - margin.
type TokenCache struct {
	margin      time.Duration
	authTimeout time.Duration
	now         func() time.Time

	mu     sync.RWMutex
	tokens map[string]*models.GatewayToken
	group  singleflight.Group
}

type TokenCacheOption func(*TokenCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenCacheOption {
	return func(c *TokenCache) { c.now = now }
}

// WithAuthTimeout bounds each Authenticate call.
func WithAuthTimeout(d time.Duration) TokenCacheOption {
	return func(c *TokenCache) { c.authTimeout = d }
}

func NewTokenCache(margin time.Duration, opts ...TokenCacheOption) *TokenCache {
	if margin < 0 {
		margin = 0
	}
	c := &TokenCache{
		margin:      margin,
		authTimeout: 30 * time.Second,
		now:         time.Now,
		tokens:      make(map[string]*models.GatewayToken),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetToken returns a usable token for client, authenticating when the cached
// one is missing or inside the safety margin.
func (c *TokenCache) GetToken(ctx context.Context, client GatewayClient) (*models.GatewayToken, error) {
	name := client.Name()
	if tok := c.cached(name); tok != nil {
		return tok, nil
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		// Another caller may have refreshed while we waited on the group.
		if tok := c.cached(name); tok != nil {
			return tok, nil
		}

		// Waiters share this login, so one caller going away must not fail it.
		authCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.authTimeout)
		defer cancel()

		tok, err := client.Authenticate(authCtx)
		if err != nil {
			return nil, err
		}
		if tok == nil || tok.Value == "" {
			return nil, &GatewayAuthError{Gateway: name, Err: fmt.Errorf("empty token")}
		}

		c.mu.Lock()
		c.tokens[name] = tok
		c.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.GatewayToken), nil
}

// Invalidate drops the cached token for a gateway, e.g. after a 401.
func (c *TokenCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.tokens, name)
	c.mu.Unlock()
}

func (c *TokenCache) cached(name string) *models.GatewayToken {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tok := c.tokens[name]
	if tok.ValidAt(c.now(), c.margin) {
		return tok
	}
	return nil
}
