package pesapal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// IPNStore remembers notification ids registered for an IPN URL so restarts
// do not register the same URL again.
type IPNStore interface {
	// Get returns "" when nothing is stored for url.
	Get(ctx context.Context, url string) (string, error)
	Save(ctx context.Context, url, id string) error
}

const ipnKeyPrefix = "pesapal:ipn:"

type RedisIPNStore struct {
	client *redis.Client
}

func NewRedisIPNStore(client *redis.Client) *RedisIPNStore {
	return &RedisIPNStore{client: client}
}

func (s *RedisIPNStore) Get(ctx context.Context, url string) (string, error) {
	id, err := s.client.Get(ctx, ipnKeyPrefix+url).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (s *RedisIPNStore) Save(ctx context.Context, url, id string) error {
	return s.client.Set(ctx, ipnKeyPrefix+url, id, 0).Err()
}

type MemoryIPNStore struct {
	mu  sync.Mutex
	ids map[string]string
}

func NewMemoryIPNStore() *MemoryIPNStore {
	return &MemoryIPNStore{ids: make(map[string]string)}
}

func (s *MemoryIPNStore) Get(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[url], nil
}

func (s *MemoryIPNStore) Save(_ context.Context, url, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[url] = id
	return nil
}

type ipnRegistration struct {
	URL              string    `json:"url"`
	IPNID            string    `json:"ipn_id"`
	NotificationType string    `json:"ipn_notification_type_description"`
	IPNStatus        string    `json:"ipn_status_description"`
	Error            *apiError `json:"error"`
}

type registerIPNRequest struct {
	URL              string `json:"url"`
	NotificationType string `json:"ipn_notification_type"`
}

// EnsureIPN returns the notification id to send with orders. It prefers the
// configured id, then a stored one, then an existing registration for the
// same URL, and registers the URL only as a last resort. The result is
// memoized for the life of the client.
func (c *Client) EnsureIPN(ctx context.Context, token string) (string, error) {
	c.ipnMu.Lock()
	defer c.ipnMu.Unlock()

	if c.ipnID != "" {
		return c.ipnID, nil
	}
	if c.cfg.IPNID != "" {
		c.ipnID = c.cfg.IPNID
		return c.ipnID, nil
	}
	if c.cfg.IPNURL == "" {
		return "", errors.New("pesapal: no IPN URL configured")
	}

	id, err := c.ipns.Get(ctx, c.cfg.IPNURL)
	if err != nil {
		c.logger.Warn("failed to read stored PesaPal IPN id", zap.String("url", c.cfg.IPNURL), zap.Error(err))
	}
	if id != "" {
		c.ipnID = id
		return id, nil
	}

	id, err = c.findIPN(ctx, token)
	if err != nil {
		c.logger.Warn("failed to list PesaPal IPN registrations", zap.Error(err))
	}
	if id == "" {
		if id, err = c.registerIPN(ctx, token); err != nil {
			return "", err
		}
	}

	if err := c.ipns.Save(ctx, c.cfg.IPNURL, id); err != nil {
		c.logger.Warn("failed to persist PesaPal IPN id", zap.String("ipn_id", id), zap.Error(err))
	}
	c.logger.Info("PesaPal IPN ready, set PESAPAL_IPN_ID to pin it",
		zap.String("ipn_id", id),
		zap.String("url", c.cfg.IPNURL))

	c.ipnID = id
	return id, nil
}

func (c *Client) findIPN(ctx context.Context, token string) (string, error) {
	var list []ipnRegistration
	if _, _, err := c.do(ctx, http.MethodGet, "/api/URLSetup/GetIpnList", token, nil, &list); err != nil {
		return "", err
	}
	for _, reg := range list {
		if reg.URL == c.cfg.IPNURL && reg.IPNID != "" {
			return reg.IPNID, nil
		}
	}
	return "", nil
}

func (c *Client) registerIPN(ctx context.Context, token string) (string, error) {
	var resp ipnRegistration
	status, raw, err := c.do(ctx, http.MethodPost, "/api/URLSetup/RegisterIPN", token, registerIPNRequest{
		URL:              c.cfg.IPNURL,
		NotificationType: "GET",
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("register IPN (status %d): %w: %s", status, err, raw)
	}
	if resp.Error.present() || resp.IPNID == "" {
		return "", fmt.Errorf("register IPN (status %d): %s", status, raw)
	}
	return resp.IPNID, nil
}
