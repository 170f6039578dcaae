package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SubmissionLock serialises order submissions per booking. Acquire returns
// ErrSubmissionInProgress while another holder owns the key.
type SubmissionLock interface {
	Acquire(ctx context.Context, bookingRef string, ttl time.Duration) (release func(), err error)
}

const submitLockPrefix = "payment:submit:"

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisSubmissionLock is shared by every instance using the same Redis.
type RedisSubmissionLock struct {
	client *redis.Client
}

func NewRedisSubmissionLock(client *redis.Client) *RedisSubmissionLock {
	return &RedisSubmissionLock{client: client}
}

func (l *RedisSubmissionLock) Acquire(ctx context.Context, bookingRef string, ttl time.Duration) (func(), error) {
	key := submitLockPrefix + bookingRef
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submission lock for %s: %w", bookingRef, err)
	}
	if !ok {
		return nil, ErrSubmissionInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(ctx, l.client, []string{key}, token)
	}, nil
}

// MemorySubmissionLock is the single-process variant.
type MemorySubmissionLock struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemorySubmissionLock() *MemorySubmissionLock {
	return &MemorySubmissionLock{held: make(map[string]time.Time), now: time.Now}
}

func (l *MemorySubmissionLock) Acquire(_ context.Context, bookingRef string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[bookingRef]; ok && now.Before(until) {
		return nil, ErrSubmissionInProgress
	}
	until := now.Add(ttl)
	l.held[bookingRef] = until

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[bookingRef] == until {
			delete(l.held, bookingRef)
		}
	}, nil
}
