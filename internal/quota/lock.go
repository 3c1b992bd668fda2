package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when the per-organization lock stays busy.
var ErrLockTimeout = errors.New("quota lock busy")

// Locker serializes the check-then-write window for one organization.
type Locker interface {
	Lock(ctx context.Context, orgID uuid.UUID) (unlock func(), err error)
}

// NopLocker accepts the documented race: two concurrent growth requests may
// both pass the check.
type NopLocker struct{}

func (NopLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}

// WithLock runs fn while holding orgID's lock. A busy lock is reported as a
// conflict the caller may retry.
func WithLock(ctx context.Context, locker Locker, orgID uuid.UUID, fn func() error) error {
	unlock, err := locker.Lock(ctx, orgID)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return apperr.Conflict("Another change to this organization is in progress, please retry")
		}
		return apperr.Wrap(err, "acquiring organization lock")
	}
	defer unlock()
	return fn()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds a short-lived Redis key per organization. The key expires
// on its own if the holder dies.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   ttl,
		retry:  25 * time.Millisecond,
	}
}

func lockKey(orgID uuid.UUID) string {
	return "quota:lock:" + orgID.String()
}

func (l *RedisLocker) Lock(ctx context.Context, orgID uuid.UUID) (func(), error) {
	key := lockKey(orgID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring quota lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}
