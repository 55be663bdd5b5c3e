package ownerlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyOwnerLock = "equiplytics:owner:lock:%s"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrLockNotAcquired = errors.New("lock_not_acquired")

// RedisLocker is a SETNX lock with an owner token; only the holder of the
// token can release it.
type RedisLocker struct {
	client redis.Cmdable
	script *redis.Script
}

func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	if client == nil {
		return nil
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, owner string, ttl time.Duration) (string, bool, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", false, errors.New("lock owner is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fmt.Sprintf(keyOwnerLock, owner), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Acquire retries TryLock with exponential backoff until ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, owner string, ttl time.Duration) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0

	var token string
	op := func() error {
		t, ok, err := l.TryLock(ctx, owner, ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockNotAcquired
		}
		token = t
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", ErrLockNotAcquired, ctxErr)
		}
		return "", err
	}
	return token, nil
}

func (l *RedisLocker) Release(ctx context.Context, owner, token string) error {
	if owner == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{fmt.Sprintf(keyOwnerLock, strings.TrimSpace(owner))}, token).Err()
}
