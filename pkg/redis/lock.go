package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lock:"

// releaseScript deletes the key only while it still holds our token
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// ErrLockNotHeld is returned by Unlock when the lock expired or was taken over
var ErrLockNotHeld = errors.New("lock not held")

// Locker is a single-instance Redis lock (SET NX PX + compare-and-delete).
// Used so that only one sweeper replica runs a given job at a time.
type Locker struct {
	rdb      redis.Cmdable
	newToken func() string
}

// NewLocker creates a Locker on top of any go-redis client
func NewLocker(rdb redis.Cmdable) *Locker {
	return &Locker{
		rdb:      rdb,
		newToken: func() string { return uuid.NewString() },
	}
}

// Lock is a held lock
type Lock struct {
	key   string
	token string
}

// TryLock acquires name for ttl. It returns (nil, nil) when someone else holds it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := lockKeyPrefix + name
	token := l.newToken()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lock{key: key, token: token}, nil
}

// Unlock releases the lock if it is still ours
func (l *Locker) Unlock(ctx context.Context, lock *Lock) error {
	n, err := l.rdb.Eval(ctx, releaseScript, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lock.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// WithLock runs fn while holding name. It reports false without running fn
// when the lock is held elsewhere.
func (l *Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	lock, err := l.TryLock(ctx, name, ttl)
	if err != nil {
		return false, err
	}
	if lock == nil {
		return false, nil
	}
	defer func() { _ = l.Unlock(context.WithoutCancel(ctx), lock) }()

	return true, fn(ctx)
}
