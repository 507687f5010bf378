package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Locker serialises work keyed by account, reconciliations must not overlap.
type Locker interface {
	Do(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LocalLocker is a single process Locker. Concurrent callers for the same key
// wait for the running call and share its result.
type LocalLocker struct {
	group singleflight.Group
}

func (l *LocalLocker) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	_, err, _ := l.group.Do(key, func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

const (
	DefaultLockTTL    = 30 * time.Second
	DefaultLockPrefix = "mailjet-sync:lock:"
)

// release only deletes the key when it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every relay process using the same redis.
// A key that is already held fails fast with ErrLocked.
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func (l RedisLocker) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	prefix := l.Prefix
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	k := prefix + key
	token := uuid.NewString()

	acquired, err := l.Client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s %w", k, err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrLocked, k)
	}
	defer func() {
		// the caller's context may already be done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), HTTPRequestTimeout)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.Client, []string{k}, token).Err()
	}()

	ctx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	return fn(ctx)
}
