package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const BackendRedis = "redis"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const lockExtendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

const keyPrefix = "settlement:lock:"

// RedisLocker holds keys across processes. A held key is extended every
// ttl/3 until released, so a holder that dies keeps it only until ttl expires.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	extend *redis.Script
	ttl    time.Duration
	retry  time.Duration
	log    *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl, retry time.Duration, log *zap.Logger) *RedisLocker {
	if client == nil {
		return nil
	}
	if retry <= 0 {
		retry = 200 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		extend: redis.NewScript(lockExtendScript),
		ttl:    ttl,
		retry:  retry,
		log:    log,
	}
}

func (l *RedisLocker) Backend() string { return BackendRedis }

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	ticker := time.NewTicker(l.retryInterval())
	defer ticker.Stop()

	for {
		token, ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.unlocker(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrNotConfigured
	}
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if l.ttl <= 0 {
		return "", false, errors.New("lock_ttl_not_positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{keyPrefix + key}, token).Err()
}

// Extend pushes the expiry of a key still held with token back to ttl.
func (l *RedisLocker) Extend(ctx context.Context, key, token string) (bool, error) {
	if l == nil || l.client == nil {
		return false, ErrNotConfigured
	}
	n, err := l.extend.Run(ctx, l.client, []string{keyPrefix + key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *RedisLocker) unlocker(key, token string) Unlock {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		holdLease(stop, l.ttl/3,
			func(ctx context.Context) (bool, error) { return l.Extend(ctx, key, token) },
			func(err error) {
				l.log.Error("lock.lost", zap.String("key", key), zap.Duration("ttl", l.ttl), zap.Error(err))
			},
		)
	}()

	return once(func() {
		close(stop)
		<-done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Release(ctx, key, token); err != nil {
			l.log.Warn("lock.release_failed", zap.String("key", key), zap.Error(err))
		}
	})
}

func (l *RedisLocker) retryInterval() time.Duration {
	if l == nil || l.retry <= 0 {
		return 200 * time.Millisecond
	}
	return l.retry
}

// holdLease calls extend every interval until stop is closed. Transient
// errors are retried on the next tick; once extend reports the key is no
// longer ours, lost is called and the loop ends.
func holdLease(stop <-chan struct{}, interval time.Duration, extend func(context.Context) (bool, error), lost func(error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := extend(ctx)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if !held {
			lost(errors.Join(ErrLeaseLost, lastErr))
			return
		}
		lastErr = nil
	}
}
