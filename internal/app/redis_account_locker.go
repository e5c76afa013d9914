package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the holder's token may delete the key.
var accountLockReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the lease only while the caller still holds it.
var accountLockRenewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ErrAccountLockTimeout is returned when the distributed lock could not be taken in time.
var ErrAccountLockTimeout = errors.New("timed out waiting for account lock")

// RedisAccountLocker implements AccountLocker across service instances using
// SET NX PX leases. A held lease is renewed every third of its TTL until released, so
// a slow request keeps the account for as long as it runs.
type RedisAccountLocker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retry      time.Duration
	maxWait    time.Duration
	renewEvery time.Duration
	newToken   func() string
}

func NewRedisAccountLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisAccountLocker {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "ledger:lock"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	renewEvery := ttl / 3
	if renewEvery < time.Millisecond {
		renewEvery = time.Millisecond
	}
	return &RedisAccountLocker{
		client:     client,
		prefix:     trimmedPrefix,
		ttl:        ttl,
		retry:      25 * time.Millisecond,
		maxWait:    ttl,
		renewEvery: renewEvery,
		newToken:   uuid.NewString,
	}
}

func (r *RedisAccountLocker) key(accountID int64) string {
	return fmt.Sprintf("%s:account:%d", r.prefix, accountID)
}

// Lock polls until the lease is acquired, ctx is done or the wait exceeds the lease TTL.
func (r *RedisAccountLocker) Lock(ctx context.Context, accountID int64) (func(), error) {
	key := r.key(accountID)
	token := r.newToken()
	deadline := time.Now().Add(r.maxWait)

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire account lock %s: %w", key, err)
		}
		if ok {
			return r.hold(key, token), nil
		}
		if time.Now().After(deadline) {
			return nil, ErrAccountLockTimeout
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// hold renews the lease in the background and returns the release func.
func (r *RedisAccountLocker) hold(key, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepLeaseAlive(stop, r.renewEvery, func() (bool, error) {
			renewCtx, cancel := context.WithTimeout(context.Background(), r.renewEvery)
			defer cancel()
			n, err := accountLockRenewScript.Run(renewCtx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			return n == 1, err
		})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Released with a fresh context so a cancelled request still frees the lease.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = accountLockReleaseScript.Run(releaseCtx, r.client, []string{key}, token).Err()
		})
	}
}

// keepLeaseAlive calls renew every interval until stop is closed or renew reports that
// the lease is no longer held. Renewal errors are retried on the next tick.
func keepLeaseAlive(stop <-chan struct{}, every time.Duration, renew func() (bool, error)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := renew()
			if err == nil && !held {
				return
			}
		}
	}
}
