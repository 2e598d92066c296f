// Package lease provides a cross-host mutual exclusion lease on Redis.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

const DefaultKey = "scada_sms:dispatch_lease"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another host is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease is held with SET NX PX and released with compare-and-delete.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisLease(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *RedisLease {
	if key == "" {
		key = DefaultKey
	}
	return &RedisLease{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With("component", "redis_lease", "key", key),
	}
}

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Acquire takes the lease or returns domain.ErrDispatchInProgress when another
// holder has it. The returned release is safe to call after expiry.
func (l *RedisLease) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return nil, domain.ErrDispatchInProgress
	}
	l.logger.DebugContext(ctx, "Lease acquired", "ttl", l.ttl)

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lease %s: %w", l.key, err)
		}
		if n == 0 {
			l.logger.WarnContext(ctx, "Lease expired before release")
		}
		return nil
	}, nil
}
