package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
)

// ErrNoRedis is returned by Ping when no client was configured.
var ErrNoRedis = errors.New("redis client not configured")

// Redis holds the client backing the idempotency read-through cache.
// The cache is an optimization, so an unreachable Redis downgrades the
// service instead of failing boot; every cache read falls through to
// Postgres.
type Redis struct {
	client *redis.Client
}

// NewRedis builds the client and probes it once so a misconfigured
// address shows up in the boot log rather than as latency later.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unreachable; idempotency cache will miss through to postgres",
			zap.String("addr", cfg.Addr),
			zap.Error(err),
		)
	} else {
		logger.Info("redis ready", zap.String("addr", cfg.Addr))
	}
	return &Redis{client: client}
}

// Client exposes the raw client for the cache layer.
func (r *Redis) Client() *redis.Client {
	if r == nil {
		return nil
	}
	return r.client
}

// Ping is the readiness probe hook.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return ErrNoRedis
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() {
	if r != nil && r.client != nil {
		_ = r.client.Close()
	}
}
