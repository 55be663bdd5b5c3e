package ownerlock

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/equiplytics/internal/config"
	"github.com/smallbiznis/equiplytics/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ownerlock",
	fx.Provide(newRedisClient),
	fx.Provide(newManager),
)

// newRedisClient returns nil when no redis address is configured; locking is
// then local to the process.
func newRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return client.Close() },
	})
	return client
}

func newManager(cfg config.Config, client *redis.Client, pipeline *metrics.Pipeline, log *zap.Logger) *Manager {
	var remote *RedisLocker
	if client != nil {
		remote = NewRedisLocker(client)
		log.Info("owner locks are distributed through redis", zap.String("addr", cfg.RedisAddr))
	}
	return NewManager(Options{
		Remote:  remote,
		TTL:     time.Duration(cfg.OwnerLockTTLSeconds) * time.Second,
		Wait:    time.Duration(cfg.OwnerLockWaitSeconds) * time.Second,
		Metrics: pipeline,
		Log:     log,
	})
}
