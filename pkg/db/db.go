package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	obslogger "github.com/smallbiznis/equiplytics/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// Options toggles the plugins attached to a connection.
type Options struct {
	Tracing        bool
	Metrics        bool
	ConnectTimeout time.Duration
}

// Open connects to the configured database, retrying the initial ping with
// exponential backoff until ConnectTimeout elapses.
func Open(ctx context.Context, cfg Config, opts Options, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	}
	if cfg.Type == TypeSQLite || cfg.Type == TypeSQLite3 {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY storms.
		sqlDB.SetMaxOpenConns(1)
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = timeout

	attempt := 0
	ping := func() error {
		attempt++
		return sqlDB.PingContext(ctx)
	}
	notify := func(err error, next time.Duration) {
		log.Warn("database not reachable, retrying",
			zap.String("type", cfg.Type),
			zap.Int("attempt", attempt),
			zap.Duration("next_retry_in", next),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("ping database after %d attempts: %w", attempt, err)
	}

	if opts.Tracing {
		if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
			return nil, fmt.Errorf("register tracing plugin: %w", err)
		}
	}
	if opts.Metrics {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          cfg.Name,
			RefreshInterval: 15,
			StartServer:     false,
		})); err != nil {
			return nil, fmt.Errorf("register metrics plugin: %w", err)
		}
	}

	log.Info("database connected", zap.String("type", cfg.Type), zap.Int("attempts", attempt))
	return conn, nil
}
