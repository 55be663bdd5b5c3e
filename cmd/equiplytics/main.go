package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/equiplytics/internal/clock"
	"github.com/smallbiznis/equiplytics/internal/config"
	"github.com/smallbiznis/equiplytics/internal/dataset"
	"github.com/smallbiznis/equiplytics/internal/migration"
	"github.com/smallbiznis/equiplytics/internal/observability"
	"github.com/smallbiznis/equiplytics/internal/ownerlock"
	"github.com/smallbiznis/equiplytics/internal/ratelimit"
	"github.com/smallbiznis/equiplytics/internal/report"
	"github.com/smallbiznis/equiplytics/internal/server"
	"github.com/smallbiznis/equiplytics/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ownerlock.Module,
		ratelimit.Module,

		// Functional Domains
		report.Module,
		dataset.Module,

		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
