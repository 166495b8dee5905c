package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/slotmeter/internal/clock"
	"github.com/smallbiznis/slotmeter/internal/config"
	"github.com/smallbiznis/slotmeter/internal/migration"
	"github.com/smallbiznis/slotmeter/internal/observability"
	"github.com/smallbiznis/slotmeter/internal/server"
	"github.com/smallbiznis/slotmeter/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// resource, session and billing are wired by the server module.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
