package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	pkgasynq "licensing-controlplane/pkg/asynq"
	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/db"
	"licensing-controlplane/pkg/locker"
	"licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/redis"

	"licensing-controlplane/services/license"
	"licensing-controlplane/services/policy"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		locker.Module,
		pkgasynq.Server,

		policy.Module,
		license.TaskModule,

		fx.Provide(provideSnowflakeNode),
		fx.Invoke(registerHandlers),
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func registerHandlers(mux *asynq.ServeMux, t *license.Task) {
	license.RegisterHandlers(mux, t)
}
