package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	pkgasynq "licensing-controlplane/pkg/asynq"
	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/db"
	"licensing-controlplane/pkg/health"
	"licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/redis"
	"licensing-controlplane/pkg/task"

	"licensing-controlplane/internal/httpapi"
	"licensing-controlplane/internal/server"
	"licensing-controlplane/services/account"
	"licensing-controlplane/services/auth"
	"licensing-controlplane/services/license"
	"licensing-controlplane/services/policy"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		pkgasynq.Client,
		task.Module,
		health.Module,

		account.Module,
		policy.Module,
		license.Module,
		auth.Module,

		fx.Provide(
			provideSnowflakeNode,
			httpapi.ProvideRouter,
			server.ProvideHTTPServer,
		),
		fx.Invoke(
			migrate,
			server.Run,
		),
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

func migrate(lc fx.Lifecycle, gormDB *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return gormDB.WithContext(ctx).AutoMigrate(
				&account.Account{},
				&account.User{},
				&account.KeyPair{},
				&policy.Policy{},
				&policy.PoolItem{},
				&license.License{},
				&auth.Token{},
			)
		},
	})
}
