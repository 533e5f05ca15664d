package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	appasynq "wellnest-affiliate/pkg/asynq"
	"wellnest-affiliate/pkg/config"
	"wellnest-affiliate/pkg/db"
	"wellnest-affiliate/pkg/logger"
	"wellnest-affiliate/pkg/redis"
	"wellnest-affiliate/pkg/sequence"
	"wellnest-affiliate/services/commission"
	"wellnest-affiliate/services/creator"
	"wellnest-affiliate/services/referral"
	"wellnest-affiliate/services/scheduler"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		fx.Provide(provideSnowflakeNode),
		appasynq.Client,
		appasynq.Server,
		creator.WorkerModule,
		referral.WorkerModule,
		commission.WorkerModule,
		scheduler.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
