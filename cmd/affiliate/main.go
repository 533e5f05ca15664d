package main

import (
	"context"
	"log"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wellnest-affiliate/pkg/config"
	"wellnest-affiliate/pkg/db"
	"wellnest-affiliate/pkg/health"
	"wellnest-affiliate/pkg/logger"
	"wellnest-affiliate/pkg/otelcol"
	"wellnest-affiliate/pkg/otelcol/exporters"
	"wellnest-affiliate/pkg/redis"
	"wellnest-affiliate/pkg/sequence"
	"wellnest-affiliate/pkg/server"
	"wellnest-affiliate/services/commission"
	"wellnest-affiliate/services/creator"
	"wellnest-affiliate/services/payout"
	"wellnest-affiliate/services/referral"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		fx.Provide(
			provideSnowflakeNode,
			server.ProvideEngine,
			server.ProvideHTTPServer,
		),
		health.Module,
		creator.Module,
		referral.Module,
		commission.Module,
		payout.Module,
		fx.Invoke(
			registerTelemetry,
			server.Run,
		),
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

func registerTelemetry(lc fx.Lifecycle, cfg *config.Config, gormDB *gorm.DB) error {
	if err := db.Otel(gormDB); err != nil {
		return err
	}
	if err := db.Metric(gormDB, cfg.Database.DBNAME); err != nil {
		return err
	}

	if cfg.Otel.Addr == "" {
		return nil
	}

	exporter, err := exporters.ProvideGrpc(cfg)
	if err != nil {
		return err
	}

	provider := otelcol.ProvideTrace(cfg.AppName, exporter)
	otel.SetTracerProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		},
	})

	return nil
}
