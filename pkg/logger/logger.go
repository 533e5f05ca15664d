package logger

import (
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("logger",
	fx.Provide(Provide),
	fx.Invoke(replaceGlobals),
)

func Provide() *zap.Logger {
	var logger *zap.Logger
	var err error

	if os.Getenv("APP_ENV") == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}

	return logger
}

func replaceGlobals(logger *zap.Logger) {
	zap.ReplaceGlobals(logger)
}
