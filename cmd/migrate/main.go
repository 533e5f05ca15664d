package main

import (
	"go.uber.org/zap"

	"wellnest-affiliate/pkg/config"
	"wellnest-affiliate/pkg/db"
	"wellnest-affiliate/services/commission"
	"wellnest-affiliate/services/creator"
	"wellnest-affiliate/services/payout"
	"wellnest-affiliate/services/referral"
)

func main() {
	logger, _ := zap.NewProduction()
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	cfg := config.LoadConfig()
	conn := db.New(cfg, db.Dialect(cfg))

	if err := conn.AutoMigrate(
		&creator.Creator{},
		&referral.TrackingLink{},
		&referral.CouponCode{},
		&referral.OrderAttribution{},
		&commission.Entry{},
		&payout.Payout{},
	); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migration completed")
}
