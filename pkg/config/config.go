package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Otel struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Affiliate AffiliateConfig `mapstructure:"AFFILIATE"`
}

// AffiliateConfig carries the commercial terms of the creator program. Rates are
// fractions ("0.10" = 10%) parsed into decimals on access.
type AffiliateConfig struct {
	DirectRate      string `mapstructure:"DIRECT_RATE"`
	PayoutCapRate   string `mapstructure:"PAYOUT_CAP_RATE"`
	HoldDays        int    `mapstructure:"HOLD_DAYS"`
	MaxChainDepth   int    `mapstructure:"MAX_CHAIN_DEPTH"`
	MinPayoutAmount string `mapstructure:"MIN_PAYOUT_AMOUNT"`
	DefaultRedirect string `mapstructure:"DEFAULT_REDIRECT"`
	ScheduleHour    int    `mapstructure:"SCHEDULE_HOUR"`
	ScheduleMinute  int    `mapstructure:"SCHEDULE_MINUTE"`
}

func (a AffiliateConfig) Direct() decimal.Decimal {
	return parseRate(a.DirectRate, "0.10")
}

func (a AffiliateConfig) PayoutCap() decimal.Decimal {
	return parseRate(a.PayoutCapRate, "0.20")
}

func (a AffiliateConfig) MinPayout() decimal.Decimal {
	return parseRate(a.MinPayoutAmount, "50.00")
}

func (a AffiliateConfig) HoldPeriod() time.Duration {
	days := a.HoldDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

func (a AffiliateConfig) ChainDepth() int {
	if a.MaxChainDepth <= 0 {
		return 5
	}
	return a.MaxChainDepth
}

func parseRate(raw, fallback string) decimal.Decimal {
	if raw == "" {
		raw = fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		zap.L().Warn("invalid rate in config, using fallback", zap.String("raw", raw), zap.String("fallback", fallback))
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}
