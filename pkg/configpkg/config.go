// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environement variables.
type Config struct {
	DBDriver            string        `mapstructure:"DB_DRIVER"`
	DBSource            string        `mapstructure:"DB_SOURCE"`
	ServerAddress       string        `mapstructure:"SERVER_ADDRESS"`
	TokenSymmetricKey   string        `mapstructure:"TOKEN_SYMMETRIC_KEY"`
	AccessTokenDuration time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	GatewaySecret       string        `mapstructure:"GATEWAY_SECRET"`
	Environement        string        `mapstructure:"GO_ENV"`

	// Ledger limits.
	MaxBalance        int64  `mapstructure:"MAX_BALANCE"`
	MinPurchase       int64  `mapstructure:"MIN_PURCHASE"`
	MaxSinglePurchase int64  `mapstructure:"MAX_SINGLE_PURCHASE"`
	PricePerCredit    string `mapstructure:"PRICE_PER_CREDIT"`
	SignupBonus       int64  `mapstructure:"SIGNUP_BONUS"`
	AdjustReasonMin   int    `mapstructure:"ADJUST_REASON_MIN"`

	// Purchase lifecycle.
	PurchaseTTL   time.Duration `mapstructure:"PURCHASE_TTL"`
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`

	// Refund policy tiers.
	FullRefundWindow     time.Duration `mapstructure:"FULL_REFUND_WINDOW"`
	PartialRefundWindow  time.Duration `mapstructure:"PARTIAL_REFUND_WINDOW"`
	PartialRefundPercent int64         `mapstructure:"PARTIAL_REFUND_PERCENT"`
}

// Load read configuration from file or environment variables.
func Load(path string) (Config, error) {
	var c Config

	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return c, err
	}

	err = viper.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}
