/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payout-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                  string `mapstructure:"SERVER_PORT"`
	DatabaseURL                 string `mapstructure:"DATABASE_URL"`
	RedisURL                    string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix        string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                 string `mapstructure:"RABBITMQ_URL"`
	PayoutStatusQueue           string `mapstructure:"PAYOUT_STATUS_QUEUE"`
	AuthJWKSURL                 string `mapstructure:"AUTH_JWKS_URL"`
	InternalAPIKey              string `mapstructure:"INTERNAL_API_KEY"`
	VendorServiceURL            string `mapstructure:"VENDOR_SERVICE_URL"`
	VendorServiceInternalAPIKey string `mapstructure:"VENDOR_SERVICE_INTERNAL_API_KEY"`
	StripeSecretKey             string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret         string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	PayPalAPIBaseURL            string `mapstructure:"PAYPAL_API_BASE_URL"`
	PayPalClientID              string `mapstructure:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret          string `mapstructure:"PAYPAL_CLIENT_SECRET"`
	PayPalWebhookID             string `mapstructure:"PAYPAL_WEBHOOK_ID"`
	PayoutSweepSchedule         string `mapstructure:"PAYOUT_SWEEP_SCHEDULE"`
	StaleReservationSchedule    string `mapstructure:"STALE_RESERVATION_SCHEDULE"`
	ReconciliationSchedule      string `mapstructure:"RECONCILIATION_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PAYOUT_STATUS_QUEUE", "payout_service.status_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "marketvend:rate_limit")
	viper.SetDefault("PAYPAL_API_BASE_URL", "https://api-m.sandbox.paypal.com")
	viper.SetDefault("PAYOUT_SWEEP_SCHEDULE", "0 6 * * *")       // At 06:00 every day.
	viper.SetDefault("STALE_RESERVATION_SCHEDULE", "30 * * * *") // At minute 30 of every hour.
	viper.SetDefault("RECONCILIATION_SCHEDULE", "*/15 * * * *")  // Every 15 minutes.

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYOUT_STATUS_QUEUE")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PAYOUT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("VENDOR_SERVICE_URL")
	_ = viper.BindEnv("VENDOR_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("PAYPAL_API_BASE_URL")
	_ = viper.BindEnv("PAYPAL_CLIENT_ID")
	_ = viper.BindEnv("PAYPAL_CLIENT_SECRET")
	_ = viper.BindEnv("PAYPAL_WEBHOOK_ID")
	_ = viper.BindEnv("PAYOUT_SWEEP_SCHEDULE")
	_ = viper.BindEnv("STALE_RESERVATION_SCHEDULE")
	_ = viper.BindEnv("RECONCILIATION_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("PAYOUT_SERVICE_INTERNAL_API_KEY"))
	}
	config.VendorServiceInternalAPIKey = strings.TrimSpace(config.VendorServiceInternalAPIKey)
	if config.VendorServiceInternalAPIKey == "" {
		config.VendorServiceInternalAPIKey = config.InternalAPIKey
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "marketvend:rate_limit"
	}
	config.PayPalAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.PayPalAPIBaseURL), "/")

	return
}
