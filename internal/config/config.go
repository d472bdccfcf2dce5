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

// Config holds all the configuration variables for the transfer-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	EventExchange              string `mapstructure:"EVENT_EXCHANGE"`
	FraudResultQueue           string `mapstructure:"FRAUD_RESULT_QUEUE"`
	FraudEventsQueue           string `mapstructure:"FRAUD_EVENTS_QUEUE"`
	BalanceCompletionQueue     string `mapstructure:"BALANCE_COMPLETION_QUEUE"`
	AccountServiceURL          string `mapstructure:"ACCOUNT_SERVICE_URL"`
	AccountServiceAPIKey       string `mapstructure:"ACCOUNT_SERVICE_INTERNAL_API_KEY"`
	JWTSecret                  string `mapstructure:"JWT_SECRET"`
	DefaultCurrency            string `mapstructure:"DEFAULT_CURRENCY"`
	FraudVerdictTimeoutSeconds int    `mapstructure:"FRAUD_VERDICT_TIMEOUT_SECONDS"`
	VerdictStashTTLSeconds     int    `mapstructure:"VERDICT_STASH_TTL_SECONDS"`
	VerdictStashMaxEntries     int    `mapstructure:"VERDICT_STASH_MAX_ENTRIES"`
	StaleSweepSchedule         string `mapstructure:"STALE_SWEEP_SCHEDULE"`
	StaleSweepAfterSeconds     int    `mapstructure:"STALE_SWEEP_AFTER_SECONDS"`
	StaleSweepBatchSize        int    `mapstructure:"STALE_SWEEP_BATCH_SIZE"`
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
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("EVENT_EXCHANGE", "bank.events")
	viper.SetDefault("FRAUD_RESULT_QUEUE", "transfer_service.fraud_results")
	viper.SetDefault("FRAUD_EVENTS_QUEUE", "transfer_service.fraud_events")
	viper.SetDefault("BALANCE_COMPLETION_QUEUE", "transfer_service.balance_completions")
	viper.SetDefault("DEFAULT_CURRENCY", "USD")
	viper.SetDefault("FRAUD_VERDICT_TIMEOUT_SECONDS", 10)
	viper.SetDefault("VERDICT_STASH_TTL_SECONDS", 900)
	viper.SetDefault("VERDICT_STASH_MAX_ENTRIES", 10000)
	viper.SetDefault("STALE_SWEEP_SCHEDULE", "@every 1m")
	viper.SetDefault("STALE_SWEEP_AFTER_SECONDS", 60)
	viper.SetDefault("STALE_SWEEP_BATCH_SIZE", 100)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "TRANSFER_REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("FRAUD_RESULT_QUEUE")
	_ = viper.BindEnv("FRAUD_EVENTS_QUEUE")
	_ = viper.BindEnv("BALANCE_COMPLETION_QUEUE")
	_ = viper.BindEnv("ACCOUNT_SERVICE_URL")
	_ = viper.BindEnv("ACCOUNT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("FRAUD_VERDICT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("VERDICT_STASH_TTL_SECONDS")
	_ = viper.BindEnv("VERDICT_STASH_MAX_ENTRIES")
	_ = viper.BindEnv("STALE_SWEEP_SCHEDULE")
	_ = viper.BindEnv("STALE_SWEEP_AFTER_SECONDS")
	_ = viper.BindEnv("STALE_SWEEP_BATCH_SIZE")

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
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.AccountServiceURL = strings.TrimSpace(config.AccountServiceURL)
	config.AccountServiceAPIKey = strings.TrimSpace(config.AccountServiceAPIKey)

	if config.FraudVerdictTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive verdict timeout configured; using default\" seconds=%d", config.FraudVerdictTimeoutSeconds)
		config.FraudVerdictTimeoutSeconds = 10
	}
	if config.VerdictStashTTLSeconds <= 0 {
		config.VerdictStashTTLSeconds = 900
	}
	if config.VerdictStashMaxEntries <= 0 {
		config.VerdictStashMaxEntries = 10000
	}
	if strings.TrimSpace(config.StaleSweepSchedule) == "" {
		config.StaleSweepSchedule = "@every 1m"
	}
	if config.StaleSweepAfterSeconds <= 0 {
		// A record is only stale once the live verdict window has certainly
		// elapsed, so never sweep earlier than the verdict timeout.
		config.StaleSweepAfterSeconds = config.FraudVerdictTimeoutSeconds * 6
	}
	if config.StaleSweepAfterSeconds < config.FraudVerdictTimeoutSeconds {
		config.StaleSweepAfterSeconds = config.FraudVerdictTimeoutSeconds
	}
	if config.StaleSweepBatchSize <= 0 {
		config.StaleSweepBatchSize = 100
	}

	return
}
