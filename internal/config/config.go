/**
 * @description
 * This package handles the configuration management for the ledger-service. It uses
 * Viper to read settings from environment variables and an optional .env file, and
 * go-playground/validator to check the resulting struct.
 *
 * @dependencies
 * - github.com/spf13/viper: Configuration loading.
 * - github.com/go-playground/validator/v10: Struct validation.
 * - github.com/robfig/cron/v3: Validation of job schedules.
 * - github.com/shopspring/decimal: Money-valued settings.
 */

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const (
	defaultServerPort            = "8080"
	defaultStoreDriver           = DriverPostgres
	defaultRedisLockPrefix       = "ledger:lock"
	defaultAccountLockTTLSeconds = 10
	defaultEventsExchange        = "ledger.events"
	defaultLargeAmountThreshold  = "10000"
	defaultHomeRegion            = "Maroc"
	defaultBurstWindowMinutes    = 1
	defaultInactivityDays        = 30
	defaultLowBalanceThreshold   = "100"
	defaultTopClientsLimit       = 5
	defaultAnomalyScanSchedule   = "*/15 * * * *"
	defaultInactivitySchedule    = "0 3 * * *"
	defaultLowBalanceSchedule    = "0 * * * *"
	defaultReconcileSchedule     = "*/5 * * * *"
	defaultReconcileBatchSize    = 100
	defaultRateLimitPerSecond    = 20
	defaultRateLimitBurst        = 40
	defaultLogEnv                = "production"
)

// Config holds all the configuration variables for the ledger-service.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT" validate:"required,numeric"`
	StoreDriver           string `mapstructure:"STORE_DRIVER" validate:"oneof=postgres memory"`
	DatabaseURL           string `mapstructure:"DATABASE_URL" validate:"required_if=StoreDriver postgres"`
	RunMigrations         bool   `mapstructure:"RUN_MIGRATIONS"`
	DBMaxConns            int32  `mapstructure:"DB_MAX_CONNS" validate:"gte=1"`
	DBMinConns            int32  `mapstructure:"DB_MIN_CONNS" validate:"gte=0,ltefield=DBMaxConns"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisLockPrefix       string `mapstructure:"REDIS_LOCK_PREFIX"`
	AccountLockTTLSeconds int    `mapstructure:"ACCOUNT_LOCK_TTL_SECONDS" validate:"gte=1"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	EventsExchange        string `mapstructure:"EVENTS_EXCHANGE" validate:"required"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	InternalAPIKey        string `mapstructure:"INTERNAL_API_KEY"`
	LogEnv                string `mapstructure:"LOG_ENV"`

	LargeAmountThresholdRaw string `mapstructure:"LARGE_AMOUNT_THRESHOLD"`
	HomeRegion              string `mapstructure:"HOME_REGION" validate:"required"`
	BurstWindowMinutes      int    `mapstructure:"BURST_WINDOW_MINUTES" validate:"gte=1"`
	InactivityDays          int    `mapstructure:"INACTIVITY_DAYS" validate:"gte=1"`
	LowBalanceThresholdRaw  string `mapstructure:"LOW_BALANCE_THRESHOLD"`
	TopClientsLimit         int    `mapstructure:"TOP_CLIENTS_LIMIT" validate:"gte=1"`
	AtomicRecording         bool   `mapstructure:"ATOMIC_RECORDING"`

	SchedulerEnabled    bool   `mapstructure:"SCHEDULER_ENABLED"`
	AnomalyScanSchedule string `mapstructure:"ANOMALY_SCAN_SCHEDULE" validate:"required"`
	InactivitySchedule  string `mapstructure:"INACTIVITY_SCAN_SCHEDULE" validate:"required"`
	LowBalanceSchedule  string `mapstructure:"LOW_BALANCE_SCAN_SCHEDULE" validate:"required"`
	ReconcileSchedule   string `mapstructure:"RECONCILE_SCHEDULE" validate:"required"`
	ReconcileBatchSize  int    `mapstructure:"RECONCILE_BATCH_SIZE" validate:"gte=1"`

	RateLimitPerSecond float64 `mapstructure:"RATE_LIMIT_PER_SECOND" validate:"gte=0"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST" validate:"gte=0"`

	// Parsed from the raw string settings above.
	LargeAmountThreshold decimal.Decimal `mapstructure:"-" validate:"-"`
	LowBalanceThreshold  decimal.Decimal `mapstructure:"-" validate:"-"`

	// Warnings lists values that were clamped or replaced by defaults.
	Warnings []string `mapstructure:"-" validate:"-"`
}

// BurstWindow is the burst detection window as a duration.
func (c Config) BurstWindow() time.Duration {
	return time.Duration(c.BurstWindowMinutes) * time.Minute
}

// AccountLockTTL is the Redis lock lease as a duration.
func (c Config) AccountLockTTL() time.Duration {
	return time.Duration(c.AccountLockTTLSeconds) * time.Second
}

// LoadConfig reads configuration from environment variables and an optional .env file
// found in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("STORE_DRIVER", defaultStoreDriver)
	viper.SetDefault("RUN_MIGRATIONS", true)
	viper.SetDefault("DB_MAX_CONNS", 20)
	viper.SetDefault("DB_MIN_CONNS", 2)
	viper.SetDefault("REDIS_LOCK_PREFIX", defaultRedisLockPrefix)
	viper.SetDefault("ACCOUNT_LOCK_TTL_SECONDS", defaultAccountLockTTLSeconds)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("LOG_ENV", defaultLogEnv)
	viper.SetDefault("LARGE_AMOUNT_THRESHOLD", defaultLargeAmountThreshold)
	viper.SetDefault("HOME_REGION", defaultHomeRegion)
	viper.SetDefault("BURST_WINDOW_MINUTES", defaultBurstWindowMinutes)
	viper.SetDefault("INACTIVITY_DAYS", defaultInactivityDays)
	viper.SetDefault("LOW_BALANCE_THRESHOLD", defaultLowBalanceThreshold)
	viper.SetDefault("TOP_CLIENTS_LIMIT", defaultTopClientsLimit)
	viper.SetDefault("ATOMIC_RECORDING", false)
	viper.SetDefault("SCHEDULER_ENABLED", true)
	viper.SetDefault("ANOMALY_SCAN_SCHEDULE", defaultAnomalyScanSchedule)
	viper.SetDefault("INACTIVITY_SCAN_SCHEDULE", defaultInactivitySchedule)
	viper.SetDefault("LOW_BALANCE_SCAN_SCHEDULE", defaultLowBalanceSchedule)
	viper.SetDefault("RECONCILE_SCHEDULE", defaultReconcileSchedule)
	viper.SetDefault("RECONCILE_BATCH_SIZE", defaultReconcileBatchSize)
	viper.SetDefault("RATE_LIMIT_PER_SECOND", defaultRateLimitPerSecond)
	viper.SetDefault("RATE_LIMIT_BURST", defaultRateLimitBurst)

	// Bind explicitly so unset keys without defaults still reach Unmarshal.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("DATABASE_URL", "DATABASE_URL", "LEDGER_DATABASE_URL")
	_ = viper.BindEnv("RUN_MIGRATIONS")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("DB_MIN_CONNS")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_LOCK_PREFIX")
	_ = viper.BindEnv("ACCOUNT_LOCK_TTL_SECONDS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "LEDGER_INTERNAL_API_KEY")
	_ = viper.BindEnv("LOG_ENV")
	_ = viper.BindEnv("LARGE_AMOUNT_THRESHOLD")
	_ = viper.BindEnv("HOME_REGION")
	_ = viper.BindEnv("BURST_WINDOW_MINUTES")
	_ = viper.BindEnv("INACTIVITY_DAYS")
	_ = viper.BindEnv("LOW_BALANCE_THRESHOLD")
	_ = viper.BindEnv("TOP_CLIENTS_LIMIT")
	_ = viper.BindEnv("ATOMIC_RECORDING")
	_ = viper.BindEnv("SCHEDULER_ENABLED")
	_ = viper.BindEnv("ANOMALY_SCAN_SCHEDULE")
	_ = viper.BindEnv("INACTIVITY_SCAN_SCHEDULE")
	_ = viper.BindEnv("LOW_BALANCE_SCAN_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_BATCH_SIZE")
	_ = viper.BindEnv("RATE_LIMIT_PER_SECOND")
	_ = viper.BindEnv("RATE_LIMIT_BURST")

	var warnings []string
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			warnings = append(warnings, fmt.Sprintf("failed to read config file; using environment values: %v", err))
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}
	config.Warnings = warnings

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisLockPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisLockPrefix), ":")
	if config.RedisLockPrefix == "" {
		config.RedisLockPrefix = defaultRedisLockPrefix
	}
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.HomeRegion = strings.TrimSpace(config.HomeRegion)

	config.LargeAmountThreshold = config.parseMoney("LARGE_AMOUNT_THRESHOLD", config.LargeAmountThresholdRaw, defaultLargeAmountThreshold)
	config.LowBalanceThreshold = config.parseMoney("LOW_BALANCE_THRESHOLD", config.LowBalanceThresholdRaw, defaultLowBalanceThreshold)

	config.clampInt("BURST_WINDOW_MINUTES", &config.BurstWindowMinutes, defaultBurstWindowMinutes)
	config.clampInt("INACTIVITY_DAYS", &config.InactivityDays, defaultInactivityDays)
	config.clampInt("TOP_CLIENTS_LIMIT", &config.TopClientsLimit, defaultTopClientsLimit)
	config.clampInt("ACCOUNT_LOCK_TTL_SECONDS", &config.AccountLockTTLSeconds, defaultAccountLockTTLSeconds)
	config.clampInt("RECONCILE_BATCH_SIZE", &config.ReconcileBatchSize, defaultReconcileBatchSize)

	config.checkSchedule("ANOMALY_SCAN_SCHEDULE", &config.AnomalyScanSchedule, defaultAnomalyScanSchedule)
	config.checkSchedule("INACTIVITY_SCAN_SCHEDULE", &config.InactivitySchedule, defaultInactivitySchedule)
	config.checkSchedule("LOW_BALANCE_SCAN_SCHEDULE", &config.LowBalanceSchedule, defaultLowBalanceSchedule)
	config.checkSchedule("RECONCILE_SCHEDULE", &config.ReconcileSchedule, defaultReconcileSchedule)

	if err = validator.New().Struct(config); err != nil {
		err = fmt.Errorf("invalid configuration: %w", err)
		return
	}
	return config, nil
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) parseMoney(key, raw, fallback string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || value.IsNegative() {
		c.warnf("invalid %s %q; using default %s", key, raw, fallback)
		return decimal.RequireFromString(fallback)
	}
	return value
}

func (c *Config) clampInt(key string, value *int, fallback int) {
	if *value < 1 {
		c.warnf("%s=%d must be positive; using default %d", key, *value, fallback)
		*value = fallback
	}
}

func (c *Config) checkSchedule(key string, spec *string, fallback string) {
	*spec = strings.TrimSpace(*spec)
	if _, err := cron.ParseStandard(*spec); err != nil {
		c.warnf("invalid %s %q; using default %q: %v", key, *spec, fallback, err)
		*spec = fallback
	}
}
