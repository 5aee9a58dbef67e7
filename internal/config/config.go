package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dairycoop/settlement-backend/internal/pkg/cron"
	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	JWT          JWTConfig
	App          AppConfig
	Settlement   SettlementConfig
	Cron         CronConfig
	Webhook      WebhookConfig
	Notification NotificationConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port        int
	Env         string
	LogLevel    string
	FrontendURL string
}

// SettlementConfig tunes the payment workflow
type SettlementConfig struct {
	PaymentPeriodDays int
	MoneyPlaces       int32
	ReadRetryAttempts int
}

type CronConfig struct {
	Enabled        bool
	Timezone       string
	GeneratePayout string // weekly payment generation
	RemindPending  string // provisional summary reminder
}

// WebhookConfig is optional; an empty URL disables outcome delivery.
type WebhookConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	Retries int
}

type NotificationConfig struct {
	WorkerCount   int
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{}

	// Database configuration
	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 25)
	if err != nil {
		return nil, err
	}
	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, err
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "dairy_settlement"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(maxConns),
		MinConns: int32(minConns),
	}

	// Application configuration
	appPort, err := getEnvInt("APP_PORT", 8080)
	if err != nil {
		return nil, err
	}

	config.App = AppConfig{
		Port:        appPort,
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	// Settlement configuration
	periodDays, err := getEnvInt("SETTLEMENT_PERIOD_DAYS", 7)
	if err != nil {
		return nil, err
	}
	moneyPlaces, err := getEnvInt("SETTLEMENT_MONEY_PLACES", 2)
	if err != nil {
		return nil, err
	}
	readRetries, err := getEnvInt("SETTLEMENT_READ_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	config.Settlement = SettlementConfig{
		PaymentPeriodDays: periodDays,
		MoneyPlaces:       int32(moneyPlaces),
		ReadRetryAttempts: readRetries,
	}

	// Cron configuration
	config.Cron = CronConfig{
		Enabled:        getEnv("CRON_ENABLED", "true") == "true",
		Timezone:       getEnv("CRON_TIMEZONE", "UTC"),
		GeneratePayout: getEnv("CRON_GENERATE_PAYMENTS", "0 2 * * 1"),
		RemindPending:  getEnv("CRON_PROVISIONAL_REMINDER", "0 7 * * *"),
	}

	// Webhook configuration
	webhookTimeout, err := getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	webhookRetries, err := getEnvInt("WEBHOOK_RETRIES", 2)
	if err != nil {
		return nil, err
	}
	config.Webhook = WebhookConfig{
		URL:     getEnv("WEBHOOK_URL", ""),
		Token:   getEnv("WEBHOOK_TOKEN", ""),
		Timeout: webhookTimeout,
		Retries: webhookRetries,
	}

	// Notification workers
	workers, err := getEnvInt("NOTIFICATION_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	batchSize, err := getEnvInt("NOTIFICATION_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	queueSize, err := getEnvInt("NOTIFICATION_QUEUE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	flushInterval, err := getEnvDuration("NOTIFICATION_FLUSH_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	config.Notification = NotificationConfig{
		WorkerCount:   workers,
		BatchSize:     batchSize,
		FlushInterval: flushInterval,
		QueueSize:     queueSize,
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.MaxConns < 1 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, and DB_MAX_CONNS at least 1")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if _, err := time.ParseDuration(c.JWT.AccessExpiration); err != nil {
		return fmt.Errorf("invalid JWT_ACCESS_EXPIRATION_TIME: %w", err)
	}
	if c.Settlement.PaymentPeriodDays < 1 {
		return fmt.Errorf("SETTLEMENT_PERIOD_DAYS must be at least 1")
	}
	if c.Settlement.MoneyPlaces < 0 || c.Settlement.MoneyPlaces > 6 {
		return fmt.Errorf("SETTLEMENT_MONEY_PLACES must be between 0 and 6")
	}
	if c.Settlement.ReadRetryAttempts < 1 {
		return fmt.Errorf("SETTLEMENT_READ_RETRIES must be at least 1")
	}
	if c.Cron.Enabled {
		if _, err := c.Cron.Location(); err != nil {
			return fmt.Errorf("invalid CRON_TIMEZONE: %w", err)
		}
		if err := cron.ValidateSpec(c.Cron.GeneratePayout); err != nil {
			return fmt.Errorf("CRON_GENERATE_PAYMENTS: %w", err)
		}
		if err := cron.ValidateSpec(c.Cron.RemindPending); err != nil {
			return fmt.Errorf("CRON_PROVISIONAL_REMINDER: %w", err)
		}
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// AllowedOrigins splits FRONTEND_URL on commas for CORS.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.App.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// SlogLevel maps LOG_LEVEL onto slog levels, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c CronConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
