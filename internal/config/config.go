package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the whole application configuration,
// populated from environment variables.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Mpesa    MpesaConfig
	Payment  PaymentConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// MpesaConfig holds Daraja API credentials for the STK push integration
type MpesaConfig struct {
	ConsumerKey    string // OAuth consumer key
	ConsumerSecret string // OAuth consumer secret
	ShortCode      string // Business short code (paybill)
	Passkey        string // STK push passkey
	APIURL         string // Daraja API base URL
	CallbackURL    string // Backend callback URL registered with the gateway
	Timeout        time.Duration
}

// PaymentConfig holds operational knobs for the payment subsystem
type PaymentConfig struct {
	// Payments still processing after this window are re-checked
	// against the gateway by the worker.
	StaleAfter time.Duration

	// Callback log rows older than this are pruned by the worker.
	CallbackLogRetentionDays int
}

// Load reads config from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "SchoolPay API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "schoolpay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Mpesa: MpesaConfig{
			ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:      getEnv("MPESA_SHORT_CODE", "174379"),
			Passkey:        getEnv("MPESA_PASSKEY", ""),
			APIURL:         getEnv("MPESA_API_URL", "https://sandbox.safaricom.co.ke"),
			CallbackURL:    getEnv("MPESA_CALLBACK_URL", "http://localhost:8080/api/v1/webhooks/mpesa"),
			Timeout:        time.Duration(getEnvInt("MPESA_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Payment: PaymentConfig{
			StaleAfter:               time.Duration(getEnvInt("PAYMENT_STALE_MINUTES", 10)) * time.Minute,
			CallbackLogRetentionDays: getEnvInt("CALLBACK_LOG_RETENTION_DAYS", 90),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for obviously broken production setups
func (c *Config) Validate() error {
	if c.App.Environment == "production" {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
		if c.Mpesa.ConsumerKey == "" || c.Mpesa.Passkey == "" {
			fmt.Println("WARNING: M-Pesa credentials not set - mobile money payments will not work")
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
