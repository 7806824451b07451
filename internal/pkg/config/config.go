package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     string
	DB       string
	Username string
	Password string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type JWTConfig struct {
	SecretKey       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
}

// StripeConfig holds the payment processor credentials and the hosted-page
// return URLs. SecretKey is mandatory for every billing endpoint; the
// handlers answer 500 "missing configuration" when it is absent rather than
// operating degraded.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	PortalReturn  string
}

type RepositoriesConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// SubscriptionConfig selects where entitlement status is resolved. When
// StatusEndpoint is set, status fetchers call that URL with a bearer token;
// when empty they resolve in-process through the billing service.
type SubscriptionConfig struct {
	StatusEndpoint string
}

type Config struct {
	Repositories RepositoriesConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Subscription SubscriptionConfig
	ServerPort   string
	FrontendURL  string
}

func Load() (*Config, error) {
	cfg := &Config{
		Repositories: RepositoriesConfig{
			Postgres: PostgresConfig{
				Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
				Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
				DB:       getEnvOrDefault("POSTGRES_DB", "vacadoc"),
				Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
				Password: getEnvOrDefault("POSTGRES_PASSWORD", ""),
				SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
				MaxConns: 30,
				MinConns: 5,
			},
			Redis: RedisConfig{
				Addr:     getEnvOrDefault("REDIS_ADDR", ""),
				Password: getEnvOrDefault("REDIS_PASSWORD", ""),
				DB:       getEnvIntOrDefault("REDIS_DB", 0),
				PoolSize: getEnvIntOrDefault("REDIS_POOL_SIZE", 10),
			},
		},
		JWT: JWTConfig{
			SecretKey:       getEnvOrDefault("JWT_SECRET_KEY", ""),
			AccessTokenTTL:  getEnvDurationOrDefault("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDurationOrDefault("JWT_REFRESH_TTL", 7*24*time.Hour),
			Issuer:          getEnvOrDefault("JWT_ISSUER", "Vacadoc"),
			Audience:        getEnvOrDefault("JWT_AUDIENCE", "Vacadoc-app"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnvOrDefault("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnvOrDefault("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    getEnvOrDefault("STRIPE_SUCCESS_URL", "https://app.vacadoc.fr/abonnement/merci"),
			CancelURL:     getEnvOrDefault("STRIPE_CANCEL_URL", "https://app.vacadoc.fr/abonnement"),
			PortalReturn:  getEnvOrDefault("STRIPE_PORTAL_RETURN_URL", "https://app.vacadoc.fr/compte"),
		},
		Subscription: SubscriptionConfig{
			StatusEndpoint: getEnvOrDefault("SUBSCRIPTION_STATUS_URL", ""),
		},
		ServerPort:  getEnvOrDefault("SERVER_PORT", "8090"),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "https://app.vacadoc.fr"),
	}

	if cfg.Repositories.Postgres.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD environment variable is required")
	}
	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
