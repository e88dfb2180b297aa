package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file - ignore error if file doesn't exist
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Note: .env file not found or could not be loaded: %v\n", err)
	}
}

type Config struct {
	Primary       PrimaryConfig
	Database      DatabaseConfig
	Server        ServerConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Observability *ObservabilityConfig
	Stripe        StripeConfig
	PayPal        PayPalConfig
	Webhook       WebhookConfig
	Collaborators CollaboratorConfig
}

type PrimaryConfig struct {
	Env string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	IdleTimeout        int
	CORSAllowedOrigins []string
}

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
	KeyPrefix    string
}

type KafkaConfig struct {
	Brokers []string
}

type ObservabilityConfig struct {
	ServiceName  string
	Environment  string
	Logging      LoggingConfig
	NewRelic     NewRelicConfig
	HealthChecks HealthChecksConfig
}

type LoggingConfig struct {
	Level              string
	Format             string
	SlowQueryThreshold time.Duration
}

type NewRelicConfig struct {
	LicenseKey                string
	AppLogForwardingEnabled   bool
	DistributedTracingEnabled bool
	DebugLogging              bool
}

type HealthChecksConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	Checks   []string
}

// StripeConfig holds the HMAC webhook scheme settings for Stripe.
type StripeConfig struct {
	WebhookSecret      string
	SignatureTolerance time.Duration
}

// PayPalConfig holds the transmission-signature scheme settings for PayPal.
// Verification is delegated to PayPal's verify API, so API credentials are
// required alongside the webhook ID.
type PayPalConfig struct {
	ClientID           string
	ClientSecret       string
	WebhookID          string
	BaseURL            string
	SignatureTolerance time.Duration
}

// WebhookConfig tunes the ingestion pipeline itself.
type WebhookConfig struct {
	MaxAttempts      int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	IdempotencyTTL   time.Duration
	PendingTTL       time.Duration
	FailureThreshold int64
	FailureWindow    time.Duration
}

// CollaboratorConfig points at the external services side effects call out to.
type CollaboratorConfig struct {
	InvoiceServiceURL      string
	NotificationServiceURL string
}

// Helper functions for parsing env vars
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return fallback
}

func (c *ObservabilityConfig) GetLogLevel() string {
	if c.Logging.Level == "" {
		switch c.Environment {
		case "production":
			return "info"
		case "development":
			return "debug"
		default:
			return "info"
		}
	}
	return c.Logging.Level
}

func (c *ObservabilityConfig) IsProduction() bool {
	return c.Environment == "production"
}

// StripeConfigured reports whether Stripe webhook verification can run.
func (c *Config) StripeConfigured() bool {
	return c.Stripe.WebhookSecret != ""
}

// PayPalConfigured reports whether PayPal webhook verification can run.
func (c *Config) PayPalConfigured() bool {
	return c.PayPal.ClientID != "" && c.PayPal.ClientSecret != "" && c.PayPal.WebhookID != ""
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Primary: PrimaryConfig{
			Env: getEnv("TEMPO_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("TEMPO_DB_HOST", "localhost"),
			Port:            getEnvInt("TEMPO_DB_PORT", 5432),
			User:            getEnv("TEMPO_DB_USER", "tempo"),
			Password:        getEnv("TEMPO_DB_PASSWORD", ""),
			Name:            getEnv("TEMPO_DB_NAME", "tempo"),
			SSLMode:         getEnv("TEMPO_DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("TEMPO_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("TEMPO_DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvInt("TEMPO_DB_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("TEMPO_DB_CONN_MAX_IDLE_TIME", 60),
		},
		Server: ServerConfig{
			Port:               getEnv("TEMPO_SERVER_PORT", "8080"),
			ReadTimeout:        getEnvInt("TEMPO_SERVER_READ_TIMEOUT", 30),
			WriteTimeout:       getEnvInt("TEMPO_SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:        getEnvInt("TEMPO_SERVER_IDLE_TIMEOUT", 60),
			CORSAllowedOrigins: getEnvSlice("TEMPO_SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Address:      getEnv("TEMPO_REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("TEMPO_REDIS_PASSWORD", ""),
			DB:           getEnvInt("TEMPO_REDIS_DB", 0),
			PoolSize:     getEnvInt("TEMPO_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("TEMPO_REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvDuration("TEMPO_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("TEMPO_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("TEMPO_REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      getEnvDuration("TEMPO_REDIS_LOCK_TTL", 30*time.Second),
			KeyPrefix:    getEnv("TEMPO_REDIS_KEY_PREFIX", "tempo:"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("TEMPO_KAFKA_BROKERS", []string{"localhost:9092"}),
		},
		Observability: &ObservabilityConfig{
			ServiceName: "Tempo",
			Environment: getEnv("TEMPO_ENV", "development"),
			Logging: LoggingConfig{
				Level:              getEnv("TEMPO_LOG_LEVEL", "debug"),
				Format:             getEnv("TEMPO_LOG_FORMAT", "console"),
				SlowQueryThreshold: getEnvDuration("TEMPO_LOG_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
			},
			NewRelic: NewRelicConfig{
				LicenseKey:                getEnv("TEMPO_NEWRELIC_LICENSE_KEY", ""),
				AppLogForwardingEnabled:   getEnvBool("TEMPO_NEWRELIC_LOG_FORWARDING", true),
				DistributedTracingEnabled: getEnvBool("TEMPO_NEWRELIC_DISTRIBUTED_TRACING", true),
				DebugLogging:              getEnvBool("TEMPO_NEWRELIC_DEBUG", false),
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  getEnvBool("TEMPO_HEALTHCHECK_ENABLED", true),
				Interval: getEnvDuration("TEMPO_HEALTHCHECK_INTERVAL", 30*time.Second),
				Timeout:  getEnvDuration("TEMPO_HEALTHCHECK_TIMEOUT", 5*time.Second),
				Checks:   getEnvSlice("TEMPO_HEALTHCHECK_CHECKS", []string{"database", "redis"}),
			},
		},
		Stripe: StripeConfig{
			WebhookSecret:      getEnv("TEMPO_STRIPE_WEBHOOK_SECRET", ""),
			SignatureTolerance: getEnvDuration("TEMPO_STRIPE_SIGNATURE_TOLERANCE", 5*time.Minute),
		},
		PayPal: PayPalConfig{
			ClientID:           getEnv("TEMPO_PAYPAL_CLIENT_ID", ""),
			ClientSecret:       getEnv("TEMPO_PAYPAL_CLIENT_SECRET", ""),
			WebhookID:          getEnv("TEMPO_PAYPAL_WEBHOOK_ID", ""),
			BaseURL:            getEnv("TEMPO_PAYPAL_BASE_URL", "https://api-m.paypal.com"),
			SignatureTolerance: getEnvDuration("TEMPO_PAYPAL_SIGNATURE_TOLERANCE", 5*time.Minute),
		},
		Webhook: WebhookConfig{
			MaxAttempts:      getEnvInt("TEMPO_WEBHOOK_MAX_ATTEMPTS", 3),
			RetryBaseDelay:   getEnvDuration("TEMPO_WEBHOOK_RETRY_BASE_DELAY", 200*time.Millisecond),
			RetryMaxDelay:    getEnvDuration("TEMPO_WEBHOOK_RETRY_MAX_DELAY", 2*time.Second),
			IdempotencyTTL:   getEnvDuration("TEMPO_WEBHOOK_IDEMPOTENCY_TTL", 72*time.Hour),
			PendingTTL:       getEnvDuration("TEMPO_WEBHOOK_PENDING_TTL", 5*time.Minute),
			FailureThreshold: getEnvInt64("TEMPO_WEBHOOK_FAILURE_THRESHOLD", 20),
			FailureWindow:    getEnvDuration("TEMPO_WEBHOOK_FAILURE_WINDOW", 10*time.Minute),
		},
		Collaborators: CollaboratorConfig{
			InvoiceServiceURL:      getEnv("TEMPO_INVOICE_SERVICE_URL", "http://localhost:8090"),
			NotificationServiceURL: getEnv("TEMPO_NOTIFICATION_SERVICE_URL", "http://localhost:8091"),
		},
	}

	// Validate required fields
	if cfg.Database.Host == "" {
		return nil, fmt.Errorf("TEMPO_DB_HOST is required")
	}
	if cfg.Database.Name == "" {
		return nil, fmt.Errorf("TEMPO_DB_NAME is required")
	}
	if cfg.Webhook.MaxAttempts < 1 {
		return nil, fmt.Errorf("TEMPO_WEBHOOK_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}
