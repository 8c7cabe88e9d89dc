package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint  string
	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis       RedisConfig
	Provider    ProviderConfig
	Webhook     WebhookConfig
	Idempotency IdempotencyConfig
	RateLimit   RateLimitConfig
	Analytics   AnalyticsConfig
	Push        PushConfig

	EntitlementsEnabled bool
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTelEnabled    bool
	OTLPProtocol   string
	SamplingRatio  float64
	SampleWebhooks bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ProviderConfig points at the payment provider REST API.
type ProviderConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// WebhookConfig controls inbound signature verification. An empty secret
// disables verification.
type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

type IdempotencyConfig struct {
	Backend    string
	Collection string
}

type RateLimitConfig struct {
	Enabled      bool
	WebhookRate  float64
	WebhookBurst int
}

type AnalyticsConfig struct {
	Sink     string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type PushConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

const (
	IdempotencyBackendDatabase = "database"
	IdempotencyBackendRedis    = "redis"

	AnalyticsSinkLog  = "log"
	AnalyticsSinkHTTP = "http"
	AnalyticsSinkNone = "none"
)

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "matchpay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "matchpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Observability: ObservabilityConfig{
			LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OTelEnabled:    getenvBool("OTEL_ENABLED", false),
			OTLPProtocol:   strings.ToLower(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			SampleWebhooks: getenvBool("OTEL_SAMPLE_WEBHOOKS", true),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Provider: ProviderConfig{
			BaseURL:     strings.TrimRight(getenv("PAYMENT_PROVIDER_BASE_URL", "https://api.mercadopago.com"), "/"),
			AccessToken: strings.TrimSpace(getenv("PAYMENT_PROVIDER_ACCESS_TOKEN", "")),
			Timeout:     getenvDuration("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
		},
		Webhook: WebhookConfig{
			Secret:    strings.TrimSpace(getenv("PAYMENT_WEBHOOK_SECRET", "")),
			Tolerance: getenvDuration("PAYMENT_WEBHOOK_TOLERANCE", 0),
		},
		Idempotency: IdempotencyConfig{
			Backend:    strings.ToLower(getenv("IDEMPOTENCY_BACKEND", IdempotencyBackendDatabase)),
			Collection: getenv("IDEMPOTENCY_COLLECTION", "processed_payments"),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("WEBHOOK_RATE_LIMIT_ENABLED", false),
			WebhookRate:  getenvFloat("WEBHOOK_RATE_LIMIT_RATE", 20),
			WebhookBurst: getenvInt("WEBHOOK_RATE_LIMIT_BURST", 40),
		},
		Analytics: AnalyticsConfig{
			Sink:     strings.ToLower(getenv("ANALYTICS_SINK", AnalyticsSinkLog)),
			Endpoint: strings.TrimSpace(getenv("ANALYTICS_ENDPOINT", "")),
			APIKey:   strings.TrimSpace(getenv("ANALYTICS_API_KEY", "")),
			Timeout:  getenvDuration("ANALYTICS_TIMEOUT", 5*time.Second),
		},
		Push: PushConfig{
			Endpoint: strings.TrimSpace(getenv("PUSH_ENDPOINT", "")),
			APIKey:   strings.TrimSpace(getenv("PUSH_API_KEY", "")),
			Timeout:  getenvDuration("PUSH_TIMEOUT", 5*time.Second),
		},
		EntitlementsEnabled: getenvBool("ENTITLEMENTS_ENABLED", true),
	}

	return cfg
}

// SignatureVerificationEnabled reports whether a webhook secret is configured.
func (c Config) SignatureVerificationEnabled() bool {
	return c.Webhook.Secret != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("8s") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}
