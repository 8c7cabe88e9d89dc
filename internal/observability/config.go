package observability

import (
	"strings"

	"github.com/smallbiznis/matchpay/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config is the resolved logging and tracing setup.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	// SampleWebhooks records every webhook delivery span whatever the ratio.
	SampleWebhooks bool
}

// LoadConfig normalizes the observability section of the service config.
// An unknown log level falls back to info and the sampling ratio is clamped
// to [0, 1].
func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "matchpay"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             normalizeLevel(obs.LogLevel),
		LogFormat:            strings.ToLower(strings.TrimSpace(obs.LogFormat)),
		OtelEnabled:          obs.OTelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(obs.OTLPProtocol)),
		OtelSamplingRatio:    clampRatio(obs.SamplingRatio),
		SampleWebhooks:       obs.SampleWebhooks,
	}
}

// Debug turns on stack traces, debug gin mode and verbose access logs.
func (c Config) Debug() bool {
	return c.LogLevel == zapcore.DebugLevel.String() || isDevEnv(c.Environment)
}

func normalizeLevel(level string) string {
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return zapcore.InfoLevel.String()
	}
	return parsed.String()
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}

func isDevEnv(env string) bool {
	switch env {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
