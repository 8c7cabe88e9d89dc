package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/observability/metrics"
	"github.com/smallbiznis/matchpay/internal/observability/tracing"
	"github.com/smallbiznis/matchpay/pkg/telemetry"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the logger, the tracer provider, the payment OTel
// instruments and the Prometheus HTTP metrics.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		provideHTTPMetrics,
	),
	fx.Invoke(logStartup),
)

func provideHTTPMetrics() *telemetry.Metrics {
	return telemetry.NewMetrics(prometheus.DefaultRegisterer)
}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Debug:       cfg.Debug(),
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	tc := tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
	if cfg.SampleWebhooks {
		tc.AlwaysSample = []string{tracing.WebhookSpanName}
	}
	return tc
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

// logStartup also forces the tracer provider to be built, since no
// component depends on it directly.
func logStartup(cfg Config, _ *sdktrace.TracerProvider, log *zap.Logger) {
	log.Info("observability configured",
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("debug", cfg.Debug()),
		zap.Bool("otel_export", cfg.OtelEnabled),
		zap.Bool("webhook_spans_always_sampled", cfg.SampleWebhooks),
	)
}
