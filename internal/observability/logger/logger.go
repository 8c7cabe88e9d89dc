package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/matchpay/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	samplingWindow     = time.Second
	samplingInitial    = 100
	samplingThereafter = 100

	// paymentLoggerPrefix names the loggers whose lines are never sampled.
	paymentLoggerPrefix = "payment"
)

// Config configures the zap logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool
}

// New builds the service logger and flushes it on shutdown. Lines from the
// payment loggers bypass sampling so every webhook and confirmation outcome
// reaches the log; access and infrastructure lines are sampled.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Encoding = normalizeFormat(cfg.Format)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	zapCfg.Sampling = nil

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	options := []zap.Option{zap.AddCaller(), zap.WrapCore(sampleExceptPayments)}
	if cfg.Debug {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapCfg.Build(options...)
	if err != nil {
		return nil, err
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "matchpay"
	}
	logger = logger.With(
		zap.String("service", serviceName),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(logger)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = logger.Sync()
				return nil
			},
		})
	}

	return logger, nil
}

// paymentAwareCore routes payment loggers to the unsampled core and every
// other logger through the sampler.
type paymentAwareCore struct {
	zapcore.Core
	unsampled zapcore.Core
}

func sampleExceptPayments(core zapcore.Core) zapcore.Core {
	return &paymentAwareCore{
		Core:      zapcore.NewSamplerWithOptions(core, samplingWindow, samplingInitial, samplingThereafter),
		unsampled: core,
	}
}

func (c *paymentAwareCore) With(fields []zapcore.Field) zapcore.Core {
	return &paymentAwareCore{
		Core:      c.Core.With(fields),
		unsampled: c.unsampled.With(fields),
	}
}

func (c *paymentAwareCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if isPaymentLogger(ent.LoggerName) {
		return c.unsampled.Check(ent, ce)
	}
	return c.Core.Check(ent, ce)
}

func isPaymentLogger(name string) bool {
	return name == paymentLoggerPrefix || strings.HasPrefix(name, paymentLoggerPrefix+".")
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return "console"
	}
	return "json"
}

// FromContext returns the global logger enriched with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds the correlation id, the provider's x-request-id, the
// webhook topic being handled and trace ids.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	fields := []zap.Field{
		zap.String("request_id", obscontext.RequestIDFromContext(ctx)),
	}
	if providerRequestID := obscontext.ProviderRequestIDFromContext(ctx); providerRequestID != "" {
		fields = append(fields, zap.String("provider_request_id", providerRequestID))
	}
	if topic := obscontext.WebhookTopicFromContext(ctx); topic != "" {
		fields = append(fields, zap.String("webhook_topic", topic))
	}
	fields = append(fields, traceFields(ctx)...)

	return base.With(fields...)
}

// WithPayment adds the external payment identifier to the logger.
func WithPayment(log *zap.Logger, paymentID string) *zap.Logger {
	if log == nil {
		return nil
	}
	return log.With(zap.String("payment_id", strings.TrimSpace(paymentID)))
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
