package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/observability"
	obslogger "github.com/smallbiznis/matchpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/matchpay/internal/observability/tracing"
	"github.com/smallbiznis/matchpay/internal/payment/confirmation"
	"github.com/smallbiznis/matchpay/internal/payment/webhook"
	"github.com/smallbiznis/matchpay/internal/ratelimit"
	"github.com/smallbiznis/matchpay/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxWebhookBodyBytes = 1 << 20

	webhookRoute = "/api/payments/webhooks"
	confirmRoute = "/api/payments/confirm"
)

var paymentSpanNames = map[string]string{
	webhookRoute: obstracing.WebhookSpanName,
	confirmRoute: obstracing.ConfirmSpanName,
}

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(paymentSpanNames))
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *telemetry.Metrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	webhooks     *webhook.Service
	confirmation *confirmation.Service
	limiter      *ratelimit.WebhookLimiter
	obsMetrics   *obsmetrics.Metrics
	log          *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Webhooks     *webhook.Service
	Confirmation *confirmation.Service
	Limiter      *ratelimit.WebhookLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics       `optional:"true"`
	Log          *zap.Logger
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		webhooks:     p.Webhooks,
		confirmation: p.Confirmation,
		limiter:      p.Limiter,
		obsMetrics:   p.ObsMetrics,
		log:          log.Named("http"),
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	// -------- Payments --------
	s.engine.POST(webhookRoute, s.WebhookRateLimit(), s.HandlePaymentWebhook)
	s.engine.POST(confirmRoute, s.ConfirmPayment)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
