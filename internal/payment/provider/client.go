package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchpay/internal/observability/metrics"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.mercadopago.com"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Client fetches payments from the provider REST API.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.Logger
	metrics    *obsmetrics.Metrics
	tracer     trace.Tracer
}

func NewClient(p Params) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(p.Config.Provider.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := p.Config.Provider.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:     log.Named("payment.provider"),
		metrics: p.Metrics,
		tracer:  otel.Tracer("matchpay/payment-provider"),
	}
}

// FetchPayment loads GET /v1/payments/{id}. Non-2xx responses and transport
// failures come back as *domain.UpstreamError.
func (c *Client) FetchPayment(ctx context.Context, paymentID, accessToken string) (*domain.AuthoritativePayment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, domain.ErrInvalidPaymentID
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, domain.ErrMissingAccessToken
	}

	ctx, span := c.tracer.Start(ctx, "payment_provider.fetch_payment", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := logger.WithPayment(logger.WithContext(ctx, c.log), paymentID)

	endpoint := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, url.PathEscape(paymentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstream := domain.NewUpstreamTransportError(err)
		c.record(ctx, span, upstream)
		log.Warn("payment provider unreachable",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, upstream
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstream := domain.NewUpstreamStatusError(resp.StatusCode, body)
		c.record(ctx, span, upstream)
		log.Warn("payment provider rejected fetch",
			zap.Int("status", resp.StatusCode),
			zap.String("class", upstream.Class.String()),
			zap.ByteString("provider_error", upstream.ProviderError),
		)
		return nil, upstream
	}

	if readErr != nil {
		upstream := domain.NewUpstreamTransportError(readErr)
		c.record(ctx, span, upstream)
		return nil, upstream
	}

	raw, err := decodePayment(body)
	if err != nil {
		// Only a 2xx whose body is not a JSON object is a provider fault.
		upstream := &domain.UpstreamError{
			Class:      domain.UpstreamTransient,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode payment: %w", err),
		}
		c.record(ctx, span, upstream)
		log.Error("payment provider returned malformed payment", zap.Error(err))
		return nil, upstream
	}

	payment := raw.toDomain()
	if payment.ID == "" {
		payment.ID = paymentID
	}

	c.metrics.RecordProviderFetch(ctx, "ok", domain.StatusClass(resp.StatusCode))
	log.Debug("payment fetched",
		zap.String("status", payment.Status),
		zap.String("status_detail", payment.StatusDetail),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &payment, nil
}

func (c *Client) record(ctx context.Context, span trace.Span, upstream *domain.UpstreamError) {
	c.metrics.RecordProviderFetch(ctx, upstream.Class.String(), domain.StatusClass(upstream.StatusCode))
	span.SetStatus(codes.Error, upstream.Class.String())
}

var _ domain.StatusFetcher = (*Client)(nil)
