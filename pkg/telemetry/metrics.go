package telemetry

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives scraped from /metrics.
type Metrics struct {
	apiRequests       *prometheus.CounterVec
	apiDuration       *prometheus.HistogramVec
	webhookDeliveries *prometheus.CounterVec
	webhookDuration   *prometheus.HistogramVec
	paymentAmount     *prometheus.HistogramVec
}

// NewMetrics registers and returns Prometheus metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchpay_http_requests_total",
		Help: "Counts HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matchpay_http_request_duration_seconds",
		Help:    "HTTP request latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	webhookDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchpay_webhook_deliveries_total",
		Help: "Inbound webhook deliveries by topic and outcome.",
	}, []string{"topic", "outcome"})

	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matchpay_webhook_duration_seconds",
		Help:    "Inbound webhook handling latency by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	paymentAmount := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matchpay_payment_amount",
		Help:    "Amount distribution of newly processed payments.",
		Buckets: []float64{100, 1000, 5000, 10000, 30000, 100000},
	}, []string{"plan_tier"})

	reg.MustRegister(
		apiRequests,
		apiDuration,
		webhookDeliveries,
		webhookDuration,
		paymentAmount,
	)

	return &Metrics{
		apiRequests:       apiRequests,
		apiDuration:       apiDuration,
		webhookDeliveries: webhookDeliveries,
		webhookDuration:   webhookDuration,
		paymentAmount:     paymentAmount,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// RecordWebhookDelivery records webhook delivery metrics.
func (m *Metrics) RecordWebhookDelivery(topic, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	outcomeLabel := sanitizeLabel(outcome)
	m.webhookDeliveries.WithLabelValues(sanitizeLabel(topic), outcomeLabel).Inc()
	m.webhookDuration.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObservePaymentAmount records the amount of a newly processed payment.
func (m *Metrics) ObservePaymentAmount(planTier string, amount float64) {
	if m == nil {
		return
	}
	m.paymentAmount.WithLabelValues(sanitizeLabel(planTier)).Observe(amount)
}

// GinMiddleware records request counters and latency histograms.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.ObserveAPIRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
