package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "credauth"

// MetricsSink is an ActivitySink that counts events in prometheus.
type MetricsSink struct {
	logins        *prometheus.CounterVec
	lockouts      prometheus.Counter
	registrations prometheus.Counter
	tokens        *prometheus.CounterVec
	cleaned       prometheus.Counter
	accounts      *prometheus.CounterVec
}

var _ ActivitySink = (*MetricsSink)(nil)

func NewMetricsSink() *MetricsSink {
	return &MetricsSink{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by result and internal reason",
		}, []string{"result", "reason"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lockouts_total",
			Help:      "Locks engaged after reaching the failure threshold",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "registrations_total",
			Help:      "Accounts registered",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_tokens_total",
			Help:      "Refresh token lifecycle events",
		}, []string{"event", "reason"}),
		cleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_tokens_cleaned_total",
			Help:      "Expired refresh tokens deleted by cleanup",
		}),
		accounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "account_changes_total",
			Help:      "Account updates and deactivations",
		}, []string{"change"}),
	}
}

// Register adds the collectors to reg, or the default registerer when nil.
// Collectors that are already registered are skipped.
func (m *MetricsSink) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range m.collectors() {
		if err := registerCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *MetricsSink) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.logins, m.lockouts, m.registrations, m.tokens, m.cleaned, m.accounts}
}

func (m *MetricsSink) Record(_ context.Context, event ActivityEvent) error {
	switch event.EventType {
	case ActivityEventLoginSuccess:
		m.logins.WithLabelValues("success", "").Inc()
	case ActivityEventLoginFailure:
		m.logins.WithLabelValues("failure", event.Reason).Inc()
	case ActivityEventAccountLocked:
		m.lockouts.Inc()
	case ActivityEventRegistered:
		m.registrations.Inc()
	case ActivityEventTokenIssued:
		m.tokens.WithLabelValues("issued", "").Inc()
	case ActivityEventTokenRejected:
		m.tokens.WithLabelValues("rejected", event.Reason).Inc()
	case ActivityEventTokenRevoked:
		m.tokens.WithLabelValues("revoked", "").Inc()
	case ActivityEventTokensCleaned:
		if n, ok := event.Metadata["deleted"].(int); ok {
			m.cleaned.Add(float64(n))
		}
	case ActivityEventAccountUpdated:
		m.accounts.WithLabelValues("updated").Inc()
	case ActivityEventAccountDisabled:
		m.accounts.WithLabelValues("deactivated").Inc()
	}
	return nil
}

// HTTPMetrics counts and times fiber requests by route pattern.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (h *HTTPMetrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := registerCollector(reg, h.requests); err != nil {
		return err
	}
	return registerCollector(reg, h.duration)
}

// Middleware must be mounted before the routes it observes.
func (h *HTTPMetrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		path := c.Route().Path
		h.requests.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		h.duration.WithLabelValues(c.Method(), path).Observe(time.Since(started).Seconds())
		return err
	}
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
	}
	return nil
}
