// Package metrics provides the gateway's Prometheus instrumentation (C10):
// promauto vector construction with namespace-scoped metric names, narrowed
// from a broader HTTP/LLM/Agent/cache/DB metric family set down to the two
// surfaces this gateway owns: request outcomes and rate-limiter state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every metric vector the orchestrator, rate limiters, and
// key pool report to.
type Collector struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	tokensTotal         *prometheus.CounterVec
	rateLimitRejections *prometheus.CounterVec
	keyPoolFailures     *prometheus.CounterVec

	keyPoolInvalid   *prometheus.GaugeVec
	globalTokenCount *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector registers and returns a Collector under the given
// namespace. Pass a distinct namespace per process if more than one
// Collector is created in the same registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of chat requests handled by the gateway.",
		},
		[]string{"model", "dialect", "status"},
	)

	c.requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end chat request latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model", "dialect"},
	)

	c.tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total tokens accounted for, split by whether the figure is a pre-call estimate or an upstream-reported actual.",
		},
		[]string{"model", "phase"},
	)

	c.rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total requests rejected by a rate-limiter tier.",
		},
		[]string{"tier", "model"},
	)

	c.keyPoolFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_pool_failures_total",
			Help:      "Total upstream call failures attributed to a credential, per model.",
		},
		[]string{"model"},
	)

	c.keyPoolInvalid = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "key_pool_invalid_credentials",
			Help:      "Number of credentials currently flagged invalid in the pool.",
		},
		[]string{},
	)

	c.globalTokenCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "global_window_token_count",
			Help:      "Current token count in the active global rate-limiter window, per model.",
		},
		[]string{"model"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// ObserveRequest records one completed chat request's outcome and latency.
func (c *Collector) ObserveRequest(model, dialectName string, success bool, latencyMS int64) {
	status := "error"
	if success {
		status = "ok"
	}
	c.requestsTotal.WithLabelValues(model, dialectName, status).Inc()
	c.requestDuration.WithLabelValues(model, dialectName).Observe(float64(latencyMS) / 1000.0)
}

// ObserveTokens adds tokens to model's running total under the given phase
// ("estimated" or "actual"). Non-positive values are ignored.
func (c *Collector) ObserveTokens(model, phase string, tokens int) {
	if tokens <= 0 {
		return
	}
	c.tokensTotal.WithLabelValues(model, phase).Add(float64(tokens))
}

// ObserveRateLimitRejection records one request rejected by a limiter tier
// ("global" or "perkey") for model.
func (c *Collector) ObserveRateLimitRejection(tier, model string) {
	c.rateLimitRejections.WithLabelValues(tier, model).Inc()
}

// IncKeyPoolFailure records one upstream call failure attributed to a
// credential while serving model.
func (c *Collector) IncKeyPoolFailure(model string) {
	c.keyPoolFailures.WithLabelValues(model).Inc()
}

// SetKeyPoolInvalid reports the current count of invalidated credentials.
func (c *Collector) SetKeyPoolInvalid(count int) {
	c.keyPoolInvalid.WithLabelValues().Set(float64(count))
}

// SetGlobalTokenCount reports model's current global-window token count.
func (c *Collector) SetGlobalTokenCount(model string, count int) {
	c.globalTokenCount.WithLabelValues(model).Set(float64(count))
}
