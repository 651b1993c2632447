package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Each test uses its own namespace: promauto registers against the global
// default registry, and a namespace collision across tests in this package
// would panic on the second NewCollector call.

func TestObserveRequest_IncrementsCounterAndHistogram(t *testing.T) {
	c := NewCollector("gemigate_test_observe", zap.NewNop())
	c.ObserveRequest("gemini-2.0-flash", "native", true, 150)

	metric := &dto.Metric{}
	require.NoError(t, c.requestsTotal.WithLabelValues("gemini-2.0-flash", "native", "ok").Write(metric))
	assert.Equal(t, float64(1), metric.Counter.GetValue())
}

func TestObserveRequest_FailureRecordsErrorStatus(t *testing.T) {
	c := NewCollector("gemigate_test_failure", zap.NewNop())
	c.ObserveRequest("gemini-2.0-flash", "openai", false, 50)

	metric := &dto.Metric{}
	require.NoError(t, c.requestsTotal.WithLabelValues("gemini-2.0-flash", "openai", "error").Write(metric))
	assert.Equal(t, float64(1), metric.Counter.GetValue())
}

func TestObserveTokens_AddsToRunningTotal(t *testing.T) {
	c := NewCollector("gemigate_test_tokens", zap.NewNop())
	c.ObserveTokens("gemini-2.0-flash", "actual", 100)
	c.ObserveTokens("gemini-2.0-flash", "actual", 50)

	metric := &dto.Metric{}
	require.NoError(t, c.tokensTotal.WithLabelValues("gemini-2.0-flash", "actual").Write(metric))
	assert.Equal(t, float64(150), metric.Counter.GetValue())
}

func TestObserveTokens_IgnoresNonPositive(t *testing.T) {
	c := NewCollector("gemigate_test_tokens_zero", zap.NewNop())
	c.ObserveTokens("gemini-2.0-flash", "estimated", 0)
	c.ObserveTokens("gemini-2.0-flash", "estimated", -5)

	metric := &dto.Metric{}
	require.NoError(t, c.tokensTotal.WithLabelValues("gemini-2.0-flash", "estimated").Write(metric))
	assert.Equal(t, float64(0), metric.Counter.GetValue())
}

func TestObserveTokens_SeparatesEstimatedFromActualPhase(t *testing.T) {
	c := NewCollector("gemigate_test_tokens_phase", zap.NewNop())
	c.ObserveTokens("gemini-2.0-flash", "estimated", 40)
	c.ObserveTokens("gemini-2.0-flash", "actual", 37)

	estimated := &dto.Metric{}
	require.NoError(t, c.tokensTotal.WithLabelValues("gemini-2.0-flash", "estimated").Write(estimated))
	assert.Equal(t, float64(40), estimated.Counter.GetValue())

	actual := &dto.Metric{}
	require.NoError(t, c.tokensTotal.WithLabelValues("gemini-2.0-flash", "actual").Write(actual))
	assert.Equal(t, float64(37), actual.Counter.GetValue())
}

func TestObserveRateLimitRejection_IncrementsPerTierAndModel(t *testing.T) {
	c := NewCollector("gemigate_test_rejections", zap.NewNop())
	c.ObserveRateLimitRejection("global", "gemini-2.0-flash")
	c.ObserveRateLimitRejection("perkey", "gemini-2.0-flash")
	c.ObserveRateLimitRejection("global", "gemini-2.0-flash")

	global := &dto.Metric{}
	require.NoError(t, c.rateLimitRejections.WithLabelValues("global", "gemini-2.0-flash").Write(global))
	assert.Equal(t, float64(2), global.Counter.GetValue())

	perKey := &dto.Metric{}
	require.NoError(t, c.rateLimitRejections.WithLabelValues("perkey", "gemini-2.0-flash").Write(perKey))
	assert.Equal(t, float64(1), perKey.Counter.GetValue())
}

func TestIncKeyPoolFailure_IncrementsPerModel(t *testing.T) {
	c := NewCollector("gemigate_test_keypool_failures", zap.NewNop())
	c.IncKeyPoolFailure("gemini-2.0-flash")
	c.IncKeyPoolFailure("gemini-2.0-flash")

	metric := &dto.Metric{}
	require.NoError(t, c.keyPoolFailures.WithLabelValues("gemini-2.0-flash").Write(metric))
	assert.Equal(t, float64(2), metric.Counter.GetValue())
}

func TestSetKeyPoolInvalid_ReportsGauge(t *testing.T) {
	c := NewCollector("gemigate_test_keypool", zap.NewNop())
	c.SetKeyPoolInvalid(3)

	metric := &dto.Metric{}
	require.NoError(t, c.keyPoolInvalid.WithLabelValues().Write(metric))
	assert.Equal(t, float64(3), metric.Gauge.GetValue())
}

func TestSetGlobalTokenCount_ReportsGaugePerModel(t *testing.T) {
	c := NewCollector("gemigate_test_globalwindow", zap.NewNop())
	c.SetGlobalTokenCount("gemini-2.0-flash", 42)

	metric := &dto.Metric{}
	require.NoError(t, c.globalTokenCount.WithLabelValues("gemini-2.0-flash").Write(metric))
	assert.Equal(t, float64(42), metric.Gauge.GetValue())
}
