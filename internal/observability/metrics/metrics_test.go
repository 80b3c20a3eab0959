package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAssistantMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAssistantMetrics(reg)

	m.ObserveResponse("external", 120*time.Millisecond)
	m.ObserveResponse("faq", 2*time.Millisecond)
	m.ObserveResponse("faq", 3*time.Millisecond)
	m.ObserveEmergency()
	m.ObserveCompletion("gemini-2.5-flash", 150, 0.001)
	m.ObserveCompletion("gemini-2.5-flash", 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.responsesTotal.WithLabelValues("external")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.responsesTotal.WithLabelValues("faq")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emergencyTotal))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.tokensTotal.WithLabelValues("gemini-2.5-flash")))
	assert.InDelta(t, 0.001, testutil.ToFloat64(m.costTotal.WithLabelValues("gemini-2.5-flash")), 1e-12)
}

func TestAssistantMetricsBreakerState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAssistantMetrics(reg)

	m.SetBreakerState("gemini", "CLOSED")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.breakerState.WithLabelValues("gemini")))

	m.ObserveBreakerTransition("gemini", "CLOSED", "OPEN")
	m.ObserveBreakerTransition("gemini", "OPEN", "HALF_OPEN")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("gemini")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerTransitions.WithLabelValues("gemini", "CLOSED", "OPEN")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.breakerTransitions.WithLabelValues("gemini", "HALF_OPEN", "CLOSED")))
}

func TestAssistantMetricsRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewAssistantMetrics(reg)
	assert.Panics(t, func() { NewAssistantMetrics(reg) })
}

func TestAssistantMetricsNilSafe(t *testing.T) {
	var m *AssistantMetrics
	m.ObserveResponse("faq", time.Millisecond)
	m.ObserveEmergency()
	m.ObserveCompletion("model", 1, 1)
	m.ObserveBreakerTransition("b", "CLOSED", "OPEN")
	m.SetBreakerState("b", "OPEN")
}
