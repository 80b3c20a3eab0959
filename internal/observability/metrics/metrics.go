package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// stateValue maps breaker states onto the breaker_state gauge.
var stateValue = map[string]float64{
	"CLOSED":    0,
	"HALF_OPEN": 1,
	"OPEN":      2,
}

// AssistantMetrics exposes counters/histograms for the assistant and its circuit breaker.
type AssistantMetrics struct {
	responsesTotal     *prometheus.CounterVec
	responseLatency    *prometheus.HistogramVec
	emergencyTotal     prometheus.Counter
	tokensTotal        *prometheus.CounterVec
	costTotal          *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

func NewAssistantMetrics(reg prometheus.Registerer) *AssistantMetrics {
	m := &AssistantMetrics{
		responsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "chat",
			Name:      "responses_total",
			Help:      "Total chat responses by source",
		}, []string{"source"}),
		responseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "chat",
			Name:      "response_latency_seconds",
			Help:      "Latency of chat message processing by source",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		emergencyTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "chat",
			Name:      "emergency_responses_total",
			Help:      "Responses answered with the emergency envelope",
		}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "provider",
			Name:      "tokens_total",
			Help:      "Tokens reported by the completion provider",
		}, []string{"model"}),
		costTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "provider",
			Name:      "cost_usd_total",
			Help:      "Estimated completion cost in USD",
		}, []string{"model"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"breaker", "from", "to"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Current circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"breaker"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.responsesTotal,
		m.responseLatency,
		m.emergencyTotal,
		m.tokensTotal,
		m.costTotal,
		m.breakerTransitions,
		m.breakerState,
	)
	return m
}

func (m *AssistantMetrics) ObserveResponse(source string, latency time.Duration) {
	if m == nil {
		return
	}
	m.responsesTotal.WithLabelValues(source).Inc()
	m.responseLatency.WithLabelValues(source).Observe(latency.Seconds())
}

func (m *AssistantMetrics) ObserveEmergency() {
	if m == nil {
		return
	}
	m.emergencyTotal.Inc()
}

func (m *AssistantMetrics) ObserveCompletion(model string, tokens int, costUSD float64) {
	if m == nil {
		return
	}
	if tokens > 0 {
		m.tokensTotal.WithLabelValues(model).Add(float64(tokens))
	}
	if costUSD > 0 {
		m.costTotal.WithLabelValues(model).Add(costUSD)
	}
}

// ObserveBreakerTransition has the shape of a breaker state change listener
// once the states are converted to strings.
func (m *AssistantMetrics) ObserveBreakerTransition(name, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(name, from, to).Inc()
	if v, ok := stateValue[to]; ok {
		m.breakerState.WithLabelValues(name).Set(v)
	}
}

// SetBreakerState records the state without counting a transition.
func (m *AssistantMetrics) SetBreakerState(name, state string) {
	if m == nil {
		return
	}
	if v, ok := stateValue[state]; ok {
		m.breakerState.WithLabelValues(name).Set(v)
	}
}
