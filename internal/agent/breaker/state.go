package breaker

import "time"

// State represents circuit breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// RequestRecord is one primary outcome, retained while inside the monitoring window.
type RequestRecord struct {
	Timestamp      time.Time
	Success        bool
	ResponseTimeMs float64
}

// Metrics is a point-in-time copy of the breaker's counters.
type Metrics struct {
	TotalRequests         int64     `json:"totalRequests"`
	SuccessfulRequests    int64     `json:"successfulRequests"`
	FailedRequests        int64     `json:"failedRequests"`
	CircuitBreakerTrips   int64     `json:"circuitBreakerTrips"`
	FallbackResponses     int64     `json:"fallbackResponses"`
	AverageResponseTimeMs float64   `json:"averageResponseTime"`
	ConsecutiveFailures   int       `json:"consecutiveFailures"`
	State                 State     `json:"state"`
	LastFailureTime       time.Time `json:"lastFailureTime"`
	LastRecoveryAttempt   time.Time `json:"lastRecoveryAttempt"`
}

// StateChangeFunc is notified after every transition, outside the breaker lock.
type StateChangeFunc func(name string, from, to State)
