// Package breaker guards calls to an unreliable dependency with a windowed
// circuit breaker. A primary operation runs only when the breaker admits it;
// every failure, timeout or denial is answered by the caller's fallback.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logx "github.com/Chative-core-poc-v1/assistant/pkg/logger"
)

var (
	// ErrRequestTimeout is the failure recorded when a primary call exceeds RequestTimeout.
	ErrRequestTimeout = errors.New("primary call exceeded request timeout")
	// ErrPrimaryPanic wraps a recovered panic from a primary call.
	ErrPrimaryPanic = errors.New("primary call panicked")
	// ErrFallbackPanic wraps a recovered panic from a fallback call.
	ErrFallbackPanic = errors.New("fallback call panicked")
)

// Option customizes a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces time.Now. Deadlines on primary calls still use real time.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithName labels log lines and state change notifications.
func WithName(name string) Option {
	return func(cb *CircuitBreaker) {
		cb.name = name
	}
}

// WithStateChangeListener registers fn for every state transition.
func WithStateChangeListener(fn StateChangeFunc) Option {
	return func(cb *CircuitBreaker) {
		if fn != nil {
			cb.listeners = append(cb.listeners, fn)
		}
	}
}

// CircuitBreaker is safe for concurrent use. All bookkeeping happens under mu;
// the primary and fallback operations run outside it.
//
// Every transition bumps generation. A call remembers the generation it was
// admitted under, and its outcome can only drive a transition while that
// generation is current, so two probes admitted in the same HALF_OPEN period
// cannot both close, and a straggler from an earlier period cannot close a
// fresh one.
type CircuitBreaker struct {
	name      string
	cfg       Config
	now       func() time.Time
	listeners []StateChangeFunc

	mu            sync.Mutex
	state         State
	generation    uint64
	records       []RequestRecord
	halfOpenCalls int
	openedAt      time.Time
	metrics       Metrics
}

// ticket identifies an admitted primary call.
type ticket struct {
	generation uint64
	probe      bool
}

// New validates cfg and returns a CLOSED breaker.
func New(cfg Config, opts ...Option) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cb := &CircuitBreaker{
		name:  "primary",
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.metrics.State = StateClosed
	return cb, nil
}

// Execute runs primary when the breaker admits it and fallback otherwise.
// A primary error, panic or timeout is absorbed: the fallback's result is
// returned instead. Only a failing fallback surfaces an error.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, primary, fallback func(context.Context) (T, error)) (T, error) {
	if t, admitted := cb.admit(); admitted {
		start := cb.now()
		result, err := runWithTimeout(ctx, cb.cfg.RequestTimeout, primary)
		latency := cb.now().Sub(start)

		switch {
		case err == nil:
			cb.onSuccess(t, latency)
			return result, nil
		case ctx.Err() != nil && !errors.Is(err, ErrRequestTimeout):
			// The caller gave up; that says nothing about the dependency.
			cb.onAbandoned(t)
		default:
			cb.onFailure(t, latency, err)
		}
	}

	cb.mu.Lock()
	cb.metrics.FallbackResponses++
	cb.mu.Unlock()

	return runFallback(ctx, fallback)
}

// State returns the current state without evaluating recovery.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns a copy of the counters. It never prunes, so two reads with
// no Execute in between are identical.
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.metrics
}

// Config returns the breaker's configuration.
func (cb *CircuitBreaker) Config() Config {
	return cb.cfg
}

// Name returns the label given with WithName.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces CLOSED and clears counters, retained records and probes.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := cb.transition(StateClosed)
	cb.generation++
	cb.records = nil
	cb.halfOpenCalls = 0
	cb.openedAt = time.Time{}
	cb.metrics = Metrics{State: StateClosed}
	cb.mu.Unlock()

	logx.Info().Str("breaker", cb.name).Msg("Circuit breaker reset")
	notify()
}

func (cb *CircuitBreaker) admit() (ticket, bool) {
	cb.mu.Lock()
	now := cb.now()
	cb.prune(now)
	cb.metrics.TotalRequests++

	notify := noop
	var t ticket
	admitted := false

	switch cb.state {
	case StateClosed:
		t, admitted = ticket{generation: cb.generation}, true
	case StateOpen:
		if now.Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
			notify = cb.transition(StateHalfOpen)
			cb.halfOpenCalls = 1
			cb.metrics.LastRecoveryAttempt = now
			t, admitted = ticket{generation: cb.generation, probe: true}, true
		}
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.cfg.HalfOpenMaxCalls {
			cb.halfOpenCalls++
			t, admitted = ticket{generation: cb.generation, probe: true}, true
		}
	}
	state := cb.state
	cb.mu.Unlock()

	notify()
	if !admitted {
		logx.Debug().Str("breaker", cb.name).Str("state", state.String()).Msg("Primary call denied, using fallback")
	}
	return t, admitted
}

func (cb *CircuitBreaker) onSuccess(t ticket, latency time.Duration) {
	cb.mu.Lock()
	now := cb.now()
	cb.record(now, true, latency)
	cb.metrics.SuccessfulRequests++
	cb.metrics.ConsecutiveFailures = 0

	notify := noop
	if t.probe && t.generation == cb.generation && cb.state == StateHalfOpen {
		notify = cb.transition(StateClosed)
		cb.halfOpenCalls = 0
		cb.forgetFailures()
	}
	cb.mu.Unlock()

	notify()
}

func (cb *CircuitBreaker) onFailure(t ticket, latency time.Duration, err error) {
	cb.mu.Lock()
	now := cb.now()
	cb.record(now, false, latency)
	cb.metrics.FailedRequests++
	cb.metrics.ConsecutiveFailures++
	cb.metrics.LastFailureTime = now

	notify := noop
	switch {
	case t.probe && t.generation == cb.generation && cb.state == StateHalfOpen:
		notify = cb.trip(now)
	case cb.state == StateClosed && cb.failuresInWindow() >= cb.cfg.FailureThreshold:
		notify = cb.trip(now)
	}
	consecutive := cb.metrics.ConsecutiveFailures
	cb.mu.Unlock()

	logx.Warn().
		Err(err).
		Str("breaker", cb.name).
		Int("consecutive_failures", consecutive).
		Dur("latency", latency).
		Msg("Primary call failed")
	notify()
}

// onAbandoned releases the probe slot of a call the caller cancelled.
func (cb *CircuitBreaker) onAbandoned(t ticket) {
	cb.mu.Lock()
	if t.probe && t.generation == cb.generation && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}
	cb.mu.Unlock()
}

// trip opens the breaker. Callers hold mu.
func (cb *CircuitBreaker) trip(now time.Time) func() {
	cb.openedAt = now
	cb.halfOpenCalls = 0
	cb.metrics.CircuitBreakerTrips++
	return cb.transition(StateOpen)
}

// transition moves to state `to` and returns the notification to run once mu is
// released. Callers hold mu.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	if from == to {
		return noop
	}
	cb.state = to
	cb.generation++
	cb.metrics.State = to

	return func() {
		event := logx.Info()
		if to == StateOpen {
			event = logx.Warn()
		}
		event.Str("breaker", cb.name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")

		for _, fn := range cb.listeners {
			cb.notifyListener(fn, from, to)
		}
	}
}

func (cb *CircuitBreaker) notifyListener(fn StateChangeFunc, from, to State) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("breaker", cb.name).Interface("panic", r).Msg("State change listener panicked")
		}
	}()
	fn(cb.name, from, to)
}

// record appends an outcome and refreshes the rolling average. Callers hold mu.
func (cb *CircuitBreaker) record(now time.Time, success bool, latency time.Duration) {
	cb.records = append(cb.records, RequestRecord{
		Timestamp:      now,
		Success:        success,
		ResponseTimeMs: float64(latency) / float64(time.Millisecond),
	})
	cb.prune(now)
}

// prune drops records older than the monitoring window. Callers hold mu.
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.cfg.MonitoringWindow)
	keep := 0
	for keep < len(cb.records) && cb.records[keep].Timestamp.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		cb.records = append(cb.records[:0], cb.records[keep:]...)
	}
	cb.refreshAverage()
}

// forgetFailures drops retained failures after a full recovery. Callers hold mu.
func (cb *CircuitBreaker) forgetFailures() {
	kept := cb.records[:0]
	for _, r := range cb.records {
		if r.Success {
			kept = append(kept, r)
		}
	}
	cb.records = kept
	cb.refreshAverage()
}

func (cb *CircuitBreaker) refreshAverage() {
	if len(cb.records) == 0 {
		cb.metrics.AverageResponseTimeMs = 0
		return
	}
	var total float64
	for _, r := range cb.records {
		total += r.ResponseTimeMs
	}
	cb.metrics.AverageResponseTimeMs = total / float64(len(cb.records))
}

func (cb *CircuitBreaker) failuresInWindow() int {
	n := 0
	for _, r := range cb.records {
		if !r.Success {
			n++
		}
	}
	return n
}

func noop() {}

// runWithTimeout abandons fn once the deadline passes; its late result is dropped.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeoutCause(ctx, timeout, ErrRequestTimeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrPrimaryPanic, r)}
			}
		}()
		v, err := fn(callCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-callCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrRequestTimeout
	}
}

func runFallback[T any](ctx context.Context, fn func(context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result, err = zero, fmt.Errorf("%w: %v", ErrFallbackPanic, r)
		}
	}()
	return fn(ctx)
}
