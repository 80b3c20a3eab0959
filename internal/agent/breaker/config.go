package breaker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	errx "github.com/Chative-core-poc-v1/assistant/internal/core/error"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("circuit breaker config rejected")

// Config holds the immutable tuning parameters of a CircuitBreaker.
type Config struct {
	FailureThreshold int           `json:"failureThreshold"` // failures inside MonitoringWindow that trip the breaker
	RecoveryTimeout  time.Duration `json:"recoveryTimeout"`  // time OPEN must last before a probe is admitted
	RequestTimeout   time.Duration `json:"requestTimeout"`   // per-call deadline for the primary operation
	MonitoringWindow time.Duration `json:"monitoringWindow"` // sliding span over which failures are counted
	HalfOpenMaxCalls int           `json:"halfOpenMaxCalls"` // probes admitted while HALF_OPEN
}

// Preset names accepted by Preset.
const (
	PresetConservative = "conservative"
	PresetBalanced     = "balanced"
	PresetAggressive   = "aggressive"
	PresetSensitive    = "sensitive"
)

// BalancedConfig suits most completion providers.
func BalancedConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		RequestTimeout:   10 * time.Second,
		MonitoringWindow: 60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// ConservativeConfig tolerates more failures and probes more cautiously.
func ConservativeConfig() Config {
	return Config{
		FailureThreshold: 10,
		RecoveryTimeout:  60 * time.Second,
		RequestTimeout:   15 * time.Second,
		MonitoringWindow: 120 * time.Second,
		HalfOpenMaxCalls: 5,
	}
}

// AggressiveConfig fails over quickly and retries soon.
func AggressiveConfig() Config {
	return Config{
		FailureThreshold: 3,
		RecoveryTimeout:  15 * time.Second,
		RequestTimeout:   5 * time.Second,
		MonitoringWindow: 30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// SensitiveConfig trips on the second failure and keeps a short request deadline.
func SensitiveConfig() Config {
	return Config{
		FailureThreshold: 2,
		RecoveryTimeout:  10 * time.Second,
		RequestTimeout:   3 * time.Second,
		MonitoringWindow: 20 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Preset returns the named configuration. Names are case-insensitive.
func Preset(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PresetConservative:
		return ConservativeConfig(), nil
	case PresetBalanced, "":
		return BalancedConfig(), nil
	case PresetAggressive:
		return AggressiveConfig(), nil
	case PresetSensitive:
		return SensitiveConfig(), nil
	default:
		return Config{}, errx.InvalidConfig(fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name), "Preset")
	}
}

// WithOverrides returns c with every non-zero field of o applied on top.
func (c Config) WithOverrides(o Config) Config {
	if o.FailureThreshold != 0 {
		c.FailureThreshold = o.FailureThreshold
	}
	if o.RecoveryTimeout != 0 {
		c.RecoveryTimeout = o.RecoveryTimeout
	}
	if o.RequestTimeout != 0 {
		c.RequestTimeout = o.RequestTimeout
	}
	if o.MonitoringWindow != 0 {
		c.MonitoringWindow = o.MonitoringWindow
	}
	if o.HalfOpenMaxCalls != 0 {
		c.HalfOpenMaxCalls = o.HalfOpenMaxCalls
	}
	return c
}

// Validate rejects values that would make the state machine meaningless.
// Values are never clamped.
func (c Config) Validate() error {
	switch {
	case c.FailureThreshold < 1:
		return invalid("FailureThreshold", "must be >= 1, got %d", c.FailureThreshold)
	case c.RecoveryTimeout <= 0:
		return invalid("RecoveryTimeout", "must be positive, got %s", c.RecoveryTimeout)
	case c.RequestTimeout <= 0:
		return invalid("RequestTimeout", "must be positive, got %s", c.RequestTimeout)
	case c.MonitoringWindow <= 0:
		return invalid("MonitoringWindow", "must be positive, got %s", c.MonitoringWindow)
	case c.MonitoringWindow < c.RecoveryTimeout:
		return invalid("MonitoringWindow", "must be >= RecoveryTimeout (%s), got %s", c.RecoveryTimeout, c.MonitoringWindow)
	case c.HalfOpenMaxCalls < 1:
		return invalid("HalfOpenMaxCalls", "must be >= 1, got %d", c.HalfOpenMaxCalls)
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return errx.InvalidConfig(fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...), field)
}
