package model

import (
	"time"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/breaker"
)

// ================ Config ================
type ProviderConfig struct {
	APIKey         string  `envconfig:"GEMINI_API_KEY"`
	BaseURL        string  `envconfig:"GEMINI_BASE_URL"`
	Model          string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"RESPONSE_MAX_TOKENS" default:"1024"`
	Temperature    float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
	ThinkingBudget int32   `envconfig:"RESPONSE_THINKING_BUDGET" default:"0"`
}

type PromptConfig struct {
	BusinessType string `envconfig:"PROMPT_BUSINESS_TYPE" default:"online learning store"`
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"CoolLab Academy"`
	DefaultTopic string `envconfig:"PROMPT_DEFAULT_TOPIC" default:"immersion cooling"`
	DefaultSkill string `envconfig:"PROMPT_DEFAULT_SKILL" default:"beginner"`
}

type ConversationConfig struct {
	MaxHistory       int `envconfig:"CONVERSATION_MAX_HISTORY" default:"10"`
	MaxConversations int `envconfig:"CONVERSATION_MAX_CONVERSATIONS" default:"1000"`
}

type CacheConfig struct {
	ResponseSize int           `envconfig:"CACHE_RESPONSE_SIZE" default:"500"`
	FAQSize      int           `envconfig:"CACHE_FAQ_SIZE" default:"500"`
	MirrorTTL    time.Duration `envconfig:"CACHE_MIRROR_TTL" default:"1h"`
}

// BreakerConfig selects a preset and overrides individual fields. Zero
// overrides keep the preset value.
type BreakerConfig struct {
	Preset           string        `envconfig:"BREAKER_PRESET" default:"balanced"`
	FailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD"`
	RecoveryTimeout  time.Duration `envconfig:"BREAKER_RECOVERY_TIMEOUT"`
	RequestTimeout   time.Duration `envconfig:"BREAKER_REQUEST_TIMEOUT"`
	MonitoringWindow time.Duration `envconfig:"BREAKER_MONITORING_WINDOW"`
	HalfOpenMaxCalls int           `envconfig:"BREAKER_HALF_OPEN_MAX_CALLS"`
}

// Resolve applies the overrides to the preset and validates the result.
func (c BreakerConfig) Resolve() (breaker.Config, error) {
	base, err := breaker.Preset(c.Preset)
	if err != nil {
		return breaker.Config{}, err
	}
	cfg := base.WithOverrides(breaker.Config{
		FailureThreshold: c.FailureThreshold,
		RecoveryTimeout:  c.RecoveryTimeout,
		RequestTimeout:   c.RequestTimeout,
		MonitoringWindow: c.MonitoringWindow,
		HalfOpenMaxCalls: c.HalfOpenMaxCalls,
	})
	if err := cfg.Validate(); err != nil {
		return breaker.Config{}, err
	}
	return cfg, nil
}

type ServerConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}
