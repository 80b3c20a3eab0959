package assistant

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/breaker"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/provider"
)

// Source tags where a Response came from.
type Source string

const (
	SourceExternal Source = "external"
	SourceCached   Source = "cached"
	SourceFAQ      Source = "faq"
	SourceFallback Source = "fallback"
)

// ChatContext carries per-message hints from the caller.
type ChatContext struct {
	ConversationID string `json:"conversationId,omitempty"`
	UserSkillLevel string `json:"userSkillLevel,omitempty"`
	Topic          string `json:"topic,omitempty"`
}

// Response is returned for every message, whichever tier answered.
type Response struct {
	Content          string            `json:"content"`
	Role             schema.RoleType   `json:"role"`
	Timestamp        time.Time         `json:"timestamp"`
	Source           Source            `json:"source"`
	Confidence       float64           `json:"confidence"`
	Fallback         bool              `json:"fallback"`
	SuggestedActions []string          `json:"suggestedActions,omitempty"`
	RelatedFAQs      []string          `json:"relatedFaqs,omitempty"`
	Context          ResponseContext   `json:"context"`
	Metadata         *ResponseMetadata `json:"metadata,omitempty"`

	completion *provider.Completion
}

type ResponseContext struct {
	ConversationID string   `json:"conversationId"`
	RelatedContent []string `json:"relatedContent,omitempty"`
}

type ResponseMetadata struct {
	TokensUsed     int     `json:"tokensUsed,omitempty"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
	Model          string  `json:"model,omitempty"`
	CostUSD        float64 `json:"costUsd,omitempty"`
}

// Metrics is a snapshot of the breaker counters and cache occupancy.
type Metrics struct {
	CircuitBreaker breaker.Metrics `json:"circuitBreaker"`
	Cache          CacheMetrics    `json:"cache"`
}

type CacheMetrics struct {
	ConversationCacheSize int `json:"conversationCacheSize"`
	ResponseCacheSize     int `json:"responseCacheSize"`
	FAQCacheSize          int `json:"faqCacheSize"`
}

// Completer performs one round trip to the completion provider.
type Completer interface {
	Complete(ctx context.Context, msgs []*schema.Message) (*provider.Completion, error)
}

// Observer receives per-response measurements.
type Observer interface {
	ObserveResponse(source string, latency time.Duration)
	ObserveCompletion(model string, tokens int, costUSD float64)
	ObserveEmergency()
}

type noopObserver struct{}

func (noopObserver) ObserveResponse(string, time.Duration)    {}
func (noopObserver) ObserveCompletion(string, int, float64) {}
func (noopObserver) ObserveEmergency()                       {}
