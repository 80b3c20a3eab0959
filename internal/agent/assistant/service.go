// Package assistant answers chat messages through the completion provider,
// guarded by a circuit breaker, and degrades to cached answers, FAQ matches
// and finally a fixed emergency reply. ProcessMessage never fails.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/breaker"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/faq"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/model"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/provider"
	errx "github.com/Chative-core-poc-v1/assistant/internal/core/error"
	logx "github.com/Chative-core-poc-v1/assistant/pkg/logger"
)

// EmergencyContent is returned when every answering tier has failed.
const EmergencyContent = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."

const storeTimeout = 2 * time.Second

const (
	defaultMaxHistory       = 10
	defaultMaxConversations = 1000
	defaultResponseCache    = 500
)

// Config sizes the service's caches and feeds the system prompt.
type Config struct {
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	Cache        model.CacheConfig
}

type Option func(*Service)

// WithResponseStore mirrors live answers to store and consults it on fallback.
func WithResponseStore(store model.ResponseStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type cachedAnswer struct {
	Content string
	Model   string
}

// Service is safe for concurrent use.
type Service struct {
	cfg       Config
	completer Completer
	breaker   *breaker.CircuitBreaker
	faq       *faq.Service
	store     model.ResponseStore
	observer  Observer
	now       func() time.Time

	// mu serializes read-modify-write of a conversation's history.
	mu            sync.Mutex
	conversations *lru.Cache[string, []*schema.Message]
	responses     *lru.Cache[string, cachedAnswer]
}

func New(cfg Config, completer Completer, cb *breaker.CircuitBreaker, faqSvc *faq.Service, opts ...Option) (*Service, error) {
	switch {
	case completer == nil:
		return nil, errors.New("completer is nil")
	case cb == nil:
		return nil, errors.New("circuit breaker is nil")
	case faqSvc == nil:
		return nil, errors.New("faq service is nil")
	}

	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}

	conversations, err := lru.New[string, []*schema.Message](cfg.Conversation.MaxConversations)
	if err != nil {
		return nil, fmt.Errorf("create conversation cache: %w", err)
	}
	responses, err := lru.New[string, cachedAnswer](cfg.Cache.ResponseSize)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}

	s := &Service{
		cfg:           cfg,
		completer:     completer,
		breaker:       cb,
		faq:           faqSvc,
		observer:      noopObserver{},
		now:           time.Now,
		conversations: conversations,
		responses:     responses,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func withDefaults(cfg Config) (Config, error) {
	switch {
	case cfg.Conversation.MaxHistory < 0:
		return cfg, errx.InvalidConfig(fmt.Errorf("must be >= 0, got %d", cfg.Conversation.MaxHistory), "MaxHistory")
	case cfg.Conversation.MaxConversations < 0:
		return cfg, errx.InvalidConfig(fmt.Errorf("must be >= 0, got %d", cfg.Conversation.MaxConversations), "MaxConversations")
	case cfg.Cache.ResponseSize < 0:
		return cfg, errx.InvalidConfig(fmt.Errorf("must be >= 0, got %d", cfg.Cache.ResponseSize), "ResponseSize")
	}
	if cfg.Conversation.MaxHistory == 0 {
		cfg.Conversation.MaxHistory = defaultMaxHistory
	}
	if cfg.Conversation.MaxConversations == 0 {
		cfg.Conversation.MaxConversations = defaultMaxConversations
	}
	if cfg.Cache.ResponseSize == 0 {
		cfg.Cache.ResponseSize = defaultResponseCache
	}
	return cfg, nil
}

// ProcessMessage answers message. It always returns a Response: any failure
// or panic along the way yields the emergency reply.
func (s *Service) ProcessMessage(ctx context.Context, message string, cc ChatContext, history []*schema.Message) (resp *Response) {
	start := s.now()
	conversationID := strings.TrimSpace(cc.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("conversation_id", conversationID).Interface("panic", r).Msg("Message pipeline panicked")
			resp = s.emergency(conversationID, message, start)
		}
	}()

	out, err := s.process(ctx, message, conversationID, cc, history, start)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("All answer tiers failed")
		return s.emergency(conversationID, message, start)
	}
	return out
}

func (s *Service) process(ctx context.Context, message, conversationID string, cc ChatContext, history []*schema.Message, start time.Time) (*Response, error) {
	systemPrompt, err := provider.RenderSystemPrompt(ctx, s.cfg.Prompt, cc.Topic, cc.UserSkillLevel)
	if err != nil {
		return nil, err
	}

	if len(history) == 0 {
		history = s.ConversationHistory(conversationID)
	}
	msgs := buildMessages(systemPrompt, history, message, s.cfg.Conversation.MaxHistory)
	key := cacheKey(message)

	out, err := breaker.Execute(ctx, s.breaker,
		func(ctx context.Context) (*Response, error) {
			return s.complete(ctx, msgs)
		},
		func(ctx context.Context) (*Response, error) {
			return s.fallback(ctx, message, key)
		},
	)
	if err != nil {
		return nil, err
	}
	if out.Source == SourceExternal && out.completion != nil {
		s.keep(ctx, message, key, out.completion)
	}

	out.Role = schema.Assistant
	out.Timestamp = s.now()
	out.Context.ConversationID = conversationID
	if out.Metadata == nil {
		out.Metadata = &ResponseMetadata{}
	}
	latency := s.now().Sub(start)
	out.Metadata.ResponseTimeMs = latency.Milliseconds()

	s.observer.ObserveResponse(string(out.Source), latency)
	logx.Info().
		Str("conversation_id", conversationID).
		Str("source", string(out.Source)).
		Str("state", s.breaker.State().String()).
		Dur("latency", latency).
		Msg("Message answered")

	// Last, so a panic above leaves the turn to the emergency path.
	s.remember(conversationID, message, out.Content)
	return out, nil
}

// complete is the breaker's primary operation. It has no side effects: a call
// that outlives its deadline must leave the caches untouched.
func (s *Service) complete(ctx context.Context, msgs []*schema.Message) (*Response, error) {
	c, err := s.completer.Complete(ctx, msgs)
	if err != nil {
		return nil, err
	}
	if c == nil || strings.TrimSpace(c.Content) == "" {
		return nil, provider.ErrEmptyCompletion
	}

	return &Response{
		Content:    c.Content,
		Source:     SourceExternal,
		Confidence: 1,
		Metadata: &ResponseMetadata{
			TokensUsed: c.TotalTokens(),
			Model:      c.Model,
			CostUSD:    c.CostUSD,
		},
		completion: c,
	}, nil
}

// keep caches an answer the breaker accepted from the primary.
func (s *Service) keep(ctx context.Context, message, key string, c *provider.Completion) {
	s.responses.Add(key, cachedAnswer{Content: c.Content, Model: c.Model})
	s.faq.CacheAIResponse(message, c.Content)
	s.mirror(ctx, key, c)
	s.observer.ObserveCompletion(c.Model, c.TotalTokens(), c.CostUSD)
}

func (s *Service) mirror(ctx context.Context, key string, c *provider.Completion) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	err := s.store.Put(ctx, key, &model.StoredResponse{Content: c.Content, Model: c.Model, StoredAt: s.now()})
	if err != nil {
		logx.Warn().Err(err).Msg("Failed to mirror response to store")
	}
}

// fallback is the breaker's fallback operation: response cache, then the
// response store, then FAQ search.
func (s *Service) fallback(ctx context.Context, message, key string) (*Response, error) {
	if a, ok := s.responses.Get(key); ok {
		return cachedResponse(a), nil
	}

	if s.store != nil {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		stored, err := s.store.Get(sctx, key)
		cancel()
		switch {
		case err == nil:
			a := cachedAnswer{Content: stored.Content, Model: stored.Model}
			s.responses.Add(key, a)
			return cachedResponse(a), nil
		case errors.Is(err, model.ErrResponseNotFound):
		default:
			logx.Warn().Err(err).Msg("Response store lookup failed, trying FAQ")
		}
	}

	fr, err := s.faq.SearchFAQ(message)
	if err != nil {
		return nil, fmt.Errorf("faq fallback: %w", err)
	}
	return faqResponse(fr), nil
}

func cachedResponse(a cachedAnswer) *Response {
	return &Response{
		Content:    a.Content,
		Source:     SourceCached,
		Confidence: 1,
		Fallback:   true,
		Metadata:   &ResponseMetadata{Model: a.Model},
	}
}

func faqResponse(fr faq.Response) *Response {
	source := SourceFallback
	switch fr.Source {
	case faq.SourceCached:
		source = SourceCached
	case faq.SourceFAQ:
		source = SourceFAQ
	}
	return &Response{
		Content:          fr.Content,
		Source:           source,
		Confidence:       fr.Confidence,
		Fallback:         true,
		SuggestedActions: fr.SuggestedActions,
		RelatedFAQs:      fr.RelatedFAQs,
		Context:          ResponseContext{RelatedContent: fr.RelatedContent},
	}
}

// emergency must not panic: it runs inside ProcessMessage's recover.
func (s *Service) emergency(conversationID, message string, start time.Time) *Response {
	guard := func(what string, fn func()) {
		defer func() {
			if r := recover(); r != nil {
				logx.Error().Str("conversation_id", conversationID).Interface("panic", r).Msg(what + " panicked")
			}
		}()
		fn()
	}
	guard("Observer", s.observer.ObserveEmergency)
	guard("History update", func() { s.remember(conversationID, message, EmergencyContent) })

	return &Response{
		Content:    EmergencyContent,
		Role:       schema.Assistant,
		Timestamp:  s.now(),
		Source:     SourceFallback,
		Confidence: 0,
		Fallback:   true,
		Context:    ResponseContext{ConversationID: conversationID},
		Metadata:   &ResponseMetadata{ResponseTimeMs: s.now().Sub(start).Milliseconds()},
	}
}

func (s *Service) remember(conversationID, user, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, _ := s.conversations.Get(conversationID)
	s.conversations.Add(conversationID, appendTurn(prev, user, reply, s.cfg.Conversation.MaxHistory))
}

// ConversationHistory returns a copy of the cached history, oldest first.
func (s *Service) ConversationHistory(conversationID string) []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.conversations.Peek(conversationID)
	if !ok {
		return nil
	}
	return cloneMessages(msgs)
}

// ClearConversation drops the cached history and reports whether there was one.
func (s *Service) ClearConversation(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations.Remove(conversationID)
}

// ResetCircuitBreaker forces the breaker CLOSED and clears its counters.
func (s *Service) ResetCircuitBreaker() {
	s.breaker.Reset()
}

// BreakerState returns the breaker's current state.
func (s *Service) BreakerState() breaker.State {
	return s.breaker.State()
}

func (s *Service) Metrics() Metrics {
	return Metrics{
		CircuitBreaker: s.breaker.Metrics(),
		Cache: CacheMetrics{
			ConversationCacheSize: s.conversations.Len(),
			ResponseCacheSize:     s.responses.Len(),
			FAQCacheSize:          s.faq.CacheSize(),
		},
	}
}

func cacheKey(message string) string {
	if k := faq.Normalize(message); k != "" {
		return k
	}
	return strings.TrimSpace(message)
}
