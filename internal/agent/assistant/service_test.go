package assistant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/breaker"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/faq"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/model"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/provider"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/repo"
	errx "github.com/Chative-core-poc-v1/assistant/internal/core/error"
	logx "github.com/Chative-core-poc-v1/assistant/pkg/logger"
)

func TestMain(m *testing.M) {
	logx.Silence()
	os.Exit(m.Run())
}

var errProviderDown = errors.New("provider unavailable")

type fakeCompleter struct {
	mu     sync.Mutex
	calls  int
	inputs [][]*schema.Message
	answer func(call int, msgs []*schema.Message) (*provider.Completion, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []*schema.Message) (*provider.Completion, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.inputs = append(f.inputs, msgs)
	f.mu.Unlock()
	return f.answer(call, msgs)
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCompleter) lastInput() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[len(f.inputs)-1]
}

func completion(content string) *provider.Completion {
	return &provider.Completion{
		Content: content,
		Model:   "fake-model",
		Usage:   &schema.TokenUsage{PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42},
		CostUSD: 0.01,
	}
}

func replying(content string) *fakeCompleter {
	return &fakeCompleter{answer: func(int, []*schema.Message) (*provider.Completion, error) {
		return completion(content), nil
	}}
}

func failing() *fakeCompleter {
	return &fakeCompleter{answer: func(int, []*schema.Message) (*provider.Completion, error) {
		return nil, errProviderDown
	}}
}

type recordingObserver struct {
	mu              sync.Mutex
	sources         []string
	tokens          int
	emergencies     int
	panicOnResponse bool
}

func (o *recordingObserver) ObserveResponse(source string, _ time.Duration) {
	if o.panicOnResponse {
		panic("observer exploded")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources = append(o.sources, source)
}

func (o *recordingObserver) ObserveCompletion(_ string, tokens int, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tokens += tokens
}

func (o *recordingObserver) ObserveEmergency() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emergencies++
}

func testConfig() Config {
	return Config{
		Prompt: model.PromptConfig{
			BusinessName: "CoolLab Academy",
			BusinessType: "online learning store",
			DefaultTopic: "immersion cooling",
			DefaultSkill: "beginner",
		},
		Conversation: model.ConversationConfig{MaxHistory: 10, MaxConversations: 100},
		Cache:        model.CacheConfig{ResponseSize: 100, FAQSize: 100},
	}
}

func testBreaker(t *testing.T) *breaker.CircuitBreaker {
	t.Helper()
	cb, err := breaker.New(breaker.Config{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		RequestTimeout:   time.Second,
		MonitoringWindow: 2 * time.Minute,
		HalfOpenMaxCalls: 1,
	})
	require.NoError(t, err)
	return cb
}

func newService(t *testing.T, cfg Config, completer Completer, opts ...Option) *Service {
	t.Helper()
	faqSvc, err := faq.NewService(faq.DefaultCorpus(), cfg.Cache.FAQSize)
	require.NoError(t, err)
	svc, err := New(cfg, completer, testBreaker(t), faqSvc, opts...)
	require.NoError(t, err)
	return svc
}

func TestExternalAnswer(t *testing.T) {
	completer := replying("Two-phase cooling boils a dielectric fluid.")
	observer := &recordingObserver{}
	svc := newService(t, testConfig(), completer, WithObserver(observer))

	resp := svc.ProcessMessage(context.Background(), "What is two-phase cooling?",
		ChatContext{ConversationID: "c1", Topic: "data centers", UserSkillLevel: "intermediate"}, nil)

	assert.Equal(t, "Two-phase cooling boils a dielectric fluid.", resp.Content)
	assert.Equal(t, SourceExternal, resp.Source)
	assert.Equal(t, schema.Assistant, resp.Role)
	assert.False(t, resp.Fallback)
	assert.Equal(t, "c1", resp.Context.ConversationID)
	require.NotNil(t, resp.Metadata)
	assert.Equal(t, 42, resp.Metadata.TokensUsed)
	assert.Equal(t, "fake-model", resp.Metadata.Model)
	assert.Equal(t, 0.01, resp.Metadata.CostUSD)
	assert.False(t, resp.Timestamp.IsZero())

	input := completer.lastInput()
	require.Len(t, input, 2)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Contains(t, input[0].Content, "Current topic: data centers.")
	assert.Contains(t, input[0].Content, "Learner level: intermediate.")
	assert.Equal(t, schema.UserMessage("What is two-phase cooling?"), input[1])

	history := svc.ConversationHistory("c1")
	require.Len(t, history, 2)
	assert.Equal(t, schema.User, history[0].Role)
	assert.Equal(t, schema.Assistant, history[1].Role)

	metrics := svc.Metrics()
	assert.Equal(t, CacheMetrics{ConversationCacheSize: 1, ResponseCacheSize: 1, FAQCacheSize: 1}, metrics.Cache)
	assert.Equal(t, int64(1), metrics.CircuitBreaker.SuccessfulRequests)
	assert.Equal(t, breaker.StateClosed, metrics.CircuitBreaker.State)

	assert.Equal(t, []string{"external"}, observer.sources)
	assert.Equal(t, 42, observer.tokens)
}

func TestCachedAnswerWhenProviderFails(t *testing.T) {
	completer := &fakeCompleter{answer: func(call int, _ []*schema.Message) (*provider.Completion, error) {
		if call == 1 {
			return completion("Live answer."), nil
		}
		return nil, errProviderDown
	}}
	svc := newService(t, testConfig(), completer)

	first := svc.ProcessMessage(context.Background(), "What is two-phase cooling?", ChatContext{ConversationID: "c1"}, nil)
	require.Equal(t, SourceExternal, first.Source)

	second := svc.ProcessMessage(context.Background(), "what is TWO PHASE cooling", ChatContext{ConversationID: "c1"}, nil)
	assert.Equal(t, SourceCached, second.Source)
	assert.Equal(t, "Live answer.", second.Content)
	assert.True(t, second.Fallback)
	assert.Equal(t, 2, completer.callCount())
}

func TestFAQAnswerWhenProviderFails(t *testing.T) {
	svc := newService(t, testConfig(), failing())

	resp := svc.ProcessMessage(context.Background(), "What is two-phase cooling?", ChatContext{ConversationID: "c1"}, nil)

	assert.Equal(t, SourceFAQ, resp.Source)
	assert.Greater(t, resp.Confidence, faq.ConfidenceFloor)
	assert.True(t, resp.Fallback)
	assert.Equal(t, faq.DefaultCorpus()[0].Answer, resp.Content)
	assert.NotEmpty(t, resp.Context.RelatedContent)
	assert.LessOrEqual(t, len(resp.RelatedFAQs), 2)
}

func TestDefaultAnswerIsReportedAsFallback(t *testing.T) {
	svc := newService(t, testConfig(), failing())

	resp := svc.ProcessMessage(context.Background(), "qwerty zxcvb", ChatContext{ConversationID: "c1"}, nil)

	assert.Equal(t, SourceFallback, resp.Source)
	assert.Zero(t, resp.Confidence)
	assert.True(t, resp.Fallback)
	assert.NotEmpty(t, resp.SuggestedActions)
	assert.Equal(t, faq.DefaultResponse().Content, resp.Content)
}

func TestBreakerStopsCallingFailingProvider(t *testing.T) {
	completer := failing()
	svc := newService(t, testConfig(), completer)

	for i := 0; i < 5; i++ {
		resp := svc.ProcessMessage(context.Background(), fmt.Sprintf("question %d", i), ChatContext{ConversationID: "c1"}, nil)
		assert.True(t, resp.Fallback)
	}

	assert.Equal(t, 2, completer.callCount())
	assert.Equal(t, breaker.StateOpen, svc.BreakerState())

	m := svc.Metrics().CircuitBreaker
	assert.Equal(t, int64(5), m.TotalRequests)
	assert.Equal(t, int64(2), m.FailedRequests)
	assert.Equal(t, int64(5), m.FallbackResponses)
	assert.Equal(t, int64(1), m.CircuitBreakerTrips)
}

func TestEmergencyEnvelopeWhenEveryTierFails(t *testing.T) {
	faqSvc, err := faq.NewService(nil, 4)
	require.NoError(t, err)
	observer := &recordingObserver{}
	svc, err := New(testConfig(), failing(), testBreaker(t), faqSvc, WithObserver(observer))
	require.NoError(t, err)

	resp := svc.ProcessMessage(context.Background(), "What is two-phase cooling?", ChatContext{ConversationID: "c1"}, nil)

	assert.Equal(t, EmergencyContent, resp.Content)
	assert.Equal(t, SourceFallback, resp.Source)
	assert.Zero(t, resp.Confidence)
	assert.True(t, resp.Fallback)
	assert.Equal(t, schema.Assistant, resp.Role)
	assert.Equal(t, "c1", resp.Context.ConversationID)
	assert.Equal(t, 1, observer.emergencies)

	history := svc.ConversationHistory("c1")
	require.Len(t, history, 2)
	assert.Equal(t, "What is two-phase cooling?", history[0].Content)
	assert.Equal(t, EmergencyContent, history[1].Content)
}

func TestPanicYieldsEmergencyEnvelope(t *testing.T) {
	observer := &recordingObserver{panicOnResponse: true}
	svc := newService(t, testConfig(), replying("fine"), WithObserver(observer))

	var resp *Response
	require.NotPanics(t, func() {
		resp = svc.ProcessMessage(context.Background(), "hello", ChatContext{ConversationID: "c1"}, nil)
	})

	assert.Equal(t, EmergencyContent, resp.Content)
	assert.Equal(t, SourceFallback, resp.Source)
	assert.Equal(t, 1, observer.emergencies)

	history := svc.ConversationHistory("c1")
	require.Len(t, history, 2, "the turn is recorded once")
	assert.Equal(t, EmergencyContent, history[1].Content)
}

func TestLateCompletionIsDiscarded(t *testing.T) {
	done := make(chan struct{})
	completer := &fakeCompleter{answer: func(int, []*schema.Message) (*provider.Completion, error) {
		defer close(done)
		time.Sleep(150 * time.Millisecond)
		return completion("late provider answer"), nil
	}}
	cb, err := breaker.New(breaker.Config{
		FailureThreshold: 5,
		RecoveryTimeout:  time.Minute,
		RequestTimeout:   50 * time.Millisecond,
		MonitoringWindow: time.Minute,
		HalfOpenMaxCalls: 1,
	})
	require.NoError(t, err)
	faqSvc, err := faq.NewService(faq.DefaultCorpus(), 16)
	require.NoError(t, err)
	observer := &recordingObserver{}
	svc, err := New(testConfig(), completer, cb, faqSvc, WithObserver(observer))
	require.NoError(t, err)

	const question = "qwerty zxcvb"
	resp := svc.ProcessMessage(context.Background(), question, ChatContext{ConversationID: "c1"}, nil)
	assert.Equal(t, SourceFallback, resp.Source)
	assert.Equal(t, int64(1), svc.Metrics().CircuitBreaker.FailedRequests)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completer never returned")
	}
	time.Sleep(20 * time.Millisecond)

	cache := svc.Metrics().Cache
	assert.Zero(t, cache.ResponseCacheSize)
	assert.Zero(t, cache.FAQCacheSize)
	observer.mu.Lock()
	assert.Zero(t, observer.tokens)
	observer.mu.Unlock()

	fr, err := faqSvc.SearchFAQ(question)
	require.NoError(t, err)
	assert.Equal(t, faq.SourceDefault, fr.Source)
	assert.NotContains(t, fr.Content, "late provider answer")
}

func TestPanickingProviderFallsBack(t *testing.T) {
	completer := &fakeCompleter{answer: func(int, []*schema.Message) (*provider.Completion, error) {
		panic("sdk bug")
	}}
	svc := newService(t, testConfig(), completer)

	resp := svc.ProcessMessage(context.Background(), "What is two-phase cooling?", ChatContext{ConversationID: "c1"}, nil)
	assert.Equal(t, SourceFAQ, resp.Source)
	assert.Equal(t, int64(1), svc.Metrics().CircuitBreaker.FailedRequests)
}

func TestBlankCompletionCountsAsFailure(t *testing.T) {
	svc := newService(t, testConfig(), replying("   "))

	resp := svc.ProcessMessage(context.Background(), "qwerty zxcvb", ChatContext{ConversationID: "c1"}, nil)
	assert.Equal(t, SourceFallback, resp.Source)
	assert.Equal(t, int64(1), svc.Metrics().CircuitBreaker.FailedRequests)
}

func TestResponseStoreMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := repo.NewRedisResponseStore(rdb, time.Hour)

	live := newService(t, testConfig(), replying("Mirrored answer."), WithResponseStore(store))
	resp := live.ProcessMessage(context.Background(), "What is two-phase cooling?", ChatContext{ConversationID: "c1"}, nil)
	require.Equal(t, SourceExternal, resp.Source)
	assert.True(t, mr.Exists("assistant:response:what is two phase cooling"))

	// a fresh process has empty local caches but shares the store
	restarted := newService(t, testConfig(), failing(), WithResponseStore(store))
	resp = restarted.ProcessMessage(context.Background(), "What is two-phase cooling?", ChatContext{ConversationID: "c2"}, nil)

	assert.Equal(t, SourceCached, resp.Source)
	assert.Equal(t, "Mirrored answer.", resp.Content)
	assert.Equal(t, 1, restarted.Metrics().Cache.ResponseCacheSize)
}

func TestStoreFailureFallsThroughToFAQ(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	svc := newService(t, testConfig(), failing(), WithResponseStore(repo.NewRedisResponseStore(rdb, time.Hour)))
	resp := svc.ProcessMessage(context.Background(), "What is two-phase cooling?", ChatContext{ConversationID: "c1"}, nil)

	assert.Equal(t, SourceFAQ, resp.Source)
}

func TestGeneratesConversationID(t *testing.T) {
	svc := newService(t, testConfig(), replying("hi"))

	resp := svc.ProcessMessage(context.Background(), "hello", ChatContext{}, nil)

	_, err := uuid.Parse(resp.Context.ConversationID)
	require.NoError(t, err)
	assert.Len(t, svc.ConversationHistory(resp.Context.ConversationID), 2)
}

func TestHistoryIsTrimmed(t *testing.T) {
	cfg := testConfig()
	cfg.Conversation.MaxHistory = 4
	completer := &fakeCompleter{answer: func(call int, _ []*schema.Message) (*provider.Completion, error) {
		return completion(fmt.Sprintf("reply %d", call)), nil
	}}
	svc := newService(t, cfg, completer)

	for i := 1; i <= 3; i++ {
		svc.ProcessMessage(context.Background(), fmt.Sprintf("message %d", i), ChatContext{ConversationID: "c1"}, nil)
	}

	history := svc.ConversationHistory("c1")
	require.Len(t, history, 4)
	assert.Equal(t, "message 2", history[0].Content)
	assert.Equal(t, "reply 2", history[1].Content)
	assert.Equal(t, "message 3", history[2].Content)
	assert.Equal(t, "reply 3", history[3].Content)

	input := completer.lastInput()
	require.Len(t, input, 6)
	assert.Equal(t, "message 1", input[1].Content)
	assert.Equal(t, "message 3", input[5].Content)
}

func TestCallerHistoryIsUsed(t *testing.T) {
	completer := replying("ok")
	svc := newService(t, testConfig(), completer)

	history := []*schema.Message{
		schema.UserMessage("earlier question"),
		nil,
		schema.AssistantMessage("earlier answer", nil),
	}
	svc.ProcessMessage(context.Background(), "follow up", ChatContext{ConversationID: "c1"}, history)

	input := completer.lastInput()
	require.Len(t, input, 4)
	assert.Equal(t, "earlier question", input[1].Content)
	assert.Equal(t, "earlier answer", input[2].Content)
	assert.Equal(t, "follow up", input[3].Content)

	assert.Len(t, svc.ConversationHistory("c1"), 2, "caller history is not cached")
}

func TestConversationHistoryReturnsCopy(t *testing.T) {
	svc := newService(t, testConfig(), replying("original"))
	svc.ProcessMessage(context.Background(), "hello", ChatContext{ConversationID: "c1"}, nil)

	history := svc.ConversationHistory("c1")
	history[1].Content = "mutated"

	assert.Equal(t, "original", svc.ConversationHistory("c1")[1].Content)
}

func TestClearConversation(t *testing.T) {
	svc := newService(t, testConfig(), replying("hi"))
	svc.ProcessMessage(context.Background(), "hello", ChatContext{ConversationID: "c1"}, nil)

	assert.True(t, svc.ClearConversation("c1"))
	assert.False(t, svc.ClearConversation("c1"))
	assert.Nil(t, svc.ConversationHistory("c1"))
	assert.Zero(t, svc.Metrics().Cache.ConversationCacheSize)
}

func TestResetCircuitBreaker(t *testing.T) {
	svc := newService(t, testConfig(), failing())
	for i := 0; i < 3; i++ {
		svc.ProcessMessage(context.Background(), "hello", ChatContext{ConversationID: "c1"}, nil)
	}
	require.Equal(t, breaker.StateOpen, svc.BreakerState())

	svc.ResetCircuitBreaker()

	assert.Equal(t, breaker.StateClosed, svc.BreakerState())
	assert.Equal(t, breaker.Metrics{State: breaker.StateClosed}, svc.Metrics().CircuitBreaker)
}

func TestConcurrentMessagesShareHistory(t *testing.T) {
	svc := newService(t, testConfig(), replying("ok"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := svc.ProcessMessage(context.Background(), fmt.Sprintf("message %d", i), ChatContext{ConversationID: "shared"}, nil)
			assert.Equal(t, SourceExternal, resp.Source)
		}(i)
	}
	wg.Wait()

	assert.Len(t, svc.ConversationHistory("shared"), 10)
	assert.Equal(t, int64(20), svc.Metrics().CircuitBreaker.TotalRequests)
}

func TestNewValidates(t *testing.T) {
	faqSvc, err := faq.NewService(faq.DefaultCorpus(), 4)
	require.NoError(t, err)

	_, err = New(testConfig(), nil, testBreaker(t), faqSvc)
	require.Error(t, err)

	cfg := testConfig()
	cfg.Conversation.MaxHistory = -1
	_, err = New(cfg, replying("x"), testBreaker(t), faqSvc)
	require.Error(t, err)
	assert.Equal(t, "invalid configuration: MaxHistory", errx.MessageOf(err))

	svc, err := New(Config{}, replying("x"), testBreaker(t), faqSvc)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxHistory, svc.cfg.Conversation.MaxHistory)
}
