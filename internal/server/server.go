// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/assistant"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/breaker"
	logx "github.com/Chative-core-poc-v1/assistant/pkg/logger"
)

// Assistant is the part of assistant.Service the handlers use.
type Assistant interface {
	ProcessMessage(ctx context.Context, message string, cc assistant.ChatContext, history []*schema.Message) *assistant.Response
	Metrics() assistant.Metrics
	BreakerState() breaker.State
	ResetCircuitBreaker()
	ConversationHistory(conversationID string) []*schema.Message
	ClearConversation(conversationID string) bool
}

// Config holds router configuration
type Config struct {
	Assistant Assistant
	// MetricsHandler serves /metrics; promhttp.Handler() when nil.
	MetricsHandler http.Handler
	Now            func() time.Time
}

// New creates a chi router with all routes configured.
func New(cfg Config) http.Handler {
	h := &Handler{assistant: cfg.Assistant, now: cfg.Now}
	if h.now == nil {
		h.now = time.Now
	}
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Get("/conversations/{conversationID}", h.GetConversation)
		r.Delete("/conversations/{conversationID}", h.DeleteConversation)
		r.Post("/admin/circuit-breaker/reset", h.ResetCircuitBreaker)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logx.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
