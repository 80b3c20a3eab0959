package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/assistant"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/breaker"
	errx "github.com/Chative-core-poc-v1/assistant/internal/core/error"
	logx "github.com/Chative-core-poc-v1/assistant/pkg/logger"
)

const maxBodyBytes = 64 << 10

var errConversationNotFound = errors.New("conversation not found")

type Handler struct {
	assistant Assistant
	now       func() time.Time
}

type chatRequest struct {
	Message        string           `json:"message"`
	ConversationID string           `json:"conversationId"`
	UserSkillLevel string           `json:"userSkillLevel"`
	Topic          string           `json:"topic"`
	History        []historyMessage `json:"history"`
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type healthResponse struct {
	Status         string                 `json:"status"`
	Timestamp      time.Time              `json:"timestamp"`
	CircuitBreaker breaker.Metrics        `json:"circuitBreaker"`
	Cache          assistant.CacheMetrics `json:"cache"`
}

type conversationResponse struct {
	ConversationID string           `json:"conversationId"`
	Messages       []historyMessage `json:"messages"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errx.BadRequest(fmt.Errorf("decode chat request: %w", err)))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, errx.BadRequest(errors.New("message is required")))
		return
	}
	history, err := toSchemaMessages(req.History)
	if err != nil {
		writeError(w, errx.BadRequest(err))
		return
	}

	resp := h.assistant.ProcessMessage(r.Context(), req.Message, assistant.ChatContext{
		ConversationID: req.ConversationID,
		UserSkillLevel: req.UserSkillLevel,
		Topic:          req.Topic,
	}, history)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	m := h.assistant.Metrics()
	status := "healthy"
	if m.CircuitBreaker.State != breaker.StateClosed {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         status,
		Timestamp:      h.now(),
		CircuitBreaker: m.CircuitBreaker,
		Cache:          m.Cache,
	})
}

func (h *Handler) ResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	h.assistant.ResetCircuitBreaker()
	logx.Info().Str("request_id", middleware.GetReqID(r.Context())).Msg("Circuit breaker reset via admin endpoint")
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "reset",
		"state":  h.assistant.BreakerState().String(),
	})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	msgs := h.assistant.ConversationHistory(id)
	if msgs == nil {
		writeError(w, errx.New(errConversationNotFound, http.StatusNotFound, errConversationNotFound.Error()))
		return
	}

	out := conversationResponse{ConversationID: id, Messages: make([]historyMessage, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, historyMessage{Role: string(m.Role), Content: m.Content})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if !h.assistant.ClearConversation(id) {
		writeError(w, errx.New(errConversationNotFound, http.StatusNotFound, errConversationNotFound.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toSchemaMessages(in []historyMessage) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(in))
	for i, m := range in {
		switch schema.RoleType(strings.ToLower(strings.TrimSpace(m.Role))) {
		case schema.User:
			out = append(out, schema.UserMessage(m.Content))
		case schema.Assistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			return nil, fmt.Errorf("history[%d]: unsupported role %q", i, m.Role)
		}
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Msg("Request failed")
	} else {
		logx.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	writeJSON(w, status, map[string]string{"error": errx.MessageOf(err)})
}
