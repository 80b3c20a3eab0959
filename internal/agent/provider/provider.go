// Package provider wraps an eino chat model as the single completion call the
// assistant guards with its circuit breaker.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/assistant/internal/core/error"
	logx "github.com/Chative-core-poc-v1/assistant/pkg/logger"
)

var (
	// ErrEmptyCompletion is returned when the model answers with blank content.
	ErrEmptyCompletion = errors.New("completion has no content")
	// ErrNoMessages is returned when Complete is called without input.
	ErrNoMessages = errors.New("no messages to complete")
)

// Completion is one model answer with its accounting.
type Completion struct {
	Content string
	Model   string
	Usage   *schema.TokenUsage
	CostUSD float64
}

// TotalTokens returns the reported token count, or zero when usage is unknown.
func (c *Completion) TotalTokens() int {
	if c == nil || c.Usage == nil {
		return 0
	}
	return c.Usage.TotalTokens
}

// Provider runs a compiled single-node chain around a chat model.
type Provider struct {
	runnable  compose.Runnable[[]*schema.Message, *schema.Message]
	model     string
	pricing   model.Pricing
	callbacks einocb.Handler
}

// NewGemini builds a Gemini chat model from cfg and wraps it.
func NewGemini(ctx context.Context, cfg model.ProviderConfig) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errx.InvalidConfig(errors.New("GEMINI_API_KEY is empty"), "APIKey")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	gcfg := &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	}
	if cfg.ThinkingBudget > 0 {
		gcfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(cfg.ThinkingBudget),
		}
	}

	chatModel, err := gemini.NewChatModel(ctx, gcfg)
	if err != nil {
		logx.Error().Err(err).Str("model", cfg.Model).Msg("Error creating Gemini chat model")
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}

	return NewWithChatModel(ctx, chatModel, cfg.Model)
}

// NewWithChatModel wraps any eino chat model. name selects pricing and is
// reported on every Completion.
func NewWithChatModel(ctx context.Context, chatModel einomodel.BaseChatModel, name string) (*Provider, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is nil")
	}

	runnable, err := compose.NewChain[[]*schema.Message, *schema.Message]().
		AppendChatModel(chatModel, compose.WithNodeName("ResponseModel")).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile completion chain: %w", err)
	}

	pricing, ok := model.ResolvePricing(name)
	if !ok {
		logx.Debug().Str("model", name).Msg("No pricing for model, cost reported as zero")
	}

	return &Provider{
		runnable:  runnable,
		model:     name,
		pricing:   pricing,
		callbacks: NewCallbacks(),
	}, nil
}

// Model returns the model name given at construction.
func (p *Provider) Model() string {
	return p.model
}

// Complete performs one round trip. Provider failures are wrapped with
// errx.WrapProvider; blank output is ErrEmptyCompletion.
func (p *Provider) Complete(ctx context.Context, msgs []*schema.Message) (*Completion, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}

	out, err := p.runnable.Invoke(ctx, msgs, compose.WithCallbacks(p.callbacks))
	if err != nil {
		return nil, errx.WrapProvider(fmt.Errorf("invoke %s: %w", p.model, err))
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return nil, errx.WrapProvider(ErrEmptyCompletion)
	}

	c := &Completion{
		Content: out.Content,
		Model:   p.model,
	}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		usage := *out.ResponseMeta.Usage
		c.Usage = &usage
	}
	_, _, c.CostUSD = model.ComputeCost(c.Usage, p.pricing)
	return c, nil
}
