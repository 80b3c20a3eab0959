package provider

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/model"
)

//go:embed template/system_prompt.txt
var systemPrompt string

// RenderSystemPrompt renders the system instruction for a topic and learner
// level. Blank values fall back to the configured defaults.
func RenderSystemPrompt(ctx context.Context, cfg model.PromptConfig, topic, skill string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = cfg.DefaultTopic
	}
	skill = strings.ToLower(strings.TrimSpace(skill))
	if skill == "" {
		skill = cfg.DefaultSkill
	}

	ctx = einocb.InitCallbacks(ctx, &einocb.RunInfo{
		Name:      "SystemPrompt",
		Type:      "GoTemplate",
		Component: components.ComponentOfPrompt,
	}, NewCallbacks())

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(systemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"BusinessName": cfg.BusinessName,
		"BusinessType": cfg.BusinessType,
		"Topic":        topic,
		"SkillLevel":   skill,
	})
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}
