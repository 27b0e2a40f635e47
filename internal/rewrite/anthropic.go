package rewrite

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultMaxTokens      = 16000
	DefaultThinkingBudget = 10000
)

// AnthropicModel calls the Messages API with extended thinking enabled.
type AnthropicModel struct {
	client         anthropic.Client
	model          string
	maxTokens      int64
	thinkingBudget int64
}

func NewAnthropicModel(cfg ModelConfig) *AnthropicModel {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	m := &AnthropicModel{
		client:         anthropic.NewClient(opts...),
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		thinkingBudget: cfg.ThinkingBudget,
	}
	if m.maxTokens <= 0 {
		m.maxTokens = DefaultMaxTokens
	}
	if m.thinkingBudget < 0 {
		m.thinkingBudget = 0
	}
	return m
}

func (m *AnthropicModel) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages:  toAnthropic(messages),
	}
	if m.thinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(m.thinkingBudget)
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	c := &Completion{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "thinking":
			c.Thinking = block.Thinking
		case "text":
			c.Text = block.Text
		}
	}
	return c, nil
}

func toAnthropic(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}
