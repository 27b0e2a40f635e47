// Package rewrite asks a language model for an improved trigger
// description, given the training results of the current one.
package rewrite

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Completion is one model response. Thinking is empty for backends
// without extended thinking.
type Completion struct {
	Text         string
	Thinking     string
	InputTokens  int64
	OutputTokens int64
}

// Model is the rewriting collaborator: one request, one response.
type Model interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type ModelConfig struct {
	Provider string
	Model    string
	// BaseURL points the client at a gateway instead of the provider.
	BaseURL        string
	APIKey         string
	MaxTokens      int64
	ThinkingBudget int64
}

// NewModel builds the backend named by cfg.Provider.
func NewModel(cfg ModelConfig) (Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("rewriter model is required")
	}
	switch cfg.Provider {
	case "", ProviderAnthropic:
		return NewAnthropicModel(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIModel(cfg), nil
	default:
		return nil, fmt.Errorf("unknown rewriter provider %q", cfg.Provider)
	}
}
