package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
)

// AnthropicProvider implements Provider over eino-ext's Claude chat model.
type AnthropicProvider struct {
	id        string
	chatModel model.ToolCallingChatModel
}

// AnthropicConfig holds the construction-time settings for an Anthropic
// provider instance. Only what TaskConfig/AgentConfig name survives the
// teacher's original catalog: model ID, API key, and an optional base URL
// for proxying.
type AnthropicConfig struct {
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewAnthropicProvider creates a new Anthropic provider. APIKey falls back
// to ANTHROPIC_API_KEY (spec.md section 6, "Environment variables").
func NewAnthropicProvider(ctx context.Context, cfg *AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("provider: ANTHROPIC_API_KEY not set")
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	claudeCfg := &claude.Config{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: maxTokens,
	}
	if cfg.BaseURL != "" {
		claudeCfg.BaseURL = &cfg.BaseURL
	}

	chatModel, err := claude.NewChatModel(ctx, claudeCfg)
	if err != nil {
		return nil, fmt.Errorf("provider: create claude model: %w", err)
	}

	id := cfg.ID
	if id == "" {
		id = "anthropic"
	}
	return &AnthropicProvider{id: id, chatModel: chatModel}, nil
}

func (p *AnthropicProvider) ID() string                          { return p.id }
func (p *AnthropicProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }
