package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// OpenAIProvider implements Provider over eino-ext's OpenAI chat model.
type OpenAIProvider struct {
	id        string
	chatModel model.ToolCallingChatModel
}

// OpenAIConfig holds the construction-time settings for an OpenAI
// provider instance.
type OpenAIConfig struct {
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAIProvider creates a new OpenAI provider. APIKey falls back to
// OPENAI_API_KEY (spec.md section 6, "Environment variables").
func NewOpenAIProvider(ctx context.Context, cfg *OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("provider: OPENAI_API_KEY not set")
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = "gpt-4o"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	openaiCfg := &openai.ChatModelConfig{
		APIKey:              apiKey,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens,
	}
	if cfg.BaseURL != "" {
		openaiCfg.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, openaiCfg)
	if err != nil {
		return nil, fmt.Errorf("provider: create openai model: %w", err)
	}

	id := cfg.ID
	if id == "" {
		id = "openai"
	}
	return &OpenAIProvider{id: id, chatModel: chatModel}, nil
}

func (p *OpenAIProvider) ID() string                          { return p.id }
func (p *OpenAIProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }
