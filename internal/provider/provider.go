// Package provider is the opaque LLM collaborator boundary spec.md treats
// as external: chat(messages, tools) -> response. It wraps the eino
// framework's ToolCallingChatModel the way the teacher's own provider
// package does, but the request/response vocabulary is the conversation
// tree's (types.LLMMessage / types.LLMResponse), not the teacher's chat
// message/part vocabulary.
package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// Provider names an eino ChatModel the ReAct loop can call through Chat.
type Provider interface {
	// ID is the provider identifier named by AgentConfig.ProviderID
	// (e.g. "anthropic", "openai").
	ID() string
	// ChatModel returns the underlying eino tool-calling chat model.
	ChatModel() model.ToolCallingChatModel
}

// ToolDef is a tool exposed to the model for one chat call. The ReAct loop
// builds these from internal/actionreg.Registry.ToolList(), restricted to
// the current turn's eligible tool set (spec.md section 4.5).
type ToolDef struct {
	Name        string
	Description string
	Parameters  []byte // JSON Schema
}

// Chat sends messages and the eligible tool set to the provider's chat
// model and returns the parsed response (spec.md section 4.5 step 6). It
// makes exactly one model call; retry policy lives in internal/reactagent's
// chatWithRetry.
func Chat(ctx context.Context, p Provider, messages []types.LLMMessage, tools []ToolDef) (*types.LLMResponse, error) {
	chatModel := p.ChatModel()
	if len(tools) > 0 {
		bound, err := chatModel.WithTools(toEinoTools(tools))
		if err != nil {
			return nil, fmt.Errorf("provider: bind tools: %w", err)
		}
		chatModel = bound
	}

	out, err := chatModel.Generate(ctx, toEinoMessages(messages))
	if err != nil {
		return nil, fmt.Errorf("provider: generate: %w", err)
	}
	return fromEinoMessage(out), nil
}

func toEinoMessages(messages []types.LLMMessage) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		role := schema.User
		switch m.Role {
		case "system":
			role = schema.System
		case "assistant":
			role = schema.Assistant
		case "tool":
			role = schema.Tool
		}

		msg := &schema.Message{
			Role:    role,
			Content: m.Content,
		}
		if role == schema.Tool {
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		result = append(result, msg)
	}
	return result
}

func toEinoTools(tools []ToolDef) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		params := parseJSONSchemaToParams(t.Parameters)
		result = append(result, &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return result
}

func fromEinoMessage(msg *schema.Message) *types.LLMResponse {
	if msg == nil {
		return &types.LLMResponse{}
	}
	resp := &types.LLMResponse{Content: msg.Content}
	if msg.ReasoningContent != "" {
		resp.Reasoning = msg.ReasoningContent
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp
}
