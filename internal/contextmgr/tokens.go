package contextmgr

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// tokensPerMessage is OpenAI's documented per-message chat overhead
// (<|start|>role/message<|end|>), reused here as a stand-in cost for the
// role/name wrapper every provider's wire format adds around content.
const tokensPerMessage = 3

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	encodingMu    sync.RWMutex
)

// TokenCounter counts tokens for one TaskConfig.TokenizerID, caching the
// underlying tiktoken encoding across Managers (spec.md section 4.4,
// "counts tokens using the configured tokenizer").
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter resolves a tokenizer by model/encoding name, falling
// back to cl100k_base when the name is unrecognized -- the agent must
// never fail a turn because a tokenizer id was misspelled in TaskConfig.
func NewTokenCounter(tokenizerID string) (*TokenCounter, error) {
	if tokenizerID == "" {
		tokenizerID = "cl100k_base"
	}

	encodingMu.RLock()
	cached, ok := encodingCache[tokenizerID]
	encodingMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached}, nil
	}

	enc, err := tiktoken.EncodingForModel(tokenizerID)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tokenizerID)
	}
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("contextmgr: resolve tokenizer %q: %w", tokenizerID, err)
		}
	}

	encodingMu.Lock()
	encodingCache[tokenizerID] = enc
	encodingMu.Unlock()
	return &TokenCounter{encoding: enc}, nil
}

// Count returns the token length of text.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil || text == "" {
		return 0
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessage counts one LLMMessage's content plus, for tool calls and
// tool results, the tool name/call-id/JSON-serialized argument or content
// tokens (spec.md section 4.4, calculate_context_stats).
func (tc *TokenCounter) CountMessage(m types.LLMMessage) int {
	total := tokensPerMessage + tc.Count(m.Content)
	if m.ToolName != "" {
		total += tc.Count(m.ToolName)
	}
	if m.ToolCallID != "" {
		total += tc.Count(m.ToolCallID)
	}
	for _, tcall := range m.ToolCalls {
		total += tc.Count(tcall.Name)
		total += tc.Count(tcall.ID)
		total += tc.Count(tcall.Arguments)
	}
	return total
}

// CountMessages sums CountMessage over a prompt.
func (tc *TokenCounter) CountMessages(messages []types.LLMMessage) int {
	total := 0
	for _, m := range messages {
		total += tc.CountMessage(m)
	}
	return total
}
