package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeClone_DeepCopiesButDropsLineage(t *testing.T) {
	n := &Node{
		ID:       "a",
		ParentID: "root",
		Children: []string{"b", "c"},
		Messages: []LLMMessage{{Role: "user", Content: "hi"}},
		Response: &LLMResponse{Content: "ok", ToolCalls: []ToolCall{{ID: "1", Name: "run"}}},
		Action:   &Action{Type: ActionRun, CallID: "1"},
	}

	clone := n.Clone()
	require.NotNil(t, clone)
	assert.Empty(t, clone.Children)
	assert.Equal(t, n.Messages, clone.Messages)
	require.NotNil(t, clone.Response)
	assert.Equal(t, n.Response.Content, clone.Response.Content)

	clone.Response.ToolCalls[0].Name = "mutated"
	assert.Equal(t, "run", n.Response.ToolCalls[0].Name, "clone must not alias the original's tool calls")
}

func TestObservationString(t *testing.T) {
	ok := NewSuccess("1", "run", "did the thing", nil)
	assert.Equal(t, "did the thing", ok.String())

	fail := NewFailure("1", "run", "boom")
	assert.Equal(t, "Error: boom", fail.String())
}
