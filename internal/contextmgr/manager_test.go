package contextmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GAIR-NLP/agentcore/internal/actionreg"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

func testConfig(t *testing.T) *types.TaskConfig {
	t.Helper()
	return &types.TaskConfig{
		TaskDescription: "echo ok",
		MaxWorkingTime:  types.Duration(0),
		MaxEvalAttempts: 3,
		TokenizerID:     "cl100k_base",
		WorkspacePath:   "/workspace",
		CheckpointBase:  t.TempDir(),
		ComputerPool: []types.ComputerConfig{
			{IP: "127.0.0.1", Port: 8080, Type: "cpu", Internet: false},
		},
		ContextLimits: types.ContextLimits{
			MaxTokens:              100,
			SummaryThreshold:       50,
			ContextLength:          1000,
			MaxInternalActionTimes: 2,
		},
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	reg := actionreg.NewRegistry()
	actionreg.RegisterBuiltins(reg)
	m, err := NewManager(testConfig(t), reg)
	require.NoError(t, err)
	return m
}

func TestGetMessages_RootTurn(t *testing.T) {
	m := newTestManager(t)
	root := m.Tree().Root()

	child, err := m.AppendReactChild(root.ID)
	require.NoError(t, err)
	require.Equal(t, child.ID, m.Tree().Current().ID)

	messages, err := m.GetMessages()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(messages), 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[1].Content, "<task_description>echo ok</task_description>")

	// Cached on the node and persisted.
	assert.Equal(t, messages, child.Messages)
}

func TestShouldSummarize_ThresholdCrossed(t *testing.T) {
	m := newTestManager(t)
	root := m.Tree().Root()
	child, err := m.AppendReactChild(root.ID)
	require.NoError(t, err)
	_ = child

	// The computed total always includes the 1000-token reserve, so the
	// limits are raised above it for the below-threshold check.
	m.cfg.ContextLimits.SummaryThreshold = 100000
	m.cfg.ContextLimits.ContextLength = 200000

	_, err = m.CalculateContextStats()
	require.NoError(t, err)
	assert.False(t, m.ShouldSummarize())

	m.mu.Lock()
	m.stats = Stats{TotalTokens: 100000}
	m.mu.Unlock()
	assert.True(t, m.ShouldSummarize())
}

func TestCheckSummarizeValidation(t *testing.T) {
	m := newTestManager(t)
	root := m.Tree().Root()

	n1, err := m.AppendReactChild(root.ID)
	require.NoError(t, err)
	n2, err := m.AppendReactChild(n1.ID)
	require.NoError(t, err)
	_, err = m.AppendReactChild(n2.ID)
	require.NoError(t, err)

	parentID, err := m.CheckSummarizeValidation(1, 2)
	require.NoError(t, err)
	assert.Equal(t, root.ID, parentID)

	_, err = m.CheckSummarizeValidation(2, 1)
	assert.Error(t, err)

	_, err = m.CheckSummarizeValidation(1, 100)
	assert.Error(t, err)
}

func TestCheckThinkValidation_Cooldown(t *testing.T) {
	m := newTestManager(t)
	root := m.Tree().Root()
	_, err := m.AppendReactChild(root.ID)
	require.NoError(t, err)

	// No cooldown pending: EligibleTools snapshots thinkExcludedTurn=false.
	m.EligibleTools()
	require.NoError(t, m.CheckThinkValidation())

	// Accepting a THINK sets the cooldown; the *next* turn's EligibleTools
	// call snapshots it as excluded and consumes it.
	m.SetThinkCooldown(true)
	m.EligibleTools()
	assert.Error(t, m.CheckThinkValidation())

	// The cooldown only blocks that one turn: the turn after, it's clear.
	m.EligibleTools()
	assert.NoError(t, m.CheckThinkValidation())
}

func TestAddResponse_BuildsActionAndAttaches(t *testing.T) {
	m := newTestManager(t)
	root := m.Tree().Root()
	child, err := m.AppendReactChild(root.ID)
	require.NoError(t, err)

	resp := &types.LLMResponse{
		Content: "running it",
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: string(types.ActionRun), Arguments: `{"command":"echo ok","computer_ip":"127.0.0.1","session_id":"s1","wait_for_completion":true}`},
		},
	}
	action, err := m.AddResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, types.ActionRun, action.Type)
	assert.Equal(t, "call_1", action.CallID)
	assert.Same(t, child, m.Tree().Current())
	assert.Equal(t, action, child.Action)
	assert.Equal(t, resp, child.Response)
}

func TestAddResponse_MalformedToolCallYieldsNull(t *testing.T) {
	m := newTestManager(t)
	root := m.Tree().Root()
	_, err := m.AppendReactChild(root.ID)
	require.NoError(t, err)

	resp := &types.LLMResponse{
		ToolCalls: []types.ToolCall{{ID: "call_1", Name: "not a valid name!", Arguments: "{}"}},
	}
	action, err := m.AddResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, types.ActionNull, action.Type)
	assert.NotEmpty(t, action.ErrorMessage)
}

func TestEligibleTools_ExcludesThinkUnderCooldownAndSummarizeOnSummaryNode(t *testing.T) {
	m := newTestManager(t)
	root := m.Tree().Root()
	_, err := m.AppendReactChild(root.ID)
	require.NoError(t, err)

	tools := m.EligibleTools()
	names := make(map[types.ActionType]bool)
	for _, tl := range tools {
		names[tl.Name] = true
	}
	assert.True(t, names[types.ActionThink])
	assert.False(t, names[types.ActionSummarize])

	m.SetThinkCooldown(true)
	tools = m.EligibleTools()
	for _, tl := range tools {
		assert.NotEqual(t, types.ActionThink, tl.Name)
	}

	summary, err := m.AppendSummaryChild(root.ID, 1, 2)
	require.NoError(t, err)
	_ = summary
	tools = m.EligibleTools()
	require.Len(t, tools, 1)
	assert.Equal(t, types.ActionSummarize, tools[0].Name)
}

func TestIncrementInternalActionCount_ExceedsLimit(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.IncrementInternalActionCount())
	assert.False(t, m.IncrementInternalActionCount())
	assert.True(t, m.IncrementInternalActionCount())
}
