package actionreg

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/GAIR-NLP/agentcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

func TestBuild_ValidRunAction(t *testing.T) {
	r := newTestRegistry()
	raw := json.RawMessage(`{"command":"ls -la","computer_ip":"10.0.0.5","session_id":"s1","wait_for_completion":true}`)

	action := r.Build(string(types.ActionRun), raw, "call-1")

	require.Equal(t, types.ActionRun, action.Type)
	assert.Equal(t, "call-1", action.CallID)
	assert.Equal(t, types.RiskMedium, action.SecurityRisk)
	assert.Empty(t, action.ErrorMessage)

	var args types.RunArgs
	require.NoError(t, json.Unmarshal(action.Args, &args))
	assert.Equal(t, "ls -la", args.Command)
	assert.True(t, args.WaitForCompletion)
}

func TestBuild_MissingRequiredFieldYieldsNullAction(t *testing.T) {
	r := newTestRegistry()
	raw := json.RawMessage(`{"computer_ip":"10.0.0.5","session_id":"s1"}`)

	action := r.Build(string(types.ActionRun), raw, "call-2")

	assert.Equal(t, types.ActionNull, action.Type)
	assert.Contains(t, action.ErrorMessage, "command")
}

func TestBuild_UnknownToolYieldsNullAction(t *testing.T) {
	r := newTestRegistry()
	action := r.Build("not_a_real_tool", json.RawMessage(`{}`), "call-3")

	assert.Equal(t, types.ActionNull, action.Type)
	assert.Contains(t, action.ErrorMessage, "unknown tool")
}

func TestBuild_ToolNameBoundaryChecks(t *testing.T) {
	r := newTestRegistry()

	tooLong := ""
	for i := 0; i < 100; i++ {
		tooLong += "a"
	}
	action := r.Build(tooLong, json.RawMessage(`{}`), "call-4")
	assert.Equal(t, types.ActionNull, action.Type)

	action = r.Build("bad name!", json.RawMessage(`{}`), "call-5")
	assert.Equal(t, types.ActionNull, action.Type)
	assert.Contains(t, action.ErrorMessage, "does not match")
}

func TestKillSessionProcesses_RequiresConfirmation(t *testing.T) {
	r := newTestRegistry()
	raw := json.RawMessage(`{"computer_ip":"10.0.0.5","session_id":"s1"}`)

	action := r.Build(string(types.ActionKillSessionProcess), raw, "call-6")

	require.Equal(t, types.ActionKillSessionProcess, action.Type)
	assert.True(t, action.RequiresConfirmation)
	assert.Equal(t, types.RiskHigh, action.SecurityRisk)
}

// TestSchemaRoundTrip checks the round-trip law from spec.md section 8:
// decoding and re-encoding a valid argument blob through its registered
// type must not lose or reorder declared fields' values.
func TestSchemaRoundTrip(t *testing.T) {
	cases := []struct {
		actionType types.ActionType
		raw        string
	}{
		{types.ActionRun, `{"command":"echo hi","computer_ip":"10.0.0.1","session_id":"s1","wait_for_completion":false}`},
		{types.ActionCreateSession, `{"computer_ip":"10.0.0.1"}`},
		{types.ActionSleep, `{"seconds":5}`},
		{types.ActionFinish, `{"task_completed":true,"reason":"done"}`},
		{types.ActionThink, `{"thought":"considering next step"}`},
		{types.ActionSummarize, `{"start_summary_depth":1,"end_summary_depth":4,"summary_content":"recap"}`},
	}

	r := newTestRegistry()
	for _, tc := range cases {
		action := r.Build(string(tc.actionType), json.RawMessage(tc.raw), "call-rt")
		require.NotEqual(t, types.ActionNull, action.Type, "case %s: %s", tc.actionType, action.ErrorMessage)

		var want, got map[string]any
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &want))
		require.NoError(t, json.Unmarshal(action.Args, &got))
		for k, v := range want {
			assert.Equal(t, v, got[k], "field %s mismatched after round-trip for %s", k, tc.actionType)
		}
	}
}

func TestToolList_CoversEveryRegisteredAction(t *testing.T) {
	r := newTestRegistry()
	defs := r.ToolList()
	assert.Len(t, defs, 20)

	for _, def := range defs {
		assert.NotEmpty(t, def.Parameters)
	}
}

type stubHandler struct {
	claims types.ActionType
}

func (s stubHandler) CanHandle(a *types.Action) bool { return a.Type == s.claims }

func (s stubHandler) Handle(ctx context.Context, a *types.Action) (*types.Observation, error) {
	return types.NewSuccess(a.CallID, string(a.Type), "handled", nil), nil
}

func TestDispatch_RoutesToMatchingHandler(t *testing.T) {
	r := newTestRegistry()
	r.Use(stubHandler{claims: types.ActionSleep})

	action := r.Build(string(types.ActionSleep), json.RawMessage(`{"seconds":1}`), "call-7")
	obs, err := r.Dispatch(context.Background(), action)

	require.NoError(t, err)
	assert.True(t, obs.Success)
	assert.Equal(t, "handled", obs.String())
}

func TestDispatch_NoHandlerYieldsFailure(t *testing.T) {
	r := newTestRegistry()
	action := r.Build(string(types.ActionSleep), json.RawMessage(`{"seconds":1}`), "call-8")

	obs, err := r.Dispatch(context.Background(), action)

	require.NoError(t, err)
	assert.False(t, obs.Success)
	assert.Contains(t, obs.String(), "no handler registered")
}

func TestDispatch_NullActionNeverReachesHandlers(t *testing.T) {
	r := newTestRegistry()
	r.Use(stubHandler{claims: types.ActionNull})

	action := r.Build("unknown_tool", json.RawMessage(`{}`), "call-9")
	obs, err := r.Dispatch(context.Background(), action)

	require.NoError(t, err)
	assert.False(t, obs.Success)
}
