package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	b := New(WithWorkspace(t.TempDir()))
	t.Cleanup(func() { b.CloseAllSessions(context.Background(), "") })
	return b
}

func TestCreateSession_LocalHost(t *testing.T) {
	b := newTestBroker(t)
	sid, msg, err := b.CreateSession(context.Background(), "127.0.0.1", "s1", 0, false)
	require.NoError(t, err)
	assert.Equal(t, "s1", sid)
	assert.Contains(t, msg, "created")
}

func TestCreateSession_CollisionReportsReuse(t *testing.T) {
	b := newTestBroker(t)
	_, _, err := b.CreateSession(context.Background(), "127.0.0.1", "s1", 0, false)
	require.NoError(t, err)

	_, msg, err := b.CreateSession(context.Background(), "127.0.0.1", "s1", 0, false)
	require.NoError(t, err)
	assert.Contains(t, msg, "reusing")
}

func TestRunCommand_AutoCreatesAndRunsSynchronously(t *testing.T) {
	b := newTestBroker(t)
	out, err := b.RunCommand(context.Background(), types.RunArgs{
		Command:           "echo ok",
		ComputerIP:        "127.0.0.1",
		SessionID:         "s1",
		WaitForCompletion: true,
	})
	require.NoError(t, err)
	assert.Contains(t, out.Output, "ok")
	assert.False(t, out.Killed)
}

func TestRunCommand_RejectsForceKillToken(t *testing.T) {
	b := newTestBroker(t)
	_, err := b.RunCommand(context.Background(), types.RunArgs{
		Command:           "kill -9 1",
		ComputerIP:        "127.0.0.1",
		SessionID:         "s1",
		WaitForCompletion: true,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "kill_session_processes")
}

func TestRunCommand_RejectsRmOutsideWorkspace(t *testing.T) {
	b := newTestBroker(t)
	_, err := b.RunCommand(context.Background(), types.RunArgs{
		Command:           "rm -rf /tmp/foo",
		ComputerIP:        "127.0.0.1",
		SessionID:         "s1",
		WaitForCompletion: true,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "/workspace")
}

func TestListSessions_ReportsCreatedSession(t *testing.T) {
	b := newTestBroker(t)
	_, _, err := b.CreateSession(context.Background(), "127.0.0.1", "s1", 0, false)
	require.NoError(t, err)

	infos := b.ListSessions("127.0.0.1")
	require.Len(t, infos, 1)
	assert.Equal(t, "s1", infos[0].SessionID)
	assert.Equal(t, types.ConnectionLocal, infos[0].ConnectionType)
}

func TestCloseSession_RemovesFromTable(t *testing.T) {
	b := newTestBroker(t)
	_, _, err := b.CreateSession(context.Background(), "127.0.0.1", "s1", 0, false)
	require.NoError(t, err)

	require.NoError(t, b.CloseSession(context.Background(), "127.0.0.1", "s1"))
	assert.Empty(t, b.ListSessions("127.0.0.1"))
}

func TestKillSessionProcesses_ClearsCommandInProgress(t *testing.T) {
	b := newTestBroker(t)
	_, err := b.RunCommand(context.Background(), types.RunArgs{
		Command:    "sleep 5",
		ComputerIP: "127.0.0.1",
		SessionID:  "s1",
	})
	require.NoError(t, err)

	_, _, signal, err := b.KillSessionProcesses(context.Background(), "127.0.0.1", "s1", false)
	require.NoError(t, err)
	assert.NotEmpty(t, signal)
}

func TestIdle_ReportsBusyWhileCommandRunning(t *testing.T) {
	b := newTestBroker(t)
	_, err := b.RunCommand(context.Background(), types.RunArgs{
		Command:    "sleep 2",
		ComputerIP: "127.0.0.1",
		SessionID:  "s1",
	})
	require.NoError(t, err)

	isIdle, reason, err := b.Idle(context.Background(), "127.0.0.1", "s1")
	require.NoError(t, err)
	assert.False(t, isIdle)
	assert.Contains(t, reason, "busy")

	time.Sleep(3 * time.Second)
	isIdle, _, err = b.Idle(context.Background(), "127.0.0.1", "s1")
	require.NoError(t, err)
	assert.True(t, isIdle)
}

func TestHandle_RunAction_DispatchesThroughRegistry(t *testing.T) {
	b := newTestBroker(t)
	action := &types.Action{
		Type:   types.ActionRun,
		CallID: "call-1",
		Args:   mustJSON(t, types.RunArgs{Command: "echo hi", ComputerIP: "127.0.0.1", SessionID: "s1", WaitForCompletion: true}),
	}
	require.True(t, b.CanHandle(action))

	obs, err := b.Handle(context.Background(), action)
	require.NoError(t, err)
	assert.True(t, obs.Success)
	assert.Contains(t, obs.Message, "hi")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
