package scaffold

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GAIR-NLP/agentcore/internal/actionreg"
	"github.com/GAIR-NLP/agentcore/internal/contextmgr"
	"github.com/GAIR-NLP/agentcore/internal/reactagent"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

func testConfig(t *testing.T) *types.TaskConfig {
	t.Helper()
	return &types.TaskConfig{
		TaskDescription: "echo ok",
		MaxSteps:        10,
		MaxEvalAttempts: 2,
		TokenizerID:     "cl100k_base",
		WorkspacePath:   filepath.Join(t.TempDir(), "workspace"),
		CheckpointBase:  t.TempDir(),
		SaveFreq:        5,
		ComputerPool: []types.ComputerConfig{
			{IP: "127.0.0.1", Port: 8080, Type: "cpu", Internet: false},
		},
		ContextLimits: types.DefaultContextLimits(),
	}
}

func newTestScaffold(t *testing.T) (*Scaffold, *contextmgr.Manager) {
	t.Helper()
	cfg := testConfig(t)
	reg := actionreg.NewRegistry()
	actionreg.RegisterBuiltins(reg)

	mgr, err := contextmgr.NewManager(cfg, reg)
	require.NoError(t, err)

	agent := reactagent.New(mgr, nil, &types.AgentConfig{ProviderID: "anthropic", ModelID: "m"})
	s := New(cfg, agent, reg, nil)
	return s, mgr
}

func TestShouldTerminate_MaxWorkingTimeExceeded(t *testing.T) {
	s, _ := newTestScaffold(t)
	s.cfg.MaxWorkingTime = types.Duration(time.Millisecond)
	s.startTime = time.Now().Add(-time.Hour)

	reason, done := s.shouldTerminate(reactagent.StepInfo{}, nil)
	assert.True(t, done)
	assert.Contains(t, reason, "max_working_time")
}

func TestShouldTerminate_FinishObservation(t *testing.T) {
	s, _ := newTestScaffold(t)
	obs := types.NewSuccess("1", string(types.ActionFinish), "done", nil)

	reason, done := s.shouldTerminate(reactagent.StepInfo{}, obs)
	assert.True(t, done)
	assert.Contains(t, reason, "FINISH")
}

func TestShouldTerminate_InfoCompleted(t *testing.T) {
	s, _ := newTestScaffold(t)
	reason, done := s.shouldTerminate(reactagent.StepInfo{Completed: true, Reason: "internal budget exceeded"}, nil)
	assert.True(t, done)
	assert.Equal(t, "internal budget exceeded", reason)
}

func TestShouldTerminate_EvalAttemptsExceeded(t *testing.T) {
	s, _ := newTestScaffold(t)
	obs := types.NewSuccess("1", string(types.ActionEval), "not yet", nil)

	_, done := s.shouldTerminate(reactagent.StepInfo{}, obs)
	assert.False(t, done)
	_, done = s.shouldTerminate(reactagent.StepInfo{}, obs)
	assert.False(t, done)
	reason, done := s.shouldTerminate(reactagent.StepInfo{}, obs)
	assert.True(t, done)
	assert.Contains(t, reason, "eval attempt")
}

func TestShouldTerminate_NoneOfTheAbove(t *testing.T) {
	s, _ := newTestScaffold(t)
	obs := types.NewSuccess("1", string(types.ActionRun), "ran", nil)
	_, done := s.shouldTerminate(reactagent.StepInfo{}, obs)
	assert.False(t, done)
}

func TestEvalHandler_HandleReportsPass(t *testing.T) {
	h := newEvalHandler(NoopEvaluator{})
	action := &types.Action{Type: types.ActionEval, CallID: "c1", Args: []byte(`{}`)}

	obs, err := h.Handle(context.Background(), action)
	require.NoError(t, err)
	assert.True(t, obs.Success)
	assert.Equal(t, "c1", obs.ToolCallID)
}

func TestArchiveRestoreWorkspace_RoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "conda", "envs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "conda", "envs", "x.txt"), []byte("env"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("hello"), 0o644))

	dest := filepath.Join(t.TempDir(), "checkpoint")
	require.NoError(t, archiveWorkspace(src, dest))

	assert.FileExists(t, filepath.Join(dest, "conda.tar"))
	assert.FileExists(t, filepath.Join(dest, "notes.txt"))
	_, err := os.Stat(filepath.Join(dest, "conda", "envs", "x.txt"))
	assert.True(t, os.IsNotExist(err))

	restoreTo := filepath.Join(t.TempDir(), "workspace")
	require.NoError(t, restoreWorkspace(dest, restoreTo))

	data, err := os.ReadFile(filepath.Join(restoreTo, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = os.ReadFile(filepath.Join(restoreTo, "conda", "envs", "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "env", string(data))
}
