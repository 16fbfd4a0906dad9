package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTaskConfig_Valid(t *testing.T) {
	path := writeTemp(t, "task.yaml", `
task_description: "echo ok"
max_working_time: 1h
max_steps: 50
max_eval_attempts: 3
tokenizer_id: "cl100k_base"
workspace_path: /workspace
checkpoint_base: /checkpoints
save_freq: 5
agent_type: react
computer_pool:
  - ip: 127.0.0.1
    port: 8000
    type: cpu
    internet: true
`)

	cfg, err := LoadTaskConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "echo ok", cfg.TaskDescription)
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.Len(t, cfg.ComputerPool, 1)
	assert.Equal(t, 100000, cfg.ContextLimits.SummaryThreshold, "defaults fill context_limits when omitted")
}

func TestLoadTaskConfig_MissingRequiredFields(t *testing.T) {
	path := writeTemp(t, "task.yaml", `max_steps: 10`)

	_, err := LoadTaskConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task_description")
}

func TestLoadAgentConfig_Valid(t *testing.T) {
	path := writeTemp(t, "agent.yaml", `
provider_id: anthropic
model_id: claude-sonnet
max_retries: 5
`)

	cfg, err := LoadAgentConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.ProviderID)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestLoadAgentConfig_DefaultsMaxRetries(t *testing.T) {
	path := writeTemp(t, "agent.yaml", `
provider_id: openai
model_id: gpt-4o
`)

	cfg, err := LoadAgentConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxRetries)
}
