package types

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so YAML config files can write "1h30m"
// instead of a raw nanosecond count.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("types: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ContextLimits configures the Context Manager's summarization and token
// budgeting policy (spec.md section 3).
type ContextLimits struct {
	MaxTokens              int `yaml:"max_tokens" json:"max_tokens"`
	SummaryThreshold       int `yaml:"summary_threshold" json:"summary_threshold"`
	ContextLength          int `yaml:"context_length" json:"context_length"`
	MaxInternalActionTimes int `yaml:"max_internal_action_times" json:"max_internal_action_times"` // -1 = unbounded
}

// DefaultContextLimits mirrors commonly deployed long-context models.
func DefaultContextLimits() ContextLimits {
	return ContextLimits{
		MaxTokens:              4096,
		SummaryThreshold:       100000,
		ContextLength:          128000,
		MaxInternalActionTimes: 10,
	}
}

// TaskConfig is per-task configuration, immutable after task start
// (spec.md section 3).
type TaskConfig struct {
	TaskDescription  string           `yaml:"task_description" json:"task_description"`
	MaxWorkingTime   Duration         `yaml:"max_working_time" json:"max_working_time"`
	MaxSteps         int              `yaml:"max_steps" json:"max_steps"`
	MaxEvalAttempts  int              `yaml:"max_eval_attempts" json:"max_eval_attempts"`
	TokenizerID      string           `yaml:"tokenizer_id" json:"tokenizer_id"`
	ComputerPool     []ComputerConfig `yaml:"computer_pool" json:"computer_pool"`
	WorkspacePath    string           `yaml:"workspace_path" json:"workspace_path"`
	CheckpointBase   string           `yaml:"checkpoint_base" json:"checkpoint_base"`
	SaveFreq         int              `yaml:"save_freq" json:"save_freq"`
	ContextLimits    ContextLimits    `yaml:"context_limits" json:"context_limits"`
	AgentType        string           `yaml:"agent_type" json:"agent_type"`
	LaunchType       LaunchType       `yaml:"launch_type" json:"launch_type"`
	ResumeCheckpoint string           `yaml:"resume_checkpoint" json:"resume_checkpoint"`
}

// AgentConfig configures the LLM-facing side of the ReAct loop: provider
// selection and retry policy. The concrete provider client is an opaque
// external collaborator (spec.md section 1); this only names it.
type AgentConfig struct {
	ProviderID string `yaml:"provider_id" json:"provider_id"`
	ModelID    string `yaml:"model_id" json:"model_id"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// LaunchType selects whether the Scaffold starts fresh or resumes a
// checkpoint (spec.md section 4.6).
type LaunchType string

const (
	LaunchFresh          LaunchType = "fresh"
	LaunchLoadCheckpoint LaunchType = "load_checkpoint"
)
