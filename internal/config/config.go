package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// LoadTaskConfig reads and validates a TaskConfig YAML file.
func LoadTaskConfig(path string) (*types.TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read task config: %w", err)
	}

	cfg := &types.TaskConfig{
		ContextLimits: types.DefaultContextLimits(),
		SaveFreq:      10,
		LaunchType:    types.LaunchFresh,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse task config: %w", err)
	}

	if err := validateTaskConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateTaskConfig(cfg *types.TaskConfig) error {
	if cfg.TaskDescription == "" {
		return fmt.Errorf("config: task_description is required")
	}
	if cfg.MaxSteps <= 0 {
		return fmt.Errorf("config: max_steps must be positive")
	}
	if cfg.WorkspacePath == "" {
		return fmt.Errorf("config: workspace_path is required")
	}
	if len(cfg.ComputerPool) == 0 {
		return fmt.Errorf("config: computer_pool must name at least one host")
	}
	if cfg.ContextLimits.MaxInternalActionTimes == 0 {
		return fmt.Errorf("config: context_limits.max_internal_action_times must be nonzero (-1 for unbounded)")
	}
	return nil
}

// LoadAgentConfig reads an AgentConfig YAML file.
func LoadAgentConfig(path string) (*types.AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read agent config: %w", err)
	}

	cfg := &types.AgentConfig{MaxRetries: 3}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse agent config: %w", err)
	}
	if cfg.ProviderID == "" {
		return nil, fmt.Errorf("config: provider_id is required")
	}
	if cfg.ModelID == "" {
		return nil, fmt.Errorf("config: model_id is required")
	}
	return cfg, nil
}
