// Package commands provides the agentcore CLI commands.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GAIR-NLP/agentcore/internal/actionreg"
	"github.com/GAIR-NLP/agentcore/internal/broker"
	"github.com/GAIR-NLP/agentcore/internal/config"
	"github.com/GAIR-NLP/agentcore/internal/contextmgr"
	"github.com/GAIR-NLP/agentcore/internal/logging"
	"github.com/GAIR-NLP/agentcore/internal/provider"
	"github.com/GAIR-NLP/agentcore/internal/reactagent"
	"github.com/GAIR-NLP/agentcore/internal/scaffold"
	"github.com/GAIR-NLP/agentcore/internal/telemetry"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	taskConfigPath  string
	agentConfigPath string
	logPath         string
)

var rootCmd = &cobra.Command{
	Use:     "agentcore",
	Short:   "Autonomous research-agent runtime",
	Version: Version,
	RunE:    runTask,
}

func init() {
	rootCmd.Flags().StringVar(&taskConfigPath, "task-config", "", "Path to the task config YAML (required)")
	rootCmd.Flags().StringVar(&agentConfigPath, "agent-config", "", "Path to the agent config YAML (required)")
	rootCmd.Flags().StringVar(&logPath, "log-path", "", "Directory for a timestamped structured log file, written in addition to stderr (stderr only if unset)")
	_ = rootCmd.MarkFlagRequired("task-config")
	_ = rootCmd.MarkFlagRequired("agent-config")
}

// Execute runs the agentcore root command.
func Execute() error {
	return rootCmd.Execute()
}

func runTask(cmd *cobra.Command, args []string) error {
	logCfg := logging.DefaultConfig()
	if logPath != "" {
		logCfg.LogToFile = true
		logCfg.LogDir = logPath
	}
	logging.Init(logCfg)
	defer logging.Close()

	stopTelemetry := telemetry.Start()
	defer stopTelemetry()

	taskCfg, err := config.LoadTaskConfig(taskConfigPath)
	if err != nil {
		return err
	}
	agentCfg, err := config.LoadAgentConfig(agentConfigPath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	llmProvider, err := newProvider(ctx, agentCfg)
	if err != nil {
		return fmt.Errorf("agentcore: construct provider: %w", err)
	}

	registry := actionreg.NewRegistry()
	actionreg.RegisterBuiltins(registry)
	registry.Use(broker.New(broker.WithWorkspace(taskCfg.WorkspacePath)))

	var manager *contextmgr.Manager
	var startStep, startEvalAttempt int
	var lastObs *types.Observation

	if taskCfg.LaunchType == types.LaunchLoadCheckpoint {
		if taskCfg.ResumeCheckpoint == "" {
			return fmt.Errorf("agentcore: launch_type is load_checkpoint but resume_checkpoint is empty")
		}
		restored, err := scaffold.Restore(ctx, taskCfg, registry, taskCfg.ResumeCheckpoint)
		if err != nil {
			return fmt.Errorf("agentcore: restore checkpoint: %w", err)
		}
		manager = restored.Manager
		startStep = restored.GlobalStep
		startEvalAttempt = restored.EvalAttempt
		lastObs = restored.LastObs
	} else {
		manager, err = contextmgr.NewManager(taskCfg, registry)
		if err != nil {
			return fmt.Errorf("agentcore: construct context manager: %w", err)
		}
	}

	agent := reactagent.New(manager, llmProvider, agentCfg)
	driver := scaffold.Resume(taskCfg, agent, registry, scaffold.NoopEvaluator{}, startStep, startEvalAttempt)

	result, err := driver.Run(ctx, lastObs)
	if err != nil {
		return err
	}

	logging.Info().
		Int("global_step", result.GlobalStep).
		Str("reason", result.Reason).
		Msg("agentcore: task finished")
	return nil
}

func newProvider(ctx context.Context, agentCfg *types.AgentConfig) (provider.Provider, error) {
	switch agentCfg.ProviderID {
	case "anthropic":
		return provider.NewAnthropicProvider(ctx, &provider.AnthropicConfig{
			ID:    agentCfg.ProviderID,
			Model: agentCfg.ModelID,
		})
	case "openai":
		return provider.NewOpenAIProvider(ctx, &provider.OpenAIConfig{
			ID:    agentCfg.ProviderID,
			Model: agentCfg.ModelID,
		})
	default:
		return nil, fmt.Errorf("agentcore: unknown provider_id %q", agentCfg.ProviderID)
	}
}
