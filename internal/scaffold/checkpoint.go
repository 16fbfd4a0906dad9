package scaffold

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/GAIR-NLP/agentcore/internal/actionreg"
	"github.com/GAIR-NLP/agentcore/internal/contextmgr"
	"github.com/GAIR-NLP/agentcore/internal/logging"
	"github.com/GAIR-NLP/agentcore/internal/storage"
	"github.com/GAIR-NLP/agentcore/internal/treenode"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

func stepDir(checkpointBase string, globalStep int) string {
	return filepath.Join(checkpointBase, fmt.Sprintf("global_step_%d", globalStep))
}

// agentParams is the {agent_type}_agent_params.json payload (spec.md
// section 6).
type agentParams struct {
	GlobalStep  int `json:"global_step"`
	EvalAttempt int `json:"eval_attempt"`
}

func agentTypeOf(cfg *types.TaskConfig) string {
	if cfg.AgentType == "" {
		return "react"
	}
	return cfg.AgentType
}

// saveCheckpoint writes one checkpoint directory per spec.md section 4.6:
// tree_data.json, {agent_type}_agent_params.json,
// {agent_type}_context_manager_params.json, last_observation.json,
// workspace/, nodes/.
func (s *Scaffold) saveCheckpoint(ctx context.Context, lastObs *types.Observation) error {
	dir := stepDir(s.cfg.CheckpointBase, s.globalStep)
	store := storage.New(dir)
	agentType := agentTypeOf(s.cfg)

	if err := s.agent.Manager().Tree().SaveTree(filepath.Join(dir, "tree_data.json")); err != nil {
		return fmt.Errorf("scaffold: checkpoint tree: %w", err)
	}

	if err := store.Put(ctx, []string{agentType + "_agent_params"}, agentParams{
		GlobalStep:  s.globalStep,
		EvalAttempt: s.evalAttempt,
	}); err != nil {
		return fmt.Errorf("scaffold: checkpoint agent params: %w", err)
	}

	if err := store.Put(ctx, []string{agentType + "_context_manager_params"}, s.agent.Manager().State()); err != nil {
		return fmt.Errorf("scaffold: checkpoint context manager params: %w", err)
	}

	if lastObs != nil {
		if err := store.Put(ctx, []string{"last_observation"}, lastObs); err != nil {
			return fmt.Errorf("scaffold: checkpoint last observation: %w", err)
		}
	}

	if err := archiveWorkspace(s.cfg.WorkspacePath, filepath.Join(dir, "workspace")); err != nil {
		logging.Warn().Err(err).Msg("scaffold: best-effort workspace checkpoint failed")
	}

	nodeSnapshotDir := filepath.Join(s.cfg.CheckpointBase, "nodes")
	if err := copyDir(nodeSnapshotDir, filepath.Join(dir, "nodes")); err != nil {
		logging.Warn().Err(err).Msg("scaffold: best-effort node snapshot copy failed")
	}

	return nil
}

// RestoreResult carries everything Run needs to resume a task mid-flight.
type RestoreResult struct {
	Manager     *contextmgr.Manager
	GlobalStep  int
	EvalAttempt int
	LastObs     *types.Observation
}

// Restore implements spec.md section 4.6's restore: rehydrates the tree,
// the context manager's auxiliary state, the last observation, and the
// workspace from the named checkpoint directory (launch_type =
// load_checkpoint).
func Restore(ctx context.Context, cfg *types.TaskConfig, registry *actionreg.Registry, checkpointDir string) (*RestoreResult, error) {
	tree, err := treenode.LoadTree(filepath.Join(checkpointDir, "tree_data.json"))
	if err != nil {
		return nil, fmt.Errorf("scaffold: restore tree: %w", err)
	}

	agentType := agentTypeOf(cfg)
	store := storage.New(checkpointDir)

	var params agentParams
	if err := store.Get(ctx, []string{agentType + "_agent_params"}, &params); err != nil {
		return nil, fmt.Errorf("scaffold: restore agent params: %w", err)
	}

	var state contextmgr.State
	if err := store.Get(ctx, []string{agentType + "_context_manager_params"}, &state); err != nil {
		return nil, fmt.Errorf("scaffold: restore context manager params: %w", err)
	}

	var lastObs *types.Observation
	if store.Exists(ctx, []string{"last_observation"}) {
		if err := store.Get(ctx, []string{"last_observation"}, &lastObs); err != nil {
			return nil, fmt.Errorf("scaffold: restore last observation: %w", err)
		}
	}

	if err := restoreWorkspace(filepath.Join(checkpointDir, "workspace"), cfg.WorkspacePath); err != nil {
		logging.Warn().Err(err).Msg("scaffold: best-effort workspace restore failed")
	}

	mgr, err := contextmgr.Resume(cfg, registry, tree, time.Unix(state.StartTimeUnix, 0))
	if err != nil {
		return nil, fmt.Errorf("scaffold: resume context manager: %w", err)
	}
	mgr.RestoreState(state)

	return &RestoreResult{
		Manager:     mgr,
		GlobalStep:  params.GlobalStep,
		EvalAttempt: params.EvalAttempt,
		LastObs:     lastObs,
	}, nil
}
