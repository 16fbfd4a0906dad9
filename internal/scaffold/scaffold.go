// Package scaffold implements the task driver (spec.md section 4.6): the
// turn loop that ties the ReAct Agent Loop to the Action Registry /
// Broker environment, checks termination conditions, and checkpoints
// state every save_freq steps.
package scaffold

import (
	"context"
	"fmt"
	"time"

	"github.com/GAIR-NLP/agentcore/internal/actionreg"
	"github.com/GAIR-NLP/agentcore/internal/logging"
	"github.com/GAIR-NLP/agentcore/internal/reactagent"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

const evalCallIDFinal = "00000002"

// Result is what Run reports once the task terminates.
type Result struct {
	GlobalStep  int
	Reason      string
	LastObs     *types.Observation
	FinalEval   *types.EvalPayload
}

// Scaffold drives one task: Environment reset is the caller's
// responsibility (Broker bootstrap, spec.md section 6); Run owns the
// turn loop, termination checks, and checkpointing.
type Scaffold struct {
	cfg       *types.TaskConfig
	agent     *reactagent.Agent
	registry  *actionreg.Registry
	evaluator Evaluator

	globalStep  int
	evalAttempt int
	startTime   time.Time
}

// New creates a Scaffold over an already-constructed ReAct agent and the
// registry its actions dispatch through.
func New(cfg *types.TaskConfig, agent *reactagent.Agent, registry *actionreg.Registry, evaluator Evaluator) *Scaffold {
	if evaluator == nil {
		evaluator = NoopEvaluator{}
	}
	registry.Use(newEvalHandler(evaluator))
	return &Scaffold{
		cfg:       cfg,
		agent:     agent,
		registry:  registry,
		evaluator: evaluator,
		startTime: agent.Manager().StartTime(),
	}
}

// Resume wraps an already-restored Scaffold picking up from a checkpoint
// (spec.md section 4.6, "global_step resumes at the directory's step
// number").
func Resume(cfg *types.TaskConfig, agent *reactagent.Agent, registry *actionreg.Registry, evaluator Evaluator, globalStep, evalAttempt int) *Scaffold {
	s := New(cfg, agent, registry, evaluator)
	s.globalStep = globalStep
	s.evalAttempt = evalAttempt
	return s
}

// Run executes the turn loop to completion (spec.md section 4.6):
// step -> dispatch -> termination check -> (periodic) checkpoint, forcing
// one final EvalAction before returning.
func (s *Scaffold) Run(ctx context.Context, initialObs *types.Observation) (*Result, error) {
	obs := initialObs

	for s.globalStep < s.cfg.MaxSteps {
		action, info, err := s.agent.Step(ctx, obs)
		if err != nil {
			return nil, fmt.Errorf("scaffold: step %d: %w", s.globalStep, err)
		}

		obs, err = s.dispatch(ctx, action)
		if err != nil {
			return nil, fmt.Errorf("scaffold: dispatch step %d: %w", s.globalStep, err)
		}

		if reason, done := s.shouldTerminate(info, obs); done {
			return s.finish(ctx, reason, obs)
		}

		if s.cfg.SaveFreq > 0 && s.globalStep%s.cfg.SaveFreq == 0 {
			if err := s.saveCheckpoint(ctx, obs); err != nil {
				logging.Warn().Err(err).Int("global_step", s.globalStep).Msg("scaffold: checkpoint failed")
			}
		}
	}

	return s.finish(ctx, "max_steps reached", obs)
}

// dispatch hands action to the Environment: the Action Registry's
// chain-of-responsibility dispatch to the Broker or any other registered
// handler (spec.md section 4.2).
func (s *Scaffold) dispatch(ctx context.Context, action *types.Action) (*types.Observation, error) {
	s.globalStep++
	if action.Type == types.ActionFinish {
		return types.NewSuccess(action.CallID, string(action.Type), "task finished", nil), nil
	}
	return s.registry.Dispatch(ctx, action)
}

// shouldTerminate implements spec.md section 4.6's termination
// conditions, checked after each step.
func (s *Scaffold) shouldTerminate(info reactagent.StepInfo, obs *types.Observation) (string, bool) {
	if s.cfg.MaxWorkingTime.Duration() > 0 && time.Since(s.startTime) >= s.cfg.MaxWorkingTime.Duration() {
		return "max_working_time exceeded", true
	}
	if obs != nil && obs.ToolName == string(types.ActionFinish) {
		return "agent issued FINISH", true
	}
	if info.Completed {
		return info.Reason, true
	}
	if s.agent.Manager().Tree().Current().Type == types.NodeDone {
		return "current node is DONE", true
	}
	if obs != nil && obs.ToolName == string(types.ActionEval) {
		s.evalAttempt++
		if s.evalAttempt > s.cfg.MaxEvalAttempts {
			return "eval attempt count exceeded", true
		}
	}
	return "", false
}

// finish forces the final EvalAction (call_id "00000002") and appends its
// result as the last observation before returning (spec.md section 4.6).
func (s *Scaffold) finish(ctx context.Context, reason string, lastObs *types.Observation) (*Result, error) {
	s.evalAttempt++
	payload, err := s.evaluator.Evaluate(ctx, s.evalAttempt)
	if err != nil {
		logging.Warn().Err(err).Msg("scaffold: final evaluation failed")
		payload = &types.EvalPayload{Attempt: s.evalAttempt}
	}

	finalObs := types.NewSuccess(evalCallIDFinal, string(types.ActionEval),
		fmt.Sprintf("final evaluation: score=%.4f passed=%v", payload.Score, payload.Passed), payload)
	if err := s.agent.Manager().AddObservation(finalObs, ""); err != nil {
		logging.Warn().Err(err).Msg("scaffold: failed to attach final eval observation")
	}

	if err := s.saveCheckpoint(ctx, finalObs); err != nil {
		logging.Warn().Err(err).Msg("scaffold: final checkpoint failed")
	}

	return &Result{
		GlobalStep: s.globalStep,
		Reason:     reason,
		LastObs:    finalObs,
		FinalEval:  payload,
	}, nil
}
