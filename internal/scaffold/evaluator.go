package scaffold

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// Evaluator is the task-evaluation benchmark collaborator (spec.md
// section 1, "opaque validate() -> score modules"): concrete benchmarks
// live outside this module and are wired in by the caller of Run.
type Evaluator interface {
	Evaluate(ctx context.Context, attempt int) (*types.EvalPayload, error)
}

// NoopEvaluator always reports a passing score, used when a task config
// names no benchmark.
type NoopEvaluator struct{}

func (NoopEvaluator) Evaluate(ctx context.Context, attempt int) (*types.EvalPayload, error) {
	return &types.EvalPayload{Score: 1, Attempt: attempt, Passed: true}, nil
}

// evalHandler is the actionreg.Handler that lets the agent invoke EVAL as
// an ordinary action mid-task (as opposed to the Scaffold's own forced
// final evaluation call); it counts attempts independently of the
// Scaffold's own evalAttempt counter since the agent may call EVAL
// without that being the terminating attempt.
type evalHandler struct {
	evaluator Evaluator
	attempt   atomic.Int64
}

func newEvalHandler(e Evaluator) *evalHandler {
	return &evalHandler{evaluator: e}
}

func (h *evalHandler) CanHandle(action *types.Action) bool {
	return action.Type == types.ActionEval
}

func (h *evalHandler) Handle(ctx context.Context, action *types.Action) (*types.Observation, error) {
	var args types.EvalArgs
	_ = json.Unmarshal(action.Args, &args)

	attempt := int(h.attempt.Add(1))
	if args.Attempt > 0 {
		attempt = args.Attempt
	}

	payload, err := h.evaluator.Evaluate(ctx, attempt)
	if err != nil {
		return types.NewFailure(action.CallID, string(action.Type), err.Error()), nil
	}
	msg := "evaluation did not pass"
	if payload.Passed {
		msg = "evaluation passed"
	}
	return types.NewSuccess(action.CallID, string(action.Type), msg, payload), nil
}
