// Package reactagent implements the ReAct Agent Loop (spec.md section
// 4.5): one step() call per turn, routing internal actions (THINK,
// SUMMARIZE) through the Context Manager and returning external actions
// for the Scaffold to dispatch through the Environment.
package reactagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/GAIR-NLP/agentcore/internal/contextmgr"
	"github.com/GAIR-NLP/agentcore/internal/event"
	"github.com/GAIR-NLP/agentcore/internal/logging"
	"github.com/GAIR-NLP/agentcore/internal/provider"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// maxInternalSubLoopIterations is a hard backstop on the internal-action
// sub-loop independent of max_internal_action_times, guarding against a
// misconfigured unbounded (-1) budget spinning forever on a model that
// never emits anything else.
const maxInternalSubLoopIterations = 64

// StepInfo reports step() outcome metadata the Scaffold checks against
// its termination conditions (spec.md section 4.6).
type StepInfo struct {
	Completed bool
	Reason    string
}

// Agent drives one tree via the Context Manager and an LLM provider.
type Agent struct {
	manager    *contextmgr.Manager
	provider   provider.Provider
	agentCfg   *types.AgentConfig
	globalStep int
}

// New creates a ReAct agent over an already-constructed Context Manager.
func New(manager *contextmgr.Manager, p provider.Provider, agentCfg *types.AgentConfig) *Agent {
	return &Agent{manager: manager, provider: p, agentCfg: agentCfg}
}

// Manager exposes the owned Context Manager (read-only use by Scaffold:
// checkpointing, termination checks against tree.Current().Type).
func (a *Agent) Manager() *contextmgr.Manager { return a.manager }

// Step implements spec.md section 4.5's step(observation).
func (a *Agent) Step(ctx context.Context, obs *types.Observation) (*types.Action, StepInfo, error) {
	a.globalStep++
	tree := a.manager.Tree()

	// 1. Task already complete.
	if cur := tree.Current(); cur != nil && cur.Type == types.NodeDone {
		return finishAction(true, ""), StepInfo{Completed: true, Reason: "already done"}, nil
	}

	// 2. Attach the incoming observation to the current REACT node.
	if obs != nil {
		if err := a.manager.AddObservation(obs, ""); err != nil {
			return nil, StepInfo{}, fmt.Errorf("reactagent: attach observation: %w", err)
		}
	}

	// 3. Append a fresh REACT child and make it current; recompute stats.
	cur := tree.Current()
	if _, err := a.manager.AppendReactChild(cur.ID); err != nil {
		return nil, StepInfo{}, fmt.Errorf("reactagent: append react child: %w", err)
	}
	if _, err := a.manager.CalculateContextStats(); err != nil {
		return nil, StepInfo{}, fmt.Errorf("reactagent: calculate context stats: %w", err)
	}

	// 4. Deterministic summarization trigger bypasses the LLM entirely.
	if a.manager.ShouldSummarize() {
		action := a.manager.SynthesizeSummarize(newCallID())
		return a.runInternalSubLoop(ctx, action)
	}

	// 5-6. Regular REACT turn: ask the LLM and parse its tool call.
	action, err := a.reactTurn(ctx)
	if err != nil {
		return nil, StepInfo{}, err
	}

	// 7. Route internal vs external.
	if types.InternalActionTypes[action.Type] || tree.Current().Type == types.NodeSummary {
		return a.runInternalSubLoop(ctx, action)
	}

	a.publishTurnCompleted(action.Type)
	return action, StepInfo{Completed: false}, nil
}

// reactTurn performs exactly one chat(messages, tools) call from the
// current node and parses the result into a typed Action (spec.md
// section 4.5, steps 5-6). It returns the built action alongside
// ErrSummaryResponseInvalid when the current node is a SUMMARY node and
// the response wasn't a valid internal_summarize call -- that case is
// recoverable, not a hard failure.
func (a *Agent) reactTurn(ctx context.Context) (*types.Action, error) {
	messages, err := a.manager.GetMessages()
	if err != nil {
		return nil, fmt.Errorf("reactagent: get messages: %w", err)
	}
	tools := a.manager.EligibleTools()

	resp, err := chatWithRetry(ctx, a.provider, a.agentCfg, messages, tools)
	if err != nil {
		return nil, fmt.Errorf("reactagent: chat: %w", err)
	}

	action, err := a.manager.AddResponse(resp)
	if err != nil && !errors.Is(err, contextmgr.ErrSummaryResponseInvalid) {
		return nil, fmt.Errorf("reactagent: add response: %w", err)
	}
	return action, err
}

// runInternalSubLoop implements spec.md section 4.5, step 7: handles
// SUMMARIZE/THINK without returning control to the Scaffold, bounded by
// max_internal_action_times.
func (a *Agent) runInternalSubLoop(ctx context.Context, action *types.Action) (*types.Action, StepInfo, error) {
	for i := 0; i < maxInternalSubLoopIterations; i++ {
		if exceeded := a.manager.IncrementInternalActionCount(); exceeded {
			if err := a.manager.MarkDone(); err != nil {
				return nil, StepInfo{}, err
			}
			return finishAction(false, "Internal action count exceeded"),
				StepInfo{Completed: true, Reason: "Internal action count exceeded"}, nil
		}

		var err error
		switch action.Type {
		case types.ActionSummarize:
			action, err = a.handleSummarize(ctx, action)
		case types.ActionThink:
			action, err = a.handleThink(ctx, action)
		default:
			// A malformed response from a SUMMARY node lands here
			// (non-internal_summarize tool call rejected by AddResponse).
			action, err = a.retryWithFailure(ctx, action, fmt.Sprintf(
				"%q is not a valid action from a summary node", action.Type))
		}
		if err != nil {
			return nil, StepInfo{}, err
		}

		if !types.InternalActionTypes[action.Type] && a.manager.Tree().Current().Type != types.NodeSummary {
			a.publishTurnCompleted(action.Type)
			return action, StepInfo{Completed: false}, nil
		}
	}
	return nil, StepInfo{}, fmt.Errorf("reactagent: internal action sub-loop exceeded %d iterations", maxInternalSubLoopIterations)
}

// retryWithFailure attaches a failure observation for action's call and
// replays the turn, returning whatever the model does next.
func (a *Agent) retryWithFailure(ctx context.Context, action *types.Action, message string) (*types.Action, error) {
	failure := types.NewFailure(action.CallID, string(action.Type), message)
	if err := a.manager.AddObservation(failure, ""); err != nil {
		return nil, err
	}
	return a.reactTurn(ctx)
}

// handleSummarize validates and executes one SUMMARIZE action. On
// invalid arguments it replays the turn with a failure observation
// attached and returns whatever the model does next. On success it
// grafts the continuation and returns the next action from the resumed
// REACT turn.
func (a *Agent) handleSummarize(ctx context.Context, action *types.Action) (*types.Action, error) {
	var args types.SummarizeArgs
	if len(action.Args) > 0 {
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return a.retryWithFailure(ctx, action, "malformed internal_summarize arguments: "+err.Error())
		}
	}

	parentID, verr := a.manager.CheckSummarizeValidation(args.StartSummaryDepth, args.EndSummaryDepth)
	if verr != nil {
		logging.Warn().Err(verr).Msg("reactagent: invalid SUMMARIZE, retrying as REACT")
		return a.retryWithFailure(ctx, action, verr.Error())
	}

	summarizedAncestorID, err := a.ancestorIDAtDepth(args.StartSummaryDepth)
	if err != nil {
		return nil, err
	}

	summaryNode, err := a.manager.AppendSummaryChild(parentID, args.StartSummaryDepth, args.EndSummaryDepth)
	if err != nil {
		return nil, err
	}

	// Restricted LLM call: only internal_summarize is eligible from a
	// SUMMARY node (enforced by Manager.EligibleTools). A malformed reply
	// here comes back as ErrSummaryResponseInvalid; retry in place until
	// the model produces a usable summary_content.
	summaryAction, err := a.reactTurn(ctx)
	for errors.Is(err, contextmgr.ErrSummaryResponseInvalid) {
		summaryAction, err = a.retryWithFailure(ctx, summaryAction, "you must call internal_summarize with summary_content to continue")
	}
	if err != nil {
		return nil, err
	}
	_ = summaryAction // consumed; the node's summary_content is what matters from here

	if err := a.manager.GraftContinuation(summarizedAncestorID, summaryNode.ID); err != nil {
		return nil, fmt.Errorf("reactagent: graft continuation: %w", err)
	}

	// Restart as a REACT turn from the new current node (spec.md section
	// 4.5, "restart as a REACT turn from the new current node").
	return a.reactTurn(ctx)
}

// ancestorIDAtDepth resolves the ancestor node ID at depth d along the
// current spine, used to anchor the post-summary graft.
func (a *Agent) ancestorIDAtDepth(d int) (string, error) {
	cur := a.manager.Tree().Current()
	n, err := a.manager.Tree().NodeAtDepth(cur.ID, d)
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

// handleThink implements spec.md section 4.5's THINK branch: on valid
// THINK, synthesize a success observation, set the cooldown, and append
// a new REACT turn in the same step; on invalid THINK (cooldown active),
// synthesize a failure observation and retry as REACT.
func (a *Agent) handleThink(ctx context.Context, action *types.Action) (*types.Action, error) {
	if err := a.manager.CheckThinkValidation(); err != nil {
		return a.retryWithFailure(ctx, action, err.Error())
	}

	ok := types.NewSuccess(action.CallID, string(types.ActionThink), "OK, your thought has been logged. Go ahead.", nil)
	if err := a.manager.AddObservation(ok, ""); err != nil {
		return nil, err
	}
	a.manager.SetThinkCooldown(true)

	cur := a.manager.Tree().Current()
	if _, err := a.manager.AppendReactChild(cur.ID); err != nil {
		return nil, fmt.Errorf("reactagent: append react child after think: %w", err)
	}
	return a.reactTurn(ctx)
}

func (a *Agent) publishTurnCompleted(actionType types.ActionType) {
	event.Publish(event.Event{Type: event.TurnCompleted, Data: event.TurnCompletedData{
		GlobalStep: a.globalStep, ActionType: actionType, Completed: false,
	}})
}

func finishAction(taskCompleted bool, reason string) *types.Action {
	args, _ := json.Marshal(types.FinishArgs{TaskCompleted: taskCompleted, Reason: reason})
	return &types.Action{Type: types.ActionFinish, CallID: newCallID(), Args: args}
}

func newCallID() string {
	return ulid.Make().String()
}
