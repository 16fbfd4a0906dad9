package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// sessionActionTypes is the set of action types the broker claims in the
// dispatch chain (spec.md section 4.1's operation list).
var sessionActionTypes = map[types.ActionType]bool{
	types.ActionRun:                true,
	types.ActionInputSession:       true,
	types.ActionGetSessionOutput:   true,
	types.ActionGetSessionRecent:   true,
	types.ActionCreateSession:      true,
	types.ActionListSessions:       true,
	types.ActionCheckSessionStatus: true,
	types.ActionCheckSessionIdle:   true,
	types.ActionClearSessionBuffer: true,
	types.ActionCloseSession:       true,
	types.ActionCloseAllSessions:   true,
	types.ActionKillSessionProcess: true,
}

// CanHandle claims every session-lifecycle action type (spec.md section
// 4.2, chain-of-responsibility dispatch).
func (b *Broker) CanHandle(action *types.Action) bool {
	return sessionActionTypes[action.Type]
}

// Handle routes action to the matching Broker operation and renders the
// result as an Observation. Broker errors never propagate past this
// boundary: they become failure observations (spec.md section 7, taxonomy
// 1/4/5).
func (b *Broker) Handle(ctx context.Context, action *types.Action) (*types.Observation, error) {
	toolName := string(action.Type)

	switch action.Type {
	case types.ActionRun:
		var args types.RunArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		out, err := b.RunCommand(ctx, args)
		if err != nil {
			if out != nil {
				return failureWithPayload(action.CallID, toolName, err.Error(), out), nil
			}
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		return types.NewSuccess(action.CallID, toolName, out.Output, out), nil

	case types.ActionInputSession:
		var args types.InputSessionArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		if err := b.InputText(ctx, args.ComputerIP, args.SessionID, args.InputText); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		return types.NewSuccess(action.CallID, toolName, "input sent", nil), nil

	case types.ActionGetSessionOutput:
		var args types.GetSessionOutputArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		var since *time.Time
		if args.SinceTimestamp > 0 {
			t := time.Unix(0, int64(args.SinceTimestamp*1e9))
			since = &t
		}
		out, err := b.GetOutput(ctx, args.ComputerIP, args.SessionID, args.StartLines, args.EndLines, since)
		if err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		return types.NewSuccess(action.CallID, toolName, out, nil), nil

	case types.ActionGetSessionRecent:
		var args types.GetSessionRecentOutputArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		out, err := b.GetRecentOutput(ctx, args.ComputerIP, args.SessionID, args.Seconds)
		if err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		return types.NewSuccess(action.CallID, toolName, out, nil), nil

	case types.ActionCreateSession:
		var args types.CreateSessionArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		sid, msg, err := b.CreateSession(ctx, args.ComputerIP, args.SessionID, args.HTTPPort, args.UseProxy)
		if err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		return types.NewSuccess(action.CallID, toolName, msg, map[string]string{"session_id": sid}), nil

	case types.ActionListSessions:
		var args types.ListSessionsArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		sessions := b.ListSessions(args.ComputerIP)
		return types.NewSuccess(action.CallID, toolName, fmt.Sprintf("%d session(s)", len(sessions)),
			types.SessionListPayload{Sessions: sessions}), nil

	case types.ActionCheckSessionStatus:
		var args types.CheckSessionStatusArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		alive, reason, err := b.Status(ctx, args.ComputerIP, args.SessionID)
		if err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		return types.NewSuccess(action.CallID, toolName, reason, types.SessionStatusPayload{IsAlive: alive, Reason: reason}), nil

	case types.ActionCheckSessionIdle:
		var args types.CheckSessionIdleArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		isIdle, reason, err := b.Idle(ctx, args.ComputerIP, args.SessionID)
		if err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		return types.NewSuccess(action.CallID, toolName, reason, types.SessionStatusPayload{IsIdle: isIdle, Reason: reason}), nil

	case types.ActionClearSessionBuffer:
		var args types.ClearSessionBufferArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		if err := b.ClearBuffer(ctx, args.ComputerIP, args.SessionID); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		return types.NewSuccess(action.CallID, toolName, "buffer cleared", nil), nil

	case types.ActionCloseSession:
		var args types.CloseSessionArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		if err := b.CloseSession(ctx, args.ComputerIP, args.SessionID); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		return types.NewSuccess(action.CallID, toolName, "session closed", nil), nil

	case types.ActionCloseAllSessions:
		var args types.CloseAllSessionsArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		errs := b.CloseAllSessions(ctx, args.ComputerIP)
		if len(errs) > 0 {
			return types.NewFailure(action.CallID, toolName, fmt.Sprintf("%d session(s) failed to close: %v", len(errs), errs)), nil
		}
		return types.NewSuccess(action.CallID, toolName, "all sessions closed", nil), nil

	case types.ActionKillSessionProcess:
		var args types.KillSessionProcessesArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		killed, failed, signal, err := b.KillSessionProcesses(ctx, args.ComputerIP, args.SessionID, args.Force)
		if err != nil {
			return types.NewFailure(action.CallID, toolName, err.Error()), nil
		}
		msg := fmt.Sprintf("killed %d process(es) with %s", len(killed), signal)
		return types.NewSuccess(action.CallID, toolName, msg, map[string]any{
			"killed_processes": killed, "failed_kills": failed, "signal_used": signal,
		}), nil
	}

	return types.NewFailure(action.CallID, toolName, fmt.Sprintf("broker cannot handle action %q", action.Type)), nil
}

func failureWithPayload(callID, toolName, message string, payload any) *types.Observation {
	obs := types.NewFailure(callID, toolName, message)
	if raw, err := json.Marshal(payload); err == nil {
		obs.Payload = raw
	}
	return obs
}
