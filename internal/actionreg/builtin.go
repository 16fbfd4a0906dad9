package actionreg

import (
	"encoding/json"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// decodeInto returns a Spec.Decode closure for a concrete *T that also
// implements Validatable.
func decodeInto[T any, PT interface {
	*T
	Validatable
}]() func(json.RawMessage) (Validatable, error) {
	return func(raw json.RawMessage) (Validatable, error) {
		var v T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
		}
		return PT(&v), nil
	}
}

// RegisterBuiltins registers the closed action catalog named throughout
// spec.md (sections 3, 4.1, 4.2, 4.4, 4.5): session lifecycle actions
// routed to the broker, the internal actions owned by the context manager,
// and the pluggable-handler action kinds (EDIT, SEARCH_DIR, WEB_BROWSE,
// EVAL) whose concrete implementations are out of the core's scope.
func RegisterBuiltins(r *Registry) {
	r.Register(Spec{
		Type:        types.ActionRun,
		Description: "Run a command in a remote or local shell session.",
		SecurityRisk: types.RiskMedium,
		Fields: []types.FieldSpec{
			{Name: "command", Type: types.FieldString, Description: "Shell command to execute", Required: true},
			{Name: "computer_ip", Type: types.FieldString, Description: "Target host IP", Required: true},
			{Name: "session_id", Type: types.FieldString, Description: "Session to run the command in", Required: true},
			{Name: "http_port", Type: types.FieldInteger, Description: "Worker agent port"},
			{Name: "wait_for_completion", Type: types.FieldBoolean, Description: "Block until the command completes", Required: true},
			{Name: "use_proxy", Type: types.FieldBoolean, Description: "Route the request through a proxy"},
		},
		Decode: decodeInto[types.RunArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionInputSession,
		Description: "Write text to a session's stdin while it is waiting for input.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString, Required: true},
			{Name: "session_id", Type: types.FieldString, Required: true},
			{Name: "input_text", Type: types.FieldString, Required: true},
		},
		Decode: decodeInto[types.InputSessionArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionGetSessionOutput,
		Description: "Read a slice of a session's buffered output.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString, Required: true},
			{Name: "session_id", Type: types.FieldString, Required: true},
			{Name: "start_lines", Type: types.FieldInteger},
			{Name: "end_lines", Type: types.FieldInteger},
			{Name: "since_timestamp", Type: types.FieldNumber},
		},
		Decode: decodeInto[types.GetSessionOutputArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionGetSessionRecent,
		Description: "Read a session's output from the last N seconds.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString, Required: true},
			{Name: "session_id", Type: types.FieldString, Required: true},
			{Name: "seconds", Type: types.FieldInteger, Required: true},
		},
		Decode: decodeInto[types.GetSessionRecentOutputArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionCreateSession,
		Description: "Create a new shell session on a host.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString, Required: true},
			{Name: "session_id", Type: types.FieldString},
			{Name: "http_port", Type: types.FieldInteger},
			{Name: "use_proxy", Type: types.FieldBoolean},
		},
		Decode: decodeInto[types.CreateSessionArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionListSessions,
		Description: "List sessions, optionally scoped to one host.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString},
		},
		Decode: decodeInto[types.ListSessionsArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionCheckSessionStatus,
		Description: "Check whether a session is alive.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString, Required: true},
			{Name: "session_id", Type: types.FieldString, Required: true},
		},
		Decode: decodeInto[types.CheckSessionStatusArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionCheckSessionIdle,
		Description: "Check whether a session currently has a running descendant process.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString, Required: true},
			{Name: "session_id", Type: types.FieldString, Required: true},
		},
		Decode: decodeInto[types.CheckSessionIdleArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionClearSessionBuffer,
		Description: "Clear a session's output buffer.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString, Required: true},
			{Name: "session_id", Type: types.FieldString, Required: true},
		},
		Decode: decodeInto[types.ClearSessionBufferArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionCloseSession,
		Description: "Close a single session.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString, Required: true},
			{Name: "session_id", Type: types.FieldString, Required: true},
		},
		Decode: decodeInto[types.CloseSessionArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionCloseAllSessions,
		Description: "Close every session, optionally scoped to one host.",
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString},
		},
		Decode: decodeInto[types.CloseAllSessionsArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionKillSessionProcess,
		Description:          "Force-kill a session's descendant processes.",
		SecurityRisk:         types.RiskHigh,
		RequiresConfirmation: true,
		Fields: []types.FieldSpec{
			{Name: "computer_ip", Type: types.FieldString, Required: true},
			{Name: "session_id", Type: types.FieldString, Required: true},
			{Name: "force", Type: types.FieldBoolean},
		},
		Decode: decodeInto[types.KillSessionProcessesArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionEdit,
		Description: "Replace a span of text within a file (pluggable handler, external to the core).",
		Fields: []types.FieldSpec{
			{Name: "path", Type: types.FieldString, Required: true},
			{Name: "old_text", Type: types.FieldString, Required: true},
			{Name: "new_text", Type: types.FieldString, Required: true},
		},
		Decode: decodeInto[types.EditArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionSearchDir,
		Description: "Search a directory tree for a pattern (pluggable handler, external to the core).",
		Fields: []types.FieldSpec{
			{Name: "directory", Type: types.FieldString, Required: true},
			{Name: "pattern", Type: types.FieldString, Required: true},
		},
		Decode: decodeInto[types.SearchDirArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionWebBrowse,
		Description: "Fetch and render a URL (pluggable handler, external to the core).",
		Fields: []types.FieldSpec{
			{Name: "url", Type: types.FieldString, Required: true},
		},
		Decode: decodeInto[types.WebBrowseArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionEval,
		Description: "Run the task's evaluation benchmark (opaque validate() -> score collaborator).",
		Fields: []types.FieldSpec{
			{Name: "attempt", Type: types.FieldInteger},
		},
		Decode: decodeInto[types.EvalArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionSleep,
		Description: "Pause the agent loop for a number of seconds.",
		Fields: []types.FieldSpec{
			{Name: "seconds", Type: types.FieldInteger, Required: true},
		},
		Decode: decodeInto[types.SleepArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionFinish,
		Description: "Declare the task finished.",
		Fields: []types.FieldSpec{
			{Name: "task_completed", Type: types.FieldBoolean, Required: true},
			{Name: "reason", Type: types.FieldString},
		},
		Decode: decodeInto[types.FinishArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionThink,
		Description: "Record a private reasoning note; does not affect the outside world.",
		Fields: []types.FieldSpec{
			{Name: "thought", Type: types.FieldString, Required: true},
		},
		Decode: decodeInto[types.ThinkArgs](),
	})

	r.Register(Spec{
		Type:        types.ActionSummarize,
		Description: "Condense a contiguous depth range of ancestor nodes into one summary node.",
		Fields: []types.FieldSpec{
			{Name: "start_summary_depth", Type: types.FieldInteger, Required: true},
			{Name: "end_summary_depth", Type: types.FieldInteger, Required: true},
			{Name: "summary_content", Type: types.FieldString},
		},
		Decode: decodeInto[types.SummarizeArgs](),
	})
}
