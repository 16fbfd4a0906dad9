package types

import "encoding/json"

// ActionType is the closed enumeration of tool tags the Action/Observation
// Registry knows how to construct and dispatch (spec.md section 4.2).
type ActionType string

const (
	// External actions, routed to the Environment/Broker.
	ActionRun                 ActionType = "run"
	ActionInputSession        ActionType = "input_session"
	ActionGetSessionOutput    ActionType = "get_session_output"
	ActionGetSessionRecent    ActionType = "get_session_recent_output"
	ActionCreateSession       ActionType = "create_session"
	ActionListSessions        ActionType = "list_sessions"
	ActionCheckSessionStatus  ActionType = "check_session_status"
	ActionCheckSessionIdle    ActionType = "check_session_idle"
	ActionClearSessionBuffer  ActionType = "clear_session_buffer"
	ActionCloseSession        ActionType = "close_session"
	ActionCloseAllSessions    ActionType = "close_all_sessions"
	ActionKillSessionProcess  ActionType = "kill_session_processes"
	ActionEdit                ActionType = "edit"
	ActionSearchDir           ActionType = "search_dir"
	ActionWebBrowse           ActionType = "web_browse"
	ActionEval                ActionType = "eval"
	ActionSleep               ActionType = "sleep"
	ActionFinish              ActionType = "finish"
	ActionNull                ActionType = "null"

	// Internal actions (spec.md section 4.4/4.5): affect the tree/context,
	// never the outside world.
	ActionThink     ActionType = "internal_think"
	ActionSummarize ActionType = "internal_summarize"
)

// InternalActionTypes is the closed set used to decide whether a routed
// Action stays inside the Context Manager or is handed to the Environment.
var InternalActionTypes = map[ActionType]bool{
	ActionThink:     true,
	ActionSummarize: true,
}

// SecurityRisk tags an action's blast radius for confirmation policy.
type SecurityRisk string

const (
	RiskLow    SecurityRisk = "low"
	RiskMedium SecurityRisk = "medium"
	RiskHigh   SecurityRisk = "high"
)

// Action is a typed tool call (spec.md section 3).
type Action struct {
	Type                  ActionType      `json:"action_type"`
	CallID                string          `json:"call_id"`
	Description           string          `json:"description,omitempty"`
	SecurityRisk          SecurityRisk    `json:"security_risk,omitempty"`
	RequiresConfirmation  bool            `json:"requires_confirmation,omitempty"`
	Args                  json.RawMessage `json:"args,omitempty"`
	// ErrorMessage is set on synthesized NULL actions (malformed tool call,
	// unknown tool name, schema violation).
	ErrorMessage string `json:"error_message,omitempty"`
}

// FieldType is the JSON Schema primitive type tag used by field metadata.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// FieldSpec describes one argument of an action type; the registry
// synthesizes a JSON Schema from a slice of these (spec.md section 4.2,
// design notes on the "dynamic Action catalog").
type FieldSpec struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Enum        []string
	Default     any
}
