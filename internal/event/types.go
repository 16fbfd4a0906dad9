package event

import "github.com/GAIR-NLP/agentcore/pkg/types"

// SessionCreatedData is the data for session.created events (spec.md
// section 4.1, create_session).
type SessionCreatedData struct {
	Info *types.SessionInfo `json:"info"`
}

// SessionClosedData is the data for session.closed events.
type SessionClosedData struct {
	ComputerIP string `json:"computer_ip"`
	SessionID  string `json:"session_id"`
}

// SessionBusyData is the data for session.busy/session.idle events,
// emitted on the ALIVE<->BUSY transitions of the broker's session state
// machine (spec.md section 4.1).
type SessionBusyData struct {
	ComputerIP string `json:"computer_ip"`
	SessionID  string `json:"session_id"`
	Command    string `json:"command,omitempty"`
}

// SessionKilledData is the data for session.killed events (force-kill
// protocol completion, spec.md section 4.1).
type SessionKilledData struct {
	ComputerIP        string   `json:"computer_ip"`
	SessionID         string   `json:"session_id"`
	KilledProcesses   []string `json:"killed_processes,omitempty"`
	Forced            bool     `json:"forced"`
}

// NodeAppendedData is the data for tree.node_appended events (spec.md
// section 4.3).
type NodeAppendedData struct {
	NodeID   string        `json:"node_id"`
	NodeType types.NodeType `json:"node_type"`
	Depth    int           `json:"depth"`
}

// SummarizeTriggeredData is the data for context.summarize_triggered
// events (spec.md section 4.4's should_summarize).
type SummarizeTriggeredData struct {
	CurrentDepth int `json:"current_depth"`
	TotalTokens  int `json:"total_tokens"`
}

// TurnCompletedData is the data for loop.turn_completed events (spec.md
// section 4.5's step()).
type TurnCompletedData struct {
	GlobalStep int             `json:"global_step"`
	ActionType types.ActionType `json:"action_type"`
	Completed  bool            `json:"completed"`
}
