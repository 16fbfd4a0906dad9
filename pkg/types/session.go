package types

import "time"

// SessionState is the per-session state machine (spec.md section 4.1).
type SessionState string

const (
	SessionNew    SessionState = "new"
	SessionAlive  SessionState = "alive"
	SessionBusy   SessionState = "busy"
	SessionClosed SessionState = "closed"
	SessionDead   SessionState = "dead"
)

// ConnectionType distinguishes a locally spawned pty from one reached over
// the HTTP Session Protocol on a remote worker host.
type ConnectionType string

const (
	ConnectionLocal  ConnectionType = "local"
	ConnectionRemote ConnectionType = "remote"
)

// OutputLine is one entry of a session's ring-buffered output.
type OutputLine struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// SessionInfo is the liveness/identity summary returned by list_sessions.
type SessionInfo struct {
	ComputerIP       string         `json:"computer_ip"`
	SessionID        string         `json:"session_id"`
	State            SessionState   `json:"state"`
	IsIdle           bool           `json:"is_idle"`
	CreatedAt        time.Time      `json:"created_at"`
	LastActivity     time.Time      `json:"last_activity"`
	ConnectionType   ConnectionType `json:"connection_type"`
	CommandInProgress bool          `json:"command_in_progress"`
}

// ComputerConfig describes one worker host in the pool (spec.md section
// 4.4, prompt construction references ip/port/type/internet capability).
type ComputerConfig struct {
	IP       string `json:"ip" yaml:"ip"`
	Port     int    `json:"port" yaml:"port"`
	Type     string `json:"type" yaml:"type"` // "cpu" | "gpu"
	Internet bool   `json:"internet" yaml:"internet"`
	UseProxy bool   `json:"use_proxy" yaml:"use_proxy"`
}
