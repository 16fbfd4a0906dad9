package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Observation is the result of dispatching an Action (spec.md section 3).
// It is modeled as a sum type with a common header: every observation kind
// carries these fields, and Payload holds the kind-specific data as a raw
// JSON blob so the registry's dispatcher does not need a closed switch over
// every observation kind (design notes, "polymorphic Observation payloads").
type Observation struct {
	ToolCallID   string          `json:"tool_call_id"`
	ToolName     string          `json:"tool_name"`
	Success      bool            `json:"success"`
	Message      string          `json:"message,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// String renders a human-readable report suitable for inclusion in the
// next LLM message (spec.md section 3).
func (o *Observation) String() string {
	if o == nil {
		return ""
	}
	if o.Success {
		if o.Message != "" {
			return o.Message
		}
		return "OK"
	}
	if o.ErrorMessage != "" {
		return fmt.Sprintf("Error: %s", o.ErrorMessage)
	}
	return "Error: unknown failure"
}

// NewSuccess builds a successful observation with an optional typed
// payload (marshaled to JSON; marshal failure degrades to no payload
// rather than panicking, since a turn must never crash on report-building).
func NewSuccess(toolCallID, toolName, message string, payload any) *Observation {
	obs := &Observation{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Success:    true,
		Message:    message,
		Timestamp:  time.Now(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			obs.Payload = raw
		}
	}
	return obs
}

// NewFailure builds a failure observation.
func NewFailure(toolCallID, toolName, errMessage string) *Observation {
	return &Observation{
		ToolCallID:   toolCallID,
		ToolName:     toolName,
		Success:      false,
		ErrorMessage: errMessage,
		Timestamp:    time.Now(),
	}
}

// CommandOutputPayload is the payload of a RUN observation.
type CommandOutputPayload struct {
	Output    string `json:"output"`
	ExitCode  int    `json:"exit_code,omitempty"`
	Killed    bool   `json:"killed,omitempty"`
	Async     bool   `json:"async,omitempty"`
	SessionID string `json:"session_id"`
	ComputerIP string `json:"computer_ip"`
}

// SessionStatusPayload is the payload of session status/idle observations.
type SessionStatusPayload struct {
	IsAlive      bool     `json:"is_alive"`
	IsIdle       bool     `json:"is_idle"`
	Reason       string   `json:"reason,omitempty"`
	Descendants  []string `json:"descendants,omitempty"`
	LastActivity int64    `json:"last_activity,omitempty"`
}

// SessionListPayload is the payload of a LIST_SESSIONS observation.
type SessionListPayload struct {
	Sessions []SessionInfo `json:"sessions"`
}

// EvalPayload is the payload of an EVAL observation.
type EvalPayload struct {
	Score   float64 `json:"score"`
	Attempt int     `json:"attempt"`
	Passed  bool    `json:"passed"`
}

// SearchPayload is the payload of a SEARCH_DIR observation.
type SearchPayload struct {
	Matches []string `json:"matches"`
}

// WebPayload is the payload of a WEB_BROWSE observation.
type WebPayload struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}
