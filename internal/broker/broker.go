package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GAIR-NLP/agentcore/internal/event"
	"github.com/GAIR-NLP/agentcore/internal/ptysession"
	"github.com/GAIR-NLP/agentcore/internal/safety"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// runCommandTimeout is the blocking wait cap on a synchronous run_command
// (spec.md section 4.1 and section 5).
const runCommandTimeout = 10500 * time.Millisecond

// defaultNoOutputSeconds is the 20-second waiting-for-input detection
// window, the same default the worker agent and ptysession use. Nothing in
// this package reads it: no broker operation calls CheckInput.
const defaultNoOutputSeconds = 20

// hostState is the per-computer_ip session table plus its default-session
// pointer (spec.md section 4.1, "a per-host default-session pointer").
type hostState struct {
	mu             sync.Mutex
	sessions       map[string]sessionHandle
	defaultSession string
}

// Broker manages {computer_ip -> {session_id -> Session}} and routes every
// command to the right session on the right host (spec.md section 4.1).
type Broker struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	proxyURL  string
	workspace string
}

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithProxyURL sets the HTTP proxy endpoint used when a remote session is
// created with use_proxy=true.
func WithProxyURL(u string) Option {
	return func(b *Broker) { b.proxyURL = u }
}

// WithWorkspace sets the working directory bound to newly spawned local
// pty sessions (spec.md section 4.1, "binds working directory to
// /workspace").
func WithWorkspace(path string) Option {
	return func(b *Broker) { b.workspace = path }
}

// New creates an empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{hosts: make(map[string]*hostState), workspace: "/workspace"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) host(computerIP string) *hostState {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hosts[computerIP]
	if !ok {
		h = &hostState{sessions: make(map[string]sessionHandle)}
		b.hosts[computerIP] = h
	}
	return h
}

func isLocalHost(computerIP string) bool {
	return computerIP == "127.0.0.1" || computerIP == "localhost" || computerIP == ""
}

// CreateSession creates a pty session on the target host (spec.md section
// 4.1, create_session). A collision on an existing session_id is reported
// as success with a re-use message, not an error.
func (b *Broker) CreateSession(ctx context.Context, computerIP, sessionID string, httpPort int, useProxy bool) (string, string, error) {
	host := b.host(computerIP)
	host.mu.Lock()
	defer host.mu.Unlock()

	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	if _, exists := host.sessions[sessionID]; exists {
		return sessionID, fmt.Sprintf("session %q already exists, reusing it", sessionID), nil
	}

	var handle sessionHandle
	if isLocalHost(computerIP) {
		s, err := ptysession.New(sessionID, "", b.workspace)
		if err != nil {
			return "", "", fmt.Errorf("broker: failed to create local session: %w", err)
		}
		handle = localHandle{s}
	} else {
		remote, err := createRemoteSession(ctx, computerIP, httpPort, sessionID, useProxy, b.proxyURL)
		if err != nil {
			return "", "", fmt.Errorf("broker: failed to create remote session: %w", err)
		}
		handle = remote
	}

	host.sessions[sessionID] = handle
	if host.defaultSession == "" {
		host.defaultSession = sessionID
	}

	event.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{
		Info: &types.SessionInfo{
			ComputerIP:     computerIP,
			SessionID:      sessionID,
			State:          types.SessionAlive,
			CreatedAt:      time.Now(),
			LastActivity:   time.Now(),
			ConnectionType: handle.ConnectionType(),
		},
	}})

	return sessionID, fmt.Sprintf("created session %q on %s", sessionID, hostLabel(computerIP)), nil
}

func hostLabel(computerIP string) string {
	if isLocalHost(computerIP) {
		return "localhost"
	}
	return computerIP
}

// resolveSession returns an existing session, auto-creating it for
// run_command when absent (spec.md section 4.1, "Auto-creates the session
// if absent").
func (b *Broker) resolveSession(ctx context.Context, computerIP, sessionID string, httpPort int, useProxy, autoCreate bool) (sessionHandle, error) {
	host := b.host(computerIP)
	host.mu.Lock()
	h, ok := host.sessions[sessionID]
	host.mu.Unlock()
	if ok {
		return h, nil
	}
	if !autoCreate {
		return nil, fmt.Errorf("broker: session %q not found on %s", sessionID, hostLabel(computerIP))
	}
	if _, _, err := b.CreateSession(ctx, computerIP, sessionID, httpPort, useProxy); err != nil {
		return nil, err
	}
	host.mu.Lock()
	h = host.sessions[sessionID]
	host.mu.Unlock()
	return h, nil
}

// ListSessions reports per-session liveness, idle status, creation time,
// and connection type (spec.md section 4.1, list_sessions). An empty
// computerIP lists every host.
func (b *Broker) ListSessions(computerIP string) []types.SessionInfo {
	b.mu.Lock()
	hosts := make(map[string]*hostState, len(b.hosts))
	for ip, h := range b.hosts {
		if computerIP == "" || ip == computerIP {
			hosts[ip] = h
		}
	}
	b.mu.Unlock()

	var out []types.SessionInfo
	for ip, host := range hosts {
		host.mu.Lock()
		for sid, h := range host.sessions {
			isIdle, _ := b.isIdle(h)
			out = append(out, types.SessionInfo{
				ComputerIP:        ip,
				SessionID:         sid,
				State:             sessionState(h),
				IsIdle:            isIdle,
				CreatedAt:         h.CreatedAt(),
				LastActivity:      h.LastActivity(),
				ConnectionType:    h.ConnectionType(),
				CommandInProgress: h.CommandInProgress(),
			})
		}
		host.mu.Unlock()
	}
	return out
}

func sessionState(h sessionHandle) types.SessionState {
	if !h.Alive() {
		return types.SessionDead
	}
	if h.CommandInProgress() {
		return types.SessionBusy
	}
	return types.SessionAlive
}

// RunCommand validates, then sends, command\n to the session, auto-creating
// it if absent (spec.md section 4.1).
func (b *Broker) RunCommand(ctx context.Context, args types.RunArgs) (*types.CommandOutputPayload, error) {
	if v := safety.ValidateRunCommand(args.Command); v != nil {
		return &types.CommandOutputPayload{SessionID: args.SessionID, ComputerIP: args.ComputerIP}, v
	}

	h, err := b.resolveSession(ctx, args.ComputerIP, args.SessionID, args.HTTPPort, args.UseProxy, true)
	if err != nil {
		return nil, err
	}
	if h.CommandInProgress() {
		return nil, fmt.Errorf("broker: session %q is busy", args.SessionID)
	}

	event.Publish(event.Event{Type: event.SessionBusy, Data: event.SessionBusyData{
		ComputerIP: args.ComputerIP, SessionID: args.SessionID, Command: args.Command,
	}})

	runCtx, cancel := context.WithTimeout(ctx, runCommandTimeout+time.Second)
	defer cancel()
	out, err := h.RunCommand(runCtx, args.Command, args.WaitForCompletion)

	if !args.WaitForCompletion || err == nil {
		event.Publish(event.Event{Type: event.SessionIdle, Data: event.SessionBusyData{
			ComputerIP: args.ComputerIP, SessionID: args.SessionID,
		}})
	}
	if out != nil {
		out.ComputerIP = args.ComputerIP
	}
	return out, err
}

// InputText writes input_text to the session's stdin, only when the
// session is detected as waiting for input (spec.md section 4.1).
func (b *Broker) InputText(ctx context.Context, computerIP, sessionID, inputText string) error {
	h, err := b.resolveSession(ctx, computerIP, sessionID, 0, false, false)
	if err != nil {
		return err
	}
	return h.InputText(inputText)
}

// GetOutput implements get_session_output's slicing contract.
func (b *Broker) GetOutput(ctx context.Context, computerIP, sessionID string, startLines, endLines int, sinceTimestamp *time.Time) (string, error) {
	h, err := b.resolveSession(ctx, computerIP, sessionID, 0, false, false)
	if err != nil {
		return "", err
	}
	return h.Output(startLines, endLines, sinceTimestamp), nil
}

// GetRecentOutput returns output bounded by a wall-clock window.
func (b *Broker) GetRecentOutput(ctx context.Context, computerIP, sessionID string, seconds int) (string, error) {
	h, err := b.resolveSession(ctx, computerIP, sessionID, 0, false, false)
	if err != nil {
		return "", err
	}
	return h.RecentOutput(seconds), nil
}

// Status reports liveness plus a human-readable descendant rationale
// (spec.md section 4.1, session_status).
func (b *Broker) Status(ctx context.Context, computerIP, sessionID string) (alive bool, reason string, err error) {
	h, err := b.resolveSession(ctx, computerIP, sessionID, 0, false, false)
	if err != nil {
		return false, "", err
	}
	if !h.Alive() {
		return false, "session is not alive", nil
	}
	status, err := h.ShellChildrenStatus()
	if err != nil {
		return true, fmt.Sprintf("failed to probe descendants: %v", err), nil
	}
	return true, status.Reason, nil
}

// Idle reports whether the session has any active descendant process
// (spec.md section 4.1, session_idle).
func (b *Broker) Idle(ctx context.Context, computerIP, sessionID string) (bool, string, error) {
	h, err := b.resolveSession(ctx, computerIP, sessionID, 0, false, false)
	if err != nil {
		return false, "", err
	}
	isIdle, reason := b.isIdle(h)
	return isIdle, reason, nil
}

func (b *Broker) isIdle(h sessionHandle) (bool, string) {
	if !h.Alive() {
		return true, "session is not alive"
	}
	status, err := h.ShellChildrenStatus()
	if err != nil {
		return true, fmt.Sprintf("failed to probe descendants: %v", err)
	}
	if status.Completed {
		return true, status.Reason
	}
	return false, fmt.Sprintf("session is busy, because: %s", status.Reason)
}

// ClearBuffer empties a session's output ring buffer.
func (b *Broker) ClearBuffer(ctx context.Context, computerIP, sessionID string) error {
	h, err := b.resolveSession(ctx, computerIP, sessionID, 0, false, false)
	if err != nil {
		return err
	}
	h.ClearBuffer()
	return nil
}

// CloseSession terminates and forgets a single session.
func (b *Broker) CloseSession(ctx context.Context, computerIP, sessionID string) error {
	host := b.host(computerIP)
	host.mu.Lock()
	h, ok := host.sessions[sessionID]
	if ok {
		delete(host.sessions, sessionID)
		if host.defaultSession == sessionID {
			host.defaultSession = ""
		}
	}
	host.mu.Unlock()
	if !ok {
		return fmt.Errorf("broker: session %q not found on %s", sessionID, hostLabel(computerIP))
	}
	err := h.Close()
	event.Publish(event.Event{Type: event.SessionClosed, Data: event.SessionClosedData{
		ComputerIP: computerIP, SessionID: sessionID,
	}})
	return err
}

// CloseAllSessions closes every session, optionally scoped to one host.
func (b *Broker) CloseAllSessions(ctx context.Context, computerIP string) []error {
	b.mu.Lock()
	hosts := make(map[string]*hostState, len(b.hosts))
	for ip, h := range b.hosts {
		if computerIP == "" || ip == computerIP {
			hosts[ip] = h
		}
	}
	b.mu.Unlock()

	var errs []error
	for ip, host := range hosts {
		host.mu.Lock()
		ids := make([]string, 0, len(host.sessions))
		for sid := range host.sessions {
			ids = append(ids, sid)
		}
		host.mu.Unlock()
		for _, sid := range ids {
			if err := b.CloseSession(ctx, ip, sid); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

// KillSessionProcesses implements the force-kill protocol (spec.md section
// 4.1): force=false sends TERM then KILL to survivors after 1s; force=true
// sends KILL directly.
func (b *Broker) KillSessionProcesses(ctx context.Context, computerIP, sessionID string, force bool) (killed, failed []string, signalUsed string, err error) {
	h, err := b.resolveSession(ctx, computerIP, sessionID, 0, false, false)
	if err != nil {
		return nil, nil, "", err
	}
	killed, failed, signalUsed = h.KillProcesses(force)
	event.Publish(event.Event{Type: event.SessionKilled, Data: event.SessionKilledData{
		ComputerIP: computerIP, SessionID: sessionID, KilledProcesses: killed, Forced: force,
	}})
	return killed, failed, signalUsed, nil
}
