package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/GAIR-NLP/agentcore/internal/ptysession"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// remoteHandle speaks the HTTP Session Protocol (spec.md section 6) to a
// worker-agent process on a remote host. Requests optionally route through
// a proxy, in which case X-TARGET-HOST identifies the real destination.
type remoteHandle struct {
	client     *http.Client
	baseURL    string // http://<proxy-or-host>:<port>
	targetHost string // set only when proxying; becomes X-TARGET-HOST
	sessionID  string
}

func newRemoteHandle(computerIP string, httpPort int, sessionID string, useProxy bool, proxyURL string) *remoteHandle {
	h := &remoteHandle{
		client:    &http.Client{Timeout: 15 * time.Second},
		sessionID: sessionID,
	}
	if useProxy && proxyURL != "" {
		h.baseURL = proxyURL
		h.targetHost = fmt.Sprintf("%s:%d", computerIP, httpPort)
	} else {
		h.baseURL = fmt.Sprintf("http://%s:%d", computerIP, httpPort)
	}
	return h
}

func (h *remoteHandle) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := h.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("broker: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("broker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.targetHost != "" {
		req.Header.Set("X-TARGET-HOST", h.targetHost)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("broker: remote host unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("broker: reading remote response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("broker: remote host returned %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("broker: decoding remote response: %w", err)
		}
	}
	return nil
}

func (h *remoteHandle) RunCommand(ctx context.Context, command string, waitForCompletion bool) (*types.CommandOutputPayload, error) {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := h.do(ctx, http.MethodPost, "/api/sessions/"+h.sessionID+"/command", nil,
		map[string]string{"command": command}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return &types.CommandOutputPayload{SessionID: h.sessionID}, fmt.Errorf("%s", resp.Message)
	}
	if !waitForCompletion {
		return &types.CommandOutputPayload{Async: true, SessionID: h.sessionID}, nil
	}

	deadline := time.Now().Add(10500 * time.Millisecond)
	for time.Now().Before(deadline) {
		status, err := h.ShellChildrenStatus()
		if err == nil && status.Completed {
			return &types.CommandOutputPayload{Output: h.RecentOutput(0), SessionID: h.sessionID}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	h.KillProcesses(false)
	return &types.CommandOutputPayload{Output: h.RecentOutput(0), Killed: true, SessionID: h.sessionID},
		fmt.Errorf("command %q killed. If you want to run long commands, use wait_for_completion=false", command)
}

func (h *remoteHandle) InputText(text string) error {
	var resp struct {
		Success     bool   `json:"success"`
		InputStatus string `json:"input_check"`
	}
	err := h.do(context.Background(), http.MethodPost, "/api/sessions/"+h.sessionID+"/input", nil,
		map[string]string{"input": text}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("broker: remote session not waiting for input: %s", resp.InputStatus)
	}
	return nil
}

func (h *remoteHandle) Output(startLines, endLines int, sinceTimestamp *time.Time) string {
	q := url.Values{}
	if startLines > 0 {
		q.Set("start_lines", strconv.Itoa(startLines))
	}
	if endLines > 0 {
		q.Set("end_lines", strconv.Itoa(endLines))
	}
	if sinceTimestamp != nil {
		q.Set("since_timestamp", strconv.FormatFloat(float64(sinceTimestamp.UnixNano())/1e9, 'f', 6, 64))
	}
	var resp struct {
		Success bool               `json:"success"`
		Output  []types.OutputLine `json:"output"`
	}
	if err := h.do(context.Background(), http.MethodGet, "/api/sessions/"+h.sessionID+"/output", q, nil, &resp); err != nil {
		return ""
	}
	var buf bytes.Buffer
	for _, l := range resp.Output {
		buf.WriteString(l.Content)
		buf.WriteByte('\n')
	}
	return buf.String()
}

func (h *remoteHandle) RecentOutput(seconds int) string {
	cutoff := time.Now().Add(-time.Duration(seconds) * time.Second)
	return h.Output(0, 0, &cutoff)
}

func (h *remoteHandle) ClearBuffer() {
	_ = h.do(context.Background(), http.MethodDelete, "/api/sessions/"+h.sessionID+"/output", nil, nil, nil)
}

func (h *remoteHandle) Close() error {
	return h.do(context.Background(), http.MethodDelete, "/api/sessions/"+h.sessionID, nil, nil, nil)
}

func (h *remoteHandle) Alive() bool {
	var resp struct {
		Success  bool `json:"success"`
		IsAlive  bool `json:"is_alive"`
	}
	if err := h.do(context.Background(), http.MethodGet, "/api/sessions/"+h.sessionID+"/status", nil, nil, &resp); err != nil {
		return false
	}
	return resp.IsAlive
}

func (h *remoteHandle) CommandInProgress() bool {
	status, err := h.ShellChildrenStatus()
	if err != nil {
		return false
	}
	return !status.Completed
}

func (h *remoteHandle) CreatedAt() time.Time {
	var resp struct {
		CreatedAt float64 `json:"created_at"`
	}
	if err := h.do(context.Background(), http.MethodGet, "/api/sessions/"+h.sessionID+"/status", nil, nil, &resp); err != nil {
		return time.Time{}
	}
	return time.Unix(0, int64(resp.CreatedAt*1e9))
}

func (h *remoteHandle) LastActivity() time.Time {
	var resp struct {
		LastActivity float64 `json:"last_activity"`
	}
	if err := h.do(context.Background(), http.MethodGet, "/api/sessions/"+h.sessionID+"/status", nil, nil, &resp); err != nil {
		return time.Time{}
	}
	return time.Unix(0, int64(resp.LastActivity*1e9))
}

func (h *remoteHandle) ShellChildrenStatus() (ptysession.ShellChildrenStatus, error) {
	var resp struct {
		Success        bool `json:"success"`
		ChildrenStatus struct {
			Completed     bool     `json:"completed"`
			Reason        string   `json:"reason"`
			ChildrenCount int      `json:"children_count"`
			ChildrenInfo  []string `json:"children_info"`
		} `json:"children_status"`
	}
	if err := h.do(context.Background(), http.MethodGet, "/api/sessions/"+h.sessionID+"/shell_children", nil, nil, &resp); err != nil {
		return ptysession.ShellChildrenStatus{}, err
	}
	return ptysession.ShellChildrenStatus{
		Completed:     resp.ChildrenStatus.Completed,
		Reason:        resp.ChildrenStatus.Reason,
		ChildrenCount: resp.ChildrenStatus.ChildrenCount,
		ChildrenInfo:  resp.ChildrenStatus.ChildrenInfo,
	}, nil
}

func (h *remoteHandle) CheckInput(noOutputSeconds int) (waiting bool, reason string, canInput bool, secondsSinceOutput *float64) {
	q := url.Values{"no_output_seconds": {strconv.Itoa(noOutputSeconds)}}
	var resp struct {
		Success     bool `json:"success"`
		InputStatus struct {
			WaitingForInput    bool     `json:"waiting_for_input"`
			Reason             string   `json:"reason"`
			CanInput           bool     `json:"can_input"`
			SecondsSinceOutput *float64 `json:"seconds_since_output,omitempty"`
		} `json:"input_status"`
	}
	if err := h.do(context.Background(), http.MethodGet, "/api/sessions/"+h.sessionID+"/check_input", q, nil, &resp); err != nil {
		return false, err.Error(), false, nil
	}
	return resp.InputStatus.WaitingForInput, resp.InputStatus.Reason, resp.InputStatus.CanInput, resp.InputStatus.SecondsSinceOutput
}

func (h *remoteHandle) KillProcesses(force bool) (killed []string, failed []string, signalUsed string) {
	var resp struct {
		Success         bool     `json:"success"`
		KilledProcesses []string `json:"killed_processes"`
		FailedKills     []string `json:"failed_kills"`
		SignalUsed      string   `json:"signal_used"`
	}
	if err := h.do(context.Background(), http.MethodPost, "/api/sessions/"+h.sessionID+"/kill_processes", nil,
		map[string]bool{"force": force}, &resp); err != nil {
		return nil, nil, ""
	}
	return resp.KilledProcesses, resp.FailedKills, resp.SignalUsed
}

func (h *remoteHandle) ConnectionType() types.ConnectionType { return types.ConnectionRemote }

// createRemoteSession issues the create_session call against a worker host
// before a remoteHandle is usable for anything else.
func createRemoteSession(ctx context.Context, computerIP string, httpPort int, sessionID string, useProxy bool, proxyURL string) (*remoteHandle, error) {
	h := newRemoteHandle(computerIP, httpPort, sessionID, useProxy, proxyURL)
	var resp struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
	}
	if err := h.do(ctx, http.MethodPost, "/api/sessions", nil,
		map[string]string{"session_id": sessionID}, &resp); err != nil {
		return nil, err
	}
	h.sessionID = resp.SessionID
	return h, nil
}
