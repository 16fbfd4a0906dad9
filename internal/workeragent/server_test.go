package workeragent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WorkspacePath = t.TempDir()
	cfg.Shell = "/bin/sh"
	s := New(cfg)
	t.Cleanup(func() {
		_ = s.Shutdown(nil)
	})
	return s
}

func doRequest(t *testing.T, s *Server, method, path string, body any) map[string]any {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleTimestamp(t *testing.T) {
	s := newTestServer(t)
	out := doRequest(t, s, http.MethodGet, "/timestamp", nil)
	require.NotNil(t, out["timestamp"])
}

func TestCreateSessionAndRunCommand(t *testing.T) {
	s := newTestServer(t)

	created := doRequest(t, s, http.MethodPost, "/api/sessions", map[string]string{"session_id": "sid-1"})
	require.Equal(t, true, created["success"])
	require.Equal(t, "sid-1", created["session_id"])

	ran := doRequest(t, s, http.MethodPost, "/api/sessions/sid-1/command", map[string]string{"command": "echo hello"})
	require.Equal(t, true, ran["success"])

	time.Sleep(300 * time.Millisecond)

	out := doRequest(t, s, http.MethodGet, "/api/sessions/sid-1/output?start_lines=50", nil)
	require.Equal(t, true, out["success"])
}

func TestCreateSessionCollisionReusesExisting(t *testing.T) {
	s := newTestServer(t)
	first := doRequest(t, s, http.MethodPost, "/api/sessions", map[string]string{"session_id": "dup"})
	require.Equal(t, "dup", first["session_id"])
	second := doRequest(t, s, http.MethodPost, "/api/sessions", map[string]string{"session_id": "dup"})
	require.Equal(t, "dup", second["session_id"])
}

func TestSessionNotFoundReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSessionRemovesIt(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/sessions", map[string]string{"session_id": "to-delete"})

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/to-delete", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/sessions/to-delete/status", nil)
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestShellChildrenAndCheckInput(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/sessions", map[string]string{"session_id": "sid-2"})
	doRequest(t, s, http.MethodPost, "/api/sessions/sid-2/command", map[string]string{"command": "echo hi"})
	time.Sleep(300 * time.Millisecond)

	children := doRequest(t, s, http.MethodGet, "/api/sessions/sid-2/shell_children", nil)
	require.Equal(t, true, children["success"])

	status := doRequest(t, s, http.MethodGet, "/api/sessions/sid-2/check_input?no_output_seconds=1", nil)
	require.Equal(t, true, status["success"])
}

func TestKillProcesses(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/sessions", map[string]string{"session_id": "sid-3"})
	doRequest(t, s, http.MethodPost, "/api/sessions/sid-3/command", map[string]string{"command": "sleep 5"})
	time.Sleep(200 * time.Millisecond)

	out := doRequest(t, s, http.MethodPost, "/api/sessions/sid-3/kill_processes", map[string]bool{"force": true})
	require.Equal(t, true, out["success"])
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "agentcore_worker")
}
