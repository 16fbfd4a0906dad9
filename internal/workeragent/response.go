package workeragent

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["success"] = true
	writeJSON(w, http.StatusOK, data)
}

func writeFailure(w http.ResponseWriter, status int, message string, extra map[string]any) {
	data := map[string]any{"success": false, "message": message}
	for k, v := range extra {
		data[k] = v
	}
	writeJSON(w, status, data)
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err.Error() == "EOF" {
			return nil
		}
		return err
	}
	return nil
}

// linesFromString re-splits a backend's joined output string back into
// OutputLine records for the wire response. Per-line timestamps are not
// recoverable once joined, so every line in a given response shares the
// call's timestamp; clients only rely on content and relative ordering.
func linesFromString(s string) []types.OutputLine {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []types.OutputLine{}
	}
	now := time.Now()
	parts := strings.Split(s, "\n")
	lines := make([]types.OutputLine, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, types.OutputLine{Timestamp: now, Content: p})
	}
	return lines
}
