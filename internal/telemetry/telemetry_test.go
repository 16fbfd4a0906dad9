package telemetry

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GAIR-NLP/agentcore/internal/event"
	"github.com/GAIR-NLP/agentcore/internal/logging"
)

func TestStart_LogsPublishedEvents(t *testing.T) {
	event.Reset()
	defer event.Reset()

	var buf bytes.Buffer
	cfg := logging.DefaultConfig()
	cfg.Output = &buf
	logging.Init(cfg)
	defer logging.Init(logging.DefaultConfig())

	stop := Start()
	defer stop()

	event.Publish(event.Event{Type: event.SessionCreated, Data: map[string]any{"computer_ip": "10.0.0.1"}})

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), string(event.SessionCreated))
	}, time.Second, 10*time.Millisecond, "expected a log line for the published event")

	assert.Contains(t, buf.String(), "computer_ip")
}
