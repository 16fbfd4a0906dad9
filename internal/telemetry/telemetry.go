// Package telemetry is the one real subscriber driving internal/event's
// bus: it turns every session, tree, and loop event the broker, context
// manager, and ReAct loop publish into a structured log line.
package telemetry

import (
	"github.com/GAIR-NLP/agentcore/internal/event"
	"github.com/GAIR-NLP/agentcore/internal/logging"
)

// Start subscribes to every event type and logs it. Returns an
// unsubscribe function the caller should defer.
func Start() func() {
	return event.SubscribeAll(logEvent)
}

func logEvent(e event.Event) {
	logging.Info().
		Str("event_type", string(e.Type)).
		Interface("data", e.Data).
		Msg("event")
}
