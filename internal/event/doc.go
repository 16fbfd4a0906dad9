/*
Package event provides a type-safe pub/sub bus used to decouple the
Remote Session Broker, Context Manager, and ReAct loop from the
subscribers that observe them.

Publish marshals the event to JSON and writes it to watermill's gochannel
pub/sub under a topic named by its EventType, plus a wildcard topic every
event also goes to. Subscribe/SubscribeAll each run their own goroutine
reading from that transport and unmarshal messages back into Events
before calling the subscriber, so delivery is always asynchronous -- a
subscriber never runs on the publisher's goroutine.

Event categories:

Session events (published by internal/broker):
  - session.created, session.closed
  - session.busy, session.idle
  - session.killed

Tree/loop events (published by internal/contextmgr and internal/reactagent):
  - tree.node_appended
  - context.summarize_triggered
  - loop.turn_completed

Publishing:

	event.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: info}})

internal/telemetry.Start subscribes to every event and writes one
structured log line per event; it is the bus's one real consumer, wired
from cmd/agentcore.

Reset() closes and replaces the global bus; use it between tests.
*/
package event
