// Package event provides a pub/sub event system for the broker, context
// manager, and ReAct loop using watermill.
package event

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType represents the type of event.
type EventType string

const (
	SessionCreated     EventType = "session.created"
	SessionClosed      EventType = "session.closed"
	SessionBusy        EventType = "session.busy"
	SessionIdle        EventType = "session.idle"
	SessionKilled      EventType = "session.killed"
	NodeAppended       EventType = "tree.node_appended"
	SummarizeTriggered EventType = "context.summarize_triggered"
	TurnCompleted      EventType = "loop.turn_completed"
)

// wildcardTopic is the topic every event is additionally published to, so
// SubscribeAll can watch one topic instead of every EventType.
const wildcardTopic = "*"

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// Bus is the event bus. Publish/Subscribe are both routed through
// watermill's gochannel pub/sub: Publish marshals the event and writes it
// to the topic named by its EventType (plus the wildcard topic), and each
// Subscribe/SubscribeAll call runs a goroutine consuming that topic's
// channel and unmarshaling messages back into typed Events.
type Bus struct {
	pubsub *gochannel.GoChannel
	ctx    context.Context
	cancel context.CancelFunc
}

// globalBus is the default event bus instance.
var globalBus = newBus()

func newBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func Subscribe(eventType EventType, fn Subscriber) func() {
	return globalBus.Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	return b.subscribeTopic(string(eventType), fn)
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func SubscribeAll(fn Subscriber) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	return b.subscribeTopic(wildcardTopic, fn)
}

func (b *Bus) subscribeTopic(topic string, fn Subscriber) func() {
	ctx, cancel := context.WithCancel(b.ctx)
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return func() {}
	}
	go func() {
		for msg := range messages {
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err == nil {
				fn(e)
			}
			msg.Ack()
		}
	}()
	return cancel
}

// Publish sends an event to every subscriber of its EventType and to every
// SubscribeAll subscriber.
func Publish(event Event) {
	globalBus.Publish(event)
}

func (b *Bus) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	_ = b.pubsub.Publish(string(event.Type), msg)
	_ = b.pubsub.Publish(wildcardTopic, msg)
}

// NewBus creates a new event bus instance.
func NewBus() *Bus {
	return newBus()
}

// Reset replaces the global bus with a fresh one (for testing).
func Reset() {
	_ = globalBus.Close()
	globalBus = newBus()
}

// Close stops delivery to every subscriber and closes the underlying
// gochannel pub/sub.
func (b *Bus) Close() error {
	b.cancel()
	return b.pubsub.Close()
}

// PubSub returns the underlying watermill GoChannel, for tests that want
// to assert against the transport directly.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// PubSub returns the global bus's underlying watermill GoChannel.
func PubSub() *gochannel.GoChannel {
	return globalBus.PubSub()
}
