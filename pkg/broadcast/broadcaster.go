// Package broadcast delivers execution lifecycle events to in-process
// subscribers, isolating each subscriber from the others' failures.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coverpath/coverpath/pkg/eventbus"
	"github.com/coverpath/coverpath/pkg/events"
)

// AllExecutions subscribes a handler to every execution's events, for
// workflow-level listeners that cannot know execution ids up front.
const AllExecutions = "*"

// Handler receives one event. Returning an error (or panicking) drops
// the subscription; handlers must not block, slow consumers should
// buffer on their side.
type Handler func(event events.Event) error

// Subscription is the registration handle returned by Subscribe and
// accepted by Unsubscribe.
type Subscription struct {
	ExecutionID string

	handler Handler
}

// Broadcaster fans every published event out to the subscribers
// registered for that execution id (plus wildcard subscribers).
// Delivery is best-effort and in publish order per execution; there is
// no buffering or replay for late subscribers. An optional relay
// forwards every event to the watermill event bus for out-of-process
// consumers without blocking the publisher.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
	relay       eventbus.EventPublisher
	logger      *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]map[*Subscription]struct{}),
		logger:      logger.With("module", "broadcaster"),
	}
}

// WithRelay attaches an event bus publisher that mirrors every
// published event. Relay failures are logged and never surface to the
// sequencer.
func (b *Broadcaster) WithRelay(relay eventbus.EventPublisher) *Broadcaster {
	b.relay = relay

	return b
}

func (b *Broadcaster) Subscribe(executionID string, handler Handler) *Subscription {
	sub := &Subscription{ExecutionID: executionID, handler: handler}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[executionID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.subscribers[executionID] = subs
	}

	subs[sub] = struct{}{}

	return sub
}

func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sub.ExecutionID]
	if !ok {
		return
	}

	delete(subs, sub)

	if len(subs) == 0 {
		delete(b.subscribers, sub.ExecutionID)
	}
}

// Publish delivers the event to every subscriber currently registered
// for executionID and to wildcard subscribers. A failing subscriber is
// dropped; the remaining subscribers and the caller are unaffected.
func (b *Broadcaster) Publish(executionID string, event events.Event) {
	b.mu.RLock()

	targets := make([]*Subscription, 0, len(b.subscribers[executionID])+len(b.subscribers[AllExecutions]))
	for sub := range b.subscribers[executionID] {
		targets = append(targets, sub)
	}

	for sub := range b.subscribers[AllExecutions] {
		targets = append(targets, sub)
	}

	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(sub, event)
	}

	if b.relay != nil {
		go b.relayEvent(executionID, event)
	}
}

func (b *Broadcaster) deliver(sub *Subscription, event events.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("Dropping subscriber after panic", "execution_id", sub.ExecutionID, "event_type", event.GetType(), "panic", r)
			b.Unsubscribe(sub)
		}
	}()

	err := sub.handler(event)
	if err != nil {
		b.logger.Warn("Dropping subscriber after delivery failure", "execution_id", sub.ExecutionID, "event_type", event.GetType(), "error", err)
		b.Unsubscribe(sub)
	}
}

func (b *Broadcaster) relayEvent(executionID string, event events.Event) {
	err := b.relay.Publish(context.Background(), executionID, event)
	if err != nil {
		b.logger.Warn("Failed to relay event to bus", "execution_id", executionID, "event_type", event.GetType(), "error", err)
	}
}

// SubscriberCount reports the number of live subscriptions for an
// execution id, wildcard subscribers excluded.
func (b *Broadcaster) SubscriberCount(executionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[executionID])
}
