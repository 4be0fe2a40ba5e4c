package broadcast

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/coverpath/coverpath/pkg/events"
	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestPublishDeliversToMatchingSubscribersOnly(t *testing.T) {
	b := NewBroadcaster(testLogger())

	var gotA, gotB []events.EventType

	b.Subscribe("exec-a", func(event events.Event) error {
		gotA = append(gotA, event.GetType())

		return nil
	})
	b.Subscribe("exec-b", func(event events.Event) error {
		gotB = append(gotB, event.GetType())

		return nil
	})

	b.Publish("exec-a", events.NewBaseEvent(events.StepStartedEvent, "exec-a"))

	assert.Equal(t, []events.EventType{events.StepStartedEvent}, gotA)
	assert.Empty(t, gotB)
}

func TestWildcardSubscriberSeesEveryExecution(t *testing.T) {
	b := NewBroadcaster(testLogger())

	var got []string

	b.Subscribe(AllExecutions, func(event events.Event) error {
		got = append(got, event.GetExecutionID())

		return nil
	})

	b.Publish("exec-a", events.NewBaseEvent(events.ExecutionStartedEvent, "exec-a"))
	b.Publish("exec-b", events.NewBaseEvent(events.ExecutionStartedEvent, "exec-b"))

	assert.Equal(t, []string{"exec-a", "exec-b"}, got)
}

func TestPanickingSubscriberIsDroppedAndOthersUnaffected(t *testing.T) {
	b := NewBroadcaster(testLogger())

	delivered := 0

	b.Subscribe("exec-a", func(events.Event) error {
		panic("boom")
	})
	b.Subscribe("exec-a", func(events.Event) error {
		delivered++

		return nil
	})

	b.Publish("exec-a", events.NewBaseEvent(events.StepStartedEvent, "exec-a"))
	b.Publish("exec-a", events.NewBaseEvent(events.StepCompletedEvent, "exec-a"))

	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, b.SubscriberCount("exec-a"))
}

func TestErroringSubscriberIsDropped(t *testing.T) {
	b := NewBroadcaster(testLogger())

	b.Subscribe("exec-a", func(events.Event) error {
		return errors.New("consumer gone")
	})

	b.Publish("exec-a", events.NewBaseEvent(events.StepStartedEvent, "exec-a"))

	assert.Equal(t, 0, b.SubscriberCount("exec-a"))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster(testLogger())

	delivered := 0

	sub := b.Subscribe("exec-a", func(events.Event) error {
		delivered++

		return nil
	})

	b.Publish("exec-a", events.NewBaseEvent(events.StepStartedEvent, "exec-a"))
	b.Unsubscribe(sub)
	b.Publish("exec-a", events.NewBaseEvent(events.StepCompletedEvent, "exec-a"))

	assert.Equal(t, 1, delivered)
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	b := NewBroadcaster(testLogger())

	b.Publish("exec-a", events.NewBaseEvent(events.ExecutionStartedEvent, "exec-a"))

	delivered := 0

	b.Subscribe("exec-a", func(events.Event) error {
		delivered++

		return nil
	})

	assert.Equal(t, 0, delivered)
}
