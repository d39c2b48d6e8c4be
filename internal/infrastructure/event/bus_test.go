package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	t.Run("delivers only to handlers of the published type", func(t *testing.T) {
		bus := NewBus(nil)

		var rates, queue []Event
		bus.Subscribe(func(evt Event) { rates = append(rates, evt) }, TypeRateRefreshed)
		bus.Subscribe(func(evt Event) { queue = append(queue, evt) }, TypeQueueOffline)

		bus.Publish(New(TypeRateRefreshed, map[string]any{"rate": "32.5"}))

		require.Len(t, rates, 1)
		assert.Equal(t, "32.5", rates[0].Fields["rate"])
		assert.False(t, rates[0].OccurredAt.IsZero())
		assert.Empty(t, queue)
	})

	t.Run("one handler can watch several types", func(t *testing.T) {
		bus := NewBus(nil)

		var seen []string
		bus.Subscribe(func(evt Event) { seen = append(seen, evt.Type) },
			TypeQueueOnline, TypeQueueOffline)

		bus.Publish(New(TypeQueueOffline, nil))
		bus.Publish(New(TypeQueueOnline, nil))

		assert.Equal(t, []string{TypeQueueOffline, TypeQueueOnline}, seen)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		bus := NewBus(nil)

		count := 0
		unsubscribe := bus.Subscribe(func(Event) { count++ }, TypeClaimsUpdated)

		bus.Publish(New(TypeClaimsUpdated, nil))
		unsubscribe()
		bus.Publish(New(TypeClaimsUpdated, nil))

		assert.Equal(t, 1, count)
	})

	t.Run("a panicking handler never affects its siblings", func(t *testing.T) {
		bus := NewBus(nil)

		bus.Subscribe(func(Event) { panic("toast renderer blew up") }, TypeActionFailed)
		delivered := false
		bus.Subscribe(func(Event) { delivered = true }, TypeActionFailed)

		require.NotPanics(t, func() {
			bus.Publish(New(TypeActionFailed, map[string]any{"action_id": "a-1"}))
		})
		assert.True(t, delivered)
	})

	t.Run("publish with no subscribers is a no-op", func(t *testing.T) {
		bus := NewBus(nil)
		assert.NotPanics(t, func() { bus.Publish(New(TypeRateStaleServed, nil)) })
	})
}
