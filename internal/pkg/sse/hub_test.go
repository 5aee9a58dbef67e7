package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishReachesEveryChannelOfSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cleanup := hub.Subscribe("staff-1", "office")
	defer cleanup()

	hub.Publish("office", Event{Event: "payment_generated", Data: "p-1"})
	hub.Publish("staff-1", Event{Event: "payment_paid", Data: "p-1"})
	hub.Publish("staff-2", Event{Event: "payment_paid", Data: "p-2"})

	first := <-ch
	second := <-ch
	assert.Equal(t, "office", first.RecipientID)
	assert.Equal(t, "payment_generated", first.Event)
	assert.Equal(t, "staff-1", second.RecipientID)
	assert.Len(t, ch, 0)
}

func TestHub_CleanupRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cleanup := hub.Subscribe("staff-1")
	require.Equal(t, 1, hub.SubscriberCount("staff-1"))

	cleanup()
	cleanup()

	assert.Equal(t, 0, hub.SubscriberCount("staff-1"))
	_, open := <-ch
	assert.False(t, open)

	// publishing after cleanup must not panic on the closed channel
	hub.Publish("staff-1", Event{Event: "payment_paid"})
}

func TestHub_FullBufferDropsEvents(t *testing.T) {
	hub := NewHub()
	ch, cleanup := hub.Subscribe("office")
	defer cleanup()

	for i := 0; i < hub.bufferSize+5; i++ {
		hub.Publish("office", Event{Event: "collection_recorded"})
	}
	assert.Len(t, ch, hub.bufferSize)
}
