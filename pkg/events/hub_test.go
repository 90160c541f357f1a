package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/smilelock/pkg/unlock"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(StateProgress, StateEvent{State: unlock.Snapshot{Phase: unlock.PhaseDetecting, Progress: 40}, Ts: 1})

	ev := <-ch
	assert.Equal(t, StateProgress, ev.Name)
	payload, err := DecodeAs[StateEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, unlock.PhaseDetecting, payload.State.Phase)
	assert.Equal(t, 40, payload.State.Progress)
	assert.Equal(t, int64(1), payload.Ts)
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < 100; i++ {
		h.Publish(StateProgress, i)
	}
	assert.Len(t, ch, cap(ch))
}

func TestCloseEndsSubscribers(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	h.Close()
	_, ok := <-ch
	assert.False(t, ok)

	// Unsubscribing after close must not double close.
	h.Unsubscribe(ch)

	late := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestDecodeAsEmpty(t *testing.T) {
	v, err := DecodeAs[StateEvent](Event{Name: Hello})
	require.NoError(t, err)
	assert.Equal(t, StateEvent{}, v)
}

func TestNilHubPublish(t *testing.T) {
	var h *EventHub
	h.Publish(StatePhase, nil)
}
