package events

import (
	"encoding/json"
	"sync"
)

type EventHub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewEventHub() *EventHub { return &EventHub{subs: make(map[chan Event]struct{})} }

// Subscribe returns a buffered channel receiving every published event. The
// channel is already closed if the hub is closed.
func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[ch] = struct{}{}
	}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := Event{Name: name, Data: b}
	h.mu.RLock()
	for ch := range h.subs {
		// Non-blocking send; drop if subscriber is slow
		select {
		case ch <- msg:
		default:
		}
	}
	h.mu.RUnlock()
}

// Close drops every subscriber, closing their channels so that open streams
// end. Later subscriptions get a closed channel.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
