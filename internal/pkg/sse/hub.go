package sse

import (
	"sync"
)

// Event is one frame delivered to the subscribers of a recipient channel
type Event struct {
	RecipientID string
	Event       string
	Data        interface{}
}

// Hub fans events out to stream subscribers keyed by recipient channel
// (a collector staff ID or the shared office channel).
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	bufferSize  int
}

// NewHub creates a new SSE Hub instance
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		bufferSize:  10,
	}
}

// Subscribe registers a subscriber on every given channel and returns one
// merged event channel plus its cleanup function
func (h *Hub) Subscribe(recipientIDs ...string) (chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.bufferSize)

	for _, id := range recipientIDs {
		if h.subscribers[id] == nil {
			h.subscribers[id] = make(map[chan Event]struct{})
		}
		h.subscribers[id][ch] = struct{}{}
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for _, id := range recipientIDs {
				delete(h.subscribers[id], ch)
				if len(h.subscribers[id]) == 0 {
					delete(h.subscribers, id)
				}
			}
			close(ch)
		})
	}

	return ch, cleanup
}

// Publish sends an event to all subscribers of a recipient channel
func (h *Hub) Publish(recipientID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	event.RecipientID = recipientID
	if subs, ok := h.subscribers[recipientID]; ok {
		for ch := range subs {
			select {
			case ch <- event:
			default:
				// Slow subscriber, drop rather than block publishers
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers for a channel
func (h *Hub) SubscriberCount(recipientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[recipientID])
}
