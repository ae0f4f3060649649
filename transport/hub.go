// Package transport delivers stream events from the orchestrator to UI
// listeners: an in-process fan-out hub and an HTTP/SSE binding of the four
// wire channels.
package transport

import (
	"sync"

	"go.uber.org/zap"

	"kubechat/chat"
)

const defaultBuffer = 256

// Hub fans stream events out to subscribers. It preserves emission order
// per subscriber; a subscriber that stops draining its channel loses events
// rather than blocking the orchestrator.
type Hub struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[int]chan chat.StreamEvent
	next int
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: map[int]chan chat.StreamEvent{},
	}
}

// Send implements chat.StreamSender.
func (h *Hub) Send(event chat.StreamEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.log.Warn("dropping stream event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("event", event.EventType()),
				zap.String("conversation", event.Conversation()))
		}
	}
}

// Subscribe returns a channel of all stream events and a function that
// cancels the subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan chat.StreamEvent, func()) {
	ch := make(chan chat.StreamEvent, defaultBuffer)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
		h.mu.Unlock()
	}
}
