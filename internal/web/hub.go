package web

import (
	"sync"

	"github.com/sweeney/thermostat/internal/processed"
)

// Message types sent over the websocket.
const (
	MessageWindow = "window" // initial rolling window
	MessageRecord = "record" // one newly processed record
)

// Message is the websocket frame payload.
type Message struct {
	Type    string             `json:"type"`
	Records []processed.Record `json:"records"`
}

// subscriberBuffer is how many messages a slow client may fall behind
// before it is dropped.
const subscriberBuffer = 32

// Hub fans processed records out to connected websocket clients.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Message]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Message]struct{})}
}

// Subscribe registers a client. The returned channel is closed when the
// client is unsubscribed or falls too far behind.
func (h *Hub) Subscribe() chan Message {
	ch := make(chan Message, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a client. Safe to call after the hub dropped it.
func (h *Hub) Unsubscribe(ch chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Broadcast sends each record to every client without blocking.
// Clients whose buffer is full are dropped.
func (h *Hub) Broadcast(recs ...processed.Record) {
	if len(recs) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range recs {
		msg := Message{Type: MessageRecord, Records: []processed.Record{rec}}
		for ch := range h.subs {
			select {
			case ch <- msg:
			default:
				delete(h.subs, ch)
				close(ch)
			}
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
