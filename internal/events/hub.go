// Package events is the gateway's activity feed: an in-memory pub/sub that
// the /events SSE stream and the watch TUI read from. Publishing never
// blocks and never affects how a delivery is answered.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the gateway.
const (
	DeliveryRejected       = "delivery.rejected"
	DeliveryChallenge      = "delivery.challenge"
	DeliveryDuplicate      = "delivery.duplicate"
	NotificationDispatched = "notification.dispatched"
	NotificationDropped    = "notification.dropped"
	NotificationFailed     = "notification.failed"
	SubscriptionRevoked    = "subscription.revoked"
	SubscriptionRegistered = "subscription.registered"
)

const (
	defaultBacklog   = 100
	subscriberBuffer = 128
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Publisher is the write side of a Hub.
type Publisher interface {
	Publish(eventType string, data any)
}

// Hub fans events out to live subscribers and keeps the most recent ones
// for clients that connect or reconnect later.
type Hub struct {
	lastID  atomic.Int64
	dropped atomic.Uint64

	mu      sync.Mutex
	backlog backlog
	subs    map[uint64]chan Event
	nextSub uint64
}

// NewHub creates a hub that retains the last capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultBacklog
	}
	return &Hub{
		backlog: backlog{events: make([]Event, capacity)},
		subs:    make(map[uint64]chan Event),
	}
}

// Publish records an event and fans it out. data is marshalled to JSON; a
// nil or unmarshalable value is published as {}.
func (h *Hub) Publish(eventType string, data any) {
	ev := Event{
		ID:   h.lastID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: encode(data),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.backlog.add(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is full; it can catch up from the backlog.
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a live subscriber. The returned cancel func closes the
// channel and is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries to full subscribers were skipped.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// SnapshotSince returns retained events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backlog.since(lastID)
}

func encode(data any) json.RawMessage {
	if data == nil {
		return json.RawMessage("{}")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// backlog is a fixed-size ring of the newest events.
type backlog struct {
	events []Event
	head   int // index of the oldest event
	n      int
}

func (b *backlog) add(ev Event) {
	if b.n < len(b.events) {
		b.events[(b.head+b.n)%len(b.events)] = ev
		b.n++
		return
	}
	b.events[b.head] = ev
	b.head = (b.head + 1) % len(b.events)
}

func (b *backlog) since(lastID int64) []Event {
	out := make([]Event, 0, b.n)
	for i := 0; i < b.n; i++ {
		if ev := b.events[(b.head+i)%len(b.events)]; ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
