// Package events provides the in-process event bus feeding the websocket
// stream. Publishers never block: slow subscribers drop events.
package events

import (
	"sync"
	"time"
)

// Event types published by the core.
const (
	TypeTradeRecorded   = "trade.recorded"
	TypeDepositMade     = "deposit.made"
	TypeCycleOpened     = "cycle.opened"
	TypeCycleFinalized  = "cycle.finalized"
	TypeSignalCreated   = "signal.created"
	TypeSignalResolved  = "signal.resolved"
	TypePricesRefreshed = "prices.refreshed"
)

// Event is a single notification emitted by the core.
type Event struct {
	Type      string      `json:"type"`
	AccountID string      `json:"account_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	At        time.Time   `json:"at"`
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish delivers an event to all subscribers without blocking.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Subscriber buffer full; drop rather than stall a mutation
		}
	}
}
